// Command imreg registers images from the command line or over HTTP.
package main

import (
	"os"

	"imgreg/internal/cli"
)

func main() {
	if err := cli.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
