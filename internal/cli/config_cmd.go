package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"imgreg/internal/config"

	"github.com/spf13/cobra"
)

func newConfigCmd(root *Root) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or create the configuration file",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			printf(cmd, "Config file: %s\n", root.ConfigPath)
			data, err := json.MarshalIndent(root.Config, "", "  ")
			if err != nil {
				return err
			}
			printf(cmd, "%s\n", data)
			return nil
		},
	})

	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(root.ConfigPath); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", root.ConfigPath)
			} else if err != nil && !errors.Is(err, os.ErrNotExist) {
				return err
			}
			if err := config.Default().Save(root.ConfigPath); err != nil {
				return err
			}
			printf(cmd, "Wrote %s\n", root.ConfigPath)
			return nil
		},
	}
	initCmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite an existing file")
	cmd.AddCommand(initCmd)

	return cmd
}
