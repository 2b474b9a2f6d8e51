// Package cli implements the imreg command line.
package cli

import (
	"fmt"
	"log/slog"

	"imgreg/internal/config"
	"imgreg/internal/logging"

	"github.com/spf13/cobra"
)

// Root holds the state shared by every subcommand. Config and Log are
// filled in before any subcommand runs.
type Root struct {
	ConfigPath string
	Config     *config.Config
	Log        *slog.Logger
	LogLevel   string
}

// NewRootCmd creates the root Cobra command
func NewRootCmd() *cobra.Command {
	root := &Root{}

	rootCmd := &cobra.Command{
		Use:   "imreg",
		Short: "imreg registers a sensed image onto a reference image",
		Long: `imreg estimates the geometric transform between two images of the same
scene with ECC, ORB/AKAZE feature matching or Fourier-Mellin phase
correlation and resamples the sensed image into the reference frame.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return root.load()
		},
	}
	rootCmd.PersistentFlags().StringVarP(&root.ConfigPath, "config", "c", config.DefaultPath(), "Config file")
	rootCmd.PersistentFlags().StringVar(&root.LogLevel, "log-level", "", "Override the configured log level")

	rootCmd.AddCommand(newRegisterCmd(root))
	rootCmd.AddCommand(newCompareCmd(root))
	rootCmd.AddCommand(newEdgesCmd(root))
	rootCmd.AddCommand(newServeCmd(root))
	rootCmd.AddCommand(newConfigCmd(root))
	rootCmd.AddCommand(newVersionCmd(root))

	return rootCmd
}

func (r *Root) load() error {
	cfg, err := config.Load(r.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if r.LogLevel != "" {
		cfg.Logging.Level = r.LogLevel
	}
	r.Config = cfg
	r.Log = logging.New(cfg.Logging.Level, cfg.Logging.Format)
	return nil
}
