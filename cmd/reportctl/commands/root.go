// Package commands implements reportctl, which runs the report pipeline on
// local files without any of the services.
package commands

import (
	"car-report/internal/config"
	"car-report/internal/logging"

	"github.com/spf13/cobra"
)

var (
	verbose   bool
	logFormat string

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:           "reportctl",
	Short:         "Vehicle history report tools",
	Long:          `reportctl normalizes screenshots, parses raw model output and builds HTML reports from local files.`,
	SilenceUsage:  true,
	SilenceErrors: false,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.LoadConfig()
		if err != nil {
			return err
		}
		cfg = loaded

		level := cfg.LogLevel
		if verbose {
			level = "debug"
		}
		logging.Setup(logging.Config{Level: level, Format: logFormat, Service: "reportctl", Output: cmd.ErrOrStderr()})
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "console", "log format: console or json")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
