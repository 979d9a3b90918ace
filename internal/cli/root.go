package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var version = "0.1.0"

var logger = zap.NewNop()

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:     "lunge-worker",
	Short:   "Distributed load-testing worker",
	Version: version,
	Long: `lunge-worker executes load-testing tasks. A task is a plugin tree that is
copied once per virtual user; every copy runs its HTTP, SQL and Redis
requests for a fixed number of iterations while the worker reports the
task status to its orchestrator.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		verbose, _ := cmd.Flags().GetBool("verbose")

		config := zap.NewProductionConfig()
		if verbose {
			config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		l, err := config.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		logger = l
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
	Run: func(cmd *cobra.Command, args []string) {
		// If no subcommand is provided, print help
		_ = cmd.Help()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	if err := RootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return err
	}
	return nil
}

func init() {
	RootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable debug logging")
	RootCmd.PersistentFlags().StringP("config", "c", "", "Worker configuration file (YAML)")

	RootCmd.AddCommand(runCmd)
	RootCmd.AddCommand(startCmd)
	RootCmd.AddCommand(killCmd)
	RootCmd.AddCommand(validateCmd)
	RootCmd.AddCommand(versionCmd)
}
