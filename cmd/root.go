package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"invoicer/internal/config"
	"invoicer/internal/logger"
)

var version = "1.0.0"

// appConfig is set by Execute; nil when the environment failed validation.
var appConfig *config.Config

var rootCmd = &cobra.Command{
	Use:   "invoicer",
	Short: "Invoicer - invoices, quotes, payments and recurring billing",
	Long: `Invoicer keeps a small business's invoicing ledger: clients, a service
catalog, quotes, invoices with GST, payments and recurring billing schedules.

Records live in the store selected by STORE_DRIVER (file, sqlite, postgres
or memory). Every command prints JSON.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		log := logger.WithCommand("cmd", cmd.CommandPath())
		log.Debug().Strs("args", args).Msg("Running command")
	},
}

// Execute runs the command tree with cfg
func Execute(cfg *config.Config) {
	log := logger.WithComponent("cmd")
	appConfig = cfg

	if err := rootCmd.Execute(); err != nil {
		log.Error().
			Err(err).
			Msg("Command execution failed")
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringP("output", "o", "", "Write JSON output to this file instead of stdout")
	rootCmd.PersistentFlags().Int("timeout", 60, "Timeout in seconds (0 disables)")
}

// commandOptions reads the persistent flags
func commandOptions(cmd *cobra.Command) (outputPath string, timeoutSecs int) {
	outputPath, _ = cmd.Flags().GetString("output")
	timeoutSecs, _ = cmd.Flags().GetInt("timeout")
	return outputPath, timeoutSecs
}
