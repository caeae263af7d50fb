package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"kalmanarb-go/internal/config"
	"kalmanarb-go/internal/util"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "kalmanarb",
		Short:         "Kalman-filter pairs trading backtester",
		Long:          "Estimates a time-varying hedge ratio with a Kalman filter and trades the spread z-score against a simulated two-leg ledger.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().String("config", "", "YAML config file (defaults when empty)")
	rootCmd.PersistentFlags().String("env-file", ".env", "dotenv file with KALMANARB_* overrides")
	rootCmd.PersistentFlags().String("log-level", "", "log level override (debug|info|warn|error)")
	rootCmd.PersistentFlags().Bool("console", false, "human-readable logs instead of JSON")

	rootCmd.AddCommand(newBacktestCmd(), newSynthCmd(), newFilterCmd())
	return rootCmd
}

func loadConfig(cmd *cobra.Command) (*config.Config, zerolog.Logger, error) {
	path, _ := cmd.Flags().GetString("config")
	envFile, _ := cmd.Flags().GetString("env-file")
	cfg, err := config.LoadWithEnv(path, envFile)
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.App.LogLevel = level
	}
	if console, _ := cmd.Flags().GetBool("console"); console {
		return cfg, util.NewConsoleLogger(cfg.App.LogLevel, cmd.ErrOrStderr()), nil
	}
	return cfg, util.NewLogger(cfg.App.LogLevel, cmd.ErrOrStderr()), nil
}
