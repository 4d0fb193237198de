package main

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

const (
	appName = "emerald"
	version = "v0.4.0"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	// Optional .env for local overrides; absence is not an error.
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:     appName,
		Short:   "Signal convergence engine for Hyperliquid perpetuals",
		Version: version,
		Long: `Emerald watches order books, trade prints, candles, and derivative
metrics on Hyperliquid, scores the convergence of five independent
signals per instrument, and serves the verdicts over HTTP.`,
	}
	rootCmd.PersistentFlags().String("config", "", "Path to YAML config (defaults apply when omitted)")

	monitorCmd := &cobra.Command{
		Use:   "monitor",
		Short: "Run continuous ingestion and serve the HTTP API",
		Long:  "Starts the trade stream, the polling scheduler, and the HTTP API, and runs until interrupted",
		RunE:  runMonitor,
	}

	evaluateCmd := &cobra.Command{
		Use:   "evaluate [instrument]",
		Short: "Fetch a fresh snapshot and print one convergence verdict",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runEvaluate,
	}

	microCmd := &cobra.Command{
		Use:   "microstructure [instrument]",
		Short: "Watch the book briefly and print a microstructure report",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runMicrostructure,
	}
	microCmd.Flags().Duration("watch", 30*time.Second, "How long to sample the book before reporting")

	rootCmd.AddCommand(monitorCmd, evaluateCmd, microCmd)

	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg(appName + " exited with error")
		os.Exit(1)
	}
}

func setLogLevel(level string) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
}
