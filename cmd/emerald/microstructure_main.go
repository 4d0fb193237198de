package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// runMicrostructure samples the live book for the watch window, then prints
// the spoof/iceberg/wall report.
func runMicrostructure(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd, false)
	if err != nil {
		return err
	}
	instrument := a.instrument(args)
	watch, _ := cmd.Flags().GetDuration("watch")

	ctx, cancel := context.WithTimeout(cmd.Context(), watch+10*time.Second)
	defer cancel()

	log.Info().Str("instrument", instrument).Dur("watch", watch).
		Msg("sampling order book")

	deadline := time.Now().Add(watch)
	ticker := time.NewTicker(a.cfg.Ingest.BookInterval)
	defer ticker.Stop()
	for time.Now().Before(deadline) {
		snap, err := a.client.OrderBook(ctx, instrument)
		if err != nil {
			log.Warn().Err(err).Msg("book fetch failed")
		} else {
			a.detector.Record(snap)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}

	report := a.detector.Analyze(instrument)
	out, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}
