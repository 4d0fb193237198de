package main

import (
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/Alex-TheLuchador/emerald-sub000/internal/httpapi"
)

func runMonitor(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd, true)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info().Strs("instruments", a.cfg.Instruments).
		Str("addr", a.cfg.Server.Addr).
		Msg("starting monitor")

	go a.stream.Run(ctx)
	go a.scheduler.Run(ctx)

	server := httpapi.New(a.cfg.Server.Addr, a.engine, a.detector,
		a.metrics, a.registry, a.cfg.Instruments)
	if err := server.Run(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	log.Info().Msg("monitor stopped")
	return nil
}
