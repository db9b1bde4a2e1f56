package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-presence/internal/app"
	"github.com/teslashibe/go-presence/internal/log"
)

func newRunCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the detection loop, voice listener and status API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			logger := log.L()

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			a, err := app.New(cfg, app.WithLogger(logger))
			if err != nil {
				return err
			}
			defer func() {
				shutdownCtx, stop := context.WithTimeout(context.Background(), 15*time.Second)
				defer stop()
				if err := a.Shutdown(shutdownCtx); err != nil {
					logger.Warn("shutdown incomplete", "error", err)
				}
				logger.Info("presenced stopped")
			}()
			if err := a.Init(ctx); err != nil {
				logger.Error("initialization failed", "error", err)
				return err
			}

			return a.Run(ctx)
		},
	}
}
