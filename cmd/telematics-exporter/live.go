package main

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/itarang/telematics-exporter/internal/app"
	"github.com/itarang/telematics-exporter/internal/dataset"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newLiveCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "live",
		Short: "Poll live status of every vehicle into live_*.csv datasets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			settings, logger, err := loadSettings(*configPath)
			if err != nil {
				return err
			}
			exp, err := setupExporter(settings, dataset.NewWriter(settings.DataDir), logger)
			if err != nil {
				logger.Error().Err(err).Msg("Failed to set up exporter.")
				return err
			}

			group, gCtx := errgroup.WithContext(cmd.Context())
			if settings.MonPort > 0 {
				ctrl, err := app.NewController(exp)
				if err != nil {
					return fmt.Errorf("failed to create controller: %w", err)
				}
				serverLogger := logger.With().Str("component", "monitor").Logger()
				monApp := app.CreateMonitorServer(&serverLogger, ctrl)
				listener, err := net.Listen("tcp", ":"+strconv.Itoa(settings.MonPort))
				if err != nil {
					return fmt.Errorf("couldn't listen on port %d: %w", settings.MonPort, err)
				}
				logger.Info().Msgf("Monitoring on %s", listener.Addr())
				RunFiberWithListener(gCtx, monApp, listener, group)
			}
			group.Go(func() error {
				return exp.RunLive(gCtx, settings.LivePollInterval)
			})

			if err := group.Wait(); err != nil {
				logger.Error().Err(err).Msg("Live service failed.")
				return err
			}
			return nil
		},
	}
}

// RunFiberWithListener runs a fiber server on listener until ctx is done.
func RunFiberWithListener(ctx context.Context, fiberApp *fiber.App, listener net.Listener, group *errgroup.Group) {
	group.Go(func() error {
		if err := fiberApp.Listener(listener); err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		<-ctx.Done()
		if err := fiberApp.Shutdown(); err != nil {
			return fmt.Errorf("failed to shutdown server: %w", err)
		}
		return nil
	})
}
