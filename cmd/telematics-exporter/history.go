package main

import (
	"fmt"
	"time"

	"github.com/itarang/telematics-exporter/internal/dataset"
	"github.com/itarang/telematics-exporter/internal/exporter"
	"github.com/spf13/cobra"
)

func newHistoryCmd(configPath *string) *cobra.Command {
	var (
		window      exporter.WindowOptions
		resume      bool
		maintenance exporter.MaintenanceOptions
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Export historical telemetry for every vehicle",
		Long: `Export historical telemetry for every vehicle into historical_<endpoint>.csv datasets.

With --clean and/or --convert-time the existing datasets are deduplicated and/or have their
epoch timestamps rewritten as local date-times instead, and nothing is fetched.`,
		Example: `  telematics-exporter history                         # last 24 hours
  telematics-exporter history --start 2026-01-01 --end 2026-02-01
  telematics-exporter history --bulk-default --resume
  telematics-exporter history --clean --convert-time`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			settings, logger, err := loadSettings(*configPath)
			if err != nil {
				return err
			}
			writer := dataset.NewWriter(settings.DataDir)

			if maintenance.Requested() {
				return exporter.RunMaintenance(cmd.Context(), writer, logger.With().Str("component", "maintenance").Logger(), maintenance)
			}

			w, err := exporter.ResolveWindow(window, time.Now())
			if err != nil {
				return err
			}
			exp, err := setupExporter(settings, writer, logger)
			if err != nil {
				logger.Error().Err(err).Msg("Failed to set up exporter.")
				return err
			}
			if _, err := exp.RunHistory(cmd.Context(), exporter.HistoryOptions{Window: w, Resume: resume}); err != nil {
				if exporter.IsAuthFailure(err) {
					return fmt.Errorf("authentication rejected: %w", err)
				}
				return err
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&window.Start, "start", "", "start date (YYYY-MM-DD)")
	flags.StringVar(&window.End, "end", "", "end date (YYYY-MM-DD)")
	flags.BoolVar(&window.BulkDefault, "bulk-default", false, "use the bulk backfill range 2025-09-01 to 2026-02-20 for unset dates")
	flags.BoolVar(&resume, "resume", false, "skip vehicles already present in "+exporter.ResumeReference())
	flags.BoolVar(&maintenance.Clean, "clean", false, "remove exact duplicate rows from all historical datasets")
	flags.BoolVar(&maintenance.ConvertTime, "convert-time", false, "rewrite epoch timestamps in all historical datasets as readable date-times")
	return cmd
}
