package exporter

import (
	"context"
	"errors"
	"time"

	"github.com/itarang/telematics-exporter/internal/dataset"
	"github.com/itarang/telematics-exporter/internal/metrics"
	"github.com/rs/zerolog"
)

// MaintenanceOptions selects the maintenance passes to run.
type MaintenanceOptions struct {
	Clean       bool
	ConvertTime bool
	// Datasets defaults to every historical dataset.
	Datasets []string
	// Location is the time zone epoch values are converted to. Defaults to time.Local.
	Location *time.Location
}

// Requested reports whether any maintenance pass was selected. Requesting maintenance replaces
// extraction for the invocation.
func (o MaintenanceOptions) Requested() bool {
	return o.Clean || o.ConvertTime
}

// RunMaintenance deduplicates and then normalizes timestamps in the datasets. Missing datasets
// are skipped. A failure on one dataset does not stop the others; all failures are returned.
func RunMaintenance(ctx context.Context, writer *dataset.Writer, logger zerolog.Logger, opts MaintenanceOptions) error {
	names := opts.Datasets
	if len(names) == 0 {
		names = HistoryDatasets()
	}
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}

	var errs []error
	if opts.Clean {
		logger.Info().Msg("Running deduplication.")
		for _, name := range names {
			if err := ctx.Err(); err != nil {
				return err
			}
			path := writer.Path(name)
			stats, err := dataset.Deduplicate(path)
			if err != nil {
				logger.Error().Err(err).Str("dataset", name).Msg("Failed to deduplicate dataset.")
				errs = append(errs, err)
				continue
			}
			metrics.DuplicatesRemoved.WithLabelValues(name).Add(float64(stats.Removed))
			logger.Info().Str("dataset", name).Int("scanned", stats.Scanned).Int("removed", stats.Removed).
				Int("retained", stats.Retained).Msgf("Removed %d duplicates from %d rows. Final: %d", stats.Removed, stats.Scanned, stats.Retained)
		}
	}

	if opts.ConvertTime {
		logger.Info().Msg("Converting timestamps.")
		for _, name := range names {
			if err := ctx.Err(); err != nil {
				return err
			}
			path := writer.Path(name)
			stats, err := dataset.NormalizeTimestampsIn(path, loc)
			if err != nil {
				logger.Error().Err(err).Str("dataset", name).Msg("Failed to convert timestamps.")
				errs = append(errs, err)
				continue
			}
			metrics.TimestampsConverted.WithLabelValues(name).Add(float64(stats.Converted))
			if stats.Converted > 0 {
				logger.Info().Str("dataset", name).Int("converted", stats.Converted).Msgf("Converted %d timestamp fields.", stats.Converted)
			}
		}
	}
	return errors.Join(errs...)
}
