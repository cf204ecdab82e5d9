package exporter

import (
	"context"
	"errors"
	"fmt"

	"github.com/itarang/telematics-exporter/internal/client/intellicar"
	"github.com/itarang/telematics-exporter/internal/dataset"
	"github.com/segmentio/ksuid"
)

// HistoryOptions configures a historical export run.
type HistoryOptions struct {
	Window intellicar.Window
	// Resume skips vehicles already present in the resume reference dataset.
	Resume bool
}

// HistorySummary reports what a historical export did.
type HistorySummary struct {
	RunID    string
	Vehicles int
	Skipped  int
	// Rows is the number of rows written per dataset.
	Rows map[string]int
}

// RunHistory exports every historical endpoint for every vehicle over the window.
//
// Failing to obtain a token aborts the run. A failed fleet listing, an endpoint with no data or
// a failed request is logged and skipped.
func (e *Exporter) RunHistory(ctx context.Context, opts HistoryOptions) (*HistorySummary, error) {
	summary := &HistorySummary{
		RunID: ksuid.New().String(),
		Rows:  make(map[string]int),
	}
	logger := e.logger.With().Str("runId", summary.RunID).Logger()
	logger.Info().Int64("startTime", opts.Window.Start).Int64("endTime", opts.Window.End).Msg("Fetching historical data.")

	// The set is built once and never updated during the run.
	processed := dataset.VehicleSet{}
	if opts.Resume {
		var err error
		processed, err = dataset.ProcessedVehicles(e.writer.Path(ResumeReference()))
		if err != nil {
			logger.Warn().Err(err).Msg("Failed to fully read resume reference dataset.")
		}
		logger.Info().Int("processed", len(processed)).Msgf("Resuming: skipping %d fully processed vehicles.", len(processed))
	}

	token, err := e.tokens.GetToken(ctx, e.tokenKey)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to get token.")
		return summary, fmt.Errorf("failed to get token: %w", err)
	}

	vehicles := e.vehicles(ctx, &logger, token)
	summary.Vehicles = len(vehicles)

	for i, vehicleNo := range vehicles {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		vLogger := logger.With().Str("vehicleNo", vehicleNo).Int("index", i+1).Int("total", len(vehicles)).Logger()
		if opts.Resume && processed.Contains(vehicleNo) {
			summary.Skipped++
			vLogger.Info().Msgf("Skipping %d/%d: %s", i+1, len(vehicles), vehicleNo)
			continue
		}
		vLogger.Info().Msgf("Processing vehicle %d/%d: %s", i+1, len(vehicles), vehicleNo)

		for _, ep := range HistoryEndpoints {
			window := opts.Window
			records := e.fetch(ctx, &vLogger, token, intellicar.Request{
				Endpoint:  ep.Name,
				VehicleNo: vehicleNo,
				Window:    &window,
				Extra:     ep.Extra,
			})
			if len(records) == 0 {
				if err := ctx.Err(); err != nil {
					return summary, err
				}
				continue
			}
			n, err := e.save(ep.Dataset, records)
			if err != nil {
				return summary, err
			}
			summary.Rows[ep.Dataset] += n
			vLogger.Info().Str("endpoint", ep.Name).Int("rows", n).Msgf("Saved %d entries for %s", n, ep.Name)
		}
	}

	logger.Info().Int("vehicles", summary.Vehicles).Int("skipped", summary.Skipped).
		Interface("rows", summary.Rows).Msg("Finished exporting historical data.")
	return summary, nil
}

// IsAuthFailure reports whether err was caused by rejected credentials.
func IsAuthFailure(err error) bool {
	var authErr *intellicar.AuthError
	return errors.As(err, &authErr)
}
