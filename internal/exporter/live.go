package exporter

import (
	"context"
	"fmt"
	"time"

	"github.com/itarang/telematics-exporter/internal/client/intellicar"
	"github.com/itarang/telematics-exporter/internal/metrics"
	"github.com/itarang/telematics-exporter/internal/record"
	"github.com/segmentio/ksuid"
)

// LiveSummary reports what a live polling cycle did.
type LiveSummary struct {
	RunID     string         `json:"runId"`
	StartedAt time.Time      `json:"startedAt"`
	Vehicles  int            `json:"vehicles"`
	Rows      map[string]int `json:"rows"`
	// LastFetch is the fetch time of the latest row saved per vehicle.
	LastFetch map[string]time.Time `json:"lastFetch"`
	Error     string               `json:"error,omitempty"`
}

// RunLiveCycle fetches the current status of every vehicle once and appends one row per live
// endpoint. Every row carries the vehicle number and the local fetch time.
func (e *Exporter) RunLiveCycle(ctx context.Context) (*LiveSummary, error) {
	started := time.Now()
	summary := &LiveSummary{
		RunID:     ksuid.New().String(),
		StartedAt: started,
		Rows:      make(map[string]int),
		LastFetch: make(map[string]time.Time),
	}
	defer func() {
		metrics.LiveCycleDuration.Observe(time.Since(started).Seconds())
		e.lastLive.Store(summary)
	}()
	logger := e.logger.With().Str("runId", summary.RunID).Logger()
	logger.Info().Msg("Fetching live data.")

	token, err := e.tokens.GetToken(ctx, e.tokenKey)
	if err != nil {
		summary.Error = err.Error()
		return summary, fmt.Errorf("failed to get token: %w", err)
	}

	vehicles := e.vehicles(ctx, &logger, token)
	summary.Vehicles = len(vehicles)
	for _, vehicleNo := range vehicles {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		vLogger := logger.With().Str("vehicleNo", vehicleNo).Logger()
		vLogger.Debug().Msg("Fetching live data for vehicle.")

		for _, ep := range LiveEndpoints {
			records := e.fetch(ctx, &vLogger, token, intellicar.Request{
				Endpoint:       ep.Name,
				VehicleNo:      vehicleNo,
				Extra:          ep.Extra,
				FlattenMetrics: ep.FlattenMetrics,
			})
			if len(records) == 0 {
				continue
			}
			row := e.liveRow(ep, vehicleNo, records[0])
			n, err := e.save(ep.Dataset, []*record.Record{row})
			if err != nil {
				summary.Error = err.Error()
				return summary, err
			}
			summary.Rows[ep.Dataset] += n
			summary.LastFetch[row.VehicleNo()] = row.FetchTime()
		}
	}
	logger.Info().Int("vehicles", summary.Vehicles).Interface("rows", summary.Rows).Msg("Finished live cycle.")
	return summary, nil
}

// liveRow stamps a live reading with its fetch time. Flattened metric readings lead with the
// vehicle number and fetch time; plain readings keep the API's columns first.
func (e *Exporter) liveRow(ep Endpoint, vehicleNo string, reading *record.Record) *record.Record {
	fetched := e.now()
	if !ep.FlattenMetrics {
		reading.SetVehicleNo(vehicleNo)
		reading.SetFetchTime(fetched)
		return reading
	}

	row := record.New()
	row.SetVehicleNo(vehicleNo)
	row.SetFetchTime(fetched)
	for _, key := range reading.Keys() {
		v, _ := reading.Get(key)
		row.Set(key, v)
	}
	row.SetVehicleNo(vehicleNo)
	return row
}

// LastLiveSummary returns the summary of the most recent live cycle, or nil before the first one
// finished. It is safe to call while RunLive is running.
func (e *Exporter) LastLiveSummary() *LiveSummary {
	return e.lastLive.Load()
}

// RunLive runs live cycles until ctx is cancelled, waiting interval between the end of one
// cycle and the start of the next. A failed cycle is logged and retried on the next tick.
func (e *Exporter) RunLive(ctx context.Context, interval time.Duration) error {
	e.logger.Info().Dur("interval", interval).Msg("Starting live data service.")
	for {
		if _, err := e.RunLiveCycle(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			e.logger.Error().Err(err).Msg("Live cycle failed, skipping this iteration.")
		}

		e.logger.Info().Msgf("Waiting %s...", interval)
		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			e.logger.Info().Msg("Stopping live data service.")
			return nil
		case <-timer.C:
		}
	}
}
