// Package exporter drives the fetch loops that move fleet telemetry from the API into datasets.
// Work is strictly sequential: one request in flight and one dataset written at a time.
package exporter

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/itarang/telematics-exporter/internal/client/intellicar"
	"github.com/itarang/telematics-exporter/internal/dataset"
	"github.com/itarang/telematics-exporter/internal/metrics"
	"github.com/itarang/telematics-exporter/internal/record"
	"github.com/rs/zerolog"
)

// API is the part of the Intellicar client used by the exporter.
type API interface {
	ListVehicles(ctx context.Context, token string) ([]string, error)
	Fetch(ctx context.Context, token string, req intellicar.Request) ([]*record.Record, error)
}

// TokenSource hands out API tokens, usually a tokencache.Cache.
type TokenSource interface {
	GetToken(ctx context.Context, key string) (string, error)
	Invalidate(key string)
}

// Exporter runs historical exports and live polling cycles.
type Exporter struct {
	api      API
	tokens   TokenSource
	tokenKey string
	writer   *dataset.Writer
	logger   *zerolog.Logger
	now      func() time.Time
	lastLive atomic.Pointer[LiveSummary]
}

// Option configures an Exporter.
type Option func(*Exporter)

// WithClock sets the clock used for live fetch times.
func WithClock(now func() time.Time) Option {
	return func(e *Exporter) { e.now = now }
}

// New creates an Exporter. tokenKey is the key passed to tokens.
func New(api API, tokens TokenSource, tokenKey string, writer *dataset.Writer, logger zerolog.Logger, opts ...Option) (*Exporter, error) {
	if api == nil {
		return nil, errors.New("API client is required")
	}
	if tokens == nil {
		return nil, errors.New("token source is required")
	}
	if writer == nil {
		return nil, errors.New("dataset writer is required")
	}
	e := &Exporter{
		api:      api,
		tokens:   tokens,
		tokenKey: tokenKey,
		writer:   writer,
		logger:   &logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// vehicles lists the fleet. A failed listing is logged and yields no vehicles. The token is
// dropped as well since a rejected token is the usual cause; the next run authenticates again.
func (e *Exporter) vehicles(ctx context.Context, logger *zerolog.Logger, token string) []string {
	vehicles, err := e.api.ListVehicles(ctx, token)
	if err != nil {
		logger.Warn().Err(err).Msg("Error fetching vehicles, continuing with none.")
		e.tokens.Invalidate(e.tokenKey)
		vehicles = nil
	}
	metrics.FleetSize.Set(float64(len(vehicles)))
	logger.Info().Int("vehicles", len(vehicles)).Msgf("Discovered %d vehicles.", len(vehicles))
	return vehicles
}

// fetch calls one endpoint for one vehicle. Soft misses and request failures are logged and
// return no records so the caller moves on.
func (e *Exporter) fetch(ctx context.Context, logger *zerolog.Logger, token string, req intellicar.Request) []*record.Record {
	records, err := e.api.Fetch(ctx, token, req)
	switch {
	case err == nil:
		metrics.FetchTotal.WithLabelValues(req.Endpoint, metrics.OutcomeOK).Inc()
		return records
	case errors.Is(err, intellicar.ErrSoftMiss):
		metrics.FetchTotal.WithLabelValues(req.Endpoint, metrics.OutcomeSoftMiss).Inc()
		logger.Info().Str("endpoint", req.Endpoint).Str("vehicleNo", req.VehicleNo).Err(err).Msg("No data for endpoint.")
	default:
		metrics.FetchTotal.WithLabelValues(req.Endpoint, metrics.OutcomeError).Inc()
		logger.Error().Str("endpoint", req.Endpoint).Str("vehicleNo", req.VehicleNo).Err(err).Msg("Failed to fetch endpoint.")
	}
	return nil
}

func (e *Exporter) save(dataset string, records []*record.Record) (int, error) {
	n, err := e.writer.Append(dataset, records...)
	if err != nil {
		return 0, fmt.Errorf("failed to save %s: %w", dataset, err)
	}
	metrics.RowsWritten.WithLabelValues(dataset).Add(float64(n))
	return n, nil
}
