package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/itarang/telematics-exporter/internal/client/intellicar"
	"github.com/itarang/telematics-exporter/internal/client/tokencache"
	"github.com/itarang/telematics-exporter/internal/config"
	"github.com/itarang/telematics-exporter/internal/dataset"
	"github.com/itarang/telematics-exporter/internal/exporter"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

const (
	appName = "telematics-exporter"
	// tokenCleanupInterval is how often expired tokens are purged from the cache.
	tokenCleanupInterval = time.Hour
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		cancel()
		os.Exit(1) //nolint:gocritic // cancel called above
	}
}

func newRootCmd() *cobra.Command {
	var configPath string
	rootCmd := &cobra.Command{
		Use:   appName,
		Short: "Export Intellicar fleet telemetry to CSV datasets",
		Long: `Export Intellicar fleet telemetry to CSV datasets.

Commands:
  history - export a historical window for every vehicle, or clean/convert existing datasets
  live    - poll the live status of every vehicle on an interval`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "settings.yaml", "path to the YAML settings file")

	rootCmd.AddCommand(newHistoryCmd(&configPath))
	rootCmd.AddCommand(newLiveCmd(&configPath))
	return rootCmd
}

// newLogger creates the process logger at the configured level.
func newLogger(settings *config.Settings) zerolog.Logger {
	logger := zerolog.New(os.Stdout).With().Timestamp().Str("app", appName).Logger()
	level, err := zerolog.ParseLevel(settings.LogLevel)
	if err != nil || settings.LogLevel == "" {
		level = zerolog.InfoLevel
		if err != nil {
			logger.Warn().Err(err).Str("logLevel", settings.LogLevel).Msg("Invalid log level, using info.")
		}
	}
	return logger.Level(level)
}

// loadSettings loads the settings and the logger built from them.
func loadSettings(configPath string) (*config.Settings, zerolog.Logger, error) {
	settings, err := config.Load(configPath)
	if err != nil {
		logger := zerolog.New(os.Stderr).With().Timestamp().Str("app", appName).Logger()
		logger.Error().Err(err).Msg("Failed to load settings.")
		return nil, logger, err
	}
	return &settings, newLogger(&settings), nil
}

// setupExporter creates the API client, token cache and dataset writer behind an Exporter.
func setupExporter(settings *config.Settings, writer *dataset.Writer, logger zerolog.Logger) (*exporter.Exporter, error) {
	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}
	httpClient := &http.Client{Timeout: settings.RequestTimeout}
	client, err := intellicar.NewClient(settings, httpClient, logger.With().Str("component", "intellicar").Logger())
	if err != nil {
		return nil, fmt.Errorf("failed to create intellicar client: %w", err)
	}
	tokens := tokencache.New(settings.TokenTTL, tokenCleanupInterval, client)
	return exporter.New(client, tokens, tokencache.AccountTokenKey(client.Username()), writer,
		logger.With().Str("component", "exporter").Logger())
}
