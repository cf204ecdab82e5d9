package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

const (
	defaultBaseURL          = "https://apiplatform.intellicar.in/api/standard"
	defaultRequestTimeout   = time.Minute
	defaultLivePollInterval = 5 * time.Minute
	defaultTokenTTL         = 55 * time.Minute
)

// Settings contains the application config.
type Settings struct {
	Environment string `env:"ENVIRONMENT" yaml:"environment"`
	LogLevel    string `env:"LOG_LEVEL"   yaml:"logLevel"`
	MonPort     int    `env:"MON_PORT"    yaml:"monPort"`

	// Intellicar API settings
	IntellicarBaseURL  string `env:"INTELLICAR_BASE_URL" yaml:"intellicarBaseUrl"`
	IntellicarUsername string `env:"INTELLICAR_USERNAME" yaml:"intellicarUsername"`
	IntellicarPassword string `env:"INTELLICAR_PASSWORD" yaml:"intellicarPassword"`

	RequestTimeout   time.Duration `env:"REQUEST_TIMEOUT"    yaml:"requestTimeout"`
	TokenTTL         time.Duration `env:"TOKEN_TTL"          yaml:"tokenTtl"`
	LivePollInterval time.Duration `env:"LIVE_POLL_INTERVAL" yaml:"livePollInterval"`

	// DataDir is where the CSV datasets are read and written.
	DataDir string `env:"DATA_DIR" yaml:"dataDir"`
}

// Defaults returns the settings used when neither the settings file nor the environment set a value.
func Defaults() Settings {
	return Settings{
		Environment:       "prod",
		LogLevel:          "info",
		IntellicarBaseURL: defaultBaseURL,
		RequestTimeout:    defaultRequestTimeout,
		TokenTTL:          defaultTokenTTL,
		LivePollInterval:  defaultLivePollInterval,
		DataDir:           ".",
	}
}

// Load reads the optional YAML settings file at path and then applies environment overrides.
// A missing settings file is not an error. Load does not validate; callers that talk to the API
// call Validate.
func Load(path string) (Settings, error) {
	settings := Defaults()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return Settings{}, fmt.Errorf("failed to read settings file: %w", err)
		default:
			if err := yaml.Unmarshal(data, &settings); err != nil {
				return Settings{}, fmt.Errorf("failed to parse settings file %s: %w", path, err)
			}
		}
	}
	if err := env.Parse(&settings); err != nil {
		return Settings{}, fmt.Errorf("failed to parse environment variables: %w", err)
	}
	return settings, nil
}

// Validate checks that the settings required to talk to the API are present.
func (s *Settings) Validate() error {
	if s.IntellicarBaseURL == "" {
		return errors.New("intellicar base URL is required")
	}
	if s.IntellicarUsername == "" || s.IntellicarPassword == "" {
		return errors.New("intellicar username and password are required")
	}
	if s.RequestTimeout <= 0 {
		return fmt.Errorf("request timeout must be positive, got %s", s.RequestTimeout)
	}
	if s.LivePollInterval <= 0 {
		return fmt.Errorf("live poll interval must be positive, got %s", s.LivePollInterval)
	}
	return nil
}
