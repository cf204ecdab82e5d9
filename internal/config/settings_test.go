package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileUsesEnvironment(t *testing.T) {
	t.Setenv("INTELLICAR_USERNAME", "fleet@example.com")
	t.Setenv("INTELLICAR_PASSWORD", "secret")
	t.Setenv("DATA_DIR", "/var/lib/exports")

	settings, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "fleet@example.com", settings.IntellicarUsername)
	assert.Equal(t, "/var/lib/exports", settings.DataDir)
	assert.Equal(t, defaultBaseURL, settings.IntellicarBaseURL)
	assert.Equal(t, time.Minute, settings.RequestTimeout)
	assert.Equal(t, 5*time.Minute, settings.LivePollInterval)
}

func TestLoadFileThenEnvironmentOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	content := `
logLevel: debug
intellicarUsername: file-user
intellicarPassword: file-pass
livePollInterval: 30s
dataDir: /tmp/from-file
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Setenv("INTELLICAR_PASSWORD", "env-pass")

	settings, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", settings.LogLevel)
	assert.Equal(t, "file-user", settings.IntellicarUsername)
	assert.Equal(t, "env-pass", settings.IntellicarPassword)
	assert.Equal(t, 30*time.Second, settings.LivePollInterval)
	assert.Equal(t, "/tmp/from-file", settings.DataDir)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(s *Settings)
		wantErr bool
	}{
		{name: "complete", modify: func(*Settings) {}},
		{name: "missing username", modify: func(s *Settings) { s.IntellicarUsername = "" }, wantErr: true},
		{name: "missing password", modify: func(s *Settings) { s.IntellicarPassword = "" }, wantErr: true},
		{name: "missing base URL", modify: func(s *Settings) { s.IntellicarBaseURL = "" }, wantErr: true},
		{name: "zero timeout", modify: func(s *Settings) { s.RequestTimeout = 0 }, wantErr: true},
		{name: "zero poll interval", modify: func(s *Settings) { s.LivePollInterval = 0 }, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Defaults()
			s.IntellicarUsername = "fleet@example.com"
			s.IntellicarPassword = "secret"
			tt.modify(&s)
			err := s.Validate()
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestLoadRejectsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte("logLevel: [unterminated"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
}
