package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	assisterr "github.com/il-dat/open-code-assistant/pkg/errors"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, DefaultBaseURL, cfg.Endpoint.BaseURL)
	assert.Equal(t, DefaultModel, cfg.Completion.Model)
	assert.Equal(t, DefaultMaxTokens, cfg.Completion.MaxTokens)
	assert.InDelta(t, DefaultTemperature, cfg.Completion.Temperature, 1e-9)
	assert.NoError(t, cfg.Validate())
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	path := writeConfig(t, `
endpoint:
  base_url: http://inference.local:11434
completion:
  model: codellama:7b-code
  temperature: 0.5
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "http://inference.local:11434", cfg.Endpoint.BaseURL)
	assert.Equal(t, "codellama:7b-code", cfg.Completion.Model)
	assert.InDelta(t, 0.5, cfg.Completion.Temperature, 1e-9)
	// Fields absent from the file keep their defaults.
	assert.Equal(t, DefaultMaxTokens, cfg.Completion.MaxTokens)
}

func TestLoadPartialFileKeepsZeroAwareDefaults(t *testing.T) {
	// temperature: 0 is explicitly set and must survive the merge.
	path := writeConfig(t, `
completion:
  temperature: 0
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.InDelta(t, 0.0, cfg.Completion.Temperature, 1e-9)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultBaseURL, cfg.Endpoint.BaseURL)
}

func TestLoadMalformedFile(t *testing.T) {
	path := writeConfig(t, "endpoint: [not a mapping")

	_, err := Load(path)
	require.Error(t, err)
	assert.True(t, assisterr.IsCode(err, assisterr.ErrCodeConfigParse))
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("ASSISTANT_ENDPOINT_URL", "http://127.0.0.1:9999")
	t.Setenv("ASSISTANT_MODEL", "starcoder2:3b")
	t.Setenv("ASSISTANT_AUTH_TOKEN", "secret-token")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "http://127.0.0.1:9999", cfg.Endpoint.BaseURL)
	assert.Equal(t, "starcoder2:3b", cfg.Completion.Model)
	assert.Equal(t, "secret-token", cfg.Endpoint.AuthToken)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid_defaults",
			mutate:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "empty_base_url",
			mutate:  func(c *Config) { c.Endpoint.BaseURL = "  " },
			wantErr: true,
		},
		{
			name:    "unparseable_base_url",
			mutate:  func(c *Config) { c.Endpoint.BaseURL = "::not-a-url" },
			wantErr: true,
		},
		{
			name:    "empty_model",
			mutate:  func(c *Config) { c.Completion.Model = "" },
			wantErr: true,
		},
		{
			name:    "zero_max_tokens",
			mutate:  func(c *Config) { c.Completion.MaxTokens = 0 },
			wantErr: true,
		},
		{
			name:    "temperature_above_one",
			mutate:  func(c *Config) { c.Completion.Temperature = 1.5 },
			wantErr: true,
		},
		{
			name:    "negative_temperature",
			mutate:  func(c *Config) { c.Completion.Temperature = -0.1 },
			wantErr: true,
		},
		{
			name:    "unknown_log_level",
			mutate:  func(c *Config) { c.Logging.Level = "verbose" },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, assisterr.IsCode(err, assisterr.ErrCodeConfigInvalid))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
