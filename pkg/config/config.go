package config

import (
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	assisterr "github.com/il-dat/open-code-assistant/pkg/errors"
)

// Default configuration values exported for documentation and validation
const (
	DefaultBaseURL     = "http://localhost:11434"
	DefaultModel       = "qwen2.5-coder:1.5b-base"
	DefaultMaxTokens   = 128
	DefaultTemperature = 0.2
	DefaultLogLevel    = "info"
)

// Config represents the complete assistant configuration
type Config struct {
	Endpoint    EndpointConfig    `yaml:"endpoint"`
	Completion  CompletionConfig  `yaml:"completion"`
	Logging     LoggingConfig     `yaml:"logging"`
	Diagnostics DiagnosticsConfig `yaml:"diagnostics"`
}

// EndpointConfig describes the inference server endpoint
type EndpointConfig struct {
	BaseURL   string `yaml:"base_url"`
	AuthToken string `yaml:"auth_token"` // Optional bearer token
}

// CompletionConfig controls generation parameters for inline completion
type CompletionConfig struct {
	Model       string  `yaml:"model"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`
}

// LoggingConfig controls the structured log destination
type LoggingConfig struct {
	Dir   string `yaml:"dir"`
	Level string `yaml:"level"`
}

// DiagnosticsConfig controls optional debugging aids
type DiagnosticsConfig struct {
	NetworkLogsEnabled bool `yaml:"network_logs_enabled"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Endpoint: EndpointConfig{
			BaseURL: DefaultBaseURL,
		},
		Completion: CompletionConfig{
			Model:       DefaultModel,
			MaxTokens:   DefaultMaxTokens,
			Temperature: DefaultTemperature,
		},
		Logging: LoggingConfig{
			Level: DefaultLogLevel,
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file, and
// environment overrides, then validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = defaultConfigPath()
	}
	if path != "" {
		if err := loadAndMerge(cfg, path); err != nil {
			if !os.IsNotExist(err) {
				return nil, err
			}
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// defaultConfigPath returns the standard config file location, or empty when
// the user config directory cannot be determined.
func defaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "open-code-assistant", "config.yaml")
}

// loadAndMerge loads a YAML file and merges only the fields it sets.
func loadAndMerge(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var override Config
	if err := yaml.Unmarshal(data, &override); err != nil {
		return assisterr.Wrap(err, assisterr.ErrCodeConfigParse, "parsing config YAML").
			WithContext("path", path)
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return assisterr.Wrap(err, assisterr.ErrCodeConfigParse, "parsing config YAML").
			WithContext("path", path)
	}

	mergeConfigs(cfg, &override, raw)
	return nil
}

// mergeConfigs merges override into base. Only fields actually present in the
// file are applied, so a partial config file never zeroes defaults.
func mergeConfigs(base, override *Config, raw map[string]any) {
	if override == nil {
		return
	}

	if override.Endpoint.BaseURL != "" {
		base.Endpoint.BaseURL = override.Endpoint.BaseURL
	}
	if override.Endpoint.AuthToken != "" {
		base.Endpoint.AuthToken = override.Endpoint.AuthToken
	}

	if override.Completion.Model != "" {
		base.Completion.Model = override.Completion.Model
	}
	if fieldSet(raw, "completion", "max_tokens") {
		base.Completion.MaxTokens = override.Completion.MaxTokens
	}
	if fieldSet(raw, "completion", "temperature") {
		base.Completion.Temperature = override.Completion.Temperature
	}

	if override.Logging.Dir != "" {
		base.Logging.Dir = override.Logging.Dir
	}
	if override.Logging.Level != "" {
		base.Logging.Level = override.Logging.Level
	}

	if fieldSet(raw, "diagnostics", "network_logs_enabled") {
		base.Diagnostics.NetworkLogsEnabled = override.Diagnostics.NetworkLogsEnabled
	}
}

func fieldSet(raw map[string]any, path ...string) bool {
	if len(path) == 0 || raw == nil {
		return false
	}
	current := any(raw)
	for _, key := range path {
		m, ok := current.(map[string]any)
		if !ok {
			return false
		}
		val, ok := m[key]
		if !ok {
			return false
		}
		current = val
	}
	return true
}

// applyEnvOverrides applies environment variable overrides for the endpoint
// and model. Env wins over file values.
func applyEnvOverrides(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("ASSISTANT_ENDPOINT_URL")); v != "" {
		cfg.Endpoint.BaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("ASSISTANT_AUTH_TOKEN")); v != "" {
		cfg.Endpoint.AuthToken = v
	}
	if v := strings.TrimSpace(os.Getenv("ASSISTANT_MODEL")); v != "" {
		cfg.Completion.Model = v
	}
}

// Validate checks configuration bounds
func (c *Config) Validate() error {
	base := strings.TrimSpace(c.Endpoint.BaseURL)
	if base == "" {
		return assisterr.New(assisterr.ErrCodeConfigInvalid, "endpoint base_url cannot be empty")
	}
	if _, err := url.ParseRequestURI(base); err != nil {
		return assisterr.Wrap(err, assisterr.ErrCodeConfigInvalid, "invalid endpoint base_url").
			WithContext("base_url", base)
	}

	if strings.TrimSpace(c.Completion.Model) == "" {
		return assisterr.New(assisterr.ErrCodeConfigInvalid, "completion model cannot be empty")
	}
	if c.Completion.MaxTokens <= 0 {
		return assisterr.New(assisterr.ErrCodeConfigInvalid, "completion max_tokens must be positive").
			WithContext("max_tokens", c.Completion.MaxTokens)
	}
	if c.Completion.Temperature < 0 || c.Completion.Temperature > 1 {
		return assisterr.New(assisterr.ErrCodeConfigInvalid, "completion temperature must be in [0, 1]").
			WithContext("temperature", c.Completion.Temperature)
	}

	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return assisterr.New(assisterr.ErrCodeConfigInvalid, "unknown logging level").
			WithContext("level", c.Logging.Level)
	}

	return nil
}

// LogDir resolves the logging directory, defaulting to the user cache dir.
func (c *Config) LogDir() string {
	if c.Logging.Dir != "" {
		return c.Logging.Dir
	}
	cacheDir, err := os.UserCacheDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "open-code-assistant", "logs")
	}
	return filepath.Join(cacheDir, "open-code-assistant", "logs")
}
