package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Extraction ExtractionConfig `yaml:"extraction" mapstructure:"extraction"`
	Filter     FilterConfig     `yaml:"filter" mapstructure:"filter"`
	Output     OutputConfig     `yaml:"output" mapstructure:"output"`
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key               string  `yaml:"key" mapstructure:"key"`
	Model             string  `yaml:"model" mapstructure:"model"`
	VerifyModel       string  `yaml:"verify_model" mapstructure:"verify_model"`
	MaxTokens         int64   `yaml:"max_tokens" mapstructure:"max_tokens"`
	TimeoutSecs       int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
}

// ExtractionConfig configures the extraction fan-out.
type ExtractionConfig struct {
	MaxConcurrent int         `yaml:"max_concurrent" mapstructure:"max_concurrent"`
	ChunkTokens   int         `yaml:"chunk_tokens" mapstructure:"chunk_tokens"`
	Retry         RetryConfig `yaml:"retry" mapstructure:"retry"`
}

// RetryConfig configures per-request retry behavior. MaxAttempts of 1 means
// no retries.
type RetryConfig struct {
	MaxAttempts      int `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMS int `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMS     int `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
}

// FilterConfig configures the result filter.
type FilterConfig struct {
	// MinPopulatedFraction is the minimum fraction of non-null fields a
	// needle must carry to survive the sufficiency filter.
	MinPopulatedFraction float64 `yaml:"min_populated_fraction" mapstructure:"min_populated_fraction"`
}

// OutputConfig configures where and how results are written.
type OutputConfig struct {
	Dir     string   `yaml:"dir" mapstructure:"dir"`
	Formats []string `yaml:"formats" mapstructure:"formats"`
}

// StoreConfig configures the run history store.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// ConfigurationError is a fatal startup problem: a missing credential or an
// invalid setting. It aborts a run before any network call.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration: %s: %s", e.Field, e.Reason)
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("NEEDLEFINDER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults. The key default registers the setting so AutomaticEnv can
	// populate it without a config file.
	v.SetDefault("anthropic.key", "")
	v.SetDefault("anthropic.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.verify_model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 4096)
	v.SetDefault("anthropic.timeout_secs", 120)
	v.SetDefault("anthropic.requests_per_second", 0)
	v.SetDefault("extraction.max_concurrent", 100)
	v.SetDefault("extraction.chunk_tokens", 32000)
	v.SetDefault("extraction.retry.max_attempts", 1)
	v.SetDefault("extraction.retry.initial_backoff_ms", 500)
	v.SetDefault("extraction.retry.max_backoff_ms", 30000)
	v.SetDefault("filter.min_populated_fraction", 0.5)
	v.SetDefault("output.dir", "data")
	v.SetDefault("output.formats", []string{"json"})
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "needlefinder.db")
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// ValidateCredentials checks that settings needed before any network call are
// present. Called by commands that talk to the completion service.
func (c *Config) ValidateCredentials() error {
	if strings.TrimSpace(c.Anthropic.Key) == "" {
		return &ConfigurationError{
			Field:  "anthropic.key",
			Reason: "API key is required (set NEEDLEFINDER_ANTHROPIC_KEY)",
		}
	}
	return nil
}

// Validate checks setting ranges that would otherwise fail deep inside a run.
func (c *Config) Validate() error {
	if c.Extraction.MaxConcurrent <= 0 {
		return &ConfigurationError{Field: "extraction.max_concurrent", Reason: "must be positive"}
	}
	if c.Filter.MinPopulatedFraction < 0 || c.Filter.MinPopulatedFraction > 1 {
		return &ConfigurationError{Field: "filter.min_populated_fraction", Reason: "must be in [0,1]"}
	}
	for _, f := range c.Output.Formats {
		switch f {
		case "json", "csv", "xlsx":
		default:
			return &ConfigurationError{Field: "output.formats", Reason: fmt.Sprintf("unknown format %q", f)}
		}
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
