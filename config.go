package transcache

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds engine configuration. Integer fields ending in Ms or Seconds
// are converted by the duration helpers below.
type Config struct {
	CacheEnabled             bool   `mapstructure:"cache_enabled"`
	CacheTTLSeconds          int    `mapstructure:"cache_ttl_seconds"`
	CacheMaxInProcessEntries int    `mapstructure:"cache_max_in_process_entries"`
	CacheKeyPrefix           string `mapstructure:"cache_key_prefix"`
	CacheOpTimeoutMs         int    `mapstructure:"cache_op_timeout_ms"`     // Bound on each distributed cache call
	CacheRemoteBackoffMs     int    `mapstructure:"cache_remote_backoff_ms"` // Skip the distributed tier this long after a failure (0 = never skip)

	BatchMaxSize            int `mapstructure:"batch_max_size"`
	BatchTimeoutMs          int `mapstructure:"batch_timeout_ms"` // Deadline for the provider phase of a batch (0 = none)
	MaxConcurrency          int `mapstructure:"max_concurrency"`
	ParallelLookupThreshold int `mapstructure:"parallel_lookup_threshold"`

	RateLimitPerMinute int `mapstructure:"rate_limit_per_minute"` // <= 0 disables the window
	RateLimitPerHour   int `mapstructure:"rate_limit_per_hour"`   // <= 0 disables the window

	QualitySampleRate float64 `mapstructure:"quality_sample_rate"`
	QualityBufferSize int     `mapstructure:"quality_buffer_size"`

	MaxRetries        int `mapstructure:"max_retries"`
	RetryBaseDelayMs  int `mapstructure:"retry_base_delay_ms"`
	RetryMaxDelayMs   int `mapstructure:"retry_max_delay_ms"`
	ProviderTimeoutMs int `mapstructure:"provider_timeout_ms"`

	SweepIntervalMs int `mapstructure:"sweep_interval_ms"`

	RedisURL      string `mapstructure:"redis_url"`
	LogLevel      string `mapstructure:"log_level"`
	OpenAIAPIKey  string `mapstructure:"openai_api_key"`
	OpenAIModel   string `mapstructure:"openai_model"`
	OpenAIBaseURL string `mapstructure:"openai_base_url"`
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() Config {
	return Config{
		CacheEnabled:             true,
		CacheTTLSeconds:          86400,
		CacheMaxInProcessEntries: 1000,
		CacheKeyPrefix:           "transcache:",
		CacheOpTimeoutMs:         250,
		CacheRemoteBackoffMs:     5000,
		BatchMaxSize:             50,
		BatchTimeoutMs:           30000,
		MaxConcurrency:           4,
		ParallelLookupThreshold:  5,
		RateLimitPerMinute:       60,
		RateLimitPerHour:         1000,
		QualitySampleRate:        0.1,
		QualityBufferSize:        1000,
		MaxRetries:               3,
		RetryBaseDelayMs:         1000,
		RetryMaxDelayMs:          30000,
		ProviderTimeoutMs:        10000,
		SweepIntervalMs:          60000,
		LogLevel:                 "info",
		OpenAIModel:              "gpt-4o-mini",
	}
}

// Validate checks that the configuration is usable.
func (c Config) Validate() error {
	var errs []error
	if c.CacheTTLSeconds < 0 {
		errs = append(errs, fmt.Errorf("cache_ttl_seconds must be >= 0, got %d", c.CacheTTLSeconds))
	}
	if c.CacheMaxInProcessEntries < 0 {
		errs = append(errs, fmt.Errorf("cache_max_in_process_entries must be >= 0, got %d", c.CacheMaxInProcessEntries))
	}
	if c.BatchMaxSize <= 0 {
		errs = append(errs, fmt.Errorf("batch_max_size must be > 0, got %d", c.BatchMaxSize))
	}
	if c.MaxConcurrency <= 0 {
		errs = append(errs, fmt.Errorf("max_concurrency must be > 0, got %d", c.MaxConcurrency))
	}
	if c.QualitySampleRate < 0 || c.QualitySampleRate > 1 {
		errs = append(errs, fmt.Errorf("quality_sample_rate must be in [0,1], got %g", c.QualitySampleRate))
	}
	if c.QualityBufferSize <= 0 {
		errs = append(errs, fmt.Errorf("quality_buffer_size must be > 0, got %d", c.QualityBufferSize))
	}
	if c.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("max_retries must be >= 0, got %d", c.MaxRetries))
	}
	for name, v := range map[string]int{
		"cache_op_timeout_ms":     c.CacheOpTimeoutMs,
		"cache_remote_backoff_ms": c.CacheRemoteBackoffMs,
		"batch_timeout_ms":        c.BatchTimeoutMs,
		"retry_base_delay_ms":     c.RetryBaseDelayMs,
		"retry_max_delay_ms":      c.RetryMaxDelayMs,
		"provider_timeout_ms":     c.ProviderTimeoutMs,
		"sweep_interval_ms":       c.SweepIntervalMs,
	} {
		if v < 0 {
			errs = append(errs, fmt.Errorf("%s must be >= 0, got %d", name, v))
		}
	}
	return errors.Join(errs...)
}

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }

// CacheTTL returns the cache entry lifetime. Zero means entries never expire.
func (c Config) CacheTTL() time.Duration { return time.Duration(c.CacheTTLSeconds) * time.Second }

// CacheOpTimeout returns the bound on each distributed cache call.
func (c Config) CacheOpTimeout() time.Duration { return ms(c.CacheOpTimeoutMs) }

// CacheRemoteBackoff returns how long the distributed tier is skipped after a failure.
func (c Config) CacheRemoteBackoff() time.Duration { return ms(c.CacheRemoteBackoffMs) }

// BatchTimeout returns the deadline for the provider phase of a batch.
func (c Config) BatchTimeout() time.Duration { return ms(c.BatchTimeoutMs) }

// ProviderTimeout returns the per-attempt provider deadline.
func (c Config) ProviderTimeout() time.Duration { return ms(c.ProviderTimeoutMs) }

// SweepInterval returns the period of the background sweeper.
func (c Config) SweepInterval() time.Duration { return ms(c.SweepIntervalMs) }

// RetryConfig derives the provider retry policy.
func (c Config) RetryConfig() RetryConfig {
	cfg := DefaultRetryConfig()
	cfg.MaxRetries = c.MaxRetries
	cfg.BaseDelay = ms(c.RetryBaseDelayMs)
	cfg.MaxDelay = ms(c.RetryMaxDelayMs)
	cfg.AttemptTimeout = c.ProviderTimeout()
	return cfg
}

// RateLimitConfig derives the limiter settings.
func (c Config) RateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerMinute: c.RateLimitPerMinute,
		RequestsPerHour:   c.RateLimitPerHour,
	}
}

// LoadConfig reads configuration from defaults, an optional YAML file and
// TRANSCACHE_* environment variables, in increasing order of precedence.
func LoadConfig(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("TRANSCACHE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	d := DefaultConfig()
	v.SetDefault("cache_enabled", d.CacheEnabled)
	v.SetDefault("cache_ttl_seconds", d.CacheTTLSeconds)
	v.SetDefault("cache_max_in_process_entries", d.CacheMaxInProcessEntries)
	v.SetDefault("cache_key_prefix", d.CacheKeyPrefix)
	v.SetDefault("cache_op_timeout_ms", d.CacheOpTimeoutMs)
	v.SetDefault("cache_remote_backoff_ms", d.CacheRemoteBackoffMs)
	v.SetDefault("batch_max_size", d.BatchMaxSize)
	v.SetDefault("batch_timeout_ms", d.BatchTimeoutMs)
	v.SetDefault("max_concurrency", d.MaxConcurrency)
	v.SetDefault("parallel_lookup_threshold", d.ParallelLookupThreshold)
	v.SetDefault("rate_limit_per_minute", d.RateLimitPerMinute)
	v.SetDefault("rate_limit_per_hour", d.RateLimitPerHour)
	v.SetDefault("quality_sample_rate", d.QualitySampleRate)
	v.SetDefault("quality_buffer_size", d.QualityBufferSize)
	v.SetDefault("max_retries", d.MaxRetries)
	v.SetDefault("retry_base_delay_ms", d.RetryBaseDelayMs)
	v.SetDefault("retry_max_delay_ms", d.RetryMaxDelayMs)
	v.SetDefault("provider_timeout_ms", d.ProviderTimeoutMs)
	v.SetDefault("sweep_interval_ms", d.SweepIntervalMs)
	v.SetDefault("redis_url", d.RedisURL)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("openai_api_key", d.OpenAIAPIKey)
	v.SetDefault("openai_model", d.OpenAIModel)
	v.SetDefault("openai_base_url", d.OpenAIBaseURL)
}
