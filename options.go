package transcache

import (
	"time"

	"go.uber.org/zap"

	"github.com/ZaguanLabs/transcache/cache"
)

// Option is a functional option for configuring the Engine.
type Option func(*Engine)

// WithConfig sets the engine configuration. Defaults to DefaultConfig().
func WithConfig(cfg Config) Option {
	return func(e *Engine) {
		e.config = cfg
	}
}

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithDistributedCache adds a shared cache tier behind the in-process one.
func WithDistributedCache(remote cache.Distributed) Option {
	return func(e *Engine) {
		e.remote = remote
	}
}

// WithClock replaces the time source used for TTLs, rate windows and metrics.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithRand replaces the random source used for quality sampling.
// It must return values in [0,1) and be safe for concurrent use.
func WithRand(rand func() float64) Option {
	return func(e *Engine) {
		if rand != nil {
			e.rand = rand
		}
	}
}
