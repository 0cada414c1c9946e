package transcache

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"
)

// RetryConfig holds configuration for retry behavior.
type RetryConfig struct {
	MaxRetries     int           // Maximum number of retry attempts after the first
	BaseDelay      time.Duration // Initial delay between retries
	MaxDelay       time.Duration // Maximum delay between retries
	Jitter         float64       // Fraction of the delay added at random, in [0,1]
	AttemptTimeout time.Duration // Deadline for each attempt (0 = none)
}

// DefaultRetryConfig returns sensible defaults for retry behavior.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     3,
		BaseDelay:      1 * time.Second,
		MaxDelay:       30 * time.Second,
		Jitter:         0.2,
		AttemptTimeout: 10 * time.Second,
	}
}

// RetryFunc is a function that can be retried.
type RetryFunc[T any] func() (T, error)

// WithRetry executes a function with exponential backoff retry.
func WithRetry[T any](ctx context.Context, cfg RetryConfig, fn RetryFunc[T]) (T, error) {
	var lastErr error
	var zero T

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		default:
		}

		result, err := fn()
		if err == nil {
			return result, nil
		}

		lastErr = err

		if !IsRetryable(err) {
			return zero, err
		}

		// Don't sleep after the last attempt
		if attempt < cfg.MaxRetries {
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(backoff(cfg, attempt)):
			}
		}
	}

	return zero, lastErr
}

// backoff returns the delay before retry number attempt+1.
func backoff(cfg RetryConfig, attempt int) time.Duration {
	delay := cfg.BaseDelay * time.Duration(1<<attempt)
	if cfg.MaxDelay > 0 && delay > cfg.MaxDelay {
		delay = cfg.MaxDelay
	}
	if cfg.Jitter > 0 && delay > 0 {
		delay += time.Duration(rand.Float64() * cfg.Jitter * float64(delay))
	}
	return delay
}

// IsRetryable checks if an error is retryable.
//
// Provider errors carry their own flag and caller cancellation is final.
// Anything else (network errors, malformed responses) is retried.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var providerErr *ProviderError
	if errors.As(err, &providerErr) {
		return providerErr.Retryable
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	return true
}

// callWithTimeout runs fn under cfg.AttemptTimeout. A provider that ignores
// its context is abandoned when the deadline passes.
func callWithTimeout[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		return fn(ctx)
	}

	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		value T
		err   error
	}
	done := make(chan outcome, 1)
	go func() {
		v, err := fn(attemptCtx)
		done <- outcome{value: v, err: err}
	}()

	var zero T
	select {
	case out := <-done:
		if out.err != nil && ctx.Err() == nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
			return zero, &ProviderError{Message: "provider call timed out", Cause: out.err, Retryable: true}
		}
		return out.value, out.err
	case <-attemptCtx.Done():
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		return zero, &ProviderError{Message: "provider call timed out", Cause: attemptCtx.Err(), Retryable: true}
	}
}

// RetryableProvider wraps a Provider with per-attempt timeouts and retry logic.
// It does not consult any rate limiter; callers acquire once per logical call.
type RetryableProvider struct {
	provider Provider
	config   RetryConfig
}

// NewRetryableProvider creates a new provider with retry logic.
func NewRetryableProvider(provider Provider, cfg RetryConfig) *RetryableProvider {
	return &RetryableProvider{
		provider: provider,
		config:   cfg,
	}
}

// Translate implements Provider with retry logic.
func (p *RetryableProvider) Translate(ctx context.Context, req ProviderRequest) (ProviderResponse, error) {
	return WithRetry(ctx, p.config, func() (ProviderResponse, error) {
		return callWithTimeout(ctx, p.config.AttemptTimeout, func(ctx context.Context) (ProviderResponse, error) {
			return p.provider.Translate(ctx, req)
		})
	})
}

// TranslateBatch implements Provider with retry logic. A response with the
// wrong number of items counts as a failed attempt.
func (p *RetryableProvider) TranslateBatch(ctx context.Context, req BatchProviderRequest) (BatchProviderResponse, error) {
	return WithRetry(ctx, p.config, func() (BatchProviderResponse, error) {
		resp, err := callWithTimeout(ctx, p.config.AttemptTimeout, func(ctx context.Context) (BatchProviderResponse, error) {
			return p.provider.TranslateBatch(ctx, req)
		})
		if err != nil {
			return BatchProviderResponse{}, err
		}
		if len(resp.Items) != len(req.Texts) {
			return BatchProviderResponse{}, &CountMismatchError{Expected: len(req.Texts), Got: len(resp.Items)}
		}
		return resp, nil
	})
}

// Verify RetryableProvider implements Provider
var _ Provider = (*RetryableProvider)(nil)
