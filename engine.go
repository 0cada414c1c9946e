package transcache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ZaguanLabs/transcache/cache"
)

// ErrCacheDisabled is returned by snapshot operations when caching is off.
var ErrCacheDisabled = errors.New("transcache: cache is disabled")

// Engine is the translation facade. It is safe for concurrent use and is
// meant to be shared by every caller in a process.
type Engine struct {
	config    Config
	provider  Provider
	store     *CacheStore
	limiter   *RateLimiter
	monitor   *QualityMonitor
	coalescer *BatchCoalescer
	remote    cache.Distributed
	logger    *zap.Logger
	now       func() time.Time
	rand      func() float64

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// Stats is a point-in-time view of the engine's internal state.
type Stats struct {
	CacheEntries       int   `json:"cache_entries"`
	CacheEvictions     int64 `json:"cache_evictions"`
	RequestsLastMinute int   `json:"requests_last_minute"`
	RequestsLastHour   int   `json:"requests_last_hour"`
	MetricsBuffered    int   `json:"metrics_buffered"`
}

// New creates an Engine around provider. Provider calls are wrapped with
// the configured per-attempt timeout and retry policy.
func New(provider Provider, opts ...Option) (*Engine, error) {
	if provider == nil {
		return nil, errors.New("transcache: provider is required")
	}

	e := &Engine{
		config: DefaultConfig(),
		logger: zap.NewNop(),
		now:    time.Now,
		rand:   rand.Float64,
	}
	for _, opt := range opts {
		opt(e)
	}
	if err := e.config.Validate(); err != nil {
		return nil, fmt.Errorf("transcache: invalid config: %w", err)
	}

	cfg := e.config
	e.provider = NewRetryableProvider(provider, cfg.RetryConfig())

	if cfg.CacheEnabled {
		e.store = NewCacheStore(CacheStoreConfig{
			Prefix:        cfg.CacheKeyPrefix,
			TTL:           cfg.CacheTTL(),
			MaxEntries:    cfg.CacheMaxInProcessEntries,
			OpTimeout:     cfg.CacheOpTimeout(),
			RemoteBackoff: cfg.CacheRemoteBackoff(),
		}, e.remote, e.logger).withClock(e.now)
	}

	e.limiter = NewRateLimiter(cfg.RateLimitConfig())
	e.limiter.now = e.now

	e.monitor = NewQualityMonitor(cfg.QualityBufferSize, cfg.QualitySampleRate)
	e.monitor.rand = e.rand
	e.monitor.now = e.now

	e.coalescer = NewBatchCoalescer(CoalescerConfig{
		KeyPrefix:         cfg.CacheKeyPrefix,
		MaxBatchSize:      cfg.BatchMaxSize,
		MaxConcurrency:    cfg.MaxConcurrency,
		BatchTimeout:      cfg.BatchTimeout(),
		ParallelThreshold: cfg.ParallelLookupThreshold,
	}, e.provider, e.store, e.limiter, e.monitor, e.logger)
	e.coalescer.now = e.now

	return e, nil
}

// Config returns the engine configuration.
func (e *Engine) Config() Config {
	return e.config
}

// Translate translates a single request. It never fails: on rate limiting
// or provider failure the result carries the original text and Error.
func (e *Engine) Translate(ctx context.Context, req TranslationRequest) TranslationResult {
	if isIdentity(req) {
		return identityResult(req)
	}

	start := e.now()
	key := CacheKey(e.config.CacheKeyPrefix, req.SourceLanguage, req.TargetLanguage, req.Text)

	if e.store != nil {
		if hit, ok := e.store.Get(ctx, key); ok {
			hit.SourceLanguage, hit.TargetLanguage = req.SourceLanguage, req.TargetLanguage
			hit.ProcessingTimeMs = e.now().Sub(start).Milliseconds()
			e.monitor.Record(hit)
			return hit
		}
	}

	if d := e.limiter.TryAcquire(); !d.Allowed {
		e.logger.Debug("rate limit denied translation",
			zap.String("source", req.SourceLanguage),
			zap.String("target", req.TargetLanguage),
			zap.Error(d.Err()))
		return failedResult(req, d.Reason, e.now().Sub(start))
	}

	resp, err := e.provider.Translate(ctx, ProviderRequest{
		Text:           req.Text,
		SourceLanguage: req.SourceLanguage,
		TargetLanguage: req.TargetLanguage,
		Context:        req.Context,
	})
	elapsed := e.now().Sub(start)
	if err == nil && strings.TrimSpace(resp.TranslatedText) == "" {
		err = &ProviderError{Message: "empty translation"}
	}
	if err != nil {
		e.logger.Warn("translation failed",
			zap.String("source", req.SourceLanguage),
			zap.String("target", req.TargetLanguage),
			zap.Error(err))
		result := failedResult(req, err.Error(), elapsed)
		e.monitor.Record(result)
		return result
	}

	result := successResult(req, resp.TranslatedText, resp.Confidence, resp.QualityScore, elapsed)
	if e.store != nil {
		e.store.Set(ctx, key, result)
	}
	e.monitor.Record(result)
	return result
}

// TranslateBatch translates reqs, deduplicating texts and chunking provider
// calls. Results keep the input order. An error is returned only for
// malformed input or a context that is already done.
func (e *Engine) TranslateBatch(ctx context.Context, reqs []TranslationRequest) (BatchResult, error) {
	if len(reqs) == 0 {
		return BatchResult{Results: []TranslationResult{}, Errors: []int{}}, nil
	}

	start := e.now()
	results, failed, err := e.coalescer.Resolve(ctx, reqs)
	if err != nil {
		return BatchResult{}, err
	}
	if failed == nil {
		failed = []int{}
	}

	var cached, succeeded int
	var confidence float64
	for _, r := range results {
		if r.Cached {
			cached++
		}
		if !r.Failed() {
			succeeded++
			confidence += r.Confidence
		}
	}

	n := float64(len(results))
	batch := BatchResult{
		Results:               results,
		TotalProcessingTimeMs: e.now().Sub(start).Milliseconds(),
		CacheHitRate:          float64(cached) / n,
		SuccessRate:           float64(succeeded) / n,
		Errors:                failed,
	}
	if succeeded > 0 {
		batch.AverageConfidence = confidence / float64(succeeded)
	}
	return batch, nil
}

// ClearCache empties both cache tiers.
func (e *Engine) ClearCache(ctx context.Context) {
	if e.store != nil {
		e.store.Clear(ctx)
	}
}

// QualityMetrics aggregates the sampled quality log.
func (e *Engine) QualityMetrics(filter MetricsFilter) AggregateMetrics {
	return e.monitor.Metrics(filter)
}

// RecentMetrics returns up to n of the newest quality samples.
func (e *Engine) RecentMetrics(n int) []QualityMetric {
	return e.monitor.Recent(n)
}

// Stats reports cache, limiter and monitor occupancy.
func (e *Engine) Stats() Stats {
	minute, hour := e.limiter.Usage()
	s := Stats{
		RequestsLastMinute: minute,
		RequestsLastHour:   hour,
		MetricsBuffered:    e.monitor.Len(),
	}
	if e.store != nil {
		s.CacheEntries = e.store.Len()
		s.CacheEvictions = e.store.Evictions()
	}
	return s
}

// ExportCache writes a snapshot of the in-process cache tier.
func (e *Engine) ExportCache(w io.Writer) (int, error) {
	if e.store == nil {
		return 0, ErrCacheDisabled
	}
	return e.store.Export(w)
}

// ImportCache loads a snapshot into the in-process cache tier.
func (e *Engine) ImportCache(r io.Reader) (*cache.ImportResult, error) {
	if e.store == nil {
		return nil, ErrCacheDisabled
	}
	return e.store.Import(r)
}

// Sweep drops expired cache entries and stale rate-limit timestamps.
func (e *Engine) Sweep() {
	removed := 0
	if e.store != nil {
		removed = e.store.Sweep()
	}
	e.limiter.Prune()
	e.logger.Debug("sweep complete", zap.Int("expired", removed))
}

// Start runs Sweep every SweepInterval until ctx is done or Close is
// called. Calling Start on a running engine is a no-op.
func (e *Engine) Start(ctx context.Context) {
	interval := e.config.SweepInterval()

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancel != nil || interval <= 0 {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	e.cancel = cancel
	e.done = done

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				e.Sweep()
			}
		}
	}()
}

// Close stops the background sweeper and waits for it to exit.
func (e *Engine) Close() error {
	e.mu.Lock()
	cancel, done := e.cancel, e.done
	e.cancel, e.done = nil, nil
	e.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	return nil
}
