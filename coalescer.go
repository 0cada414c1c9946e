package transcache

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// CoalescerConfig configures a BatchCoalescer.
type CoalescerConfig struct {
	KeyPrefix         string
	MaxBatchSize      int           // Unique texts per provider call
	MaxConcurrency    int           // Provider calls in flight per batch
	BatchTimeout      time.Duration // Deadline for the provider phase (0 = none)
	ParallelThreshold int           // Unique lookups at which cache reads go parallel
}

// BatchCoalescer resolves a batch of requests with at most one provider call
// per chunk of unique, uncached texts.
type BatchCoalescer struct {
	config   CoalescerConfig
	provider Provider
	store    *CacheStore     // nil when caching is disabled
	limiter  *RateLimiter    // nil means unlimited
	monitor  *QualityMonitor // nil disables sampling
	logger   *zap.Logger
	now      func() time.Time
}

// NewBatchCoalescer creates a coalescer. store, limiter and monitor may be nil.
func NewBatchCoalescer(cfg CoalescerConfig, provider Provider, store *CacheStore, limiter *RateLimiter, monitor *QualityMonitor, logger *zap.Logger) *BatchCoalescer {
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = 1
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BatchCoalescer{
		config:   cfg,
		provider: provider,
		store:    store,
		limiter:  limiter,
		monitor:  monitor,
		logger:   logger,
		now:      time.Now,
	}
}

// textGroup is every request index that asked for the same text in the same language pair.
type textGroup struct {
	key      string
	text     string
	context  string
	indices  []int
	priority int
}

// chunk is one provider call's worth of groups, all in one language pair.
type chunk struct {
	source   string
	target   string
	groups   []*textGroup
	priority int
}

// Resolve translates reqs and returns results in input order plus the
// indices of failed results. Partial failures never produce an error; only
// malformed input or an already finished ctx does.
func (c *BatchCoalescer) Resolve(ctx context.Context, reqs []TranslationRequest) ([]TranslationResult, []int, error) {
	for i, req := range reqs {
		if !req.Priority.Valid() {
			return nil, nil, fmt.Errorf("request %d: invalid priority %q", i, req.Priority)
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	start := c.now()
	results := make([]TranslationResult, len(reqs))
	keys := make([]string, len(reqs))
	pending := make([]int, 0, len(reqs))

	for i, req := range reqs {
		if isIdentity(req) {
			results[i] = identityResult(req)
			continue
		}
		keys[i] = CacheKey(c.config.KeyPrefix, req.SourceLanguage, req.TargetLanguage, req.Text)
		pending = append(pending, i)
	}

	lookup := make([]string, len(pending))
	for j, i := range pending {
		lookup[j] = keys[i]
	}
	hits := lookupAll(ctx, c.store, lookup, c.config.ParallelThreshold, c.config.MaxConcurrency)
	lookupMs := c.now().Sub(start).Milliseconds()

	groups := make(map[string]*textGroup)
	byPair := make(map[string][]*textGroup)
	var pairOrder []string
	pairLangs := make(map[string][2]string)

	for _, i := range pending {
		req := reqs[i]
		if hit, ok := hits[keys[i]]; ok {
			r := hit.clone()
			r.SourceLanguage, r.TargetLanguage = req.SourceLanguage, req.TargetLanguage
			r.ProcessingTimeMs = lookupMs
			results[i] = r
			c.record(r)
			continue
		}

		g, ok := groups[keys[i]]
		if !ok {
			g = &textGroup{key: keys[i], text: req.Text, context: req.Context, priority: req.Priority.rank()}
			groups[keys[i]] = g

			pair := canonicalLang(req.SourceLanguage) + "|" + canonicalLang(req.TargetLanguage)
			if _, seen := byPair[pair]; !seen {
				pairOrder = append(pairOrder, pair)
				pairLangs[pair] = [2]string{req.SourceLanguage, req.TargetLanguage}
			}
			byPair[pair] = append(byPair[pair], g)
		}
		g.indices = append(g.indices, i)
		g.priority = min(g.priority, req.Priority.rank())
	}

	var chunks []*chunk
	for _, pair := range pairOrder {
		list := byPair[pair]
		for lo := 0; lo < len(list); lo += c.config.MaxBatchSize {
			hi := min(lo+c.config.MaxBatchSize, len(list))
			ch := &chunk{source: pairLangs[pair][0], target: pairLangs[pair][1], groups: list[lo:hi], priority: 2}
			for _, g := range ch.groups {
				ch.priority = min(ch.priority, g.priority)
			}
			chunks = append(chunks, ch)
		}
	}
	sort.SliceStable(chunks, func(a, b int) bool { return chunks[a].priority < chunks[b].priority })

	if len(chunks) > 0 {
		c.dispatch(ctx, reqs, chunks, results)
	}

	var failed []int
	for i := range results {
		if results[i].Failed() {
			failed = append(failed, i)
		}
	}
	return results, failed, nil
}

func (c *BatchCoalescer) dispatch(ctx context.Context, reqs []TranslationRequest, chunks []*chunk, results []TranslationResult) {
	if c.config.BatchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.BatchTimeout)
		defer cancel()
	}

	// Chunks write to disjoint indices of results.
	var g errgroup.Group
	g.SetLimit(c.config.MaxConcurrency)
	for _, ch := range chunks {
		g.Go(func() error {
			c.runChunk(ctx, reqs, ch, results)
			return nil
		})
	}
	_ = g.Wait()
}

func (c *BatchCoalescer) runChunk(ctx context.Context, reqs []TranslationRequest, ch *chunk, results []TranslationResult) {
	start := c.now()

	if err := ctx.Err(); err != nil {
		c.failChunk(reqs, ch, results, err.Error(), 0, true)
		return
	}

	if c.limiter != nil {
		if d := c.limiter.TryAcquire(); !d.Allowed {
			c.logger.Debug("rate limit denied batch chunk",
				zap.Int("texts", len(ch.groups)),
				zap.Error(d.Err()))
			c.failChunk(reqs, ch, results, d.Reason, 0, false)
			return
		}
	}

	texts := make([]string, len(ch.groups))
	contexts := make([]string, len(ch.groups))
	for j, g := range ch.groups {
		texts[j] = g.text
		contexts[j] = g.context
	}

	resp, err := c.provider.TranslateBatch(ctx, BatchProviderRequest{
		Texts:          texts,
		SourceLanguage: ch.source,
		TargetLanguage: ch.target,
		Contexts:       contexts,
	})
	elapsed := c.now().Sub(start)
	if err == nil && len(resp.Items) != len(texts) {
		err = &CountMismatchError{Expected: len(texts), Got: len(resp.Items)}
	}
	if err != nil {
		c.logger.Warn("batch chunk failed",
			zap.String("source", ch.source),
			zap.String("target", ch.target),
			zap.Int("texts", len(texts)),
			zap.Error(err))
		c.failChunk(reqs, ch, results, err.Error(), elapsed, true)
		return
	}

	for j, item := range resp.Items {
		g := ch.groups[j]
		if !item.Success || item.TranslatedText == "" {
			reason := item.Error
			if reason == "" {
				reason = "translation failed"
			}
			for _, idx := range g.indices {
				results[idx] = failedResult(reqs[idx], reason, elapsed)
				c.record(results[idx])
			}
			continue
		}

		base := successResult(reqs[g.indices[0]], item.TranslatedText, item.Confidence, item.QualityScore, elapsed)
		if c.store != nil {
			c.store.Set(ctx, g.key, base)
		}
		for _, idx := range g.indices {
			r := base.clone()
			r.SourceLanguage, r.TargetLanguage = reqs[idx].SourceLanguage, reqs[idx].TargetLanguage
			results[idx] = r
			c.record(r)
		}
	}
}

func (c *BatchCoalescer) failChunk(reqs []TranslationRequest, ch *chunk, results []TranslationResult, reason string, elapsed time.Duration, record bool) {
	for _, g := range ch.groups {
		for _, idx := range g.indices {
			results[idx] = failedResult(reqs[idx], reason, elapsed)
			if record {
				c.record(results[idx])
			}
		}
	}
}

func (c *BatchCoalescer) record(r TranslationResult) {
	if c.monitor != nil {
		c.monitor.Record(r)
	}
}
