package transcache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.QualitySampleRate = 1
	cfg.RetryBaseDelayMs = 1
	cfg.RetryMaxDelayMs = 5
	cfg.ProviderTimeoutMs = 2000
	cfg.CacheOpTimeoutMs = 50
	cfg.RateLimitPerMinute = 1000
	cfg.RateLimitPerHour = 10000
	return cfg
}

func newTestEngine(t *testing.T, p Provider, cfg Config, opts ...Option) (*Engine, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	opts = append([]Option{WithConfig(cfg), WithClock(clock.Now)}, opts...)
	e, err := New(p, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e, clock
}

func req(text string) TranslationRequest {
	return TranslationRequest{Text: text, SourceLanguage: "en", TargetLanguage: "hi"}
}

func reqs(texts ...string) []TranslationRequest {
	out := make([]TranslationRequest, len(texts))
	for i, text := range texts {
		out[i] = req(text)
	}
	return out
}

func TestNew_Validation(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)

	cfg := DefaultConfig()
	cfg.QualitySampleRate = 2
	_, err = New(newFakeProvider(), WithConfig(cfg))
	assert.Error(t, err)
}

func TestEngine_EndToEnd(t *testing.T) {
	p := newFakeProvider()
	e, _ := newTestEngine(t, p, testConfig())
	ctx := context.Background()

	first := e.Translate(ctx, req("Hello"))
	assert.Equal(t, "नमस्ते", first.TranslatedText)
	assert.Equal(t, "Hello", first.OriginalText)
	assert.False(t, first.Cached)
	assert.Equal(t, 0.95, first.Confidence)
	assert.Empty(t, first.Error)
	require.NotNil(t, first.QualityScore, "a missing provider score is estimated")

	second := e.Translate(ctx, req("Hello"))
	assert.Equal(t, "नमस्ते", second.TranslatedText)
	assert.True(t, second.Cached)
	assert.Equal(t, 0.95, second.Confidence)

	assert.Equal(t, 1, p.singleCalls(), "repeat call must not reach the provider")
}

func TestEngine_IdentityShortcut(t *testing.T) {
	p := newFakeProvider()
	e, _ := newTestEngine(t, p, testConfig())
	ctx := context.Background()

	for _, r := range []TranslationRequest{
		{Text: "", SourceLanguage: "en", TargetLanguage: "hi"},
		{Text: "   ", SourceLanguage: "en", TargetLanguage: "hi"},
		{Text: "X", SourceLanguage: "en", TargetLanguage: "en"},
		{Text: "X", SourceLanguage: "en_US", TargetLanguage: "en-US"},
	} {
		got := e.Translate(ctx, r)
		assert.Equal(t, r.Text, got.TranslatedText)
		assert.Equal(t, 1.0, got.Confidence)
		assert.False(t, got.Cached)
		assert.Empty(t, got.Error)
	}

	assert.Zero(t, p.singleCalls())
	assert.Zero(t, e.Stats().CacheEntries)
	assert.Zero(t, e.Stats().MetricsBuffered)
	assert.Zero(t, e.Stats().RequestsLastMinute)
}

func TestEngine_RateLimitEnforced(t *testing.T) {
	p := newFakeProvider()
	cfg := testConfig()
	cfg.RateLimitPerMinute = 3
	e, clock := newTestEngine(t, p, cfg)
	ctx := context.Background()

	var denied []TranslationResult
	for i := 0; i < 4; i++ {
		r := e.Translate(ctx, req(fmt.Sprintf("text-%d", i)))
		if r.Failed() {
			denied = append(denied, r)
		}
	}

	require.Len(t, denied, 1)
	assert.Contains(t, denied[0].Error, "per minute")
	assert.Equal(t, "text-3", denied[0].TranslatedText)
	assert.Zero(t, denied[0].Confidence)
	assert.Equal(t, 3, p.singleCalls())
	assert.Equal(t, 3, e.Stats().MetricsBuffered, "denied calls record no metric")

	clock.Advance(61 * time.Second)
	r := e.Translate(ctx, req("text-4"))
	assert.Empty(t, r.Error, "the minute window slides")
}

func TestEngine_RateLimitSkippedForCacheHits(t *testing.T) {
	p := newFakeProvider()
	cfg := testConfig()
	cfg.RateLimitPerMinute = 1
	e, _ := newTestEngine(t, p, cfg)
	ctx := context.Background()

	e.Translate(ctx, req("Hello"))
	for i := 0; i < 5; i++ {
		r := e.Translate(ctx, req("Hello"))
		assert.True(t, r.Cached)
		assert.Empty(t, r.Error)
	}
}

func TestEngine_RetriesShareOneAcquisition(t *testing.T) {
	p := newFakeProvider()
	p.failFirst = 2
	cfg := testConfig()
	cfg.RateLimitPerMinute = 1
	cfg.MaxRetries = 3
	e, _ := newTestEngine(t, p, cfg)

	r := e.Translate(context.Background(), req("Hello"))
	assert.Empty(t, r.Error)
	assert.Equal(t, "नमस्ते", r.TranslatedText)
	assert.Equal(t, 3, p.singleCalls())

	minute, _ := e.limiter.Usage()
	assert.Equal(t, 1, minute)
}

func TestEngine_ProviderFailureIsNotCached(t *testing.T) {
	p := newFakeProvider()
	p.setErr(&ProviderError{Message: "invalid api key"})
	e, _ := newTestEngine(t, p, testConfig())
	ctx := context.Background()

	r := e.Translate(ctx, req("Hello"))
	assert.True(t, r.Failed())
	assert.Contains(t, r.Error, "invalid api key")
	assert.Equal(t, "Hello", r.TranslatedText)
	assert.Zero(t, r.Confidence)
	assert.Equal(t, 1, e.Stats().MetricsBuffered, "provider failures are recorded")
	assert.Equal(t, 1, p.singleCalls(), "non-retryable errors are not retried")

	p.setErr(nil)
	r = e.Translate(ctx, req("Hello"))
	assert.Empty(t, r.Error)
	assert.False(t, r.Cached)
	assert.Equal(t, 2, p.singleCalls())
}

func TestEngine_ProviderTimeout(t *testing.T) {
	p := newFakeProvider()
	p.delay = 300 * time.Millisecond
	cfg := testConfig()
	cfg.ProviderTimeoutMs = 20
	cfg.MaxRetries = 0
	e, _ := newTestEngine(t, p, cfg)

	start := time.Now()
	r := e.Translate(context.Background(), req("Hello"))

	assert.Less(t, time.Since(start), 200*time.Millisecond)
	assert.True(t, r.Failed())
	assert.Contains(t, r.Error, "timed out")
	assert.Equal(t, "Hello", r.TranslatedText)
}

func TestEngine_EmptyProviderTranslation(t *testing.T) {
	p := newFakeProvider()
	p.translations["Hello"] = ""
	e, _ := newTestEngine(t, p, testConfig())

	r := e.Translate(context.Background(), req("Hello"))
	assert.True(t, r.Failed())
	assert.Equal(t, "Hello", r.TranslatedText)
}

func TestEngine_CacheDisabled(t *testing.T) {
	p := newFakeProvider()
	cfg := testConfig()
	cfg.CacheEnabled = false
	e, _ := newTestEngine(t, p, cfg)
	ctx := context.Background()

	e.Translate(ctx, req("Hello"))
	r := e.Translate(ctx, req("Hello"))
	assert.False(t, r.Cached)
	assert.Equal(t, 2, p.singleCalls())

	_, err := e.ExportCache(&bytes.Buffer{})
	assert.ErrorIs(t, err, ErrCacheDisabled)
}

func TestEngine_BatchDedup(t *testing.T) {
	p := newFakeProvider()
	e, _ := newTestEngine(t, p, testConfig())

	batch, err := e.TranslateBatch(context.Background(), reqs("A", "B", "A", "A"))
	require.NoError(t, err)

	require.Len(t, batch.Results, 4)
	assert.Equal(t, "ए", batch.Results[0].TranslatedText)
	assert.Equal(t, "बी", batch.Results[1].TranslatedText)
	assert.Equal(t, batch.Results[0], batch.Results[2])
	assert.Equal(t, batch.Results[0], batch.Results[3])

	assert.ElementsMatch(t, []string{"A", "B"}, p.sentTexts(), "each unique text is sent once")
	assert.Equal(t, 1, p.batchCallCount())
	assert.Empty(t, batch.Errors)
	assert.Equal(t, 1.0, batch.SuccessRate)
}

func TestEngine_BatchDedupOneCallPerText(t *testing.T) {
	p := newFakeProvider()
	cfg := testConfig()
	cfg.BatchMaxSize = 1
	e, _ := newTestEngine(t, p, cfg)

	_, err := e.TranslateBatch(context.Background(), reqs("A", "B", "A", "A"))
	require.NoError(t, err)
	assert.Equal(t, 2, p.batchCallCount(), "2 provider calls, not 4")
}

func TestEngine_BatchChunkCount(t *testing.T) {
	tests := []struct {
		unique  int
		copies  int
		maxSize int
		want    int
	}{
		{unique: 7, copies: 3, maxSize: 3, want: 3},
		{unique: 6, copies: 1, maxSize: 3, want: 2},
		{unique: 1, copies: 10, maxSize: 50, want: 1},
		{unique: 10, copies: 2, maxSize: 1, want: 10},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("K=%d/max=%d", tt.unique, tt.maxSize), func(t *testing.T) {
			p := newFakeProvider()
			cfg := testConfig()
			cfg.BatchMaxSize = tt.maxSize
			e, _ := newTestEngine(t, p, cfg)

			var texts []string
			for c := 0; c < tt.copies; c++ {
				for i := 0; i < tt.unique; i++ {
					texts = append(texts, fmt.Sprintf("t%d", i))
				}
			}

			batch, err := e.TranslateBatch(context.Background(), reqs(texts...))
			require.NoError(t, err)
			assert.Len(t, batch.Results, len(texts))
			assert.Equal(t, tt.want, p.batchCallCount())
			assert.Len(t, p.sentTexts(), tt.unique)
		})
	}
}

func TestEngine_BatchOrderPreserved(t *testing.T) {
	p := newFakeProvider()
	cfg := testConfig()
	cfg.BatchMaxSize = 2
	cfg.MaxConcurrency = 3
	e, _ := newTestEngine(t, p, cfg)
	ctx := context.Background()

	// Pre-warm part of the cache.
	e.Translate(ctx, req("w3"))
	e.Translate(ctx, req("w7"))

	var input []TranslationRequest
	for i := 0; i < 30; i++ {
		switch {
		case i%10 == 0:
			input = append(input, TranslationRequest{Text: "same", SourceLanguage: "en", TargetLanguage: "en"})
		case i%7 == 0:
			input = append(input, TranslationRequest{Text: "", SourceLanguage: "en", TargetLanguage: "hi"})
		default:
			input = append(input, req(fmt.Sprintf("w%d", i%9)))
		}
	}

	batch, err := e.TranslateBatch(ctx, input)
	require.NoError(t, err)
	require.Len(t, batch.Results, len(input))

	for i, in := range input {
		out := batch.Results[i]
		assert.Equal(t, in.Text, out.OriginalText, "index %d", i)
		switch {
		case in.Text == "" || in.SourceLanguage == in.TargetLanguage:
			assert.Equal(t, in.Text, out.TranslatedText, "index %d", i)
		default:
			assert.Equal(t, "["+in.Text+"]", out.TranslatedText, "index %d", i)
		}
	}
	assert.Greater(t, batch.CacheHitRate, 0.0)
}

func TestEngine_BatchPartialChunkFailure(t *testing.T) {
	p := newFakeProvider()
	p.failChunkWith["C"] = true
	cfg := testConfig()
	cfg.BatchMaxSize = 2
	cfg.MaxRetries = 1
	e, _ := newTestEngine(t, p, cfg)

	batch, err := e.TranslateBatch(context.Background(), reqs("A", "B", "C", "D"))
	require.NoError(t, err, "partial failures are not errors")

	assert.Equal(t, []int{2, 3}, batch.Errors)
	assert.Equal(t, "ए", batch.Results[0].TranslatedText)
	assert.Equal(t, "बी", batch.Results[1].TranslatedText)
	for _, i := range batch.Errors {
		r := batch.Results[i]
		assert.Contains(t, r.Error, "upstream rejected batch")
		assert.Equal(t, r.OriginalText, r.TranslatedText)
		assert.Zero(t, r.Confidence)
	}
	assert.Equal(t, 0.5, batch.SuccessRate)
	assert.InDelta(t, 0.95, batch.AverageConfidence, 1e-9)

	// Failed texts are not cached; successful ones are.
	p.failChunkWith = map[string]bool{}
	again, err := e.TranslateBatch(context.Background(), reqs("A", "C"))
	require.NoError(t, err)
	assert.True(t, again.Results[0].Cached)
	assert.False(t, again.Results[1].Cached)
	assert.Empty(t, again.Errors)
}

func TestEngine_BatchPerItemFailure(t *testing.T) {
	p := newFakeProvider()
	p.failItems["B"] = true
	e, _ := newTestEngine(t, p, testConfig())

	batch, err := e.TranslateBatch(context.Background(), reqs("A", "B", "B", "Hello"))
	require.NoError(t, err)

	assert.Equal(t, []int{1, 2}, batch.Errors)
	assert.Equal(t, "untranslatable", batch.Results[1].Error)
	assert.Equal(t, "नमस्ते", batch.Results[3].TranslatedText)
}

func TestEngine_BatchCountMismatch(t *testing.T) {
	p := newFakeProvider()
	p.truncateBatch = true
	cfg := testConfig()
	cfg.MaxRetries = 0
	e, _ := newTestEngine(t, p, cfg)

	batch, err := e.TranslateBatch(context.Background(), reqs("A", "B"))
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1}, batch.Errors)
	assert.Contains(t, batch.Results[0].Error, "count mismatch")
}

func TestEngine_BatchMixedLanguagePairs(t *testing.T) {
	p := newFakeProvider()
	e, _ := newTestEngine(t, p, testConfig())

	input := []TranslationRequest{
		{Text: "Hello", SourceLanguage: "en", TargetLanguage: "hi"},
		{Text: "Hello", SourceLanguage: "en", TargetLanguage: "ta"},
		{Text: "World", SourceLanguage: "en", TargetLanguage: "hi"},
	}
	batch, err := e.TranslateBatch(context.Background(), input)
	require.NoError(t, err)

	assert.Equal(t, 2, p.batchCallCount(), "one call per language pair")
	assert.Equal(t, "ta", batch.Results[1].TargetLanguage)
	assert.Equal(t, "hi", batch.Results[2].TargetLanguage)
	assert.Equal(t, 3, e.Stats().CacheEntries, "same text in another pair is a different key")
}

func TestEngine_BatchRateLimitedChunk(t *testing.T) {
	p := newFakeProvider()
	cfg := testConfig()
	cfg.RateLimitPerMinute = 1
	cfg.BatchMaxSize = 1
	e, _ := newTestEngine(t, p, cfg)

	batch, err := e.TranslateBatch(context.Background(), reqs("A", "B"))
	require.NoError(t, err)

	require.Len(t, batch.Errors, 1)
	assert.Contains(t, batch.Results[batch.Errors[0]].Error, "per minute")
	assert.Equal(t, 1, p.batchCallCount())
	assert.Equal(t, 1, e.Stats().MetricsBuffered, "denied chunks record no metric")
}

func TestEngine_BatchUsesCache(t *testing.T) {
	p := newFakeProvider()
	e, _ := newTestEngine(t, p, testConfig())
	ctx := context.Background()

	e.Translate(ctx, req("Hello"))

	batch, err := e.TranslateBatch(ctx, reqs("Hello", "World"))
	require.NoError(t, err)
	assert.True(t, batch.Results[0].Cached)
	assert.Equal(t, "नमस्ते", batch.Results[0].TranslatedText)
	assert.Equal(t, 0.5, batch.CacheHitRate)
	assert.Equal(t, []string{"Hello", "World"}, p.sentTexts())

	// Batch results feed single translations too.
	r := e.Translate(ctx, req("World"))
	assert.True(t, r.Cached)
}

func TestEngine_BatchPriorityOrder(t *testing.T) {
	p := newFakeProvider()
	cfg := testConfig()
	cfg.BatchMaxSize = 1
	cfg.MaxConcurrency = 1
	e, _ := newTestEngine(t, p, cfg)

	input := []TranslationRequest{
		{Text: "A", SourceLanguage: "en", TargetLanguage: "hi", Priority: PriorityLow},
		{Text: "B", SourceLanguage: "en", TargetLanguage: "hi"},
		{Text: "World", SourceLanguage: "en", TargetLanguage: "hi", Priority: PriorityHigh},
	}
	batch, err := e.TranslateBatch(context.Background(), input)
	require.NoError(t, err)
	assert.Equal(t, "ए", batch.Results[0].TranslatedText)

	assert.Equal(t, []string{"World", "B", "A"}, p.sentTexts())
}

func TestEngine_BatchTimeout(t *testing.T) {
	p := newFakeProvider()
	p.delay = 300 * time.Millisecond
	cfg := testConfig()
	cfg.BatchTimeoutMs = 30
	cfg.MaxRetries = 0
	e, _ := newTestEngine(t, p, cfg)

	start := time.Now()
	batch, err := e.TranslateBatch(context.Background(), reqs("A", "B"))
	require.NoError(t, err)

	assert.Less(t, time.Since(start), 200*time.Millisecond)
	assert.Equal(t, []int{0, 1}, batch.Errors)
	assert.Equal(t, "A", batch.Results[0].TranslatedText)
}

func TestEngine_BatchPreflightErrors(t *testing.T) {
	e, _ := newTestEngine(t, newFakeProvider(), testConfig())

	bad := reqs("A")
	bad[0].Priority = "urgent"
	_, err := e.TranslateBatch(context.Background(), bad)
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = e.TranslateBatch(ctx, reqs("A"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEngine_BatchEmpty(t *testing.T) {
	p := newFakeProvider()
	e, _ := newTestEngine(t, p, testConfig())

	batch, err := e.TranslateBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, batch.Results)
	assert.Empty(t, batch.Errors)
	assert.Zero(t, batch.SuccessRate)
	assert.Zero(t, p.batchCallCount())
}

func TestEngine_BatchAllIdentity(t *testing.T) {
	p := newFakeProvider()
	e, _ := newTestEngine(t, p, testConfig())

	batch, err := e.TranslateBatch(context.Background(), []TranslationRequest{
		{Text: "", SourceLanguage: "en", TargetLanguage: "hi"},
		{Text: "X", SourceLanguage: "hi", TargetLanguage: "hi"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1.0, batch.SuccessRate)
	assert.Equal(t, 1.0, batch.AverageConfidence)
	assert.Zero(t, p.batchCallCount())
	assert.Zero(t, e.Stats().MetricsBuffered)
}

func TestEngine_QualityRingBufferBound(t *testing.T) {
	cfg := testConfig()
	cfg.QualityBufferSize = 5
	e, _ := newTestEngine(t, newFakeProvider(), cfg)
	ctx := context.Background()

	for i := 0; i < 12; i++ {
		e.Translate(ctx, req(fmt.Sprintf("t%d", i)))
		assert.LessOrEqual(t, e.QualityMetrics(MetricsFilter{}).Total, 5)
	}
	assert.Equal(t, 5, e.QualityMetrics(MetricsFilter{}).Total)
	assert.Len(t, e.RecentMetrics(10), 5)
}

func TestEngine_QualitySampleRate(t *testing.T) {
	cfg := testConfig()
	cfg.QualitySampleRate = 0.5
	e, _ := newTestEngine(t, newFakeProvider(), cfg, WithRand(sequenceRand(0.9, 0.1, 0.9, 0.1)))
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		e.Translate(ctx, req(fmt.Sprintf("t%d", i)))
	}
	assert.Equal(t, 2, e.QualityMetrics(MetricsFilter{}).Total)
}

func TestEngine_QualityMetricsByPair(t *testing.T) {
	e, _ := newTestEngine(t, newFakeProvider(), testConfig())
	ctx := context.Background()

	e.Translate(ctx, req("Hello"))
	e.Translate(ctx, req("Hello"))
	e.Translate(ctx, TranslationRequest{Text: "Hello", SourceLanguage: "en", TargetLanguage: "ta"})

	all := e.QualityMetrics(MetricsFilter{})
	assert.Equal(t, 3, all.Total)
	assert.InDelta(t, 1.0/3, all.CacheHitRate, 1e-9)
	assert.Equal(t, 2, all.ByLanguagePair["en->hi"].Total)

	hi := e.QualityMetrics(MetricsFilter{TargetLanguage: "hi"})
	assert.Equal(t, 2, hi.Total)
}

func TestEngine_RemoteDownFallback(t *testing.T) {
	p := newFakeProvider()
	remote := newFakeRemote()
	remote.setFailing(true)
	e, _ := newTestEngine(t, p, testConfig(), WithDistributedCache(remote))
	ctx := context.Background()

	first := e.Translate(ctx, req("Hello"))
	assert.Empty(t, first.Error)
	assert.Equal(t, "नमस्ते", first.TranslatedText)

	second := e.Translate(ctx, req("Hello"))
	assert.True(t, second.Cached)
	assert.Equal(t, 1, p.singleCalls())

	e.ClearCache(ctx)
	third := e.Translate(ctx, req("Hello"))
	assert.Empty(t, third.Error)
	assert.False(t, third.Cached)
}

func TestEngine_SharedRemoteAcrossInstances(t *testing.T) {
	remote := newFakeRemote()
	p1, p2 := newFakeProvider(), newFakeProvider()
	e1, _ := newTestEngine(t, p1, testConfig(), WithDistributedCache(remote))
	e2, _ := newTestEngine(t, p2, testConfig(), WithDistributedCache(remote))
	ctx := context.Background()

	e1.Translate(ctx, req("Hello"))
	got := e2.Translate(ctx, req("Hello"))

	assert.True(t, got.Cached)
	assert.Equal(t, "नमस्ते", got.TranslatedText)
	assert.Zero(t, p2.singleCalls())
}

func TestEngine_ClearCache(t *testing.T) {
	p := newFakeProvider()
	remote := newFakeRemote()
	cfg := testConfig()
	e, _ := newTestEngine(t, p, cfg, WithDistributedCache(remote))
	ctx := context.Background()

	e.Translate(ctx, req("Hello"))
	require.True(t, remote.hasKeyWithPrefix(cfg.CacheKeyPrefix))

	e.ClearCache(ctx)
	assert.Zero(t, e.Stats().CacheEntries)
	assert.False(t, remote.hasKeyWithPrefix(cfg.CacheKeyPrefix))

	r := e.Translate(ctx, req("Hello"))
	assert.False(t, r.Cached)
	assert.Equal(t, 2, p.singleCalls())
}

func TestEngine_CacheTTL(t *testing.T) {
	p := newFakeProvider()
	cfg := testConfig()
	cfg.CacheTTLSeconds = 60
	e, clock := newTestEngine(t, p, cfg)
	ctx := context.Background()

	e.Translate(ctx, req("Hello"))
	clock.Advance(30 * time.Second)
	assert.True(t, e.Translate(ctx, req("Hello")).Cached)

	clock.Advance(30 * time.Second)
	assert.False(t, e.Translate(ctx, req("Hello")).Cached)
	assert.Equal(t, 2, p.singleCalls())
}

func TestEngine_ConcurrentRateLimitCeiling(t *testing.T) {
	p := newFakeProvider()
	cfg := testConfig()
	cfg.RateLimitPerMinute = 10
	e, _ := newTestEngine(t, p, cfg)
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	ok := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if r := e.Translate(ctx, req(fmt.Sprintf("c%d", i))); !r.Failed() {
				mu.Lock()
				ok++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 10, ok)
	assert.Equal(t, 10, p.singleCalls())
}

func TestEngine_SweeperLifecycle(t *testing.T) {
	cfg := testConfig()
	cfg.CacheTTLSeconds = 60
	cfg.SweepIntervalMs = 5
	e, clock := newTestEngine(t, newFakeProvider(), cfg)
	ctx := context.Background()

	e.Translate(ctx, req("Hello"))
	require.Equal(t, 1, e.Stats().CacheEntries)

	e.Start(ctx)
	e.Start(ctx)
	clock.Advance(2 * time.Hour)

	require.Eventually(t, func() bool {
		s := e.Stats()
		return s.CacheEntries == 0 && s.RequestsLastHour == 0
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, e.Close())
	require.NoError(t, e.Close())
}

func TestEngine_SnapshotRoundTrip(t *testing.T) {
	p := newFakeProvider()
	src, _ := newTestEngine(t, p, testConfig())
	ctx := context.Background()
	src.Translate(ctx, req("Hello"))
	src.Translate(ctx, req("World"))

	var buf bytes.Buffer
	n, err := src.ExportCache(&buf)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	p2 := newFakeProvider()
	dst, _ := newTestEngine(t, p2, testConfig())
	result, err := dst.ImportCache(&buf)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Imported)

	r := dst.Translate(ctx, req("World"))
	assert.True(t, r.Cached)
	assert.Equal(t, "दुनिया", r.TranslatedText)
	assert.Zero(t, p2.singleCalls())
}

func TestEngine_ProviderQualityScoreClamped(t *testing.T) {
	e, _ := newTestEngine(t, scoredProvider{score: 1.7, confidence: 1.3}, testConfig())

	r := e.Translate(context.Background(), req("Hello"))
	require.NotNil(t, r.QualityScore)
	assert.Equal(t, 1.0, *r.QualityScore)
	assert.Equal(t, 1.0, r.Confidence)
}

type scoredProvider struct {
	score      float64
	confidence float64
}

func (p scoredProvider) Translate(ctx context.Context, req ProviderRequest) (ProviderResponse, error) {
	score := p.score
	return ProviderResponse{TranslatedText: strings.ToUpper(req.Text), Confidence: p.confidence, QualityScore: &score}, nil
}

func (p scoredProvider) TranslateBatch(ctx context.Context, req BatchProviderRequest) (BatchProviderResponse, error) {
	return BatchProviderResponse{}, errors.New("not supported")
}
