package transcache

import (
	"math/rand/v2"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"
)

// DefaultQualityBufferSize is used when a monitor is created with a non-positive capacity.
const DefaultQualityBufferSize = 1000

// QualityMetric is one sampled translation outcome.
type QualityMetric struct {
	ID               string    `json:"id"`
	SourceLanguage   string    `json:"source_language"`
	TargetLanguage   string    `json:"target_language"`
	Confidence       float64   `json:"confidence"`
	QualityScore     float64   `json:"quality_score"`
	ProcessingTimeMs int64     `json:"processing_time_ms"`
	Cached           bool      `json:"cached"`
	Timestamp        time.Time `json:"timestamp"`
	Error            string    `json:"error,omitempty"`
}

// QualityMonitor keeps a fixed-size ring buffer of sampled outcomes.
type QualityMonitor struct {
	mu         sync.Mutex
	buf        []QualityMetric
	start      int
	count      int
	sampleRate float64
	rand       func() float64
	now        func() time.Time
}

// NewQualityMonitor creates a monitor holding at most capacity metrics.
// sampleRate is clamped to [0,1].
func NewQualityMonitor(capacity int, sampleRate float64) *QualityMonitor {
	if capacity <= 0 {
		capacity = DefaultQualityBufferSize
	}
	return &QualityMonitor{
		buf:        make([]QualityMetric, capacity),
		sampleRate: clamp01(sampleRate),
		rand:       rand.Float64,
		now:        time.Now,
	}
}

// Record samples result with the configured probability. It reports whether a metric was stored.
func (m *QualityMonitor) Record(result TranslationResult) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.sampleRate < 1 && m.rand() >= m.sampleRate {
		return false
	}

	now := m.now()
	metric := QualityMetric{
		ID:               ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String(),
		SourceLanguage:   result.SourceLanguage,
		TargetLanguage:   result.TargetLanguage,
		Confidence:       result.Confidence,
		ProcessingTimeMs: result.ProcessingTimeMs,
		Cached:           result.Cached,
		Timestamp:        now,
		Error:            result.Error,
	}
	if result.QualityScore != nil {
		metric.QualityScore = *result.QualityScore
	}

	capacity := len(m.buf)
	if m.count < capacity {
		m.buf[(m.start+m.count)%capacity] = metric
		m.count++
	} else {
		m.buf[m.start] = metric
		m.start = (m.start + 1) % capacity
	}
	return true
}

// Len returns the number of buffered metrics.
func (m *QualityMonitor) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.count
}

// Recent returns up to n of the newest metrics, oldest first.
func (m *QualityMonitor) Recent(n int) []QualityMetric {
	m.mu.Lock()
	defer m.mu.Unlock()

	if n <= 0 || n > m.count {
		n = m.count
	}
	out := make([]QualityMetric, 0, n)
	for i := m.count - n; i < m.count; i++ {
		out = append(out, m.buf[(m.start+i)%len(m.buf)])
	}
	return out
}

// Metrics aggregates the buffered metrics that match filter.
func (m *QualityMonitor) Metrics(filter MetricsFilter) AggregateMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()

	var total aggregate
	pairs := make(map[string]*aggregate)

	for i := 0; i < m.count; i++ {
		metric := &m.buf[(m.start+i)%len(m.buf)]
		if !filter.matches(metric) {
			continue
		}
		total.add(metric)

		key := PairKey(metric.SourceLanguage, metric.TargetLanguage)
		p, ok := pairs[key]
		if !ok {
			p = new(aggregate)
			pairs[key] = p
		}
		p.add(metric)
	}

	out := AggregateMetrics{ByLanguagePair: make(map[string]PairMetrics, len(pairs))}
	if total.n == 0 {
		return out
	}

	out.Total = total.n
	out.AvgConfidence = total.avg(total.confidence)
	out.AvgQualityScore = total.avg(total.quality)
	out.AvgProcessingTimeMs = total.avg(total.processingMs)
	out.CacheHitRate = total.avg(float64(total.cached))
	out.ErrorRate = total.avg(float64(total.errors))

	for key, p := range pairs {
		out.ByLanguagePair[key] = PairMetrics{
			Total:               p.n,
			AvgConfidence:       p.avg(p.confidence),
			AvgProcessingTimeMs: p.avg(p.processingMs),
			CacheHitRate:        p.avg(float64(p.cached)),
			ErrorRate:           p.avg(float64(p.errors)),
		}
	}
	return out
}

func (f MetricsFilter) matches(metric *QualityMetric) bool {
	if f.SourceLanguage != "" && canonicalLang(f.SourceLanguage) != canonicalLang(metric.SourceLanguage) {
		return false
	}
	if f.TargetLanguage != "" && canonicalLang(f.TargetLanguage) != canonicalLang(metric.TargetLanguage) {
		return false
	}
	return true
}

type aggregate struct {
	n            int
	confidence   float64
	quality      float64
	processingMs float64
	cached       int
	errors       int
}

func (a *aggregate) add(m *QualityMetric) {
	a.n++
	a.confidence += m.Confidence
	a.quality += m.QualityScore
	a.processingMs += float64(m.ProcessingTimeMs)
	if m.Cached {
		a.cached++
	}
	if m.Error != "" {
		a.errors++
	}
}

func (a *aggregate) avg(sum float64) float64 {
	if a.n == 0 {
		return 0
	}
	return sum / float64(a.n)
}

// estimateQuality scores a translation in [0,1] when the provider gives no
// score. It blends confidence with how plausible the length ratio is; output
// identical to a non-trivial input is penalized.
func estimateQuality(original, translated string, confidence float64) float64 {
	srcLen := utf8.RuneCountInString(original)
	dstLen := utf8.RuneCountInString(translated)
	if srcLen == 0 || dstLen == 0 {
		return 0
	}

	ratio := float64(dstLen) / float64(srcLen)
	lengthScore := 1.0
	switch {
	case ratio < 0.5:
		lengthScore = ratio / 0.5
	case ratio > 2.0:
		lengthScore = 2.0 / ratio
	}

	score := 0.5*confidence + 0.5*lengthScore
	if translated == original && srcLen > 3 {
		score /= 2
	}
	return clamp01(score)
}
