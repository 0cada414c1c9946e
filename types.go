package transcache

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Priority hints how urgently a request should be served.
type Priority string

const (
	// PriorityHigh marks interactive requests.
	PriorityHigh Priority = "high"
	// PriorityNormal is the default priority.
	PriorityNormal Priority = "normal"
	// PriorityLow marks background requests.
	PriorityLow Priority = "low"
)

// Valid reports whether p is a known priority. The empty value is treated as normal.
func (p Priority) Valid() bool {
	switch p {
	case "", PriorityHigh, PriorityNormal, PriorityLow:
		return true
	}
	return false
}

// rank orders priorities for dispatch; lower runs first.
func (p Priority) rank() int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityLow:
		return 2
	}
	return 1
}

// TranslationRequest asks for text to be translated between two languages.
type TranslationRequest struct {
	Text           string   `json:"text"`
	SourceLanguage string   `json:"source_language"`
	TargetLanguage string   `json:"target_language"`
	Context        string   `json:"context,omitempty"`  // Disambiguation hint for the provider
	Priority       Priority `json:"priority,omitempty"` // Defaults to normal
}

// TranslationResult is the outcome of a translation.
//
// When Error is set the result is a fail-open fallback: TranslatedText holds
// the original text and Confidence is zero.
type TranslationResult struct {
	TranslatedText   string   `json:"translated_text"`
	OriginalText     string   `json:"original_text"`
	SourceLanguage   string   `json:"source_language"`
	TargetLanguage   string   `json:"target_language"`
	Confidence       float64  `json:"confidence"`
	Cached           bool     `json:"cached"`
	ProcessingTimeMs int64    `json:"processing_time_ms"`
	QualityScore     *float64 `json:"quality_score,omitempty"`
	Error            string   `json:"error,omitempty"`
}

// Failed reports whether the result is a fail-open fallback.
func (r TranslationResult) Failed() bool {
	return r.Error != ""
}

// clone returns a copy that shares no memory with r.
func (r TranslationResult) clone() TranslationResult {
	if r.QualityScore != nil {
		score := *r.QualityScore
		r.QualityScore = &score
	}
	return r
}

// identityResult is returned for requests that need no translation.
func identityResult(req TranslationRequest) TranslationResult {
	return TranslationResult{
		TranslatedText: req.Text,
		OriginalText:   req.Text,
		SourceLanguage: req.SourceLanguage,
		TargetLanguage: req.TargetLanguage,
		Confidence:     1.0,
	}
}

// isIdentity reports whether req needs no translation: blank text or a
// target that is the same language as the source.
func isIdentity(req TranslationRequest) bool {
	return strings.TrimSpace(req.Text) == "" || SameLanguage(req.SourceLanguage, req.TargetLanguage)
}

// successResult builds the result for a provider translation. A missing
// provider quality score is estimated.
func successResult(req TranslationRequest, translated string, confidence float64, quality *float64, elapsed time.Duration) TranslationResult {
	confidence = clamp01(confidence)
	var score float64
	if quality != nil {
		score = clamp01(*quality)
	} else {
		score = estimateQuality(req.Text, translated, confidence)
	}
	return TranslationResult{
		TranslatedText:   translated,
		OriginalText:     req.Text,
		SourceLanguage:   req.SourceLanguage,
		TargetLanguage:   req.TargetLanguage,
		Confidence:       confidence,
		ProcessingTimeMs: elapsed.Milliseconds(),
		QualityScore:     &score,
	}
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}

// failedResult builds the degraded result for a request that could not be translated.
func failedResult(req TranslationRequest, reason string, elapsed time.Duration) TranslationResult {
	return TranslationResult{
		TranslatedText:   req.Text,
		OriginalText:     req.Text,
		SourceLanguage:   req.SourceLanguage,
		TargetLanguage:   req.TargetLanguage,
		ProcessingTimeMs: elapsed.Milliseconds(),
		Error:            reason,
	}
}

// BatchResult is the outcome of TranslateBatch.
type BatchResult struct {
	Results               []TranslationResult `json:"results"`                  // Same length and order as the input
	TotalProcessingTimeMs int64               `json:"total_processing_time_ms"` // Wall time of the whole call
	CacheHitRate          float64             `json:"cache_hit_rate"`
	AverageConfidence     float64             `json:"average_confidence"`
	SuccessRate           float64             `json:"success_rate"`
	Errors                []int               `json:"errors"` // Indices of failed results
}

// MetricsFilter restricts aggregate metrics to a language pair. Empty fields match anything.
type MetricsFilter struct {
	SourceLanguage string
	TargetLanguage string
}

// AggregateMetrics summarizes the sampled quality log.
type AggregateMetrics struct {
	Total               int                    `json:"total"`
	AvgConfidence       float64                `json:"avg_confidence"`
	AvgQualityScore     float64                `json:"avg_quality_score"`
	AvgProcessingTimeMs float64                `json:"avg_processing_time_ms"`
	CacheHitRate        float64                `json:"cache_hit_rate"`
	ErrorRate           float64                `json:"error_rate"`
	ByLanguagePair      map[string]PairMetrics `json:"by_language_pair"`
}

// PairMetrics summarizes samples for one language pair.
type PairMetrics struct {
	Total               int     `json:"total"`
	AvgConfidence       float64 `json:"avg_confidence"`
	AvgProcessingTimeMs float64 `json:"avg_processing_time_ms"`
	CacheHitRate        float64 `json:"cache_hit_rate"`
	ErrorRate           float64 `json:"error_rate"`
}

// PairKey formats the language pair key used in ByLanguagePair.
func PairKey(sourceLang, targetLang string) string {
	return fmt.Sprintf("%s->%s", sourceLang, targetLang)
}
