package transcache

import "context"

// Provider is the interface for remote translation backends.
//
// Implementations report transport failures as errors. In a batch, a single
// item may fail with Success=false without failing the others.
type Provider interface {
	Translate(ctx context.Context, req ProviderRequest) (ProviderResponse, error)
	TranslateBatch(ctx context.Context, req BatchProviderRequest) (BatchProviderResponse, error)
}

// ProviderRequest is a single-text provider call.
type ProviderRequest struct {
	Text           string
	SourceLanguage string
	TargetLanguage string
	Context        string
}

// ProviderResponse is the result of a single-text provider call.
type ProviderResponse struct {
	TranslatedText string
	Confidence     float64  // In [0,1]
	QualityScore   *float64 // Optional provider-side quality estimate
}

// BatchProviderRequest is a multi-text provider call for one language pair.
type BatchProviderRequest struct {
	Texts          []string
	SourceLanguage string
	TargetLanguage string
	Contexts       []string // Optional, parallel to Texts
}

// BatchProviderResponse holds one item per requested text, in request order.
type BatchProviderResponse struct {
	Items []BatchItem
}

// BatchItem is the per-text outcome of a batch call.
type BatchItem struct {
	TranslatedText string
	Confidence     float64
	QualityScore   *float64
	Success        bool
	Error          string // Set when Success is false
}
