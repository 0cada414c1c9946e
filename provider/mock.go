package provider

import (
	"context"
	"fmt"
	"sync"
)

// MockProvider is a deterministic provider for tests and offline use.
// It is safe for concurrent use.
type MockProvider struct {
	mu           sync.Mutex
	translations map[string]string // Map of source text to translation
	confidence   float64
	failTexts    map[string]bool
	err          error
	calls        int
	batchCalls   int
	lastBatch    *BatchRequest
}

// NewMockProvider creates a new mock provider with default translations.
func NewMockProvider() *MockProvider {
	return &MockProvider{
		translations: map[string]string{
			"Hello":                "नमस्ते",
			"World":                "दुनिया",
			"Hello World":          "नमस्ते दुनिया",
			"Welcome to our site.": "हमारी साइट पर आपका स्वागत है।",
		},
		confidence: 0.95,
		failTexts:  make(map[string]bool),
	}
}

// SetTranslation registers a fixed translation for text.
func (m *MockProvider) SetTranslation(text, translation string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.translations[text] = translation
}

// FailText makes text fail with Success=false in batches and an error in single calls.
func (m *MockProvider) FailText(text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failTexts[text] = true
}

// SetError makes every call fail with err. Pass nil to clear.
func (m *MockProvider) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func (m *MockProvider) lookup(text string) string {
	if translation, ok := m.translations[text]; ok {
		return translation
	}
	// Return bracketed text for unknown translations
	return fmt.Sprintf("[%s]", text)
}

// Translate returns a mock translation.
func (m *MockProvider) Translate(ctx context.Context, req Request) (Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++

	if m.err != nil {
		return Response{}, m.err
	}
	if m.failTexts[req.Text] {
		return Response{}, fmt.Errorf("mock: cannot translate %q", req.Text)
	}
	return Response{TranslatedText: m.lookup(req.Text), Confidence: m.confidence}, nil
}

// TranslateBatch returns mock translations in request order.
func (m *MockProvider) TranslateBatch(ctx context.Context, req BatchRequest) (BatchResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batchCalls++
	m.lastBatch = &req

	if m.err != nil {
		return BatchResponse{}, m.err
	}

	items := make([]BatchItem, len(req.Texts))
	for i, text := range req.Texts {
		if m.failTexts[text] {
			items[i] = BatchItem{Error: "mock: cannot translate"}
			continue
		}
		items[i] = BatchItem{TranslatedText: m.lookup(text), Confidence: m.confidence, Success: true}
	}
	return BatchResponse{Items: items}, nil
}

// CallCount returns the number of single Translate calls.
func (m *MockProvider) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// BatchCallCount returns the number of TranslateBatch calls.
func (m *MockProvider) BatchCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.batchCalls
}

// LastBatch returns the most recent batch request, or nil.
func (m *MockProvider) LastBatch() *BatchRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastBatch
}

// Reset clears call counters.
func (m *MockProvider) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = 0
	m.batchCalls = 0
	m.lastBatch = nil
}

// Verify MockProvider implements Provider
var _ Provider = (*MockProvider)(nil)
