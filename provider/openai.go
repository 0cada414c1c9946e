package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/ZaguanLabs/transcache"
	"github.com/sashabaranov/go-openai"
)

// DefaultConfidence is reported when the model omits a confidence value.
const DefaultConfidence = 0.85

// OpenAIProvider implements Provider using OpenAI's chat completion API.
type OpenAIProvider struct {
	client      *openai.Client
	model       string
	temperature float32
}

// OpenAIConfig holds configuration for the OpenAI provider.
type OpenAIConfig struct {
	APIKey      string  // OpenAI API key
	Model       string  // Model to use (default: "gpt-4o-mini")
	Temperature float32 // Temperature for generation (default: 0.3)
	BaseURL     string  // Custom base URL (optional)
}

// NewOpenAIProvider creates a new OpenAI provider.
func NewOpenAIProvider(cfg OpenAIConfig) *OpenAIProvider {
	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}

	model := cfg.Model
	if model == "" {
		model = "gpt-4o-mini"
	}

	temperature := cfg.Temperature
	if temperature == 0 {
		temperature = 0.3
	}

	return &OpenAIProvider{
		client:      openai.NewClientWithConfig(config),
		model:       model,
		temperature: temperature,
	}
}

// Translate translates a single text.
func (p *OpenAIProvider) Translate(ctx context.Context, req Request) (Response, error) {
	var contexts []string
	if req.Context != "" {
		contexts = []string{req.Context}
	}
	resp, err := p.TranslateBatch(ctx, BatchRequest{
		Texts:          []string{req.Text},
		SourceLanguage: req.SourceLanguage,
		TargetLanguage: req.TargetLanguage,
		Contexts:       contexts,
	})
	if err != nil {
		return Response{}, err
	}

	item := resp.Items[0]
	if !item.Success {
		return Response{}, &transcache.ProviderError{Message: item.Error, Retryable: true}
	}
	return Response{TranslatedText: item.TranslatedText, Confidence: item.Confidence, QualityScore: item.QualityScore}, nil
}

// TranslateBatch translates a batch of texts in one chat completion.
func (p *OpenAIProvider) TranslateBatch(ctx context.Context, req BatchRequest) (BatchResponse, error) {
	if len(req.Texts) == 0 {
		return BatchResponse{Items: []BatchItem{}}, nil
	}

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: p.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: p.buildSystemPrompt(req)},
			{Role: openai.ChatMessageRoleUser, Content: p.buildUserMessage(req)},
		},
		Temperature: p.temperature,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return BatchResponse{}, &transcache.ProviderError{
			Message:   "OpenAI API call failed",
			Cause:     err,
			Retryable: isRetryableError(err),
		}
	}

	if len(resp.Choices) == 0 {
		return BatchResponse{}, &transcache.ProviderError{
			Message:   "no response from OpenAI",
			Retryable: true,
		}
	}

	items, err := p.parseResponse(resp.Choices[0].Message.Content, len(req.Texts))
	if err != nil {
		return BatchResponse{}, err
	}
	return BatchResponse{Items: items}, nil
}

func (p *OpenAIProvider) buildSystemPrompt(req BatchRequest) string {
	sourceLang := req.SourceLanguage
	if sourceLang == "" {
		sourceLang = "en"
	}

	sourceName := transcache.GetLanguageName(sourceLang)
	targetName := transcache.GetLanguageName(req.TargetLanguage)

	return fmt.Sprintf(`# Role
You are an expert native translator from %s to %s.

# Task
Translate each provided text into idiomatic %s.

# Style Guide
- **Natural Flow**: Avoid literal translations. Rephrase so the result reads naturally to a native speaker.
- **HTML/Code Safety**: Do NOT translate HTML tags, attributes, URLs, email addresses, or content inside backticks.
- **Interpolation**: Do NOT translate variables or placeholders (e.g., {{name}}, {count}, %%s, $1).
- **Formatting**: Preserve meaningful whitespace and use idiomatic punctuation for the target language.
- **Context**: When an item has a "context" field, use it only to disambiguate the translation.

# Confidence
For each text, report how confident you are in the translation as a number between 0 and 1.

# Format
Return a valid JSON object with a single key "translations" containing one object per input, in the same order.
Example: { "translations": [{"text": "translated string 1", "confidence": 0.92}] }
- Do NOT wrap in Markdown code blocks.`, sourceName, targetName, targetName)
}

func (p *OpenAIProvider) buildUserMessage(req BatchRequest) string {
	hasContexts := false
	for _, c := range req.Contexts {
		if c != "" {
			hasContexts = true
			break
		}
	}

	if !hasContexts {
		data, _ := json.Marshal(req.Texts)
		return string(data)
	}

	type item struct {
		Text    string `json:"text"`
		Context string `json:"context,omitempty"`
	}

	items := make([]item, len(req.Texts))
	for i, text := range req.Texts {
		items[i].Text = text
		if i < len(req.Contexts) {
			items[i].Context = req.Contexts[i]
		}
	}

	data, _ := json.Marshal(map[string][]item{"items": items})
	return string(data)
}

// parseResponse accepts {"translations": [...]}, any other single array
// key, or a bare array. Entries may be strings or {"text","confidence"} objects.
func (p *OpenAIProvider) parseResponse(content string, expectedCount int) ([]BatchItem, error) {
	content = strings.TrimSpace(content)

	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(content), &obj); err == nil {
		if raw, ok := obj["translations"]; ok {
			return toItems(raw, expectedCount)
		}
		for _, raw := range obj {
			if items, err := toItems(raw, expectedCount); err == nil {
				return items, nil
			}
		}
	}

	if strings.HasPrefix(content, "[") {
		return toItems(json.RawMessage(content), expectedCount)
	}

	return nil, &transcache.ProviderError{
		Message:   "invalid response format from OpenAI",
		Retryable: false,
	}
}

type translationEntry struct {
	Text       string   `json:"text"`
	Confidence *float64 `json:"confidence"`
}

func toItems(raw json.RawMessage, expectedCount int) ([]BatchItem, error) {
	var entries []json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, &transcache.ProviderError{Message: "translations is not an array", Cause: err}
	}
	if len(entries) != expectedCount {
		return nil, &transcache.CountMismatchError{Expected: expectedCount, Got: len(entries)}
	}

	items := make([]BatchItem, len(entries))
	for i, entry := range entries {
		var e translationEntry
		var s string
		switch {
		case json.Unmarshal(entry, &s) == nil:
			e.Text = s
		case json.Unmarshal(entry, &e) == nil:
		default:
			items[i] = BatchItem{Error: "unparseable translation entry"}
			continue
		}

		if strings.TrimSpace(e.Text) == "" {
			items[i] = BatchItem{Error: "empty translation"}
			continue
		}

		confidence := DefaultConfidence
		if e.Confidence != nil {
			confidence = min(1, max(0, *e.Confidence))
		}
		items[i] = BatchItem{TranslatedText: e.Text, Confidence: confidence, Success: true}
	}
	return items, nil
}

func isRetryableError(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusTooManyRequests || apiErr.HTTPStatusCode >= 500
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == http.StatusTooManyRequests || reqErr.HTTPStatusCode >= 500
	}

	// Check for common retryable conditions
	errStr := strings.ToLower(err.Error())
	retryablePatterns := []string{
		"rate limit",
		"timeout",
		"connection refused",
		"connection reset",
		"temporary",
		"503",
		"502",
		"429",
	}

	for _, pattern := range retryablePatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}
	return false
}

// Verify OpenAIProvider implements Provider
var _ Provider = (*OpenAIProvider)(nil)
