// Package processor translates structured content through a transcache engine.
package processor

import (
	"context"

	"github.com/ZaguanLabs/transcache"
)

// BatchTranslator translates a batch of requests. *transcache.Engine satisfies it.
type BatchTranslator interface {
	TranslateBatch(ctx context.Context, reqs []transcache.TranslationRequest) (transcache.BatchResult, error)
}

// TextNode represents a translatable text segment extracted from content.
type TextNode struct {
	ID       string            // Unique identifier within the document
	Text     string            // Trimmed text to translate
	Hash     string            // transcache.HashText(Text)
	Context  string            // Disambiguation hint passed to the provider
	Metadata map[string]string // Extra data (parent tag, etc.)
}

// ProcessedContent is the outcome of translating a document.
type ProcessedContent struct {
	Content          string `json:"content"`
	SourceLanguage   string `json:"source_language"`
	TargetLanguage   string `json:"target_language"`
	Nodes            int    `json:"nodes"`             // Unique text segments
	Cached           int    `json:"cached"`            // Segments served from cache
	Failed           int    `json:"failed"`            // Segments left in the source language
	ProcessingTimeMs int64  `json:"processing_time_ms"`
}
