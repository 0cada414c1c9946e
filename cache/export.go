package cache

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"time"
)

// FormatVersion is the snapshot format written by Export.
const FormatVersion = "2.0"

// ExportFormat represents the JSON structure for cache export/import.
type ExportFormat[V any] struct {
	Version    string            `json:"version"`
	ExportedAt string            `json:"exported_at"`
	Entries    []ExportEntry[V]  `json:"entries"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// ExportEntry represents a single cache entry.
type ExportEntry[V any] struct {
	Key       string     `json:"key"`
	Value     V          `json:"value"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// Exporter writes snapshots of an in-memory cache.
type Exporter[V any] struct {
	cache *InMemoryCache[V]
}

// NewExporter creates a new cache exporter.
func NewExporter[V any](cache *InMemoryCache[V]) *Exporter[V] {
	return &Exporter[V]{cache: cache}
}

// Export writes the live cache contents to a writer in JSON format, sorted by key.
func (e *Exporter[V]) Export(w io.Writer, metadata map[string]string) (int, error) {
	data := e.cache.Entries()
	sort.Slice(data, func(i, j int) bool { return data[i].Key < data[j].Key })

	entries := make([]ExportEntry[V], 0, len(data))
	for _, entry := range data {
		out := ExportEntry[V]{Key: entry.Key, Value: entry.Value}
		if !entry.ExpiresAt.IsZero() {
			expiresAt := entry.ExpiresAt.UTC()
			out.ExpiresAt = &expiresAt
		}
		entries = append(entries, out)
	}

	export := ExportFormat[V]{
		Version:    FormatVersion,
		ExportedAt: e.cache.clock().UTC().Format(time.RFC3339),
		Entries:    entries,
		Metadata:   metadata,
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(export); err != nil {
		return 0, fmt.Errorf("encoding JSON: %w", err)
	}

	return len(entries), nil
}

// ExportToFile exports the cache to a file.
// The path is provided by the caller and is intentionally user-controlled.
func (e *Exporter[V]) ExportToFile(path string, metadata map[string]string) (int, error) {
	f, err := os.Create(path) // #nosec G304 - path is intentionally user-provided
	if err != nil {
		return 0, fmt.Errorf("creating file: %w", err)
	}
	defer f.Close()

	return e.Export(f, metadata)
}

// Importer loads snapshots into an in-memory cache.
type Importer[V any] struct {
	cache *InMemoryCache[V]
}

// NewImporter creates a new cache importer.
func NewImporter[V any](cache *InMemoryCache[V]) *Importer[V] {
	return &Importer[V]{cache: cache}
}

// Import reads cache entries from a reader and loads them into the cache.
// Entries that have already expired are skipped; entries without a key are counted as failed.
func (i *Importer[V]) Import(r io.Reader) (*ImportResult, error) {
	var export ExportFormat[V]
	if err := json.NewDecoder(r).Decode(&export); err != nil {
		return nil, fmt.Errorf("decoding JSON: %w", err)
	}

	result := &ImportResult{
		Version:  export.Version,
		Metadata: export.Metadata,
	}

	now := i.cache.clock()
	for _, entry := range export.Entries {
		if entry.Key == "" {
			result.Failed++
			continue
		}
		var expiresAt time.Time
		if entry.ExpiresAt != nil {
			expiresAt = *entry.ExpiresAt
			if !now.Before(expiresAt) {
				result.Expired++
				continue
			}
		}
		i.cache.SetWithExpiry(entry.Key, entry.Value, expiresAt)
		result.Imported++
	}

	return result, nil
}

// ImportFromFile imports cache entries from a file.
// The path is provided by the caller and is intentionally user-controlled.
func (i *Importer[V]) ImportFromFile(path string) (*ImportResult, error) {
	f, err := os.Open(path) // #nosec G304 - path is intentionally user-provided
	if err != nil {
		return nil, fmt.Errorf("opening file: %w", err)
	}
	defer f.Close()

	return i.Import(f)
}

// ImportResult contains statistics about the import operation.
type ImportResult struct {
	Version  string
	Metadata map[string]string
	Imported int
	Expired  int
	Failed   int
}
