package transcache

import (
	"context"
	"sync"
)

// ParallelCacheLookup resolves keys against the store using up to workers
// goroutines. It returns the hits keyed by cache key; keys absent from the
// map are misses. Duplicate keys are looked up once.
func ParallelCacheLookup(ctx context.Context, store *CacheStore, keys []string, workers int) map[string]TranslationResult {
	hits := make(map[string]TranslationResult)
	if store == nil || len(keys) == 0 {
		return hits
	}

	unique := make([]string, 0, len(keys))
	seen := make(map[string]bool, len(keys))
	for _, key := range keys {
		if !seen[key] {
			seen[key] = true
			unique = append(unique, key)
		}
	}

	if workers <= 0 {
		workers = 1
	}

	type lookupResult struct {
		key   string
		value TranslationResult
		found bool
	}

	results := make(chan lookupResult, len(unique))
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup

	for _, key := range unique {
		wg.Add(1)
		sem <- struct{}{}
		go func(k string) {
			defer wg.Done()
			defer func() { <-sem }()
			v, ok := store.Get(ctx, k)
			results <- lookupResult{key: k, value: v, found: ok}
		}(key)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	for result := range results {
		if result.found {
			hits[result.key] = result.value
		}
	}
	return hits
}

// lookupAll resolves keys sequentially, switching to ParallelCacheLookup
// once there are at least threshold of them.
func lookupAll(ctx context.Context, store *CacheStore, keys []string, threshold, workers int) map[string]TranslationResult {
	if store == nil {
		return map[string]TranslationResult{}
	}
	if threshold > 0 && len(keys) >= threshold {
		return ParallelCacheLookup(ctx, store, keys, workers)
	}

	hits := make(map[string]TranslationResult)
	for _, key := range keys {
		if _, done := hits[key]; done {
			continue
		}
		if v, ok := store.Get(ctx, key); ok {
			hits[key] = v
		}
	}
	return hits
}
