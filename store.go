package transcache

import (
	"context"
	"encoding/json"
	"io"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ZaguanLabs/transcache/cache"
)

// CacheStoreConfig configures a CacheStore.
type CacheStoreConfig struct {
	Prefix        string        // Prepended to every key
	TTL           time.Duration // Entry lifetime in both tiers (0 = no expiry)
	MaxEntries    int           // In-process capacity (0 = unbounded)
	OpTimeout     time.Duration // Bound on each distributed call (0 = caller's context only)
	RemoteBackoff time.Duration // Skip the distributed tier this long after a failure
}

// CacheStore is the two-tier translation cache. The in-process tier is the
// fast path; the distributed tier, when configured, is consulted on an
// in-process miss and a hit there is copied into the in-process tier.
//
// Distributed tier failures are logged and treated as misses.
type CacheStore struct {
	local  *cache.InMemoryCache[TranslationResult]
	remote cache.Distributed
	config CacheStoreConfig
	logger *zap.Logger
	now    func() time.Time

	mu        sync.Mutex
	downUntil time.Time
}

// NewCacheStore creates a cache store. remote may be nil.
func NewCacheStore(cfg CacheStoreConfig, remote cache.Distributed, logger *zap.Logger) *CacheStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheStore{
		local:  cache.NewInMemoryCache[TranslationResult](cfg.TTL, cfg.MaxEntries),
		remote: remote,
		config: cfg,
		logger: logger,
		now:    time.Now,
	}
}

func (s *CacheStore) withClock(now func() time.Time) *CacheStore {
	s.now = now
	s.local.WithClock(now)
	return s
}

// Key derives the cache key for a request.
func (s *CacheStore) Key(req TranslationRequest) string {
	return CacheKey(s.config.Prefix, req.SourceLanguage, req.TargetLanguage, req.Text)
}

// Get returns a copy of the cached result for key with Cached set.
func (s *CacheStore) Get(ctx context.Context, key string) (TranslationResult, bool) {
	if v, ok := s.local.Get(key); ok {
		out := v.clone()
		out.Cached = true
		return out, true
	}

	if !s.remoteAvailable() {
		return TranslationResult{}, false
	}

	opCtx, cancel := s.opContext(ctx)
	raw, ok, err := s.remote.Get(opCtx, key)
	cancel()
	if err != nil {
		s.remoteFailed("get", key, err)
		return TranslationResult{}, false
	}
	if !ok {
		return TranslationResult{}, false
	}

	var v TranslationResult
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		s.logger.Warn("discarding undecodable cache entry",
			zap.Error(&CacheError{Message: "decode failed", Key: key, Cause: err}))
		return TranslationResult{}, false
	}
	if v.Failed() {
		return TranslationResult{}, false
	}

	v.Cached = false
	s.local.Set(key, v)

	out := v.clone()
	out.Cached = true
	return out, true
}

// Set stores a successful result in both tiers. Failed results are ignored.
func (s *CacheStore) Set(ctx context.Context, key string, value TranslationResult) {
	if value.Failed() {
		return
	}

	stored := value.clone()
	stored.Cached = false
	stored.ProcessingTimeMs = 0
	s.local.Set(key, stored)

	if !s.remoteAvailable() {
		return
	}

	data, err := json.Marshal(stored)
	if err != nil {
		s.logger.Warn("encoding cache entry", zap.Error(&CacheError{Message: "encode failed", Key: key, Cause: err}))
		return
	}

	// The write outlives a cancelled caller; the op timeout still bounds it.
	opCtx, cancel := s.opContext(context.WithoutCancel(ctx))
	defer cancel()
	if err := s.remote.SetWithTTL(opCtx, key, string(data), s.config.TTL); err != nil {
		s.remoteFailed("set", key, err)
	}
}

// Clear removes all prefixed keys from the distributed tier and empties the in-process tier.
func (s *CacheStore) Clear(ctx context.Context) {
	if s.remote != nil {
		opCtx, cancel := s.opContext(ctx)
		n, err := s.remote.DeleteKeys(opCtx, s.config.Prefix+"*")
		cancel()
		if err != nil {
			s.remoteFailed("clear", s.config.Prefix+"*", err)
		} else {
			s.logger.Debug("cleared distributed cache", zap.Int("keys", n))
		}
	}
	s.local.Clear()
}

// Sweep drops expired in-process entries.
func (s *CacheStore) Sweep() int {
	return s.local.Sweep()
}

// Len returns the number of in-process entries.
func (s *CacheStore) Len() int {
	return s.local.Len()
}

// Evictions returns how many in-process entries were evicted for capacity.
func (s *CacheStore) Evictions() int64 {
	return s.local.Evictions()
}

// Export writes a snapshot of the in-process tier.
func (s *CacheStore) Export(w io.Writer) (int, error) {
	return cache.NewExporter(s.local).Export(w, map[string]string{"prefix": s.config.Prefix})
}

// Import loads a snapshot into the in-process tier. Entries under a
// different key prefix are skipped.
func (s *CacheStore) Import(r io.Reader) (*cache.ImportResult, error) {
	staging := cache.NewInMemoryCache[TranslationResult](0, 0).WithClock(s.now)
	result, err := cache.NewImporter(staging).Import(r)
	if err != nil {
		return nil, err
	}
	imported := 0
	for _, entry := range staging.Entries() {
		if !strings.HasPrefix(entry.Key, s.config.Prefix) || entry.Value.Failed() {
			result.Failed++
			continue
		}
		s.local.SetWithExpiry(entry.Key, entry.Value, entry.ExpiresAt)
		imported++
	}
	result.Imported = imported
	return result, nil
}

func (s *CacheStore) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.config.OpTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.config.OpTimeout)
}

func (s *CacheStore) remoteAvailable() bool {
	if s.remote == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.now().Before(s.downUntil)
}

func (s *CacheStore) remoteFailed(op, key string, err error) {
	if s.config.RemoteBackoff > 0 {
		s.mu.Lock()
		s.downUntil = s.now().Add(s.config.RemoteBackoff)
		s.mu.Unlock()
	}
	s.logger.Warn("distributed cache unavailable, using in-process tier",
		zap.String("op", op),
		zap.Duration("backoff", s.config.RemoteBackoff),
		zap.Error(&CacheError{Message: op + " failed", Key: key, Cause: err}))
}
