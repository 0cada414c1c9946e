package transcache

import (
	"context"
	"errors"
	"path"
	"strings"
	"sync"
	"time"
)

// fakeProvider is a concurrency-safe provider double with failure injection.
type fakeProvider struct {
	mu            sync.Mutex
	translations  map[string]string
	confidence    float64
	failFirst     int             // Fail this many calls with a retryable error
	err           error           // Fail every call with this error
	failItems     map[string]bool // Texts reported with Success=false
	failChunkWith map[string]bool // Batch calls containing these texts fail outright
	truncateBatch bool            // Drop the last item of every batch response
	delay         time.Duration   // Ignores ctx on purpose
	attempts      int
	single        []string
	batches       [][]string
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		translations: map[string]string{
			"Hello": "नमस्ते",
			"World": "दुनिया",
			"A":     "ए",
			"B":     "बी",
		},
		confidence:    0.95,
		failItems:     map[string]bool{},
		failChunkWith: map[string]bool{},
	}
}

func (p *fakeProvider) translate(text string) string {
	if t, ok := p.translations[text]; ok {
		return t
	}
	return "[" + text + "]"
}

func (p *fakeProvider) begin() error {
	p.attempts++
	if p.err != nil {
		return p.err
	}
	if p.attempts <= p.failFirst {
		return &ProviderError{Message: "service unavailable", Retryable: true}
	}
	return nil
}

func (p *fakeProvider) Translate(ctx context.Context, req ProviderRequest) (ProviderResponse, error) {
	p.mu.Lock()
	p.single = append(p.single, req.Text)
	err := p.begin()
	delay := p.delay
	translated := p.translate(req.Text)
	confidence := p.confidence
	p.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	if err != nil {
		return ProviderResponse{}, err
	}
	return ProviderResponse{TranslatedText: translated, Confidence: confidence}, nil
}

func (p *fakeProvider) TranslateBatch(ctx context.Context, req BatchProviderRequest) (BatchProviderResponse, error) {
	p.mu.Lock()
	p.batches = append(p.batches, append([]string(nil), req.Texts...))
	err := p.begin()
	delay := p.delay
	for _, text := range req.Texts {
		if p.failChunkWith[text] {
			err = errors.New("upstream rejected batch")
		}
	}
	items := make([]BatchItem, 0, len(req.Texts))
	for _, text := range req.Texts {
		if p.failItems[text] {
			items = append(items, BatchItem{Success: false, Error: "untranslatable"})
			continue
		}
		items = append(items, BatchItem{TranslatedText: p.translate(text), Confidence: p.confidence, Success: true})
	}
	if p.truncateBatch && len(items) > 0 {
		items = items[:len(items)-1]
	}
	p.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	if err != nil {
		return BatchProviderResponse{}, err
	}
	return BatchProviderResponse{Items: items}, nil
}

func (p *fakeProvider) singleCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.single)
}

func (p *fakeProvider) batchCallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.batches)
}

// sentTexts returns every text sent to the provider across all calls.
func (p *fakeProvider) sentTexts() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	texts := append([]string(nil), p.single...)
	for _, batch := range p.batches {
		texts = append(texts, batch...)
	}
	return texts
}

func (p *fakeProvider) setErr(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

// fakeRemote is an in-memory stand-in for the distributed cache tier.
type fakeRemote struct {
	mu      sync.Mutex
	data    map[string]string
	ttls    map[string]time.Duration
	failing bool
	gets    int
	sets    int
	deletes []string
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

var errRemoteDown = errors.New("dial tcp 127.0.0.1:6379: connect: connection refused")

func (r *fakeRemote) Get(ctx context.Context, key string) (string, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gets++
	if r.failing {
		return "", false, errRemoteDown
	}
	v, ok := r.data[key]
	return v, ok, nil
}

func (r *fakeRemote) SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sets++
	if r.failing {
		return errRemoteDown
	}
	r.data[key] = value
	r.ttls[key] = ttl
	return nil
}

func (r *fakeRemote) DeleteKeys(ctx context.Context, pattern string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deletes = append(r.deletes, pattern)
	if r.failing {
		return 0, errRemoteDown
	}
	n := 0
	for key := range r.data {
		if ok, _ := path.Match(pattern, key); ok {
			delete(r.data, key)
			n++
		}
	}
	return n, nil
}

func (r *fakeRemote) ListKeys(ctx context.Context, pattern string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failing {
		return nil, errRemoteDown
	}
	var keys []string
	for key := range r.data {
		if ok, _ := path.Match(pattern, key); ok {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

func (r *fakeRemote) setFailing(failing bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failing = failing
}

func (r *fakeRemote) counts() (gets, sets int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.gets, r.sets
}

func (r *fakeRemote) hasKeyWithPrefix(prefix string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key := range r.data {
		if strings.HasPrefix(key, prefix) {
			return true
		}
	}
	return false
}
