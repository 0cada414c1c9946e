package transcache

import (
	"errors"
	"testing"
)

func TestTranslationError(t *testing.T) {
	cause := errors.New("underlying error")
	err := &TranslationError{Message: "translation failed", Cause: cause}

	if err.Error() != "translation failed: underlying error" {
		t.Errorf("unexpected error message: %s", err.Error())
	}

	if err.Unwrap() != cause {
		t.Error("Unwrap() should return the cause")
	}

	err2 := &TranslationError{Message: "simple error"}
	if err2.Error() != "simple error" {
		t.Errorf("unexpected error message: %s", err2.Error())
	}
}

func TestProviderError(t *testing.T) {
	err := &ProviderError{Message: "quota exceeded", Retryable: true}

	if err.Error() != "provider error: quota exceeded" {
		t.Errorf("unexpected error message: %s", err.Error())
	}

	if !err.Retryable {
		t.Error("error should be retryable")
	}
}

func TestCacheError(t *testing.T) {
	cause := errors.New("connection refused")
	err := &CacheError{Message: "redis get", Key: "tc:en:hi:abc", Cause: cause}

	if err.Error() != "cache error: redis get: connection refused" {
		t.Errorf("unexpected error message: %s", err.Error())
	}
	if !errors.Is(err, cause) {
		t.Error("CacheError should unwrap to its cause")
	}
}

func TestRateLimitError(t *testing.T) {
	err := &RateLimitError{Reason: "rate limit exceeded: 10 requests per minute"}

	if err.Error() != "rate limit exceeded: 10 requests per minute" {
		t.Errorf("unexpected error message: %s", err.Error())
	}
}

func TestProcessorError(t *testing.T) {
	err := &ProcessorError{Message: "parse failed", ContentType: "html"}

	if err.Error() != "processor error (html): parse failed" {
		t.Errorf("unexpected error message: %s", err.Error())
	}
}

func TestCountMismatchError(t *testing.T) {
	err := &CountMismatchError{Expected: 5, Got: 3}

	expected := "translation count mismatch: expected 5, got 3"
	if err.Error() != expected {
		t.Errorf("unexpected error message: %s, want %s", err.Error(), expected)
	}
}
