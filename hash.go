package transcache

import (
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// HashText returns a short, stable token for text (xxhash64, 16 hex chars).
// It is not collision resistant; CacheKey pairs it with the language pair.
func HashText(text string) string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(text))
}

// CacheKey generates the cache key for a text and language pair:
// prefix + source + ":" + target + ":" + HashText(text).
func CacheKey(prefix, sourceLang, targetLang, text string) string {
	return prefix + canonicalLang(sourceLang) + ":" + canonicalLang(targetLang) + ":" + HashText(text)
}
