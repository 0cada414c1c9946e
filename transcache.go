// Package transcache provides a caching, rate-limited translation engine.
//
// Transcache sits between an application and a remote translation provider.
// Requests are answered from a two-tier cache where possible; misses are
// throttled by a shared sliding-window rate limiter, retried with exponential
// backoff, and sampled into a bounded quality log. Every failure degrades to
// the original text so callers always get a usable string back.
//
// Basic usage:
//
//	import (
//	    "context"
//	    "github.com/ZaguanLabs/transcache"
//	    "github.com/ZaguanLabs/transcache/provider"
//	)
//
//	func main() {
//	    p := provider.NewOpenAIProvider(provider.OpenAIConfig{
//	        APIKey: os.Getenv("OPENAI_API_KEY"),
//	    })
//
//	    engine, err := transcache.New(p,
//	        transcache.WithConfig(transcache.DefaultConfig()),
//	    )
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    defer engine.Close()
//
//	    result := engine.Translate(context.Background(), transcache.TranslationRequest{
//	        Text:           "Hello",
//	        SourceLanguage: "en",
//	        TargetLanguage: "hi",
//	    })
//	    fmt.Println(result.TranslatedText) // नमस्ते
//	}
package transcache
