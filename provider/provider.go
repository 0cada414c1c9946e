// Package provider contains translation backends for the engine.
package provider

import "github.com/ZaguanLabs/transcache"

// Provider is the interface for remote translation backends.
// This is an alias to the main package interface for convenience.
type Provider = transcache.Provider

// Request is an alias to the main package type.
type Request = transcache.ProviderRequest

// Response is an alias to the main package type.
type Response = transcache.ProviderResponse

// BatchRequest is an alias to the main package type.
type BatchRequest = transcache.BatchProviderRequest

// BatchResponse is an alias to the main package type.
type BatchResponse = transcache.BatchProviderResponse

// BatchItem is an alias to the main package type.
type BatchItem = transcache.BatchItem
