// Package provider defines the minimal LLM completion contract memoryd needs
// for summarization and entity extraction.
package provider

import "context"

// Provider is the interface for communicating with an LLM.
// Concrete implementations live under modules/provider and register
// themselves as the "provider.llm" service.
type Provider interface {
	// Complete sends a completion request and returns the full response.
	Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error)

	// ModelName returns the identifier of the underlying model.
	ModelName() string
}

// HealthChecker is an optional interface for providers that can be probed
// cheaply, used by the gateway health endpoint.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// ServiceName is the service under which the configured provider is published.
const ServiceName = "provider.llm"
