// Package providertest provides test helpers for the provider package.
package providertest

import (
	"context"
	"sync"

	"github.com/skillminer/memoryd/internal/provider"
)

// MockProvider is a configurable test double for provider.Provider.
// Set the Func fields to control behavior. Unset CompleteFunc panics on call.
// All methods are safe for concurrent use.
type MockProvider struct {
	CompleteFunc    func(ctx context.Context, req provider.CompletionRequest) (provider.CompletionResponse, error)
	HealthCheckFunc func(ctx context.Context) error
	Model           string

	mu            sync.Mutex
	CompleteCalls int
	HealthCalls   int
	LastRequest   provider.CompletionRequest
}

// Complete delegates to CompleteFunc and tracks call count.
func (m *MockProvider) Complete(ctx context.Context, req provider.CompletionRequest) (provider.CompletionResponse, error) {
	m.mu.Lock()
	m.CompleteCalls++
	m.LastRequest = req
	m.mu.Unlock()
	return m.CompleteFunc(ctx, req)
}

// ModelName returns Model, or "mock" when unset.
func (m *MockProvider) ModelName() string {
	if m.Model == "" {
		return "mock"
	}
	return m.Model
}

// HealthCheck delegates to HealthCheckFunc when set.
func (m *MockProvider) HealthCheck(ctx context.Context) error {
	m.mu.Lock()
	m.HealthCalls++
	m.mu.Unlock()
	if m.HealthCheckFunc == nil {
		return nil
	}
	return m.HealthCheckFunc(ctx)
}

// Reply returns a CompleteFunc that always answers content.
func Reply(content string) func(context.Context, provider.CompletionRequest) (provider.CompletionResponse, error) {
	return func(context.Context, provider.CompletionRequest) (provider.CompletionResponse, error) {
		return provider.CompletionResponse{Content: content, FinishReason: provider.FinishReasonStop}, nil
	}
}

// Fail returns a CompleteFunc that always fails with err.
func Fail(err error) func(context.Context, provider.CompletionRequest) (provider.CompletionResponse, error) {
	return func(context.Context, provider.CompletionRequest) (provider.CompletionResponse, error) {
		return provider.CompletionResponse{}, err
	}
}

// Interface guards.
var (
	_ provider.Provider      = (*MockProvider)(nil)
	_ provider.HealthChecker = (*MockProvider)(nil)
)
