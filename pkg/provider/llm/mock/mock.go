// Package mock provides a test double for the llm.Provider interface.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/dictaflow/pkg/provider/llm"
)

// Compile-time assertion that Provider implements llm.Provider.
var _ llm.Provider = (*Provider)(nil)

// Provider is a mock LLM provider. Override the function fields to control
// behaviour; unset fields fall back to permissive defaults.
type Provider struct {
	// NameValue is returned by Name. Defaults to "mock".
	NameValue string

	// CompleteFunc handles Complete calls. When nil, a fixed placeholder
	// response is returned.
	CompleteFunc func(ctx context.Context, req llm.Request) (*llm.Response, error)

	// CapabilitiesValue is returned by Capabilities.
	CapabilitiesValue llm.Capabilities

	mu    sync.Mutex
	calls []llm.Request
}

// Name implements llm.Provider.
func (p *Provider) Name() string {
	if p.NameValue == "" {
		return "mock"
	}
	return p.NameValue
}

// Complete implements llm.Provider and records the request.
func (p *Provider) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	p.mu.Lock()
	p.calls = append(p.calls, req)
	p.mu.Unlock()

	if p.CompleteFunc != nil {
		return p.CompleteFunc(ctx, req)
	}
	return &llm.Response{Content: "placeholder completion"}, nil
}

// CountTokens implements llm.Provider with the same rough heuristic real
// providers use.
func (p *Provider) CountTokens(text string) (int, error) {
	return (len(text) + 3) / 4, nil
}

// Capabilities implements llm.Provider.
func (p *Provider) Capabilities() llm.Capabilities {
	if p.CapabilitiesValue == (llm.Capabilities{}) {
		return llm.Capabilities{ContextWindow: 16_385, MaxOutputTokens: 4_096}
	}
	return p.CapabilitiesValue
}

// Calls returns a copy of all recorded requests.
func (p *Provider) Calls() []llm.Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]llm.Request, len(p.calls))
	copy(out, p.calls)
	return out
}
