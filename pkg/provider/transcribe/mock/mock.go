// Package mock provides a configurable in-memory transcribe.Backend for
// tests.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/dictaflow/pkg/provider/transcribe"
)

// Compile-time assertion that Backend implements transcribe.Backend.
var _ transcribe.Backend = (*Backend)(nil)

// Backend is a mock transcription backend. Override the function fields to
// control behaviour; unset fields fall back to permissive defaults.
type Backend struct {
	// NameValue is returned by Name. Defaults to "mock".
	NameValue string

	// AvailableValue is returned by Available when AvailableFunc is nil.
	AvailableValue bool

	// AvailableFunc overrides Available entirely when set.
	AvailableFunc func() bool

	// TranscribeFunc handles Transcribe calls. When nil, a fixed placeholder
	// transcript is returned.
	TranscribeFunc func(ctx context.Context, req transcribe.Request) (string, error)

	mu    sync.Mutex
	calls []transcribe.Request
}

// Name implements transcribe.Backend.
func (b *Backend) Name() string {
	if b.NameValue == "" {
		return "mock"
	}
	return b.NameValue
}

// Available implements transcribe.Backend.
func (b *Backend) Available() bool {
	if b.AvailableFunc != nil {
		return b.AvailableFunc()
	}
	return b.AvailableValue
}

// Transcribe implements transcribe.Backend and records the request.
func (b *Backend) Transcribe(ctx context.Context, req transcribe.Request) (string, error) {
	b.mu.Lock()
	b.calls = append(b.calls, req)
	b.mu.Unlock()

	if b.TranscribeFunc != nil {
		return b.TranscribeFunc(ctx, req)
	}
	return "placeholder transcript text", nil
}

// Calls returns a copy of all recorded requests.
func (b *Backend) Calls() []transcribe.Request {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]transcribe.Request, len(b.calls))
	copy(out, b.calls)
	return out
}
