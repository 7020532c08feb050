// Package transcribe defines the Backend interface for batch transcription
// providers.
//
// A backend turns one finished audio file into text. Unlike a streaming STT
// session, the recorder workflow is entirely file-based: audio arrives as
// complete MP3 files on removable media, so the interface is a single
// blocking call per file. Implementations must be safe for concurrent use —
// the worker pool invokes one backend from several goroutines at once.
package transcribe

import "context"

// MinTranscriptChars is the floor below which a backend result is not a
// usable transcript. Shared by all implementations.
const MinTranscriptChars = 10

// Request carries one file to transcribe plus the duration estimate backends
// use to size their own timeouts.
type Request struct {
	// AudioPath is the local (staged) path of the file.
	AudioPath string

	// EstimatedSeconds is the rough audio duration derived from file size.
	// Backends with per-file subprocess budgets scale on it.
	EstimatedSeconds float64
}

// Backend is the abstraction over any transcription implementation.
type Backend interface {
	// Transcribe converts the audio file to UTF-8 text. Success requires
	// non-empty trimmed text of at least MinTranscriptChars characters;
	// implementations return an error otherwise.
	Transcribe(ctx context.Context, req Request) (string, error)

	// Available reports whether the backend can currently serve requests
	// (credentials present, CLI installed). Checked once at service init.
	Available() bool

	// Name returns a short identifier used in logs and session diagnostics.
	Name() string
}
