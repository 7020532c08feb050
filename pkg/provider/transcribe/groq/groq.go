// Package groq provides a cloud transcription backend speaking the
// Whisper-class audio transcription HTTP API (multipart upload, plain-text
// response). The default endpoint is the Groq-hosted API; any
// OpenAI-compatible /audio/transcriptions endpoint works via WithBaseURL.
package groq

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/MrWong99/dictaflow/pkg/provider/transcribe"
)

const (
	defaultBaseURL = "https://api.groq.com/openai/v1"
	defaultModel   = "whisper-large-v3"
	defaultTimeout = 30 * time.Second
)

// Compile-time assertion that Backend implements transcribe.Backend.
var _ transcribe.Backend = (*Backend)(nil)

// Option is a functional option for configuring a Backend.
type Option func(*Backend)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(url string) Option {
	return func(b *Backend) {
		b.baseURL = strings.TrimRight(url, "/")
	}
}

// WithModel sets the transcription model identifier. Defaults to
// "whisper-large-v3".
func WithModel(model string) Option {
	return func(b *Backend) {
		b.model = model
	}
}

// WithTimeout sets the per-request HTTP timeout. Defaults to 30 s.
func WithTimeout(d time.Duration) Option {
	return func(b *Backend) {
		b.httpClient.Timeout = d
	}
}

// Backend implements transcribe.Backend against a hosted Whisper-class API.
type Backend struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
}

// New creates a cloud Backend. An empty apiKey is allowed — the backend
// simply reports itself unavailable, which lets the auto mode fall through
// to the local CLI.
func New(apiKey string, opts ...Option) *Backend {
	b := &Backend{
		apiKey:     apiKey,
		baseURL:    defaultBaseURL,
		model:      defaultModel,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Name implements transcribe.Backend.
func (b *Backend) Name() string { return "cloud" }

// Available implements transcribe.Backend. The cloud backend is available
// whenever an API key is configured.
func (b *Backend) Available() bool { return b.apiKey != "" }

// Transcribe uploads the audio file as multipart/form-data and returns the
// plain-text transcription.
func (b *Backend) Transcribe(ctx context.Context, req transcribe.Request) (string, error) {
	f, err := os.Open(req.AudioPath)
	if err != nil {
		return "", fmt.Errorf("groq: open audio: %w", err)
	}
	defer f.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fw, err := mw.CreateFormFile("file", filepath.Base(req.AudioPath))
	if err != nil {
		return "", fmt.Errorf("groq: create form file: %w", err)
	}
	if _, err := io.Copy(fw, f); err != nil {
		return "", fmt.Errorf("groq: read audio: %w", err)
	}
	if err := mw.WriteField("model", b.model); err != nil {
		return "", fmt.Errorf("groq: write model field: %w", err)
	}
	if err := mw.WriteField("response_format", "text"); err != nil {
		return "", fmt.Errorf("groq: write response_format field: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("groq: close multipart writer: %w", err)
	}

	endpoint := b.baseURL + "/audio/transcriptions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &body)
	if err != nil {
		return "", fmt.Errorf("groq: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", mw.FormDataContentType())
	httpReq.Header.Set("Authorization", "Bearer "+b.apiKey)

	resp, err := b.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("groq: http request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("groq: read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return "", fmt.Errorf("groq: rate limit (HTTP 429): %s", strings.TrimSpace(string(data)))
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return "", fmt.Errorf("groq: auth error (HTTP %d)", resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return "", fmt.Errorf("groq: server returned HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	text := strings.TrimSpace(string(data))
	if len(text) < transcribe.MinTranscriptChars {
		return "", errors.New("groq: transcript too short")
	}
	return text, nil
}
