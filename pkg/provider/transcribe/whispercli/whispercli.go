// Package whispercli provides a local transcription backend that spawns the
// whisper command-line tool for each file.
//
// Local inference is slow (roughly 90–120 s for a 3-minute file on CPU) but
// needs no network or quota, which makes it the fallback of choice when the
// cloud backend is rate-limited or unreachable. The per-file subprocess
// budget scales with audio length so one long recording cannot look like a
// hang: max(20 min, 0.5 × estimated seconds).
package whispercli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/MrWong99/dictaflow/pkg/provider/transcribe"
)

const (
	defaultBinary   = "whisper"
	defaultModel    = "base"
	defaultLanguage = "en"

	// minSubprocessBudget is the floor of the dynamic per-file timeout.
	minSubprocessBudget = 20 * time.Minute
)

// Compile-time assertion that Backend implements transcribe.Backend.
var _ transcribe.Backend = (*Backend)(nil)

// Option is a functional option for configuring a Backend.
type Option func(*Backend)

// WithBinary sets the whisper executable name or path. Defaults to "whisper".
func WithBinary(binary string) Option {
	return func(b *Backend) {
		b.binary = binary
	}
}

// WithModel sets the whisper model name (e.g., "base", "small").
func WithModel(model string) Option {
	return func(b *Backend) {
		b.model = model
	}
}

// WithLanguage sets the transcription language code. Defaults to "en".
func WithLanguage(lang string) Option {
	return func(b *Backend) {
		b.language = lang
	}
}

// WithOutputDir sets the directory whisper writes its .txt output into.
// Defaults to the directory of the audio file.
func WithOutputDir(dir string) Option {
	return func(b *Backend) {
		b.outputDir = dir
	}
}

// Backend implements transcribe.Backend by spawning the whisper CLI.
type Backend struct {
	binary    string
	model     string
	language  string
	outputDir string
}

// New creates a local CLI Backend.
func New(opts ...Option) *Backend {
	b := &Backend{
		binary:   defaultBinary,
		model:    defaultModel,
		language: defaultLanguage,
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Name implements transcribe.Backend.
func (b *Backend) Name() string { return "local" }

// Available reports whether the whisper executable is on PATH.
func (b *Backend) Available() bool {
	_, err := exec.LookPath(b.binary)
	return err == nil
}

// Transcribe runs the whisper CLI on the audio file and reads the produced
// <stem>.txt. Success requires exit 0 and a transcript of at least
// transcribe.MinTranscriptChars characters.
func (b *Backend) Transcribe(ctx context.Context, req transcribe.Request) (string, error) {
	outDir := b.outputDir
	if outDir == "" {
		outDir = filepath.Dir(req.AudioPath)
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", fmt.Errorf("whispercli: create output dir: %w", err)
	}

	budget := minSubprocessBudget
	if dynamic := time.Duration(req.EstimatedSeconds/2) * time.Second; dynamic > budget {
		budget = dynamic
	}
	runCtx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	cmd := exec.CommandContext(runCtx, b.binary,
		req.AudioPath,
		"--model", b.model,
		"--language", b.language,
		"--output_dir", outDir,
		"--output_format", "txt",
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if runCtx.Err() == context.DeadlineExceeded {
			return "", fmt.Errorf("whispercli: timeout after %s", budget)
		}
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return "", fmt.Errorf("whispercli: %s", msg)
	}

	stem := strings.TrimSuffix(filepath.Base(req.AudioPath), filepath.Ext(req.AudioPath))
	outPath := filepath.Join(outDir, stem+".txt")
	data, err := os.ReadFile(outPath)
	if err != nil {
		return "", fmt.Errorf("whispercli: output file missing: %w", err)
	}

	text := strings.TrimSpace(string(data))
	if len(text) < transcribe.MinTranscriptChars {
		return "", errors.New("whispercli: transcript too short")
	}
	return text, nil
}
