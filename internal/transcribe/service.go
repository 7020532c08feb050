package transcribe

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/renameio/v2"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/dictaflow/internal/detect"
	"github.com/MrWong99/dictaflow/internal/observe"
	"github.com/MrWong99/dictaflow/internal/resilience"
	"github.com/MrWong99/dictaflow/internal/staging"
	"github.com/MrWong99/dictaflow/pkg/provider/transcribe"
)

// reuseWindow bounds how old an existing transcript may be and still count
// as the output of the current run.
const reuseWindow = time.Hour

// Result is the per-file outcome of a transcription run.
type Result struct {
	Source         detect.AudioSource
	TranscriptPath string
	Text           string

	// Backend names the chain entry that produced the text, or "" on
	// failure and reuse.
	Backend string

	// Reused is set when a fresh transcript already existed and no
	// backend was consulted.
	Reused bool

	// Elapsed is the wall time spent in backend attempts; zero on reuse.
	Elapsed time.Duration

	Err error
}

// Service runs Stage 3 end to end for a set of detected recordings.
type Service struct {
	backends       *resilience.FallbackGroup[transcribe.Backend]
	staging        *staging.Manager
	transcriptsDir string
	failedDir      string

	planner  Planner
	workers  int
	ceiling  float64
	throttle time.Duration
	noRetry  []string

	monitor ResourceMonitor
	metrics *observe.Metrics
	sleep   throttleSleeper
	now     func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithWorkers sets the parallel worker count within a batch.
func WithWorkers(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithPlanner overrides the batch planner.
func WithPlanner(p Planner) Option {
	return func(s *Service) { s.planner = p }
}

// WithCPUCeiling sets the utilization percentage above which workers pause.
func WithCPUCeiling(pct float64) Option {
	return func(s *Service) { s.ceiling = pct }
}

// WithThrottleSleep sets the pause applied when the CPU ceiling is exceeded.
func WithThrottleSleep(d time.Duration) Option {
	return func(s *Service) { s.throttle = d }
}

// WithNoRetryErrors sets the error substrings that suppress the retry attempt.
func WithNoRetryErrors(substrings []string) Option {
	return func(s *Service) { s.noRetry = substrings }
}

// WithMonitor overrides the host resource probes.
func WithMonitor(m ResourceMonitor) Option {
	return func(s *Service) { s.monitor = m }
}

// WithMetrics overrides the metrics sink.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Service) {
		if m != nil {
			s.metrics = m
		}
	}
}

// NewService wires a transcription service over the given backend chain.
func NewService(backends *resilience.FallbackGroup[transcribe.Backend], stg *staging.Manager, transcriptsDir, failedDir string, opts ...Option) *Service {
	s := &Service{
		backends:       backends,
		staging:        stg,
		transcriptsDir: transcriptsDir,
		failedDir:      failedDir,
		planner:        Planner{BudgetMinutes: 7, MaxFiles: 4},
		workers:        3,
		ceiling:        70,
		throttle:       2 * time.Second,
		monitor:        HostMonitor{},
		metrics:        observe.DefaultMetrics(),
		sleep:          time.Sleep,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run transcribes all files batch by batch. Per-file failures are reported in
// the results, not the error; a non-nil error means the whole stage could not
// start (failed pre-flight) or the context was cancelled.
func (s *Service) Run(ctx context.Context, files []detect.AudioSource) ([]Result, error) {
	if len(files) == 0 {
		return nil, nil
	}
	if err := os.MkdirAll(s.transcriptsDir, 0o755); err != nil {
		return nil, fmt.Errorf("transcribe: create transcripts dir: %w", err)
	}
	if err := s.preflight(files); err != nil {
		return nil, err
	}

	batches := s.planner.Plan(files)
	slog.Info("transcription plan ready",
		"files", len(files),
		"batches", len(batches),
		"workers", s.workers,
		"chain", s.backends.Names())

	var results []Result
	for i, batch := range batches {
		if err := ctx.Err(); err != nil {
			return results, fmt.Errorf("transcribe: batch %d: %w", i+1, err)
		}
		slog.Info("starting batch",
			"batch", i+1,
			"of", len(batches),
			"files", len(batch.Files),
			"minutes", fmt.Sprintf("%.1f", batch.Minutes()))

		// Results keep planner order: each worker writes its own slot.
		batchResults := make([]Result, len(batch.Files))
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(s.workers)
		for j, f := range batch.Files {
			j, f := j, f
			g.Go(func() error {
				s.metrics.AddWorkers(gctx, 1)
				defer s.metrics.AddWorkers(gctx, -1)
				batchResults[j] = s.transcribeFile(gctx, f)
				s.maybeThrottle()
				return nil
			})
		}
		// Worker funcs never return errors; Wait only surfaces ctx
		// cancellation through gctx inside transcribeFile.
		_ = g.Wait()
		results = append(results, batchResults...)
	}
	return results, nil
}

// maybeThrottle samples CPU after a completed file and, above the ceiling,
// holds this worker's pool slot for the configured pause.
func (s *Service) maybeThrottle() {
	if s.ceiling <= 0 {
		return
	}
	pct, err := s.monitor.CPUPercent()
	if err != nil {
		return
	}
	if pct > s.ceiling {
		slog.Debug("cpu above ceiling, throttling worker", "cpu", fmt.Sprintf("%.0f%%", pct))
		s.sleep(s.throttle)
	}
}

func (s *Service) transcribeFile(ctx context.Context, src detect.AudioSource) Result {
	res := Result{Source: src}
	res.TranscriptPath = filepath.Join(s.transcriptsDir, src.Stem()+".txt")

	if text, ok := s.reusable(res.TranscriptPath); ok {
		slog.Info("reusing fresh transcript", "file", filepath.Base(src.Path))
		res.Text = text
		res.Reused = true
		return res
	}

	staged, err := s.staging.Stage(src.Path)
	if err != nil {
		res.Err = fmt.Errorf("transcribe: stage %q: %w", src.Path, err)
		return res
	}

	start := time.Now()
	text, backend, err := s.attempt(ctx, staged, src)
	if err != nil && s.retryable(err) {
		slog.Warn("transcription failed, retrying once",
			"file", filepath.Base(src.Path), "error", err)
		text, backend, err = s.attempt(ctx, staged, src)
	}
	res.Elapsed = time.Since(start)
	if err != nil {
		res.Err = err
		s.routeToFailed(src.Path, staged)
		return res
	}

	if err := renameio.WriteFile(res.TranscriptPath, []byte(text), 0o644); err != nil {
		res.Err = fmt.Errorf("transcribe: write transcript %q: %w", res.TranscriptPath, err)
		return res
	}
	res.Text = text
	res.Backend = backend
	return res
}

// attempt runs one pass over the full backend chain.
func (s *Service) attempt(ctx context.Context, stagedPath string, src detect.AudioSource) (string, string, error) {
	req := transcribe.Request{
		AudioPath:        stagedPath,
		EstimatedSeconds: src.EstimatedMinutes * 60,
	}
	return resilience.ExecuteWithResult(s.backends, func(b transcribe.Backend) (string, error) {
		if !b.Available() {
			return "", fmt.Errorf("backend %q not available", b.Name())
		}
		return b.Transcribe(ctx, req)
	})
}

// retryable reports whether the retry attempt should run. Errors carrying a
// configured no-retry marker (permission problems, transcripts rejected as
// too short) will fail identically the second time.
func (s *Service) retryable(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, marker := range s.noRetry {
		if strings.Contains(msg, strings.ToLower(marker)) {
			return false
		}
	}
	return true
}

// reusable reports whether an existing transcript is recent and substantial
// enough to stand in for a fresh transcription of the same recording.
func (s *Service) reusable(path string) (string, bool) {
	info, err := os.Stat(path)
	if err != nil {
		return "", false
	}
	if s.now().Sub(info.ModTime()) >= reuseWindow {
		return "", false
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", false
	}
	text := strings.TrimSpace(string(data))
	if len(text) < transcribe.MinTranscriptChars {
		return "", false
	}
	return text, true
}

// routeToFailed preserves a recording that could not be transcribed and
// takes it off the recorder, so the next run does not detect and fail on
// the same file again. The staged copy becomes the preserved file (the
// failed dir is local, the recorder usually is not); the recorder original
// then goes through the safe-removal chain.
func (s *Service) routeToFailed(srcPath, stagedPath string) {
	dir := filepath.Join(s.failedDir, "failed_recordings")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		slog.Warn("cannot create failed-recordings dir", "error", err)
		return
	}
	dst := filepath.Join(dir, filepath.Base(stagedPath))
	if err := os.Rename(stagedPath, dst); err != nil {
		slog.Warn("cannot move staged file to failed-recordings",
			"file", stagedPath, "error", err)
		return
	}
	if !s.staging.SafeDelete(srcPath) {
		slog.Warn("failed recording preserved but source still on recorder", "path", srcPath)
	}
}
