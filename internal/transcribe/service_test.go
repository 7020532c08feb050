package transcribe

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/MrWong99/dictaflow/internal/detect"
	"github.com/MrWong99/dictaflow/internal/observe"
	"github.com/MrWong99/dictaflow/internal/resilience"
	"github.com/MrWong99/dictaflow/internal/staging"
	"github.com/MrWong99/dictaflow/pkg/provider/transcribe"
	"github.com/MrWong99/dictaflow/pkg/provider/transcribe/mock"
)

func writeRecording(t *testing.T, dir, name string, size int) detect.AudioSource {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, make([]byte, size), 0o644); err != nil {
		t.Fatalf("write recording: %v", err)
	}
	return detect.AudioSource{
		Path:             path,
		SizeBytes:        int64(size),
		EstimatedMinutes: float64(size) / (1 << 20),
	}
}

func chainOf(backends ...transcribe.Backend) *resilience.FallbackGroup[transcribe.Backend] {
	fg := resilience.NewFallbackGroup[transcribe.Backend](resilience.FallbackConfig{})
	for _, b := range backends {
		fg.Add(b.Name(), b)
	}
	return fg
}

func newTestService(t *testing.T, fg *resilience.FallbackGroup[transcribe.Backend], opts ...Option) *Service {
	t.Helper()
	root := t.TempDir()
	base := []Option{WithMonitor(&stubMonitor{})}
	s := NewService(fg,
		staging.NewManager(filepath.Join(root, "staging")),
		filepath.Join(root, "transcripts"),
		filepath.Join(root, "failed"),
		append(base, opts...)...)
	return s
}

func TestRunWritesTranscripts(t *testing.T) {
	t.Parallel()

	backend := &mock.Backend{NameValue: "cloud", AvailableValue: true,
		TranscribeFunc: func(context.Context, transcribe.Request) (string, error) {
			return "remember to call the plumber about the kitchen sink", nil
		}}
	s := newTestService(t, chainOf(backend))

	srcDir := t.TempDir()
	files := []detect.AudioSource{
		writeRecording(t, srcDir, "REC001.mp3", 2048),
		writeRecording(t, srcDir, "REC002.mp3", 4096),
	}

	results, err := s.Run(context.Background(), files)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	for _, r := range results {
		if r.Err != nil {
			t.Fatalf("result for %s: %v", r.Source.Path, r.Err)
		}
		if r.Backend != "cloud" {
			t.Errorf("backend = %q, want cloud", r.Backend)
		}
		if r.Elapsed <= 0 {
			t.Errorf("elapsed not recorded for %s", r.Source.Path)
		}
		data, err := os.ReadFile(r.TranscriptPath)
		if err != nil {
			t.Fatalf("transcript not written: %v", err)
		}
		if string(data) != r.Text {
			t.Errorf("transcript file and result text differ")
		}
	}
}

func TestRunFallsBackToSecondBackend(t *testing.T) {
	t.Parallel()

	primary := &mock.Backend{NameValue: "cloud", AvailableValue: true,
		TranscribeFunc: func(context.Context, transcribe.Request) (string, error) {
			return "", errors.New("groq: upload failed: connection refused")
		}}
	secondary := &mock.Backend{NameValue: "local", AvailableValue: true,
		TranscribeFunc: func(context.Context, transcribe.Request) (string, error) {
			return "buy groceries for the weekend trip", nil
		}}
	s := newTestService(t, chainOf(primary, secondary))

	files := []detect.AudioSource{writeRecording(t, t.TempDir(), "REC003.mp3", 1024)}
	results, err := s.Run(context.Background(), files)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if results[0].Err != nil {
		t.Fatalf("result error: %v", results[0].Err)
	}
	if results[0].Backend != "local" {
		t.Errorf("backend = %q, want local", results[0].Backend)
	}
}

func TestRunRetriesTransientFailureOnce(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	backend := &mock.Backend{NameValue: "cloud", AvailableValue: true,
		TranscribeFunc: func(context.Context, transcribe.Request) (string, error) {
			if calls.Add(1) == 1 {
				return "", errors.New("groq: transcription request: network timeout")
			}
			return "schedule the dentist appointment for next week", nil
		}}
	s := newTestService(t, chainOf(backend))

	files := []detect.AudioSource{writeRecording(t, t.TempDir(), "REC004.mp3", 1024)}
	results, err := s.Run(context.Background(), files)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if results[0].Err != nil {
		t.Fatalf("result error after retry: %v", results[0].Err)
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("backend called %d times, want 2", got)
	}
}

func TestRunSkipsRetryForMarkedErrors(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	backend := &mock.Backend{NameValue: "cloud", AvailableValue: true,
		TranscribeFunc: func(context.Context, transcribe.Request) (string, error) {
			calls.Add(1)
			return "", errors.New("groq: transcript too short")
		}}
	s := newTestService(t, chainOf(backend),
		WithNoRetryErrors([]string{"permission", "transcript too short"}))

	files := []detect.AudioSource{writeRecording(t, t.TempDir(), "REC005.mp3", 1024)}
	results, err := s.Run(context.Background(), files)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if results[0].Err == nil {
		t.Fatal("expected a per-file error")
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("backend called %d times, want 1 (no retry)", got)
	}
}

func TestRunRoutesFailuresToFailedDir(t *testing.T) {
	t.Parallel()

	backend := &mock.Backend{NameValue: "cloud", AvailableValue: true,
		TranscribeFunc: func(context.Context, transcribe.Request) (string, error) {
			return "", errors.New("groq: permission denied reading file")
		}}
	s := newTestService(t, chainOf(backend),
		WithNoRetryErrors([]string{"permission"}))

	files := []detect.AudioSource{writeRecording(t, t.TempDir(), "REC006.mp3", 1024)}
	if _, err := s.Run(context.Background(), files); err != nil {
		t.Fatalf("Run: %v", err)
	}

	moved := filepath.Join(s.failedDir, "failed_recordings", "REC006.mp3")
	if _, err := os.Stat(moved); err != nil {
		t.Fatalf("failed recording not routed: %v", err)
	}
	// The source must come off the recorder or the next run re-detects it
	// and fails on it again.
	if _, err := os.Stat(files[0].Path); !os.IsNotExist(err) {
		t.Fatalf("recorder original still present: %v", err)
	}
	// Nothing stays behind in staging either.
	if _, err := os.Stat(filepath.Join(s.staging.Dir(), "REC006.mp3")); !os.IsNotExist(err) {
		t.Fatalf("staged copy still present: %v", err)
	}
}

func TestRunKeepsPlannerOrder(t *testing.T) {
	t.Parallel()

	backend := &mock.Backend{NameValue: "cloud", AvailableValue: true,
		TranscribeFunc: func(context.Context, transcribe.Request) (string, error) {
			return "one more errand to remember for later this week", nil
		}}
	s := newTestService(t, chainOf(backend),
		WithPlanner(Planner{BudgetMinutes: 7, MaxFiles: 4}),
		WithWorkers(3))

	srcDir := t.TempDir()
	files := []detect.AudioSource{
		writeRecording(t, srcDir, "REC_A.mp3", 1<<20),
		writeRecording(t, srcDir, "REC_B.mp3", 6<<20),
		writeRecording(t, srcDir, "REC_C.mp3", 3<<20),
		writeRecording(t, srcDir, "REC_D.mp3", 2<<20),
	}

	results, err := s.Run(context.Background(), files)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	// Planner order: batch one is [6 1], batch two [3 2].
	wantMinutes := []float64{6, 1, 3, 2}
	if len(results) != len(wantMinutes) {
		t.Fatalf("got %d results, want %d", len(results), len(wantMinutes))
	}
	for i, want := range wantMinutes {
		if got := results[i].Source.EstimatedMinutes; got != want {
			t.Errorf("result %d minutes = %v, want %v", i, got, want)
		}
	}
}

func TestRunReusesFreshTranscript(t *testing.T) {
	t.Parallel()

	backend := &mock.Backend{NameValue: "cloud", AvailableValue: true}
	s := newTestService(t, chainOf(backend))

	src := writeRecording(t, t.TempDir(), "REC007.mp3", 1024)
	if err := os.MkdirAll(s.transcriptsDir, 0o755); err != nil {
		t.Fatal(err)
	}
	existing := filepath.Join(s.transcriptsDir, "REC007.txt")
	if err := os.WriteFile(existing, []byte("an earlier run already produced this"), 0o644); err != nil {
		t.Fatal(err)
	}

	results, err := s.Run(context.Background(), []detect.AudioSource{src})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !results[0].Reused {
		t.Fatal("expected transcript reuse")
	}
	if n := len(backend.Calls()); n != 0 {
		t.Errorf("backend consulted %d times despite fresh transcript", n)
	}
}

func TestRunIgnoresStaleTranscript(t *testing.T) {
	t.Parallel()

	backend := &mock.Backend{NameValue: "cloud", AvailableValue: true,
		TranscribeFunc: func(context.Context, transcribe.Request) (string, error) {
			return "fresh transcription of an old recording session", nil
		}}
	s := newTestService(t, chainOf(backend))
	// Pretend the run happens two hours after the transcript was written.
	s.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	src := writeRecording(t, t.TempDir(), "REC008.mp3", 1024)
	if err := os.MkdirAll(s.transcriptsDir, 0o755); err != nil {
		t.Fatal(err)
	}
	existing := filepath.Join(s.transcriptsDir, "REC008.txt")
	if err := os.WriteFile(existing, []byte("stale content from a previous day entirely"), 0o644); err != nil {
		t.Fatal(err)
	}

	results, err := s.Run(context.Background(), []detect.AudioSource{src})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if results[0].Reused {
		t.Fatal("stale transcript must not be reused")
	}
	if n := len(backend.Calls()); n != 1 {
		t.Errorf("backend consulted %d times, want 1", n)
	}
}

func TestRunFailsPreflightWithoutBackends(t *testing.T) {
	t.Parallel()

	s := newTestService(t, chainOf())
	files := []detect.AudioSource{writeRecording(t, t.TempDir(), "REC009.mp3", 1024)}

	_, err := s.Run(context.Background(), files)
	if err == nil || !strings.Contains(err.Error(), "no transcription backend") {
		t.Fatalf("err = %v, want backend pre-flight failure", err)
	}
}

func TestRunFailsPreflightOnLowDisk(t *testing.T) {
	t.Parallel()

	backend := &mock.Backend{NameValue: "cloud", AvailableValue: true}
	monitor := &stubMonitor{
		diskFunc: func(string) (uint64, error) { return 1 << 20, nil },
	}
	s := newTestService(t, chainOf(backend), WithMonitor(monitor))

	files := []detect.AudioSource{writeRecording(t, t.TempDir(), "REC010.mp3", 1024)}
	_, err := s.Run(context.Background(), files)
	if err == nil || !strings.Contains(err.Error(), "insufficient disk space") {
		t.Fatalf("err = %v, want disk pre-flight failure", err)
	}
}

func TestRunTracksWorkerGauge(t *testing.T) {
	t.Parallel()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	backend := &mock.Backend{NameValue: "cloud", AvailableValue: true,
		TranscribeFunc: func(context.Context, transcribe.Request) (string, error) {
			return "pick up the parcel from the post office", nil
		}}
	s := newTestService(t, chainOf(backend), WithMetrics(m))

	srcDir := t.TempDir()
	files := []detect.AudioSource{
		writeRecording(t, srcDir, "REC012.mp3", 1024),
		writeRecording(t, srcDir, "REC013.mp3", 1024),
	}
	if _, err := s.Run(context.Background(), files); err != nil {
		t.Fatalf("Run: %v", err)
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	for _, sm := range rm.ScopeMetrics {
		for _, met := range sm.Metrics {
			if met.Name != "dictaflow.transcription.workers" {
				continue
			}
			sum, ok := met.Data.(metricdata.Sum[int64])
			if !ok || len(sum.DataPoints) == 0 {
				t.Fatal("worker gauge has no data points")
			}
			// Every +1 on entry is balanced by -1 on exit.
			if got := sum.DataPoints[0].Value; got != 0 {
				t.Errorf("worker gauge = %d after run, want 0", got)
			}
			return
		}
	}
	t.Fatal("worker gauge never recorded")
}

func TestThrottlePausesAboveCeiling(t *testing.T) {
	t.Parallel()

	backend := &mock.Backend{NameValue: "cloud", AvailableValue: true,
		TranscribeFunc: func(context.Context, transcribe.Request) (string, error) {
			return "short task note about watering the plants", nil
		}}
	monitor := &stubMonitor{
		cpuFunc: func() (float64, error) { return 92, nil },
	}
	s := newTestService(t, chainOf(backend),
		WithMonitor(monitor),
		WithCPUCeiling(70),
		WithThrottleSleep(2*time.Second))

	var slept atomic.Int64
	s.sleep = func(d time.Duration) { slept.Add(int64(d)) }

	files := []detect.AudioSource{writeRecording(t, t.TempDir(), "REC011.mp3", 1024)}
	if _, err := s.Run(context.Background(), files); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := time.Duration(slept.Load()); got != 2*time.Second {
		t.Errorf("slept %v, want 2s", got)
	}
}
