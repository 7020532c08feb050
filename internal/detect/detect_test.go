package detect_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/MrWong99/dictaflow/internal/detect"
)

func writeFile(t *testing.T, dir, name string, size int) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, make([]byte, size), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestScan_FiltersHiddenAndProcessed(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeFile(t, dir, "260826_001.mp3", 100)
	writeFile(t, dir, "260826_002.mp3", 100)
	writeFile(t, dir, "._260826_001.mp3", 100) // macOS resource fork
	writeFile(t, dir, ".hidden.mp3", 100)
	writeFile(t, dir, "notes.txt", 100)

	d := detect.NewDetector(dir)
	sources, err := d.Scan(func(name string) bool {
		return name == "260826_002.mp3"
	})
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(sources) != 1 {
		t.Fatalf("got %d sources, want 1: %+v", len(sources), sources)
	}
	if got := filepath.Base(sources[0].Path); got != "260826_001.mp3" {
		t.Errorf("scanned %q, want 260826_001.mp3", got)
	}
}

func TestScan_MissingMount(t *testing.T) {
	t.Parallel()
	d := detect.NewDetector(filepath.Join(t.TempDir(), "no-such-volume"))
	if d.Available() {
		t.Error("missing mount should not be available")
	}
	if _, err := d.Scan(nil); err == nil {
		t.Error("scan of missing mount should error")
	}
}

func TestValidate_Partitions(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	// 2 s skip threshold → floor is 33 KiB.
	v := &detect.Validator{SkipShorterThanSeconds: 2, MaxDurationMinutes: 10}

	empty := writeFile(t, dir, "empty.mp3", 0)
	tiny := writeFile(t, dir, "tiny.mp3", 1024)
	good := writeFile(t, dir, "good.mp3", 200*1024)
	huge := writeFile(t, dir, "huge.mp3", 11<<20) // ~11 estimated minutes

	candidates := []detect.AudioSource{
		{Path: empty}, {Path: tiny}, {Path: good}, {Path: huge},
	}
	valid, skipped, err := v.Validate(candidates)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if len(valid) != 1 || filepath.Base(valid[0].Path) != "good.mp3" {
		t.Errorf("valid = %+v, want only good.mp3", valid)
	}

	reasons := map[string]detect.SkipReason{}
	for _, s := range skipped {
		reasons[filepath.Base(s.Source.Path)] = s.Reason
	}
	if reasons["empty.mp3"] != detect.SkipEmpty {
		t.Errorf("empty.mp3 reason = %q, want %q", reasons["empty.mp3"], detect.SkipEmpty)
	}
	if reasons["tiny.mp3"] != detect.SkipTooShort {
		t.Errorf("tiny.mp3 reason = %q, want %q", reasons["tiny.mp3"], detect.SkipTooShort)
	}
	if reasons["huge.mp3"] != detect.SkipTooLong {
		t.Errorf("huge.mp3 reason = %q, want %q", reasons["huge.mp3"], detect.SkipTooLong)
	}
}

func TestStem(t *testing.T) {
	t.Parallel()
	src := detect.AudioSource{Path: "/Volumes/IC RECORDER/REC_FILE/FOLDER01/260826_001.mp3"}
	if got := src.Stem(); got != "260826_001" {
		t.Errorf("stem = %q, want 260826_001", got)
	}
}
