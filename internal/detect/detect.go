// Package detect discovers unprocessed audio recordings on removable media
// and validates them before staging.
//
// Removable recorders expose quirks this package absorbs: macOS resource-fork
// shadow files ("._" prefix) mixed into listings, zero-byte artifacts from
// interrupted recordings, and files the recorder wrote but never finished.
package detect

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// bytesPerMinute is the rough size-to-duration proxy used across the
// pipeline: 1 MiB of MP3 per minute (≈128 kbps).
const bytesPerMinute = 1 << 20

// AudioSource describes one candidate recording on the recorder.
type AudioSource struct {
	Path             string
	SizeBytes        int64
	EstimatedMinutes float64
	CreatedAt        time.Time
	ModifiedAt       time.Time
}

// EstimateMinutes converts an MP3 byte size into approximate audio minutes.
func EstimateMinutes(size int64) float64 {
	return float64(size) / bytesPerMinute
}

// Stem returns the filename without directory or extension, used to key
// transcripts and archives.
func (a AudioSource) Stem() string {
	base := filepath.Base(a.Path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Detector scans a recorder mount path for new MP3 recordings.
type Detector struct {
	mountPath string
}

// NewDetector returns a Detector for the given mount path.
func NewDetector(mountPath string) *Detector {
	return &Detector{mountPath: mountPath}
}

// Available reports whether the mount path exists and is readable. A recorder
// that is not plugged in is a normal condition, not an error.
func (d *Detector) Available() bool {
	entries, err := os.ReadDir(d.mountPath)
	_ = entries
	return err == nil
}

// Scan lists non-hidden *.mp3 files on the recorder, excluding macOS
// resource-fork files, and filters out names for which alreadyProcessed
// returns true. Results are sorted by name for deterministic batching.
func (d *Detector) Scan(alreadyProcessed func(filename string) bool) ([]AudioSource, error) {
	entries, err := os.ReadDir(d.mountPath)
	if err != nil {
		return nil, fmt.Errorf("detect: read mount %q: %w", d.mountPath, err)
	}

	var sources []AudioSource
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() {
			continue
		}
		if strings.HasPrefix(name, ".") || strings.HasPrefix(name, "._") {
			continue
		}
		if !strings.EqualFold(filepath.Ext(name), ".mp3") {
			continue
		}
		if alreadyProcessed != nil && alreadyProcessed(name) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return nil, fmt.Errorf("detect: stat %q: %w", name, err)
		}
		sources = append(sources, AudioSource{
			Path:             filepath.Join(d.mountPath, name),
			SizeBytes:        info.Size(),
			EstimatedMinutes: EstimateMinutes(info.Size()),
			ModifiedAt:       info.ModTime(),
		})
	}

	sort.Slice(sources, func(i, j int) bool {
		return sources[i].Path < sources[j].Path
	})
	return sources, nil
}
