package detect

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// shortFileBytesPer2s is the size floor used by the minimum-duration check:
// a recording shorter than the skip threshold weighs less than
// skipSeconds × 33 KiB / 2 s. Files under it were almost certainly
// accidental button presses and are skipped, not failed.
const shortFileBytesPer2s = 33 * 1024

// headerProbeBytes is how much of the file must be readable for the basic
// integrity check.
const headerProbeBytes = 1024

// SkipReason explains why a candidate was excluded by validation.
// Skipped files are deliberately discarded, not errors.
type SkipReason string

const (
	SkipEmpty    SkipReason = "empty"
	SkipTooShort SkipReason = "file too short"
	SkipTooLong  SkipReason = "file too long"
	SkipNotMP3   SkipReason = "not an mp3 file"
	SkipUnread   SkipReason = "unreadable header"
)

// Skipped pairs a source with the reason it was excluded.
type Skipped struct {
	Source AudioSource
	Reason SkipReason
}

// Validator applies the per-file integrity checks from the resource plan.
type Validator struct {
	// SkipShorterThanSeconds marks files below the estimated-duration floor.
	SkipShorterThanSeconds int

	// MaxDurationMinutes marks files above the estimated-duration ceiling.
	MaxDurationMinutes int
}

// Validate partitions candidates into usable sources and skipped ones.
// It returns an error only when a file vanishes or cannot be stat'ed at all;
// per-file quality problems land in skipped.
func (v *Validator) Validate(candidates []AudioSource) (valid []AudioSource, skipped []Skipped, err error) {
	for _, src := range candidates {
		info, statErr := os.Stat(src.Path)
		if statErr != nil {
			return nil, nil, fmt.Errorf("detect: stat %q: %w", src.Path, statErr)
		}
		src.SizeBytes = info.Size()
		src.EstimatedMinutes = EstimateMinutes(info.Size())

		if reason, ok := v.check(src); !ok {
			skipped = append(skipped, Skipped{Source: src, Reason: reason})
			continue
		}
		valid = append(valid, src)
	}
	return valid, skipped, nil
}

// check runs the individual file checks in order of cheapness.
func (v *Validator) check(src AudioSource) (SkipReason, bool) {
	if src.SizeBytes == 0 {
		return SkipEmpty, false
	}
	if !strings.EqualFold(filepath.Ext(src.Path), ".mp3") {
		return SkipNotMP3, false
	}
	if v.SkipShorterThanSeconds > 0 {
		floor := int64(v.SkipShorterThanSeconds) * shortFileBytesPer2s / 2
		if src.SizeBytes < floor {
			return SkipTooShort, false
		}
	}
	if v.MaxDurationMinutes > 0 && src.EstimatedMinutes > float64(v.MaxDurationMinutes) {
		return SkipTooLong, false
	}
	if !headerReadable(src.Path) {
		return SkipUnread, false
	}
	return "", true
}

// headerReadable reports whether the first KiB of the file can be read.
// USB-mounted media sometimes lists files it cannot actually serve.
func headerReadable(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	buf := make([]byte, headerProbeBytes)
	n, err := io.ReadFull(f, buf)
	if err != nil && err != io.ErrUnexpectedEOF {
		return false
	}
	return n > 0
}
