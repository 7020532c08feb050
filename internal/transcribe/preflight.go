package transcribe

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/MrWong99/dictaflow/internal/detect"
)

const (
	// diskHeadroomBytes is required free space beyond the staged batch size.
	diskHeadroomBytes = 100 << 20

	// minFreeMemoryBytes is the RAM floor for running a transcription batch.
	minFreeMemoryBytes = 1 << 30
)

// preflight verifies the host can take the whole workload before any file is
// staged. A failing probe (as opposed to a failing check) is logged and
// skipped rather than blocking the run.
func (s *Service) preflight(files []detect.AudioSource) error {
	if s.backends.Len() == 0 {
		return errors.New("transcribe: no transcription backend available")
	}

	var errs []error

	var totalBytes uint64
	for _, f := range files {
		totalBytes += uint64(f.SizeBytes)
	}
	free, err := s.monitor.FreeDiskBytes(s.transcriptsDir)
	if err != nil {
		slog.Warn("disk probe failed, skipping space check", "error", err)
	} else if need := totalBytes + diskHeadroomBytes; free < need {
		errs = append(errs, fmt.Errorf("transcribe: insufficient disk space: need %d bytes, have %d", need, free))
	}

	avail, err := s.monitor.FreeMemoryBytes()
	if err != nil {
		slog.Warn("memory probe failed, skipping memory check", "error", err)
	} else if avail < minFreeMemoryBytes {
		errs = append(errs, fmt.Errorf("transcribe: insufficient free memory: need %d bytes, have %d", minFreeMemoryBytes, avail))
	}

	return errors.Join(errs...)
}
