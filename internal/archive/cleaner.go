package archive

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/MrWong99/dictaflow/internal/staging"
)

// Cleaner deletes sources whose archive copy has been verified, removes
// consumed transcripts, and prunes archives past retention.
type Cleaner struct {
	staging       *staging.Manager
	retentionDays int
	now           func() time.Time
}

// CleanerOption configures a Cleaner.
type CleanerOption func(*Cleaner)

// WithCleanerClock overrides the time source used for retention.
func WithCleanerClock(now func() time.Time) CleanerOption {
	return func(c *Cleaner) { c.now = now }
}

// NewCleaner builds a cleaner. retentionDays bounds how long archive
// folders are kept.
func NewCleaner(stg *staging.Manager, retentionDays int, opts ...CleanerOption) *Cleaner {
	c := &Cleaner{staging: stg, retentionDays: retentionDays, now: time.Now}
	if c.retentionDays <= 0 {
		c.retentionDays = 7
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CleanSource deletes one source recording, but only when its archived copy
// exists and is size-equal. Losing audio is worse than leaving it behind.
func (c *Cleaner) CleanSource(srcPath, archivedPath string) error {
	if !Verified(srcPath, archivedPath) {
		return fmt.Errorf("archive: refusing to delete %q: archived copy missing or size mismatch", srcPath)
	}
	if !c.staging.SafeDelete(srcPath) {
		return fmt.Errorf("archive: cannot delete source %q", srcPath)
	}
	return nil
}

// RemoveTranscript deletes a consumed transcript file. Missing files are
// fine; the transcript may have been reused from a prior session.
func (c *Cleaner) RemoveTranscript(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("archive: remove transcript %q: %w", path, err)
	}
	return nil
}

// WipeStaging removes all staged copies at end of session.
func (c *Cleaner) WipeStaging() error {
	return c.staging.Wipe()
}

// PurgeOldArchives removes dated archive folders older than the retention
// window. Folders with unparseable names are left alone.
func (c *Cleaner) PurgeOldArchives(root string) error {
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("archive: read archive root %q: %w", root, err)
	}

	cutoff := c.now().AddDate(0, 0, -c.retentionDays)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		day, err := time.Parse("2006-01-02", entry.Name())
		if err != nil {
			continue
		}
		if day.Before(cutoff) {
			path := filepath.Join(root, entry.Name())
			if err := os.RemoveAll(path); err != nil {
				slog.Warn("cannot purge old archive folder", "path", path, "error", err)
				continue
			}
			slog.Info("purged archive folder past retention", "path", path)
		}
	}
	return nil
}
