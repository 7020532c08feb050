// Package archive moves verified recordings into dated session folders and
// cleans up sources afterwards.
package archive

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// Archiver copies verified source audio into the dated archive layout
// Archives/YYYY-MM-DD/<session_id>/.
type Archiver struct {
	root string
	now  func() time.Time
}

// ArchiverOption configures an Archiver.
type ArchiverOption func(*Archiver)

// WithClock overrides the time source used for folder dates.
func WithClock(now func() time.Time) ArchiverOption {
	return func(a *Archiver) { a.now = now }
}

// NewArchiver creates an archiver rooted at the given directory.
func NewArchiver(root string, opts ...ArchiverOption) *Archiver {
	a := &Archiver{root: root, now: time.Now}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// TargetDir returns the session's archive folder.
func (a *Archiver) TargetDir(sessionID string) string {
	return filepath.Join(a.root, a.now().Format("2006-01-02"), sessionID)
}

// Archive copies a source recording into the session folder under
// <stem>_<session_id>.mp3 and verifies the copy byte-for-byte in size.
// On verification failure the partial copy is removed and the source must
// not be deleted.
func (a *Archiver) Archive(srcPath, sessionID string) (string, error) {
	srcInfo, err := os.Stat(srcPath)
	if err != nil {
		return "", fmt.Errorf("archive: stat source %q: %w", srcPath, err)
	}

	dir := a.TargetDir(sessionID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("archive: create %q: %w", dir, err)
	}

	stem := strings.TrimSuffix(filepath.Base(srcPath), filepath.Ext(srcPath))
	dst := filepath.Join(dir, fmt.Sprintf("%s_%s.mp3", stem, sessionID))

	if err := copyWithFallback(srcPath, dst); err != nil {
		return "", fmt.Errorf("archive: copy %q: %w", srcPath, err)
	}

	dstInfo, err := os.Stat(dst)
	if err != nil {
		return "", fmt.Errorf("archive: stat copy %q: %w", dst, err)
	}
	if dstInfo.Size() != srcInfo.Size() {
		_ = os.Remove(dst)
		return "", fmt.Errorf("archive: size mismatch for %q: source %d bytes, copy %d bytes",
			srcPath, srcInfo.Size(), dstInfo.Size())
	}
	return dst, nil
}

// Verified reports whether an archived copy exists and matches the source
// size exactly. The cleaner calls this immediately before deleting a source.
func Verified(srcPath, archivedPath string) bool {
	srcInfo, err := os.Stat(srcPath)
	if err != nil {
		return false
	}
	dstInfo, err := os.Stat(archivedPath)
	if err != nil {
		return false
	}
	return srcInfo.Size() == dstInfo.Size()
}

// copyWithFallback tries platform copy with metadata, then without, then a
// raw byte copy. Removable media regularly rejects the first two.
func copyWithFallback(src, dst string) error {
	if _, err := exec.LookPath("cp"); err == nil {
		if err := exec.Command("cp", "-p", src, dst).Run(); err == nil {
			return nil
		}
		slog.Debug("metadata-preserving copy failed, retrying plain", "src", src)
		if err := exec.Command("cp", src, dst).Run(); err == nil {
			return nil
		}
		slog.Debug("plain copy failed, falling back to byte copy", "src", src)
	}
	return rawCopy(src, dst)
}

func rawCopy(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
