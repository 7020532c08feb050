// Package staging copies recorder audio to local disk before transcription.
//
// Reading USB-mounted media in place trips over quirky permissions and
// extended attributes, and some mounts refuse unlink entirely. The staging
// manager copies each validated source into a local directory, strips
// extended attributes best-effort, and normalizes mode bits so the
// transcription backends always read plain local files.
package staging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
)

// Manager stages source audio into a local directory and owns the
// safe-deletion chain for recorder files.
type Manager struct {
	dir string
}

// NewManager returns a Manager staging files into dir.
func NewManager(dir string) *Manager {
	return &Manager{dir: dir}
}

// Dir returns the staging directory.
func (m *Manager) Dir() string { return m.dir }

// Stage copies srcPath into the staging directory and returns the staged
// path. An existing staged file of matching size is reused; a size mismatch
// triggers a re-copy.
func (m *Manager) Stage(srcPath string) (string, error) {
	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return "", fmt.Errorf("staging: create dir %q: %w", m.dir, err)
	}
	dst := filepath.Join(m.dir, filepath.Base(srcPath))

	srcInfo, err := os.Stat(srcPath)
	if err != nil {
		return "", fmt.Errorf("staging: stat source %q: %w", srcPath, err)
	}
	if dstInfo, err := os.Stat(dst); err == nil {
		if dstInfo.Size() == srcInfo.Size() {
			slog.Debug("reusing staged file", "path", dst)
			return dst, nil
		}
		slog.Debug("staged file size mismatch, re-copying",
			"path", dst, "staged", dstInfo.Size(), "source", srcInfo.Size())
	}

	if err := copyFile(srcPath, dst); err != nil {
		return "", fmt.Errorf("staging: copy %q: %w", srcPath, err)
	}

	stripXattrs(dst)
	if err := os.Chmod(dst, 0o644); err != nil {
		slog.Warn("could not normalize staged file mode", "path", dst, "error", err)
	}
	return dst, nil
}

// SafeDelete removes a recorder source file, trying progressively heavier
// mechanisms: os.Remove, a forced chmod + retry, then a spawned rm -f.
// Returns false when every mechanism fails; the pipeline strands the file on
// the recorder rather than treating this as fatal.
func (m *Manager) SafeDelete(path string) bool {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return true
	}
	if err := os.Remove(path); err == nil {
		return true
	}
	if err := os.Chmod(path, 0o644); err == nil {
		if err := os.Remove(path); err == nil {
			return true
		}
	}
	if err := exec.Command("rm", "-f", path).Run(); err == nil {
		if _, statErr := os.Stat(path); os.IsNotExist(statErr) {
			return true
		}
	}
	slog.Warn("could not delete source file; remove it manually", "path", path)
	return false
}

// Wipe removes every staged file. Called at end of session.
func (m *Manager) Wipe() error {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("staging: read dir %q: %w", m.dir, err)
	}
	var firstErr error
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if err := os.Remove(filepath.Join(m.dir, e.Name())); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("staging: wipe %q: %w", e.Name(), err)
		}
	}
	return firstErr
}

// copyFile copies src to dst byte-for-byte, fsyncing before close so the
// staged copy is durable before the source is ever touched.
func copyFile(src, dst string) error {
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

// stripXattrs clears extended attributes best-effort. Resource forks and
// quarantine flags from the recorder confuse some transcription tooling;
// failure to strip them is never an error.
func stripXattrs(path string) {
	if _, err := exec.LookPath("xattr"); err != nil {
		return
	}
	if err := exec.Command("xattr", "-c", path).Run(); err != nil {
		slog.Debug("xattr strip failed", "path", path, "error", err)
	}
}
