package state

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/renameio/v2"
)

// Store persists a [State] document to a JSON file. Writes go to a sibling
// temp file followed by an atomic rename, so a crash mid-write leaves the
// previous valid document intact.
//
// Store is safe for concurrent use, though the pipeline mutates state only
// from the orchestrator goroutine between stage boundaries.
type Store struct {
	path string

	mu sync.Mutex
}

// NewStore returns a Store backed by the JSON file at path. The file and its
// parent directory need not exist yet; they are created on first save.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the backing file path.
func (s *Store) Path() string { return s.path }

// Load reads and decodes the state file. A missing or corrupt file is not an
// error: the default empty state is returned and a warning logged, so a
// damaged cache never blocks a session.
func (s *Store) Load() *State {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Warn("state file unreadable, starting from empty state",
				"path", s.path, "error", err)
		}
		return &State{}
	}

	st := &State{}
	if err := json.Unmarshal(data, st); err != nil {
		slog.Warn("state file corrupt, starting from empty state",
			"path", s.path, "error", err)
		return &State{}
	}
	return st
}

// Save atomically persists st. The document is written to a temp file in the
// same directory and renamed over the target so no reader can ever observe
// partial JSON.
func (s *Store) Save(st *State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("state: marshal: %w", err)
	}
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("state: create dir %q: %w", dir, err)
		}
	}
	if err := renameio.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("state: write %q: %w", s.path, err)
	}
	return nil
}
