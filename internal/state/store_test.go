package state_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/MrWong99/dictaflow/internal/state"
)

func TestStore_RoundTrip(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "recording_states.json")
	store := state.NewStore(path)

	st := &state.State{}
	st.CurrentSession = state.NewSession(time.Date(2026, 8, 26, 9, 30, 0, 0, time.UTC))
	st.CurrentSession.RecordingsProcessed = []string{"260826_001.mp3"}

	if err := store.Save(st); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded := store.Load()
	if loaded.CurrentSession == nil {
		t.Fatal("current session lost in round trip")
	}
	if got, want := loaded.CurrentSession.ID, "session_20260826_093000"; got != want {
		t.Errorf("session id = %q, want %q", got, want)
	}
	if len(loaded.CurrentSession.RecordingsProcessed) != 1 {
		t.Errorf("recordings_processed = %v, want one entry", loaded.CurrentSession.RecordingsProcessed)
	}
}

func TestStore_CorruptFileReturnsDefault(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "recording_states.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	st := state.NewStore(path).Load()
	if st.CurrentSession != nil || len(st.PreviousSessions) != 0 {
		t.Errorf("corrupt file should yield empty default, got %+v", st)
	}
}

func TestStore_MissingFileReturnsDefault(t *testing.T) {
	t.Parallel()
	st := state.NewStore(filepath.Join(t.TempDir(), "absent.json")).Load()
	if st.CurrentSession != nil {
		t.Error("missing file should yield empty default")
	}
}

// Any snapshot of the state file must be complete, valid JSON: writes go to a
// temp file and are renamed into place, so reads racing a save see either the
// old or the new document.
func TestStore_AtomicUnderConcurrentReads(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "recording_states.json")
	store := state.NewStore(path)
	if err := store.Save(&state.State{}); err != nil {
		t.Fatal(err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 50; i++ {
			st := &state.State{}
			st.CurrentSession = state.NewSession(time.Now())
			st.CurrentSession.TranscriptsCreated = make([]string, 100)
			if err := store.Save(st); err != nil {
				t.Errorf("save: %v", err)
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			return
		default:
		}
		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if !json.Valid(data) {
			t.Fatal("observed partial JSON in state file")
		}
	}
}

func TestAlreadyProcessed(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)
	retention := 7 * 24 * time.Hour

	st := &state.State{
		PreviousSessions: []state.Session{
			{
				StartedAt:          now.Add(-2 * 24 * time.Hour),
				ArchivedRecordings: []string{"fresh.mp3"},
			},
			{
				StartedAt:          now.Add(-30 * 24 * time.Hour),
				ArchivedRecordings: []string{"ancient.mp3"},
			},
		},
	}
	st.CurrentSession = state.NewSession(now)
	st.CurrentSession.RecordingsProcessed = []string{"current.mp3"}

	cases := []struct {
		file string
		want bool
	}{
		{"current.mp3", true},
		{"fresh.mp3", true},
		{"ancient.mp3", false}, // outside the retention window
		{"new.mp3", false},
	}
	for _, tc := range cases {
		if got := st.AlreadyProcessed(tc.file, now, retention); got != tc.want {
			t.Errorf("AlreadyProcessed(%q) = %v, want %v", tc.file, got, tc.want)
		}
	}
}

func TestFinalize_TrimsRetention(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)
	st := &state.State{
		PreviousSessions: []state.Session{
			{ID: "session_old", StartedAt: now.Add(-10 * 24 * time.Hour)},
			{ID: "session_recent", StartedAt: now.Add(-1 * 24 * time.Hour)},
		},
	}
	st.CurrentSession = state.NewSession(now)

	st.Finalize(now, 7*24*time.Hour)

	if st.CurrentSession != nil {
		t.Error("current session should be nil after finalize")
	}
	if len(st.PreviousSessions) != 2 {
		t.Fatalf("previous sessions = %d, want 2 (recent + finalized)", len(st.PreviousSessions))
	}
	for _, s := range st.PreviousSessions {
		if s.ID == "session_old" {
			t.Error("session outside retention window should have been trimmed")
		}
	}
	last := st.PreviousSessions[len(st.PreviousSessions)-1]
	if last.EndedAt == nil {
		t.Error("finalized session should carry an end timestamp")
	}
}
