// Package state holds the durable session document for the ingestion
// pipeline and its atomic JSON persistence.
//
// The session file is the single source of truth for what has already been
// processed: a restart after a crash resumes from whatever the last atomic
// write recorded. No partial JSON is ever observable on disk.
package state

import (
	"time"
)

// SessionIDFormat is the timestamp layout embedded in session identifiers.
const sessionIDFormat = "20060102_150405"

// NewSessionID returns a session identifier of the form
// session_YYYYMMDD_HHMMSS for the given start time.
func NewSessionID(start time.Time) string {
	return "session_" + start.Format(sessionIDFormat)
}

// State is the top-level persisted document.
type State struct {
	// CurrentSession is the in-flight session, or nil between sessions.
	CurrentSession *Session `json:"current_session"`

	// PreviousSessions holds finalized sessions inside the retention window,
	// newest last.
	PreviousSessions []Session `json:"previous_sessions"`

	ArchiveManagement ArchiveManagement `json:"archive_management"`
	SystemHealth      SystemHealth      `json:"system_health"`
}

// Session records everything one pipeline run produced, per stage.
type Session struct {
	ID        string     `json:"session_id"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`

	// Stage 1–3.
	RecordingsProcessed  []string `json:"recordings_processed"`
	TranscriptsCreated   []string `json:"transcripts_created"`
	FailedTranscriptions []string `json:"failed_transcriptions"`

	// ActiveBackend is the name of the backend that produced the most recent
	// successful transcription. Diagnostic only.
	ActiveBackend string `json:"active_backend,omitempty"`

	// Stage 4. AIProcessingSuccess records analysis completion;
	// NotionSuccess records store-create completion. The two are tracked
	// independently: a record can be analysed and still fail to commit.
	AIProcessingSuccess []string `json:"ai_processing_success"`
	AIProcessingFailed  []string `json:"ai_processing_failed"`
	NotionSuccess       []string `json:"notion_success"`

	// Stage 5–6.
	DuplicateCleanupCandidates []string      `json:"duplicate_cleanup_candidates"`
	ArchivedRecordings         []string      `json:"archived_recordings"`
	FailedEntries              []FailedEntry `json:"failed_entries"`
	CleanupFailures            []string      `json:"cleanup_failures"`

	ArchivePlan  *ArchivePlan            `json:"archive_plan,omitempty"`
	CleanupReady bool                    `json:"cleanup_ready"`
	Summaries    map[string]StageSummary `json:"stage_summaries,omitempty"`
}

// FailedEntry records a per-file failure with its stage and reason.
type FailedEntry struct {
	File   string `json:"file"`
	Stage  string `json:"stage"`
	Reason string `json:"reason"`
}

// StageSummary is the per-stage outcome rollup shown in stage banners and
// persisted for audit.
type StageSummary struct {
	Total       int     `json:"total"`
	Successful  int     `json:"successful"`
	Skipped     int     `json:"skipped"`
	Failed      int     `json:"failed"`
	SuccessRate float64 `json:"success_rate"`
}

// ArchivePlan names the dated target folder for this session's archives and
// the date past which they may be purged.
type ArchivePlan struct {
	TargetFolder  string    `json:"target_folder"`
	RetentionDate time.Time `json:"retention_date"`
}

// ArchiveManagement tracks archive housekeeping across sessions.
type ArchiveManagement struct {
	LastCleanup   *time.Time `json:"last_cleanup,omitempty"`
	RetentionDays int        `json:"retention_days"`
}

// SystemHealth is a cross-session rollup for diagnostics.
type SystemHealth struct {
	TotalProcessed int        `json:"total_processed"`
	SuccessRate    float64    `json:"success_rate"`
	LastError      string     `json:"last_error,omitempty"`
	LastSuccess    *time.Time `json:"last_success,omitempty"`
}

// NewSession returns an empty session started at now.
func NewSession(now time.Time) *Session {
	return &Session{
		ID:        NewSessionID(now),
		StartedAt: now,
		Summaries: map[string]StageSummary{},
	}
}

// RecordFailure appends a per-file failure for the given stage.
func (s *Session) RecordFailure(stage, file, reason string) {
	s.FailedEntries = append(s.FailedEntries, FailedEntry{
		File:   file,
		Stage:  stage,
		Reason: reason,
	})
}

// AlreadyProcessed reports whether the audio filename was handled by the
// current session or archived by a previous session still inside the
// retention window ending at now.
func (st *State) AlreadyProcessed(filename string, now time.Time, retention time.Duration) bool {
	if cur := st.CurrentSession; cur != nil {
		for _, f := range cur.RecordingsProcessed {
			if f == filename {
				return true
			}
		}
	}
	cutoff := now.Add(-retention)
	for i := range st.PreviousSessions {
		prev := &st.PreviousSessions[i]
		if prev.StartedAt.Before(cutoff) {
			continue
		}
		for _, f := range prev.ArchivedRecordings {
			if f == filename {
				return true
			}
		}
	}
	return false
}

// Finalize moves the current session into PreviousSessions with an end
// timestamp and trims sessions older than the retention window ending at now.
// It is a no-op when no session is open.
func (st *State) Finalize(now time.Time, retention time.Duration) {
	if st.CurrentSession == nil {
		return
	}
	ended := now
	st.CurrentSession.EndedAt = &ended
	st.PreviousSessions = append(st.PreviousSessions, *st.CurrentSession)
	st.CurrentSession = nil

	cutoff := now.Add(-retention)
	kept := st.PreviousSessions[:0]
	for _, s := range st.PreviousSessions {
		if !s.StartedAt.Before(cutoff) {
			kept = append(kept, s)
		}
	}
	st.PreviousSessions = kept
}
