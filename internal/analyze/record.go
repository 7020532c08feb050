// Package analyze enriches transcripts into store-ready records: category,
// title, project, tags, duration and icon.
package analyze

import (
	"time"

	"github.com/MrWong99/dictaflow/internal/parse"
)

// DurationCategory buckets the estimated effort of a task.
type DurationCategory string

const (
	DurationQuick  DurationCategory = "QUICK"
	DurationMedium DurationCategory = "MEDIUM"
	DurationLong   DurationCategory = "LONG"
)

// Details holds the category-specific part of a record. Exactly two
// implementations exist: TaskDetails and NoteDetails.
type Details interface {
	Category() parse.Category
}

// TaskDetails is the task-shaped payload.
type TaskDetails struct {
	Duration         DurationCategory
	EstimatedMinutes int
	DueDate          time.Time
	Reasoning        string
}

// Category implements Details.
func (TaskDetails) Category() parse.Category { return parse.CategoryTask }

// NoteDetails is the note-shaped payload.
type NoteDetails struct{}

// Category implements Details.
func (NoteDetails) Category() parse.Category { return parse.CategoryNote }

// Record is one analyzed entry ready for the store writer. A multi-task
// transcript yields several records sharing a project.
type Record struct {
	SourceStem string

	Title   string
	Icon    string
	Content string

	// ProjectName is empty when resolution required manual review.
	ProjectName       string
	ProjectID         string
	ProjectConfidence float64

	Tags []string

	Confidence   float64
	Preserved    bool
	WordCount    int
	ManualReview bool

	// AIEnhanced reports whether an LLM rewrote or titled the content.
	AIEnhanced bool

	Details Details

	// StoreEntryID is filled by the store writer after a successful
	// commit; it gates archiving.
	StoreEntryID string
}

// Category returns the record's category via its details payload.
func (r *Record) Category() parse.Category {
	return r.Details.Category()
}

// Task returns the task payload, or nil for notes.
func (r *Record) Task() *TaskDetails {
	if td, ok := r.Details.(TaskDetails); ok {
		return &td
	}
	return nil
}
