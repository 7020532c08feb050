package analyze

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/dictaflow/internal/catalog"
	"github.com/MrWong99/dictaflow/internal/parse"
	"github.com/MrWong99/dictaflow/internal/resilience"
	"github.com/MrWong99/dictaflow/pkg/provider/llm"
	"github.com/MrWong99/dictaflow/pkg/provider/llm/mock"
)

type projectFetcher struct{}

func (projectFetcher) FetchProjects(context.Context) ([]catalog.Project, error) {
	return []catalog.Project{
		{ID: "p1", Name: "Life Admin HQ", Aliases: []string{"life admin"}},
		{ID: "p2", Name: "Garden"},
	}, nil
}

// scriptedLLM answers title and duration prompts by system prompt.
func scriptedLLM() *mock.Provider {
	return &mock.Provider{
		CompleteFunc: func(_ context.Context, req llm.Request) (*llm.Response, error) {
			if strings.Contains(req.SystemPrompt, "title") {
				return &llm.Response{Content: `"Email plumber about repairs"`}, nil
			}
			return &llm.Response{Content: `{"duration_category": "QUICK", "estimated_minutes": 2, "due_date": "", "reasoning": "one short email"}`}, nil
		},
	}
}

func newTestAnalyzer(t *testing.T, provider llm.Provider, opts ...AnalyzerOption) *Analyzer {
	t.Helper()
	mgr := catalog.NewManager(filepath.Join(t.TempDir(), "projects.json"), time.Hour, projectFetcher{})
	base := []AnalyzerOption{WithRetry(resilience.Retry{MaxAttempts: 1, BaseDelay: time.Millisecond})}
	return NewAnalyzer(provider, mgr, append(base, opts...)...)
}

func TestAnalyzeSingleTaskWithProject(t *testing.T) {
	t.Parallel()

	a := newTestAnalyzer(t, scriptedLLM())
	records := a.Analyze(context.Background(), "REC001",
		"Email the plumber about repairs. Life Admin HQ. Task")

	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}
	rec := records[0]
	if rec.Category() != parse.CategoryTask {
		t.Errorf("category = %s, want task", rec.Category())
	}
	if rec.ProjectName != "Life Admin HQ" || rec.ProjectID != "p1" {
		t.Errorf("project = %q (%q), want Life Admin HQ (p1)", rec.ProjectName, rec.ProjectID)
	}
	if rec.Title != "Email plumber about repairs" {
		t.Errorf("title = %q (quotes must be stripped)", rec.Title)
	}
	if rec.Preserved {
		t.Error("short task marked preserved")
	}
	// Longest keyword wins: "plumber" outranks "email".
	if rec.Icon != "🔧" {
		t.Errorf("icon = %q, want 🔧 from content", rec.Icon)
	}
	task := rec.Task()
	if task == nil || task.Duration != DurationQuick {
		t.Errorf("task details = %+v, want QUICK", task)
	}
	if !containsTag(rec.Tags, TagCommunications) {
		t.Errorf("tags = %v, want communications", rec.Tags)
	}
}

func TestAnalyzeMultiTaskSharedProject(t *testing.T) {
	t.Parallel()

	a := newTestAnalyzer(t, scriptedLLM())
	records := a.Analyze(context.Background(), "REC002",
		"Email plumber. Task. Call electrician. Task. Life Admin HQ. Task")

	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	if !strings.Contains(records[0].Content, "plumber") || !strings.Contains(records[1].Content, "electrician") {
		t.Fatalf("records out of textual order: %q, %q", records[0].Content, records[1].Content)
	}
	for i, rec := range records {
		if rec.ProjectName != "Life Admin HQ" {
			t.Errorf("record %d project = %q, want shared Life Admin HQ", i, rec.ProjectName)
		}
		if !containsTag(rec.Tags, TagCommunications) {
			t.Errorf("record %d missing communications tag: %v", i, rec.Tags)
		}
	}
}

func TestAnalyzeLongNoteIsPreserved(t *testing.T) {
	t.Parallel()

	body := strings.TrimSpace(strings.Repeat("thoughtful essay words flow here ", 250))
	text := body + ".\nnote"

	a := newTestAnalyzer(t, scriptedLLM())
	records := a.Analyze(context.Background(), "REC003", text)

	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}
	rec := records[0]
	if rec.Category() != parse.CategoryNote {
		t.Fatalf("category = %s, want note via trailing marker", rec.Category())
	}
	if rec.Confidence != 1.0 {
		t.Errorf("confidence = %v, want 1.0", rec.Confidence)
	}
	if !rec.Preserved {
		t.Fatal("1250-word note not preserved")
	}
	if rec.AIEnhanced {
		t.Error("preserved note flagged as AI enhanced")
	}
	if rec.Content != parse.TrimPreserved(text) {
		t.Error("preserved content was rewritten")
	}
}

func TestAnalyzeManualReviewWithoutProject(t *testing.T) {
	t.Parallel()

	a := newTestAnalyzer(t, scriptedLLM())
	records := a.Analyze(context.Background(), "REC004",
		"pick up the dry cleaning tomorrow morning. Task")

	rec := records[0]
	if rec.ProjectName != "" {
		t.Errorf("project = %q, want empty on manual review", rec.ProjectName)
	}
	if !rec.ManualReview {
		t.Error("record without project resolution must need manual review")
	}
}

// A project resolved below the extraction accept threshold still lands on
// the record, but flagged for manual review.
func TestAnalyzeSubThresholdProjectFlagsReview(t *testing.T) {
	t.Parallel()

	a := newTestAnalyzer(t, scriptedLLM())
	records := a.Analyze(context.Background(), "REC008",
		"Water the back beds tonight. Gardens. Task")

	rec := records[0]
	if rec.ProjectName != "Garden" {
		t.Fatalf("project = %q, want fuzzy-matched Garden", rec.ProjectName)
	}
	if !rec.ManualReview {
		t.Error("sub-threshold project match must flag manual review")
	}
}

func TestAnalyzeTitleUsesConfiguredExcerpt(t *testing.T) {
	t.Parallel()

	var titlePrompt string
	provider := &mock.Provider{
		CompleteFunc: func(_ context.Context, req llm.Request) (*llm.Response, error) {
			if strings.Contains(req.SystemPrompt, "title") {
				titlePrompt = req.Prompt
				return &llm.Response{Content: "Water every garden bed tonight"}, nil
			}
			return &llm.Response{Content: `{"duration_category": "QUICK", "estimated_minutes": 2, "due_date": "", "reasoning": "short"}`}, nil
		},
	}
	a := newTestAnalyzer(t, provider,
		WithPreservationThreshold(5),
		WithExcerptWords(10, 20))

	body := strings.TrimSpace(strings.Repeat("water every single bed in the yard tonight ", 8))
	a.Analyze(context.Background(), "REC009", body+". Task")

	parts := strings.SplitN(titlePrompt, "\n\n", 2)
	if len(parts) != 2 {
		t.Fatalf("title prompt missing excerpt: %q", titlePrompt)
	}
	if got := len(strings.Fields(parts[1])); got != 10 {
		t.Errorf("title excerpt = %d words, want configured 10", got)
	}
}

func TestAnalyzeTitleFallbackOnLLMFailure(t *testing.T) {
	t.Parallel()

	failing := &mock.Provider{
		CompleteFunc: func(context.Context, llm.Request) (*llm.Response, error) {
			return nil, errors.New("503 service unavailable")
		},
	}
	a := newTestAnalyzer(t, failing)
	records := a.Analyze(context.Background(), "REC005",
		"Email the plumber about repairs. Life Admin HQ. Task")

	rec := records[0]
	if rec.Title == "" {
		t.Fatal("no fallback title")
	}
	if !strings.HasPrefix(rec.Title, "Email the plumber") {
		t.Errorf("fallback title = %q, want first words of content", rec.Title)
	}
	// Duration must also fall back, not fail the record.
	task := rec.Task()
	if task == nil || task.Duration != DurationMedium || task.EstimatedMinutes != 20 {
		t.Errorf("duration fallback = %+v, want MEDIUM/20", task)
	}
}

func TestAnalyzeStripsMetaCommentary(t *testing.T) {
	t.Parallel()

	a := newTestAnalyzer(t, scriptedLLM())
	records := a.Analyze(context.Background(), "REC006",
		"I recorded a message asking you to call the accountant about taxes")

	rec := records[0]
	if strings.Contains(rec.Content, "recorded a message") {
		t.Errorf("meta commentary not stripped: %q", rec.Content)
	}
	if rec.Confidence >= 0.8 {
		t.Errorf("confidence %v should drop after pattern strip", rec.Confidence)
	}
}

func containsTag(tags []string, want string) bool {
	for _, tag := range tags {
		if tag == want {
			return true
		}
	}
	return false
}

func TestEstimateDurationDefaults(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 8, 26, 10, 0, 0, 0, time.UTC) // a Wednesday
	failing := &mock.Provider{
		CompleteFunc: func(context.Context, llm.Request) (*llm.Response, error) {
			return nil, errors.New("timeout")
		},
	}
	a := newTestAnalyzer(t, failing, WithClock(func() time.Time { return now }))

	details := a.estimateDuration(context.Background(), "sort the insurance paperwork")
	if details.Duration != DurationMedium || details.EstimatedMinutes != 20 {
		t.Fatalf("fallback = %+v, want MEDIUM/20", details)
	}
	wantDue := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC) // that week's Friday
	if !details.DueDate.Equal(wantDue) {
		t.Fatalf("due date = %v, want %v", details.DueDate, wantDue)
	}
}

func TestNextFridayAndEndOfMonth(t *testing.T) {
	t.Parallel()

	fri := time.Date(2026, 8, 28, 9, 0, 0, 0, time.UTC)
	if got := nextFriday(fri); !got.Equal(fri) {
		t.Errorf("nextFriday(friday) = %v, want same day", got)
	}
	sat := time.Date(2026, 8, 29, 9, 0, 0, 0, time.UTC)
	if got := nextFriday(sat); got.Day() != 4 || got.Month() != time.September {
		t.Errorf("nextFriday(saturday) = %v, want Sep 4", got)
	}
	if got := endOfMonth(sat); got.Day() != 31 || got.Month() != time.August {
		t.Errorf("endOfMonth = %v, want Aug 31", got)
	}
}

func TestIconSelectorTiers(t *testing.T) {
	t.Parallel()

	s, err := NewIconSelector("", "⁉️")
	if err != nil {
		t.Fatal(err)
	}
	if got := s.Select("send an email to the council", "", ""); got != "✉️" {
		t.Errorf("content match = %q, want ✉️", got)
	}
	if got := s.Select("do the thing", "Call the dentist", ""); got != "📞" {
		t.Errorf("title match = %q, want 📞", got)
	}
	if got := s.Select("do the thing", "Misc entry", "Garden HQ"); got != "🌱" {
		t.Errorf("project match = %q, want 🌱", got)
	}
	if got := s.Select("do the thing", "Misc entry", ""); got != "⁉️" {
		t.Errorf("default = %q, want ⁉️", got)
	}
}
