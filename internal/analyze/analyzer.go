package analyze

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/MrWong99/dictaflow/internal/catalog"
	"github.com/MrWong99/dictaflow/internal/observe"
	"github.com/MrWong99/dictaflow/internal/parse"
	"github.com/MrWong99/dictaflow/internal/resilience"
	"github.com/MrWong99/dictaflow/pkg/provider/llm"
)

// defaultPreservationThreshold is the word count above which a transcript's
// body is committed verbatim.
const defaultPreservationThreshold = 800

// Analyzer turns transcripts into analysis records. LLM calls run
// serialized through the retry policy; no part of analysis parallelizes.
type Analyzer struct {
	llm      llm.Provider
	catalog  *catalog.Manager
	detector *parse.Detector
	tags     *TagDetector
	icons    *IconSelector
	retry    resilience.Retry

	preservationThreshold int
	taskExcerptWords      int
	noteExcerptWords      int
	maxTokens             int
	metrics               *observe.Metrics
	now                   func() time.Time

	matcher *catalog.Matcher
}

// AnalyzerOption configures an Analyzer.
type AnalyzerOption func(*Analyzer)

// WithPreservationThreshold overrides the verbatim-content word threshold.
func WithPreservationThreshold(words int) AnalyzerOption {
	return func(a *Analyzer) {
		if words > 0 {
			a.preservationThreshold = words
		}
	}
}

// WithExcerptWords sets how many leading words of a preserved transcript are
// sent to the LLM when titling tasks and notes.
func WithExcerptWords(task, note int) AnalyzerOption {
	return func(a *Analyzer) {
		if task > 0 {
			a.taskExcerptWords = task
		}
		if note > 0 {
			a.noteExcerptWords = note
		}
	}
}

// WithMetrics overrides the metrics sink.
func WithMetrics(m *observe.Metrics) AnalyzerOption {
	return func(a *Analyzer) {
		if m != nil {
			a.metrics = m
		}
	}
}

// WithMaxTokens caps LLM completions.
func WithMaxTokens(n int) AnalyzerOption {
	return func(a *Analyzer) {
		if n > 0 {
			a.maxTokens = n
		}
	}
}

// WithRetry overrides the LLM retry policy.
func WithRetry(r resilience.Retry) AnalyzerOption {
	return func(a *Analyzer) { a.retry = r }
}

// WithClock overrides the time source used for due dates.
func WithClock(now func() time.Time) AnalyzerOption {
	return func(a *Analyzer) { a.now = now }
}

// WithIconSelector overrides the icon selector.
func WithIconSelector(s *IconSelector) AnalyzerOption {
	return func(a *Analyzer) { a.icons = s }
}

// NewAnalyzer wires an analyzer over the given LLM provider and catalog.
func NewAnalyzer(provider llm.Provider, cat *catalog.Manager, opts ...AnalyzerOption) *Analyzer {
	icons, _ := NewIconSelector("", "⁉️")
	a := &Analyzer{
		llm:                   provider,
		catalog:               cat,
		detector:              parse.NewDetector(),
		tags:                  NewTagDetector(),
		icons:                 icons,
		retry:                 resilience.Retry{Classify: classifyLLMError},
		preservationThreshold: defaultPreservationThreshold,
		taskExcerptWords:      defaultTaskExcerptWords,
		noteExcerptWords:      defaultNoteExcerptWords,
		maxTokens:             256,
		metrics:               observe.DefaultMetrics(),
		now:                   time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Refresh synchronously brings the project catalog up to date. Called once
// at the start of the analysis stage; never in the background.
func (a *Analyzer) Refresh(ctx context.Context) {
	a.matcher = catalog.NewMatcher(a.catalog.Ensure(ctx))
}

// Analyze produces one or more records for a transcript. Multi-task
// transcripts yield one record per sub-task, in textual order, all sharing
// the extracted project.
func (a *Analyzer) Analyze(ctx context.Context, stem, text string) []*Record {
	if a.matcher == nil {
		a.Refresh(ctx)
	}

	decision := a.detector.Detect(text)
	project := a.matcher.ExtractProject(text, string(decision.Category))

	slog.Debug("transcript classified",
		"stem", stem,
		"category", decision.Category,
		"confidence", decision.Confidence,
		"tier", decision.Tier,
		"project", project.ProjectName,
		"project_confidence", project.Confidence)

	if decision.Category == parse.CategoryTask {
		if subTasks := parse.SplitTasks(text); len(subTasks) > 0 {
			records := make([]*Record, 0, len(subTasks))
			for _, sub := range subTasks {
				records = append(records, a.buildRecord(ctx, stem, sub, decision, project))
			}
			return records
		}
	}
	return []*Record{a.buildRecord(ctx, stem, text, decision, project)}
}

func (a *Analyzer) buildRecord(ctx context.Context, stem, text string, decision parse.Decision, project catalog.FuzzyMatch) *Record {
	wordCount := parse.WordCount(text)
	preserved := wordCount > a.preservationThreshold

	rec := &Record{
		SourceStem:   stem,
		WordCount:    wordCount,
		Preserved:    preserved,
		Confidence:   decision.Confidence,
		ManualReview: decision.ManualReview,
	}

	if project.ProjectName != catalog.ManualReviewProject && project.ProjectName != "" {
		rec.ProjectName = project.ProjectName
		rec.ProjectConfidence = project.Confidence
		if project.NeedsReview {
			rec.ManualReview = true
		}
		if a.matcher != nil {
			rec.ProjectID = a.matcher.ProjectID(project.ProjectName)
		}
	} else if project.Confidence == 0 {
		rec.ManualReview = true
	}

	switch decision.Category {
	case parse.CategoryTask:
		rec.Content, rec.Confidence = a.taskContent(text, preserved, rec.Confidence)
		rec.Details = a.estimateDuration(ctx, rec.Content)
	default:
		if preserved {
			rec.Content = parse.TrimPreserved(text)
		} else {
			rec.Content = parse.FormatNote(text)
		}
		rec.Details = NoteDetails{}
	}

	title, aiTitled := a.generateTitle(ctx, rec.Content, decision.Category, preserved)
	rec.Title = title
	rec.AIEnhanced = aiTitled && !preserved

	rec.Tags = a.tags.Detect(text)
	rec.Icon = a.icons.Select(rec.Content, rec.Title, rec.ProjectName)
	return rec
}

// taskContent strips meta-commentary from a task body. Preserved bodies are
// only trimmed. Confidence drops a little per stripped pattern.
func (a *Analyzer) taskContent(text string, preserved bool, confidence float64) (string, float64) {
	if preserved {
		return parse.TrimPreserved(text), confidence
	}
	content, hits := parse.FormatTask(text)
	confidence -= 0.05 * float64(hits)
	if confidence < 0.1 {
		confidence = 0.1
	}
	return content, confidence
}

func (a *Analyzer) completeWithRetry(ctx context.Context, op string, req llm.Request) (*llm.Response, error) {
	start := time.Now()
	resp, err := resilience.DoWithResult(a.retry, ctx, "llm "+op, func() (*llm.Response, error) {
		return a.llm.Complete(ctx, req)
	})
	a.metrics.RecordLLMRequest(ctx, op, time.Since(start))
	return resp, err
}

// classifyLLMError buckets LLM API failures for the shared retry policy.
func classifyLLMError(err error) resilience.Class {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "429") || strings.Contains(msg, "rate"):
		return resilience.ClassRateLimit
	case strings.Contains(msg, "401") || strings.Contains(msg, "403") ||
		strings.Contains(msg, "invalid api key") || strings.Contains(msg, "400"):
		return resilience.ClassFatal
	default:
		return resilience.ClassTransient
	}
}
