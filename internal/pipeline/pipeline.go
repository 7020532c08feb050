// Package pipeline orchestrates the six-stage ingestion run: detect,
// validate, transcribe, process, archive, cleanup.
//
// The orchestrator owns the session document and persists it atomically at
// every stage boundary, so a crash resumes from the last completed stage
// instead of re-processing recordings. Individual file failures are recorded
// and skipped; only infrastructure failures (state unwritable, transcription
// preflight) abort the run.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/MrWong99/dictaflow/internal/analyze"
	"github.com/MrWong99/dictaflow/internal/archive"
	"github.com/MrWong99/dictaflow/internal/config"
	"github.com/MrWong99/dictaflow/internal/detect"
	"github.com/MrWong99/dictaflow/internal/observe"
	"github.com/MrWong99/dictaflow/internal/parse"
	"github.com/MrWong99/dictaflow/internal/state"
	"github.com/MrWong99/dictaflow/internal/transcribe"
)

// Stage names, in run order. The same names are accepted by --skip-steps.
const (
	StageDetect     = "detect"
	StageValidate   = "validate"
	StageTranscribe = "transcribe"
	StageProcess    = "process"
	StageArchive    = "archive"
	StageCleanup    = "cleanup"
)

var stageOrder = []string{
	StageDetect, StageValidate, StageTranscribe,
	StageProcess, StageArchive, StageCleanup,
}

// ParseSkipSet parses a comma-separated stage list into a skip set.
// Unknown stage names are an error so typos do not silently run everything.
func ParseSkipSet(csv string) (map[string]bool, error) {
	skip := map[string]bool{}
	if strings.TrimSpace(csv) == "" {
		return skip, nil
	}
	known := map[string]bool{}
	for _, s := range stageOrder {
		known[s] = true
	}
	for _, part := range strings.Split(csv, ",") {
		name := strings.ToLower(strings.TrimSpace(part))
		if name == "" {
			continue
		}
		if !known[name] {
			return nil, fmt.Errorf("pipeline: unknown stage %q (valid: %s)",
				name, strings.Join(stageOrder, ", "))
		}
		skip[name] = true
	}
	return skip, nil
}

// Transcriber runs the batch transcription stage.
type Transcriber interface {
	Run(ctx context.Context, files []detect.AudioSource) ([]transcribe.Result, error)
}

// Analyzer turns one transcript into store-ready records.
type Analyzer interface {
	Refresh(ctx context.Context)
	Analyze(ctx context.Context, stem, text string) []*analyze.Record
}

// EntryStore commits and verifies records in the document store.
type EntryStore interface {
	CreateEntry(ctx context.Context, rec *analyze.Record) (string, error)
	VerifyEntry(ctx context.Context, pageID string) error
}

// Options control a single run.
type Options struct {
	// DryRun stops after validation and reports what would be processed.
	// No session is opened and nothing is modified.
	DryRun bool

	// Skip holds stage names to bypass; a skipped stage passes its input
	// through unchanged.
	Skip map[string]bool

	// AutoContinue suppresses the interactive confirmation before cleanup.
	AutoContinue bool

	// Verbose enables per-file progress lines in the stage reports.
	Verbose bool
}

// Pipeline wires the stage implementations together.
type Pipeline struct {
	cfg         *config.Config
	detector    *detect.Detector
	validator   *detect.Validator
	transcriber Transcriber
	analyzer    Analyzer
	store       EntryStore
	archiver    *archive.Archiver
	cleaner     *archive.Cleaner
	states      *state.Store
	metrics     *observe.Metrics

	out     io.Writer
	confirm func(prompt string) bool
	now     func() time.Time
}

// Option customizes a Pipeline.
type Option func(*Pipeline)

// WithOutput redirects stage reports, normally written to stdout.
func WithOutput(w io.Writer) Option {
	return func(p *Pipeline) { p.out = w }
}

// WithConfirm replaces the interactive confirmation prompt.
func WithConfirm(fn func(prompt string) bool) Option {
	return func(p *Pipeline) { p.confirm = fn }
}

// WithClock overrides the wall clock.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// WithMetrics overrides the instruments, normally the global set.
func WithMetrics(m *observe.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// New assembles a Pipeline from its stage implementations.
func New(cfg *config.Config, detector *detect.Detector, transcriber Transcriber,
	analyzer Analyzer, store EntryStore, archiver *archive.Archiver,
	cleaner *archive.Cleaner, states *state.Store, opts ...Option) *Pipeline {

	p := &Pipeline{
		cfg:      cfg,
		detector: detector,
		validator: &detect.Validator{
			SkipShorterThanSeconds: cfg.Recorder.SkipShorterThanSeconds,
			MaxDurationMinutes:     cfg.Recorder.MaxDurationMinutes,
		},
		transcriber: transcriber,
		analyzer:    analyzer,
		store:       store,
		archiver:    archiver,
		cleaner:     cleaner,
		states:      states,
		out:         os.Stdout,
		confirm:     stdinConfirm,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.metrics == nil {
		p.metrics = observe.DefaultMetrics()
	}
	return p
}

// item tracks one recording through the stages after validation.
type item struct {
	src       detect.AudioSource
	result    transcribe.Result
	records   []*analyze.Record
	entryIDs  []string
	committed bool
	archived  string
}

// Run executes one full pipeline session. It returns nil both for a completed
// session and for the normal no-work conditions (recorder absent, nothing new
// to process).
func (p *Pipeline) Run(ctx context.Context, opts Options) error {
	start := p.now()
	st := p.states.Load()
	retention := time.Duration(p.cfg.RetentionDays) * 24 * time.Hour

	// A leftover current session means the previous run crashed mid-way.
	// Fold it into history before anything else so its commits keep keying
	// idempotence; its unarchived recordings will be re-detected and retried.
	if st.CurrentSession != nil {
		slog.Warn("recovering interrupted session",
			"session_id", st.CurrentSession.ID,
			"recordings", len(st.CurrentSession.RecordingsProcessed))
		st.Finalize(start, retention)
		if !opts.DryRun {
			if err := p.save(st); err != nil {
				return err
			}
		}
	}

	// Stage 1: detect.
	candidates, ok := p.stageDetect(st, retention, opts)
	if !ok {
		return nil
	}

	// Stage 2: validate.
	items, skipped := p.stageValidate(candidates, opts)
	if len(items) == 0 {
		p.report(StageValidate, len(candidates), 0, len(skipped), 0,
			"no usable recordings; nothing to do")
		return nil
	}
	p.report(StageValidate, len(candidates), len(items), len(skipped), 0, "")

	if opts.DryRun {
		fmt.Fprintf(p.out, "dry run: %d recording(s) would be processed\n", len(items))
		for _, it := range items {
			fmt.Fprintf(p.out, "  %s (%.1f min)\n",
				filepath.Base(it.src.Path), it.src.EstimatedMinutes)
		}
		return nil
	}

	// A session opens only once there is real work.
	st.CurrentSession = state.NewSession(start)
	sess := st.CurrentSession
	if err := p.save(st); err != nil {
		return err
	}
	slog.Info("session started", "session_id", sess.ID, "recordings", len(items))

	// Stage 3: transcribe.
	if err := p.stageTranscribe(ctx, st, sess, items, opts); err != nil {
		return p.abort(st, sess, err)
	}

	// Stage 4: process.
	if err := p.stageProcess(ctx, st, sess, items, opts); err != nil {
		return p.abort(st, sess, err)
	}

	// Stage 5: archive.
	if err := p.stageArchive(ctx, st, sess, items, retention, opts); err != nil {
		return p.abort(st, sess, err)
	}

	// Stage 6: cleanup.
	if err := p.stageCleanup(st, sess, items, opts); err != nil {
		return p.abort(st, sess, err)
	}

	p.finishHealth(st, sess)
	st.Finalize(p.now(), retention)
	if err := p.save(st); err != nil {
		return err
	}
	slog.Info("session completed", "session_id", sess.ID,
		"duration", p.now().Sub(start).Round(time.Second))
	return nil
}

func (p *Pipeline) stageDetect(st *state.State, retention time.Duration, opts Options) ([]detect.AudioSource, bool) {
	if opts.Skip[StageDetect] {
		staged, err := p.stagedSources()
		if err != nil {
			slog.Error("staging area unreadable", "error", err)
			fmt.Fprintf(p.out, "staging area unreadable: %v\n", err)
			return nil, false
		}
		if len(staged) == 0 {
			fmt.Fprintln(p.out, "stage detect skipped; no staged recordings to continue with")
			return nil, false
		}
		fmt.Fprintf(p.out, "stage detect skipped; continuing with %d staged recording(s)\n", len(staged))
		return staged, true
	}
	began := p.now()
	if !p.detector.Available() {
		fmt.Fprintln(p.out, "recorder not connected; nothing to do")
		return nil, false
	}
	now := p.now()
	candidates, err := p.detector.Scan(func(name string) bool {
		return st.AlreadyProcessed(name, now, retention)
	})
	if err != nil {
		slog.Error("recorder scan failed", "error", err)
		fmt.Fprintf(p.out, "recorder scan failed: %v\n", err)
		return nil, false
	}
	p.metrics.RecordStage(context.Background(), StageDetect, p.now().Sub(began))
	if len(candidates) == 0 {
		fmt.Fprintln(p.out, "no new recordings found")
		return nil, false
	}
	p.report(StageDetect, len(candidates), len(candidates), 0, 0, "")
	return candidates, true
}

// stagedSources lists staged MP3 files so a run with detection skipped
// continues from the staging area instead of doing nothing.
func (p *Pipeline) stagedSources() ([]detect.AudioSource, error) {
	entries, err := os.ReadDir(p.cfg.Paths.StagingDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var out []detect.AudioSource
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".mp3") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		out = append(out, detect.AudioSource{
			Path:             filepath.Join(p.cfg.Paths.StagingDir, e.Name()),
			SizeBytes:        info.Size(),
			EstimatedMinutes: detect.EstimateMinutes(info.Size()),
			ModifiedAt:       info.ModTime(),
		})
	}
	return out, nil
}

func (p *Pipeline) stageValidate(candidates []detect.AudioSource, opts Options) ([]*item, []detect.Skipped) {
	if opts.Skip[StageValidate] {
		items := make([]*item, 0, len(candidates))
		for _, src := range candidates {
			items = append(items, &item{src: src})
		}
		return items, nil
	}
	began := p.now()
	valid, skipped, err := p.validator.Validate(candidates)
	if err != nil {
		// A vanished file between scan and validate is not fatal; treat the
		// run as having nothing usable.
		slog.Error("validation failed", "error", err)
		return nil, nil
	}
	p.metrics.RecordStage(context.Background(), StageValidate, p.now().Sub(began))
	for _, sk := range skipped {
		slog.Info("recording skipped", "file", filepath.Base(sk.Source.Path), "reason", sk.Reason)
		if opts.Verbose {
			fmt.Fprintf(p.out, "  skip %s: %s\n", filepath.Base(sk.Source.Path), sk.Reason)
		}
	}
	items := make([]*item, 0, len(valid))
	for _, src := range valid {
		items = append(items, &item{src: src})
	}
	return items, skipped
}

func (p *Pipeline) stageTranscribe(ctx context.Context, st *state.State, sess *state.Session, items []*item, opts Options) error {
	if opts.Skip[StageTranscribe] {
		fmt.Fprintln(p.out, "stage transcribe skipped")
		return nil
	}
	began := p.now()

	files := make([]detect.AudioSource, 0, len(items))
	for _, it := range items {
		files = append(files, it.src)
	}
	results, err := p.transcriber.Run(ctx, files)
	if err != nil {
		return fmt.Errorf("pipeline: transcription preflight: %w", err)
	}

	byPath := map[string]*item{}
	for _, it := range items {
		byPath[it.src.Path] = it
	}

	var successful, failed int
	for _, res := range results {
		it := byPath[res.Source.Path]
		if it == nil {
			continue
		}
		it.result = res
		name := filepath.Base(res.Source.Path)
		sess.RecordingsProcessed = append(sess.RecordingsProcessed, name)

		if res.Err != nil {
			failed++
			sess.FailedTranscriptions = append(sess.FailedTranscriptions, name)
			sess.RecordFailure(StageTranscribe, name, res.Err.Error())
			p.metrics.RecordTranscription(ctx, res.Backend, "error", res.Elapsed)
			continue
		}
		successful++
		sess.TranscriptsCreated = append(sess.TranscriptsCreated, filepath.Base(res.TranscriptPath))
		if res.Backend != "" {
			sess.ActiveBackend = res.Backend
		}
		backend := res.Backend
		if res.Reused {
			sess.DuplicateCleanupCandidates = append(sess.DuplicateCleanupCandidates, name)
			backend = "reuse"
		}
		p.metrics.RecordTranscription(ctx, backend, "ok", res.Elapsed)
		if opts.Verbose {
			fmt.Fprintf(p.out, "  transcribed %s via %s\n", name, res.Backend)
		}
	}

	p.metrics.RecordStage(ctx, StageTranscribe, p.now().Sub(began))
	p.summarize(sess, StageTranscribe, len(items), successful, 0, failed)
	hint := ""
	if failed > 0 {
		hint = "failed recordings were moved under " + filepath.Join(p.cfg.Paths.FailedDir, "failed_recordings")
	}
	p.report(StageTranscribe, len(items), successful, 0, failed, hint)
	return p.save(st)
}

func (p *Pipeline) stageProcess(ctx context.Context, st *state.State, sess *state.Session, items []*item, opts Options) error {
	if opts.Skip[StageProcess] {
		fmt.Fprintln(p.out, "stage process skipped")
		return nil
	}
	began := p.now()
	p.analyzer.Refresh(ctx)

	var successful, skipped, failed int
	for _, it := range items {
		if it.result.Err != nil || it.result.TranscriptPath == "" {
			skipped++
			continue
		}
		name := filepath.Base(it.src.Path)
		text := it.result.Text
		if text == "" {
			data, err := os.ReadFile(it.result.TranscriptPath)
			if err != nil {
				failed++
				sess.AIProcessingFailed = append(sess.AIProcessingFailed, name)
				sess.RecordFailure(StageProcess, name, "transcript unreadable: "+err.Error())
				continue
			}
			text = string(data)
		}

		if parse.TooShort(text, p.cfg.Analysis.MinTranscriptChars, p.cfg.Analysis.MinTranscriptWords) {
			failed++
			sess.AIProcessingFailed = append(sess.AIProcessingFailed, name)
			sess.RecordFailure(StageProcess, name, "transcript too short")
			p.routeFailedTranscript(it.result.TranscriptPath)
			it.result.TranscriptPath = ""
			continue
		}

		it.records = p.analyzer.Analyze(ctx, it.src.Stem(), text)
		sess.AIProcessingSuccess = append(sess.AIProcessingSuccess, name)

		committed := 0
		for _, rec := range it.records {
			id, err := p.store.CreateEntry(ctx, rec)
			if err != nil {
				sess.RecordFailure(StageProcess, name, "store create: "+err.Error())
				p.metrics.RecordStoreRequest(ctx, "create", "error")
				continue
			}
			rec.StoreEntryID = id
			it.entryIDs = append(it.entryIDs, id)
			sess.NotionSuccess = append(sess.NotionSuccess, id)
			p.metrics.RecordStoreRequest(ctx, "create", "ok")
			p.metrics.RecordEntry(ctx, string(rec.Category()))
			committed++
			if opts.Verbose {
				fmt.Fprintf(p.out, "  committed %q (%s)\n", rec.Title, rec.Category())
			}
		}
		if committed == len(it.records) && committed > 0 {
			it.committed = true
			successful++
		} else {
			failed++
		}
	}

	p.metrics.RecordStage(ctx, StageProcess, p.now().Sub(began))
	p.summarize(sess, StageProcess, len(items), successful, skipped, failed)
	hint := ""
	if failed > 0 {
		hint = "sources with failed commits stay on the recorder for the next run"
	}
	p.report(StageProcess, len(items), successful, skipped, failed, hint)
	return p.save(st)
}

func (p *Pipeline) stageArchive(ctx context.Context, st *state.State, sess *state.Session, items []*item, retention time.Duration, opts Options) error {
	if opts.Skip[StageArchive] {
		fmt.Fprintln(p.out, "stage archive skipped")
		return nil
	}
	began := p.now()

	var successful, skipped, failed int
	for _, it := range items {
		if !it.committed {
			skipped++
			continue
		}
		name := filepath.Base(it.src.Path)

		verified := true
		for _, id := range it.entryIDs {
			if err := p.store.VerifyEntry(ctx, id); err != nil {
				verified = false
				sess.RecordFailure(StageArchive, name, "page not found: "+err.Error())
				p.metrics.RecordStoreRequest(ctx, "verify", "error")
				break
			}
			p.metrics.RecordStoreRequest(ctx, "verify", "ok")
		}
		if !verified {
			failed++
			continue
		}

		archived, err := p.archiver.Archive(it.src.Path, sess.ID)
		if err != nil {
			failed++
			sess.RecordFailure(StageArchive, name, err.Error())
			continue
		}
		it.archived = archived
		// The original filename keys idempotence across sessions, so that is
		// what the session records, not the renamed archive file.
		sess.ArchivedRecordings = append(sess.ArchivedRecordings, name)
		successful++
		if opts.Verbose {
			fmt.Fprintf(p.out, "  archived %s\n", name)
		}
	}

	sess.ArchivePlan = &state.ArchivePlan{
		TargetFolder:  p.archiver.TargetDir(sess.ID),
		RetentionDate: p.now().Add(retention),
	}
	sess.CleanupReady = successful > 0

	p.metrics.RecordStage(ctx, StageArchive, p.now().Sub(began))
	p.summarize(sess, StageArchive, len(items), successful, skipped, failed)
	hint := ""
	if failed > 0 {
		hint = "unverified or unarchived sources remain on the recorder"
	}
	p.report(StageArchive, len(items), successful, skipped, failed, hint)
	return p.save(st)
}

func (p *Pipeline) stageCleanup(st *state.State, sess *state.Session, items []*item, opts Options) error {
	if opts.Skip[StageCleanup] {
		fmt.Fprintln(p.out, "stage cleanup skipped")
		return nil
	}
	if !sess.CleanupReady {
		p.report(StageCleanup, 0, 0, 0, 0, "nothing archived; sources retained")
		return p.save(st)
	}

	var deletable int
	for _, it := range items {
		if it.archived != "" {
			deletable++
		}
	}
	if !opts.AutoContinue {
		prompt := fmt.Sprintf("delete %d source recording(s) from the recorder?", deletable)
		if !p.confirm(prompt) {
			p.report(StageCleanup, deletable, 0, deletable, 0, "cleanup declined; sources retained")
			return p.save(st)
		}
	}

	began := p.now()
	var successful, skipped, failed int
	for _, it := range items {
		if it.archived == "" {
			skipped++
			continue
		}
		name := filepath.Base(it.src.Path)
		if err := p.cleaner.CleanSource(it.src.Path, it.archived); err != nil {
			failed++
			sess.CleanupFailures = append(sess.CleanupFailures, name)
			sess.RecordFailure(StageCleanup, name, err.Error())
			continue
		}
		if it.result.TranscriptPath != "" {
			if err := p.cleaner.RemoveTranscript(it.result.TranscriptPath); err != nil {
				slog.Warn("transcript not removed", "path", it.result.TranscriptPath, "error", err)
			}
		}
		successful++
	}

	if err := p.cleaner.WipeStaging(); err != nil {
		slog.Warn("staging wipe incomplete", "error", err)
	}
	if err := p.cleaner.PurgeOldArchives(p.cfg.Paths.ArchiveDir); err != nil {
		slog.Warn("archive purge incomplete", "error", err)
	}
	cleaned := p.now()
	st.ArchiveManagement.LastCleanup = &cleaned
	st.ArchiveManagement.RetentionDays = p.cfg.RetentionDays

	p.metrics.RecordStage(context.Background(), StageCleanup, p.now().Sub(began))
	p.summarize(sess, StageCleanup, deletable, successful, skipped, failed)
	hint := ""
	if failed > 0 {
		hint = "undeleted sources will be detected as duplicates next run and skipped"
	}
	p.report(StageCleanup, deletable, successful, skipped, failed, hint)
	return p.save(st)
}

// abort records a fatal stage error, persists what the session managed so
// far, and propagates the error to the caller for a non-zero exit.
func (p *Pipeline) abort(st *state.State, sess *state.Session, err error) error {
	st.SystemHealth.LastError = err.Error()
	slog.Error("pipeline aborted", "session_id", sess.ID, "error", err)
	if saveErr := p.save(st); saveErr != nil {
		slog.Error("state not persisted after abort", "error", saveErr)
	}
	return err
}

func (p *Pipeline) finishHealth(st *state.State, sess *state.Session) {
	st.SystemHealth.TotalProcessed += len(sess.RecordingsProcessed)
	if n := len(sess.RecordingsProcessed); n > 0 {
		st.SystemHealth.SuccessRate = float64(len(sess.ArchivedRecordings)) / float64(n)
	}
	if len(sess.ArchivedRecordings) > 0 {
		now := p.now()
		st.SystemHealth.LastSuccess = &now
		st.SystemHealth.LastError = ""
	}
}

func (p *Pipeline) save(st *state.State) error {
	if err := p.states.Save(st); err != nil {
		return fmt.Errorf("pipeline: persist state: %w", err)
	}
	return nil
}

func (p *Pipeline) summarize(sess *state.Session, stage string, total, successful, skipped, failed int) {
	summary := state.StageSummary{
		Total:      total,
		Successful: successful,
		Skipped:    skipped,
		Failed:     failed,
	}
	if total > 0 {
		summary.SuccessRate = float64(successful) / float64(total)
	}
	sess.Summaries[stage] = summary
}

// report prints the stage banner with the outcome counts and an optional
// remediation hint.
func (p *Pipeline) report(stage string, total, successful, skipped, failed int, hint string) {
	idx := 0
	for i, s := range stageOrder {
		if s == stage {
			idx = i + 1
			break
		}
	}
	fmt.Fprintf(p.out, "== stage %d/%d %s: %d total, %d ok, %d skipped, %d failed\n",
		idx, len(stageOrder), stage, total, successful, skipped, failed)
	if hint != "" {
		fmt.Fprintf(p.out, "   %s\n", hint)
	}
}

// routeFailedTranscript moves an unusable transcript under the failed tree so
// it can be inspected without being re-processed.
func (p *Pipeline) routeFailedTranscript(path string) {
	if path == "" {
		return
	}
	dir := filepath.Join(p.cfg.Paths.FailedDir, "failed_transcripts")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		slog.Warn("failed-transcripts dir not created", "error", err)
		return
	}
	if err := os.Rename(path, filepath.Join(dir, filepath.Base(path))); err != nil {
		slog.Warn("transcript not routed to failed dir", "path", path, "error", err)
	}
}

// stdinConfirm asks on the terminal and accepts y/yes.
func stdinConfirm(prompt string) bool {
	fmt.Printf("%s [y/N] ", prompt)
	var answer string
	if _, err := fmt.Scanln(&answer); err != nil {
		return false
	}
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes"
}
