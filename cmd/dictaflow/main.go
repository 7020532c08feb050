// Command dictaflow runs one ingestion session: new recordings on the voice
// recorder are transcribed, enriched, committed to the document store, and
// archived.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/MrWong99/dictaflow/internal/analyze"
	"github.com/MrWong99/dictaflow/internal/archive"
	"github.com/MrWong99/dictaflow/internal/catalog"
	"github.com/MrWong99/dictaflow/internal/config"
	"github.com/MrWong99/dictaflow/internal/detect"
	"github.com/MrWong99/dictaflow/internal/notion"
	"github.com/MrWong99/dictaflow/internal/observe"
	"github.com/MrWong99/dictaflow/internal/pipeline"
	"github.com/MrWong99/dictaflow/internal/resilience"
	"github.com/MrWong99/dictaflow/internal/staging"
	"github.com/MrWong99/dictaflow/internal/state"
	transcribesvc "github.com/MrWong99/dictaflow/internal/transcribe"
	"github.com/MrWong99/dictaflow/pkg/provider/llm/openai"
	"github.com/MrWong99/dictaflow/pkg/provider/transcribe"
	"github.com/MrWong99/dictaflow/pkg/provider/transcribe/groq"
	"github.com/MrWong99/dictaflow/pkg/provider/transcribe/whispercli"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	dryRun := flag.Bool("dry-run", false, "report what would be processed without changing anything")
	skipSteps := flag.String("skip-steps", "", "comma-separated stage names to skip (detect,validate,transcribe,process,archive,cleanup)")
	autoContinue := flag.Bool("auto-continue", false, "skip the confirmation prompt before source cleanup")
	verbose := flag.Bool("verbose", false, "per-file progress output and debug logging")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "dictaflow: %v\n", err)
		return 1
	}
	if *verbose {
		cfg.LogLevel = config.LogDebug
	}

	skip, err := pipeline.ParseSkipSet(*skipSteps)
	if err != nil {
		fmt.Fprintf(os.Stderr, "dictaflow: %v\n", err)
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	slog.SetDefault(newLogger(cfg.LogLevel))
	slog.Info("dictaflow starting",
		"config", *configPath,
		"mount", cfg.Recorder.MountPath,
		"mode", cfg.Transcription.Mode,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName: "dictaflow",
	})
	if err != nil {
		slog.Error("telemetry init failed", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Transcription backends ────────────────────────────────────────────────
	backends := buildBackends(cfg)
	stg := staging.NewManager(cfg.Paths.StagingDir)
	transcriber := transcribesvc.NewService(backends, stg,
		cfg.Paths.TranscriptsDir, cfg.Paths.FailedDir,
		transcribesvc.WithWorkers(cfg.Transcription.Workers),
		transcribesvc.WithPlanner(transcribesvc.Planner{
			BudgetMinutes: cfg.Transcription.BatchMinutes,
			MaxFiles:      cfg.Transcription.BatchMaxFiles,
		}),
		transcribesvc.WithCPUCeiling(cfg.Transcription.CPUCeilingPercent),
		transcribesvc.WithThrottleSleep(cfg.Transcription.ThrottleSleep),
		transcribesvc.WithNoRetryErrors(cfg.Transcription.NoRetryErrors),
	)

	// ── Document store, catalog, analyzer ─────────────────────────────────────
	store := notion.NewClient(
		cfg.Notion.Token,
		cfg.Notion.TasksDatabaseID,
		cfg.Notion.NotesDatabaseID,
		cfg.Notion.ProjectsDatabaseID,
		notion.WithRetry(resilience.Retry{
			MaxAttempts: cfg.Notion.MaxAttempts,
			BaseDelay:   cfg.Notion.BaseDelay,
		}),
	)
	projects := catalog.NewManager(cfg.Paths.CatalogFile, cfg.Catalog.MaxAge, store)

	var llmOpts []openai.Option
	if cfg.LLM.BaseURL != "" {
		llmOpts = append(llmOpts, openai.WithBaseURL(cfg.LLM.BaseURL))
	}
	llmProvider, err := openai.New(cfg.LLM.APIKey, cfg.LLM.Model, llmOpts...)
	if err != nil {
		slog.Error("llm provider init failed", "err", err)
		return 1
	}

	icons, err := analyze.NewIconSelector(cfg.Analysis.IconMapFile, cfg.Analysis.DefaultIcon)
	if err != nil {
		slog.Error("icon map unusable", "file", cfg.Analysis.IconMapFile, "err", err)
		return 1
	}
	analyzer := analyze.NewAnalyzer(llmProvider, projects,
		analyze.WithPreservationThreshold(cfg.Analysis.PreservationThresholdWords),
		analyze.WithExcerptWords(cfg.Analysis.TaskExcerptWords, cfg.Analysis.NoteExcerptWords),
		analyze.WithMaxTokens(cfg.LLM.MaxTokens),
		analyze.WithIconSelector(icons),
	)

	// ── Startup summary ───────────────────────────────────────────────────────
	printStartupSummary(cfg, backends.Names())

	// ── Pipeline ──────────────────────────────────────────────────────────────
	p := pipeline.New(cfg,
		detect.NewDetector(cfg.Recorder.MountPath),
		transcriber,
		analyzer,
		store,
		archive.NewArchiver(cfg.Paths.ArchiveDir),
		archive.NewCleaner(stg, cfg.RetentionDays),
		state.NewStore(cfg.Paths.StateFile),
	)

	err = p.Run(ctx, pipeline.Options{
		DryRun:       *dryRun,
		Skip:         skip,
		AutoContinue: *autoContinue,
		Verbose:      *verbose,
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}
	return 0
}

// buildBackends assembles the transcription fallback chain according to the
// configured mode. Unavailable backends (no API key, CLI not installed) are
// left out so the chain only holds candidates that can actually serve.
func buildBackends(cfg *config.Config) *resilience.FallbackGroup[transcribe.Backend] {
	fg := resilience.NewFallbackGroup[transcribe.Backend](resilience.FallbackConfig{})

	add := func(b transcribe.Backend) {
		if !b.Available() {
			slog.Debug("transcription backend unavailable", "backend", b.Name())
			return
		}
		fg.Add(b.Name(), b)
		slog.Info("transcription backend registered", "backend", b.Name())
	}

	mode := cfg.Transcription.Mode
	if mode == config.ModeAuto || mode == config.ModeCloud {
		cloudCfg := cfg.Transcription.Cloud
		var opts []groq.Option
		if cloudCfg.BaseURL != "" {
			opts = append(opts, groq.WithBaseURL(cloudCfg.BaseURL))
		}
		if cloudCfg.Model != "" {
			opts = append(opts, groq.WithModel(cloudCfg.Model))
		}
		if cloudCfg.Timeout > 0 {
			opts = append(opts, groq.WithTimeout(cloudCfg.Timeout))
		}
		add(groq.New(cloudCfg.APIKey, opts...))
	}
	if mode == config.ModeAuto || mode == config.ModeLocal {
		localCfg := cfg.Transcription.Local
		var opts []whispercli.Option
		if localCfg.Binary != "" {
			opts = append(opts, whispercli.WithBinary(localCfg.Binary))
		}
		if localCfg.Model != "" {
			opts = append(opts, whispercli.WithModel(localCfg.Model))
		}
		if localCfg.Language != "" {
			opts = append(opts, whispercli.WithLanguage(localCfg.Language))
		}
		add(whispercli.New(opts...))
	}
	return fg
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config, backends []string) {
	chain := strings.Join(backends, " → ")
	if chain == "" {
		chain = "(none available)"
	}
	fmt.Println("dictaflow")
	fmt.Printf("  recorder    : %s\n", cfg.Recorder.MountPath)
	fmt.Printf("  backends    : %s (mode %s)\n", chain, cfg.Transcription.Mode)
	fmt.Printf("  llm         : %s\n", cfg.LLM.Model)
	fmt.Printf("  archive     : %s (keep %d days)\n", cfg.Paths.ArchiveDir, cfg.RetentionDays)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
