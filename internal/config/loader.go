package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Load reads the YAML configuration file at path, overlays it on [Default],
// applies environment overrides, and validates the result. A missing file is
// not an error: the defaults plus environment are used.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg := Default()
			ApplyEnvOverrides(cfg)
			if err := Validate(cfg); err != nil {
				return nil, err
			}
			return cfg, nil
		}
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r on top of [Default], applies
// environment overrides, and validates the result. Useful in tests where
// configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyEnvOverrides(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnvOverrides overlays environment variables onto cfg. Every dotted
// config key maps to its upper-snake form (e.g. llm.model → LLM_MODEL), and
// the conventional credential variables are honoured directly.
func ApplyEnvOverrides(cfg *Config) {
	setStr := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	setInt := func(key string, dst *int) {
		if v, ok := os.LookupEnv(key); ok {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	setDur := func(key string, dst *time.Duration) {
		if v, ok := os.LookupEnv(key); ok {
			if d, err := time.ParseDuration(v); err == nil {
				*dst = d
			}
		}
	}

	// Credentials.
	setStr("OPENAI_API_KEY", &cfg.LLM.APIKey)
	setStr("GROQ_API_KEY", &cfg.Transcription.Cloud.APIKey)
	setStr("NOTION_TOKEN", &cfg.Notion.Token)
	setStr("TASKS_DATABASE_ID", &cfg.Notion.TasksDatabaseID)
	setStr("NOTES_DATABASE_ID", &cfg.Notion.NotesDatabaseID)
	setStr("PROJECTS_DATABASE_ID", &cfg.Notion.ProjectsDatabaseID)

	// Dotted-key overrides.
	if v, ok := os.LookupEnv("LOG_LEVEL"); ok && v != "" {
		cfg.LogLevel = LogLevel(v)
	}
	setStr("RECORDER_MOUNT_PATH", &cfg.Recorder.MountPath)
	setInt("RECORDER_MAX_DURATION_MINUTES", &cfg.Recorder.MaxDurationMinutes)
	if v, ok := os.LookupEnv("TRANSCRIPTION_MODE"); ok && v != "" {
		cfg.Transcription.Mode = TranscribeMode(v)
	}
	setInt("TRANSCRIPTION_WORKERS", &cfg.Transcription.Workers)
	setStr("TRANSCRIPTION_CLOUD_MODEL", &cfg.Transcription.Cloud.Model)
	setStr("TRANSCRIPTION_CLOUD_BASE_URL", &cfg.Transcription.Cloud.BaseURL)
	setDur("TRANSCRIPTION_CLOUD_TIMEOUT", &cfg.Transcription.Cloud.Timeout)
	setStr("TRANSCRIPTION_LOCAL_BINARY", &cfg.Transcription.Local.Binary)
	setStr("TRANSCRIPTION_LOCAL_MODEL", &cfg.Transcription.Local.Model)
	setStr("TRANSCRIPTION_LOCAL_LANGUAGE", &cfg.Transcription.Local.Language)
	setStr("LLM_MODEL", &cfg.LLM.Model)
	setStr("LLM_BASE_URL", &cfg.LLM.BaseURL)
	setInt("RETENTION_DAYS", &cfg.RetentionDays)
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.LogLevel != "" && !cfg.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("log_level %q is invalid; valid values: debug, info, warn, error", cfg.LogLevel))
	}
	if !cfg.Transcription.Mode.IsValid() {
		errs = append(errs, fmt.Errorf("transcription.mode %q is invalid; valid values: auto, cloud, local", cfg.Transcription.Mode))
	}
	if cfg.Transcription.Workers <= 0 {
		errs = append(errs, fmt.Errorf("transcription.workers must be positive, got %d", cfg.Transcription.Workers))
	}
	if cfg.Transcription.BatchMinutes <= 0 {
		errs = append(errs, fmt.Errorf("transcription.batch_minutes must be positive, got %.1f", cfg.Transcription.BatchMinutes))
	}
	if cfg.Transcription.BatchMaxFiles <= 0 {
		errs = append(errs, fmt.Errorf("transcription.batch_max_files must be positive, got %d", cfg.Transcription.BatchMaxFiles))
	}
	if cfg.Transcription.CPUCeilingPercent <= 0 || cfg.Transcription.CPUCeilingPercent > 100 {
		errs = append(errs, fmt.Errorf("transcription.cpu_ceiling_percent %.1f is out of range (0, 100]", cfg.Transcription.CPUCeilingPercent))
	}
	if cfg.Recorder.MountPath == "" {
		errs = append(errs, errors.New("recorder.mount_path is required"))
	}
	if cfg.Analysis.PreservationThresholdWords <= 0 {
		errs = append(errs, fmt.Errorf("analysis.preservation_threshold_words must be positive, got %d", cfg.Analysis.PreservationThresholdWords))
	}
	if cfg.Notion.MaxAttempts <= 0 {
		errs = append(errs, fmt.Errorf("notion.max_attempts must be positive, got %d", cfg.Notion.MaxAttempts))
	}
	if cfg.RetentionDays <= 0 {
		errs = append(errs, fmt.Errorf("retention_days must be positive, got %d", cfg.RetentionDays))
	}
	if mode := cfg.Transcription.Mode; mode == ModeCloud && cfg.Transcription.Cloud.APIKey == "" {
		errs = append(errs, errors.New("transcription.mode is cloud but no cloud API key is configured (set GROQ_API_KEY)"))
	}

	// Paths must be distinct; archiving into the staging dir would let the
	// cleanup stage wipe archives.
	seen := map[string]string{}
	for name, p := range map[string]string{
		"paths.staging_dir":     cfg.Paths.StagingDir,
		"paths.transcripts_dir": cfg.Paths.TranscriptsDir,
		"paths.archive_dir":     cfg.Paths.ArchiveDir,
		"paths.failed_dir":      cfg.Paths.FailedDir,
	} {
		if p == "" {
			errs = append(errs, fmt.Errorf("%s is required", name))
			continue
		}
		if other, dup := seen[p]; dup {
			errs = append(errs, fmt.Errorf("%s and %s must not share directory %q", name, other, p))
		}
		seen[p] = name
	}

	return errors.Join(errs...)
}
