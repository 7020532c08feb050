// Package config provides the configuration schema and loader for the
// dictaflow ingestion pipeline.
package config

import "time"

// LogLevel controls log verbosity for the pipeline.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// TranscribeMode selects which transcription backends are consulted.
type TranscribeMode string

const (
	// ModeAuto tries the cloud backend first and falls back to the local CLI.
	ModeAuto TranscribeMode = "auto"

	// ModeCloud uses only the cloud backend.
	ModeCloud TranscribeMode = "cloud"

	// ModeLocal uses only the local whisper CLI.
	ModeLocal TranscribeMode = "local"
)

// IsValid reports whether m is a recognised transcription mode.
func (m TranscribeMode) IsValid() bool {
	switch m {
	case ModeAuto, ModeCloud, ModeLocal:
		return true
	}
	return false
}

// Config is the root configuration structure for dictaflow.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	LogLevel      LogLevel         `yaml:"log_level"`
	Recorder      RecorderConfig   `yaml:"recorder"`
	Paths         PathsConfig      `yaml:"paths"`
	Transcription TranscribeConfig `yaml:"transcription"`
	Analysis      AnalysisConfig   `yaml:"analysis"`
	LLM           LLMConfig        `yaml:"llm"`
	Notion        NotionConfig     `yaml:"notion"`
	Catalog       CatalogConfig    `yaml:"catalog"`

	// RetentionDays is how many days of previous sessions and archives are
	// kept before cleanup purges them.
	RetentionDays int `yaml:"retention_days"`
}

// RecorderConfig describes the removable-media source of audio files.
type RecorderConfig struct {
	// MountPath is the directory scanned for new recordings. The default
	// matches a Sony IC recorder mounted on macOS.
	MountPath string `yaml:"mount_path"`

	// SkipShorterThanSeconds skips files whose size suggests a recording
	// shorter than this. Such files are treated as deliberately discarded.
	SkipShorterThanSeconds int `yaml:"skip_shorter_than_seconds"`

	// MaxDurationMinutes rejects files whose estimated duration exceeds this.
	MaxDurationMinutes int `yaml:"max_duration_minutes"`
}

// PathsConfig holds the local working directories and state file locations.
type PathsConfig struct {
	// StagingDir receives local copies of recorder audio before transcription.
	StagingDir string `yaml:"staging_dir"`

	// TranscriptsDir is where transcript .txt files are written.
	TranscriptsDir string `yaml:"transcripts_dir"`

	// ArchiveDir is the root of the dated archive tree.
	ArchiveDir string `yaml:"archive_dir"`

	// FailedDir is the root for failed recordings, transcripts, and logs.
	FailedDir string `yaml:"failed_dir"`

	// StateFile is the JSON session-state document.
	StateFile string `yaml:"state_file"`

	// CatalogFile is the JSON project-catalog cache.
	CatalogFile string `yaml:"catalog_file"`
}

// TranscribeConfig tunes backend selection, batching, and throttling.
type TranscribeConfig struct {
	// Mode selects the backend chain: auto, cloud, or local.
	Mode TranscribeMode `yaml:"mode"`

	// Workers is the bounded worker-pool size within a batch.
	Workers int `yaml:"workers"`

	// BatchMinutes is the target audio-minutes work budget per batch.
	BatchMinutes float64 `yaml:"batch_minutes"`

	// BatchMaxFiles is the hard cap on files per batch.
	BatchMaxFiles int `yaml:"batch_max_files"`

	// CPUCeilingPercent is the utilization above which workers back off.
	CPUCeilingPercent float64 `yaml:"cpu_ceiling_percent"`

	// ThrottleSleep is how long a worker sleeps when the ceiling is exceeded.
	ThrottleSleep time.Duration `yaml:"throttle_sleep"`

	// NoRetryErrors lists substrings of backend error messages that disable
	// the single retry (e.g. permission failures, genuinely silent audio).
	NoRetryErrors []string `yaml:"no_retry_errors"`

	Cloud CloudBackendConfig `yaml:"cloud"`
	Local LocalBackendConfig `yaml:"local"`
}

// CloudBackendConfig configures the remote Whisper-class API backend.
type CloudBackendConfig struct {
	// APIKey authenticates against the cloud transcription API.
	// Overridden by GROQ_API_KEY.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the default API endpoint.
	BaseURL string `yaml:"base_url"`

	// Model is the transcription model identifier.
	Model string `yaml:"model"`

	// Timeout is the per-request HTTP timeout.
	Timeout time.Duration `yaml:"timeout"`
}

// LocalBackendConfig configures the local whisper CLI backend.
type LocalBackendConfig struct {
	// Binary is the whisper executable name or path.
	Binary string `yaml:"binary"`

	// Model is the whisper model name (e.g., "base", "small").
	Model string `yaml:"model"`

	// Language is the transcription language code.
	Language string `yaml:"language"`
}

// AnalysisConfig tunes transcript classification and enrichment.
type AnalysisConfig struct {
	// PreservationThresholdWords is the word count above which transcript
	// content is committed verbatim, never rewritten by the LLM.
	PreservationThresholdWords int `yaml:"preservation_threshold_words"`

	// TaskExcerptWords is the excerpt length used to derive titles for long tasks.
	TaskExcerptWords int `yaml:"task_excerpt_words"`

	// NoteExcerptWords is the excerpt length used to derive titles for long notes.
	NoteExcerptWords int `yaml:"note_excerpt_words"`

	// MinTranscriptChars rejects transcripts shorter than this many characters.
	MinTranscriptChars int `yaml:"min_transcript_chars"`

	// MinTranscriptWords rejects transcripts shorter than this many words.
	MinTranscriptWords int `yaml:"min_transcript_words"`

	// IconMapFile is an optional JSON keyword→emoji mapping file.
	IconMapFile string `yaml:"icon_map_file"`

	// DefaultIcon is used when no keyword matches.
	DefaultIcon string `yaml:"default_icon"`
}

// LLMConfig configures the chat-completion provider used for titles,
// duration estimation, and optional task content cleanup.
type LLMConfig struct {
	// APIKey authenticates against the LLM API. Overridden by OPENAI_API_KEY.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default endpoint.
	BaseURL string `yaml:"base_url"`

	// Model is the completion model (a low-cost chat model by default).
	Model string `yaml:"model"`

	// MaxTokens caps completion length per call.
	MaxTokens int `yaml:"max_tokens"`
}

// NotionConfig configures the document store.
type NotionConfig struct {
	// Token authenticates against the store API. Overridden by NOTION_TOKEN.
	Token string `yaml:"token"`

	// TasksDatabaseID receives task pages. Overridden by TASKS_DATABASE_ID.
	TasksDatabaseID string `yaml:"tasks_database_id"`

	// NotesDatabaseID receives note pages. Overridden by NOTES_DATABASE_ID.
	NotesDatabaseID string `yaml:"notes_database_id"`

	// ProjectsDatabaseID is queried to build the project catalog.
	// Overridden by PROJECTS_DATABASE_ID.
	ProjectsDatabaseID string `yaml:"projects_database_id"`

	// MaxAttempts is the retry budget for every store call.
	MaxAttempts int `yaml:"max_attempts"`

	// BaseDelay is the initial exponential-backoff delay.
	BaseDelay time.Duration `yaml:"base_delay"`
}

// CatalogConfig tunes project-catalog freshness.
type CatalogConfig struct {
	// MaxAge is the soft staleness bound that triggers a refresh attempt.
	// A cache older than 24 h is refreshed regardless of this value.
	MaxAge time.Duration `yaml:"max_age"`
}

// Default returns a Config populated with the documented defaults.
// Loading a YAML file overlays values on top of these.
func Default() *Config {
	return &Config{
		LogLevel: LogInfo,
		Recorder: RecorderConfig{
			MountPath:              "/Volumes/IC RECORDER/REC_FILE/FOLDER01",
			SkipShorterThanSeconds: 2,
			MaxDurationMinutes:     10,
		},
		Paths: PathsConfig{
			StagingDir:     "Staging",
			TranscriptsDir: "Transcripts",
			ArchiveDir:     "Archives",
			FailedDir:      "Failed",
			StateFile:      ".cache/recording_states.json",
			CatalogFile:    ".cache/projects.json",
		},
		Transcription: TranscribeConfig{
			Mode:              ModeAuto,
			Workers:           3,
			BatchMinutes:      7,
			BatchMaxFiles:     4,
			CPUCeilingPercent: 70,
			ThrottleSleep:     2 * time.Second,
			NoRetryErrors:     []string{"permission", "transcript too short"},
			Cloud: CloudBackendConfig{
				Model:   "whisper-large-v3",
				Timeout: 30 * time.Second,
			},
			Local: LocalBackendConfig{
				Binary:   "whisper",
				Model:    "base",
				Language: "en",
			},
		},
		Analysis: AnalysisConfig{
			PreservationThresholdWords: 800,
			TaskExcerptWords:           200,
			NoteExcerptWords:           500,
			MinTranscriptChars:         10,
			MinTranscriptWords:         3,
			DefaultIcon:                "⁉️",
		},
		LLM: LLMConfig{
			Model:     "gpt-3.5-turbo",
			MaxTokens: 256,
		},
		Notion: NotionConfig{
			MaxAttempts: 3,
			BaseDelay:   2 * time.Second,
		},
		Catalog: CatalogConfig{
			MaxAge: time.Hour,
		},
		RetentionDays: 7,
	}
}
