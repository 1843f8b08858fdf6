// Package config defines the explicit configuration struct constructed
// once at process start and passed into each component. No component
// reads ambient process state directly.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidConfig wraps every configuration validation failure. Fatal,
// surfaced immediately, never retried.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the main recall configuration.
type Config struct {
	// WorkspaceRoot is the base for all relative paths.
	WorkspaceRoot string `json:"workspace_root" mapstructure:"workspace_root"`

	Store        StoreConfig        `json:"store" mapstructure:"store"`
	Embedding    EmbeddingConfig    `json:"embedding" mapstructure:"embedding"`
	Chunking     ChunkingConfig     `json:"chunking" mapstructure:"chunking"`
	Archive      ArchiveConfig      `json:"archive" mapstructure:"archive"`
	Observations ObservationsConfig `json:"observations" mapstructure:"observations"`
	Capture      CaptureConfig      `json:"capture" mapstructure:"capture"`
	Brain        BrainConfig        `json:"brain" mapstructure:"brain"`
	Daemon       DaemonConfig       `json:"daemon" mapstructure:"daemon"`
	Logging      LoggingConfig      `json:"logging" mapstructure:"logging"`
}

// StoreConfig selects and locates the vector store backend.
type StoreConfig struct {
	Backend    string `json:"backend" mapstructure:"backend"`       // sqlite, qdrant
	Path       string `json:"path" mapstructure:"path"`             // sqlite database path
	URL        string `json:"url" mapstructure:"url"`               // qdrant URL
	Collection string `json:"collection" mapstructure:"collection"` // qdrant collection name
}

// EmbeddingConfig selects the embedding backend and model.
type EmbeddingConfig struct {
	Backend   string `json:"backend" mapstructure:"backend"` // openai, ollama
	Model     string `json:"model" mapstructure:"model"`
	APIKey    string `json:"api_key" mapstructure:"api_key"`
	BaseURL   string `json:"base_url" mapstructure:"base_url"`
	Dimension int    `json:"dimension" mapstructure:"dimension"` // overrides the model default when > 0
}

// ChunkingConfig controls markdown chunking, in characters.
type ChunkingConfig struct {
	MaxSize int `json:"max_size" mapstructure:"max_size"`
	Overlap int `json:"overlap" mapstructure:"overlap"`
}

// ArchiveConfig controls the warm-to-cold tier transition.
type ArchiveConfig struct {
	Dir       string `json:"dir" mapstructure:"dir"` // relative to workspace root
	AfterDays int    `json:"after_days" mapstructure:"after_days"`
}

// ObservationsConfig locates the observation log.
type ObservationsConfig struct {
	File string `json:"file" mapstructure:"file"` // relative to workspace root
}

// CaptureConfig controls auto-capture over session transcripts.
type CaptureConfig struct {
	SessionDir string `json:"session_dir" mapstructure:"session_dir"`
	StateFile  string `json:"state_file" mapstructure:"state_file"`
	Since      string `json:"since" mapstructure:"since"` // default scan window, e.g. "3h"
}

// BrainConfig controls keyword routing into per-project files.
type BrainConfig struct {
	ProjectsDir string            `json:"projects_dir" mapstructure:"projects_dir"`
	Keywords    map[string]string `json:"keywords" mapstructure:"keywords"` // keyword -> project file
}

// DaemonConfig holds cron schedules for the long-running mode.
type DaemonConfig struct {
	CaptureSchedule string `json:"capture_schedule" mapstructure:"capture_schedule"`
	ArchiveSchedule string `json:"archive_schedule" mapstructure:"archive_schedule"`
	IndexSchedule   string `json:"index_schedule" mapstructure:"index_schedule"`
}

// LoggingConfig holds logger configuration.
type LoggingConfig struct {
	Level   string `json:"level" mapstructure:"level"`
	File    string `json:"file" mapstructure:"file"`
	Console bool   `json:"console" mapstructure:"console"`
	Pretty  bool   `json:"pretty" mapstructure:"pretty"`
}

// DefaultConfig returns the configuration used when no file exists.
// The workspace root defaults to the current directory at load time.
func DefaultConfig() *Config {
	return &Config{
		Store: StoreConfig{
			Backend:    "sqlite",
			Path:       ".recall/recall.db",
			URL:        "http://localhost:6333",
			Collection: "recall_memory",
		},
		Embedding: EmbeddingConfig{
			Backend: "ollama",
			Model:   "nomic-embed-text",
		},
		Chunking: ChunkingConfig{
			MaxSize: 500,
			Overlap: 50,
		},
		Archive: ArchiveConfig{
			Dir:       "memory/archive",
			AfterDays: 30,
		},
		Observations: ObservationsConfig{
			File: "memory/observations.md",
		},
		Capture: CaptureConfig{
			SessionDir: "sessions",
			StateFile:  ".recall/capture_state.json",
			Since:      "3h",
		},
		Brain: BrainConfig{
			ProjectsDir: "memory/projects",
		},
		Daemon: DaemonConfig{
			CaptureSchedule: "@every 1h",
			ArchiveSchedule: "@daily",
			IndexSchedule:   "@every 10m",
		},
		Logging: LoggingConfig{
			Level:   "info",
			Console: true,
			Pretty:  true,
		},
	}
}

// Validate checks the configuration before any component is built.
func (c *Config) Validate() error {
	if c.WorkspaceRoot == "" {
		return fmt.Errorf("%w: workspace root is required", ErrInvalidConfig)
	}

	switch c.Store.Backend {
	case "sqlite", "qdrant":
	default:
		return fmt.Errorf("%w: unknown store backend %q", ErrInvalidConfig, c.Store.Backend)
	}

	switch c.Embedding.Backend {
	case "openai", "ollama":
	default:
		return fmt.Errorf("%w: unknown embedding backend %q", ErrInvalidConfig, c.Embedding.Backend)
	}
	if c.Embedding.Model == "" {
		return fmt.Errorf("%w: embedding model is required", ErrInvalidConfig)
	}

	if c.Chunking.MaxSize <= 0 {
		return fmt.Errorf("%w: chunk max size must be positive, got %d", ErrInvalidConfig, c.Chunking.MaxSize)
	}
	if c.Chunking.Overlap < 0 {
		return fmt.Errorf("%w: chunk overlap must not be negative, got %d", ErrInvalidConfig, c.Chunking.Overlap)
	}
	if c.Chunking.Overlap >= c.Chunking.MaxSize {
		return fmt.Errorf("%w: chunk overlap %d must be smaller than max size %d",
			ErrInvalidConfig, c.Chunking.Overlap, c.Chunking.MaxSize)
	}

	if c.Archive.AfterDays <= 0 {
		return fmt.Errorf("%w: archive age threshold must be positive, got %d days", ErrInvalidConfig, c.Archive.AfterDays)
	}

	return nil
}

// ParseSince parses a scan window like "3h", "90m", or "7d". The day
// suffix is accepted on top of the standard duration units.
func ParseSince(s string) (time.Duration, error) {
	if days, ok := strings.CutSuffix(s, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("%w: invalid window %q", ErrInvalidConfig, s)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("%w: invalid window %q", ErrInvalidConfig, s)
	}
	return d, nil
}

// AbsPath resolves a path relative to the workspace root. Absolute
// paths pass through unchanged.
func (c *Config) AbsPath(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(c.WorkspaceRoot, path)
}

// MemoryDir is the warm-tier directory.
func (c *Config) MemoryDir() string {
	return filepath.Join(c.WorkspaceRoot, "memory")
}

// ArchiveDir is the cold-tier directory.
func (c *Config) ArchiveDir() string {
	return c.AbsPath(c.Archive.Dir)
}

// ObservationsFile is the absolute observation log path.
func (c *Config) ObservationsFile() string {
	return c.AbsPath(c.Observations.File)
}

// FingerprintFile is the absolute fingerprint store path.
func (c *Config) FingerprintFile() string {
	return filepath.Join(c.WorkspaceRoot, ".recall", "fingerprints.json")
}

// StorePath is the absolute sqlite database path.
func (c *Config) StorePath() string {
	return c.AbsPath(c.Store.Path)
}

// ProjectsDir is the absolute per-project brain file directory.
func (c *Config) ProjectsDir() string {
	return c.AbsPath(c.Brain.ProjectsDir)
}

// SessionDir is the absolute transcript directory.
func (c *Config) SessionDir() string {
	return c.AbsPath(c.Capture.SessionDir)
}

// CaptureStateFile is the absolute auto-capture dedup state path.
func (c *Config) CaptureStateFile() string {
	return c.AbsPath(c.Capture.StateFile)
}
