package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// ConfigFileName is the workspace-local configuration file.
const ConfigFileName = ".recall.json"

// Loader handles configuration loading.
type Loader struct {
	configPath string
}

// NewLoader creates a config loader. An empty configPath means the
// default lookup: ./.recall.json, then defaults.
func NewLoader(configPath string) *Loader {
	return &Loader{configPath: configPath}
}

// Load reads the configuration file, applies RECALL_* environment
// overrides, fills defaults, and validates.
func (l *Loader) Load() (*Config, error) {
	configPath := l.configPath
	if configPath == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
		configPath = filepath.Join(cwd, ConfigFileName)
	}

	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("json")
	v.SetEnvPrefix("RECALL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, cfg)

	if _, err := os.Stat(configPath); err == nil {
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Workspace root defaults to the directory holding the config file,
	// or the current directory when running without one.
	if cfg.WorkspaceRoot == "" {
		cfg.WorkspaceRoot = filepath.Dir(configPath)
	}
	absRoot, err := filepath.Abs(cfg.WorkspaceRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve workspace root: %w", err)
	}
	cfg.WorkspaceRoot = absRoot

	if cfg.Embedding.APIKey == "" {
		cfg.Embedding.APIKey = os.Getenv("OPENAI_API_KEY")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// setDefaults registers every configuration key. Environment overrides
// only apply to keys viper knows about, so each key is seeded even when
// the config file omits it or does not exist at all.
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("workspace_root", cfg.WorkspaceRoot)

	v.SetDefault("store.backend", cfg.Store.Backend)
	v.SetDefault("store.path", cfg.Store.Path)
	v.SetDefault("store.url", cfg.Store.URL)
	v.SetDefault("store.collection", cfg.Store.Collection)

	v.SetDefault("embedding.backend", cfg.Embedding.Backend)
	v.SetDefault("embedding.model", cfg.Embedding.Model)
	v.SetDefault("embedding.api_key", cfg.Embedding.APIKey)
	v.SetDefault("embedding.base_url", cfg.Embedding.BaseURL)
	v.SetDefault("embedding.dimension", cfg.Embedding.Dimension)

	v.SetDefault("chunking.max_size", cfg.Chunking.MaxSize)
	v.SetDefault("chunking.overlap", cfg.Chunking.Overlap)

	v.SetDefault("archive.dir", cfg.Archive.Dir)
	v.SetDefault("archive.after_days", cfg.Archive.AfterDays)

	v.SetDefault("observations.file", cfg.Observations.File)

	v.SetDefault("capture.session_dir", cfg.Capture.SessionDir)
	v.SetDefault("capture.state_file", cfg.Capture.StateFile)
	v.SetDefault("capture.since", cfg.Capture.Since)

	v.SetDefault("brain.projects_dir", cfg.Brain.ProjectsDir)
	v.SetDefault("brain.keywords", cfg.Brain.Keywords)

	v.SetDefault("daemon.capture_schedule", cfg.Daemon.CaptureSchedule)
	v.SetDefault("daemon.archive_schedule", cfg.Daemon.ArchiveSchedule)
	v.SetDefault("daemon.index_schedule", cfg.Daemon.IndexSchedule)

	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.file", cfg.Logging.File)
	v.SetDefault("logging.console", cfg.Logging.Console)
	v.SetDefault("logging.pretty", cfg.Logging.Pretty)
}

// Save writes the configuration as JSON to the workspace-local config
// file.
func Save(cfg *Config, configPath string) error {
	if configPath == "" {
		configPath = filepath.Join(cfg.WorkspaceRoot, ConfigFileName)
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("json")

	v.Set("workspace_root", cfg.WorkspaceRoot)
	v.Set("store", cfg.Store)
	v.Set("embedding", cfg.Embedding)
	v.Set("chunking", cfg.Chunking)
	v.Set("archive", cfg.Archive)
	v.Set("observations", cfg.Observations)
	v.Set("capture", cfg.Capture)
	v.Set("brain", cfg.Brain)
	v.Set("daemon", cfg.Daemon)
	v.Set("logging", cfg.Logging)

	if err := v.WriteConfigAs(configPath); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
