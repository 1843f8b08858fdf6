// Package cli wires the recall commands.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/harun/recall/internal/config"
	"github.com/harun/recall/internal/logger"
	"github.com/harun/recall/pkg/archive"
	"github.com/harun/recall/pkg/brain"
	"github.com/harun/recall/pkg/embedding"
	"github.com/harun/recall/pkg/fingerprint"
	"github.com/harun/recall/pkg/index"
	"github.com/harun/recall/pkg/observe"
	"github.com/harun/recall/pkg/sanitize"
	"github.com/harun/recall/pkg/search"
	"github.com/harun/recall/pkg/vectorstore"
)

const version = "0.1.0"

var (
	cfgFile  string
	logLevel string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "recall",
	Short: "Recall - local-first retrieval memory for agents",
	Long: `Recall gives long-running agents a durable, searchable memory.
Markdown notes are chunked, embedded, and indexed locally; observations
are captured from session transcripts with rule-based extraction; aging
files move to a cold archive tier without losing searchability.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the CLI. Called by main.main().
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./.recall.json)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level override (debug, info, warn, error)")

	rootCmd.SetVersionTemplate(`{{with .Name}}{{printf "%s " .}}{{end}}{{printf "version %s" .Version}}
`)
}

// GetRootCmd returns the root command for testing
func GetRootCmd() *cobra.Command {
	return rootCmd
}

// app holds the wired components for one command invocation.
type app struct {
	cfg      *config.Config
	log      *logger.Logger
	store    vectorstore.Store
	embedder embedding.Provider
	prints   *fingerprint.Store
	indexer  *index.Manager
	engine   *search.Engine
	recorder *observe.Recorder
	capturer *observe.Capturer
	archiver *archive.Manager
	router   *brain.Router
	checker  *brain.Checker
}

// newApp loads config and builds every component. Commands use the
// subset they need; construction is cheap apart from opening the store.
func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.NewLoader(cfgFile).Load()
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}

	log, err := logger.New(cfg.Logging)
	if err != nil {
		return nil, err
	}

	embedder, err := embedding.NewProvider(cfg.Embedding.Backend, cfg.Embedding.Model, embedding.Options{
		APIKey:    cfg.Embedding.APIKey,
		BaseURL:   cfg.Embedding.BaseURL,
		Dimension: cfg.Embedding.Dimension,
	})
	if err != nil {
		log.Close()
		return nil, err
	}

	store, err := vectorstore.New(ctx, vectorstore.Options{
		Backend:    cfg.Store.Backend,
		Path:       cfg.StorePath(),
		URL:        cfg.Store.URL,
		Collection: cfg.Store.Collection,
		Dimension:  embedder.Dimension(),
		Logger:     log.Zerolog(),
	})
	if err != nil {
		log.Close()
		return nil, err
	}

	prints, err := fingerprint.Load(cfg.FingerprintFile())
	if err != nil {
		store.Close()
		log.Close()
		return nil, err
	}

	sanitizer := sanitize.New()
	zl := log.Zerolog()

	indexer := index.NewManager(store, embedder, prints, sanitizer, index.Options{
		WorkspaceRoot: cfg.WorkspaceRoot,
		MemoryDir:     cfg.MemoryDir(),
		ArchiveDir:    cfg.ArchiveDir(),
		ChunkMaxSize:  cfg.Chunking.MaxSize,
		ChunkOverlap:  cfg.Chunking.Overlap,
	}, zl)

	recorder := observe.NewRecorder(cfg.ObservationsFile(), sanitizer, zl)

	return &app{
		cfg:      cfg,
		log:      log,
		store:    store,
		embedder: embedder,
		prints:   prints,
		indexer:  indexer,
		engine:   search.NewEngine(store, embedder, zl),
		recorder: recorder,
		capturer: observe.NewCapturer(cfg.SessionDir(), cfg.CaptureStateFile(), recorder, indexer, zl),
		archiver: archive.NewManager(store, prints, indexer, archive.Options{
			WorkspaceRoot: cfg.WorkspaceRoot,
			MemoryDir:     cfg.MemoryDir(),
			ArchiveDir:    cfg.ArchiveDir(),
			AfterDays:     cfg.Archive.AfterDays,
		}, zl),
		router:  brain.NewRouter(cfg.WorkspaceRoot, cfg.Brain.Keywords, zl),
		checker: brain.NewChecker(cfg.ProjectsDir(), sanitizer, zl),
	}, nil
}

// checkerFor builds an integrity checker over a non-default directory.
func (a *app) checkerFor(dir string) *brain.Checker {
	return brain.NewChecker(a.cfg.AbsPath(dir), sanitize.New(), a.log.Zerolog())
}

func (a *app) Close() {
	if a.store != nil {
		a.store.Close()
	}
	if a.log != nil {
		a.log.Close()
	}
}

// printJSON writes indented JSON to stdout.
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

func printf(format string, args ...any) {
	fmt.Fprintf(os.Stdout, format, args...)
}
