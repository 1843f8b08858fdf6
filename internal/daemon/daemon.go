// Package daemon runs recall in long-running mode: scheduled capture,
// archive, and incremental reindex passes, plus a filesystem watcher
// that reindexes shortly after memory files change.
package daemon

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/harun/recall/internal/config"
	"github.com/harun/recall/pkg/archive"
	"github.com/harun/recall/pkg/index"
	"github.com/harun/recall/pkg/observe"
)

// Daemon owns the schedules and the watcher.
type Daemon struct {
	cfg      *config.Config
	logger   zerolog.Logger
	indexer  *index.Manager
	capturer *observe.Capturer
	archiver *archive.Manager

	cron    *cron.Cron
	watcher *Watcher
	dirty   atomic.Bool

	mu      sync.Mutex
	running bool
}

// New wires a daemon. Nothing runs until Start.
func New(cfg *config.Config, indexer *index.Manager, capturer *observe.Capturer, archiver *archive.Manager, logger zerolog.Logger) *Daemon {
	return &Daemon{
		cfg:      cfg,
		logger:   logger.With().Str("component", "daemon").Logger(),
		indexer:  indexer,
		capturer: capturer,
		archiver: archiver,
	}
}

// Start registers the schedules, starts the watcher, and blocks until
// the context is cancelled.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return nil
	}
	d.running = true
	d.mu.Unlock()

	d.cron = cron.New()

	if _, err := d.cron.AddFunc(d.cfg.Daemon.IndexSchedule, func() { d.runIndex(ctx) }); err != nil {
		return err
	}
	if _, err := d.cron.AddFunc(d.cfg.Daemon.CaptureSchedule, func() { d.runCapture(ctx) }); err != nil {
		return err
	}
	if _, err := d.cron.AddFunc(d.cfg.Daemon.ArchiveSchedule, func() { d.runArchive(ctx) }); err != nil {
		return err
	}

	watcher, err := NewWatcher(d.logger, func() {
		d.dirty.Store(true)
		d.runIndex(ctx)
	})
	if err != nil {
		return err
	}
	d.watcher = watcher
	for _, dir := range []string{d.cfg.MemoryDir(), d.cfg.ArchiveDir()} {
		if err := watcher.Watch(dir); err != nil {
			d.logger.Warn().Err(err).Str("dir", dir).Msg("failed to watch directory")
		}
	}

	// Catch up on anything that changed while the daemon was down.
	d.dirty.Store(true)
	d.runIndex(ctx)

	d.cron.Start()
	d.logger.Info().
		Str("index_schedule", d.cfg.Daemon.IndexSchedule).
		Str("capture_schedule", d.cfg.Daemon.CaptureSchedule).
		Str("archive_schedule", d.cfg.Daemon.ArchiveSchedule).
		Msg("daemon started")

	<-ctx.Done()
	return d.stop()
}

func (d *Daemon) stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running {
		return nil
	}
	d.running = false

	cronCtx := d.cron.Stop()
	// Let in-flight jobs finish, but not forever.
	select {
	case <-cronCtx.Done():
	case <-time.After(30 * time.Second):
		d.logger.Warn().Msg("timed out waiting for running jobs")
	}

	var err error
	if d.watcher != nil {
		err = d.watcher.Stop()
	}
	d.logger.Info().Msg("daemon stopped")
	return err
}

// runIndex runs an incremental pass when the watcher flagged changes.
// Hash-based skipping makes a spurious pass cheap, so the dirty flag is
// an optimization, not a correctness gate.
func (d *Daemon) runIndex(ctx context.Context) {
	if !d.dirty.Swap(false) {
		return
	}
	result, err := d.indexer.IndexChanged(ctx)
	if err != nil {
		d.logger.Error().Err(err).Msg("scheduled index pass failed")
		d.dirty.Store(true)
		return
	}
	if result.Indexed > 0 || result.Failed > 0 {
		d.logger.Info().
			Int("indexed", result.Indexed).
			Int("failed", result.Failed).
			Msg("index pass complete")
	}
}

func (d *Daemon) runCapture(ctx context.Context) {
	since, err := config.ParseSince(d.cfg.Capture.Since)
	if err != nil {
		d.logger.Error().Err(err).Msg("invalid capture window")
		return
	}
	result, err := d.capturer.Run(ctx, since, false)
	if err != nil {
		d.logger.Error().Err(err).Msg("scheduled capture failed")
		return
	}
	if len(result.Recorded) > 0 {
		d.logger.Info().Int("recorded", len(result.Recorded)).Msg("capture pass complete")
	}
}

func (d *Daemon) runArchive(ctx context.Context) {
	result, err := d.archiver.Run(ctx, true)
	if err != nil {
		d.logger.Error().Err(err).Msg("scheduled archive failed")
		return
	}
	if len(result.Moved) > 0 {
		d.logger.Info().Int("moved", len(result.Moved)).Msg("archive pass complete")
	}
}
