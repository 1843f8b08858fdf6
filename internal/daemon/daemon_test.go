package daemon

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harun/recall/internal/config"
	"github.com/harun/recall/pkg/archive"
	"github.com/harun/recall/pkg/embedding"
	"github.com/harun/recall/pkg/fingerprint"
	"github.com/harun/recall/pkg/index"
	"github.com/harun/recall/pkg/observe"
	"github.com/harun/recall/pkg/sanitize"
	"github.com/harun/recall/pkg/vectorstore"
)

func newTestDaemon(t *testing.T) (*Daemon, *config.Config, vectorstore.Store) {
	t.Helper()

	root := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.WorkspaceRoot = root
	require.NoError(t, os.MkdirAll(cfg.ArchiveDir(), 0755))
	require.NoError(t, os.MkdirAll(cfg.SessionDir(), 0755))

	store, err := vectorstore.NewSQLiteStore(cfg.StorePath(), 8, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	prints, err := fingerprint.Load(cfg.FingerprintFile())
	require.NoError(t, err)

	indexer := index.NewManager(store, embedding.NewMock(8), prints, sanitize.New(), index.Options{
		WorkspaceRoot: root,
		MemoryDir:     cfg.MemoryDir(),
		ArchiveDir:    cfg.ArchiveDir(),
		ChunkMaxSize:  cfg.Chunking.MaxSize,
		ChunkOverlap:  cfg.Chunking.Overlap,
	}, zerolog.Nop())

	recorder := observe.NewRecorder(cfg.ObservationsFile(), sanitize.New(), zerolog.Nop())
	capturer := observe.NewCapturer(cfg.SessionDir(), cfg.CaptureStateFile(), recorder, indexer, zerolog.Nop())

	archiver := archive.NewManager(store, prints, indexer, archive.Options{
		WorkspaceRoot: root,
		MemoryDir:     cfg.MemoryDir(),
		ArchiveDir:    cfg.ArchiveDir(),
		AfterDays:     cfg.Archive.AfterDays,
	}, zerolog.Nop())

	return New(cfg, indexer, capturer, archiver, zerolog.Nop()), cfg, store
}

func TestDaemon_StartIndexesAndStopsOnCancel(t *testing.T) {
	d, cfg, store := newTestDaemon(t)
	require.NoError(t, os.WriteFile(filepath.Join(cfg.MemoryDir(), "notes.md"),
		[]byte("## Notes\n\nThe daemon should pick this file up at startup.\n"), 0644))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Start(ctx) }()

	// The startup pass indexes existing files.
	require.Eventually(t, func() bool {
		count, err := store.Count(context.Background())
		return err == nil && count > 0
	}, 5*time.Second, 50*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not stop after cancel")
	}
}

func TestDaemon_WatcherTriggersReindex(t *testing.T) {
	d, cfg, store := newTestDaemon(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- d.Start(ctx) }()

	// Give the watcher a moment to attach.
	time.Sleep(200 * time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(cfg.MemoryDir(), "fresh.md"),
		[]byte("## Fresh\n\nWritten while the daemon is running.\n"), 0644))

	require.Eventually(t, func() bool {
		count, err := store.Count(context.Background())
		return err == nil && count > 0
	}, 5*time.Second, 50*time.Millisecond)

	cancel()
	<-done
}

func TestDaemon_RejectsBadSchedule(t *testing.T) {
	d, cfg, _ := newTestDaemon(t)
	cfg.Daemon.IndexSchedule = "not a schedule"

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	err := d.Start(ctx)
	require.Error(t, err)
}
