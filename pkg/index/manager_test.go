package index

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harun/recall/pkg/embedding"
	"github.com/harun/recall/pkg/fingerprint"
	"github.com/harun/recall/pkg/sanitize"
	"github.com/harun/recall/pkg/vectorstore"
)

type testEnv struct {
	root    string
	manager *Manager
	store   vectorstore.Store
	mock    *embedding.Mock
	prints  *fingerprint.Store
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "memory", "archive"), 0755))

	store, err := vectorstore.NewSQLiteStore(filepath.Join(root, ".recall", "recall.db"), 8, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	prints, err := fingerprint.Load(filepath.Join(root, ".recall", "fingerprints.json"))
	require.NoError(t, err)

	mock := embedding.NewMock(8)
	manager := NewManager(store, mock, prints, sanitize.New(), Options{
		WorkspaceRoot: root,
		MemoryDir:     filepath.Join(root, "memory"),
		ArchiveDir:    filepath.Join(root, "memory", "archive"),
		ChunkMaxSize:  500,
		ChunkOverlap:  50,
	}, zerolog.Nop())

	return &testEnv{root: root, manager: manager, store: store, mock: mock, prints: prints}
}

func (e *testEnv) writeFile(t *testing.T, rel, content string) string {
	t.Helper()
	path := filepath.Join(e.root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

const sampleDoc = `# Project Notes

## Caching

We moved the session cache to Redis after the sqlite row lock
contention showed up in the p99 latency.

## Deployment

Deploys go through the staging gate first. The gate runs the smoke
suite and blocks on any regression.
`

func TestIndexFile_ChunksAndStores(t *testing.T) {
	env := newTestEnv(t)
	path := env.writeFile(t, "memory/notes.md", sampleDoc)

	result, err := env.manager.IndexFile(context.Background(), path, false)
	require.NoError(t, err)
	assert.Equal(t, StatusIndexed, result.Status)
	assert.Equal(t, "memory/notes.md", result.Path)
	assert.Greater(t, result.Chunks, 0)

	count, err := env.store.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, result.Chunks, count)

	entry, ok := env.prints.Get("memory/notes.md")
	require.True(t, ok)
	assert.Len(t, entry.ChunkIDs, result.Chunks)

	row, err := env.store.Get(context.Background(), entry.ChunkIDs[0])
	require.NoError(t, err)
	assert.Equal(t, "memory/notes.md", row.SourcePath)
	assert.Equal(t, "notes.md", row.Filename)
	assert.Equal(t, vectorstore.KindMemory, row.SourceKind)
}

func TestIndexChanged_SkipsUnchangedFiles(t *testing.T) {
	env := newTestEnv(t)
	env.writeFile(t, "memory/notes.md", sampleDoc)

	first, err := env.manager.IndexChanged(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, first.Indexed)

	callsAfterFirst := env.mock.Calls()

	// Rewriting identical content must not re-embed.
	env.writeFile(t, "memory/notes.md", sampleDoc)
	second, err := env.manager.IndexChanged(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, second.Skipped)
	assert.Zero(t, second.Indexed)
	assert.Equal(t, callsAfterFirst, env.mock.Calls())
}

func TestIndexChanged_PicksUpEdits(t *testing.T) {
	env := newTestEnv(t)
	env.writeFile(t, "memory/notes.md", sampleDoc)

	_, err := env.manager.IndexChanged(context.Background())
	require.NoError(t, err)

	env.writeFile(t, "memory/notes.md", sampleDoc+"\n## Rollback\n\nRollback uses the previous image tag.\n")
	result, err := env.manager.IndexChanged(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Indexed)
}

func TestIndexFile_ReindexDoesNotDuplicate(t *testing.T) {
	env := newTestEnv(t)
	path := env.writeFile(t, "memory/notes.md", sampleDoc)

	first, err := env.manager.IndexFile(context.Background(), path, true)
	require.NoError(t, err)
	_, err = env.manager.IndexFile(context.Background(), path, true)
	require.NoError(t, err)

	count, err := env.store.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first.Chunks, count)
}

func TestIndexFile_EmptiedFileDropsRows(t *testing.T) {
	env := newTestEnv(t)
	path := env.writeFile(t, "memory/notes.md", sampleDoc)

	_, err := env.manager.IndexFile(context.Background(), path, false)
	require.NoError(t, err)

	env.writeFile(t, "memory/notes.md", "   \n")
	result, err := env.manager.IndexFile(context.Background(), path, false)
	require.NoError(t, err)
	assert.Equal(t, StatusEmpty, result.Status)

	count, err := env.store.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count)

	_, ok := env.prints.Get("memory/notes.md")
	assert.False(t, ok)
}

func TestIndexFile_EmbeddingFailureLeavesFileMarkedChanged(t *testing.T) {
	env := newTestEnv(t)
	path := env.writeFile(t, "memory/notes.md", sampleDoc)

	_, err := env.manager.IndexFile(context.Background(), path, false)
	require.NoError(t, err)

	env.writeFile(t, "memory/notes.md", sampleDoc+"\nnew paragraph about retries.\n")
	env.mock.FailWith(embedding.ErrUnavailable)

	_, err = env.manager.IndexFile(context.Background(), path, false)
	require.Error(t, err)
	assert.ErrorIs(t, err, embedding.ErrUnavailable)

	// Fingerprint still holds the old hash, so recovery re-indexes.
	env.mock.FailWith(nil)
	result, err := env.manager.IndexFile(context.Background(), path, false)
	require.NoError(t, err)
	assert.Equal(t, StatusIndexed, result.Status)
}

func TestIndexAll_CoversArchiveTier(t *testing.T) {
	env := newTestEnv(t)
	env.writeFile(t, "memory/notes.md", sampleDoc)
	env.writeFile(t, "memory/archive/2026-01-05-sprint.md", "## Sprint log\n\nMigrated the worker queue off the cron poller.\n")

	result, err := env.manager.IndexAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, result.Indexed)
	assert.NotEmpty(t, result.RunID)

	entry, ok := env.prints.Get("memory/archive/2026-01-05-sprint.md")
	require.True(t, ok)

	row, err := env.store.Get(context.Background(), entry.ChunkIDs[0])
	require.NoError(t, err)
	assert.Equal(t, vectorstore.KindArchive, row.SourceKind)
	assert.Equal(t, "2026-01-05", row.Date)
}

func TestIndexAll_IsolatesBrokenFiles(t *testing.T) {
	env := newTestEnv(t)
	env.writeFile(t, "memory/good.md", sampleDoc)
	bad := env.writeFile(t, "memory/bad.md", sampleDoc)
	// A directory where a file is expected makes the read fail.
	require.NoError(t, os.Remove(bad))
	require.NoError(t, os.Mkdir(bad, 0755))

	result, err := env.manager.IndexAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Indexed)
	assert.Equal(t, 1, result.Failed)
}

func TestIndexObservation(t *testing.T) {
	env := newTestEnv(t)

	id, err := env.manager.IndexObservation(context.Background(), "use Redis for the session cache", "decision")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(id, "obs:"))

	row, err := env.store.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, vectorstore.KindObservation, row.SourceKind)
	assert.Equal(t, "decision", row.Tag)
	assert.Equal(t, ObservationSource, row.SourcePath)

	// Observations accumulate, they never replace each other.
	_, err = env.manager.IndexObservation(context.Background(), "prefer table tests in this repo", "preference")
	require.NoError(t, err)
	count, err := env.store.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestDateFromFilename(t *testing.T) {
	assert.Equal(t, "2026-03-14", dateFromFilename("2026-03-14-notes.md"))
	assert.Equal(t, "2025-12-01", dateFromFilename("sprint-2025-12-01.md"))
	assert.Empty(t, dateFromFilename("notes.md"))
}
