// Package index turns markdown files and observations into searchable
// vector rows. Change detection is content-hash based: a file whose
// hash matches its stored fingerprint is skipped, so touching a file
// without editing it never re-embeds anything.
package index

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/harun/recall/pkg/chunker"
	"github.com/harun/recall/pkg/embedding"
	"github.com/harun/recall/pkg/fingerprint"
	"github.com/harun/recall/pkg/sanitize"
	"github.com/harun/recall/pkg/vectorstore"
)

// File statuses reported per indexed path.
const (
	StatusIndexed = "indexed"
	StatusSkipped = "skipped"
	StatusEmpty   = "empty"
	StatusFailed  = "failed"
)

// ObservationSource is the logical source path carried by observation
// rows. Observations live in the log file but are indexed one row per
// entry, never re-chunked from the file.
const ObservationSource = "memory/observations.md"

// FileResult reports the outcome for one source file.
type FileResult struct {
	Path   string `json:"path"`
	Status string `json:"status"`
	Chunks int    `json:"chunks"`
	Error  string `json:"error,omitempty"`
}

// Result aggregates one indexing run.
type Result struct {
	RunID   string       `json:"run_id"`
	Files   []FileResult `json:"files"`
	Indexed int          `json:"indexed"`
	Skipped int          `json:"skipped"`
	Failed  int          `json:"failed"`
	Chunks  int          `json:"chunks"`
}

// Options configures a Manager.
type Options struct {
	WorkspaceRoot string
	MemoryDir     string
	ArchiveDir    string
	ChunkMaxSize  int
	ChunkOverlap  int
}

// Manager owns all writes to the vector store and the fingerprint
// store. Concurrent calls for the same file serialize on a per-path
// lock; different files proceed in parallel.
type Manager struct {
	store     vectorstore.Store
	embedder  embedding.Provider
	prints    *fingerprint.Store
	sanitizer *sanitize.Sanitizer
	opts      Options
	logger    zerolog.Logger
	now       func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewManager wires an index manager.
func NewManager(store vectorstore.Store, embedder embedding.Provider, prints *fingerprint.Store, sanitizer *sanitize.Sanitizer, opts Options, logger zerolog.Logger) *Manager {
	return &Manager{
		store:     store,
		embedder:  embedder,
		prints:    prints,
		sanitizer: sanitizer,
		opts:      opts,
		logger:    logger.With().Str("component", "index").Logger(),
		now:       time.Now,
		locks:     make(map[string]*sync.Mutex),
	}
}

func (m *Manager) pathLock(relPath string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[relPath]
	if !ok {
		l = &sync.Mutex{}
		m.locks[relPath] = l
	}
	return l
}

// IndexAll re-indexes every discovered file regardless of fingerprints.
func (m *Manager) IndexAll(ctx context.Context) (*Result, error) {
	return m.indexFiles(ctx, true)
}

// IndexChanged indexes only files whose content hash differs from the
// stored fingerprint.
func (m *Manager) IndexChanged(ctx context.Context) (*Result, error) {
	return m.indexFiles(ctx, false)
}

func (m *Manager) indexFiles(ctx context.Context, force bool) (*Result, error) {
	files, err := m.discover()
	if err != nil {
		return nil, err
	}

	result := &Result{RunID: uuid.NewString()}
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		fr, err := m.IndexFile(ctx, path, force)
		if err != nil {
			// One broken file must not abort the run.
			m.logger.Error().Err(err).Str("file", path).Msg("failed to index file")
			result.Files = append(result.Files, FileResult{
				Path:   m.relPath(path),
				Status: StatusFailed,
				Error:  err.Error(),
			})
			result.Failed++
			continue
		}

		result.Files = append(result.Files, *fr)
		result.Chunks += fr.Chunks
		switch fr.Status {
		case StatusSkipped:
			result.Skipped++
		default:
			result.Indexed++
		}
	}

	m.logger.Info().
		Str("run_id", result.RunID).
		Int("indexed", result.Indexed).
		Int("skipped", result.Skipped).
		Int("failed", result.Failed).
		Int("chunks", result.Chunks).
		Bool("force", force).
		Msg("indexing run complete")

	return result, nil
}

// IndexFile indexes a single markdown file: chunk, embed, then replace
// the file's rows in one delete-then-insert pass. The fingerprint is
// updated only after the store write succeeds, so a failed run leaves
// the file marked as changed.
func (m *Manager) IndexFile(ctx context.Context, path string, force bool) (*FileResult, error) {
	relPath := m.relPath(path)

	lock := m.pathLock(relPath)
	lock.Lock()
	defer lock.Unlock()

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", relPath, err)
	}

	hash := fingerprint.HashBytes(content)
	if !force {
		if entry, ok := m.prints.Get(relPath); ok && entry.ContentHash == hash {
			return &FileResult{Path: relPath, Status: StatusSkipped}, nil
		}
	}

	if strings.TrimSpace(string(content)) == "" {
		// An emptied file drops out of the index entirely.
		if err := m.store.DeleteBySource(ctx, relPath); err != nil {
			return nil, err
		}
		if err := m.prints.Remove(relPath); err != nil {
			return nil, err
		}
		return &FileResult{Path: relPath, Status: StatusEmpty}, nil
	}

	chunks, err := chunker.Split(string(content), relPath, m.opts.ChunkMaxSize, m.opts.ChunkOverlap)
	if err != nil {
		return nil, err
	}

	for _, c := range chunks {
		if safe, matched := m.sanitizer.Check(c.Text); !safe {
			m.logger.Warn().
				Str("file", relPath).
				Int("chunk", c.Index).
				Strs("patterns", matched).
				Msg("injection pattern in indexed content")
		}
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := m.embedder.GenerateEmbeddings(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(chunks) {
		return nil, fmt.Errorf("embedding count mismatch for %s: %d chunks, %d vectors", relPath, len(chunks), len(vectors))
	}

	kind := vectorstore.KindMemory
	if m.underArchive(path) {
		kind = vectorstore.KindArchive
	}
	date := dateFromFilename(filepath.Base(path))
	indexedAt := m.now()

	rows := make([]vectorstore.Row, len(chunks))
	chunkIDs := make([]string, len(chunks))
	for i, c := range chunks {
		rows[i] = vectorstore.Row{
			ID:         c.ID,
			SourcePath: relPath,
			Filename:   filepath.Base(path),
			ChunkIndex: c.Index,
			Text:       c.Text,
			Vector:     vectors[i],
			SourceKind: kind,
			Date:       date,
			IndexedAt:  indexedAt,
		}
		chunkIDs[i] = c.ID
	}

	if err := m.store.DeleteBySource(ctx, relPath); err != nil {
		return nil, err
	}
	if err := m.store.Upsert(ctx, rows); err != nil {
		return nil, err
	}

	if err := m.prints.Put(relPath, fingerprint.Entry{
		ContentHash: hash,
		ChunkIDs:    chunkIDs,
		IndexedAt:   indexedAt,
	}); err != nil {
		return nil, err
	}

	m.logger.Debug().Str("file", relPath).Int("chunks", len(rows)).Msg("indexed file")
	return &FileResult{Path: relPath, Status: StatusIndexed, Chunks: len(rows)}, nil
}

// IndexObservation embeds and stores one observation as a single row.
// Existing rows are never touched; every observation is a new point.
func (m *Manager) IndexObservation(ctx context.Context, text, tag string) (string, error) {
	vector, err := m.embedder.GenerateEmbedding(ctx, text)
	if err != nil {
		return "", err
	}

	now := m.now()
	id := fmt.Sprintf("obs:%s:%s", now.Format("2006-01-02 15:04"), chunker.HashText(text))

	row := vectorstore.Row{
		ID:         id,
		SourcePath: ObservationSource,
		Filename:   filepath.Base(ObservationSource),
		ChunkIndex: 0,
		Text:       text,
		Vector:     vector,
		SourceKind: vectorstore.KindObservation,
		Tag:        tag,
		Date:       now.Format("2006-01-02"),
		IndexedAt:  now,
	}

	if err := m.store.Upsert(ctx, []vectorstore.Row{row}); err != nil {
		return "", err
	}

	m.logger.Debug().Str("id", id).Str("tag", tag).Msg("indexed observation")
	return id, nil
}

// discover lists indexable markdown files: the warm memory directory
// plus the cold archive directory. Missing directories are fine.
func (m *Manager) discover() ([]string, error) {
	var files []string
	for _, dir := range []string{m.opts.MemoryDir, m.opts.ArchiveDir} {
		matches, err := filepath.Glob(filepath.Join(dir, "*.md"))
		if err != nil {
			return nil, fmt.Errorf("failed to list %s: %w", dir, err)
		}
		files = append(files, matches...)
	}
	sort.Strings(files)
	return files, nil
}

func (m *Manager) relPath(path string) string {
	rel, err := filepath.Rel(m.opts.WorkspaceRoot, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return path
	}
	return filepath.ToSlash(rel)
}

func (m *Manager) underArchive(path string) bool {
	rel, err := filepath.Rel(m.opts.ArchiveDir, path)
	return err == nil && !strings.HasPrefix(rel, "..")
}

var filenameDateRE = regexp.MustCompile(`(\d{4}-\d{2}-\d{2})`)

// dateFromFilename pulls a YYYY-MM-DD date out of a filename like
// 2026-03-14-notes.md. Empty when the name carries no date.
func dateFromFilename(name string) string {
	return filenameDateRE.FindString(name)
}
