// Package archive moves aging memory files from the warm tier into the
// cold archive directory. Archived chunks keep their ids and vectors;
// only row metadata is rewritten, so archiving never re-embeds.
package archive

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/harun/recall/pkg/fingerprint"
	"github.com/harun/recall/pkg/index"
	"github.com/harun/recall/pkg/vectorstore"
)

// protectedFiles never leave the warm tier.
var protectedFiles = map[string]struct{}{
	"core.md":         {},
	"observations.md": {},
	"today.md":        {},
}

// Reindexer force-indexes one file, used by the cold-tier reindex.
type Reindexer interface {
	IndexFile(ctx context.Context, path string, force bool) (*index.FileResult, error)
}

// Move records one file relocation.
type Move struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Result summarizes one archive run.
type Result struct {
	Candidates []string `json:"candidates"`
	Moved      []Move   `json:"moved"`
	Skipped    []string `json:"skipped,omitempty"`
	Failed     []string `json:"failed,omitempty"`
	DryRun     bool     `json:"dry_run"`
}

// Options configures a Manager.
type Options struct {
	WorkspaceRoot string
	MemoryDir     string
	ArchiveDir    string
	AfterDays     int
}

// Manager plans and executes warm-to-cold transitions.
type Manager struct {
	store   vectorstore.Store
	prints  *fingerprint.Store
	indexer Reindexer
	opts    Options
	logger  zerolog.Logger
	now     func() time.Time
}

// NewManager wires an archive manager.
func NewManager(store vectorstore.Store, prints *fingerprint.Store, indexer Reindexer, opts Options, logger zerolog.Logger) *Manager {
	return &Manager{
		store:   store,
		prints:  prints,
		indexer: indexer,
		opts:    opts,
		logger:  logger.With().Str("component", "archive").Logger(),
		now:     time.Now,
	}
}

// Plan lists warm-tier files old enough to archive. Protected files
// and symlinks are never candidates.
func (m *Manager) Plan() ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(m.opts.MemoryDir, "*.md"))
	if err != nil {
		return nil, fmt.Errorf("failed to list memory directory: %w", err)
	}

	var candidates []string
	for _, path := range matches {
		name := filepath.Base(path)
		if _, protected := protectedFiles[name]; protected {
			continue
		}
		info, err := os.Lstat(path)
		if err != nil {
			return nil, fmt.Errorf("failed to stat %s: %w", name, err)
		}
		if info.Mode()&os.ModeSymlink != 0 {
			continue
		}
		if m.oldEnough(name, info.ModTime()) {
			candidates = append(candidates, path)
		}
	}
	sort.Strings(candidates)
	return candidates, nil
}

// Run plans and, when execute is set, moves each candidate into the
// archive directory, relocating its index rows in place. Name
// collisions in the archive are skipped, never overwritten.
func (m *Manager) Run(ctx context.Context, execute bool) (*Result, error) {
	candidates, err := m.Plan()
	if err != nil {
		return nil, err
	}

	result := &Result{DryRun: !execute}
	for _, path := range candidates {
		result.Candidates = append(result.Candidates, filepath.Base(path))
	}
	if !execute {
		return result, nil
	}

	if err := os.MkdirAll(m.opts.ArchiveDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create archive directory: %w", err)
	}

	for _, src := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		name := filepath.Base(src)
		dst := filepath.Join(m.opts.ArchiveDir, name)

		if _, err := os.Stat(dst); err == nil {
			m.logger.Warn().Str("file", name).Msg("archive name collision, skipping")
			result.Skipped = append(result.Skipped, name)
			continue
		}

		// One broken file must not strand the rest of the batch.
		if err := m.move(ctx, src, dst); err != nil {
			m.logger.Error().Err(err).Str("file", name).Msg("archive move failed")
			result.Failed = append(result.Failed, name)
			continue
		}
		result.Moved = append(result.Moved, Move{From: m.relPath(src), To: m.relPath(dst)})
		m.logger.Info().Str("file", name).Msg("archived")
	}

	return result, nil
}

// move relocates the file, its fingerprint, and its store rows. Chunk
// ids are untouched so saved references stay valid.
func (m *Manager) move(ctx context.Context, src, dst string) error {
	if err := os.Rename(src, dst); err != nil {
		return fmt.Errorf("failed to move %s: %w", filepath.Base(src), err)
	}

	oldRel := m.relPath(src)
	newRel := m.relPath(dst)

	if err := m.store.RelocateSource(ctx, oldRel, newRel, vectorstore.KindArchive); err != nil {
		return err
	}
	if _, ok := m.prints.Get(oldRel); ok {
		if err := m.prints.Rename(oldRel, newRel); err != nil {
			return err
		}
	}
	return nil
}

// Reindex force-indexes every file in the archive directory. Used to
// rebuild the cold tier after manual edits.
func (m *Manager) Reindex(ctx context.Context) ([]index.FileResult, error) {
	matches, err := filepath.Glob(filepath.Join(m.opts.ArchiveDir, "*.md"))
	if err != nil {
		return nil, fmt.Errorf("failed to list archive directory: %w", err)
	}
	sort.Strings(matches)

	var results []index.FileResult
	for _, path := range matches {
		fr, err := m.indexer.IndexFile(ctx, path, true)
		if err != nil {
			return results, err
		}
		results = append(results, *fr)
	}
	return results, nil
}

var filenameDateRE = regexp.MustCompile(`(\d{4}-\d{2}-\d{2})`)

// oldEnough prefers a YYYY-MM-DD date embedded in the filename and
// falls back to the modification time.
func (m *Manager) oldEnough(name string, mtime time.Time) bool {
	cutoff := m.now().AddDate(0, 0, -m.opts.AfterDays)
	if match := filenameDateRE.FindString(name); match != "" {
		if fileDate, err := time.Parse("2006-01-02", match); err == nil {
			return fileDate.Before(cutoff)
		}
	}
	return mtime.Before(cutoff)
}

func (m *Manager) relPath(path string) string {
	rel, err := filepath.Rel(m.opts.WorkspaceRoot, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return path
	}
	return filepath.ToSlash(rel)
}
