// Package vectorstore defines the vector storage capability boundary
// and ships two backends: an embedded sqlite-vec store (default) and a
// remote qdrant store.
package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

var (
	// ErrStorage reports a vector store read/write failure. Recoverable
	// by caller retry; indexing state is left untouched.
	ErrStorage = errors.New("vector store failure")

	// ErrNotFound reports a point lookup on an unknown or stale chunk id.
	ErrNotFound = errors.New("chunk not found")
)

// Source kinds carried in row metadata.
const (
	KindMemory      = "memory"
	KindObservation = "observation"
	KindArchive     = "archive"
)

// Row is an indexed chunk plus its embedding and metadata. The index
// manager is the only writer.
type Row struct {
	ID         string    `json:"id"`
	SourcePath string    `json:"source_path"`
	Filename   string    `json:"filename"`
	ChunkIndex int       `json:"chunk_index"`
	Text       string    `json:"text"`
	Vector     []float32 `json:"-"`
	SourceKind string    `json:"source_kind"`
	Tag        string    `json:"tag,omitempty"`
	Date       string    `json:"date,omitempty"`
	IndexedAt  time.Time `json:"indexed_at"`
}

// Scored is a query hit: a row with its cosine similarity score.
type Scored struct {
	Row
	Score float64 `json:"score"`
}

// Filter narrows similarity queries by row metadata. Zero values match
// everything.
type Filter struct {
	SourceKind string
	Tag        string
}

func (f Filter) matches(r Row) bool {
	if f.SourceKind != "" && r.SourceKind != f.SourceKind {
		return false
	}
	if f.Tag != "" && r.Tag != f.Tag {
		return false
	}
	return true
}

// Store is the vector storage capability required by the core.
type Store interface {
	// Upsert inserts or replaces rows keyed by chunk id.
	Upsert(ctx context.Context, rows []Row) error
	// DeleteBySource removes every row whose source_path matches.
	DeleteBySource(ctx context.Context, sourcePath string) error
	// Query returns up to k rows ranked by descending cosine similarity,
	// ties broken by chunk id ascending.
	Query(ctx context.Context, vector []float32, k int, filter Filter) ([]Scored, error)
	// Get performs a point lookup by chunk id; ErrNotFound if absent.
	Get(ctx context.Context, id string) (*Row, error)
	// RelocateSource rewrites source metadata in place for every row of a
	// source, without touching vectors. Used when archiving moves a file.
	RelocateSource(ctx context.Context, oldPath, newPath, kind string) error
	// Count returns the number of stored rows.
	Count(ctx context.Context) (int, error)
	Close() error
}

// Backend identifiers accepted by New.
const (
	BackendSQLite = "sqlite"
	BackendQdrant = "qdrant"
)

// Options configures store construction.
type Options struct {
	Backend    string
	Path       string // sqlite database path
	URL        string // qdrant URL
	Collection string // qdrant collection / logical table name
	Dimension  int
	Logger     zerolog.Logger
}

// New builds a Store for the configured backend.
func New(ctx context.Context, opts Options) (Store, error) {
	switch opts.Backend {
	case BackendSQLite, "":
		return NewSQLiteStore(opts.Path, opts.Dimension, opts.Logger)
	case BackendQdrant:
		return NewQdrantStore(ctx, opts.URL, opts.Collection, opts.Dimension, opts.Logger)
	default:
		return nil, fmt.Errorf("unknown vector store backend: %q (supported: sqlite, qdrant)", opts.Backend)
	}
}
