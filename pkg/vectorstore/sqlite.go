package vectorstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

func init() {
	// Auto-register sqlite-vec extension
	sqlite_vec.Auto()
}

// SQLiteStore is the embedded default backend: chunk metadata in a
// regular table, vectors in a sqlite-vec vec0 virtual table.
type SQLiteStore struct {
	db     *sql.DB
	logger zerolog.Logger
}

// NewSQLiteStore opens (creating if needed) the database at path.
func NewSQLiteStore(path string, dimension int, logger zerolog.Logger) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: database path is required", ErrStorage)
	}
	if dimension <= 0 {
		return nil, fmt.Errorf("%w: vector dimension must be positive, got %d", ErrStorage, dimension)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("%w: failed to create database directory: %v", ErrStorage, err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open database: %v", ErrStorage, err)
	}

	// WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: failed to enable WAL mode: %v", ErrStorage, err)
	}

	s := &SQLiteStore{db: db, logger: logger}
	if err := s.initSchema(dimension); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

func (s *SQLiteStore) initSchema(dimension int) error {
	schema := `
		CREATE TABLE IF NOT EXISTS chunks (
			id TEXT PRIMARY KEY,
			source_path TEXT NOT NULL,
			filename TEXT NOT NULL,
			chunk_index INTEGER NOT NULL,
			content TEXT NOT NULL,
			source_kind TEXT NOT NULL,
			tag TEXT NOT NULL DEFAULT '',
			date TEXT NOT NULL DEFAULT '',
			indexed_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_chunks_source ON chunks(source_path);
		CREATE INDEX IF NOT EXISTS idx_chunks_kind ON chunks(source_kind);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("%w: failed to initialize schema: %v", ErrStorage, err)
	}

	vectorSchema := fmt.Sprintf(`
		CREATE VIRTUAL TABLE IF NOT EXISTS embeddings USING vec0(
			chunk_id TEXT PRIMARY KEY,
			embedding float[%d] distance_metric=cosine
		);
	`, dimension)
	if _, err := s.db.Exec(vectorSchema); err != nil {
		return fmt.Errorf("%w: failed to create vector table: %v", ErrStorage, err)
	}

	return nil
}

func (s *SQLiteStore) Upsert(ctx context.Context, rows []Row) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
	defer tx.Rollback()

	for _, row := range rows {
		_, err := tx.ExecContext(ctx, `
			INSERT OR REPLACE INTO chunks
				(id, source_path, filename, chunk_index, content, source_kind, tag, date, indexed_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			row.ID, row.SourcePath, row.Filename, row.ChunkIndex, row.Text,
			row.SourceKind, row.Tag, row.Date, row.IndexedAt.Unix(),
		)
		if err != nil {
			return fmt.Errorf("%w: failed to insert chunk %s: %v", ErrStorage, row.ID, err)
		}

		vectorJSON, err := json.Marshal(row.Vector)
		if err != nil {
			return fmt.Errorf("%w: failed to marshal vector for %s: %v", ErrStorage, row.ID, err)
		}
		_, err = tx.ExecContext(ctx,
			"INSERT OR REPLACE INTO embeddings (chunk_id, embedding) VALUES (?, ?)",
			row.ID, string(vectorJSON),
		)
		if err != nil {
			return fmt.Errorf("%w: failed to insert embedding for %s: %v", ErrStorage, row.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return nil
}

func (s *SQLiteStore) DeleteBySource(ctx context.Context, sourcePath string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM embeddings WHERE chunk_id IN (SELECT id FROM chunks WHERE source_path = ?)",
		sourcePath,
	); err != nil {
		return fmt.Errorf("%w: failed to delete embeddings for %s: %v", ErrStorage, sourcePath, err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM chunks WHERE source_path = ?", sourcePath); err != nil {
		return fmt.Errorf("%w: failed to delete chunks for %s: %v", ErrStorage, sourcePath, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return nil
}

// Query brute-force scans the vector table and resolves metadata per
// candidate. Corpus sizes here are personal-agent scale, so a full
// scan is acceptable.
func (s *SQLiteStore) Query(ctx context.Context, vector []float32, k int, filter Filter) ([]Scored, error) {
	vectorJSON, err := json.Marshal(vector)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to marshal query vector: %v", ErrStorage, err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT chunk_id, vec_distance_cosine(embedding, ?) AS distance
		FROM embeddings
	`, string(vectorJSON))
	if err != nil {
		return nil, fmt.Errorf("%w: vector query failed: %v", ErrStorage, err)
	}
	defer rows.Close()

	type candidate struct {
		id    string
		score float64
	}
	var candidates []candidate
	for rows.Next() {
		var c candidate
		var distance float64
		if err := rows.Scan(&c.id, &distance); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStorage, err)
		}
		// Cosine distance in [0, 2] -> similarity = 1 - distance.
		c.score = 1.0 - distance
		candidates = append(candidates, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].id < candidates[j].id
	})

	results := make([]Scored, 0, k)
	for _, c := range candidates {
		if len(results) == k {
			break
		}
		row, err := s.Get(ctx, c.id)
		if err != nil {
			// Metadata row missing for a vector is an inconsistency worth
			// logging, but one orphan must not fail the whole query.
			s.logger.Warn().Str("chunk_id", c.id).Err(err).Msg("Orphan vector during query")
			continue
		}
		if !filter.matches(*row) {
			continue
		}
		results = append(results, Scored{Row: *row, Score: c.score})
	}

	return results, nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (*Row, error) {
	var row Row
	var indexedAt int64
	err := s.db.QueryRowContext(ctx, `
		SELECT id, source_path, filename, chunk_index, content, source_kind, tag, date, indexed_at
		FROM chunks WHERE id = ?`, id,
	).Scan(&row.ID, &row.SourcePath, &row.Filename, &row.ChunkIndex, &row.Text,
		&row.SourceKind, &row.Tag, &row.Date, &indexedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	row.IndexedAt = time.Unix(indexedAt, 0).UTC()
	return &row, nil
}

func (s *SQLiteStore) RelocateSource(ctx context.Context, oldPath, newPath, kind string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE chunks SET source_path = ?, filename = ?, source_kind = ? WHERE source_path = ?",
		newPath, filepath.Base(newPath), kind, oldPath,
	)
	if err != nil {
		return fmt.Errorf("%w: failed to relocate %s: %v", ErrStorage, oldPath, err)
	}
	return nil
}

func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM chunks").Scan(&count); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return count, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
