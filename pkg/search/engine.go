// Package search runs semantic queries over the vector store with
// progressive disclosure: a cheap summary pass first, then point
// lookups for full chunk content.
package search

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/harun/recall/pkg/embedding"
	"github.com/harun/recall/pkg/vectorstore"
)

// ErrInvalidTopK rejects non-positive result limits.
var ErrInvalidTopK = errors.New("top_k must be positive")

// Defaults applied by the CLI when flags are absent.
const (
	DefaultTopK     = 5
	DefaultMinScore = 0.0
)

// summaryMaxRunes caps the first-line summary length.
const summaryMaxRunes = 120

// Params describes one query.
type Params struct {
	Query    string
	TopK     int
	MinScore float64
	Source   string // substring match on source_path
	Tag      string
	Kind     string // source kind: memory, observation, archive
}

// Metadata is the per-hit chunk metadata.
type Metadata struct {
	Filename   string `json:"filename"`
	ChunkIndex int    `json:"chunk_index"`
	Date       string `json:"date"`
	Tag        string `json:"tag"`
}

// Hit is a full search result.
type Hit struct {
	ID       string   `json:"id"`
	Source   string   `json:"source"`
	Content  string   `json:"content"`
	Score    float64  `json:"score"`
	Metadata Metadata `json:"metadata"`
}

// Summary is the progressive-disclosure index entry: enough to decide
// whether the chunk is worth fetching, at a fraction of the tokens.
type Summary struct {
	ID      string  `json:"id"`
	Source  string  `json:"source"`
	Score   float64 `json:"score"`
	Summary string  `json:"summary"`
	Tag     string  `json:"tag,omitempty"`
}

// Detail is the full content for one chunk id.
type Detail struct {
	ID       string   `json:"id"`
	Source   string   `json:"source"`
	Content  string   `json:"content"`
	Metadata Metadata `json:"metadata"`
}

// Engine executes queries. It never writes to the store.
type Engine struct {
	store    vectorstore.Store
	embedder embedding.Provider
	logger   zerolog.Logger
}

// NewEngine wires a search engine.
func NewEngine(store vectorstore.Store, embedder embedding.Provider, logger zerolog.Logger) *Engine {
	return &Engine{
		store:    store,
		embedder: embedder,
		logger:   logger.With().Str("component", "search").Logger(),
	}
}

// Search returns up to TopK hits ranked by cosine similarity, ties
// broken by chunk id. An empty index yields an empty result, not an
// error.
func (e *Engine) Search(ctx context.Context, p Params) ([]Hit, error) {
	if p.TopK <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidTopK, p.TopK)
	}

	vector, err := e.embedder.GenerateEmbedding(ctx, p.Query)
	if err != nil {
		return nil, err
	}

	// Source substring filtering happens here, not in the store, so
	// overfetch when it is active to keep TopK results reachable.
	fetchK := p.TopK
	if p.Source != "" {
		fetchK = p.TopK * 10
	}

	scored, err := e.store.Query(ctx, vector, fetchK, vectorstore.Filter{
		SourceKind: p.Kind,
		Tag:        p.Tag,
	})
	if err != nil {
		return nil, err
	}

	hits := make([]Hit, 0, p.TopK)
	for _, s := range scored {
		if p.Source != "" && !strings.Contains(s.SourcePath, p.Source) {
			continue
		}
		score := roundScore(s.Score)
		if score < p.MinScore {
			continue
		}
		hits = append(hits, Hit{
			ID:      s.ID,
			Source:  s.SourcePath,
			Content: s.Text,
			Score:   score,
			Metadata: Metadata{
				Filename:   s.Filename,
				ChunkIndex: s.ChunkIndex,
				Date:       s.Date,
				Tag:        s.Tag,
			},
		})
	}

	// Rounding can introduce ties the store never saw, so the id
	// tie-break is re-applied on the rounded scores.
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})
	if len(hits) > p.TopK {
		hits = hits[:p.TopK]
	}

	e.logger.Debug().Str("query", p.Query).Int("hits", len(hits)).Msg("search complete")
	return hits, nil
}

// SearchIndex is progressive disclosure step one: the same ranking as
// Search but each hit reduced to its id, score, and first line.
func (e *Engine) SearchIndex(ctx context.Context, p Params) ([]Summary, error) {
	hits, err := e.Search(ctx, p)
	if err != nil {
		return nil, err
	}

	summaries := make([]Summary, len(hits))
	for i, h := range hits {
		summaries[i] = Summary{
			ID:      h.ID,
			Source:  h.Source,
			Score:   h.Score,
			Summary: Summarize(h.Content),
			Tag:     h.Metadata.Tag,
		}
	}
	return summaries, nil
}

// GetDetail is progressive disclosure step two: full content for a
// chunk id obtained from SearchIndex. Returns vectorstore.ErrNotFound
// for unknown or stale ids.
func (e *Engine) GetDetail(ctx context.Context, chunkID string) (*Detail, error) {
	row, err := e.store.Get(ctx, chunkID)
	if err != nil {
		return nil, err
	}
	return &Detail{
		ID:      row.ID,
		Source:  row.SourcePath,
		Content: row.Text,
		Metadata: Metadata{
			Filename:   row.Filename,
			ChunkIndex: row.ChunkIndex,
			Date:       row.Date,
			Tag:        row.Tag,
		},
	}, nil
}

// Summarize reduces chunk content to its first line, truncated.
func Summarize(content string) string {
	line := content
	if i := strings.IndexByte(content, '\n'); i >= 0 {
		line = content[:i]
	}
	if utf8.RuneCountInString(line) <= summaryMaxRunes {
		return line
	}
	return string([]rune(line)[:summaryMaxRunes])
}

func roundScore(s float64) float64 {
	return math.Round(s*10000) / 10000
}
