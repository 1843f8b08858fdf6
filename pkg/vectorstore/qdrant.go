package vectorstore

import (
	"context"
	"fmt"
	"net/url"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"github.com/rs/zerolog"
)

// QdrantStore is the remote backend. Chunk ids are not valid qdrant
// point ids, so each point id is a UUIDv5 derived from the chunk id and
// the original id travels in the payload.
type QdrantStore struct {
	client     *qdrant.Client
	collection string
	logger     zerolog.Logger
}

// NewQdrantStore connects to a qdrant instance and ensures the
// collection exists with the configured vector size.
// urlStr is "http://host:port"; the gRPC port is derived from the HTTP
// port.
func NewQdrantStore(ctx context.Context, urlStr, collection string, dimension int, logger zerolog.Logger) (*QdrantStore, error) {
	if collection == "" {
		return nil, fmt.Errorf("%w: collection name is required", ErrStorage)
	}

	parsedURL, err := url.Parse(urlStr)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid qdrant URL: %v", ErrStorage, err)
	}

	host := parsedURL.Hostname()
	if host == "" {
		host = "localhost"
	}

	port := 6334 // default gRPC port
	if parsedURL.Port() != "" {
		if httpPort, err := strconv.Atoi(parsedURL.Port()); err == nil {
			// gRPC port is typically HTTP port + 1
			port = httpPort + 1
		}
	}

	client, err := qdrant.NewClient(&qdrant.Config{Host: host, Port: port})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create qdrant client: %v", ErrStorage, err)
	}

	s := &QdrantStore{client: client, collection: collection, logger: logger}
	if err := s.ensureCollection(ctx, dimension); err != nil {
		client.Close()
		return nil, err
	}
	return s, nil
}

func (s *QdrantStore) ensureCollection(ctx context.Context, dimension int) error {
	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("%w: failed to check collection: %v", ErrStorage, err)
	}
	if exists {
		return nil
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dimension),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("%w: failed to create collection: %v", ErrStorage, err)
	}
	s.logger.Info().Str("collection", s.collection).Int("dimension", dimension).Msg("Created qdrant collection")
	return nil
}

// pointID derives the deterministic qdrant point id for a chunk id.
func pointID(chunkID string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(chunkID)).String()
}

func (s *QdrantStore) Upsert(ctx context.Context, rows []Row) error {
	if len(rows) == 0 {
		return nil
	}

	points := make([]*qdrant.PointStruct, 0, len(rows))
	for _, row := range rows {
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewID(pointID(row.ID)),
			Vectors: qdrant.NewVectors(row.Vector...),
			Payload: qdrant.NewValueMap(map[string]any{
				"id":          row.ID,
				"source_path": row.SourcePath,
				"filename":    row.Filename,
				"chunk_index": int64(row.ChunkIndex),
				"text":        row.Text,
				"source_kind": row.SourceKind,
				"tag":         row.Tag,
				"date":        row.Date,
				"indexed_at":  row.IndexedAt.Unix(),
			}),
		})
	}

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collection,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("%w: failed to upsert points: %v", ErrStorage, err)
	}
	return nil
}

func sourceFilter(sourcePath string) *qdrant.Filter {
	return &qdrant.Filter{
		Must: []*qdrant.Condition{qdrant.NewMatch("source_path", sourcePath)},
	}
}

func (s *QdrantStore) DeleteBySource(ctx context.Context, sourcePath string) error {
	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.collection,
		Points:         qdrant.NewPointsSelectorFilter(sourceFilter(sourcePath)),
	})
	if err != nil {
		return fmt.Errorf("%w: failed to delete points for %s: %v", ErrStorage, sourcePath, err)
	}
	return nil
}

func (s *QdrantStore) Query(ctx context.Context, vector []float32, k int, filter Filter) ([]Scored, error) {
	var conditions []*qdrant.Condition
	if filter.SourceKind != "" {
		conditions = append(conditions, qdrant.NewMatch("source_kind", filter.SourceKind))
	}
	if filter.Tag != "" {
		conditions = append(conditions, qdrant.NewMatch("tag", filter.Tag))
	}

	limit := uint64(k)
	req := &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	}
	if len(conditions) > 0 {
		req.Filter = &qdrant.Filter{Must: conditions}
	}

	points, err := s.client.Query(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%w: query failed: %v", ErrStorage, err)
	}

	results := make([]Scored, 0, len(points))
	for _, point := range points {
		row := rowFromPayload(point.Payload)
		results = append(results, Scored{Row: row, Score: float64(point.Score)})
	}

	// Qdrant already ranks by similarity; re-sort for the deterministic
	// id tie-break.
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})

	return results, nil
}

func (s *QdrantStore) Get(ctx context.Context, id string) (*Row, error) {
	points, err := s.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: s.collection,
		Ids:            []*qdrant.PointId{qdrant.NewID(pointID(id))},
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: get failed: %v", ErrStorage, err)
	}
	if len(points) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	row := rowFromPayload(points[0].Payload)
	return &row, nil
}

func (s *QdrantStore) RelocateSource(ctx context.Context, oldPath, newPath, kind string) error {
	_, err := s.client.SetPayload(ctx, &qdrant.SetPayloadPoints{
		CollectionName: s.collection,
		Payload: qdrant.NewValueMap(map[string]any{
			"source_path": newPath,
			"filename":    filepath.Base(newPath),
			"source_kind": kind,
		}),
		PointsSelector: qdrant.NewPointsSelectorFilter(sourceFilter(oldPath)),
	})
	if err != nil {
		return fmt.Errorf("%w: failed to relocate %s: %v", ErrStorage, oldPath, err)
	}
	return nil
}

func (s *QdrantStore) Count(ctx context.Context) (int, error) {
	exact := true
	count, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: s.collection,
		Exact:          &exact,
	})
	if err != nil {
		return 0, fmt.Errorf("%w: count failed: %v", ErrStorage, err)
	}
	return int(count), nil
}

func (s *QdrantStore) Close() error {
	return s.client.Close()
}

func rowFromPayload(payload map[string]*qdrant.Value) Row {
	return Row{
		ID:         payloadString(payload, "id"),
		SourcePath: payloadString(payload, "source_path"),
		Filename:   payloadString(payload, "filename"),
		ChunkIndex: int(payloadInt(payload, "chunk_index")),
		Text:       payloadString(payload, "text"),
		SourceKind: payloadString(payload, "source_kind"),
		Tag:        payloadString(payload, "tag"),
		Date:       payloadString(payload, "date"),
		IndexedAt:  time.Unix(payloadInt(payload, "indexed_at"), 0).UTC(),
	}
}

func payloadString(payload map[string]*qdrant.Value, key string) string {
	if v, ok := payload[key]; ok {
		return v.GetStringValue()
	}
	return ""
}

func payloadInt(payload map[string]*qdrant.Value, key string) int64 {
	if v, ok := payload[key]; ok {
		return v.GetIntegerValue()
	}
	return 0
}
