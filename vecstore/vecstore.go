// Package vecstore adapts a Qdrant collection into the similarity index used
// by the triage engine: upsert-by-key, k-nearest-neighbor search and metadata
// hydration over cosine distance.
package vecstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
)

// Dimensions is the embedding width the index is created with. Vectors of any
// other width are rejected by the index.
const Dimensions = 1536

// keyPrefix namespaces every record key in the corpus.
const keyPrefix = "issue:"

// ErrNotFound is returned by Metadata when no record exists for the ID.
var ErrNotFound = errors.New("vecstore: record not found")

// Record is the persisted snapshot of an issue. Labels are denormalized to a
// comma-delimited string in the stored payload.
type Record struct {
	ID        string
	Embedding []float32
	Title     string
	Body      string
	URL       string
	Labels    []string
}

// Neighbor is one k-NN result. Distance is cosine distance: 0 is identical,
// results are ordered ascending.
type Neighbor struct {
	ID       string
	Distance float64
}

type Store struct {
	Log        *slog.Logger
	Collection string

	client *qdrant.Client
}

type Config struct {
	URL        string
	APIKey     string
	Collection string
}

// New connects to Qdrant. The collection itself is created by EnsureIndex.
func New(log *slog.Logger, cfg Config) (*Store, error) {
	host, port := parseHostPort(cfg.URL)

	useTLS := strings.Contains(host, "qdrant.io") || strings.Contains(host, "qdrant.cloud")

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   host,
		Port:   port,
		APIKey: cfg.APIKey,
		UseTLS: useTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to qdrant: %w", err)
	}

	collection := cfg.Collection
	if collection == "" {
		collection = "issues"
	}

	return &Store{
		Log:        log,
		Collection: collection,
		client:     client,
	}, nil
}

func parseHostPort(url string) (string, int) {
	url = strings.TrimPrefix(url, "https://")
	url = strings.TrimPrefix(url, "http://")

	if idx := strings.LastIndex(url, ":"); idx != -1 {
		host := url[:idx]
		var port int
		_, _ = fmt.Sscanf(url[idx+1:], "%d", &port)
		if port == 0 {
			port = 6334
		}
		return host, port
	}

	return url, 6334
}

func (s *Store) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// EnsureIndex creates the collection if it doesn't exist. Calling it against
// an existing collection is a no-op, so process restarts are safe.
func (s *Store) EnsureIndex(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.Collection)
	if err != nil {
		return fmt.Errorf("check collection: %w", err)
	}
	if exists {
		s.Log.Debug("vector index already exists", "collection", s.Collection)
		return nil
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.Collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     Dimensions,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("create collection: %w", err)
	}
	s.Log.Info("created vector index", "collection", s.Collection, "dimensions", Dimensions)
	return nil
}

// pointID maps a record key to a deterministic Qdrant point UUID, so a
// re-insert of the same issue overwrites rather than duplicates.
func pointID(id string) *qdrant.PointId {
	return qdrant.NewIDUUID(uuid.NewSHA1(uuid.NameSpaceURL, []byte(keyPrefix+id)).String())
}

// Insert stores or overwrites the record at rec.ID. Last write wins.
func (s *Store) Insert(ctx context.Context, rec Record) error {
	point := &qdrant.PointStruct{
		Id:      pointID(rec.ID),
		Vectors: qdrant.NewVectors(rec.Embedding...),
		Payload: map[string]*qdrant.Value{
			"id":     qdrant.NewValueString(rec.ID),
			"title":  qdrant.NewValueString(rec.Title),
			"body":   qdrant.NewValueString(rec.Body),
			"url":    qdrant.NewValueString(rec.URL),
			"labels": qdrant.NewValueString(strings.Join(rec.Labels, ",")),
		},
	}

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.Collection,
		Points:         []*qdrant.PointStruct{point},
	})
	if err != nil {
		return fmt.Errorf("upsert %s%s: %w", keyPrefix, rec.ID, err)
	}
	return nil
}

// NearestNeighbors returns up to k results ordered by ascending cosine
// distance. An empty index yields an empty slice, not an error.
//
// Qdrant reports cosine similarity (higher is closer); the adapter converts
// to distance so all callers share the one metric the engine's threshold
// math is written against.
func (s *Store) NearestNeighbors(ctx context.Context, queryEmbedding []float32, k int) ([]Neighbor, error) {
	points, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.Collection,
		Query:          qdrant.NewQuery(queryEmbedding...),
		Limit:          qdrant.PtrOf(uint64(k)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("knn query: %w", err)
	}

	neighbors := make([]Neighbor, 0, len(points))
	for _, point := range points {
		id := ""
		if v := point.Payload["id"]; v != nil {
			id = v.GetStringValue()
		}
		if id == "" {
			continue
		}
		neighbors = append(neighbors, Neighbor{
			ID:       id,
			Distance: 1 - float64(point.Score),
		})
	}
	return neighbors, nil
}

// Metadata returns the stored payload fields for a record, or ErrNotFound.
func (s *Store) Metadata(ctx context.Context, id string) (map[string]string, error) {
	points, err := s.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: s.Collection,
		Ids:            []*qdrant.PointId{pointID(id)},
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get %s%s: %w", keyPrefix, id, err)
	}
	if len(points) == 0 {
		return nil, ErrNotFound
	}

	fields := make(map[string]string, len(points[0].Payload))
	for name, value := range points[0].Payload {
		fields[name] = value.GetStringValue()
	}
	return fields, nil
}

// Similarity converts a cosine distance to a 0.0-1.0 similarity fraction,
// clamped to absorb floating-point or metric anomalies from the index.
func Similarity(distance float64) float64 {
	sim := 1 - distance
	if sim < 0 {
		return 0
	}
	if sim > 1 {
		return 1
	}
	return sim
}

// ScorePercent converts a cosine distance to an integer percentage.
func ScorePercent(distance float64) int {
	return int(math.Round(Similarity(distance) * 100))
}
