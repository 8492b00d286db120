// Package qdrant implements a vector index on a Qdrant collection.
package qdrant

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/kozaktomas/face-registry/internal/config"
	"github.com/kozaktomas/face-registry/internal/database"
	"github.com/qdrant/go-client/qdrant"
)

// Index is a VectorIndex over a single Qdrant collection using cosine distance.
type Index struct {
	client     *qdrant.Client
	collection string
	dim        int
}

var _ database.VectorIndex = (*Index)(nil)

// NewClient connects to Qdrant over gRPC.
func NewClient(cfg config.QdrantConfig) (*qdrant.Client, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize qdrant client: %w", err)
	}
	return client, nil
}

// NewIndex returns an index on collection, creating the collection when it does not exist.
func NewIndex(ctx context.Context, client *qdrant.Client, collection string, dim int) (*Index, error) {
	if collection == "" {
		return nil, errors.New("collection name cannot be empty")
	}
	idx := &Index{client: client, collection: collection, dim: dim}
	if err := idx.ensureCollection(ctx); err != nil {
		return nil, err
	}
	return idx, nil
}

func (i *Index) ensureCollection(ctx context.Context) error {
	exists, err := i.client.CollectionExists(ctx, i.collection)
	if err != nil {
		return fmt.Errorf("failed to check collection %s: %w", i.collection, err)
	}
	if exists {
		return nil
	}

	err = i.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: i.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(i.dim),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to create collection %s: %w", i.collection, err)
	}
	return nil
}

// Upsert inserts or replaces the point stored under id. Ids must be UUIDs.
func (i *Index) Upsert(ctx context.Context, id string, embedding []float32, metadata map[string]any) error {
	if len(embedding) != i.dim {
		return fmt.Errorf("embedding dimension mismatch: expected %d, got %d", i.dim, len(embedding))
	}
	payload, err := qdrant.TryValueMap(metadata)
	if err != nil {
		return fmt.Errorf("invalid metadata for %s: %w", id, err)
	}

	wait := true
	_, err = i.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: i.collection,
		Wait:           &wait,
		Points: []*qdrant.PointStruct{{
			Id:      qdrant.NewID(id),
			Vectors: qdrant.NewVectors(embedding...),
			Payload: payload,
		}},
	})
	if err != nil {
		return fmt.Errorf("failed to upsert point %s: %w", id, err)
	}
	return nil
}

// Query returns up to topK points ranked by cosine similarity.
func (i *Index) Query(ctx context.Context, embedding []float32, topK int, filter database.VectorFilter) ([]database.VectorMatch, error) {
	if topK <= 0 {
		return nil, nil
	}

	limit := uint64(topK)
	points, err := i.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: i.collection,
		Query:          qdrant.NewQuery(embedding...),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
		Filter:         buildFilter(filter),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query collection %s: %w", i.collection, err)
	}
	return parseScoredPoints(points)
}

// buildFilter turns equality conditions into a Qdrant must-filter.
func buildFilter(filter database.VectorFilter) *qdrant.Filter {
	if len(filter) == 0 {
		return nil
	}
	keys := make([]string, 0, len(filter))
	for k := range filter {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	conditions := make([]*qdrant.Condition, 0, len(keys))
	for _, k := range keys {
		conditions = append(conditions, qdrant.NewMatch(k, filter[k]))
	}
	return &qdrant.Filter{Must: conditions}
}

func parseScoredPoints(points []*qdrant.ScoredPoint) ([]database.VectorMatch, error) {
	matches := make([]database.VectorMatch, 0, len(points))
	for _, p := range points {
		id, err := pointID(p.GetId())
		if err != nil {
			return nil, err
		}
		matches = append(matches, database.VectorMatch{
			ID:       id,
			Score:    float64(p.GetScore()),
			Metadata: convertPayload(p.GetPayload()),
		})
	}
	return matches, nil
}

func pointID(id *qdrant.PointId) (string, error) {
	if id == nil {
		return "", errors.New("nil point ID")
	}
	switch v := id.GetPointIdOptions().(type) {
	case *qdrant.PointId_Num:
		return fmt.Sprintf("%d", v.Num), nil
	case *qdrant.PointId_Uuid:
		return v.Uuid, nil
	default:
		return "", fmt.Errorf("unexpected PointId type: %T", v)
	}
}

func convertPayload(payload map[string]*qdrant.Value) map[string]any {
	result := make(map[string]any, len(payload))
	for k, v := range payload {
		result[k] = convertValue(v)
	}
	return result
}

func convertValue(v *qdrant.Value) any {
	if v == nil {
		return nil
	}
	switch val := v.GetKind().(type) {
	case *qdrant.Value_StringValue:
		return val.StringValue
	case *qdrant.Value_IntegerValue:
		return val.IntegerValue
	case *qdrant.Value_DoubleValue:
		return val.DoubleValue
	case *qdrant.Value_BoolValue:
		return val.BoolValue
	case *qdrant.Value_StructValue:
		if val.StructValue == nil {
			return nil
		}
		return convertPayload(val.StructValue.GetFields())
	case *qdrant.Value_ListValue:
		if val.ListValue == nil {
			return nil
		}
		items := make([]any, len(val.ListValue.GetValues()))
		for i, item := range val.ListValue.GetValues() {
			items[i] = convertValue(item)
		}
		return items
	default:
		return nil
	}
}
