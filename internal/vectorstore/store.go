package vectorstore

import (
	"context"

	"github.com/google/uuid"
)

// UpsertBatchSize bounds each upsert round-trip to avoid the vector
// store's payload size limit (spec §4.B, §5).
const UpsertBatchSize = 100

// Store is the Vector Store Adapter contract (spec §4.B). Implementations
// must make Upsert idempotent on Point.ID.
type Store interface {
	CreateCollection(ctx context.Context, cfg CollectionConfig) error
	Upsert(ctx context.Context, collection string, points []Point) error
	Delete(ctx context.Context, collection string, ids []uuid.UUID) error
	UpdateVectors(ctx context.Context, collection string, id uuid.UUID, vectors VectorSet) error
	SetPayload(ctx context.Context, collection string, id uuid.UUID, field string, value any) error
	UpdatePayloadFilter(ctx context.Context, collection string, filter Filter, patch map[string]any) error
	// PatchPayloadKey rewrites a single nested key under a top-level
	// payload field (e.g. one group's entry in group_tag_sets) on every
	// point matching filter, leaving every other key under that field
	// untouched. This is what lets the group/tag propagator (spec §4.J)
	// rewrite one group's tag-set contribution across a page of points
	// without a read-modify-write round trip.
	PatchPayloadKey(ctx context.Context, collection string, filter Filter, field, key string, value any) error
	Search(ctx context.Context, collection string, req SearchRequest) ([]SearchHit, error)
	Count(ctx context.Context, collection string, filter Filter) (int64, error)
	Exists(ctx context.Context, collection string, id uuid.UUID) (bool, error)
}

// UpsertAll chunks points into UpsertBatchSize-sized groups and upserts
// each sequentially, so a single call from the ingestion worker can
// submit an entire bulk batch without tripping the backend's payload
// size limit (spec §4.B).
func UpsertAll(ctx context.Context, store Store, collection string, points []Point) error {
	for start := 0; start < len(points); start += UpsertBatchSize {
		end := start + UpsertBatchSize
		if end > len(points) {
			end = len(points)
		}
		if err := store.Upsert(ctx, collection, points[start:end]); err != nil {
			return err
		}
	}
	return nil
}

// DefaultCollectionConfig builds the named-vector layout for a dataset
// whose embedding model produces `dim`-dimensional dense vectors, with
// sparse and bm25 slots enabled per dataset toggles.
func DefaultCollectionConfig(name string, denseName string, dim int, enableSparse, enableBM25 bool) CollectionConfig {
	return CollectionConfig{
		Name:         name,
		DenseName:    denseName,
		DenseDim:     dim,
		EnableSparse: enableSparse,
		EnableBM25:   enableBM25,
	}
}
