// Package vectorstore implements the Vector Store Adapter (spec §4.B): a
// collection holding multiple named vectors and a filterable payload,
// upserted/searched/deleted in bulk. Shape (Config, NewClient, Connect,
// IsConnected, HealthCheck, CreateCollection) is grounded on the teacher's
// internal/vectordb/qdrant wrapper; the transport is the real
// github.com/qdrant/go-client gRPC client instead of the teacher's
// hand-rolled HTTP calls.
package vectorstore

import (
	"time"

	"github.com/google/uuid"
)

// VectorSet carries the named vector payloads a single point may hold:
// exactly one dense slot (chosen by dimension), plus optional sparse and
// bm25 vectors (spec §3, §6).
type VectorSet struct {
	DenseName string
	Dense     []float32
	Sparse    []TokenWeight
	HasSparse bool
	BM25      []TokenWeight
	HasBM25   bool
}

// TokenWeight mirrors embedding.TokenWeight without importing that
// package, keeping vectorstore embedder-agnostic.
type TokenWeight struct {
	Index uint32
	Value float32
}

// GeoPoint is a (lat, lon) location payload field (spec §3).
type GeoPoint struct {
	Lat float64
	Lon float64
}

// Payload is the filterable metadata attached to a vector point (spec §3,
// §6): dataset scoping, group membership, tag sets for set-membership
// filters, and the usual scalar/geo/JSON fields.
type Payload struct {
	DatasetID    string
	GroupIDs     []string
	GroupTagSets map[string][]string // group_id -> that group's tag set
	TagSet       []string
	Link         string
	Metadata     map[string]any
	TimeStamp    *time.Time
	Location     *GeoPoint
	NumValue     *float64
	Weight       *float64
	Content      string
}

// Point is one vector-store record, keyed by the chunk's content
// fingerprint (spec GLOSSARY: Fingerprint).
type Point struct {
	ID      uuid.UUID
	Vectors VectorSet
	Payload Payload
}

// ConditionOp enumerates the boolean-filter leaf operators a payload
// filter can compile to (spec §4.G "Filter lowering").
type ConditionOp string

const (
	OpEquals      ConditionOp = "equals"
	OpIn          ConditionOp = "in"           // set-membership (tag_set, group_ids)
	OpRange       ConditionOp = "range"         // numeric or time range
	OpGeoRadius   ConditionOp = "geo_radius"
)

// Condition is one compiled filter leaf (field, op, value).
type Condition struct {
	Field  string
	Op     ConditionOp
	Value  any       // for OpEquals
	Values []string  // for OpIn
	Gte    *float64  // for OpRange (numeric or unix-seconds time)
	Lte    *float64  // for OpRange
	Geo    *GeoFilter // for OpGeoRadius
}

type GeoFilter struct {
	Lat          float64
	Lon          float64
	RadiusMeters float64
}

// Filter is a boolean combination of leaves, matching spec §4.G's
// {must, should, must_not} request shape directly so the search planner
// can hand its compiled filter straight to the adapter.
type Filter struct {
	Must    []Condition
	Should  []Condition
	MustNot []Condition
}

func (f Filter) IsEmpty() bool {
	return len(f.Must) == 0 && len(f.Should) == 0 && len(f.MustNot) == 0
}

// SearchRequest describes one vector-store query: exactly one of
// DenseVectorName/DenseVector or SparseQuery is set (spec §4.G).
type SearchRequest struct {
	DenseVectorName string
	DenseVector     []float32
	SparseQuery     []TokenWeight
	UseSparseVector bool
	BM25Query       []TokenWeight
	UseBM25Vector   bool
	Filter          Filter
	Limit           int
	Offset          int
}

// SearchHit is one scored result from the vector store.
type SearchHit struct {
	ID    uuid.UUID
	Score float32
}

// CollectionConfig describes the named vector slots a dataset's
// collection should expose (spec §6): one dense slot named DenseName of
// dimension DenseDim, plus optional sparse and bm25 slots.
type CollectionConfig struct {
	Name          string
	DenseName     string
	DenseDim      int
	EnableSparse  bool
	EnableBM25    bool
}
