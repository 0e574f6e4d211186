// Package search implements the Search Planner (spec §4.G): hybrid query
// execution across dense/sparse/BM25/full-text indices, filter lowering,
// reciprocal-rank fusion, pagination, and result assembly against the
// metadata store. Grounded on the teacher's internal/rag retriever
// interfaces (DenseRetriever/SparseRetriever/Reranker, FusionMethod enum)
// per SPEC_FULL.md's module expansion for component G.
package search

import (
	"time"

	"github.com/google/uuid"

	"github.com/devflowinc/trieve-sub001/internal/metadatastore"
	"github.com/devflowinc/trieve-sub001/internal/vectorstore"
)

// Type selects the query strategy (spec §4.G, §9 "tagged variant").
type Type string

const (
	TypeSemantic Type = "semantic"
	TypeFulltext Type = "fulltext"
	TypeBM25     Type = "bm25"
	TypeHybrid   Type = "hybrid"
)

// MaxPageWindow bounds offset-based pagination (spec §4.G: "bounded
// window (<= 500); beyond that, callers must supply a cursor").
const MaxPageWindow = 500

// DefaultOversample multiplies PageSize to decide how many raw hits to
// pull from the vector store before result assembly drops orphans and
// reranking truncates back down (spec §4.G "k=page_size*oversample").
const DefaultOversample = 3

// Weights overrides RRF with a normalized weighted-sum fusion when any
// field is nonzero (spec §4.G hybrid fusion).
type Weights struct {
	Semantic float64
	Fulltext float64
	BM25     float64
}

func (w *Weights) isZero() bool {
	return w == nil || (w.Semantic == 0 && w.Fulltext == 0 && w.BM25 == 0)
}

// DateRange is a time-bounded filter leaf (spec §4.G).
type DateRange struct {
	Gte *time.Time
	Lte *time.Time
}

// Request is one normalized search request (spec §4.G request shape).
type Request struct {
	DatasetID string
	Query     string
	Type      Type

	Filter    vectorstore.Filter // caller-compiled boolean leaves (must/should/must_not)
	TagFilter []string           // chunk tag_set set-membership, lowered into Filter
	GroupID   *uuid.UUID         // search_within_group: adds group_ids ∋ G
	DateRange *DateRange
	Geo       *vectorstore.GeoFilter

	Page     int
	PageSize int
	Cursor   *uuid.UUID // required when Page*PageSize would exceed MaxPageWindow

	Rerank            bool
	UseTypoCorrection bool
	Weights           *Weights
	MMR               bool
}

func (r Request) pageSize() int {
	if r.PageSize <= 0 {
		return 10
	}
	return r.PageSize
}

func (r Request) offset() int {
	if r.Page <= 0 {
		return 0
	}
	return r.Page * r.pageSize()
}

// Diagnostic reports a sub-query's outcome for the caller's diagnostic
// channel (spec §7: "diagnostic channel for slow/failed sub-queries").
type Diagnostic struct {
	Stage   string
	Err     error
	Dropped int
}

// Result is the planner's response: a possibly-empty chunk list plus
// diagnostics, never a hard error for recoverable sub-query failures
// (spec §7 "Search always returns a (possibly empty) result list on
// recoverable errors").
type Result struct {
	Chunks      []metadatastore.Chunk
	Diagnostics []Diagnostic
	TypoChanged bool
	Corrected   string
}
