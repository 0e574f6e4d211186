package vectorstore

import (
	"fmt"

	"github.com/google/uuid"
	qdrantgo "github.com/qdrant/go-client/qdrant"

	"github.com/devflowinc/trieve-sub001/internal/errs"
)

// toWirePoint translates a Point into the gRPC PointStruct the qdrant
// client expects, keyed by its fingerprint-derived UUID (spec GLOSSARY:
// Fingerprint).
func toWirePoint(p Point) *qdrantgo.PointStruct {
	return &qdrantgo.PointStruct{
		Id:      qdrantgo.NewIDUUID(p.ID.String()),
		Vectors: toWireVectors(p.Vectors),
		Payload: toWirePayload(p.Payload),
	}
}

// toWireVectors lays out the named-vector slots a point may carry: one
// dense vector under its dimension-specific name, plus optional sparse
// and bm25 vectors (spec §3, §6).
func toWireVectors(v VectorSet) *qdrantgo.Vectors {
	named := map[string]*qdrantgo.Vector{}
	if v.DenseName != "" {
		named[v.DenseName] = qdrantgo.NewVector(v.Dense...)
	}
	if v.HasSparse {
		indices, values := splitTokenWeights(v.Sparse)
		named[SparseVectorName] = qdrantgo.NewVectorSparse(indices, values)
	}
	if v.HasBM25 {
		indices, values := splitTokenWeights(v.BM25)
		named[BM25VectorName] = qdrantgo.NewVectorSparse(indices, values)
	}
	return qdrantgo.NewVectorsMap(named)
}

// SparseVectorName and BM25VectorName are the fixed named-vector slots
// used by every dataset collection (spec §6); duplicated here from
// internal/config to keep vectorstore free of a dependency on it.
const (
	SparseVectorName = "sparse_vectors"
	BM25VectorName   = "bm25_vectors"
)

func splitTokenWeights(tw []TokenWeight) ([]uint32, []float32) {
	indices := make([]uint32, len(tw))
	values := make([]float32, len(tw))
	for i, t := range tw {
		indices[i] = t.Index
		values[i] = t.Value
	}
	return indices, values
}

// toWirePayload flattens the Payload struct into the map of scalar/
// geo/JSON values qdrant stores alongside each point.
func toWirePayload(p Payload) map[string]any {
	m := map[string]any{}
	if p.DatasetID != "" {
		m["dataset_id"] = p.DatasetID
	}
	if len(p.GroupIDs) > 0 {
		m["group_ids"] = toAnySlice(p.GroupIDs)
	}
	if len(p.GroupTagSets) > 0 {
		flat := map[string]any{}
		for groupID, tags := range p.GroupTagSets {
			flat[groupID] = toAnySlice(tags)
		}
		m["group_tag_sets"] = flat
	}
	if len(p.TagSet) > 0 {
		m["tag_set"] = toAnySlice(p.TagSet)
	}
	if p.Link != "" {
		m["link"] = p.Link
	}
	for k, v := range p.Metadata {
		m["metadata."+k] = v
	}
	if p.TimeStamp != nil {
		m["time_stamp"] = p.TimeStamp.Unix()
	}
	if p.Location != nil {
		m["location"] = map[string]any{"lat": p.Location.Lat, "lon": p.Location.Lon}
	}
	if p.NumValue != nil {
		m["num_value"] = *p.NumValue
	}
	if p.Weight != nil {
		m["weight"] = *p.Weight
	}
	if p.Content != "" {
		m["content"] = p.Content
	}
	return m
}

func toAnySlice(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

// toWireFilter lowers a compiled boolean Filter (spec §4.G "Filter
// lowering") into the qdrant Filter message.
func toWireFilter(f Filter) *qdrantgo.Filter {
	if f.IsEmpty() {
		return nil
	}
	return &qdrantgo.Filter{
		Must:    toWireConditions(f.Must),
		Should:  toWireConditions(f.Should),
		MustNot: toWireConditions(f.MustNot),
	}
}

func toWireConditions(cs []Condition) []*qdrantgo.Condition {
	if len(cs) == 0 {
		return nil
	}
	out := make([]*qdrantgo.Condition, 0, len(cs))
	for _, c := range cs {
		out = append(out, toWireCondition(c))
	}
	return out
}

func toWireCondition(c Condition) *qdrantgo.Condition {
	// "id" is never stored as a payload field (toWirePayload never
	// writes one) — it addresses the point id itself, so it lowers to
	// qdrant's dedicated has-id filter rather than a payload match,
	// mirroring MemStore's matchesCondition special case for the same
	// field.
	if c.Field == "id" && c.Op == OpIn {
		ids := make([]*qdrantgo.PointId, 0, len(c.Values))
		for _, v := range c.Values {
			ids = append(ids, qdrantgo.NewIDUUID(v))
		}
		return qdrantgo.NewHasID(ids...)
	}
	switch c.Op {
	case OpEquals:
		return qdrantgo.NewMatch(c.Field, fmt.Sprintf("%v", c.Value))
	case OpIn:
		return qdrantgo.NewMatchKeywords(c.Field, c.Values...)
	case OpRange:
		r := &qdrantgo.Range{}
		if c.Gte != nil {
			r.Gte = c.Gte
		}
		if c.Lte != nil {
			r.Lte = c.Lte
		}
		return qdrantgo.NewRange(c.Field, r)
	case OpGeoRadius:
		if c.Geo == nil {
			return nil
		}
		return qdrantgo.NewGeoRadius(c.Field, float32(c.Geo.Lat), float32(c.Geo.Lon), float32(c.Geo.RadiusMeters))
	default:
		return nil
	}
}

// parseWireID recovers the point's UUID from a qdrant PointId, rejecting
// the numeric-id variant this adapter never issues.
func parseWireID(id *qdrantgo.PointId) (uuid.UUID, error) {
	if id == nil {
		return uuid.UUID{}, errs.Internal("vectorstore_nil_id", "search result missing point id", nil)
	}
	uid := id.GetUuid()
	if uid == "" {
		return uuid.UUID{}, errs.Internal("vectorstore_non_uuid_id", "search result used numeric point id", nil)
	}
	return uuid.Parse(uid)
}

// sparseVectorInput builds the VectorInput a Query-API search uses for a
// named sparse/bm25 vector (spec §4.G's sparse and BM25 retrieval modes).
func sparseVectorInput(tw []TokenWeight) *qdrantgo.VectorInput {
	indices, values := splitTokenWeights(tw)
	return qdrantgo.NewVectorInputSparse(indices, values)
}
