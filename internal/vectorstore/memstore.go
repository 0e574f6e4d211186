package vectorstore

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// MemStore is an in-process Store used by package tests and by other
// components' tests (ingestion, search, grouptag, dataset) that need a
// vector store without a live qdrant instance. It implements filter
// evaluation directly against Payload rather than compiling to wire
// protos, so tests exercise the same Filter semantics the real adapter
// lowers from (spec §4.G).
type MemStore struct {
	mu          sync.RWMutex
	collections map[string]bool
	points      map[string]map[uuid.UUID]Point // collection -> id -> point
}

func NewMemStore() *MemStore {
	return &MemStore{
		collections: map[string]bool{},
		points:      map[string]map[uuid.UUID]Point{},
	}
}

var _ Store = (*MemStore)(nil)

func (m *MemStore) CreateCollection(ctx context.Context, cfg CollectionConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.collections[cfg.Name] = true
	if m.points[cfg.Name] == nil {
		m.points[cfg.Name] = map[uuid.UUID]Point{}
	}
	return nil
}

func (m *MemStore) Upsert(ctx context.Context, collection string, points []Point) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.points[collection] == nil {
		m.points[collection] = map[uuid.UUID]Point{}
	}
	for _, p := range points {
		m.points[collection][p.ID] = p
	}
	return nil
}

func (m *MemStore) Delete(ctx context.Context, collection string, ids []uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	bucket := m.points[collection]
	for _, id := range ids {
		delete(bucket, id)
	}
	return nil
}

func (m *MemStore) UpdateVectors(ctx context.Context, collection string, id uuid.UUID, vectors VectorSet) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	bucket := m.points[collection]
	p, ok := bucket[id]
	if !ok {
		return nil
	}
	p.Vectors = vectors
	bucket[id] = p
	return nil
}

func (m *MemStore) SetPayload(ctx context.Context, collection string, id uuid.UUID, field string, value any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	bucket := m.points[collection]
	p, ok := bucket[id]
	if !ok {
		return nil
	}
	setPayloadField(&p.Payload, field, value)
	bucket[id] = p
	return nil
}

func (m *MemStore) UpdatePayloadFilter(ctx context.Context, collection string, filter Filter, patch map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	bucket := m.points[collection]
	for id, p := range bucket {
		if !matchesFilter(id, p.Payload, filter) {
			continue
		}
		for field, value := range patch {
			setPayloadField(&p.Payload, field, value)
		}
		bucket[id] = p
	}
	return nil
}

func (m *MemStore) PatchPayloadKey(ctx context.Context, collection string, filter Filter, field, key string, value any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	bucket := m.points[collection]
	for id, p := range bucket {
		if !matchesFilter(id, p.Payload, filter) {
			continue
		}
		setPayloadField(&p.Payload, field+"."+key, value)
		bucket[id] = p
	}
	return nil
}

func (m *MemStore) Search(ctx context.Context, collection string, req SearchRequest) ([]SearchHit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	bucket := m.points[collection]
	hits := make([]SearchHit, 0, len(bucket))
	for id, p := range bucket {
		if !matchesFilter(id, p.Payload, req.Filter) {
			continue
		}
		hits = append(hits, SearchHit{ID: id, Score: scoreAgainst(p.Vectors, req)})
	}
	sortHitsDesc(hits)
	start := req.Offset
	if start > len(hits) {
		start = len(hits)
	}
	end := start + req.Limit
	if req.Limit <= 0 || end > len(hits) {
		end = len(hits)
	}
	return hits[start:end], nil
}

func (m *MemStore) Exists(ctx context.Context, collection string, id uuid.UUID) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.points[collection][id]
	return ok, nil
}

func (m *MemStore) Count(ctx context.Context, collection string, filter Filter) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var n int64
	for id, p := range m.points[collection] {
		if matchesFilter(id, p.Payload, filter) {
			n++
		}
	}
	return n, nil
}

// setPayloadField applies one patch entry, understanding the dotted
// nested-path convention wire.go's toWirePayload uses for metadata and
// per-group tag-set contributions ("metadata.<key>",
// "group_tag_sets.<group_id>") so UpdatePayloadFilter can replace a
// single group's tag-set slice without touching any other group's
// contribution to the same point (spec §4.J, P5).
func setPayloadField(p *Payload, field string, value any) {
	switch {
	case field == "link":
		p.Link, _ = value.(string)
	case field == "tag_set":
		if v, ok := value.([]string); ok {
			p.TagSet = v
		}
	case field == "group_ids":
		if v, ok := value.([]string); ok {
			p.GroupIDs = v
		}
	case strings.HasPrefix(field, "group_tag_sets."):
		groupID := strings.TrimPrefix(field, "group_tag_sets.")
		if p.GroupTagSets == nil {
			p.GroupTagSets = map[string][]string{}
		}
		if value == nil {
			delete(p.GroupTagSets, groupID)
			return
		}
		if v, ok := value.([]string); ok {
			p.GroupTagSets[groupID] = v
		}
	case strings.HasPrefix(field, "metadata."):
		if p.Metadata == nil {
			p.Metadata = map[string]any{}
		}
		p.Metadata[strings.TrimPrefix(field, "metadata.")] = value
	default:
		if p.Metadata == nil {
			p.Metadata = map[string]any{}
		}
		p.Metadata[field] = value
	}
}

func matchesFilter(id uuid.UUID, p Payload, f Filter) bool {
	for _, c := range f.Must {
		if !matchesCondition(id, p, c) {
			return false
		}
	}
	for _, c := range f.MustNot {
		if matchesCondition(id, p, c) {
			return false
		}
	}
	if len(f.Should) > 0 {
		any := false
		for _, c := range f.Should {
			if matchesCondition(id, p, c) {
				any = true
				break
			}
		}
		if !any {
			return false
		}
	}
	return true
}

func matchesCondition(id uuid.UUID, p Payload, c Condition) bool {
	switch c.Op {
	case OpEquals:
		switch c.Field {
		case "dataset_id":
			return p.DatasetID == c.Value
		case "link":
			return p.Link == c.Value
		case "id":
			return id.String() == c.Value
		default:
			return p.Metadata[c.Field] == c.Value
		}
	case OpIn:
		switch c.Field {
		case "tag_set":
			return anyOverlap(p.TagSet, c.Values)
		case "group_ids":
			return anyOverlap(p.GroupIDs, c.Values)
		case "group_tag_sets":
			for _, tags := range p.GroupTagSets {
				if anyOverlap(tags, c.Values) {
					return true
				}
			}
			return false
		case "id":
			for _, v := range c.Values {
				if v == id.String() {
					return true
				}
			}
			return false
		default:
			return false
		}
	case OpRange:
		var v float64
		switch c.Field {
		case "num_value":
			if p.NumValue == nil {
				return false
			}
			v = *p.NumValue
		case "time_stamp":
			if p.TimeStamp == nil {
				return false
			}
			v = float64(p.TimeStamp.Unix())
		default:
			return false
		}
		if c.Gte != nil && v < *c.Gte {
			return false
		}
		if c.Lte != nil && v > *c.Lte {
			return false
		}
		return true
	default:
		return false
	}
}

func anyOverlap(haystack, needles []string) bool {
	set := map[string]bool{}
	for _, h := range haystack {
		set[strings.ToLower(h)] = true
	}
	for _, n := range needles {
		if set[strings.ToLower(n)] {
			return true
		}
	}
	return false
}

func scoreAgainst(v VectorSet, req SearchRequest) float32 {
	switch {
	case req.UseSparseVector:
		return dotSparse(v.Sparse, req.SparseQuery)
	case req.UseBM25Vector:
		return dotSparse(v.BM25, req.BM25Query)
	default:
		return dotDense(v.Dense, req.DenseVector)
	}
}

func dotDense(a, b []float32) float32 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float32
	for i := 0; i < n; i++ {
		sum += a[i] * b[i]
	}
	return sum
}

func dotSparse(a, b []TokenWeight) float32 {
	vals := map[uint32]float32{}
	for _, t := range a {
		vals[t.Index] = t.Value
	}
	var sum float32
	for _, t := range b {
		sum += vals[t.Index] * t.Value
	}
	return sum
}

func sortHitsDesc(hits []SearchHit) {
	for i := 1; i < len(hits); i++ {
		for j := i; j > 0 && hits[j].Score > hits[j-1].Score; j-- {
			hits[j], hits[j-1] = hits[j-1], hits[j]
		}
	}
}
