package vectorstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	qdrantgo "github.com/qdrant/go-client/qdrant"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/devflowinc/trieve-sub001/internal/errs"
)

// Client is the gRPC-backed Store implementation. Its public surface
// (NewClient, Connect, IsConnected, HealthCheck, Close) matches the
// teacher's internal/vectordb/qdrant.Client.
type Client struct {
	cfg    *Config
	logger *logrus.Logger

	mu          sync.RWMutex
	conn        *grpc.ClientConn
	points      qdrantgo.PointsClient
	collections qdrantgo.CollectionsClient
}

var _ Store = (*Client)(nil)

func NewClient(cfg *Config, logger *logrus.Logger) (*Client, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Client{cfg: cfg, logger: logger}, nil
}

func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn != nil
}

func (c *Client) Connect(ctx context.Context) error {
	creds := credentials.NewTLS(nil)
	var transportCreds grpc.DialOption
	if c.cfg.UseTLS {
		transportCreds = grpc.WithTransportCredentials(creds)
	} else {
		transportCreds = grpc.WithTransportCredentials(insecure.NewCredentials())
	}

	conn, err := grpc.NewClient(c.cfg.Addr(), transportCreds)
	if err != nil {
		return errs.Transient(errs.CodeRemoteTimeout, "failed to dial qdrant", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.points = qdrantgo.NewPointsClient(conn)
	c.collections = qdrantgo.NewCollectionsClient(conn)
	c.mu.Unlock()

	return c.HealthCheck(ctx)
}

func (c *Client) HealthCheck(ctx context.Context) error {
	c.mu.RLock()
	collections := c.collections
	c.mu.RUnlock()
	if collections == nil {
		return errs.Transient(errs.CodeRemoteTimeout, "qdrant client not connected", nil)
	}
	ctx = c.withAPIKey(ctx)
	_, err := collections.List(ctx, &qdrantgo.ListCollectionsRequest{})
	if err != nil {
		return errs.Transient(errs.CodeRemoteTimeout, "qdrant health check failed", err)
	}
	return nil
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	c.points = nil
	c.collections = nil
	return err
}

func (c *Client) withAPIKey(ctx context.Context) context.Context {
	if c.cfg.APIKey == "" {
		return ctx
	}
	return qdrantgo.NewAuthContext(ctx, c.cfg.APIKey)
}

// CreateCollection provisions the named-vector layout described by cfg:
// one dense slot (cfg.DenseName, cfg.DenseDim), plus optional sparse and
// bm25 slots (spec §6).
func (c *Client) CreateCollection(ctx context.Context, cfg CollectionConfig) error {
	if !c.IsConnected() {
		return errs.Internal("vectorstore_not_connected", "qdrant client not connected", nil)
	}
	ctx = c.withAPIKey(ctx)

	vectorsConfig := qdrantgo.NewVectorsConfigMap(map[string]*qdrantgo.VectorParams{
		cfg.DenseName: {
			Size:     uint64(cfg.DenseDim),
			Distance: qdrantgo.Distance_Cosine,
		},
	})

	req := &qdrantgo.CreateCollection{
		CollectionName: cfg.Name,
		VectorsConfig:  vectorsConfig,
	}

	sparseConfig := map[string]*qdrantgo.SparseVectorParams{}
	if cfg.EnableSparse {
		sparseConfig[SparseVectorName] = &qdrantgo.SparseVectorParams{}
	}
	if cfg.EnableBM25 {
		sparseConfig[BM25VectorName] = &qdrantgo.SparseVectorParams{}
	}
	if len(sparseConfig) > 0 {
		req.SparseVectorsConfig = qdrantgo.NewSparseVectorsConfig(sparseConfig)
	}

	_, err := c.collections.Create(ctx, req)
	if err != nil {
		return errs.Transient(errs.CodeRemoteStatus, "failed to create qdrant collection", err)
	}
	return nil
}

func (c *Client) Upsert(ctx context.Context, collection string, points []Point) error {
	if len(points) == 0 {
		return nil
	}
	if !c.IsConnected() {
		return errs.Internal("vectorstore_not_connected", "qdrant client not connected", nil)
	}
	ctx = c.withAPIKey(ctx)

	wire := make([]*qdrantgo.PointStruct, 0, len(points))
	for _, p := range points {
		wire = append(wire, toWirePoint(p))
	}

	_, err := c.points.Upsert(ctx, &qdrantgo.UpsertPoints{
		CollectionName: collection,
		Points:         wire,
	})
	if err != nil {
		return errs.Transient(errs.CodeRemoteStatus, "failed to upsert vector points", err)
	}
	return nil
}

// Delete removes ids from the named collection.
func (c *Client) Delete(ctx context.Context, collection string, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	if !c.IsConnected() {
		return errs.Internal("vectorstore_not_connected", "qdrant client not connected", nil)
	}
	ctx = c.withAPIKey(ctx)

	pointIDs := make([]*qdrantgo.PointId, 0, len(ids))
	for _, id := range ids {
		pointIDs = append(pointIDs, qdrantgo.NewIDUUID(id.String()))
	}

	_, err := c.points.Delete(ctx, &qdrantgo.DeletePoints{
		CollectionName: collection,
		Points:         qdrantgo.NewPointsSelector(pointIDs),
	})
	if err != nil {
		return errs.Transient(errs.CodeRemoteStatus, "failed to delete vector points", err)
	}
	return nil
}

// UpdateVectors rewrites a point's vectors in place. Used by §4.D's
// canonical election: when the previous canonical is deleted, the
// surviving duplicate's embedding is written under the same point id.
func (c *Client) UpdateVectors(ctx context.Context, collection string, id uuid.UUID, vectors VectorSet) error {
	if !c.IsConnected() {
		return errs.Internal("vectorstore_not_connected", "qdrant client not connected", nil)
	}
	ctx = c.withAPIKey(ctx)

	_, err := c.points.UpdateVectors(ctx, &qdrantgo.UpdatePointVectors{
		CollectionName: collection,
		Points: []*qdrantgo.PointVectors{
			{
				Id:      qdrantgo.NewIDUUID(id.String()),
				Vectors: toWireVectors(vectors),
			},
		},
	})
	if err != nil {
		return errs.Transient(errs.CodeRemoteStatus, "failed to update vector point", err)
	}
	return nil
}

// SetPayload patches a single payload field on one point.
func (c *Client) SetPayload(ctx context.Context, collection string, id uuid.UUID, field string, value any) error {
	if !c.IsConnected() {
		return errs.Internal("vectorstore_not_connected", "qdrant client not connected", nil)
	}
	ctx = c.withAPIKey(ctx)

	_, err := c.points.SetPayload(ctx, &qdrantgo.SetPayloadPoints{
		CollectionName: collection,
		Payload:        qdrantgo.NewValueMap(map[string]any{field: value}),
		PointsSelector: qdrantgo.NewPointsSelector([]*qdrantgo.PointId{qdrantgo.NewIDUUID(id.String())}),
	})
	if err != nil {
		return errs.Transient(errs.CodeRemoteStatus, "failed to set payload", err)
	}
	return nil
}

// UpdatePayloadFilter rewrites payload fields on every point matching
// filter (spec §4.B: "filtered payload patches rather than reads
// followed by writes"), used by the group/tag propagator (§4.J).
func (c *Client) UpdatePayloadFilter(ctx context.Context, collection string, filter Filter, patch map[string]any) error {
	if !c.IsConnected() {
		return errs.Internal("vectorstore_not_connected", "qdrant client not connected", nil)
	}
	ctx = c.withAPIKey(ctx)

	_, err := c.points.SetPayload(ctx, &qdrantgo.SetPayloadPoints{
		CollectionName: collection,
		Payload:        qdrantgo.NewValueMap(patch),
		PointsSelector: qdrantgo.NewPointsSelectorFilter(toWireFilter(filter)),
	})
	if err != nil {
		return errs.Transient(errs.CodeRemoteStatus, "failed to patch payload by filter", err)
	}
	return nil
}

// PatchPayloadKey scopes a SetPayload call to a single nested key via
// qdrant's point-level `key` parameter, so only that key under field
// changes and every sibling key survives untouched (spec §4.J: "filtered
// payload patches rather than reads followed by writes").
func (c *Client) PatchPayloadKey(ctx context.Context, collection string, filter Filter, field, key string, value any) error {
	if !c.IsConnected() {
		return errs.Internal("vectorstore_not_connected", "qdrant client not connected", nil)
	}
	ctx = c.withAPIKey(ctx)

	nestedKey := field + "." + key
	_, err := c.points.SetPayload(ctx, &qdrantgo.SetPayloadPoints{
		CollectionName: collection,
		Payload:        qdrantgo.NewValueMap(map[string]any{field: map[string]any{key: value}}),
		PointsSelector: qdrantgo.NewPointsSelectorFilter(toWireFilter(filter)),
		Key:            &nestedKey,
	})
	if err != nil {
		return errs.Transient(errs.CodeRemoteStatus, "failed to patch nested payload key", err)
	}
	return nil
}

// Search runs one named-vector query (dense, sparse, or bm25 — spec
// §4.G) against the collection using qdrant's universal Query RPC, which
// is the only RPC that accepts sparse vector input directly.
func (c *Client) Search(ctx context.Context, collection string, req SearchRequest) ([]SearchHit, error) {
	if !c.IsConnected() {
		return nil, errs.Internal("vectorstore_not_connected", "qdrant client not connected", nil)
	}
	ctx = c.withAPIKey(ctx)

	limit := uint64(req.Limit)
	offset := uint64(req.Offset)
	qp := &qdrantgo.QueryPoints{
		CollectionName: collection,
		Filter:         toWireFilter(req.Filter),
		Limit:          &limit,
		Offset:         &offset,
		WithPayload:    qdrantgo.NewWithPayloadEnable(false),
	}

	switch {
	case req.UseSparseVector:
		qp.Query = qdrantgo.NewQuery(sparseVectorInput(req.SparseQuery))
		name := SparseVectorName
		qp.Using = &name
	case req.UseBM25Vector:
		qp.Query = qdrantgo.NewQuery(sparseVectorInput(req.BM25Query))
		name := BM25VectorName
		qp.Using = &name
	default:
		qp.Query = qdrantgo.NewQuery(qdrantgo.NewVectorInput(req.DenseVector...))
		name := req.DenseVectorName
		qp.Using = &name
	}

	resp, err := c.points.Query(ctx, qp)
	if err != nil {
		return nil, errs.Transient(errs.CodeRemoteStatus, "vector search failed", err)
	}

	hits := make([]SearchHit, 0, len(resp.Result))
	for _, r := range resp.Result {
		id, err := parseWireID(r.Id)
		if err != nil {
			continue
		}
		hits = append(hits, SearchHit{ID: id, Score: r.Score})
	}
	return hits, nil
}

// Exists reports whether a point with id is currently live in the
// collection, used by the collision index (spec §4.D) to decide whether
// an incoming chunk's fingerprint already has a canonical point.
func (c *Client) Exists(ctx context.Context, collection string, id uuid.UUID) (bool, error) {
	if !c.IsConnected() {
		return false, errs.Internal("vectorstore_not_connected", "qdrant client not connected", nil)
	}
	ctx = c.withAPIKey(ctx)

	resp, err := c.points.Get(ctx, &qdrantgo.GetPoints{
		CollectionName: collection,
		Ids:            []*qdrantgo.PointId{qdrantgo.NewIDUUID(id.String())},
		WithPayload:    qdrantgo.NewWithPayloadEnable(false),
		WithVectors:    qdrantgo.NewWithVectorsEnable(false),
	})
	if err != nil {
		return false, errs.Transient(errs.CodeRemoteStatus, "failed to check point existence", err)
	}
	return len(resp.Result) > 0, nil
}

func (c *Client) Count(ctx context.Context, collection string, filter Filter) (int64, error) {
	if !c.IsConnected() {
		return 0, errs.Internal("vectorstore_not_connected", "qdrant client not connected", nil)
	}
	ctx = c.withAPIKey(ctx)

	exact := true
	resp, err := c.points.Count(ctx, &qdrantgo.CountPoints{
		CollectionName: collection,
		Filter:         toWireFilter(filter),
		Exact:          &exact,
	})
	if err != nil {
		return 0, errs.Transient(errs.CodeRemoteStatus, "count failed", err)
	}
	return int64(resp.Result.Count), nil
}

// CollectionName derives the per-dataset collection name used throughout
// the ingestion and search paths (spec §6: one collection per dataset).
func CollectionName(datasetID string) string {
	return fmt.Sprintf("dataset_%s", datasetID)
}
