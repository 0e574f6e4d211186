package ingestion

import (
	"context"

	"github.com/google/uuid"

	"github.com/devflowinc/trieve-sub001/internal/collision"
	"github.com/devflowinc/trieve-sub001/internal/config"
	"github.com/devflowinc/trieve-sub001/internal/embedding"
	"github.com/devflowinc/trieve-sub001/internal/errs"
	"github.com/devflowinc/trieve-sub001/internal/metadatastore"
	"github.com/devflowinc/trieve-sub001/internal/queue"
	"github.com/devflowinc/trieve-sub001/internal/vectorstore"
)

// BulkUpload runs spec §4.E's eight-step pipeline for a batch of new
// chunks: normalize, resolve duplicates against the collision index,
// persist the surviving rows, embed the canonical ones, attach group and
// tag membership, and upsert the resulting vector points.
func (w *Worker) BulkUpload(ctx context.Context, msg queue.IngestMessage) error {
	cfg, err := w.datasetConfig(ctx, msg.DatasetID)
	if err != nil {
		return err
	}
	collection := vectorstore.CollectionName(msg.DatasetID)
	ix := collision.NewIndex(w.Vectors, collection)

	rows := make([]metadatastore.BulkChunkRow, len(msg.Chunks))
	fingerprints := make([]uuid.UUID, len(msg.Chunks))
	duplicates := make([]bool, len(msg.Chunks))
	for i, in := range msg.Chunks {
		content, html, err := deriveContent(in)
		if err != nil {
			return err
		}
		rows[i] = toRow(in, content, html)
		res, err := ix.Resolve(ctx, msg.DatasetID, content)
		if err != nil {
			return err
		}
		fingerprints[i] = res.Fingerprint
		duplicates[i] = res.IsDuplicate
	}

	result, err := w.Meta.BulkInsertChunks(ctx, msg.DatasetID, rows, fingerprints, msg.UpsertByTrackingID)
	if err != nil {
		return err
	}
	if len(result.Chunks) == 0 {
		return nil
	}

	survivors := correlateSurvivors(msg.Chunks, duplicates, result.Chunks)

	if err := w.linkMembership(ctx, msg.DatasetID, result.Chunks, survivors); err != nil {
		w.revertOnFailure(ctx, msg.UpsertByTrackingID, result.Chunks)
		return err
	}

	var canonicalChunks []metadatastore.Chunk
	var canonicalRows []originalRow
	for i, row := range survivors {
		if row.duplicate {
			canonicalFingerprint := collision.Fingerprint(msg.DatasetID, result.Chunks[i].Content)
			if err := ix.RecordDuplicate(ctx, w.Meta, result.Chunks[i].ID, canonicalFingerprint); err != nil {
				w.revertOnFailure(ctx, msg.UpsertByTrackingID, result.Chunks)
				return err
			}
			continue
		}
		canonicalChunks = append(canonicalChunks, result.Chunks[i])
		canonicalRows = append(canonicalRows, row)
	}

	if len(canonicalChunks) == 0 {
		return nil
	}

	points, err := w.buildPoints(ctx, cfg, msg.DatasetID, canonicalChunks, canonicalRows)
	if err != nil {
		w.revertOnFailure(ctx, msg.UpsertByTrackingID, result.Chunks)
		return err
	}

	if err := vectorstore.UpsertAll(ctx, w.Vectors, collection, points); err != nil {
		w.revertOnFailure(ctx, msg.UpsertByTrackingID, result.Chunks)
		return err
	}
	return nil
}

// revertOnFailure undoes a bulk insert when a later step fails and the
// caller asked for plain inserts rather than upserts (spec §4.E "if any
// later step fails and the batch was not an upsert, the inserted rows
// are reverted"). Upserts are left in place: reverting could destroy a
// pre-existing row that had nothing to do with this batch.
func (w *Worker) revertOnFailure(ctx context.Context, upsertByTrackingID bool, chunks []metadatastore.Chunk) {
	if upsertByTrackingID {
		return
	}
	ids := make([]uuid.UUID, len(chunks))
	for i, c := range chunks {
		ids[i] = c.ID
	}
	if err := w.Meta.RevertBulkInsert(context.Background(), ids); err != nil {
		w.Logger.WithError(err).Error("failed to revert bulk insert after downstream failure")
	}
}

// linkMembership runs step 6's group and tag wiring for every surviving
// chunk, canonical or duplicate: group/tag membership is a metadata-store
// concern independent of whether the chunk owns its own vector point.
func (w *Worker) linkMembership(ctx context.Context, datasetID string, chunks []metadatastore.Chunk, rows []originalRow) error {
	for i, c := range chunks {
		if err := w.linkTags(ctx, datasetID, c.ID, c.TagSet); err != nil {
			return err
		}
		if err := w.linkGroups(ctx, datasetID, c.ID, rows[i].input.GroupTrackingIDs); err != nil {
			return err
		}
	}
	return nil
}

// linkTags upserts a chunk's tag set into the dataset's tag vocabulary
// and links the chunk to the resulting tag rows (spec §4.C tag
// vocabulary, §4.E step 6).
func (w *Worker) linkTags(ctx context.Context, datasetID string, chunkID uuid.UUID, tagSet []string) error {
	if len(tagSet) == 0 {
		return nil
	}
	tags, err := w.Meta.UpsertTags(ctx, datasetID, tagSet)
	if err != nil {
		return err
	}
	ids := make([]uuid.UUID, len(tags))
	for i, t := range tags {
		ids[i] = t.ID
	}
	return w.Meta.LinkChunkTags(ctx, chunkID, ids)
}

func (w *Worker) linkGroups(ctx context.Context, datasetID string, chunkID uuid.UUID, trackingIDs []string) error {
	for _, tid := range trackingIDs {
		g, err := w.Meta.GetOrCreateGroupByTrackingID(ctx, datasetID, tid)
		if err != nil {
			return err
		}
		if err := w.Meta.AddGroupMember(ctx, g.ID, chunkID); err != nil {
			return err
		}
	}
	return nil
}

// resolveGroupPayload builds the group_ids/group_tag_sets payload fields
// for a canonical chunk's vector point from its resolved group
// membership (spec §6 "group_tag_sets: group_id -> that group's tag
// set").
func (w *Worker) resolveGroupPayload(ctx context.Context, datasetID string, trackingIDs []string) ([]string, map[string][]string, error) {
	if len(trackingIDs) == 0 {
		return nil, nil, nil
	}
	ids := make([]string, 0, len(trackingIDs))
	tagSets := make(map[string][]string, len(trackingIDs))
	for _, tid := range trackingIDs {
		g, err := w.Meta.GetOrCreateGroupByTrackingID(ctx, datasetID, tid)
		if err != nil {
			return nil, nil, err
		}
		ids = append(ids, g.ID.String())
		tagSets[g.ID.String()] = g.TagSet
	}
	return ids, tagSets, nil
}

// buildPoints embeds every canonical chunk (dense/sparse/bm25, per the
// dataset's toggles) and assembles the vector-store points ready for
// upsert (spec §4.E step 6-7).
func (w *Worker) buildPoints(ctx context.Context, cfg config.DatasetConfig, datasetID string, chunks []metadatastore.Chunk, rows []originalRow) ([]vectorstore.Point, error) {
	points := make([]vectorstore.Point, len(chunks))
	for i, c := range chunks {
		groupIDs, groupTagSets, err := w.resolveGroupPayload(ctx, datasetID, rows[i].input.GroupTrackingIDs)
		if err != nil {
			return nil, err
		}
		points[i] = vectorstore.Point{
			ID: c.Fingerprint,
			Payload: vectorstore.Payload{
				DatasetID:    datasetID,
				GroupIDs:     groupIDs,
				GroupTagSets: groupTagSets,
				TagSet:       c.TagSet,
				Link:         c.Link,
				Metadata:     c.Metadata,
				TimeStamp:    c.TimeStamp,
				Location:     locationFromLatLon(c.Lat, c.Lon),
				NumValue:     c.NumValue,
				Weight:       c.Weight,
				Content:      c.Content,
			},
		}
	}

	if cfg.SemanticEnabled {
		if err := w.embedDense(ctx, cfg, chunks, rows, points); err != nil {
			return nil, err
		}
	}

	points = w.fillSparse(points)
	if cfg.FulltextEnabled {
		if err := w.embedSparse(ctx, cfg, chunks, rows, points); err != nil {
			return nil, err
		}
	}

	points = w.fillBM25(points)
	if cfg.BM25Enabled {
		w.embedBM25(cfg, chunks, rows, points)
	}

	return points, nil
}

func (w *Worker) embedDense(ctx context.Context, cfg config.DatasetConfig, chunks []metadatastore.Chunk, rows []originalRow, points []vectorstore.Point) error {
	dense := embedding.NewDenseClient(cfg.EmbeddingBaseURL, cfg.EmbeddingModelName, cfg.EmbeddingQueryPrefix, w.Logger)
	inputs := make([]embedding.DenseInput, len(chunks))
	for i, c := range chunks {
		di := embedding.DenseInput{Text: c.Content}
		if phrase := rows[i].input.DistancePhrase; phrase != "" {
			di.Phrase = &embedding.DistancePhrase{Text: phrase, Factor: rows[i].input.DistanceFactor}
		}
		inputs[i] = di
	}
	vecs, err := dense.Embed(ctx, inputs, embedding.RoleDoc)
	if err != nil {
		return err
	}
	for i, v := range vecs {
		denseName, ok := config.DenseVectorNameForDimension(len(v))
		if !ok {
			return errs.BadRequest(errs.CodeInvalidDimension, "embedding model returned an unsupported dimension", nil)
		}
		points[i].Vectors.DenseName = denseName
		points[i].Vectors.Dense = v
	}
	return nil
}

// fillSparse marks every point as carrying a sparse slot, even when
// FULLTEXT_ENABLED is off, so a dataset that later flips the toggle on
// does not leave earlier points missing the named vector slot entirely
// (spec §4.E step 3: "else fill zero-sparse placeholders").
func (w *Worker) fillSparse(points []vectorstore.Point) []vectorstore.Point {
	for i := range points {
		points[i].Vectors.HasSparse = true
	}
	return points
}

func (w *Worker) fillBM25(points []vectorstore.Point) []vectorstore.Point {
	for i := range points {
		points[i].Vectors.HasBM25 = true
	}
	return points
}

func (w *Worker) embedSparse(ctx context.Context, cfg config.DatasetConfig, chunks []metadatastore.Chunk, rows []originalRow, points []vectorstore.Point) error {
	sparse := embedding.NewSparseClient(cfg.SparseBaseURL, "doc", w.Logger)
	inputs := make([]embedding.SparseInput, len(chunks))
	for i, c := range chunks {
		in := embedding.SparseInput{Text: c.Content}
		if phrase := rows[i].input.BoostPhrase; phrase != "" {
			in.Boosts = []embedding.BoostPhrase{{Text: phrase, Factor: rows[i].input.BoostFactor}}
		}
		inputs[i] = in
	}
	vecs, err := sparse.Embed(ctx, inputs)
	if err != nil {
		return err
	}
	for i, v := range vecs {
		points[i].Vectors.Sparse = toStoreTokens(v)
	}
	return nil
}

func (w *Worker) embedBM25(cfg config.DatasetConfig, chunks []metadatastore.Chunk, rows []originalRow, points []vectorstore.Point) {
	docs := make([]embedding.BM25Doc, len(chunks))
	for i, c := range chunks {
		doc := embedding.BM25Doc{Tokens: embedding.Tokenize(c.Content)}
		if phrase := rows[i].input.BoostPhrase; phrase != "" {
			doc.Boosts = []embedding.BoostPhrase{{Text: phrase, Factor: rows[i].input.BoostFactor}}
		}
		docs[i] = doc
	}
	params := embedding.BM25Params{K: cfg.BM25K, B: cfg.BM25B, AvgLen: cfg.BM25AvgLen}
	vecs := embedding.BM25(docs, params)
	for i, v := range vecs {
		points[i].Vectors.BM25 = toStoreTokens(v)
	}
}

func toStoreTokens(v embedding.SparseVector) []vectorstore.TokenWeight {
	out := make([]vectorstore.TokenWeight, len(v))
	for i, tw := range v {
		out[i] = vectorstore.TokenWeight{Index: tw.Index, Value: tw.Value}
	}
	return out
}
