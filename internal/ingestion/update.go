package ingestion

import (
	"context"

	"github.com/devflowinc/trieve-sub001/internal/collision"
	"github.com/devflowinc/trieve-sub001/internal/errs"
	"github.com/devflowinc/trieve-sub001/internal/metadatastore"
	"github.com/devflowinc/trieve-sub001/internal/queue"
	"github.com/devflowinc/trieve-sub001/internal/vectorstore"
)

// Update runs spec §4.E's single-chunk update pipeline: only content
// changes trigger re-embedding; every other field change is a payload
// patch against the existing vector point.
func (w *Worker) Update(ctx context.Context, msg queue.IngestMessage) error {
	existing, err := w.Meta.GetChunk(ctx, msg.DatasetID, msg.ChunkID)
	if err != nil {
		return err
	}
	cfg, err := w.datasetConfig(ctx, msg.DatasetID)
	if err != nil {
		return err
	}

	if err := w.rejectTrackingIDConflict(ctx, msg.DatasetID, existing, msg.Update); err != nil {
		return err
	}

	content, html, err := deriveContent(msg.Update)
	if err != nil {
		return err
	}
	if content == "" {
		content = existing.Content
		html = existing.HTML
	}
	contentChanged := content != existing.Content

	updated := applyUpdate(existing, msg.Update, content, html)
	if contentChanged {
		updated.Fingerprint = collision.Fingerprint(msg.DatasetID, content)
	}
	if err := w.Meta.UpdateChunk(ctx, updated); err != nil {
		return err
	}

	if err := w.linkTags(ctx, msg.DatasetID, updated.ID, updated.TagSet); err != nil {
		return err
	}
	if err := w.linkGroups(ctx, msg.DatasetID, updated.ID, msg.Update.GroupTrackingIDs); err != nil {
		return err
	}

	collection := vectorstore.CollectionName(msg.DatasetID)
	if !contentChanged {
		return w.patchPayload(ctx, collection, msg.DatasetID, updated, msg.Update)
	}

	// Release the chunk's hold on its old fingerprint the way Delete does:
	// a duplicate drops its collision ref; a canonical hands its point to
	// the oldest surviving duplicate or removes it.
	_, wasDuplicate, err := w.Meta.CollisionFingerprint(ctx, existing.ID)
	if err != nil {
		return err
	}
	if wasDuplicate {
		err = w.Meta.DeleteCollision(ctx, existing.ID)
	} else {
		err = w.deleteCanonicalVector(ctx, msg.DatasetID, existing)
	}
	if err != nil {
		return err
	}

	ix := collision.NewIndex(w.Vectors, collection)
	res, err := ix.Resolve(ctx, msg.DatasetID, content)
	if err != nil {
		return err
	}
	if res.IsDuplicate {
		return ix.RecordDuplicate(ctx, w.Meta, updated.ID, res.Fingerprint)
	}

	points, err := w.buildPoints(ctx, cfg, msg.DatasetID, []metadatastore.Chunk{updated}, []originalRow{{input: msg.Update}})
	if err != nil {
		return err
	}
	return vectorstore.UpsertAll(ctx, w.Vectors, collection, points)
}

// rejectTrackingIDConflict enforces the dataset-wide uniqueness of
// tracking ids on update, surfacing the same non-retryable error the
// bulk path handles by silently skipping a conflicting row (spec §4.E
// retry policy: "DuplicateTrackingId is non-retryable and consumed
// silently").
func (w *Worker) rejectTrackingIDConflict(ctx context.Context, datasetID string, existing metadatastore.Chunk, update queue.ChunkInput) error {
	if update.TrackingID == nil {
		return nil
	}
	if existing.TrackingID != nil && *update.TrackingID == *existing.TrackingID {
		return nil
	}
	other, err := w.Meta.GetChunkByTrackingID(ctx, datasetID, *update.TrackingID)
	if err != nil {
		if errs.IsNotFound(err) {
			return nil
		}
		return err
	}
	if other.ID == existing.ID {
		return nil
	}
	return errs.BadRequest(errs.CodeDuplicateTrackingID, "tracking id already in use by another chunk", nil)
}

// applyUpdate overlays the non-empty fields of an update onto an
// existing chunk; fields the caller left unset keep their current value
// (spec §4.E: "only the fields present in the update are changed").
func applyUpdate(existing metadatastore.Chunk, update queue.ChunkInput, content, html string) metadatastore.Chunk {
	out := existing
	out.Content = content
	out.HTML = html
	if update.Link != "" {
		out.Link = update.Link
	}
	if update.TrackingID != nil {
		out.TrackingID = update.TrackingID
	}
	if update.Metadata != nil {
		out.Metadata = update.Metadata
	}
	if update.TimeStampRFC3339 != "" {
		out.TimeStamp = parseTimeStamp(update.TimeStampRFC3339)
	}
	if update.Lat != nil {
		out.Lat = update.Lat
	}
	if update.Lon != nil {
		out.Lon = update.Lon
	}
	if update.NumValue != nil {
		out.NumValue = update.NumValue
	}
	if update.Weight != nil {
		out.Weight = update.Weight
	}
	if update.ImageURLs != nil {
		out.ImageURLs = update.ImageURLs
	}
	if update.TagSet != nil {
		out.TagSet = normalizeTagSet(update.TagSet)
	}
	return out
}

// patchPayload pushes every field that can change without re-embedding
// straight onto the existing vector point (spec §4.E: "a content-only
// update re-embeds; everything else is a payload patch").
func (w *Worker) patchPayload(ctx context.Context, collection, datasetID string, updated metadatastore.Chunk, update queue.ChunkInput) error {
	patch := map[string]any{
		"tag_set": updated.TagSet,
		"link":    updated.Link,
		"content": updated.Content,
	}
	if updated.Metadata != nil {
		patch["metadata"] = updated.Metadata
	}
	if updated.TimeStamp != nil {
		patch["time_stamp"] = updated.TimeStamp.Unix()
	}
	if updated.NumValue != nil {
		patch["num_value"] = *updated.NumValue
	}
	if updated.Weight != nil {
		patch["weight"] = *updated.Weight
	}
	if loc := locationFromLatLon(updated.Lat, updated.Lon); loc != nil {
		patch["location"] = loc
	}
	if len(update.GroupTrackingIDs) > 0 {
		groupIDs, groupTagSets, err := w.resolveGroupPayload(ctx, datasetID, update.GroupTrackingIDs)
		if err != nil {
			return err
		}
		patch["group_ids"] = groupIDs
		patch["group_tag_sets"] = groupTagSets
	}
	for field, value := range patch {
		if err := w.Vectors.SetPayload(ctx, collection, updated.Fingerprint, field, value); err != nil {
			return err
		}
	}
	return nil
}
