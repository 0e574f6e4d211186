package grouptag

import (
	"context"

	"github.com/google/uuid"

	"github.com/devflowinc/trieve-sub001/internal/errs"
	"github.com/devflowinc/trieve-sub001/internal/metadatastore"
	"github.com/devflowinc/trieve-sub001/internal/queue"
	"github.com/devflowinc/trieve-sub001/internal/vectorstore"
)

// propagate applies one tag-set change to every member of msg.GroupID
// (spec §4.J): removed tags are unlinked, added tags are linked, and
// each member's owning vector point has its group_tag_sets[group_id]
// entry rewritten to the new tag set. It returns the chunk id to resume
// from on failure — the last page fully applied — so a retry after a
// transient error doesn't re-walk the whole group from the start.
func (w *Worker) propagate(ctx context.Context, msg queue.GroupUpdateMessage) (uuid.UUID, error) {
	release, ok, err := w.Locker.Acquire(ctx, msg.GroupID)
	if err != nil {
		return msg.AfterChunkID, err
	}
	if !ok {
		return msg.AfterChunkID, errs.Transient(errs.CodeQueueIO, "group update lock held by another worker", nil)
	}
	defer release(ctx)

	removed, added := diffTagSets(msg.PrevTagSet, msg.NewTagSet)
	union := unionNonEmpty(msg.PrevTagSet, msg.NewTagSet)

	tagRows, err := w.Meta.UpsertTags(ctx, msg.DatasetID, union)
	if err != nil {
		return msg.AfterChunkID, err
	}
	idByTag := make(map[string]uuid.UUID, len(tagRows))
	for _, t := range tagRows {
		idByTag[t.Tag] = t.ID
	}
	removedIDs := idsFor(removed, idByTag)
	addedIDs := idsFor(added, idByTag)

	collection := vectorstore.CollectionName(msg.DatasetID)
	cursor := msg.AfterChunkID

	for {
		page, err := w.Meta.GroupMembersPage(ctx, msg.GroupID, cursor, metadatastore.CursorPageSize)
		if err != nil {
			return cursor, err
		}
		if len(page) == 0 {
			break
		}
		if err := w.applyPage(ctx, msg.DatasetID, collection, msg.GroupID, page, removedIDs, addedIDs, msg.NewTagSet); err != nil {
			return cursor, err
		}
		cursor = page[len(page)-1]
		if len(page) < metadatastore.CursorPageSize {
			break
		}
	}

	if err := w.Meta.UpdateGroupTagSet(ctx, msg.DatasetID, msg.GroupID, msg.NewTagSet); err != nil {
		return cursor, err
	}
	return cursor, nil
}

// applyPage applies the tag link/unlink and payload patch to one page of
// group members. It is safe to re-run against the same page after a
// partial failure: linking/unlinking a tag id that's already (un)linked
// is a no-op, and PatchPayloadKey sets rather than toggles the group's
// tag-set entry.
func (w *Worker) applyPage(ctx context.Context, datasetID, collection string, groupID uuid.UUID, chunkIDs []uuid.UUID, removedIDs, addedIDs []uuid.UUID, newTagSet []string) error {
	for _, id := range chunkIDs {
		if len(removedIDs) > 0 {
			if err := w.Meta.UnlinkChunkTags(ctx, id, removedIDs); err != nil {
				return err
			}
		}
		if len(addedIDs) > 0 {
			if err := w.Meta.LinkChunkTags(ctx, id, addedIDs); err != nil {
				return err
			}
		}
	}

	chunks, err := w.Meta.GetChunksByIDs(ctx, datasetID, chunkIDs)
	if err != nil {
		return err
	}

	// A chunk's Fingerprint is always the id of the vector point that
	// owns its content, whether the chunk is canonical or a duplicate:
	// a duplicate's own content fingerprint is by construction the
	// fingerprint it collided with. So every member chunk resolves to a
	// point id this way, with no separate collision lookup.
	seen := map[uuid.UUID]bool{}
	pointIDs := make([]string, 0, len(chunks))
	for _, c := range chunks {
		if c.Fingerprint == uuid.Nil || seen[c.Fingerprint] {
			continue
		}
		seen[c.Fingerprint] = true
		pointIDs = append(pointIDs, c.Fingerprint.String())
	}
	if len(pointIDs) == 0 {
		return nil
	}

	filter := vectorstore.Filter{
		Must: []vectorstore.Condition{{Field: "id", Op: vectorstore.OpIn, Values: pointIDs}},
	}
	return w.Vectors.PatchPayloadKey(ctx, collection, filter, "group_tag_sets", groupID.String(), newTagSet)
}

// diffTagSets returns the tags present only in prev (to unlink) and only
// in next (to link), ignoring empty strings.
func diffTagSets(prev, next []string) (removed, added []string) {
	prevSet := toSet(prev)
	nextSet := toSet(next)
	for t := range prevSet {
		if !nextSet[t] {
			removed = append(removed, t)
		}
	}
	for t := range nextSet {
		if !prevSet[t] {
			added = append(added, t)
		}
	}
	return removed, added
}

func unionNonEmpty(a, b []string) []string {
	set := toSet(a)
	for t := range toSet(b) {
		set[t] = true
	}
	out := make([]string, 0, len(set))
	for t := range set {
		out = append(out, t)
	}
	return out
}

func toSet(tags []string) map[string]bool {
	set := make(map[string]bool, len(tags))
	for _, t := range tags {
		if t == "" {
			continue
		}
		set[t] = true
	}
	return set
}

func idsFor(tags []string, idByTag map[string]uuid.UUID) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(tags))
	for _, t := range tags {
		if id, ok := idByTag[t]; ok {
			out = append(out, id)
		}
	}
	return out
}
