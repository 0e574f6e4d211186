// Builder assembles a dataset's BK-tree in a background job (spec §4.I
// "Construction runs as a background job that scans all chunks since the
// dataset's last processed time"), grounded on metadatastore.ScanChunksSince
// and cached through cache.BlobCache the same way the search planner
// fetches a tree for query-time correction.
package typo

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/devflowinc/trieve-sub001/internal/cache"
	"github.com/devflowinc/trieve-sub001/internal/embedding"
	"github.com/devflowinc/trieve-sub001/internal/errs"
	"github.com/devflowinc/trieve-sub001/internal/metadatastore"
)

// ScanPageSize bounds each ScanChunksSince call the builder issues.
const ScanPageSize = 500

// Builder constructs and caches one dataset's BK-tree.
type Builder struct {
	Meta  metadatastore.Store
	Cache *cache.BlobCache
}

func NewBuilder(meta metadatastore.Store, blobCache *cache.BlobCache) *Builder {
	return &Builder{Meta: meta, Cache: blobCache}
}

// Build scans every chunk created since the dataset's last processed
// watermark, tokenizes and counts words, inserts them into a fresh tree,
// serializes and caches it, then advances the watermark to now (spec
// §4.I). It always starts from a fresh tree rather than mutating any
// previously cached one, matching §5's "writers replace the entry
// atomically" policy — there is no incremental tree update.
func (b *Builder) Build(ctx context.Context, datasetID string) (*Tree, error) {
	sinceUnix, err := b.Meta.WordsLastProcessed(ctx, datasetID)
	if err != nil {
		return nil, err
	}
	since := time.Unix(sinceUnix, 0)
	buildStarted := time.Now()

	tree := NewTree()
	var afterID uuid.UUID
	for {
		chunks, err := b.Meta.ScanChunksSince(ctx, datasetID, since, afterID, ScanPageSize)
		if err != nil {
			return nil, err
		}
		if len(chunks) == 0 {
			break
		}
		for _, c := range chunks {
			for _, tok := range embedding.Tokenize(c.Content) {
				tree.Insert(tok, 1)
			}
			afterID = c.ID
		}
		if len(chunks) < ScanPageSize {
			break
		}
	}

	blob, err := Serialize(tree)
	if err != nil {
		return nil, err
	}
	if err := b.Cache.Set(ctx, datasetID, blob); err != nil {
		return nil, err
	}
	if err := b.Meta.SetWordsLastProcessed(ctx, datasetID, buildStarted.Unix()); err != nil {
		return nil, err
	}
	return tree, nil
}

// Load fetches a dataset's cached BK-tree, building it on a cache miss
// (spec §4.I: the tree is "cached ... with a 24-hour TTL"; a miss means
// either the cache expired or this is the dataset's first correction
// request).
func (b *Builder) Load(ctx context.Context, datasetID string) (*Tree, error) {
	blob, ok, err := b.Cache.Get(ctx, datasetID)
	if err != nil {
		return nil, err
	}
	if ok {
		tree, err := Deserialize(blob)
		if err != nil {
			return nil, errs.Internal("bktree_cache_corrupt", "failed to deserialize cached bk-tree", err)
		}
		return tree, nil
	}
	return b.Build(ctx, datasetID)
}
