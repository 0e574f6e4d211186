package ingestion

import (
	"strings"
	"time"

	"github.com/devflowinc/trieve-sub001/internal/metadatastore"
	"github.com/devflowinc/trieve-sub001/internal/queue"
	"github.com/devflowinc/trieve-sub001/internal/vectorstore"
)

// deriveContent runs step 1's "HTML -> text" rule: an explicit Content
// wins; otherwise HTML is rendered down to text. The raw HTML is kept
// alongside so it can still be served back to callers that want it.
func deriveContent(in queue.ChunkInput) (content, html string, err error) {
	html = in.HTML
	if in.Content != "" {
		return in.Content, html, nil
	}
	if html == "" {
		return "", "", nil
	}
	text, err := HTMLToText(html)
	if err != nil {
		return "", "", err
	}
	return text, html, nil
}

// parseTimeStamp runs step 1's timestamp parsing; a malformed timestamp
// is dropped rather than failing the whole row, matching tag
// normalization's tolerant "drop what doesn't parse" behavior.
func parseTimeStamp(raw string) *time.Time {
	if raw == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil
	}
	return &t
}

func normalizeTagSet(tags []string) []string {
	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

// toRow applies step 1's normalization pipeline and lays the result out
// as the row BulkInsertChunks expects.
func toRow(in queue.ChunkInput, content, html string) metadatastore.BulkChunkRow {
	return metadatastore.BulkChunkRow{
		TrackingID: in.TrackingID,
		Content:    content,
		HTML:       html,
		Link:       in.Link,
		Metadata:   in.Metadata,
		TimeStamp:  parseTimeStamp(in.TimeStampRFC3339),
		Lat:        in.Lat,
		Lon:        in.Lon,
		NumValue:   in.NumValue,
		Weight:     in.Weight,
		ImageURLs:  in.ImageURLs,
		TagSet:     normalizeTagSet(in.TagSet),
	}
}

func locationFromLatLon(lat, lon *float64) *vectorstore.GeoPoint {
	if lat == nil || lon == nil {
		return nil
	}
	return &vectorstore.GeoPoint{Lat: *lat, Lon: *lon}
}

// originalRow pairs one input chunk with the duplicate verdict the
// collision index reached for it before insertion (spec §4.D runs
// before §4.C's bulk insert, so the verdict has to be carried alongside
// the row rather than recomputed afterwards).
type originalRow struct {
	input     queue.ChunkInput
	duplicate bool
}

// correlateSurvivors re-aligns BulkInsertChunks' surviving rows back to
// the ChunkInput (and collision verdict) that produced them. Rows
// without a tracking id can never be skipped by the conflict-based
// dedup BulkInsertChunks applies, so they retain their relative order;
// rows with a tracking id are matched back by that id, which is unique
// within a dataset (spec §4.C "unique on (dataset_id, tracking_id)").
func correlateSurvivors(inputs []queue.ChunkInput, duplicates []bool, survivors []metadatastore.Chunk) []originalRow {
	byTracking := make(map[string]originalRow, len(inputs))
	var untracked []originalRow
	for i, in := range inputs {
		row := originalRow{input: in, duplicate: duplicates[i]}
		if in.TrackingID != nil {
			byTracking[*in.TrackingID] = row
		} else {
			untracked = append(untracked, row)
		}
	}

	out := make([]originalRow, len(survivors))
	ui := 0
	for i, c := range survivors {
		if c.TrackingID != nil {
			if row, ok := byTracking[*c.TrackingID]; ok {
				out[i] = row
				continue
			}
		}
		if ui < len(untracked) {
			out[i] = untracked[ui]
			ui++
		}
	}
	return out
}
