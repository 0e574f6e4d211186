package importer

import (
	"fmt"
	"strings"

	"github.com/devflowinc/trieve-sub001/internal/queue"
)

// rowToChunkInput applies a FieldMapping to one decoded row (spec §4.F):
// declared columns populate their chunk field, every chunk joins the
// import's file-backed group, and whatever columns the mapping left
// untouched fall through to Metadata.
func rowToChunkInput(row map[string]any, mapping queue.FieldMapping, groupTrackingID string) queue.ChunkInput {
	consumed := map[string]bool{}
	in := queue.ChunkInput{}

	if v, ok := takeString(row, "content", consumed); ok {
		in.Content = v
	}
	if v, ok := takeString(row, "html", consumed); ok {
		in.HTML = v
	}
	if v, ok := takeString(row, mapping.Link, consumed); ok {
		in.Link = v
	}
	if v, ok := takeStringSlice(row, mapping.TagSet, consumed); ok {
		in.TagSet = v
	}
	if v, ok := takeFloat(row, mapping.NumValue, consumed); ok {
		in.NumValue = &v
	}
	if v, ok := takeString(row, mapping.TrackingID, consumed); ok && v != "" {
		in.TrackingID = &v
	}
	groupIDs, _ := takeStringSlice(row, mapping.GroupTrackingIDs, consumed)
	in.GroupTrackingIDs = append(groupIDs, groupTrackingID)
	if v, ok := takeString(row, mapping.TimeStamp, consumed); ok {
		in.TimeStampRFC3339 = v
	}
	if v, ok := takeFloat(row, mapping.Lat, consumed); ok {
		in.Lat = &v
	}
	if v, ok := takeFloat(row, mapping.Lon, consumed); ok {
		in.Lon = &v
	}
	if v, ok := takeStringSlice(row, mapping.ImageURLs, consumed); ok {
		in.ImageURLs = v
	}
	if v, ok := takeFloat(row, mapping.Weight, consumed); ok {
		in.Weight = &v
	}
	if v, ok := takeString(row, mapping.BoostPhrase, consumed); ok {
		in.BoostPhrase = v
	}

	if rest := remaining(row, consumed); len(rest) > 0 {
		in.Metadata = rest
	}
	return in
}

func takeString(row map[string]any, col string, consumed map[string]bool) (string, bool) {
	if col == "" {
		return "", false
	}
	v, ok := row[col]
	if !ok {
		return "", false
	}
	consumed[col] = true
	if v == nil {
		return "", false
	}
	return fmt.Sprint(v), true
}

func takeFloat(row map[string]any, col string, consumed map[string]bool) (float64, bool) {
	if col == "" {
		return 0, false
	}
	v, ok := row[col]
	if !ok {
		return 0, false
	}
	consumed[col] = true
	switch n := v.(type) {
	case float64:
		return n, true
	case string:
		return 0, false
	default:
		return 0, false
	}
}

// takeStringSlice splits a comma-separated CSV cell, or passes through a
// JSON array cell, into a string slice.
func takeStringSlice(row map[string]any, col string, consumed map[string]bool) ([]string, bool) {
	if col == "" {
		return nil, false
	}
	v, ok := row[col]
	if !ok {
		return nil, false
	}
	consumed[col] = true
	switch t := v.(type) {
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			out = append(out, fmt.Sprint(e))
		}
		return out, true
	case string:
		if strings.TrimSpace(t) == "" {
			return nil, true
		}
		parts := strings.Split(t, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				out = append(out, p)
			}
		}
		return out, true
	default:
		return nil, false
	}
}

func remaining(row map[string]any, consumed map[string]bool) map[string]any {
	out := map[string]any{}
	for k, v := range row {
		if consumed[k] {
			continue
		}
		out[k] = v
	}
	return out
}
