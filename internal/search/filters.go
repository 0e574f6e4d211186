package search

import "github.com/devflowinc/trieve-sub001/internal/vectorstore"

// lowerFilter compiles a Request's convenience fields (TagFilter,
// GroupID, DateRange, Geo) into the base Filter's Must list, alongside
// the caller-supplied filter leaves (spec §4.G "Filter lowering").
// Tag-based filters rewrite to set-membership on tag_set; group-scoped
// search adds group_ids ∋ G.
func lowerFilter(datasetID string, r Request) vectorstore.Filter {
	f := r.Filter
	f.Must = append([]vectorstore.Condition{
		{Field: "dataset_id", Op: vectorstore.OpEquals, Value: datasetID},
	}, f.Must...)

	if len(r.TagFilter) > 0 {
		f.Must = append(f.Must, vectorstore.Condition{
			Field: "tag_set", Op: vectorstore.OpIn, Values: r.TagFilter,
		})
	}
	if r.GroupID != nil {
		f.Must = append(f.Must, vectorstore.Condition{
			Field: "group_ids", Op: vectorstore.OpIn, Values: []string{r.GroupID.String()},
		})
	}
	if r.DateRange != nil {
		cond := vectorstore.Condition{Field: "time_stamp", Op: vectorstore.OpRange}
		if r.DateRange.Gte != nil {
			v := float64(r.DateRange.Gte.Unix())
			cond.Gte = &v
		}
		if r.DateRange.Lte != nil {
			v := float64(r.DateRange.Lte.Unix())
			cond.Lte = &v
		}
		f.Must = append(f.Must, cond)
	}
	if r.Geo != nil {
		f.Must = append(f.Must, vectorstore.Condition{
			Field: "location", Op: vectorstore.OpGeoRadius, Geo: r.Geo,
		})
	}
	return f
}
