package query

import (
	"math"
	"time"
)

// Record is the serialised form of a row as returned by the items API. Each
// ancestor of the row's compound property is flattened into a
// "compound_<type>" key holding its value.
type Record map[string]any

// Record flattens the row. Section-derived keys are null when the item is
// not covered by a section.
func (r *Row) Record() Record {
	rec := Record{
		"id":                     r.Item.ID,
		"uri":                    r.Item.URI,
		"row":                    r.Item.Row,
		"col":                    r.Item.Col,
		"site":                   r.Item.Site,
		"chan":                   r.Item.Chan,
		"plate_id":               r.Plate.ID,
		"plate_name":             r.Plate.Name,
		"timepoint_id":           r.TimePoint.ID,
		"timepoint_time":         r.TimePoint.Time.UTC().Format(time.RFC3339),
		"tags":                   r.Tags,
		"section_id":             nil,
		"cell_name":              nil,
		"cell_code":              nil,
		"stack":                  nil,
		"modality_name":          nil,
		"modality_target":        nil,
		"compound_name":          nil,
		"compound_concentration": nil,
		"compound_property_id":   nil,
	}
	if r.Section != nil {
		rec["section_id"] = r.Section.ID
		rec["compound_concentration"] = r.Section.CompoundConcentration
	}
	if r.Cell != nil {
		rec["cell_name"] = r.Cell.Name
		rec["cell_code"] = r.Cell.Code
	}
	if r.Stack != nil {
		rec["stack"] = r.Stack.Name
	}
	if r.Modality != nil {
		rec["modality_name"] = r.Modality.Name
		rec["modality_target"] = r.Modality.Target
	}
	if r.Compound != nil {
		rec["compound_name"] = r.Compound.Name
	}
	if r.Property != nil {
		rec["compound_property_id"] = r.Property.ID
	}
	for _, p := range r.Lineage {
		key := "compound_" + p.Type
		if fixedCompoundKeys[key] {
			continue
		}
		rec[key] = p.Value
	}
	rec["_links"] = map[string]string{
		"self":       "/api/v1/items/" + r.Item.ID,
		"collection": "/api/v1/items",
		"plate":      "/api/v1/plates/" + r.Plate.ID,
		"timepoint":  "/api/v1/timepoints/" + r.TimePoint.ID,
	}
	return rec
}

// fixedCompoundKeys are never overwritten by a property type of the same name.
var fixedCompoundKeys = map[string]bool{
	"compound_name":          true,
	"compound_concentration": true,
	"compound_property_id":   true,
}

// Pagination describes one page of a result set. It is sent to clients in
// the X-Pagination header.
type Pagination struct {
	Total        int `json:"total"`
	TotalPages   int `json:"total_pages"`
	FirstPage    int `json:"first_page"`
	LastPage     int `json:"last_page"`
	Page         int `json:"page"`
	PreviousPage int `json:"previous_page,omitempty"`
	NextPage     int `json:"next_page,omitempty"`
}

// Paginate returns the rows of the requested 1-based page. Pages beyond the
// last one are empty.
func Paginate[T any](rows []T, page, pageSize int) ([]T, Pagination) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 1
	}
	total := len(rows)
	pages := int(math.Ceil(float64(total) / float64(pageSize)))
	info := Pagination{Total: total, TotalPages: pages, Page: page}
	if pages > 0 {
		info.FirstPage = 1
		info.LastPage = pages
		if page > 1 && page <= pages {
			info.PreviousPage = page - 1
		}
		if page < pages {
			info.NextPage = page + 1
		}
	}
	start := (page - 1) * pageSize
	if start >= total {
		return []T{}, info
	}
	end := min(start+pageSize, total)
	return rows[start:end], info
}
