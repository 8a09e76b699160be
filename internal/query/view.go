// Package query builds the denormalised item view and applies caller filters
// to it. The view joins every item with its plate, time point and, when the
// item lies inside one, the section that covers it together with the
// section's cell, stack channel, modality, compound and compound property.
package query

import (
	"sort"
	"strings"

	"labcatalog/internal/nestedset"
	"labcatalog/pkg/domain"
)

// Row is one line of the joined item view. Section-derived pointers are nil
// when the item is not covered by a section.
type Row struct {
	Item      domain.Item
	Plate     domain.Plate
	TimePoint domain.TimePoint

	Section  *domain.Section
	Cell     *domain.Cell
	Stack    *domain.Stack
	Channel  *domain.StackChannel
	Modality *domain.Modality
	Compound *domain.Compound
	Property *domain.CompoundProperty

	// Lineage lists the compound property and its ancestors, root first.
	Lineage []domain.CompoundProperty

	// TagList holds the tags on the item sorted by name.
	TagList []domain.Tag
	// Tags is the comma-joined, name-sorted list of tags on the item.
	Tags string
}

// PropertyBounds returns the nested-set bounds of the row's compound
// property, or zero bounds when there is none.
func (r *Row) PropertyBounds() nestedset.Bounds {
	if r.Property == nil {
		return nestedset.Bounds{}
	}
	return nestedset.Bounds{Left: r.Property.Left, Right: r.Property.Right}
}

// BuildView materialises the joined view from a transaction view. Items whose
// plate or time point is missing are skipped.
func BuildView(v domain.TransactionView) []Row {
	plates := indexBy(v.ListPlates(), func(p domain.Plate) string { return p.ID })
	timepoints := indexBy(v.ListTimePoints(), func(t domain.TimePoint) string { return t.ID })
	cells := indexBy(v.ListCells(), func(c domain.Cell) string { return c.ID })
	stacks := indexBy(v.ListStacks(), func(s domain.Stack) string { return s.ID })
	modalities := indexBy(v.ListModalities(), func(m domain.Modality) string { return m.ID })
	compounds := indexBy(v.ListCompounds(), func(c domain.Compound) string { return c.ID })

	props := v.ListCompoundProperties()
	propIndex := make(map[string]int, len(props))
	bounds := make([]nestedset.Bounds, len(props))
	for i, p := range props {
		propIndex[p.ID] = i
		bounds[i] = nestedset.Bounds{Left: p.Left, Right: p.Right}
	}

	sectionsByPlate := make(map[string][]domain.Section)
	for _, s := range v.ListSections() {
		sectionsByPlate[s.PlateID] = append(sectionsByPlate[s.PlateID], s)
	}

	tags := indexBy(v.ListTags(), func(t domain.Tag) string { return t.ID })
	itemTags := make(map[string][]domain.Tag)
	for _, link := range v.ListItemTags() {
		if t, ok := tags[link.TagID]; ok {
			itemTags[link.ItemID] = append(itemTags[link.ItemID], t)
		}
	}

	var rows []Row
	for _, it := range v.ListItems() {
		plate, ok := plates[it.PlateID]
		if !ok {
			continue
		}
		tp, ok := timepoints[it.TimePointID]
		if !ok {
			continue
		}
		tagged := itemTags[it.ID]
		sort.Slice(tagged, func(i, j int) bool { return tagged[i].Name < tagged[j].Name })
		names := make([]string, len(tagged))
		for i, t := range tagged {
			names[i] = t.Name
		}
		base := Row{Item: it, Plate: plate, TimePoint: tp, TagList: tagged, Tags: strings.Join(names, ",")}

		matched := false
		for _, s := range sectionsByPlate[it.PlateID] {
			if !s.ContainsWell(it.Row, it.Col) {
				continue
			}
			stack, ok := stacks[s.StackID]
			if !ok {
				continue
			}
			ch, ok := stack.Channel(it.Chan)
			if !ok {
				continue
			}
			row := base
			row.Section = ptr(s)
			row.Stack = ptr(stack)
			row.Channel = ptr(ch)
			if c, ok := cells[s.CellID]; ok {
				row.Cell = ptr(c)
			}
			if m, ok := modalities[ch.ModalityID]; ok {
				row.Modality = ptr(m)
			}
			if c, ok := compounds[s.CompoundID]; ok {
				row.Compound = ptr(c)
				if c.PropertyID != nil {
					if i, ok := propIndex[*c.PropertyID]; ok {
						row.Property = ptr(props[i])
						for _, a := range nestedset.Ancestors(bounds, bounds[i]) {
							row.Lineage = append(row.Lineage, props[a])
						}
					}
				}
			}
			rows = append(rows, row)
			matched = true
		}
		if !matched {
			rows = append(rows, base)
		}
	}

	sort.SliceStable(rows, func(i, j int) bool { return rowLess(&rows[i], &rows[j]) })
	return rows
}

// rowLess orders rows in acquisition order: time, row, col, site, chan.
func rowLess(a, b *Row) bool {
	if !a.TimePoint.Time.Equal(b.TimePoint.Time) {
		return a.TimePoint.Time.Before(b.TimePoint.Time)
	}
	if a.Item.Row != b.Item.Row {
		return a.Item.Row < b.Item.Row
	}
	if a.Item.Col != b.Item.Col {
		return a.Item.Col < b.Item.Col
	}
	if a.Item.Site != b.Item.Site {
		return a.Item.Site < b.Item.Site
	}
	if a.Item.Chan != b.Item.Chan {
		return a.Item.Chan < b.Item.Chan
	}
	if a.Item.ID != b.Item.ID {
		return a.Item.ID < b.Item.ID
	}
	return sectionID(a) < sectionID(b)
}

func sectionID(r *Row) string {
	if r.Section == nil {
		return ""
	}
	return r.Section.ID
}

// ItemIDs returns the distinct item ids of rows in view order.
func ItemIDs(rows []Row) []string {
	seen := make(map[string]struct{}, len(rows))
	ids := make([]string, 0, len(rows))
	for _, r := range rows {
		if _, ok := seen[r.Item.ID]; ok {
			continue
		}
		seen[r.Item.ID] = struct{}{}
		ids = append(ids, r.Item.ID)
	}
	return ids
}

func indexBy[T any](values []T, key func(T) string) map[string]T {
	m := make(map[string]T, len(values))
	for _, v := range values {
		m[key(v)] = v
	}
	return m
}

func ptr[T any](v T) *T { return &v }
