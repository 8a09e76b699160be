package query

import (
	"sort"
	"strconv"
	"time"

	"labcatalog/pkg/domain"
)

// Kind is the value type of a registered field. Filter values are parsed to
// the field's kind before comparison.
type Kind int

// Supported field kinds.
const (
	KindString Kind = iota
	KindInt
	KindFloat
	KindTime
)

func (k Kind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindTime:
		return "time"
	default:
		return "string"
	}
}

// Field is a filterable column of the joined view.
type Field struct {
	Entity domain.EntityType
	Name   string
	Kind   Kind

	str  func(*Row) (string, bool)
	set  func(*Row) []string
	num  func(*Row) (float64, bool)
	when func(*Row) (time.Time, bool)
}

// Key returns the filter key addressing the field, e.g. "plate_name".
func (f Field) Key() string {
	if f.Entity == domain.EntityItem {
		return f.Name
	}
	return string(f.Entity) + "_" + f.Name
}

// Matcher returns a predicate comparing the field against raw. A raw value
// that cannot be parsed as the field's kind matches nothing.
func (f Field) Matcher(raw string) Predicate {
	switch f.Kind {
	case KindInt:
		want, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return never
		}
		return func(r *Row) bool {
			got, ok := f.num(r)
			return ok && got == float64(want)
		}
	case KindFloat:
		want, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return never
		}
		return func(r *Row) bool {
			got, ok := f.num(r)
			return ok && got == want
		}
	case KindTime:
		want, ok := parseTime(raw)
		if !ok {
			return never
		}
		return func(r *Row) bool {
			got, ok := f.when(r)
			return ok && got.Equal(want)
		}
	default:
		if f.set != nil {
			return func(r *Row) bool {
				for _, got := range f.set(r) {
					if got == raw {
						return true
					}
				}
				return false
			}
		}
		return func(r *Row) bool {
			got, ok := f.str(r)
			return ok && got == raw
		}
	}
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseTime(raw string) (time.Time, bool) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Registry is the closed set of filterable fields keyed by entity and field
// name. It is built once and shared read-only.
type Registry struct {
	fields map[domain.EntityType]map[string]Field
}

// Lookup resolves a field of an entity.
func (r *Registry) Lookup(entity domain.EntityType, name string) (Field, bool) {
	byName, ok := r.fields[entity]
	if !ok {
		return Field{}, false
	}
	f, ok := byName[name]
	return f, ok
}

// HasEntity reports whether entity has any registered field.
func (r *Registry) HasEntity(entity domain.EntityType) bool {
	_, ok := r.fields[entity]
	return ok
}

// Fields lists every registered field ordered by key.
func (r *Registry) Fields() []Field {
	var out []Field
	for _, byName := range r.fields {
		for _, f := range byName {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}

func (r *Registry) add(f Field) {
	if r.fields[f.Entity] == nil {
		r.fields[f.Entity] = make(map[string]Field)
	}
	r.fields[f.Entity][f.Name] = f
}

func str(entity domain.EntityType, name string, get func(*Row) (string, bool)) Field {
	return Field{Entity: entity, Name: name, Kind: KindString, str: get}
}

func integer(entity domain.EntityType, name string, get func(*Row) (int, bool)) Field {
	return Field{Entity: entity, Name: name, Kind: KindInt, num: func(r *Row) (float64, bool) {
		v, ok := get(r)
		return float64(v), ok
	}}
}

// each matches when any of the row's values equals the filter value.
func each(entity domain.EntityType, name string, get func(*Row) []string) Field {
	return Field{Entity: entity, Name: name, Kind: KindString, set: get}
}

func tagValues(row *Row, get func(domain.Tag) string) []string {
	out := make([]string, len(row.TagList))
	for i, t := range row.TagList {
		out[i] = get(t)
	}
	return out
}

func always(s string) (string, bool) { return s, true }

func optional[T any](p *T, get func(*T) string) (string, bool) {
	if p == nil {
		return "", false
	}
	return get(p), true
}

// NewRegistry builds the registry of joined-view columns.
func NewRegistry() *Registry {
	r := &Registry{fields: make(map[domain.EntityType]map[string]Field)}

	item := domain.EntityItem
	r.add(str(item, "id", func(row *Row) (string, bool) { return always(row.Item.ID) }))
	r.add(str(item, "uri", func(row *Row) (string, bool) { return always(row.Item.URI) }))
	r.add(str(item, "row", func(row *Row) (string, bool) { return always(row.Item.Row) }))
	r.add(integer(item, "col", func(row *Row) (int, bool) { return row.Item.Col, true }))
	r.add(integer(item, "site", func(row *Row) (int, bool) { return row.Item.Site, true }))
	r.add(integer(item, "chan", func(row *Row) (int, bool) { return row.Item.Chan, true }))

	plate := domain.EntityPlate
	r.add(str(plate, "id", func(row *Row) (string, bool) { return always(row.Plate.ID) }))
	r.add(str(plate, "name", func(row *Row) (string, bool) { return always(row.Plate.Name) }))
	r.add(str(plate, "comment", func(row *Row) (string, bool) { return always(row.Plate.Comment) }))

	tp := domain.EntityTimePoint
	r.add(str(tp, "id", func(row *Row) (string, bool) { return always(row.TimePoint.ID) }))
	r.add(str(tp, "uri", func(row *Row) (string, bool) { return always(row.TimePoint.URI) }))
	r.add(str(tp, "plate_id", func(row *Row) (string, bool) { return always(row.TimePoint.PlateID) }))
	r.add(Field{Entity: tp, Name: "time", Kind: KindTime, when: func(row *Row) (time.Time, bool) {
		return row.TimePoint.Time, true
	}})

	section := domain.EntitySection
	sectionStr := func(name string, get func(*domain.Section) string) {
		r.add(str(section, name, func(row *Row) (string, bool) { return optional(row.Section, get) }))
	}
	sectionInt := func(name string, get func(*domain.Section) int) {
		r.add(integer(section, name, func(row *Row) (int, bool) {
			if row.Section == nil {
				return 0, false
			}
			return get(row.Section), true
		}))
	}
	sectionStr("id", func(s *domain.Section) string { return s.ID })
	sectionStr("plate_id", func(s *domain.Section) string { return s.PlateID })
	sectionStr("row_start", func(s *domain.Section) string { return s.RowStart })
	sectionStr("row_end", func(s *domain.Section) string { return s.RowEnd })
	sectionInt("col_start", func(s *domain.Section) int { return s.ColStart })
	sectionInt("col_end", func(s *domain.Section) int { return s.ColEnd })
	sectionStr("cell_id", func(s *domain.Section) string { return s.CellID })
	sectionStr("compound_id", func(s *domain.Section) string { return s.CompoundID })
	sectionStr("stack_id", func(s *domain.Section) string { return s.StackID })
	concentration := func(row *Row) (float64, bool) {
		if row.Section == nil {
			return 0, false
		}
		return row.Section.CompoundConcentration, true
	}
	r.add(Field{Entity: section, Name: "compound_concentration", Kind: KindFloat, num: concentration})

	cell := domain.EntityCell
	r.add(str(cell, "id", func(row *Row) (string, bool) { return optional(row.Cell, func(c *domain.Cell) string { return c.ID }) }))
	r.add(str(cell, "name", func(row *Row) (string, bool) { return optional(row.Cell, func(c *domain.Cell) string { return c.Name }) }))
	r.add(str(cell, "code", func(row *Row) (string, bool) { return optional(row.Cell, func(c *domain.Cell) string { return c.Code }) }))
	r.add(str(cell, "comment", func(row *Row) (string, bool) {
		return optional(row.Cell, func(c *domain.Cell) string { return c.Comment })
	}))

	stack := domain.EntityStack
	r.add(str(stack, "id", func(row *Row) (string, bool) { return optional(row.Stack, func(s *domain.Stack) string { return s.ID }) }))
	r.add(str(stack, "name", func(row *Row) (string, bool) { return optional(row.Stack, func(s *domain.Stack) string { return s.Name }) }))
	r.add(str(stack, "comment", func(row *Row) (string, bool) {
		return optional(row.Stack, func(s *domain.Stack) string { return s.Comment })
	}))

	modality := domain.EntityModality
	r.add(str(modality, "id", func(row *Row) (string, bool) {
		return optional(row.Modality, func(m *domain.Modality) string { return m.ID })
	}))
	r.add(str(modality, "name", func(row *Row) (string, bool) {
		return optional(row.Modality, func(m *domain.Modality) string { return m.Name })
	}))
	r.add(str(modality, "target", func(row *Row) (string, bool) {
		return optional(row.Modality, func(m *domain.Modality) string { return m.Target })
	}))
	r.add(str(modality, "comment", func(row *Row) (string, bool) {
		return optional(row.Modality, func(m *domain.Modality) string { return m.Comment })
	}))

	compound := domain.EntityCompound
	r.add(str(compound, "id", func(row *Row) (string, bool) {
		return optional(row.Compound, func(c *domain.Compound) string { return c.ID })
	}))
	r.add(str(compound, "name", func(row *Row) (string, bool) {
		return optional(row.Compound, func(c *domain.Compound) string { return c.Name })
	}))
	r.add(str(compound, "comment", func(row *Row) (string, bool) {
		return optional(row.Compound, func(c *domain.Compound) string { return c.Comment })
	}))
	r.add(str(compound, "property_id", func(row *Row) (string, bool) {
		return optional(row.Property, func(p *domain.CompoundProperty) string { return p.ID })
	}))
	// compound_concentration is stored on the section but exposed under the compound prefix
	r.add(Field{Entity: compound, Name: "concentration", Kind: KindFloat, num: concentration})

	tag := domain.EntityTag
	r.add(each(tag, "id", func(row *Row) []string { return tagValues(row, func(t domain.Tag) string { return t.ID }) }))
	r.add(each(tag, "name", func(row *Row) []string { return tagValues(row, func(t domain.Tag) string { return t.Name }) }))

	return r
}
