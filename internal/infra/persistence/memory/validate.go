package memory

import (
	"strings"

	"labcatalog/pkg/domain"
)

// validRow reports whether r is a single plate row letter.
func validRow(r string) bool {
	return len(r) == 1 && r[0] >= 'A' && r[0] <= 'Z'
}

// taken returns the id of another record in m that satisfies match.
func taken[T any](m map[string]T, selfID string, id func(T) string, match func(T) bool) (string, bool) {
	for k, v := range m {
		if k == selfID {
			continue
		}
		if match(v) {
			return id(v), true
		}
	}
	return "", false
}

func requireName(entity domain.EntityType, name string) error {
	if strings.TrimSpace(name) == "" {
		return domain.ErrValidation.New("%s name is required", entity)
	}
	return nil
}

func validatePlate(state *memoryState, p Plate) error {
	if err := requireName(domain.EntityPlate, p.Name); err != nil {
		return err
	}
	if other, ok := taken(state.plates, p.ID, func(v Plate) string { return v.ID }, func(v Plate) bool { return v.Name == p.Name }); ok {
		return domain.ErrDependency.New("plate name %q already used by %s", p.Name, other)
	}
	return nil
}

func validateItem(state *memoryState, it Item) error {
	if !validRow(it.Row) {
		return domain.ErrValidation.New("item row %q must be a single letter A-Z", it.Row)
	}
	if it.Col < 1 {
		return domain.ErrValidation.New("item col must be positive, got %d", it.Col)
	}
	if it.Site < 0 || it.Chan < 0 {
		return domain.ErrValidation.New("item site and chan must not be negative")
	}
	if _, ok := state.plates[it.PlateID]; !ok {
		return domain.NotFound(domain.EntityPlate, it.PlateID)
	}
	tp, ok := state.timepoints[it.TimePointID]
	if !ok {
		return domain.NotFound(domain.EntityTimePoint, it.TimePointID)
	}
	if tp.PlateID != it.PlateID {
		return domain.ErrValidation.New("time point %s does not belong to plate %s", tp.ID, it.PlateID)
	}
	return nil
}

func validateSection(state *memoryState, s Section) error {
	if !validRow(s.RowStart) || !validRow(s.RowEnd) {
		return domain.ErrValidation.New("section rows must be single letters A-Z, got %q-%q", s.RowStart, s.RowEnd)
	}
	if s.RowStart > s.RowEnd {
		return domain.ErrValidation.New("section row_start %q is after row_end %q", s.RowStart, s.RowEnd)
	}
	if s.ColStart < 1 || s.ColEnd < 1 {
		return domain.ErrValidation.New("section columns must be positive")
	}
	if s.ColStart > s.ColEnd {
		return domain.ErrValidation.New("section col_start %d is after col_end %d", s.ColStart, s.ColEnd)
	}
	if s.CompoundConcentration < 0 {
		return domain.ErrValidation.New("compound concentration must not be negative")
	}
	if _, ok := state.plates[s.PlateID]; !ok {
		return domain.NotFound(domain.EntityPlate, s.PlateID)
	}
	if _, ok := state.cells[s.CellID]; !ok {
		return domain.NotFound(domain.EntityCell, s.CellID)
	}
	if _, ok := state.compounds[s.CompoundID]; !ok {
		return domain.NotFound(domain.EntityCompound, s.CompoundID)
	}
	if _, ok := state.stacks[s.StackID]; !ok {
		return domain.NotFound(domain.EntityStack, s.StackID)
	}
	return nil
}

func validateCell(state *memoryState, c Cell) error {
	if err := requireName(domain.EntityCell, c.Name); err != nil {
		return err
	}
	if strings.TrimSpace(c.Code) == "" {
		return domain.ErrValidation.New("cell code is required")
	}
	if other, ok := taken(state.cells, c.ID, func(v Cell) string { return v.ID }, func(v Cell) bool { return v.Code == c.Code }); ok {
		return domain.ErrDependency.New("cell code %q already used by %s", c.Code, other)
	}
	return nil
}

// normalizeStack validates channel bindings and assigns ids to new ones.
func normalizeStack(state *memoryState, s *Stack) error {
	if err := requireName(domain.EntityStack, s.Name); err != nil {
		return err
	}
	if other, ok := taken(state.stacks, s.ID, func(v Stack) string { return v.ID }, func(v Stack) bool { return v.Name == s.Name }); ok {
		return domain.ErrDependency.New("stack name %q already used by %s", s.Name, other)
	}
	seen := make(map[int]bool, len(s.Channels))
	for i := range s.Channels {
		ch := &s.Channels[i]
		if ch.Chan < 0 {
			return domain.ErrValidation.New("stack channel must not be negative, got %d", ch.Chan)
		}
		if seen[ch.Chan] {
			return domain.ErrValidation.New("stack channel %d bound twice", ch.Chan)
		}
		seen[ch.Chan] = true
		if _, ok := state.modalities[ch.ModalityID]; !ok {
			return domain.NotFound(domain.EntityModality, ch.ModalityID)
		}
		if ch.ID == "" {
			ch.ID = newID()
		}
	}
	return nil
}

func validateModality(state *memoryState, m Modality) error {
	if err := requireName(domain.EntityModality, m.Name); err != nil {
		return err
	}
	if other, ok := taken(state.modalities, m.ID, func(v Modality) string { return v.ID }, func(v Modality) bool { return v.Name == m.Name }); ok {
		return domain.ErrDependency.New("modality name %q already used by %s", m.Name, other)
	}
	return nil
}

func validateCompound(state *memoryState, c Compound) error {
	if err := requireName(domain.EntityCompound, c.Name); err != nil {
		return err
	}
	if other, ok := taken(state.compounds, c.ID, func(v Compound) string { return v.ID }, func(v Compound) bool { return v.Name == c.Name }); ok {
		return domain.ErrDependency.New("compound name %q already used by %s", c.Name, other)
	}
	if c.PropertyID != nil {
		if _, ok := state.properties[*c.PropertyID]; !ok {
			return domain.NotFound(domain.EntityCompoundProperty, *c.PropertyID)
		}
	}
	return nil
}

func validateProperty(state *memoryState, p CompoundProperty) error {
	if strings.TrimSpace(p.Type) == "" || strings.TrimSpace(p.Value) == "" {
		return domain.ErrValidation.New("compound property type and value are required")
	}
	if p.ParentID != nil {
		if *p.ParentID == p.ID {
			return domain.ErrValidation.New("compound property %s cannot be its own parent", p.ID)
		}
		if _, ok := state.properties[*p.ParentID]; !ok {
			return domain.NotFound(domain.EntityCompoundProperty, *p.ParentID)
		}
	}
	match := func(v CompoundProperty) bool { return v.Type == p.Type && v.Value == p.Value }
	if other, ok := taken(state.properties, p.ID, func(v CompoundProperty) string { return v.ID }, match); ok {
		return domain.ErrDependency.New("compound property %s=%q already exists as %s", p.Type, p.Value, other)
	}
	return nil
}

func validateTag(state *memoryState, t Tag) error {
	if err := requireName(domain.EntityTag, t.Name); err != nil {
		return err
	}
	if strings.Contains(t.Name, ",") {
		return domain.ErrValidation.New("tag name %q must not contain a comma", t.Name)
	}
	if other, ok := taken(state.tags, t.ID, func(v Tag) string { return v.ID }, func(v Tag) bool { return v.Name == t.Name }); ok {
		return domain.ErrDependency.New("tag name %q already used by %s", t.Name, other)
	}
	return nil
}
