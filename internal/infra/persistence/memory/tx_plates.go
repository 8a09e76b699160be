package memory

import (
	"sort"

	"labcatalog/pkg/domain"
)

// CreatePlate stores a new plate within the transaction.
func (tx *transaction) CreatePlate(p Plate) (Plate, error) {
	if p.ID == "" {
		p.ID = newID()
	}
	if _, exists := tx.state.plates[p.ID]; exists {
		return Plate{}, domain.ErrDependency.New("plate %q already exists", p.ID)
	}
	if err := validatePlate(&tx.state, p); err != nil {
		return Plate{}, err
	}
	p.CreatedAt = tx.now
	p.UpdatedAt = tx.now
	tx.state.plates[p.ID] = p
	tx.recordChange(Change{Entity: domain.EntityPlate, Action: domain.ActionCreate, After: p})
	return p, nil
}

// UpdatePlate mutates a plate using the provided mutator function.
func (tx *transaction) UpdatePlate(id string, mutator func(*Plate) error) (Plate, error) {
	current, ok := tx.state.plates[id]
	if !ok {
		return Plate{}, domain.NotFound(domain.EntityPlate, id)
	}
	before := current
	if err := mutator(&current); err != nil {
		return Plate{}, err
	}
	current.ID = id
	current.CreatedAt = before.CreatedAt
	if err := validatePlate(&tx.state, current); err != nil {
		return Plate{}, err
	}
	current.UpdatedAt = tx.now
	tx.state.plates[id] = current
	tx.recordChange(Change{Entity: domain.EntityPlate, Action: domain.ActionUpdate, Before: before, After: current})
	return current, nil
}

// DeletePlate removes a plate that no longer has sections or time points.
func (tx *transaction) DeletePlate(id string) error {
	current, ok := tx.state.plates[id]
	if !ok {
		return domain.NotFound(domain.EntityPlate, id)
	}
	for _, s := range tx.state.sections {
		if s.PlateID == id {
			return domain.ErrDependency.New("plate %q still referenced by section %q", id, s.ID)
		}
	}
	for _, t := range tx.state.timepoints {
		if t.PlateID == id {
			return domain.ErrDependency.New("plate %q still referenced by time point %q", id, t.ID)
		}
	}
	delete(tx.state.plates, id)
	tx.recordChange(Change{Entity: domain.EntityPlate, Action: domain.ActionDelete, Before: current})
	return nil
}

// CreateTimePoint stores a new time point. URIs are unique across plates.
func (tx *transaction) CreateTimePoint(t TimePoint) (TimePoint, error) {
	if t.ID == "" {
		t.ID = newID()
	}
	if _, exists := tx.state.timepoints[t.ID]; exists {
		return TimePoint{}, domain.ErrDependency.New("time point %q already exists", t.ID)
	}
	if _, ok := tx.state.plates[t.PlateID]; !ok {
		return TimePoint{}, domain.NotFound(domain.EntityPlate, t.PlateID)
	}
	if t.URI == "" {
		return TimePoint{}, domain.ErrValidation.New("time point uri is required")
	}
	if other, ok := taken(tx.state.timepoints, t.ID, func(v TimePoint) string { return v.ID }, func(v TimePoint) bool { return v.URI == t.URI }); ok {
		return TimePoint{}, domain.ErrDependency.New("time point uri %q already used by %s", t.URI, other)
	}
	if t.Time.IsZero() {
		t.Time = tx.now
	}
	t.CreatedAt = tx.now
	t.UpdatedAt = tx.now
	tx.state.timepoints[t.ID] = t
	tx.recordChange(Change{Entity: domain.EntityTimePoint, Action: domain.ActionCreate, After: t})
	return t, nil
}

// DeleteTimePoint removes a time point together with its items and their tags.
func (tx *transaction) DeleteTimePoint(id string) error {
	current, ok := tx.state.timepoints[id]
	if !ok {
		return domain.NotFound(domain.EntityTimePoint, id)
	}
	var itemIDs []string
	for itemID, it := range tx.state.items {
		if it.TimePointID == id {
			itemIDs = append(itemIDs, itemID)
		}
	}
	sort.Strings(itemIDs)
	for _, itemID := range itemIDs {
		if err := tx.DeleteItem(itemID); err != nil {
			return err
		}
	}
	delete(tx.state.timepoints, id)
	tx.recordChange(Change{Entity: domain.EntityTimePoint, Action: domain.ActionDelete, Before: current})
	return nil
}

// CreateItem stores a new item.
func (tx *transaction) CreateItem(it Item) (Item, error) {
	if it.ID == "" {
		it.ID = newID()
	}
	if _, exists := tx.state.items[it.ID]; exists {
		return Item{}, domain.ErrDependency.New("item %q already exists", it.ID)
	}
	if err := validateItem(&tx.state, it); err != nil {
		return Item{}, err
	}
	it.CreatedAt = tx.now
	it.UpdatedAt = tx.now
	tx.state.items[it.ID] = it
	tx.recordChange(Change{Entity: domain.EntityItem, Action: domain.ActionCreate, After: it})
	return it, nil
}

// UpdateItem mutates an existing item.
func (tx *transaction) UpdateItem(id string, mutator func(*Item) error) (Item, error) {
	current, ok := tx.state.items[id]
	if !ok {
		return Item{}, domain.NotFound(domain.EntityItem, id)
	}
	before := current
	if err := mutator(&current); err != nil {
		return Item{}, err
	}
	current.ID = id
	current.CreatedAt = before.CreatedAt
	if err := validateItem(&tx.state, current); err != nil {
		return Item{}, err
	}
	current.UpdatedAt = tx.now
	tx.state.items[id] = current
	tx.recordChange(Change{Entity: domain.EntityItem, Action: domain.ActionUpdate, Before: before, After: current})
	return current, nil
}

// DeleteItem removes an item and its tag associations.
func (tx *transaction) DeleteItem(id string) error {
	current, ok := tx.state.items[id]
	if !ok {
		return domain.NotFound(domain.EntityItem, id)
	}
	for key, link := range tx.state.itemTags {
		if link.ItemID == id {
			delete(tx.state.itemTags, key)
			tx.recordChange(Change{Entity: domain.EntityItemTag, Action: domain.ActionDelete, Before: link})
		}
	}
	delete(tx.state.items, id)
	tx.recordChange(Change{Entity: domain.EntityItem, Action: domain.ActionDelete, Before: current})
	return nil
}

// CreateSection stores a new section. Placement on the plate is checked by
// the rules engine before commit.
func (tx *transaction) CreateSection(s Section) (Section, error) {
	if s.ID == "" {
		s.ID = newID()
	}
	if _, exists := tx.state.sections[s.ID]; exists {
		return Section{}, domain.ErrDependency.New("section %q already exists", s.ID)
	}
	if err := validateSection(&tx.state, s); err != nil {
		return Section{}, err
	}
	s.CreatedAt = tx.now
	s.UpdatedAt = tx.now
	tx.state.sections[s.ID] = s
	tx.recordChange(Change{Entity: domain.EntitySection, Action: domain.ActionCreate, After: s})
	return s, nil
}

// UpdateSection mutates an existing section.
func (tx *transaction) UpdateSection(id string, mutator func(*Section) error) (Section, error) {
	current, ok := tx.state.sections[id]
	if !ok {
		return Section{}, domain.NotFound(domain.EntitySection, id)
	}
	before := current
	if err := mutator(&current); err != nil {
		return Section{}, err
	}
	current.ID = id
	current.CreatedAt = before.CreatedAt
	if err := validateSection(&tx.state, current); err != nil {
		return Section{}, err
	}
	current.UpdatedAt = tx.now
	tx.state.sections[id] = current
	tx.recordChange(Change{Entity: domain.EntitySection, Action: domain.ActionUpdate, Before: before, After: current})
	return current, nil
}

// DeleteSection removes a section.
func (tx *transaction) DeleteSection(id string) error {
	current, ok := tx.state.sections[id]
	if !ok {
		return domain.NotFound(domain.EntitySection, id)
	}
	delete(tx.state.sections, id)
	tx.recordChange(Change{Entity: domain.EntitySection, Action: domain.ActionDelete, Before: current})
	return nil
}

// CreateCell stores a new cell line.
func (tx *transaction) CreateCell(c Cell) (Cell, error) {
	if c.ID == "" {
		c.ID = newID()
	}
	if _, exists := tx.state.cells[c.ID]; exists {
		return Cell{}, domain.ErrDependency.New("cell %q already exists", c.ID)
	}
	if err := validateCell(&tx.state, c); err != nil {
		return Cell{}, err
	}
	c.CreatedAt = tx.now
	c.UpdatedAt = tx.now
	tx.state.cells[c.ID] = c
	tx.recordChange(Change{Entity: domain.EntityCell, Action: domain.ActionCreate, After: c})
	return c, nil
}

// UpdateCell mutates an existing cell line.
func (tx *transaction) UpdateCell(id string, mutator func(*Cell) error) (Cell, error) {
	current, ok := tx.state.cells[id]
	if !ok {
		return Cell{}, domain.NotFound(domain.EntityCell, id)
	}
	before := current
	if err := mutator(&current); err != nil {
		return Cell{}, err
	}
	current.ID = id
	current.CreatedAt = before.CreatedAt
	if err := validateCell(&tx.state, current); err != nil {
		return Cell{}, err
	}
	current.UpdatedAt = tx.now
	tx.state.cells[id] = current
	tx.recordChange(Change{Entity: domain.EntityCell, Action: domain.ActionUpdate, Before: before, After: current})
	return current, nil
}

// DeleteCell removes a cell line no section uses.
func (tx *transaction) DeleteCell(id string) error {
	current, ok := tx.state.cells[id]
	if !ok {
		return domain.NotFound(domain.EntityCell, id)
	}
	for _, s := range tx.state.sections {
		if s.CellID == id {
			return domain.ErrDependency.New("cell %q still referenced by section %q", id, s.ID)
		}
	}
	delete(tx.state.cells, id)
	tx.recordChange(Change{Entity: domain.EntityCell, Action: domain.ActionDelete, Before: current})
	return nil
}
