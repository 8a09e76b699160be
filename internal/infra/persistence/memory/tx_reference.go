package memory

import (
	"labcatalog/internal/nestedset"
	"labcatalog/pkg/domain"
)

// CreateStack stores a new stack and its channel bindings.
func (tx *transaction) CreateStack(s Stack) (Stack, error) {
	if s.ID == "" {
		s.ID = newID()
	}
	if _, exists := tx.state.stacks[s.ID]; exists {
		return Stack{}, domain.ErrDependency.New("stack %q already exists", s.ID)
	}
	s = cloneStack(s)
	if err := normalizeStack(&tx.state, &s); err != nil {
		return Stack{}, err
	}
	s.CreatedAt = tx.now
	s.UpdatedAt = tx.now
	tx.state.stacks[s.ID] = s
	tx.recordChange(Change{Entity: domain.EntityStack, Action: domain.ActionCreate, After: cloneStack(s)})
	return cloneStack(s), nil
}

// UpdateStack mutates an existing stack.
func (tx *transaction) UpdateStack(id string, mutator func(*Stack) error) (Stack, error) {
	stored, ok := tx.state.stacks[id]
	if !ok {
		return Stack{}, domain.NotFound(domain.EntityStack, id)
	}
	before := cloneStack(stored)
	current := cloneStack(stored)
	if err := mutator(&current); err != nil {
		return Stack{}, err
	}
	current.ID = id
	current.CreatedAt = before.CreatedAt
	if err := normalizeStack(&tx.state, &current); err != nil {
		return Stack{}, err
	}
	current.UpdatedAt = tx.now
	tx.state.stacks[id] = current
	tx.recordChange(Change{Entity: domain.EntityStack, Action: domain.ActionUpdate, Before: before, After: cloneStack(current)})
	return cloneStack(current), nil
}

// DeleteStack removes a stack no section uses.
func (tx *transaction) DeleteStack(id string) error {
	current, ok := tx.state.stacks[id]
	if !ok {
		return domain.NotFound(domain.EntityStack, id)
	}
	for _, s := range tx.state.sections {
		if s.StackID == id {
			return domain.ErrDependency.New("stack %q still referenced by section %q", id, s.ID)
		}
	}
	delete(tx.state.stacks, id)
	tx.recordChange(Change{Entity: domain.EntityStack, Action: domain.ActionDelete, Before: current})
	return nil
}

// CreateModality stores a new modality.
func (tx *transaction) CreateModality(m Modality) (Modality, error) {
	if m.ID == "" {
		m.ID = newID()
	}
	if _, exists := tx.state.modalities[m.ID]; exists {
		return Modality{}, domain.ErrDependency.New("modality %q already exists", m.ID)
	}
	if err := validateModality(&tx.state, m); err != nil {
		return Modality{}, err
	}
	m.CreatedAt = tx.now
	m.UpdatedAt = tx.now
	tx.state.modalities[m.ID] = m
	tx.recordChange(Change{Entity: domain.EntityModality, Action: domain.ActionCreate, After: m})
	return m, nil
}

// UpdateModality mutates an existing modality.
func (tx *transaction) UpdateModality(id string, mutator func(*Modality) error) (Modality, error) {
	current, ok := tx.state.modalities[id]
	if !ok {
		return Modality{}, domain.NotFound(domain.EntityModality, id)
	}
	before := current
	if err := mutator(&current); err != nil {
		return Modality{}, err
	}
	current.ID = id
	current.CreatedAt = before.CreatedAt
	if err := validateModality(&tx.state, current); err != nil {
		return Modality{}, err
	}
	current.UpdatedAt = tx.now
	tx.state.modalities[id] = current
	tx.recordChange(Change{Entity: domain.EntityModality, Action: domain.ActionUpdate, Before: before, After: current})
	return current, nil
}

// DeleteModality removes a modality no stack channel is bound to.
func (tx *transaction) DeleteModality(id string) error {
	current, ok := tx.state.modalities[id]
	if !ok {
		return domain.NotFound(domain.EntityModality, id)
	}
	for _, s := range tx.state.stacks {
		for _, ch := range s.Channels {
			if ch.ModalityID == id {
				return domain.ErrDependency.New("modality %q still used by stack %q", id, s.ID)
			}
		}
	}
	delete(tx.state.modalities, id)
	tx.recordChange(Change{Entity: domain.EntityModality, Action: domain.ActionDelete, Before: current})
	return nil
}

// CreateCompound stores a new compound.
func (tx *transaction) CreateCompound(c Compound) (Compound, error) {
	if c.ID == "" {
		c.ID = newID()
	}
	if _, exists := tx.state.compounds[c.ID]; exists {
		return Compound{}, domain.ErrDependency.New("compound %q already exists", c.ID)
	}
	if err := validateCompound(&tx.state, c); err != nil {
		return Compound{}, err
	}
	c = cloneCompound(c)
	c.CreatedAt = tx.now
	c.UpdatedAt = tx.now
	tx.state.compounds[c.ID] = c
	tx.recordChange(Change{Entity: domain.EntityCompound, Action: domain.ActionCreate, After: cloneCompound(c)})
	return cloneCompound(c), nil
}

// UpdateCompound mutates an existing compound.
func (tx *transaction) UpdateCompound(id string, mutator func(*Compound) error) (Compound, error) {
	stored, ok := tx.state.compounds[id]
	if !ok {
		return Compound{}, domain.NotFound(domain.EntityCompound, id)
	}
	before := cloneCompound(stored)
	current := cloneCompound(stored)
	if err := mutator(&current); err != nil {
		return Compound{}, err
	}
	current.ID = id
	current.CreatedAt = before.CreatedAt
	if err := validateCompound(&tx.state, current); err != nil {
		return Compound{}, err
	}
	current.UpdatedAt = tx.now
	tx.state.compounds[id] = cloneCompound(current)
	tx.recordChange(Change{Entity: domain.EntityCompound, Action: domain.ActionUpdate, Before: before, After: cloneCompound(current)})
	return cloneCompound(current), nil
}

// DeleteCompound removes a compound no section uses.
func (tx *transaction) DeleteCompound(id string) error {
	current, ok := tx.state.compounds[id]
	if !ok {
		return domain.NotFound(domain.EntityCompound, id)
	}
	for _, s := range tx.state.sections {
		if s.CompoundID == id {
			return domain.ErrDependency.New("compound %q still referenced by section %q", id, s.ID)
		}
	}
	delete(tx.state.compounds, id)
	tx.recordChange(Change{Entity: domain.EntityCompound, Action: domain.ActionDelete, Before: current})
	return nil
}

// CreateCompoundProperty inserts a node into the property forest and
// renumbers the nested-set bounds.
func (tx *transaction) CreateCompoundProperty(p CompoundProperty) (CompoundProperty, error) {
	if p.ID == "" {
		p.ID = newID()
	}
	if _, exists := tx.state.properties[p.ID]; exists {
		return CompoundProperty{}, domain.ErrDependency.New("compound property %q already exists", p.ID)
	}
	if err := validateProperty(&tx.state, p); err != nil {
		return CompoundProperty{}, err
	}
	p = cloneProperty(p)
	p.CreatedAt = tx.now
	p.UpdatedAt = tx.now
	tx.state.properties[p.ID] = p
	if err := tx.renumberProperties(); err != nil {
		delete(tx.state.properties, p.ID)
		return CompoundProperty{}, err
	}
	created := cloneProperty(tx.state.properties[p.ID])
	tx.recordChange(Change{Entity: domain.EntityCompoundProperty, Action: domain.ActionCreate, After: created})
	return created, nil
}

// UpdateCompoundProperty mutates a property. Re-parenting renumbers the
// forest; moving a node below its own descendant is rejected.
func (tx *transaction) UpdateCompoundProperty(id string, mutator func(*CompoundProperty) error) (CompoundProperty, error) {
	stored, ok := tx.state.properties[id]
	if !ok {
		return CompoundProperty{}, domain.NotFound(domain.EntityCompoundProperty, id)
	}
	before := cloneProperty(stored)
	current := cloneProperty(stored)
	if err := mutator(&current); err != nil {
		return CompoundProperty{}, err
	}
	current.ID = id
	current.CreatedAt = before.CreatedAt
	current.Left, current.Right, current.Depth = before.Left, before.Right, before.Depth
	if err := validateProperty(&tx.state, current); err != nil {
		return CompoundProperty{}, err
	}
	current.UpdatedAt = tx.now
	tx.state.properties[id] = current
	if err := tx.renumberProperties(); err != nil {
		tx.state.properties[id] = stored
		return CompoundProperty{}, err
	}
	updated := cloneProperty(tx.state.properties[id])
	tx.recordChange(Change{Entity: domain.EntityCompoundProperty, Action: domain.ActionUpdate, Before: before, After: updated})
	return updated, nil
}

// DeleteCompoundProperty removes a leaf property no compound references.
func (tx *transaction) DeleteCompoundProperty(id string) error {
	current, ok := tx.state.properties[id]
	if !ok {
		return domain.NotFound(domain.EntityCompoundProperty, id)
	}
	for _, p := range tx.state.properties {
		if p.ParentID != nil && *p.ParentID == id {
			return domain.ErrDependency.New("compound property %q still has child %q", id, p.ID)
		}
	}
	for _, c := range tx.state.compounds {
		if c.PropertyID != nil && *c.PropertyID == id {
			return domain.ErrDependency.New("compound property %q still referenced by compound %q", id, c.ID)
		}
	}
	delete(tx.state.properties, id)
	if err := tx.renumberProperties(); err != nil {
		return err
	}
	tx.recordChange(Change{Entity: domain.EntityCompoundProperty, Action: domain.ActionDelete, Before: cloneProperty(current)})
	return nil
}

// renumberProperties recomputes the nested-set bounds of the whole forest.
func (tx *transaction) renumberProperties() error {
	nodes := make([]nestedset.Node, 0, len(tx.state.properties))
	for id, p := range tx.state.properties {
		n := nestedset.Node{ID: id, SortKey: p.Type + "/" + p.Value}
		if p.ParentID != nil {
			n.ParentID = *p.ParentID
		}
		nodes = append(nodes, n)
	}
	positions, err := nestedset.Renumber(nodes)
	if err != nil {
		return domain.ErrValidation.Wrap(err)
	}
	for id, pos := range positions {
		p := tx.state.properties[id]
		p.Left, p.Right, p.Depth = pos.Left, pos.Right, pos.Depth
		tx.state.properties[id] = p
	}
	return nil
}

// CreateTag stores a new tag.
func (tx *transaction) CreateTag(t Tag) (Tag, error) {
	if t.ID == "" {
		t.ID = newID()
	}
	if _, exists := tx.state.tags[t.ID]; exists {
		return Tag{}, domain.ErrDependency.New("tag %q already exists", t.ID)
	}
	if err := validateTag(&tx.state, t); err != nil {
		return Tag{}, err
	}
	t.CreatedAt = tx.now
	t.UpdatedAt = tx.now
	tx.state.tags[t.ID] = t
	tx.recordChange(Change{Entity: domain.EntityTag, Action: domain.ActionCreate, After: t})
	return t, nil
}

// UpdateTag mutates an existing tag.
func (tx *transaction) UpdateTag(id string, mutator func(*Tag) error) (Tag, error) {
	current, ok := tx.state.tags[id]
	if !ok {
		return Tag{}, domain.NotFound(domain.EntityTag, id)
	}
	before := current
	if err := mutator(&current); err != nil {
		return Tag{}, err
	}
	current.ID = id
	current.CreatedAt = before.CreatedAt
	if err := validateTag(&tx.state, current); err != nil {
		return Tag{}, err
	}
	current.UpdatedAt = tx.now
	tx.state.tags[id] = current
	tx.recordChange(Change{Entity: domain.EntityTag, Action: domain.ActionUpdate, Before: before, After: current})
	return current, nil
}

// DeleteTag removes a tag that is not attached to any item.
func (tx *transaction) DeleteTag(id string) error {
	current, ok := tx.state.tags[id]
	if !ok {
		return domain.NotFound(domain.EntityTag, id)
	}
	for _, link := range tx.state.itemTags {
		if link.TagID == id {
			return domain.ErrDependency.New("tag %q still attached to item %q", id, link.ItemID)
		}
	}
	delete(tx.state.tags, id)
	tx.recordChange(Change{Entity: domain.EntityTag, Action: domain.ActionDelete, Before: current})
	return nil
}

// AttachTag associates the tag with every listed item. Duplicate ids in the
// input are collapsed; an item that already carries the tag fails the call.
func (tx *transaction) AttachTag(tagID string, itemIDs []string) (int, error) {
	if _, ok := tx.state.tags[tagID]; !ok {
		return 0, domain.NotFound(domain.EntityTag, tagID)
	}
	ids := dedupe(itemIDs)
	for _, itemID := range ids {
		if _, ok := tx.state.items[itemID]; !ok {
			return 0, domain.NotFound(domain.EntityItem, itemID)
		}
		link := ItemTag{ItemID: itemID, TagID: tagID}
		if _, exists := tx.state.itemTags[link.Key()]; exists {
			return 0, domain.ErrConflict.New("item %q already tagged with %q", itemID, tagID)
		}
	}
	for _, itemID := range ids {
		link := ItemTag{ItemID: itemID, TagID: tagID, CreatedAt: tx.now}
		tx.state.itemTags[link.Key()] = link
		tx.recordChange(Change{Entity: domain.EntityItemTag, Action: domain.ActionCreate, After: link})
	}
	return len(ids), nil
}

// DetachTag removes the tag from the listed items and reports how many
// associations existed.
func (tx *transaction) DetachTag(tagID string, itemIDs []string) (int, error) {
	if _, ok := tx.state.tags[tagID]; !ok {
		return 0, domain.NotFound(domain.EntityTag, tagID)
	}
	removed := 0
	for _, itemID := range dedupe(itemIDs) {
		key := ItemTag{ItemID: itemID, TagID: tagID}.Key()
		link, ok := tx.state.itemTags[key]
		if !ok {
			continue
		}
		delete(tx.state.itemTags, key)
		tx.recordChange(Change{Entity: domain.EntityItemTag, Action: domain.ActionDelete, Before: link})
		removed++
	}
	return removed, nil
}

func dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
