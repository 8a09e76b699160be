package memory

import (
	"labcatalog/pkg/domain"
)

type (
	// Plate aliases domain.Plate for in-memory persistence operations.
	Plate = domain.Plate
	// TimePoint aliases domain.TimePoint.
	TimePoint = domain.TimePoint
	// Item aliases domain.Item.
	Item = domain.Item
	// Section aliases domain.Section.
	Section = domain.Section
	// Cell aliases domain.Cell.
	Cell = domain.Cell
	// Stack aliases domain.Stack.
	Stack = domain.Stack
	// Modality aliases domain.Modality.
	Modality = domain.Modality
	// Compound aliases domain.Compound.
	Compound = domain.Compound
	// CompoundProperty aliases domain.CompoundProperty.
	CompoundProperty = domain.CompoundProperty
	// Tag aliases domain.Tag.
	Tag = domain.Tag
	// ItemTag aliases domain.ItemTag.
	ItemTag = domain.ItemTag
	// Change aliases domain.Change captured in transactions.
	Change = domain.Change
	// Result aliases domain.Result summarizing rule evaluation.
	Result = domain.Result
	// RulesEngine aliases domain.RulesEngine used to evaluate rules.
	RulesEngine = domain.RulesEngine
	// Transaction aliases domain.Transaction representing a mutable unit of work.
	Transaction = domain.Transaction
	// TransactionView aliases domain.TransactionView providing read-only state.
	TransactionView = domain.TransactionView
)

type memoryState struct {
	plates     map[string]Plate
	timepoints map[string]TimePoint
	items      map[string]Item
	sections   map[string]Section
	cells      map[string]Cell
	stacks     map[string]Stack
	modalities map[string]Modality
	compounds  map[string]Compound
	properties map[string]CompoundProperty
	tags       map[string]Tag
	itemTags   map[string]ItemTag
}

// Snapshot captures a point-in-time clone of the store state. Each field is
// persisted as one bucket by the SQL backends.
type Snapshot struct {
	Plates     map[string]Plate            `json:"plates"`
	TimePoints map[string]TimePoint        `json:"timepoints"`
	Items      map[string]Item             `json:"items"`
	Sections   map[string]Section          `json:"sections"`
	Cells      map[string]Cell             `json:"cells"`
	Stacks     map[string]Stack            `json:"stacks"`
	Modalities map[string]Modality         `json:"modalities"`
	Compounds  map[string]Compound         `json:"compounds"`
	Properties map[string]CompoundProperty `json:"properties"`
	Tags       map[string]Tag              `json:"tags"`
	ItemTags   map[string]ItemTag          `json:"item_tags"`
}

// Buckets lists the snapshot bucket names in persistence order.
var Buckets = []string{
	"plates",
	"timepoints",
	"items",
	"sections",
	"cells",
	"stacks",
	"modalities",
	"compounds",
	"properties",
	"tags",
	"item_tags",
}

// Bucket returns a pointer to the map backing the named bucket so callers can
// encode or decode it. Unknown names return nil.
func (s *Snapshot) Bucket(name string) any {
	switch name {
	case "plates":
		return &s.Plates
	case "timepoints":
		return &s.TimePoints
	case "items":
		return &s.Items
	case "sections":
		return &s.Sections
	case "cells":
		return &s.Cells
	case "stacks":
		return &s.Stacks
	case "modalities":
		return &s.Modalities
	case "compounds":
		return &s.Compounds
	case "properties":
		return &s.Properties
	case "tags":
		return &s.Tags
	case "item_tags":
		return &s.ItemTags
	default:
		return nil
	}
}

func newMemoryState() memoryState {
	return memoryState{
		plates:     make(map[string]Plate),
		timepoints: make(map[string]TimePoint),
		items:      make(map[string]Item),
		sections:   make(map[string]Section),
		cells:      make(map[string]Cell),
		stacks:     make(map[string]Stack),
		modalities: make(map[string]Modality),
		compounds:  make(map[string]Compound),
		properties: make(map[string]CompoundProperty),
		tags:       make(map[string]Tag),
		itemTags:   make(map[string]ItemTag),
	}
}

func copyMap[T any](dst, src map[string]T, clone func(T) T) {
	for k, v := range src {
		dst[k] = clone(v)
	}
}

func identity[T any](v T) T { return v }

func (s memoryState) clone() memoryState {
	cloned := newMemoryState()
	copyMap(cloned.plates, s.plates, identity[Plate])
	copyMap(cloned.timepoints, s.timepoints, identity[TimePoint])
	copyMap(cloned.items, s.items, identity[Item])
	copyMap(cloned.sections, s.sections, identity[Section])
	copyMap(cloned.cells, s.cells, identity[Cell])
	copyMap(cloned.stacks, s.stacks, cloneStack)
	copyMap(cloned.modalities, s.modalities, identity[Modality])
	copyMap(cloned.compounds, s.compounds, cloneCompound)
	copyMap(cloned.properties, s.properties, cloneProperty)
	copyMap(cloned.tags, s.tags, identity[Tag])
	copyMap(cloned.itemTags, s.itemTags, identity[ItemTag])
	return cloned
}

func snapshotFromMemoryState(state memoryState) Snapshot {
	c := state.clone()
	return Snapshot{
		Plates:     c.plates,
		TimePoints: c.timepoints,
		Items:      c.items,
		Sections:   c.sections,
		Cells:      c.cells,
		Stacks:     c.stacks,
		Modalities: c.modalities,
		Compounds:  c.compounds,
		Properties: c.properties,
		Tags:       c.tags,
		ItemTags:   c.itemTags,
	}
}

func memoryStateFromSnapshot(s Snapshot) memoryState {
	state := newMemoryState()
	copyMap(state.plates, s.Plates, identity[Plate])
	copyMap(state.timepoints, s.TimePoints, identity[TimePoint])
	copyMap(state.items, s.Items, identity[Item])
	copyMap(state.sections, s.Sections, identity[Section])
	copyMap(state.cells, s.Cells, identity[Cell])
	copyMap(state.stacks, s.Stacks, cloneStack)
	copyMap(state.modalities, s.Modalities, identity[Modality])
	copyMap(state.compounds, s.Compounds, cloneCompound)
	copyMap(state.properties, s.Properties, cloneProperty)
	copyMap(state.tags, s.Tags, identity[Tag])
	for _, v := range s.ItemTags {
		// re-key so hand-edited or legacy snapshots stay consistent
		state.itemTags[v.Key()] = v
	}
	return state
}

func cloneStack(s Stack) Stack {
	cp := s
	cp.Channels = append([]domain.StackChannel(nil), s.Channels...)
	return cp
}

func cloneCompound(c Compound) Compound {
	cp := c
	if c.PropertyID != nil {
		id := *c.PropertyID
		cp.PropertyID = &id
	}
	return cp
}

func cloneProperty(p CompoundProperty) CompoundProperty {
	cp := p
	if p.ParentID != nil {
		id := *p.ParentID
		cp.ParentID = &id
	}
	return cp
}
