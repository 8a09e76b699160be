// Package domain defines the persistent catalog entities, value types, and
// rule evaluation primitives used by labcatalog.
package domain

import (
	"time"
)

// EntityType identifies the type of record stored in the catalog.
type EntityType string

// Supported entity type identifiers used in Change records, persistence buckets
// and query filter prefixes.
const (
	// EntityItem identifies a single imaged field.
	EntityItem EntityType = "item"
	// EntityPlate identifies a physical plate.
	EntityPlate EntityType = "plate"
	// EntityTimePoint identifies an acquisition time point of a plate.
	EntityTimePoint EntityType = "timepoint"
	// EntitySection identifies a rectangular region of a plate.
	EntitySection EntityType = "section"
	// EntityCell identifies a cell line.
	EntityCell EntityType = "cell"
	// EntityStack identifies a group of modalities bound to channels.
	EntityStack EntityType = "stack"
	// EntityModality identifies an imaging technique.
	EntityModality EntityType = "modality"
	// EntityCompound identifies a chemical compound.
	EntityCompound EntityType = "compound"
	// EntityCompoundProperty identifies a node of the compound property tree.
	EntityCompoundProperty EntityType = "compound_property"
	// EntityTag identifies a free-form label.
	EntityTag EntityType = "tag"
	// EntityItemTag identifies an item/tag association.
	EntityItemTag EntityType = "item_tag"
)

// Severity captures rule outcomes.
type Severity string

// Rule evaluation severities determine commit behavior and logging.
const (
	// SeverityBlock blocks transaction commit.
	SeverityBlock Severity = "block"
	// SeverityWarn logs a warning but allows commit.
	SeverityWarn Severity = "warn"
	SeverityLog  Severity = "log"
)

// Base contains common fields for all domain records.
type Base struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RecordID returns the record identifier.
func (b Base) RecordID() string { return b.ID }

// Plate is a physical multi-well container.
type Plate struct {
	Base
	Name    string `json:"name"`
	Comment string `json:"comment,omitempty"`
}

// TimePoint is one acquisition of a plate. Items belong to exactly one time point.
type TimePoint struct {
	Base
	PlateID string    `json:"plate_id"`
	URI     string    `json:"uri"`
	Time    time.Time `json:"time"`
}

// Item references one imaged field: a single site and channel of a well.
type Item struct {
	Base
	URI         string `json:"uri"`
	Row         string `json:"row"`
	Col         int    `json:"col"`
	Site        int    `json:"site"`
	Chan        int    `json:"chan"`
	PlateID     string `json:"plate_id"`
	TimePointID string `json:"timepoint_id"`
}

// Section is a rectangular sub-grid of wells bound to one cell, compound and stack.
type Section struct {
	Base
	PlateID               string  `json:"plate_id"`
	RowStart              string  `json:"row_start"`
	RowEnd                string  `json:"row_end"`
	ColStart              int     `json:"col_start"`
	ColEnd                int     `json:"col_end"`
	CellID                string  `json:"cell_id"`
	CompoundID            string  `json:"compound_id"`
	StackID               string  `json:"stack_id"`
	CompoundConcentration float64 `json:"compound_concentration"`
}

// ContainsWell reports whether the (row, col) well lies in the section rectangle.
func (s Section) ContainsWell(row string, col int) bool {
	return row >= s.RowStart && row <= s.RowEnd && col >= s.ColStart && col <= s.ColEnd
}

// Cell describes a cell line used in a section.
type Cell struct {
	Base
	Name    string `json:"name"`
	Code    string `json:"code"`
	Comment string `json:"comment,omitempty"`
}

// StackChannel associates an imaging channel of a stack with the modality that
// produced it. Regexp matches the file names acquired on that channel.
type StackChannel struct {
	ID         string `json:"id"`
	ModalityID string `json:"modality_id"`
	Chan       int    `json:"chan"`
	Regexp     string `json:"regexp,omitempty"`
}

// Stack groups modalities by channel.
type Stack struct {
	Base
	Name     string         `json:"name"`
	Comment  string         `json:"comment,omitempty"`
	Channels []StackChannel `json:"channels"`
}

// Channel returns the association registered for chan, if any.
func (s Stack) Channel(ch int) (StackChannel, bool) {
	for _, c := range s.Channels {
		if c.Chan == ch {
			return c, true
		}
	}
	return StackChannel{}, false
}

// Modality is an imaging technique.
type Modality struct {
	Base
	Name    string `json:"name"`
	Target  string `json:"target,omitempty"`
	Comment string `json:"comment,omitempty"`
}

// Compound is a chemical entity with an optional position in the property tree.
type Compound struct {
	Base
	Name       string  `json:"name"`
	PropertyID *string `json:"property_id"`
	Comment    string  `json:"comment,omitempty"`
}

// CompoundProperty is a node of the hierarchical compound property forest.
// Left and Right are nested-set bounds maintained by the store; callers never set them.
type CompoundProperty struct {
	Base
	ParentID *string `json:"parent_id"`
	Type     string  `json:"type"`
	Value    string  `json:"value"`
	Left     int     `json:"left"`
	Right    int     `json:"right"`
	Depth    int     `json:"depth"`
}

// Tag is a free-form label attachable to items.
type Tag struct {
	Base
	Name    string `json:"name"`
	Comment string `json:"comment,omitempty"`
}

// ItemTag associates a tag with an item. The (ItemID, TagID) pair is unique.
type ItemTag struct {
	ItemID    string    `json:"item_id"`
	TagID     string    `json:"tag_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Key returns the unique association key.
func (a ItemTag) Key() string {
	return a.ItemID + "/" + a.TagID
}

// Action describes the type of change performed on an entity.
type Action string

// Supported change actions.
const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Change describes a mutation applied to an entity within a transaction.
type Change struct {
	Entity EntityType
	Action Action
	Before any
	After  any
}

// Violation reports a failed rule evaluation.
type Violation struct {
	Rule     string     `json:"rule"`
	Severity Severity   `json:"severity"`
	Message  string     `json:"message"`
	Entity   EntityType `json:"entity"`
	EntityID string     `json:"entity_id,omitempty"`
}

// Result aggregates violations from the rules engine.
type Result struct {
	Violations []Violation `json:"violations"`
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking returns true when any violation is blocking.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}

// RuleViolationError is returned when blocking violations are present.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	for _, v := range e.Result.Violations {
		if v.Severity == SeverityBlock {
			return "transaction blocked by rules: " + v.Message
		}
	}
	return "transaction blocked by rules"
}
