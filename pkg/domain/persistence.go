package domain

import "context"

// Transaction exposes mutation primitives for a unit of work. Every mutation
// is validated against the transactional state; returning an error from the
// transaction function discards all of them.
type Transaction interface {
	TransactionView

	CreatePlate(Plate) (Plate, error)
	UpdatePlate(id string, mutator func(*Plate) error) (Plate, error)
	DeletePlate(id string) error

	CreateTimePoint(TimePoint) (TimePoint, error)
	DeleteTimePoint(id string) error

	CreateItem(Item) (Item, error)
	UpdateItem(id string, mutator func(*Item) error) (Item, error)
	DeleteItem(id string) error

	CreateSection(Section) (Section, error)
	UpdateSection(id string, mutator func(*Section) error) (Section, error)
	DeleteSection(id string) error

	CreateCell(Cell) (Cell, error)
	UpdateCell(id string, mutator func(*Cell) error) (Cell, error)
	DeleteCell(id string) error

	CreateStack(Stack) (Stack, error)
	UpdateStack(id string, mutator func(*Stack) error) (Stack, error)
	DeleteStack(id string) error

	CreateModality(Modality) (Modality, error)
	UpdateModality(id string, mutator func(*Modality) error) (Modality, error)
	DeleteModality(id string) error

	CreateCompound(Compound) (Compound, error)
	UpdateCompound(id string, mutator func(*Compound) error) (Compound, error)
	DeleteCompound(id string) error

	CreateCompoundProperty(CompoundProperty) (CompoundProperty, error)
	UpdateCompoundProperty(id string, mutator func(*CompoundProperty) error) (CompoundProperty, error)
	DeleteCompoundProperty(id string) error

	CreateTag(Tag) (Tag, error)
	UpdateTag(id string, mutator func(*Tag) error) (Tag, error)
	DeleteTag(id string) error

	// AttachTag associates tagID with every item in itemIDs. An existing
	// association fails the whole call.
	AttachTag(tagID string, itemIDs []string) (int, error)
	// DetachTag removes the associations between tagID and itemIDs and returns
	// how many were removed.
	DetachTag(tagID string, itemIDs []string) (int, error)
}

// TransactionView provides read-only access to snapshot data for queries and rules.
type TransactionView interface {
	ListPlates() []Plate
	FindPlate(id string) (Plate, bool)
	ListTimePoints() []TimePoint
	FindTimePoint(id string) (TimePoint, bool)
	ListItems() []Item
	FindItem(id string) (Item, bool)
	ListSections() []Section
	FindSection(id string) (Section, bool)
	ListCells() []Cell
	FindCell(id string) (Cell, bool)
	ListStacks() []Stack
	FindStack(id string) (Stack, bool)
	ListModalities() []Modality
	FindModality(id string) (Modality, bool)
	ListCompounds() []Compound
	FindCompound(id string) (Compound, bool)
	ListCompoundProperties() []CompoundProperty
	FindCompoundProperty(id string) (CompoundProperty, bool)
	ListTags() []Tag
	FindTag(id string) (Tag, bool)
	FindTagByName(name string) (Tag, bool)
	ListItemTags() []ItemTag
}

// PersistentStore is a minimal abstraction over durable backends. Each call
// is one unit of work: writes go through RunInTransaction, reads through View.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
}
