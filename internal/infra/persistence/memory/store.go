// Package memory provides an in-memory implementation of the catalog
// persistence store used for tests and ephemeral environments. The SQL
// backends reuse its transaction semantics through Apply and ViewSnapshot.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"labcatalog/pkg/domain"
)

// Compile-time contract assertions ensuring memory.Store adheres to the domain persistence interfaces.
var _ domain.PersistentStore = (*Store)(nil)

// Store provides an in-memory transactional store for the catalog.
type Store struct {
	mu     sync.RWMutex
	state  memoryState
	engine *RulesEngine
	nowFn  func() time.Time
}

// NewStore constructs an in-memory store backed by the provided rules engine.
func NewStore(engine *RulesEngine) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	return &Store{
		state:  newMemoryState(),
		engine: engine,
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
}

// ExportState clones the current store state for external persistence.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshotFromMemoryState(s.state)
}

// ImportState replaces the store state with the provided snapshot.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = memoryStateFromSnapshot(snapshot)
}

// RulesEngine exposes the currently configured engine.
func (s *Store) RulesEngine() *RulesEngine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

// NowFunc returns the time provider used by the in-memory store.
func (s *Store) NowFunc() func() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nowFn
}

// SetNowFunc overrides the clock, mainly for tests.
func (s *Store) SetNowFunc(fn func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nowFn = fn
}

// RunInTransaction executes fn within a transactional copy of the store state.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx Transaction) error) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, result, err := run(ctx, s.engine, s.state.clone(), s.nowFn(), fn)
	if err != nil {
		return result, err
	}
	s.state = next
	return result, nil
}

// View executes fn against a read-only snapshot of the store state.
func (s *Store) View(_ context.Context, fn func(TransactionView) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := s.state.clone()
	return fn(newTransactionView(&snapshot))
}

// Apply runs fn against a copy of snapshot with the same validation and rule
// evaluation as Store.RunInTransaction, returning the state to persist. The
// input snapshot is never modified.
func Apply(ctx context.Context, engine *RulesEngine, snapshot Snapshot, now time.Time, fn func(Transaction) error) (Snapshot, Result, error) {
	next, result, err := run(ctx, engine, memoryStateFromSnapshot(snapshot), now, fn)
	if err != nil {
		return Snapshot{}, result, err
	}
	return snapshotFromMemoryState(next), result, nil
}

// ViewSnapshot exposes snapshot through the read-only view used by Store.View.
func ViewSnapshot(snapshot Snapshot, fn func(TransactionView) error) error {
	state := memoryStateFromSnapshot(snapshot)
	return fn(newTransactionView(&state))
}

func run(ctx context.Context, engine *RulesEngine, state memoryState, now time.Time, fn func(Transaction) error) (memoryState, Result, error) {
	tx := &transaction{
		state: state,
		now:   now,
	}
	tx.transactionView = transactionView{state: &tx.state}
	if err := fn(tx); err != nil {
		return memoryState{}, Result{}, err
	}
	if err := ctx.Err(); err != nil {
		return memoryState{}, Result{}, err
	}

	var result Result
	if engine != nil {
		view := newTransactionView(&tx.state)
		res, err := engine.Evaluate(ctx, view, tx.changes)
		if err != nil {
			return memoryState{}, Result{}, err
		}
		result = res
		if res.HasBlocking() {
			return memoryState{}, res, domain.RuleViolationError{Result: res}
		}
	}
	return tx.state, result, nil
}

// transaction represents a mutation set applied to the store state.
type transaction struct {
	transactionView
	state   memoryState
	changes []Change
	now     time.Time
}

func newID() string {
	return uuid.NewString()
}

// helper to record and append change entries.
func (tx *transaction) recordChange(change Change) {
	tx.changes = append(tx.changes, change)
}

// transactionView exposes a read-only snapshot of the state to rules and queries.
type transactionView struct {
	state *memoryState
}

func newTransactionView(state *memoryState) TransactionView {
	return transactionView{state: state}
}

func sortedValues[T any](m map[string]T, clone func(T) T, key func(T) string) []T {
	out := make([]T, 0, len(m))
	for _, v := range m {
		out = append(out, clone(v))
	}
	sort.SliceStable(out, func(i, j int) bool { return key(out[i]) < key(out[j]) })
	return out
}

func find[T any](m map[string]T, id string, clone func(T) T) (T, bool) {
	v, ok := m[id]
	if !ok {
		var zero T
		return zero, false
	}
	return clone(v), true
}

func nameKey(name, id string) string { return name + "\x00" + id }

// ListPlates returns all plates ordered by name.
func (v transactionView) ListPlates() []Plate {
	return sortedValues(v.state.plates, identity[Plate], func(p Plate) string { return nameKey(p.Name, p.ID) })
}

// FindPlate retrieves a plate by id.
func (v transactionView) FindPlate(id string) (Plate, bool) {
	return find(v.state.plates, id, identity[Plate])
}

// ListTimePoints returns all time points ordered by acquisition time.
func (v transactionView) ListTimePoints() []TimePoint {
	return sortedValues(v.state.timepoints, identity[TimePoint], func(t TimePoint) string {
		return t.Time.UTC().Format(time.RFC3339Nano) + "\x00" + t.ID
	})
}

// FindTimePoint retrieves a time point by id.
func (v transactionView) FindTimePoint(id string) (TimePoint, bool) {
	return find(v.state.timepoints, id, identity[TimePoint])
}

// ListItems returns all items ordered by id.
func (v transactionView) ListItems() []Item {
	return sortedValues(v.state.items, identity[Item], func(i Item) string { return i.ID })
}

// FindItem retrieves an item by id.
func (v transactionView) FindItem(id string) (Item, bool) {
	return find(v.state.items, id, identity[Item])
}

// ListSections returns all sections ordered by plate and range.
func (v transactionView) ListSections() []Section {
	out := sortedValues(v.state.sections, identity[Section], func(s Section) string { return s.ID })
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.PlateID != b.PlateID {
			return a.PlateID < b.PlateID
		}
		if a.RowStart != b.RowStart {
			return a.RowStart < b.RowStart
		}
		return a.ColStart < b.ColStart
	})
	return out
}

// FindSection retrieves a section by id.
func (v transactionView) FindSection(id string) (Section, bool) {
	return find(v.state.sections, id, identity[Section])
}

// ListCells returns all cells ordered by name.
func (v transactionView) ListCells() []Cell {
	return sortedValues(v.state.cells, identity[Cell], func(c Cell) string { return nameKey(c.Name, c.ID) })
}

// FindCell retrieves a cell by id.
func (v transactionView) FindCell(id string) (Cell, bool) {
	return find(v.state.cells, id, identity[Cell])
}

// ListStacks returns all stacks ordered by name.
func (v transactionView) ListStacks() []Stack {
	return sortedValues(v.state.stacks, cloneStack, func(s Stack) string { return nameKey(s.Name, s.ID) })
}

// FindStack retrieves a stack by id.
func (v transactionView) FindStack(id string) (Stack, bool) {
	return find(v.state.stacks, id, cloneStack)
}

// ListModalities returns all modalities ordered by name.
func (v transactionView) ListModalities() []Modality {
	return sortedValues(v.state.modalities, identity[Modality], func(m Modality) string { return nameKey(m.Name, m.ID) })
}

// FindModality retrieves a modality by id.
func (v transactionView) FindModality(id string) (Modality, bool) {
	return find(v.state.modalities, id, identity[Modality])
}

// ListCompounds returns all compounds ordered by name.
func (v transactionView) ListCompounds() []Compound {
	return sortedValues(v.state.compounds, cloneCompound, func(c Compound) string { return nameKey(c.Name, c.ID) })
}

// FindCompound retrieves a compound by id.
func (v transactionView) FindCompound(id string) (Compound, bool) {
	return find(v.state.compounds, id, cloneCompound)
}

// ListCompoundProperties returns the property forest in nested-set order.
func (v transactionView) ListCompoundProperties() []CompoundProperty {
	out := sortedValues(v.state.properties, cloneProperty, func(p CompoundProperty) string { return p.ID })
	sort.SliceStable(out, func(i, j int) bool { return out[i].Left < out[j].Left })
	return out
}

// FindCompoundProperty retrieves a property by id.
func (v transactionView) FindCompoundProperty(id string) (CompoundProperty, bool) {
	return find(v.state.properties, id, cloneProperty)
}

// ListTags returns all tags ordered by name.
func (v transactionView) ListTags() []Tag {
	return sortedValues(v.state.tags, identity[Tag], func(t Tag) string { return nameKey(t.Name, t.ID) })
}

// FindTag retrieves a tag by id.
func (v transactionView) FindTag(id string) (Tag, bool) {
	return find(v.state.tags, id, identity[Tag])
}

// FindTagByName retrieves a tag by its unique name.
func (v transactionView) FindTagByName(name string) (Tag, bool) {
	for _, t := range v.state.tags {
		if t.Name == name {
			return t, true
		}
	}
	return Tag{}, false
}

// ListItemTags returns every item/tag association ordered by key.
func (v transactionView) ListItemTags() []ItemTag {
	return sortedValues(v.state.itemTags, identity[ItemTag], ItemTag.Key)
}
