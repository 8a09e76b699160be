// Package core is the catalog's service layer. Every operation runs in one
// store transaction and is timed, traced and, for mutations, audited.
package core

import (
	"context"
	"time"

	"go.uber.org/zap"

	"labcatalog/internal/infra/blob/memory"
	memstore "labcatalog/internal/infra/persistence/memory"
	"labcatalog/internal/ingest"
	"labcatalog/internal/query"
	"labcatalog/pkg/domain"
)

// InMemoryScheme is the time point URI scheme accepted by NewInMemoryService.
const InMemoryScheme = "scheme"

// Service exposes transactional operations over the catalog.
type Service struct {
	store    domain.PersistentStore
	reader   *ingest.Reader
	registry *query.Registry
	opts     serviceOptions
}

// NewService constructs a service backed by store. reader lists the images of
// new time points.
func NewService(store domain.PersistentStore, reader *ingest.Reader, opts ...ServiceOption) *Service {
	o := defaultServiceOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Service{store: store, reader: reader, registry: query.NewRegistry(), opts: o}
}

// NewInMemoryService creates a service over a memory store and a memory blob
// store. Time point URIs use InMemoryScheme.
func NewInMemoryService(engine *domain.RulesEngine, opts ...ServiceOption) *Service {
	reader, err := ingest.NewReader(memory.New(), ingest.Config{Scheme: InMemoryScheme}, nil)
	if err != nil {
		// the default pattern always compiles
		panic(err)
	}
	return NewService(memstore.NewStore(engine), reader, opts...)
}

// Store returns the underlying persistent store.
func (s *Service) Store() domain.PersistentStore { return s.store }

// Reader returns the time point ingest reader.
func (s *Service) Reader() *ingest.Reader { return s.reader }

// Registry returns the filterable columns of the item view.
func (s *Service) Registry() *query.Registry { return s.registry }

// Logger returns the service logger.
func (s *Service) Logger() *zap.Logger { return s.opts.logger }

func (s *Service) observe(ctx context.Context, op string, fn func(context.Context) error) error {
	ctx, span := s.opts.tracer.Start(ctx, op)
	start := time.Now()
	err := fn(ctx)
	elapsed := time.Since(start)
	span.End(err)
	s.opts.metrics.Observe(ctx, op, err == nil, elapsed)
	if err != nil {
		s.opts.logger.Debug("operation failed", zap.String("operation", op), zap.Error(err))
	}
	return err
}

// mutate runs fn in a write transaction. fn returns the id of the record it
// touched for the audit entry.
func (s *Service) mutate(ctx context.Context, op string, entity domain.EntityType, fn func(domain.Transaction) (string, error)) (domain.Result, error) {
	var (
		res domain.Result
		id  string
	)
	at := s.opts.clock()
	start := time.Now()
	err := s.observe(ctx, op, func(ctx context.Context) error {
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			var err error
			id, err = fn(tx)
			return err
		})
		return err
	})
	entry := AuditEntry{
		Operation:  op,
		Entity:     entity,
		EntityID:   id,
		Actor:      ActorFromContext(ctx),
		Status:     AuditStatusSuccess,
		Duration:   time.Since(start),
		OccurredAt: at,
	}
	if err != nil {
		entry.Status = AuditStatusError
		entry.Error = err.Error()
	}
	s.opts.audit.Record(ctx, entry)
	for _, v := range res.Violations {
		if v.Severity == domain.SeverityWarn {
			s.opts.logger.Warn("rule warning", zap.String("rule", v.Rule), zap.String("message", v.Message))
		}
	}
	return res, err
}

func (s *Service) read(ctx context.Context, op string, fn func(domain.TransactionView) error) error {
	return s.observe(ctx, op, func(ctx context.Context) error {
		return s.store.View(ctx, fn)
	})
}

func list[T any](ctx context.Context, s *Service, op string, fn func(domain.TransactionView) []T) ([]T, error) {
	var out []T
	err := s.read(ctx, op, func(v domain.TransactionView) error {
		out = fn(v)
		return nil
	})
	return out, err
}

func get[T any](ctx context.Context, s *Service, op string, entity domain.EntityType, id string, find func(domain.TransactionView, string) (T, bool)) (T, error) {
	var out T
	err := s.read(ctx, op, func(v domain.TransactionView) error {
		var ok bool
		if out, ok = find(v, id); !ok {
			return domain.NotFound(entity, id)
		}
		return nil
	})
	return out, err
}

// ListModalities returns every modality ordered by name.
func (s *Service) ListModalities(ctx context.Context) ([]Modality, error) {
	return list(ctx, s, "list_modalities", domain.TransactionView.ListModalities)
}

// GetModality returns one modality.
func (s *Service) GetModality(ctx context.Context, id string) (Modality, error) {
	return get(ctx, s, "get_modality", domain.EntityModality, id, domain.TransactionView.FindModality)
}

// CreateModality persists a new modality.
func (s *Service) CreateModality(ctx context.Context, m Modality) (Modality, Result, error) {
	var created Modality
	res, err := s.mutate(ctx, "create_modality", domain.EntityModality, func(tx Transaction) (string, error) {
		var err error
		created, err = tx.CreateModality(m)
		return created.ID, err
	})
	return created, res, err
}

// UpdateModality mutates a modality.
func (s *Service) UpdateModality(ctx context.Context, id string, mutator func(*Modality) error) (Modality, Result, error) {
	var updated Modality
	res, err := s.mutate(ctx, "update_modality", domain.EntityModality, func(tx Transaction) (string, error) {
		var err error
		updated, err = tx.UpdateModality(id, mutator)
		return id, err
	})
	return updated, res, err
}

// DeleteModality removes a modality no stack uses.
func (s *Service) DeleteModality(ctx context.Context, id string) (Result, error) {
	return s.mutate(ctx, "delete_modality", domain.EntityModality, func(tx Transaction) (string, error) {
		return id, tx.DeleteModality(id)
	})
}

// ListStacks returns every stack ordered by name.
func (s *Service) ListStacks(ctx context.Context) ([]Stack, error) {
	return list(ctx, s, "list_stacks", domain.TransactionView.ListStacks)
}

// GetStack returns one stack with its channels.
func (s *Service) GetStack(ctx context.Context, id string) (Stack, error) {
	return get(ctx, s, "get_stack", domain.EntityStack, id, domain.TransactionView.FindStack)
}

// CreateStack persists a stack and its channel bindings.
func (s *Service) CreateStack(ctx context.Context, st Stack) (Stack, Result, error) {
	var created Stack
	res, err := s.mutate(ctx, "create_stack", domain.EntityStack, func(tx Transaction) (string, error) {
		var err error
		created, err = tx.CreateStack(st)
		return created.ID, err
	})
	return created, res, err
}

// UpdateStack mutates a stack. Replacing Channels rebinds the modalities.
func (s *Service) UpdateStack(ctx context.Context, id string, mutator func(*Stack) error) (Stack, Result, error) {
	var updated Stack
	res, err := s.mutate(ctx, "update_stack", domain.EntityStack, func(tx Transaction) (string, error) {
		var err error
		updated, err = tx.UpdateStack(id, mutator)
		return id, err
	})
	return updated, res, err
}

// DeleteStack removes a stack no section uses.
func (s *Service) DeleteStack(ctx context.Context, id string) (Result, error) {
	return s.mutate(ctx, "delete_stack", domain.EntityStack, func(tx Transaction) (string, error) {
		return id, tx.DeleteStack(id)
	})
}

// ListCells returns every cell line ordered by name.
func (s *Service) ListCells(ctx context.Context) ([]Cell, error) {
	return list(ctx, s, "list_cells", domain.TransactionView.ListCells)
}

// GetCell returns one cell line.
func (s *Service) GetCell(ctx context.Context, id string) (Cell, error) {
	return get(ctx, s, "get_cell", domain.EntityCell, id, domain.TransactionView.FindCell)
}

// CreateCell persists a cell line.
func (s *Service) CreateCell(ctx context.Context, c Cell) (Cell, Result, error) {
	var created Cell
	res, err := s.mutate(ctx, "create_cell", domain.EntityCell, func(tx Transaction) (string, error) {
		var err error
		created, err = tx.CreateCell(c)
		return created.ID, err
	})
	return created, res, err
}

// UpdateCell mutates a cell line.
func (s *Service) UpdateCell(ctx context.Context, id string, mutator func(*Cell) error) (Cell, Result, error) {
	var updated Cell
	res, err := s.mutate(ctx, "update_cell", domain.EntityCell, func(tx Transaction) (string, error) {
		var err error
		updated, err = tx.UpdateCell(id, mutator)
		return id, err
	})
	return updated, res, err
}

// DeleteCell removes a cell line no section uses.
func (s *Service) DeleteCell(ctx context.Context, id string) (Result, error) {
	return s.mutate(ctx, "delete_cell", domain.EntityCell, func(tx Transaction) (string, error) {
		return id, tx.DeleteCell(id)
	})
}

// ListCompounds returns every compound ordered by name.
func (s *Service) ListCompounds(ctx context.Context) ([]Compound, error) {
	return list(ctx, s, "list_compounds", domain.TransactionView.ListCompounds)
}

// GetCompound returns one compound.
func (s *Service) GetCompound(ctx context.Context, id string) (Compound, error) {
	return get(ctx, s, "get_compound", domain.EntityCompound, id, domain.TransactionView.FindCompound)
}

// CreateCompound persists a compound.
func (s *Service) CreateCompound(ctx context.Context, c Compound) (Compound, Result, error) {
	var created Compound
	res, err := s.mutate(ctx, "create_compound", domain.EntityCompound, func(tx Transaction) (string, error) {
		var err error
		created, err = tx.CreateCompound(c)
		return created.ID, err
	})
	return created, res, err
}

// UpdateCompound mutates a compound.
func (s *Service) UpdateCompound(ctx context.Context, id string, mutator func(*Compound) error) (Compound, Result, error) {
	var updated Compound
	res, err := s.mutate(ctx, "update_compound", domain.EntityCompound, func(tx Transaction) (string, error) {
		var err error
		updated, err = tx.UpdateCompound(id, mutator)
		return id, err
	})
	return updated, res, err
}

// DeleteCompound removes a compound no section uses.
func (s *Service) DeleteCompound(ctx context.Context, id string) (Result, error) {
	return s.mutate(ctx, "delete_compound", domain.EntityCompound, func(tx Transaction) (string, error) {
		return id, tx.DeleteCompound(id)
	})
}

// ListCompoundProperties returns the property forest in nested-set order.
func (s *Service) ListCompoundProperties(ctx context.Context) ([]CompoundProperty, error) {
	return list(ctx, s, "list_compound_properties", domain.TransactionView.ListCompoundProperties)
}

// GetCompoundProperty returns one property node.
func (s *Service) GetCompoundProperty(ctx context.Context, id string) (CompoundProperty, error) {
	return get(ctx, s, "get_compound_property", domain.EntityCompoundProperty, id, domain.TransactionView.FindCompoundProperty)
}

// CreateCompoundProperty adds a node to the property forest.
func (s *Service) CreateCompoundProperty(ctx context.Context, p CompoundProperty) (CompoundProperty, Result, error) {
	var created CompoundProperty
	res, err := s.mutate(ctx, "create_compound_property", domain.EntityCompoundProperty, func(tx Transaction) (string, error) {
		var err error
		created, err = tx.CreateCompoundProperty(p)
		return created.ID, err
	})
	return created, res, err
}

// UpdateCompoundProperty mutates a node; changing ParentID moves its subtree.
func (s *Service) UpdateCompoundProperty(ctx context.Context, id string, mutator func(*CompoundProperty) error) (CompoundProperty, Result, error) {
	var updated CompoundProperty
	res, err := s.mutate(ctx, "update_compound_property", domain.EntityCompoundProperty, func(tx Transaction) (string, error) {
		var err error
		updated, err = tx.UpdateCompoundProperty(id, mutator)
		return id, err
	})
	return updated, res, err
}

// DeleteCompoundProperty removes a leaf no compound references.
func (s *Service) DeleteCompoundProperty(ctx context.Context, id string) (Result, error) {
	return s.mutate(ctx, "delete_compound_property", domain.EntityCompoundProperty, func(tx Transaction) (string, error) {
		return id, tx.DeleteCompoundProperty(id)
	})
}

// ListTags returns every tag ordered by name.
func (s *Service) ListTags(ctx context.Context) ([]Tag, error) {
	return list(ctx, s, "list_tags", domain.TransactionView.ListTags)
}

// GetTag returns one tag.
func (s *Service) GetTag(ctx context.Context, id string) (Tag, error) {
	return get(ctx, s, "get_tag", domain.EntityTag, id, domain.TransactionView.FindTag)
}

// CreateTag persists a tag.
func (s *Service) CreateTag(ctx context.Context, t Tag) (Tag, Result, error) {
	var created Tag
	res, err := s.mutate(ctx, "create_tag", domain.EntityTag, func(tx Transaction) (string, error) {
		var err error
		created, err = tx.CreateTag(t)
		return created.ID, err
	})
	return created, res, err
}

// UpdateTag mutates a tag.
func (s *Service) UpdateTag(ctx context.Context, id string, mutator func(*Tag) error) (Tag, Result, error) {
	var updated Tag
	res, err := s.mutate(ctx, "update_tag", domain.EntityTag, func(tx Transaction) (string, error) {
		var err error
		updated, err = tx.UpdateTag(id, mutator)
		return id, err
	})
	return updated, res, err
}

// DeleteTag removes a tag that is on no item.
func (s *Service) DeleteTag(ctx context.Context, id string) (Result, error) {
	return s.mutate(ctx, "delete_tag", domain.EntityTag, func(tx Transaction) (string, error) {
		return id, tx.DeleteTag(id)
	})
}
