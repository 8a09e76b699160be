package core

import (
	"context"
	"time"

	"go.uber.org/zap"

	"labcatalog/internal/ingest"
	"labcatalog/pkg/domain"
)

// ListPlates returns every plate ordered by name.
func (s *Service) ListPlates(ctx context.Context) ([]Plate, error) {
	return list(ctx, s, "list_plates", domain.TransactionView.ListPlates)
}

// GetPlate returns one plate.
func (s *Service) GetPlate(ctx context.Context, id string) (Plate, error) {
	return get(ctx, s, "get_plate", domain.EntityPlate, id, domain.TransactionView.FindPlate)
}

// CreatePlate persists a plate.
func (s *Service) CreatePlate(ctx context.Context, p Plate) (Plate, Result, error) {
	var created Plate
	res, err := s.mutate(ctx, "create_plate", domain.EntityPlate, func(tx Transaction) (string, error) {
		var err error
		created, err = tx.CreatePlate(p)
		return created.ID, err
	})
	return created, res, err
}

// UpdatePlate mutates a plate.
func (s *Service) UpdatePlate(ctx context.Context, id string, mutator func(*Plate) error) (Plate, Result, error) {
	var updated Plate
	res, err := s.mutate(ctx, "update_plate", domain.EntityPlate, func(tx Transaction) (string, error) {
		var err error
		updated, err = tx.UpdatePlate(id, mutator)
		return id, err
	})
	return updated, res, err
}

// DeletePlate removes a plate without sections or time points.
func (s *Service) DeletePlate(ctx context.Context, id string) (Result, error) {
	return s.mutate(ctx, "delete_plate", domain.EntityPlate, func(tx Transaction) (string, error) {
		return id, tx.DeletePlate(id)
	})
}

func sectionsOf(v domain.TransactionView, plateID string) []Section {
	var out []Section
	for _, sec := range v.ListSections() {
		if sec.PlateID == plateID {
			out = append(out, sec)
		}
	}
	return out
}

// ListSections returns the sections of a plate ordered by range. An empty
// plateID lists every section.
func (s *Service) ListSections(ctx context.Context, plateID string) ([]Section, error) {
	var out []Section
	err := s.read(ctx, "list_sections", func(v domain.TransactionView) error {
		if plateID == "" {
			out = v.ListSections()
			return nil
		}
		if _, ok := v.FindPlate(plateID); !ok {
			return domain.NotFound(domain.EntityPlate, plateID)
		}
		out = sectionsOf(v, plateID)
		return nil
	})
	return out, err
}

// GetSection returns one section.
func (s *Service) GetSection(ctx context.Context, id string) (Section, error) {
	return get(ctx, s, "get_section", domain.EntitySection, id, domain.TransactionView.FindSection)
}

// CreateSection places a section on its plate. Placement rules reject
// sections outside the plate's items or overlapping another section.
func (s *Service) CreateSection(ctx context.Context, sec Section) (Section, Result, error) {
	var created Section
	res, err := s.mutate(ctx, "create_section", domain.EntitySection, func(tx Transaction) (string, error) {
		var err error
		created, err = tx.CreateSection(sec)
		return created.ID, err
	})
	return created, res, err
}

// UpdateSection mutates a section; placement rules are evaluated again.
func (s *Service) UpdateSection(ctx context.Context, id string, mutator func(*Section) error) (Section, Result, error) {
	var updated Section
	res, err := s.mutate(ctx, "update_section", domain.EntitySection, func(tx Transaction) (string, error) {
		var err error
		updated, err = tx.UpdateSection(id, mutator)
		return id, err
	})
	return updated, res, err
}

// DeleteSection removes one section.
func (s *Service) DeleteSection(ctx context.Context, id string) (Result, error) {
	return s.mutate(ctx, "delete_section", domain.EntitySection, func(tx Transaction) (string, error) {
		return id, tx.DeleteSection(id)
	})
}

// DeletePlateSections removes every section of a plate and returns how many
// were removed.
func (s *Service) DeletePlateSections(ctx context.Context, plateID string) (int, Result, error) {
	var n int
	res, err := s.mutate(ctx, "delete_plate_sections", domain.EntityPlate, func(tx Transaction) (string, error) {
		if _, ok := tx.FindPlate(plateID); !ok {
			return plateID, domain.NotFound(domain.EntityPlate, plateID)
		}
		for _, sec := range sectionsOf(tx, plateID) {
			if err := tx.DeleteSection(sec.ID); err != nil {
				return plateID, err
			}
			n++
		}
		return plateID, nil
	})
	return n, res, err
}

// ListTimePoints returns time points ordered by time. A non-empty plateID
// restricts them to one plate.
func (s *Service) ListTimePoints(ctx context.Context, plateID string) ([]TimePoint, error) {
	var out []TimePoint
	err := s.read(ctx, "list_timepoints", func(v domain.TransactionView) error {
		if plateID != "" {
			if _, ok := v.FindPlate(plateID); !ok {
				return domain.NotFound(domain.EntityPlate, plateID)
			}
		}
		for _, tp := range v.ListTimePoints() {
			if plateID == "" || tp.PlateID == plateID {
				out = append(out, tp)
			}
		}
		return nil
	})
	return out, err
}

// GetTimePoint returns one time point.
func (s *Service) GetTimePoint(ctx context.Context, id string) (TimePoint, error) {
	return get(ctx, s, "get_timepoint", domain.EntityTimePoint, id, domain.TransactionView.FindTimePoint)
}

// CreateTimePoint registers an acquisition of a plate and ingests one item
// per image found under uri. The uri must use the reader's scheme and end
// with a slash. A zero at is replaced by the current time.
func (s *Service) CreateTimePoint(ctx context.Context, plateID, uri string, at time.Time) (TimePoint, int, Result, error) {
	var (
		created TimePoint
		files   []ingest.File
	)
	res, err := s.mutate(ctx, "create_timepoint", domain.EntityTimePoint, func(tx Transaction) (string, error) {
		if s.reader == nil {
			return "", Error.New("no ingest reader configured")
		}
		if err := s.reader.CheckURI(uri); err != nil {
			return "", err
		}
		if at.IsZero() {
			at = s.opts.clock()
		}
		var err error
		created, err = tx.CreateTimePoint(TimePoint{PlateID: plateID, URI: uri, Time: at})
		if err != nil {
			return "", err
		}
		if files, err = s.reader.Read(ctx, uri); err != nil {
			return created.ID, err
		}
		for _, f := range files {
			if _, err := tx.CreateItem(f.Item(plateID, created.ID)); err != nil {
				return created.ID, err
			}
		}
		return created.ID, nil
	})
	if err != nil {
		return TimePoint{}, 0, res, err
	}
	s.opts.logger.Info("time point ingested", zap.String("timepoint_id", created.ID),
		zap.String("uri", uri), zap.Int("items", len(files)))
	return created, len(files), res, nil
}

// DeleteTimePoint removes a time point together with its items and their
// tag associations.
func (s *Service) DeleteTimePoint(ctx context.Context, id string) (Result, error) {
	return s.mutate(ctx, "delete_timepoint", domain.EntityTimePoint, func(tx Transaction) (string, error) {
		return id, tx.DeleteTimePoint(id)
	})
}
