package core

import (
	"context"
	"fmt"

	"labcatalog/pkg/domain"
)

// NewSectionOverlapRule returns the rule forbidding two sections of a plate
// from sharing a well.
func NewSectionOverlapRule() domain.Rule {
	return sectionOverlapRule{}
}

type sectionOverlapRule struct{}

func (sectionOverlapRule) Name() string { return "section_overlap" }

type well struct {
	row int
	col int
}

func rasterize(s domain.Section) map[well]struct{} {
	wells := make(map[well]struct{})
	for r := rowOrdinal(s.RowStart); r <= rowOrdinal(s.RowEnd); r++ {
		for c := s.ColStart; c <= s.ColEnd; c++ {
			wells[well{row: r, col: c}] = struct{}{}
		}
	}
	return wells
}

func (sectionOverlapRule) Evaluate(_ context.Context, view domain.TransactionView, changes []domain.Change) (domain.Result, error) {
	candidates := changedSections(view, changes)
	if len(candidates) == 0 {
		return domain.Result{}, nil
	}
	byPlate := make(map[string][]domain.Section)
	for _, s := range view.ListSections() {
		byPlate[s.PlateID] = append(byPlate[s.PlateID], s)
	}

	res := domain.Result{}
	for _, s := range candidates {
		wells := rasterize(s)
		for _, other := range byPlate[s.PlateID] {
			if other.ID == s.ID {
				continue
			}
			shared := 0
			for w := range rasterize(other) {
				if _, ok := wells[w]; ok {
					shared++
				}
			}
			if shared == 0 {
				continue
			}
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "section_overlap",
				Severity: domain.SeverityBlock,
				Message: fmt.Sprintf("section %s (%s-%s x %d-%d) overlaps section %s on %d wells",
					s.ID, s.RowStart, s.RowEnd, s.ColStart, s.ColEnd, other.ID, shared),
				Entity:   domain.EntitySection,
				EntityID: s.ID,
			})
		}
	}
	return res, nil
}
