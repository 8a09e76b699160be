package core

import (
	"context"
	"fmt"

	"labcatalog/pkg/domain"
)

// NewSectionBoundsRule returns the rule keeping sections inside the area of
// the plate that holds items.
func NewSectionBoundsRule() domain.Rule {
	return sectionBoundsRule{}
}

type sectionBoundsRule struct{}

func (sectionBoundsRule) Name() string { return "section_bounds" }

type wellBox struct {
	minRow, maxRow int
	minCol, maxCol int
}

func (b wellBox) String() string {
	return fmt.Sprintf("%c-%c x %d-%d", 'A'+b.minRow-1, 'A'+b.maxRow-1, b.minCol, b.maxCol)
}

func (sectionBoundsRule) Evaluate(_ context.Context, view domain.TransactionView, changes []domain.Change) (domain.Result, error) {
	sections := changedSections(view, changes)
	if len(sections) == 0 {
		return domain.Result{}, nil
	}

	boxes := make(map[string]*wellBox)
	for _, it := range view.ListItems() {
		row := rowOrdinal(it.Row)
		b, ok := boxes[it.PlateID]
		if !ok {
			boxes[it.PlateID] = &wellBox{minRow: row, maxRow: row, minCol: it.Col, maxCol: it.Col}
			continue
		}
		b.minRow, b.maxRow = min(b.minRow, row), max(b.maxRow, row)
		b.minCol, b.maxCol = min(b.minCol, it.Col), max(b.maxCol, it.Col)
	}

	res := domain.Result{}
	for _, s := range sections {
		requested := wellBox{
			minRow: rowOrdinal(s.RowStart), maxRow: rowOrdinal(s.RowEnd),
			minCol: s.ColStart, maxCol: s.ColEnd,
		}
		allowed, ok := boxes[s.PlateID]
		var msg string
		switch {
		case !ok:
			msg = fmt.Sprintf("section %s requests %s but plate %s has no items", s.ID, requested, s.PlateID)
		case requested.minRow < allowed.minRow || requested.maxRow > allowed.maxRow ||
			requested.minCol < allowed.minCol || requested.maxCol > allowed.maxCol:
			msg = fmt.Sprintf("section %s requests %s outside plate bounds %s", s.ID, requested, *allowed)
		default:
			continue
		}
		res.Violations = append(res.Violations, domain.Violation{
			Rule:     "section_bounds",
			Severity: domain.SeverityBlock,
			Message:  msg,
			Entity:   domain.EntitySection,
			EntityID: s.ID,
		})
	}
	return res, nil
}
