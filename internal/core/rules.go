package core

import "labcatalog/pkg/domain"

// NewDefaultRulesEngine builds a rules engine with the built-in placement
// rules for sections.
func NewDefaultRulesEngine() *domain.RulesEngine {
	engine := domain.NewRulesEngine()
	engine.Register(NewSectionBoundsRule())
	engine.Register(NewSectionOverlapRule())
	return engine
}

// changedSections returns the sections created or updated by changes, read
// back from view so later mutations in the same transaction are honoured.
// Sections deleted afterwards are skipped.
func changedSections(view domain.TransactionView, changes []domain.Change) []domain.Section {
	seen := make(map[string]bool)
	var out []domain.Section
	for _, c := range changes {
		if c.Entity != domain.EntitySection || c.Action == domain.ActionDelete {
			continue
		}
		after, ok := c.After.(domain.Section)
		if !ok || seen[after.ID] {
			continue
		}
		seen[after.ID] = true
		if current, ok := view.FindSection(after.ID); ok {
			out = append(out, current)
		}
	}
	return out
}

// rowOrdinal maps a row letter to its 1-based position in the alphabet.
func rowOrdinal(row string) int {
	if len(row) != 1 {
		return 0
	}
	return int(row[0]-'A') + 1
}
