package core

import "labcatalog/pkg/domain"

type (
	EntityType         = domain.EntityType
	Severity           = domain.Severity
	Plate              = domain.Plate
	TimePoint          = domain.TimePoint
	Item               = domain.Item
	Section            = domain.Section
	Cell               = domain.Cell
	Stack              = domain.Stack
	StackChannel       = domain.StackChannel
	Modality           = domain.Modality
	Compound           = domain.Compound
	CompoundProperty   = domain.CompoundProperty
	Tag                = domain.Tag
	Change             = domain.Change
	Violation          = domain.Violation
	Result             = domain.Result
	Rule               = domain.Rule
	RulesEngine        = domain.RulesEngine
	RuleViolationError = domain.RuleViolationError
	Transaction        = domain.Transaction
	TransactionView    = domain.TransactionView
	PersistentStore    = domain.PersistentStore
)
