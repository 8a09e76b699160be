package domain

import "github.com/zeebo/errs"

// Error classes shared by the store, the service and the HTTP adapters. The
// HTTP layer maps each class to a status code.
var (
	// ErrNotFound is returned when a referenced record does not exist.
	ErrNotFound = errs.Class("not found")
	// ErrDependency is returned when a unique field is already taken or when
	// dependent records prevent a delete.
	ErrDependency = errs.Class("dependency")
	// ErrConflict is returned when a write contradicts existing state, such as
	// overlapping sections or an already tagged item.
	ErrConflict = errs.Class("conflict")
	// ErrValidation is returned for malformed input.
	ErrValidation = errs.Class("validation")
)

// NotFound builds an ErrNotFound for the given entity and id.
func NotFound(entity EntityType, id string) error {
	return ErrNotFound.New("%s %q", entity, id)
}
