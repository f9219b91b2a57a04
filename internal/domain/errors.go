package domain

import "errors"

// Sentinel errors shared across storage and service layers. HTTP handlers map
// these onto status codes; nothing here is fatal to the process.
var (
	// ErrNotFound means the requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAccessDenied means the user is neither the owner nor a member of
	// the budget. A budget lookup miss is reported the same way.
	ErrAccessDenied = errors.New("access denied")

	// ErrDuplicate means a write collided with a uniqueness constraint,
	// e.g. an external transaction id that was already imported.
	ErrDuplicate = errors.New("duplicate record")

	// ErrNoCategories means a budget has no categories, so imported
	// transactions would have nothing to be assigned to.
	ErrNoCategories = errors.New("budget has no categories")

	// ErrValidation means the input was malformed.
	ErrValidation = errors.New("invalid input")
)
