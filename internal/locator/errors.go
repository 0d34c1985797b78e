package locator

import "errors"

// Errors reported by New and by the match fault handler.
var (
	// ErrMissingDependency is returned by New when a required collaborator is nil.
	ErrMissingDependency = errors.New("locator: missing dependency")

	// ErrMatch wraps a capture or comparison fault.
	ErrMatch = errors.New("locator: match failed")
)
