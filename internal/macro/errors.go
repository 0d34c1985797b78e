package macro

import "errors"

// Domain errors for the macro package.
//
//	if errors.Is(err, macro.ErrBusy) {
//	    // a run is already in progress
//	}
var (
	// ErrUnknownCategory is returned for a category outside AllCategories.
	ErrUnknownCategory = errors.New("macro: unknown category")

	// ErrMacroNotFound is returned when a macro index is out of range.
	ErrMacroNotFound = errors.New("macro: not found")

	// ErrStepNotFound is returned when a step index is out of range.
	ErrStepNotFound = errors.New("macro: step not found")

	// ErrInvalidName is returned when a macro or step name is empty or too long.
	ErrInvalidName = errors.New("macro: invalid name")

	// ErrNameExists is returned when a macro name is already used in its category.
	ErrNameExists = errors.New("macro: name already exists")

	// ErrInvalidMacro is returned when a macro fails validation.
	ErrInvalidMacro = errors.New("macro: invalid")

	// ErrLastMacro is returned when deleting the only macro of a category.
	ErrLastMacro = errors.New("macro: cannot delete the last macro of a category")

	// ErrCorrupt is returned by a repository whose stored document cannot be decoded.
	ErrCorrupt = errors.New("macro: stored document is corrupt")

	// ErrBusy is returned when a run is requested while another is alive.
	ErrBusy = errors.New("macro: a run is already in progress")

	// ErrRunNotFound is returned when a run ID does not exist.
	ErrRunNotFound = errors.New("macro: run not found")
)
