package session

import "errors"

var (
	// ErrNoActiveMacro is returned when a category has no macro to run.
	ErrNoActiveMacro = errors.New("session: no active macro")

	// ErrNoDataset is returned when a dataset category runs before an import.
	ErrNoDataset = errors.New("session: no dataset imported")

	// ErrNoCurrentRow is returned when the cursor is past the last row.
	ErrNoCurrentRow = errors.New("session: no current dataset row")

	// ErrNotSelectable is returned for selections on a category without
	// device pickers.
	ErrNotSelectable = errors.New("session: category has no device selection")
)
