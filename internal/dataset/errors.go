package dataset

import "errors"

// Errors returned by the loader and field parser.
var (
	ErrUnsupportedFormat = errors.New("dataset: unsupported file format")
	ErrNoRows            = errors.New("dataset: file has no data rows")
	ErrUnknownField      = errors.New("dataset: unknown field")
)
