package desktop

import "errors"

// Errors returned by the desktop adapters.
var (
	ErrCapture        = errors.New("desktop: screen capture failed")
	ErrEmptyRegion    = errors.New("desktop: empty capture region")
	ErrInvalidButton  = errors.New("desktop: invalid mouse button")
	ErrWindowNotFound = errors.New("desktop: target window not found")
)
