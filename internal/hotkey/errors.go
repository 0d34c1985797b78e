package hotkey

import "errors"

var (
	// ErrUnknownKey is returned for a key name the hook backend cannot map.
	ErrUnknownKey = errors.New("hotkey: unknown key")

	// ErrDuplicateKey is returned when two actions are bound to one key.
	ErrDuplicateKey = errors.New("hotkey: key bound twice")
)
