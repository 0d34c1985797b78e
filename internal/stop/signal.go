// Package stop provides the process-wide cooperative cancellation flag.
//
// The stop hotkey sets or toggles the Signal; search loops check it at the
// top of every pass and the macro runner checks it between steps. Nothing is
// preempted: a step already executing finishes its current primitive.
package stop

import "sync/atomic"

// Signal is a cooperative stop flag. The zero value is clear and ready to use.
type Signal struct {
	set atomic.Bool
}

// New returns a clear Signal.
func New() *Signal {
	return &Signal{}
}

// Set raises the flag.
func (s *Signal) Set() {
	s.set.Store(true)
}

// Clear lowers the flag.
func (s *Signal) Clear() {
	s.set.Store(false)
}

// Toggle flips the flag and returns the new state.
func (s *Signal) Toggle() bool {
	for {
		old := s.set.Load()
		if s.set.CompareAndSwap(old, !old) {
			return !old
		}
	}
}

// IsSet reports whether a stop has been requested.
func (s *Signal) IsSet() bool {
	return s.set.Load()
}
