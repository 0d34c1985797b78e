// Package hotkey binds global keys to operator actions.
//
// The default bindings are esc for the stop toggle, F1 to F5 for the five
// macro categories and F7 to F10 for fixed clicks inside the target
// window. Keys are captured system-wide through gohook, so they work while
// the target application has focus.
package hotkey
