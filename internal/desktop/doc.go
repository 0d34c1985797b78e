// Package desktop adapts robotgo to the locator's Screen and Input
// interfaces and finds the target application's window.
//
// robotgo talks to the native display server through cgo. Everything in
// this package must run on the worker goroutine of a macro run or on the
// hotkey callback, never concurrently with itself; Input serialises its
// calls with a mutex.
package desktop
