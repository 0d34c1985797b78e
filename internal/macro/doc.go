// Package macro stores user-authored macros and runs them.
//
// A macro is an ordered list of named steps whose code runs in the script
// sandbox. Macros are grouped by category; each category is bound to a
// hotkey or panel button and has exactly one active macro, which is the one
// a trigger runs.
//
// # Store
//
// Store keeps the whole macro document in memory and writes every change
// through to a Repository (SQLite by default, or a JSON file). A missing or
// unreadable document is replaced by defaults and persisted, so a fresh
// station always has something to run.
//
// # Runner
//
// Runner executes one macro at a time on its own goroutine. A second
// request while a run is alive is refused with ErrBusy rather than queued.
// Between steps the runner checks the stop signal and the script_stop
// variable; a step that fails is recorded and the run moves on to the next
// step. When the run ends, for any reason, the finaliser fires.
//
// Thread Safety:
//   - Store and Runner methods are safe for concurrent use.
//   - ExecutionContext is shared by every step of one run and guarded by
//     its own mutex.
package macro
