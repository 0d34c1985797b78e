// Package script executes macro steps as sandboxed Lua.
//
// Each run gets one Lua state. Only the base, table, string and math
// libraries are opened; file loading and dynamic code loading are removed,
// so a step can reach nothing but the handles bound by the session:
//
//	acs       locator primitives and device workflows
//	dataset   the work-list cursor
//	log       the run logger
//	add_result(text)
//
// plus the caller's context variables as globals. Setting the global
// script_stop to true ends the run after the current step.
//
// Every step runs under a deadline; pure Lua loops are cut off when it
// expires.
package script
