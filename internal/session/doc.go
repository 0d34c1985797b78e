// Package session ties the operator's triggers to the macro runner.
//
// A Controller is shared by the hotkeys, the HTTP API and the MQTT command
// listener. It resolves the active macro of a category, builds the extra
// context the category needs (device selections or the current dataset
// row), starts the run, and posts the panel updates that follow it.
package session
