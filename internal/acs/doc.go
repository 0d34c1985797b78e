// Package acs holds the device workflows of the ACS Device Configuration
// tool: picking the device type and power, opening a discovered device and
// writing its DMX slave address, and clicking fixed points of the target
// window.
//
// A Workflow wraps the locator primitives so macro steps reach both through
// one handle.
package acs
