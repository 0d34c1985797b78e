// Package dataset holds the imported work-list and its cursor.
//
// One row is one physical device to configure: its sequence number and the
// DMX addresses of its pump, LED and DMX-to-VFD converter. The cursor only
// moves forward through Advance, which is gated by the operator's
// auto-increment toggle, or through an explicit JumpTo.
package dataset
