package acs

import "slices"

// Device type names as shown by the target application.
const (
	TypeAFVarionautPump  = "AFVarionaut Pump"
	TypeSubmersiblePump  = "Submersible Pump"
	TypeTricolorLed      = "Tricolor Led"
	TypeSingleColorLed   = "SingleColor Led"
	TypeDmx2VfdConverter = "Dmx2Vfd Converter"
)

// powerOptions lists the powers the application offers per device type,
// in drop-down order.
var powerOptions = map[string][]string{
	TypeAFVarionautPump:  {"60", "100", "140", "160"},
	TypeSubmersiblePump:  {"120", "150", "200"},
	TypeTricolorLed:      {"18", "36"},
	TypeSingleColorLed:   {"6", "12"},
	TypeDmx2VfdConverter: {"Unspecified"},
}

// DeviceTypes returns every device type in drop-down order.
func DeviceTypes() []string {
	return []string{
		TypeAFVarionautPump,
		TypeSubmersiblePump,
		TypeTricolorLed,
		TypeSingleColorLed,
		TypeDmx2VfdConverter,
	}
}

// PowerOptions returns the powers valid for deviceType, or nil for an
// unknown type.
func PowerOptions(deviceType string) []string {
	return slices.Clone(powerOptions[deviceType])
}

// Selection is the device type and power picked for a UID column.
type Selection struct {
	DeviceType  string `json:"device_type"`
	DevicePower string `json:"device_power"`
}

// DefaultSelection is the selection shown before the operator picks one.
func DefaultSelection() Selection {
	return Selection{DeviceType: TypeAFVarionautPump, DevicePower: "60"}
}

// Normalise keeps the power when it is valid for the type and otherwise
// falls back to the type's first power. ok is false for an unknown type.
func (s Selection) Normalise() (Selection, bool) {
	opts, known := powerOptions[s.DeviceType]
	if !known {
		return s, false
	}
	if !slices.Contains(opts, s.DevicePower) {
		s.DevicePower = opts[0]
	}
	return s, true
}
