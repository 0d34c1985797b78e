package acs

import "errors"

// Workflow errors. Their messages become the result lines of a macro run.
var (
	ErrUnknownDeviceType  = errors.New("acs: unknown device type")
	ErrUnknownDevicePower = errors.New("acs: unknown device power")
	ErrTemplateNotFound   = errors.New("acs: template not found")
	ErrStopped            = errors.New("acs: stopped by user")
	ErrInput              = errors.New("acs: input failed")
	ErrNoWindow           = errors.New("acs: no target window")
)
