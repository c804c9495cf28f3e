package session

import (
	"errors"

	"github.com/kozaktomas/ar-marker/internal/camera"
	"github.com/kozaktomas/ar-marker/internal/database"
)

// Status is the lifecycle state of a capture session.
type Status string

// Status constants, in lifecycle order.
const (
	StatusIdle                 Status = "idle"
	StatusRequestingPermission Status = "requesting_permission"
	StatusActive               Status = "active"
	StatusDetected             Status = "detected"
	StatusError                Status = "error"
	StatusClosed               Status = "closed"
)

// ErrorKind classifies why a session entered StatusError.
type ErrorKind string

// ErrorKind values double as remediation catalogue keys.
const (
	PermissionDenied  ErrorKind = "permission_denied"
	DeviceNotFound    ErrorKind = "device_not_found"
	DeviceBusy        ErrorKind = "device_busy"
	UnsupportedDevice ErrorKind = "unsupported_device"
	DeviceLost        ErrorKind = "device_lost"
)

var (
	// ErrInvalidTransition is returned for commands not allowed in the
	// current state. The state is left unchanged.
	ErrInvalidTransition = errors.New("invalid session transition")
	// ErrStopped is returned by Start when Stop interrupted it.
	ErrStopped = errors.New("session stopped")
)

// State is a snapshot of a session.
type State struct {
	Status      Status            `json:"status"`
	ProjectID   string            `json:"projectId,omitempty"`
	Confidence  float64           `json:"confidence,omitempty"`
	Error       ErrorKind         `json:"error,omitempty"`
	Remediation string            `json:"remediation,omitempty"`
	Project     *database.Project `json:"-"`
}

// kindFor maps a camera acquisition error onto an ErrorKind. Unknown
// failures are reported as an unsupported device.
func kindFor(err error) ErrorKind {
	switch {
	case errors.Is(err, camera.ErrPermissionDenied):
		return PermissionDenied
	case errors.Is(err, camera.ErrDeviceNotFound):
		return DeviceNotFound
	case errors.Is(err, camera.ErrDeviceBusy):
		return DeviceBusy
	default:
		return UnsupportedDevice
	}
}
