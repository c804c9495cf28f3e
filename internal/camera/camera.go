// Package camera defines the frame source a capture session owns, plus the
// device implementations used by the CLI and the websocket endpoint.
package camera

import (
	"context"
	"errors"
	"time"
)

// Acquisition failures. Sessions map them onto their error kinds.
var (
	ErrPermissionDenied  = errors.New("camera permission denied")
	ErrDeviceNotFound    = errors.New("camera device not found")
	ErrDeviceBusy        = errors.New("camera device busy")
	ErrUnsupportedDevice = errors.New("camera device unsupported")
	// ErrStreamClosed is returned by Capture after the stream is closed or
	// the device went away.
	ErrStreamClosed = errors.New("camera stream closed")
)

// Frame is one encoded image captured from a device.
type Frame struct {
	// Seq is the per-stream monotonic sequence number
	Seq uint64
	// Timestamp is when the frame was captured or received
	Timestamp time.Time
	// Data holds the encoded image (JPEG, PNG, ...)
	Data []byte
}

// Device is a camera that can be acquired by one owner at a time.
type Device interface {
	// Acquire blocks until access is granted or refused and must return
	// once ctx is done. A device that is already held returns ErrDeviceBusy.
	Acquire(ctx context.Context) (Stream, error)
}

// Stream is a live acquisition. Close releases the device and is idempotent.
type Stream interface {
	Capture(ctx context.Context) (Frame, error)
	Close() error
}
