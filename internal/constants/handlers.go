// Package constants provides shared constants used across the codebase.
package constants

import "time"

// Event channel constants
const (
	// EventChannelBuffer is the buffer size for session state subscriptions
	EventChannelBuffer = 16
)

// Upload constants
const (
	// MaxUploadSize is the maximum request body for project creation
	// (two images, one video and form overhead)
	MaxUploadSize = 2*MaxImageBytes + MaxVideoBytes + 1<<20

	// MaxFrameSize is the maximum size of a single camera frame upload (8MB)
	MaxFrameSize = 8 << 20
)

// MaxJSONUploadSize bounds project creation with base64 data-URL payloads,
// which are a third larger than the raw files.
const MaxJSONUploadSize = MaxUploadSize/3*4 + 1<<20

// Websocket constants
const (
	// WSWriteWait is the deadline for one websocket write
	WSWriteWait = 10 * time.Second
	// WSPongWait is how long a silent client is kept
	WSPongWait = 60 * time.Second
	// WSPingEvery must be shorter than WSPongWait
	WSPingEvery = WSPongWait * 9 / 10
)
