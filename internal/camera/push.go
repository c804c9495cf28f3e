package camera

import (
	"context"
	"sync"
	"time"
)

// PushDevice is a camera fed from outside, typically a browser over a
// websocket. The owner of the real camera answers the permission request
// with Grant and then pushes encoded frames.
//
// Frames go through a single-slot mailbox: a new frame overwrites an
// unconsumed one, so a slow consumer always sees the latest image.
type PushDevice struct {
	decisions chan error

	mu     sync.Mutex
	stream *pushStream
	drops  uint64
}

// NewPushDevice creates a device with no pending permission decision.
func NewPushDevice() *PushDevice {
	return &PushDevice{decisions: make(chan error, 1)}
}

// Grant answers the pending (or next) permission request. A nil err grants
// access; otherwise Acquire fails with err. A newer decision replaces an
// unconsumed older one.
func (d *PushDevice) Grant(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	select {
	case <-d.decisions:
	default:
	}
	d.decisions <- err
}

// Acquire waits for a permission decision. There is no timeout other than ctx.
func (d *PushDevice) Acquire(ctx context.Context) (Stream, error) {
	d.mu.Lock()
	busy := d.stream != nil
	d.mu.Unlock()
	if busy {
		return nil, ErrDeviceBusy
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case err := <-d.decisions:
		if err != nil {
			return nil, err
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stream != nil {
		return nil, ErrDeviceBusy
	}
	d.stream = &pushStream{
		device: d,
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	return d.stream, nil
}

// Push delivers a frame to the live stream. It returns ErrStreamClosed when
// no stream is live; the frame is dropped.
func (d *PushDevice) Push(data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := d.stream
	if s == nil {
		return ErrStreamClosed
	}

	s.seq++
	if s.slot != nil {
		d.drops++
	}
	s.slot = &Frame{Seq: s.seq, Timestamp: time.Now(), Data: data}
	select {
	case s.notify <- struct{}{}:
	default:
	}
	return nil
}

// Live reports whether a stream currently holds the device.
func (d *PushDevice) Live() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stream != nil
}

// Drops returns how many unconsumed frames were overwritten.
func (d *PushDevice) Drops() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.drops
}

// pushStream fields other than notify and done are guarded by device.mu.
type pushStream struct {
	device *PushDevice
	notify chan struct{}
	done   chan struct{}
	slot   *Frame
	seq    uint64
	closed bool
}

// Capture takes the latest pushed frame, waiting for one if the slot is empty.
func (s *pushStream) Capture(ctx context.Context) (Frame, error) {
	for {
		s.device.mu.Lock()
		if s.closed {
			s.device.mu.Unlock()
			return Frame{}, ErrStreamClosed
		}
		if f := s.slot; f != nil {
			s.slot = nil
			s.device.mu.Unlock()
			return *f, nil
		}
		s.device.mu.Unlock()

		select {
		case <-ctx.Done():
			return Frame{}, ctx.Err()
		case <-s.done:
			return Frame{}, ErrStreamClosed
		case <-s.notify:
		}
	}
}

func (s *pushStream) Close() error {
	s.device.mu.Lock()
	defer s.device.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.slot = nil
	close(s.done)
	if s.device.stream == s {
		s.device.stream = nil
	}
	return nil
}
