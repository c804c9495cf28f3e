// Package session runs AR capture sessions: it owns a camera acquisition,
// samples frames on a fixed cadence and reports the first confident marker
// match.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kozaktomas/ar-marker/internal/camera"
	"github.com/kozaktomas/ar-marker/internal/constants"
	"github.com/kozaktomas/ar-marker/internal/matcher"
)

// Matcher scores frames against the current marker set.
type Matcher interface {
	Match(ctx context.Context, frame []byte) (matcher.Result, error)
}

// Remediator returns user-facing guidance for an error kind.
type Remediator interface {
	For(kind string) string
}

// Options configures a Session.
type Options struct {
	// Interval between frame samples
	Interval time.Duration
	// MatchTimeout bounds one match call; defaults to Interval
	MatchTimeout time.Duration
	Remediation  Remediator
}

// run is one camera acquisition with its sampling goroutines.
type run struct {
	stream camera.Stream
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Session is a capture state machine bound to one camera device.
type Session struct {
	device  camera.Device
	matcher Matcher
	opts    Options
	logger  *slog.Logger

	// lifecycle serialises the release of acquisitions so Stop returns
	// only after the camera is closed.
	lifecycle sync.Mutex

	mu            sync.Mutex
	state         State
	gen           uint64
	run           *run
	acquireCancel context.CancelFunc
	acquireDone   chan struct{} // closed once a pending Acquire has been handled
	listeners     []chan State
	skipped       atomic.Uint64
}

// New creates an idle session.
func New(device camera.Device, m Matcher, opts Options) *Session {
	if opts.Interval <= 0 {
		opts.Interval = time.Second
	}
	if opts.MatchTimeout <= 0 {
		opts.MatchTimeout = opts.Interval
	}
	return &Session{
		device:  device,
		matcher: m,
		opts:    opts,
		logger:  slog.Default().With("component", "session"),
		state:   State{Status: StatusIdle},
	}
}

// State returns the current snapshot.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Skipped returns how many ticks fired while a match was still in flight.
func (s *Session) Skipped() uint64 {
	return s.skipped.Load()
}

// Subscribe returns a channel receiving every state change, starting with
// the current state. Slow subscribers miss updates. The returned func
// unsubscribes and closes the channel.
func (s *Session) Subscribe() (<-chan State, func()) {
	ch := make(chan State, constants.EventChannelBuffer)

	s.mu.Lock()
	s.listeners = append(s.listeners, ch)
	ch <- s.state
	s.mu.Unlock()

	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, l := range s.listeners {
			if l == ch {
				s.listeners = append(s.listeners[:i], s.listeners[i+1:]...)
				close(ch)
				return
			}
		}
	}
}

// Start acquires the camera and begins sampling. It blocks until the
// permission request is answered. A live acquisition is released first.
// Acquisition failures put the session into StatusError and are returned.
func (s *Session) Start(ctx context.Context) error {
	s.lifecycle.Lock()
	s.mu.Lock()
	if s.state.Status == StatusRequestingPermission {
		s.mu.Unlock()
		s.lifecycle.Unlock()
		return fmt.Errorf("%w: permission request already pending", ErrInvalidTransition)
	}
	s.gen++
	gen := s.gen
	prev := s.run
	s.run = nil
	actx, acancel := context.WithCancel(ctx)
	defer acancel()
	done := make(chan struct{})
	s.acquireCancel = acancel
	s.acquireDone = done
	s.setLocked(State{Status: StatusRequestingPermission})
	s.mu.Unlock()

	s.release(prev)
	s.lifecycle.Unlock()

	stream, err := s.device.Acquire(actx)
	defer close(done)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		if stream != nil {
			stream.Close()
		}
		return ErrStopped
	}
	s.acquireCancel = nil
	s.acquireDone = nil

	if err != nil {
		if ctx.Err() != nil {
			s.setLocked(State{Status: StatusIdle})
			return err
		}
		kind := kindFor(err)
		s.logger.Warn("camera acquisition failed", "error", err, "kind", kind)
		s.failLocked(kind)
		return fmt.Errorf("acquire camera: %w", err)
	}

	rctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	r := &run{stream: stream, cancel: cancel}
	s.run = r
	s.setLocked(State{Status: StatusActive})

	r.wg.Add(1)
	go s.loop(rctx, r, gen)
	s.logger.Info("capture session started", "interval", s.opts.Interval)
	return nil
}

// Reset clears a detection and resumes sampling. It is only valid in
// StatusDetected.
func (s *Session) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Status != StatusDetected {
		return fmt.Errorf("%w: reset from %s", ErrInvalidTransition, s.state.Status)
	}
	s.setLocked(State{Status: StatusActive})
	return nil
}

// Stop cancels sampling and any in-flight match, waits for them and
// releases the camera. A pending acquisition is cancelled and Stop waits
// until its stream, if any, is closed. It is idempotent.
func (s *Session) Stop() {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	s.mu.Lock()
	s.gen++
	r := s.run
	s.run = nil
	pending := s.acquireDone
	s.acquireDone = nil
	if s.acquireCancel != nil {
		s.acquireCancel()
		s.acquireCancel = nil
	}
	if s.state.Status != StatusClosed {
		s.setLocked(State{Status: StatusClosed})
	}
	s.mu.Unlock()

	if pending != nil {
		<-pending
	}
	s.release(r)
}

// Close stops the session; owners call it on teardown.
func (s *Session) Close() error {
	s.Stop()
	return nil
}

func (s *Session) release(r *run) {
	if r == nil {
		return
	}
	r.cancel()
	r.wg.Wait()
	if err := r.stream.Close(); err != nil {
		s.logger.Warn("camera release failed", "error", err)
	}
}

// loop ticks at the sampling interval. Each tick starts one match worker
// unless the previous one is still running.
func (s *Session) loop(ctx context.Context, r *run, gen uint64) {
	defer r.wg.Done()

	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()

	var inFlight atomic.Bool
	tick := func() {
		if !s.sampling(gen) {
			return
		}
		if !inFlight.CompareAndSwap(false, true) {
			s.skipped.Add(1)
			return
		}
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			defer inFlight.Store(false)
			s.sample(ctx, r, gen)
		}()
	}

	tick()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			tick()
		}
	}
}

func (s *Session) sampling(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen == gen && s.state.Status == StatusActive
}

func (s *Session) sample(ctx context.Context, r *run, gen uint64) {
	frame, err := r.stream.Capture(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		s.logger.Warn("camera capture failed", "error", err)
		s.lost(r, gen)
		return
	}

	mctx, cancel := context.WithTimeout(ctx, s.opts.MatchTimeout)
	defer cancel()
	res, err := s.matcher.Match(mctx, frame.Data)
	switch {
	case errors.Is(err, matcher.ErrMatchTimeout):
		s.logger.Debug("match timed out", "seq", frame.Seq)
		return
	case err != nil:
		if ctx.Err() == nil {
			s.logger.Debug("frame rejected", "seq", frame.Seq, "error", err)
		}
		return
	case !res.Matched:
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen || s.state.Status != StatusActive {
		return
	}
	s.setLocked(State{
		Status:     StatusDetected,
		ProjectID:  res.ProjectID,
		Confidence: res.Confidence,
		Project:    res.Project,
	})
	s.logger.Info("marker detected", "project", res.ProjectID, "confidence", res.Confidence, "seq", frame.Seq)
}

// lost moves a live session to DeviceLost and releases the camera. It runs
// on a worker of r, so it cannot wait for r; Stop or Start does that later.
func (s *Session) lost(r *run, gen uint64) {
	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return
	}
	s.gen++
	s.failLocked(DeviceLost)
	s.mu.Unlock()

	r.cancel()
	if err := r.stream.Close(); err != nil {
		s.logger.Warn("camera release failed", "error", err)
	}
}

func (s *Session) failLocked(kind ErrorKind) {
	st := State{Status: StatusError, Error: kind}
	if s.opts.Remediation != nil {
		st.Remediation = s.opts.Remediation.For(string(kind))
	}
	s.setLocked(st)
}

func (s *Session) setLocked(st State) {
	s.state = st
	for _, l := range s.listeners {
		select {
		case l <- st:
		default:
			// Subscriber buffer full, skip.
		}
	}
}
