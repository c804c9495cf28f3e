package session

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kozaktomas/ar-marker/internal/camera"
	"github.com/kozaktomas/ar-marker/internal/database"
	"github.com/kozaktomas/ar-marker/internal/matcher"
)

type matchFunc func(ctx context.Context, frame []byte) (matcher.Result, error)

func (f matchFunc) Match(ctx context.Context, frame []byte) (matcher.Result, error) {
	return f(ctx, frame)
}

// matchOn matches frames whose content equals the given marker.
func matchOn(marker string) matchFunc {
	return func(_ context.Context, frame []byte) (matcher.Result, error) {
		if string(frame) != marker {
			return matcher.Result{Confidence: 0.2}, nil
		}
		p := &database.Project{ID: "p-" + marker, Name: marker}
		return matcher.Result{Matched: true, ProjectID: p.ID, Confidence: 0.93, Project: p}, nil
	}
}

type remediations map[string]string

func (r remediations) For(kind string) string { return r[kind] }

type brokenDevice struct {
	closed atomic.Bool
}

func (d *brokenDevice) Acquire(context.Context) (camera.Stream, error) { return d, nil }

func (d *brokenDevice) Capture(context.Context) (camera.Frame, error) {
	return camera.Frame{}, errors.New("usb unplugged")
}

func (d *brokenDevice) Close() error {
	d.closed.Store(true)
	return nil
}

// gatedDevice grants access only when release is closed, ignoring
// cancellation, like a driver stuck in its open call.
type gatedDevice struct {
	entered chan struct{}
	release chan struct{}
	stream  brokenDevice
}

func (d *gatedDevice) Acquire(context.Context) (camera.Stream, error) {
	close(d.entered)
	<-d.release
	return &d.stream, nil
}

func newSession(dev camera.Device, m Matcher) *Session {
	return New(dev, m, Options{
		Interval:    5 * time.Millisecond,
		Remediation: remediations{"permission_denied": "Allow camera access", "device_lost": "Reconnect"},
	})
}

func waitFor(t *testing.T, ch <-chan State, want Status) State {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case st := <-ch:
			if st.Status == want {
				return st
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s", want)
		}
	}
}

func TestDetection(t *testing.T) {
	dev := camera.NewPushDevice()
	s := newSession(dev, matchOn("marker"))
	defer s.Close()
	states, unsubscribe := s.Subscribe()
	defer unsubscribe()

	dev.Grant(nil)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	waitFor(t, states, StatusActive)

	dev.Push([]byte("wall"))
	dev.Push([]byte("marker"))
	st := waitFor(t, states, StatusDetected)

	if st.ProjectID != "p-marker" || st.Confidence != 0.93 {
		t.Errorf("detected state = %+v", st)
	}
	if st.Project == nil || st.Project.Name != "marker" {
		t.Error("detected state should carry the project")
	}
}

func TestPermissionDenied(t *testing.T) {
	dev := camera.NewPushDevice()
	s := newSession(dev, matchOn("marker"))
	defer s.Close()

	dev.Grant(camera.ErrPermissionDenied)
	err := s.Start(context.Background())
	if !errors.Is(err, camera.ErrPermissionDenied) {
		t.Fatalf("Start error = %v; want ErrPermissionDenied", err)
	}

	st := s.State()
	if st.Status != StatusError || st.Error != PermissionDenied {
		t.Errorf("state = %+v; want permission_denied error", st)
	}
	if st.Remediation != "Allow camera access" {
		t.Errorf("Remediation = %q", st.Remediation)
	}
	if dev.Live() {
		t.Error("denied session holds the camera")
	}
}

func TestAcquireErrorKinds(t *testing.T) {
	tests := []struct {
		err  error
		want ErrorKind
	}{
		{camera.ErrPermissionDenied, PermissionDenied},
		{camera.ErrDeviceNotFound, DeviceNotFound},
		{camera.ErrDeviceBusy, DeviceBusy},
		{camera.ErrUnsupportedDevice, UnsupportedDevice},
		{errors.New("driver crashed"), UnsupportedDevice},
	}

	for _, tc := range tests {
		t.Run(string(tc.want), func(t *testing.T) {
			dev := camera.NewPushDevice()
			s := newSession(dev, matchOn("marker"))
			dev.Grant(tc.err)
			s.Start(context.Background())
			if got := s.State().Error; got != tc.want {
				t.Errorf("Error kind = %q; want %q", got, tc.want)
			}
		})
	}
}

func TestRetryAfterError(t *testing.T) {
	dev := camera.NewPushDevice()
	s := newSession(dev, matchOn("marker"))
	defer s.Close()

	dev.Grant(camera.ErrDeviceBusy)
	s.Start(context.Background())

	dev.Grant(nil)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start after error failed: %v", err)
	}
	if st := s.State(); st.Status != StatusActive || st.Error != "" {
		t.Errorf("state = %+v; want clean active", st)
	}
}

func TestResetOnlyFromDetected(t *testing.T) {
	dev := camera.NewPushDevice()
	s := newSession(dev, matchOn("marker"))
	defer s.Close()

	if err := s.Reset(); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Reset from idle error = %v; want ErrInvalidTransition", err)
	}
	if s.State().Status != StatusIdle {
		t.Error("rejected reset changed the state")
	}

	states, unsubscribe := s.Subscribe()
	defer unsubscribe()
	dev.Grant(nil)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := s.Reset(); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Reset from active error = %v; want ErrInvalidTransition", err)
	}

	dev.Push([]byte("marker"))
	waitFor(t, states, StatusDetected)

	if err := s.Reset(); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	st := waitFor(t, states, StatusActive)
	if st.ProjectID != "" || st.Project != nil {
		t.Errorf("reset state still carries a match: %+v", st)
	}

	// Sampling resumes after the reset.
	dev.Push([]byte("marker"))
	waitFor(t, states, StatusDetected)
}

func TestStopReleasesCamera(t *testing.T) {
	dev := camera.NewPushDevice()
	s := newSession(dev, matchOn("marker"))

	dev.Grant(nil)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if !dev.Live() {
		t.Fatal("camera not acquired")
	}

	s.Stop()
	if dev.Live() {
		t.Error("camera still held after Stop")
	}
	if s.State().Status != StatusClosed {
		t.Errorf("status = %s; want closed", s.State().Status)
	}

	s.Stop()
	if err := s.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
	if s.State().Status != StatusClosed {
		t.Error("repeated Stop changed the state")
	}
}

func TestStopDuringPermissionRequest(t *testing.T) {
	dev := camera.NewPushDevice()
	s := newSession(dev, matchOn("marker"))
	states, unsubscribe := s.Subscribe()
	defer unsubscribe()

	done := make(chan error, 1)
	go func() { done <- s.Start(context.Background()) }()
	waitFor(t, states, StatusRequestingPermission)

	if err := s.Start(context.Background()); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("second Start error = %v; want ErrInvalidTransition", err)
	}

	s.Stop()
	select {
	case err := <-done:
		if !errors.Is(err, ErrStopped) {
			t.Errorf("Start error = %v; want ErrStopped", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after Stop")
	}

	// A late grant must not revive the session.
	dev.Grant(nil)
	if s.State().Status != StatusClosed || dev.Live() {
		t.Errorf("state = %+v, live = %v; want closed and released", s.State(), dev.Live())
	}
}

func TestStopWaitsForPendingAcquire(t *testing.T) {
	dev := &gatedDevice{entered: make(chan struct{}), release: make(chan struct{})}
	s := newSession(dev, matchOn("marker"))
	states, unsubscribe := s.Subscribe()
	defer unsubscribe()

	started := make(chan error, 1)
	go func() { started <- s.Start(context.Background()) }()
	<-dev.entered

	stopped := make(chan struct{})
	go func() {
		s.Stop()
		close(stopped)
	}()

	waitFor(t, states, StatusClosed)
	select {
	case <-stopped:
		t.Fatal("Stop returned while the acquisition was still pending")
	case <-time.After(20 * time.Millisecond):
	}

	close(dev.release)
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return after the acquisition finished")
	}
	if !dev.stream.closed.Load() {
		t.Error("stream acquired during Stop was not closed before Stop returned")
	}
	if err := <-started; !errors.Is(err, ErrStopped) {
		t.Errorf("Start error = %v; want ErrStopped", err)
	}
	if s.State().Status != StatusClosed {
		t.Errorf("state = %s; want closed", s.State().Status)
	}
}

func TestRestartReleasesPriorAcquisition(t *testing.T) {
	dev := camera.NewPushDevice()
	s := newSession(dev, matchOn("marker"))
	defer s.Close()

	for i := range 3 {
		dev.Grant(nil)
		if err := s.Start(context.Background()); err != nil {
			t.Fatalf("Start %d failed: %v", i, err)
		}
		if s.State().Status != StatusActive {
			t.Fatalf("Start %d state = %s; want active", i, s.State().Status)
		}
	}
}

func TestCaptureFailureIsDeviceLost(t *testing.T) {
	dev := &brokenDevice{}
	s := newSession(dev, matchOn("marker"))
	defer s.Close()
	states, unsubscribe := s.Subscribe()
	defer unsubscribe()

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	st := waitFor(t, states, StatusError)

	if st.Error != DeviceLost || st.Remediation != "Reconnect" {
		t.Errorf("state = %+v; want device_lost", st)
	}
	if !dev.closed.Load() {
		t.Error("lost camera was not released")
	}
}

func TestSingleFlightSampling(t *testing.T) {
	dev := camera.NewPushDevice()
	release := make(chan struct{})
	var running, maxRunning atomic.Int32
	m := matchFunc(func(ctx context.Context, _ []byte) (matcher.Result, error) {
		n := running.Add(1)
		defer running.Add(-1)
		for {
			cur := maxRunning.Load()
			if n <= cur || maxRunning.CompareAndSwap(cur, n) {
				break
			}
		}
		select {
		case <-release:
		case <-ctx.Done():
		}
		return matcher.Result{}, nil
	})
	s := New(dev, m, Options{Interval: 2 * time.Millisecond, MatchTimeout: time.Minute})
	defer s.Close()

	dev.Grant(nil)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	dev.Push([]byte("frame"))

	deadline := time.Now().Add(2 * time.Second)
	for s.Skipped() < 5 && time.Now().Before(deadline) {
		time.Sleep(2 * time.Millisecond)
	}
	close(release)

	if s.Skipped() < 5 {
		t.Errorf("Skipped = %d; want ticks skipped while a match is in flight", s.Skipped())
	}
	if maxRunning.Load() > 1 {
		t.Errorf("%d concurrent matches; want at most 1", maxRunning.Load())
	}
}

func TestStopDiscardsInFlightMatch(t *testing.T) {
	dev := camera.NewPushDevice()
	entered := make(chan struct{}, 1)
	m := matchFunc(func(ctx context.Context, _ []byte) (matcher.Result, error) {
		entered <- struct{}{}
		<-ctx.Done()
		p := &database.Project{ID: "late"}
		return matcher.Result{Matched: true, ProjectID: p.ID, Confidence: 0.99, Project: p}, nil
	})
	s := New(dev, m, Options{Interval: 5 * time.Millisecond, MatchTimeout: time.Minute})

	dev.Grant(nil)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	dev.Push([]byte("frame"))
	<-entered

	s.Stop()
	if st := s.State(); st.Status != StatusClosed || st.ProjectID != "" {
		t.Errorf("state after Stop = %+v; want closed without match", st)
	}
}

func TestMatchTimeoutIsMiss(t *testing.T) {
	dev := camera.NewPushDevice()
	calls := make(chan struct{}, 8)
	m := matchFunc(func(context.Context, []byte) (matcher.Result, error) {
		calls <- struct{}{}
		return matcher.Result{}, matcher.ErrMatchTimeout
	})
	s := newSession(dev, m)
	defer s.Close()

	dev.Grant(nil)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	dev.Push([]byte("frame"))
	<-calls

	if st := s.State(); st.Status != StatusActive {
		t.Errorf("status after timeout = %s; want active", st.Status)
	}
}
