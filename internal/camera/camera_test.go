package camera

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFrames(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, name := range names {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(name), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
}

func TestDirectoryDeviceCyclesFrames(t *testing.T) {
	dir := t.TempDir()
	writeFrames(t, dir, "b.png", "a.jpg", "notes.txt")

	stream, err := NewDirectoryDevice(dir).Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	defer stream.Close()

	want := []string{"a.jpg", "b.png", "a.jpg"}
	for i, name := range want {
		f, err := stream.Capture(context.Background())
		if err != nil {
			t.Fatalf("Capture %d failed: %v", i, err)
		}
		if string(f.Data) != name {
			t.Errorf("frame %d = %q; want %q", i, f.Data, name)
		}
		if f.Seq != uint64(i+1) {
			t.Errorf("frame %d Seq = %d; want %d", i, f.Seq, i+1)
		}
	}
}

func TestDirectoryDeviceAcquireErrors(t *testing.T) {
	empty := t.TempDir()
	writeFrames(t, empty, "readme.md")

	file := filepath.Join(t.TempDir(), "frame.png")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		dir  string
		want error
	}{
		{"missing", filepath.Join(t.TempDir(), "nope"), ErrDeviceNotFound},
		{"no images", empty, ErrDeviceNotFound},
		{"not a directory", file, ErrUnsupportedDevice},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewDirectoryDevice(tc.dir).Acquire(context.Background())
			if !errors.Is(err, tc.want) {
				t.Errorf("Acquire error = %v; want %v", err, tc.want)
			}
		})
	}
}

func TestDirectoryDeviceExclusive(t *testing.T) {
	dir := t.TempDir()
	writeFrames(t, dir, "a.png")
	dev := NewDirectoryDevice(dir)

	first, err := dev.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if _, err := dev.Acquire(context.Background()); !errors.Is(err, ErrDeviceBusy) {
		t.Fatalf("second Acquire error = %v; want ErrDeviceBusy", err)
	}

	if err := first.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}
	if _, err := first.Capture(context.Background()); !errors.Is(err, ErrStreamClosed) {
		t.Errorf("Capture after Close error = %v; want ErrStreamClosed", err)
	}

	again, err := dev.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire after release failed: %v", err)
	}
	again.Close()
}

func TestPushDeviceGrant(t *testing.T) {
	dev := NewPushDevice()

	dev.Grant(ErrPermissionDenied)
	if _, err := dev.Acquire(context.Background()); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("Acquire error = %v; want ErrPermissionDenied", err)
	}

	dev.Grant(nil)
	stream, err := dev.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	defer stream.Close()

	if !dev.Live() {
		t.Error("device should be live after grant")
	}
	dev.Grant(nil)
	if _, err := dev.Acquire(context.Background()); !errors.Is(err, ErrDeviceBusy) {
		t.Errorf("second Acquire error = %v; want ErrDeviceBusy", err)
	}
}

func TestPushDeviceAcquireWaitsForDecision(t *testing.T) {
	dev := NewPushDevice()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := dev.Acquire(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Acquire error = %v; want DeadlineExceeded", err)
	}

	go func() {
		time.Sleep(10 * time.Millisecond)
		dev.Grant(nil)
	}()
	stream, err := dev.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	stream.Close()
}

func TestPushDeviceOverwritesSlot(t *testing.T) {
	dev := NewPushDevice()
	if err := dev.Push([]byte("early")); !errors.Is(err, ErrStreamClosed) {
		t.Errorf("Push without stream error = %v; want ErrStreamClosed", err)
	}

	dev.Grant(nil)
	stream, err := dev.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	defer stream.Close()

	for _, data := range []string{"one", "two", "three"} {
		if err := dev.Push([]byte(data)); err != nil {
			t.Fatalf("Push failed: %v", err)
		}
	}

	f, err := stream.Capture(context.Background())
	if err != nil {
		t.Fatalf("Capture failed: %v", err)
	}
	if string(f.Data) != "three" || f.Seq != 3 {
		t.Errorf("Capture = %q seq %d; want three seq 3", f.Data, f.Seq)
	}
	if dev.Drops() != 2 {
		t.Errorf("Drops = %d; want 2", dev.Drops())
	}
}

func TestPushDeviceCaptureBlocks(t *testing.T) {
	dev := NewPushDevice()
	dev.Grant(nil)
	stream, err := dev.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	go func() {
		time.Sleep(10 * time.Millisecond)
		dev.Push([]byte("late"))
	}()
	f, err := stream.Capture(context.Background())
	if err != nil || string(f.Data) != "late" {
		t.Fatalf("Capture = %q, %v; want late", f.Data, err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := stream.Capture(context.Background())
		done <- err
	}()
	time.Sleep(10 * time.Millisecond)
	stream.Close()

	select {
	case err := <-done:
		if !errors.Is(err, ErrStreamClosed) {
			t.Errorf("Capture error = %v; want ErrStreamClosed", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Capture did not return after Close")
	}
	if dev.Live() {
		t.Error("device still live after Close")
	}
}
