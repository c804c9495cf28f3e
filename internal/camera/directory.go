package camera

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

var frameExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".bmp":  true,
	".webp": true,
}

// DirectoryDevice replays the image files of a directory as camera frames,
// in name order, wrapping around at the end.
type DirectoryDevice struct {
	dir string

	mu   sync.Mutex
	held bool
}

// NewDirectoryDevice creates a device backed by dir. Nothing is read until
// Acquire.
func NewDirectoryDevice(dir string) *DirectoryDevice {
	return &DirectoryDevice{dir: dir}
}

// Acquire lists the frame files and takes the device.
func (d *DirectoryDevice) Acquire(ctx context.Context) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	files, err := d.listFrames()
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.held {
		return nil, ErrDeviceBusy
	}
	d.held = true
	return &directoryStream{device: d, files: files}, nil
}

func (d *DirectoryDevice) listFrames() ([]string, error) {
	info, err := os.Stat(d.dir)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, d.dir)
	case errors.Is(err, fs.ErrPermission):
		return nil, fmt.Errorf("%w: %s", ErrPermissionDenied, d.dir)
	case err != nil:
		return nil, fmt.Errorf("stat %s: %w", d.dir, err)
	case !info.IsDir():
		return nil, fmt.Errorf("%w: %s is not a directory", ErrUnsupportedDevice, d.dir)
	}

	entries, err := os.ReadDir(d.dir)
	if errors.Is(err, fs.ErrPermission) {
		return nil, fmt.Errorf("%w: %s", ErrPermissionDenied, d.dir)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", d.dir, err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() || !frameExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		files = append(files, filepath.Join(d.dir, e.Name()))
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: no image files in %s", ErrDeviceNotFound, d.dir)
	}
	sort.Strings(files)
	return files, nil
}

func (d *DirectoryDevice) release() {
	d.mu.Lock()
	d.held = false
	d.mu.Unlock()
}

type directoryStream struct {
	device *DirectoryDevice
	files  []string

	mu     sync.Mutex
	next   int
	seq    uint64
	closed bool
}

func (s *directoryStream) Capture(ctx context.Context) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return Frame{}, ErrStreamClosed
	}
	path := s.files[s.next]
	s.next = (s.next + 1) % len(s.files)
	s.seq++
	seq := s.seq
	s.mu.Unlock()

	data, err := os.ReadFile(path)
	if err != nil {
		return Frame{}, fmt.Errorf("read frame %s: %w", filepath.Base(path), err)
	}
	return Frame{Seq: seq, Timestamp: time.Now(), Data: data}, nil
}

func (s *directoryStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.device.release()
	return nil
}
