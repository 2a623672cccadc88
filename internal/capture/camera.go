// Package capture provides webcam backends behind a single Camera
// interface. A Camera is owned by one caller; Read and Close may be called
// from different goroutines, and Read after Close returns ErrClosed rather
// than touching a released device.
package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"

	"github.com/Brownie44l1/plant-api/internal/config"
)

var (
	// ErrPermissionDenied means the OS refused access to the device.
	ErrPermissionDenied = errors.New("camera permission denied")
	// ErrDeviceUnavailable means no usable device exists at the configured id.
	ErrDeviceUnavailable = errors.New("camera device unavailable")
	// ErrClosed is returned by Read after Close.
	ErrClosed = errors.New("camera closed")
	// ErrNoFrame means the device is open but had no frame this time. The
	// next Read may succeed.
	ErrNoFrame = errors.New("no frame available")
)

// maxMissedFrames is how many empty reads in a row a backend tolerates
// before it reports the device as gone.
const maxMissedFrames = 30

// missCounter turns empty reads into ErrNoFrame until limit is reached in
// a row, then into ErrDeviceUnavailable.
type missCounter struct {
	n     int
	limit int
}

func (m *missCounter) miss() error {
	m.n++
	if m.n >= m.limit {
		return fmt.Errorf("%w: no frame in %d reads", ErrDeviceUnavailable, m.n)
	}
	return ErrNoFrame
}

func (m *missCounter) reset() { m.n = 0 }

// Camera yields frames from an opened device.
type Camera interface {
	Read(ctx context.Context) (image.Image, error)
	Close() error
}

// Opener acquires a camera.
type Opener func(ctx context.Context) (Camera, error)

// NewOpener returns an Opener for the configured backend.
func NewOpener(cfg config.CameraConfig) (Opener, error) {
	switch cfg.Backend {
	case config.BackendGoCV:
		return func(ctx context.Context) (Camera, error) { return OpenGoCV(ctx, cfg) }, nil
	case config.BackendFFmpeg:
		return func(ctx context.Context) (Camera, error) { return OpenFFmpeg(ctx, cfg) }, nil
	default:
		return nil, fmt.Errorf("unknown camera backend: %s", cfg.Backend)
	}
}

// DevicePath maps a numeric id such as "0" to /dev/video0 on Linux and
// returns other values unchanged.
func DevicePath(device string) string {
	if runtime.GOOS != "linux" {
		return device
	}
	if _, err := strconv.Atoi(device); err == nil {
		return "/dev/video" + device
	}
	return device
}

// CheckDevice reports ErrDeviceUnavailable or ErrPermissionDenied for a
// Linux device node that cannot be opened. Other platforms pass through;
// the backend reports failures when it opens the device.
func CheckDevice(device string) error {
	path := DevicePath(device)
	if !strings.HasPrefix(path, "/dev/") {
		return nil
	}
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return classifyOpenError(path, err)
	}
	return f.Close()
}

func classifyOpenError(path string, err error) error {
	switch {
	case errors.Is(err, os.ErrNotExist):
		return fmt.Errorf("%w: %s does not exist", ErrDeviceUnavailable, path)
	case errors.Is(err, os.ErrPermission):
		return fmt.Errorf("%w: %s", ErrPermissionDenied, path)
	default:
		return fmt.Errorf("%w: %s: %w", ErrDeviceUnavailable, path, err)
	}
}

// ListDevices returns the video device nodes present on this machine.
func ListDevices() ([]string, error) {
	if runtime.GOOS != "linux" {
		return []string{config.DefaultCameraDevice}, nil
	}
	matches, err := filepath.Glob("/dev/video*")
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)
	return matches, nil
}
