package capture

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"io"
	"os/exec"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Brownie44l1/plant-api/internal/config"
)

// FFmpegCamera reads raw RGBA frames from an ffmpeg subprocess attached
// to the device (v4l2 on Linux, dshow on Windows, avfoundation on macOS).
type FFmpegCamera struct {
	mu sync.Mutex
	// closing is set before Close kills ffmpeg, so a Read it unblocks
	// reports ErrClosed rather than a pipe error.
	closing  atomic.Bool
	waitOnce sync.Once

	width  int
	height int

	cmd    *exec.Cmd
	stdout io.ReadCloser
	// stderr is written by exec's copy goroutine; read it only after wait.
	stderr *bytes.Buffer
	buffer []byte
	err    error
	closed bool
}

// waitDelay bounds how long Wait keeps draining ffmpeg's pipes after it exits.
const waitDelay = 2 * time.Second

// ffmpegArgs builds the capture command line for the current platform.
func ffmpegArgs(goos string, cfg config.CameraConfig) []string {
	var input []string
	switch goos {
	case "windows":
		input = []string{"-f", "dshow", "-i", fmt.Sprintf("video=%s", cfg.Device)}
	case "darwin":
		input = []string{"-f", "avfoundation", "-framerate", fmt.Sprint(cfg.FPS), "-i", cfg.Device}
	default:
		input = []string{"-f", "v4l2", "-i", DevicePath(cfg.Device)}
	}

	filters := []string{fmt.Sprintf("fps=%d", cfg.FPS)}
	if cfg.Flip {
		filters = append(filters, "hflip")
	}
	filters = append(filters, fmt.Sprintf("scale=%d:%d", cfg.Width, cfg.Height))

	args := append([]string{"-loglevel", "error"}, input...)
	return append(args,
		"-vf", strings.Join(filters, ","),
		"-f", "image2pipe",
		"-pix_fmt", "rgba",
		"-vcodec", "rawvideo",
		"-",
	)
}

// OpenFFmpeg starts ffmpeg against the configured device.
func OpenFFmpeg(ctx context.Context, cfg config.CameraConfig) (*FFmpegCamera, error) {
	if err := CheckDevice(cfg.Device); err != nil {
		return nil, err
	}

	cmd := exec.CommandContext(ctx, "ffmpeg", ffmpegArgs(runtime.GOOS, cfg)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	cmd.WaitDelay = waitDelay

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: ffmpeg start: %w", ErrDeviceUnavailable, err)
	}

	return &FFmpegCamera{
		width:  cfg.Width,
		height: cfg.Height,
		cmd:    cmd,
		stdout: stdout,
		stderr: &stderr,
		buffer: make([]byte, cfg.Width*cfg.Height*4),
	}, nil
}

// Read blocks until ffmpeg delivers the next full frame. Once ffmpeg has
// exited every Read returns the same classified error.
func (c *FFmpegCamera) Read(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.closing.Load() {
		return nil, ErrClosed
	}
	if c.err != nil {
		return nil, c.err
	}

	if _, err := io.ReadFull(c.stdout, c.buffer); err != nil {
		if c.closing.Load() {
			return nil, ErrClosed
		}
		// ffmpeg is exiting or gone. Reap it so its stderr is complete
		// before classifying.
		c.cmd.Process.Kill()
		c.wait()
		if c.closing.Load() {
			return nil, ErrClosed
		}
		c.err = classifyFFmpegError(c.stderr.String(), err)
		return nil, c.err
	}

	pix := make([]byte, len(c.buffer))
	copy(pix, c.buffer)
	return &image.RGBA{
		Pix:    pix,
		Stride: c.width * 4,
		Rect:   image.Rect(0, 0, c.width, c.height),
	}, nil
}

// classifyFFmpegError maps ffmpeg's stderr to the capture sentinels.
func classifyFFmpegError(stderr string, err error) error {
	msg := strings.TrimSpace(stderr)
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "permission denied"):
		return fmt.Errorf("%w: %s", ErrPermissionDenied, msg)
	case strings.Contains(lower, "no such file"),
		strings.Contains(lower, "could not find video device"),
		strings.Contains(lower, "input/output error"),
		strings.Contains(lower, "device or resource busy"):
		return fmt.Errorf("%w: %s", ErrDeviceUnavailable, msg)
	case msg != "":
		return fmt.Errorf("ffmpeg: %s: %w", msg, err)
	default:
		return fmt.Errorf("ffmpeg read: %w", err)
	}
}

// wait reaps ffmpeg once. It returns after exec has finished copying
// stderr into the buffer.
func (c *FFmpegCamera) wait() {
	c.waitOnce.Do(func() {
		c.cmd.Wait()
	})
}

// Close kills ffmpeg and waits for it to exit. Killing the process also
// unblocks a Read stuck in the pipe.
func (c *FFmpegCamera) Close() error {
	if c.closing.CompareAndSwap(false, true) && c.cmd.Process != nil {
		c.cmd.Process.Kill()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.wait()
	return nil
}
