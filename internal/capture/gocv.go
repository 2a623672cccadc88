package capture

import (
	"context"
	"fmt"
	"image"
	"strconv"
	"sync"

	"gocv.io/x/gocv"

	"github.com/Brownie44l1/plant-api/internal/config"
)

// GoCVCamera reads frames through OpenCV's VideoCapture.
type GoCVCamera struct {
	mu     sync.Mutex
	vc     *gocv.VideoCapture
	frame  gocv.Mat
	width  int
	height int
	flip   bool
	misses missCounter
	closed bool
}

// OpenGoCV opens the configured device with OpenCV.
func OpenGoCV(ctx context.Context, cfg config.CameraConfig) (*GoCVCamera, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := CheckDevice(cfg.Device); err != nil {
		return nil, err
	}

	var id any = cfg.Device
	if n, err := strconv.Atoi(cfg.Device); err == nil {
		id = n
	}
	vc, err := gocv.OpenVideoCapture(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrDeviceUnavailable, cfg.Device, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("%w: %s could not be opened", ErrDeviceUnavailable, cfg.Device)
	}
	vc.Set(gocv.VideoCaptureFrameWidth, float64(cfg.Width))
	vc.Set(gocv.VideoCaptureFrameHeight, float64(cfg.Height))

	return &GoCVCamera{
		vc:     vc,
		frame:  gocv.NewMat(),
		width:  cfg.Width,
		height: cfg.Height,
		flip:   cfg.Flip,
		misses: missCounter{limit: maxMissedFrames},
	}, nil
}

// Read grabs the next frame, mirrored if configured and scaled to the
// configured size. An empty grab returns ErrNoFrame; a run of them, or a
// capture the driver closed, returns ErrDeviceUnavailable.
func (c *GoCVCamera) Read(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}

	if ok := c.vc.Read(&c.frame); !ok || c.frame.Empty() {
		if !c.vc.IsOpened() {
			return nil, fmt.Errorf("%w: capture closed by the driver", ErrDeviceUnavailable)
		}
		return nil, c.misses.miss()
	}
	c.misses.reset()
	if c.flip {
		gocv.Flip(c.frame, &c.frame, 1)
	}
	if c.frame.Cols() != c.width || c.frame.Rows() != c.height {
		gocv.Resize(c.frame, &c.frame, image.Pt(c.width, c.height), 0, 0, gocv.InterpolationLinear)
	}
	return c.frame.ToImage()
}

// Close releases the device. It is safe to call more than once.
func (c *GoCVCamera) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.frame.Close()
	return c.vc.Close()
}
