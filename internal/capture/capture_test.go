package capture

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/Brownie44l1/plant-api/internal/config"
)

func TestFFmpegArgs_Linux(t *testing.T) {
	cfg := config.Default().Camera
	args := strings.Join(ffmpegArgs("linux", cfg), " ")

	for _, want := range []string{
		"-f v4l2",
		"-i /dev/video0",
		"-vf fps=15,hflip,scale=400:400",
		"-pix_fmt rgba",
	} {
		if runtime.GOOS != "linux" && want == "-i /dev/video0" {
			continue
		}
		if !strings.Contains(args, want) {
			t.Errorf("args %q missing %q", args, want)
		}
	}
}

func TestFFmpegArgs_NoFlipWindows(t *testing.T) {
	cfg := config.Default().Camera
	cfg.Flip = false
	cfg.Device = "Integrated Camera"
	args := strings.Join(ffmpegArgs("windows", cfg), " ")

	if !strings.Contains(args, "-f dshow -i video=Integrated Camera") {
		t.Errorf("args %q missing dshow input", args)
	}
	if strings.Contains(args, "hflip") {
		t.Errorf("args %q should not mirror", args)
	}
}

func TestClassifyFFmpegError(t *testing.T) {
	tests := []struct {
		stderr string
		is     error
	}{
		{"/dev/video0: Permission denied", ErrPermissionDenied},
		{"/dev/video3: No such file or directory", ErrDeviceUnavailable},
		{"Could not find video device with name [x]", ErrDeviceUnavailable},
		{"", nil},
	}
	for _, tt := range tests {
		err := classifyFFmpegError(tt.stderr, io.ErrUnexpectedEOF)
		if tt.is == nil {
			if !errors.Is(err, io.ErrUnexpectedEOF) {
				t.Errorf("stderr %q: error %v should wrap the read error", tt.stderr, err)
			}
			continue
		}
		if !errors.Is(err, tt.is) {
			t.Errorf("stderr %q: error %v, want %v", tt.stderr, err, tt.is)
		}
	}
}

func TestCheckDevice_Missing(t *testing.T) {
	err := CheckDevice("/dev/plant-api-no-such-camera")
	if !errors.Is(err, ErrDeviceUnavailable) {
		t.Errorf("CheckDevice error = %v, want ErrDeviceUnavailable", err)
	}
}

func TestCheckDevice_NonDevicePassesThrough(t *testing.T) {
	if err := CheckDevice("Integrated Camera"); err != nil {
		t.Errorf("CheckDevice(name) = %v, want nil", err)
	}
}

func TestClassifyOpenError(t *testing.T) {
	if err := classifyOpenError("/dev/video0", os.ErrPermission); !errors.Is(err, ErrPermissionDenied) {
		t.Errorf("permission error = %v", err)
	}
	if err := classifyOpenError("/dev/video0", os.ErrNotExist); !errors.Is(err, ErrDeviceUnavailable) {
		t.Errorf("not-exist error = %v", err)
	}
	_, err := os.Open(filepath.Join(t.TempDir(), "nope"))
	if err := classifyOpenError("/dev/video0", err); !errors.Is(err, ErrDeviceUnavailable) {
		t.Errorf("wrapped not-exist error = %v", err)
	}
}

func TestNewOpener(t *testing.T) {
	cfg := config.Default().Camera
	cfg.Device = "/dev/plant-api-no-such-camera"

	for _, backend := range []string{config.BackendGoCV, config.BackendFFmpeg} {
		cfg.Backend = backend
		open, err := NewOpener(cfg)
		if err != nil {
			t.Fatalf("NewOpener(%s): %v", backend, err)
		}
		if _, err := open(context.Background()); !errors.Is(err, ErrDeviceUnavailable) {
			t.Errorf("%s open error = %v, want ErrDeviceUnavailable", backend, err)
		}
	}

	cfg.Backend = "webrtc"
	if _, err := NewOpener(cfg); err == nil {
		t.Error("expected error for unknown backend")
	}
}

func TestMissCounter(t *testing.T) {
	m := missCounter{limit: 3}
	if err := m.miss(); !errors.Is(err, ErrNoFrame) {
		t.Fatalf("first miss = %v, want ErrNoFrame", err)
	}
	if err := m.miss(); !errors.Is(err, ErrNoFrame) {
		t.Fatalf("second miss = %v, want ErrNoFrame", err)
	}
	m.reset()
	m.miss()
	m.miss()
	if err := m.miss(); !errors.Is(err, ErrDeviceUnavailable) {
		t.Errorf("third miss in a row = %v, want ErrDeviceUnavailable", err)
	}
}

// fakeFFmpeg puts a shell script named ffmpeg first on PATH.
func fakeFFmpeg(t *testing.T, script string) config.CameraConfig {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("needs a POSIX shell")
	}
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "ffmpeg"), []byte("#!/bin/sh\n"+script+"\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PATH", dir+string(os.PathListSeparator)+os.Getenv("PATH"))

	cfg := config.Default().Camera
	cfg.Backend = config.BackendFFmpeg
	cfg.Device = filepath.Join(dir, "camera")
	cfg.Width, cfg.Height = 2, 2
	return cfg
}

func TestFFmpegCamera_ReadClassifiesExit(t *testing.T) {
	cfg := fakeFFmpeg(t, `i=0
while [ $i -lt 200 ]; do echo "[video4linux2 @ 0x1] warming up $i" >&2; i=$((i+1)); done
echo "[video4linux2 @ 0x1] Cannot open video device: Permission denied" >&2
exit 1`)

	for i := 0; i < 5; i++ {
		cam, err := OpenFFmpeg(context.Background(), cfg)
		if err != nil {
			t.Fatalf("OpenFFmpeg: %v", err)
		}
		_, err = cam.Read(context.Background())
		if !errors.Is(err, ErrPermissionDenied) {
			t.Errorf("Read error = %v, want ErrPermissionDenied", err)
		}
		if _, again := cam.Read(context.Background()); !errors.Is(again, ErrPermissionDenied) {
			t.Errorf("second Read error = %v, want the same classification", again)
		}
		cam.Close()
	}
}

func TestFFmpegCamera_ReadsFrames(t *testing.T) {
	// Two 2x2 RGBA frames.
	cfg := fakeFFmpeg(t, `printf '%032d' 0`)

	cam, err := OpenFFmpeg(context.Background(), cfg)
	if err != nil {
		t.Fatalf("OpenFFmpeg: %v", err)
	}
	defer cam.Close()

	for i := 0; i < 2; i++ {
		img, err := cam.Read(context.Background())
		if err != nil {
			t.Fatalf("Read %d: %v", i, err)
		}
		if img.Bounds().Dx() != 2 || img.Bounds().Dy() != 2 {
			t.Errorf("frame bounds = %v", img.Bounds())
		}
	}
	if _, err := cam.Read(context.Background()); err == nil || errors.Is(err, ErrClosed) {
		t.Errorf("Read after ffmpeg exit = %v, want an ffmpeg error", err)
	}
}

func TestFFmpegCamera_CloseUnblocksRead(t *testing.T) {
	cfg := fakeFFmpeg(t, "exec sleep 30")

	cam, err := OpenFFmpeg(context.Background(), cfg)
	if err != nil {
		t.Fatalf("OpenFFmpeg: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := cam.Read(context.Background())
		done <- err
	}()
	time.Sleep(50 * time.Millisecond)

	if err := cam.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	select {
	case err := <-done:
		if !errors.Is(err, ErrClosed) {
			t.Errorf("blocked Read returned %v, want ErrClosed", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Read still blocked after Close")
	}
	if err := cam.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}
