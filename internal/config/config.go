// Package config holds runtime settings for plant-api, read from the
// environment with defaults and overridable from command-line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Camera backends.
const (
	BackendGoCV   = "gocv"
	BackendFFmpeg = "ffmpeg"
)

// Defaults.
const (
	DefaultPort         = "8080"
	DefaultModelDir     = "my_model"
	DefaultModelFile    = "model.onnx"
	DefaultMetadataFile = "metadata.json"
	DefaultCameraDevice = "0"
	DefaultCameraSize   = 400
	DefaultCameraFPS    = 15
	DefaultLogLevel     = "info"
)

// CameraConfig selects and shapes the webcam.
type CameraConfig struct {
	Backend string
	Device  string
	Width   int
	Height  int
	FPS     int
	// Flip mirrors frames horizontally, like a selfie preview.
	Flip bool
}

// Config is the full server configuration.
type Config struct {
	Port         string
	ModelDir     string
	ModelFile    string
	MetadataFile string
	// ORTLibrary is the path to the onnxruntime shared library. Empty
	// means the platform default lookup.
	ORTLibrary   string
	DiseasesFile string
	LogLevel     string
	Camera       CameraConfig
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Port:         DefaultPort,
		ModelDir:     DefaultModelDir,
		ModelFile:    DefaultModelFile,
		MetadataFile: DefaultMetadataFile,
		LogLevel:     DefaultLogLevel,
		Camera: CameraConfig{
			Backend: BackendGoCV,
			Device:  DefaultCameraDevice,
			Width:   DefaultCameraSize,
			Height:  DefaultCameraSize,
			FPS:     DefaultCameraFPS,
			Flip:    true,
		},
	}
}

// FromEnv returns Default overlaid with values from the process environment.
func FromEnv() (Config, error) {
	return Parse(os.Getenv)
}

// Parse builds a Config using getenv for lookups. Unset variables keep
// their default.
func Parse(getenv func(string) string) (Config, error) {
	cfg := Default()

	str := func(key string, dst *string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	var errs []error
	num := func(key string, dst *int) {
		v := strings.TrimSpace(getenv(key))
		if v == "" {
			return
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %q is not an integer", key, v))
			return
		}
		*dst = n
	}

	str("PORT", &cfg.Port)
	str("MODEL_DIR", &cfg.ModelDir)
	str("MODEL_FILE", &cfg.ModelFile)
	str("METADATA_FILE", &cfg.MetadataFile)
	str("ORT_LIB", &cfg.ORTLibrary)
	str("DISEASES_FILE", &cfg.DiseasesFile)
	str("LOG_LEVEL", &cfg.LogLevel)
	str("CAMERA_BACKEND", &cfg.Camera.Backend)
	str("CAMERA_DEVICE", &cfg.Camera.Device)
	num("CAMERA_WIDTH", &cfg.Camera.Width)
	num("CAMERA_HEIGHT", &cfg.Camera.Height)
	num("CAMERA_FPS", &cfg.Camera.FPS)

	if v := strings.TrimSpace(getenv("CAMERA_FLIP")); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("CAMERA_FLIP: %q is not a boolean", v))
		} else {
			cfg.Camera.Flip = b
		}
	}

	if len(errs) > 0 {
		return cfg, errors.Join(errs...)
	}
	return cfg, cfg.Validate()
}

// Validate reports every invalid field at once.
func (c Config) Validate() error {
	var errs []error
	if c.Port == "" {
		errs = append(errs, errors.New("port is required"))
	}
	if c.ModelDir == "" {
		errs = append(errs, errors.New("model dir is required"))
	}
	switch c.Camera.Backend {
	case BackendGoCV, BackendFFmpeg:
	default:
		errs = append(errs, fmt.Errorf("camera backend %q: must be %s or %s", c.Camera.Backend, BackendGoCV, BackendFFmpeg))
	}
	if c.Camera.Width <= 0 || c.Camera.Height <= 0 {
		errs = append(errs, fmt.Errorf("camera size %dx%d must be positive", c.Camera.Width, c.Camera.Height))
	}
	if c.Camera.FPS <= 0 || c.Camera.FPS > 60 {
		errs = append(errs, fmt.Errorf("camera fps %d out of range 1-60", c.Camera.FPS))
	}
	return errors.Join(errs...)
}

// ModelPath is the topology file location.
func (c Config) ModelPath() string {
	return filepath.Join(c.ModelDir, c.ModelFile)
}

// MetadataPath is the metadata file location.
func (c Config) MetadataPath() string {
	return filepath.Join(c.ModelDir, c.MetadataFile)
}

// Addr is the listen address for the HTTP server.
func (c Config) Addr() string {
	return ":" + c.Port
}
