package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Brownie44l1/plant-api/internal/config"
	"github.com/Brownie44l1/plant-api/internal/diseases"
)

func addModelFlags(cmd *cobra.Command) {
	cmd.Flags().String("model-dir", config.DefaultModelDir, "Directory holding the model and metadata files")
	cmd.Flags().String("ort-lib", "", "Path to the onnxruntime shared library")
	cmd.Flags().String("diseases", "", "YAML disease table replacing the bundled one")
}

func addCameraFlags(cmd *cobra.Command) {
	cmd.Flags().String("port", config.DefaultPort, "Port to listen on")
	cmd.Flags().String("camera", config.DefaultCameraDevice, "Camera device index or path")
	cmd.Flags().String("camera-backend", config.BackendGoCV, "Capture backend: gocv or ffmpeg")
	cmd.Flags().Int("fps", config.DefaultCameraFPS, "Webcam frames classified per second")
	cmd.Flags().Bool("flip", config.Default().Camera.Flip, "Mirror webcam frames horizontally")
}

// loadConfig reads the environment and overlays any flags set on cmd.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.FromEnv()
	if err != nil {
		return cfg, &HintedError{
			Err:  fmt.Errorf("loading config: %w", err),
			Hint: "Check the PORT, MODEL_DIR and CAMERA_* environment variables.",
		}
	}

	flags := cmd.Flags()
	str := func(name string, dst *string) {
		if flags.Changed(name) {
			*dst, _ = flags.GetString(name)
		}
	}
	str("model-dir", &cfg.ModelDir)
	str("ort-lib", &cfg.ORTLibrary)
	str("diseases", &cfg.DiseasesFile)
	str("log-level", &cfg.LogLevel)
	str("port", &cfg.Port)
	str("camera", &cfg.Camera.Device)
	str("camera-backend", &cfg.Camera.Backend)
	if flags.Changed("fps") {
		cfg.Camera.FPS, _ = flags.GetInt("fps")
	}
	if flags.Changed("flip") {
		cfg.Camera.Flip, _ = flags.GetBool("flip")
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid flags: %w", err)
	}
	return cfg, nil
}

func loadKnowledge(cfg config.Config) (*diseases.KnowledgeBase, error) {
	if cfg.DiseasesFile == "" {
		return diseases.Default(), nil
	}
	kb, err := diseases.LoadFile(cfg.DiseasesFile)
	if err != nil {
		return nil, fmt.Errorf("loading disease table: %w", err)
	}
	return kb, nil
}
