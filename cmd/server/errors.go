package main

import (
	"errors"
	"fmt"

	"github.com/Brownie44l1/plant-api/internal/capture"
	"github.com/Brownie44l1/plant-api/internal/config"
	"github.com/Brownie44l1/plant-api/internal/model"
)

// HintedError wraps an error with a user-facing recovery hint.
type HintedError struct {
	Err  error
	Hint string
}

func (h *HintedError) Error() string { return h.Err.Error() }
func (h *HintedError) Unwrap() error { return h.Err }

// hintWrap attaches a recovery hint for the failures users can fix
// themselves. Other errors pass through unchanged.
func hintWrap(err error, cfg config.Config) error {
	if err == nil {
		return nil
	}
	var hint string
	switch {
	case errors.Is(err, model.ErrModelLoad):
		hint = fmt.Sprintf("Check that %s and %s exist, or pass --model-dir. Set ORT_LIB if onnxruntime is not on the library path.",
			cfg.ModelPath(), cfg.MetadataPath())
	case errors.Is(err, capture.ErrPermissionDenied):
		hint = "Add your user to the video group or grant camera access to the terminal."
	case errors.Is(err, capture.ErrDeviceUnavailable):
		hint = "Run 'plant-api cameras' to list devices and pass one with --camera."
	default:
		return err
	}
	return &HintedError{Err: err, Hint: hint}
}
