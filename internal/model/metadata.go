package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
)

// ReadMetadata loads and normalises the metadata file at path.
func ReadMetadata(path string) (Metadata, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Metadata{}, fmt.Errorf("%w: read metadata: %w", ErrModelLoad, err)
	}
	return ParseMetadata(raw)
}

// ParseMetadata decodes metadata JSON, fills defaults and validates it.
func ParseMetadata(raw []byte) (Metadata, error) {
	var m Metadata
	if err := json.Unmarshal(raw, &m); err != nil {
		return Metadata{}, fmt.Errorf("%w: parse metadata: %w", ErrModelLoad, err)
	}
	m.applyDefaults()
	if err := m.validate(); err != nil {
		return Metadata{}, fmt.Errorf("%w: %w", ErrModelLoad, err)
	}
	return m, nil
}

func (m *Metadata) applyDefaults() {
	if len(m.Classes) == 0 {
		m.Classes = m.Labels
	}
	if m.InputName == "" {
		m.InputName = "input"
	}
	if m.OutputName == "" {
		m.OutputName = "output"
	}
	m.Layout = strings.ToLower(m.Layout)
	if m.Layout == "" {
		m.Layout = LayoutNCHW
	}
	m.Normalize = strings.ToLower(m.Normalize)
	if m.Normalize == "" {
		m.Normalize = NormalizeUnit
	}
	if len(m.OutputShape) == 0 && len(m.Classes) > 0 {
		m.OutputShape = []int64{1, int64(len(m.Classes))}
	}
	if m.ImageSize == 0 && len(m.InputShape) == 4 {
		// Spatial dims sit at 2 for NCHW and 1 for NHWC.
		if m.Layout == LayoutNHWC {
			m.ImageSize = int(m.InputShape[1])
		} else {
			m.ImageSize = int(m.InputShape[2])
		}
	}
}

func (m Metadata) validate() error {
	if len(m.Classes) == 0 {
		return errors.New("metadata lists no classes")
	}
	for i, c := range m.Classes {
		if c == "" {
			return fmt.Errorf("class %d has an empty label", i)
		}
	}
	if len(m.InputShape) != 4 {
		return fmt.Errorf("input shape %v: want 4 dimensions", m.InputShape)
	}
	if m.ImageSize <= 0 {
		return fmt.Errorf("image size %d must be positive", m.ImageSize)
	}
	switch m.Layout {
	case LayoutNCHW, LayoutNHWC:
	default:
		return fmt.Errorf("unknown layout %q", m.Layout)
	}
	switch m.Normalize {
	case NormalizeUnit, NormalizeSymmetric:
	default:
		return fmt.Errorf("unknown normalization %q", m.Normalize)
	}
	if m.InputSize() != 3*m.ImageSize*m.ImageSize {
		return fmt.Errorf("input shape %v does not hold a 3x%dx%d image", m.InputShape, m.ImageSize, m.ImageSize)
	}
	if n := m.OutputSize(); n < len(m.Classes) {
		return fmt.Errorf("output shape %v has %d values for %d classes", m.OutputShape, n, len(m.Classes))
	}
	return nil
}

// InputSize is the number of float values in one input tensor.
func (m Metadata) InputSize() int {
	return product(m.InputShape)
}

// OutputSize is the number of float values in one output tensor.
func (m Metadata) OutputSize() int {
	return product(m.OutputShape)
}

func product(shape []int64) int {
	if len(shape) == 0 {
		return 0
	}
	n := 1
	for _, d := range shape {
		n *= int(d)
	}
	return n
}
