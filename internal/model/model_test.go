package model

import (
	"context"
	"errors"
	"image"
	"image/color"
	"math"
	"os"
	"path/filepath"
	"testing"
)

const tmMetadata = `{
  "labels": ["healthy", "powdery_mildew", "leaf_spot"],
  "input_shape": [1, 224, 224, 3],
  "layout": "NHWC",
  "normalize": "symmetric"
}`

func TestParseMetadata_TeachableMachineLabels(t *testing.T) {
	m, err := ParseMetadata([]byte(tmMetadata))
	if err != nil {
		t.Fatalf("ParseMetadata: %v", err)
	}
	if len(m.Classes) != 3 || m.Classes[1] != "powdery_mildew" {
		t.Errorf("Classes = %v", m.Classes)
	}
	if m.ImageSize != 224 {
		t.Errorf("ImageSize = %d, want 224", m.ImageSize)
	}
	if m.Layout != LayoutNHWC || m.Normalize != NormalizeSymmetric {
		t.Errorf("layout/normalize = %s/%s", m.Layout, m.Normalize)
	}
	if m.InputName != "input" || m.OutputName != "output" {
		t.Errorf("tensor names = %s/%s", m.InputName, m.OutputName)
	}
	if m.OutputSize() != 3 {
		t.Errorf("OutputSize() = %d, want 3", m.OutputSize())
	}
}

func TestParseMetadata_Invalid(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"not json", `{`},
		{"no classes", `{"input_shape":[1,3,4,4]}`},
		{"empty label", `{"classes":["a",""],"input_shape":[1,3,4,4]}`},
		{"bad rank", `{"classes":["a"],"input_shape":[3,4,4]}`},
		{"bad layout", `{"classes":["a"],"input_shape":[1,3,4,4],"layout":"hwc"}`},
		{"size mismatch", `{"classes":["a"],"input_shape":[1,3,4,4],"image_size":8}`},
		{"short output", `{"classes":["a","b","c"],"input_shape":[1,3,4,4],"output_shape":[1,2]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseMetadata([]byte(tt.raw))
			if !errors.Is(err, ErrModelLoad) {
				t.Errorf("error = %v, want ErrModelLoad", err)
			}
		})
	}
}

func TestReadMetadata_Missing(t *testing.T) {
	_, err := ReadMetadata(filepath.Join(t.TempDir(), "metadata.json"))
	if !errors.Is(err, ErrModelLoad) {
		t.Errorf("error = %v, want ErrModelLoad", err)
	}
}

func TestONNXLoader_MissingModel(t *testing.T) {
	dir := t.TempDir()
	meta := filepath.Join(dir, "metadata.json")
	if err := os.WriteFile(meta, []byte(tmMetadata), 0o644); err != nil {
		t.Fatal(err)
	}
	l := ONNXLoader{ModelPath: filepath.Join(dir, "model.onnx"), MetadataPath: meta}
	if _, err := l.Load(context.Background()); !errors.Is(err, ErrModelLoad) {
		t.Errorf("Load error = %v, want ErrModelLoad", err)
	}
}

func TestCropSquare(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 40, 20))
	got := CropSquare(img).Bounds()
	if got != image.Rect(10, 0, 30, 20) {
		t.Errorf("crop bounds = %v, want (10,0)-(30,20)", got)
	}

	square := image.NewRGBA(image.Rect(0, 0, 8, 8))
	if CropSquare(square) != image.Image(square) {
		t.Error("square image should be returned unchanged")
	}
}

func solid(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func TestPreprocess_NCHWUnit(t *testing.T) {
	m := Metadata{ImageSize: 4, Layout: LayoutNCHW, Normalize: NormalizeUnit}
	data := Preprocess(solid(8, 8, color.RGBA{R: 255, A: 255}), m)

	if len(data) != 3*4*4 {
		t.Fatalf("len = %d, want 48", len(data))
	}
	for i := 0; i < 16; i++ {
		if math.Abs(float64(data[i])-1) > 1e-3 {
			t.Fatalf("red plane[%d] = %v, want 1", i, data[i])
		}
		if math.Abs(float64(data[16+i])) > 1e-3 || math.Abs(float64(data[32+i])) > 1e-3 {
			t.Fatalf("green/blue plane[%d] = %v/%v, want 0", i, data[16+i], data[32+i])
		}
	}
}

func TestPreprocess_NHWCSymmetric(t *testing.T) {
	m := Metadata{ImageSize: 2, Layout: LayoutNHWC, Normalize: NormalizeSymmetric}
	data := Preprocess(solid(6, 4, color.RGBA{G: 255, A: 255}), m)

	if len(data) != 12 {
		t.Fatalf("len = %d, want 12", len(data))
	}
	for px := 0; px < 4; px++ {
		r, g, b := data[3*px], data[3*px+1], data[3*px+2]
		if math.Abs(float64(r)+1) > 1e-3 || math.Abs(float64(g)-1) > 1e-3 || math.Abs(float64(b)+1) > 1e-3 {
			t.Errorf("pixel %d = (%v, %v, %v), want (-1, 1, -1)", px, r, g, b)
		}
	}
}

func TestToPredictions(t *testing.T) {
	classes := []string{"healthy", "powdery_mildew"}

	preds := toPredictions([]float32{0.18, 0.82, 0.5}, classes, false)
	if len(preds) != 2 {
		t.Fatalf("len = %d, want 2 (extra outputs ignored)", len(preds))
	}
	if preds[1].Label != "powdery_mildew" || math.Abs(preds[1].Probability-0.82) > 1e-6 {
		t.Errorf("preds[1] = %+v", preds[1])
	}

	soft := toPredictions([]float32{1, 1}, classes, true)
	if math.Abs(soft[0].Probability-0.5) > 1e-9 || math.Abs(soft[1].Probability-0.5) > 1e-9 {
		t.Errorf("softmax of equal logits = %+v, want 0.5 each", soft)
	}

	big := toPredictions([]float32{1000, 0}, classes, true)
	if math.IsNaN(big[0].Probability) || big[0].Probability < 0.999 {
		t.Errorf("softmax overflow handling: %+v", big)
	}
}
