package model

import (
	"context"
	"errors"
	"image"
)

// ErrModelLoad wraps every failure to fetch or parse the model asset pair.
var ErrModelLoad = errors.New("model load failed")

// ErrClosed is returned by Predict after Close.
var ErrClosed = errors.New("model closed")

// Tensor layouts.
const (
	LayoutNCHW = "nchw"
	LayoutNHWC = "nhwc"
)

// Pixel normalisations.
const (
	// NormalizeUnit maps channels to [0, 1].
	NormalizeUnit = "unit"
	// NormalizeSymmetric maps channels to [-1, 1], as Teachable Machine
	// exports expect.
	NormalizeSymmetric = "symmetric"
)

// Metadata describes the model's tensors and class list. It is read from
// the JSON file stored next to the model.
type Metadata struct {
	InputShape  []int64  `json:"input_shape"`
	OutputShape []int64  `json:"output_shape"`
	Classes     []string `json:"classes"`
	// Labels is the Teachable Machine spelling of Classes.
	Labels     []string `json:"labels,omitempty"`
	ImageSize  int      `json:"image_size"`
	InputName  string   `json:"input_name,omitempty"`
	OutputName string   `json:"output_name,omitempty"`
	Layout     string   `json:"layout,omitempty"`
	Normalize  string   `json:"normalize,omitempty"`
	// Softmax is set when the model emits logits rather than probabilities.
	Softmax bool `json:"softmax,omitempty"`
}

// Prediction is one class and its probability.
type Prediction struct {
	Label       string  `json:"label"`
	Probability float64 `json:"probability"`
}

// Classifier runs a single image through the model and returns one
// prediction per class, in class-list order.
type Classifier interface {
	Predict(ctx context.Context, img image.Image) ([]Prediction, error)
	Classes() []string
	Close() error
}

// Loader fetches and parses a model, returning a ready Classifier.
type Loader interface {
	Load(ctx context.Context) (Classifier, error)
}
