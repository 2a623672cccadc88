package model

import (
	"context"
	"fmt"
	"image"
	"math"
	"os"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// Server owns an ONNX Runtime session and its pre-allocated tensors.
// Predict is safe for concurrent use; runs are serialised because the
// tensors are shared.
type Server struct {
	mu           sync.Mutex
	session      *ort.AdvancedSession
	Metadata     Metadata
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
}

// NewServer loads the model at modelPath using the metadata at
// metadataPath. libraryPath points at the onnxruntime shared library and
// may be empty. Every failure wraps ErrModelLoad.
func NewServer(modelPath, metadataPath, libraryPath string) (*Server, error) {
	metadata, err := ReadMetadata(metadataPath)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrModelLoad, err)
	}

	if !ort.IsInitialized() {
		if libraryPath != "" {
			ort.SetSharedLibraryPath(libraryPath)
		}
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("%w: initialize ONNX environment: %w", ErrModelLoad, err)
		}
	}

	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(metadata.InputShape...))
	if err != nil {
		return nil, fmt.Errorf("%w: create input tensor: %w", ErrModelLoad, err)
	}

	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(metadata.OutputShape...))
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("%w: create output tensor: %w", ErrModelLoad, err)
	}

	session, err := ort.NewAdvancedSession(modelPath,
		[]string{metadata.InputName}, []string{metadata.OutputName},
		[]ort.ArbitraryTensor{inputTensor}, []ort.ArbitraryTensor{outputTensor},
		nil)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("%w: create ONNX session: %w", ErrModelLoad, err)
	}

	return &Server{
		session:      session,
		Metadata:     metadata,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
	}, nil
}

// Classes returns the model's class list.
func (s *Server) Classes() []string {
	return s.Metadata.Classes
}

// Predict preprocesses img and runs it through the model.
func (s *Server) Predict(ctx context.Context, img image.Image) ([]Prediction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.PredictTensor(Preprocess(img, s.Metadata))
}

// PredictTensor runs an already-preprocessed input tensor.
func (s *Server) PredictTensor(inputData []float32) ([]Prediction, error) {
	if len(inputData) != s.Metadata.InputSize() {
		return nil, fmt.Errorf("expected %d input values, got %d", s.Metadata.InputSize(), len(inputData))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return nil, ErrClosed
	}

	copy(s.inputTensor.GetData(), inputData)
	if err := s.session.Run(); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}
	return toPredictions(s.outputTensor.GetData(), s.Metadata.Classes, s.Metadata.Softmax), nil
}

// toPredictions pairs output values with class labels, in class order.
// Extra output values beyond the class list are ignored.
func toPredictions(output []float32, classes []string, softmax bool) []Prediction {
	n := min(len(output), len(classes))
	values := make([]float64, n)
	for i := range n {
		values[i] = float64(output[i])
	}
	if softmax {
		applySoftmax(values)
	}

	preds := make([]Prediction, n)
	for i := range n {
		preds[i] = Prediction{Label: classes[i], Probability: values[i]}
	}
	return preds
}

func applySoftmax(v []float64) {
	if len(v) == 0 {
		return
	}
	maxVal := v[0]
	for _, x := range v[1:] {
		maxVal = math.Max(maxVal, x)
	}
	var sum float64
	for i, x := range v {
		v[i] = math.Exp(x - maxVal)
		sum += v[i]
	}
	for i := range v {
		v[i] /= sum
	}
}

// Close releases the tensors, the session and the ONNX environment.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.inputTensor != nil {
		s.inputTensor.Destroy()
		s.inputTensor = nil
	}
	if s.outputTensor != nil {
		s.outputTensor.Destroy()
		s.outputTensor = nil
	}
	if s.session != nil {
		s.session.Destroy()
		s.session = nil
	}
	if ort.IsInitialized() {
		return ort.DestroyEnvironment()
	}
	return nil
}

// ONNXLoader loads a Server from a model directory.
type ONNXLoader struct {
	ModelPath    string
	MetadataPath string
	LibraryPath  string
}

// Load implements Loader.
func (l ONNXLoader) Load(ctx context.Context) (Classifier, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrModelLoad, err)
	}
	s, err := NewServer(l.ModelPath, l.MetadataPath, l.LibraryPath)
	if err != nil {
		return nil, err
	}
	return s, nil
}
