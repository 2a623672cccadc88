// Package session owns the model and camera handles for one capture
// session and drives the per-frame inference cycle.
//
// State moves between Idle, Loading, WebcamActive and UploadReady. The
// model gate is separate from the state: nothing reaches the classifier
// until a load has succeeded, and StartWebcam and PredictUpload trigger
// that load themselves.
package session

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/Brownie44l1/plant-api/internal/capture"
	"github.com/Brownie44l1/plant-api/internal/diseases"
	"github.com/Brownie44l1/plant-api/internal/log"
	"github.com/Brownie44l1/plant-api/internal/model"
	"github.com/Brownie44l1/plant-api/internal/report"
)

var (
	// ErrNoUpload is returned when re-predicting before any image was uploaded.
	ErrNoUpload = errors.New("no uploaded image")
	// ErrDisposed is returned by every operation after Dispose.
	ErrDisposed = errors.New("session disposed")
)

// State is the capture state.
type State int

const (
	Idle State = iota
	Loading
	WebcamActive
	UploadReady
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Loading:
		return "loading"
	case WebcamActive:
		return "webcam"
	case UploadReady:
		return "upload"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// MarshalText renders the state name in JSON.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a state name written by MarshalText.
func (s *State) UnmarshalText(text []byte) error {
	for st := Idle; st <= UploadReady; st++ {
		if st.String() == string(text) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown state %q", text)
}

// Update sources.
const (
	SourceWebcam = "webcam"
	SourceUpload = "upload"
)

// Update is one rendered frame handed to the sink.
type Update struct {
	Source string
	Report report.Report
	// Frame is the webcam image the report was computed from. Nil for uploads.
	Frame image.Image
	At    time.Time
	// Err is set when the camera failed and the webcam stopped. Report and
	// Frame are empty and the session is already Idle.
	Err error
}

// Sink receives updates in the order they are produced. Publish is called
// without the session lock held, so it may call back into the session,
// except for Tick.
type Sink interface {
	Publish(Update)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Update)

// Publish implements Sink.
func (f SinkFunc) Publish(u Update) { f(u) }

// Options configure a session.
type Options struct {
	Loader     model.Loader
	OpenCamera capture.Opener
	Knowledge  *diseases.KnowledgeBase
	Sink       Sink
	// FPS caps the webcam cycle. Ignored when NewClock is set.
	FPS      int
	NewClock func() Clock
	Logger   *slog.Logger
}

// Status is a read-only snapshot of the session.
type Status struct {
	ID         string   `json:"id"`
	State      State    `json:"state"`
	ModelReady bool     `json:"model_ready"`
	HasUpload  bool     `json:"has_upload"`
	Classes    []string `json:"classes,omitempty"`
}

// CaptureSession owns the classifier and at most one camera.
type CaptureSession struct {
	id     string
	opts   Options
	logger *slog.Logger

	// ctx outlives individual requests; cameras and the frame loop run
	// under it so a finished HTTP request does not tear them down.
	ctx    context.Context
	cancel context.CancelFunc

	loads   singleflight.Group
	startMu sync.Mutex
	// tickMu keeps ticks from overlapping, whether they come from the
	// frame loop or from Tick.
	tickMu sync.Mutex

	mu         sync.Mutex
	state      State
	classifier model.Classifier
	camera     capture.Camera
	epoch      uint64
	upload     image.Image
	latest     *report.Report
	disposed   bool
}

// New creates an idle session. Loader and OpenCamera are required.
func New(opts Options) (*CaptureSession, error) {
	if opts.Loader == nil {
		return nil, errors.New("session: loader is required")
	}
	if opts.OpenCamera == nil {
		return nil, errors.New("session: camera opener is required")
	}
	if opts.Knowledge == nil {
		opts.Knowledge = diseases.Default()
	}
	if opts.Sink == nil {
		opts.Sink = SinkFunc(func(Update) {})
	}
	if opts.NewClock == nil {
		fps := opts.FPS
		opts.NewClock = func() Clock { return NewTickerClock(fps) }
	}
	id := uuid.NewString()
	logger := opts.Logger
	if logger == nil {
		logger = log.L()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &CaptureSession{
		id:     id,
		opts:   opts,
		logger: logger.With("session", id),
		ctx:    ctx,
		cancel: cancel,
		state:  Idle,
	}, nil
}

// ID identifies the session in logs and status responses.
func (s *CaptureSession) ID() string { return s.id }

// LoadModel loads the classifier once. Concurrent callers share a single
// load; a failed load is reported to every waiter and is not retried.
func (s *CaptureSession) LoadModel(ctx context.Context) error {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return ErrDisposed
	}
	ready := s.classifier != nil
	s.mu.Unlock()
	if ready {
		return nil
	}

	ch := s.loads.DoChan("model", func() (any, error) {
		return nil, s.load()
	})
	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *CaptureSession) load() error {
	s.mu.Lock()
	if s.classifier != nil {
		s.mu.Unlock()
		return nil
	}
	prev := s.state
	s.state = Loading
	s.mu.Unlock()

	start := time.Now()
	clf, err := s.opts.Loader.Load(s.ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Loading {
		s.state = prev
	}
	if err != nil {
		s.logger.Error("model load failed", "error", err)
		if !errors.Is(err, model.ErrModelLoad) {
			err = fmt.Errorf("%w: %w", model.ErrModelLoad, err)
		}
		return err
	}
	if s.disposed {
		clf.Close()
		return ErrDisposed
	}
	s.classifier = clf
	s.logger.Info("model loaded", "classes", len(clf.Classes()), "elapsed", time.Since(start))
	for _, c := range clf.Classes() {
		if !s.opts.Knowledge.Has(c) {
			s.logger.Warn("class has no knowledge base entry; fallback will be shown", "class", c, "fallback", s.opts.Knowledge.Fallback())
		}
	}
	return nil
}

// StartWebcam loads the model if needed, releases any active camera,
// opens a new one and starts the frame cycle.
func (s *CaptureSession) StartWebcam(ctx context.Context) error {
	if err := s.LoadModel(ctx); err != nil {
		return err
	}

	s.startMu.Lock()
	defer s.startMu.Unlock()

	s.StopWebcam()

	cam, err := s.opts.OpenCamera(s.ctx)
	if err != nil {
		s.mu.Lock()
		s.state = Idle
		s.mu.Unlock()
		s.logger.Warn("webcam unavailable", "error", err)
		return err
	}

	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		cam.Close()
		return ErrDisposed
	}
	s.epoch++
	epoch := s.epoch
	s.camera = cam
	s.state = WebcamActive
	s.mu.Unlock()

	s.logger.Info("webcam started", "epoch", epoch)
	go s.loop(epoch)
	return nil
}

// loop runs ticks for one webcam epoch until the epoch ends.
func (s *CaptureSession) loop(epoch uint64) {
	clock := s.opts.NewClock()
	defer clock.Stop()

	for {
		more, err := s.tick(s.ctx, epoch)
		if !more {
			return
		}
		if err != nil {
			s.logger.Warn("frame failed", "epoch", epoch, "error", err)
		}
		if err := clock.Next(s.ctx); err != nil {
			return
		}
	}
}

// Tick runs one frame of the active webcam cycle: acquire a frame, run
// inference, render and publish. It returns false once the session is no
// longer capturing or the camera failed; an inference error or a missed
// frame keeps the cycle going. A camera failure stops the webcam and is
// published as an Update with Err set. Results for a webcam that was
// stopped while inference was running are discarded. Ticks never overlap:
// a Tick issued while the frame loop is mid-frame waits for it.
func (s *CaptureSession) Tick(ctx context.Context) (bool, error) {
	s.mu.Lock()
	epoch := s.epoch
	s.mu.Unlock()
	return s.tick(ctx, epoch)
}

func (s *CaptureSession) tick(ctx context.Context, epoch uint64) (bool, error) {
	s.tickMu.Lock()
	defer s.tickMu.Unlock()

	s.mu.Lock()
	if s.state != WebcamActive || s.epoch != epoch {
		s.mu.Unlock()
		return false, nil
	}
	cam, clf := s.camera, s.classifier
	s.mu.Unlock()

	frame, err := cam.Read(ctx)
	switch {
	case err == nil:
	case errors.Is(err, capture.ErrClosed):
		return false, nil
	case errors.Is(err, capture.ErrNoFrame):
		s.logger.Debug("no frame", "epoch", epoch)
		return true, nil
	case ctx.Err() != nil:
		return false, nil
	default:
		err = fmt.Errorf("read frame: %w", err)
		if s.stopEpoch(epoch) {
			s.logger.Warn("webcam failed", "epoch", epoch, "error", err)
			s.opts.Sink.Publish(Update{Source: SourceWebcam, At: time.Now(), Err: err})
		}
		return false, err
	}

	rep, err := s.infer(ctx, clf, frame)
	if err != nil {
		return true, err
	}

	s.mu.Lock()
	if s.state != WebcamActive || s.epoch != epoch {
		s.mu.Unlock()
		return false, nil
	}
	s.latest = &rep
	s.mu.Unlock()

	s.opts.Sink.Publish(Update{Source: SourceWebcam, Report: rep, Frame: frame, At: time.Now()})
	return true, nil
}

// StopWebcam releases the active camera before returning. It is a no-op
// when no webcam is active and may be called from a Sink.
func (s *CaptureSession) StopWebcam() {
	s.mu.Lock()
	if s.state != WebcamActive {
		s.mu.Unlock()
		return
	}
	epoch := s.epoch
	s.mu.Unlock()
	s.stopEpoch(epoch)
}

// stopEpoch reports whether it stopped the webcam.
func (s *CaptureSession) stopEpoch(epoch uint64) bool {
	s.mu.Lock()
	if s.state != WebcamActive || s.epoch != epoch {
		s.mu.Unlock()
		return false
	}
	cam := s.camera
	s.camera = nil
	s.state = Idle
	s.epoch++
	s.mu.Unlock()

	if err := cam.Close(); err != nil {
		s.logger.Warn("webcam close failed", "error", err)
	}
	s.logger.Info("webcam stopped", "epoch", epoch)
	return true
}

// PredictUpload runs inference once on img, loading the model first if
// needed. The image is kept so it can be predicted again.
func (s *CaptureSession) PredictUpload(ctx context.Context, img image.Image) (report.Report, error) {
	if img == nil {
		return report.Report{}, ErrNoUpload
	}
	if err := s.LoadModel(ctx); err != nil {
		return report.Report{}, err
	}

	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return report.Report{}, ErrDisposed
	}
	s.upload = img
	if s.state != WebcamActive {
		s.state = UploadReady
	}
	clf := s.classifier
	s.mu.Unlock()

	rep, err := s.infer(ctx, clf, img)
	if err != nil {
		return report.Report{}, err
	}

	s.mu.Lock()
	s.latest = &rep
	s.mu.Unlock()

	s.opts.Sink.Publish(Update{Source: SourceUpload, Report: rep, At: time.Now()})
	return rep, nil
}

// RepredictUpload runs inference again on the last uploaded image.
func (s *CaptureSession) RepredictUpload(ctx context.Context) (report.Report, error) {
	s.mu.Lock()
	img := s.upload
	s.mu.Unlock()
	if img == nil {
		return report.Report{}, ErrNoUpload
	}
	return s.PredictUpload(ctx, img)
}

func (s *CaptureSession) infer(ctx context.Context, clf model.Classifier, img image.Image) (report.Report, error) {
	preds, err := clf.Predict(ctx, img)
	if err != nil {
		return report.Report{}, fmt.Errorf("predict: %w", err)
	}
	return report.Render(preds, s.opts.Knowledge)
}

// Status returns a snapshot of the session.
func (s *CaptureSession) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{
		ID:         s.id,
		State:      s.state,
		ModelReady: s.classifier != nil,
		HasUpload:  s.upload != nil,
	}
	if s.classifier != nil {
		st.Classes = s.classifier.Classes()
	}
	return st
}

// Latest returns the most recently rendered report.
func (s *CaptureSession) Latest() (report.Report, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.latest == nil {
		return report.Report{}, false
	}
	return *s.latest, true
}

// Dispose stops the webcam and releases the classifier. Later calls to
// any operation return ErrDisposed.
func (s *CaptureSession) Dispose() error {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return nil
	}
	s.disposed = true
	s.mu.Unlock()

	s.StopWebcam()
	s.cancel()

	s.mu.Lock()
	clf := s.classifier
	s.classifier = nil
	s.mu.Unlock()

	if clf != nil {
		return clf.Close()
	}
	return nil
}
