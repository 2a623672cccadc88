package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"log/slog"
	"net/http"

	"github.com/Brownie44l1/plant-api/internal/capture"
	"github.com/Brownie44l1/plant-api/internal/diseases"
	"github.com/Brownie44l1/plant-api/internal/model"
	"github.com/Brownie44l1/plant-api/internal/report"
	"github.com/Brownie44l1/plant-api/internal/session"
)

// maxUploadBytes caps multipart uploads.
const maxUploadBytes = 10 << 20

// maxUploadPixels caps the decoded size of an upload. A small compressed
// file can still declare huge dimensions.
const maxUploadPixels = 40_000_000

// Session is the part of session.CaptureSession the handlers drive.
type Session interface {
	LoadModel(ctx context.Context) error
	StartWebcam(ctx context.Context) error
	StopWebcam()
	PredictUpload(ctx context.Context, img image.Image) (report.Report, error)
	RepredictUpload(ctx context.Context) (report.Report, error)
	Status() session.Status
	Latest() (report.Report, bool)
}

// StatusNotifier is told about state changes caused by a request.
type StatusNotifier interface {
	PublishStatus(session.Status)
}

type Handler struct {
	session  Session
	kb       *diseases.KnowledgeBase
	logger   *slog.Logger
	notifier StatusNotifier
	// maxPixels bounds width*height of an uploaded image.
	maxPixels int
}

func NewHandler(s Session, kb *diseases.KnowledgeBase, logger *slog.Logger) *Handler {
	return &Handler{
		session:   s,
		kb:        kb,
		logger:    logger.With("component", "http"),
		maxPixels: maxUploadPixels,
	}
}

// SetNotifier registers n to receive the session status after every
// request that may change it.
func (h *Handler) SetNotifier(n StatusNotifier) {
	h.notifier = n
}

// status snapshots the session and announces it.
func (h *Handler) status() session.Status {
	st := h.session.Status()
	if h.notifier != nil {
		h.notifier.PublishStatus(st)
	}
	return st
}

// ReportResponse is returned by the prediction endpoints.
type ReportResponse struct {
	Report report.Report    `json:"report"`
	HTML   report.Fragments `json:"html"`
	Status session.Status   `json:"status"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// statusFor maps session errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, model.ErrModelLoad):
		return http.StatusServiceUnavailable
	case errors.Is(err, capture.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, capture.ErrDeviceUnavailable):
		return http.StatusNotFound
	case errors.Is(err, report.ErrInvalidInput), errors.Is(err, session.ErrNoUpload):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrDisposed):
		return http.StatusGone
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error(op+" failed", "error", err)
	} else {
		h.logger.Warn(op+" failed", "error", err, "status", status)
	}
	writeError(w, status, err.Error())
}

func (h *Handler) respondReport(w http.ResponseWriter, rep report.Report) {
	frags, err := report.HTML(rep)
	if err != nil {
		h.fail(w, "render", err)
		return
	}
	writeJSON(w, http.StatusOK, ReportResponse{Report: rep, HTML: frags, Status: h.status()})
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.session.Status())
}

func (h *Handler) LoadModel(w http.ResponseWriter, r *http.Request) {
	if err := h.session.LoadModel(r.Context()); err != nil {
		h.status()
		h.fail(w, "model load", err)
		return
	}
	writeJSON(w, http.StatusOK, h.status())
}

func (h *Handler) StartWebcam(w http.ResponseWriter, r *http.Request) {
	if err := h.session.StartWebcam(r.Context()); err != nil {
		h.status()
		h.fail(w, "webcam start", err)
		return
	}
	writeJSON(w, http.StatusOK, h.status())
}

func (h *Handler) StopWebcam(w http.ResponseWriter, r *http.Request) {
	h.session.StopWebcam()
	writeJSON(w, http.StatusOK, h.status())
}

func (h *Handler) PredictFromImage(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "failed to parse form")
		return
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		writeError(w, http.StatusBadRequest, "no image file provided; use 'image' as the form field name")
		return
	}
	defer file.Close()

	cfg, _, err := image.DecodeConfig(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid image format; supported: JPEG, PNG")
		return
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || cfg.Width*cfg.Height > h.maxPixels {
		h.logger.Warn("image rejected", "file", header.Filename, "width", cfg.Width, "height", cfg.Height)
		writeError(w, http.StatusRequestEntityTooLarge, "image dimensions too large")
		return
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		h.fail(w, "rewind upload", err)
		return
	}

	img, format, err := image.Decode(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid image format; supported: JPEG, PNG")
		return
	}
	h.logger.Info("image received",
		"file", header.Filename, "bytes", header.Size, "format", format,
		"width", img.Bounds().Dx(), "height", img.Bounds().Dy())

	rep, err := h.session.PredictUpload(r.Context(), img)
	if err != nil {
		h.fail(w, "predict upload", err)
		return
	}
	h.respondReport(w, rep)
}

func (h *Handler) RepredictUpload(w http.ResponseWriter, r *http.Request) {
	rep, err := h.session.RepredictUpload(r.Context())
	if err != nil {
		h.fail(w, "repredict upload", err)
		return
	}
	h.respondReport(w, rep)
}

func (h *Handler) LatestReport(w http.ResponseWriter, r *http.Request) {
	rep, ok := h.session.Latest()
	if !ok {
		writeError(w, http.StatusNotFound, "no prediction yet")
		return
	}
	h.respondReport(w, rep)
}

// DiseaseResponse is one knowledge base entry.
type DiseaseResponse struct {
	Key   string         `json:"key"`
	Label string         `json:"label"`
	Entry diseases.Entry `json:"entry"`
	// Fallback is set when Key has no entry and the default is returned.
	Fallback bool `json:"fallback"`
}

func (h *Handler) ListDiseases(w http.ResponseWriter, r *http.Request) {
	keys := h.kb.Keys()
	out := make([]DiseaseResponse, 0, len(keys))
	for _, k := range keys {
		out = append(out, DiseaseResponse{Key: k, Label: report.FormatLabel(k), Entry: h.kb.Lookup(k)})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) GetDisease(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	writeJSON(w, http.StatusOK, DiseaseResponse{
		Key:      key,
		Label:    report.FormatLabel(key),
		Entry:    h.kb.Lookup(key),
		Fallback: !h.kb.Has(key),
	})
}
