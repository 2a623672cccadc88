package handlers

import (
	"bytes"
	"image/jpeg"
	"log/slog"
	"sync"
	"time"

	"github.com/Brownie44l1/plant-api/internal/hub"
	"github.com/Brownie44l1/plant-api/internal/report"
	"github.com/Brownie44l1/plant-api/internal/session"
)

const frameQuality = 75

// UpdateMessage is the websocket payload for one rendered report.
type UpdateMessage struct {
	Type   string           `json:"type"`
	Source string           `json:"source"`
	At     time.Time        `json:"at"`
	Report report.Report    `json:"report"`
	HTML   report.Fragments `json:"html"`
}

// StatusMessage is the websocket payload for a session state change.
type StatusMessage struct {
	Type   string         `json:"type"`
	Status session.Status `json:"status"`
	// Error explains why the webcam stopped on its own.
	Error string `json:"error,omitempty"`
}

// StatusSource reports the current session status.
type StatusSource interface {
	Status() session.Status
}

// Publisher forwards session updates to websocket clients. Reports go out
// as JSON text messages and webcam frames as binary JPEG messages.
type Publisher struct {
	hub    *hub.Hub
	logger *slog.Logger

	mu     sync.Mutex
	source StatusSource
}

func NewPublisher(h *hub.Hub, logger *slog.Logger) *Publisher {
	return &Publisher{hub: h, logger: logger.With("component", "publisher")}
}

// Watch sets where the status attached to a camera failure comes from.
func (p *Publisher) Watch(src StatusSource) {
	p.mu.Lock()
	p.source = src
	p.mu.Unlock()
}

func (p *Publisher) currentStatus() session.Status {
	p.mu.Lock()
	src := p.source
	p.mu.Unlock()
	if src == nil {
		return session.Status{State: session.Idle}
	}
	return src.Status()
}

// Publish implements session.Sink. A failed webcam is announced as a
// status message carrying the error.
func (p *Publisher) Publish(u session.Update) {
	if u.Err != nil {
		p.hub.Forget(hub.KindFrame)
		p.broadcastStatus(StatusMessage{Type: hub.KindStatus, Status: p.currentStatus(), Error: u.Err.Error()})
		return
	}
	if u.Frame != nil {
		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, u.Frame, &jpeg.Options{Quality: frameQuality}); err != nil {
			p.logger.Warn("frame encode failed", "error", err)
		} else {
			p.hub.BroadcastBinary(hub.KindFrame, buf.Bytes())
		}
	}

	frags, err := report.HTML(u.Report)
	if err != nil {
		p.logger.Error("render failed", "error", err)
		return
	}
	msg := UpdateMessage{
		Type:   hub.KindUpdate,
		Source: u.Source,
		At:     u.At,
		Report: u.Report,
		HTML:   frags,
	}
	if err := p.hub.BroadcastJSON(hub.KindUpdate, msg); err != nil {
		p.logger.Error("broadcast failed", "error", err)
	}
}

// PublishStatus announces a session state change. Once the webcam is
// off its last frame is no longer replayed to new clients.
func (p *Publisher) PublishStatus(st session.Status) {
	if st.State != session.WebcamActive {
		p.hub.Forget(hub.KindFrame)
	}
	p.broadcastStatus(StatusMessage{Type: hub.KindStatus, Status: st})
}

func (p *Publisher) broadcastStatus(msg StatusMessage) {
	if err := p.hub.BroadcastJSON(hub.KindStatus, msg); err != nil {
		p.logger.Error("broadcast failed", "error", err)
	}
}
