// Package api serves the HTTP frame endpoints.
package api

import (
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/zsiec/edgeview/internal/edgefilter"
	apperrors "github.com/zsiec/edgeview/internal/errors"
	"github.com/zsiec/edgeview/internal/logger"
	"github.com/zsiec/edgeview/internal/memory"
	"github.com/zsiec/edgeview/internal/session"
	"github.com/zsiec/edgeview/internal/stream"
	"github.com/zsiec/edgeview/pkg/bridge"
)

// Response headers describing a raw output frame.
const (
	HeaderFrameWidth  = "X-Frame-Width"
	HeaderFrameHeight = "X-Frame-Height"
	HeaderFrameLayout = "X-Frame-Layout"
)

// StreamStats reports live stream counters. *stream.Handler implements it.
type StreamStats interface {
	Stats() stream.Stats
}

// Handler serves /api/v1.
type Handler struct {
	bridge       *bridge.Bridge
	filter       *edgefilter.Filter
	memory       *memory.Controller
	registry     session.Registry
	streams      StreamStats
	maxBodyBytes int64

	logger       logger.Logger
	frameLog     *logger.SampledLogger
	errorHandler *apperrors.ErrorHandler
	started      time.Time

	processed atomic.Int64
	failed    atomic.Int64
}

// Option configures a Handler.
type Option func(*Handler)

// WithMemory accounts request frames against a memory budget.
func WithMemory(c *memory.Controller) Option {
	return func(h *Handler) { h.memory = c }
}

// WithSessions exposes the stream session registry.
func WithSessions(r session.Registry) Option {
	return func(h *Handler) { h.registry = r }
}

// WithStreamStats includes stream counters in /stats.
func WithStreamStats(s StreamStats) Option {
	return func(h *Handler) { h.streams = s }
}

// WithMaxBodyBytes caps request bodies. Zero disables the cap.
func WithMaxBodyBytes(n int64) Option {
	return func(h *Handler) { h.maxBodyBytes = n }
}

// NewHandler creates the API handler around a bridge and its filter.
func NewHandler(b *bridge.Bridge, log *logrus.Logger, opts ...Option) *Handler {
	base := logger.Component(log, "api")
	h := &Handler{
		bridge:       b,
		filter:       b.Filter(),
		logger:       base,
		frameLog:     logger.NewFrameLogger(base),
		errorHandler: apperrors.NewErrorHandler(log),
		started:      time.Now(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RegisterRoutes mounts the API under /api/v1.
func (h *Handler) RegisterRoutes(router *mux.Router) {
	v1 := router.PathPrefix("/api/v1").Subrouter()
	v1.HandleFunc("/greet", h.handleGreet).Methods(http.MethodGet)
	v1.HandleFunc("/frames", h.handleFrame).Methods(http.MethodPost)
	v1.HandleFunc("/images", h.handleImage).Methods(http.MethodPost)
	v1.HandleFunc("/stats", h.handleStats).Methods(http.MethodGet)
	v1.HandleFunc("/sessions", h.handleListSessions).Methods(http.MethodGet)
	v1.HandleFunc("/sessions/{id}", h.handleGetSession).Methods(http.MethodGet)
}

func (h *Handler) handleGreet(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"message": h.bridge.Greet()})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.WithError(err).Error("Failed to encode response")
	}
}
