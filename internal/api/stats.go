package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	apperrors "github.com/zsiec/edgeview/internal/errors"
	"github.com/zsiec/edgeview/internal/memory"
	"github.com/zsiec/edgeview/internal/session"
	"github.com/zsiec/edgeview/internal/stream"
)

// FilterInfo describes the configured pipeline.
type FilterInfo struct {
	Engine        string `json:"engine"`
	Layout        string `json:"layout"`
	LowThreshold  int    `json:"low_threshold"`
	HighThreshold int    `json:"high_threshold"`
	MaxPixels     int    `json:"max_pixels,omitempty"`
}

// HTTPStats counts frames handled by /frames and /images.
type HTTPStats struct {
	FramesProcessed int64 `json:"frames_processed"`
	FramesFailed    int64 `json:"frames_failed"`
}

// StatsResponse is the body of GET /api/v1/stats.
type StatsResponse struct {
	UptimeSeconds float64       `json:"uptime_seconds"`
	Filter        FilterInfo    `json:"filter"`
	HTTP          HTTPStats     `json:"http"`
	Stream        stream.Stats  `json:"stream"`
	Memory        *memory.Stats `json:"memory,omitempty"`
}

// SessionList is the body of GET /api/v1/sessions.
type SessionList struct {
	Sessions []*session.Session `json:"sessions"`
	Count    int                `json:"count"`
}

// Stats returns a snapshot of all counters.
func (h *Handler) Stats() StatsResponse {
	t := h.filter.Thresholds()
	resp := StatsResponse{
		UptimeSeconds: time.Since(h.started).Seconds(),
		Filter: FilterInfo{
			Engine:        h.filter.Detector().Name(),
			Layout:        h.filter.Layout().String(),
			LowThreshold:  t.Low,
			HighThreshold: t.High,
			MaxPixels:     h.filter.MaxPixels(),
		},
		HTTP: HTTPStats{
			FramesProcessed: h.processed.Load(),
			FramesFailed:    h.failed.Load(),
		},
	}
	if h.streams != nil {
		resp.Stream = h.streams.Stats()
	}
	if h.memory != nil {
		stats := h.memory.Stats()
		resp.Memory = &stats
	}
	return resp
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-cache")
	h.writeJSON(w, http.StatusOK, h.Stats())
}

func (h *Handler) handleListSessions(w http.ResponseWriter, r *http.Request) {
	if h.registry == nil {
		h.writeJSON(w, http.StatusOK, SessionList{Sessions: []*session.Session{}})
		return
	}

	sessions, err := h.registry.List(r.Context())
	if err != nil {
		h.errorHandler.HandleError(w, r, apperrors.NewServiceDownError("session registry").Wrapping(err))
		return
	}
	if sessions == nil {
		sessions = []*session.Session{}
	}
	h.writeJSON(w, http.StatusOK, SessionList{Sessions: sessions, Count: len(sessions)})
}

func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if h.registry == nil {
		h.errorHandler.HandleError(w, r, apperrors.NewNotFoundError("session"))
		return
	}

	s, err := h.registry.Get(r.Context(), id)
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		h.errorHandler.HandleError(w, r, apperrors.NewNotFoundError("session").WithDetail("id", id))
	case err != nil:
		h.errorHandler.HandleError(w, r, apperrors.NewServiceDownError("session registry").Wrapping(err))
	default:
		h.writeJSON(w, http.StatusOK, s)
	}
}
