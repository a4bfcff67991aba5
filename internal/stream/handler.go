package stream

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/zsiec/edgeview/internal/config"
	"github.com/zsiec/edgeview/internal/edgefilter"
	apperrors "github.com/zsiec/edgeview/internal/errors"
	"github.com/zsiec/edgeview/internal/logger"
	"github.com/zsiec/edgeview/internal/memory"
	"github.com/zsiec/edgeview/internal/metrics"
	"github.com/zsiec/edgeview/internal/session"
)

// Path is the websocket endpoint.
const Path = "/api/v1/stream"

// Stats summarises all stream sessions since start.
type Stats struct {
	ActiveSessions  int64 `json:"active_sessions"`
	TotalSessions   int64 `json:"total_sessions"`
	FramesProcessed int64 `json:"frames_processed"`
	FramesFailed    int64 `json:"frames_failed"`
	FramesDropped   int64 `json:"frames_dropped"`
}

// Handler upgrades requests to frame streams. Each connection is a session:
// binary RGBA frames in, binary edge frames out, in order.
type Handler struct {
	filter   *edgefilter.Filter
	memory   *memory.Controller
	registry session.Registry
	limiter  *SessionLimiter
	cfg      config.StreamConfig

	readLimit int64
	upgrader  websocket.Upgrader

	logger       logger.Logger
	frameLog     *logger.SampledLogger
	errorHandler *apperrors.ErrorHandler

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex // guards closed and wg.Add
	closed bool

	active    atomic.Int64
	total     atomic.Int64
	processed atomic.Int64
	failed    atomic.Int64
	dropped   atomic.Int64
}

// NewHandler creates a stream handler. maxFrameBytes bounds a single RGBA
// payload; mem may be nil to allocate from the heap without a budget.
func NewHandler(filter *edgefilter.Filter, mem *memory.Controller, reg session.Registry,
	cfg config.StreamConfig, maxFrameBytes int64, log *logrus.Logger) *Handler {
	if reg == nil {
		reg = session.NewMemoryRegistry(cfg.SessionTTL)
	}
	base := logger.Component(log, "stream")
	ctx, cancel := context.WithCancel(context.Background())

	return &Handler{
		filter:    filter,
		memory:    mem,
		registry:  reg,
		limiter:   NewSessionLimiter(cfg.MaxSessionsPerClient, cfg.MaxSessions),
		cfg:       cfg,
		readLimit: maxFrameBytes + HeaderSize,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		logger:       base,
		frameLog:     logger.NewFrameLogger(base),
		errorHandler: apperrors.NewErrorHandler(log),
		ctx:          ctx,
		cancel:       cancel,
	}
}

// RegisterRoutes mounts the websocket endpoint.
func (h *Handler) RegisterRoutes(router *mux.Router) {
	router.Handle(Path, h).Methods(http.MethodGet)
}

// ServeHTTP upgrades the connection and runs the session until the client
// goes away or the handler is closed.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	compression, err := ParseCompression(r.URL.Query().Get("compression"))
	if err != nil {
		h.errorHandler.HandleError(w, r, apperrors.NewValidationError(err.Error()))
		return
	}
	if compression != CompressionNone && !h.cfg.AllowCompression {
		h.errorHandler.HandleError(w, r, apperrors.NewValidationError("stream compression is disabled"))
		return
	}

	if !h.track() {
		h.errorHandler.HandleError(w, r, apperrors.NewServiceDownError("stream"))
		return
	}
	defer h.wg.Done()

	host := clientHost(r.RemoteAddr)
	if err := h.limiter.Acquire(host); err != nil {
		h.logger.WithFields(logrus.Fields{
			"client": host,
			"open":   h.limiter.Count(host),
			"total":  h.limiter.Total(),
		}).WithError(err).Warn("Stream session refused")
		if errors.Is(err, ErrClientSessionLimit) {
			h.errorHandler.HandleError(w, r, apperrors.NewRateLimitError(err.Error()))
		} else {
			h.errorHandler.HandleError(w, r, apperrors.NewResourceExhaustedError(err.Error()))
		}
		return
	}
	defer h.limiter.Release(host)

	cd, err := newCodec(compression)
	if err != nil {
		h.errorHandler.HandleError(w, r, apperrors.WrapInternalError(err, "stream setup failed"))
		return
	}
	defer cd.Close()

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error
		h.logger.WithError(err).Warn("WebSocket upgrade failed")
		return
	}

	c := newConn(h, ws, session.New(r.RemoteAddr, compression), cd)
	c.run(h.ctx)
}

// track counts a request towards Close, or reports false once Close has
// begun.
func (h *Handler) track() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.wg.Add(1)
	return true
}

// Stats returns counters across all sessions.
func (h *Handler) Stats() Stats {
	return Stats{
		ActiveSessions:  h.active.Load(),
		TotalSessions:   h.total.Load(),
		FramesProcessed: h.processed.Load(),
		FramesFailed:    h.failed.Load(),
		FramesDropped:   h.dropped.Load(),
	}
}

// Registry returns the session registry the handler writes to.
func (h *Handler) Registry() session.Registry {
	return h.registry
}

// Close ends every open session with a going-away close frame and waits
// for them to finish or ctx to expire.
func (h *Handler) Close(ctx context.Context) error {
	h.mu.Lock()
	h.closed = true
	h.mu.Unlock()
	h.cancel()

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Handler) writeTimeout() time.Duration {
	if h.cfg.WriteTimeout > 0 {
		return h.cfg.WriteTimeout
	}
	return 5 * time.Second
}

func (h *Handler) pingInterval() time.Duration {
	if h.cfg.PingInterval > 0 {
		return h.cfg.PingInterval
	}
	return 15 * time.Second
}

func (h *Handler) heartbeatInterval() time.Duration {
	if h.cfg.HeartbeatInterval > 0 {
		return h.cfg.HeartbeatInterval
	}
	return 5 * time.Second
}

// readTimeout allows two missed pongs before the session is considered dead.
func (h *Handler) readTimeout() time.Duration {
	return 2*h.pingInterval() + h.writeTimeout()
}

func (h *Handler) recordOpen() {
	h.active.Add(1)
	h.total.Add(1)
	metrics.StreamOpened()
}

func (h *Handler) recordClose(lifetime time.Duration) {
	h.active.Add(-1)
	metrics.StreamClosed(lifetime)
}
