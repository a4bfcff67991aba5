package stream

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	apperrors "github.com/zsiec/edgeview/internal/errors"
	"github.com/zsiec/edgeview/internal/logger"
	"github.com/zsiec/edgeview/internal/metrics"
	"github.com/zsiec/edgeview/internal/session"
)

// conn is one websocket session. The read loop owns all data writes;
// the keepalive goroutine only sends control frames, which gorilla allows
// concurrently with other writes.
type conn struct {
	h       *Handler
	ws      *websocket.Conn
	sess    *session.Session
	codec   codec
	limiter *rate.Limiter
	log     logger.Logger

	registered bool
	frames     uint64

	processed  atomic.Int64
	failed     atomic.Int64
	dropped    atomic.Int64
	bytesIn    atomic.Int64
	bytesOut   atomic.Int64
	lastWidth  atomic.Int64
	lastHeight atomic.Int64
}

func newConn(h *Handler, ws *websocket.Conn, sess *session.Session, cd codec) *conn {
	limit := rate.Inf
	if h.cfg.MaxFrameRate > 0 {
		limit = rate.Limit(h.cfg.MaxFrameRate)
	}
	burst := h.cfg.Burst
	if burst < 1 {
		burst = 1
	}

	return &conn{
		h:       h,
		ws:      ws,
		sess:    sess,
		codec:   cd,
		limiter: rate.NewLimiter(limit, burst),
		log:     h.logger.WithField("session_id", sess.ID),
	}
}

func (c *conn) run(ctx context.Context) {
	start := time.Now()
	c.h.recordOpen()
	c.register(ctx)

	c.h.frameLog.InfoWithCategory(logger.CategoryStreamSession, "Stream session opened", map[string]interface{}{
		"session_id":  c.sess.ID,
		"remote_addr": c.sess.RemoteAddr,
		"compression": c.sess.Compression,
	})

	ctx, cancel := context.WithCancel(ctx)
	keepaliveDone := make(chan struct{})
	go c.keepalive(ctx, keepaliveDone)

	defer func() {
		cancel()
		<-keepaliveDone
		c.ws.Close()
		c.unregister()
		if c.h.memory != nil {
			c.h.memory.ResetOwner(c.sess.ID)
		}
		c.h.recordClose(time.Since(start))

		c.h.frameLog.InfoWithCategory(logger.CategoryStreamSession, "Stream session closed", map[string]interface{}{
			"session_id":       c.sess.ID,
			"frames_processed": c.processed.Load(),
			"frames_failed":    c.failed.Load(),
			"frames_dropped":   c.dropped.Load(),
			"duration_ms":      time.Since(start).Milliseconds(),
		})
	}()

	c.ws.SetReadLimit(c.h.readLimit)
	_ = c.ws.SetReadDeadline(time.Now().Add(c.h.readTimeout()))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(c.h.readTimeout()))
	})

	for {
		mt, msg, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.WithError(err).Warn("Stream closed unexpectedly")
			}
			return
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(c.h.readTimeout()))

		if err := c.handleMessage(mt, msg); err != nil {
			c.log.WithError(err).Warn("Failed to write to stream")
			return
		}
	}
}

// handleMessage processes one client message. Only write failures are
// returned; frame failures are reported to the client as notices.
func (c *conn) handleMessage(mt int, msg []byte) error {
	c.frames++
	n := c.frames

	if mt != websocket.BinaryMessage {
		return c.sendError(n, apperrors.NewValidationError("frames must be sent as binary messages").
			WithCode(apperrors.CodeFrameDecode))
	}

	width, height, pixels, err := DecodeFrame(msg)
	if err != nil {
		return c.sendError(n, apperrors.Wrap(err, apperrors.ErrorTypeValidation, "frame header is incomplete", http.StatusBadRequest).
			WithCode(apperrors.CodeFrameDecode))
	}
	c.bytesIn.Add(int64(len(pixels)))

	if !c.limiter.Allow() {
		c.dropped.Add(1)
		c.h.dropped.Add(1)
		metrics.RecordFrameDropped(metrics.SourceStream)
		c.h.frameLog.DebugWithCategory(logger.CategoryFrameDropped, "Frame dropped by rate limit", map[string]interface{}{
			"session_id": c.sess.ID,
			"frame":      n,
		})
		return c.sendNotice(Notice{Type: NoticeDropped, Frame: n})
	}

	return c.processFrame(n, width, height, pixels)
}

func (c *conn) processFrame(n uint64, width, height int, pixels []byte) error {
	start := time.Now()

	if err := c.h.filter.Validate(pixels, width, height); err != nil {
		return c.fail(n, apperrors.FromFilterError(err))
	}

	filter := c.h.filter
	if c.h.memory != nil {
		lease := c.h.memory.NewLease(c.sess.ID)
		defer lease.Release()

		if err := lease.Reserve(len(pixels)); err != nil {
			return c.fail(n, apperrors.NewFrameBudgetError(err))
		}
		filter = filter.WithAllocator(lease)
	}

	out, err := filter.Process(pixels, width, height)
	if err != nil {
		return c.fail(n, apperrors.FromFilterError(err))
	}

	reply := c.codec.encode(width, height, out)
	elapsed := time.Since(start)

	c.processed.Add(1)
	c.h.processed.Add(1)
	c.bytesOut.Add(int64(len(reply) - HeaderSize))
	c.lastWidth.Store(int64(width))
	c.lastHeight.Store(int64(height))
	metrics.RecordFrameProcessed(metrics.SourceStream, width, height, len(pixels), len(out), elapsed)

	c.h.frameLog.DebugWithCategory(logger.CategoryFrameProcessing, "Frame processed", map[string]interface{}{
		"session_id":  c.sess.ID,
		"frame":       n,
		"width":       width,
		"height":      height,
		"duration_ms": float64(elapsed.Microseconds()) / 1000,
	})

	return c.write(websocket.BinaryMessage, reply)
}

func (c *conn) fail(n uint64, appErr *apperrors.AppError) error {
	c.failed.Add(1)
	c.h.failed.Add(1)
	metrics.RecordFrameError(metrics.SourceStream, apperrors.Reason(appErr))

	level := logrus.WarnLevel
	if appErr.HTTPStatus >= http.StatusInternalServerError {
		level = logrus.ErrorLevel
	}
	c.h.frameLog.FrameLog(level, logger.CategoryFrameProcessing, "Frame rejected", map[string]interface{}{
		"session_id": c.sess.ID,
		"frame":      n,
		"code":       appErr.Code,
		"error":      appErr.Error(),
	})

	return c.sendError(n, appErr)
}

func (c *conn) sendError(n uint64, appErr *apperrors.AppError) error {
	return c.sendNotice(Notice{
		Type:    NoticeError,
		Frame:   n,
		Code:    appErr.Code,
		Message: appErr.Message,
	})
}

func (c *conn) sendNotice(notice Notice) error {
	data, err := json.Marshal(notice)
	if err != nil {
		return err
	}
	return c.write(websocket.TextMessage, data)
}

func (c *conn) write(mt int, data []byte) error {
	if err := c.ws.SetWriteDeadline(time.Now().Add(c.h.writeTimeout())); err != nil {
		return err
	}
	return c.ws.WriteMessage(mt, data)
}

// keepalive pings the client and pushes stats to the registry until ctx is
// cancelled. On handler shutdown it sends a going-away close frame, which
// unblocks the read loop.
func (c *conn) keepalive(ctx context.Context, done chan<- struct{}) {
	defer close(done)

	ping := time.NewTicker(c.h.pingInterval())
	defer ping.Stop()
	heartbeat := time.NewTicker(c.h.heartbeatInterval())
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			if c.h.ctx.Err() != nil {
				msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
				_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(c.h.writeTimeout()))
				c.ws.Close()
			}
			return

		case <-ping.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.h.writeTimeout())); err != nil {
				c.log.WithError(err).Debug("Ping failed")
				c.ws.Close()
				return
			}

		case <-heartbeat.C:
			c.pushStats(ctx)
		}
	}
}

func (c *conn) stats() session.Stats {
	return session.Stats{
		FramesProcessed: c.processed.Load(),
		FramesFailed:    c.failed.Load(),
		FramesDropped:   c.dropped.Load(),
		BytesIn:         c.bytesIn.Load(),
		BytesOut:        c.bytesOut.Load(),
		LastWidth:       int(c.lastWidth.Load()),
		LastHeight:      int(c.lastHeight.Load()),
	}
}

func (c *conn) pushStats(ctx context.Context) {
	if !c.registered {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, c.h.writeTimeout())
	defer cancel()

	if err := c.h.registry.UpdateStats(ctx, c.sess.ID, c.stats()); err != nil {
		c.log.WithError(err).Warn("Failed to update session stats")
	}

	if c.h.memory != nil && c.h.memory.UnderPressure() {
		c.h.frameLog.WarnWithCategory(logger.CategoryMemoryPressure, "Frame memory under pressure", map[string]interface{}{
			"pressure": c.h.memory.Pressure(),
		})
	}
}

func (c *conn) register(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, c.h.writeTimeout())
	defer cancel()

	if err := c.h.registry.Register(ctx, c.sess); err != nil {
		c.log.WithError(err).Warn("Failed to register session, continuing without bookkeeping")
		return
	}
	c.registered = true
}

func (c *conn) unregister() {
	if !c.registered {
		return
	}
	// the handler context may already be cancelled during shutdown
	ctx, cancel := context.WithTimeout(context.Background(), c.h.writeTimeout())
	defer cancel()

	if err := c.h.registry.UpdateStats(ctx, c.sess.ID, c.stats()); err != nil {
		c.log.WithError(err).Debug("Failed to flush session stats")
	}
	if err := c.h.registry.Unregister(ctx, c.sess.ID); err != nil {
		c.log.WithError(err).Warn("Failed to unregister session")
	}
}
