package api

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/zsiec/edgeview/internal/edgefilter"
	apperrors "github.com/zsiec/edgeview/internal/errors"
	"github.com/zsiec/edgeview/internal/imageio"
	"github.com/zsiec/edgeview/internal/logger"
	"github.com/zsiec/edgeview/internal/memory"
	"github.com/zsiec/edgeview/internal/metrics"
)

// handleFrame filters a raw RGBA body and returns the raw output frame.
func (h *Handler) handleFrame(w http.ResponseWriter, r *http.Request) {
	width, height, err := dimensions(r)
	if err != nil {
		h.reject(w, r, metrics.SourceHTTP, err)
		return
	}

	size, err := edgefilter.FrameSize(width, height)
	if err != nil {
		h.reject(w, r, metrics.SourceHTTP, err)
		return
	}
	if mp := h.filter.MaxPixels(); mp > 0 && width*height > mp {
		h.reject(w, r, metrics.SourceHTTP, fmt.Errorf("%w: %dx%d exceeds %d pixels", edgefilter.ErrInvalidDimensions, width, height, mp))
		return
	}

	lease := h.lease(r)
	defer release(lease)
	if lease != nil {
		if err := lease.Reserve(size); err != nil {
			h.reject(w, r, metrics.SourceHTTP, apperrors.NewFrameBudgetError(err))
			return
		}
	}

	pixels, err := h.readBody(w, r, size)
	if err != nil {
		h.reject(w, r, metrics.SourceHTTP, err)
		return
	}

	out, err := h.process(r, metrics.SourceHTTP, lease, pixels, width, height)
	if err != nil {
		h.reject(w, r, metrics.SourceHTTP, err)
		return
	}

	hdr := w.Header()
	hdr.Set("Content-Type", "application/octet-stream")
	hdr.Set("Content-Length", strconv.Itoa(len(out)))
	hdr.Set(HeaderFrameWidth, strconv.Itoa(width))
	hdr.Set(HeaderFrameHeight, strconv.Itoa(height))
	hdr.Set(HeaderFrameLayout, h.filter.Layout().String())
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(out); err != nil {
		h.logger.WithError(err).Debug("Client went away during frame response")
	}
}

// handleImage decodes an encoded image, filters it and returns a PNG.
func (h *Handler) handleImage(w http.ResponseWriter, r *http.Request) {
	body := r.Body
	if h.maxBodyBytes > 0 {
		body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)
	}

	decoded, err := imageio.Decode(body, h.filter.MaxPixels())
	if err != nil {
		if errors.Is(err, imageio.ErrUnsupportedFormat) {
			err = apperrors.NewUnsupportedMediaError("body is not a PNG, JPEG, GIF, BMP or WebP image")
		}
		h.reject(w, r, metrics.SourceImage, err)
		return
	}

	frame := decoded.Frame
	lease := h.lease(r)
	defer release(lease)
	if lease != nil {
		if err := lease.Reserve(len(frame.Pix)); err != nil {
			h.reject(w, r, metrics.SourceImage, apperrors.NewFrameBudgetError(err))
			return
		}
	}

	out, err := h.process(r, metrics.SourceImage, lease, frame.Pix, frame.Width, frame.Height)
	if err != nil {
		h.reject(w, r, metrics.SourceImage, err)
		return
	}

	var buf bytes.Buffer
	edges := edgefilter.Frame{Pix: out, Width: frame.Width, Height: frame.Height, Layout: h.filter.Layout()}
	if err := imageio.EncodePNG(&buf, edges); err != nil {
		h.reject(w, r, metrics.SourceImage, apperrors.WrapInternalError(err, "failed to encode PNG"))
		return
	}

	hdr := w.Header()
	hdr.Set("Content-Type", "image/png")
	hdr.Set("Content-Length", strconv.Itoa(buf.Len()))
	hdr.Set(HeaderFrameWidth, strconv.Itoa(frame.Width))
	hdr.Set(HeaderFrameHeight, strconv.Itoa(frame.Height))
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		h.logger.WithError(err).Debug("Client went away during image response")
	}

	h.logger.WithFields(map[string]interface{}{
		"request_id": r.Header.Get(logger.RequestIDHeader),
		"format":     decoded.Format,
		"width":      frame.Width,
		"height":     frame.Height,
	}).Debug("Image processed")
}

// process runs the filter with output buffers drawn from lease.
func (h *Handler) process(r *http.Request, source string, lease *memory.Lease, pixels []byte, width, height int) ([]byte, error) {
	start := time.Now()

	filter := h.filter
	if lease != nil {
		filter = filter.WithAllocator(lease)
	}

	out, err := filter.Process(pixels, width, height)
	if err != nil {
		return nil, err
	}

	elapsed := time.Since(start)
	h.processed.Add(1)
	metrics.RecordFrameProcessed(source, width, height, len(pixels), len(out), elapsed)
	h.frameLog.DebugWithCategory(logger.CategoryFrameProcessing, "Frame processed", map[string]interface{}{
		"request_id":  r.Header.Get(logger.RequestIDHeader),
		"source":      source,
		"width":       width,
		"height":      height,
		"duration_ms": float64(elapsed.Microseconds()) / 1000,
	})
	return out, nil
}

// reject counts a failed frame and writes the error response.
func (h *Handler) reject(w http.ResponseWriter, r *http.Request, source string, err error) {
	appErr := apperrors.Resolve(err)
	h.failed.Add(1)
	metrics.RecordFrameError(source, apperrors.Reason(appErr))

	level := logrus.DebugLevel
	if appErr.HTTPStatus >= http.StatusInternalServerError {
		level = logrus.WarnLevel
	}
	h.frameLog.FrameLog(level, logger.CategoryFrameProcessing, "Frame rejected", map[string]interface{}{
		"request_id": r.Header.Get(logger.RequestIDHeader),
		"source":     source,
		"code":       appErr.Code,
	})

	h.errorHandler.HandleError(w, r, appErr)
}

// readBody reads exactly the frame bytes. A body of any other length is
// returned as read so the filter reports the size mismatch.
func (h *Handler) readBody(w http.ResponseWriter, r *http.Request, size int) ([]byte, error) {
	limit := h.maxBodyBytes
	if limit <= 0 || limit > int64(size)+1 {
		// one extra byte is enough to detect an oversized frame
		limit = int64(size) + 1
	}
	body := http.MaxBytesReader(w, r.Body, limit)

	buf := bytes.NewBuffer(make([]byte, 0, size))
	if _, err := buf.ReadFrom(body); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) && limit == int64(size)+1 {
			return nil, fmt.Errorf("%w: body exceeds %d bytes", edgefilter.ErrSizeMismatch, size)
		}
		return nil, err
	}
	return buf.Bytes(), nil
}

func (h *Handler) lease(r *http.Request) *memory.Lease {
	if h.memory == nil {
		return nil
	}
	owner := r.Header.Get(logger.RequestIDHeader)
	if owner == "" {
		owner = r.RemoteAddr
	}
	return h.memory.NewLease("http:" + owner)
}

func release(l *memory.Lease) {
	if l != nil {
		l.Release()
	}
}

// dimensions parses the width and height query parameters.
func dimensions(r *http.Request) (int, int, error) {
	q := r.URL.Query()
	width, err := strconv.Atoi(q.Get("width"))
	if err != nil {
		return 0, 0, fmt.Errorf("%w: width %q", edgefilter.ErrInvalidDimensions, q.Get("width"))
	}
	height, err := strconv.Atoi(q.Get("height"))
	if err != nil {
		return 0, 0, fmt.Errorf("%w: height %q", edgefilter.ErrInvalidDimensions, q.Get("height"))
	}
	return width, height, nil
}
