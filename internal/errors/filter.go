package errors

import (
	stderrors "errors"
	"net/http"

	"github.com/zsiec/edgeview/internal/edgefilter"
)

// Frame error codes, stable across HTTP and stream responses.
const (
	CodeFrameInaccessible = "FRAME_INACCESSIBLE"
	CodeFrameDimensions   = "FRAME_DIMENSIONS"
	CodeFrameSizeMismatch = "FRAME_SIZE_MISMATCH"
	CodeFrameAllocation   = "FRAME_ALLOCATION"
	CodeFrameDecode       = "FRAME_DECODE"
)

// FromFilterError maps an error returned by edgefilter.Filter.Process to an
// AppError. Errors without an edgefilter sentinel become internal errors.
func FromFilterError(err error) *AppError {
	if err == nil {
		return nil
	}
	if appErr, ok := GetAppError(err); ok {
		return appErr
	}

	switch {
	case stderrors.Is(err, edgefilter.ErrInputInaccessible):
		return Wrap(err, ErrorTypeValidation, "frame data is missing", http.StatusBadRequest).
			WithCode(CodeFrameInaccessible)
	case stderrors.Is(err, edgefilter.ErrInvalidDimensions):
		return Wrap(err, ErrorTypeValidation, "frame dimensions are invalid", http.StatusBadRequest).
			WithCode(CodeFrameDimensions)
	case stderrors.Is(err, edgefilter.ErrSizeMismatch):
		return Wrap(err, ErrorTypeValidation, "frame length does not match width*height*4", http.StatusBadRequest).
			WithCode(CodeFrameSizeMismatch)
	case stderrors.Is(err, edgefilter.ErrOutputAllocation):
		return Wrap(err, ErrorTypeResourceExhausted, "no memory available for the output frame", http.StatusServiceUnavailable).
			WithCode(CodeFrameAllocation)
	default:
		return WrapInternalError(err, "frame processing failed")
	}
}

// Reason returns a short label for metrics: the error code when one is set,
// otherwise the error type.
func Reason(err error) string {
	appErr := FromFilterError(err)
	if appErr == nil {
		return ""
	}
	if appErr.Code != "" {
		return appErr.Code
	}
	return string(appErr.Type)
}

// NewFrameBudgetError reports a frame refused by the memory budget before it
// reached the filter.
func NewFrameBudgetError(err error) *AppError {
	return Wrap(err, ErrorTypeResourceExhausted, "frame memory budget exhausted", http.StatusServiceUnavailable).
		WithCode(CodeFrameAllocation)
}
