package edgefilter

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/zsiec/edgeview/internal/logger"
)

// Filter turns RGBA camera frames into 4-channel edge maps. A Filter holds
// only configuration and is safe for concurrent use.
type Filter struct {
	thresholds Thresholds
	layout     Layout
	detector   Detector
	allocator  Allocator
	maxPixels  int
	logger     logger.Logger
}

// Option configures a Filter.
type Option func(*Filter)

// WithThresholds sets the hysteresis thresholds.
func WithThresholds(t Thresholds) Option {
	return func(f *Filter) { f.thresholds = t.normalized() }
}

// WithLayout sets the channel order of the output.
func WithLayout(l Layout) Option {
	return func(f *Filter) { f.layout = l }
}

// WithDetector replaces the edge engine.
func WithDetector(d Detector) Option {
	return func(f *Filter) {
		if d != nil {
			f.detector = d
		}
	}
}

// WithAllocator sets the source of output buffers.
func WithAllocator(a Allocator) Option {
	return func(f *Filter) {
		if a != nil {
			f.allocator = a
		}
	}
}

// WithMaxPixels caps width*height. Zero or less disables the cap.
func WithMaxPixels(n int) Option {
	return func(f *Filter) { f.maxPixels = n }
}

// WithLogger sets the logger used for debug output.
func WithLogger(l logger.Logger) Option {
	return func(f *Filter) {
		if l != nil {
			f.logger = l
		}
	}
}

// New creates a Filter with default thresholds, ABGR output, the pure Go
// engine and heap allocation.
func New(opts ...Option) *Filter {
	f := &Filter{
		thresholds: DefaultThresholds,
		layout:     LayoutABGR,
		detector:   CannyDetector{},
		allocator:  HeapAllocator{},
		logger:     logger.NewNullLogger(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// WithAllocator returns a copy of f that allocates from a. The receiver is
// not modified, so a shared Filter can serve requests with per-request
// allocators.
func (f *Filter) WithAllocator(a Allocator) *Filter {
	c := *f
	if a != nil {
		c.allocator = a
	}
	return &c
}

// Thresholds returns the configured hysteresis thresholds.
func (f *Filter) Thresholds() Thresholds { return f.thresholds }

// Layout returns the output channel order.
func (f *Filter) Layout() Layout { return f.layout }

// Detector returns the edge engine.
func (f *Filter) Detector() Detector { return f.detector }

// MaxPixels returns the pixel cap, zero when unlimited.
func (f *Filter) MaxPixels() int { return f.maxPixels }

// Validate reports whether Process would accept the frame, without running
// the pipeline.
func (f *Filter) Validate(input []byte, width, height int) error {
	return validate(input, width, height, f.maxPixels)
}

// Process runs the edge pipeline on one RGBA frame and returns a newly
// allocated frame of the same length in the filter's output layout. Colour
// channels carry 255 on edges and 0 elsewhere; alpha is always 255. The
// input is never modified.
func (f *Filter) Process(input []byte, width, height int) ([]byte, error) {
	if err := validate(input, width, height, f.maxPixels); err != nil {
		return nil, err
	}

	edges, err := f.detector.EdgeMap(input, width, height, f.thresholds)
	if err != nil {
		return nil, fmt.Errorf("%s edge detection: %w", f.detector.Name(), err)
	}

	out, err := f.allocator.Allocate(len(input))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOutputAllocation, err)
	}
	if len(out) != len(input) {
		return nil, fmt.Errorf("%w: allocator returned %d bytes, want %d", ErrOutputAllocation, len(out), len(input))
	}

	ExpandGray(out, edges)
	Swizzle(out, LayoutRGBA, f.layout)

	f.logger.Log(logrus.TraceLevel, "frame processed ", width, "x", height)
	return out, nil
}

// ProcessFrame is Process for a Frame value. Inputs in other layouts are
// reordered to RGBA on a copy first.
func (f *Filter) ProcessFrame(in Frame) (Frame, error) {
	if err := validate(in.Pix, in.Width, in.Height, f.maxPixels); err != nil {
		return Frame{}, err
	}
	pix := in.Pix
	if in.Layout != LayoutRGBA {
		pix = make([]byte, len(in.Pix))
		copy(pix, in.Pix)
		Swizzle(pix, in.Layout, LayoutRGBA)
	}
	out, err := f.Process(pix, in.Width, in.Height)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Pix: out, Width: in.Width, Height: in.Height, Layout: f.layout}, nil
}
