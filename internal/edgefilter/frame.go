package edgefilter

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// BytesPerPixel is the size of one interleaved 8-bit, 4-channel pixel.
const BytesPerPixel = 4

var (
	// ErrInputInaccessible indicates the input buffer is absent
	ErrInputInaccessible = errors.New("input frame is not accessible")

	// ErrInvalidDimensions indicates a non-positive or oversized width/height
	ErrInvalidDimensions = errors.New("invalid frame dimensions")

	// ErrSizeMismatch indicates len(input) != width*height*4
	ErrSizeMismatch = errors.New("frame buffer size does not match dimensions")

	// ErrOutputAllocation indicates the output buffer could not be created
	ErrOutputAllocation = errors.New("output frame allocation failed")
)

// Layout is the byte order of the four channels inside one pixel.
type Layout int

const (
	// LayoutRGBA is the camera input order.
	LayoutRGBA Layout = iota
	// LayoutABGR puts alpha first, followed by blue, green and red.
	LayoutABGR
	// LayoutBGRA is blue, green, red, alpha.
	LayoutBGRA
)

// String returns the lower-case layout name.
func (l Layout) String() string {
	switch l {
	case LayoutRGBA:
		return "rgba"
	case LayoutABGR:
		return "abgr"
	case LayoutBGRA:
		return "bgra"
	default:
		return fmt.Sprintf("layout(%d)", int(l))
	}
}

// Offsets returns the byte offsets of the red, green, blue and alpha
// channels within a pixel.
func (l Layout) Offsets() (r, g, b, a int) {
	switch l {
	case LayoutABGR:
		return 3, 2, 1, 0
	case LayoutBGRA:
		return 2, 1, 0, 3
	default:
		return 0, 1, 2, 3
	}
}

// ParseLayout converts a configuration string into a Layout.
func ParseLayout(s string) (Layout, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "rgba":
		return LayoutRGBA, nil
	case "abgr", "":
		return LayoutABGR, nil
	case "bgra":
		return LayoutBGRA, nil
	default:
		return 0, fmt.Errorf("unknown pixel layout %q", s)
	}
}

// Frame is one image's raw pixel buffer plus the dimensions it was captured with.
type Frame struct {
	Pix    []byte
	Width  int
	Height int
	Layout Layout
}

// Validate checks the buffer against its declared dimensions.
func (f Frame) Validate() error {
	return validate(f.Pix, f.Width, f.Height, 0)
}

// At returns the red, green, blue and alpha values of the pixel at (x, y).
func (f Frame) At(x, y int) (r, g, b, a byte) {
	ro, gOff, bo, ao := f.Layout.Offsets()
	i := (y*f.Width + x) * BytesPerPixel
	return f.Pix[i+ro], f.Pix[i+gOff], f.Pix[i+bo], f.Pix[i+ao]
}

// FrameSize returns width*height*4, or an error when the dimensions are not
// positive or the product overflows.
func FrameSize(width, height int) (int, error) {
	if width <= 0 || height <= 0 {
		return 0, fmt.Errorf("%w: %dx%d", ErrInvalidDimensions, width, height)
	}
	if width > math.MaxInt/BytesPerPixel/height {
		return 0, fmt.Errorf("%w: %dx%d overflows", ErrInvalidDimensions, width, height)
	}
	return width * height * BytesPerPixel, nil
}

// validate applies the frame contract. maxPixels <= 0 disables the pixel cap.
func validate(input []byte, width, height, maxPixels int) error {
	if input == nil {
		return ErrInputInaccessible
	}
	size, err := FrameSize(width, height)
	if err != nil {
		return err
	}
	if maxPixels > 0 && width*height > maxPixels {
		return fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrInvalidDimensions, width, height, maxPixels)
	}
	if len(input) != size {
		return fmt.Errorf("%w: frame length (%d) differs from expected (%d)", ErrSizeMismatch, len(input), size)
	}
	return nil
}
