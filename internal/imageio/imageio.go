// Package imageio converts between encoded images and raw edgefilter frames.
package imageio

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"  // register GIF
	_ "image/jpeg" // register JPEG
	"image/png"
	"io"

	_ "golang.org/x/image/bmp" // register BMP
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp" // register WebP

	"github.com/zsiec/edgeview/internal/edgefilter"
)

// ErrUnsupportedFormat is returned when the data is not a known image format.
var ErrUnsupportedFormat = errors.New("unsupported image format")

// Decoded is a decoded image in the filter's input layout.
type Decoded struct {
	Frame  edgefilter.Frame
	Format string
}

// Decode reads an encoded image and converts it to an RGBA frame.
// maxPixels <= 0 disables the size check, which is applied to the header
// before any pixel data is decoded.
func Decode(r io.Reader, maxPixels int) (*Decoded, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		if errors.Is(err, image.ErrFormat) {
			return nil, ErrUnsupportedFormat
		}
		return nil, fmt.Errorf("failed to read image header: %w", err)
	}
	if _, err := edgefilter.FrameSize(cfg.Width, cfg.Height); err != nil {
		return nil, err
	}
	if maxPixels > 0 && cfg.Width*cfg.Height > maxPixels {
		return nil, fmt.Errorf("%w: %dx%d exceeds %d pixels", edgefilter.ErrInvalidDimensions, cfg.Width, cfg.Height, maxPixels)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s image: %w", format, err)
	}

	return &Decoded{Frame: ToFrame(img), Format: format}, nil
}

// ToFrame copies any image into a tightly packed RGBA frame.
func ToFrame(img image.Image) edgefilter.Frame {
	b := img.Bounds()
	rgba, ok := img.(*image.RGBA)
	if !ok || rgba.Stride != b.Dx()*edgefilter.BytesPerPixel || b.Min != (image.Point{}) {
		rgba = image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
		draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)
	}
	return edgefilter.Frame{
		Pix:    rgba.Pix,
		Width:  b.Dx(),
		Height: b.Dy(),
		Layout: edgefilter.LayoutRGBA,
	}
}

// ToNRGBA reads a frame in any layout into an NRGBA image.
func ToNRGBA(f edgefilter.Frame) (*image.NRGBA, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	img := image.NewNRGBA(image.Rect(0, 0, f.Width, f.Height))
	ro, gOff, bo, ao := f.Layout.Offsets()
	for i := 0; i < len(f.Pix); i += edgefilter.BytesPerPixel {
		img.Pix[i+0] = f.Pix[i+ro]
		img.Pix[i+1] = f.Pix[i+gOff]
		img.Pix[i+2] = f.Pix[i+bo]
		img.Pix[i+3] = f.Pix[i+ao]
	}
	return img, nil
}

// EncodePNG writes a frame as PNG.
func EncodePNG(w io.Writer, f edgefilter.Frame) error {
	img, err := ToNRGBA(f)
	if err != nil {
		return err
	}
	enc := png.Encoder{CompressionLevel: png.BestSpeed}
	return enc.Encode(w, img)
}
