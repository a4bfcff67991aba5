//go:build gocv

package edgefilter

import (
	"fmt"

	"gocv.io/x/gocv"
)

func init() {
	RegisterDetector("opencv", func() Detector { return OpenCVDetector{} })
}

// OpenCVDetector runs cvtColor and Canny through OpenCV. It needs the
// OpenCV shared libraries and is only compiled with the gocv build tag.
type OpenCVDetector struct{}

// Name implements Detector.
func (OpenCVDetector) Name() string { return "opencv" }

// EdgeMap implements Detector.
func (OpenCVDetector) EdgeMap(rgba []byte, width, height int, t Thresholds) ([]byte, error) {
	t = t.normalized()

	// src is only read from.
	src, err := gocv.NewMatFromBytes(height, width, gocv.MatTypeCV8UC4, rgba)
	if err != nil {
		return nil, fmt.Errorf("wrap input: %w", err)
	}
	defer src.Close()

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(src, &gray, gocv.ColorRGBAToGray)

	edges := gocv.NewMat()
	defer edges.Close()
	gocv.Canny(gray, &edges, float32(t.Low), float32(t.High))

	out := edges.ToBytes()
	if len(out) != width*height {
		return nil, fmt.Errorf("opencv returned %d bytes, want %d", len(out), width*height)
	}
	return out, nil
}
