package edgefilter

// BT.601 luma weights (0.299, 0.587, 0.114) in 14-bit fixed point. These
// match the integer path OpenCV uses for 8-bit RGBA2GRAY.
const (
	lumaShift = 14
	lumaR     = 4899
	lumaG     = 9617
	lumaB     = 1868
	lumaRound = 1 << (lumaShift - 1)
)

// Grayscale reduces an RGBA frame to one luma byte per pixel. Alpha is
// ignored. The caller guarantees len(rgba) == width*height*4.
func Grayscale(rgba []byte, width, height int) []byte {
	gray := make([]byte, width*height)
	for i, j := 0, 0; j < len(gray); i, j = i+BytesPerPixel, j+1 {
		y := int(rgba[i])*lumaR + int(rgba[i+1])*lumaG + int(rgba[i+2])*lumaB
		gray[j] = byte((y + lumaRound) >> lumaShift)
	}
	return gray
}
