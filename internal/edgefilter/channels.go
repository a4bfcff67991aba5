package edgefilter

import "fmt"

// ExpandGray writes each single-channel value v of gray into dst as the
// RGBA pixel (v, v, v, 255). dst must hold len(gray)*4 bytes.
func ExpandGray(dst, gray []byte) {
	if len(dst) != len(gray)*BytesPerPixel {
		panic(fmt.Sprintf("edgefilter: ExpandGray dst length %d, want %d", len(dst), len(gray)*BytesPerPixel))
	}
	for i, v := range gray {
		p := dst[i*BytesPerPixel : i*BytesPerPixel+BytesPerPixel : i*BytesPerPixel+BytesPerPixel]
		p[0] = v
		p[1] = v
		p[2] = v
		p[3] = 0xff
	}
}

// Swizzle reorders the channels of every pixel in p from one layout to
// another, in place. It panics if len(p) is not a multiple of 4.
func Swizzle(p []byte, from, to Layout) {
	if len(p)%BytesPerPixel != 0 {
		panic("edgefilter: Swizzle input length is not a multiple of 4")
	}
	if from == to {
		return
	}

	fr, fg, fb, fa := from.Offsets()
	tr, tg, tb, ta := to.Offsets()
	for i := 0; i < len(p); i += BytesPerPixel {
		px := p[i : i+BytesPerPixel : i+BytesPerPixel]
		r, g, b, a := px[fr], px[fg], px[fb], px[fa]
		px[tr] = r
		px[tg] = g
		px[tb] = b
		px[ta] = a
	}
}
