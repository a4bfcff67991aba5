package edgefilter

// Thresholds are the hysteresis bounds applied to the L1 gradient magnitude.
type Thresholds struct {
	Low  int `json:"low"`
	High int `json:"high"`
}

// DefaultThresholds are the bounds the camera preview was tuned with.
var DefaultThresholds = Thresholds{Low: 50, High: 150}

// normalized returns the thresholds with Low <= High.
func (t Thresholds) normalized() Thresholds {
	if t.Low > t.High {
		return Thresholds{Low: t.High, High: t.Low}
	}
	return t
}

const (
	edgeValue = 255

	// tan(22.5°) in Q15
	cannyShift = 15
	tan22Q15   = 13573
)

// pixel classification during suppression
const (
	classNone uint8 = iota
	classWeak
	classStrong
)

// Canny detects edges in a single-channel image and returns a map of the
// same size holding 255 on edges and 0 elsewhere.
//
// Gradients come from a 3x3 Sobel operator with replicated borders and are
// compared as |gx|+|gy|. Non-maximum suppression follows the quantised
// gradient direction; magnitudes outside the image count as zero. A pixel
// survives when its magnitude exceeds t.Low and it is either above t.High
// or 8-connected to a pixel that is.
func Canny(gray []byte, width, height int, t Thresholds) []byte {
	t = t.normalized()
	n := width * height
	edges := make([]byte, n)
	if n == 0 {
		return edges
	}

	dx := make([]int32, n)
	dy := make([]int32, n)
	mag := make([]int32, n)
	sobel(gray, width, height, dx, dy, mag)

	magAt := func(x, y int) int32 {
		if x < 0 || y < 0 || x >= width || y >= height {
			return 0
		}
		return mag[y*width+x]
	}

	low, high := int32(t.Low), int32(t.High)
	class := make([]uint8, n)
	stack := make([]int, 0, 64)

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			i := y*width + x
			m := mag[i]
			if m <= low {
				continue
			}

			gx, gy := dx[i], dy[i]
			xs, ys := abs32(gx), abs32(gy)
			tg22x := xs * tan22Q15
			ys <<= cannyShift

			var keep bool
			switch {
			case ys < tg22x:
				// horizontal gradient, compare left/right
				keep = m > magAt(x-1, y) && m >= magAt(x+1, y)
			case ys > tg22x+(xs<<(cannyShift+1)):
				// vertical gradient, compare above/below
				keep = m > magAt(x, y-1) && m >= magAt(x, y+1)
			default:
				s := 1
				if gx^gy < 0 {
					s = -1
				}
				keep = m > magAt(x-s, y-1) && m > magAt(x+s, y+1)
			}
			if !keep {
				continue
			}

			if m > high {
				class[i] = classStrong
				stack = append(stack, i)
			} else {
				class[i] = classWeak
			}
		}
	}

	// Hysteresis: grow strong pixels through 8-connected weak ones.
	for _, i := range stack {
		edges[i] = edgeValue
	}
	for len(stack) > 0 {
		i := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		x, y := i%width, i/width
		for ny := y - 1; ny <= y+1; ny++ {
			if ny < 0 || ny >= height {
				continue
			}
			for nx := x - 1; nx <= x+1; nx++ {
				if nx < 0 || nx >= width {
					continue
				}
				j := ny*width + nx
				if class[j] == classWeak && edges[j] == 0 {
					edges[j] = edgeValue
					stack = append(stack, j)
				}
			}
		}
	}

	return edges
}

// sobel fills the horizontal and vertical derivatives and their L1 magnitude.
func sobel(gray []byte, width, height int, dx, dy, mag []int32) {
	at := func(x, y int) int32 {
		return int32(gray[clampIndex(y, height)*width+clampIndex(x, width)])
	}
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			tl, tc, tr := at(x-1, y-1), at(x, y-1), at(x+1, y-1)
			ml, mr := at(x-1, y), at(x+1, y)
			bl, bc, br := at(x-1, y+1), at(x, y+1), at(x+1, y+1)

			gx := (tr + 2*mr + br) - (tl + 2*ml + bl)
			gy := (bl + 2*bc + br) - (tl + 2*tc + tr)

			i := y*width + x
			dx[i] = gx
			dy[i] = gy
			mag[i] = abs32(gx) + abs32(gy)
		}
	}
}

// clampIndex returns index clamped to [0, size-1] (replicated border).
func clampIndex(index, size int) int {
	if index < 0 {
		return 0
	}
	if index >= size {
		return size - 1
	}
	return index
}

func abs32(v int32) int32 {
	if v < 0 {
		return -v
	}
	return v
}
