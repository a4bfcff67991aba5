package edgefilter

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Map states of cv::Canny.
const (
	refCandidate = 0
	refNotEdge   = 1
	refEdge      = 2
)

// referenceCanny follows cv::Canny for 8-bit input, a 3x3 aperture and L1
// gradients, laid out the way canny.cpp lays it out: a replicated-border
// source, magnitude rows padded with zeros and a map bordered with
// refNotEdge. Thresholds must satisfy low <= high.
func referenceCanny(gray []byte, width, height, low, high int) []byte {
	pw := width + 2
	src := make([]int, pw*(height+2))
	for y := -1; y <= height; y++ {
		for x := -1; x <= width; x++ {
			sy := min(max(y, 0), height-1)
			sx := min(max(x, 0), width-1)
			src[(y+1)*pw+x+1] = int(gray[sy*width+sx])
		}
	}
	p := func(x, y int) int { return src[(y+1)*pw+x+1] }

	dx := make([]int, pw*(height+2))
	dy := make([]int, pw*(height+2))
	mag := make([]int, pw*(height+2))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			j := (y+1)*pw + x + 1
			dx[j] = p(x+1, y-1) + 2*p(x+1, y) + p(x+1, y+1) - p(x-1, y-1) - 2*p(x-1, y) - p(x-1, y+1)
			dy[j] = p(x-1, y+1) + 2*p(x, y+1) + p(x+1, y+1) - p(x-1, y-1) - 2*p(x, y-1) - p(x+1, y-1)
			mag[j] = refAbs(dx[j]) + refAbs(dy[j])
		}
	}

	const tg22 = 13573
	state := make([]byte, pw*(height+2))
	for i := range state {
		state[i] = refNotEdge
	}
	var stack []int

	for y := 0; y < height; y++ {
		prevFlag := false
		for x := 0; x < width; x++ {
			j := (y+1)*pw + x + 1
			m := mag[j]

			push := false
			if m > low {
				xs, ys := dx[j], dy[j]
				ax, ay := refAbs(xs), refAbs(ys)<<15
				tg22x := ax * tg22
				if ay < tg22x {
					push = m > mag[j-1] && m >= mag[j+1]
				} else {
					tg67x := tg22x + ax<<16
					if ay > tg67x {
						push = m > mag[j-pw] && m >= mag[j+pw]
					} else {
						s := 1
						if xs^ys < 0 {
							s = -1
						}
						push = m > mag[j-pw-s] && m > mag[j+pw+s]
					}
				}
			}

			if !push {
				prevFlag = false
				state[j] = refNotEdge
				continue
			}
			if !prevFlag && m > high && state[j-pw] != refEdge {
				state[j] = refEdge
				stack = append(stack, j)
				prevFlag = true
			} else {
				state[j] = refCandidate
			}
		}
	}

	neighbours := []int{-pw - 1, -pw, -pw + 1, -1, 1, pw - 1, pw, pw + 1}
	for len(stack) > 0 {
		j := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, d := range neighbours {
			if state[j+d] == refCandidate {
				state[j+d] = refEdge
				stack = append(stack, j+d)
			}
		}
	}

	out := make([]byte, width*height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if state[(y+1)*pw+x+1] == refEdge {
				out[y*width+x] = edgeValue
			}
		}
	}
	return out
}

func refAbs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func grayFrame(width, height int, fn func(x, y int) byte) []byte {
	gray := make([]byte, width*height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			gray[y*width+x] = fn(x, y)
		}
	}
	return gray
}

func assertEdgeMapsEqual(t *testing.T, want, got []byte, width, height int) {
	t.Helper()
	for y := 0; y < height; y++ {
		require.Equal(t, want[y*width:(y+1)*width], got[y*width:(y+1)*width], "row %d", y)
	}
}

func TestCanny_HorizontalEdgeMarksLastDarkRow(t *testing.T) {
	const width, height = 6, 8
	gray := grayFrame(width, height, func(x, y int) byte {
		if y >= 4 {
			return 255
		}
		return 0
	})

	edges := Canny(gray, width, height, DefaultThresholds)
	want := make([]byte, width*height)
	for x := 0; x < width; x++ {
		want[3*width+x] = edgeValue
	}
	assertEdgeMapsEqual(t, want, edges, width, height)
}

func TestCanny_TransposeSymmetry(t *testing.T) {
	const width, height = 13, 9
	rng := rand.New(rand.NewSource(5))
	gray := grayFrame(width, height, func(x, y int) byte { return byte(rng.Intn(256)) })
	transposed := grayFrame(height, width, func(x, y int) byte { return gray[x*width+y] })

	edges := Canny(gray, width, height, Thresholds{Low: 100, High: 400})
	tEdges := Canny(transposed, height, width, Thresholds{Low: 100, High: 400})
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			require.Equal(t, edges[y*width+x], tEdges[x*height+y], "pixel (%d,%d)", x, y)
		}
	}
}

func TestCanny_MatchesReferenceOnFixtures(t *testing.T) {
	fixtures := []struct {
		name          string
		width, height int
		fn            func(x, y int) byte
	}{
		{"vertical", 8, 6, func(x, y int) byte { return byte(255 * min(x/4, 1)) }},
		{"horizontal", 6, 8, func(x, y int) byte { return byte(255 * min(y/4, 1)) }},
		{"diagonal", 10, 10, func(x, y int) byte {
			if x > y {
				return 255
			}
			return 0
		}},
		{"anti-diagonal", 10, 10, func(x, y int) byte {
			if x+y >= 10 {
				return 255
			}
			return 0
		}},
		{"shallow slope", 16, 8, func(x, y int) byte {
			if 2*y > x {
				return 200
			}
			return 20
		}},
		{"steep slope", 8, 16, func(x, y int) byte {
			if y < 2*x {
				return 200
			}
			return 20
		}},
		{"box", 12, 12, func(x, y int) byte {
			if x >= 3 && x < 9 && y >= 3 && y < 9 {
				return 255
			}
			return 0
		}},
		{"ramp", 12, 12, func(x, y int) byte { return byte(x*18 + y*3) }},
	}

	thresholds := []Thresholds{DefaultThresholds, {Low: 10, High: 40}, {Low: 200, High: 600}}
	for _, fx := range fixtures {
		for _, th := range thresholds {
			t.Run(fmt.Sprintf("%s/%d-%d", fx.name, th.Low, th.High), func(t *testing.T) {
				gray := grayFrame(fx.width, fx.height, fx.fn)
				want := referenceCanny(gray, fx.width, fx.height, th.Low, th.High)
				got := Canny(gray, fx.width, fx.height, th)
				assertEdgeMapsEqual(t, want, got, fx.width, fx.height)
			})
		}
	}
}

func TestCanny_MatchesReferenceOnRandomFrames(t *testing.T) {
	thresholds := []Thresholds{DefaultThresholds, {Low: 20, High: 60}, {Low: 150, High: 450}}
	for seed := int64(1); seed <= 60; seed++ {
		rng := rand.New(rand.NewSource(seed))
		width, height := 1+rng.Intn(24), 1+rng.Intn(24)

		var gray []byte
		switch seed % 3 {
		case 0:
			// noise
			gray = grayFrame(width, height, func(x, y int) byte { return byte(rng.Intn(256)) })
		case 1:
			// flat blocks with edges in every direction
			gray = make([]byte, width*height)
			for i := 0; i < 4; i++ {
				x0, y0 := rng.Intn(width), rng.Intn(height)
				x1, y1 := x0+1+rng.Intn(width), y0+1+rng.Intn(height)
				v := byte(rng.Intn(256))
				for y := y0; y < min(y1, height); y++ {
					for x := x0; x < min(x1, width); x++ {
						gray[y*width+x] = v
					}
				}
			}
		default:
			// oblique ramps with light noise
			a, b := rng.Intn(41)-20, rng.Intn(41)-20
			gray = grayFrame(width, height, func(x, y int) byte {
				return byte(min(max(128+a*x+b*y+rng.Intn(9)-4, 0), 255))
			})
		}

		th := thresholds[seed%int64(len(thresholds))]
		want := referenceCanny(gray, width, height, th.Low, th.High)
		got := Canny(gray, width, height, th)
		if !assert.Equal(t, want, got, "seed %d (%dx%d, %d/%d)", seed, width, height, th.Low, th.High) {
			return
		}
	}
}
