package centerline

import (
	"math"

	"github.com/gogpu/centerline/internal/parallel"
)

// Vec2 is a 2-component gradient vector.
type Vec2 struct {
	X, Y float32
}

// Length returns the Euclidean length of v.
func (v Vec2) Length() float32 {
	return float32(math.Hypot(float64(v.X), float64(v.Y)))
}

// sobelX is the horizontal derivative kernel; its transpose gives the
// vertical one.
var sobelX = [3][3]float32{
	{-1, 0, 1},
	{-2, 0, 2},
	{-1, 0, 1},
}

// sobelKernel pairs the horizontal and vertical kernels per tap.
var sobelKernel = func() (k [3][3]Vec2) {
	for ky := range 3 {
		for kx := range 3 {
			k[ky][kx] = Vec2{X: sobelX[ky][kx], Y: sobelX[kx][ky]}
		}
	}
	return k
}()

// FlatGradient is the gradient length below which a pixel counts as flat
// during non-maximum suppression.
const FlatGradient = 1e-4

// ridgeRegion returns the padded range [lo, hi] of coordinates where the 3×3
// kernel reads only interior pixels.
func ridgeRegion(paddedSize int) (lo, hi int) {
	return 2, paddedSize - 3
}

// gradient correlates dist with the Sobel kernel pair over the ridge region.
// Pixels outside the region keep a zero gradient.
func gradient(pool *parallel.WorkerPool, dist []float32, w, h int) []Vec2 {
	grad := make([]Vec2, w*h)
	x0, x1 := ridgeRegion(w)
	y0, y1 := ridgeRegion(h)
	if x0 > x1 || y0 > y1 {
		return grad
	}

	pool.ForRows(y0, y1+1, func(b parallel.Band) {
		for y := b.Y0; y < b.Y1; y++ {
			for x := x0; x <= x1; x++ {
				var g Vec2
				for ky := range 3 {
					row := (y + ky - 1) * w
					for kx := range 3 {
						d := dist[row+x+kx-1]
						k := sobelKernel[ky][kx]
						g.X += float32(d * k.X)
						g.Y += float32(d * k.Y)
					}
				}
				grad[y*w+x] = g
			}
		}
	})
	return grad
}

// bilinear samples dist at the fractional position (x, y). The four taps are
// (floor(x), floor(y)) and its right, lower and lower-right neighbours; a tap
// with zero weight still has to be in bounds.
func bilinear(dist []float32, w int, x, y float32) float32 {
	fx0 := float32(math.Floor(float64(x)))
	fy0 := float32(math.Floor(float64(y)))
	fx, fy := x-fx0, y-fy0
	i := int(fy0)*w + int(fx0)

	top := float32(dist[i]*(1-fx)) + float32(dist[i+1]*fx)
	bottom := float32(dist[i+w]*(1-fx)) + float32(dist[i+w+1]*fx)
	return float32(top*(1-fy)) + float32(bottom*fy)
}

// isRidge reports whether the pixel at (x, y) is a local maximum of dist
// along its gradient g. The field is sampled bilinearly one unit ahead of and
// behind the pixel along the normalized gradient. Flat pixels are maxima
// when no 8-neighbour exceeds them.
func isRidge(dist []float32, g Vec2, x, y, w int) bool {
	i := y*w + x
	d := dist[i]

	n := g.Length()
	if n < FlatGradient {
		for _, nb := range moore {
			if dist[i+nb.dy*w+nb.dx] > d {
				return false
			}
		}
		return true
	}

	ux, uy := g.X/n, g.Y/n
	fx, fy := float32(x), float32(y)
	ahead := bilinear(dist, w, fx+ux, fy+uy)
	behind := bilinear(dist, w, fx-ux, fy-uy)
	return d >= ahead && d >= behind
}

// suppress runs non-maximum suppression over the ridge region and returns
// the padded maximum mask.
func suppress(pool *parallel.WorkerPool, dist []float32, grad []Vec2, w, h int) []bool {
	maxima := make([]bool, w*h)
	x0, x1 := ridgeRegion(w)
	y0, y1 := ridgeRegion(h)
	if x0 > x1 || y0 > y1 {
		return maxima
	}

	pool.ForRows(y0, y1+1, func(b parallel.Band) {
		for y := b.Y0; y < b.Y1; y++ {
			for x := x0; x <= x1; x++ {
				i := y*w + x
				maxima[i] = isRidge(dist, grad[i], x, y, w)
			}
		}
	})
	return maxima
}
