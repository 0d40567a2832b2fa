package centerline

import (
	"math"
	"sync/atomic"

	"github.com/gogpu/centerline/internal/parallel"
)

// Step costs of the propagation metric. The gradient stage relies on both
// being used consistently; device kernels use the same values.
const (
	axisStep float32 = 1

	// DiagonalStep is the cost of a diagonal step, float32(√2).
	DiagonalStep float32 = math.Sqrt2
)

// neighbour is one of the 8 Moore neighbours with its step cost.
type neighbour struct {
	dx, dy int
	step   float32
}

var moore = [8]neighbour{
	{-1, -1, DiagonalStep}, {0, -1, axisStep}, {1, -1, DiagonalStep},
	{-1, 0, axisStep}, {1, 0, axisStep},
	{-1, 1, DiagonalStep}, {0, 1, axisStep}, {1, 1, DiagonalStep},
}

// propagator relaxes a distance field toward the distance to the nearest
// same-class edge pixel. It owns both distance buffers for its lifetime.
type propagator struct {
	pool  *parallel.WorkerPool
	grid  *PaddedGrid
	edges []bool

	prev, next []float32

	// onSweep, if set, observes the field after every sweep.
	onSweep func(sweep int, dist []float32)
}

func newPropagator(pool *parallel.WorkerPool, grid *PaddedGrid, edges []bool, dist []float32) *propagator {
	next := make([]float32, len(dist))
	copy(next, dist)
	return &propagator{pool: pool, grid: grid, edges: edges, prev: dist, next: next}
}

// run sweeps until a sweep changes nothing and returns the converged field
// with the number of sweeps performed, the final unchanged one included.
//
// Sweeps are Jacobi-style: every pixel reads prev and writes next, so the
// result does not depend on band order or worker count. Termination follows
// from distances only decreasing over a finite grid.
func (pr *propagator) run() ([]float32, int) {
	sweeps := 0
	for {
		sweeps++
		changed := pr.sweep()
		pr.prev, pr.next = pr.next, pr.prev
		if pr.onSweep != nil {
			pr.onSweep(sweeps, pr.prev)
		}
		if !changed {
			return pr.prev, sweeps
		}
	}
}

// sweep performs one synchronous relaxation from prev into next and reports
// whether any pixel decreased.
func (pr *propagator) sweep() bool {
	var changed atomic.Bool
	w, h := pr.grid.Width, pr.grid.Height
	classes := pr.grid.Classes
	prev, next := pr.prev, pr.next

	pr.pool.ForRows(1, h-1, func(b parallel.Band) {
		bandChanged := false
		for y := b.Y0; y < b.Y1; y++ {
			for x := 1; x < w-1; x++ {
				i := y*w + x
				best := prev[i]
				if !pr.edges[i] {
					c := classes[i]
					for _, n := range moore {
						j := i + n.dy*w + n.dx
						if classes[j] != c {
							continue
						}
						if cand := prev[j] + n.step; cand < best {
							best = cand
						}
					}
					if best < prev[i] {
						bandChanged = true
					}
				}
				next[i] = best
			}
		}
		if bandChanged {
			changed.Store(true)
		}
	})
	return changed.Load()
}
