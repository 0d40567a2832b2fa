package centerline

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gogpu/centerline/internal/parallel"
)

var errResultShape = errors.New("accelerator result does not match the padded grid")

// Stats describes one Process call.
type Stats struct {
	// Backend is "cpu" or the accelerator name.
	Backend string

	// Sweeps is the number of propagation sweeps, the final unchanged one included.
	Sweeps int

	// EdgePixels is the number of boundary pixels, or -1 if the backend did
	// not count them.
	EdgePixels int

	// CenterlinePixels is the number of pixels set in the returned mask.
	CenterlinePixels int

	// Stage durations. Only Total is measured for accelerators.
	EdgeTime     time.Duration
	DistanceTime time.Duration
	RidgeTime    time.Duration
	Total        time.Duration
}

// Extractor runs the centerline pipeline. It owns a worker pool shared by
// all calls and is safe for concurrent use; every call allocates its own
// grids.
type Extractor struct {
	pool *parallel.WorkerPool
	opts extractorOptions

	// onSweep observes the distance field after each CPU sweep (tests).
	onSweep func(sweep int, dist []float32)
}

// NewExtractor creates an Extractor. Call Close to stop its workers.
func NewExtractor(opts ...Option) *Extractor {
	o := defaultExtractorOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Extractor{
		pool: parallel.NewWorkerPool(o.workers),
		opts: o,
	}
}

// Close stops the worker pool. An injected accelerator is not closed.
func (e *Extractor) Close() {
	e.pool.Close()
}

// Workers returns the number of CPU workers.
func (e *Extractor) Workers() int {
	return e.pool.Workers()
}

// Process returns the centerline mask of grid, same shape as grid.
//
// It fails before doing any work if grid is nil, has invalid dimensions or
// contains the sentinel label. Accelerator errors other than
// ErrFallbackToCPU are returned wrapped with the accelerator name; no
// partial mask is returned.
func (e *Extractor) Process(grid *ClassGrid) (*Mask, error) {
	mask, _, err := e.process(grid, e.opts.noClass)
	return mask, err
}

// ProcessWithStats is Process with per-call diagnostics.
func (e *Extractor) ProcessWithStats(grid *ClassGrid) (*Mask, *Stats, error) {
	return e.process(grid, e.opts.noClass)
}

func (e *Extractor) accelerator() Accelerator {
	if e.opts.cpuOnly {
		return nil
	}
	if e.opts.accelerator != nil {
		return e.opts.accelerator
	}
	return CurrentAccelerator()
}

func (e *Extractor) process(grid *ClassGrid, noClass int32) (*Mask, *Stats, error) {
	if err := grid.validate(noClass); err != nil {
		return nil, nil, err
	}

	start := time.Now()
	padded := pad(grid, noClass)

	if a := e.accelerator(); a != nil {
		res, err := a.Extract(padded, noClass)
		switch {
		case err == nil:
			if res == nil || len(res.Maxima) != len(padded.Classes) {
				return nil, nil, fmt.Errorf("centerline: %s: %w", a.Name(), errResultShape)
			}
			mask := crop(res.Maxima, padded.Width, padded.Height)
			stats := &Stats{
				Backend:          a.Name(),
				Sweeps:           res.Sweeps,
				EdgePixels:       res.EdgePixels,
				CenterlinePixels: mask.Count(),
				Total:            time.Since(start),
			}
			logStats(stats, grid)
			return mask, stats, nil
		case errors.Is(err, ErrFallbackToCPU):
			Logger().Warn("centerline: accelerator fallback",
				"accelerator", a.Name(), "width", grid.Width, "height", grid.Height)
		default:
			return nil, nil, fmt.Errorf("centerline: %s: %w", a.Name(), err)
		}
	}

	mask, stats := e.runCPU(padded)
	stats.Total = time.Since(start)
	logStats(stats, grid)
	return mask, stats, nil
}

// runCPU executes the four stages on the worker pool.
func (e *Extractor) runCPU(padded *PaddedGrid) (*Mask, *Stats) {
	w, h := padded.Width, padded.Height
	stats := &Stats{Backend: "cpu"}

	t := time.Now()
	edges, dist := detectEdges(e.pool, padded)
	stats.EdgeTime = time.Since(t)
	for _, v := range edges {
		if v {
			stats.EdgePixels++
		}
	}

	t = time.Now()
	pr := newPropagator(e.pool, padded, edges, dist)
	pr.onSweep = e.onSweep
	dist, stats.Sweeps = pr.run()
	stats.DistanceTime = time.Since(t)

	t = time.Now()
	grad := gradient(e.pool, dist, w, h)
	maxima := suppress(e.pool, dist, grad, w, h)
	stats.RidgeTime = time.Since(t)

	mask := crop(maxima, w, h)
	stats.CenterlinePixels = mask.Count()
	return mask, stats
}

func logStats(s *Stats, grid *ClassGrid) {
	Logger().Debug("centerline: processed",
		"backend", s.Backend,
		"width", grid.Width,
		"height", grid.Height,
		"sweeps", s.Sweeps,
		"edge_pixels", s.EdgePixels,
		"centerline_pixels", s.CenterlinePixels,
		"edge_time", s.EdgeTime,
		"distance_time", s.DistanceTime,
		"ridge_time", s.RidgeTime,
		"total", s.Total)
}

var (
	defaultOnce      sync.Once
	defaultExtractor *Extractor
)

// Process extracts the centerline mask of grid using a shared default
// Extractor. noClass is the sentinel label; it must not occur in grid.
func Process(grid *ClassGrid, noClass int32) (*Mask, error) {
	defaultOnce.Do(func() {
		defaultExtractor = NewExtractor()
	})
	mask, _, err := defaultExtractor.process(grid, noClass)
	return mask, err
}
