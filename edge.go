package centerline

import "github.com/gogpu/centerline/internal/parallel"

// DistanceSentinelMargin is added to W+H for the initial distance so that it
// exceeds any distance reachable inside the grid.
const DistanceSentinelMargin = 239

// InitialDistance returns the starting distance for non-edge pixels of a
// padded grid of the given size. Accelerators seed their fields with it.
func InitialDistance(paddedWidth, paddedHeight int) float32 {
	return float32(paddedWidth - 2 + paddedHeight - 2 + DistanceSentinelMargin)
}

// detectEdges marks interior pixels whose 4-neighbourhood holds another label
// and seeds the distance field: 0 on edges, InitialDistance elsewhere
// (the padding ring included).
func detectEdges(pool *parallel.WorkerPool, p *PaddedGrid) (edges []bool, dist []float32) {
	w, h := p.Width, p.Height
	edges = make([]bool, w*h)
	dist = make([]float32, w*h)
	far := InitialDistance(w, h)

	for x := 0; x < w; x++ {
		dist[x] = far
		dist[(h-1)*w+x] = far
	}

	pool.ForRows(1, h-1, func(b parallel.Band) {
		for y := b.Y0; y < b.Y1; y++ {
			row := y * w
			dist[row] = far
			dist[row+w-1] = far
			for x := 1; x < w-1; x++ {
				i := row + x
				c := p.Classes[i]
				if p.Classes[i-w] != c || p.Classes[i+w] != c ||
					p.Classes[i-1] != c || p.Classes[i+1] != c {
					edges[i] = true
					continue
				}
				dist[i] = far
			}
		}
	})
	return edges, dist
}
