package parallel

// MinBandRows is the smallest band handed to a worker. Smaller grids run as
// a single band to keep scheduling overhead below the per-pixel work.
const MinBandRows = 16

// Band is a half-open range of rows [Y0, Y1).
type Band struct {
	Y0, Y1 int
}

// Rows returns the number of rows in the band.
func (b Band) Rows() int { return b.Y1 - b.Y0 }

// SplitRows divides [y0, y1) into at most n contiguous bands of near-equal
// height, none smaller than MinBandRows except when the range itself is.
func SplitRows(y0, y1, n int) []Band {
	rows := y1 - y0
	if rows <= 0 {
		return nil
	}
	n = max(1, min(n, rows/MinBandRows))

	bands := make([]Band, 0, n)
	base, extra := rows/n, rows%n
	y := y0
	for i := range n {
		h := base
		if i < extra {
			h++
		}
		bands = append(bands, Band{Y0: y, Y1: y + h})
		y += h
	}
	return bands
}

// ForRows calls fn once per band of [y0, y1) and waits for all calls.
// Bands never overlap, so fn may write any pixel of its own rows without
// synchronization.
func (p *WorkerPool) ForRows(y0, y1 int, fn func(b Band)) {
	bands := SplitRows(y0, y1, p.workers*2)
	if len(bands) == 1 {
		fn(bands[0])
		return
	}
	work := make([]func(), len(bands))
	for i, b := range bands {
		work[i] = func() { fn(b) }
	}
	p.ExecuteAll(work)
}
