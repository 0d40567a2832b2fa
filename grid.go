package centerline

import (
	"errors"
	"fmt"
	"math"
)

// NoClass is the default sentinel label. It marks the padding ring and must
// not appear in an input grid.
const NoClass int32 = math.MinInt32

// Grid errors.
var (
	// ErrNilGrid is returned when a nil grid is passed to Process.
	ErrNilGrid = errors.New("centerline: nil grid")

	// ErrInvalidDimensions is returned when width or height is below 1 or the
	// data length does not match width*height.
	ErrInvalidDimensions = errors.New("centerline: invalid dimensions")

	// ErrNoClassPresent is returned when the sentinel label occurs in the input.
	ErrNoClassPresent = errors.New("centerline: sentinel label present in input")
)

// ClassGrid is a row-major grid of stripe class labels.
type ClassGrid struct {
	Width  int
	Height int
	Data   []int32
}

// NewClassGrid allocates a zero-filled grid.
func NewClassGrid(width, height int) (*ClassGrid, error) {
	if width < 1 || height < 1 {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidDimensions, width, height)
	}
	return &ClassGrid{
		Width:  width,
		Height: height,
		Data:   make([]int32, width*height),
	}, nil
}

// ClassGridFromRows copies rows into a new grid. All rows must have the same
// non-zero length.
func ClassGridFromRows(rows [][]int32) (*ClassGrid, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: no rows", ErrInvalidDimensions)
	}
	g, err := NewClassGrid(len(rows[0]), len(rows))
	if err != nil {
		return nil, err
	}
	for y, row := range rows {
		if len(row) != g.Width {
			return nil, fmt.Errorf("%w: row %d has %d columns, want %d",
				ErrInvalidDimensions, y, len(row), g.Width)
		}
		copy(g.Data[y*g.Width:], row)
	}
	return g, nil
}

// At returns the label at (x, y).
func (g *ClassGrid) At(x, y int) int32 { return g.Data[y*g.Width+x] }

// Set stores a label at (x, y).
func (g *ClassGrid) Set(x, y int, class int32) { g.Data[y*g.Width+x] = class }

// FillRect sets every pixel of the rectangle [x0, x1)×[y0, y1) to class,
// clipped to the grid.
func (g *ClassGrid) FillRect(x0, y0, x1, y1 int, class int32) {
	x0, y0 = max(x0, 0), max(y0, 0)
	x1, y1 = min(x1, g.Width), min(y1, g.Height)
	for y := y0; y < y1; y++ {
		row := g.Data[y*g.Width : (y+1)*g.Width]
		for x := x0; x < x1; x++ {
			row[x] = class
		}
	}
}

// validate checks the preconditions of Process.
func (g *ClassGrid) validate(noClass int32) error {
	if g == nil {
		return ErrNilGrid
	}
	if g.Width < 1 || g.Height < 1 || len(g.Data) != g.Width*g.Height {
		return fmt.Errorf("%w: %dx%d with %d labels",
			ErrInvalidDimensions, g.Width, g.Height, len(g.Data))
	}
	for i, v := range g.Data {
		if v == noClass {
			return fmt.Errorf("%w: %d at (%d, %d)",
				ErrNoClassPresent, noClass, i%g.Width, i/g.Width)
		}
	}
	return nil
}

// Mask is a row-major boolean grid. True marks a centerline pixel.
type Mask struct {
	Width  int
	Height int
	Data   []bool
}

// At reports whether (x, y) is set.
func (m *Mask) At(x, y int) bool { return m.Data[y*m.Width+x] }

// Count returns the number of set pixels.
func (m *Mask) Count() int {
	n := 0
	for _, v := range m.Data {
		if v {
			n++
		}
	}
	return n
}

// Rows returns the mask as a slice of rows sharing the mask's storage.
func (m *Mask) Rows() [][]bool {
	rows := make([][]bool, m.Height)
	for y := range rows {
		rows[y] = m.Data[y*m.Width : (y+1)*m.Width]
	}
	return rows
}

// String renders the mask with '#' for set and '.' for clear pixels, one row
// per line.
func (m *Mask) String() string {
	buf := make([]byte, 0, (m.Width+1)*m.Height)
	for y := 0; y < m.Height; y++ {
		for x := 0; x < m.Width; x++ {
			if m.At(x, y) {
				buf = append(buf, '#')
			} else {
				buf = append(buf, '.')
			}
		}
		buf = append(buf, '\n')
	}
	return string(buf)
}

// PaddedGrid is a class grid embedded in a one-pixel sentinel ring.
// Interior pixels occupy [1, Width-2]×[1, Height-2]. It is read-only once
// built and is what accelerators receive.
type PaddedGrid struct {
	Width   int
	Height  int
	Classes []int32
}

// pad embeds g at offset (1, 1) of a (W+2)×(H+2) buffer filled with noClass.
func pad(g *ClassGrid, noClass int32) *PaddedGrid {
	w, h := g.Width+2, g.Height+2
	classes := make([]int32, w*h)
	for x := 0; x < w; x++ {
		classes[x] = noClass
		classes[(h-1)*w+x] = noClass
	}
	for y := 1; y < h-1; y++ {
		row := classes[y*w : (y+1)*w]
		row[0] = noClass
		row[w-1] = noClass
		copy(row[1:w-1], g.Data[(y-1)*g.Width:y*g.Width])
	}
	return &PaddedGrid{Width: w, Height: h, Classes: classes}
}

// crop strips the one-pixel border of a padded boolean buffer.
func crop(padded []bool, width, height int) *Mask {
	m := &Mask{Width: width - 2, Height: height - 2}
	m.Data = make([]bool, m.Width*m.Height)
	for y := 1; y < height-1; y++ {
		copy(m.Data[(y-1)*m.Width:y*m.Width], padded[y*width+1:(y+1)*width-1])
	}
	return m
}
