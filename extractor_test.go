package centerline

import (
	"errors"
	"strings"
	"testing"
)

// stripedGrid builds a w×h grid of wavy vertical stripes with a few
// embedded blobs, a stand-in for a decoded structured-light pattern.
func stripedGrid(w, h int) *ClassGrid {
	g, _ := NewClassGrid(w, h)
	for y := range h {
		shift := (y * y / 37) % 5
		for x := range w {
			g.Set(x, y, int32((x+shift)/9))
		}
	}
	g.FillRect(w/4, h/3, w/4+6, h/3+4, 100)
	g.FillRect(w/2, h/2, w/2+3, h/2+9, 101)
	return g
}

func gridFunc(w, h int, f func(x, y int) int32) *ClassGrid {
	g, _ := NewClassGrid(w, h)
	for y := range h {
		for x := range w {
			g.Set(x, y, f(x, y))
		}
	}
	return g
}

func maskString(rows ...string) string {
	return strings.Join(rows, "\n") + "\n"
}

var extractCases = []struct {
	name   string
	grid   *ClassGrid
	want   string
	sweeps int
}{
	{
		name:   "single pixel",
		grid:   gridFunc(1, 1, func(int, int) int32 { return 4 }),
		want:   maskString("."),
		sweeps: 1,
	},
	{
		name:   "single column",
		grid:   gridFunc(1, 7, func(int, int) int32 { return 4 }),
		want:   maskString(".", ".", ".", ".", ".", ".", "."),
		sweeps: 1,
	},
	{
		name:   "uniform 3x3",
		grid:   gridFunc(3, 3, func(int, int) int32 { return 1 }),
		want:   maskString("...", ".#.", "..."),
		sweeps: 2,
	},
	{
		name: "uniform 7x7",
		grid: gridFunc(7, 7, func(int, int) int32 { return 3 }),
		want: maskString(
			".......",
			".......",
			".......",
			"...#...",
			".......",
			".......",
			".......",
		),
		sweeps: 4,
	},
	{
		name: "uniform 10x10",
		grid: gridFunc(10, 10, func(int, int) int32 { return 7 }),
		want: maskString(
			"..........",
			"..........",
			"..........",
			"..........",
			"....##....",
			"....##....",
			"..........",
			"..........",
			"..........",
			"..........",
		),
		sweeps: 5,
	},
	{
		name: "vertical stripe",
		grid: gridFunc(13, 12, func(x, _ int) int32 {
			if x >= 4 && x <= 8 {
				return 1
			}
			return 0
		}),
		want: maskString(
			".............",
			".##.......##.",
			".##...#...##.",
			".##...#...##.",
			".##...#...##.",
			".##...#...##.",
			".##...#...##.",
			".##...#...##.",
			".##...#...##.",
			".##...#...##.",
			".##.......##.",
			".............",
		),
		sweeps: 3,
	},
	{
		name: "one pixel stripe",
		grid: gridFunc(11, 8, func(x, _ int) int32 {
			if x == 5 {
				return 1
			}
			return 0
		}),
		want: maskString(
			"...........",
			".....#.....",
			"..#..#..#..",
			"..#..#..#..",
			"..#..#..#..",
			"..#..#..#..",
			".....#.....",
			"...........",
		),
		sweeps: 3,
	},
	{
		name: "two stripes",
		grid: gridFunc(14, 9, func(x, _ int) int32 {
			switch {
			case x >= 2 && x <= 4:
				return 1
			case x >= 8 && x <= 10:
				return 2
			}
			return 0
		}),
		want: maskString(
			"..............",
			".#.#..#..#..#.",
			".#.#..#..#..#.",
			".#.#..#..#..#.",
			".#.#..#..#..#.",
			".#.#..#..#..#.",
			".#.#..#..#..#.",
			".#.#..#..#..#.",
			"..............",
		),
		sweeps: 2,
	},
	{
		name: "horizontal stripe",
		grid: gridFunc(12, 11, func(_, y int) int32 {
			if y >= 3 && y <= 7 {
				return 1
			}
			return 0
		}),
		want: maskString(
			"............",
			".##########.",
			"............",
			"............",
			"............",
			"..########..",
			"............",
			"............",
			"............",
			".##########.",
			"............",
		),
		sweeps: 3,
	},
}

func TestExtractorProcess(t *testing.T) {
	ex := NewExtractor(WithCPUOnly(), WithWorkers(3))
	defer ex.Close()

	for _, tt := range extractCases {
		t.Run(tt.name, func(t *testing.T) {
			mask, stats, err := ex.ProcessWithStats(tt.grid)
			if err != nil {
				t.Fatalf("ProcessWithStats() error = %v", err)
			}
			if mask.Width != tt.grid.Width || mask.Height != tt.grid.Height {
				t.Fatalf("mask size = %dx%d, want %dx%d",
					mask.Width, mask.Height, tt.grid.Width, tt.grid.Height)
			}
			if got := mask.String(); got != tt.want {
				t.Errorf("mask =\n%s\nwant\n%s", got, tt.want)
			}
			if stats.Sweeps != tt.sweeps {
				t.Errorf("Sweeps = %d, want %d", stats.Sweeps, tt.sweeps)
			}
			if stats.Backend != "cpu" {
				t.Errorf("Backend = %q, want %q", stats.Backend, "cpu")
			}
			if stats.CenterlinePixels != mask.Count() {
				t.Errorf("CenterlinePixels = %d, want %d", stats.CenterlinePixels, mask.Count())
			}
		})
	}
}

// isEdge reports whether (x, y) has a 4-neighbour outside the grid or with
// another label.
func isEdge(g *ClassGrid, x, y int) bool {
	c := g.At(x, y)
	for _, d := range [4][2]int{{-1, 0}, {1, 0}, {0, -1}, {0, 1}} {
		nx, ny := x+d[0], y+d[1]
		if nx < 0 || ny < 0 || nx >= g.Width || ny >= g.Height || g.At(nx, ny) != c {
			return true
		}
	}
	return false
}

// thinEdge reports whether every same-class 8-neighbour of (x, y) is itself
// an edge pixel, as in stripes one or two pixels wide.
func thinEdge(g *ClassGrid, x, y int) bool {
	for _, n := range moore {
		nx, ny := x+n.dx, y+n.dy
		if nx < 0 || ny < 0 || nx >= g.Width || ny >= g.Height {
			continue
		}
		if g.At(nx, ny) == g.At(x, y) && !isEdge(g, nx, ny) {
			return false
		}
	}
	return true
}

func TestMaskProperties(t *testing.T) {
	ex := NewExtractor(WithCPUOnly())
	defer ex.Close()

	type grid struct {
		g         *ClassGrid
		checkEdge bool
	}
	grids := map[string]grid{"striped": {stripedGrid(83, 67), false}}
	for _, tt := range extractCases {
		grids[tt.name] = grid{tt.grid, true}
	}

	for name, tt := range grids {
		t.Run(name, func(t *testing.T) {
			g := tt.g
			mask, stats, err := ex.ProcessWithStats(g)
			if err != nil {
				t.Fatal(err)
			}

			edges := 0
			for y := range g.Height {
				for x := range g.Width {
					edge := isEdge(g, x, y)
					if edge {
						edges++
					}
					if !mask.At(x, y) {
						continue
					}
					if x == 0 || y == 0 || x == g.Width-1 || y == g.Height-1 {
						t.Errorf("border pixel (%d, %d) in mask", x, y)
					}
					if tt.checkEdge && edge && !thinEdge(g, x, y) {
						t.Errorf("edge pixel (%d, %d) with an interior neighbour in mask", x, y)
					}
				}
			}
			if stats.EdgePixels != edges {
				t.Errorf("EdgePixels = %d, want %d", stats.EdgePixels, edges)
			}
		})
	}
}

func TestProcessWorkerIndependent(t *testing.T) {
	g := stripedGrid(120, 170)

	one := NewExtractor(WithCPUOnly(), WithWorkers(1))
	defer one.Close()
	many := NewExtractor(WithCPUOnly(), WithWorkers(8))
	defer many.Close()

	m1, s1, err := one.ProcessWithStats(g)
	if err != nil {
		t.Fatal(err)
	}
	m8, s8, err := many.ProcessWithStats(g)
	if err != nil {
		t.Fatal(err)
	}
	if m1.String() != m8.String() {
		t.Error("mask differs between 1 and 8 workers")
	}
	if s1.Sweeps != s8.Sweeps {
		t.Errorf("Sweeps: 1 worker = %d, 8 workers = %d", s1.Sweeps, s8.Sweeps)
	}
}

func TestProcessDoesNotModifyInput(t *testing.T) {
	g := stripedGrid(40, 30)
	before := append([]int32(nil), g.Data...)

	if _, err := Process(g, NoClass); err != nil {
		t.Fatal(err)
	}
	for i := range before {
		if g.Data[i] != before[i] {
			t.Fatalf("input label %d changed from %d to %d", i, before[i], g.Data[i])
		}
	}
}

func TestProcessErrors(t *testing.T) {
	withSentinel, _ := NewClassGrid(4, 4)
	withSentinel.Set(1, 2, NoClass)

	tests := []struct {
		name    string
		grid    *ClassGrid
		noClass int32
		want    error
	}{
		{"nil grid", nil, NoClass, ErrNilGrid},
		{"zero width", &ClassGrid{Width: 0, Height: 3}, NoClass, ErrInvalidDimensions},
		{"short data", &ClassGrid{Width: 2, Height: 2, Data: []int32{1, 2, 3}}, NoClass, ErrInvalidDimensions},
		{"sentinel present", withSentinel, NoClass, ErrNoClassPresent},
		{"custom sentinel", gridFunc(3, 3, func(x, y int) int32 { return int32(x) }), 2, ErrNoClassPresent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mask, err := Process(tt.grid, tt.noClass)
			if !errors.Is(err, tt.want) {
				t.Fatalf("Process() error = %v, want %v", err, tt.want)
			}
			if mask != nil {
				t.Error("Process() returned a mask with an error")
			}
		})
	}
}

func TestWithNoClass(t *testing.T) {
	// Zero is a legal sentinel when the grid does not use it.
	ex := NewExtractor(WithCPUOnly(), WithNoClass(0))
	defer ex.Close()

	g := gridFunc(7, 7, func(int, int) int32 { return 9 })
	mask, err := ex.Process(g)
	if err != nil {
		t.Fatal(err)
	}
	if mask.Count() != 1 || !mask.At(3, 3) {
		t.Errorf("mask =\n%s", mask)
	}

	g.Set(0, 0, 0)
	if _, err := ex.Process(g); !errors.Is(err, ErrNoClassPresent) {
		t.Errorf("Process() error = %v, want ErrNoClassPresent", err)
	}
}

func TestExtractorAcceleratorResult(t *testing.T) {
	var gotNoClass int32
	mock := &mockAccelerator{
		name: "mock",
		extract: func(grid *PaddedGrid, noClass int32) (*AcceleratorResult, error) {
			gotNoClass = noClass
			maxima := make([]bool, len(grid.Classes))
			maxima[grid.Width+1] = true // unpadded (0, 0)
			maxima[0] = true            // padding, cropped away
			return &AcceleratorResult{Maxima: maxima, Sweeps: 7, EdgePixels: -1}, nil
		},
	}
	ex := NewExtractor(WithAccelerator(mock), WithNoClass(-5))
	defer ex.Close()

	mask, stats, err := ex.ProcessWithStats(gridFunc(4, 3, func(int, int) int32 { return 1 }))
	if err != nil {
		t.Fatal(err)
	}
	if got, want := mask.String(), maskString("#...", "....", "...."); got != want {
		t.Errorf("mask =\n%s\nwant\n%s", got, want)
	}
	if gotNoClass != -5 {
		t.Errorf("noClass = %d, want -5", gotNoClass)
	}
	if stats.Backend != "mock" || stats.Sweeps != 7 || stats.EdgePixels != -1 || stats.CenterlinePixels != 1 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestExtractorAcceleratorFallback(t *testing.T) {
	mock := &mockAccelerator{name: "declines"}
	ex := NewExtractor(WithAccelerator(mock))
	defer ex.Close()

	mask, stats, err := ex.ProcessWithStats(gridFunc(7, 7, func(int, int) int32 { return 2 }))
	if err != nil {
		t.Fatal(err)
	}
	if mock.calls != 1 {
		t.Errorf("accelerator calls = %d, want 1", mock.calls)
	}
	if stats.Backend != "cpu" {
		t.Errorf("Backend = %q, want cpu", stats.Backend)
	}
	if mask.Count() != 1 || !mask.At(3, 3) {
		t.Errorf("mask =\n%s", mask)
	}
}

func TestExtractorAcceleratorErrors(t *testing.T) {
	errLost := errors.New("device lost")
	tests := []struct {
		name    string
		extract func(*PaddedGrid, int32) (*AcceleratorResult, error)
		want    error
		wantMsg string
	}{
		{
			name: "device error",
			extract: func(*PaddedGrid, int32) (*AcceleratorResult, error) {
				return nil, errLost
			},
			want:    errLost,
			wantMsg: "centerline: failing: device lost",
		},
		{
			name: "short result",
			extract: func(*PaddedGrid, int32) (*AcceleratorResult, error) {
				return &AcceleratorResult{Maxima: make([]bool, 3)}, nil
			},
			want: errResultShape,
		},
		{
			name: "nil result",
			extract: func(*PaddedGrid, int32) (*AcceleratorResult, error) {
				return nil, nil
			},
			want: errResultShape,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ex := NewExtractor(WithAccelerator(&mockAccelerator{name: "failing", extract: tt.extract}))
			defer ex.Close()

			mask, err := ex.Process(gridFunc(5, 5, func(int, int) int32 { return 1 }))
			if !errors.Is(err, tt.want) {
				t.Fatalf("Process() error = %v, want %v", err, tt.want)
			}
			if mask != nil {
				t.Error("partial mask returned")
			}
			if !strings.Contains(err.Error(), "failing") {
				t.Errorf("error %q does not name the accelerator", err)
			}
			if tt.wantMsg != "" && err.Error() != tt.wantMsg {
				t.Errorf("Process() error = %q, want %q", err, tt.wantMsg)
			}
		})
	}
}

func TestExtractorUsesRegisteredAccelerator(t *testing.T) {
	t.Cleanup(resetAccelerator)
	resetAccelerator()

	mock := &mockAccelerator{name: "registered"}
	if err := RegisterAccelerator(mock); err != nil {
		t.Fatal(err)
	}

	g := gridFunc(3, 3, func(int, int) int32 { return 1 })

	ex := NewExtractor()
	defer ex.Close()
	if _, err := ex.Process(g); err != nil {
		t.Fatal(err)
	}
	if mock.calls != 1 {
		t.Errorf("registered accelerator calls = %d, want 1", mock.calls)
	}

	cpu := NewExtractor(WithCPUOnly())
	defer cpu.Close()
	if _, err := cpu.Process(g); err != nil {
		t.Fatal(err)
	}
	if mock.calls != 1 {
		t.Errorf("WithCPUOnly still called the accelerator (%d calls)", mock.calls)
	}
}

func TestExtractorConcurrentProcess(t *testing.T) {
	ex := NewExtractor(WithCPUOnly(), WithWorkers(4))
	defer ex.Close()

	g := stripedGrid(64, 48)
	want, err := ex.Process(g)
	if err != nil {
		t.Fatal(err)
	}

	errs := make(chan error, 8)
	for range 8 {
		go func() {
			m, err := ex.Process(g)
			if err == nil && m.String() != want.String() {
				err = errors.New("concurrent result differs")
			}
			errs <- err
		}()
	}
	for range 8 {
		if err := <-errs; err != nil {
			t.Error(err)
		}
	}
}

func BenchmarkProcess(b *testing.B) {
	g := stripedGrid(640, 480)
	ex := NewExtractor(WithCPUOnly())
	defer ex.Close()

	b.ReportAllocs()
	for b.Loop() {
		if _, err := ex.Process(g); err != nil {
			b.Fatal(err)
		}
	}
}
