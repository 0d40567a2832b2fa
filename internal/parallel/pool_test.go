package parallel

import (
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
)

// =============================================================================
// WorkerPool Tests
// =============================================================================

func TestWorkerPool_Create(t *testing.T) {
	pool := NewWorkerPool(4)
	defer pool.Close()

	if pool.Workers() != 4 {
		t.Errorf("Workers() = %d, want 4", pool.Workers())
	}
	if !pool.IsRunning() {
		t.Error("pool should be running after creation")
	}
}

func TestWorkerPool_CreateDefaultWorkers(t *testing.T) {
	for _, n := range []int{0, -3} {
		pool := NewWorkerPool(n)
		if got, want := pool.Workers(), runtime.GOMAXPROCS(0); got != want {
			t.Errorf("NewWorkerPool(%d).Workers() = %d, want %d", n, got, want)
		}
		pool.Close()
	}
}

func TestWorkerPool_ExecuteAll(t *testing.T) {
	pool := NewWorkerPool(4)
	defer pool.Close()

	var counter atomic.Int64
	work := make([]func(), 100)
	for i := range work {
		work[i] = func() { counter.Add(1) }
	}

	pool.ExecuteAll(work)

	if counter.Load() != 100 {
		t.Errorf("counter = %d, want 100", counter.Load())
	}
}

func TestWorkerPool_ExecuteAll_AllIndices(t *testing.T) {
	pool := NewWorkerPool(3)
	defer pool.Close()

	var mu sync.Mutex
	seen := make(map[int]bool)
	work := make([]func(), 25)
	for i := range work {
		work[i] = func() {
			mu.Lock()
			seen[i] = true
			mu.Unlock()
		}
	}

	pool.ExecuteAll(work)

	for i := range work {
		if !seen[i] {
			t.Errorf("missing index %d", i)
		}
	}
}

func TestWorkerPool_ExecuteAll_Empty(t *testing.T) {
	pool := NewWorkerPool(2)
	defer pool.Close()

	pool.ExecuteAll(nil)
	pool.ExecuteAll([]func(){})
}

func TestWorkerPool_ExecuteAllAfterClose(t *testing.T) {
	pool := NewWorkerPool(2)
	pool.Close()

	var counter atomic.Int64
	pool.ExecuteAll([]func(){
		func() { counter.Add(1) },
		func() { counter.Add(1) },
	})

	if counter.Load() != 2 {
		t.Errorf("counter = %d, want 2 (closed pool runs work inline)", counter.Load())
	}
}

func TestWorkerPool_CloseTwice(t *testing.T) {
	pool := NewWorkerPool(2)
	pool.Close()
	pool.Close()

	if pool.IsRunning() {
		t.Error("pool should not be running after Close")
	}
}

// =============================================================================
// Row Band Tests
// =============================================================================

func TestSplitRows(t *testing.T) {
	tests := []struct {
		name      string
		y0, y1, n int
		wantBands int
	}{
		{"empty", 5, 5, 4, 0},
		{"inverted", 5, 2, 4, 0},
		{"small grid single band", 1, 11, 8, 1},
		{"exact split", 0, 64, 4, 4},
		{"capped by min band", 0, 40, 8, 2},
		{"uneven", 1, 101, 3, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bands := SplitRows(tt.y0, tt.y1, tt.n)
			if len(bands) != tt.wantBands {
				t.Fatalf("len(bands) = %d, want %d", len(bands), tt.wantBands)
			}
			if len(bands) == 0 {
				return
			}
			if bands[0].Y0 != tt.y0 {
				t.Errorf("first band starts at %d, want %d", bands[0].Y0, tt.y0)
			}
			if last := bands[len(bands)-1]; last.Y1 != tt.y1 {
				t.Errorf("last band ends at %d, want %d", last.Y1, tt.y1)
			}
			for i := 1; i < len(bands); i++ {
				if bands[i].Y0 != bands[i-1].Y1 {
					t.Errorf("band %d starts at %d, previous ends at %d", i, bands[i].Y0, bands[i-1].Y1)
				}
				if d := bands[i].Rows() - bands[0].Rows(); d > 1 || d < -1 {
					t.Errorf("band %d has %d rows, band 0 has %d", i, bands[i].Rows(), bands[0].Rows())
				}
			}
		})
	}
}

func TestForRows_CoversEveryRowOnce(t *testing.T) {
	pool := NewWorkerPool(4)
	defer pool.Close()

	const y0, y1 = 1, 301
	hits := make([]int32, y1)
	pool.ForRows(y0, y1, func(b Band) {
		for y := b.Y0; y < b.Y1; y++ {
			atomic.AddInt32(&hits[y], 1)
		}
	})

	for y := range hits {
		want := int32(1)
		if y < y0 {
			want = 0
		}
		if hits[y] != want {
			t.Errorf("row %d visited %d times, want %d", y, hits[y], want)
		}
	}
}

func BenchmarkForRows(b *testing.B) {
	pool := NewWorkerPool(0)
	defer pool.Close()

	buf := make([]float32, 1024*1024)
	b.ResetTimer()
	for range b.N {
		pool.ForRows(0, 1024, func(band Band) {
			for y := band.Y0; y < band.Y1; y++ {
				row := buf[y*1024 : (y+1)*1024]
				for x := range row {
					row[x] += 1
				}
			}
		})
	}
}
