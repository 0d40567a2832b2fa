package centerline

import (
	"errors"
	"sync"
)

// ErrFallbackToCPU indicates the accelerator cannot serve this grid.
// The Extractor then runs the CPU stages instead.
var ErrFallbackToCPU = errors.New("centerline: falling back to CPU")

// AcceleratorResult is the padded output of an accelerator run.
type AcceleratorResult struct {
	// Maxima is the padded maximum mask, Width*Height of the input PaddedGrid.
	Maxima []bool

	// Sweeps is the number of propagation sweeps, the final unchanged one included.
	Sweeps int

	// EdgePixels is the number of boundary pixels, or -1 if not counted.
	EdgePixels int
}

// Accelerator is an optional device executor for the full pipeline.
//
// Extract receives the padded class grid and the sentinel label and must
// return the padded maximum mask with the same semantics as the CPU stages.
// It returns ErrFallbackToCPU when it cannot serve the grid (not
// initialized, grid beyond device limits); every other error is fatal and
// is returned to the caller of Process wrapped with the accelerator name,
// so errors.Is still matches it.
//
// Implementations are provided by device packages. Opt in via blank import:
//
//	import _ "github.com/gogpu/centerline/gpu"
type Accelerator interface {
	// Name returns the accelerator name (e.g., "wgpu").
	Name() string

	// Init acquires device resources. Called once during registration.
	Init() error

	// Close releases device resources.
	Close()

	// Extract runs edge detection, distance propagation and ridge
	// extraction on the device.
	Extract(grid *PaddedGrid, noClass int32) (*AcceleratorResult, error)
}

// DeviceProviderAware is implemented by accelerators that can share a device
// owned by the host application instead of creating their own.
type DeviceProviderAware interface {
	SetDeviceProvider(provider any) error
}

var (
	accelMu sync.RWMutex
	accel   Accelerator
)

// RegisterAccelerator installs a as the process-wide accelerator.
//
// Init is called first; if it fails, a is not registered and the error is
// returned. A previously registered accelerator is closed.
func RegisterAccelerator(a Accelerator) error {
	if a == nil {
		return errors.New("centerline: accelerator must not be nil")
	}
	if err := a.Init(); err != nil {
		return err
	}
	propagateLogger(a, Logger())

	accelMu.Lock()
	old := accel
	accel = a
	accelMu.Unlock()
	if old != nil && old != a {
		old.Close()
	}
	Logger().Info("centerline: accelerator registered", "name", a.Name())
	return nil
}

// CurrentAccelerator returns the registered accelerator, or nil if none.
func CurrentAccelerator() Accelerator {
	accelMu.RLock()
	a := accel
	accelMu.RUnlock()
	return a
}

// UnregisterAccelerator closes and removes the registered accelerator.
func UnregisterAccelerator() {
	accelMu.Lock()
	old := accel
	accel = nil
	accelMu.Unlock()
	if old != nil {
		old.Close()
	}
}

// SetAcceleratorDeviceProvider passes a device provider to the registered
// accelerator. It is a no-op when no accelerator is registered or the
// accelerator cannot share devices.
func SetAcceleratorDeviceProvider(provider any) error {
	a := CurrentAccelerator()
	if a == nil {
		return nil
	}
	if dpa, ok := a.(DeviceProviderAware); ok {
		return dpa.SetDeviceProvider(provider)
	}
	return nil
}
