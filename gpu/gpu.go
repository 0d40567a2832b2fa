//go:build !nogpu

// Package gpu registers the wgpu compute accelerator for centerline
// extraction.
//
// Importing this package runs the pipeline on the GPU when a Vulkan device
// is available. If none is found the accelerator stays registered but
// declines work, and extraction falls back to the CPU stages.
//
// Usage:
//
//	import _ "github.com/gogpu/centerline/gpu" // enable GPU extraction
//
// To share a device with a gogpu application:
//
//	gpu.SetDeviceProvider(app.DeviceProvider())
package gpu

import (
	"github.com/gogpu/gpucontext"

	"github.com/gogpu/centerline"
	gpuimpl "github.com/gogpu/centerline/internal/gpu"
)

// Accelerator runs the centerline pipeline as compute shaders.
type Accelerator = gpuimpl.Accelerator

// Option configures an Accelerator.
type Option = gpuimpl.Option

// KernelCache holds compiled kernels keyed by grid size.
type KernelCache = gpuimpl.KernelCache

// KernelCacheStats reports kernel cache activity.
type KernelCacheStats = gpuimpl.KernelCacheStats

// Errors returned by the accelerator.
var (
	ErrNotInitialized = gpuimpl.ErrNotInitialized
	ErrDeviceTimeout  = gpuimpl.ErrDeviceTimeout
)

// New creates an accelerator for use with centerline.WithAccelerator.
// Call Init or SetDeviceProvider before use and Close when done.
func New(opts ...Option) *Accelerator { return gpuimpl.New(opts...) }

// NewKernelCache creates a kernel cache holding up to capacity kernel sets.
func NewKernelCache(capacity int) *KernelCache { return gpuimpl.NewKernelCache(capacity) }

// WithKernelCache shares c between accelerators on the same device.
func WithKernelCache(c *KernelCache) Option { return gpuimpl.WithKernelCache(c) }

func init() {
	if err := centerline.RegisterAccelerator(gpuimpl.New()); err != nil {
		centerline.Logger().Warn("GPU accelerator not available", "err", err)
	}
}

// SetDeviceProvider configures the registered accelerator to use a shared
// device. The provider must also expose HalDevice() and HalQueue() for
// direct HAL access, as gogpu's provider does.
func SetDeviceProvider(provider gpucontext.DeviceProvider) error {
	return centerline.SetAcceleratorDeviceProvider(provider)
}
