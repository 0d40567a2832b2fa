//go:build !nogpu

package gpu

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
	"unsafe"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/centerline"

	// Import Vulkan backend so it registers via init().
	_ "github.com/gogpu/wgpu/hal/vulkan"
)

// GPU errors.
var (
	// ErrNotInitialized is returned by operations that need a device before
	// one is available.
	ErrNotInitialized = errors.New("centerline-gpu: device not initialized")

	// ErrDeviceTimeout is returned when a submission does not complete
	// within the submission timeout.
	ErrDeviceTimeout = errors.New("centerline-gpu: device wait timed out")
)

const (
	// DefaultFenceTimeout bounds every wait for the device.
	DefaultFenceTimeout = 5 * time.Second

	// maxGridPixels keeps the gradient buffer (8 bytes per pixel) within the
	// default 128 MiB storage binding limit.
	maxGridPixels = 1 << 24

	workgroupSize = 8
)

// Accelerator runs the centerline pipeline on a wgpu/hal device.
// It implements centerline.Accelerator and centerline.DeviceProviderAware.
//
// Extract calls are serialized; the device is used by one call at a time.
type Accelerator struct {
	mu sync.Mutex

	instance hal.Instance
	device   hal.Device
	queue    hal.Queue

	kernels     *KernelCache
	ownsKernels bool
	timeout     time.Duration

	ready          bool
	externalDevice bool // shared device: don't destroy on Close
}

var (
	_ centerline.Accelerator         = (*Accelerator)(nil)
	_ centerline.DeviceProviderAware = (*Accelerator)(nil)
)

// Option configures an Accelerator.
type Option func(*Accelerator)

// WithKernelCache makes the accelerator compile into c instead of a private
// cache of DefaultKernelCacheCapacity. A shared cache belongs to the caller:
// Close only drops the kernels of a device the accelerator destroys, and the
// caller closes c when every accelerator using it is gone.
func WithKernelCache(c *KernelCache) Option {
	return func(a *Accelerator) {
		if c != nil {
			a.kernels = c
		}
	}
}

// WithFenceTimeout sets the maximum wait for one submission.
func WithFenceTimeout(d time.Duration) Option {
	return func(a *Accelerator) {
		if d > 0 {
			a.timeout = d
		}
	}
}

// New creates an Accelerator. No device is acquired until Init or
// SetDeviceProvider.
func New(opts ...Option) *Accelerator {
	a := &Accelerator{timeout: DefaultFenceTimeout}
	for _, opt := range opts {
		opt(a)
	}
	if a.kernels == nil {
		a.kernels = NewKernelCache(DefaultKernelCacheCapacity)
		a.ownsKernels = true
	}
	return a
}

// Name returns "wgpu".
func (a *Accelerator) Name() string { return "wgpu" }

// Init opens a Vulkan device. A missing device is not an error: the
// accelerator stays registered and declines work until SetDeviceProvider
// supplies one.
func (a *Accelerator) Init() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.ready {
		return nil
	}
	if err := a.initDevice(); err != nil {
		slogger().Warn("centerline-gpu: no device, using CPU", "err", err)
	}
	return nil
}

// Ready reports whether a device is available.
func (a *Accelerator) Ready() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.ready
}

// KernelCache returns the cache the accelerator compiles into.
func (a *Accelerator) KernelCache() *KernelCache {
	return a.kernels
}

// SetLogger receives the logger from centerline.SetLogger.
func (a *Accelerator) SetLogger(l *slog.Logger) {
	setLogger(l)
}

// Close releases cached kernels and, unless it is shared, the device.
// Close is idempotent.
func (a *Accelerator) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.releaseDevice()
}

// releaseDevice drops kernels and the device. Caller must hold a.mu.
func (a *Accelerator) releaseDevice() {
	switch {
	case a.ownsKernels:
		a.kernels.Close()
	case a.device != nil && !a.externalDevice:
		a.kernels.purge(a.device)
	}
	if !a.externalDevice {
		if a.device != nil {
			a.device.Destroy()
		}
		if a.instance != nil {
			a.instance.Destroy()
		}
	}
	a.device = nil
	a.queue = nil
	a.instance = nil
	a.ready = false
	a.externalDevice = false
}

// SetDeviceProvider switches the accelerator to a device owned by the host
// application (e.g., gogpu). The provider must implement HalDevice() any
// and HalQueue() any returning hal.Device and hal.Queue.
func (a *Accelerator) SetDeviceProvider(provider any) error {
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return fmt.Errorf("centerline-gpu: provider does not expose HAL types")
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return fmt.Errorf("centerline-gpu: provider HalDevice is not hal.Device")
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return fmt.Errorf("centerline-gpu: provider HalQueue is not hal.Queue")
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	// Kernels belong to the old device.
	a.releaseDevice()
	a.device = device
	a.queue = queue
	a.externalDevice = true
	a.ready = true
	slogger().Info("centerline-gpu: using shared device")
	return nil
}

func (a *Accelerator) initDevice() error {
	backend, ok := hal.GetBackend(gputypes.BackendVulkan)
	if !ok {
		return fmt.Errorf("vulkan backend not available")
	}
	instance, err := backend.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return fmt.Errorf("create instance: %w", err)
	}
	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return fmt.Errorf("no GPU adapters found")
	}
	selected := &adapters[0]
	for i := range adapters {
		if adapters[i].Info.DeviceType == gputypes.DeviceTypeDiscreteGPU {
			selected = &adapters[i]
			break
		}
		if adapters[i].Info.DeviceType == gputypes.DeviceTypeIntegratedGPU {
			selected = &adapters[i]
		}
	}
	openDev, err := selected.Adapter.Open(gputypes.Features(0), gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		return fmt.Errorf("open device: %w", err)
	}
	a.instance = instance
	a.device = openDev.Device
	a.queue = openDev.Queue
	a.ready = true
	slogger().Info("centerline-gpu: device initialized", "adapter", selected.Info.Name)
	return nil
}

// Extract runs the four stages on the device. It returns
// centerline.ErrFallbackToCPU when no device is available or the grid
// exceeds device limits.
func (a *Accelerator) Extract(grid *centerline.PaddedGrid, _ int32) (*centerline.AcceleratorResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.ready {
		return nil, centerline.ErrFallbackToCPU
	}
	if grid.Width*grid.Height > maxGridPixels {
		slogger().Debug("centerline-gpu: grid exceeds device limits",
			"width", grid.Width, "height", grid.Height)
		return nil, centerline.ErrFallbackToCPU
	}

	k, err := a.kernels.acquire(a.device, kernelParams(grid.Width, grid.Height))
	if err != nil {
		return nil, err
	}
	defer a.kernels.release(k)
	return a.run(k, grid)
}

// Warmup compiles the kernels for a width×height input grid ahead of the
// first Extract.
func (a *Accelerator) Warmup(width, height int) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.ready {
		return ErrNotInitialized
	}
	k, err := a.kernels.acquire(a.device, kernelParams(width+2, height+2))
	if err != nil {
		return err
	}
	a.kernels.release(k)
	return nil
}

// kernelParams returns the shader constants for a padded grid size.
func kernelParams(paddedWidth, paddedHeight int) shaderParams {
	return shaderParams{
		Width:    paddedWidth,
		Height:   paddedHeight,
		Far:      centerline.InitialDistance(paddedWidth, paddedHeight),
		Diagonal: centerline.DiagonalStep,
		Flat:     centerline.FlatGradient,
	}
}

// run executes one frame with kernel set k. Caller must hold a.mu.
func (a *Accelerator) run(k *kernel, grid *centerline.PaddedGrid) (*centerline.AcceleratorResult, error) {
	start := time.Now()
	fb, err := newFrameBuffers(a.device, len(grid.Classes))
	if err != nil {
		return nil, err
	}
	defer fb.destroy()

	bg, err := fb.bind(k)
	if err != nil {
		return nil, err
	}
	defer bg.destroy()

	if err := a.queue.WriteBuffer(fb.classes, 0, int32Bytes(grid.Classes)); err != nil {
		return nil, fmt.Errorf("upload classes: %w", err)
	}
	if err := a.queue.WriteBuffer(fb.counters, 0, make([]byte, countersSize)); err != nil {
		return nil, fmt.Errorf("clear counters: %w", err)
	}

	wx := uint32((grid.Width + workgroupSize - 1) / workgroupSize)  //nolint:gosec // bounded by maxGridPixels
	wy := uint32((grid.Height + workgroupSize - 1) / workgroupSize) //nolint:gosec // bounded by maxGridPixels
	distSize := 4 * fb.pixels

	// Edge detection seeds dist[0]; dist[1] starts as a copy so both
	// buffers hold the fixed ring and edge values.
	err = a.submit("centerline_edges", func(enc hal.CommandEncoder) {
		dispatch(enc, k, stageEdges, bg.edges, wx, wy)
		enc.CopyBufferToBuffer(fb.dist[0], fb.dist[1], []hal.BufferCopy{{SrcOffset: 0, DstOffset: 0, Size: distSize}})
		enc.CopyBufferToBuffer(fb.counters, fb.countersStaging, []hal.BufferCopy{{SrcOffset: 0, DstOffset: 0, Size: countersSize}})
	})
	if err != nil {
		return nil, err
	}
	_, edgePixels, err := a.readCounters(fb)
	if err != nil {
		return nil, err
	}

	cur, sweeps := 0, 0
	clearFlag := make([]byte, 4)
	for {
		sweeps++
		if err := a.queue.WriteBuffer(fb.counters, 0, clearFlag); err != nil {
			return nil, fmt.Errorf("sweep %d: clear flag: %w", sweeps, err)
		}
		src := cur
		err = a.submit("centerline_sweep", func(enc hal.CommandEncoder) {
			dispatch(enc, k, stageRelax, bg.relax[src], wx, wy)
			enc.CopyBufferToBuffer(fb.counters, fb.countersStaging, []hal.BufferCopy{{SrcOffset: 0, DstOffset: 0, Size: countersSize}})
		})
		if err != nil {
			return nil, fmt.Errorf("sweep %d: %w", sweeps, err)
		}
		changed, _, err := a.readCounters(fb)
		if err != nil {
			return nil, fmt.Errorf("sweep %d: %w", sweeps, err)
		}
		cur = 1 - cur
		if !changed {
			break
		}
	}

	err = a.submit("centerline_ridge", func(enc hal.CommandEncoder) {
		dispatch(enc, k, stageConvolve, bg.convolve[cur], wx, wy)
		dispatch(enc, k, stageSuppress, bg.suppress[cur], wx, wy)
		enc.CopyBufferToBuffer(fb.maxima, fb.maximaStaging, []hal.BufferCopy{{SrcOffset: 0, DstOffset: 0, Size: 4 * fb.pixels}})
	})
	if err != nil {
		return nil, err
	}
	raw := make([]byte, 4*fb.pixels)
	if err := a.readBuffer(fb.maximaStaging, raw); err != nil {
		return nil, fmt.Errorf("read maxima: %w", err)
	}

	slogger().Debug("centerline-gpu: extracted",
		"width", grid.Width, "height", grid.Height,
		"sweeps", sweeps, "edge_pixels", edgePixels,
		"elapsed", time.Since(start))
	return &centerline.AcceleratorResult{
		Maxima:     maskFromBytes(raw),
		Sweeps:     sweeps,
		EdgePixels: edgePixels,
	}, nil
}

// dispatch records one compute pass of stage s over the padded grid.
func dispatch(enc hal.CommandEncoder, k *kernel, s stage, bg hal.BindGroup, wx, wy uint32) {
	pass := enc.BeginComputePass(&hal.ComputePassDescriptor{Label: s.String()})
	pass.SetPipeline(k.stages[s].pipeline)
	pass.SetBindGroup(0, bg, nil)
	pass.Dispatch(wx, wy, 1)
	pass.End()
}

// submit encodes one command buffer, submits it and waits for completion.
// Caller must hold a.mu.
func (a *Accelerator) submit(label string, encode func(hal.CommandEncoder)) error {
	encoder, err := a.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: label})
	if err != nil {
		return fmt.Errorf("%s: create command encoder: %w", label, err)
	}
	if err := encoder.BeginEncoding(label); err != nil {
		return fmt.Errorf("%s: begin encoding: %w", label, err)
	}
	encode(encoder)
	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		return fmt.Errorf("%s: end encoding: %w", label, err)
	}

	index, err := a.queue.Submit([]hal.CommandBuffer{cmdBuf})
	if err != nil {
		a.device.FreeCommandBuffer(cmdBuf)
		return fmt.Errorf("%s: submit: %w", label, err)
	}
	if err := a.wait(index); err != nil {
		// The device may still be executing cmdBuf; leak it rather than
		// free it under the GPU.
		return fmt.Errorf("%s: %w", label, err)
	}
	a.device.FreeCommandBuffer(cmdBuf)
	return nil
}

// pollInterval is the sleep between completion polls in wait.
const pollInterval = 50 * time.Microsecond

// wait blocks until the queue has completed submission index or the
// timeout expires.
func (a *Accelerator) wait(index uint64) error {
	deadline := time.Now().Add(a.timeout)
	for a.queue.PollCompleted() < index {
		if time.Now().After(deadline) {
			return fmt.Errorf("%w after %v", ErrDeviceTimeout, a.timeout)
		}
		time.Sleep(pollInterval)
	}
	return nil
}

// readBuffer copies len(dst) bytes from the start of a mappable staging
// buffer.
func (a *Accelerator) readBuffer(buf hal.Buffer, dst []byte) error {
	m, err := a.device.MapBuffer(buf, 0, uint64(len(dst)))
	if err != nil {
		return err
	}
	copy(dst, unsafe.Slice((*byte)(m.Ptr), len(dst)))
	return a.device.UnmapBuffer(buf)
}

// readCounters reads back the changed flag and the edge pixel count.
func (a *Accelerator) readCounters(fb *frameBuffers) (changed bool, edgePixels int, err error) {
	raw := make([]byte, countersSize)
	if err := a.readBuffer(fb.countersStaging, raw); err != nil {
		return false, 0, fmt.Errorf("read counters: %w", err)
	}
	return binary.LittleEndian.Uint32(raw[0:]) != 0, int(binary.LittleEndian.Uint32(raw[4:])), nil
}
