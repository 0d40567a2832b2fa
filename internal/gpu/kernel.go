//go:build !nogpu

package gpu

import (
	"fmt"
	"sync"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/centerline/internal/cache"
)

// stage identifies one of the four compute kernels.
type stage int

const (
	stageEdges stage = iota
	stageRelax
	stageConvolve
	stageSuppress
	numStages
)

func (s stage) String() string {
	return stageDescs[s].label
}

const (
	ro = gputypes.BufferBindingTypeReadOnlyStorage
	rw = gputypes.BufferBindingTypeStorage
)

// stageDesc is the source and binding layout of a kernel. Bindings are
// numbered in slice order.
type stageDesc struct {
	label    string
	source   *string
	bindings []gputypes.BufferBindingType
}

var stageDescs = [numStages]stageDesc{
	stageEdges:    {"detect_edge_pixels", &detectEdgesSource, []gputypes.BufferBindingType{ro, rw, rw, rw}},
	stageRelax:    {"nearest_edge_iter", &nearestEdgeSource, []gputypes.BufferBindingType{ro, ro, ro, rw, rw}},
	stageConvolve: {"convolve", &convolveSource, []gputypes.BufferBindingType{ro, rw}},
	stageSuppress: {"non_maximum_suppression", &suppressSource, []gputypes.BufferBindingType{ro, ro, rw}},
}

// kernelKey identifies a kernel set: the device it was compiled on and the
// padded grid size it was specialised for.
type kernelKey struct {
	device        hal.Device
	Width, Height int
}

// computePipeline is one compiled stage.
type computePipeline struct {
	module     hal.ShaderModule
	bindLayout hal.BindGroupLayout
	pipeLayout hal.PipelineLayout
	pipeline   hal.ComputePipeline
}

// kernel is the compiled pipeline set for one padded size.
//
// refs and evicted are guarded by the owning KernelCache's mu. A kernel
// leaves the cache with evicted set; its pipelines are destroyed once refs
// drops to zero.
type kernel struct {
	key    kernelKey
	device hal.Device
	stages [numStages]computePipeline

	refs    int
	evicted bool
}

// compileKernel specialises and compiles all four stages for params.
func compileKernel(device hal.Device, params shaderParams) (*kernel, error) {
	k := &kernel{
		key:    kernelKey{device: device, Width: params.Width, Height: params.Height},
		device: device,
	}
	for s := range numStages {
		if err := k.compileStage(s, params); err != nil {
			k.destroy()
			return nil, err
		}
	}
	return k, nil
}

func (k *kernel) compileStage(s stage, params shaderParams) error {
	desc := stageDescs[s]
	p := &k.stages[s]

	code, err := compileSPIRV(desc.label, specialize(*desc.source, params))
	if err != nil {
		return err
	}
	p.module, err = k.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  desc.label,
		Source: hal.ShaderSource{SPIRV: code},
	})
	if err != nil {
		return fmt.Errorf("create %s shader module: %w", desc.label, err)
	}

	entries := make([]gputypes.BindGroupLayoutEntry, len(desc.bindings))
	for i, typ := range desc.bindings {
		entries[i] = gputypes.BindGroupLayoutEntry{
			Binding:    uint32(i), //nolint:gosec // at most 5 bindings
			Visibility: gputypes.ShaderStageCompute,
			Buffer:     &gputypes.BufferBindingLayout{Type: typ},
		}
	}
	p.bindLayout, err = k.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label:   desc.label + "_bind_layout",
		Entries: entries,
	})
	if err != nil {
		return fmt.Errorf("create %s bind group layout: %w", desc.label, err)
	}

	p.pipeLayout, err = k.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            desc.label + "_pipe_layout",
		BindGroupLayouts: []hal.BindGroupLayout{p.bindLayout},
	})
	if err != nil {
		return fmt.Errorf("create %s pipeline layout: %w", desc.label, err)
	}

	p.pipeline, err = k.device.CreateComputePipeline(&hal.ComputePipelineDescriptor{
		Label:   desc.label + "_pipeline",
		Layout:  p.pipeLayout,
		Compute: hal.ComputeState{Module: p.module, EntryPoint: "main"},
	})
	if err != nil {
		return fmt.Errorf("create %s compute pipeline: %w", desc.label, err)
	}
	return nil
}

// destroy releases every pipeline object created so far.
func (k *kernel) destroy() {
	for i := range k.stages {
		p := &k.stages[i]
		if p.pipeline != nil {
			k.device.DestroyComputePipeline(p.pipeline)
		}
		if p.pipeLayout != nil {
			k.device.DestroyPipelineLayout(p.pipeLayout)
		}
		if p.bindLayout != nil {
			k.device.DestroyBindGroupLayout(p.bindLayout)
		}
		if p.module != nil {
			k.device.DestroyShaderModule(p.module)
		}
		*p = computePipeline{}
	}
}

// DefaultKernelCacheCapacity keeps one kernel set: recompilation happens only
// when the grid size changes.
const DefaultKernelCacheCapacity = 1

// KernelCacheStats reports kernel cache activity.
type KernelCacheStats struct {
	Kernels   int
	Capacity  int
	Hits      uint64
	Misses    uint64
	Evictions uint64
}

// KernelCache holds compiled kernel sets keyed by device and padded grid
// size. It is safe for concurrent use and may be shared by several
// accelerators. Kernels in use by a running Extract survive eviction until
// that Extract finishes.
type KernelCache struct {
	// mu orders every entries call with the reference counts, so the
	// eviction callback always runs with mu held.
	mu      sync.Mutex
	entries *cache.Cache[kernelKey, *kernel]
}

// NewKernelCache creates a cache holding up to capacity kernel sets.
func NewKernelCache(capacity int) *KernelCache {
	c := &KernelCache{}
	c.entries = cache.New(capacity, c.evict)
	return c
}

// evict runs inside c.entries with c.mu held.
func (c *KernelCache) evict(key kernelKey, k *kernel) {
	k.evicted = true
	if k.refs > 0 {
		slogger().Debug("centerline-gpu: kernel evicted while in use",
			"width", key.Width, "height", key.Height, "refs", k.refs)
		return
	}
	slogger().Debug("centerline-gpu: kernel released",
		"width", key.Width, "height", key.Height)
	k.destroy()
}

// acquire returns the kernel set for params on device, compiling it on
// first use. Every successful acquire must be paired with release.
func (c *KernelCache) acquire(device hal.Device, params shaderParams) (*kernel, error) {
	key := kernelKey{device: device, Width: params.Width, Height: params.Height}

	c.mu.Lock()
	defer c.mu.Unlock()
	k, err := c.entries.GetOrCreate(key, func() (*kernel, error) {
		slogger().Debug("centerline-gpu: compiling kernels",
			"width", key.Width, "height", key.Height)
		return compileKernel(device, params)
	})
	if err != nil {
		return nil, err
	}
	k.refs++
	return k, nil
}

// release drops a reference taken by acquire, destroying k if it was
// evicted meanwhile.
func (c *KernelCache) release(k *kernel) {
	c.mu.Lock()
	defer c.mu.Unlock()
	k.refs--
	if k.refs == 0 && k.evicted {
		slogger().Debug("centerline-gpu: kernel released",
			"width", k.key.Width, "height", k.key.Height)
		k.destroy()
	}
}

// purge drops every kernel set compiled on device.
func (c *KernelCache) purge(device hal.Device) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, key := range c.entries.Keys() {
		if key.device == device {
			c.entries.Delete(key)
		}
	}
}

// Len returns the number of cached kernel sets.
func (c *KernelCache) Len() int {
	return c.entries.Len()
}

// Stats returns a snapshot of cache counters.
func (c *KernelCache) Stats() KernelCacheStats {
	s := c.entries.Stats()
	return KernelCacheStats{
		Kernels:   s.Len,
		Capacity:  s.Capacity,
		Hits:      s.Hits,
		Misses:    s.Misses,
		Evictions: s.Evictions,
	}
}

// Close drops every kernel set. Sets still in use are destroyed when their
// Extract finishes. The cache stays usable.
func (c *KernelCache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries.Clear()
}
