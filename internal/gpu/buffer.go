//go:build !nogpu

package gpu

import (
	"encoding/binary"
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// countersSize is the byte size of the counters buffer: the changed flag
// followed by the edge pixel count.
const countersSize = 8

// frameBuffers are the device buffers of one Extract call.
type frameBuffers struct {
	device hal.Device
	pixels uint64

	classes  hal.Buffer
	edges    hal.Buffer
	dist     [2]hal.Buffer
	grad     hal.Buffer
	maxima   hal.Buffer
	counters hal.Buffer

	countersStaging hal.Buffer
	maximaStaging   hal.Buffer
}

type bufferSpec struct {
	label  string
	size   uint64
	usage  gputypes.BufferUsage
	target *hal.Buffer
}

func newFrameBuffers(device hal.Device, pixels int) (*frameBuffers, error) {
	fb := &frameBuffers{device: device, pixels: uint64(pixels)} //nolint:gosec // pixel count is positive
	n := fb.pixels

	storage := gputypes.BufferUsageStorage
	staging := gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst
	specs := []bufferSpec{
		{"centerline_classes", 4 * n, storage | gputypes.BufferUsageCopyDst, &fb.classes},
		{"centerline_edges", 4 * n, storage, &fb.edges},
		{"centerline_dist_a", 4 * n, storage | gputypes.BufferUsageCopySrc | gputypes.BufferUsageCopyDst, &fb.dist[0]},
		{"centerline_dist_b", 4 * n, storage | gputypes.BufferUsageCopySrc | gputypes.BufferUsageCopyDst, &fb.dist[1]},
		{"centerline_grad", 8 * n, storage, &fb.grad},
		{"centerline_maxima", 4 * n, storage | gputypes.BufferUsageCopySrc, &fb.maxima},
		{"centerline_counters", countersSize, storage | gputypes.BufferUsageCopySrc | gputypes.BufferUsageCopyDst, &fb.counters},
		{"centerline_counters_staging", countersSize, staging, &fb.countersStaging},
		{"centerline_maxima_staging", 4 * n, staging, &fb.maximaStaging},
	}
	for _, s := range specs {
		buf, err := device.CreateBuffer(&hal.BufferDescriptor{Label: s.label, Size: s.size, Usage: s.usage})
		if err != nil {
			fb.destroy()
			return nil, fmt.Errorf("create %s buffer: %w", s.label, err)
		}
		*s.target = buf
	}
	return fb, nil
}

func (fb *frameBuffers) destroy() {
	for _, buf := range []*hal.Buffer{
		&fb.classes, &fb.edges, &fb.dist[0], &fb.dist[1], &fb.grad,
		&fb.maxima, &fb.counters, &fb.countersStaging, &fb.maximaStaging,
	} {
		if *buf != nil {
			fb.device.DestroyBuffer(*buf)
			*buf = nil
		}
	}
}

// binding is one buffer bound at the next binding slot.
type binding struct {
	buf  hal.Buffer
	size uint64
}

// frameBindings are the bind groups of one Extract call. Index i of the
// per-buffer groups reads dist[i].
type frameBindings struct {
	device   hal.Device
	edges    hal.BindGroup
	relax    [2]hal.BindGroup // dist[i] -> dist[1-i]
	convolve [2]hal.BindGroup
	suppress [2]hal.BindGroup
}

func (fb *frameBuffers) bind(k *kernel) (*frameBindings, error) {
	n := fb.pixels
	classes := binding{fb.classes, 4 * n}
	edges := binding{fb.edges, 4 * n}
	grad := binding{fb.grad, 8 * n}
	maxima := binding{fb.maxima, 4 * n}
	counters := binding{fb.counters, countersSize}
	dist := [2]binding{{fb.dist[0], 4 * n}, {fb.dist[1], 4 * n}}

	b := &frameBindings{device: fb.device}
	var err error
	if b.edges, err = createBindGroup(k, stageEdges, classes, edges, dist[0], counters); err != nil {
		return nil, err
	}
	for i := range 2 {
		if b.relax[i], err = createBindGroup(k, stageRelax, classes, edges, dist[i], dist[1-i], counters); err != nil {
			b.destroy()
			return nil, err
		}
		if b.convolve[i], err = createBindGroup(k, stageConvolve, dist[i], grad); err != nil {
			b.destroy()
			return nil, err
		}
		if b.suppress[i], err = createBindGroup(k, stageSuppress, dist[i], grad, maxima); err != nil {
			b.destroy()
			return nil, err
		}
	}
	return b, nil
}

func createBindGroup(k *kernel, s stage, bindings ...binding) (hal.BindGroup, error) {
	entries := make([]gputypes.BindGroupEntry, len(bindings))
	for i, b := range bindings {
		entries[i] = gputypes.BindGroupEntry{
			Binding:  uint32(i), //nolint:gosec // at most 5 bindings
			Resource: gputypes.BufferBinding{Buffer: b.buf.NativeHandle(), Offset: 0, Size: b.size},
		}
	}
	bg, err := k.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:   s.String() + "_bind",
		Layout:  k.stages[s].bindLayout,
		Entries: entries,
	})
	if err != nil {
		return nil, fmt.Errorf("create %s bind group: %w", s, err)
	}
	return bg, nil
}

func (b *frameBindings) destroy() {
	groups := []*hal.BindGroup{&b.edges}
	for i := range 2 {
		groups = append(groups, &b.relax[i], &b.convolve[i], &b.suppress[i])
	}
	for _, bg := range groups {
		if *bg != nil {
			b.device.DestroyBindGroup(*bg)
			*bg = nil
		}
	}
}

// int32Bytes packs labels little-endian for upload.
func int32Bytes(v []int32) []byte {
	out := make([]byte, 4*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint32(out[i*4:], uint32(x)) //nolint:gosec // bit pattern preserved
	}
	return out
}

// maskFromBytes unpacks a u32-per-pixel readback into booleans.
func maskFromBytes(raw []byte) []bool {
	out := make([]bool, len(raw)/4)
	for i := range out {
		out[i] = binary.LittleEndian.Uint32(raw[i*4:]) != 0
	}
	return out
}
