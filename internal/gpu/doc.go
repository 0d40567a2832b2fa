//go:build !nogpu

// Package gpu runs the centerline pipeline as wgpu/hal compute shaders.
//
// The four stages map to four WGSL kernels:
//
//	detect_edge_pixels -> nearest_edge_iter (repeated) -> convolve -> non_maximum_suppression
//
// Kernels are specialised per padded grid size and compiled WGSL -> SPIR-V
// with naga. Compiled pipelines live in a KernelCache keyed by size, so a
// stream of equally sized frames compiles once.
//
// Distance propagation ping-pongs between two storage buffers. After every
// sweep the changed flag is copied to a staging buffer and read back; the
// loop ends on the first sweep that changes nothing.
//
// The accelerator is registered by the public centerline/gpu package.
// When no device is available it reports centerline.ErrFallbackToCPU and the
// CPU stages run instead.
package gpu
