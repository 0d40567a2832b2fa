// Package centerline extracts single-pixel-wide stripe centerlines from a
// class-label image.
//
// # Overview
//
// Structured-light scanners project stripe patterns and decode, per camera
// pixel, the identifier of the stripe the pixel belongs to. The centerlines
// of those stripes are the features later triangulated into depth.
// centerline computes them in four stages:
//
//  1. Padding: the H×W grid is embedded in a one-pixel ring of NoClass.
//  2. Edges: pixels whose 4-neighbourhood contains another label get distance 0.
//  3. Distance: a Jacobi relaxation spreads distance-to-boundary inside each
//     class until a sweep changes nothing.
//  4. Ridge: a Sobel gradient of the distance field drives non-maximum
//     suppression; surviving pixels form the centerline.
//
// # Quick Start
//
//	grid, err := centerline.ClassGridFromRows(rows)
//	if err != nil {
//	    return err
//	}
//	mask, err := centerline.Process(grid, centerline.NoClass)
//	if err != nil {
//	    return err
//	}
//	for y := 0; y < mask.Height; y++ {
//	    for x := 0; x < mask.Width; x++ {
//	        if mask.At(x, y) {
//	            // (x, y) is a centerline pixel
//	        }
//	    }
//	}
//
// # Executors
//
// Stages run on the CPU through a worker pool by default. Importing the gpu
// package registers a WebGPU compute accelerator:
//
//	import _ "github.com/gogpu/centerline/gpu"
//
// When the accelerator cannot serve a grid it returns ErrFallbackToCPU and the
// Extractor runs the CPU stages instead. Any other accelerator error is
// returned to the caller wrapped as "centerline: <name>: <err>".
//
// # Coordinate System
//
// Grids are row-major with the origin at the top-left; x grows right and y
// grows down. Masks use the same indexing as the grid they were computed from.
package centerline
