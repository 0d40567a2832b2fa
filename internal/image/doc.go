// Package image converts between raster files and centerline grids.
//
// Label images are read as PNG, TIFF or BMP. Grayscale pixels use their
// intensity as the class, paletted pixels their palette index and colour
// pixels the packed 0xRRGGBB value. Masks are written as 8-bit grayscale
// PNG or TIFF, and OverlayMask renders a false-colour preview for
// inspection.
package image
