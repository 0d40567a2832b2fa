package image

import (
	"image"
	"image/color"

	xdraw "golang.org/x/image/draw"

	"github.com/gogpu/centerline"
)

// CenterlineColor marks mask pixels in overlay previews.
var CenterlineColor = color.NRGBA{R: 0xFF, G: 0x20, B: 0x20, A: 0xFF}

// ClassColor returns the false colour of a class in overlay previews.
// Distinct classes usually get distinct colours; the result is dimmed so
// CenterlineColor stays visible on top.
func ClassColor(class int32) color.NRGBA {
	h := uint32(class) * 2654435761 //nolint:gosec // bit pattern hash
	return color.NRGBA{
		R: 0x20 + uint8(h>>24)/2,
		G: 0x20 + uint8(h>>16)/2,
		B: 0x20 + uint8(h>>8)/2,
		A: 0xFF,
	}
}

// OverlayMask renders the class grid in false colour with the mask drawn on
// top, enlarged by an integer scale factor with nearest-neighbour sampling.
// A scale below 1 is treated as 1. The grid and mask must have equal size.
func OverlayMask(g *centerline.ClassGrid, m *centerline.Mask, scale int) *image.NRGBA {
	if scale < 1 {
		scale = 1
	}

	base := image.NewNRGBA(image.Rect(0, 0, g.Width, g.Height))
	for y := range g.Height {
		for x := range g.Width {
			c := ClassColor(g.At(x, y))
			if m.At(x, y) {
				c = CenterlineColor
			}
			base.SetNRGBA(x, y, c)
		}
	}
	if scale == 1 {
		return base
	}

	dst := image.NewNRGBA(image.Rect(0, 0, g.Width*scale, g.Height*scale))
	xdraw.NearestNeighbor.Scale(dst, dst.Bounds(), base, base.Bounds(), xdraw.Src, nil)
	return dst
}
