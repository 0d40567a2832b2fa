//go:build !nogpu

package gpu

import (
	_ "embed"
	"fmt"
	"strconv"
	"strings"

	"github.com/gogpu/naga"
)

//go:embed shaders/detect_edge_pixels.wgsl
var detectEdgesSource string

//go:embed shaders/nearest_edge_iter.wgsl
var nearestEdgeSource string

//go:embed shaders/convolve.wgsl
var convolveSource string

//go:embed shaders/non_maximum_suppression.wgsl
var suppressSource string

// shaderParams are the compile-time constants of one kernel set.
type shaderParams struct {
	Width, Height int     // padded grid size
	Far           float32 // initial distance of non-edge pixels
	Diagonal      float32 // diagonal step cost
	Flat          float32 // gradient length below which a pixel is flat
}

// specialize substitutes the {{NAME}} placeholders of a WGSL template.
func specialize(src string, p shaderParams) string {
	return strings.NewReplacer(
		"{{WIDTH}}", strconv.Itoa(p.Width),
		"{{HEIGHT}}", strconv.Itoa(p.Height),
		"{{FAR}}", wgslFloat(p.Far),
		"{{DIAG}}", wgslFloat(p.Diagonal),
		"{{FLAT}}", wgslFloat(p.Flat),
	).Replace(src)
}

// wgslFloat formats f as a WGSL f32 literal that round-trips exactly.
func wgslFloat(f float32) string {
	s := strconv.FormatFloat(float64(f), 'g', -1, 32)
	if !strings.ContainsAny(s, ".e") {
		s += ".0"
	}
	return s
}

// compileSPIRV compiles WGSL source to SPIR-V words.
func compileSPIRV(label, wgsl string) ([]uint32, error) {
	spirvBytes, err := naga.Compile(wgsl)
	if err != nil {
		return nil, fmt.Errorf("compile %s: %w", label, err)
	}
	if len(spirvBytes)%4 != 0 {
		return nil, fmt.Errorf("compile %s: SPIR-V length %d is not a multiple of 4", label, len(spirvBytes))
	}

	// SPIR-V is little-endian 32-bit words.
	code := make([]uint32, len(spirvBytes)/4)
	for i := range code {
		code[i] = uint32(spirvBytes[i*4]) |
			uint32(spirvBytes[i*4+1])<<8 |
			uint32(spirvBytes[i*4+2])<<16 |
			uint32(spirvBytes[i*4+3])<<24
	}
	return code, nil
}
