package image

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	_ "golang.org/x/image/bmp" // register BMP decoder
	"golang.org/x/image/tiff"

	"github.com/gogpu/centerline"
)

// I/O errors.
var (
	// ErrUnsupportedFormat is returned when the file format is not supported.
	ErrUnsupportedFormat = errors.New("image: unsupported format")

	// ErrEmptyData is returned when image data is empty.
	ErrEmptyData = errors.New("image: empty data")
)

// Format is an output file format.
type Format int

const (
	FormatPNG Format = iota
	FormatTIFF
)

// String returns the format name.
func (f Format) String() string {
	switch f {
	case FormatPNG:
		return "png"
	case FormatTIFF:
		return "tiff"
	default:
		return fmt.Sprintf("Format(%d)", int(f))
	}
}

// FormatFromPath picks the output format by file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return FormatPNG, nil
	case ".tif", ".tiff":
		return FormatTIFF, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(path))
	}
}

// LoadLabels reads a label image from the given file path.
func LoadLabels(path string) (*centerline.ClassGrid, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("image: open file: %w", err)
	}
	defer func() { _ = f.Close() }()

	return DecodeLabels(f)
}

// DecodeLabels decodes a PNG, TIFF or BMP label image, detecting the format
// from the content.
func DecodeLabels(r io.Reader) (*centerline.ClassGrid, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		if errors.Is(err, image.ErrFormat) {
			return nil, ErrUnsupportedFormat
		}
		return nil, fmt.Errorf("image: decode: %w", err)
	}
	return LabelsFromImage(img)
}

// DecodeLabelsBytes decodes a label image held in memory.
func DecodeLabelsBytes(data []byte) (*centerline.ClassGrid, error) {
	if len(data) == 0 {
		return nil, ErrEmptyData
	}
	return DecodeLabels(bytes.NewReader(data))
}

// LabelsFromImage converts a decoded image to a class grid.
func LabelsFromImage(img image.Image) (*centerline.ClassGrid, error) {
	b := img.Bounds()
	g, err := centerline.NewClassGrid(b.Dx(), b.Dy())
	if err != nil {
		return nil, fmt.Errorf("image: %w", err)
	}

	switch src := img.(type) {
	case *image.Gray:
		for y := range g.Height {
			row := src.Pix[y*src.Stride : y*src.Stride+g.Width]
			for x, v := range row {
				g.Set(x, y, int32(v))
			}
		}
	case *image.Gray16:
		for y := range g.Height {
			for x := range g.Width {
				g.Set(x, y, int32(src.Gray16At(b.Min.X+x, b.Min.Y+y).Y))
			}
		}
	case *image.Paletted:
		for y := range g.Height {
			row := src.Pix[y*src.Stride : y*src.Stride+g.Width]
			for x, v := range row {
				g.Set(x, y, int32(v))
			}
		}
	default:
		for y := range g.Height {
			for x := range g.Width {
				c := color.NRGBAModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA)
				g.Set(x, y, int32(c.R)<<16|int32(c.G)<<8|int32(c.B))
			}
		}
	}
	return g, nil
}

// MaskImage renders a mask as 8-bit grayscale, 255 for centerline pixels.
func MaskImage(m *centerline.Mask) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, m.Width, m.Height))
	for i, set := range m.Data {
		if set {
			img.Pix[i] = 0xFF
		}
	}
	return img
}

// SaveMask writes a mask to path, choosing the format by extension.
func SaveMask(path string, m *centerline.Mask) error {
	format, err := FormatFromPath(path)
	if err != nil {
		return err
	}

	f, err := os.Create(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("image: create file: %w", err)
	}
	if err := EncodeMask(f, m, format); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("image: close file: %w", err)
	}
	return nil
}

// EncodeMask writes a mask in the given format.
func EncodeMask(w io.Writer, m *centerline.Mask, format Format) error {
	return encode(w, MaskImage(m), format)
}

// SavePreview writes an overlay preview to path, choosing the format by
// extension.
func SavePreview(path string, img image.Image) error {
	format, err := FormatFromPath(path)
	if err != nil {
		return err
	}

	f, err := os.Create(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("image: create file: %w", err)
	}
	if err := encode(f, img, format); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("image: close file: %w", err)
	}
	return nil
}

func encode(w io.Writer, img image.Image, format Format) error {
	var err error
	switch format {
	case FormatPNG:
		err = png.Encode(w, img)
	case FormatTIFF:
		err = tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate})
	default:
		return fmt.Errorf("%w: %v", ErrUnsupportedFormat, format)
	}
	if err != nil {
		return fmt.Errorf("image: encode %v: %w", format, err)
	}
	return nil
}
