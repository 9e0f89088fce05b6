// Package display renders input and reconstruction pairs as PNG images.
//
// Channel 0 is drawn in red and channel 1 in blue, each scaled to [0, 1]
// by its own minimum and maximum over the sample.
package display

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"

	"golang.org/x/image/draw"

	"github.com/born-ml/vae/internal/errs"
	"github.com/born-ml/vae/internal/tensor"
)

// DefaultScale is the upscaling factor of each cell.
const DefaultScale = 4

// gap between cells, in output pixels
const gap = 2

// Bitmap maps a (2, h, w) sample to an RGBA image.
func Bitmap(sample []float32, h, w int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	plane := h * w
	red := normalize(sample[:plane])
	blue := normalize(sample[plane : 2*plane])
	for y := range h {
		for x := range w {
			i := y*w + x
			img.SetRGBA(x, y, color.RGBA{R: level(red[i]), B: level(blue[i]), A: 0xff})
		}
	}
	return img
}

// normalize min-max scales v. A constant plane maps to zeros.
func normalize(v []float32) []float32 {
	lo, hi := v[0], v[0]
	for _, x := range v {
		lo, hi = min(lo, x), max(hi, x)
	}
	out := make([]float32, len(v))
	if hi == lo {
		return out
	}
	for i, x := range v {
		out[i] = (x - lo) / (hi - lo)
	}
	return out
}

func level(v float32) uint8 { return uint8(v*255 + 0.5) }

// CompareImage lays out the first n samples of inputs on the top row and
// the matching reconstructions below, each upscaled by scale. Both
// tensors must be (N, C>=2, H, W) with the same shape.
func CompareImage(inputs, outputs *tensor.RawTensor, n, scale int) (*image.RGBA, error) {
	shape := inputs.Shape()
	if len(shape) != 4 || shape[1] < 2 {
		return nil, fmt.Errorf("%w: expected (N, C>=2, H, W) images, got %v", errs.ErrShapeMismatch, shape)
	}
	if !shape.Equal(outputs.Shape()) {
		return nil, fmt.Errorf("%w: inputs %v, outputs %v", errs.ErrShapeMismatch, shape, outputs.Shape())
	}
	if n <= 0 || scale <= 0 {
		return nil, fmt.Errorf("%w: need positive count and scale, got %d and %d", errs.ErrConfiguration, n, scale)
	}
	n = min(n, shape[0])
	c, h, w := shape[1], shape[2], shape[3]
	cellW, cellH := w*scale, h*scale

	canvas := image.NewRGBA(image.Rect(0, 0, n*cellW+(n+1)*gap, 2*cellH+3*gap))
	draw.Draw(canvas, canvas.Bounds(), image.White, image.Point{}, draw.Src)

	sampleSize := c * h * w
	for row, src := range []*tensor.RawTensor{inputs, outputs} {
		data := src.AsFloat32()
		for i := range n {
			bmp := Bitmap(data[i*sampleSize:(i+1)*sampleSize], h, w)
			x0 := gap + i*(cellW+gap)
			y0 := gap + row*(cellH+gap)
			dst := image.Rect(x0, y0, x0+cellW, y0+cellH)
			draw.NearestNeighbor.Scale(canvas, dst, bmp, bmp.Bounds(), draw.Src, nil)
		}
	}
	return canvas, nil
}

// Compare renders CompareImage at DefaultScale and writes it to path as PNG.
func Compare(inputs, outputs *tensor.RawTensor, n int, path string) error {
	img, err := CompareImage(inputs, outputs, n, DefaultScale)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("%w: %w", errs.ErrIO, err)
		}
	}
	f, err := os.Create(path) //nolint:gosec // G304: output path from the operator
	if err != nil {
		return fmt.Errorf("%w: %w", errs.ErrIO, err)
	}
	if err := png.Encode(f, img); err != nil {
		_ = f.Close()
		return fmt.Errorf("%w: encode %s: %w", errs.ErrIO, path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("%w: %w", errs.ErrIO, err)
	}
	return nil
}
