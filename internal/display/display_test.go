package display

import (
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/vae/internal/errs"
	"github.com/born-ml/vae/internal/tensor"
)

func raw(t *testing.T, data []float32, shape ...int) *tensor.RawTensor {
	t.Helper()
	r, err := tensor.FromFloat32(tensor.Shape(shape), data)
	require.NoError(t, err)
	return r
}

func TestBitmapChannels(t *testing.T) {
	// channel 0 ramps 0..3, channel 1 is constant
	img := Bitmap([]float32{0, 1, 2, 3, 5, 5, 5, 5}, 2, 2)

	assert.Equal(t, uint8(0), img.RGBAAt(0, 0).R)
	assert.Equal(t, uint8(255), img.RGBAAt(1, 1).R)
	assert.Equal(t, uint8(85), img.RGBAAt(1, 0).R)
	for _, p := range []struct{ x, y int }{{0, 0}, {1, 0}, {0, 1}, {1, 1}} {
		c := img.RGBAAt(p.x, p.y)
		assert.Zero(t, c.B)
		assert.Zero(t, c.G)
		assert.Equal(t, uint8(255), c.A)
	}
}

func TestCompareImageLayout(t *testing.T) {
	in := raw(t, make([]float32, 3*2*4*5), 3, 2, 4, 5)
	out := raw(t, make([]float32, 3*2*4*5), 3, 2, 4, 5)

	img, err := CompareImage(in, out, 2, 3)
	require.NoError(t, err)
	b := img.Bounds()
	assert.Equal(t, 2*5*3+3*gap, b.Dx())
	assert.Equal(t, 2*4*3+3*gap, b.Dy())

	// more samples than available is capped
	img, err = CompareImage(in, out, 10, 1)
	require.NoError(t, err)
	assert.Equal(t, 3*5+4*gap, img.Bounds().Dx())
}

func TestCompareImageErrors(t *testing.T) {
	in := raw(t, make([]float32, 2*2*2*2), 2, 2, 2, 2)
	tests := []struct {
		name   string
		out    *tensor.RawTensor
		n      int
		target error
	}{
		{"shape mismatch", raw(t, make([]float32, 16), 2, 2, 4, 1), 1, errs.ErrShapeMismatch},
		{"flat", raw(t, make([]float32, 16), 2, 8), 1, errs.ErrShapeMismatch},
		{"zero count", in, 0, errs.ErrConfiguration},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := CompareImage(in, tt.out, tt.n, 1)
			assert.ErrorIs(t, err, tt.target)
		})
	}
}

func TestCompareWritesPNG(t *testing.T) {
	data := make([]float32, 2*2*3*3)
	for i := range data {
		data[i] = float32(i % 7)
	}
	in := raw(t, data, 2, 2, 3, 3)
	path := filepath.Join(t.TempDir(), "out", "cmp.png")
	require.NoError(t, Compare(in, in, 2, path))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	img, err := png.Decode(f)
	require.NoError(t, err)
	assert.Equal(t, 2*3*DefaultScale+3*gap, img.Bounds().Dx())
}
