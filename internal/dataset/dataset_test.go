package dataset

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/vae/internal/errs"
	"github.com/born-ml/vae/internal/tensor"
)

// writeNPY writes a version 1.0 .npy file. data must already be
// little-endian encoded for descr.
func writeNPY(t *testing.T, descr string, fortran bool, shape []int, data []byte) string {
	t.Helper()

	dims := make([]string, len(shape))
	for i, d := range shape {
		dims[i] = fmt.Sprint(d)
	}
	order := "False"
	if fortran {
		order = "True"
	}
	tuple := strings.Join(dims, ", ")
	if len(dims) == 1 {
		tuple += ","
	}
	dict := fmt.Sprintf("{'descr': '%s', 'fortran_order': %s, 'shape': (%s), }", descr, order, tuple)

	// magic(6) + version(2) + len(2) + dict + '\n' padded to 64 bytes
	pad := 64 - (10+len(dict)+1)%64
	if pad == 64 {
		pad = 0
	}
	header := dict + strings.Repeat(" ", pad) + "\n"

	var buf bytes.Buffer
	buf.WriteString("\x93NUMPY")
	buf.Write([]byte{1, 0})
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, uint16(len(header))))
	buf.WriteString(header)
	buf.Write(data)

	path := filepath.Join(t.TempDir(), "data.npy")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o600))
	return path
}

func encode(t *testing.T, v any) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, v))
	return buf.Bytes()
}

// ramp returns 0, 1, 2, ... as float32.
func ramp(n int) []float32 {
	v := make([]float32, n)
	for i := range v {
		v[i] = float32(i)
	}
	return v
}

func TestOpenKeepsFirstTwoChannels(t *testing.T) {
	// (2, 3, 2, 2): the third channel must be dropped
	path := writeNPY(t, "<f4", false, []int{2, 3, 2, 2}, encode(t, ramp(24)))

	ds, err := Open(path)
	require.NoError(t, err)
	assert.Equal(t, 2, ds.Len())
	assert.Equal(t, tensor.Shape{Channels, 2, 2}, ds.SampleShape())

	x, idx, err := ds.Get(1)
	require.NoError(t, err)
	assert.Equal(t, 1, idx)
	want := []float32{12, 13, 14, 15, 16, 17, 18, 19}
	if diff := cmp.Diff(want, x.AsFloat32()); diff != "" {
		t.Errorf("sample 1 mismatch (-want +got):\n%s", diff)
	}
}

func TestOpenCastsDTypes(t *testing.T) {
	tests := []struct {
		name  string
		descr string
		data  any
	}{
		{"float64", "<f8", []float64{0, 1, 2, 3, 4, 5, 6, 7}},
		{"int8", "|i1", []int8{0, 1, 2, 3, 4, 5, 6, 7}},
		{"int16", "<i2", []int16{0, 1, 2, 3, 4, 5, 6, 7}},
		{"int32", "<i4", []int32{0, 1, 2, 3, 4, 5, 6, 7}},
		{"int64", "<i8", []int64{0, 1, 2, 3, 4, 5, 6, 7}},
		{"uint8", "|u1", []uint8{0, 1, 2, 3, 4, 5, 6, 7}},
		{"uint16", "<u2", []uint16{0, 1, 2, 3, 4, 5, 6, 7}},
		{"uint32", "<u4", []uint32{0, 1, 2, 3, 4, 5, 6, 7}},
		{"uint64", "<u8", []uint64{0, 1, 2, 3, 4, 5, 6, 7}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeNPY(t, tt.descr, false, []int{1, 2, 2, 2}, encode(t, tt.data))
			ds, err := Open(path)
			require.NoError(t, err)

			x, _, err := ds.Get(0)
			require.NoError(t, err)
			if diff := cmp.Diff(ramp(8), x.AsFloat32()); diff != "" {
				t.Errorf("cast mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestOpenAffineAndFlatten(t *testing.T) {
	path := writeNPY(t, "<f4", false, []int{1, 2, 1, 2}, encode(t, []float32{1, 2, 3, 4}))

	ds, err := Open(path, WithAffine(1, 0.5), WithFlatten())
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{4}, ds.SampleShape())

	x, _, err := ds.Get(0)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{4}, x.Shape())
	assert.Equal(t, []float32{0, 0.5, 1, 1.5}, x.AsFloat32())
}

func TestOpenErrors(t *testing.T) {
	t.Run("empty path", func(t *testing.T) {
		_, err := Open("")
		assert.ErrorIs(t, err, errs.ErrConfiguration)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := Open(filepath.Join(t.TempDir(), "nope.npy"))
		assert.ErrorIs(t, err, errs.ErrConfiguration)
	})

	t.Run("not npy", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "junk.npy")
		require.NoError(t, os.WriteFile(path, []byte("definitely not numpy"), 0o600))
		_, err := Open(path)
		assert.ErrorIs(t, err, errs.ErrFormat)
	})

	t.Run("three dims", func(t *testing.T) {
		path := writeNPY(t, "<f4", false, []int{2, 2, 2}, encode(t, ramp(8)))
		_, err := Open(path)
		assert.ErrorIs(t, err, errs.ErrFormat)
	})

	t.Run("one channel", func(t *testing.T) {
		path := writeNPY(t, "<f4", false, []int{2, 1, 2, 2}, encode(t, ramp(8)))
		_, err := Open(path)
		assert.ErrorIs(t, err, errs.ErrFormat)
	})

	t.Run("fortran order", func(t *testing.T) {
		path := writeNPY(t, "<f4", true, []int{1, 2, 2, 2}, encode(t, ramp(8)))
		_, err := Open(path)
		assert.ErrorIs(t, err, errs.ErrFormat)
	})

	t.Run("unsupported dtype", func(t *testing.T) {
		path := writeNPY(t, ">f4", false, []int{1, 2, 1, 1}, encode(t, []float32{1, 2}))
		_, err := Open(path)
		assert.ErrorIs(t, err, errs.ErrFormat)
	})
}

func TestGetOutOfRange(t *testing.T) {
	path := writeNPY(t, "<f4", false, []int{1, 2, 1, 1}, encode(t, []float32{1, 2}))
	ds, err := Open(path)
	require.NoError(t, err)

	_, _, err = ds.Get(1)
	assert.Error(t, err)
	_, _, err = ds.Get(-1)
	assert.Error(t, err)
}

func newTestLoader(t *testing.T, n, batch int) *Loader {
	t.Helper()
	path := writeNPY(t, "<f4", false, []int{n, 2, 1, 1}, encode(t, ramp(n*2)))
	ds, err := Open(path)
	require.NoError(t, err)
	l, err := NewLoader(ds, batch)
	require.NoError(t, err)
	return l
}

func TestLoaderEpochIsPermutation(t *testing.T) {
	l := newTestLoader(t, 10, 4)

	batches := l.Epoch(rand.New(rand.NewSource(1)))
	require.Len(t, batches, 3)
	assert.Len(t, batches[2], 2)

	seen := make(map[int]bool)
	for _, b := range batches {
		for _, i := range b {
			assert.False(t, seen[i], "index %d repeated", i)
			seen[i] = true
		}
	}
	assert.Len(t, seen, 10)

	again := l.Epoch(rand.New(rand.NewSource(1)))
	if diff := cmp.Diff(batches, again); diff != "" {
		t.Errorf("same seed gave different order (-first +second):\n%s", diff)
	}
}

func TestLoaderSequentialAndLoad(t *testing.T) {
	l := newTestLoader(t, 5, 2)

	batches := l.Sequential()
	want := [][]int{{0, 1}, {2, 3}, {4}}
	if diff := cmp.Diff(want, batches); diff != "" {
		t.Errorf("sequential batches mismatch (-want +got):\n%s", diff)
	}

	b, err := l.Load([]int{3, 0})
	require.NoError(t, err)
	assert.Equal(t, 2, b.Size())
	assert.Equal(t, tensor.Shape{2, 2, 1, 1}, b.X.Shape())
	assert.Equal(t, []float32{6, 7, 0, 1}, b.X.AsFloat32())
	assert.Equal(t, []int{3, 0}, b.Indices)

	_, err = l.Load(nil)
	assert.Error(t, err)
	_, err = l.Load([]int{5})
	assert.Error(t, err)
}

func TestNewLoaderRejectsBadBatchSize(t *testing.T) {
	path := writeNPY(t, "<f4", false, []int{1, 2, 1, 1}, encode(t, []float32{1, 2}))
	ds, err := Open(path)
	require.NoError(t, err)

	_, err = NewLoader(ds, 0)
	assert.Error(t, err)
}
