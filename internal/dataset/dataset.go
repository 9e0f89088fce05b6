// Package dataset adapts NumPy .npy arrays of shape (N, C, H, W) into
// float32 samples and batches.
//
// Only the first two channels are kept. Samples go through a float cast
// followed by an affine (x - shift) * scale transform, the identity by
// default.
package dataset

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/sbinet/npyio"

	"github.com/born-ml/vae/internal/errs"
	"github.com/born-ml/vae/internal/tensor"
)

// Channels is the number of channels retained from the source array.
const Channels = 2

// Option configures a Dataset.
type Option func(*Dataset)

// WithAffine sets the normalization applied to every sample:
// (x - shift) * scale.
func WithAffine(shift, scale float32) Option {
	return func(d *Dataset) {
		d.shift, d.scale = shift, scale
	}
}

// WithFlatten makes Get and batches return flattened samples, for fully
// connected models.
func WithFlatten() Option {
	return func(d *Dataset) {
		d.flatten = true
	}
}

// Dataset holds the retained channels of an (N, C, H, W) array in memory.
type Dataset struct {
	path    string
	n, h, w int
	data    []float32 // (N, Channels, H, W)

	shift, scale float32
	flatten      bool
}

// Open loads the .npy file at path.
func Open(path string, opts ...Option) (*Dataset, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: dataset path is empty", errs.ErrConfiguration)
	}

	//nolint:gosec // G304: path is chosen by the operator
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: dataset %s does not exist", errs.ErrConfiguration, path)
		}
		return nil, fmt.Errorf("%w: open dataset: %w", errs.ErrIO, err)
	}
	defer f.Close()

	r, err := npyio.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", errs.ErrFormat, path, err)
	}

	descr := r.Header.Descr
	if descr.Fortran {
		return nil, fmt.Errorf("%w: %s: Fortran-ordered arrays are not supported, save the data in row-major order", errs.ErrFormat, path)
	}
	if len(descr.Shape) != 4 {
		return nil, fmt.Errorf("%w: %s: expected 4 dimensions (N, C, H, W), got shape %v", errs.ErrFormat, path, descr.Shape)
	}
	n, c, h, w := descr.Shape[0], descr.Shape[1], descr.Shape[2], descr.Shape[3]
	if c < Channels {
		return nil, fmt.Errorf("%w: %s: need at least %d channels, got %d", errs.ErrFormat, path, Channels, c)
	}
	if n <= 0 || h <= 0 || w <= 0 {
		return nil, fmt.Errorf("%w: %s: empty array %v", errs.ErrFormat, path, descr.Shape)
	}

	all, err := readFloat32(r, descr.Type)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if len(all) != n*c*h*w {
		return nil, fmt.Errorf("%w: %s: read %d values, shape %v needs %d", errs.ErrFormat, path, len(all), descr.Shape, n*c*h*w)
	}

	d := &Dataset{path: path, n: n, h: h, w: w, scale: 1}
	for _, opt := range opts {
		opt(d)
	}

	// keep channels [0, Channels)
	plane := h * w
	d.data = make([]float32, n*Channels*plane)
	for i := 0; i < n; i++ {
		copy(d.data[i*Channels*plane:(i+1)*Channels*plane], all[i*c*plane:(i*c+Channels)*plane])
	}
	return d, nil
}

// readFloat32 reads the whole array and casts it to float32.
func readFloat32(r *npyio.Reader, dtype string) ([]float32, error) {
	switch dtype {
	case "<f4":
		var v []float32
		if err := r.Read(&v); err != nil {
			return nil, fmt.Errorf("%w: read float32 data: %w", errs.ErrIO, err)
		}
		return v, nil
	case "<f8":
		return readAs[float64](r)
	case "|i1":
		return readAs[int8](r)
	case "<i2":
		return readAs[int16](r)
	case "<i4":
		return readAs[int32](r)
	case "<i8":
		return readAs[int64](r)
	case "|u1":
		return readAs[uint8](r)
	case "<u2":
		return readAs[uint16](r)
	case "<u4":
		return readAs[uint32](r)
	case "<u8":
		return readAs[uint64](r)
	default:
		return nil, fmt.Errorf("%w: unsupported dtype %q (want little-endian float or integer)", errs.ErrFormat, dtype)
	}
}

type number interface {
	~float64 | ~int8 | ~int16 | ~int32 | ~int64 | ~uint8 | ~uint16 | ~uint32 | ~uint64
}

func readAs[T number](r *npyio.Reader) ([]float32, error) {
	var v []T
	if err := r.Read(&v); err != nil {
		return nil, fmt.Errorf("%w: read %T data: %w", errs.ErrIO, *new(T), err)
	}
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(x)
	}
	return out, nil
}

// Len returns the number of samples.
func (d *Dataset) Len() int { return d.n }

// Path returns the file the dataset was loaded from.
func (d *Dataset) Path() string { return d.path }

// Height returns the sample height.
func (d *Dataset) Height() int { return d.h }

// Width returns the sample width.
func (d *Dataset) Width() int { return d.w }

// SampleShape returns (Channels, H, W), or (Channels*H*W) when flattened.
func (d *Dataset) SampleShape() tensor.Shape {
	if d.flatten {
		return tensor.Shape{Channels * d.h * d.w}
	}
	return tensor.Shape{Channels, d.h, d.w}
}

func (d *Dataset) sampleSize() int { return Channels * d.h * d.w }

// Get returns the transformed sample i together with its index.
func (d *Dataset) Get(i int) (*tensor.RawTensor, int, error) {
	if i < 0 || i >= d.n {
		return nil, i, fmt.Errorf("dataset: index %d out of range [0, %d)", i, d.n)
	}
	raw, err := tensor.NewRaw(d.SampleShape(), tensor.Float32, tensor.CPU)
	if err != nil {
		return nil, i, err
	}
	d.transform(raw.AsFloat32(), i)
	return raw, i, nil
}

// transform writes sample i into dst.
func (d *Dataset) transform(dst []float32, i int) {
	size := d.sampleSize()
	src := d.data[i*size : (i+1)*size]
	if d.shift == 0 && d.scale == 1 {
		copy(dst, src)
		return
	}
	for j, v := range src {
		dst[j] = (v - d.shift) * d.scale
	}
}
