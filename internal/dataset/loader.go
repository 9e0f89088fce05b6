package dataset

import (
	"fmt"
	"math/rand"

	"github.com/born-ml/vae/internal/tensor"
)

// Batch is a stack of samples with their dataset indices.
type Batch struct {
	X       *tensor.RawTensor // (B, Channels, H, W) or (B, Channels*H*W)
	Indices []int
}

// Size returns the number of samples in the batch.
func (b Batch) Size() int { return len(b.Indices) }

// Loader groups dataset indices into batches.
type Loader struct {
	ds        *Dataset
	batchSize int
}

// NewLoader returns a Loader over ds.
func NewLoader(ds *Dataset, batchSize int) (*Loader, error) {
	if batchSize <= 0 {
		return nil, fmt.Errorf("dataset: batch size must be positive, got %d", batchSize)
	}
	return &Loader{ds: ds, batchSize: batchSize}, nil
}

// BatchSize returns the configured batch size.
func (l *Loader) BatchSize() int { return l.batchSize }

// Epoch returns the index batches of one shuffled pass: a permutation of
// [0, N) drawn from rng, chunked by the batch size. The last batch may be
// short.
func (l *Loader) Epoch(rng *rand.Rand) [][]int {
	return l.chunk(rng.Perm(l.ds.Len()))
}

// Sequential returns the index batches of an in-order pass.
func (l *Loader) Sequential() [][]int {
	order := make([]int, l.ds.Len())
	for i := range order {
		order[i] = i
	}
	return l.chunk(order)
}

func (l *Loader) chunk(order []int) [][]int {
	batches := make([][]int, 0, (len(order)+l.batchSize-1)/l.batchSize)
	for start := 0; start < len(order); start += l.batchSize {
		end := min(start+l.batchSize, len(order))
		batches = append(batches, order[start:end])
	}
	return batches
}

// Load stacks the samples at indices into a Batch.
func (l *Loader) Load(indices []int) (Batch, error) {
	if len(indices) == 0 {
		return Batch{}, fmt.Errorf("dataset: empty batch")
	}
	sampleShape := l.ds.SampleShape()
	shape := append(tensor.Shape{len(indices)}, sampleShape...)
	x, err := tensor.NewRaw(shape, tensor.Float32, tensor.CPU)
	if err != nil {
		return Batch{}, err
	}

	size := sampleShape.NumElements()
	dst := x.AsFloat32()
	for j, idx := range indices {
		if idx < 0 || idx >= l.ds.Len() {
			return Batch{}, fmt.Errorf("dataset: index %d out of range [0, %d)", idx, l.ds.Len())
		}
		l.ds.transform(dst[j*size:(j+1)*size], idx)
	}
	return Batch{X: x, Indices: append([]int(nil), indices...)}, nil
}
