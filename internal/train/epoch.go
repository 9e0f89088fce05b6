package train

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"github.com/born-ml/vae/internal/autodiff"
	"github.com/born-ml/vae/internal/dataset"
	"github.com/born-ml/vae/internal/nn"
	"github.com/born-ml/vae/internal/tensor"
	"github.com/born-ml/vae/internal/vae"
)

// Random streams derived per epoch from the manual seed.
const (
	streamShuffle uint64 = iota + 1
	streamNoise
)

// streamSeed mixes (seed, epoch, stream) with the splitmix64 finalizer so
// that every epoch draws the same numbers whether or not the run resumed.
func streamSeed(seed int64, epoch int, stream uint64) int64 {
	z := uint64(seed) + uint64(epoch)*0x9e3779b97f4a7c15 + stream*0xbf58476d1ce4e5b9
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return int64(z ^ (z >> 31))
}

func (t *Trainer) epochRNG(epoch int, stream uint64) *rand.Rand {
	return rand.New(rand.NewSource(streamSeed(t.cfg.RandomSeed.ManualSeed, epoch, stream)))
}

// evalResult accumulates one pass over a dataset. Row i of mu is the
// latent mean of sample i.
type evalResult struct {
	loss float64
	mu   *mat.Dense
	x    *tensor.RawTensor // inputs, in sample order; test passes only
}

func newEvalResult(ds *dataset.Dataset, latent int, keepInputs bool) (*evalResult, error) {
	r := &evalResult{mu: mat.NewDense(ds.Len(), latent, nil)}
	if keepInputs {
		shape := append(tensor.Shape{ds.Len()}, ds.SampleShape()...)
		x, err := tensor.NewRaw(shape, tensor.Float32, tensor.CPU)
		if err != nil {
			return nil, err
		}
		r.x = x
	}
	return r, nil
}

func (r *evalResult) add(b dataset.Batch, mu *tensor.Tensor[float32, Backend], loss float64) {
	r.loss += loss
	latent := mu.Shape()[1]
	data := mu.Data()
	for row, idx := range b.Indices {
		for j := range latent {
			r.mu.Set(idx, j, float64(data[row*latent+j]))
		}
	}
	if r.x != nil {
		dst := r.x.AsFloat32()
		src := b.X.AsFloat32()
		size := len(src) / b.Size()
		for row, idx := range b.Indices {
			copy(dst[idx*size:(idx+1)*size], src[row*size:(row+1)*size])
		}
	}
}

// trainEpoch runs one shuffled pass in Train mode with an Adam step per batch.
func (t *Trainer) trainEpoch(ctx context.Context, epoch int) (*evalResult, error) {
	res, err := newEvalResult(t.trainSet, t.model.LatentDim(), false)
	if err != nil {
		return nil, err
	}
	t.model.SetNoise(t.epochRNG(epoch, streamNoise))
	batches := t.trainLoader.Epoch(t.epochRNG(epoch, streamShuffle))

	tape := t.backend.Tape()
	tape.StartRecording()
	defer tape.Clear()

	beta := t.cfg.ModelParams.Beta
	for i, indices := range batches {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		batch, err := t.trainLoader.Load(indices)
		if err != nil {
			return nil, err
		}
		x := tensor.New[float32](batch.X, t.backend)

		xHat, mu, logvar := t.model.Forward(x, nn.Train)
		terms, err := vae.Loss(x, xHat, mu, logvar, beta)
		if err != nil {
			return nil, fmt.Errorf("batch %d: %w", i, err)
		}
		grads := autodiff.Backward(terms.Total, t.backend)
		t.optimizer.Step(grads)
		tape.Clear()

		t.step++
		t.lastLoss = terms.Value()
		res.add(batch, mu, t.lastLoss)
		slog.Debug("batch", "epoch", epoch, "batch", i, "loss", t.lastLoss,
			"bce", terms.Reconstruction, "kl", terms.KL)
	}
	return res, nil
}

// evaluate runs the test set in order in Eval mode with the tape stopped.
// The result is built fresh on every call.
func (t *Trainer) evaluate(ctx context.Context) (*evalResult, error) {
	res, err := newEvalResult(t.testSet, t.model.LatentDim(), true)
	if err != nil {
		return nil, err
	}

	tape := t.backend.Tape()
	wasRecording := tape.IsRecording()
	tape.StopRecording()
	defer func() {
		if wasRecording {
			tape.StartRecording()
		}
	}()

	beta := t.cfg.ModelParams.Beta
	for i, indices := range t.testLoader.Sequential() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		batch, err := t.testLoader.Load(indices)
		if err != nil {
			return nil, err
		}
		x := tensor.New[float32](batch.X, t.backend)
		xHat, mu, logvar := t.model.Forward(x, nn.Eval)
		terms, err := vae.Loss(x, xHat, mu, logvar, beta)
		if err != nil {
			return nil, fmt.Errorf("test batch %d: %w", i, err)
		}
		res.add(batch, mu, terms.Value())
	}
	return res, nil
}
