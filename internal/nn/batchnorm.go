package nn

import (
	"fmt"

	"github.com/born-ml/vae/internal/tensor"
)

// BatchNorm2D defaults.
const (
	BatchNormEps      = 1e-5
	BatchNormMomentum = 0.1
)

// BatchNorm2D normalizes [N, C, H, W] inputs per channel:
//
//	y = gamma * (x - mean) / sqrt(var + eps) + beta
//
// In Train mode mean and var are the batch statistics and the running
// averages are updated with momentum (the variance update uses the
// unbiased batch variance). In Eval mode the running averages are used.
type BatchNorm2D[B tensor.Backend] struct {
	channels int
	eps      float32
	momentum float32

	gamma *Parameter[B] // weight
	beta  *Parameter[B] // bias

	runningMean *tensor.RawTensor
	runningVar  *tensor.RawTensor
}

// NewBatchNorm2D creates a batch norm layer with gamma=1, beta=0 and
// running statistics (0, 1).
func NewBatchNorm2D[B tensor.Backend](channels int, backend B) *BatchNorm2D[B] {
	if channels <= 0 {
		panic(fmt.Sprintf("batch_norm2d: invalid channels %d", channels))
	}
	return &BatchNorm2D[B]{
		channels:    channels,
		eps:         BatchNormEps,
		momentum:    BatchNormMomentum,
		gamma:       NewParameter("weight", Ones(tensor.Shape{channels}, backend)),
		beta:        NewParameter("bias", Zeros(tensor.Shape{channels}, backend)),
		runningMean: Zeros(tensor.Shape{channels}, backend).Raw(),
		runningVar:  Ones(tensor.Shape{channels}, backend).Raw(),
	}
}

// Forward normalizes input according to mode.
func (bn *BatchNorm2D[B]) Forward(input *tensor.Tensor[float32, B], mode Mode) *tensor.Tensor[float32, B] {
	shape := input.Shape()
	if len(shape) != 4 {
		panic(fmt.Sprintf("batch_norm2d: expected 4D input [N,C,H,W], got %dD", len(shape)))
	}
	if shape[1] != bn.channels {
		panic(fmt.Sprintf("batch_norm2d: input channels %d != expected %d", shape[1], bn.channels))
	}

	backend := input.Backend()
	mean, variance := bn.runningMean, bn.runningVar
	if mode == Train {
		mean, variance = backend.ChannelMoments(input.Raw())
		bn.updateRunning(mean, variance, shape[0]*shape[2]*shape[3])
	}

	out := backend.BatchNorm2D(input.Raw(), bn.gamma.Raw(), bn.beta.Raw(), mean, variance, bn.eps)
	return tensor.New[float32, B](out, backend)
}

func (bn *BatchNorm2D[B]) updateRunning(mean, variance *tensor.RawTensor, count int) {
	correction := float32(1)
	if count > 1 {
		correction = float32(count) / float32(count-1)
	}
	m := bn.momentum
	rm, rv := bn.runningMean.AsFloat32(), bn.runningVar.AsFloat32()
	bv := variance.AsFloat32()
	for i, mu := range mean.AsFloat32() {
		rm[i] = (1-m)*rm[i] + m*mu
		rv[i] = (1-m)*rv[i] + m*bv[i]*correction
	}
}

// Parameters returns [weight, bias]. Running statistics are buffers.
func (bn *BatchNorm2D[B]) Parameters() []*Parameter[B] {
	return []*Parameter[B]{bn.gamma, bn.beta}
}

// RunningMean returns the running mean buffer.
func (bn *BatchNorm2D[B]) RunningMean() []float32 {
	return bn.runningMean.AsFloat32()
}

// RunningVar returns the running variance buffer.
func (bn *BatchNorm2D[B]) RunningVar() []float32 {
	return bn.runningVar.AsFloat32()
}

// StateDict returns weight, bias, running_mean and running_var.
func (bn *BatchNorm2D[B]) StateDict() map[string]*tensor.RawTensor {
	return map[string]*tensor.RawTensor{
		"weight":       bn.gamma.Raw(),
		"bias":         bn.beta.Raw(),
		"running_mean": bn.runningMean,
		"running_var":  bn.runningVar,
	}
}

// LoadStateDict loads parameters and running statistics.
func (bn *BatchNorm2D[B]) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	for name, dst := range bn.StateDict() {
		if err := loadInto(dst, stateDict, name); err != nil {
			return err
		}
	}
	return nil
}

// String returns a string representation of the layer.
func (bn *BatchNorm2D[B]) String() string {
	return fmt.Sprintf("BatchNorm2d(%d, eps=%g, momentum=%g)", bn.channels, bn.eps, bn.momentum)
}
