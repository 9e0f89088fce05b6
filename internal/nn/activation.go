package nn

import (
	"fmt"

	"github.com/born-ml/vae/internal/tensor"
)

// stateless gives activations an empty state dict.
type stateless struct{}

// StateDict returns an empty map.
func (stateless) StateDict() map[string]*tensor.RawTensor {
	return map[string]*tensor.RawTensor{}
}

// LoadStateDict accepts any state dict.
func (stateless) LoadStateDict(map[string]*tensor.RawTensor) error {
	return nil
}

// ReLU is a Rectified Linear Unit activation module.
//
// Applies the element-wise function: f(x) = max(0, x)
type ReLU[B tensor.Backend] struct{ stateless }

// NewReLU creates a new ReLU activation module.
func NewReLU[B tensor.Backend]() *ReLU[B] {
	return &ReLU[B]{}
}

// Forward applies ReLU activation: f(x) = max(0, x).
func (r *ReLU[B]) Forward(input *tensor.Tensor[float32, B], _ Mode) *tensor.Tensor[float32, B] {
	backend := input.Backend()
	return tensor.New[float32, B](backend.ReLU(input.Raw()), backend)
}

// Parameters returns nil (ReLU has no trainable parameters).
func (r *ReLU[B]) Parameters() []*Parameter[B] {
	return nil
}

// LeakyReLUSlope is the default negative slope.
const LeakyReLUSlope = 0.01

// LeakyReLU applies f(x) = x for x > 0 and slope * x otherwise.
type LeakyReLU[B tensor.Backend] struct {
	stateless
	slope float32
}

// NewLeakyReLU creates a LeakyReLU with the given negative slope.
func NewLeakyReLU[B tensor.Backend](slope float32) *LeakyReLU[B] {
	return &LeakyReLU[B]{slope: slope}
}

// Forward applies the activation.
func (l *LeakyReLU[B]) Forward(input *tensor.Tensor[float32, B], _ Mode) *tensor.Tensor[float32, B] {
	backend := input.Backend()
	return tensor.New[float32, B](backend.LeakyReLU(input.Raw(), l.slope), backend)
}

// Parameters returns nil.
func (l *LeakyReLU[B]) Parameters() []*Parameter[B] {
	return nil
}

// String returns a string representation of the layer.
func (l *LeakyReLU[B]) String() string {
	return fmt.Sprintf("LeakyReLU(negative_slope=%g)", l.slope)
}

// Sigmoid is a sigmoid activation module.
//
// Applies the element-wise function: σ(x) = 1 / (1 + exp(-x))
type Sigmoid[B tensor.Backend] struct{ stateless }

// NewSigmoid creates a new Sigmoid activation module.
func NewSigmoid[B tensor.Backend]() *Sigmoid[B] {
	return &Sigmoid[B]{}
}

// Forward applies Sigmoid activation.
func (s *Sigmoid[B]) Forward(input *tensor.Tensor[float32, B], _ Mode) *tensor.Tensor[float32, B] {
	backend := input.Backend()
	return tensor.New[float32, B](backend.Sigmoid(input.Raw()), backend)
}

// Parameters returns nil.
func (s *Sigmoid[B]) Parameters() []*Parameter[B] {
	return nil
}
