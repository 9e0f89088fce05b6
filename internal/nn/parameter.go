package nn

import (
	"github.com/born-ml/vae/internal/tensor"
)

// Parameter represents a trainable tensor of a layer.
//
// Gradients are looked up by the parameter's raw tensor in the map
// returned from autodiff.Backward, so the tensor must be updated in place
// and never replaced.
//
// Example:
//
//	weight := nn.NewParameter("weight", weightTensor)
//	grad := grads[weight.Tensor().Raw()]
type Parameter[B tensor.Backend] struct {
	name   string
	tensor *tensor.Tensor[float32, B]
}

// NewParameter creates a new trainable parameter.
func NewParameter[B tensor.Backend](name string, t *tensor.Tensor[float32, B]) *Parameter[B] {
	return &Parameter[B]{
		name:   name,
		tensor: t,
	}
}

// Name returns the parameter name.
func (p *Parameter[B]) Name() string {
	return p.name
}

// Tensor returns the parameter tensor.
func (p *Parameter[B]) Tensor() *tensor.Tensor[float32, B] {
	return p.tensor
}

// Raw returns the parameter's raw tensor, the key of its gradient.
func (p *Parameter[B]) Raw() *tensor.RawTensor {
	return p.tensor.Raw()
}
