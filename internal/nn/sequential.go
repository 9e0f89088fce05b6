package nn

import (
	"fmt"
	"strconv"

	"github.com/born-ml/vae/internal/tensor"
)

// Sequential is a container module that chains multiple modules together.
//
// Each module's output becomes the next module's input:
//
//	block := nn.NewSequential(
//	    nn.NewConv2D(2, 32, 7, 2, 1, rng, backend),
//	    nn.NewBatchNorm2D(32, backend),
//	    nn.NewLeakyReLU[B](0.01),
//	)
//	out := block.Forward(x, nn.Train)
type Sequential[B tensor.Backend] struct {
	modules []Module[B]
}

// NewSequential creates a new Sequential container.
func NewSequential[B tensor.Backend](modules ...Module[B]) *Sequential[B] {
	return &Sequential[B]{
		modules: modules,
	}
}

// Forward applies all modules in sequence with the same mode.
func (s *Sequential[B]) Forward(input *tensor.Tensor[float32, B], mode Mode) *tensor.Tensor[float32, B] {
	output := input
	for _, module := range s.modules {
		output = module.Forward(output, mode)
	}
	return output
}

// Parameters returns all trainable parameters from all modules.
func (s *Sequential[B]) Parameters() []*Parameter[B] {
	var params []*Parameter[B]
	for _, module := range s.modules {
		params = append(params, module.Parameters()...)
	}
	return params
}

// Add appends a module to the sequence.
func (s *Sequential[B]) Add(module Module[B]) {
	s.modules = append(s.modules, module)
}

// Len returns the number of modules in the sequence.
func (s *Sequential[B]) Len() int {
	return len(s.modules)
}

// Module returns the module at the given index.
//
// Panics if index is out of bounds.
func (s *Sequential[B]) Module(index int) Module[B] {
	if index < 0 || index >= len(s.modules) {
		panic("Sequential.Module: index out of bounds")
	}
	return s.modules[index]
}

// StateDict returns the state of every module prefixed with its index
// ("0.weight", "1.running_mean", ...).
func (s *Sequential[B]) StateDict() map[string]*tensor.RawTensor {
	stateDict := make(map[string]*tensor.RawTensor)
	for i, module := range s.modules {
		Prefix(stateDict, strconv.Itoa(i), module.StateDict())
	}
	return stateDict
}

// LoadStateDict loads every module from its index-prefixed entries.
func (s *Sequential[B]) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	for i, module := range s.modules {
		if len(module.StateDict()) == 0 {
			continue
		}
		if err := module.LoadStateDict(Sub(stateDict, strconv.Itoa(i))); err != nil {
			return fmt.Errorf("failed to load module %d: %w", i, err)
		}
	}
	return nil
}
