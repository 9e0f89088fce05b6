package autodiff

import (
	"github.com/born-ml/vae/internal/autodiff/ops"
	"github.com/born-ml/vae/internal/tensor"
)

// GradientTape records operations during the forward pass and computes
// gradients during the backward pass using reverse-mode automatic differentiation.
//
// Usage:
//
//	tape := NewGradientTape()
//	tape.StartRecording()
//	// ... perform operations ...
//	gradients := tape.Backward(loss, outputGrad, backend)
type GradientTape struct {
	operations []ops.Operation
	recording  bool

	// moments maps batch statistics produced by ChannelMoments to the
	// tensor they were computed from.
	moments map[*tensor.RawTensor]*tensor.RawTensor
}

// NewGradientTape creates a new gradient tape.
func NewGradientTape() *GradientTape {
	return &GradientTape{
		operations: make([]ops.Operation, 0, 128),
		moments:    make(map[*tensor.RawTensor]*tensor.RawTensor),
	}
}

// StartRecording enables operation recording.
func (t *GradientTape) StartRecording() {
	t.recording = true
}

// StopRecording disables operation recording.
func (t *GradientTape) StopRecording() {
	t.recording = false
}

// IsRecording returns true if the tape is currently recording operations.
func (t *GradientTape) IsRecording() bool {
	return t.recording
}

// Record adds an operation to the tape if recording.
func (t *GradientTape) Record(op ops.Operation) {
	if t.recording {
		t.operations = append(t.operations, op)
	}
}

// Clear removes all recorded operations. Recording state is preserved.
func (t *GradientTape) Clear() {
	clear(t.operations)
	t.operations = t.operations[:0]
	clear(t.moments)
}

// NumOps returns the number of recorded operations.
func (t *GradientTape) NumOps() int {
	return len(t.operations)
}

func (t *GradientTape) markMoments(source, mean, variance *tensor.RawTensor) {
	if t.recording {
		t.moments[mean] = source
		t.moments[variance] = source
	}
}

// fromBatch reports whether mean and variance were both computed from x.
func (t *GradientTape) fromBatch(x, mean, variance *tensor.RawTensor) bool {
	return t.moments[mean] == x && t.moments[variance] == x
}

// Backward walks the tape in reverse starting from outputGrad, the
// gradient of output.
//
// Gradients of tensors used more than once are accumulated. Returns a map
// from RawTensor to its gradient.
func (t *GradientTape) Backward(output, outputGrad *tensor.RawTensor, backend tensor.Backend) map[*tensor.RawTensor]*tensor.RawTensor {
	grads := make(map[*tensor.RawTensor]*tensor.RawTensor)
	if len(t.operations) == 0 {
		return grads
	}

	// gradient ops must not land on the tape
	wasRecording := t.recording
	t.recording = false
	defer func() {
		t.recording = wasRecording
	}()

	grads[output] = outputGrad

	for i := len(t.operations) - 1; i >= 0; i-- {
		op := t.operations[i]
		opGrad, ok := grads[op.Output()]
		if !ok {
			continue
		}
		inputGrads := op.Backward(opGrad, backend)
		for j, input := range op.Inputs() {
			if j >= len(inputGrads) || inputGrads[j] == nil {
				continue
			}
			if existing, ok := grads[input]; ok {
				grads[input] = backend.Add(existing, inputGrads[j])
			} else {
				grads[input] = inputGrads[j]
			}
		}
	}
	return grads
}
