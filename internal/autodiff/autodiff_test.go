package autodiff_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/vae/internal/autodiff"
	"github.com/born-ml/vae/internal/backend/cpu"
	"github.com/born-ml/vae/internal/tensor"
)

func TestAutodiffBackend_Name(t *testing.T) {
	backend := autodiff.New(cpu.New())
	if backend.Name() != "Autodiff(CPU)" {
		t.Errorf("Name() = %s, want Autodiff(CPU)", backend.Name())
	}
	if backend.Device() != tensor.CPU {
		t.Errorf("Device() = %v, want %v", backend.Device(), tensor.CPU)
	}
}

func TestTape_Recording(t *testing.T) {
	backend := autodiff.New(cpu.New())
	tape := backend.Tape()

	if tape.IsRecording() {
		t.Error("Tape should not be recording initially")
	}

	a := tensor.Ones[float32](tensor.Shape{2}, backend)
	a.Add(a)
	assert.Equal(t, 0, tape.NumOps(), "ops recorded while stopped")

	tape.StartRecording()
	a.Add(a)
	assert.Equal(t, 1, tape.NumOps())

	tape.Clear()
	assert.Equal(t, 0, tape.NumOps())
	assert.True(t, tape.IsRecording(), "Clear must preserve recording state")

	tape.StopRecording()
	assert.False(t, tape.IsRecording())
}

func TestBackward_Square(t *testing.T) {
	backend := autodiff.New(cpu.New())
	backend.Tape().StartRecording()

	x, err := tensor.FromSlice([]float32{2, -3}, tensor.Shape{2}, backend)
	require.NoError(t, err)
	y := x.Mul(x).Sum()

	grads := autodiff.Backward(y, backend)
	require.Contains(t, grads, x.Raw())
	assert.Equal(t, []float32{4, -6}, grads[x.Raw()].AsFloat32())
}

func TestBackward_AccumulatesReusedInputs(t *testing.T) {
	backend := autodiff.New(cpu.New())
	backend.Tape().StartRecording()

	x, _ := tensor.FromSlice([]float32{1, 2, 3}, tensor.Shape{3}, backend)
	// y = sum(x + x + 3x) => dy/dx = 5
	y := x.Add(x).Add(x.MulScalar(3)).Sum()

	grads := autodiff.Backward(y, backend)
	assert.Equal(t, []float32{5, 5, 5}, grads[x.Raw()].AsFloat32())
}

func TestBackward_LinearLayerThroughTranspose(t *testing.T) {
	backend := autodiff.New(cpu.New())
	backend.Tape().StartRecording()

	x, _ := tensor.FromSlice([]float32{1, 2}, tensor.Shape{1, 2}, backend)
	w, _ := tensor.FromSlice([]float32{1, 0, 0, 1, 1, 1}, tensor.Shape{3, 2}, backend)
	bias, _ := tensor.FromSlice([]float32{0, 0, 0}, tensor.Shape{3}, backend)

	y := x.MatMul(w.Transpose()).Add(bias).Sum()
	assert.InDelta(t, 6, y.Item(), 1e-6)

	grads := autodiff.Backward(y, backend)
	assert.Equal(t, []float32{1, 2, 1, 2, 1, 2}, grads[w.Raw()].AsFloat32())
	assert.Equal(t, []float32{1, 1, 1}, grads[bias.Raw()].AsFloat32())
	assert.Equal(t, []float32{2, 2}, grads[x.Raw()].AsFloat32())
}

func TestBackward_BCETargetHasNoGradient(t *testing.T) {
	backend := autodiff.New(cpu.New())
	backend.Tape().StartRecording()

	p, _ := tensor.FromSlice([]float32{0.25, 0.75}, tensor.Shape{2}, backend)
	target, _ := tensor.FromSlice([]float32{0, 1}, tensor.Shape{2}, backend)
	loss := tensor.New[float32](backend.BinaryCrossEntropy(p.Raw(), target.Raw()), backend)

	grads := autodiff.Backward(loss, backend)
	assert.NotContains(t, grads, target.Raw())
	assert.InDelta(t, 0.25/(0.25*0.75), grads[p.Raw()].AsFloat32()[0], 1e-4)
}

func TestBackward_PanicsOnEmptyTape(t *testing.T) {
	backend := autodiff.New(cpu.New())
	x := tensor.Ones[float32](tensor.Shape{1}, backend)
	assert.Panics(t, func() { autodiff.Backward(x, backend) })
}
