package optim_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/vae/internal/autodiff"
	"github.com/born-ml/vae/internal/backend/cpu"
	"github.com/born-ml/vae/internal/errs"
	"github.com/born-ml/vae/internal/nn"
	"github.com/born-ml/vae/internal/optim"
	"github.com/born-ml/vae/internal/tensor"
)

type Backend = *autodiff.AutodiffBackend[*cpu.CPUBackend]

var (
	_ optim.Optimizer   = (*optim.Adam[Backend])(nil)
	_ nn.OptimizerState = (*optim.Adam[Backend])(nil)
)

func floatEqual(a, b, eps float32) bool {
	diff := a - b
	if diff < 0 {
		diff = -diff
	}
	return diff < eps
}

func scalarParam(t *testing.T, backend Backend, v float32) *nn.Parameter[Backend] {
	t.Helper()
	x, err := tensor.FromSlice([]float32{v}, tensor.Shape{1}, backend)
	require.NoError(t, err)
	return nn.NewParameter("x", x)
}

func gradOf(t *testing.T, p *nn.Parameter[Backend], g float32) map[*tensor.RawTensor]*tensor.RawTensor {
	t.Helper()
	raw, err := tensor.FromFloat32(tensor.Shape{1}, []float32{g})
	require.NoError(t, err)
	return map[*tensor.RawTensor]*tensor.RawTensor{p.Raw(): raw}
}

func TestAdam_FirstStep(t *testing.T) {
	backend := autodiff.New(cpu.New())
	param := scalarParam(t, backend, 2)
	adam := optim.NewAdam([]*nn.Parameter[Backend]{param}, optim.AdamConfig{LR: 0.001}, backend)

	adam.Step(gradOf(t, param, 1))

	// m_hat = g and v_hat = g², so the first step moves by lr.
	got := param.Raw().AsFloat32()[0]
	if !floatEqual(got, 1.999, 1e-6) {
		t.Errorf("after one step x = %f, want 1.999", got)
	}
	if adam.GetTimestep() != 1 {
		t.Errorf("timestep = %d, want 1", adam.GetTimestep())
	}
}

func TestAdam_SkipsMissingGradients(t *testing.T) {
	backend := autodiff.New(cpu.New())
	a, b := scalarParam(t, backend, 1), scalarParam(t, backend, 5)
	adam := optim.NewAdam([]*nn.Parameter[Backend]{a, b}, optim.AdamConfig{LR: 0.1}, backend)

	adam.Step(gradOf(t, a, 1))

	assert.NotEqual(t, float32(1), a.Raw().AsFloat32()[0])
	assert.Equal(t, float32(5), b.Raw().AsFloat32()[0])
}

func TestAdam_Minimizes(t *testing.T) {
	backend := autodiff.New(cpu.New())
	param := scalarParam(t, backend, 0)
	adam := optim.NewAdam([]*nn.Parameter[Backend]{param}, optim.AdamConfig{LR: 0.05}, backend)
	target, err := tensor.FromSlice([]float32{3}, tensor.Shape{1}, backend)
	require.NoError(t, err)

	for i := 0; i < 1000; i++ {
		backend.Tape().StartRecording()
		diff := param.Tensor().Sub(target)
		loss := diff.Mul(diff).Sum()
		grads := autodiff.Backward(loss, backend)
		adam.Step(grads)
		backend.Tape().Clear()
	}

	got := param.Raw().AsFloat32()[0]
	if math.Abs(float64(got-3)) > 5e-2 {
		t.Errorf("minimum of (x-3)² found at %f, want 3", got)
	}
}

func TestAdam_StateDictResumes(t *testing.T) {
	backend := autodiff.New(cpu.New())

	original := scalarParam(t, backend, 1)
	adam := optim.NewAdam([]*nn.Parameter[Backend]{original}, optim.AdamConfig{LR: 0.01}, backend)
	for _, g := range []float32{0.5, -1, 2} {
		adam.Step(gradOf(t, original, g))
	}

	resumed := scalarParam(t, backend, original.Raw().AsFloat32()[0])
	adam2 := optim.NewAdam([]*nn.Parameter[Backend]{resumed}, optim.AdamConfig{LR: 0.01}, backend)
	require.NoError(t, adam2.LoadStateDict(adam.StateDict()))
	assert.Equal(t, 3, adam2.GetTimestep())

	adam.Step(gradOf(t, original, 0.7))
	adam2.Step(gradOf(t, resumed, 0.7))
	assert.Equal(t, original.Raw().AsFloat32(), resumed.Raw().AsFloat32())
}

func TestAdam_LoadStateDictErrors(t *testing.T) {
	backend := autodiff.New(cpu.New())
	param := scalarParam(t, backend, 1)
	adam := optim.NewAdam([]*nn.Parameter[Backend]{param}, optim.AdamConfig{}, backend)

	state := adam.StateDict()
	delete(state, "v.0")
	assert.ErrorIs(t, adam.LoadStateDict(state), errs.ErrFormat)

	state = adam.StateDict()
	wrong, err := tensor.FromFloat32(tensor.Shape{2}, []float32{0, 0})
	require.NoError(t, err)
	state["m.0"] = wrong
	assert.ErrorIs(t, adam.LoadStateDict(state), errs.ErrShapeMismatch)

	assert.ErrorIs(t, adam.LoadStateDict(map[string]*tensor.RawTensor{}), errs.ErrFormat)
}

func TestAdam_Config(t *testing.T) {
	backend := autodiff.New(cpu.New())
	adam := optim.NewAdam([]*nn.Parameter[Backend]{scalarParam(t, backend, 1)}, optim.AdamConfig{LR: 0.002}, backend)

	assert.Equal(t, "Adam", adam.Name())
	cfg := adam.Config()
	assert.Equal(t, float32(0.002), cfg["lr"])
	assert.Equal(t, []float32{0.9, 0.999}, cfg["betas"])
	assert.Equal(t, float32(1e-8), cfg["eps"])

	adam.SetLR(0.5)
	assert.Equal(t, float32(0.5), adam.GetLR())
}
