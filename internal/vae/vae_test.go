package vae_test

import (
	"math"
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/stat"

	"github.com/born-ml/vae/internal/autodiff"
	"github.com/born-ml/vae/internal/backend/cpu"
	"github.com/born-ml/vae/internal/config"
	"github.com/born-ml/vae/internal/errs"
	"github.com/born-ml/vae/internal/nn"
	"github.com/born-ml/vae/internal/tensor"
	"github.com/born-ml/vae/internal/vae"
)

type Backend = *autodiff.AutodiffBackend[*cpu.CPUBackend]

func newRNG() *rand.Rand { return rand.New(rand.NewSource(42)) }

// smallCNN reconstructs 20x20 inputs: 20 -> 8 -> 2, seed 2 -> 4, final 21 -> 20.
func smallCNN() vae.CNNConfig {
	return vae.CNNConfig{
		ChannelIn:   2,
		LatentDim:   3,
		HiddenDims:  []int{8, 16},
		DecoderDims: []int{16, 8},
		SeedSize:    2,
		FinalKernel: 17,
	}
}

func fromSlice(t *testing.T, backend Backend, data []float32, shape ...int) *tensor.Tensor[float32, Backend] {
	t.Helper()
	x, err := tensor.FromSlice(data, tensor.Shape(shape), backend)
	require.NoError(t, err)
	return x
}

func uniformInput(backend Backend, shape ...int) *tensor.Tensor[float32, Backend] {
	return tensor.Uniform[float32](tensor.Shape(shape), 0, 1, rand.New(rand.NewSource(7)), backend)
}

func TestPlanDefault(t *testing.T) {
	p, err := vae.PlanCNN(vae.DefaultCNNConfig(2, 20), 90, 90)
	require.NoError(t, err)

	want := []vae.Size{{43, 43}, {20, 20}, {8, 8}, {2, 2}}
	if diff := cmp.Diff(want, p.Encoder); diff != "" {
		t.Errorf("encoder sizes mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 256*4, p.Flat)
	assert.Equal(t, []vae.Size{{4, 4}, {8, 8}, {16, 16}, {32, 32}}, p.Decoder)
	assert.Equal(t, vae.Size{91, 91}, p.Final)
	assert.Equal(t, vae.Size{90, 90}, p.Output)
}

func TestPlanSmall(t *testing.T) {
	p, err := vae.PlanCNN(smallCNN(), 20, 20)
	require.NoError(t, err)
	assert.Equal(t, []vae.Size{{8, 8}, {2, 2}}, p.Encoder)
	assert.Equal(t, 16*4, p.Flat)
	assert.Equal(t, vae.Size{21, 21}, p.Final)
	assert.Equal(t, "20x20", p.Output.String())
}

func TestPlanErrors(t *testing.T) {
	tests := []struct {
		name   string
		cfg    func() vae.CNNConfig
		h, w   int
		target error
	}{
		{"input too small", smallCNN, 4, 4, errs.ErrShapeMismatch},
		{"encoder misses seed", smallCNN, 28, 28, errs.ErrShapeMismatch},
		{"wrong reconstruction", func() vae.CNNConfig {
			c := smallCNN()
			c.FinalKernel = 15
			return c
		}, 20, 20, errs.ErrShapeMismatch},
		{"default on 64x64", func() vae.CNNConfig { return vae.DefaultCNNConfig(2, 20) }, 64, 64, errs.ErrShapeMismatch},
		{"no hidden dims", func() vae.CNNConfig {
			c := smallCNN()
			c.HiddenDims = nil
			return c
		}, 20, 20, errs.ErrConfiguration},
		{"zero latent", func() vae.CNNConfig {
			c := smallCNN()
			c.LatentDim = 0
			return c
		}, 20, 20, errs.ErrConfiguration},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := vae.PlanCNN(tt.cfg(), tt.h, tt.w)
			assert.ErrorIs(t, err, tt.target)
		})
	}
}

func TestReparameterizeEvalReturnsMu(t *testing.T) {
	backend := autodiff.New(cpu.New())
	mu := fromSlice(t, backend, []float32{1, 2, 3}, 1, 3)
	logvar := fromSlice(t, backend, []float32{0, 0, 0}, 1, 3)

	z := vae.Reparameterize(mu, logvar, nn.Eval, newRNG())
	assert.Equal(t, mu.Data(), z.Data())
}

func TestReparameterizeMoments(t *testing.T) {
	backend := autodiff.New(cpu.New())
	const n = 20000
	mu := tensor.Full[float32](tensor.Shape{n, 1}, 1, backend)
	logvar := tensor.Full[float32](tensor.Shape{n, 1}, float32(math.Log(4)), backend)

	z := vae.Reparameterize(mu, logvar, nn.Train, newRNG())
	samples := make([]float64, n)
	for i, v := range z.Data() {
		samples[i] = float64(v)
	}
	mean, variance := stat.MeanVariance(samples, nil)
	assert.InDelta(t, 1.0, mean, 0.05)
	assert.InDelta(t, 4.0, variance, 0.15)
}

func TestReparameterizeSeeded(t *testing.T) {
	backend := autodiff.New(cpu.New())
	mu := tensor.Zeros[float32](tensor.Shape{2, 4}, backend)
	logvar := tensor.Zeros[float32](tensor.Shape{2, 4}, backend)

	a := vae.Reparameterize(mu, logvar, nn.Train, newRNG())
	b := vae.Reparameterize(mu, logvar, nn.Train, newRNG())
	if diff := cmp.Diff(a.Data(), b.Data()); diff != "" {
		t.Errorf("same seed produced different noise (-a +b):\n%s", diff)
	}
}

func TestLossKnownValues(t *testing.T) {
	backend := autodiff.New(cpu.New())
	x := fromSlice(t, backend, []float32{1, 0}, 1, 2)
	xHat := fromSlice(t, backend, []float32{0.5, 0.5}, 1, 2)
	mu := fromSlice(t, backend, []float32{0, 0}, 1, 2)
	logvar := fromSlice(t, backend, []float32{0, 0}, 1, 2)

	terms, err := vae.Loss(x, xHat, mu, logvar, 1)
	require.NoError(t, err)
	assert.InDelta(t, 2*math.Ln2, terms.Reconstruction, 1e-5)
	assert.InDelta(t, 0, terms.KL, 1e-7)
	assert.InDelta(t, 2*math.Ln2, terms.Value(), 1e-5)

	mu = fromSlice(t, backend, []float32{1, -1}, 1, 2)
	terms, err = vae.Loss(x, xHat, mu, logvar, 0.5)
	require.NoError(t, err)
	assert.InDelta(t, 1, terms.KL, 1e-6)
	assert.InDelta(t, 2*math.Ln2+0.5, terms.Value(), 1e-5)
	assert.Zero(t, terms.Clamped)
}

func TestLossNonNegative(t *testing.T) {
	backend := autodiff.New(cpu.New())
	rng := rand.New(rand.NewSource(3))
	draw := func(n int, f func() float32) []float32 {
		v := make([]float32, n)
		for i := range v {
			v[i] = f()
		}
		return v
	}
	unit := func() float32 {
		// hit the endpoints of [0, 1] as well as the interior
		switch rng.Intn(8) {
		case 0:
			return 0
		case 1:
			return 1
		default:
			return rng.Float32()
		}
	}

	for trial := 0; trial < 50; trial++ {
		batch, features, latent := 1+rng.Intn(4), 1+rng.Intn(16), 1+rng.Intn(5)
		x := fromSlice(t, backend, draw(batch*features, unit), batch, features)
		xHat := fromSlice(t, backend, draw(batch*features, unit), batch, features)
		mu := fromSlice(t, backend, draw(batch*latent, func() float32 { return float32(rng.NormFloat64() * 2) }), batch, latent)
		logvar := fromSlice(t, backend, draw(batch*latent, func() float32 { return rng.Float32()*10 - 5 }), batch, latent)
		beta := rng.Float64() * 4

		terms, err := vae.Loss(x, xHat, mu, logvar, beta)
		require.NoError(t, err, "trial %d", trial)
		if terms.Reconstruction < 0 || terms.KL < -1e-4 || terms.Value() < 0 {
			t.Errorf("trial %d: negative loss: reconstruction %g, KL %g, total %g",
				trial, terms.Reconstruction, terms.KL, terms.Value())
		}
	}
}

func TestLossReshapesMatchingSizes(t *testing.T) {
	backend := autodiff.New(cpu.New())
	x := fromSlice(t, backend, []float32{1, 0, 1, 0}, 1, 1, 2, 2)
	xHat := fromSlice(t, backend, []float32{0.9, 0.1, 0.9, 0.1}, 1, 4)
	zero := fromSlice(t, backend, []float32{0}, 1, 1)

	terms, err := vae.Loss(x, xHat, zero, zero, 1)
	require.NoError(t, err)
	assert.InDelta(t, -4*math.Log(0.9), terms.Reconstruction, 1e-5)

	_, err = vae.Loss(fromSlice(t, backend, []float32{1, 0, 1}, 1, 3), xHat, zero, zero, 1)
	assert.ErrorIs(t, err, errs.ErrShapeMismatch)
}

func TestLossClampsLogvar(t *testing.T) {
	backend := autodiff.New(cpu.New())
	x := fromSlice(t, backend, []float32{0.5}, 1, 1)
	mu := fromSlice(t, backend, []float32{0}, 1, 1)
	logvar := fromSlice(t, backend, []float32{80}, 1, 1)

	terms, err := vae.Loss(x, x, mu, logvar, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, terms.Clamped)
	assert.False(t, math.IsInf(terms.KL, 0))
	assert.InDelta(t, 0.5*(math.Exp(20)-21), terms.KL, 1e3)
}

func TestLossNaN(t *testing.T) {
	backend := autodiff.New(cpu.New())
	x := fromSlice(t, backend, []float32{1}, 1, 1)
	xHat := fromSlice(t, backend, []float32{float32(math.NaN())}, 1, 1)
	zero := fromSlice(t, backend, []float32{0}, 1, 1)

	_, err := vae.Loss(x, xHat, zero, zero, 1)
	assert.ErrorIs(t, err, errs.ErrNumericInstability)
}

func TestLossGradients(t *testing.T) {
	backend := autodiff.New(cpu.New())
	backend.Tape().StartRecording()
	x := fromSlice(t, backend, []float32{1, 0}, 1, 2)
	xHat := fromSlice(t, backend, []float32{0.5, 0.5}, 1, 2)
	mu := fromSlice(t, backend, []float32{2, 0}, 1, 2)
	logvar := fromSlice(t, backend, []float32{0, 1}, 1, 2)

	terms, err := vae.Loss(x, xHat, mu, logvar, 1)
	require.NoError(t, err)
	grads := autodiff.Backward(terms.Total, backend)

	// d/dmu = mu, d/dlogvar = 0.5*(exp(lv) - 1)
	opt := cmpopts.EquateApprox(0, 1e-5)
	if diff := cmp.Diff([]float32{2, 0}, grads[mu.Raw()].AsFloat32(), opt); diff != "" {
		t.Errorf("mu grad mismatch (-want +got):\n%s", diff)
	}
	want := []float32{0, float32(0.5 * (math.E - 1))}
	if diff := cmp.Diff(want, grads[logvar.Raw()].AsFloat32(), opt); diff != "" {
		t.Errorf("logvar grad mismatch (-want +got):\n%s", diff)
	}
}

func TestCNNForwardShapes(t *testing.T) {
	backend := autodiff.New(cpu.New())
	m, err := vae.NewCNNVAE(smallCNN(), 20, 20, newRNG(), backend)
	require.NoError(t, err)
	want, err := vae.PlanCNN(smallCNN(), 20, 20)
	require.NoError(t, err)
	if diff := cmp.Diff(want, m.Plan()); diff != "" {
		t.Errorf("plan mismatch (-want +got):\n%s", diff)
	}

	x := uniformInput(backend, 3, 2, 20, 20)
	for _, mode := range []nn.Mode{nn.Train, nn.Eval} {
		xHat, mu, logvar := m.Forward(x, mode)
		assert.Equal(t, tensor.Shape{3, 2, 20, 20}, xHat.Shape(), mode.String())
		assert.Equal(t, tensor.Shape{3, 3}, mu.Shape(), mode.String())
		assert.Equal(t, tensor.Shape{3, 3}, logvar.Shape(), mode.String())
		for _, v := range xHat.Data() {
			if v <= 0 || v >= 1 {
				t.Fatalf("%s: reconstruction value %f outside (0, 1)", mode, v)
			}
		}
	}
}

func TestCNNStateDictNames(t *testing.T) {
	backend := autodiff.New(cpu.New())
	m, err := vae.NewCNNVAE(smallCNN(), 20, 20, newRNG(), backend)
	require.NoError(t, err)

	state := m.StateDict()
	for _, name := range []string{
		"encoder.0.0.weight",
		"encoder.1.1.running_var",
		"fc_mu.weight",
		"fc_logvar.bias",
		"decoder_input.weight",
		"decoder.0.0.weight",
		"final_layer.0.weight",
		"final_layer.1.running_mean",
		"final_layer.3.bias",
	} {
		assert.Contains(t, state, name)
	}
	assert.Equal(t, tensor.Shape{16 * 4, 3}, state["decoder_input.weight"].Shape())
	assert.Equal(t, tensor.Shape{2, 8, 2, 2}, state["final_layer.3.weight"].Shape())
}

func TestLinearForwardAndNames(t *testing.T) {
	backend := autodiff.New(cpu.New())
	m, err := vae.NewLinearVAE(8, 3, newRNG(), backend)
	require.NoError(t, err)
	assert.Equal(t, 8, m.InputDim())

	xHat, mu, logvar := m.Forward(uniformInput(backend, 5, 2, 2, 2), nn.Train)
	assert.Equal(t, tensor.Shape{5, 8}, xHat.Shape())
	assert.Equal(t, tensor.Shape{5, 3}, mu.Shape())
	assert.Equal(t, tensor.Shape{5, 3}, logvar.Shape())

	state := m.StateDict()
	assert.Len(t, state, 10)
	assert.Equal(t, tensor.Shape{9, 8}, state["encoder.0.weight"].Shape())
	assert.Equal(t, tensor.Shape{3, 9}, state["fc_mu.weight"].Shape())
	assert.Equal(t, tensor.Shape{8, 9}, state["decoder.2.weight"].Shape())
	assert.Len(t, m.Parameters(), 10)
}

func TestStateDictRoundTrip(t *testing.T) {
	backend := autodiff.New(cpu.New())
	src, err := vae.NewCNNVAE(smallCNN(), 20, 20, newRNG(), backend)
	require.NoError(t, err)
	x := uniformInput(backend, 2, 2, 20, 20)
	src.Forward(x, nn.Train) // moves running stats off their initial values

	dst, err := vae.NewCNNVAE(smallCNN(), 20, 20, rand.New(rand.NewSource(1)), backend)
	require.NoError(t, err)
	require.NoError(t, dst.LoadStateDict(src.StateDict()))

	want, _, _ := src.Forward(x, nn.Eval)
	got, _, _ := dst.Forward(x, nn.Eval)
	if diff := cmp.Diff(want.Data(), got.Data()); diff != "" {
		t.Errorf("loaded model differs (-src +dst):\n%s", diff)
	}

	state := src.StateDict()
	delete(state, "fc_mu.bias")
	err = dst.LoadStateDict(state)
	assert.ErrorIs(t, err, errs.ErrFormat)
}

func TestNewFromConfig(t *testing.T) {
	backend := autodiff.New(cpu.New())
	params := config.Default().ModelParams
	params.LatentDim = 3
	params.HiddenDims = []int{8, 16}
	params.DecoderDims = []int{16, 8}
	params.FinalKernel = 17

	m, err := vae.New(params, tensor.Shape{2, 20, 20}, newRNG(), backend)
	require.NoError(t, err)
	assert.Equal(t, config.ModelCNN, m.Kind())
	assert.Equal(t, 3, m.LatentDim())

	_, err = vae.New(params, tensor.Shape{2, 24, 24}, newRNG(), backend)
	assert.ErrorIs(t, err, errs.ErrShapeMismatch)

	_, err = vae.New(params, tensor.Shape{3, 20, 20}, newRNG(), backend)
	assert.ErrorIs(t, err, errs.ErrShapeMismatch)

	params.Model = config.ModelLinear
	m, err = vae.New(params, tensor.Shape{800}, newRNG(), backend)
	require.NoError(t, err)
	assert.Equal(t, config.ModelLinear, m.Kind())

	params.Model = "gan"
	_, err = vae.New(params, tensor.Shape{800}, newRNG(), backend)
	assert.ErrorIs(t, err, errs.ErrConfiguration)
}
