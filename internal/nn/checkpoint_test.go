package nn_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/vae/internal/autodiff"
	"github.com/born-ml/vae/internal/backend/cpu"
	"github.com/born-ml/vae/internal/errs"
	"github.com/born-ml/vae/internal/nn"
	"github.com/born-ml/vae/internal/optim"
	"github.com/born-ml/vae/internal/serialization"
	"github.com/born-ml/vae/internal/tensor"
)

func trainedLinear(t *testing.T, backend Backend, seed int64) (*nn.Linear[Backend], *optim.Adam[Backend]) {
	t.Helper()
	model := nn.NewLinear(4, 3, newRNG(), backend)
	adam := optim.NewAdam(model.Parameters(), optim.AdamConfig{LR: 0.01}, backend)

	x := fromSlice(t, backend, []float32{1, -1, 0.5, 2, 0, 1, 1, -2}, 2, 4)
	for i := int64(0); i < seed; i++ {
		backend.Tape().StartRecording()
		loss := model.Forward(x, nn.Train).Sum()
		adam.Step(autodiff.Backward(loss, backend))
		backend.Tape().Clear()
	}
	return model, adam
}

func TestCheckpointRoundTrip(t *testing.T) {
	backend := autodiff.New(cpu.New())
	path := filepath.Join(t.TempDir(), "checkpoint.born")

	model, adam := trainedLinear(t, backend, 3)
	ckpt := &nn.Checkpoint{
		Model:     model,
		Optimizer: adam,
		Epoch:     7,
		Loss:      12.5,
		Metadata:  map[string]string{"manual_seed": "42"},
	}
	require.NoError(t, ckpt.Save(path))
	assert.NotEmpty(t, ckpt.RunID)

	fresh := nn.NewLinear(4, 3, newRNG(), backend)
	freshAdam := optim.NewAdam(fresh.Parameters(), optim.AdamConfig{LR: 0.01}, backend)
	loaded, err := nn.LoadCheckpoint(path, fresh, freshAdam)
	require.NoError(t, err)

	assert.Equal(t, 7, loaded.Epoch)
	assert.InDelta(t, 12.5, loaded.Loss, 1e-12)
	assert.Equal(t, ckpt.RunID, loaded.RunID)
	assert.Equal(t, "42", loaded.Metadata["manual_seed"])
	assert.Equal(t, 3, freshAdam.GetTimestep())
	assert.Equal(t, model.Weight().Raw().AsFloat32(), fresh.Weight().Raw().AsFloat32())
	assert.Equal(t, model.Bias().Raw().AsFloat32(), fresh.Bias().Raw().AsFloat32())

	r, err := serialization.Open(path)
	require.NoError(t, err)
	h := r.Header()
	assert.Equal(t, "Adam", h.Checkpoint.OptimizerType)
	assert.Contains(t, h.Checkpoint.OptimizerConfig, "betas")
	assert.Contains(t, r.TensorNames(), "optimizer.m.0")
}

func TestLoadCheckpointRejectsModelSnapshot(t *testing.T) {
	backend := autodiff.New(cpu.New())
	path := filepath.Join(t.TempDir(), "model.born")

	model, adam := trainedLinear(t, backend, 1)
	require.NoError(t, nn.SaveModel(path, model, nil))

	_, err := nn.LoadCheckpoint(path, model, adam)
	assert.ErrorIs(t, err, errs.ErrFormat)
}

func TestLoadCheckpointCorrupt(t *testing.T) {
	backend := autodiff.New(cpu.New())
	path := filepath.Join(t.TempDir(), "checkpoint.born")

	model, adam := trainedLinear(t, backend, 1)
	require.NoError(t, (&nn.Checkpoint{Model: model, Optimizer: adam, Epoch: 1}).Save(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	data[len(data)-1] ^= 0xFF
	require.NoError(t, os.WriteFile(path, data, 0o600))

	_, err = nn.LoadCheckpoint(path, model, adam)
	assert.ErrorIs(t, err, errs.ErrIO)
	assert.True(t, errors.Is(err, serialization.ErrChecksumMismatch), "got %v", err)
}

func TestSaveLoadModel(t *testing.T) {
	backend := autodiff.New(cpu.New())
	path := filepath.Join(t.TempDir(), "VAEmodel_1.born")

	model, _ := trainedLinear(t, backend, 2)
	require.NoError(t, nn.SaveModel(path, model, map[string]string{"epoch": "1"}))

	fresh := nn.NewLinear(4, 3, newRNG(), backend)
	meta, err := nn.LoadModel(path, fresh)
	require.NoError(t, err)
	assert.Equal(t, "1", meta["epoch"])
	assert.Equal(t, model.Weight().Raw().AsFloat32(), fresh.Weight().Raw().AsFloat32())

	wrong := nn.NewLinear(4, 2, newRNG(), backend)
	_, err = nn.LoadModel(path, wrong)
	assert.ErrorIs(t, err, errs.ErrShapeMismatch)

	_, err = nn.LoadModel(filepath.Join(t.TempDir(), "missing.born"), fresh)
	assert.ErrorIs(t, err, errs.ErrIO)
}

func TestCheckpointStateIsNamespaced(t *testing.T) {
	backend := autodiff.New(cpu.New())
	model, adam := trainedLinear(t, backend, 1)

	state := make(map[string]*tensor.RawTensor)
	nn.Prefix(state, "optimizer", adam.StateDict())
	for name := range model.StateDict() {
		assert.NotContains(t, state, name)
	}
	assert.Contains(t, state, "optimizer.step")
}
