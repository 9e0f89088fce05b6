package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/vae/internal/errs"
)

const jsonDoc = `{
  "model_params": {"batch_size": 8, "latent_dim": 10, "beta": 0.5, "model": "cnn",
                   "channel_in": 2, "hidden_dims": [8, 16]},
  "train_params": {"learning_rate": 0.01, "epochs": 3, "loading_checkpoint": true,
                   "eval_interval": 2, "device": "cpu"},
  "random_seed": {"manual_seed": 7, "cuda_manual_seed": 9},
  "Path": {"train_data_path": "train.npy", "test_data_path": "test.npy",
           "save_path": "out", "log_path": "logs"}
}`

const yamlDoc = `
model_params:
  batch_size: 8
  latent_dim: 10
  beta: 0.5
  model: linear
  channel_in: 2
train_params:
  learning_rate: 0.01
  epochs: 3
  eval_interval: 2
  device: cpu
random_seed:
  manual_seed: 7
Path:
  train_data_path: train.npy
  test_data_path: test.npy
  save_path: out
  log_path: logs
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadJSON(t *testing.T) {
	cfg, err := Load(writeFile(t, "cfg.json", jsonDoc))
	require.NoError(t, err)

	assert.Equal(t, 8, cfg.ModelParams.BatchSize)
	assert.Equal(t, []int{8, 16}, cfg.ModelParams.HiddenDims)
	assert.InDelta(t, 0.5, cfg.ModelParams.Beta, 1e-12)
	assert.True(t, cfg.TrainParams.LoadingCheckpoint)
	assert.Equal(t, int64(9), cfg.RandomSeed.CUDAManualSeed)
	assert.Equal(t, "logs", cfg.Path.LogPath)
}

func TestLoadYAMLUsesDefaults(t *testing.T) {
	cfg, err := Load(writeFile(t, "cfg.yaml", yamlDoc))
	require.NoError(t, err)

	assert.Equal(t, ModelLinear, cfg.ModelParams.Model)
	assert.Equal(t, []int{32, 64, 128, 256}, cfg.ModelParams.HiddenDims)
	assert.Equal(t, []int{256, 128, 64, 64, 64}, cfg.ModelParams.DecoderDims)
	assert.Equal(t, 31, cfg.ModelParams.FinalKernel)
	assert.Equal(t, int64(42), cfg.RandomSeed.CUDAManualSeed)
	assert.False(t, cfg.TrainParams.LoadingCheckpoint)
}

func TestUnknownFieldsRejected(t *testing.T) {
	tests := []struct {
		name, file, doc string
	}{
		{"json", "cfg.json", `{"model_params": {"batch_size": 4, "dropout": 0.1}}`},
		{"yaml", "cfg.yml", "model_params:\n  dropout: 0.1\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, tt.file, tt.doc))
			assert.ErrorIs(t, err, errs.ErrConfiguration)
		})
	}
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		c := Default()
		c.Path = Paths{TrainDataPath: "a", TestDataPath: "b", SavePath: "c", LogPath: "d"}
		return c
	}
	c := valid()
	require.NoError(t, c.Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"batch size", func(c *Config) { c.ModelParams.BatchSize = 0 }},
		{"model", func(c *Config) { c.ModelParams.Model = "resnet" }},
		{"device", func(c *Config) { c.TrainParams.Device = "cuda" }},
		{"eval interval", func(c *Config) { c.TrainParams.EvalInterval = 0 }},
		{"negative hidden dim", func(c *Config) { c.ModelParams.HiddenDims = []int{8, -1} }},
		{"empty decoder dims", func(c *Config) { c.ModelParams.DecoderDims = nil }},
		{"final kernel", func(c *Config) { c.ModelParams.FinalKernel = 0 }},
		{"missing log path", func(c *Config) { c.Path.LogPath = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(&c)
			assert.ErrorIs(t, c.Validate(), errs.ErrConfiguration)
		})
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("VAE_SAVE_PATH", "/override/save")
	t.Setenv("VAE_EPOCHS", "5")

	cfg, err := Load(writeFile(t, "cfg.json", jsonDoc))
	require.NoError(t, err)
	assert.Equal(t, "/override/save", cfg.Path.SavePath)
	assert.Equal(t, 5, cfg.TrainParams.Epochs)
	assert.Equal(t, "logs", cfg.Path.LogPath)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load("")
	assert.ErrorIs(t, err, errs.ErrConfiguration)

	_, err = Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.ErrorIs(t, err, errs.ErrIO)
}
