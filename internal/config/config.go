// Package config loads the training configuration document.
//
// The document is JSON by default and YAML when the file extension is
// .yaml or .yml. Unknown keys are rejected in both encodings.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/born-ml/vae/internal/envconfig"
	"github.com/born-ml/vae/internal/errs"
)

// Model architectures.
const (
	ModelCNN    = "cnn"
	ModelLinear = "linear"
)

// DeviceCPU is the only supported device.
const DeviceCPU = "cpu"

// Config is the full training configuration.
type Config struct {
	ModelParams ModelParams `json:"model_params" yaml:"model_params"`
	TrainParams TrainParams `json:"train_params" yaml:"train_params"`
	RandomSeed  RandomSeed  `json:"random_seed" yaml:"random_seed"`
	Path        Paths       `json:"Path" yaml:"Path"`
}

// ModelParams selects and sizes the model.
type ModelParams struct {
	BatchSize  int     `json:"batch_size" yaml:"batch_size"`
	LatentDim  int     `json:"latent_dim" yaml:"latent_dim"`
	Beta       float64 `json:"beta" yaml:"beta"`
	Model      string  `json:"model" yaml:"model"`
	ChannelIn  int     `json:"channel_in" yaml:"channel_in"`
	HiddenDims []int   `json:"hidden_dims" yaml:"hidden_dims"`

	// Decoder geometry of the cnn model. The defaults reconstruct 90x90.
	DecoderDims []int `json:"decoder_dims,omitempty" yaml:"decoder_dims,omitempty"`
	FinalKernel int   `json:"final_kernel,omitempty" yaml:"final_kernel,omitempty"`
}

// TrainParams controls the optimization loop.
type TrainParams struct {
	LearningRate      float64 `json:"learning_rate" yaml:"learning_rate"`
	Epochs            int     `json:"epochs" yaml:"epochs"`
	LoadingCheckpoint bool    `json:"loading_checkpoint" yaml:"loading_checkpoint"`
	EvalInterval      int     `json:"eval_interval" yaml:"eval_interval"`
	Device            string  `json:"device" yaml:"device"`
}

// RandomSeed seeds every random stream of a run. CUDAManualSeed is
// recorded in checkpoints only.
type RandomSeed struct {
	ManualSeed     int64 `json:"manual_seed" yaml:"manual_seed"`
	CUDAManualSeed int64 `json:"cuda_manual_seed" yaml:"cuda_manual_seed"`
}

// Paths locates inputs and outputs.
type Paths struct {
	TrainDataPath string `json:"train_data_path" yaml:"train_data_path"`
	TestDataPath  string `json:"test_data_path" yaml:"test_data_path"`
	SavePath      string `json:"save_path" yaml:"save_path"`
	LogPath       string `json:"log_path" yaml:"log_path"`
}

// Default returns the configuration used for keys the document omits.
func Default() Config {
	return Config{
		ModelParams: ModelParams{
			BatchSize:  4,
			LatentDim:  20,
			Beta:       1,
			Model:      ModelCNN,
			ChannelIn:  2,
			HiddenDims: []int{32, 64, 128, 256},

			DecoderDims: []int{256, 128, 64, 64, 64},
			FinalKernel: 31,
		},
		TrainParams: TrainParams{
			LearningRate: 1e-3,
			Epochs:       200,
			EvalInterval: 40,
			Device:       DeviceCPU,
		},
		RandomSeed: RandomSeed{ManualSeed: 42, CUDAManualSeed: 42},
	}
}

// Load reads the document at path over Default, applies environment
// overrides and validates the result.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: no configuration file given", errs.ErrConfiguration)
	}
	//nolint:gosec // G304: path is chosen by the operator
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read config: %w", errs.ErrIO, err)
	}

	cfg, err := Parse(data, filepath.Ext(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes a document. ext selects the encoding (".yaml", ".yml" or
// anything else for JSON).
func Parse(data []byte, ext string) (*Config, error) {
	cfg := Default()
	// a list in the document replaces the default rather than merging
	cfg.ModelParams.HiddenDims = nil
	cfg.ModelParams.DecoderDims = nil

	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil {
			return nil, fmt.Errorf("%w: decode yaml: %w", errs.ErrConfiguration, err)
		}
	default:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&cfg); err != nil {
			return nil, fmt.Errorf("%w: decode json: %w", errs.ErrConfiguration, err)
		}
	}

	if cfg.ModelParams.HiddenDims == nil {
		cfg.ModelParams.HiddenDims = Default().ModelParams.HiddenDims
	}
	if cfg.ModelParams.DecoderDims == nil {
		cfg.ModelParams.DecoderDims = Default().ModelParams.DecoderDims
	}
	return &cfg, nil
}

// ApplyEnv applies the VAE_* overrides from the environment.
func (c *Config) ApplyEnv() {
	if s := envconfig.SavePath(); s != "" {
		c.Path.SavePath = s
	}
	if s := envconfig.LogPath(); s != "" {
		c.Path.LogPath = s
	}
	if s := envconfig.TrainData(); s != "" {
		c.Path.TrainDataPath = s
	}
	if s := envconfig.TestData(); s != "" {
		c.Path.TestDataPath = s
	}
	if n := envconfig.Epochs(); n > 0 {
		c.TrainParams.Epochs = n
	}
}

// Validate checks every value the trainer depends on.
func (c *Config) Validate() error {
	mp, tp := c.ModelParams, c.TrainParams
	switch {
	case mp.BatchSize <= 0:
		return invalid("model_params.batch_size", mp.BatchSize)
	case mp.LatentDim <= 0:
		return invalid("model_params.latent_dim", mp.LatentDim)
	case mp.Beta < 0:
		return invalid("model_params.beta", mp.Beta)
	case mp.Model != ModelCNN && mp.Model != ModelLinear:
		return invalid("model_params.model", mp.Model)
	case mp.ChannelIn <= 0:
		return invalid("model_params.channel_in", mp.ChannelIn)
	case mp.Model == ModelCNN && len(mp.HiddenDims) == 0:
		return invalid("model_params.hidden_dims", mp.HiddenDims)
	case mp.Model == ModelCNN && len(mp.DecoderDims) == 0:
		return invalid("model_params.decoder_dims", mp.DecoderDims)
	case mp.Model == ModelCNN && mp.FinalKernel <= 0:
		return invalid("model_params.final_kernel", mp.FinalKernel)
	case tp.LearningRate <= 0:
		return invalid("train_params.learning_rate", tp.LearningRate)
	case tp.Epochs <= 0:
		return invalid("train_params.epochs", tp.Epochs)
	case tp.EvalInterval <= 0:
		return invalid("train_params.eval_interval", tp.EvalInterval)
	case tp.Device != DeviceCPU:
		return invalid("train_params.device", tp.Device)
	case c.Path.TrainDataPath == "":
		return invalid("Path.train_data_path", "")
	case c.Path.TestDataPath == "":
		return invalid("Path.test_data_path", "")
	case c.Path.SavePath == "":
		return invalid("Path.save_path", "")
	case c.Path.LogPath == "":
		return invalid("Path.log_path", "")
	}
	for i, d := range mp.HiddenDims {
		if d <= 0 {
			return invalid(fmt.Sprintf("model_params.hidden_dims[%d]", i), d)
		}
	}
	for i, d := range mp.DecoderDims {
		if d <= 0 {
			return invalid(fmt.Sprintf("model_params.decoder_dims[%d]", i), d)
		}
	}
	return nil
}

func invalid(key string, value any) error {
	return fmt.Errorf("%w: invalid %s: %v", errs.ErrConfiguration, key, value)
}
