package nn

import (
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/born-ml/vae/internal/errs"
	"github.com/born-ml/vae/internal/serialization"
	"github.com/born-ml/vae/internal/tensor"
)

// optimizerPrefix namespaces optimizer tensors inside a checkpoint.
const optimizerPrefix = "optimizer."

// OptimizerState represents an optimizer that can save/load its state.
//
// This interface is used by checkpoints to serialize optimizer state
// without creating import cycles. Optimizers from the optim package
// implement this interface.
type OptimizerState interface {
	StateDict() map[string]*tensor.RawTensor
	LoadStateDict(stateDict map[string]*tensor.RawTensor) error

	// Name identifies the optimizer ("Adam").
	Name() string
	// Config returns the hyperparameters recorded in the header.
	Config() map[string]any
	GetLR() float32
}

// Checkpoint is a resumable training snapshot: model and optimizer state
// plus the epoch reached.
//
// Example:
//
//	ckpt := &nn.Checkpoint{Model: model, Optimizer: adam, Epoch: 10, Loss: 123.4}
//	err := ckpt.Save("checkpoint.born")
//
// To resume training:
//
//	ckpt, err := nn.LoadCheckpoint("checkpoint.born", model, adam)
//	startEpoch := ckpt.Epoch + 1
type Checkpoint struct {
	Model     Stateful
	Optimizer OptimizerState
	Epoch     int
	Step      int64
	Loss      float64
	RunID     string            // generated on Save when empty
	Metadata  map[string]string // training metadata (seed, model kind, ...)
	CreatedAt time.Time
}

// Save writes the checkpoint to path atomically. A failed save leaves any
// previous file at path untouched.
func (c *Checkpoint) Save(path string) error {
	state := make(map[string]*tensor.RawTensor)
	maps.Copy(state, c.Model.StateDict())
	for name, raw := range c.Optimizer.StateDict() {
		state[optimizerPrefix+name] = raw
	}

	if c.RunID == "" {
		c.RunID = uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}

	header := serialization.Header{
		ModelType: serialization.ModelTypeCheckpoint,
		CreatedAt: c.CreatedAt,
		Metadata:  maps.Clone(c.Metadata),
		Checkpoint: &serialization.CheckpointMeta{
			Epoch:           c.Epoch,
			Step:            c.Step,
			Loss:            c.Loss,
			OptimizerType:   c.Optimizer.Name(),
			OptimizerConfig: c.Optimizer.Config(),
			RunID:           c.RunID,
		},
	}
	if err := serialization.WriteFile(path, state, header); err != nil {
		return fmt.Errorf("%w: save checkpoint: %w", errs.ErrIO, err)
	}
	return nil
}

// LoadCheckpoint restores model and optimizer from the checkpoint at path.
//
// The model and optimizer must be pre-constructed with the same
// architecture and parameter order as when the checkpoint was saved.
func LoadCheckpoint(path string, model Stateful, optimizer OptimizerState) (*Checkpoint, error) {
	reader, err := serialization.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read checkpoint: %w", errs.ErrIO, err)
	}

	header := reader.Header()
	if header.ModelType != serialization.ModelTypeCheckpoint || header.Checkpoint == nil {
		return nil, fmt.Errorf("%w: %s is not a checkpoint (model type %q)", errs.ErrFormat, path, header.ModelType)
	}
	if header.Checkpoint.OptimizerType != optimizer.Name() {
		return nil, fmt.Errorf("%w: checkpoint optimizer %q, expected %q",
			errs.ErrConfiguration, header.Checkpoint.OptimizerType, optimizer.Name())
	}

	stateDict, err := reader.ReadStateDict()
	if err != nil {
		return nil, fmt.Errorf("failed to read state dict: %w", err)
	}

	modelState := make(map[string]*tensor.RawTensor)
	optimizerState := make(map[string]*tensor.RawTensor)
	for name, raw := range stateDict {
		if rest, ok := strings.CutPrefix(name, optimizerPrefix); ok {
			optimizerState[rest] = raw
		} else {
			modelState[name] = raw
		}
	}

	if err := model.LoadStateDict(modelState); err != nil {
		return nil, fmt.Errorf("failed to load model state: %w", err)
	}
	if err := optimizer.LoadStateDict(optimizerState); err != nil {
		return nil, fmt.Errorf("failed to load optimizer state: %w", err)
	}

	meta := header.Checkpoint
	return &Checkpoint{
		Model:     model,
		Optimizer: optimizer,
		Epoch:     meta.Epoch,
		Step:      meta.Step,
		Loss:      meta.Loss,
		RunID:     meta.RunID,
		Metadata:  header.Metadata,
		CreatedAt: header.CreatedAt,
	}, nil
}

// SaveModel writes a model-only snapshot to path.
func SaveModel(path string, model Stateful, metadata map[string]string) error {
	header := serialization.Header{
		ModelType: serialization.ModelTypeVAE,
		Metadata:  maps.Clone(metadata),
	}
	if err := serialization.WriteFile(path, model.StateDict(), header); err != nil {
		return fmt.Errorf("%w: save model: %w", errs.ErrIO, err)
	}
	return nil
}

// LoadModel restores model from a snapshot written by SaveModel or from
// the model part of a checkpoint, and returns the file metadata.
func LoadModel(path string, model Stateful) (map[string]string, error) {
	reader, err := serialization.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read model: %w", errs.ErrIO, err)
	}
	stateDict, err := reader.ReadStateDict()
	if err != nil {
		return nil, fmt.Errorf("failed to read state dict: %w", err)
	}
	if err := model.LoadStateDict(stateDict); err != nil {
		return nil, fmt.Errorf("failed to load model state: %w", err)
	}
	return reader.Metadata(), nil
}
