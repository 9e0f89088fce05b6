// Package train runs VAE training: seeded epochs over a .npy dataset,
// periodic evaluation with model and latent dumps, and a resumable
// checkpoint at the end of the run.
package train

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/born-ml/vae/internal/autodiff"
	"github.com/born-ml/vae/internal/backend/cpu"
	"github.com/born-ml/vae/internal/config"
	"github.com/born-ml/vae/internal/dataset"
	"github.com/born-ml/vae/internal/errs"
	"github.com/born-ml/vae/internal/nn"
	"github.com/born-ml/vae/internal/optim"
	"github.com/born-ml/vae/internal/vae"
)

// Backend is the autodiff CPU backend every trainer runs on.
type Backend = *autodiff.AutodiffBackend[*cpu.CPUBackend]

// CheckpointFile is the checkpoint name inside log_path.
const CheckpointFile = "checkpoint.born"

// Trainer owns one training run.
type Trainer struct {
	cfg     *config.Config
	backend Backend

	trainSet, testSet       *dataset.Dataset
	trainLoader, testLoader *dataset.Loader

	model     vae.Model[Backend]
	optimizer *optim.Adam[Backend]

	startEpoch int
	runID      string
	lastLoss   float64 // last training batch total
	step       int64

	console io.Writer
	now     func() time.Time
}

// Option configures a Trainer.
type Option func(*Trainer)

// WithConsole redirects the per-epoch lines (default os.Stdout).
func WithConsole(w io.Writer) Option {
	return func(t *Trainer) { t.console = w }
}

// New opens the datasets, builds the model and optimizer and, when
// loading_checkpoint is set, restores the checkpoint from log_path.
func New(cfg *config.Config, opts ...Option) (*Trainer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	t := &Trainer{
		cfg:        cfg,
		backend:    autodiff.New(cpu.New()),
		startEpoch: 1,
		console:    os.Stdout,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}

	var dsOpts []dataset.Option
	if cfg.ModelParams.Model == config.ModelLinear {
		dsOpts = append(dsOpts, dataset.WithFlatten())
	}
	var err error
	if t.trainSet, err = dataset.Open(cfg.Path.TrainDataPath, dsOpts...); err != nil {
		return nil, fmt.Errorf("train data: %w", err)
	}
	if t.testSet, err = dataset.Open(cfg.Path.TestDataPath, dsOpts...); err != nil {
		return nil, fmt.Errorf("test data: %w", err)
	}
	if !t.trainSet.SampleShape().Equal(t.testSet.SampleShape()) {
		return nil, fmt.Errorf("%w: train samples %v, test samples %v",
			errs.ErrShapeMismatch, t.trainSet.SampleShape(), t.testSet.SampleShape())
	}
	if t.trainLoader, err = dataset.NewLoader(t.trainSet, cfg.ModelParams.BatchSize); err != nil {
		return nil, fmt.Errorf("%w: %w", errs.ErrConfiguration, err)
	}
	if t.testLoader, err = dataset.NewLoader(t.testSet, cfg.ModelParams.BatchSize); err != nil {
		return nil, fmt.Errorf("%w: %w", errs.ErrConfiguration, err)
	}

	rng := rand.New(rand.NewSource(cfg.RandomSeed.ManualSeed))
	if t.model, err = vae.New(cfg.ModelParams, t.trainSet.SampleShape(), rng, t.backend); err != nil {
		return nil, fmt.Errorf("build model: %w", err)
	}
	t.optimizer = optim.NewAdam(t.model.Parameters(), optim.AdamConfig{
		LR: float32(cfg.TrainParams.LearningRate),
	}, t.backend)

	slog.Info("model ready",
		"model", t.model.Kind(),
		"latent_dim", t.model.LatentDim(),
		"parameters", countParameters(t.model),
		"train_samples", t.trainSet.Len(),
		"test_samples", t.testSet.Len(),
		"sample_shape", t.trainSet.SampleShape())

	if cfg.TrainParams.LoadingCheckpoint {
		if err := t.resume(); err != nil {
			return nil, err
		}
	}
	return t, nil
}

func (t *Trainer) resume() error {
	path := filepath.Join(t.cfg.Path.LogPath, CheckpointFile)
	ckpt, err := nn.LoadCheckpoint(path, t.model, t.optimizer)
	if err != nil {
		return fmt.Errorf("resume from %s: %w", path, err)
	}
	if kind := ckpt.Metadata["model"]; kind != "" && kind != t.model.Kind() {
		return fmt.Errorf("%w: checkpoint holds a %s model, configured %s",
			errs.ErrConfiguration, kind, t.model.Kind())
	}
	t.startEpoch = ckpt.Epoch + 1
	t.runID = ckpt.RunID
	t.lastLoss = ckpt.Loss
	t.step = ckpt.Step
	slog.Info("resumed from checkpoint", "path", path, "epoch", ckpt.Epoch, "run_id", ckpt.RunID)
	return nil
}

// Model returns the trained model.
func (t *Trainer) Model() vae.Model[Backend] { return t.model }

// StartEpoch returns the first epoch Run will train.
func (t *Trainer) StartEpoch() int { return t.startEpoch }

// Run trains epochs StartEpoch()..epochs, evaluating every eval_interval
// epochs, then writes the last artifacts and the checkpoint. Cancellation
// is checked between batches and leaves the previous checkpoint in place.
func (t *Trainer) Run(ctx context.Context) error {
	tp := t.cfg.TrainParams
	for _, dir := range []string{t.cfg.Path.SavePath, t.cfg.Path.LogPath} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("%w: %w", errs.ErrIO, err)
		}
	}
	history, err := openHistory(filepath.Join(t.cfg.Path.LogPath, HistoryFile))
	if err != nil {
		return err
	}
	defer history.Close()

	if t.startEpoch > tp.Epochs {
		slog.Info("nothing to train", "start_epoch", t.startEpoch, "epochs", tp.Epochs)
		return nil
	}

	var (
		trainRes *evalResult
		testRes  *evalResult
		epoch    int
	)
	evaluatedLast := false
	for epoch = t.startEpoch; epoch <= tp.Epochs; epoch++ {
		start := t.now()
		trainRes, err = t.trainEpoch(ctx, epoch)
		if err != nil {
			return fmt.Errorf("epoch %d: %w", epoch, err)
		}

		testLoss := ""
		evaluatedLast = epoch%tp.EvalInterval == 0
		if evaluatedLast {
			if testRes, err = t.evaluate(ctx); err != nil {
				return fmt.Errorf("epoch %d: evaluate: %w", epoch, err)
			}
			if err := t.saveArtifacts(strconv.Itoa(epoch), trainRes, testRes); err != nil {
				return err
			}
			testLoss = formatLoss(testRes.loss / float64(t.testSet.Len()))
			slog.Info("evaluated", "epoch", epoch, "test_loss", testLoss)
		}

		avg := trainRes.loss / float64(t.trainSet.Len())
		fmt.Fprintf(t.console, "====> Epoch: %d Average loss:%.4f\n", epoch, avg)
		if err := history.append(epoch, avg, testLoss, t.now().Sub(start)); err != nil {
			return err
		}
	}
	epoch--

	if !evaluatedLast {
		if testRes, err = t.evaluate(ctx); err != nil {
			return fmt.Errorf("final evaluate: %w", err)
		}
	}
	if err := t.saveArtifacts("last", trainRes, testRes); err != nil {
		return err
	}
	return t.saveCheckpoint(epoch)
}

func (t *Trainer) saveCheckpoint(epoch int) error {
	path := filepath.Join(t.cfg.Path.LogPath, CheckpointFile)
	ckpt := &nn.Checkpoint{
		Model:     t.model,
		Optimizer: t.optimizer,
		Epoch:     epoch,
		Step:      t.step,
		Loss:      t.lastLoss,
		RunID:     t.runID,
		Metadata:  t.metadata(),
	}
	if err := ckpt.Save(path); err != nil {
		return err
	}
	t.runID = ckpt.RunID
	slog.Info("saved checkpoint", "path", path, "epoch", epoch, "run_id", ckpt.RunID)
	return nil
}

func (t *Trainer) metadata() map[string]string {
	mp, rs := t.cfg.ModelParams, t.cfg.RandomSeed
	return map[string]string{
		"model":            mp.Model,
		"latent_dim":       strconv.Itoa(mp.LatentDim),
		"beta":             strconv.FormatFloat(mp.Beta, 'g', -1, 64),
		"manual_seed":      strconv.FormatInt(rs.ManualSeed, 10),
		"cuda_manual_seed": strconv.FormatInt(rs.CUDAManualSeed, 10),
	}
}

func countParameters(m vae.Model[Backend]) int {
	total := 0
	for _, p := range m.Parameters() {
		total += p.Tensor().NumElements()
	}
	return total
}

// IsCanceled reports whether err ends a run because its context was done.
func IsCanceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
