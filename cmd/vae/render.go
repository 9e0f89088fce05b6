package main

import (
	"fmt"
	"log/slog"
	"math/rand"

	"github.com/spf13/cobra"

	"github.com/born-ml/vae/internal/autodiff"
	"github.com/born-ml/vae/internal/backend/cpu"
	"github.com/born-ml/vae/internal/config"
	"github.com/born-ml/vae/internal/dataset"
	"github.com/born-ml/vae/internal/display"
	"github.com/born-ml/vae/internal/nn"
	"github.com/born-ml/vae/internal/tensor"
	"github.com/born-ml/vae/internal/vae"
)

type renderOptions struct {
	configPath string
	modelPath  string
	dataPath   string
	outPath    string
	count      int
}

func newRenderCmd() *cobra.Command {
	var opts renderOptions
	cmd := &cobra.Command{
		Use:   "render",
		Short: "Render inputs next to their reconstructions as a PNG",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return render(opts)
		},
	}
	cmd.Flags().StringVarP(&opts.configPath, "config", "c", "config.json", "Configuration the model was trained with")
	cmd.Flags().StringVarP(&opts.modelPath, "model", "m", "", "Model snapshot or checkpoint (.born)")
	cmd.Flags().StringVar(&opts.dataPath, "data", "", "Samples to reconstruct (default: the configured test data)")
	cmd.Flags().StringVarP(&opts.outPath, "out", "o", "compare.png", "Output PNG")
	cmd.Flags().IntVarP(&opts.count, "n", "n", 4, "Number of samples")
	_ = cmd.MarkFlagRequired("model")
	return cmd
}

func render(opts renderOptions) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	if opts.dataPath == "" {
		opts.dataPath = cfg.Path.TestDataPath
	}

	var dsOpts []dataset.Option
	if cfg.ModelParams.Model == config.ModelLinear {
		dsOpts = append(dsOpts, dataset.WithFlatten())
	}
	ds, err := dataset.Open(opts.dataPath, dsOpts...)
	if err != nil {
		return err
	}

	backend := autodiff.New(cpu.New())
	rng := rand.New(rand.NewSource(cfg.RandomSeed.ManualSeed))
	model, err := vae.New(cfg.ModelParams, ds.SampleShape(), rng, backend)
	if err != nil {
		return err
	}
	if _, err := nn.LoadModel(opts.modelPath, model); err != nil {
		return err
	}

	n := min(opts.count, ds.Len())
	if n <= 0 {
		return fmt.Errorf("nothing to render: %d samples requested, %d available", opts.count, ds.Len())
	}
	loader, err := dataset.NewLoader(ds, n)
	if err != nil {
		return err
	}
	batch, err := loader.Load(loader.Sequential()[0])
	if err != nil {
		return err
	}

	xHat, _, _ := model.Forward(tensor.New[float32](batch.X, backend), nn.Eval)

	images := tensor.Shape{n, dataset.Channels, ds.Height(), ds.Width()}
	in, err := batch.X.View(images)
	if err != nil {
		return err
	}
	out, err := xHat.Raw().View(images)
	if err != nil {
		return err
	}
	if err := display.Compare(in, out, n, opts.outPath); err != nil {
		return err
	}
	slog.Info("rendered reconstructions", "path", opts.outPath, "samples", n)
	return nil
}
