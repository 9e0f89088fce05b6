package main

import (
	"github.com/spf13/cobra"

	"github.com/born-ml/vae/internal/config"
	"github.com/born-ml/vae/internal/train"
)

func newTrainCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train a VAE from a configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			t, err := train.New(cfg, train.WithConsole(cmd.OutOrStdout()))
			if err != nil {
				return err
			}
			return t.Run(cmd.Context())
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "config.json", "Configuration file (.json, .yaml or .yml)")
	return cmd
}
