// Package main provides the vae command line: training, checkpoint
// inspection and reconstruction rendering.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/born-ml/vae/internal/envconfig"
	"github.com/born-ml/vae/internal/train"
)

const version = "v0.1.0"

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: envconfig.LogLevel()})))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		if train.IsCanceled(err) {
			fmt.Fprintln(os.Stderr, "interrupted")
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "vae",
		Short:         "Train and inspect variational autoencoders",
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		Run: func(cmd *cobra.Command, _ []string) {
			if v, _ := cmd.Flags().GetBool("version"); v {
				fmt.Fprintf(cmd.OutOrStdout(), "vae %s\n", version)
				return
			}
			cmd.Print(cmd.UsageString())
		},
	}
	root.Flags().BoolP("version", "v", false, "Show version information")

	trainCmd := newTrainCmd()
	appendEnvDocs(trainCmd)
	root.AddCommand(trainCmd, newInspectCmd(), newRenderCmd())
	return root
}

func appendEnvDocs(cmd *cobra.Command) {
	vars := envconfig.AsMap()
	usage := "\nEnvironment Variables:\n"
	for _, key := range []string{"VAE_DEBUG", "VAE_SAVE_PATH", "VAE_LOG_PATH", "VAE_TRAIN_DATA", "VAE_TEST_DATA", "VAE_EPOCHS"} {
		usage += fmt.Sprintf("      %-24s   %s\n", vars[key].Name, vars[key].Description)
	}
	cmd.SetUsageTemplate(cmd.UsageTemplate() + usage)
}
