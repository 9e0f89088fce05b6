package main

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/born-ml/vae/internal/serialization"
)

func newInspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect FILE",
		Short: "Show the header and tensors of a .born file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := serialization.Open(args[0])
			if err != nil {
				return err
			}
			return inspect(cmd.OutOrStdout(), r)
		},
	}
}

func inspect(w io.Writer, r *serialization.BornReader) error {
	h := r.Header()
	fmt.Fprintf(w, "type:     %s\n", h.ModelType)
	fmt.Fprintf(w, "producer: %s (format v%d)\n", h.Producer, h.FormatVersion)
	fmt.Fprintf(w, "created:  %s\n", h.CreatedAt.Format(time.RFC3339))
	if c := h.Checkpoint; c != nil {
		fmt.Fprintf(w, "epoch:    %d (step %d)\n", c.Epoch, c.Step)
		fmt.Fprintf(w, "loss:     %.4f\n", c.Loss)
		fmt.Fprintf(w, "optim:    %s %v\n", c.OptimizerType, c.OptimizerConfig)
		fmt.Fprintf(w, "run id:   %s\n", c.RunID)
	}
	for _, k := range slices.Sorted(maps.Keys(h.Metadata)) {
		fmt.Fprintf(w, "  %s: %s\n", k, h.Metadata[k])
	}
	fmt.Fprintln(w)

	var data [][]string
	var total int64
	for _, name := range r.TensorNames() {
		meta, err := r.TensorInfo(name)
		if err != nil {
			return err
		}
		total += meta.Size
		data = append(data, []string{name, meta.DType, fmt.Sprint(meta.Shape), strconv.FormatInt(meta.Size, 10)})
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"NAME", "DTYPE", "SHAPE", "BYTES"})
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	table.AppendBulk(data)
	table.Render()

	fmt.Fprintf(w, "\n%d tensors, %d bytes\n", len(data), total)
	return nil
}
