package train

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/sbinet/npyio"
	"gonum.org/v1/gonum/mat"

	"github.com/born-ml/vae/internal/errs"
	"github.com/born-ml/vae/internal/nn"
	"github.com/born-ml/vae/internal/serialization"
	"github.com/born-ml/vae/internal/tensor"
)

// Artifact names inside save_path. The tag is an epoch number or "last".
func modelFile(tag string) string  { return "VAEmodel_" + tag + ".born" }
func muFile(tag string) string     { return "mu_list_" + tag + ".npy" }
func muTestFile(tag string) string { return "mu_list_test_" + tag + ".npy" }
func xTestFile(tag string) string  { return "x_test_" + tag + ".born" }

// InputsTensor is the tensor name in x_test files.
const InputsTensor = "x"

func (t *Trainer) saveArtifacts(tag string, trainRes, testRes *evalResult) error {
	dir := t.cfg.Path.SavePath
	if err := nn.SaveModel(filepath.Join(dir, modelFile(tag)), t.model, t.metadata()); err != nil {
		return err
	}
	if err := writeMatrix(filepath.Join(dir, muFile(tag)), trainRes.mu); err != nil {
		return err
	}
	if err := writeMatrix(filepath.Join(dir, muTestFile(tag)), testRes.mu); err != nil {
		return err
	}
	if err := writeInputs(filepath.Join(dir, xTestFile(tag)), testRes.x, t.metadata()); err != nil {
		return err
	}
	slog.Info("saved artifacts", "dir", dir, "tag", tag)
	return nil
}

// writeMatrix writes m as a float64 .npy array, going through a temporary
// file like serialization.WriteFile.
func writeMatrix(path string, m *mat.Dense) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("%w: %w", errs.ErrIO, err)
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	bw := bufio.NewWriter(tmp)
	if err = npyio.Write(bw, m); err != nil {
		return fmt.Errorf("%w: write %s: %w", errs.ErrIO, path, err)
	}
	if err = bw.Flush(); err != nil {
		return fmt.Errorf("%w: flush %s: %w", errs.ErrIO, path, err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("%w: close %s: %w", errs.ErrIO, path, err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("%w: %w", errs.ErrIO, err)
	}
	return nil
}

// ReadMatrix reads a latent dump written by the trainer.
func ReadMatrix(path string) (*mat.Dense, error) {
	f, err := os.Open(path) //nolint:gosec // G304: artifact path from the caller
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errs.ErrIO, err)
	}
	defer f.Close()

	var m mat.Dense
	if err := npyio.Read(f, &m); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", errs.ErrFormat, path, err)
	}
	return &m, nil
}

func writeInputs(path string, x *tensor.RawTensor, metadata map[string]string) error {
	header := serialization.Header{
		ModelType: serialization.ModelTypeTensors,
		Metadata:  metadata,
	}
	state := map[string]*tensor.RawTensor{InputsTensor: x}
	if err := serialization.WriteFile(path, state, header); err != nil {
		return fmt.Errorf("%w: save inputs: %w", errs.ErrIO, err)
	}
	return nil
}

// HistoryFile is the per-epoch loss log inside log_path.
const HistoryFile = "history.csv"

var historyColumns = []string{"epoch", "train_loss", "test_loss", "time_seconds"}

type historyWriter struct {
	f *os.File
	w *csv.Writer
}

// openHistory opens path for appending and writes the header row if the
// file is new.
func openHistory(path string) (*historyWriter, error) {
	_, statErr := os.Stat(path)
	fresh := errors.Is(statErr, fs.ErrNotExist)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644) //nolint:gosec // G304: log_path from config
	if err != nil {
		return nil, fmt.Errorf("%w: open history: %w", errs.ErrIO, err)
	}
	h := &historyWriter{f: f, w: csv.NewWriter(f)}
	if fresh {
		if err := h.write(historyColumns); err != nil {
			_ = f.Close()
			return nil, err
		}
	}
	return h, nil
}

func (h *historyWriter) append(epoch int, trainLoss float64, testLoss string, elapsed time.Duration) error {
	return h.write([]string{
		strconv.Itoa(epoch),
		formatLoss(trainLoss),
		testLoss,
		strconv.FormatFloat(elapsed.Seconds(), 'f', 3, 64),
	})
}

func (h *historyWriter) write(record []string) error {
	if err := h.w.Write(record); err != nil {
		return fmt.Errorf("%w: write history: %w", errs.ErrIO, err)
	}
	h.w.Flush()
	if err := h.w.Error(); err != nil {
		return fmt.Errorf("%w: write history: %w", errs.ErrIO, err)
	}
	return nil
}

func (h *historyWriter) Close() error { return h.f.Close() }

func formatLoss(v float64) string { return strconv.FormatFloat(v, 'f', 4, 64) }

// ReadHistory returns the data rows of a history file.
func ReadHistory(r io.Reader) ([][]string, error) {
	rows, err := csv.NewReader(r).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errs.ErrFormat, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[1:], nil
}
