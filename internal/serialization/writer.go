package serialization

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/born-ml/vae/internal/tensor"
)

// Producer identifies this module in written headers.
const Producer = "born-vae"

// Encode writes stateDict to w in .born format.
//
// FormatVersion, Producer, Tensors and, when zero, CreatedAt are filled here;
// the remaining header fields are written as given.
func Encode(w io.Writer, stateDict map[string]*tensor.RawTensor, header Header) error {
	names := make([]string, 0, len(stateDict))
	for name := range stateDict {
		if err := ValidateTensorName(name); err != nil {
			return err
		}
		names = append(names, name)
	}
	sort.Strings(names)

	header.FormatVersion = FormatVersion
	header.Producer = Producer
	if header.CreatedAt.IsZero() {
		header.CreatedAt = time.Now().UTC()
	}
	if header.Metadata == nil {
		header.Metadata = make(map[string]string)
	}

	header.Tensors = make([]TensorMeta, 0, len(names))
	checksum := newChecksum()
	var offset int64
	for _, name := range names {
		raw := stateDict[name]
		size := int64(raw.ByteSize())
		header.Tensors = append(header.Tensors, TensorMeta{
			Name:   name,
			DType:  dtypeToString(raw.DType()),
			Shape:  []int(raw.Shape().Clone()),
			Offset: offset,
			Size:   size,
		})
		checksum.Write(raw.Data())
		offset += size
	}

	headerJSON, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("failed to marshal header: %w", err)
	}

	fixed := make([]byte, FixedHeaderSize)
	copy(fixed[0:4], MagicBytes)
	binary.LittleEndian.PutUint32(fixed[4:8], FormatVersion)
	binary.LittleEndian.PutUint32(fixed[8:12], headerFlags(&header))
	binary.LittleEndian.PutUint64(fixed[16:24], uint64(len(headerJSON)))
	binary.LittleEndian.PutUint64(fixed[24:32], uint64(offset))
	sum := sumOf(checksum)
	copy(fixed[ChecksumOffset:ChecksumOffset+ChecksumSize], sum[:])

	if _, err := w.Write(fixed); err != nil {
		return fmt.Errorf("failed to write fixed header: %w", err)
	}
	if _, err := w.Write(headerJSON); err != nil {
		return fmt.Errorf("failed to write header JSON: %w", err)
	}
	padding := dataOffset(int64(len(headerJSON))) - int64(FixedHeaderSize) - int64(len(headerJSON))
	if padding > 0 {
		if _, err := w.Write(make([]byte, padding)); err != nil {
			return fmt.Errorf("failed to write padding: %w", err)
		}
	}
	for _, name := range names {
		if _, err := w.Write(stateDict[name].Data()); err != nil {
			return fmt.Errorf("failed to write tensor %s: %w", name, err)
		}
	}
	return nil
}

// WriteFile encodes stateDict to path atomically: the data goes to a
// temporary file in the same directory which is renamed over path once
// it is complete.
func WriteFile(path string, stateDict map[string]*tensor.RawTensor, header Header) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	bw := bufio.NewWriter(tmp)
	if err = Encode(bw, stateDict, header); err != nil {
		return err
	}
	if err = bw.Flush(); err != nil {
		return fmt.Errorf("failed to flush %s: %w", path, err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("failed to sync %s: %w", path, err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", path, err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to rename into %s: %w", path, err)
	}
	return nil
}

func headerFlags(h *Header) uint32 {
	var flags uint32
	if len(h.Metadata) > 0 {
		flags |= FlagHasMetadata
	}
	if h.Checkpoint != nil {
		flags |= FlagHasOptimizer
	}
	return flags
}
