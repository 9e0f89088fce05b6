package serialization

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/born-ml/vae/internal/tensor"
)

// BornReader holds a decoded .born file in memory.
type BornReader struct {
	header Header
	flags  uint32
	data   []byte // data section
}

// Open reads and verifies the .born file at path.
func Open(path string) (*BornReader, error) {
	//nolint:gosec // G304: path is chosen by the operator
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	r, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return r, nil
}

// Decode reads a .born stream, verifying the fixed header, the checksum of
// the data section and every tensor entry.
func Decode(src io.Reader) (*BornReader, error) {
	fixed := make([]byte, FixedHeaderSize)
	if _, err := io.ReadFull(src, fixed); err != nil {
		return nil, fmt.Errorf("failed to read fixed header: %w", truncated(err))
	}
	if !bytes.Equal(fixed[0:4], []byte(MagicBytes)) {
		return nil, ErrInvalidMagic
	}
	if version := binary.LittleEndian.Uint32(fixed[4:8]); version != FormatVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, version)
	}

	r := &BornReader{flags: binary.LittleEndian.Uint32(fixed[8:12])}
	headerSize := binary.LittleEndian.Uint64(fixed[16:24])
	dataSize := binary.LittleEndian.Uint64(fixed[24:32])
	var stored [32]byte
	copy(stored[:], fixed[ChecksumOffset:ChecksumOffset+ChecksumSize])

	if headerSize > MaxHeaderSize {
		return nil, ErrHeaderTooLarge
	}
	headerJSON := make([]byte, headerSize)
	if _, err := io.ReadFull(src, headerJSON); err != nil {
		return nil, fmt.Errorf("failed to read header JSON: %w", truncated(err))
	}
	if err := json.Unmarshal(headerJSON, &r.header); err != nil {
		return nil, fmt.Errorf("failed to parse header JSON: %w", err)
	}

	//nolint:gosec // G115: headerSize bounded by MaxHeaderSize
	padding := dataOffset(int64(headerSize)) - int64(FixedHeaderSize) - int64(headerSize)
	if _, err := io.CopyN(io.Discard, src, padding); err != nil {
		return nil, fmt.Errorf("failed to skip padding: %w", truncated(err))
	}

	var data bytes.Buffer
	//nolint:gosec // G115: dataSize is checked against what is actually read
	if _, err := io.CopyN(&data, src, int64(dataSize)); err != nil {
		return nil, fmt.Errorf("failed to read tensor data: %w", truncated(err))
	}
	r.data = data.Bytes()

	if err := ValidateChecksum(ComputeChecksum(r.data), stored); err != nil {
		return nil, err
	}
	if err := ValidateHeader(&r.header, int64(len(r.data))); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}
	return r, nil
}

func truncated(err error) error {
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return ErrTruncated
	}
	return err
}

// Header returns the file header.
func (r *BornReader) Header() Header {
	return r.header
}

// Flags returns the flag word from the fixed header.
func (r *BornReader) Flags() uint32 {
	return r.flags
}

// Metadata returns the metadata map from the header.
func (r *BornReader) Metadata() map[string]string {
	return r.header.Metadata
}

// TensorNames returns all tensor names in sorted order.
func (r *BornReader) TensorNames() []string {
	names := make([]string, len(r.header.Tensors))
	for i, meta := range r.header.Tensors {
		names[i] = meta.Name
	}
	sort.Strings(names)
	return names
}

// TensorInfo returns information about a specific tensor.
func (r *BornReader) TensorInfo(name string) (*TensorMeta, error) {
	for i := range r.header.Tensors {
		if r.header.Tensors[i].Name == name {
			return &r.header.Tensors[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrTensorNotFound, name)
}

// LoadTensor copies one tensor out of the file.
func (r *BornReader) LoadTensor(name string) (*tensor.RawTensor, error) {
	meta, err := r.TensorInfo(name)
	if err != nil {
		return nil, err
	}
	dtype, ok := stringToDtype(meta.DType)
	if !ok {
		return nil, fmt.Errorf("unsupported dtype: %s", meta.DType)
	}

	raw, err := tensor.NewRaw(tensor.Shape(meta.Shape), dtype, tensor.CPU)
	if err != nil {
		return nil, fmt.Errorf("failed to create tensor %s: %w", name, err)
	}
	copy(raw.Data(), r.data[meta.Offset:meta.Offset+meta.Size])
	return raw, nil
}

// ReadStateDict loads every tensor into a state dictionary.
func (r *BornReader) ReadStateDict() (map[string]*tensor.RawTensor, error) {
	stateDict := make(map[string]*tensor.RawTensor, len(r.header.Tensors))
	for _, meta := range r.header.Tensors {
		raw, err := r.LoadTensor(meta.Name)
		if err != nil {
			return nil, fmt.Errorf("failed to load tensor %s: %w", meta.Name, err)
		}
		stateDict[meta.Name] = raw
	}
	return stateDict, nil
}
