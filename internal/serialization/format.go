package serialization

import (
	"time"

	"github.com/born-ml/vae/internal/tensor"
)

// Format constants.
const (
	MagicBytes      = "BORN"
	FormatVersion   = 2    // SHA-256 checksummed layout
	HeaderAlignment = 64   // tensor data starts on a 64-byte boundary
	FixedHeaderSize = 64   // 0x40 bytes
	ChecksumSize    = 32   // SHA-256
	ChecksumOffset  = 0x20 // checksum position in the fixed header
)

// Data type string constants for serialization.
const (
	DTypeFloat32 = "float32"
	DTypeFloat64 = "float64"
)

// Flags for the .born format.
const (
	FlagHasOptimizer uint32 = 1 << 1
	FlagHasMetadata  uint32 = 1 << 2
)

// Model types written by this module.
const (
	ModelTypeVAE        = "VAE"
	ModelTypeCheckpoint = "Checkpoint"
	ModelTypeTensors    = "Tensors"
)

// Header represents the JSON header in a .born file.
type Header struct {
	FormatVersion int               `json:"format_version"`
	Producer      string            `json:"producer"`
	ModelType     string            `json:"model_type"`
	CreatedAt     time.Time         `json:"created_at"`
	Tensors       []TensorMeta      `json:"tensors"`
	Metadata      map[string]string `json:"metadata"`
	Checkpoint    *CheckpointMeta   `json:"checkpoint,omitempty"`
}

// CheckpointMeta contains training state for resumable checkpoints.
type CheckpointMeta struct {
	Epoch           int            `json:"epoch"`
	Step            int64          `json:"step"`
	Loss            float64        `json:"loss"`
	OptimizerType   string         `json:"optimizer_type"`
	OptimizerConfig map[string]any `json:"optimizer_config"`
	RunID           string         `json:"run_id"`
}

// TensorMeta describes a tensor in the .born file.
type TensorMeta struct {
	Name   string `json:"name"`
	DType  string `json:"dtype"`
	Shape  []int  `json:"shape"`
	Offset int64  `json:"offset"` // bytes from the start of the data section
	Size   int64  `json:"size"`
}

func dtypeToString(dt tensor.DataType) string {
	switch dt {
	case tensor.Float32:
		return DTypeFloat32
	case tensor.Float64:
		return DTypeFloat64
	default:
		return "unknown"
	}
}

func stringToDtype(s string) (tensor.DataType, bool) {
	switch s {
	case DTypeFloat32:
		return tensor.Float32, true
	case DTypeFloat64:
		return tensor.Float64, true
	default:
		return 0, false
	}
}

// dataOffset returns where tensor data begins for a JSON header of the
// given size.
func dataOffset(headerSize int64) int64 {
	pos := int64(FixedHeaderSize) + headerSize
	return pos + (HeaderAlignment-pos%HeaderAlignment)%HeaderAlignment
}
