package serialization

import (
	"fmt"
	"sort"
	"strings"
)

// Validation limits.
const (
	MaxHeaderSize    = 100 * 1024 * 1024
	MaxTensorCount   = 100_000
	MaxTensorNameLen = 4096
)

// ValidateTensorOffsets checks for overlapping tensor offsets and out-of-bounds access.
func ValidateTensorOffsets(tensors []TensorMeta, dataSize int64) error {
	if len(tensors) > MaxTensorCount {
		return &ValidationError{
			Type:    "too_many_tensors",
			Details: fmt.Sprintf("got %d, max %d", len(tensors), MaxTensorCount),
		}
	}

	sorted := make([]TensorMeta, len(tensors))
	copy(sorted, tensors)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Offset < sorted[j].Offset
	})

	for i, t := range sorted {
		if t.Offset < 0 || t.Size < 0 {
			return &ValidationError{
				Type:    "negative_offset",
				Tensor:  t.Name,
				Details: fmt.Sprintf("offset=%d, size=%d", t.Offset, t.Size),
			}
		}
		if t.Offset+t.Size > dataSize {
			return &ValidationError{
				Type:    "out_of_bounds",
				Tensor:  t.Name,
				Details: fmt.Sprintf("offset %d + size %d > data_size %d", t.Offset, t.Size, dataSize),
			}
		}
		if i+1 < len(sorted) && t.Offset+t.Size > sorted[i+1].Offset {
			next := sorted[i+1]
			return &ValidationError{
				Type:    "offset_overlap",
				Tensor:  t.Name,
				Tensor2: next.Name,
				Details: fmt.Sprintf("regions [%d-%d] and [%d-%d] overlap",
					t.Offset, t.Offset+t.Size, next.Offset, next.Offset+next.Size),
			}
		}
	}
	return nil
}

// ValidateTensorName rejects empty, oversized and path-like names.
func ValidateTensorName(name string) error {
	switch {
	case name == "":
		return &ValidationError{Type: "invalid_name", Details: "empty tensor name"}
	case len(name) > MaxTensorNameLen:
		return &ValidationError{
			Type:    "name_too_long",
			Tensor:  name,
			Details: fmt.Sprintf("length %d > max %d", len(name), MaxTensorNameLen),
		}
	case strings.Contains(name, ".."):
		return &ValidationError{Type: "invalid_name", Tensor: name, Details: "contains '..'"}
	case strings.ContainsAny(name, "/\\\x00"):
		return &ValidationError{Type: "invalid_name", Tensor: name, Details: "contains a path separator or null byte"}
	}
	return nil
}

// ValidateHeader checks names, dtypes, shapes and offsets of every tensor.
func ValidateHeader(h *Header, dataSize int64) error {
	for _, t := range h.Tensors {
		if err := ValidateTensorName(t.Name); err != nil {
			return err
		}
		dtype, ok := stringToDtype(t.DType)
		if !ok {
			return &ValidationError{Type: "unsupported_dtype", Tensor: t.Name, Details: t.DType}
		}
		elems := int64(1)
		for _, d := range t.Shape {
			if d <= 0 {
				return &ValidationError{Type: "invalid_shape", Tensor: t.Name, Details: fmt.Sprintf("%v", t.Shape)}
			}
			elems *= int64(d)
		}
		if elems*int64(dtype.Size()) != t.Size {
			return &ValidationError{
				Type:    "size_mismatch",
				Tensor:  t.Name,
				Details: fmt.Sprintf("shape %v of %s needs %d bytes, header says %d", t.Shape, t.DType, elems*int64(dtype.Size()), t.Size),
			}
		}
	}
	return ValidateTensorOffsets(h.Tensors, dataSize)
}
