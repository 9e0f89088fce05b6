package nn

import (
	"fmt"
	"strings"

	"github.com/born-ml/vae/internal/errs"
	"github.com/born-ml/vae/internal/tensor"
)

// Prefix copies src into dst with every name prefixed by prefix + ".".
func Prefix(dst map[string]*tensor.RawTensor, prefix string, src map[string]*tensor.RawTensor) {
	for name, raw := range src {
		dst[prefix+"."+name] = raw
	}
}

// Sub returns the entries of stateDict under prefix + ".", with the
// prefix removed.
func Sub(stateDict map[string]*tensor.RawTensor, prefix string) map[string]*tensor.RawTensor {
	p := prefix + "."
	sub := make(map[string]*tensor.RawTensor)
	for name, raw := range stateDict {
		if rest, ok := strings.CutPrefix(name, p); ok && rest != "" {
			sub[rest] = raw
		}
	}
	return sub
}

// loadInto copies stateDict[name] into dst after checking dtype and shape.
func loadInto(dst *tensor.RawTensor, stateDict map[string]*tensor.RawTensor, name string) error {
	src, ok := stateDict[name]
	if !ok {
		return fmt.Errorf("%w: missing %s in state dict", errs.ErrFormat, name)
	}
	if src.DType() != tensor.Float32 {
		return fmt.Errorf("%w: %s dtype mismatch: expected float32, got %v", errs.ErrFormat, name, src.DType())
	}
	if !src.Shape().Equal(dst.Shape()) {
		return fmt.Errorf("%w: %s shape mismatch: expected %v, got %v", errs.ErrShapeMismatch, name, dst.Shape(), src.Shape())
	}
	copy(dst.AsFloat32(), src.AsFloat32())
	return nil
}
