package main

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/vae/internal/serialization"
	"github.com/born-ml/vae/internal/tensor"
)

func TestInspect(t *testing.T) {
	x, err := tensor.FromFloat32(tensor.Shape{2, 3}, []float32{1, 2, 3, 4, 5, 6})
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "x.born")
	require.NoError(t, serialization.WriteFile(path, map[string]*tensor.RawTensor{"x": x}, serialization.Header{
		ModelType: serialization.ModelTypeTensors,
		Metadata:  map[string]string{"model": "cnn"},
	}))

	r, err := serialization.Open(path)
	require.NoError(t, err)
	var out bytes.Buffer
	require.NoError(t, inspect(&out, r))

	s := out.String()
	assert.Contains(t, s, "type:     Tensors")
	assert.Contains(t, s, "model: cnn")
	assert.Contains(t, s, "[2 3]")
	assert.Contains(t, s, "1 tensors, 24 bytes")
}

func TestRootVersion(t *testing.T) {
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"--version"})
	require.NoError(t, root.Execute())
	assert.Equal(t, "vae "+version+"\n", out.String())
}
