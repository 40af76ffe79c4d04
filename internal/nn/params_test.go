package nn

import (
	"path/filepath"
	"testing"

	"github.com/example/go-light-tts/internal/runtime/tensor"
	"github.com/example/go-light-tts/internal/safetensors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustTensor(t *testing.T, data []float32, shape ...int64) *tensor.Tensor {
	t.Helper()

	tt, err := tensor.New(data, shape)
	require.NoError(t, err)

	return tt
}

func openBlob(t *testing.T, tensors []safetensors.Tensor) *safetensors.Store {
	t.Helper()

	blob, err := safetensors.EncodeTensors(tensors, nil)
	require.NoError(t, err)

	store, err := safetensors.OpenStoreFromBytes(blob, safetensors.StoreOptions{})
	require.NoError(t, err)
	t.Cleanup(store.Close)

	return store
}

func TestParamSetRegister(t *testing.T) {
	ps := NewParamSet()

	require.NoError(t, ps.Register("a.weight", mustTensor(t, []float32{1, 2}, 2)))
	require.NoError(t, ps.Register("b", mustTensor(t, []float32{3}, 1)))

	assert.Error(t, ps.Register("a.weight", mustTensor(t, []float32{1}, 1)), "duplicate")
	assert.Error(t, ps.Register(" ", mustTensor(t, []float32{1}, 1)), "empty name")
	assert.Error(t, ps.Register("c", nil), "nil tensor")

	assert.Equal(t, []string{"a.weight", "b"}, ps.Names())
	assert.Equal(t, 2, ps.Len())
	assert.Equal(t, 3, ps.NumElements())

	got, ok := ps.Get("b")
	require.True(t, ok)
	assert.Equal(t, []float32{3}, got.Data())

	_, ok = ps.Get("missing")
	assert.False(t, ok)
}

func TestParamSetApplyPartial(t *testing.T) {
	ps := NewParamSet()
	require.NoError(t, ps.Register("keep", mustTensor(t, []float32{1, 1}, 2)))
	require.NoError(t, ps.Register("load", mustTensor(t, []float32{0, 0}, 2)))

	store := openBlob(t, []safetensors.Tensor{
		{Name: "load", Shape: []int64{2}, Data: []float32{5, 6}},
		{Name: "extra", Shape: []int64{1}, Data: []float32{9}},
	})

	report, err := ps.Apply(store)
	require.NoError(t, err)

	assert.Equal(t, []string{"load"}, report.Loaded)
	assert.Equal(t, []string{"keep"}, report.Missing)
	assert.Equal(t, []string{"extra"}, report.Unexpected)

	load, _ := ps.Get("load")
	keep, _ := ps.Get("keep")
	assert.Equal(t, []float32{5, 6}, load.Data())
	assert.Equal(t, []float32{1, 1}, keep.Data())
}

func TestParamSetApplyShapeMismatchWritesNothing(t *testing.T) {
	ps := NewParamSet()
	require.NoError(t, ps.Register("a", mustTensor(t, []float32{0}, 1)))
	require.NoError(t, ps.Register("b", mustTensor(t, []float32{0, 0}, 2)))

	store := openBlob(t, []safetensors.Tensor{
		{Name: "a", Shape: []int64{1}, Data: []float32{7}},
		{Name: "b", Shape: []int64{1, 2}, Data: []float32{1, 2}},
	})

	_, err := ps.Apply(store)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "shape mismatch")

	a, _ := ps.Get("a")
	assert.Equal(t, []float32{0}, a.Data(), "no parameter may be written when any shape mismatches")
}

func TestParamSetTensorsRoundTrip(t *testing.T) {
	ps := NewParamSet()
	b := NewBuilder(ps, 7)

	_, err := b.Path("x").Uniform("weight", 0.5, 3, 2)
	require.NoError(t, err)
	_, err = b.Constant("y", 2, 4)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "p.safetensors")
	require.NoError(t, safetensors.WriteFile(path, ps.Tensors(), nil))

	other := NewParamSet()
	ob := NewBuilder(other, 99)
	_, err = ob.Path("x").Uniform("weight", 0.5, 3, 2)
	require.NoError(t, err)
	_, err = ob.Constant("y", 0, 4)
	require.NoError(t, err)

	store, err := safetensors.OpenStore(path, safetensors.StoreOptions{})
	require.NoError(t, err)
	defer store.Close()

	report, err := other.Apply(store)
	require.NoError(t, err)
	assert.Empty(t, report.Missing)
	assert.Empty(t, report.Unexpected)

	for _, name := range ps.Names() {
		want, _ := ps.Get(name)
		got, _ := other.Get(name)
		assert.Equal(t, want.Data(), got.Data(), name)
	}
}
