package nn

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCBHGOutputShape(t *testing.T) {
	ps := NewParamSet()
	b := NewBuilder(ps, 3)

	cbhg, err := NewCBHG(b.Path("prenet"), CBHGConfig{
		K:           4,
		In:          6,
		Channels:    8,
		Proj:        [2]int64{8, 6},
		NumHighways: 2,
	})
	require.NoError(t, err)

	out, err := cbhg.Forward(mustTensor(t, seqData(2*6*7), 2, 6, 7), true)
	require.NoError(t, err)
	assert.Equal(t, []int64{2, 7, 16}, out.Shape())
	assert.Equal(t, int64(16), cbhg.OutDims())
	assertFinite(t, out)

	_, ok := ps.Get("prenet.pre_highway.weight")
	assert.True(t, ok, "pre_highway exists when projection width differs from channels")

	_, ok = ps.Get("prenet.pre_highway.bias")
	assert.False(t, ok)

	for _, name := range []string{
		"prenet.conv1d_bank.0.conv.weight",
		"prenet.conv1d_bank.3.bnorm.running_var",
		"prenet.conv_project1.conv.weight",
		"prenet.conv_project2.bnorm.bias",
		"prenet.highways.1.W2.bias",
		"prenet.rnn.weight_hh_l0_reverse",
	} {
		_, ok := ps.Get(name)
		assert.True(t, ok, name)
	}

	bank3, _ := ps.Get("prenet.conv1d_bank.3.conv.weight")
	assert.Equal(t, []int64{8, 6, 4}, bank3.Shape())

	proj1, _ := ps.Get("prenet.conv_project1.conv.weight")
	assert.Equal(t, []int64{8, 32, 3}, proj1.Shape())

	gru, _ := ps.Get("prenet.rnn.weight_ih_l0")
	assert.Equal(t, []int64{24, 8}, gru.Shape())
}

func TestCBHGWithoutPreHighway(t *testing.T) {
	ps := NewParamSet()
	b := NewBuilder(ps, 3)

	cbhg, err := NewCBHG(b.Path("postnet"), CBHGConfig{K: 2, In: 4, Channels: 4, Proj: [2]int64{4, 4}, NumHighways: 1})
	require.NoError(t, err)
	assert.Nil(t, cbhg.PreHighway)

	for _, name := range ps.Names() {
		assert.False(t, strings.Contains(name, "pre_highway"), name)
	}

	out, err := cbhg.Forward(mustTensor(t, seqData(1*4*3), 1, 4, 3), false)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 3, 8}, out.Shape())
}

func TestCBHGZeroLengthInput(t *testing.T) {
	b := NewBuilder(NewParamSet(), 3)

	cbhg, err := NewCBHG(b, CBHGConfig{K: 3, In: 2, Channels: 4, Proj: [2]int64{4, 2}, NumHighways: 1})
	require.NoError(t, err)

	out, err := cbhg.Forward(mustTensor(t, nil, 2, 2, 0), true)
	require.NoError(t, err)
	assert.Equal(t, []int64{2, 0, 8}, out.Shape())
}

func TestCBHGConfigErrors(t *testing.T) {
	b := NewBuilder(NewParamSet(), 3)

	_, err := NewCBHG(b.Path("a"), CBHGConfig{K: 2, In: 4, Channels: 4, Proj: [2]int64{4, 3}})
	assert.ErrorContains(t, err, "residual")

	_, err = NewCBHG(b.Path("b"), CBHGConfig{K: 0, In: 4, Channels: 4, Proj: [2]int64{4, 4}})
	assert.Error(t, err)

	_, err = NewCBHG(b.Path("c"), CBHGConfig{K: 1, In: 4, Channels: 0, Proj: [2]int64{0, 4}})
	assert.ErrorContains(t, err, "channels")

	ok, err := NewCBHG(b.Path("d"), CBHGConfig{K: 1, In: 4, Channels: 4, Proj: [2]int64{4, 4}})
	require.NoError(t, err)

	_, err = ok.Forward(mustTensor(t, seqData(3*2), 1, 3, 2), false)
	assert.Error(t, err, "wrong input channels")
}

func TestDurationPredictorAlphaScalesLinearly(t *testing.T) {
	ps := NewParamSet()
	b := NewBuilder(ps, 9)

	dp, err := NewDurationPredictor(b.Path("dur_pred"), 5, 6)
	require.NoError(t, err)

	x := mustTensor(t, seqData(2*4*5), 2, 4, 5)

	one, err := dp.Forward(x, 1, false)
	require.NoError(t, err)
	assert.Equal(t, []int64{2, 4, 1}, one.Shape())

	two, err := dp.Forward(x, 2, false)
	require.NoError(t, err)

	assert.Equal(t, one.Scale(2).Data(), two.Data())

	durs := Durations(one)
	require.Len(t, durs, 2)
	assert.Len(t, durs[1], 4)
	assert.Equal(t, one.Data()[4:], durs[1])

	w, ok := ps.Get("dur_pred.convs.0.conv.weight")
	require.True(t, ok)
	assert.Equal(t, []int64{6, 5, 5}, w.Shape())

	_, ok = ps.Get("dur_pred.lin.bias")
	assert.True(t, ok)
}
