package model

import (
	"errors"
	"fmt"

	"github.com/example/go-light-tts/internal/nn"
	"github.com/example/go-light-tts/internal/runtime/tensor"
)

// ErrNoFrames is returned by Generate when the predicted durations expand to
// zero frames.
var ErrNoFrames = errors.New("model: predicted durations expand to zero frames")

// ErrTooManyFrames is returned by Generate when the scaled durations expand
// past MaxFrames.
var ErrTooManyFrames = nn.ErrTooManyFrames

// MaxFrames is the longest mel-spectrogram Generate produces.
const MaxFrames = nn.MaxFrames

// Mode selects how batch normalization behaves.
type Mode int

const (
	// ModeEval uses running statistics and leaves them untouched.
	ModeEval Mode = iota
	// ModeTrain normalizes with batch statistics and updates the running ones.
	ModeTrain
)

func (m Mode) String() string {
	if m == ModeTrain {
		return "train"
	}

	return "eval"
}

// LightTTS is a non-autoregressive acoustic model: token embeddings are
// encoded by a CBHG, expanded to frames by per-token durations, decoded by a
// bidirectional LSTM to mel frames and refined by a CBHG post-net.
//
// A LightTTS is not safe for concurrent use. The mode and step counter are
// instance state.
type LightTTS struct {
	cfg    Config
	params *nn.ParamSet

	embedding *nn.Embedding
	prenet    *nn.CBHG
	durPred   *nn.DurationPredictor
	rnn       *nn.BiRNN
	lin       *nn.Linear
	postnet   *nn.CBHG
	postProj  *nn.Linear

	mode Mode
	step int64
}

// New builds a model with freshly initialized weights. Initialization is
// deterministic for a given seed.
func New(cfg Config, seed uint64) (*LightTTS, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	params := nn.NewParamSet()
	b := nn.NewBuilder(params, seed)
	m := &LightTTS{cfg: cfg, params: params}

	var err error

	if m.embedding, err = nn.NewEmbedding(b.Path("embedding"), cfg.NumChars, cfg.EmbedDims); err != nil {
		return nil, fmt.Errorf("model: embedding: %w", err)
	}

	m.prenet, err = nn.NewCBHG(b.Path("prenet"), nn.CBHGConfig{
		K:           cfg.PrenetK,
		In:          cfg.EmbedDims,
		Channels:    cfg.PrenetDims,
		Proj:        [2]int64{cfg.PrenetDims, cfg.EmbedDims},
		NumHighways: cfg.Highways,
	})
	if err != nil {
		return nil, fmt.Errorf("model: prenet: %w", err)
	}

	if m.durPred, err = nn.NewDurationPredictor(b.Path("dur_pred"), cfg.EmbedDims, cfg.DurationConvDims); err != nil {
		return nil, fmt.Errorf("model: dur_pred: %w", err)
	}

	if m.rnn, err = nn.NewBiRNN(b.Path("rnn"), nn.LSTMCell, m.prenet.OutDims(), cfg.RNNDims); err != nil {
		return nil, fmt.Errorf("model: rnn: %w", err)
	}

	if m.lin, err = nn.NewLinear(b.Path("lin"), 2*cfg.RNNDims, cfg.Mels, true); err != nil {
		return nil, fmt.Errorf("model: lin: %w", err)
	}

	m.postnet, err = nn.NewCBHG(b.Path("postnet"), nn.CBHGConfig{
		K:           cfg.PostnetK,
		In:          cfg.Mels,
		Channels:    cfg.PostnetDims,
		Proj:        [2]int64{cfg.PostnetDims, cfg.Mels},
		NumHighways: cfg.Highways,
	})
	if err != nil {
		return nil, fmt.Errorf("model: postnet: %w", err)
	}

	if m.postProj, err = nn.NewLinear(b.Path("post_proj"), m.postnet.OutDims(), cfg.Mels, false); err != nil {
		return nil, fmt.Errorf("model: post_proj: %w", err)
	}

	return m, nil
}

func (m *LightTTS) Config() Config { return m.cfg }

// Step returns the number of training-mode forward passes so far.
func (m *LightTTS) Step() int64 { return m.step }

func (m *LightTTS) Mode() Mode { return m.mode }

// Params exposes the parameter set, e.g. for an external optimizer.
func (m *LightTTS) Params() *nn.ParamSet { return m.params }

// Parameter returns the live tensor registered under name.
func (m *LightTTS) Parameter(name string) (*tensor.Tensor, bool) {
	return m.params.Get(name)
}

// Forward runs the training pass. tokens holds equally long sequences,
// mel is the target [batch, mels, frames] and durs the ground-truth
// durations per token. Expansion uses durs; the predicted durations are
// returned per token for an external loss. Both mel outputs are cut or
// zero-padded to the target length. Each call increments the step counter.
func (m *LightTTS) Forward(tokens [][]int64, mel *tensor.Tensor, durs [][]float32) (post, inter, durHat *tensor.Tensor, err error) {
	if mel == nil || mel.Rank() != 3 {
		return nil, nil, nil, fmt.Errorf("model: target mel must be [batch mels frames], got %v", mel.Shape())
	}

	if mel.Dim(0) != int64(len(tokens)) || mel.Dim(1) != m.cfg.Mels {
		return nil, nil, nil, fmt.Errorf("model: target mel shape %v does not match batch %d and mels %d", mel.Shape(), len(tokens), m.cfg.Mels)
	}

	m.mode = ModeTrain
	m.step++

	x, err := m.embedding.Forward(tokens)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("model: %w", err)
	}

	pred, err := m.durPred.Forward(x, 1, true)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("model: %w", err)
	}

	if durHat, err = pred.Reshape([]int64{pred.Dim(0), pred.Dim(1)}); err != nil {
		return nil, nil, nil, err
	}

	post, inter, err = m.decode(x, durs, true)
	if err != nil {
		return nil, nil, nil, err
	}

	frames := mel.Dim(2)

	if post, err = post.Fit(2, frames); err != nil {
		return nil, nil, nil, err
	}

	if inter, err = inter.Fit(2, frames); err != nil {
		return nil, nil, nil, err
	}

	return post, inter, durHat, nil
}

// PredictDurations returns the model's per-token durations scaled by alpha.
// It runs in eval mode and does not touch the step counter.
func (m *LightTTS) PredictDurations(tokens []int64, alpha float32) ([]float32, error) {
	if len(tokens) == 0 {
		return nil, errors.New("model: token sequence is empty")
	}

	m.mode = ModeEval

	x, err := m.embedding.Forward([][]int64{tokens})
	if err != nil {
		return nil, fmt.Errorf("model: %w", err)
	}

	pred, err := m.durPred.Forward(x, alpha, false)
	if err != nil {
		return nil, fmt.Errorf("model: %w", err)
	}

	return nn.Durations(pred)[0], nil
}

// Generate synthesizes a refined mel-spectrogram [frames, mels] for one token
// sequence in eval mode. Expansion uses the model's own durations scaled by
// alpha; alpha > 1 slows speech down.
func (m *LightTTS) Generate(tokens []int64, alpha float32) (*tensor.Tensor, error) {
	if len(tokens) == 0 {
		return nil, errors.New("model: token sequence is empty")
	}

	m.mode = ModeEval

	x, err := m.embedding.Forward([][]int64{tokens})
	if err != nil {
		return nil, fmt.Errorf("model: %w", err)
	}

	pred, err := m.durPred.Forward(x, alpha, false)
	if err != nil {
		return nil, fmt.Errorf("model: %w", err)
	}

	durs := nn.Durations(pred)

	switch n := nn.ExpandedLength(durs[0]); {
	case n == 0:
		return nil, ErrNoFrames
	case n > MaxFrames:
		return nil, fmt.Errorf("model: %d frames at alpha %g: %w", n, alpha, ErrTooManyFrames)
	}

	post, _, err := m.decode(x, durs, false)
	if err != nil {
		return nil, err
	}

	if post, err = post.Transpose(1, 2); err != nil {
		return nil, err
	}

	return post.Reshape([]int64{post.Dim(1), post.Dim(2)})
}

// decode runs encoder, length regulator, decoder and post-net on embedded
// tokens x [batch, tokens, embed]. Both results are [batch, mels, frames].
func (m *LightTTS) decode(x *tensor.Tensor, durs [][]float32, train bool) (post, inter *tensor.Tensor, err error) {
	h, err := x.Transpose(1, 2)
	if err != nil {
		return nil, nil, err
	}

	if h, err = m.prenet.Forward(h, train); err != nil {
		return nil, nil, fmt.Errorf("model: prenet: %w", err)
	}

	if h, err = nn.Regulate(h, durs); err != nil {
		return nil, nil, fmt.Errorf("model: %w", err)
	}

	if h, err = m.rnn.Forward(h); err != nil {
		return nil, nil, fmt.Errorf("model: rnn: %w", err)
	}

	if h, err = m.lin.Forward(h); err != nil {
		return nil, nil, fmt.Errorf("model: lin: %w", err)
	}

	if inter, err = h.Transpose(1, 2); err != nil {
		return nil, nil, err
	}

	if h, err = m.postnet.Forward(inter, train); err != nil {
		return nil, nil, fmt.Errorf("model: postnet: %w", err)
	}

	if h, err = m.postProj.Forward(h); err != nil {
		return nil, nil, fmt.Errorf("model: post_proj: %w", err)
	}

	if post, err = h.Transpose(1, 2); err != nil {
		return nil, nil, err
	}

	return post, inter, nil
}
