package nn

import (
	"fmt"
	"strconv"

	"github.com/example/go-light-tts/internal/runtime/ops"
	"github.com/example/go-light-tts/internal/runtime/tensor"
)

// CBHGConfig sizes a CBHG block.
type CBHGConfig struct {
	K           int64    // conv bank kernels 1..K
	In          int64    // input channels
	Channels    int64    // bank width, highway width and GRU hidden size per direction
	Proj        [2]int64 // projection widths; Proj[1] must equal In
	NumHighways int
}

// CBHG is a convolution bank, highway network and bidirectional GRU.
// Input [batch, In, time], output [batch, time, 2*Channels].
type CBHG struct {
	cfg        CBHGConfig
	Bank       []*BatchNormConv
	Project1   *BatchNormConv
	Project2   *BatchNormConv
	PreHighway *Linear // nil when Proj[1] == Channels
	Highways   []*Highway
	RNN        *BiRNN
}

func NewCBHG(b *Builder, cfg CBHGConfig) (*CBHG, error) {
	if cfg.K < 1 {
		return nil, fmt.Errorf("nn: cbhg K must be >= 1, got %d", cfg.K)
	}

	if cfg.Proj[1] != cfg.In {
		return nil, fmt.Errorf("nn: cbhg projection width %d must equal input channels %d for the residual", cfg.Proj[1], cfg.In)
	}

	if cfg.Channels < 1 {
		return nil, fmt.Errorf("nn: cbhg channels must be >= 1, got %d", cfg.Channels)
	}

	c := &CBHG{cfg: cfg}

	for k := int64(1); k <= cfg.K; k++ {
		conv, err := NewBatchNormConv(b.Path("conv1d_bank", strconv.FormatInt(k-1, 10)), cfg.In, cfg.Channels, k, ops.Relu)
		if err != nil {
			return nil, err
		}

		c.Bank = append(c.Bank, conv)
	}

	var err error

	c.Project1, err = NewBatchNormConv(b.Path("conv_project1"), cfg.K*cfg.Channels, cfg.Proj[0], 3, ops.Relu)
	if err != nil {
		return nil, err
	}

	c.Project2, err = NewBatchNormConv(b.Path("conv_project2"), cfg.Proj[0], cfg.Proj[1], 3, nil)
	if err != nil {
		return nil, err
	}

	if cfg.Proj[1] != cfg.Channels {
		c.PreHighway, err = NewLinear(b.Path("pre_highway"), cfg.Proj[1], cfg.Channels, false)
		if err != nil {
			return nil, err
		}
	}

	for i := range cfg.NumHighways {
		hw, err := NewHighway(b.Path("highways", strconv.Itoa(i)), cfg.Channels)
		if err != nil {
			return nil, err
		}

		c.Highways = append(c.Highways, hw)
	}

	c.RNN, err = NewBiRNN(b.Path("rnn"), GRUCell, cfg.Channels, cfg.Channels)
	if err != nil {
		return nil, err
	}

	return c, nil
}

// OutDims is the feature width of Forward's output: both GRU directions.
func (c *CBHG) OutDims() int64 { return 2 * c.cfg.Channels }

func (c *CBHG) Forward(x *tensor.Tensor, train bool) (*tensor.Tensor, error) {
	if x.Rank() != 3 || x.Dim(1) != c.cfg.In {
		return nil, fmt.Errorf("nn: cbhg expects [batch %d time], got %v", c.cfg.In, x.Shape())
	}

	steps := x.Dim(2)

	bank := make([]*tensor.Tensor, 0, len(c.Bank))
	for i, conv := range c.Bank {
		y, err := conv.Forward(x, train)
		if err != nil {
			return nil, fmt.Errorf("nn: cbhg bank %d: %w", i, err)
		}

		if y, err = y.Fit(2, steps); err != nil {
			return nil, err
		}

		bank = append(bank, y)
	}

	y, err := tensor.Concat(bank, 1)
	if err != nil {
		return nil, err
	}

	if y, err = ops.MaxPool1D(y, 2, 1, 1); err != nil {
		return nil, err
	}

	if y, err = y.Fit(2, steps); err != nil {
		return nil, err
	}

	if y, err = c.Project1.Forward(y, train); err != nil {
		return nil, fmt.Errorf("nn: cbhg project1: %w", err)
	}

	if y, err = c.Project2.Forward(y, train); err != nil {
		return nil, fmt.Errorf("nn: cbhg project2: %w", err)
	}

	if y, err = tensor.Add(y, x); err != nil {
		return nil, fmt.Errorf("nn: cbhg residual: %w", err)
	}

	if y, err = y.Transpose(1, 2); err != nil {
		return nil, err
	}

	if c.PreHighway != nil {
		if y, err = c.PreHighway.Forward(y); err != nil {
			return nil, fmt.Errorf("nn: cbhg pre_highway: %w", err)
		}
	}

	for i, hw := range c.Highways {
		if y, err = hw.Forward(y); err != nil {
			return nil, fmt.Errorf("nn: cbhg highway %d: %w", i, err)
		}
	}

	return c.RNN.Forward(y)
}
