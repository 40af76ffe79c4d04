package ops

import (
	"errors"
	"fmt"

	"github.com/example/go-light-tts/internal/runtime/tensor"
)

// Conv1D performs a stride-1, dilation-1 convolution with symmetric zero
// padding.
//
//	input:  [batch, in_channels, length]
//	kernel: [out_channels, in_channels, kernel_size]
//	bias:   [out_channels] or nil
//
// The output length is length + 2*padding - kernel_size + 1, so an even kernel
// with padding kernel_size/2 yields one extra frame that callers trim.
func Conv1D(input, kernel, bias *tensor.Tensor, padding int64) (*tensor.Tensor, error) {
	p, err := prepareConv1D(input, kernel, bias, padding)
	if err != nil {
		return nil, err
	}

	out, err := tensor.Zeros([]int64{p.batch, p.outChannels, p.outLength})
	if err != nil {
		return nil, err
	}

	var biasData []float32
	if bias != nil {
		biasData = bias.RawData()
	}

	conv1DIm2col(input.RawData(), kernel.RawData(), biasData, p, padding, out.RawData())

	return out, nil
}

type conv1DParams struct {
	batch       int64
	inChannels  int64
	length      int64
	outChannels int64
	kernelSize  int64
	outLength   int64
}

func prepareConv1D(input, kernel, bias *tensor.Tensor, padding int64) (conv1DParams, error) {
	if input == nil || kernel == nil {
		return conv1DParams{}, errors.New("ops: conv1d requires non-nil input/kernel")
	}

	if padding < 0 {
		return conv1DParams{}, fmt.Errorf("ops: conv1d padding must be >= 0, got %d", padding)
	}

	inShape := input.Shape()
	kShape := kernel.Shape()

	if len(inShape) != 3 || len(kShape) != 3 {
		return conv1DParams{}, fmt.Errorf("ops: conv1d expects input/kernel rank 3, got %v and %v", inShape, kShape)
	}

	p := conv1DParams{
		batch:       inShape[0],
		inChannels:  inShape[1],
		length:      inShape[2],
		outChannels: kShape[0],
		kernelSize:  kShape[2],
	}

	if kShape[1] != p.inChannels {
		return conv1DParams{}, fmt.Errorf("ops: conv1d kernel in_channels mismatch: got %d want %d", kShape[1], p.inChannels)
	}

	if p.kernelSize < 1 {
		return conv1DParams{}, fmt.Errorf("ops: conv1d kernel size must be >= 1, got %d", p.kernelSize)
	}

	if bias != nil {
		bShape := bias.Shape()
		if len(bShape) != 1 || bShape[0] != p.outChannels {
			return conv1DParams{}, fmt.Errorf("ops: conv1d bias shape %v does not match out_channels %d", bShape, p.outChannels)
		}
	}

	p.outLength = max(p.length+2*padding-p.kernelSize+1, 0)

	return p, nil
}

// conv1DIm2col rearranges the convolution into a GEMM over a patch matrix of
// shape [outLength, inChannels*kernelSize]:
//
//	out[oc, ox] = dot(kernel[oc, :], imcol[ox, :]) + bias[oc]
//
// Kernel rows and patch rows are both contiguous. Output channels are split
// across workers; each writes a disjoint slice of out.
func conv1DIm2col(inputData, kernelData, biasData []float32, p conv1DParams, padding int64, outData []float32) {
	patchLen := int(p.inChannels * p.kernelSize)
	outLenI := int(p.outLength)
	outChI := int(p.outChannels)
	lenI := int(p.length)

	if outLenI == 0 || outChI == 0 {
		return
	}

	imcol := getScratch(outLenI * patchLen)
	defer putScratch(imcol)

	for b := range p.batch {
		if b > 0 {
			clear(imcol)
		}

		for ic := range p.inChannels {
			inBase := int(b*p.inChannels+ic) * lenI

			for kx := range p.kernelSize {
				col := int(ic*p.kernelSize + kx)

				for ox := range p.outLength {
					inPos := ox - padding + kx
					if inPos >= 0 && inPos < p.length {
						imcol[int(ox)*patchLen+col] = inputData[inBase+int(inPos)]
					}
				}
			}
		}

		outBase := int(b) * outChI * outLenI

		tensor.ParallelFor(outChI, tensor.Workers(), func(lo, hi int) {
			for oc := lo; oc < hi; oc++ {
				kernelRow := kernelData[oc*patchLen : (oc+1)*patchLen]

				biasVal := float32(0)
				if biasData != nil {
					biasVal = biasData[oc]
				}

				outOC := outData[outBase+oc*outLenI : outBase+(oc+1)*outLenI]
				for ox := range outLenI {
					outOC[ox] = tensor.DotProduct(kernelRow, imcol[ox*patchLen:(ox+1)*patchLen]) + biasVal
				}
			}
		})
	}
}
