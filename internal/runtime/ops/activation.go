package ops

import "math"

// Activation is an elementwise nonlinearity.
type Activation func(float32) float32

func Relu(x float32) float32 {
	if x > 0 {
		return x
	}

	return 0
}

func Sigmoid(x float32) float32 {
	return float32(1 / (1 + math.Exp(-float64(x))))
}

func Tanh(x float32) float32 {
	return float32(math.Tanh(float64(x)))
}
