package tensor_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/born-ml/layers/internal/backend/cpu"
	"github.com/born-ml/layers/internal/tensor"
)

func newDevice() *cpu.CPUDevice {
	return cpu.New(cpu.WithSeed(1))
}

func f64(t *testing.T, dev tensor.Device, data []float64, shape ...int) *tensor.Tensor {
	t.Helper()
	x, err := tensor.FromFloat64s(dev, data, shape...)
	require.NoError(t, err)
	return x
}

func f32(t *testing.T, dev tensor.Device, data []float32, shape ...int) *tensor.Tensor {
	t.Helper()
	x, err := tensor.FromFloat32s(dev, data, shape...)
	require.NoError(t, err)
	return x
}

func uniform(t *testing.T, dev tensor.Device, shape ...int) *tensor.Tensor {
	t.Helper()
	x, err := tensor.SampleUniform(dev, tensor.Float64, -1, 1, shape...)
	require.NoError(t, err)
	return x
}

// checkGrad compares tape gradients of sum(f(inputs)·w) against central
// finite differences for every element of every input.
func checkGrad(t *testing.T, inputs []*tensor.Tensor, f func(in []*tensor.Tensor) (*tensor.Tensor, error)) {
	t.Helper()
	dev := inputs[0].Device()

	tape := tensor.NewTape(nil)
	taped := make([]*tensor.Tensor, len(inputs))
	for i, in := range inputs {
		taped[i] = in.PutTape(tape)
	}
	y, err := f(taped)
	require.NoError(t, err)
	w := uniform(t, dev, y.Shape()...)

	loss := func(y *tensor.Tensor) *tensor.Tensor {
		weighted, err := y.Mul(w)
		require.NoError(t, err)
		s, err := weighted.SumAxes()
		require.NoError(t, err)
		return s
	}
	grads, err := loss(y).Backward()
	require.NoError(t, err)

	const eps = 1e-6
	eval := func() float64 {
		y, err := f(inputs)
		require.NoError(t, err)
		return loss(y).Item()
	}
	for n, in := range inputs {
		g, ok := grads.Get(in)
		require.True(t, ok, "missing gradient for input %d", n)
		data := in.Float64s()
		for i := range data {
			orig := data[i]
			data[i] = orig + eps
			plus := eval()
			data[i] = orig - eps
			minus := eval()
			data[i] = orig
			require.InDelta(t, (plus-minus)/(2*eps), g.Float64s()[i], 1e-5, "input %d element %d", n, i)
		}
	}
}
