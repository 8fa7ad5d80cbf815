package nn_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/born-ml/layers/internal/backend/cpu"
	"github.com/born-ml/layers/internal/nn"
	"github.com/born-ml/layers/internal/tensor"
)

type mlpConfig struct {
	L1 nn.LinearConfig
	A1 nn.ReLU
	L2 nn.LinearConfig
	A2 nn.ReLU
}

type mlp struct {
	L1 *nn.Linear `nn:"l1,module"`
	A1 nn.ReLU    `nn:"a1,module"`
	L2 *nn.Linear `nn:"l2,module"`
	A2 nn.ReLU    `nn:"a2,module"`
}

func (c mlpConfig) TryBuild(dev tensor.Device, dt tensor.DataType) (*mlp, error) {
	return nn.BuildFields[*mlp](c, dev, dt)
}

func (m *mlp) TryForward(x *tensor.Tensor) (*tensor.Tensor, error) {
	return nn.ForwardFields[*tensor.Tensor](m, x)
}

func newMLPConfig() mlpConfig {
	return mlpConfig{
		L1: nn.LinearConfig{In: 3, Out: 5},
		L2: nn.LinearConfig{In: 5, Out: 10},
	}
}

func newDevice() *cpu.CPUDevice {
	return cpu.New(cpu.WithSeed(0))
}

func uniform(t *testing.T, dev tensor.Device, shape ...int) *tensor.Tensor {
	t.Helper()
	x, err := tensor.SampleUniform(dev, tensor.Float64, -1, 1, shape...)
	require.NoError(t, err)
	return x
}

func f64(t *testing.T, dev tensor.Device, data []float64, shape ...int) *tensor.Tensor {
	t.Helper()
	x, err := tensor.FromFloat64s(dev, data, shape...)
	require.NoError(t, err)
	return x
}

// recordingOptimizer subtracts the gradient and remembers what it touched.
type recordingOptimizer struct {
	updated []tensor.UniqueID
}

func (o *recordingOptimizer) UpdateTensor(param, grad *tensor.Tensor) error {
	o.updated = append(o.updated, param.ID())
	return param.Axpy(-1, grad)
}

func valuesOf(ts ...*tensor.Tensor) [][]float64 {
	out := make([][]float64, len(ts))
	for i, t := range ts {
		out[i] = t.Values()
	}
	return out
}
