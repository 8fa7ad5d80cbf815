package nn

import (
	"math"

	"github.com/born-ml/layers/internal/tensor"
)

// MatMulConfig configures a weight-matrix multiply from In to Out features.
type MatMulConfig struct {
	In, Out int
}

// TryBuild allocates the (In, Out) weight.
func (c MatMulConfig) TryBuild(dev tensor.Device, dt tensor.DataType) (*MatMul, error) {
	w, err := tensor.Zeros(dev, dt, c.In, c.Out)
	if err != nil {
		return nil, err
	}
	return &MatMul{Weight: w}, nil
}

// MatMul multiplies its input by a learned (in, out) weight.
//
// Inputs of shape (in), (batch, in) and (batch, seq, in) produce (out),
// (batch, out) and (batch, seq, out).
type MatMul struct {
	Weight *tensor.Tensor `nn:"weight,param"`
}

// TryResetParams draws the weight from U(-1/√in, 1/√in).
func (m *MatMul) TryResetParams() error {
	bound := 1 / math.Sqrt(float64(m.Weight.Dim(0)))
	m.Weight.FillUniform(-bound, bound)
	return nil
}

// TryForward computes x·W.
func (m *MatMul) TryForward(x *tensor.Tensor) (*tensor.Tensor, error) {
	if x.Rank() < 1 || x.Rank() > 3 {
		return nil, &RankError{Module: "MatMul", Shape: x.Shape(), Want: "rank 1, 2 or 3"}
	}
	return x.MatMul(m.Weight)
}

// Bias1DConfig configures an additive bias of Size features.
type Bias1DConfig struct {
	Size int
}

// TryBuild allocates the bias vector.
func (c Bias1DConfig) TryBuild(dev tensor.Device, dt tensor.DataType) (*Bias1D, error) {
	b, err := tensor.Zeros(dev, dt, c.Size)
	if err != nil {
		return nil, err
	}
	return &Bias1D{Bias: b}, nil
}

// Bias1D adds a learned vector over the last axis of (size), (batch, size)
// or (batch, seq, size) inputs. It resets to zeros.
type Bias1D struct {
	Bias *tensor.Tensor `nn:"bias,param"`
}

// TryForward adds the bias, broadcasting over leading axes.
func (b *Bias1D) TryForward(x *tensor.Tensor) (*tensor.Tensor, error) {
	if x.Rank() < 1 || x.Rank() > 3 {
		return nil, &RankError{Module: "Bias1D", Shape: x.Shape(), Want: "rank 1, 2 or 3"}
	}
	return x.Add(b.Bias)
}

// Bias2DConfig configures a per-channel bias for images.
type Bias2DConfig struct {
	Channels int
}

// TryBuild allocates the channel bias.
func (c Bias2DConfig) TryBuild(dev tensor.Device, dt tensor.DataType) (*Bias2D, error) {
	b, err := tensor.Zeros(dev, dt, c.Channels)
	if err != nil {
		return nil, err
	}
	return &Bias2D{Bias: b}, nil
}

// Bias2D adds a learned per-channel value to (C, H, W) or (B, C, H, W)
// inputs.
type Bias2D struct {
	Bias *tensor.Tensor `nn:"bias,param"`
}

// TryForward adds the bias to every spatial position of its channel.
func (b *Bias2D) TryForward(x *tensor.Tensor) (*tensor.Tensor, error) {
	if x.Rank() != 3 && x.Rank() != 4 {
		return nil, &RankError{Module: "Bias2D", Shape: x.Shape(), Want: "(C, H, W) or (B, C, H, W)"}
	}
	bias, err := b.Bias.Retaped(x).Reshape(b.Bias.Dim(0), 1, 1)
	if err != nil {
		return nil, err
	}
	return x.Add(bias)
}

// LinearConfig configures a fully connected layer.
type LinearConfig struct {
	In, Out int
}

// TryBuild builds the matmul and bias sub-modules.
func (c LinearConfig) TryBuild(dev tensor.Device, dt tensor.DataType) (*Linear, error) {
	return BuildFields[*Linear](linearFields{
		MatMul: MatMulConfig{In: c.In, Out: c.Out},
		Bias:   Bias1DConfig{Size: c.Out},
	}, dev, dt)
}

type linearFields struct {
	MatMul MatMulConfig
	Bias   Bias1DConfig
}

// Linear is a fully connected layer: x·W + b.
//
// Example:
//
//	layer := nn.BuildModule(nn.LinearConfig{In: 784, Out: 128}, dev, tensor.Float32)
//	y, err := layer.TryForward(x) // (batch, 784) -> (batch, 128)
type Linear struct {
	MatMul *MatMul `nn:"matmul,module"`
	Bias   *Bias1D `nn:"bias,module"`
}

// TryForward applies the weight then the bias.
func (l *Linear) TryForward(x *tensor.Tensor) (*tensor.Tensor, error) {
	return ForwardFields[*tensor.Tensor](l, x)
}
