package nn

import (
	"fmt"

	"github.com/born-ml/layers/internal/tensor"
)

// Defaults for normalization layers.
const (
	DefaultEpsilon  = 1e-5
	DefaultMomentum = 0.1
)

// BatchNorm2DConfig configures batch normalization over Channels.
type BatchNorm2DConfig struct {
	Channels int
}

// TryBuild allocates the affine parameters and running statistics.
func (c BatchNorm2DConfig) TryBuild(dev tensor.Device, dt tensor.DataType) (*BatchNorm2D, error) {
	bn := &BatchNorm2D{Epsilon: DefaultEpsilon, Momentum: DefaultMomentum}
	for _, t := range []**tensor.Tensor{&bn.Scale, &bn.Bias, &bn.RunningMean, &bn.RunningVar} {
		var err error
		if *t, err = tensor.Zeros(dev, dt, c.Channels); err != nil {
			return nil, err
		}
	}
	return bn, nil
}

// BatchNorm2D normalizes (C, H, W) or (B, C, H, W) images per channel.
//
// TryForwardMut is the training forward: it normalizes with the batch
// statistics and moves the running statistics toward them. TryForward is
// the inference forward and uses the running statistics only. Calling
// TryForwardMut on an input without a tape, or TryForward on one with a
// tape, is a programming error and panics.
type BatchNorm2D struct {
	Scale       *tensor.Tensor `nn:"scale,param,init=ones"`
	Bias        *tensor.Tensor `nn:"bias,param"`
	RunningMean *tensor.Tensor `nn:"running_mean,buffer"`
	RunningVar  *tensor.Tensor `nn:"running_var,buffer,init=ones"`
	Epsilon     float64        `nn:"epsilon,scalar"`
	Momentum    float64        `nn:"momentum,scalar"`
}

// channelShape returns the broadcast shape of per-channel values for x and
// the axes statistics are reduced over.
func (bn *BatchNorm2D) channelShape(x *tensor.Tensor) (shape []int, axes []int, err error) {
	c := bn.Scale.Dim(0)
	switch {
	case x.Rank() == 3 && x.Dim(0) == c:
		return []int{c, 1, 1}, []int{1, 2}, nil
	case x.Rank() == 4 && x.Dim(1) == c:
		return []int{1, c, 1, 1}, []int{0, 2, 3}, nil
	default:
		return nil, nil, &RankError{Module: "BatchNorm2D", Shape: x.Shape(),
			Want: fmt.Sprintf("(%d, H, W) or (B, %d, H, W)", c, c)}
	}
}

// TryForward normalizes x with the running statistics.
func (bn *BatchNorm2D) TryForward(x *tensor.Tensor) (*tensor.Tensor, error) {
	if x.HasTape() {
		panic("nn: BatchNorm2D.TryForward called on a taped input; use TryForwardMut for training")
	}
	shape, _, err := bn.channelShape(x)
	if err != nil {
		return nil, err
	}

	std, err := bn.RunningVar.AddScalar(bn.Epsilon)
	if err != nil {
		return nil, err
	}
	if std, err = std.Sqrt(); err != nil {
		return nil, err
	}
	scale, err := bn.Scale.Div(std)
	if err != nil {
		return nil, err
	}
	// x·scale/std + (bias - mean·scale/std)
	shift, err := bn.RunningMean.Mul(scale)
	if err != nil {
		return nil, err
	}
	if shift, err = bn.Bias.Sub(shift); err != nil {
		return nil, err
	}
	if scale, err = scale.Reshape(shape...); err != nil {
		return nil, err
	}
	if shift, err = shift.Reshape(shape...); err != nil {
		return nil, err
	}
	y, err := x.Mul(scale)
	if err != nil {
		return nil, err
	}
	return y.Add(shift)
}

// TryForwardMut normalizes x with its batch statistics and updates the
// running statistics with momentum, using the unbiased variance for the
// running variance.
func (bn *BatchNorm2D) TryForwardMut(x *tensor.Tensor) (*tensor.Tensor, error) {
	if !x.HasTape() {
		panic("nn: BatchNorm2D.TryForwardMut called without a tape; use TryForward for inference")
	}
	shape, axes, err := bn.channelShape(x)
	if err != nil {
		return nil, err
	}
	c := bn.Scale.Dim(0)
	if c == 0 || x.NumElements() == 0 {
		return nil, &RankError{Module: "BatchNorm2D", Shape: x.Shape(), Want: "a non-empty batch"}
	}
	n := float64(x.NumElements() / c)

	mean, err := x.MeanKeepDims(axes...)
	if err != nil {
		return nil, err
	}
	centered, err := x.Sub(mean)
	if err != nil {
		return nil, err
	}
	sq, err := centered.Square()
	if err != nil {
		return nil, err
	}
	variance, err := sq.MeanKeepDims(axes...)
	if err != nil {
		return nil, err
	}

	std, err := variance.AddScalar(bn.Epsilon)
	if err != nil {
		return nil, err
	}
	if std, err = std.Sqrt(); err != nil {
		return nil, err
	}
	normed, err := centered.Div(std)
	if err != nil {
		return nil, err
	}
	scale, err := bn.Scale.Retaped(x).Reshape(shape...)
	if err != nil {
		return nil, err
	}
	bias, err := bn.Bias.Retaped(x).Reshape(shape...)
	if err != nil {
		return nil, err
	}
	y, err := normed.Mul(scale)
	if err != nil {
		return nil, err
	}
	if y, err = y.Add(bias); err != nil {
		return nil, err
	}

	// Running statistics change only once the forward has succeeded.
	m := bn.Momentum
	if err := bn.RunningMean.Axpby(m, mean, 1-m); err != nil {
		return nil, err
	}
	unbiased := 1.0
	if n > 1 {
		unbiased = n / (n - 1)
	}
	if err := bn.RunningVar.Axpby(m*unbiased, variance, 1-m); err != nil {
		return nil, err
	}
	return y, nil
}

// LayerNorm1DConfig configures layer normalization over Size features.
type LayerNorm1DConfig struct {
	Size int
}

// TryBuild allocates gamma and beta.
func (c LayerNorm1DConfig) TryBuild(dev tensor.Device, dt tensor.DataType) (*LayerNorm1D, error) {
	return BuildFields[*LayerNorm1D](layerNormFields{
		Gamma:   []int{c.Size},
		Beta:    []int{c.Size},
		Epsilon: DefaultEpsilon,
	}, dev, dt)
}

type layerNormFields struct {
	Gamma, Beta []int
	Epsilon     float64
}

// LayerNorm1D normalizes the last axis of (size), (batch, size) or
// (batch, seq, size) inputs, then scales by gamma and shifts by beta.
type LayerNorm1D struct {
	Gamma   *tensor.Tensor `nn:"gamma,param,init=ones"`
	Beta    *tensor.Tensor `nn:"beta,param"`
	Epsilon float64        `nn:"epsilon,scalar"`
}

// TryForward normalizes over the last axis.
func (ln *LayerNorm1D) TryForward(x *tensor.Tensor) (*tensor.Tensor, error) {
	if x.Rank() < 1 || x.Rank() > 3 || x.Dim(-1) != ln.Gamma.Dim(0) {
		return nil, &RankError{Module: "LayerNorm1D", Shape: x.Shape(),
			Want: fmt.Sprintf("rank 1 to 3 with last axis %d", ln.Gamma.Dim(0))}
	}
	mean, err := x.MeanKeepDims(-1)
	if err != nil {
		return nil, err
	}
	centered, err := x.Sub(mean)
	if err != nil {
		return nil, err
	}
	sq, err := centered.Square()
	if err != nil {
		return nil, err
	}
	variance, err := sq.MeanKeepDims(-1)
	if err != nil {
		return nil, err
	}
	std, err := variance.AddScalar(ln.Epsilon)
	if err != nil {
		return nil, err
	}
	if std, err = std.Sqrt(); err != nil {
		return nil, err
	}
	normed, err := centered.Div(std)
	if err != nil {
		return nil, err
	}
	y, err := normed.Mul(ln.Gamma)
	if err != nil {
		return nil, err
	}
	return y.Add(ln.Beta)
}
