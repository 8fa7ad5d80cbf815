package nn

import (
	"github.com/born-ml/layers/internal/tensor"
)

// TensorModule is a module from tensors to tensors.
type TensorModule = Module[*tensor.Tensor, *tensor.Tensor]

// ResidualAddConfig configures a ResidualAdd around the module Block builds.
type ResidualAddConfig[M TensorModule] struct {
	Block Builder[M]
}

// Residual wraps block in a skip connection. M is inferred from block:
//
//	nn.Residual(nn.LinearConfig{In: 8, Out: 8}) // ResidualAddConfig[*nn.Linear]
func Residual[M TensorModule](block Builder[M]) ResidualAddConfig[M] {
	return ResidualAddConfig[M]{Block: block}
}

// TryBuild builds the wrapped block.
func (c ResidualAddConfig[M]) TryBuild(dev tensor.Device, dt tensor.DataType) (*ResidualAdd[M], error) {
	b, err := c.Block.TryBuild(dev, dt)
	if err != nil {
		return nil, err
	}
	return &ResidualAdd[M]{Block: b}, nil
}

// ResidualAdd computes x + Block(x). The block runs exactly once.
type ResidualAdd[M TensorModule] struct {
	Block M `nn:"block,module"`
}

// TryForward computes x + Block(x).
func (r *ResidualAdd[M]) TryForward(x *tensor.Tensor) (*tensor.Tensor, error) {
	y, err := r.Block.TryForward(x.Clone())
	if err != nil {
		return nil, err
	}
	return x.Add(y)
}

// TryForwardMut is TryForward with the block in training mode.
func (r *ResidualAdd[M]) TryForwardMut(x *tensor.Tensor) (*tensor.Tensor, error) {
	y, err := TryForwardMut(TensorModule(r.Block), x.Clone())
	if err != nil {
		return nil, err
	}
	return x.Add(y)
}

// GeneralizedAddConfig configures the sum of two branches.
type GeneralizedAddConfig[A, B TensorModule] struct {
	T Builder[A]
	U Builder[B]
}

// Generalized sums the outputs of two branches over the same input.
func Generalized[A, B TensorModule](t Builder[A], u Builder[B]) GeneralizedAddConfig[A, B] {
	return GeneralizedAddConfig[A, B]{T: t, U: u}
}

// TryBuild builds T then U.
func (c GeneralizedAddConfig[A, B]) TryBuild(dev tensor.Device, dt tensor.DataType) (*GeneralizedAdd[A, B], error) {
	t, err := c.T.TryBuild(dev, dt)
	if err != nil {
		return nil, err
	}
	u, err := c.U.TryBuild(dev, dt)
	if err != nil {
		return nil, err
	}
	return &GeneralizedAdd[A, B]{T: t, U: u}, nil
}

// GeneralizedAdd computes T(x) + U(x). Each branch receives its own clone
// of x; T runs first and an error from T skips U.
type GeneralizedAdd[A, B TensorModule] struct {
	T A `nn:"t,module"`
	U B `nn:"u,module"`
}

// TryForward computes T(x) + U(x).
func (g *GeneralizedAdd[A, B]) TryForward(x *tensor.Tensor) (*tensor.Tensor, error) {
	a, err := g.T.TryForward(x.Clone())
	if err != nil {
		return nil, err
	}
	b, err := g.U.TryForward(x.Clone())
	if err != nil {
		return nil, err
	}
	return a.Add(b)
}

// TryForwardMut is TryForward with both branches in training mode.
func (g *GeneralizedAdd[A, B]) TryForwardMut(x *tensor.Tensor) (*tensor.Tensor, error) {
	a, err := TryForwardMut(TensorModule(g.T), x.Clone())
	if err != nil {
		return nil, err
	}
	b, err := TryForwardMut(TensorModule(g.U), x.Clone())
	if err != nil {
		return nil, err
	}
	return a.Add(b)
}
