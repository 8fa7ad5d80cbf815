package nn

import (
	"github.com/born-ml/layers/internal/tensor"
)

// elementwise is a fixed, parameterless tensor operation.
type elementwise interface {
	apply(x *tensor.Tensor) (*tensor.Tensor, error)
}

// Functional is a parameterless module applying the operation F. It is its
// own configuration: building it returns the same value, and every pass
// except forward is a no-op.
type Functional[F elementwise] struct{}

// TryBuild returns f.
func (f Functional[F]) TryBuild(tensor.Device, tensor.DataType) (Functional[F], error) {
	return f, nil
}

// TryForward applies the operation to x.
func (Functional[F]) TryForward(x *tensor.Tensor) (*tensor.Tensor, error) {
	var op F
	return op.apply(x)
}

type (
	reluOp    struct{}
	tanhOp    struct{}
	sigmoidOp struct{}
	squareOp  struct{}
	softmaxOp struct{}
)

func (reluOp) apply(x *tensor.Tensor) (*tensor.Tensor, error)    { return x.ReLU() }
func (tanhOp) apply(x *tensor.Tensor) (*tensor.Tensor, error)    { return x.Tanh() }
func (sigmoidOp) apply(x *tensor.Tensor) (*tensor.Tensor, error) { return x.Sigmoid() }
func (squareOp) apply(x *tensor.Tensor) (*tensor.Tensor, error)  { return x.Square() }
func (softmaxOp) apply(x *tensor.Tensor) (*tensor.Tensor, error) { return x.Softmax() }

// Activations.
type (
	ReLU    = Functional[reluOp]
	Tanh    = Functional[tanhOp]
	Sigmoid = Functional[sigmoidOp]
	Square  = Functional[squareOp]
	// Softmax normalizes over the last axis.
	Softmax = Functional[softmaxOp]
)
