// Package optim implements optimization algorithms for training module
// trees.
//
// This package provides:
//   - SGD: Stochastic Gradient Descent with momentum, Nesterov momentum and
//     L2 weight decay
//   - Adam: Adaptive Moment Estimation with bias correction
//
// Both implement nn.Optimizer: the nn update pass calls UpdateTensor once
// per parameter that has a gradient. Per-parameter state (velocities,
// moments) is keyed by the parameter's tensor.UniqueID.
//
// Example usage:
//
//	opt := optim.NewSGD(optim.SGDConfig{LR: 0.01, Momentum: 0.9})
//
//	for epoch := range epochs {
//	    grads := nn.AllocGrads(model)
//	    y, _ := model.TryForward(x.Trace(grads))
//	    loss, _ := lossFn(y)
//	    if _, err := loss.Backward(); err != nil {
//	        return err
//	    }
//	    if err := opt.Update(model, grads); err != nil {
//	        return err // *nn.UnusedParamsError lists parameters without gradients
//	    }
//	}
package optim

import (
	"github.com/born-ml/layers/internal/nn"
	"github.com/born-ml/layers/internal/tensor"
)

// Optimizer is an nn.Optimizer with a learning rate and a whole-tree
// update entry point.
type Optimizer interface {
	nn.Optimizer

	// Update runs the nn update pass over m with this optimizer.
	Update(m any, grads *tensor.Gradients) error

	// GetLR returns the current learning rate.
	GetLR() float64

	// SetLR sets the learning rate, e.g. from a schedule.
	SetLR(lr float64)
}

var (
	_ Optimizer = (*SGD)(nil)
	_ Optimizer = (*Adam)(nil)
)

// stateFor returns the zero-initialized state tensor of param in states.
func stateFor(states map[tensor.UniqueID]*tensor.Tensor, param *tensor.Tensor) (*tensor.Tensor, error) {
	if s, ok := states[param.ID()]; ok {
		return s, nil
	}
	s, err := tensor.Zeros(param.Device(), param.DType(), param.Shape()...)
	if err != nil {
		return nil, err
	}
	states[param.ID()] = s
	return s, nil
}

// decayed returns grad + wd·param without touching grad.
func decayed(param, grad *tensor.Tensor, wd float64) (*tensor.Tensor, error) {
	if wd == 0 {
		return grad, nil
	}
	g, err := copyOf(grad)
	if err != nil {
		return nil, err
	}
	if err := g.Axpy(wd, param); err != nil {
		return nil, err
	}
	return g, nil
}

func copyOf(t *tensor.Tensor) (*tensor.Tensor, error) {
	c, err := tensor.Zeros(t.Device(), t.DType(), t.Shape()...)
	if err != nil {
		return nil, err
	}
	if err := c.CopyFrom(t.Detach()); err != nil {
		return nil, err
	}
	return c, nil
}
