package optim

import (
	"github.com/born-ml/layers/internal/nn"
	"github.com/born-ml/layers/internal/tensor"
)

// SGD implements Stochastic Gradient Descent with optional momentum.
//
// Update rule, with g = grad + weight_decay * param:
//
//	without momentum:  param -= lr * g
//	classic momentum:  v = momentum * v + g;  param -= lr * v
//	Nesterov momentum: v = momentum * v + g;  param -= lr * (g + momentum * v)
//
// Example:
//
//	sgd := optim.NewSGD(optim.SGDConfig{LR: 0.01, Momentum: 0.9})
//	err := sgd.Update(model, grads)
type SGD struct {
	lr          float64
	momentum    float64
	nesterov    bool
	weightDecay float64
	velocities  map[tensor.UniqueID]*tensor.Tensor
}

// SGDConfig holds configuration for SGD optimizer.
type SGDConfig struct {
	LR          float64 // Learning rate (default: 0.01)
	Momentum    float64 // Momentum factor (default: 0, range: [0, 1))
	Nesterov    bool    // Use Nesterov momentum (requires Momentum > 0)
	WeightDecay float64 // L2 penalty added to the gradient (default: 0)
}

// NewSGD creates a new SGD optimizer.
func NewSGD(config SGDConfig) *SGD {
	if config.LR == 0 {
		config.LR = 0.01
	}
	return &SGD{
		lr:          config.LR,
		momentum:    config.Momentum,
		nesterov:    config.Nesterov,
		weightDecay: config.WeightDecay,
		velocities:  make(map[tensor.UniqueID]*tensor.Tensor),
	}
}

// UpdateTensor applies one SGD step to param in place.
func (s *SGD) UpdateTensor(param, grad *tensor.Tensor) error {
	g, err := decayed(param, grad, s.weightDecay)
	if err != nil {
		return err
	}
	if s.momentum == 0 {
		return param.Axpy(-s.lr, g)
	}

	v, err := stateFor(s.velocities, param)
	if err != nil {
		return err
	}
	if err := v.Axpby(1, g, s.momentum); err != nil {
		return err
	}
	if !s.nesterov {
		return param.Axpy(-s.lr, v)
	}
	if err := param.Axpy(-s.lr, g); err != nil {
		return err
	}
	return param.Axpy(-s.lr*s.momentum, v)
}

// Update runs the update pass over m.
func (s *SGD) Update(m any, grads *tensor.Gradients) error {
	return nn.TryUpdate(s, m, grads)
}

// GetLR returns the current learning rate.
func (s *SGD) GetLR() float64 {
	return s.lr
}

// SetLR sets the learning rate.
func (s *SGD) SetLR(lr float64) {
	s.lr = lr
}
