package optim

import (
	"math"

	"github.com/born-ml/layers/internal/nn"
	"github.com/born-ml/layers/internal/tensor"
)

// Adam implements the Adam (Adaptive Moment Estimation) optimizer.
//
// Update rule, with g = grad + weight_decay * param and t counted per
// parameter:
//
//	m = beta1 * m + (1-beta1) * g
//	v = beta2 * v + (1-beta2) * g²
//	m_hat = m / (1 - beta1^t)
//	v_hat = v / (1 - beta2^t)
//	param -= lr * m_hat / (sqrt(v_hat) + eps)
//
// Reference: "Adam: A Method for Stochastic Optimization" (Kingma & Ba, 2014)
type Adam struct {
	lr          float64
	beta1       float64
	beta2       float64
	eps         float64
	weightDecay float64
	steps       map[tensor.UniqueID]int
	m           map[tensor.UniqueID]*tensor.Tensor // First moment estimates
	v           map[tensor.UniqueID]*tensor.Tensor // Second moment estimates
}

// AdamConfig holds configuration for Adam optimizer.
type AdamConfig struct {
	LR          float64    // Learning rate (default: 0.001)
	Betas       [2]float64 // Coefficients for the running averages (default: [0.9, 0.999])
	Eps         float64    // Term for numerical stability (default: 1e-8)
	WeightDecay float64    // L2 penalty added to the gradient (default: 0)
}

// NewAdam creates a new Adam optimizer. Zero fields take their defaults.
func NewAdam(config AdamConfig) *Adam {
	if config.LR == 0 {
		config.LR = 0.001
	}
	if config.Betas[0] == 0 {
		config.Betas[0] = 0.9
	}
	if config.Betas[1] == 0 {
		config.Betas[1] = 0.999
	}
	if config.Eps == 0 {
		config.Eps = 1e-8
	}
	return &Adam{
		lr:          config.LR,
		beta1:       config.Betas[0],
		beta2:       config.Betas[1],
		eps:         config.Eps,
		weightDecay: config.WeightDecay,
		steps:       make(map[tensor.UniqueID]int),
		m:           make(map[tensor.UniqueID]*tensor.Tensor),
		v:           make(map[tensor.UniqueID]*tensor.Tensor),
	}
}

// UpdateTensor applies one Adam step to param in place.
func (a *Adam) UpdateTensor(param, grad *tensor.Tensor) error {
	g, err := decayed(param, grad, a.weightDecay)
	if err != nil {
		return err
	}
	g = g.Detach()
	m, err := stateFor(a.m, param)
	if err != nil {
		return err
	}
	v, err := stateFor(a.v, param)
	if err != nil {
		return err
	}
	a.steps[param.ID()]++
	t := float64(a.steps[param.ID()])

	if err := m.Axpby(1-a.beta1, g, a.beta1); err != nil {
		return err
	}
	g2, err := g.Square()
	if err != nil {
		return err
	}
	if err := v.Axpby(1-a.beta2, g2, a.beta2); err != nil {
		return err
	}

	// lr * m_hat / (sqrt(v_hat) + eps)
	denom, err := v.MulScalar(1 / (1 - math.Pow(a.beta2, t)))
	if err != nil {
		return err
	}
	if denom, err = denom.Sqrt(); err != nil {
		return err
	}
	if denom, err = denom.AddScalar(a.eps); err != nil {
		return err
	}
	step, err := m.Div(denom)
	if err != nil {
		return err
	}
	return param.Axpy(-a.lr/(1-math.Pow(a.beta1, t)), step)
}

// Update runs the update pass over m.
func (a *Adam) Update(m any, grads *tensor.Gradients) error {
	return nn.TryUpdate(a, m, grads)
}

// GetLR returns the current learning rate.
func (a *Adam) GetLR() float64 {
	return a.lr
}

// SetLR sets the learning rate.
func (a *Adam) SetLR(lr float64) {
	a.lr = lr
}
