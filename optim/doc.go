// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package optim provides optimization algorithms for training module trees.
//
// # Overview
//
// This package contains:
//   - SGD: Stochastic Gradient Descent with momentum, Nesterov momentum and
//     weight decay
//   - Adam: Adaptive Moment Estimation with bias correction
//
// Both implement nn.Optimizer and walk a module tree through Update.
//
// # Basic Usage
//
//	dev := cpu.New()
//	model := nn.BuildModule(nn.LinearConfig{In: 784, Out: 10}, dev, tensor.Float32)
//	opt := optim.NewAdam(optim.AdamConfig{LR: 0.001})
//
//	for epoch := range 10 {
//	    grads := nn.AllocGrads(model)
//	    y, _ := model.TryForward(x.Trace(grads))
//	    loss, _ := lossFn(y, target)
//	    if _, err := loss.Backward(); err != nil {
//	        log.Fatal(err)
//	    }
//	    if err := opt.Update(model, grads); err != nil {
//	        log.Fatal(err)
//	    }
//	}
//
// # Optimizers
//
// SGD:
//
//	param -= lr * (grad + weight_decay * param)   // no momentum
//	v = momentum * v + g; param -= lr * v         // classic momentum
//
// Adam:
//
//	m = beta1*m + (1-beta1)*g, v = beta2*v + (1-beta2)*g²
//	param -= lr * m_hat / (sqrt(v_hat) + eps)
//
// Parameters without a gradient are not touched and are reported together
// in an *nn.UnusedParamsError after every other parameter was updated.
package optim
