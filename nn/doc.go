// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package nn provides composable neural network modules.
//
// # Overview
//
// A network is declared twice: a configuration tree of shapes and
// hyperparameters, and the built tree of tensors it produces on a device.
// The two trees have the same fields. Struct tags tell the framework what
// every built field is:
//
//	`nn:"name,param"`            trainable tensor (optimized, zero-grad, saved)
//	`nn:"name,param,init=ones"`  same, reset to ones
//	`nn:"name,buffer"`           non-trainable tensor state (saved)
//	`nn:"name,module"`           nested module or slice of modules
//	`nn:"name,scalar"`           bool or float hyperparameter (saved)
//	untagged                      opaque: copied at build, ignored otherwise
//
// # Basic Usage
//
//	type MLPConfig struct {
//	    L1 nn.LinearConfig
//	    A1 nn.ReLU
//	    L2 nn.LinearConfig
//	}
//
//	type MLP struct {
//	    L1 *nn.Linear `nn:"l1,module"`
//	    A1 nn.ReLU    `nn:"a1,module"`
//	    L2 *nn.Linear `nn:"l2,module"`
//	}
//
//	func (c MLPConfig) TryBuild(dev tensor.Device, dt tensor.DataType) (*MLP, error) {
//	    return nn.BuildFields[*MLP](c, dev, dt)
//	}
//
//	func (m *MLP) TryForward(x *tensor.Tensor) (*tensor.Tensor, error) {
//	    return nn.ForwardFields[*tensor.Tensor](m, x)
//	}
//
//	dev := cpu.New(cpu.WithSeed(0))
//	model := nn.BuildModule(MLPConfig{
//	    L1: nn.LinearConfig{In: 3, Out: 5},
//	    L2: nn.LinearConfig{In: 5, Out: 10},
//	}, dev, tensor.Float32)
//
// # Training
//
//	grads := nn.AllocGrads(model)
//	y, _ := model.TryForward(x.Trace(grads))
//	loss, _ := lossFn(y)
//	loss.Backward()
//	err := sgd.Update(model, grads) // *nn.UnusedParamsError names unused parameters
//
// # Layers
//
// MatMul, Bias1D, Bias2D, Linear, Conv2D, BatchNorm2D, LayerNorm1D,
// MaxPool2D, AvgPool2D, MinPool2D, AvgPoolGlobal, Flatten2D, Reshape and
// the activations ReLU, Tanh, Sigmoid, Square and Softmax.
//
// # Combinators
//
// ResidualAdd (x + f(x)), GeneralizedAdd (f(x) + g(x)), slices of modules
// folded in order, MultiHeadAttention, FeedForward, EncoderBlock,
// DecoderBlock and Transformer.
//
// # Serialization
//
// Save and Load write and read safetensors files keyed by slash-joined field
// paths such as "l1/matmul/weight"; Flatten and Unflatten work on records.
package nn
