// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package cpu provides the pure Go CPU device layers are built on.
//
// # Basic Usage
//
//	import (
//	    "github.com/born-ml/layers/backend/cpu"
//	    "github.com/born-ml/layers/nn"
//	    "github.com/born-ml/layers/tensor"
//	)
//
//	func main() {
//	    dev := cpu.New(cpu.WithSeed(42))
//	    model := nn.BuildModule[*nn.Linear](nn.LinearConfig{In: 3, Out: 10}, dev, tensor.Float32)
//	    x, _ := tensor.Zeros(dev, tensor.Float32, 3)
//	    y := nn.Forward[*tensor.Tensor](model, x)
//	}
//
// # Determinism
//
// Parameter initialization draws from a PCG source seeded by WithSeed.
// Two devices with the same seed building the same configuration produce
// identical parameters.
//
// # Thread Safety
//
// The device is safe for concurrent use. Matrix products run on gonum's
// BLAS implementation; convolution and pooling split batches across
// goroutines according to WithParallel.
package cpu
