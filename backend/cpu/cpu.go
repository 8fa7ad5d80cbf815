// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package cpu

import (
	internalcpu "github.com/born-ml/layers/internal/backend/cpu"
	"github.com/born-ml/layers/internal/parallel"
	"github.com/born-ml/layers/tensor"
)

// Device is the CPU implementation of tensor.Device.
type Device = internalcpu.CPUDevice

// Option configures a Device.
type Option = internalcpu.Option

// ParallelConfig controls kernel parallelism.
type ParallelConfig = parallel.Config

// Compile-time check that Device implements tensor.Device.
var _ tensor.Device = (*Device)(nil)

// New creates a CPU device.
//
// Example:
//
//	dev := cpu.New(cpu.WithSeed(7), cpu.WithMaxAllocation(1<<30))
func New(opts ...Option) *Device {
	return internalcpu.New(opts...)
}

// WithSeed seeds the device random source.
func WithSeed(seed uint64) Option {
	return internalcpu.WithSeed(seed)
}

// WithMaxAllocation caps the size in bytes of a single allocation.
func WithMaxAllocation(bytes int) Option {
	return internalcpu.WithMaxAllocation(bytes)
}

// WithParallel sets kernel parallelism.
func WithParallel(cfg ParallelConfig) Option {
	return internalcpu.WithParallel(cfg)
}

// Sequential disables kernel parallelism.
func Sequential() ParallelConfig {
	return parallel.Sequential()
}
