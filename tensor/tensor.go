// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tensor provides the public API of the tensor engine layers run on.
//
// The package defines:
//   - Tensor: dense row-major array bound to a Device, optionally taped
//   - Device: allocation, random sampling and matrix kernels
//   - Tape and Gradients: reverse-mode differentiation keyed by UniqueID
//   - Shape, DataType: core type definitions
//
// Example:
//
//	dev := cpu.New()
//	x, _ := tensor.FromFloat32s(dev, []float32{1, 2, 3}, 3)
//	y, _ := x.TraceNew().Square()
//	loss, _ := y.SumAxes()
//	grads, _ := loss.Backward()
package tensor

import (
	"github.com/born-ml/layers/internal/tensor"
)

// Tensor is a dense array bound to a Device.
type Tensor = tensor.Tensor

// DataType represents the element type of a tensor.
type DataType = tensor.DataType

// Data type constants.
const (
	Float32 DataType = tensor.Float32
	Float64 DataType = tensor.Float64
	Int32   DataType = tensor.Int32
	Int64   DataType = tensor.Int64
	Uint8   DataType = tensor.Uint8
	Bool    DataType = tensor.Bool
)

// Shape represents the dimensions of a tensor.
// Example: Shape{2, 3, 4} represents a 3D tensor with dimensions 2×3×4.
type Shape = tensor.Shape

// Device is the compute device tensors live on.
type Device = tensor.Device

// Buffer is device-owned element storage.
type Buffer = tensor.Buffer

// UniqueID identifies tensor storage across clones.
type UniqueID = tensor.UniqueID

// Tape records operations for reverse-mode differentiation.
type Tape = tensor.Tape

// Gradients maps tensor identities to gradients.
type Gradients = tensor.Gradients

// ConvParams configures convolution and pooling windows.
type ConvParams = tensor.ConvParams

// PoolKind selects the reduction of Pool2D.
type PoolKind = tensor.PoolKind

// Pooling reductions.
const (
	PoolMax PoolKind = tensor.PoolMax
	PoolAvg PoolKind = tensor.PoolAvg
	PoolMin PoolKind = tensor.PoolMin
)

// ShapeError describes operands with incompatible shapes.
type ShapeError = tensor.ShapeError

// Engine errors.
var (
	ErrOutOfMemory      = tensor.ErrOutOfMemory
	ErrUnsupportedDType = tensor.ErrUnsupportedDType
	ErrDTypeMismatch    = tensor.ErrDTypeMismatch
	ErrDeviceMismatch   = tensor.ErrDeviceMismatch
	ErrNoTape           = tensor.ErrNoTape
)

// BroadcastShapes returns the NumPy-style broadcast of two shapes.
func BroadcastShapes(a, b Shape) (Shape, error) {
	return tensor.BroadcastShapes(a, b)
}

// NewGradients returns an empty gradient store.
func NewGradients() *Gradients {
	return tensor.NewGradients()
}

// NewTape returns a tape accumulating into grads.
func NewTape(grads *Gradients) *Tape {
	return tensor.NewTape(grads)
}

// Zeros allocates a zero-filled tensor.
func Zeros(dev Device, dt DataType, shape ...int) (*Tensor, error) {
	return tensor.Zeros(dev, dt, shape...)
}

// Ones allocates a tensor filled with ones.
func Ones(dev Device, dt DataType, shape ...int) (*Tensor, error) {
	return tensor.Ones(dev, dt, shape...)
}

// Full allocates a tensor filled with v.
func Full(dev Device, dt DataType, v float64, shape ...int) (*Tensor, error) {
	return tensor.Full(dev, dt, v, shape...)
}

// FromFloat32s copies data into a new Float32 tensor.
func FromFloat32s(dev Device, data []float32, shape ...int) (*Tensor, error) {
	return tensor.FromFloat32s(dev, data, shape...)
}

// FromFloat64s copies data into a new Float64 tensor.
func FromFloat64s(dev Device, data []float64, shape ...int) (*Tensor, error) {
	return tensor.FromFloat64s(dev, data, shape...)
}

// SampleUniform allocates a tensor with draws from U(lo, hi).
func SampleUniform(dev Device, dt DataType, lo, hi float64, shape ...int) (*Tensor, error) {
	return tensor.SampleUniform(dev, dt, lo, hi, shape...)
}

// SampleNormal allocates a tensor with draws from N(mean, std²).
func SampleNormal(dev Device, dt DataType, mean, std float64, shape ...int) (*Tensor, error) {
	return tensor.SampleNormal(dev, dt, mean, std, shape...)
}
