package nn

import (
	"github.com/born-ml/layers/internal/tensor"
)

// Pooling layers are their own configuration. Stride and Dilation of zero
// mean 1.

// MaxPool2D takes the maximum of every Kernel×Kernel window.
type MaxPool2D struct {
	Kernel, Stride, Padding, Dilation int
}

// TryBuild returns p.
func (p MaxPool2D) TryBuild(tensor.Device, tensor.DataType) (MaxPool2D, error) { return p, nil }

// TryForward pools (C, H, W) or (B, C, H, W) inputs.
func (p MaxPool2D) TryForward(x *tensor.Tensor) (*tensor.Tensor, error) {
	return pool2D("MaxPool2D", x, tensor.PoolMax, p.Kernel, p.Stride, p.Padding, p.Dilation)
}

// AvgPool2D averages every Kernel×Kernel window. Padded positions count
// toward the divisor.
type AvgPool2D struct {
	Kernel, Stride, Padding, Dilation int
}

// TryBuild returns p.
func (p AvgPool2D) TryBuild(tensor.Device, tensor.DataType) (AvgPool2D, error) { return p, nil }

// TryForward pools (C, H, W) or (B, C, H, W) inputs.
func (p AvgPool2D) TryForward(x *tensor.Tensor) (*tensor.Tensor, error) {
	return pool2D("AvgPool2D", x, tensor.PoolAvg, p.Kernel, p.Stride, p.Padding, p.Dilation)
}

// MinPool2D takes the minimum of every Kernel×Kernel window.
type MinPool2D struct {
	Kernel, Stride, Padding, Dilation int
}

// TryBuild returns p.
func (p MinPool2D) TryBuild(tensor.Device, tensor.DataType) (MinPool2D, error) { return p, nil }

// TryForward pools (C, H, W) or (B, C, H, W) inputs.
func (p MinPool2D) TryForward(x *tensor.Tensor) (*tensor.Tensor, error) {
	return pool2D("MinPool2D", x, tensor.PoolMin, p.Kernel, p.Stride, p.Padding, p.Dilation)
}

func pool2D(name string, x *tensor.Tensor, kind tensor.PoolKind, kernel, stride, padding, dilation int) (*tensor.Tensor, error) {
	if x.Rank() != 3 && x.Rank() != 4 {
		return nil, &RankError{Module: name, Shape: x.Shape(), Want: "(C, H, W) or (B, C, H, W)"}
	}
	return x.Pool2D(kind, kernel, tensor.ConvParams{Stride: stride, Padding: padding, Dilation: dilation})
}

// AvgPoolGlobal averages over both spatial axes: (C, H, W) -> (C) and
// (B, C, H, W) -> (B, C).
type AvgPoolGlobal struct{}

// TryBuild returns p.
func (p AvgPoolGlobal) TryBuild(tensor.Device, tensor.DataType) (AvgPoolGlobal, error) {
	return p, nil
}

// TryForward averages the last two axes away.
func (AvgPoolGlobal) TryForward(x *tensor.Tensor) (*tensor.Tensor, error) {
	switch x.Rank() {
	case 3:
		return x.MeanAxes(1, 2)
	case 4:
		return x.MeanAxes(2, 3)
	default:
		return nil, &RankError{Module: "AvgPoolGlobal", Shape: x.Shape(), Want: "(C, H, W) or (B, C, H, W)"}
	}
}

// Flatten2D flattens images: (C, H, W) -> (C·H·W) and
// (B, C, H, W) -> (B, C·H·W).
type Flatten2D struct{}

// TryBuild returns f.
func (f Flatten2D) TryBuild(tensor.Device, tensor.DataType) (Flatten2D, error) { return f, nil }

// TryForward reshapes x.
func (Flatten2D) TryForward(x *tensor.Tensor) (*tensor.Tensor, error) {
	switch x.Rank() {
	case 3:
		return x.Reshape(-1)
	case 4:
		return x.Reshape(x.Dim(0), -1)
	default:
		return nil, &RankError{Module: "Flatten2D", Shape: x.Shape(), Want: "(C, H, W) or (B, C, H, W)"}
	}
}

// Reshape reshapes its input to Shape; one dimension may be -1.
type Reshape struct {
	Shape []int
}

// TryBuild returns r.
func (r Reshape) TryBuild(tensor.Device, tensor.DataType) (Reshape, error) { return r, nil }

// TryForward reshapes x.
func (r Reshape) TryForward(x *tensor.Tensor) (*tensor.Tensor, error) {
	return x.Reshape(r.Shape...)
}
