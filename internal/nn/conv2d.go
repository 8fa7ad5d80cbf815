package nn

import (
	"fmt"
	"math"

	"github.com/born-ml/layers/internal/tensor"
)

// Conv2DConfig configures a 2D convolution. Zero Stride, Dilation and
// Groups mean 1.
type Conv2DConfig struct {
	InChannels  int
	OutChannels int
	Kernel      int
	Stride      int
	Padding     int
	Dilation    int
	Groups      int
}

func (c Conv2DConfig) params() tensor.ConvParams {
	return tensor.ConvParams{Stride: c.Stride, Padding: c.Padding, Dilation: c.Dilation, Groups: c.Groups}
}

// TryBuild allocates the (out, in/groups, kernel, kernel) weight.
//
// Channel counts not divisible by Groups are a configuration bug and panic.
func (c Conv2DConfig) TryBuild(dev tensor.Device, dt tensor.DataType) (*Conv2D, error) {
	p := c.params()
	groups := max(p.Groups, 1)
	if c.InChannels%groups != 0 || c.OutChannels%groups != 0 {
		panic(fmt.Sprintf("nn: Conv2D: %d in and %d out channels are not divisible by %d groups",
			c.InChannels, c.OutChannels, groups))
	}
	w, err := tensor.Zeros(dev, dt, c.OutChannels, c.InChannels/groups, c.Kernel, c.Kernel)
	if err != nil {
		return nil, err
	}
	return &Conv2D{Weight: w, Params: p}, nil
}

// Conv2D convolves (C, H, W) or (B, C, H, W) images with a learned kernel.
type Conv2D struct {
	Weight *tensor.Tensor `nn:"weight,param"`
	Params tensor.ConvParams
}

// TryResetParams draws the weight from U(-b, b) with
// b = √(1 / (kernel² · in/groups)).
func (c *Conv2D) TryResetParams() error {
	s := c.Weight.Shape()
	fanIn := s[1] * s[2] * s[3]
	b := math.Sqrt(1 / float64(fanIn))
	c.Weight.FillUniform(-b, b)
	return nil
}

// TryForward convolves x.
func (c *Conv2D) TryForward(x *tensor.Tensor) (*tensor.Tensor, error) {
	if x.Rank() != 3 && x.Rank() != 4 {
		return nil, &RankError{Module: "Conv2D", Shape: x.Shape(), Want: "(C, H, W) or (B, C, H, W)"}
	}
	return x.Conv2D(c.Weight, c.Params)
}
