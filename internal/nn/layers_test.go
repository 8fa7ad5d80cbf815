package nn_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/layers/internal/backend/cpu"
	"github.com/born-ml/layers/internal/nn"
	"github.com/born-ml/layers/internal/tensor"
)

func TestMatMulResetScale(t *testing.T) {
	m := nn.BuildModule(nn.MatMulConfig{In: 16, Out: 8}, newDevice(), tensor.Float64)
	bound := 1 / math.Sqrt(16)
	for _, v := range m.Weight.Values() {
		assert.LessOrEqual(t, math.Abs(v), bound)
	}
	assert.Equal(t, tensor.Shape{16, 8}, m.Weight.Shape())
}

func TestBiasRanks(t *testing.T) {
	dev := newDevice()
	b := nn.BuildModule(nn.Bias1DConfig{Size: 3}, dev, tensor.Float64)
	require.NoError(t, b.Bias.CopyFrom(f64(t, dev, []float64{1, 2, 3}, 3)))

	tests := []struct {
		name  string
		shape []int
	}{
		{"unbatched", []int{3}},
		{"batched", []int{2, 3}},
		{"sequence", []int{2, 4, 3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			x, err := tensor.Zeros(dev, tensor.Float64, tt.shape...)
			require.NoError(t, err)
			y, err := b.TryForward(x)
			require.NoError(t, err)
			assert.Equal(t, tensor.Shape(tt.shape), y.Shape())
			vals := y.Values()
			assert.Equal(t, []float64{1, 2, 3}, vals[len(vals)-3:])
		})
	}

	_, err := b.TryForward(uniform(t, dev, 1, 1, 1, 3))
	var rankErr *nn.RankError
	require.ErrorAs(t, err, &rankErr)
}

func TestBias2DGradient(t *testing.T) {
	dev := newDevice()
	b := nn.BuildModule(nn.Bias2DConfig{Channels: 2}, dev, tensor.Float64)
	grads := nn.AllocGrads(b)

	y, err := b.TryForward(uniform(t, dev, 2, 3, 3).Trace(grads))
	require.NoError(t, err)
	loss, err := y.SumAxes()
	require.NoError(t, err)
	_, err = loss.Backward()
	require.NoError(t, err)

	g, ok := grads.Get(b.Bias)
	require.True(t, ok)
	assert.InDeltaSlice(t, []float64{9, 9}, g.Values(), 1e-12)
}

func TestConv2D(t *testing.T) {
	dev := newDevice()
	c := nn.BuildModule(nn.Conv2DConfig{InChannels: 3, OutChannels: 4, Kernel: 3, Stride: 2, Padding: 1}, dev, tensor.Float64)
	assert.Equal(t, tensor.Shape{4, 3, 3, 3}, c.Weight.Shape())

	bound := math.Sqrt(1.0 / (3 * 3 * 3))
	for _, v := range c.Weight.Values() {
		assert.LessOrEqual(t, math.Abs(v), bound)
	}

	y, err := c.TryForward(uniform(t, dev, 2, 3, 8, 8))
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{2, 4, 4, 4}, y.Shape())

	y, err = c.TryForward(uniform(t, dev, 3, 8, 8))
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{4, 4, 4}, y.Shape())

	grouped := nn.BuildModule(nn.Conv2DConfig{InChannels: 4, OutChannels: 6, Kernel: 1, Groups: 2}, dev, tensor.Float64)
	assert.Equal(t, tensor.Shape{6, 2, 1, 1}, grouped.Weight.Shape())

	assert.Panics(t, func() {
		nn.BuildModule(nn.Conv2DConfig{InChannels: 3, OutChannels: 4, Kernel: 1, Groups: 2}, dev, tensor.Float64)
	})
}

func TestBatchNorm2DTrainingUpdatesRunningStats(t *testing.T) {
	dev := newDevice()
	bn := nn.BuildModule(nn.BatchNorm2DConfig{Channels: 2}, dev, tensor.Float64)
	assert.Equal(t, []float64{0, 0}, bn.RunningMean.Values())
	assert.Equal(t, []float64{1, 1}, bn.RunningVar.Values())
	assert.Equal(t, []float64{1, 1}, bn.Scale.Values())
	assert.Equal(t, 0.1, bn.Momentum)

	// channel 0: mean 2.5, biased var 1.25, unbiased 5/3; channel 1: constant
	x := f64(t, dev, []float64{1, 2, 3, 4, 7, 7, 7, 7}, 2, 2, 2)
	y, err := bn.TryForwardMut(x.TraceNew())
	require.NoError(t, err)

	assert.InDeltaSlice(t, []float64{0.25, 0.7}, bn.RunningMean.Values(), 1e-12)
	assert.InDeltaSlice(t, []float64{0.9 + 0.1*5.0/3.0, 0.9}, bn.RunningVar.Values(), 1e-12)

	std := math.Sqrt(1.25 + 1e-5)
	want := []float64{-1.5 / std, -0.5 / std, 0.5 / std, 1.5 / std, 0, 0, 0, 0}
	assert.InDeltaSlice(t, want, y.Values(), 1e-9)
}

func TestBatchNorm2DRejectsEmptyBatch(t *testing.T) {
	dev := newDevice()
	bn := nn.BuildModule(nn.BatchNorm2DConfig{Channels: 2}, dev, tensor.Float64)
	x, err := tensor.Zeros(dev, tensor.Float64, 0, 2, 3, 3)
	require.NoError(t, err)

	_, err = bn.TryForwardMut(x.TraceNew())
	var rankErr *nn.RankError
	require.ErrorAs(t, err, &rankErr)
	assert.Equal(t, []float64{0, 0}, bn.RunningMean.Values())
	assert.Equal(t, []float64{1, 1}, bn.RunningVar.Values())
}

// budgetDevice fails every allocation once budget reaches zero. A negative
// budget is unlimited.
type budgetDevice struct {
	*cpu.CPUDevice
	budget int
}

func (d *budgetDevice) Allocate(dt tensor.DataType, n int) (tensor.Buffer, error) {
	if d.budget == 0 {
		return tensor.Buffer{}, tensor.ErrOutOfMemory
	}
	if d.budget > 0 {
		d.budget--
	}
	return d.CPUDevice.Allocate(dt, n)
}

func TestBatchNorm2DFailedForwardKeepsRunningStats(t *testing.T) {
	data := []float64{1, 2, 3, 4, 7, 7, 7, 7}
	for budget := 0; ; budget++ {
		require.Less(t, budget, 100, "forward never succeeded")

		dev := &budgetDevice{CPUDevice: cpu.New(), budget: -1}
		bn := nn.BuildModule(nn.BatchNorm2DConfig{Channels: 2}, dev, tensor.Float64)
		x := f64(t, dev, data, 2, 2, 2).TraceNew()
		dev.budget = budget

		_, err := bn.TryForwardMut(x)
		if err == nil {
			assert.Positive(t, budget)
			assert.InDeltaSlice(t, []float64{0.25, 0.7}, bn.RunningMean.Values(), 1e-12)
			return
		}
		require.ErrorIs(t, err, tensor.ErrOutOfMemory)
		assert.Equal(t, []float64{0, 0}, bn.RunningMean.Values(), "budget %d", budget)
		assert.Equal(t, []float64{1, 1}, bn.RunningVar.Values(), "budget %d", budget)
	}
}

func TestBatchNorm2DBatchedGradients(t *testing.T) {
	dev := newDevice()
	bn := nn.BuildModule(nn.BatchNorm2DConfig{Channels: 3}, dev, tensor.Float64)
	grads := nn.AllocGrads(bn)

	y, err := nn.TryForwardMut[*tensor.Tensor](bn, uniform(t, dev, 4, 3, 2, 2).Trace(grads))
	require.NoError(t, err)
	w := uniform(t, dev, 4, 3, 2, 2)
	prod, err := y.Mul(w)
	require.NoError(t, err)
	loss, err := prod.SumAxes()
	require.NoError(t, err)
	_, err = loss.Backward()
	require.NoError(t, err)

	opt := &recordingOptimizer{}
	require.NoError(t, nn.TryUpdate(opt, bn, grads))
	assert.Equal(t, []tensor.UniqueID{bn.Scale.ID(), bn.Bias.ID()}, opt.updated)
}

func TestBatchNorm2DInference(t *testing.T) {
	dev := newDevice()
	bn := nn.BuildModule(nn.BatchNorm2DConfig{Channels: 2}, dev, tensor.Float64)
	require.NoError(t, bn.RunningMean.CopyFrom(f64(t, dev, []float64{1, -1}, 2)))
	require.NoError(t, bn.RunningVar.CopyFrom(f64(t, dev, []float64{4, 1}, 2)))
	bn.Epsilon = 0

	y, err := bn.TryForward(f64(t, dev, []float64{3, 5, 0, 1}, 2, 1, 2))
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{1, 2, 1, 2}, y.Values(), 1e-12)
	assert.Equal(t, []float64{1, -1}, bn.RunningMean.Values())
}

func TestBatchNorm2DModeMisusePanics(t *testing.T) {
	dev := newDevice()
	bn := nn.BuildModule(nn.BatchNorm2DConfig{Channels: 2}, dev, tensor.Float64)
	x := uniform(t, dev, 2, 2, 2)

	assert.Panics(t, func() { _, _ = bn.TryForward(x.TraceNew()) })
	assert.Panics(t, func() { _, _ = bn.TryForwardMut(x) })
}

func TestLayerNorm1D(t *testing.T) {
	dev := newDevice()
	ln := nn.BuildModule(nn.LayerNorm1DConfig{Size: 4}, dev, tensor.Float64)
	assert.Equal(t, []float64{1, 1, 1, 1}, ln.Gamma.Values())
	assert.Equal(t, []float64{0, 0, 0, 0}, ln.Beta.Values())

	for _, shape := range [][]int{{4}, {3, 4}, {2, 3, 4}} {
		y, err := ln.TryForward(uniform(t, dev, shape...))
		require.NoError(t, err)
		assert.Equal(t, tensor.Shape(shape), y.Shape())

		vals := y.Values()
		for row := 0; row < len(vals); row += 4 {
			mean, sq := 0.0, 0.0
			for _, v := range vals[row : row+4] {
				mean += v / 4
				sq += v * v / 4
			}
			assert.InDelta(t, 0, mean, 1e-9)
			assert.InDelta(t, 1, sq, 1e-3)
		}
	}

	_, err := ln.TryForward(uniform(t, dev, 2, 5))
	var rankErr *nn.RankError
	require.ErrorAs(t, err, &rankErr)
}

func TestFunctional(t *testing.T) {
	dev := newDevice()
	x := f64(t, dev, []float64{-1, 0, 2}, 3)

	relu, err := nn.ReLU{}.TryBuild(dev, tensor.Float64)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0, 2}, nn.Forward(relu, x).Values())
	assert.Equal(t, []float64{1, 0, 4}, nn.Forward(nn.Square{}, x).Values())
	assert.InDeltaSlice(t, []float64{math.Tanh(-1), 0, math.Tanh(2)}, nn.Forward(nn.Tanh{}, x).Values(), 1e-12)
	assert.InDelta(t, 0.5, nn.Forward(nn.Sigmoid{}, x).Values()[1], 1e-12)

	sm := nn.Forward(nn.Softmax{}, x).Values()
	assert.InDelta(t, 1, sm[0]+sm[1]+sm[2], 1e-12)

	assert.Zero(t, nn.NumParams(relu))
	assert.NoError(t, nn.TryResetParams(relu))
	grads, err := nn.TryAllocGrads(relu)
	require.NoError(t, err)
	assert.Zero(t, grads.Len())
}

func TestPooling(t *testing.T) {
	dev := newDevice()
	x := f64(t, dev, []float64{
		1, 2, 3, 4,
		5, 6, 7, 8,
		9, 10, 11, 12,
		13, 14, 15, 16,
	}, 1, 4, 4)

	tests := []struct {
		name string
		m    nn.TensorModule
		want []float64
	}{
		{"max", nn.MaxPool2D{Kernel: 2, Stride: 2}, []float64{6, 8, 14, 16}},
		{"min", nn.MinPool2D{Kernel: 2, Stride: 2}, []float64{1, 3, 9, 11}},
		{"avg", nn.AvgPool2D{Kernel: 2, Stride: 2}, []float64{3.5, 5.5, 11.5, 13.5}},
		{"global", nn.AvgPoolGlobal{}, []float64{8.5}},
		{"flatten", nn.Flatten2D{}, x.Values()},
		{"reshape", nn.Reshape{Shape: []int{2, -1}}, x.Values()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			y, err := tt.m.TryForward(x)
			require.NoError(t, err)
			assert.InDeltaSlice(t, tt.want, y.Values(), 1e-12)
		})
	}

	batched := uniform(t, dev, 2, 3, 4, 4)
	y, err := nn.MaxPool2D{Kernel: 3, Padding: 1}.TryForward(batched)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{2, 3, 4, 4}, y.Shape())
	y, err = nn.Flatten2D{}.TryForward(batched)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{2, 48}, y.Shape())
	y, err = nn.AvgPoolGlobal{}.TryForward(batched)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{2, 3}, y.Shape())
}

func TestResidualAdd(t *testing.T) {
	dev := newDevice()
	r := nn.BuildModule(nn.Residual(nn.LinearConfig{In: 4, Out: 4}), dev, tensor.Float64)
	x := uniform(t, dev, 3, 4)

	got, err := r.TryForward(x)
	require.NoError(t, err)
	branch := nn.Forward(r.Block, x)
	want, err := x.Add(branch)
	require.NoError(t, err)
	assert.Equal(t, want.Values(), got.Values())

	params, err := nn.Params(r)
	require.NoError(t, err)
	assert.Equal(t, "block/matmul/weight", params[0].Path)
}

func TestGeneralizedAdd(t *testing.T) {
	dev := newDevice()
	g := nn.BuildModule(nn.Generalized(nn.LinearConfig{In: 4, Out: 2}, nn.MatMulConfig{In: 4, Out: 2}), dev, tensor.Float64)
	x := uniform(t, dev, 3, 4)

	got, err := g.TryForward(x)
	require.NoError(t, err)
	want, err := nn.Forward(g.T, x).Add(nn.Forward(g.U, x))
	require.NoError(t, err)
	assert.Equal(t, want.Values(), got.Values())

	// Both branches sharing one module.
	shared := &nn.GeneralizedAdd[*nn.Linear, *nn.Linear]{}
	shared.T = nn.BuildModule(nn.LinearConfig{In: 4, Out: 2}, dev, tensor.Float64)
	shared.U = shared.T
	got, err = shared.TryForward(x)
	require.NoError(t, err)
	twice, err := nn.Forward(shared.T, x).MulScalar(2)
	require.NoError(t, err)
	assert.InDeltaSlice(t, twice.Values(), got.Values(), 1e-12)

	// Gradients from both branches accumulate.
	grads := nn.AllocGrads(shared)
	y, err := shared.TryForward(x.Trace(grads))
	require.NoError(t, err)
	loss, err := y.SumAxes()
	require.NoError(t, err)
	_, err = loss.Backward()
	require.NoError(t, err)
	gb, ok := grads.Get(shared.T.Bias.Bias)
	require.True(t, ok)
	assert.InDeltaSlice(t, []float64{6, 6}, gb.Values(), 1e-12)
}

func TestMultiHeadAttentionShapes(t *testing.T) {
	dev := newDevice()
	mha := nn.BuildModule(nn.MultiHeadAttentionConfig{Embed: 8, NumHeads: 2}, dev, tensor.Float64)

	y, err := mha.TryForward(uniform(t, dev, 5, 8))
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{5, 8}, y.Shape())

	y, err = mha.TryForward(uniform(t, dev, 2, 5, 8))
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{2, 5, 8}, y.Shape())

	kv := uniform(t, dev, 2, 7, 8)
	y, err = mha.Attend(uniform(t, dev, 2, 3, 8), kv, kv)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{2, 3, 8}, y.Shape())

	assert.Panics(t, func() {
		nn.BuildModule(nn.MultiHeadAttentionConfig{Embed: 8, NumHeads: 3}, dev, tensor.Float64)
	})
}

func TestTransformerTrainsEveryParameter(t *testing.T) {
	dev := newDevice()
	tr := nn.BuildModule(nn.TransformerConfig{
		Model: 8, NumHeads: 2, EncoderLayers: 2, DecoderLayers: 1, Hidden: 16,
	}, dev, tensor.Float64)
	require.Len(t, tr.Encoder, 2)
	require.Len(t, tr.Decoder, 1)

	grads := nn.AllocGrads(tr)
	src := uniform(t, dev, 2, 5, 8).Trace(grads)
	tgt := uniform(t, dev, 2, 3, 8).Retaped(src)
	y, err := tr.TryForward(nn.MakePair(src, tgt))
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{2, 3, 8}, y.Shape())

	w := uniform(t, dev, 2, 3, 8)
	prod, err := y.Mul(w)
	require.NoError(t, err)
	loss, err := prod.SumAxes()
	require.NoError(t, err)
	_, err = loss.Backward()
	require.NoError(t, err)

	params, err := nn.Params(tr)
	require.NoError(t, err)
	opt := &recordingOptimizer{}
	require.NoError(t, nn.TryUpdate(opt, tr, grads))
	assert.Len(t, opt.updated, len(params))
	assert.Equal(t, "encoder/0/self_attn/block/w_q/matmul/weight", params[0].Path)
}
