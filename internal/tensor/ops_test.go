package tensor_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/layers/internal/tensor"
)

func TestAddBroadcastBackward(t *testing.T) {
	dev := newDevice()
	a := f32(t, dev, []float32{1, 2, 3, 4, 5, 6}, 2, 3)
	b := f32(t, dev, []float32{10, 20, 30}, 3)

	y, err := a.TraceNew().Add(b)
	require.NoError(t, err)
	assert.Equal(t, []float32{11, 22, 33, 14, 25, 36}, y.Float32s())

	loss, err := y.SumAxes()
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{}, loss.Shape())

	grads, err := loss.Backward()
	require.NoError(t, err)

	gb, ok := grads.Get(b)
	require.True(t, ok)
	assert.Equal(t, []float32{2, 2, 2}, gb.Float32s())

	ga, ok := grads.Get(a)
	require.True(t, ok)
	assert.Equal(t, []float32{1, 1, 1, 1, 1, 1}, ga.Float32s())
	assert.Equal(t, 2, grads.Len(), "intermediate gradients are dropped")
}

func TestBackwardWithoutTape(t *testing.T) {
	dev := newDevice()
	x := f32(t, dev, []float32{1}, 1)
	_, err := x.Backward()
	assert.ErrorIs(t, err, tensor.ErrNoTape)
}

func TestUntapedOpsRecordNothing(t *testing.T) {
	dev := newDevice()
	x := f32(t, dev, []float32{1, 2}, 2)
	y, err := x.Square()
	require.NoError(t, err)
	assert.False(t, y.HasTape())

	traced := x.TraceNew()
	y, err = traced.Square()
	require.NoError(t, err)
	assert.True(t, y.HasTape())
	assert.Equal(t, 1, y.Tape().Len())
}

func TestTapeMerge(t *testing.T) {
	dev := newDevice()
	a := f64(t, dev, []float64{1, 2}, 2)
	b := f64(t, dev, []float64{3, 4}, 2)

	ya, err := a.TraceNew().MulScalar(2)
	require.NoError(t, err)
	yb, err := b.TraceNew().Square()
	require.NoError(t, err)
	require.NotSame(t, ya.Tape(), yb.Tape())

	prod, err := ya.Mul(yb)
	require.NoError(t, err)
	assert.Same(t, ya.Tape(), yb.Tape(), "tapes merge when values meet")

	loss, err := prod.SumAxes()
	require.NoError(t, err)
	grads, err := loss.Backward()
	require.NoError(t, err)

	ga, ok := grads.Get(a)
	require.True(t, ok)
	gb, ok := grads.Get(b)
	require.True(t, ok)
	// loss = Σ 2a·b²
	assert.InDeltaSlice(t, []float64{18, 32}, ga.Values(), 1e-12)
	assert.InDeltaSlice(t, []float64{12, 32}, gb.Values(), 1e-12)
}

func TestSplitAndPutTape(t *testing.T) {
	dev := newDevice()
	x := f64(t, dev, []float64{1, 2}, 2).TraceNew()

	plain, tape := x.SplitTape()
	assert.False(t, plain.HasTape())
	require.NotNil(t, tape)
	assert.Equal(t, x.ID(), plain.ID())

	y, err := plain.Square()
	require.NoError(t, err)
	assert.False(t, y.HasTape())

	y = y.PutTape(tape)
	z, err := y.SumAxes()
	require.NoError(t, err)
	assert.Same(t, tape, z.Tape())
}

func TestTraceAccumulatesIntoStore(t *testing.T) {
	dev := newDevice()
	w := f64(t, dev, []float64{3}, 1)
	grads := tensor.NewGradients()

	for range 2 {
		x := f64(t, dev, []float64{2}, 1).Trace(grads)
		y, err := x.Mul(w)
		require.NoError(t, err)
		s, err := y.SumAxes()
		require.NoError(t, err)
		_, err = s.Backward()
		require.NoError(t, err)
	}

	gw, ok := grads.Get(w)
	require.True(t, ok)
	assert.Equal(t, []float64{4}, gw.Values())
}

func TestMatMulShapes(t *testing.T) {
	dev := newDevice()
	tests := []struct {
		name    string
		a, b    []int
		want    tensor.Shape
		wantErr bool
	}{
		{"vector", []int{3}, []int{3, 4}, tensor.Shape{4}, false},
		{"matrix", []int{2, 3}, []int{3, 4}, tensor.Shape{2, 4}, false},
		{"batch by matrix", []int{5, 2, 3}, []int{3, 4}, tensor.Shape{5, 2, 4}, false},
		{"batched", []int{5, 2, 3}, []int{5, 3, 4}, tensor.Shape{5, 2, 4}, false},
		{"batched 4d", []int{2, 3, 2, 3}, []int{2, 3, 3, 2}, tensor.Shape{2, 3, 2, 2}, false},
		{"inner mismatch", []int{2, 3}, []int{4, 4}, nil, true},
		{"batch mismatch", []int{5, 2, 3}, []int{4, 3, 4}, nil, true},
		{"unsupported", []int{3}, []int{3}, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			y, err := uniform(t, dev, tt.a...).MatMul(uniform(t, dev, tt.b...))
			if tt.wantErr {
				var se *tensor.ShapeError
				assert.ErrorAs(t, err, &se)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, y.Shape())
		})
	}
}

func TestMatMulValues(t *testing.T) {
	dev := newDevice()
	a := f32(t, dev, []float32{1, 2, 3, 4, 5, 6}, 2, 3)
	b := f32(t, dev, []float32{7, 8, 9, 10, 11, 12}, 3, 2)
	y, err := a.MatMul(b)
	require.NoError(t, err)
	assert.Equal(t, []float32{58, 64, 139, 154}, y.Float32s())
}

func TestGradients(t *testing.T) {
	dev := newDevice()
	tests := []struct {
		name   string
		shapes [][]int
		f      func(in []*tensor.Tensor) (*tensor.Tensor, error)
	}{
		{"sub broadcast", [][]int{{2, 3}, {2, 1}}, func(in []*tensor.Tensor) (*tensor.Tensor, error) {
			return in[0].Sub(in[1])
		}},
		{"mul broadcast", [][]int{{2, 3}, {3}}, func(in []*tensor.Tensor) (*tensor.Tensor, error) {
			return in[0].Mul(in[1])
		}},
		{"div", [][]int{{2, 3}, {1, 3}}, func(in []*tensor.Tensor) (*tensor.Tensor, error) {
			d, err := in[1].AddScalar(3)
			if err != nil {
				return nil, err
			}
			return in[0].Div(d)
		}},
		{"tanh sigmoid", [][]int{{4}}, func(in []*tensor.Tensor) (*tensor.Tensor, error) {
			y, err := in[0].Tanh()
			if err != nil {
				return nil, err
			}
			return y.Sigmoid()
		}},
		{"sqrt exp", [][]int{{4}}, func(in []*tensor.Tensor) (*tensor.Tensor, error) {
			y, err := in[0].Exp()
			if err != nil {
				return nil, err
			}
			return y.Sqrt()
		}},
		{"softmax", [][]int{{2, 4}}, func(in []*tensor.Tensor) (*tensor.Tensor, error) {
			return in[0].Softmax()
		}},
		{"matmul", [][]int{{2, 3}, {3, 4}}, func(in []*tensor.Tensor) (*tensor.Tensor, error) {
			return in[0].MatMul(in[1])
		}},
		{"matmul vector", [][]int{{3}, {3, 2}}, func(in []*tensor.Tensor) (*tensor.Tensor, error) {
			return in[0].MatMul(in[1])
		}},
		{"matmul batched", [][]int{{2, 2, 3}, {2, 3, 2}}, func(in []*tensor.Tensor) (*tensor.Tensor, error) {
			return in[0].MatMul(in[1])
		}},
		{"permute", [][]int{{2, 3, 4}}, func(in []*tensor.Tensor) (*tensor.Tensor, error) {
			return in[0].Permute(2, 0, 1)
		}},
		{"reshape transpose", [][]int{{6}}, func(in []*tensor.Tensor) (*tensor.Tensor, error) {
			y, err := in[0].Reshape(2, -1)
			if err != nil {
				return nil, err
			}
			return y.Transpose()
		}},
		{"broadcast to", [][]int{{3, 1}}, func(in []*tensor.Tensor) (*tensor.Tensor, error) {
			return in[0].BroadcastTo(2, 3, 4)
		}},
		{"mean keep dims", [][]int{{2, 3, 4}}, func(in []*tensor.Tensor) (*tensor.Tensor, error) {
			return in[0].MeanKeepDims(0, 2)
		}},
		{"sum axes", [][]int{{2, 3, 4}}, func(in []*tensor.Tensor) (*tensor.Tensor, error) {
			return in[0].SumAxes(-1)
		}},
		{"conv2d", [][]int{{2, 2, 5, 5}, {3, 2, 3, 3}}, func(in []*tensor.Tensor) (*tensor.Tensor, error) {
			return in[0].Conv2D(in[1], tensor.ConvParams{Stride: 2, Padding: 1})
		}},
		{"conv2d grouped dilated", [][]int{{4, 6, 6}, {4, 2, 2, 2}}, func(in []*tensor.Tensor) (*tensor.Tensor, error) {
			return in[0].Conv2D(in[1], tensor.ConvParams{Dilation: 2, Groups: 2})
		}},
		{"avg pool", [][]int{{1, 2, 4, 4}}, func(in []*tensor.Tensor) (*tensor.Tensor, error) {
			return in[0].Pool2D(tensor.PoolAvg, 2, tensor.ConvParams{Stride: 1, Padding: 1})
		}},
		{"max pool", [][]int{{2, 4, 4}}, func(in []*tensor.Tensor) (*tensor.Tensor, error) {
			return in[0].Pool2D(tensor.PoolMax, 2, tensor.ConvParams{Stride: 2})
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inputs := make([]*tensor.Tensor, len(tt.shapes))
			for i, s := range tt.shapes {
				inputs[i] = uniform(t, dev, s...)
			}
			checkGrad(t, inputs, tt.f)
		})
	}
}

func TestConv2DValues(t *testing.T) {
	dev := newDevice()
	x := f32(t, dev, []float32{
		1, 2, 3,
		4, 5, 6,
		7, 8, 9,
	}, 1, 3, 3)
	w := f32(t, dev, []float32{1, 1, 1, 1}, 1, 1, 2, 2)

	y, err := x.Conv2D(w, tensor.ConvParams{})
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{1, 2, 2}, y.Shape())
	assert.Equal(t, []float32{12, 16, 24, 28}, y.Float32s())

	y, err = x.Conv2D(w, tensor.ConvParams{Padding: 1, Stride: 2})
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{1, 2, 2}, y.Shape())
	assert.Equal(t, []float32{1, 5, 11, 28}, y.Float32s())

	_, err = x.Conv2D(w, tensor.ConvParams{Groups: 2})
	var se *tensor.ShapeError
	assert.ErrorAs(t, err, &se)
}

func TestPool2DValues(t *testing.T) {
	dev := newDevice()
	x := f32(t, dev, []float32{
		1, -2, 3, 0,
		4, 5, -6, 2,
		0, 1, 1, 1,
		-1, 2, 3, 8,
	}, 1, 4, 4)
	p := tensor.ConvParams{Stride: 2}

	tests := []struct {
		kind tensor.PoolKind
		want []float32
	}{
		{tensor.PoolMax, []float32{5, 3, 2, 8}},
		{tensor.PoolMin, []float32{-2, -6, -1, 1}},
		{tensor.PoolAvg, []float32{2, -0.25, 0.5, 3.25}},
	}
	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			y, err := x.Pool2D(tt.kind, 2, p)
			require.NoError(t, err)
			assert.Equal(t, tensor.Shape{1, 2, 2}, y.Shape())
			assert.InDeltaSlice(t, tt.want, y.Float32s(), 1e-6)
		})
	}
}

func TestSoftmaxRows(t *testing.T) {
	dev := newDevice()
	x := f64(t, dev, []float64{1, 2, 3, 1000, 1000, 1000}, 2, 3)
	y, err := x.Softmax()
	require.NoError(t, err)
	v := y.Values()
	assert.InDelta(t, 1, v[0]+v[1]+v[2], 1e-12)
	assert.InDeltaSlice(t, []float64{1. / 3, 1. / 3, 1. / 3}, v[3:], 1e-12)
	assert.False(t, math.IsNaN(v[3]))
}

func TestReshapeErrors(t *testing.T) {
	dev := newDevice()
	x := uniform(t, dev, 2, 3)
	_, err := x.Reshape(4, 2)
	var se *tensor.ShapeError
	assert.ErrorAs(t, err, &se)
	_, err = x.Reshape(-1, -1)
	assert.ErrorAs(t, err, &se)
	y, err := x.Reshape(3, -1)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{3, 2}, y.Shape())
}
