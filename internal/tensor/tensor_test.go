package tensor_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/layers/internal/backend/cpu"
	"github.com/born-ml/layers/internal/tensor"
)

func TestBroadcastShapes(t *testing.T) {
	tests := []struct {
		name    string
		a, b    tensor.Shape
		want    tensor.Shape
		wantErr bool
	}{
		{"same", tensor.Shape{3, 5}, tensor.Shape{3, 5}, tensor.Shape{3, 5}, false},
		{"column", tensor.Shape{3, 1}, tensor.Shape{3, 5}, tensor.Shape{3, 5}, false},
		{"missing leading", tensor.Shape{5}, tensor.Shape{2, 3, 5}, tensor.Shape{2, 3, 5}, false},
		{"scalar", tensor.Shape{}, tensor.Shape{4}, tensor.Shape{4}, false},
		{"both sides", tensor.Shape{4, 1}, tensor.Shape{1, 6}, tensor.Shape{4, 6}, false},
		{"incompatible", tensor.Shape{3, 4}, tensor.Shape{3, 5}, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tensor.BroadcastShapes(tt.a, tt.b)
			if tt.wantErr {
				var se *tensor.ShapeError
				assert.ErrorAs(t, err, &se)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestShape(t *testing.T) {
	s := tensor.Shape{2, 3, 4}
	assert.Equal(t, 24, s.NumElements())
	assert.Equal(t, []int{12, 4, 1}, s.Strides())
	assert.Equal(t, 1, tensor.Shape{}.NumElements())
	assert.True(t, s.Equal(s.Clone()))
	assert.Error(t, tensor.Shape{2, -1}.Validate())
}

func TestIdentity(t *testing.T) {
	dev := newDevice()
	x := f32(t, dev, []float32{1, 2}, 2)

	c := x.Clone()
	assert.Equal(t, x.ID(), c.ID())
	c.Float32s()[0] = 7
	assert.Equal(t, float32(7), x.Float32s()[0], "clones share storage")

	y, err := x.AddScalar(1)
	require.NoError(t, err)
	assert.NotEqual(t, x.ID(), y.ID())
	assert.Greater(t, y.ID(), x.ID())
}

func TestAllocationErrors(t *testing.T) {
	dev := cpu.New(cpu.WithMaxAllocation(16))

	_, err := tensor.Zeros(dev, tensor.Float32, 4)
	require.NoError(t, err)

	_, err = tensor.Zeros(dev, tensor.Float32, 5)
	assert.ErrorIs(t, err, tensor.ErrOutOfMemory)

	_, err = tensor.Zeros(dev, tensor.Int32, 2)
	assert.ErrorIs(t, err, tensor.ErrUnsupportedDType)

	small := f32(t, dev, []float32{1, 2, 3, 4}, 4)
	_, err = small.MatMul(f32(t, dev, []float32{1, 2, 3, 4}, 4, 1))
	require.NoError(t, err)
	_, err = small.BroadcastTo(2, 4)
	assert.ErrorIs(t, err, tensor.ErrOutOfMemory, "ops surface device errors unchanged")
}

func TestDTypeMismatch(t *testing.T) {
	dev := newDevice()
	a := f32(t, dev, []float32{1}, 1)
	b := f64(t, dev, []float64{1}, 1)
	_, err := a.Add(b)
	assert.ErrorIs(t, err, tensor.ErrDTypeMismatch)
}

func TestInPlace(t *testing.T) {
	dev := newDevice()
	x := f64(t, dev, []float64{1, 2, 3}, 3)
	y := f64(t, dev, []float64{10, 20, 30}, 3)

	require.NoError(t, x.Axpy(0.5, y))
	assert.Equal(t, []float64{6, 12, 18}, x.Values())

	require.NoError(t, x.Axpby(1, y, 0))
	assert.Equal(t, []float64{10, 20, 30}, x.Values())

	z := f32(t, dev, []float32{0, 0}, 2)
	z.Fill(2.5)
	assert.Equal(t, []float32{2.5, 2.5}, z.Float32s())

	assert.Error(t, x.CopyFrom(z))

	z.FillUniform(-0.1, 0.1)
	for _, v := range z.Float32s() {
		assert.True(t, v >= -0.1 && v < 0.1)
	}
}

func TestSeededSampling(t *testing.T) {
	a, err := tensor.SampleUniform(cpu.New(cpu.WithSeed(9)), tensor.Float32, -1, 1, 16)
	require.NoError(t, err)
	b, err := tensor.SampleUniform(cpu.New(cpu.WithSeed(9)), tensor.Float32, -1, 1, 16)
	require.NoError(t, err)
	c, err := tensor.SampleUniform(cpu.New(cpu.WithSeed(10)), tensor.Float32, -1, 1, 16)
	require.NoError(t, err)

	assert.Equal(t, a.Float32s(), b.Float32s())
	assert.NotEqual(t, a.Float32s(), c.Float32s())
}
