package nn_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/layers/internal/nn"
	"github.com/born-ml/layers/internal/serialization"
	"github.com/born-ml/layers/internal/tensor"
)

type convNetConfig struct {
	Conv nn.Conv2DConfig
	BN   nn.BatchNorm2DConfig
	Act  nn.ReLU
	Pool nn.AvgPoolGlobal
	Head nn.LinearConfig
}

type convNet struct {
	Conv *nn.Conv2D       `nn:"conv,module"`
	BN   *nn.BatchNorm2D  `nn:"bn,module"`
	Act  nn.ReLU          `nn:"act,module"`
	Pool nn.AvgPoolGlobal `nn:"pool,module"`
	Head *nn.Linear       `nn:"head,module"`
}

func (c convNetConfig) TryBuild(dev tensor.Device, dt tensor.DataType) (*convNet, error) {
	return nn.BuildFields[*convNet](c, dev, dt)
}

func newConvNetConfig() convNetConfig {
	return convNetConfig{
		Conv: nn.Conv2DConfig{InChannels: 1, OutChannels: 2, Kernel: 3},
		BN:   nn.BatchNorm2DConfig{Channels: 2},
		Head: nn.LinearConfig{In: 2, Out: 3},
	}
}

func TestFlattenPathsAndOrder(t *testing.T) {
	m := nn.BuildModule(newConvNetConfig(), newDevice(), tensor.Float32)
	records, err := nn.Flatten(m)
	require.NoError(t, err)

	names := make([]string, len(records))
	for i, r := range records {
		names[i] = r.Name
	}
	assert.Equal(t, []string{
		"conv/weight",
		"bn/scale", "bn/bias", "bn/running_mean", "bn/running_var", "bn/epsilon", "bn/momentum",
		"head/matmul/weight", "head/bias/bias",
	}, names)

	eps := records[5]
	assert.Equal(t, tensor.Float64, eps.DType)
	assert.Empty(t, eps.Shape)
	assert.Len(t, eps.Data, 8)

	w := records[0]
	assert.Equal(t, tensor.Float32, w.DType)
	assert.Equal(t, []int{2, 1, 3, 3}, w.Shape)
	assert.Len(t, w.Data, 2*9*4)
}

func TestUnflattenRoundTrip(t *testing.T) {
	dev := newDevice()
	src := nn.BuildModule(newConvNetConfig(), dev, tensor.Float64)
	src.BN.Momentum = 0.3
	require.NoError(t, src.BN.RunningMean.CopyFrom(f64(t, dev, []float64{0.5, -0.5}, 2)))

	records, err := nn.Flatten(src)
	require.NoError(t, err)

	dst, err := newConvNetConfig().TryBuild(dev, tensor.Float64)
	require.NoError(t, err)
	require.NoError(t, nn.Unflatten(dst, records))

	assert.Equal(t, 0.3, dst.BN.Momentum)
	again, err := nn.Flatten(dst)
	require.NoError(t, err)
	assert.Equal(t, records, again)
	assert.NotEqual(t, src.Conv.Weight.ID(), dst.Conv.Weight.ID())
}

func TestUnflattenErrors(t *testing.T) {
	dev := newDevice()
	src := nn.BuildModule(nn.LinearConfig{In: 3, Out: 5}, dev, tensor.Float64)
	records, err := nn.Flatten(src)
	require.NoError(t, err)

	t.Run("missing", func(t *testing.T) {
		dst := nn.BuildModule(nn.LinearConfig{In: 3, Out: 5}, dev, tensor.Float64)
		err := nn.Unflatten(dst, records[:1])
		require.ErrorIs(t, err, serialization.ErrMissingTensor)
		var ce *serialization.ContentError
		require.ErrorAs(t, err, &ce)
		assert.Equal(t, "bias/bias", ce.Name)
	})

	t.Run("shape", func(t *testing.T) {
		dst := nn.BuildModule(nn.LinearConfig{In: 3, Out: 4}, dev, tensor.Float64)
		require.ErrorIs(t, nn.Unflatten(dst, records), serialization.ErrShapeMismatch)
	})

	t.Run("dtype", func(t *testing.T) {
		dst := nn.BuildModule(nn.LinearConfig{In: 3, Out: 5}, dev, tensor.Float32)
		require.ErrorIs(t, nn.Unflatten(dst, records), serialization.ErrDTypeMismatch)
	})

	t.Run("scalar needs pointer", func(t *testing.T) {
		type withScalar struct {
			Eps float64 `nn:"eps,scalar"`
		}
		recs, err := nn.Flatten(withScalar{Eps: 2})
		require.NoError(t, err)

		var se *nn.StructureError
		require.ErrorAs(t, nn.Unflatten(withScalar{}, recs), &se)

		var dst withScalar
		require.NoError(t, nn.Unflatten(&dst, recs))
		assert.Equal(t, 2.0, dst.Eps)
	})
}

func TestSaveLoad(t *testing.T) {
	dev := newDevice()
	path := filepath.Join(t.TempDir(), "model.safetensors")

	src := nn.BuildModule(newConvNetConfig(), dev, tensor.Float32)
	require.NoError(t, nn.Save(path, src))

	dst, err := newConvNetConfig().TryBuild(dev, tensor.Float32)
	require.NoError(t, err)
	require.NoError(t, nn.Load(path, dst))

	for _, pair := range [][2]*tensor.Tensor{
		{src.Conv.Weight, dst.Conv.Weight},
		{src.BN.RunningVar, dst.BN.RunningVar},
		{src.Head.MatMul.Weight, dst.Head.MatMul.Weight},
	} {
		assert.Equal(t, pair[0].Float32s(), pair[1].Float32s())
	}

	x := uniform(t, dev, 2, 1, 5, 5)
	x32, err := tensor.Zeros(dev, tensor.Float32, 2, 1, 5, 5)
	require.NoError(t, err)
	for i, v := range x.Values() {
		x32.Float32s()[i] = float32(v)
	}
	a, err := nn.ForwardFields[*tensor.Tensor](src, x32)
	require.NoError(t, err)
	b, err := nn.ForwardFields[*tensor.Tensor](dst, x32)
	require.NoError(t, err)
	assert.Equal(t, a.Values(), b.Values())

	err = nn.Load(filepath.Join(t.TempDir(), "absent.safetensors"), dst)
	var fe *serialization.FileError
	require.ErrorAs(t, err, &fe)
}
