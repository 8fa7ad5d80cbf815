package tensor

import (
	"fmt"
	"sync/atomic"

	"gonum.org/v1/gonum/floats"
)

// UniqueID identifies a tensor's storage across clones.
//
// Clone keeps the ID, every operation output gets a fresh one. Gradients are
// keyed by UniqueID, so a parameter and all of its clones share one gradient.
type UniqueID uint64

var lastID atomic.Uint64

// NewID returns a process-wide unique, monotonically increasing ID.
func NewID() UniqueID {
	return UniqueID(lastID.Add(1))
}

// Tensor is a dense row-major array bound to a Device.
//
// A Tensor may carry a gradient tape. Operations on a taped tensor record
// themselves so Backward can later compute gradients. Tensors without a tape
// are plain values and operations on them record nothing.
type Tensor struct {
	id    UniqueID
	shape Shape
	dtype DataType
	dev   Device
	buf   Buffer
	tape  *Tape
}

// Zeros allocates a zero-filled tensor.
func Zeros(dev Device, dt DataType, shape ...int) (*Tensor, error) {
	s := Shape(shape).Clone()
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("tensor: zeros: %w", err)
	}
	if !dt.IsFloat() {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedDType, dt)
	}
	buf, err := dev.Allocate(dt, s.NumElements())
	if err != nil {
		return nil, err
	}
	return &Tensor{id: NewID(), shape: s, dtype: dt, dev: dev, buf: buf}, nil
}

// Full allocates a tensor filled with v.
func Full(dev Device, dt DataType, v float64, shape ...int) (*Tensor, error) {
	t, err := Zeros(dev, dt, shape...)
	if err != nil {
		return nil, err
	}
	t.Fill(v)
	return t, nil
}

// Ones allocates a tensor filled with ones.
func Ones(dev Device, dt DataType, shape ...int) (*Tensor, error) {
	return Full(dev, dt, 1, shape...)
}

// FromFloat32s copies data into a new Float32 tensor of the given shape.
func FromFloat32s(dev Device, data []float32, shape ...int) (*Tensor, error) {
	return fromSlice(dev, Float32, data, shape)
}

// FromFloat64s copies data into a new Float64 tensor of the given shape.
func FromFloat64s(dev Device, data []float64, shape ...int) (*Tensor, error) {
	return fromSlice(dev, Float64, data, shape)
}

func fromSlice[T Float](dev Device, dt DataType, data []T, shape []int) (*Tensor, error) {
	if Shape(shape).NumElements() != len(data) {
		return nil, fmt.Errorf("tensor: shape %v requires %d elements, but got %d",
			shape, Shape(shape).NumElements(), len(data))
	}
	t, err := Zeros(dev, dt, shape...)
	if err != nil {
		return nil, err
	}
	copy(elems[T](t), data)
	return t, nil
}

// SampleUniform allocates a tensor with values drawn from U(lo, hi).
func SampleUniform(dev Device, dt DataType, lo, hi float64, shape ...int) (*Tensor, error) {
	t, err := Zeros(dev, dt, shape...)
	if err != nil {
		return nil, err
	}
	t.FillUniform(lo, hi)
	return t, nil
}

// SampleNormal allocates a tensor with values drawn from N(mean, std²).
func SampleNormal(dev Device, dt DataType, mean, std float64, shape ...int) (*Tensor, error) {
	t, err := Zeros(dev, dt, shape...)
	if err != nil {
		return nil, err
	}
	t.dev.SampleNormal(t.buf, mean, std)
	return t, nil
}

// ID returns the tensor's identity.
func (t *Tensor) ID() UniqueID { return t.id }

// Shape returns a copy of the tensor's shape.
func (t *Tensor) Shape() Shape { return t.shape.Clone() }

// Rank returns the number of dimensions.
func (t *Tensor) Rank() int { return len(t.shape) }

// Dim returns the size of dimension i. Negative i counts from the end.
func (t *Tensor) Dim(i int) int {
	if i < 0 {
		i += len(t.shape)
	}
	return t.shape[i]
}

// NumElements returns the total number of elements.
func (t *Tensor) NumElements() int { return t.shape.NumElements() }

// DType returns the tensor's data type.
func (t *Tensor) DType() DataType { return t.dtype }

// Device returns the device the tensor lives on.
func (t *Tensor) Device() Device { return t.dev }

// Float32s returns the underlying storage of a Float32 tensor.
// The slice aliases the tensor; it is nil for other data types.
func (t *Tensor) Float32s() []float32 { return t.buf.F32 }

// Float64s returns the underlying storage of a Float64 tensor.
// The slice aliases the tensor; it is nil for other data types.
func (t *Tensor) Float64s() []float64 { return t.buf.F64 }

// Values returns a float64 copy of the tensor's elements.
func (t *Tensor) Values() []float64 {
	out := make([]float64, t.NumElements())
	switch t.dtype {
	case Float32:
		for i, v := range t.buf.F32 {
			out[i] = float64(v)
		}
	case Float64:
		copy(out, t.buf.F64)
	}
	return out
}

// Item returns the single element of a one-element tensor.
func (t *Tensor) Item() float64 {
	if t.NumElements() != 1 {
		panic(fmt.Sprintf("tensor: Item on tensor of shape %v", t.shape))
	}
	return t.Values()[0]
}

// Clone returns a tensor sharing storage, identity and tape with t.
func (t *Tensor) Clone() *Tensor {
	c := *t
	c.shape = t.shape.Clone()
	return &c
}

// String returns a short description of the tensor.
func (t *Tensor) String() string {
	return fmt.Sprintf("Tensor(id=%d, shape=%v, dtype=%s, device=%s)", t.id, []int(t.shape), t.dtype, t.dev.Name())
}

// elems returns the storage of t viewed as []T. T must match t's data type.
func elems[T Float](t *Tensor) []T {
	var zero T
	if _, ok := any(zero).(float32); ok {
		return any(t.buf.F32).([]T)
	}
	return any(t.buf.F64).([]T)
}

// like allocates an untaped tensor with t's device and data type.
func like(t *Tensor, shape Shape) (*Tensor, error) {
	return Zeros(t.dev, t.dtype, shape...)
}

// Fill sets every element to v in place.
func (t *Tensor) Fill(v float64) {
	switch t.dtype {
	case Float32:
		for i := range t.buf.F32 {
			t.buf.F32[i] = float32(v)
		}
	case Float64:
		for i := range t.buf.F64 {
			t.buf.F64[i] = v
		}
	}
}

// FillUniform overwrites every element with a draw from U(lo, hi).
func (t *Tensor) FillUniform(lo, hi float64) {
	t.dev.SampleUniform(t.buf, lo, hi)
}

// CopyFrom copies src's elements into t in place. Shapes must match.
func (t *Tensor) CopyFrom(src *Tensor) error {
	if !t.shape.Equal(src.shape) {
		return shapeErr("copy", "", t.shape, src.shape)
	}
	if t.dtype != src.dtype {
		return fmt.Errorf("%w: copy %s into %s", ErrDTypeMismatch, src.dtype, t.dtype)
	}
	switch t.dtype {
	case Float32:
		copy(t.buf.F32, src.buf.F32)
	case Float64:
		copy(t.buf.F64, src.buf.F64)
	}
	return nil
}

// Axpby computes t = a·x + b·t in place.
// x must have the same number of elements and data type as t.
func (t *Tensor) Axpby(a float64, x *Tensor, b float64) error {
	if t.NumElements() != x.NumElements() {
		return shapeErr("axpby", "element count differs", t.shape, x.shape)
	}
	if t.dtype != x.dtype {
		return fmt.Errorf("%w: axpby %s into %s", ErrDTypeMismatch, x.dtype, t.dtype)
	}
	switch t.dtype {
	case Float32:
		axpby(float32(a), x.buf.F32, float32(b), t.buf.F32)
	case Float64:
		if b != 1 {
			floats.Scale(b, t.buf.F64)
		}
		floats.AddScaled(t.buf.F64, a, x.buf.F64)
	}
	return nil
}

// Axpy computes t += a·x in place.
func (t *Tensor) Axpy(a float64, x *Tensor) error {
	return t.Axpby(a, x, 1)
}

func axpby[T Float](a T, x []T, b T, y []T) {
	for i := range y {
		y[i] = a*x[i] + b*y[i]
	}
}
