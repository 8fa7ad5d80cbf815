package tensor

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Bytes returns the elements of t as little-endian bytes in row-major order.
func (t *Tensor) Bytes() []byte {
	out := make([]byte, t.NumElements()*t.dtype.Size())
	switch t.dtype {
	case Float32:
		for i, v := range t.buf.F32 {
			binary.LittleEndian.PutUint32(out[4*i:], math.Float32bits(v))
		}
	case Float64:
		for i, v := range t.buf.F64 {
			binary.LittleEndian.PutUint64(out[8*i:], math.Float64bits(v))
		}
	}
	return out
}

// SetBytes overwrites t in place from little-endian row-major bytes.
func (t *Tensor) SetBytes(data []byte) error {
	if want := t.NumElements() * t.dtype.Size(); len(data) != want {
		return shapeErr("set bytes", fmt.Sprintf("%d bytes, want %d", len(data), want), t.shape)
	}
	switch t.dtype {
	case Float32:
		for i := range t.buf.F32 {
			t.buf.F32[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[4*i:]))
		}
	case Float64:
		for i := range t.buf.F64 {
			t.buf.F64[i] = math.Float64frombits(binary.LittleEndian.Uint64(data[8*i:]))
		}
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedDType, t.dtype)
	}
	return nil
}
