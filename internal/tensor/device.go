package tensor

import "github.com/born-ml/layers/internal/parallel"

// Buffer is device-owned element storage. Exactly one of the slices is set,
// matching the DataType it was allocated for.
type Buffer struct {
	F32 []float32
	F64 []float64
}

// Len returns the number of elements in the buffer.
func (b Buffer) Len() int {
	if b.F32 != nil {
		return len(b.F32)
	}
	return len(b.F64)
}

// Device is the compute device tensors are allocated on.
//
// Implementations must be safe for concurrent use. Gemm computes
// c = op(a)·op(b) + beta·c on contiguous row-major matrices, where op(a) is
// m×k and op(b) is k×n.
type Device interface {
	// Name identifies the device, e.g. "cpu".
	Name() string

	// Allocate returns zeroed storage for n elements of dt.
	// Returns ErrOutOfMemory when the device cannot hold it.
	Allocate(dt DataType, n int) (Buffer, error)

	// SampleUniform fills dst with values drawn from U(lo, hi).
	SampleUniform(dst Buffer, lo, hi float64)

	// SampleNormal fills dst with values drawn from N(mean, std²).
	SampleNormal(dst Buffer, mean, std float64)

	GemmF32(transA, transB bool, m, n, k int, a, b []float32, beta float32, c []float32)
	GemmF64(transA, transB bool, m, n, k int, a, b []float64, beta float64, c []float64)

	// Parallel returns the configuration for data-parallel kernels.
	Parallel() parallel.Config
}

// gemm dispatches to the device kernel matching T.
func gemm[T Float](dev Device, transA, transB bool, m, n, k int, a, b []T, beta T, c []T) {
	if m == 0 || n == 0 {
		return
	}
	if k == 0 {
		for i := range c[:m*n] {
			c[i] *= beta
		}
		return
	}
	switch a := any(a).(type) {
	case []float32:
		dev.GemmF32(transA, transB, m, n, k, a, any(b).([]float32), float32(beta), any(c).([]float32))
	case []float64:
		dev.GemmF64(transA, transB, m, n, k, a, any(b).([]float64), float64(beta), any(c).([]float64))
	}
}
