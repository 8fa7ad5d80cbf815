// Package cpu implements the CPU device: Go-allocated storage, a seeded
// random source and BLAS matrix multiplication from gonum.
package cpu

import (
	"fmt"
	"math/rand/v2"
	"sync"

	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"
	"gonum.org/v1/gonum/blas/blas64"

	"github.com/born-ml/layers/internal/parallel"
	"github.com/born-ml/layers/internal/tensor"
)

// DefaultSeed seeds devices created without WithSeed.
const DefaultSeed = 0

// CPUDevice implements tensor.Device on the host.
type CPUDevice struct {
	mu       sync.Mutex
	rng      *rand.Rand
	maxBytes int
	par      parallel.Config
}

// Option configures a CPUDevice.
type Option func(*CPUDevice)

// WithSeed seeds the device random source. Devices with equal seeds
// produce identical parameter initializations.
func WithSeed(seed uint64) Option {
	return func(d *CPUDevice) {
		d.rng = newRand(seed)
	}
}

// WithMaxAllocation caps the size in bytes of a single allocation.
// Larger requests fail with tensor.ErrOutOfMemory. Zero means unlimited.
func WithMaxAllocation(bytes int) Option {
	return func(d *CPUDevice) {
		d.maxBytes = bytes
	}
}

// WithParallel sets the configuration for data-parallel kernels.
func WithParallel(cfg parallel.Config) Option {
	return func(d *CPUDevice) {
		d.par = cfg
	}
}

// New creates a CPU device.
func New(opts ...Option) *CPUDevice {
	d := &CPUDevice{
		rng: newRand(DefaultSeed),
		par: parallel.DefaultConfig(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func newRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// Name returns the device name.
func (d *CPUDevice) Name() string {
	return "cpu"
}

// Parallel returns the kernel parallelism configuration.
func (d *CPUDevice) Parallel() parallel.Config {
	return d.par
}

// Allocate returns zeroed storage for n elements of dt.
func (d *CPUDevice) Allocate(dt tensor.DataType, n int) (tensor.Buffer, error) {
	if n < 0 {
		return tensor.Buffer{}, fmt.Errorf("cpu: negative allocation of %d elements", n)
	}
	if !dt.IsFloat() {
		return tensor.Buffer{}, fmt.Errorf("cpu: allocate: %w: %s", tensor.ErrUnsupportedDType, dt)
	}
	if bytes := n * dt.Size(); d.maxBytes > 0 && bytes > d.maxBytes {
		return tensor.Buffer{}, fmt.Errorf("%w: %d bytes requested, limit %d", tensor.ErrOutOfMemory, bytes, d.maxBytes)
	}
	if dt == tensor.Float32 {
		return tensor.Buffer{F32: make([]float32, n)}, nil
	}
	return tensor.Buffer{F64: make([]float64, n)}, nil
}

// SampleUniform fills dst with draws from U(lo, hi).
func (d *CPUDevice) SampleUniform(dst tensor.Buffer, lo, hi float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	width := hi - lo
	for i := range dst.F32 {
		dst.F32[i] = float32(lo + width*d.rng.Float64())
	}
	for i := range dst.F64 {
		dst.F64[i] = lo + width*d.rng.Float64()
	}
}

// SampleNormal fills dst with draws from N(mean, std²).
func (d *CPUDevice) SampleNormal(dst tensor.Buffer, mean, std float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := range dst.F32 {
		dst.F32[i] = float32(mean + std*d.rng.NormFloat64())
	}
	for i := range dst.F64 {
		dst.F64[i] = mean + std*d.rng.NormFloat64()
	}
}

func transpose(t bool) blas.Transpose {
	if t {
		return blas.Trans
	}
	return blas.NoTrans
}

// general describes a row-major matrix holding op(x) of size rows×cols.
func general[T float32 | float64](trans bool, rows, cols int, data []T) (r, c int, d []T) {
	if trans {
		rows, cols = cols, rows
	}
	return rows, cols, data[:rows*cols]
}

// GemmF32 computes c = op(a)·op(b) + beta·c.
func (d *CPUDevice) GemmF32(transA, transB bool, m, n, k int, a, b []float32, beta float32, c []float32) {
	ar, ac, ad := general(transA, m, k, a)
	br, bc, bd := general(transB, k, n, b)
	blas32.Gemm(transpose(transA), transpose(transB), 1,
		blas32.General{Rows: ar, Cols: ac, Stride: ac, Data: ad},
		blas32.General{Rows: br, Cols: bc, Stride: bc, Data: bd},
		beta,
		blas32.General{Rows: m, Cols: n, Stride: n, Data: c[:m*n]})
}

// GemmF64 computes c = op(a)·op(b) + beta·c.
func (d *CPUDevice) GemmF64(transA, transB bool, m, n, k int, a, b []float64, beta float64, c []float64) {
	ar, ac, ad := general(transA, m, k, a)
	br, bc, bd := general(transB, k, n, b)
	blas64.Gemm(transpose(transA), transpose(transB), 1,
		blas64.General{Rows: ar, Cols: ac, Stride: ac, Data: ad},
		blas64.General{Rows: br, Cols: bc, Stride: bc, Data: bd},
		beta,
		blas64.General{Rows: m, Cols: n, Stride: n, Data: c[:m*n]})
}

var _ tensor.Device = (*CPUDevice)(nil)
