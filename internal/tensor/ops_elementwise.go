package tensor

import (
	"fmt"
	"math"
)

// checkPair verifies that two operands can be combined.
func checkPair(op string, a, b *Tensor) error {
	if a.dtype != b.dtype {
		return fmt.Errorf("%w: %s on %s and %s", ErrDTypeMismatch, op, a.dtype, b.dtype)
	}
	if a.dev != b.dev {
		return fmt.Errorf("%w: %s on %s and %s", ErrDeviceMismatch, op, a.dev.Name(), b.dev.Name())
	}
	return nil
}

// walk2 visits every index of shape in row-major order, tracking the
// matching offsets into two operands with strides sa and sb.
func walk2(shape Shape, sa, sb []int, fn func(i, ia, ib int)) {
	n := shape.NumElements()
	if n == 0 {
		return
	}
	idx := make([]int, len(shape))
	ia, ib := 0, 0
	for i := 0; i < n; i++ {
		fn(i, ia, ib)
		for d := len(shape) - 1; d >= 0; d-- {
			idx[d]++
			ia += sa[d]
			ib += sb[d]
			if idx[d] < shape[d] {
				break
			}
			ia -= sa[d] * shape[d]
			ib -= sb[d] * shape[d]
			idx[d] = 0
		}
	}
}

func binaryKernel[T Float](a, b, out *Tensor, f func(x, y float64) float64) {
	ad, bd, od := elems[T](a), elems[T](b), elems[T](out)
	if a.shape.Equal(b.shape) {
		for i := range od {
			od[i] = T(f(float64(ad[i]), float64(bd[i])))
		}
		return
	}
	sa := broadcastStrides(a.shape, out.shape)
	sb := broadcastStrides(b.shape, out.shape)
	walk2(out.shape, sa, sb, func(i, ia, ib int) {
		od[i] = T(f(float64(ad[ia]), float64(bd[ib])))
	})
}

// binaryGrad returns gradients in the broadcast output shape.
type binaryGrad func(g, a, b, out *Tensor) (ga, gb *Tensor, err error)

func binaryOp(name string, a, b *Tensor, f func(x, y float64) float64, grad binaryGrad) (*Tensor, error) {
	if err := checkPair(name, a, b); err != nil {
		return nil, err
	}
	shape, err := BroadcastShapes(a.shape, b.shape)
	if err != nil {
		return nil, shapeErr(name, err.(*ShapeError).Reason, a.shape, b.shape)
	}
	out, err := like(a, shape)
	if err != nil {
		return nil, err
	}
	switch a.dtype {
	case Float32:
		binaryKernel[float32](a, b, out, f)
	default:
		binaryKernel[float64](a, b, out, f)
	}

	ra, rb, ro := a.Detach(), b.Detach(), out.Detach()
	record(name, out, []*Tensor{a, b}, func(g *Tensor) ([]*Tensor, error) {
		ga, gb, err := grad(g, ra, rb, ro)
		if err != nil {
			return nil, err
		}
		if ga, err = reduceTo(ga, ra.shape); err != nil {
			return nil, err
		}
		if gb, err = reduceTo(gb, rb.shape); err != nil {
			return nil, err
		}
		return []*Tensor{ga, gb}, nil
	})
	return out, nil
}

// Add returns a + b with broadcasting.
func (t *Tensor) Add(other *Tensor) (*Tensor, error) {
	return binaryOp("add", t, other, func(x, y float64) float64 { return x + y },
		func(g, _, _, _ *Tensor) (*Tensor, *Tensor, error) { return g, g, nil })
}

// Sub returns a - b with broadcasting.
func (t *Tensor) Sub(other *Tensor) (*Tensor, error) {
	return binaryOp("sub", t, other, func(x, y float64) float64 { return x - y },
		func(g, _, _, _ *Tensor) (*Tensor, *Tensor, error) {
			gb, err := g.Neg()
			return g, gb, err
		})
}

// Mul returns the elementwise product with broadcasting.
func (t *Tensor) Mul(other *Tensor) (*Tensor, error) {
	return binaryOp("mul", t, other, func(x, y float64) float64 { return x * y },
		func(g, a, b, _ *Tensor) (*Tensor, *Tensor, error) {
			ga, err := g.Mul(b)
			if err != nil {
				return nil, nil, err
			}
			gb, err := g.Mul(a)
			return ga, gb, err
		})
}

// Div returns the elementwise quotient with broadcasting.
func (t *Tensor) Div(other *Tensor) (*Tensor, error) {
	return binaryOp("div", t, other, func(x, y float64) float64 { return x / y },
		func(g, _, b, out *Tensor) (*Tensor, *Tensor, error) {
			ga, err := g.Div(b)
			if err != nil {
				return nil, nil, err
			}
			// d(a/b)/db = -(a/b)/b
			gb, err := ga.Mul(out)
			if err != nil {
				return nil, nil, err
			}
			gb, err = gb.Neg()
			return ga, gb, err
		})
}

// unary applies f elementwise; df receives the input and output values and
// returns the local derivative.
func unary(name string, t *Tensor, f func(x float64) float64, df func(x, y float64) float64) (*Tensor, error) {
	out, err := like(t, t.shape)
	if err != nil {
		return nil, err
	}
	switch t.dtype {
	case Float32:
		unaryKernel[float32](t, out, f)
	default:
		unaryKernel[float64](t, out, f)
	}

	rt, ro := t.Detach(), out.Detach()
	record(name, out, []*Tensor{t}, func(g *Tensor) ([]*Tensor, error) {
		gx, err := like(g, g.shape)
		if err != nil {
			return nil, err
		}
		switch g.dtype {
		case Float32:
			unaryGradKernel[float32](g, rt, ro, gx, df)
		default:
			unaryGradKernel[float64](g, rt, ro, gx, df)
		}
		return []*Tensor{gx}, nil
	})
	return out, nil
}

func unaryKernel[T Float](t, out *Tensor, f func(x float64) float64) {
	td, od := elems[T](t), elems[T](out)
	for i, v := range td {
		od[i] = T(f(float64(v)))
	}
}

func unaryGradKernel[T Float](g, x, y, gx *Tensor, df func(x, y float64) float64) {
	gd, xd, yd, od := elems[T](g), elems[T](x), elems[T](y), elems[T](gx)
	for i := range od {
		od[i] = gd[i] * T(df(float64(xd[i]), float64(yd[i])))
	}
}

// AddScalar returns t + s.
func (t *Tensor) AddScalar(s float64) (*Tensor, error) {
	return unary("add_scalar", t, func(x float64) float64 { return x + s },
		func(_, _ float64) float64 { return 1 })
}

// MulScalar returns t · s.
func (t *Tensor) MulScalar(s float64) (*Tensor, error) {
	return unary("mul_scalar", t, func(x float64) float64 { return x * s },
		func(_, _ float64) float64 { return s })
}

// Neg returns -t.
func (t *Tensor) Neg() (*Tensor, error) {
	return t.MulScalar(-1)
}

// Square returns t².
func (t *Tensor) Square() (*Tensor, error) {
	return unary("square", t, func(x float64) float64 { return x * x },
		func(x, _ float64) float64 { return 2 * x })
}

// Sqrt returns √t.
func (t *Tensor) Sqrt() (*Tensor, error) {
	return unary("sqrt", t, math.Sqrt,
		func(_, y float64) float64 { return 0.5 / y })
}

// Exp returns eᵗ.
func (t *Tensor) Exp() (*Tensor, error) {
	return unary("exp", t, math.Exp,
		func(_, y float64) float64 { return y })
}

// ReLU returns max(t, 0).
func (t *Tensor) ReLU() (*Tensor, error) {
	return unary("relu", t, func(x float64) float64 { return max(x, 0) },
		func(x, _ float64) float64 {
			if x > 0 {
				return 1
			}
			return 0
		})
}

// Tanh returns tanh(t).
func (t *Tensor) Tanh() (*Tensor, error) {
	return unary("tanh", t, math.Tanh,
		func(_, y float64) float64 { return 1 - y*y })
}

// Sigmoid returns 1 / (1 + e⁻ᵗ).
func (t *Tensor) Sigmoid() (*Tensor, error) {
	return unary("sigmoid", t, func(x float64) float64 { return 1 / (1 + math.Exp(-x)) },
		func(_, y float64) float64 { return y * (1 - y) })
}
