package tensor

// MatMul returns the matrix product of t and other.
//
// Supported operand ranks:
//
//	(k)        × (k, n)       → (n)
//	(m, k)     × (k, n)       → (m, n)
//	(..., m, k) × (k, n)      → (..., m, n)     leading dims flattened
//	(..., m, k) × (..., k, n) → (..., m, n)     batched, leading dims equal
func (t *Tensor) MatMul(other *Tensor) (*Tensor, error) {
	if err := checkPair("matmul", t, other); err != nil {
		return nil, err
	}
	a, b := t.shape, other.shape
	switch {
	case len(a) == 1 && len(b) == 2:
		if a[0] != b[0] {
			return nil, shapeErr("matmul", "inner dimensions differ", a, b)
		}
		return matmulFlat(t, other, 1, Shape{b[1]})
	case len(a) >= 2 && len(b) == 2:
		if a[len(a)-1] != b[0] {
			return nil, shapeErr("matmul", "inner dimensions differ", a, b)
		}
		rows := Shape(a[:len(a)-1]).NumElements()
		out := append(Shape(a[:len(a)-1]).Clone(), b[1])
		return matmulFlat(t, other, rows, out)
	case len(a) >= 3 && len(a) == len(b):
		lead := len(a) - 2
		if !Shape(a[:lead]).Equal(Shape(b[:lead])) {
			return nil, shapeErr("matmul", "batch dimensions differ", a, b)
		}
		if a[len(a)-1] != b[len(b)-2] {
			return nil, shapeErr("matmul", "inner dimensions differ", a, b)
		}
		return matmulBatched(t, other)
	default:
		return nil, shapeErr("matmul", "unsupported ranks", a, b)
	}
}

// matmulFlat multiplies t viewed as (rows, k) by the (k, n) matrix w.
func matmulFlat(t, w *Tensor, rows int, outShape Shape) (*Tensor, error) {
	k, n := w.shape[0], w.shape[1]
	out, err := like(t, outShape)
	if err != nil {
		return nil, err
	}
	switch t.dtype {
	case Float32:
		gemm(t.dev, false, false, rows, n, k, elems[float32](t), elems[float32](w), 0, elems[float32](out))
	default:
		gemm(t.dev, false, false, rows, n, k, elems[float64](t), elems[float64](w), 0, elems[float64](out))
	}

	rt, rw := t.Detach(), w.Detach()
	record("matmul", out, []*Tensor{t, w}, func(g *Tensor) ([]*Tensor, error) {
		ga, err := like(rt, rt.shape)
		if err != nil {
			return nil, err
		}
		gw, err := like(rw, rw.shape)
		if err != nil {
			return nil, err
		}
		switch g.dtype {
		case Float32:
			matmulFlatGrad[float32](g, rt, rw, ga, gw, rows, n, k)
		default:
			matmulFlatGrad[float64](g, rt, rw, ga, gw, rows, n, k)
		}
		return []*Tensor{ga, gw}, nil
	})
	return out, nil
}

func matmulFlatGrad[T Float](g, a, w, ga, gw *Tensor, rows, n, k int) {
	gd, ad, wd := elems[T](g), elems[T](a), elems[T](w)
	// ga = g·wᵀ, gw = aᵀ·g
	gemm(g.dev, false, true, rows, k, n, gd, wd, 0, elems[T](ga))
	gemm(g.dev, true, false, k, n, rows, ad, gd, 0, elems[T](gw))
}

func matmulBatched(t, other *Tensor) (*Tensor, error) {
	r := len(t.shape)
	m, k, n := t.shape[r-2], t.shape[r-1], other.shape[r-1]
	batch := Shape(t.shape[:r-2]).NumElements()
	outShape := append(Shape(t.shape[:r-2]).Clone(), m, n)
	out, err := like(t, outShape)
	if err != nil {
		return nil, err
	}
	switch t.dtype {
	case Float32:
		batchedGemm(t.dev, false, false, batch, m, n, k, elems[float32](t), elems[float32](other), elems[float32](out))
	default:
		batchedGemm(t.dev, false, false, batch, m, n, k, elems[float64](t), elems[float64](other), elems[float64](out))
	}

	ra, rb := t.Detach(), other.Detach()
	record("batched_matmul", out, []*Tensor{t, other}, func(g *Tensor) ([]*Tensor, error) {
		ga, err := like(ra, ra.shape)
		if err != nil {
			return nil, err
		}
		gb, err := like(rb, rb.shape)
		if err != nil {
			return nil, err
		}
		switch g.dtype {
		case Float32:
			batchedGrad[float32](g, ra, rb, ga, gb, batch, m, n, k)
		default:
			batchedGrad[float64](g, ra, rb, ga, gb, batch, m, n, k)
		}
		return []*Tensor{ga, gb}, nil
	})
	return out, nil
}

// batchedGemm computes c[i] = op(a[i])·op(b[i]) for each batch entry, where
// op(a) is m×k and op(b) is k×n.
func batchedGemm[T Float](dev Device, transA, transB bool, batch, m, n, k int, a, b, c []T) {
	for i := 0; i < batch; i++ {
		gemm(dev, transA, transB, m, n, k,
			a[i*m*k:(i+1)*m*k], b[i*k*n:(i+1)*k*n], 0, c[i*m*n:(i+1)*m*n])
	}
}

func batchedGrad[T Float](g, a, b, ga, gb *Tensor, batch, m, n, k int) {
	gd, ad, bd := elems[T](g), elems[T](a), elems[T](b)
	// ga[i] = g[i]·b[i]ᵀ (m×k), gb[i] = a[i]ᵀ·g[i] (k×n)
	batchedGemm(g.dev, false, true, batch, m, k, n, gd, bd, elems[T](ga))
	batchedGemm(g.dev, true, false, batch, k, n, m, ad, gd, elems[T](gb))
}
