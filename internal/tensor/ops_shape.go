package tensor

import (
	"fmt"
	"math"
	"slices"
)

// reduceTo sums g down to shape, which must broadcast to g's shape.
// It returns g itself when the shapes already match.
func reduceTo(g *Tensor, shape Shape) (*Tensor, error) {
	if g.shape.Equal(shape) {
		return g, nil
	}
	if len(shape) > len(g.shape) {
		return nil, shapeErr("reduce", "target has higher rank", g.shape, shape)
	}
	out, err := like(g, shape)
	if err != nil {
		return nil, err
	}
	s := broadcastStrides(shape, g.shape)
	switch g.dtype {
	case Float32:
		reduceKernel[float32](g, out, s)
	default:
		reduceKernel[float64](g, out, s)
	}
	return out, nil
}

func reduceKernel[T Float](g, out *Tensor, s []int) {
	gd, od := elems[T](g), elems[T](out)
	walk2(g.shape, s, s, func(i, io, _ int) {
		od[io] += gd[i]
	})
}

// Reshape returns a copy of t with a new shape holding the same number of
// elements. One dimension may be -1 and is inferred.
func (t *Tensor) Reshape(shape ...int) (*Tensor, error) {
	s := Shape(shape).Clone()
	infer := -1
	known := 1
	for i, d := range s {
		if d == -1 {
			if infer >= 0 {
				return nil, shapeErr("reshape", "more than one inferred dimension", t.shape, s)
			}
			infer = i
			continue
		}
		known *= d
	}
	if infer >= 0 {
		if known == 0 || t.NumElements()%known != 0 {
			return nil, shapeErr("reshape", "cannot infer dimension", t.shape, s)
		}
		s[infer] = t.NumElements() / known
	}
	if err := s.Validate(); err != nil {
		return nil, shapeErr("reshape", err.Error(), t.shape, s)
	}
	if s.NumElements() != t.NumElements() {
		return nil, shapeErr("reshape", "element count differs", t.shape, s)
	}

	out, err := like(t, s)
	if err != nil {
		return nil, err
	}
	copyBuffer(out, t)

	from := t.shape.Clone()
	record("reshape", out, []*Tensor{t}, func(g *Tensor) ([]*Tensor, error) {
		gx, err := g.Reshape(from...)
		return []*Tensor{gx}, err
	})
	return out, nil
}

func copyBuffer(dst, src *Tensor) {
	switch src.dtype {
	case Float32:
		copy(dst.buf.F32, src.buf.F32)
	default:
		copy(dst.buf.F64, src.buf.F64)
	}
}

// Permute reorders the dimensions of t; axes[i] names the input dimension
// that becomes output dimension i.
func (t *Tensor) Permute(axes ...int) (*Tensor, error) {
	rank := len(t.shape)
	if len(axes) != rank {
		return nil, shapeErr("permute", fmt.Sprintf("axes %v for rank %d", axes, rank), t.shape)
	}
	seen := make([]bool, rank)
	perm := make([]int, rank)
	for i, a := range axes {
		ax, ok := normalizeAxis(a, rank)
		if !ok || seen[ax] {
			return nil, shapeErr("permute", fmt.Sprintf("invalid axes %v", axes), t.shape)
		}
		seen[ax] = true
		perm[i] = ax
	}

	shape := make(Shape, rank)
	inStrides := t.shape.Strides()
	strides := make([]int, rank)
	for i, ax := range perm {
		shape[i] = t.shape[ax]
		strides[i] = inStrides[ax]
	}
	out, err := like(t, shape)
	if err != nil {
		return nil, err
	}
	switch t.dtype {
	case Float32:
		gatherKernel[float32](t, out, strides)
	default:
		gatherKernel[float64](t, out, strides)
	}

	inverse := make([]int, rank)
	for i, ax := range perm {
		inverse[ax] = i
	}
	record("permute", out, []*Tensor{t}, func(g *Tensor) ([]*Tensor, error) {
		gx, err := g.Permute(inverse...)
		return []*Tensor{gx}, err
	})
	return out, nil
}

func gatherKernel[T Float](t, out *Tensor, strides []int) {
	td, od := elems[T](t), elems[T](out)
	walk2(out.shape, strides, strides, func(i, it, _ int) {
		od[i] = td[it]
	})
}

// Transpose swaps the last two dimensions.
func (t *Tensor) Transpose() (*Tensor, error) {
	rank := len(t.shape)
	if rank < 2 {
		return nil, shapeErr("transpose", "rank below 2", t.shape)
	}
	axes := make([]int, rank)
	for i := range axes {
		axes[i] = i
	}
	axes[rank-2], axes[rank-1] = axes[rank-1], axes[rank-2]
	return t.Permute(axes...)
}

// BroadcastTo expands t to shape following broadcasting rules.
func (t *Tensor) BroadcastTo(shape ...int) (*Tensor, error) {
	s := Shape(shape).Clone()
	got, err := BroadcastShapes(t.shape, s)
	if err != nil || !got.Equal(s) {
		return nil, shapeErr("broadcast_to", "", t.shape, s)
	}
	out, err := like(t, s)
	if err != nil {
		return nil, err
	}
	strides := broadcastStrides(t.shape, s)
	switch t.dtype {
	case Float32:
		gatherKernel[float32](t, out, strides)
	default:
		gatherKernel[float64](t, out, strides)
	}

	from := t.shape.Clone()
	record("broadcast_to", out, []*Tensor{t}, func(g *Tensor) ([]*Tensor, error) {
		gx, err := reduceTo(g, from)
		return []*Tensor{gx}, err
	})
	return out, nil
}

// reduceAxes validates axes and returns the keep-dims shape with the
// reduced dimensions set to 1, plus the squeezed shape.
func reduceAxes(op string, s Shape, axes []int) (keep, squeezed Shape, count int, err error) {
	keep = s.Clone()
	count = 1
	reduced := make([]bool, len(s))
	for _, a := range axes {
		ax, ok := normalizeAxis(a, len(s))
		if !ok || reduced[ax] {
			return nil, nil, 0, shapeErr(op, fmt.Sprintf("invalid axes %v", axes), s)
		}
		reduced[ax] = true
		count *= s[ax]
		keep[ax] = 1
	}
	for i, d := range s {
		if !reduced[i] {
			squeezed = append(squeezed, d)
		}
	}
	if squeezed == nil {
		squeezed = Shape{}
	}
	return keep, squeezed, count, nil
}

func (t *Tensor) sum(op string, keepDims bool, axes []int) (*Tensor, error) {
	if len(axes) == 0 {
		axes = make([]int, len(t.shape))
		for i := range axes {
			axes[i] = i
		}
	}
	keep, squeezed, _, err := reduceAxes(op, t.shape, axes)
	if err != nil {
		return nil, err
	}
	var out *Tensor
	if keep.Equal(t.shape) {
		if out, err = like(t, keep); err != nil {
			return nil, err
		}
		copyBuffer(out, t)
	} else if out, err = reduceTo(t.Detach(), keep); err != nil {
		return nil, err
	}
	if !keepDims {
		out.shape = squeezed
	}

	from := t.shape.Clone()
	record(op, out, []*Tensor{t}, func(g *Tensor) ([]*Tensor, error) {
		g = g.Clone()
		g.shape = keep.Clone()
		gx, err := g.BroadcastTo(from...)
		return []*Tensor{gx}, err
	})
	return out, nil
}

// SumAxes sums over axes, removing them. No axes sums everything.
func (t *Tensor) SumAxes(axes ...int) (*Tensor, error) {
	return t.sum("sum", false, axes)
}

// SumKeepDims sums over axes, keeping them with size 1.
func (t *Tensor) SumKeepDims(axes ...int) (*Tensor, error) {
	return t.sum("sum", true, axes)
}

// MeanAxes averages over axes, removing them. No axes averages everything.
func (t *Tensor) MeanAxes(axes ...int) (*Tensor, error) {
	return t.mean(false, axes)
}

// MeanKeepDims averages over axes, keeping them with size 1.
func (t *Tensor) MeanKeepDims(axes ...int) (*Tensor, error) {
	return t.mean(true, axes)
}

func (t *Tensor) mean(keepDims bool, axes []int) (*Tensor, error) {
	count := t.NumElements()
	if len(axes) > 0 {
		var err error
		if _, _, count, err = reduceAxes("mean", t.shape, axes); err != nil {
			return nil, err
		}
	}
	s, err := t.sum("sum", keepDims, axes)
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return s, nil
	}
	return s.MulScalar(1 / float64(count))
}

// Softmax normalizes the last axis into a probability distribution.
func (t *Tensor) Softmax() (*Tensor, error) {
	if len(t.shape) == 0 {
		return nil, shapeErr("softmax", "scalar input", t.shape)
	}
	out, err := like(t, t.shape)
	if err != nil {
		return nil, err
	}
	n := t.shape[len(t.shape)-1]
	switch t.dtype {
	case Float32:
		softmaxKernel[float32](elems[float32](t), elems[float32](out), n)
	default:
		softmaxKernel[float64](elems[float64](t), elems[float64](out), n)
	}

	ro := out.Detach()
	record("softmax", out, []*Tensor{t}, func(g *Tensor) ([]*Tensor, error) {
		gx, err := like(g, g.shape)
		if err != nil {
			return nil, err
		}
		switch g.dtype {
		case Float32:
			softmaxGradKernel(elems[float32](g), elems[float32](ro), elems[float32](gx), n)
		default:
			softmaxGradKernel(elems[float64](g), elems[float64](ro), elems[float64](gx), n)
		}
		return []*Tensor{gx}, nil
	})
	return out, nil
}

func softmaxKernel[T Float](x, y []T, n int) {
	if n == 0 {
		return
	}
	for row := 0; row < len(x); row += n {
		xs, ys := x[row:row+n], y[row:row+n]
		m := slices.Max(xs)
		var sum float64
		for i, v := range xs {
			e := math.Exp(float64(v - m))
			ys[i] = T(e)
			sum += e
		}
		for i := range ys {
			ys[i] = T(float64(ys[i]) / sum)
		}
	}
}

func softmaxGradKernel[T Float](g, y, gx []T, n int) {
	if n == 0 {
		return
	}
	for row := 0; row < len(g); row += n {
		var dot T
		for i := row; i < row+n; i++ {
			dot += g[i] * y[i]
		}
		for i := row; i < row+n; i++ {
			gx[i] = y[i] * (g[i] - dot)
		}
	}
}
