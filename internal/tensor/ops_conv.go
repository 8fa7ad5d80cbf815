package tensor

import (
	"fmt"

	"github.com/born-ml/layers/internal/parallel"
)

// ConvParams configures Conv2D and Pool2D. Zero values are read as
// stride 1, padding 0, dilation 1 and one group.
type ConvParams struct {
	Stride   int
	Padding  int
	Dilation int
	Groups   int
}

func (p ConvParams) normalized() ConvParams {
	if p.Stride <= 0 {
		p.Stride = 1
	}
	if p.Padding < 0 {
		p.Padding = 0
	}
	if p.Dilation <= 0 {
		p.Dilation = 1
	}
	if p.Groups <= 0 {
		p.Groups = 1
	}
	return p
}

// outSize computes the spatial output size of a sliding window.
func (p ConvParams) outSize(in, k int) int {
	return (in+2*p.Padding-p.Dilation*(k-1)-1)/p.Stride + 1
}

// geometry describes one conv or pool call. Rank-3 inputs run as batch 1.
type geometry struct {
	batch, c, h, w int
	oc, kh, kw     int
	oh, ow         int
	p              ConvParams
	unbatched      bool
}

func (g geometry) outShape() Shape {
	if g.unbatched {
		return Shape{g.oc, g.oh, g.ow}
	}
	return Shape{g.batch, g.oc, g.oh, g.ow}
}

func imageGeometry(op string, x *Tensor) (geometry, error) {
	switch len(x.shape) {
	case 3:
		return geometry{batch: 1, c: x.shape[0], h: x.shape[1], w: x.shape[2], unbatched: true}, nil
	case 4:
		return geometry{batch: x.shape[0], c: x.shape[1], h: x.shape[2], w: x.shape[3]}, nil
	default:
		return geometry{}, shapeErr(op, "input must be (C, H, W) or (B, C, H, W)", x.shape)
	}
}

// Conv2D convolves t (C, H, W) or (B, C, H, W) with weight
// (O, C/groups, KH, KW), producing (O, OH, OW) or (B, O, OH, OW).
func (t *Tensor) Conv2D(weight *Tensor, p ConvParams) (*Tensor, error) {
	if err := checkPair("conv2d", t, weight); err != nil {
		return nil, err
	}
	geo, err := imageGeometry("conv2d", t)
	if err != nil {
		return nil, err
	}
	p = p.normalized()
	if len(weight.shape) != 4 {
		return nil, shapeErr("conv2d", "weight must be (O, C/groups, KH, KW)", t.shape, weight.shape)
	}
	geo.p = p
	geo.oc, geo.kh, geo.kw = weight.shape[0], weight.shape[2], weight.shape[3]
	if geo.c%p.Groups != 0 || geo.oc%p.Groups != 0 || weight.shape[1]*p.Groups != geo.c {
		return nil, shapeErr("conv2d", fmt.Sprintf("channels do not match %d groups", p.Groups), t.shape, weight.shape)
	}
	geo.oh, geo.ow = p.outSize(geo.h, geo.kh), p.outSize(geo.w, geo.kw)
	if geo.oh <= 0 || geo.ow <= 0 {
		return nil, shapeErr("conv2d", "kernel larger than padded input", t.shape, weight.shape)
	}

	out, err := like(t, geo.outShape())
	if err != nil {
		return nil, err
	}
	switch t.dtype {
	case Float32:
		convForward[float32](t, weight, out, geo)
	default:
		convForward[float64](t, weight, out, geo)
	}

	rx, rw := t.Detach(), weight.Detach()
	record("conv2d", out, []*Tensor{t, weight}, func(g *Tensor) ([]*Tensor, error) {
		gx, err := like(rx, rx.shape)
		if err != nil {
			return nil, err
		}
		gw, err := like(rw, rw.shape)
		if err != nil {
			return nil, err
		}
		switch g.dtype {
		case Float32:
			convBackward[float32](rx, rw, g, gx, gw, geo)
		default:
			convBackward[float64](rx, rw, g, gx, gw, geo)
		}
		return []*Tensor{gx, gw}, nil
	})
	return out, nil
}

func convForward[T Float](x, w, out *Tensor, geo geometry) {
	xd, wd, od := elems[T](x), elems[T](w), elems[T](out)
	cg, og := geo.c/geo.p.Groups, geo.oc/geo.p.Groups
	rows, hw := cg*geo.kh*geo.kw, geo.oh*geo.ow

	parallel.For(x.dev.Parallel(), geo.batch, func(b int) {
		cols := make([]T, rows*hw)
		for grp := 0; grp < geo.p.Groups; grp++ {
			im2col(xd[(b*geo.c+grp*cg)*geo.h*geo.w:], cols, cg, geo)
			wg := wd[grp*og*rows : (grp+1)*og*rows]
			og0 := (b*geo.oc + grp*og) * hw
			gemm(x.dev, false, false, og, hw, rows, wg, cols, 0, od[og0:og0+og*hw])
		}
	})
}

func convBackward[T Float](x, w, g, gx, gw *Tensor, geo geometry) {
	xd, wd, gd := elems[T](x), elems[T](w), elems[T](g)
	gxd, gwd := elems[T](gx), elems[T](gw)
	cg, og := geo.c/geo.p.Groups, geo.oc/geo.p.Groups
	rows, hw := cg*geo.kh*geo.kw, geo.oh*geo.ow

	cols := make([]T, rows*hw)
	gcols := make([]T, rows*hw)
	for b := 0; b < geo.batch; b++ {
		for grp := 0; grp < geo.p.Groups; grp++ {
			x0 := (b*geo.c + grp*cg) * geo.h * geo.w
			im2col(xd[x0:], cols, cg, geo)
			wg := wd[grp*og*rows : (grp+1)*og*rows]
			gwg := gwd[grp*og*rows : (grp+1)*og*rows]
			g0 := (b*geo.oc + grp*og) * hw
			gg := gd[g0 : g0+og*hw]

			// gw += g·colsᵀ, gcols = wᵀ·g
			gemm(x.dev, false, true, og, rows, hw, gg, cols, 1, gwg)
			gemm(x.dev, true, false, rows, hw, og, wg, gg, 0, gcols)
			col2im(gcols, gxd[x0:], cg, geo)
		}
	}
}

// im2col unfolds c channels of one image into a (c·KH·KW, OH·OW) matrix.
func im2col[T Float](x, cols []T, c int, geo geometry) {
	p := geo.p
	i := 0
	for ch := 0; ch < c; ch++ {
		for ki := 0; ki < geo.kh; ki++ {
			for kj := 0; kj < geo.kw; kj++ {
				for oy := 0; oy < geo.oh; oy++ {
					iy := oy*p.Stride - p.Padding + ki*p.Dilation
					for ox := 0; ox < geo.ow; ox++ {
						ix := ox*p.Stride - p.Padding + kj*p.Dilation
						if iy >= 0 && iy < geo.h && ix >= 0 && ix < geo.w {
							cols[i] = x[(ch*geo.h+iy)*geo.w+ix]
						} else {
							cols[i] = 0
						}
						i++
					}
				}
			}
		}
	}
}

// col2im folds a column matrix back, accumulating into x.
func col2im[T Float](cols, x []T, c int, geo geometry) {
	p := geo.p
	i := 0
	for ch := 0; ch < c; ch++ {
		for ki := 0; ki < geo.kh; ki++ {
			for kj := 0; kj < geo.kw; kj++ {
				for oy := 0; oy < geo.oh; oy++ {
					iy := oy*p.Stride - p.Padding + ki*p.Dilation
					for ox := 0; ox < geo.ow; ox++ {
						ix := ox*p.Stride - p.Padding + kj*p.Dilation
						if iy >= 0 && iy < geo.h && ix >= 0 && ix < geo.w {
							x[(ch*geo.h+iy)*geo.w+ix] += cols[i]
						}
						i++
					}
				}
			}
		}
	}
}

// PoolKind selects the window reduction of Pool2D.
type PoolKind int

// Window reductions.
const (
	PoolMax PoolKind = iota
	PoolAvg
	PoolMin
)

// String returns the reduction name.
func (k PoolKind) String() string {
	switch k {
	case PoolMax:
		return "max"
	case PoolAvg:
		return "avg"
	case PoolMin:
		return "min"
	default:
		return "unknown"
	}
}

// Pool2D reduces square kernel×kernel windows of t (C, H, W) or
// (B, C, H, W). Groups in p is ignored. Average pooling divides by the full
// window size; padded positions never win a max or min.
func (t *Tensor) Pool2D(kind PoolKind, kernel int, p ConvParams) (*Tensor, error) {
	geo, err := imageGeometry("pool2d", t)
	if err != nil {
		return nil, err
	}
	if kernel <= 0 {
		return nil, shapeErr("pool2d", fmt.Sprintf("kernel %d", kernel), t.shape)
	}
	p = p.normalized()
	geo.p = p
	geo.oc, geo.kh, geo.kw = geo.c, kernel, kernel
	geo.oh, geo.ow = p.outSize(geo.h, kernel), p.outSize(geo.w, kernel)
	if geo.oh <= 0 || geo.ow <= 0 {
		return nil, shapeErr("pool2d", "kernel larger than padded input", t.shape)
	}

	out, err := like(t, geo.outShape())
	if err != nil {
		return nil, err
	}
	// Flat input index of the element each max/min output took.
	var picks []int
	if kind != PoolAvg {
		picks = make([]int, out.NumElements())
	}
	switch t.dtype {
	case Float32:
		poolForward[float32](t, out, picks, kind, geo)
	default:
		poolForward[float64](t, out, picks, kind, geo)
	}

	rx := t.Detach()
	record("pool2d_"+kind.String(), out, []*Tensor{t}, func(g *Tensor) ([]*Tensor, error) {
		gx, err := like(rx, rx.shape)
		if err != nil {
			return nil, err
		}
		switch g.dtype {
		case Float32:
			poolBackward[float32](g, gx, picks, kind, geo)
		default:
			poolBackward[float64](g, gx, picks, kind, geo)
		}
		return []*Tensor{gx}, nil
	})
	return out, nil
}

// window calls fn with the flat input offset of every in-bounds element of
// the window feeding output (oy, ox) within one plane.
func (geo geometry) window(oy, ox int, fn func(idx int)) {
	p := geo.p
	for ki := 0; ki < geo.kh; ki++ {
		iy := oy*p.Stride - p.Padding + ki*p.Dilation
		if iy < 0 || iy >= geo.h {
			continue
		}
		for kj := 0; kj < geo.kw; kj++ {
			ix := ox*p.Stride - p.Padding + kj*p.Dilation
			if ix < 0 || ix >= geo.w {
				continue
			}
			fn(iy*geo.w + ix)
		}
	}
}

func poolForward[T Float](x, out *Tensor, picks []int, kind PoolKind, geo geometry) {
	xd, od := elems[T](x), elems[T](out)
	area := T(geo.kh * geo.kw)
	planes := geo.batch * geo.c
	parallel.For(x.dev.Parallel(), planes, func(pl int) {
		in0 := pl * geo.h * geo.w
		for oy := 0; oy < geo.oh; oy++ {
			for ox := 0; ox < geo.ow; ox++ {
				o := (pl*geo.oh+oy)*geo.ow + ox
				var acc T
				pick := -1
				geo.window(oy, ox, func(idx int) {
					v := xd[in0+idx]
					switch {
					case kind == PoolAvg:
						acc += v
					case pick < 0,
						kind == PoolMax && v > acc,
						kind == PoolMin && v < acc:
						acc, pick = v, in0+idx
					}
				})
				if kind == PoolAvg {
					od[o] = acc / area
				} else {
					od[o] = acc
					picks[o] = pick
				}
			}
		}
	})
}

func poolBackward[T Float](g, gx *Tensor, picks []int, kind PoolKind, geo geometry) {
	gd, gxd := elems[T](g), elems[T](gx)
	if kind != PoolAvg {
		for o, idx := range picks {
			if idx >= 0 {
				gxd[idx] += gd[o]
			}
		}
		return
	}
	area := T(geo.kh * geo.kw)
	for pl := 0; pl < geo.batch*geo.c; pl++ {
		in0 := pl * geo.h * geo.w
		for oy := 0; oy < geo.oh; oy++ {
			for ox := 0; ox < geo.ow; ox++ {
				share := gd[(pl*geo.oh+oy)*geo.ow+ox] / area
				geo.window(oy, ox, func(idx int) {
					gxd[in0+idx] += share
				})
			}
		}
	}
}
