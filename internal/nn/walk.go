package nn

import (
	"reflect"
	"strconv"

	"github.com/born-ml/layers/internal/tensor"
)

// visitor holds the per-pass callbacks of a depth-first module walk.
// Fields are visited in declaration order, list elements by index.
type visitor struct {
	// override lets a value handle itself; it reports whether it did.
	override func(v reflect.Value, path string) (bool, error)
	tensor   func(path string, t *tensor.Tensor, spec fieldSpec) error
	scalar   func(path string, v reflect.Value, spec fieldSpec) error
}

func (vis *visitor) walk(v reflect.Value, path string) error {
	if !v.IsValid() {
		return nil
	}
	if vis.override != nil {
		if handled, err := vis.override(v, path); handled || err != nil {
			return err
		}
	}
	return vis.walkInner(v, path)
}

// walkInner descends into v without consulting the override.
func (vis *visitor) walkInner(v reflect.Value, path string) error {
	switch v.Kind() {
	case reflect.Pointer, reflect.Interface:
		if v.IsNil() || v.Type() == tensorType {
			return nil
		}
		return vis.walkInner(v.Elem(), path)
	case reflect.Struct:
		return vis.walkStruct(v, path)
	case reflect.Slice, reflect.Array:
		for i := 0; i < v.Len(); i++ {
			if err := vis.walk(v.Index(i), joinPath(path, strconv.Itoa(i))); err != nil {
				return err
			}
		}
	}
	return nil
}

func (vis *visitor) walkStruct(v reflect.Value, path string) error {
	for _, spec := range fieldsOf(v.Type()) {
		fv := v.Field(spec.index)
		p := joinPath(path, spec.name)
		switch spec.role {
		case RoleParam, RoleBuffer:
			if vis.tensor == nil {
				continue
			}
			t, _ := fv.Interface().(*tensor.Tensor)
			if t == nil {
				return &StructureError{Type: v.Type(), Field: spec.goName, Reason: "tensor is not built"}
			}
			if err := vis.tensor(p, t, spec); err != nil {
				return err
			}
		case RoleModule:
			if err := vis.walk(fv, p); err != nil {
				return err
			}
		case RoleScalar:
			if vis.scalar == nil {
				continue
			}
			if err := vis.scalar(p, fv, spec); err != nil {
				return err
			}
		}
	}
	return nil
}

// implementer returns v as I, trying the address of addressable values so
// pointer-receiver methods are found.
func implementer[I any](v reflect.Value) (I, bool) {
	var zero I
	switch v.Kind() {
	case reflect.Pointer, reflect.Interface:
		if v.IsNil() {
			return zero, false
		}
	}
	if v.CanInterface() {
		if i, ok := v.Interface().(I); ok {
			return i, true
		}
	}
	if v.Kind() == reflect.Struct && v.CanAddr() {
		if i, ok := v.Addr().Interface().(I); ok {
			return i, true
		}
	}
	return zero, false
}

// TryResetParams overwrites every parameter and buffer of m with its
// initialization policy, recursing into nested modules. Types implementing
// ParamResetter reset themselves.
func TryResetParams(m any) error {
	vis := resetVisitor()
	return vis.walk(reflect.ValueOf(m), "")
}

// ResetFields resets the tagged fields of m without consulting m's own
// ParamResetter. It is meant for ParamResetter implementations that only
// customize part of their fields.
func ResetFields(m any) error {
	vis := resetVisitor()
	return vis.walkInner(reflect.ValueOf(m), "")
}

func resetVisitor() *visitor {
	return &visitor{
		override: func(v reflect.Value, _ string) (bool, error) {
			if r, ok := implementer[ParamResetter](v); ok {
				return true, r.TryResetParams()
			}
			return false, nil
		},
		tensor: func(_ string, t *tensor.Tensor, spec fieldSpec) error {
			switch spec.init {
			case InitOnes:
				t.Fill(1)
			default:
				t.Fill(0)
			}
			return nil
		},
	}
}

// ResetParams is TryResetParams that panics on error.
func ResetParams(m any) {
	if err := TryResetParams(m); err != nil {
		panic(err)
	}
}

// UpdateContext carries one update pass: the optimizer, the gradient table
// and the parameters found without a gradient so far.
type UpdateContext struct {
	Optimizer Optimizer
	Grads     *tensor.Gradients
	Missing   []MissingParam

	visited map[tensor.UniqueID]bool
}

// UpdateParam applies the optimizer to param or records it as missing.
// A parameter reached twice is updated once.
func (ctx *UpdateContext) UpdateParam(path string, param *tensor.Tensor) error {
	if ctx.visited == nil {
		ctx.visited = make(map[tensor.UniqueID]bool)
	}
	if ctx.visited[param.ID()] {
		return nil
	}
	ctx.visited[param.ID()] = true

	grad, ok := ctx.Grads.Get(param)
	if !ok {
		ctx.Missing = append(ctx.Missing, MissingParam{ID: param.ID(), Path: path})
		return nil
	}
	return ctx.Optimizer.UpdateTensor(param, grad)
}

// TryUpdate applies opt to every parameter of m that has a gradient in
// grads. Device errors from the optimizer stop the pass and are returned
// unchanged. Parameters without a gradient are collected and reported
// together as an *UnusedParamsError once the whole tree was visited.
func TryUpdate(opt Optimizer, m any, grads *tensor.Gradients) error {
	ctx := &UpdateContext{Optimizer: opt, Grads: grads}
	vis := &visitor{
		override: func(v reflect.Value, path string) (bool, error) {
			if u, ok := implementer[ParamUpdater](v); ok {
				return true, u.TryUpdateParams(ctx, path)
			}
			return false, nil
		},
		tensor: func(path string, t *tensor.Tensor, spec fieldSpec) error {
			if spec.role != RoleParam {
				return nil
			}
			return ctx.UpdateParam(path, t)
		},
	}
	if err := vis.walk(reflect.ValueOf(m), ""); err != nil {
		return err
	}
	if len(ctx.Missing) > 0 {
		return &UnusedParamsError{Missing: ctx.Missing}
	}
	return nil
}

// Update is TryUpdate that panics on error.
func Update(opt Optimizer, m any, grads *tensor.Gradients) {
	if err := TryUpdate(opt, m, grads); err != nil {
		panic(err)
	}
}

// TryZeroGrads makes sure every parameter of m has a zero-filled gradient
// in grads. Calling it twice is the same as calling it once.
func TryZeroGrads(m any, grads *tensor.Gradients) error {
	return gradPass(m, grads, true)
}

// ZeroGrads is TryZeroGrads that panics on error.
func ZeroGrads(m any, grads *tensor.Gradients) {
	if err := TryZeroGrads(m, grads); err != nil {
		panic(err)
	}
}

// TryAllocGrads returns a gradient table with a zeroed entry for every
// parameter of m.
func TryAllocGrads(m any) (*tensor.Gradients, error) {
	grads := tensor.NewGradients()
	if err := gradPass(m, grads, false); err != nil {
		return nil, err
	}
	return grads, nil
}

// AllocGrads is TryAllocGrads that panics on error.
func AllocGrads(m any) *tensor.Gradients {
	return Must(TryAllocGrads(m))
}

func gradPass(m any, grads *tensor.Gradients, zero bool) error {
	vis := &visitor{
		override: func(v reflect.Value, _ string) (bool, error) {
			if z, ok := implementer[GradZeroer](v); ok {
				return true, z.TryZeroGrads(grads)
			}
			return false, nil
		},
		tensor: func(_ string, t *tensor.Tensor, spec fieldSpec) error {
			if spec.role != RoleParam {
				return nil
			}
			g, err := grads.GetOrAlloc(t)
			if err != nil {
				return err
			}
			if zero {
				g.Fill(0)
			}
			return nil
		},
	}
	return vis.walk(reflect.ValueOf(m), "")
}

// NamedParam is a parameter and its slash-joined path from the root.
type NamedParam struct {
	Path   string
	Tensor *tensor.Tensor
}

// Params lists the trainable parameters of m in traversal order.
func Params(m any) ([]NamedParam, error) {
	var params []NamedParam
	vis := &visitor{
		tensor: func(path string, t *tensor.Tensor, spec fieldSpec) error {
			if spec.role == RoleParam {
				params = append(params, NamedParam{Path: path, Tensor: t})
			}
			return nil
		},
	}
	if err := vis.walk(reflect.ValueOf(m), ""); err != nil {
		return nil, err
	}
	return params, nil
}

// NumParams returns the number of trainable scalars in m.
func NumParams(m any) int {
	params, err := Params(m)
	if err != nil {
		panic(err)
	}
	n := 0
	for _, p := range params {
		n += p.Tensor.NumElements()
	}
	return n
}
