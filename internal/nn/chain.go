package nn

import (
	"fmt"
	"reflect"
	"sync"
)

// chainStep is one module field of a resolved forward chain.
type chainStep struct {
	field  int
	name   string
	list   bool   // fold every element, input type == output type
	method string // TryForward or TryForwardMut
	ptr    bool   // method has a pointer receiver on a value field
}

type chainPlan struct {
	steps []chainStep
	out   reflect.Type
}

type chainKey struct {
	agg, in reflect.Type
	mut     bool
}

var chainCache sync.Map // chainKey -> *chainPlan or error

// ResolveChain folds input type in through the module fields of aggregate
// type agg in declaration order and returns the output type. Every field's
// input must accept the previous field's output; list fields must map their
// input type to itself. With mut set, fields prefer TryForwardMut.
//
// Results are cached, so a chain is resolved once per aggregate and input
// type. ForwardFields resolves lazily; call ResolveChain to check a chain
// when the aggregate is built.
func ResolveChain(agg, in reflect.Type, mut bool) (reflect.Type, error) {
	plan, err := resolve(agg, in, mut)
	if err != nil {
		return nil, err
	}
	return plan.out, nil
}

func resolve(agg, in reflect.Type, mut bool) (*chainPlan, error) {
	key := chainKey{agg: agg, in: in, mut: mut}
	if cached, ok := chainCache.Load(key); ok {
		if err, isErr := cached.(error); isErr {
			return nil, err
		}
		return cached.(*chainPlan), nil
	}

	plan, err := buildPlan(agg, in, mut)
	if err != nil {
		chainCache.Store(key, err)
		return nil, err
	}
	chainCache.Store(key, plan)
	return plan, nil
}

func buildPlan(agg, in reflect.Type, mut bool) (*chainPlan, error) {
	st := agg
	if st.Kind() == reflect.Pointer {
		st = st.Elem()
	}
	if st.Kind() != reflect.Struct {
		return nil, &ChainError{Aggregate: agg, Input: in, Reason: "aggregate is not a struct"}
	}

	plan := &chainPlan{}
	cur := in
	for _, spec := range fieldsOf(st) {
		if spec.role != RoleModule {
			continue
		}
		ft := st.Field(spec.index).Type
		step := chainStep{field: spec.index, name: spec.goName}

		if ft.Kind() == reflect.Slice || ft.Kind() == reflect.Array {
			method, ptr, out, err := forwardMethod(ft.Elem(), cur, mut)
			if err != nil {
				return nil, &ChainError{Aggregate: agg, Field: spec.goName, Input: cur, Reason: err.Error()}
			}
			if !out.AssignableTo(cur) {
				return nil, &ChainError{Aggregate: agg, Field: spec.goName, Input: cur,
					Reason: fmt.Sprintf("list element returns %v, must return its input type", out)}
			}
			step.list, step.method, step.ptr = true, method, ptr
			plan.steps = append(plan.steps, step)
			continue
		}

		method, ptr, out, err := forwardMethod(ft, cur, mut)
		if err != nil {
			return nil, &ChainError{Aggregate: agg, Field: spec.goName, Input: cur, Reason: err.Error()}
		}
		step.method, step.ptr = method, ptr
		plan.steps = append(plan.steps, step)
		cur = out
	}
	plan.out = cur
	return plan, nil
}

// forwardMethod finds the forward method of t accepting in.
func forwardMethod(t, in reflect.Type, mut bool) (name string, ptr bool, out reflect.Type, err error) {
	names := []string{"TryForward"}
	if mut {
		names = []string{"TryForwardMut", "TryForward"}
	}

	type candidate struct {
		t   reflect.Type
		ptr bool
	}
	cands := []candidate{{t, false}}
	if t.Kind() != reflect.Pointer && t.Kind() != reflect.Interface {
		cands = append(cands, candidate{reflect.PointerTo(t), true})
	}

	var mismatch string
	for _, name := range names {
		for _, c := range cands {
			m, ok := c.t.MethodByName(name)
			if !ok {
				continue
			}
			mt := m.Type
			recv := 1
			if c.t.Kind() == reflect.Interface {
				recv = 0
			}
			if mt.NumIn() != recv+1 || mt.NumOut() != 2 || mt.Out(1) != errorType {
				mismatch = fmt.Sprintf("%s has signature %v", name, mt)
				continue
			}
			if !in.AssignableTo(mt.In(recv)) {
				mismatch = fmt.Sprintf("%v.%s accepts %v", t, name, mt.In(recv))
				continue
			}
			return name, c.ptr, mt.Out(0), nil
		}
	}
	if mismatch != "" {
		return "", false, nil, fmt.Errorf("%s", mismatch)
	}
	return "", false, nil, fmt.Errorf("%v has no forward method", t)
}

// ForwardFields derives TryForward for an aggregate: the input is passed
// through every module field in declaration order, each field receiving the
// previous output. The first error stops the chain and is returned
// unchanged.
//
// agg should be a pointer when fields use pointer-receiver methods.
func ForwardFields[Y, X any](agg any, x X) (Y, error) {
	return runChain[Y](agg, x, false)
}

// ForwardFieldsMut is ForwardFields in training mode: fields that have
// TryForwardMut are called through it.
func ForwardFieldsMut[Y, X any](agg any, x X) (Y, error) {
	return runChain[Y](agg, x, true)
}

func runChain[Y, X any](agg any, x X, mut bool) (Y, error) {
	var zero Y
	av := reflect.ValueOf(agg)
	plan, err := resolve(av.Type(), reflect.TypeFor[X](), mut)
	if err != nil {
		return zero, err
	}
	if yt := reflect.TypeFor[Y](); !plan.out.AssignableTo(yt) {
		return zero, &ChainError{Aggregate: av.Type(), Field: "output", Input: reflect.TypeFor[X](),
			Reason: fmt.Sprintf("chain returns %v, want %v", plan.out, yt)}
	}
	if av.Kind() == reflect.Pointer {
		if av.IsNil() {
			return zero, &ChainError{Aggregate: av.Type(), Input: reflect.TypeFor[X](), Reason: "nil aggregate"}
		}
		av = av.Elem()
	}

	cur := reflect.ValueOf(&x).Elem()
	for _, step := range plan.steps {
		fv := av.Field(step.field)
		if !step.list {
			if cur, err = callForward(fv, step, cur); err != nil {
				return zero, err
			}
			continue
		}
		for i := 0; i < fv.Len(); i++ {
			if cur, err = callForward(fv.Index(i), step, cur); err != nil {
				return zero, err
			}
		}
	}
	y, _ := cur.Interface().(Y)
	return y, nil
}

func callForward(fv reflect.Value, step chainStep, in reflect.Value) (reflect.Value, error) {
	if step.ptr {
		if fv.CanAddr() {
			fv = fv.Addr()
		} else {
			cp := reflect.New(fv.Type())
			cp.Elem().Set(fv)
			fv = cp
		}
	}
	if (fv.Kind() == reflect.Pointer || fv.Kind() == reflect.Interface) && fv.IsNil() {
		return reflect.Value{}, fmt.Errorf("nn: forward through nil module field %s", step.name)
	}
	res := fv.MethodByName(step.method).Call([]reflect.Value{in})
	if err, _ := res[1].Interface().(error); err != nil {
		return reflect.Value{}, err
	}
	return res[0], nil
}

// TryForwardEach folds x through mods in order. An empty list returns x.
func TryForwardEach[M Module[X, X], X any](mods []M, x X) (X, error) {
	for _, m := range mods {
		var err error
		if x, err = m.TryForward(x); err != nil {
			var zero X
			return zero, err
		}
	}
	return x, nil
}

// TryForwardEachMut is TryForwardEach in training mode.
func TryForwardEachMut[M Module[X, X], X any](mods []M, x X) (X, error) {
	for _, m := range mods {
		var err error
		if x, err = TryForwardMut(Module[X, X](m), x); err != nil {
			var zero X
			return zero, err
		}
	}
	return x, nil
}
