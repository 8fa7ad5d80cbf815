package nn

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/born-ml/layers/internal/tensor"
)

// BuildFields derives TryBuild for a struct module M from a configuration
// struct whose fields carry the same Go names.
//
// For every field of M:
//   - module fields call TryBuild on the configuration field; slices and
//     arrays of configurations build element by element;
//   - param and buffer fields allocate zeros of the shape held by the
//     configuration field ([]int or tensor.Shape);
//   - scalar and opaque fields are copied from the configuration;
//   - skipped fields keep their zero value.
//
// M may be a struct or a pointer to one. Device errors are returned
// unchanged; a configuration that does not mirror M yields *StructureError.
func BuildFields[M any](cfg any, dev tensor.Device, dt tensor.DataType) (M, error) {
	var zero M
	mt := reflect.TypeFor[M]()
	isPtr := mt.Kind() == reflect.Pointer
	st := mt
	if isPtr {
		st = mt.Elem()
	}
	if st.Kind() != reflect.Struct {
		return zero, &StructureError{Type: mt, Reason: "built module must be a struct or pointer to struct"}
	}

	cv := reflect.ValueOf(cfg)
	for cv.Kind() == reflect.Pointer || cv.Kind() == reflect.Interface {
		if cv.IsNil() {
			return zero, &StructureError{Type: mt, Reason: "nil configuration"}
		}
		cv = cv.Elem()
	}
	if cv.Kind() != reflect.Struct {
		return zero, &StructureError{Type: mt, Reason: fmt.Sprintf("configuration %v is not a struct", cv.Type())}
	}

	out := reflect.New(st).Elem()
	for _, spec := range fieldsOf(st) {
		if spec.role == RoleSkip || !spec.exported {
			continue
		}
		sf, ok := cv.Type().FieldByName(spec.goName)
		if !ok || !sf.IsExported() {
			return zero, &StructureError{Type: st, Field: spec.goName,
				Reason: fmt.Sprintf("configuration %v has no such exported field", cv.Type())}
		}
		src := cv.FieldByIndex(sf.Index)
		dst := out.Field(spec.index)

		var err error
		switch spec.role {
		case RoleModule:
			err = buildInto(dst, src, dev, dt)
		case RoleParam, RoleBuffer:
			err = allocInto(dst, src, dev, dt)
		default:
			err = copyInto(dst, src)
		}
		if err != nil {
			var se *StructureError
			if errors.As(err, &se) && se.Type == nil {
				se.Type, se.Field = st, spec.goName
			}
			return zero, err
		}
	}

	if isPtr {
		return out.Addr().Interface().(M), nil
	}
	return out.Interface().(M), nil
}

// buildInto builds the configuration src into dst.
func buildInto(dst, src reflect.Value, dev tensor.Device, dt tensor.DataType) error {
	dk := dst.Kind()
	sk := src.Kind()
	if (dk == reflect.Slice || dk == reflect.Array) && (sk == reflect.Slice || sk == reflect.Array) {
		n := src.Len()
		if dk == reflect.Slice {
			dst.Set(reflect.MakeSlice(dst.Type(), n, n))
		} else if dst.Len() != n {
			return &StructureError{Reason: fmt.Sprintf("array of %d built from %d configurations", dst.Len(), n)}
		}
		for i := 0; i < n; i++ {
			if err := buildInto(dst.Index(i), src.Index(i), dev, dt); err != nil {
				return err
			}
		}
		return nil
	}

	built, err := callBuild(src, dev, dt)
	if err != nil {
		return err
	}
	if !built.Type().AssignableTo(dst.Type()) {
		return &StructureError{Reason: fmt.Sprintf("configuration %v builds %v, field is %v", src.Type(), built.Type(), dst.Type())}
	}
	dst.Set(built)
	return nil
}

// callBuild invokes src.TryBuild(dev, dt) through reflection.
func callBuild(src reflect.Value, dev tensor.Device, dt tensor.DataType) (reflect.Value, error) {
	if src.Kind() == reflect.Interface {
		if src.IsNil() {
			return reflect.Value{}, &StructureError{Reason: "nil configuration"}
		}
		src = src.Elem()
	}
	method := src.MethodByName("TryBuild")
	if !method.IsValid() && src.Kind() != reflect.Pointer {
		// pointer-receiver TryBuild on a non-addressable value
		ptr := reflect.New(src.Type())
		ptr.Elem().Set(src)
		method = ptr.MethodByName("TryBuild")
	}
	if !method.IsValid() {
		return reflect.Value{}, &StructureError{Reason: fmt.Sprintf("%v has no TryBuild method", src.Type())}
	}
	mt := method.Type()
	if mt.NumIn() != 2 || mt.NumOut() != 2 || mt.Out(1) != errorType {
		return reflect.Value{}, &StructureError{Reason: fmt.Sprintf("%v.TryBuild has signature %v", src.Type(), mt)}
	}
	res := method.Call([]reflect.Value{reflect.ValueOf(&dev).Elem(), reflect.ValueOf(dt)})
	if err, _ := res[1].Interface().(error); err != nil {
		return reflect.Value{}, err
	}
	return res[0], nil
}

// allocInto allocates a zero tensor shaped by src into dst.
func allocInto(dst, src reflect.Value, dev tensor.Device, dt tensor.DataType) error {
	var shape []int
	switch s := src.Interface().(type) {
	case []int:
		shape = s
	case tensor.Shape:
		shape = s
	default:
		return &StructureError{Reason: fmt.Sprintf("tensor configured by %v, want []int or tensor.Shape", src.Type())}
	}
	t, err := tensor.Zeros(dev, dt, shape...)
	if err != nil {
		return err
	}
	dst.Set(reflect.ValueOf(t))
	return nil
}

// copyInto copies a scalar or opaque configuration value verbatim.
func copyInto(dst, src reflect.Value) error {
	switch {
	case src.Type().AssignableTo(dst.Type()):
		dst.Set(src)
	case src.Type().ConvertibleTo(dst.Type()) && src.Kind() != reflect.String:
		dst.Set(src.Convert(dst.Type()))
	default:
		return &StructureError{Reason: fmt.Sprintf("cannot copy %v into %v", src.Type(), dst.Type())}
	}
	return nil
}
