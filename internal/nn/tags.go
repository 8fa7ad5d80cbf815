package nn

import (
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/born-ml/layers/internal/tensor"
)

// Role says how the traversal treats a struct field.
//
// Fields are tagged `nn:"name,role[,init=zeros|ones]"`. An empty name uses
// the Go field name. Untagged fields are opaque: BuildFields copies them from
// the configuration and every other pass ignores them. `nn:"-"` excludes a
// field from building as well.
type Role int

// Field roles.
const (
	RoleOpaque Role = iota
	RoleParam       // trainable *tensor.Tensor: reset, updated, zero-grad, serialized
	RoleBuffer      // non-trainable *tensor.Tensor state: reset and serialized
	RoleModule      // nested module: every pass recurses
	RoleScalar      // bool or float hyperparameter: copied at build, serialized
	RoleSkip
)

// Init selects the constant a parameter or buffer is reset to.
type Init int

// Reset policies for tagged tensors.
const (
	InitZeros Init = iota
	InitOnes
)

type fieldSpec struct {
	index    int
	goName   string
	name     string
	role     Role
	init     Init
	exported bool
}

var (
	specCache  sync.Map // reflect.Type -> []fieldSpec
	tensorType = reflect.TypeFor[*tensor.Tensor]()
	errorType  = reflect.TypeFor[error]()
)

// fieldsOf returns the parsed tags of struct type t.
// Malformed tags are programming errors and panic.
func fieldsOf(t reflect.Type) []fieldSpec {
	if cached, ok := specCache.Load(t); ok {
		return cached.([]fieldSpec)
	}
	specs := make([]fieldSpec, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		spec, err := parseTag(f)
		if err != nil {
			panic(fmt.Sprintf("nn: %v.%s: %v", t, f.Name, err))
		}
		spec.index = i
		specs = append(specs, spec)
	}
	specCache.Store(t, specs)
	return specs
}

func parseTag(f reflect.StructField) (fieldSpec, error) {
	spec := fieldSpec{goName: f.Name, name: f.Name, exported: f.IsExported()}
	tag, ok := f.Tag.Lookup("nn")
	if !ok {
		return spec, nil
	}
	if tag == "-" {
		spec.role = RoleSkip
		return spec, nil
	}
	if !f.IsExported() {
		return spec, fmt.Errorf("tagged field must be exported")
	}

	parts := strings.Split(tag, ",")
	if parts[0] != "" {
		spec.name = parts[0]
	}
	if len(parts) < 2 {
		return spec, fmt.Errorf("tag %q has no role", tag)
	}
	switch parts[1] {
	case "param":
		spec.role = RoleParam
	case "buffer":
		spec.role = RoleBuffer
	case "module":
		spec.role = RoleModule
	case "scalar":
		spec.role = RoleScalar
	default:
		return spec, fmt.Errorf("unknown role %q", parts[1])
	}

	for _, opt := range parts[2:] {
		switch opt {
		case "init=zeros":
			spec.init = InitZeros
		case "init=ones":
			spec.init = InitOnes
		default:
			return spec, fmt.Errorf("unknown option %q", opt)
		}
	}

	switch spec.role {
	case RoleParam, RoleBuffer:
		if f.Type != tensorType {
			return spec, fmt.Errorf("%s field must be *tensor.Tensor, got %v", parts[1], f.Type)
		}
	case RoleScalar:
		if _, ok := scalarDType(f.Type); !ok {
			return spec, fmt.Errorf("scalar field must be bool, float32 or float64, got %v", f.Type)
		}
	}
	return spec, nil
}

// scalarDType maps a scalar field kind to its serialized data type.
func scalarDType(t reflect.Type) (tensor.DataType, bool) {
	switch t.Kind() {
	case reflect.Float32:
		return tensor.Float32, true
	case reflect.Float64:
		return tensor.Float64, true
	case reflect.Bool:
		return tensor.Bool, true
	default:
		return 0, false
	}
}

func joinPath(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "/" + name
}
