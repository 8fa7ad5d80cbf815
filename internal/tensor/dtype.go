// Package tensor provides the tensor engine used by the layer framework:
// dense row-major tensors bound to a Device, a gradient tape that records
// differentiable operations, and a gradient store keyed by tensor identity.
package tensor

import "fmt"

// Float is the constraint for element types the engine computes on.
type Float interface {
	~float32 | ~float64
}

// DataType represents runtime type information for tensors.
type DataType int

// Supported data types for tensors.
//
// Only Float32 and Float64 tensors can be allocated and computed on; the
// remaining values exist so serialized records of other types can be
// described and rejected with a precise error.
const (
	Float32 DataType = iota
	Float64
	Int32
	Int64
	Uint8
	Bool
)

// Size returns the byte size of the data type.
func (dt DataType) Size() int {
	switch dt {
	case Float32, Int32:
		return 4
	case Float64, Int64:
		return 8
	case Uint8, Bool:
		return 1
	default:
		panic(fmt.Sprintf("tensor: unknown data type %d", int(dt)))
	}
}

// String returns a human-readable name for the data type.
func (dt DataType) String() string {
	switch dt {
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	case Int32:
		return "int32"
	case Int64:
		return "int64"
	case Uint8:
		return "uint8"
	case Bool:
		return "bool"
	default:
		return "unknown"
	}
}

// IsFloat reports whether tensors of this type can be computed on.
func (dt DataType) IsFloat() bool {
	return dt == Float32 || dt == Float64
}

// dataTypeOf infers the DataType of a Float type parameter.
func dataTypeOf[T Float]() DataType {
	var zero T
	switch any(zero).(type) {
	case float32:
		return Float32
	default:
		return Float64
	}
}
