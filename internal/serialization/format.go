package serialization

import (
	"github.com/born-ml/layers/internal/tensor"
)

// Record is one named tensor: a dtype, a shape and its raw little-endian
// bytes in row-major order. Scalars have an empty shape and one element.
type Record struct {
	Name  string
	DType tensor.DataType
	Shape []int
	Data  []byte
}

// NumElements returns the element count implied by the shape.
func (r Record) NumElements() int {
	return tensor.Shape(r.Shape).NumElements()
}

const metadataKey = "__metadata__"

// checksumKey names the data-section SHA-256 in the metadata.
const checksumKey = "sha256"

// headerEntry describes one record in the JSON header.
type headerEntry struct {
	DType       string   `json:"dtype"`
	Shape       []int64  `json:"shape"`
	DataOffsets [2]int64 `json:"data_offsets"`
}

// Data type strings of the safetensors format.
const (
	DTypeFloat32 = "F32"
	DTypeFloat64 = "F64"
	DTypeInt32   = "I32"
	DTypeInt64   = "I64"
	DTypeUint8   = "U8"
	DTypeBool    = "BOOL"
)

func dtypeToString(dt tensor.DataType) (string, bool) {
	switch dt {
	case tensor.Float32:
		return DTypeFloat32, true
	case tensor.Float64:
		return DTypeFloat64, true
	case tensor.Int32:
		return DTypeInt32, true
	case tensor.Int64:
		return DTypeInt64, true
	case tensor.Uint8:
		return DTypeUint8, true
	case tensor.Bool:
		return DTypeBool, true
	default:
		return "", false
	}
}

func stringToDtype(s string) (tensor.DataType, bool) {
	switch s {
	case DTypeFloat32:
		return tensor.Float32, true
	case DTypeFloat64:
		return tensor.Float64, true
	case DTypeInt32:
		return tensor.Int32, true
	case DTypeInt64:
		return tensor.Int64, true
	case DTypeUint8:
		return tensor.Uint8, true
	case DTypeBool:
		return tensor.Bool, true
	default:
		return 0, false
	}
}
