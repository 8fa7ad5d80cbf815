package nn

import (
	"encoding/binary"
	"fmt"
	"math"
	"reflect"

	"github.com/born-ml/layers/internal/serialization"
	"github.com/born-ml/layers/internal/tensor"
)

// Flatten lists every parameter, buffer and scalar of m as a record keyed
// by its slash-joined path, in traversal order.
func Flatten(m any) ([]serialization.Record, error) {
	var records []serialization.Record
	vis := &visitor{
		tensor: func(path string, t *tensor.Tensor, _ fieldSpec) error {
			records = append(records, serialization.Record{
				Name:  path,
				DType: t.DType(),
				Shape: t.Shape(),
				Data:  t.Bytes(),
			})
			return nil
		},
		scalar: func(path string, v reflect.Value, _ fieldSpec) error {
			dt, _ := scalarDType(v.Type())
			records = append(records, serialization.Record{
				Name:  path,
				DType: dt,
				Shape: []int{},
				Data:  scalarBytes(v),
			})
			return nil
		},
	}
	if err := vis.walk(reflect.ValueOf(m), ""); err != nil {
		return nil, err
	}
	return records, nil
}

// Unflatten overwrites the parameters, buffers and scalars of m from
// records. m must be a pointer so scalars can be set. Every path of m must
// be present with a matching dtype and shape; the first mismatch stops the
// pass with a *serialization.ContentError. Records m does not use are
// ignored.
func Unflatten(m any, records []serialization.Record) error {
	byName := make(map[string]serialization.Record, len(records))
	for _, r := range records {
		byName[r.Name] = r
	}
	lookup := func(path string, dt tensor.DataType, shape tensor.Shape) (serialization.Record, error) {
		r, ok := byName[path]
		if !ok {
			return r, &serialization.ContentError{Kind: serialization.ErrMissingTensor, Name: path, Details: "not in records"}
		}
		if r.DType != dt {
			return r, &serialization.ContentError{Kind: serialization.ErrDTypeMismatch, Name: path,
				Details: fmt.Sprintf("record is %s, module expects %s", r.DType, dt)}
		}
		if !tensor.Shape(r.Shape).Equal(shape) {
			return r, &serialization.ContentError{Kind: serialization.ErrShapeMismatch, Name: path,
				Details: fmt.Sprintf("record is %v, module expects %v", r.Shape, []int(shape))}
		}
		return r, nil
	}

	vis := &visitor{
		tensor: func(path string, t *tensor.Tensor, _ fieldSpec) error {
			r, err := lookup(path, t.DType(), t.Shape())
			if err != nil {
				return err
			}
			return t.SetBytes(r.Data)
		},
		scalar: func(path string, v reflect.Value, spec fieldSpec) error {
			dt, _ := scalarDType(v.Type())
			r, err := lookup(path, dt, tensor.Shape{})
			if err != nil {
				return err
			}
			if !v.CanSet() {
				return &StructureError{Field: spec.goName, Reason: "scalar is not settable; pass a pointer to the module"}
			}
			return setScalar(v, r)
		},
	}
	return vis.walk(reflect.ValueOf(m), "")
}

// Save writes the records of m to a safetensors file.
func Save(path string, m any) error {
	records, err := Flatten(m)
	if err != nil {
		return err
	}
	return serialization.WriteFile(path, records, nil)
}

// Load memory-maps a safetensors file and unflattens it into m.
func Load(path string, m any) error {
	f, err := serialization.OpenFile(path)
	if err != nil {
		return err
	}
	if err := Unflatten(m, f.Records()); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func scalarBytes(v reflect.Value) []byte {
	switch v.Kind() {
	case reflect.Float32:
		return binary.LittleEndian.AppendUint32(nil, math.Float32bits(float32(v.Float())))
	case reflect.Float64:
		return binary.LittleEndian.AppendUint64(nil, math.Float64bits(v.Float()))
	default:
		if v.Bool() {
			return []byte{1}
		}
		return []byte{0}
	}
}

func setScalar(v reflect.Value, r serialization.Record) error {
	if len(r.Data) != r.DType.Size() {
		return &serialization.ContentError{Kind: serialization.ErrMalformed, Name: r.Name,
			Details: fmt.Sprintf("scalar payload of %d bytes", len(r.Data))}
	}
	switch v.Kind() {
	case reflect.Float32:
		v.SetFloat(float64(math.Float32frombits(binary.LittleEndian.Uint32(r.Data))))
	case reflect.Float64:
		v.SetFloat(math.Float64frombits(binary.LittleEndian.Uint64(r.Data)))
	default:
		v.SetBool(r.Data[0] != 0)
	}
	return nil
}
