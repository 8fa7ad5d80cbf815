package nn

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/born-ml/layers/internal/tensor"
)

// ErrUnusedParams matches any *UnusedParamsError.
var ErrUnusedParams = errors.New("nn: parameters without gradients")

// MissingParam names a parameter the update pass found no gradient for.
type MissingParam struct {
	ID   tensor.UniqueID
	Path string
}

// UnusedParamsError reports every parameter that had no gradient during an
// update, in traversal order. Parameters with gradients were still updated.
type UnusedParamsError struct {
	Missing []MissingParam
}

// Error implements the error interface.
func (e *UnusedParamsError) Error() string {
	paths := make([]string, len(e.Missing))
	for i, m := range e.Missing {
		paths[i] = fmt.Sprintf("%s (id %d)", m.Path, m.ID)
	}
	return fmt.Sprintf("nn: %d parameters without gradients: %s", len(e.Missing), strings.Join(paths, ", "))
}

// Is reports whether target is ErrUnusedParams.
func (e *UnusedParamsError) Is(target error) bool {
	return target == ErrUnusedParams
}

// IDs returns the identities of the missing parameters.
func (e *UnusedParamsError) IDs() []tensor.UniqueID {
	ids := make([]tensor.UniqueID, len(e.Missing))
	for i, m := range e.Missing {
		ids[i] = m.ID
	}
	return ids
}

// StructureError reports a configuration or module tree that does not match
// the shape the derivation expects.
type StructureError struct {
	Type   reflect.Type
	Field  string
	Reason string
}

// Error implements the error interface.
func (e *StructureError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("nn: %v: %s", e.Type, e.Reason)
	}
	return fmt.Sprintf("nn: %v.%s: %s", e.Type, e.Field, e.Reason)
}

// ChainError reports a forward chain whose field types do not line up.
type ChainError struct {
	Aggregate reflect.Type
	Field     string
	Input     reflect.Type
	Reason    string
}

// Error implements the error interface.
func (e *ChainError) Error() string {
	return fmt.Sprintf("nn: forward chain of %v at %s with input %v: %s", e.Aggregate, e.Field, e.Input, e.Reason)
}

// RankError reports an input rank a module does not support.
type RankError struct {
	Module string
	Shape  tensor.Shape
	Want   string
}

// Error implements the error interface.
func (e *RankError) Error() string {
	return fmt.Sprintf("nn: %s: unsupported input shape %v, want %s", e.Module, []int(e.Shape), e.Want)
}
