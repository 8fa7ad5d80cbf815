package tensor

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors returned by the engine.
var (
	// ErrOutOfMemory is returned when a device cannot satisfy an allocation.
	ErrOutOfMemory = errors.New("tensor: out of memory")

	// ErrUnsupportedDType is returned for operations on non-float data types.
	ErrUnsupportedDType = errors.New("tensor: unsupported data type")

	// ErrDTypeMismatch is returned when operands have different data types.
	ErrDTypeMismatch = errors.New("tensor: data type mismatch")

	// ErrDeviceMismatch is returned when operands live on different devices.
	ErrDeviceMismatch = errors.New("tensor: device mismatch")

	// ErrNoTape is returned by Backward on a value that carries no tape.
	ErrNoTape = errors.New("tensor: no gradient tape")
)

// ShapeError describes operands whose shapes an operation cannot accept.
type ShapeError struct {
	Op     string
	Shapes []Shape
	Reason string
}

// Error implements the error interface.
func (e *ShapeError) Error() string {
	parts := make([]string, len(e.Shapes))
	for i, s := range e.Shapes {
		parts[i] = fmt.Sprint([]int(s))
	}
	msg := fmt.Sprintf("tensor: %s: incompatible shapes %s", e.Op, strings.Join(parts, ", "))
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func shapeErr(op, reason string, shapes ...Shape) error {
	return &ShapeError{Op: op, Shapes: shapes, Reason: reason}
}
