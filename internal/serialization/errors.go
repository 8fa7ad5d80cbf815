package serialization

import (
	"errors"
	"fmt"
)

// Content error kinds. A *ContentError matches its kind with errors.Is.
var (
	ErrMissingTensor    = errors.New("missing tensor")
	ErrShapeMismatch    = errors.New("shape mismatch")
	ErrDTypeMismatch    = errors.New("dtype mismatch")
	ErrMalformed        = errors.New("malformed file")
	ErrChecksumMismatch = errors.New("checksum mismatch: file may be corrupted")
)

// FileError reports an IO failure on a parameter file.
type FileError struct {
	Path string
	Op   string // open, stat, mmap, write, ...
	Err  error
}

// Error implements the error interface.
func (e *FileError) Error() string {
	return fmt.Sprintf("serialization: %s %s: %v", e.Op, e.Path, e.Err)
}

// Unwrap returns the underlying IO error.
func (e *FileError) Unwrap() error {
	return e.Err
}

// ContentError reports a file or record set whose contents do not match
// what the reader or the module tree expects.
type ContentError struct {
	Kind    error  // one of the Err* kinds above
	Name    string // record involved, if any
	Details string
}

// Error implements the error interface.
func (e *ContentError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("serialization: %v: tensor %q: %s", e.Kind, e.Name, e.Details)
	}
	return fmt.Sprintf("serialization: %v: %s", e.Kind, e.Details)
}

// Unwrap returns the error kind.
func (e *ContentError) Unwrap() error {
	return e.Kind
}

func malformed(name, format string, args ...any) error {
	return &ContentError{Kind: ErrMalformed, Name: name, Details: fmt.Sprintf(format, args...)}
}
