//go:build !unix

package serialization

import (
	"io"
	"os"
)

// mapFile reads the whole file where memory mapping is unavailable.
func mapFile(f *os.File, size int64) ([]byte, func([]byte) error, error) {
	data := make([]byte, size)
	if _, err := io.ReadFull(f, data); err != nil {
		return nil, nil, err
	}
	return data, func([]byte) error { return nil }, nil
}
