//go:build unix

package serialization

import (
	"os"

	"golang.org/x/sys/unix"
)

// mapFile memory-maps a file for reading.
func mapFile(f *os.File, size int64) ([]byte, func([]byte) error, error) {
	data, err := unix.Mmap(
		int(f.Fd()), //nolint:gosec // G115: file descriptor fits in int
		0,
		int(size),
		unix.PROT_READ,
		unix.MAP_SHARED,
	)
	if err != nil {
		return nil, nil, err
	}
	return data, unix.Munmap, nil
}
