package serialization

import (
	"crypto/sha256"
	"encoding/hex"
)

// Checksum returns the hex SHA-256 of data.
func Checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// verifyChecksum compares data against a stored hex digest.
func verifyChecksum(data []byte, stored string) error {
	if got := Checksum(data); got != stored {
		return &ContentError{Kind: ErrChecksumMismatch, Details: "stored " + stored + ", computed " + got}
	}
	return nil
}
