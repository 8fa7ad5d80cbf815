package serialization

import (
	"bufio"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
)

// Write encodes records as safetensors to w. Data is laid out in the order
// of records. metadata may be nil; the data checksum is added to it.
func Write(w io.Writer, records []Record, metadata map[string]string) error {
	header := make(map[string]any, len(records)+1)
	sum := sha256.New()
	var offset int64
	for _, r := range records {
		if err := validateRecord(r); err != nil {
			return err
		}
		if _, dup := header[r.Name]; dup {
			return malformed(r.Name, "duplicate name")
		}
		dt, ok := dtypeToString(r.DType)
		if !ok {
			return &ContentError{Kind: ErrDTypeMismatch, Name: r.Name, Details: fmt.Sprintf("unsupported dtype %s", r.DType)}
		}
		shape := make([]int64, len(r.Shape))
		for i, d := range r.Shape {
			shape[i] = int64(d)
		}
		size := int64(len(r.Data))
		header[r.Name] = headerEntry{DType: dt, Shape: shape, DataOffsets: [2]int64{offset, offset + size}}
		offset += size
		sum.Write(r.Data)
	}

	meta := make(map[string]string, len(metadata)+1)
	for k, v := range metadata {
		meta[k] = v
	}
	meta[checksumKey] = hex.EncodeToString(sum.Sum(nil))
	header[metadataKey] = meta

	headerJSON, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("serialization: marshal header: %w", err)
	}

	bw := bufio.NewWriter(w)
	if err := binary.Write(bw, binary.LittleEndian, uint64(len(headerJSON))); err != nil {
		return err
	}
	if _, err := bw.Write(headerJSON); err != nil {
		return err
	}
	for _, r := range records {
		if _, err := bw.Write(r.Data); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// WriteFile writes records to a safetensors file at path, replacing it.
func WriteFile(path string, records []Record, metadata map[string]string) error {
	//nolint:gosec // G304: path comes from the caller by design
	f, err := os.Create(path)
	if err != nil {
		return &FileError{Path: path, Op: "create", Err: err}
	}
	if err := Write(f, records, metadata); err != nil {
		_ = f.Close()
		var ce *ContentError
		if errors.As(err, &ce) {
			return err
		}
		return &FileError{Path: path, Op: "write", Err: err}
	}
	if err := f.Close(); err != nil {
		return &FileError{Path: path, Op: "close", Err: err}
	}
	return nil
}
