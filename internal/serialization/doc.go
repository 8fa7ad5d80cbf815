// Package serialization reads and writes named tensor records as
// safetensors files.
//
//	Format Structure:
//	  [8 bytes: Header Size N (uint64 LE)]
//	  [N bytes: JSON header]
//	  [Tensor data: raw little-endian bytes, row-major]
//
// The JSON header maps every record name to its dtype, shape and
// [begin, end) byte offsets into the data section. The optional
// "__metadata__" entry holds string pairs; the writer stores the SHA-256 of
// the data section there and the reader verifies it when present.
//
// Records keep their order: the writer lays data out in the order it was
// given and the reader returns records sorted by offset.
//
// Example usage:
//
//	if err := serialization.WriteFile("model.safetensors", records, nil); err != nil {
//	    log.Fatal(err)
//	}
//
//	f, err := serialization.OpenFile("model.safetensors")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer f.Close()
//	rec, ok := f.Lookup("l1/matmul/weight")
package serialization
