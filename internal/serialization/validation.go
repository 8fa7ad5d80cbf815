package serialization

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// Validation limits for resource protection.
const (
	MaxHeaderSize    = 100 * 1024 * 1024 // 100MB
	MaxTensorCount   = 100_000
	MaxTensorNameLen = 4096
)

// ValidateName checks that name can be stored as a record name.
// Slash-separated module paths are allowed; empty names, null bytes and the
// reserved metadata key are not.
func ValidateName(name string) error {
	switch {
	case name == "":
		return malformed(name, "empty name")
	case len(name) > MaxTensorNameLen:
		return malformed(name, "length %d > max %d", len(name), MaxTensorNameLen)
	case strings.Contains(name, "\x00"):
		return malformed(name, "contains null byte")
	case name == metadataKey:
		return malformed(name, "reserved name")
	}
	return nil
}

// validateRecord checks that the payload of r matches its dtype and shape.
func validateRecord(r Record) error {
	if err := ValidateName(r.Name); err != nil {
		return err
	}
	empty := false
	for _, d := range r.Shape {
		if d < 0 {
			return &ContentError{Kind: ErrShapeMismatch, Name: r.Name, Details: fmt.Sprintf("negative dimension in %v", r.Shape)}
		}
		empty = empty || d == 0
	}
	want := 0
	if !empty {
		want = r.DType.Size()
		for _, d := range r.Shape {
			if want > math.MaxInt/d {
				return malformed(r.Name, "shape %v of %s overflows the addressable size", r.Shape, r.DType)
			}
			want *= d
		}
	}
	if len(r.Data) != want {
		return &ContentError{Kind: ErrShapeMismatch, Name: r.Name,
			Details: fmt.Sprintf("%d bytes for %s%v, want %d", len(r.Data), r.DType, r.Shape, want)}
	}
	return nil
}

type span struct {
	name       string
	begin, end int64
}

// validateSpans checks that the data regions are in bounds and disjoint.
func validateSpans(spans []span, dataSize int64) error {
	if len(spans) > MaxTensorCount {
		return malformed("", "%d tensors, max %d", len(spans), MaxTensorCount)
	}
	sorted := make([]span, len(spans))
	copy(sorted, spans)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].begin < sorted[j].begin })

	for i, s := range sorted {
		if s.begin < 0 || s.end < s.begin {
			return malformed(s.name, "invalid data offsets [%d, %d)", s.begin, s.end)
		}
		if s.end > dataSize {
			return malformed(s.name, "data offsets [%d, %d) beyond data section of %d bytes", s.begin, s.end, dataSize)
		}
		if i+1 < len(sorted) && s.end > sorted[i+1].begin {
			next := sorted[i+1]
			return malformed(s.name, "data [%d, %d) overlaps %q [%d, %d)", s.begin, s.end, next.name, next.begin, next.end)
		}
	}
	return nil
}
