package serialization

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sort"
)

// Decode parses a safetensors image held in memory. The returned records
// alias data. A stored checksum is verified.
func Decode(data []byte) ([]Record, map[string]string, error) {
	if len(data) < 8 {
		return nil, nil, malformed("", "file too small: %d bytes", len(data))
	}
	n := binary.LittleEndian.Uint64(data[:8])
	if n > MaxHeaderSize || n > uint64(len(data)-8) {
		return nil, nil, malformed("", "header size %d exceeds file of %d bytes", n, len(data))
	}
	body := data[8+n:]

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data[8:8+n], &raw); err != nil {
		return nil, nil, malformed("", "header JSON: %v", err)
	}

	var metadata map[string]string
	if m, ok := raw[metadataKey]; ok {
		if err := json.Unmarshal(m, &metadata); err != nil {
			return nil, nil, malformed(metadataKey, "%v", err)
		}
		delete(raw, metadataKey)
	}

	records := make([]Record, 0, len(raw))
	spans := make([]span, 0, len(raw))
	for name, msg := range raw {
		var e headerEntry
		if err := json.Unmarshal(msg, &e); err != nil {
			return nil, nil, malformed(name, "header entry: %v", err)
		}
		dt, ok := stringToDtype(e.DType)
		if !ok {
			return nil, nil, &ContentError{Kind: ErrDTypeMismatch, Name: name, Details: fmt.Sprintf("unsupported dtype %q", e.DType)}
		}
		shape := make([]int, len(e.Shape))
		for i, d := range e.Shape {
			shape[i] = int(d)
		}
		spans = append(spans, span{name: name, begin: e.DataOffsets[0], end: e.DataOffsets[1]})
		records = append(records, Record{Name: name, DType: dt, Shape: shape})
	}
	if err := validateSpans(spans, int64(len(body))); err != nil {
		return nil, nil, err
	}
	for i := range records {
		records[i].Data = body[spans[i].begin:spans[i].end]
		if err := validateRecord(records[i]); err != nil {
			return nil, nil, err
		}
	}

	order := make([]int, len(records))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool {
		sa, sb := spans[order[a]], spans[order[b]]
		if sa.begin != sb.begin {
			return sa.begin < sb.begin
		}
		return sa.name < sb.name
	})
	sorted := make([]Record, len(records))
	for i, j := range order {
		sorted[i] = records[j]
	}

	if stored, ok := metadata[checksumKey]; ok {
		if err := verifyChecksum(body, stored); err != nil {
			return nil, nil, err
		}
	}
	return sorted, metadata, nil
}
