package serialization

import (
	"os"
)

// File is a safetensors file mapped into memory. Record data points into
// the mapping and is valid until Close.
type File struct {
	path     string
	data     []byte
	unmap    func([]byte) error
	records  []Record
	index    map[string]int
	metadata map[string]string
	closed   bool
}

// OpenFile maps the file at path read-only and parses its header.
//
// Important: Always call Close() when done to unmap the file (use defer).
func OpenFile(path string) (*File, error) {
	//nolint:gosec // G304: path comes from the caller by design
	osf, err := os.Open(path)
	if err != nil {
		return nil, &FileError{Path: path, Op: "open", Err: err}
	}
	defer func() {
		_ = osf.Close() // the mapping outlives the descriptor
	}()

	stat, err := osf.Stat()
	if err != nil {
		return nil, &FileError{Path: path, Op: "stat", Err: err}
	}
	if stat.Size() < 8 {
		return nil, malformed("", "%s: file too small: %d bytes", path, stat.Size())
	}

	data, unmap, err := mapFile(osf, stat.Size())
	if err != nil {
		return nil, &FileError{Path: path, Op: "mmap", Err: err}
	}

	records, metadata, err := Decode(data)
	if err != nil {
		_ = unmap(data)
		return nil, err
	}

	f := &File{
		path:     path,
		data:     data,
		unmap:    unmap,
		records:  records,
		index:    make(map[string]int, len(records)),
		metadata: metadata,
	}
	for i, r := range records {
		f.index[r.Name] = i
	}
	return f, nil
}

// Path returns the path the file was opened from.
func (f *File) Path() string { return f.path }

// Records returns every record in data order.
func (f *File) Records() []Record { return f.records }

// Names returns the record names in data order.
func (f *File) Names() []string {
	names := make([]string, len(f.records))
	for i, r := range f.records {
		names[i] = r.Name
	}
	return names
}

// Lookup returns the record called name.
func (f *File) Lookup(name string) (Record, bool) {
	i, ok := f.index[name]
	if !ok {
		return Record{}, false
	}
	return f.records[i], true
}

// Metadata returns the string metadata stored in the header.
func (f *File) Metadata() map[string]string { return f.metadata }

// Close unmaps the file. Records must not be used afterwards.
func (f *File) Close() error {
	if f.closed {
		return nil
	}
	f.closed = true
	data := f.data
	f.data, f.records, f.index = nil, nil, nil
	if err := f.unmap(data); err != nil {
		return &FileError{Path: f.path, Op: "munmap", Err: err}
	}
	return nil
}
