package store

import "io"

// MemoryStore keeps its content in a byte slice.
type MemoryStore struct {
	buf []byte
}

// NewMemory returns an empty store.
func NewMemory() *MemoryStore { return &MemoryStore{} }

// Bytes returns the backing content without copying.
func (s *MemoryStore) Bytes() []byte { return s.buf }

// Size reports the content length.
func (s *MemoryStore) Size() int64 { return int64(len(s.buf)) }

// ReadAt copies content at off into p, returning io.EOF on a short read.
func (s *MemoryStore) ReadAt(p []byte, off int64) (int, error) {
	if off >= int64(len(s.buf)) {
		return 0, io.EOF
	}
	n := copy(p, s.buf[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// WriteAt overwrites content at off, zero-filling any gap past the end.
func (s *MemoryStore) WriteAt(p []byte, off int64) (int, error) {
	if end := off + int64(len(p)); end > int64(len(s.buf)) {
		s.buf = append(s.buf, make([]byte, end-int64(len(s.buf)))...)
	}
	return copy(s.buf[off:], p), nil
}

// Append adds p at the end and returns its offset.
func (s *MemoryStore) Append(p []byte) (int64, error) {
	off := int64(len(s.buf))
	s.buf = append(s.buf, p...)
	return off, nil
}

// Truncate shortens or zero-extends the content to size.
func (s *MemoryStore) Truncate(size int64) error {
	if size < int64(len(s.buf)) {
		s.buf = s.buf[:size]
		return nil
	}
	s.buf = append(s.buf, make([]byte, size-int64(len(s.buf)))...)
	return nil
}

// Flush is a no-op.
func (s *MemoryStore) Flush() error { return nil }

// Close is a no-op; the content stays readable.
func (s *MemoryStore) Close() error { return nil }
