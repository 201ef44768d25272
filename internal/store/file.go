package store

import (
	"fmt"
	"os"

	"golang.org/x/exp/mmap"

	apperr "github.com/Adithya-Monish-Kumar-K/valueindex/pkg/errors"
)

const appendBufferSize = 64 << 10

// FileStore is a read-write store over a single file. Appends are buffered
// and flushed before any positional read or write touches the file.
type FileStore struct {
	f       *os.File
	path    string
	size    int64
	pending []byte
}

// OpenFile opens or creates the file at path.
func OpenFile(path string) (*FileStore, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening store %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat store %s: %w", path, err)
	}
	return &FileStore{f: f, path: path, size: info.Size()}, nil
}

// CreateFile creates path, truncating any previous content.
func CreateFile(path string) (*FileStore, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("creating store %s: %w", path, err)
	}
	return &FileStore{f: f, path: path}, nil
}

// Path returns the file the store was opened on.
func (s *FileStore) Path() string { return s.path }

// Size reports the logical length, including appends not yet flushed.
func (s *FileStore) Size() int64 { return s.size }

// ReadAt flushes pending appends, then reads from the file at off.
func (s *FileStore) ReadAt(p []byte, off int64) (int, error) {
	if err := s.Flush(); err != nil {
		return 0, err
	}
	return s.f.ReadAt(p, off)
}

// WriteAt flushes pending appends, then overwrites the file at off,
// growing it when the write ends past the current size.
func (s *FileStore) WriteAt(p []byte, off int64) (int, error) {
	if err := s.Flush(); err != nil {
		return 0, err
	}
	n, err := s.f.WriteAt(p, off)
	if end := off + int64(n); end > s.size {
		s.size = end
	}
	return n, err
}

// Append buffers p at the end of the store and returns its offset.
func (s *FileStore) Append(p []byte) (int64, error) {
	off := s.size
	s.pending = append(s.pending, p...)
	s.size += int64(len(p))
	if len(s.pending) >= appendBufferSize {
		if err := s.Flush(); err != nil {
			return 0, err
		}
	}
	return off, nil
}

// Truncate flushes pending appends and sets the file length to size.
func (s *FileStore) Truncate(size int64) error {
	if err := s.Flush(); err != nil {
		return err
	}
	if err := s.f.Truncate(size); err != nil {
		return fmt.Errorf("truncating store %s: %w", s.path, err)
	}
	s.size = size
	return nil
}

// Flush writes buffered appends to the file.
func (s *FileStore) Flush() error {
	if len(s.pending) == 0 {
		return nil
	}
	off := s.size - int64(len(s.pending))
	if _, err := s.f.WriteAt(s.pending, off); err != nil {
		return fmt.Errorf("flushing store %s: %w", s.path, err)
	}
	s.pending = s.pending[:0]
	return nil
}

// Sync flushes pending appends and commits the file to stable storage.
func (s *FileStore) Sync() error {
	if err := s.Flush(); err != nil {
		return err
	}
	return s.f.Sync()
}

// Close flushes buffered appends and closes the file. A second call
// returns ErrClosed.
func (s *FileStore) Close() error {
	if s.f == nil {
		return apperr.ErrClosed
	}
	ferr := s.Flush()
	cerr := s.f.Close()
	s.f = nil
	if ferr != nil {
		return ferr
	}
	return cerr
}

// MappedStore is a read-only store backed by a memory-mapped file.
type MappedStore struct {
	readOnly
	r    *mmap.ReaderAt
	path string
}

// OpenMapped maps the file at path for reading.
func OpenMapped(path string) (*MappedStore, error) {
	r, err := mmap.Open(path)
	if err != nil {
		return nil, fmt.Errorf("mapping store %s: %w", path, err)
	}
	return &MappedStore{r: r, path: path}, nil
}

// ReadAt copies mapped bytes at off into p.
func (s *MappedStore) ReadAt(p []byte, off int64) (int, error) {
	return s.r.ReadAt(p, off)
}

// Size reports the mapped length.
func (s *MappedStore) Size() int64 { return int64(s.r.Len()) }

// Close unmaps the file.
func (s *MappedStore) Close() error { return s.r.Close() }
