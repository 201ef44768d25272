// Package store provides the offset-addressed byte stores that back a value
// index: an append-mostly file store, a read-only memory-mapped store and an
// in-memory store, plus fixed-width big-endian field helpers.
package store

import (
	"bufio"
	"encoding/binary"
	"io"

	apperr "github.com/Adithya-Monish-Kumar-K/valueindex/pkg/errors"
)

// Store is a random-access byte store whose tail grows through Append.
// ReadAt follows io.ReaderAt semantics, including io.EOF on short reads.
type Store interface {
	io.ReaderAt
	io.WriterAt
	// Append writes p at the end of the store and returns its offset.
	Append(p []byte) (int64, error)
	Size() int64
	Truncate(size int64) error
	Flush() error
	Close() error
}

// Read4 reads a big-endian 4-byte field.
func Read4(s io.ReaderAt, off int64) (uint32, error) {
	var b [4]byte
	if _, err := s.ReadAt(b[:], off); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b[:]), nil
}

// Write4 writes a big-endian 4-byte field.
func Write4(s io.WriterAt, off int64, v uint32) error {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	_, err := s.WriteAt(b[:], off)
	return err
}

// Read5 reads a big-endian 5-byte field.
func Read5(s io.ReaderAt, off int64) (int64, error) {
	var b [5]byte
	if _, err := s.ReadAt(b[:], off); err != nil {
		return 0, err
	}
	return Get5(b[:]), nil
}

// Write5 writes a big-endian 5-byte field.
func Write5(s io.WriterAt, off int64, v int64) error {
	var b [5]byte
	Put5(b[:], v)
	_, err := s.WriteAt(b[:], off)
	return err
}

// Max5 is the largest value a 5-byte field holds.
const Max5 = 1<<40 - 1

// Put5 encodes v into b[:5].
func Put5(b []byte, v int64) {
	_ = b[4]
	b[0] = byte(v >> 32)
	b[1] = byte(v >> 24)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 8)
	b[4] = byte(v)
}

// Get5 decodes b[:5].
func Get5(b []byte) int64 {
	_ = b[4]
	return int64(b[0])<<32 | int64(b[1])<<24 | int64(b[2])<<16 | int64(b[3])<<8 | int64(b[4])
}

// NewReader returns a buffered sequential reader positioned at off.
func NewReader(s Store, off int64, size int) *bufio.Reader {
	return bufio.NewReaderSize(io.NewSectionReader(s, off, s.Size()-off), size)
}

// readOnly is embedded by stores that reject writes.
type readOnly struct{}

func (readOnly) WriteAt([]byte, int64) (int, error) { return 0, apperr.ErrReadOnly }
func (readOnly) Append([]byte) (int64, error)        { return 0, apperr.ErrReadOnly }
func (readOnly) Truncate(int64) error                { return apperr.ErrReadOnly }
func (readOnly) Flush() error                        { return nil }
