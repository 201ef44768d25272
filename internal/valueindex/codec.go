package valueindex

import (
	"bufio"
	"encoding/binary"
	"errors"
	"io"
	"slices"

	"github.com/Adithya-Monish-Kumar-K/valueindex/internal/store"
	apperr "github.com/Adithya-Monish-Kumar-K/valueindex/pkg/errors"
)

// AppendNum appends the variable-length encoding of v: seven bits per byte,
// low group first, high bit set on every byte but the last.
func AppendNum(dst []byte, v uint64) []byte {
	return binary.AppendUvarint(dst, v)
}

// Num decodes one number from the front of b and returns it with the number
// of bytes consumed. Malformed input panics with an ErrCorrupt error.
func Num(b []byte) (uint64, int) {
	v, n := binary.Uvarint(b)
	if n <= 0 {
		panic(apperr.New(apperr.ErrCorrupt, "malformed varint"))
	}
	return v, n
}

// ReadNum decodes one number from r. A stream that ends inside a number is
// corrupt; plain I/O failures are returned.
func ReadNum(r io.ByteReader) (uint64, error) {
	var v uint64
	for shift := uint(0); ; shift += 7 {
		b, err := r.ReadByte()
		if err != nil {
			if errors.Is(err, io.EOF) {
				panic(apperr.New(apperr.ErrCorrupt, "truncated varint"))
			}
			return 0, apperr.Wrap(apperr.ErrIO, err, "reading varint")
		}
		if shift == 63 && b > 1 {
			panic(apperr.New(apperr.ErrCorrupt, "varint overflows 64 bits"))
		}
		v |= uint64(b&0x7f) << shift
		if b < 0x80 {
			return v, nil
		}
	}
}

func readInt(r io.ByteReader) (int, error) {
	v, err := ReadNum(r)
	return int(v), err
}

// encodePostings appends a posting block: count, first id, then gaps
// between consecutive ids. ids must be strictly ascending.
func encodePostings(dst []byte, ids []int) []byte {
	dst = AppendNum(dst, uint64(len(ids)))
	prev := 0
	for i, id := range ids {
		if i > 0 && id <= prev {
			panic(apperr.Newf(apperr.ErrCorrupt, "posting ids not ascending: %d after %d", id, prev))
		}
		if i == 0 {
			dst = AppendNum(dst, uint64(id))
		} else {
			dst = AppendNum(dst, uint64(id-prev))
		}
		prev = id
	}
	return dst
}

func decodePostings(r io.ByteReader) ([]int, error) {
	n, err := readInt(r)
	if err != nil {
		return nil, err
	}
	ids := make([]int, 0, n)
	prev := 0
	for i := 0; i < n; i++ {
		v, err := readInt(r)
		if err != nil {
			return nil, err
		}
		if i > 0 {
			if v == 0 {
				panic(apperr.New(apperr.ErrCorrupt, "zero gap in posting list"))
			}
			v += prev
		}
		ids = append(ids, v)
		prev = v
	}
	return ids, nil
}

// postingsReader positions a buffered reader at a posting block.
func postingsReader(s store.Store, off int64) *bufio.Reader {
	if size := s.Size(); off < 0 || off >= size {
		panic(apperr.Newf(apperr.ErrCorrupt, "posting offset %d outside store of %d bytes", off, size))
	}
	return store.NewReader(s, off, readBufferSize)
}

const readBufferSize = 256

func readPostings(s store.Store, off int64) ([]int, error) {
	return decodePostings(postingsReader(s, off))
}

func readCount(s store.Store, off int64) (int, error) {
	return readInt(postingsReader(s, off))
}

// readFirst returns the count of the block at off and, if non-zero, its
// first id.
func readFirst(s store.Store, off int64) (count, first int, err error) {
	r := postingsReader(s, off)
	if count, err = readInt(r); err != nil || count == 0 {
		return count, 0, err
	}
	first, err = readInt(r)
	return count, first, err
}

// sortedUnique sorts ids in place and drops duplicates.
func sortedUnique(ids []int) []int {
	if len(ids) < 2 {
		return ids
	}
	slices.Sort(ids)
	out := ids[:1]
	for _, id := range ids[1:] {
		if id != out[len(out)-1] {
			out = append(out, id)
		}
	}
	return out
}

// union merges two ascending, duplicate-free lists.
func union(a, b []int) []int {
	out := make([]int, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] < b[j]:
			out = append(out, a[i])
			i++
		case a[i] > b[j]:
			out = append(out, b[j])
			j++
		default:
			out = append(out, a[i])
			i++
			j++
		}
	}
	out = append(out, a[i:]...)
	return append(out, b[j:]...)
}

// subtract removes every id of drop from ids; both ascending.
func subtract(ids, drop []int) []int {
	out := make([]int, 0, len(ids))
	j := 0
	for _, id := range ids {
		for j < len(drop) && drop[j] < id {
			j++
		}
		if j < len(drop) && drop[j] == id {
			continue
		}
		out = append(out, id)
	}
	return out
}
