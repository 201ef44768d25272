package valueindex

import (
	"github.com/Adithya-Monish-Kumar-K/valueindex/internal/store"
	apperr "github.com/Adithya-Monish-Kumar-K/valueindex/pkg/errors"
)

const (
	headerSize = 4
	refSize    = 5
)

func refOffset(slot int) int64 { return headerSize + int64(slot)*refSize }

// keyRefs is the key-reference array: a 4-byte key count followed by one
// 5-byte postings offset per key in sorted key order.
type keyRefs struct {
	s store.Store
}

func (k keyRefs) count() (int, error) {
	n, err := store.Read4(k.s, 0)
	if err != nil {
		return 0, apperr.Wrap(apperr.ErrIO, err, "reading key count")
	}
	return int(n), nil
}

func (k keyRefs) setCount(n int) error {
	return apperr.Wrap(apperr.ErrIO, store.Write4(k.s, 0, uint32(n)), "writing key count")
}

func (k keyRefs) at(slot int) int64 {
	off, err := store.Read5(k.s, refOffset(slot))
	if err != nil {
		panic(apperr.Newf(apperr.ErrCorrupt, "reading reference of slot %d: %v", slot, err))
	}
	return off
}

func (k keyRefs) set(slot int, off int64) error {
	if err := checkOffset(off); err != nil {
		return err
	}
	return apperr.Wrap(apperr.ErrIO, store.Write5(k.s, refOffset(slot), off), "writing key reference")
}

func (k keyRefs) read(from, to int) ([]byte, error) {
	buf := make([]byte, (to-from)*refSize)
	if len(buf) == 0 {
		return buf, nil
	}
	if _, err := k.s.ReadAt(buf, refOffset(from)); err != nil {
		return nil, apperr.Wrap(apperr.ErrIO, err, "reading key references")
	}
	return buf, nil
}

// insert places offs[j] before the existing slot points[j] of an array of
// n references. points must be non-decreasing. Every existing reference
// from points[0] on moves exactly once, right to left.
func (k keyRefs) insert(n int, points []int, offs []int64) error {
	if len(points) == 0 {
		return nil
	}
	for _, off := range offs {
		if err := checkOffset(off); err != nil {
			return err
		}
	}
	p0 := points[0]
	tail, err := k.read(p0, n)
	if err != nil {
		return err
	}
	out := make([]byte, len(tail)+len(points)*refSize)
	w := len(out)/refSize - 1
	r := n - 1
	for j := len(points) - 1; j >= 0; j-- {
		for ; r >= points[j]; r-- {
			copy(out[w*refSize:], tail[(r-p0)*refSize:(r-p0+1)*refSize])
			w--
		}
		store.Put5(out[w*refSize:], offs[j])
		w--
	}
	if _, err := k.s.WriteAt(out, refOffset(p0)); err != nil {
		return apperr.Wrap(apperr.ErrIO, err, "shifting key references")
	}
	return nil
}

// remove compacts the given ascending slots out of an array of n references
// and truncates the store to the new length.
func (k keyRefs) remove(n int, slots []int) error {
	if len(slots) == 0 {
		return nil
	}
	p0 := slots[0]
	tail, err := k.read(p0, n)
	if err != nil {
		return err
	}
	out := tail[:0]
	j := 0
	for r := p0; r < n; r++ {
		if j < len(slots) && slots[j] == r {
			j++
			continue
		}
		out = append(out, tail[(r-p0)*refSize:(r-p0+1)*refSize]...)
	}
	if _, err := k.s.WriteAt(out, refOffset(p0)); err != nil {
		return apperr.Wrap(apperr.ErrIO, err, "compacting key references")
	}
	return apperr.Wrap(apperr.ErrIO, k.s.Truncate(refOffset(n-len(slots))), "truncating key references")
}

func checkOffset(off int64) error {
	if off > store.Max5 {
		return apperr.Newf(apperr.ErrIO, "postings offset %d exceeds 5-byte range", off)
	}
	return nil
}
