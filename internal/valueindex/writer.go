package valueindex

import (
	"github.com/Adithya-Monish-Kumar-K/valueindex/internal/store"
	apperr "github.com/Adithya-Monish-Kumar-K/valueindex/pkg/errors"
)

// indexWriter emits the final postings and key-reference files in one
// sequential pass. The key count header is written last.
type indexWriter struct {
	lists store.Store
	refs  store.Store
	keys  int
	bytes int64
	buf   []byte
	ref   [refSize]byte
}

func newIndexWriter(lists, refs store.Store) (*indexWriter, error) {
	var header [headerSize]byte
	if _, err := refs.Append(header[:]); err != nil {
		return nil, apperr.Wrap(apperr.ErrIO, err, "writing key count placeholder")
	}
	return &indexWriter{lists: lists, refs: refs}, nil
}

// add appends the posting block of the next key in sorted order.
func (w *indexWriter) add(ids []int) error {
	w.buf = encodePostings(w.buf[:0], ids)
	off, err := w.lists.Append(w.buf)
	if err != nil {
		return apperr.Wrap(apperr.ErrIO, err, "appending postings")
	}
	if err := checkOffset(off); err != nil {
		return err
	}
	store.Put5(w.ref[:], off)
	if _, err := w.refs.Append(w.ref[:]); err != nil {
		return apperr.Wrap(apperr.ErrIO, err, "appending key reference")
	}
	w.keys++
	w.bytes += int64(len(w.buf))
	return nil
}

func (w *indexWriter) finish() error {
	if err := w.lists.Flush(); err != nil {
		return apperr.Wrap(apperr.ErrIO, err, "flushing postings")
	}
	if err := (keyRefs{w.refs}).setCount(w.keys); err != nil {
		return err
	}
	return apperr.Wrap(apperr.ErrIO, w.refs.Flush(), "flushing key references")
}
