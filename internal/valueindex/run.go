package valueindex

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/golang/snappy"

	apperr "github.com/Adithya-Monish-Kumar-K/valueindex/pkg/errors"
)

// A run is one spilled staging batch: a keys file holding length-prefixed
// keys in sorted order and a paired postings file holding, per key, the
// count followed by absolute ids in discovery order.

type runFile struct {
	f   *os.File
	buf *bufio.Writer
	snp *snappy.Writer
	w   io.Writer
}

func createRunFile(path string, compress bool) (*runFile, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrIO, err, "creating run file")
	}
	rf := &runFile{f: f}
	if compress {
		rf.snp = snappy.NewBufferedWriter(f)
		rf.w = rf.snp
	} else {
		rf.buf = bufio.NewWriterSize(f, 64<<10)
		rf.w = rf.buf
	}
	return rf, nil
}

func (rf *runFile) close() error {
	var err error
	if rf.snp != nil {
		err = rf.snp.Close()
	} else {
		err = rf.buf.Flush()
	}
	if cerr := rf.f.Close(); err == nil {
		err = cerr
	}
	return apperr.Wrap(apperr.ErrIO, err, "closing run file")
}

// writeRun spills st, sorted by key, to the run files at the given paths
// and returns the number of keys written.
func writeRun(st *staging, listsPath, keysPath string, compress bool) (n int, err error) {
	lists, err := createRunFile(listsPath, compress)
	if err != nil {
		return 0, err
	}
	keys, err := createRunFile(keysPath, compress)
	if err != nil {
		lists.close()
		return 0, err
	}
	defer func() {
		lerr := lists.close()
		kerr := keys.close()
		if err == nil {
			err = errors.Join(lerr, kerr)
		}
	}()

	var buf []byte
	for _, i := range st.sorted() {
		buf = AppendNum(buf[:0], uint64(len(st.keys[i])))
		buf = append(buf, st.keys[i]...)
		if _, err := keys.w.Write(buf); err != nil {
			return n, apperr.Wrap(apperr.ErrIO, err, "writing run keys")
		}
		ids := st.ids[i]
		buf = AppendNum(buf[:0], uint64(len(ids)))
		for _, id := range ids {
			buf = AppendNum(buf, uint64(id))
		}
		if _, err := lists.w.Write(buf); err != nil {
			return n, apperr.Wrap(apperr.ErrIO, err, "writing run postings")
		}
		n++
	}
	return n, nil
}

// runCursor reads a run back one key at a time.
type runCursor struct {
	seq   int
	lists *os.File
	keys  *os.File
	lr    *bufio.Reader
	kr    *bufio.Reader

	key []byte
	ids []int
}

func openRun(seq int, listsPath, keysPath string, compress bool) (*runCursor, error) {
	lists, err := os.Open(listsPath)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrIO, err, "opening run postings")
	}
	keys, err := os.Open(keysPath)
	if err != nil {
		lists.Close()
		return nil, apperr.Wrap(apperr.ErrIO, err, "opening run keys")
	}
	c := &runCursor{seq: seq, lists: lists, keys: keys}
	var lr, kr io.Reader = lists, keys
	if compress {
		lr, kr = snappy.NewReader(lists), snappy.NewReader(keys)
	}
	c.lr = bufio.NewReaderSize(lr, 32<<10)
	c.kr = bufio.NewReaderSize(kr, 32<<10)
	return c, nil
}

// next loads the following key and its ids. It returns false at the end of
// the run.
func (c *runCursor) next() (bool, error) {
	if _, err := c.kr.Peek(1); err != nil {
		if errors.Is(err, io.EOF) {
			return false, nil
		}
		return false, apperr.Wrap(apperr.ErrIO, err, fmt.Sprintf("reading run %d", c.seq))
	}
	n, err := readInt(c.kr)
	if err != nil {
		return false, err
	}
	if cap(c.key) < n {
		c.key = make([]byte, n)
	}
	c.key = c.key[:n]
	if _, err := io.ReadFull(c.kr, c.key); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			panic(apperr.Newf(apperr.ErrCorrupt, "run %d: truncated key", c.seq))
		}
		return false, apperr.Wrap(apperr.ErrIO, err, "reading run key")
	}
	count, err := readInt(c.lr)
	if err != nil {
		return false, err
	}
	c.ids = c.ids[:0]
	for i := 0; i < count; i++ {
		id, err := readInt(c.lr)
		if err != nil {
			return false, err
		}
		c.ids = append(c.ids, id)
	}
	return true, nil
}

func (c *runCursor) close() error {
	return errors.Join(c.lists.Close(), c.keys.Close())
}
