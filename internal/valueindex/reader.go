// Package valueindex implements the disk-resident secondary value index of
// the document store. It maps each distinct text or attribute value to the
// ascending list of node ids carrying it, and stores keys only implicitly:
// the key of a slot is recovered by reading the value of the first node in
// its posting list from the primary table.
package valueindex

import (
	"bytes"
	"math"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/valueindex/internal/primary"
	"github.com/Adithya-Monish-Kumar-K/valueindex/internal/store"
	apperr "github.com/Adithya-Monish-Kumar-K/valueindex/pkg/errors"
)

// Unbounded is returned by Count for keys too long to have been indexed.
const Unbounded = math.MaxInt

// Reader answers queries against a built index. Calls are serialized.
type Reader struct {
	mu     sync.Mutex
	opts   Options
	tbl    primary.Table
	lists  store.Store
	refs   keyRefs
	size   int
	cache  *lookupCache
	slots  *slotKeys
	closed bool
}

// Stats describes the state of an open index.
type Stats struct {
	Type          string
	Keys          int
	PostingsBytes int64
	CacheEntries  int
	CacheHits     int64
	CacheMisses   int64
}

// Open opens the static index described by opts over tbl.
func Open(tbl primary.Table, opts Options) (*Reader, error) {
	opts = opts.norm()
	var (
		lists, refs store.Store
		err         error
	)
	if opts.Mmap {
		lists, refs, err = openMapped(opts)
	} else {
		lists, refs, err = openFiles(opts, false)
	}
	if err != nil {
		return nil, err
	}
	r, err := newReader(tbl, opts, lists, refs)
	if err != nil {
		lists.Close()
		refs.Close()
		return nil, err
	}
	if opts.CacheKeys {
		r.slots = newSlotKeys(r.size)
	}
	return r, nil
}

func openFiles(opts Options, create bool) (lists, refs store.Store, err error) {
	if !create {
		for _, p := range []string{opts.listsPath(), opts.refsPath()} {
			if _, err := os.Stat(p); err != nil {
				if os.IsNotExist(err) {
					return nil, nil, apperr.Wrap(apperr.ErrNotIndexed, err, "opening "+opts.Type.String()+" index")
				}
				return nil, nil, apperr.Wrap(apperr.ErrIO, err, "opening index")
			}
		}
	}
	lf, err := store.OpenFile(opts.listsPath())
	if err != nil {
		return nil, nil, apperr.Wrap(apperr.ErrIO, err, "opening postings")
	}
	rf, err := store.OpenFile(opts.refsPath())
	if err != nil {
		lf.Close()
		return nil, nil, apperr.Wrap(apperr.ErrIO, err, "opening key references")
	}
	return lf, rf, nil
}

func openMapped(opts Options) (lists, refs store.Store, err error) {
	lm, err := store.OpenMapped(opts.listsPath())
	if err != nil {
		return nil, nil, notIndexed(opts, err)
	}
	rm, err := store.OpenMapped(opts.refsPath())
	if err != nil {
		lm.Close()
		return nil, nil, notIndexed(opts, err)
	}
	return lm, rm, nil
}

func notIndexed(opts Options, err error) error {
	if apperr.Is(err, os.ErrNotExist) {
		return apperr.Wrap(apperr.ErrNotIndexed, err, "opening "+opts.Type.String()+" index")
	}
	return apperr.Wrap(apperr.ErrIO, err, "opening index")
}

func newReader(tbl primary.Table, opts Options, lists, refs store.Store) (*Reader, error) {
	kr := keyRefs{refs}
	if refs.Size() < headerSize {
		return nil, apperr.Newf(apperr.ErrCorrupt, "key reference file of %d bytes has no header", refs.Size())
	}
	n, err := kr.count()
	if err != nil {
		return nil, err
	}
	if want := refOffset(n); refs.Size() != want {
		return nil, apperr.Newf(apperr.ErrCorrupt, "key count %d needs %d reference bytes, file has %d", n, want, refs.Size())
	}
	return &Reader{
		opts:  opts,
		tbl:   tbl,
		lists: lists,
		refs:  kr,
		size:  n,
		cache: newLookupCache(opts.LookupCacheSize),
	}, nil
}

func (r *Reader) name() string { return r.opts.Document + "/" + r.opts.Type.String() }

// Size reports the number of distinct keys.
func (r *Reader) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.size
}

// Lookup returns the positions of all nodes whose value equals key.
func (r *Reader) Lookup(key []byte) (*Iterator, error) {
	defer r.opts.Metrics.ObserveLookup(r.name(), "lookup", time.Now())
	if len(key) > r.opts.MaxLen {
		return emptyIterator, nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, apperr.ErrClosed
	}
	ids, err := r.postingsOf(key)
	if err != nil {
		return nil, err
	}
	pos, err := r.positions(ids, nil)
	if err != nil {
		return nil, err
	}
	return newIterator(pos), nil
}

// postingsOf resolves key through the lookup cache or a search.
func (r *Reader) postingsOf(key []byte) ([]int, error) {
	if _, off, ok := r.cache.get(key); ok {
		r.opts.Metrics.CacheHit(r.name())
		return readPostings(r.lists, off)
	}
	r.opts.Metrics.CacheMiss(r.name())
	slot, found, err := r.search(key, 0, r.size)
	if err != nil || !found {
		return nil, err
	}
	off := r.refs.at(slot)
	ids, err := readPostings(r.lists, off)
	if err != nil {
		return nil, err
	}
	r.cache.put(key, len(ids), off)
	return ids, nil
}

// Count returns the number of nodes whose value equals key, or Unbounded
// when key is too long to have been indexed.
func (r *Reader) Count(key []byte) (int, error) {
	defer r.opts.Metrics.ObserveLookup(r.name(), "count", time.Now())
	if len(key) > r.opts.MaxLen {
		return Unbounded, nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return 0, apperr.ErrClosed
	}
	if count, _, ok := r.cache.get(key); ok {
		r.opts.Metrics.CacheHit(r.name())
		return count, nil
	}
	r.opts.Metrics.CacheMiss(r.name())
	slot, found, err := r.search(key, 0, r.size)
	if err != nil || !found {
		return 0, err
	}
	off := r.refs.at(slot)
	count, err := readCount(r.lists, off)
	if err != nil {
		return 0, err
	}
	r.cache.put(key, count, off)
	return count, nil
}

// NumericRange returns the positions of all nodes whose value parses as a
// number in [min, max]. Every key is examined; with IntegerKeys set and an
// integer range of one digit length the scan stops at the first key of that
// length above max.
func (r *Reader) NumericRange(min, max float64) (*Iterator, error) {
	defer r.opts.Metrics.ObserveLookup(r.name(), "numeric_range", time.Now())
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, apperr.ErrClosed
	}
	digits := 0
	if r.opts.IntegerKeys {
		digits = sameDigits(min, max)
	}
	var pos []int
	for slot := 0; slot < r.size; slot++ {
		key, err := r.keyAt(slot, nil)
		if err != nil {
			return nil, err
		}
		if key == nil {
			continue
		}
		v, ok := parseNumber(key)
		if !ok {
			continue
		}
		if v >= min && v <= max {
			ids, err := readPostings(r.lists, r.refs.at(slot))
			if err != nil {
				return nil, err
			}
			if pos, err = r.positions(ids, pos); err != nil {
				return nil, err
			}
		} else if digits > 0 && v > max && len(key) == digits {
			break
		}
	}
	return newIterator(sortedUnique(pos)), nil
}

// sameDigits returns the shared decimal length of min and max when both are
// non-negative integers of the same length, and zero otherwise.
func sameDigits(min, max float64) int {
	if min < 0 || max < 0 || min != math.Trunc(min) || max != math.Trunc(max) || max >= 1e15 {
		return 0
	}
	a := len(strconv.FormatInt(int64(min), 10))
	if b := len(strconv.FormatInt(int64(max), 10)); a != b {
		return 0
	}
	return a
}

func parseNumber(key []byte) (float64, bool) {
	v, err := strconv.ParseFloat(string(bytes.TrimSpace(key)), 64)
	if err != nil || math.IsNaN(v) {
		return 0, false
	}
	return v, true
}

// Keys calls fn for every key in sorted order with its posting count until
// fn returns false.
func (r *Reader) Keys(fn func(key []byte, count int) bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return apperr.ErrClosed
	}
	for slot := 0; slot < r.size; slot++ {
		key, err := r.keyAt(slot, nil)
		if err != nil {
			return err
		}
		if key == nil {
			continue
		}
		count, err := readCount(r.lists, r.refs.at(slot))
		if err != nil {
			return err
		}
		if !fn(key, count) {
			return nil
		}
	}
	return nil
}

func (r *Reader) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	st := Stats{Type: r.opts.Type.String(), Keys: r.size}
	if !r.closed {
		st.PostingsBytes = r.lists.Size()
	}
	st.CacheEntries, st.CacheHits, st.CacheMisses = r.cache.stats()
	return st
}

// Close releases the underlying stores. Further calls return ErrClosed.
func (r *Reader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return apperr.ErrClosed
	}
	r.closed = true
	r.cache.clear()
	return apperr.Join(r.lists.Close(), r.refs.s.Close())
}

// search binary-searches [lo, hi) for the first slot whose key is not less
// than key. Derived keys are memoized for the duration of the call. Emptied
// slots whose key is unknown are passed over as if absent.
func (r *Reader) search(key []byte, lo, hi int) (slot int, found bool, err error) {
	seen := make(map[int][]byte)
	for lo < hi {
		mid := int(uint(lo+hi) >> 1)
		j, k, err := r.keyFrom(mid, hi, seen)
		if err != nil {
			return 0, false, err
		}
		if j < hi && bytes.Compare(k, key) < 0 {
			lo = j + 1
		} else {
			hi = mid
		}
	}
	j, k, err := r.keyFrom(lo, r.size, seen)
	if err != nil {
		return 0, false, err
	}
	if j < r.size && bytes.Equal(k, key) {
		return j, true, nil
	}
	return lo, false, nil
}

// keyFrom returns the first slot in [slot, hi) with a known key, or hi.
func (r *Reader) keyFrom(slot, hi int, seen map[int][]byte) (int, []byte, error) {
	for ; slot < hi; slot++ {
		k, err := r.keyAt(slot, seen)
		if err != nil || k != nil {
			return slot, k, err
		}
	}
	return hi, nil, nil
}

// keyAt derives the key of slot from the value of the first node in its
// posting list, consulting the slot cache and the per-search memo first.
// An emptied slot has no first node; unless its key is cached, keyAt
// returns a nil key for it.
func (r *Reader) keyAt(slot int, seen map[int][]byte) ([]byte, error) {
	if k := r.slots.get(slot); k != nil {
		return k, nil
	}
	if k, ok := seen[slot]; ok {
		return k, nil
	}
	count, first, err := readFirst(r.lists, r.refs.at(slot))
	if err != nil || count == 0 {
		return nil, err
	}
	pos, err := r.position(first)
	if err != nil {
		return nil, err
	}
	k := cloneKey(r.tbl.Content(pos, r.opts.Type.text()))
	if r.slots != nil {
		r.slots.keys[slot] = k
	}
	if seen != nil {
		seen[slot] = k
	}
	return k, nil
}

// position maps a stored id to its current structural position.
func (r *Reader) position(id int) (int, error) {
	if !r.opts.PersistentIDs {
		return id, nil
	}
	pos := r.tbl.PosOf(id)
	if pos < 0 {
		return 0, apperr.Newf(apperr.ErrCorrupt, "indexed id %d is unknown to the primary table", id)
	}
	return pos, nil
}

func (r *Reader) positions(ids []int, dst []int) ([]int, error) {
	for _, id := range ids {
		pos, err := r.position(id)
		if err != nil {
			return nil, err
		}
		dst = append(dst, pos)
	}
	return dst, nil
}

// idOf maps a structural position to the id stored in posting lists.
func (r *Reader) idOf(pos int) int {
	if r.opts.PersistentIDs {
		return r.tbl.IDOf(pos)
	}
	return pos
}
