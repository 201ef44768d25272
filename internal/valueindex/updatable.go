package valueindex

import (
	"bytes"
	"log/slog"
	"os"
	"slices"
	"sort"
	"time"

	"github.com/Adithya-Monish-Kumar-K/valueindex/internal/primary"
	"github.com/Adithya-Monish-Kumar-K/valueindex/internal/store"
	apperr "github.com/Adithya-Monish-Kumar-K/valueindex/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/valueindex/pkg/logger"
)

// Updatable is an index maintained in place. Posting blocks are rewritten by
// appending to the postings file and repointing the key reference; the old
// block stays behind as garbage.
//
// Mutations dereference existing keys through the primary table, so callers
// apply deletes and replaces while the affected nodes still carry their old
// values, and inserts once the new nodes exist.
type Updatable struct {
	*Reader
	log *slog.Logger
}

// OpenUpdatable opens the index described by opts for reading and writing,
// creating an empty one if no files exist yet.
func OpenUpdatable(tbl primary.Table, opts Options) (*Updatable, error) {
	opts = opts.norm()
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, apperr.Wrap(apperr.ErrIO, err, "creating index directory")
	}
	lists, refs, err := openFiles(opts, true)
	if err != nil {
		return nil, err
	}
	if refs.Size() == 0 {
		if err := initEmpty(lists, refs); err != nil {
			lists.Close()
			refs.Close()
			return nil, err
		}
	}
	r, err := newReader(tbl, opts, lists, refs)
	if err != nil {
		lists.Close()
		refs.Close()
		return nil, err
	}
	r.slots = newSlotKeys(r.size)
	u := &Updatable{
		Reader: r,
		log:    logger.WithComponent("value-index").With("document", opts.Document, "index", opts.Type.String()),
	}
	if err := u.reclaim(); err != nil {
		r.Close()
		return nil, err
	}
	return u, nil
}

// reclaim removes slots left emptied by an earlier session. Their keys were
// only known in memory, so no caller can name them to DeleteKeys any more.
func (u *Updatable) reclaim() error {
	var empty []int
	for slot := 0; slot < u.size; slot++ {
		count, err := readCount(u.lists, u.refs.at(slot))
		if err != nil {
			return err
		}
		if count == 0 {
			empty = append(empty, slot)
		}
	}
	if len(empty) == 0 {
		return nil
	}
	if err := u.refs.remove(u.size, empty); err != nil {
		return err
	}
	u.slots.remove(empty)
	u.size -= len(empty)
	if err := u.refs.setCount(u.size); err != nil {
		return err
	}
	u.log.Info("reclaimed emptied keys", "count", len(empty))
	return apperr.Wrap(apperr.ErrIO, u.refs.s.Flush(), "reclaiming emptied keys")
}

func initEmpty(lists, refs store.Store) error {
	if lists.Size() != 0 {
		return apperr.New(apperr.ErrCorrupt, "postings present without key references")
	}
	if err := (keyRefs{refs}).setCount(0); err != nil {
		return err
	}
	return apperr.Wrap(apperr.ErrIO, refs.Flush(), "initialising key references")
}

func (u *Updatable) tooLong(key []byte) bool { return len(key) > u.opts.MaxLen }

func (u *Updatable) checkOpen() error {
	if u.closed {
		return apperr.ErrClosed
	}
	return nil
}

// Insert adds id under key. Inserting an id already present is a no-op.
func (u *Updatable) Insert(key []byte, id int) error {
	if u.tooLong(key) {
		return nil
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	if err := u.checkOpen(); err != nil {
		return err
	}
	return u.insert(key, id)
}

func (u *Updatable) insert(key []byte, id int) error {
	if id < 0 {
		return apperr.Newf(apperr.ErrInvalidInput, "negative id %d", id)
	}
	slot, found, err := u.search(key, 0, u.size)
	if err != nil {
		return err
	}
	if !found {
		off, err := u.appendBlock([]int{id})
		if err != nil {
			return err
		}
		if err := u.insertSlots([]int{slot}, []int64{off}, [][]byte{key}); err != nil {
			return err
		}
		u.cache.put(key, 1, off)
		u.log.Debug("key added", "slot", slot, "id", id)
		u.opts.Metrics.Mutation(u.name(), "insert")
		return nil
	}
	ids, err := readPostings(u.lists, u.refs.at(slot))
	if err != nil {
		return err
	}
	i, present := slices.BinarySearch(ids, id)
	if present {
		return nil
	}
	return u.rewrite(slot, key, slices.Insert(ids, i, id), "insert")
}

// rewrite appends a new block for the key at slot and repoints the slot.
func (u *Updatable) rewrite(slot int, key []byte, ids []int, op string) error {
	off, err := u.appendBlock(ids)
	if err != nil {
		return err
	}
	u.slots.set(slot, key)
	if err := u.refs.set(slot, off); err != nil {
		return err
	}
	u.cache.put(key, len(ids), off)
	u.log.Debug("postings rewritten", "op", op, "slot", slot, "count", len(ids))
	u.opts.Metrics.Mutation(u.name(), op)
	return nil
}

func (u *Updatable) appendBlock(ids []int) (int64, error) {
	off, err := u.lists.Append(encodePostings(nil, ids))
	if err != nil {
		return 0, apperr.Wrap(apperr.ErrIO, err, "appending postings")
	}
	return off, checkOffset(off)
}

// insertSlots places new keys before the given non-decreasing slots and
// updates the key count.
func (u *Updatable) insertSlots(points []int, offs []int64, keys [][]byte) error {
	if err := u.refs.insert(u.size, points, offs); err != nil {
		return err
	}
	u.slots.insert(points, keys)
	u.size += len(points)
	u.opts.Metrics.SetKeys(u.name(), u.size)
	return u.refs.setCount(u.size)
}

// Delete removes ids from the postings of key and returns the key's slot.
// When no id remains the slot keeps an empty block and empty is true; the
// caller then removes the slot with DeleteKeys. Absent keys report slot -1.
func (u *Updatable) Delete(key []byte, ids []int) (slot int, empty bool, err error) {
	if u.tooLong(key) {
		return -1, false, nil
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	if err := u.checkOpen(); err != nil {
		return -1, false, err
	}
	return u.delete(key, ids)
}

func (u *Updatable) delete(key []byte, drop []int) (int, bool, error) {
	slot, found, err := u.search(key, 0, u.size)
	if err != nil || !found {
		return -1, false, err
	}
	old, err := readPostings(u.lists, u.refs.at(slot))
	if err != nil {
		return -1, false, err
	}
	kept := subtract(old, sortedUnique(slices.Clone(drop)))
	if len(kept) == len(old) {
		return slot, len(old) == 0, nil
	}
	if err := u.rewrite(slot, key, kept, "delete"); err != nil {
		return -1, false, err
	}
	if len(kept) == 0 {
		u.cache.remove(key)
		return slot, true, nil
	}
	return slot, false, nil
}

// DeleteKeys removes the given slots, ascending and distinct, from the key
// array in a single compaction pass.
func (u *Updatable) DeleteKeys(slots []int) error {
	if len(slots) == 0 {
		return nil
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	if err := u.checkOpen(); err != nil {
		return err
	}
	return u.deleteKeys(slots)
}

func (u *Updatable) deleteKeys(slots []int) error {
	if len(slots) == 0 {
		return nil
	}
	for i, s := range slots {
		if s < 0 || s >= u.size || (i > 0 && s <= slots[i-1]) {
			return apperr.Newf(apperr.ErrInvalidInput, "key slots must be ascending, distinct and below %d", u.size)
		}
	}
	for _, s := range slots {
		key, err := u.keyAt(s, nil)
		if err != nil {
			return err
		}
		if key != nil {
			u.cache.remove(key)
		}
	}
	if err := u.refs.remove(u.size, slots); err != nil {
		return err
	}
	u.slots.remove(slots)
	u.size -= len(slots)
	u.opts.Metrics.SetKeys(u.name(), u.size)
	u.log.Debug("keys removed", "count", len(slots))
	u.opts.Metrics.Mutation(u.name(), "delete_keys")
	return u.refs.setCount(u.size)
}

// Replace moves id from oldKey to newKey, removing oldKey when it empties.
func (u *Updatable) Replace(oldKey, newKey []byte, id int) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if err := u.checkOpen(); err != nil {
		return err
	}
	if !u.tooLong(oldKey) {
		slot, empty, err := u.delete(oldKey, []int{id})
		if err != nil {
			return err
		}
		if empty {
			if err := u.deleteKeys([]int{slot}); err != nil {
				return err
			}
		}
	}
	if u.tooLong(newKey) {
		return nil
	}
	return u.insert(newKey, id)
}

// BatchIndex merges a batch of key -> ids into the index. Keys are visited
// in ascending order with a lower search bound that only advances, and all
// new keys are placed in one right-to-left pass over the key array.
func (u *Updatable) BatchIndex(entries map[string][]int) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if err := u.checkOpen(); err != nil {
		return err
	}

	keys := make([]string, 0, len(entries))
	for k, ids := range entries {
		if len(k) > u.opts.MaxLen || len(ids) == 0 {
			continue
		}
		if i := slices.IndexFunc(ids, func(id int) bool { return id < 0 }); i >= 0 {
			return apperr.Newf(apperr.ErrInvalidInput, "negative id %d for key %q", ids[i], k)
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var (
		points  []int
		offs    []int64
		added   [][]byte
		counts  []int
		lo      int
		updated int
	)
	for _, k := range keys {
		key := []byte(k)
		ids := sortedUnique(slices.Clone(entries[k]))
		slot, found, err := u.search(key, lo, u.size)
		if err != nil {
			return err
		}
		if !found {
			off, err := u.appendBlock(ids)
			if err != nil {
				return err
			}
			points = append(points, slot)
			offs = append(offs, off)
			added = append(added, key)
			counts = append(counts, len(ids))
			lo = slot
			continue
		}
		old, err := readPostings(u.lists, u.refs.at(slot))
		if err != nil {
			return err
		}
		if merged := union(old, ids); len(merged) != len(old) {
			if err := u.rewrite(slot, key, merged, "batch"); err != nil {
				return err
			}
			updated++
		}
		lo = slot + 1
	}
	if err := u.insertSlots(points, offs, added); err != nil {
		return err
	}
	for i, key := range added {
		u.cache.put(key, counts[i], offs[i])
	}
	u.log.Debug("batch indexed", "keys", len(keys), "added", len(added), "updated", updated)
	if len(added) > 0 {
		u.opts.Metrics.Mutation(u.name(), "batch_insert")
	}
	return nil
}

// StringRange returns the positions of all nodes whose value lies between
// min and max in byte order, with either bound inclusive or exclusive.
func (u *Updatable) StringRange(min, max []byte, minInclusive, maxInclusive bool) (*Iterator, error) {
	defer u.opts.Metrics.ObserveLookup(u.name(), "string_range", time.Now())
	u.mu.Lock()
	defer u.mu.Unlock()
	if err := u.checkOpen(); err != nil {
		return nil, err
	}
	slot, found, err := u.search(min, 0, u.size)
	if err != nil {
		return nil, err
	}
	if found && !minInclusive {
		slot++
	}
	var pos []int
	for ; slot < u.size; slot++ {
		key, err := u.keyAt(slot, nil)
		if err != nil {
			return nil, err
		}
		if key == nil {
			continue
		}
		if c := bytes.Compare(key, max); c > 0 || (c == 0 && !maxInclusive) {
			break
		}
		ids, err := readPostings(u.lists, u.refs.at(slot))
		if err != nil {
			return nil, err
		}
		if pos, err = u.positions(ids, pos); err != nil {
			return nil, err
		}
	}
	return newIterator(sortedUnique(pos)), nil
}

// Flush pushes buffered appends to the files.
func (u *Updatable) Flush() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if err := u.checkOpen(); err != nil {
		return err
	}
	return apperr.Wrap(apperr.ErrIO, apperr.Join(u.lists.Flush(), u.refs.s.Flush()), "flushing index")
}
