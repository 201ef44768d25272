package valueindex

import (
	"bytes"
	"context"
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/valueindex/internal/primary"
	apperr "github.com/Adithya-Monish-Kumar-K/valueindex/pkg/errors"
)

func openEmpty(t testing.TB, tbl primary.Table) *Updatable {
	t.Helper()
	u, err := OpenUpdatable(tbl, testOptions(t))
	require.NoError(t, err)
	t.Cleanup(func() { u.Close() })
	return u
}

func lookup(t testing.TB, u *Updatable, key string) []int {
	t.Helper()
	return collectOf(t)(u.Lookup([]byte(key)))
}

// assertSorted checks that the key array is strictly ascending.
func assertSorted(t testing.TB, r *Reader) {
	t.Helper()
	var prev []byte
	first := true
	require.NoError(t, r.Keys(func(key []byte, _ int) bool {
		if !first {
			assert.Negative(t, bytes.Compare(prev, key), "%q before %q", prev, key)
		}
		prev, first = key, false
		return true
	}))
}

func TestUpdatableLifecycle(t *testing.T) {
	u := openEmpty(t, tableOf(0, nil))
	key := []byte("x")

	require.NoError(t, u.Insert(key, 100))
	assert.Equal(t, []int{100}, lookup(t, u, "x"))
	require.NoError(t, u.Insert(key, 50))
	assert.Equal(t, []int{50, 100}, lookup(t, u, "x"))

	slot, empty, err := u.Delete(key, []int{100})
	require.NoError(t, err)
	assert.False(t, empty)
	assert.Equal(t, 0, slot)
	assert.Equal(t, []int{50}, lookup(t, u, "x"))

	slot, empty, err = u.Delete(key, []int{50})
	require.NoError(t, err)
	require.True(t, empty)
	assert.Empty(t, lookup(t, u, "x"))
	assert.Equal(t, 1, u.Size(), "emptied key awaits compaction")

	require.NoError(t, u.DeleteKeys([]int{slot}))
	assert.Zero(t, u.Size())
	assert.Empty(t, lookup(t, u, "x"))
	count, err := u.Count(key)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestUpdatableNoOps(t *testing.T) {
	u := openEmpty(t, tableOf(0, nil))
	require.NoError(t, u.Insert([]byte("k"), 3))
	require.NoError(t, u.Insert([]byte("k"), 3))
	assert.Equal(t, []int{3}, lookup(t, u, "k"))

	slot, empty, err := u.Delete([]byte("k"), []int{99})
	require.NoError(t, err)
	assert.False(t, empty)
	assert.Equal(t, 0, slot)

	slot, empty, err = u.Delete([]byte("absent"), []int{3})
	require.NoError(t, err)
	assert.False(t, empty)
	assert.Equal(t, -1, slot)

	long := bytes.Repeat([]byte("z"), 200)
	require.NoError(t, u.Insert(long, 1))
	assert.Equal(t, 1, u.Size())

	assert.ErrorIs(t, u.Insert([]byte("k"), -1), apperr.ErrInvalidInput)
	assert.ErrorIs(t, u.DeleteKeys([]int{4}), apperr.ErrInvalidInput)
}

func TestUpdatableReplace(t *testing.T) {
	u := openEmpty(t, tableOf(0, nil))
	require.NoError(t, u.Insert([]byte("old"), 7))
	require.NoError(t, u.Insert([]byte("new"), 3))
	require.NoError(t, u.Insert([]byte("old"), 8))

	require.NoError(t, u.Replace([]byte("old"), []byte("new"), 7))
	assert.Equal(t, []int{8}, lookup(t, u, "old"))
	assert.Equal(t, []int{3, 7}, lookup(t, u, "new"))

	require.NoError(t, u.Replace([]byte("old"), []byte("new"), 8))
	assert.Empty(t, lookup(t, u, "old"))
	assert.Equal(t, []int{3, 7, 8}, lookup(t, u, "new"))
	assert.Equal(t, 1, u.Size(), "emptied old key is removed")
	assertSorted(t, u.Reader)
}

func TestUpdatableKeepsKeysSorted(t *testing.T) {
	u := openEmpty(t, tableOf(0, nil))
	for i, k := range []string{"m", "c", "x", "a", "p", "c", "b"} {
		require.NoError(t, u.Insert([]byte(k), i))
	}
	assert.Equal(t, []string{"a", "b", "c", "m", "p", "x"}, keysOf(t, u.Reader))

	var emptied []int
	for _, k := range []string{"b", "p"} {
		ids := lookup(t, u, k)
		slot, empty, err := u.Delete([]byte(k), ids)
		require.NoError(t, err)
		require.True(t, empty)
		emptied = append(emptied, slot)
	}
	require.NoError(t, u.DeleteKeys(emptied))
	assert.Equal(t, []string{"a", "c", "m", "x"}, keysOf(t, u.Reader))
	assert.Equal(t, []int{1, 5}, lookup(t, u, "c"))
}

func TestBatchIndex(t *testing.T) {
	u := openEmpty(t, tableOf(0, nil))
	require.NoError(t, u.Insert([]byte("b"), 20))
	require.NoError(t, u.Insert([]byte("d"), 40))

	require.NoError(t, u.BatchIndex(map[string][]int{
		"a": {1},
		"b": {2, 2},
		"c": {3},
		"e": {5, 4},
		"":  {},
	}))
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, keysOf(t, u.Reader))
	assert.Equal(t, []int{2, 20}, lookup(t, u, "b"))
	assert.Equal(t, []int{4, 5}, lookup(t, u, "e"))
	assert.Equal(t, []int{40}, lookup(t, u, "d"))
}

func TestBatchEquivalentToInserts(t *testing.T) {
	batch := map[string][]int{"a": {1}, "b": {2}, "c": {3}}
	orders := [][]string{{"a", "b", "c"}, {"c", "b", "a"}, {"b", "c", "a"}}

	bu, err := OpenUpdatable(tableOf(0, nil), testOptions(t))
	require.NoError(t, err)
	require.NoError(t, bu.BatchIndex(batch))
	require.NoError(t, bu.Flush())
	defer bu.Close()
	want := snapshot(t, bu)

	for _, order := range orders {
		u := openEmpty(t, tableOf(0, nil))
		for _, k := range order {
			require.NoError(t, u.Insert([]byte(k), batch[k][0]))
		}
		assert.Equal(t, want, snapshot(t, u), "order %v", order)
	}
}

// snapshot is the logical state of an index: every key with its ids.
func snapshot(t testing.TB, u *Updatable) map[string][]int {
	t.Helper()
	state := map[string][]int{}
	var keys []string
	require.NoError(t, u.Keys(func(key []byte, _ int) bool {
		keys = append(keys, string(key))
		return true
	}))
	for _, k := range keys {
		state[k] = lookup(t, u, k)
	}
	return state
}

func TestStringRange(t *testing.T) {
	u := openEmpty(t, tableOf(0, nil))
	require.NoError(t, u.BatchIndex(map[string][]int{
		"apple": {4}, "banana": {2}, "cherry": {9, 1}, "date": {3},
	}))

	got := collectOf(t)(u.StringRange([]byte("banana"), []byte("cherry"), true, true))
	assert.Equal(t, []int{1, 2, 9}, got)
	got = collectOf(t)(u.StringRange([]byte("banana"), []byte("cherry"), false, true))
	assert.Equal(t, []int{1, 9}, got)
	got = collectOf(t)(u.StringRange([]byte("b"), []byte("cherry"), false, false))
	assert.Equal(t, []int{2}, got)
	got = collectOf(t)(u.StringRange([]byte(""), []byte("zzz"), true, true))
	assert.Equal(t, []int{1, 2, 3, 4, 9}, got)
	assert.Empty(t, collectOf(t)(u.StringRange([]byte("e"), []byte("f"), true, true)))
}

func TestUpdatableReopenDerivesKeysFromTable(t *testing.T) {
	tbl := tableOf(6, map[int]string{1: "pear", 3: "fig", 4: "pear", 5: ""})
	opts := testOptions(t)
	u, err := BuildUpdatable(context.Background(), tbl, opts)
	require.NoError(t, err)
	assert.Equal(t, []string{"", "fig", "pear"}, keysOf(t, u.Reader))

	// The index moves first, while the node still holds its old value.
	require.NoError(t, u.Replace([]byte(""), []byte("kiwi"), 5))
	tbl.SetValue(5, "kiwi")
	require.NoError(t, u.Close())

	u, err = OpenUpdatable(tbl, opts)
	require.NoError(t, err)
	defer u.Close()
	assert.Equal(t, []string{"fig", "kiwi", "pear"}, keysOf(t, u.Reader))
	assert.Equal(t, []int{1, 4}, lookup(t, u, "pear"))
	assert.Equal(t, []int{5}, lookup(t, u, "kiwi"))

	r, err := Build(context.Background(), tbl, testOptions(t))
	require.NoError(t, err)
	defer r.Close()
	assert.Equal(t, keysOf(t, r), keysOf(t, u.Reader))
	assert.Equal(t, readFile(t, r.opts.refsPath())[:headerSize], readFile(t, opts.refsPath())[:headerSize])
}

func TestUpdatableProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("insert then delete restores the previous state", prop.ForAll(
		func(seed []int, key, id int) bool {
			u, err := OpenUpdatable(tableOf(0, nil), DefaultOptions(t.TempDir()))
			if err != nil {
				return false
			}
			defer u.Close()
			for i, k := range seed {
				if err := u.Insert([]byte(fmt.Sprint(k)), i); err != nil {
					return false
				}
			}
			k := []byte(fmt.Sprint(key))
			id += len(seed)
			before := snapshot(t, u)
			if err := u.Insert(k, id); err != nil {
				return false
			}
			slot, empty, err := u.Delete(k, []int{id})
			if err != nil {
				return false
			}
			if empty {
				if err := u.DeleteKeys([]int{slot}); err != nil {
					return false
				}
			}
			return fmt.Sprint(before) == fmt.Sprint(snapshot(t, u))
		},
		gen.SliceOf(gen.IntRange(0, 9)),
		gen.IntRange(0, 12),
		gen.IntRange(0, 5),
	))

	properties.Property("key array stays sorted under mixed mutations", prop.ForAll(
		func(keys []int, ids []int, deletes []bool) bool {
			u, err := OpenUpdatable(tableOf(0, nil), DefaultOptions(t.TempDir()))
			if err != nil {
				return false
			}
			defer u.Close()
			batch := map[string][]int{}
			for i, k := range keys {
				key := fmt.Sprintf("k%d", k)
				id := 0
				if i < len(ids) {
					id = ids[i]
				}
				if i < len(deletes) && deletes[i] {
					slot, empty, err := u.Delete([]byte(key), []int{id})
					if err != nil {
						return false
					}
					if empty && u.DeleteKeys([]int{slot}) != nil {
						return false
					}
					continue
				}
				if i%3 == 0 {
					batch[key] = append(batch[key], id)
				} else if u.Insert([]byte(key), id) != nil {
					return false
				}
				if i%5 == 4 {
					if u.Replace([]byte(key), []byte(key+"r"), id) != nil {
						return false
					}
				}
			}
			if u.BatchIndex(batch) != nil {
				return false
			}
			var prev []byte
			ok := true
			first := true
			u.Keys(func(key []byte, _ int) bool {
				if !first && bytes.Compare(prev, key) >= 0 {
					ok = false
				}
				prev, first = key, false
				return ok
			})
			return ok
		},
		gen.SliceOf(gen.IntRange(0, 15)),
		gen.SliceOf(gen.IntRange(0, 6)),
		gen.SliceOf(gen.Bool()),
	))

	properties.TestingRun(t)
}

func TestClosedUpdatable(t *testing.T) {
	u, err := OpenUpdatable(tableOf(0, nil), testOptions(t))
	require.NoError(t, err)
	require.NoError(t, u.Close())
	assert.ErrorIs(t, u.Insert([]byte("a"), 1), apperr.ErrClosed)
	_, _, err = u.Delete([]byte("a"), []int{1})
	assert.ErrorIs(t, err, apperr.ErrClosed)
	assert.ErrorIs(t, u.BatchIndex(map[string][]int{"a": {1}}), apperr.ErrClosed)
}

func TestUpdatableDrop(t *testing.T) {
	opts := testOptions(t)
	u, err := OpenUpdatable(tableOf(0, nil), opts)
	require.NoError(t, err)
	require.NoError(t, u.Insert([]byte("a"), 1))
	require.NoError(t, u.Drop(context.Background()))
	assert.NoFileExists(t, opts.listsPath())
	assert.NoFileExists(t, opts.refsPath())
}

func TestReopenAfterEmptyingDelete(t *testing.T) {
	tbl := tableOf(4, map[int]string{1: "a", 2: "b", 3: "c"})
	opts := testOptions(t)
	u, err := BuildUpdatable(context.Background(), tbl, opts)
	require.NoError(t, err)
	_, empty, err := u.Delete([]byte("b"), []int{2})
	require.NoError(t, err)
	require.True(t, empty)
	require.NoError(t, u.Flush())
	require.NoError(t, u.Close())

	// A static reader passes over the emptied slot.
	r, err := Open(tbl, opts)
	require.NoError(t, err)
	assert.Equal(t, 3, r.Size())
	assert.Empty(t, collectOf(t)(r.Lookup([]byte("b"))))
	assert.Equal(t, []int{3}, collectOf(t)(r.Lookup([]byte("c"))))
	count, err := r.Count([]byte("b"))
	require.NoError(t, err)
	assert.Zero(t, count)
	_, err = r.Count(nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c"}, keysOf(t, r))
	require.NoError(t, r.Close())

	u, err = OpenUpdatable(tbl, opts)
	require.NoError(t, err)
	defer u.Close()
	assert.Equal(t, 2, u.Size(), "emptied key is reclaimed on open")
	assert.Empty(t, lookup(t, u, "b"))
	assert.Equal(t, []int{1}, lookup(t, u, "a"))

	require.NoError(t, u.Insert([]byte("b"), 2))
	assert.Equal(t, []int{2}, lookup(t, u, "b"))
	assert.Equal(t, []string{"a", "b", "c"}, keysOf(t, u.Reader))
}

func TestBatchIndexRejectsBeforeWriting(t *testing.T) {
	u := openEmpty(t, tableOf(0, nil))
	require.NoError(t, u.Insert([]byte("a"), 1))
	before := u.Stats().PostingsBytes

	err := u.BatchIndex(map[string][]int{"a": {2}, "b": {3}, "z": {4, -1}})
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
	assert.Equal(t, []int{1}, lookup(t, u, "a"))
	assert.Equal(t, []string{"a"}, keysOf(t, u.Reader))
	assert.Equal(t, before, u.Stats().PostingsBytes)
}
