package valueindex

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/valueindex/internal/store"
)

func TestLookupCacheEvictsLeastRecentlyUsed(t *testing.T) {
	c := newLookupCache(2)
	c.put([]byte("a"), 1, 10)
	c.put([]byte("b"), 2, 20)
	_, _, ok := c.get([]byte("a"))
	require.True(t, ok)
	c.put([]byte("c"), 3, 30)

	_, _, ok = c.get([]byte("b"))
	assert.False(t, ok, "b was least recently used")
	count, off, ok := c.get([]byte("a"))
	require.True(t, ok)
	assert.Equal(t, 1, count)
	assert.EqualValues(t, 10, off)

	size, hits, misses := c.stats()
	assert.Equal(t, 2, size)
	assert.EqualValues(t, 2, hits)
	assert.EqualValues(t, 1, misses)
}

func TestLookupCacheUpdateAndRemove(t *testing.T) {
	c := newLookupCache(0)
	for i := 0; i < 100; i++ {
		c.put([]byte(fmt.Sprint(i)), i, int64(i))
	}
	size, _, _ := c.stats()
	assert.Equal(t, 100, size, "zero capacity is unbounded")

	c.put([]byte("7"), 70, 700)
	count, off, ok := c.get([]byte("7"))
	require.True(t, ok)
	assert.Equal(t, 70, count)
	assert.EqualValues(t, 700, off)

	c.remove([]byte("7"))
	_, _, ok = c.get([]byte("7"))
	assert.False(t, ok)

	c.clear()
	size, _, _ = c.stats()
	assert.Zero(t, size)
}

func TestDisabledLookupCache(t *testing.T) {
	c := newLookupCache(-1)
	assert.Nil(t, c)
	c.put([]byte("a"), 1, 1)
	_, _, ok := c.get([]byte("a"))
	assert.False(t, ok)
	c.remove([]byte("a"))
	c.clear()
}

func TestSlotKeysShiftWithReferences(t *testing.T) {
	s := newSlotKeys(3)
	s.set(0, []byte("b"))
	s.set(2, []byte("f"))
	s.insert([]int{0, 2, 3, 3}, [][]byte{[]byte("a"), []byte("c"), []byte("g"), []byte("h")})

	want := []string{"a", "b", "", "c", "f", "g", "h"}
	require.Len(t, s.keys, len(want))
	for i, w := range want {
		if w == "" {
			assert.Nil(t, s.get(i), "slot %d", i)
			continue
		}
		assert.Equal(t, w, string(s.get(i)), "slot %d", i)
	}

	s.remove([]int{0, 2, 6})
	assert.Len(t, s.keys, 4)
	assert.Equal(t, "b", string(s.get(0)))
	assert.Equal(t, "c", string(s.get(1)))
	assert.Equal(t, "g", string(s.get(3)))

	s.set(1, []byte{})
	assert.NotNil(t, s.get(1), "empty key stays known")
}

func TestKeyRefsInsertAndRemove(t *testing.T) {
	s := store.NewMemory()
	refs := keyRefs{s}
	require.NoError(t, refs.setCount(0))

	require.NoError(t, refs.insert(0, []int{0, 0}, []int64{10, 20}))
	require.NoError(t, refs.insert(2, []int{1, 2, 2}, []int64{15, 30, 40}))
	require.NoError(t, refs.setCount(5))

	var got []int64
	for i := 0; i < 5; i++ {
		got = append(got, refs.at(i))
	}
	assert.Equal(t, []int64{10, 15, 20, 30, 40}, got)

	require.NoError(t, refs.remove(5, []int{1, 4}))
	assert.EqualValues(t, refOffset(3), s.Size())
	assert.EqualValues(t, 10, refs.at(0))
	assert.EqualValues(t, 20, refs.at(1))
	assert.EqualValues(t, 30, refs.at(2))

	assert.Error(t, refs.set(0, store.Max5+1))
}
