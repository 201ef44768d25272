package valueindex

import (
	"bufio"
	"bytes"
	"math"
	"slices"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/valueindex/internal/store"
	apperr "github.com/Adithya-Monish-Kumar-K/valueindex/pkg/errors"
)

func TestNumBoundaries(t *testing.T) {
	cases := []struct {
		v    uint64
		size int
	}{
		{0, 1},
		{127, 1},
		{128, 2},
		{16383, 2},
		{16384, 3},
		{1<<40 - 1, 6},
		{math.MaxUint64, 10},
	}
	for _, tc := range cases {
		b := AppendNum(nil, tc.v)
		assert.Len(t, b, tc.size, "value %d", tc.v)
		v, n := Num(b)
		assert.Equal(t, tc.v, v)
		assert.Equal(t, tc.size, n)

		r, err := ReadNum(bytes.NewReader(b))
		require.NoError(t, err)
		assert.Equal(t, tc.v, r)
	}
	assert.Equal(t, []byte{0x80, 0x01}, AppendNum(nil, 128))
}

func assertCorrupt(t *testing.T, fn func()) {
	t.Helper()
	defer func() {
		r := recover()
		require.NotNil(t, r, "expected a corruption panic")
		err, ok := r.(error)
		require.True(t, ok)
		assert.ErrorIs(t, err, apperr.ErrCorrupt)
	}()
	fn()
}

func TestMalformedNumbersPanic(t *testing.T) {
	assertCorrupt(t, func() { Num(nil) })
	assertCorrupt(t, func() { Num([]byte{0x80}) })
	assertCorrupt(t, func() { ReadNum(bytes.NewReader([]byte{0xff, 0xff})) })
	overflow := append(bytes.Repeat([]byte{0xff}, 9), 0x02)
	assertCorrupt(t, func() { ReadNum(bytes.NewReader(overflow)) })
}

func TestPostingsLayout(t *testing.T) {
	b := encodePostings(nil, []int{3, 5, 200})
	assert.Equal(t, []byte{3, 3, 2, 195, 1}, b)

	ids, err := decodePostings(bufio.NewReader(bytes.NewReader(b)))
	require.NoError(t, err)
	assert.Equal(t, []int{3, 5, 200}, ids)

	assert.Equal(t, []byte{0}, encodePostings(nil, nil))
}

func TestPostingsRejectDisorder(t *testing.T) {
	assertCorrupt(t, func() { encodePostings(nil, []int{4, 4}) })
	assertCorrupt(t, func() {
		decodePostings(bytes.NewReader([]byte{2, 7, 0}))
	})
	assertCorrupt(t, func() {
		decodePostings(bytes.NewReader([]byte{3, 7, 1}))
	})
}

func TestReadFirstAndCount(t *testing.T) {
	s := store.NewMemory()
	_, err := s.Append([]byte{0xaa})
	require.NoError(t, err)
	off, err := s.Append(encodePostings(nil, []int{12, 40}))
	require.NoError(t, err)
	empty, err := s.Append(encodePostings(nil, nil))
	require.NoError(t, err)

	count, first, err := readFirst(s, off)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.Equal(t, 12, first)

	count, err = readCount(s, empty)
	require.NoError(t, err)
	assert.Zero(t, count)

	assertCorrupt(t, func() { readPostings(s, s.Size()) })
}

func TestListHelpers(t *testing.T) {
	assert.Equal(t, []int{1, 3, 9}, sortedUnique([]int{9, 3, 1, 3, 9}))
	assert.Equal(t, []int{1, 2, 3, 5}, union([]int{1, 3, 5}, []int{2, 3}))
	assert.Equal(t, []int{1, 5}, subtract([]int{1, 3, 5}, []int{0, 3, 4}))
}

func TestPostingsRoundTripProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("decode(encode(ids)) == ids", prop.ForAll(
		func(raw []int) bool {
			ids := sortedUnique(slices.Clone(raw))
			got, err := decodePostings(bytes.NewReader(encodePostings(nil, ids)))
			if err != nil {
				return false
			}
			if len(ids) == 0 {
				return len(got) == 0
			}
			return slices.Equal(ids, got)
		},
		gen.SliceOf(gen.IntRange(0, 1<<30)),
	))

	properties.TestingRun(t)
}
