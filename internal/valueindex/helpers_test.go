package valueindex

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/valueindex/internal/primary"
)

// tableOf returns a table of n positions where the given positions hold text
// nodes with the given values and all others are elements.
func tableOf(n int, values map[int]string) *primary.MemTable {
	tbl := primary.NewMemTable()
	for pos := 0; pos < n; pos++ {
		if v, ok := values[pos]; ok {
			tbl.Append(primary.KindText, v)
		} else {
			tbl.Append(primary.KindElement, "")
		}
	}
	return tbl
}

func testOptions(t testing.TB) Options {
	opts := DefaultOptions(t.TempDir())
	opts.Document = "fruit"
	opts.LookupCacheSize = 64
	return opts
}

// collectOf returns a helper that drains an iterator result, failing the
// test on error.
func collectOf(t testing.TB) func(*Iterator, error) []int {
	return func(it *Iterator, err error) []int {
		t.Helper()
		require.NoError(t, err)
		return it.Positions()
	}
}

func keysOf(t testing.TB, r *Reader) []string {
	t.Helper()
	var keys []string
	require.NoError(t, r.Keys(func(key []byte, _ int) bool {
		keys = append(keys, string(key))
		return true
	}))
	return keys
}

func readFile(t testing.TB, path string) []byte {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	return b
}
