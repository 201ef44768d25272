package valueindex

import (
	"slices"
	"strings"
)

// Per-entry overheads used by the staging size estimate.
const (
	keyOverhead = 64
	idOverhead  = 8
)

// staging maps distinct keys to the ids collected for them, in discovery
// order, between spills.
type staging struct {
	index   map[string]int
	keys    []string
	ids     [][]int
	entries int
	bytes   int64
}

func newStaging() *staging {
	return &staging{index: make(map[string]int)}
}

func (s *staging) add(key []byte, id int) {
	i, ok := s.index[string(key)]
	if !ok {
		i = len(s.keys)
		k := string(key)
		s.index[k] = i
		s.keys = append(s.keys, k)
		s.ids = append(s.ids, nil)
		s.bytes += int64(len(k)) + keyOverhead
	}
	s.ids[i] = append(s.ids[i], id)
	s.entries++
	s.bytes += idOverhead
}

func (s *staging) empty() bool { return len(s.keys) == 0 }

// sorted returns the staging slots ordered by key bytes.
func (s *staging) sorted() []int {
	order := make([]int, len(s.keys))
	for i := range order {
		order[i] = i
	}
	slices.SortFunc(order, func(a, b int) int {
		return strings.Compare(s.keys[a], s.keys[b])
	})
	return order
}

func (s *staging) reset() {
	clear(s.index)
	s.keys = s.keys[:0]
	s.ids = s.ids[:0]
	s.entries = 0
	s.bytes = 0
}
