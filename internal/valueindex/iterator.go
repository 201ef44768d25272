package valueindex

// Iterator walks the positions produced by a query.
type Iterator struct {
	pos []int
	i   int
}

var emptyIterator = &Iterator{}

func newIterator(pos []int) *Iterator {
	if len(pos) == 0 {
		return &Iterator{}
	}
	return &Iterator{pos: pos}
}

// Next advances to the following position and reports whether there is one.
func (it *Iterator) Next() bool {
	if it.i >= len(it.pos) {
		return false
	}
	it.i++
	return true
}

// Pos returns the current position. It is only valid after Next returned
// true.
func (it *Iterator) Pos() int { return it.pos[it.i-1] }

// Size is the total number of positions, independent of progress.
func (it *Iterator) Size() int { return len(it.pos) }

// Positions returns the remaining positions without advancing.
func (it *Iterator) Positions() []int {
	out := make([]int, len(it.pos)-it.i)
	copy(out, it.pos[it.i:])
	return out
}
