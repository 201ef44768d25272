// Package primary defines the boundary to the primary node table that owns
// document structure: node kinds, text and attribute values, and the mapping
// between structural positions and persistent record identifiers.
package primary

import "fmt"

// NodeKind is the kind of a node in the primary table.
type NodeKind uint8

const (
	KindDocument NodeKind = iota
	KindElement
	KindText
	KindAttribute
	KindComment
	KindPI
)

var kindNames = [...]string{"doc", "elem", "text", "attr", "comment", "pi"}

func (k NodeKind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// ParseKind resolves the short names used by node dumps and the database.
func ParseKind(s string) (NodeKind, error) {
	for i, n := range kindNames {
		if n == s {
			return NodeKind(i), nil
		}
	}
	return 0, fmt.Errorf("unknown node kind %q", s)
}

// Table is the read side of primary storage. Implementations must stay
// stable for the duration of an index build pass.
type Table interface {
	// Size is the number of positions; valid positions are [0, Size).
	Size() int
	Kind(pos int) NodeKind
	// ContentLen returns the byte length of the text (text=true) or
	// attribute value stored at pos.
	ContentLen(pos int, text bool) int
	Content(pos int, text bool) []byte
	IDOf(pos int) int
	// PosOf returns the position of id, or -1 if id is unknown.
	PosOf(id int) int
}
