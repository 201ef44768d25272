package primary

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"sync"
)

type node struct {
	kind  NodeKind
	id    int
	value []byte
}

// MemTable is an in-memory primary table. Positions are dense and shift on
// structural edits; ids are assigned once and never reused.
type MemTable struct {
	mu     sync.RWMutex
	nodes  []node
	pos    map[int]int
	nextID int
	dirty  bool
}

func NewMemTable() *MemTable {
	return &MemTable{pos: make(map[int]int)}
}

// Append adds a node at the end and returns its id.
func (t *MemTable) Append(kind NodeKind, value string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	id := t.nextID
	t.nextID++
	t.nodes = append(t.nodes, node{kind: kind, id: id, value: []byte(value)})
	if !t.dirty {
		t.pos[id] = len(t.nodes) - 1
	}
	return id
}

// AppendWithID adds a node carrying an explicit id. ids must be unique.
func (t *MemTable) AppendWithID(kind NodeKind, id int, value string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.lookup(id); ok {
		return fmt.Errorf("duplicate node id %d", id)
	}
	if id >= t.nextID {
		t.nextID = id + 1
	}
	t.nodes = append(t.nodes, node{kind: kind, id: id, value: []byte(value)})
	if !t.dirty {
		t.pos[id] = len(t.nodes) - 1
	}
	return nil
}

// Insert places a new node at pos, shifting later positions, and returns
// its id.
func (t *MemTable) Insert(pos int, kind NodeKind, value string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	id := t.nextID
	t.nextID++
	t.nodes = append(t.nodes, node{})
	copy(t.nodes[pos+1:], t.nodes[pos:])
	t.nodes[pos] = node{kind: kind, id: id, value: []byte(value)}
	t.dirty = true
	return id
}

// Delete removes the node at pos.
func (t *MemTable) Delete(pos int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nodes = append(t.nodes[:pos], t.nodes[pos+1:]...)
	t.dirty = true
}

// SetValue replaces the value of the node at pos.
func (t *MemTable) SetValue(pos int, value string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nodes[pos].value = []byte(value)
}

func (t *MemTable) Size() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.nodes)
}

func (t *MemTable) Kind(pos int) NodeKind {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.nodes[pos].kind
}

func (t *MemTable) ContentLen(pos int, text bool) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.nodes[pos].value)
}

func (t *MemTable) Content(pos int, text bool) []byte {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.nodes[pos].value
}

func (t *MemTable) IDOf(pos int) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.nodes[pos].id
}

func (t *MemTable) PosOf(id int) int {
	t.mu.RLock()
	if !t.dirty {
		p, ok := t.pos[id]
		t.mu.RUnlock()
		if !ok {
			return -1
		}
		return p
	}
	t.mu.RUnlock()

	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.lookup(id)
	if !ok {
		return -1
	}
	return p
}

// lookup resolves id, rebuilding the position map after structural edits.
// Callers hold the write lock.
func (t *MemTable) lookup(id int) (int, bool) {
	if t.dirty {
		t.pos = make(map[int]int, len(t.nodes))
		for i, n := range t.nodes {
			t.pos[n.id] = i
		}
		t.dirty = false
	}
	p, ok := t.pos[id]
	return p, ok
}

// ReadDump loads a node dump: one node per line, "<kind>\t<value>", where
// kind is one of doc, elem, text, attr, comment, pi. Lines starting with
// '#' and blank lines are skipped. Values may use \t, \n and \\ escapes.
func ReadDump(r io.Reader) (*MemTable, error) {
	t := NewMemTable()
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64<<10), 16<<20)
	line := 0
	for sc.Scan() {
		line++
		text := sc.Text()
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		kindName, value, _ := strings.Cut(text, "\t")
		kind, err := ParseKind(kindName)
		if err != nil {
			return nil, fmt.Errorf("dump line %d: %w", line, err)
		}
		t.Append(kind, unescape(value))
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading dump: %w", err)
	}
	return t, nil
}

var dumpUnescaper = strings.NewReplacer(`\t`, "\t", `\n`, "\n", `\\`, `\`)

func unescape(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	return dumpUnescaper.Replace(s)
}
