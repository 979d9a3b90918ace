package params

import (
	"strings"
	"sync"
)

// Iterator is a stateful cursor over tabular parameterization data.
//
// A shared Iterator keeps a single cursor that every virtual user advances,
// so rows are handed out round-robin in call order. A non-shared Iterator
// keeps one cursor per virtual user. Cursors start before the first row and
// wrap to row 0 after the last one.
//
// Iterator is safe for concurrent use.
type Iterator struct {
	keys   []string
	index  map[string]int
	rows   [][]string
	shared bool

	mu      sync.Mutex
	global  int
	cursors map[int]int
}

// NewTextIterator creates an Iterator over raw text lines. Each line has its
// trailing line break removed and is split by sep.
func NewTextIterator(lines []string, keys string, sep string, shared bool) *Iterator {
	rows := make([][]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimRight(line, "\n")
		line = strings.TrimRight(line, "\r")
		if sep == "" {
			rows = append(rows, []string{line})
			continue
		}
		rows = append(rows, strings.Split(line, sep))
	}
	return newIterator(rows, keys, shared)
}

// NewListIterator creates an Iterator over rows that are already split into
// columns, such as spreadsheet rows.
func NewListIterator(rows [][]string, keys string, shared bool) *Iterator {
	return newIterator(rows, keys, shared)
}

func newIterator(rows [][]string, keys string, shared bool) *Iterator {
	it := &Iterator{
		keys:    strings.Split(keys, ","),
		index:   make(map[string]int),
		rows:    rows,
		shared:  shared,
		global:  -1,
		cursors: make(map[int]int),
	}
	for i, k := range it.keys {
		if _, ok := it.index[k]; !ok {
			it.index[k] = i
		}
	}
	return it
}

// Keys returns the column names bound to this iterator.
func (it *Iterator) Keys() []string {
	out := make([]string, len(it.keys))
	copy(out, it.keys)
	return out
}

// Len returns the number of rows.
func (it *Iterator) Len() int {
	return len(it.rows)
}

// Shared reports whether all virtual users share one cursor.
func (it *Iterator) Shared() bool {
	return it.shared
}

// Next advances the cursor used by the given virtual user.
func (it *Iterator) Next(vu int) {
	if len(it.rows) == 0 {
		return
	}

	it.mu.Lock()
	defer it.mu.Unlock()

	if it.shared {
		it.global = it.advance(it.global)
		return
	}
	cur, ok := it.cursors[vu]
	if !ok {
		cur = -1
	}
	it.cursors[vu] = it.advance(cur)
}

func (it *Iterator) advance(cur int) int {
	cur++
	if cur >= len(it.rows) {
		cur = 0
	}
	return cur
}

// Cursor returns the row currently selected for the virtual user, or -1 if
// Next has not been called yet.
func (it *Iterator) Cursor(vu int) int {
	it.mu.Lock()
	defer it.mu.Unlock()

	if it.shared {
		return it.global
	}
	cur, ok := it.cursors[vu]
	if !ok {
		return -1
	}
	return cur
}

// Get returns the column named key from the row selected for the virtual
// user. The second result is false when no row is selected yet, the key is
// unknown, or the row is too short.
func (it *Iterator) Get(key string, vu int) (string, bool) {
	return it.At(key, it.Cursor(vu))
}

// At returns the column named key at an absolute row, independent of any
// cursor.
func (it *Iterator) At(key string, row int) (string, bool) {
	if row < 0 || row >= len(it.rows) {
		return "", false
	}
	col, ok := it.index[key]
	if !ok {
		return "", false
	}
	cols := it.rows[row]
	if col >= len(cols) {
		return "", false
	}
	return cols[col], true
}
