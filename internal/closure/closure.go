// Package closure maintains the ancestor/descendant relation of the comment
// forest. Every node owns one row per ancestor plus a depth-0 self row, so
// both paths and subtrees are single lookups.
package closure

import (
	"errors"
	"fmt"
	"sort"
)

var (
	ErrBrokenPath = errors.New("closure path is broken")
	ErrDuplicate  = errors.New("closure row already exists")
)

type Row struct {
	Ancestor   int64 `json:"ancestor"`
	Descendant int64 `json:"descendant"`
	Depth      int   `json:"depth"`
}

// Extend computes the rows for node attached under parent. parentPath must be
// the complete ancestor-side row set of parent (its self row included); pass
// nil for a root node.
func Extend(node, parent int64, parentPath []Row) ([]Row, error) {
	if node <= 0 {
		return nil, fmt.Errorf("%w: invalid node id %d", ErrBrokenPath, node)
	}
	rows := make([]Row, 0, len(parentPath)+1)
	if parent != 0 {
		if err := checkPath(parent, parentPath); err != nil {
			return nil, err
		}
		for _, r := range parentPath {
			rows = append(rows, Row{Ancestor: r.Ancestor, Descendant: node, Depth: r.Depth + 1})
		}
	}
	rows = append(rows, Row{Ancestor: node, Descendant: node, Depth: 0})
	return rows, nil
}

// checkPath verifies that path holds exactly depths 0..d for node with the
// self row at depth 0.
func checkPath(node int64, path []Row) error {
	if len(path) == 0 {
		return fmt.Errorf("%w: no rows for %d", ErrBrokenPath, node)
	}
	seen := make([]bool, len(path))
	for _, r := range path {
		if r.Descendant != node {
			return fmt.Errorf("%w: row %d->%d does not end at %d", ErrBrokenPath, r.Ancestor, r.Descendant, node)
		}
		if r.Depth < 0 || r.Depth >= len(path) || seen[r.Depth] {
			return fmt.Errorf("%w: unexpected depth %d for %d", ErrBrokenPath, r.Depth, node)
		}
		if r.Depth == 0 && r.Ancestor != node {
			return fmt.Errorf("%w: self row of %d points at %d", ErrBrokenPath, node, r.Ancestor)
		}
		seen[r.Depth] = true
	}
	return nil
}

// Path returns the ancestor ids of a node root-first, the node itself
// excluded.
func Path(rows []Row) []int64 {
	sorted := make([]Row, 0, len(rows))
	for _, r := range rows {
		if r.Depth > 0 {
			sorted = append(sorted, r)
		}
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Depth > sorted[j].Depth })
	ids := make([]int64, len(sorted))
	for i, r := range sorted {
		ids[i] = r.Ancestor
	}
	return ids
}

// Index is an in-memory closure table. It is not safe for concurrent use;
// callers hold their own lock.
type Index struct {
	up   map[int64][]Row
	down map[int64]map[int64]int
}

func NewIndex() *Index {
	return &Index{
		up:   make(map[int64][]Row),
		down: make(map[int64]map[int64]int),
	}
}

// PathOf returns a copy of the ancestor-side rows of id.
func (x *Index) PathOf(id int64) []Row {
	rows := x.up[id]
	out := make([]Row, len(rows))
	copy(out, rows)
	return out
}

// Insert adds the rows of one new node. Rows for a node are written once.
func (x *Index) Insert(rows []Row) error {
	for _, r := range rows {
		if _, ok := x.down[r.Ancestor][r.Descendant]; ok {
			return fmt.Errorf("%w: %d->%d", ErrDuplicate, r.Ancestor, r.Descendant)
		}
	}
	for _, r := range rows {
		x.up[r.Descendant] = append(x.up[r.Descendant], r)
		if x.down[r.Ancestor] == nil {
			x.down[r.Ancestor] = make(map[int64]int)
		}
		x.down[r.Ancestor][r.Descendant] = r.Depth
	}
	return nil
}

func (x *Index) Ancestors(id int64) []int64 {
	return Path(x.up[id])
}

// Descendants returns every descendant of id mapped to its distance, id
// itself included at depth 0.
func (x *Index) Descendants(id int64) map[int64]int {
	out := make(map[int64]int, len(x.down[id]))
	for d, depth := range x.down[id] {
		out[d] = depth
	}
	return out
}

func (x *Index) Len() int {
	n := 0
	for _, rows := range x.up {
		n += len(rows)
	}
	return n
}
