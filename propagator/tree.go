package propagator

import (
	"path"
	"sort"

	"github.com/nicolagi/csync/jhash"
)

// Tree is a phash-indexed collection of FileStat entries for one replica's
// reconciled snapshot. Per the design note on pointer-into-tree cycles
// (spec.md §9), a node carries no parent link: ancestors are re-derived by
// string-dirname and looked up by jhash64, so the tree stays acyclic and
// free of back-pointer ownership.
type Tree struct {
	byPhash map[uint64]*FileStat
	order   []*FileStat
}

// NewTree builds a Tree from entries, indexing each by jhash64(Path).
func NewTree(entries []*FileStat) *Tree {
	t := &Tree{byPhash: make(map[uint64]*FileStat, len(entries)), order: make([]*FileStat, len(entries))}
	copy(t.order, entries)
	for _, e := range entries {
		e.Phash = jhash.Sum64String(e.Path)
		t.byPhash[e.Phash] = e
	}
	return t
}

// Lookup returns the entry keyed by phash, or nil if absent.
func (t *Tree) Lookup(phash uint64) *FileStat {
	return t.byPhash[phash]
}

// Ancestor returns the entry for dirname(st.Path) in this tree, or nil if
// that path is not present (e.g. st is already at the tree root).
func (t *Tree) Ancestor(st *FileStat) *FileStat {
	dir := path.Dir(st.Path)
	if dir == "." || dir == "/" || dir == st.Path {
		return nil
	}
	return t.byPhash[jhash.Sum64String(dir)]
}

// Entries returns all entries in tree-walk (insertion) order. Visitors
// iterate this slice directly, matching spec.md §5's file-pass-then-dir-pass
// ordering guarantee: passes filter this slice by Type, so the order within
// a single type is preserved as given at construction time.
func (t *Tree) Entries() []*FileStat {
	return t.order
}

// SortedPaths returns every entry's Path sorted lexically. The
// deferred-rmdir cleanup pass does not call it: cleanupPass sorts its own
// queue of deferred entries in reverse path order.
func (t *Tree) SortedPaths() []string {
	paths := make([]string, len(t.order))
	for i, e := range t.order {
		paths[i] = e.Path
	}
	sort.Strings(paths)
	return paths
}
