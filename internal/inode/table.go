// Package inode maintains the bidirectional inode-to-path mapping the
// FUSE frontend needs: the kernel addresses files by inode number, the
// cache layer addresses them by path, and this table is the only place
// the two are reconciled.
package inode

import (
	"path"
	"strings"
	"sync"
	"sync/atomic"
)

// RootInode is the fixed inode number of the mount root, matching the
// FUSE convention that inode 1 always denotes the root of the tree.
const RootInode uint64 = 1

// Table is a bidirectional, concurrency-safe inode<->path map with
// idempotent allocation and subtree-rename support (I6): every inode
// maps to exactly one path and vice versa, and renaming a directory
// preserves the inode identity of every descendant.
type Table struct {
	mu      sync.RWMutex
	byPath  map[string]uint64
	byInode map[uint64]string
	next    uint64
}

// New returns a table pre-seeded with the root path bound to RootInode.
func New() *Table {
	t := &Table{
		byPath:  make(map[string]uint64),
		byInode: make(map[uint64]string),
		next:    RootInode,
	}
	t.byPath["/"] = RootInode
	t.byInode[RootInode] = "/"
	return t
}

func clean(p string) string {
	if p == "" {
		return "/"
	}
	p = path.Clean(p)
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return p
}

// GetOrCreate returns the inode bound to path, allocating a fresh one
// under the table's lock if none exists yet. Safe under concurrent
// callers racing to allocate the same new path: exactly one allocation
// wins and every caller observes the same inode.
func (t *Table) GetOrCreate(p string) uint64 {
	p = clean(p)

	t.mu.RLock()
	if ino, ok := t.byPath[p]; ok {
		t.mu.RUnlock()
		return ino
	}
	t.mu.RUnlock()

	t.mu.Lock()
	defer t.mu.Unlock()
	if ino, ok := t.byPath[p]; ok {
		return ino
	}
	ino := atomic.AddUint64(&t.next, 1)
	t.byPath[p] = ino
	t.byInode[ino] = p
	return ino
}

// Lookup returns the inode for path, if one has been allocated.
func (t *Table) Lookup(p string) (uint64, bool) {
	p = clean(p)
	t.mu.RLock()
	defer t.mu.RUnlock()
	ino, ok := t.byPath[p]
	return ino, ok
}

// Path returns the path for an inode, if one exists.
func (t *Table) Path(ino uint64) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	p, ok := t.byInode[ino]
	return p, ok
}

// Remove drops the mapping for path, if present.
func (t *Table) Remove(p string) {
	p = clean(p)
	t.mu.Lock()
	defer t.mu.Unlock()
	ino, ok := t.byPath[p]
	if !ok {
		return
	}
	delete(t.byPath, p)
	delete(t.byInode, ino)
}

func isStrictDescendant(candidate, prefix string) bool {
	if candidate == prefix {
		return true
	}
	if prefix == "/" {
		return strings.HasPrefix(candidate, "/") && candidate != "/"
	}
	return strings.HasPrefix(candidate, prefix+"/")
}

func rewritePrefix(candidate, oldPrefix, newPrefix string) string {
	if candidate == oldPrefix {
		return newPrefix
	}
	rel := strings.TrimPrefix(candidate, oldPrefix+"/")
	if newPrefix == "/" {
		return "/" + rel
	}
	return newPrefix + "/" + rel
}

// Rename moves every path equal to or strictly nested under old to the
// corresponding path under new, preserving each entry's inode number
// (I6). Matching is on whole path components, so a sibling like
// "old-sibling" is never mistaken for a descendant of "old". Entries
// outside the old subtree are untouched.
func (t *Table) Rename(old, new string) {
	old, new = clean(old), clean(new)
	if old == new {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	var toMove []string
	for p := range t.byPath {
		if isStrictDescendant(p, old) {
			toMove = append(toMove, p)
		}
	}
	for _, p := range toMove {
		ino := t.byPath[p]
		delete(t.byPath, p)
		delete(t.byInode, ino)
		np := rewritePrefix(p, old, new)
		t.byPath[np] = ino
		t.byInode[ino] = np
	}
}

// Len returns the number of entries currently tracked, for tests and
// status reporting.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.byPath)
}
