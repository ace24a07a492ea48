package inode

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootInodeIsPreallocated(t *testing.T) {
	tbl := New()
	ino, ok := tbl.Lookup("/")
	require.True(t, ok)
	assert.Equal(t, RootInode, ino)
	p, ok := tbl.Path(RootInode)
	require.True(t, ok)
	assert.Equal(t, "/", p)
}

func TestGetOrCreateIsIdempotent(t *testing.T) {
	tbl := New()
	a := tbl.GetOrCreate("/a.txt")
	b := tbl.GetOrCreate("/a.txt")
	assert.Equal(t, a, b)
	assert.NotEqual(t, RootInode, a)
}

func TestGetOrCreateUnderRaceAllocatesOnce(t *testing.T) {
	tbl := New()
	const n = 50
	results := make([]uint64, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			results[i] = tbl.GetOrCreate("/contended.txt")
		}(i)
	}
	wg.Wait()
	for i := 1; i < n; i++ {
		assert.Equal(t, results[0], results[i])
	}
}

func TestRemoveDropsBothDirections(t *testing.T) {
	tbl := New()
	ino := tbl.GetOrCreate("/a.txt")
	tbl.Remove("/a.txt")

	_, ok := tbl.Lookup("/a.txt")
	assert.False(t, ok)
	_, ok = tbl.Path(ino)
	assert.False(t, ok)
}

func TestRenameDirectoryWithChildrenPreservesInodes(t *testing.T) {
	tbl := New()
	iOld := tbl.GetOrCreate("/old")
	iFile := tbl.GetOrCreate("/old/file.txt")
	iSub := tbl.GetOrCreate("/old/sub")
	iNested := tbl.GetOrCreate("/old/sub/nested.txt")

	tbl.Rename("/old", "/new")

	for _, p := range []string{"/old", "/old/file.txt", "/old/sub", "/old/sub/nested.txt"} {
		_, ok := tbl.Lookup(p)
		assert.False(t, ok, "stale path %q must be gone", p)
	}

	newIno, ok := tbl.Lookup("/new")
	require.True(t, ok)
	assert.Equal(t, iOld, newIno)

	fileIno, ok := tbl.Lookup("/new/file.txt")
	require.True(t, ok)
	assert.Equal(t, iFile, fileIno)

	subIno, ok := tbl.Lookup("/new/sub")
	require.True(t, ok)
	assert.Equal(t, iSub, subIno)

	nestedIno, ok := tbl.Lookup("/new/sub/nested.txt")
	require.True(t, ok)
	assert.Equal(t, iNested, nestedIno)
}

func TestRenameDoesNotAffectSiblings(t *testing.T) {
	tbl := New()
	iSibling := tbl.GetOrCreate("/old-sibling")
	tbl.GetOrCreate("/old")

	tbl.Rename("/old", "/new")

	ino, ok := tbl.Lookup("/old-sibling")
	require.True(t, ok)
	assert.Equal(t, iSibling, ino)
}

func TestRenameBijective(t *testing.T) {
	tbl := New()
	tbl.GetOrCreate("/old")
	tbl.GetOrCreate("/old/a")
	tbl.GetOrCreate("/old/b")

	tbl.Rename("/old", "/new")

	assert.Equal(t, 4, tbl.Len()) // root + 3 renamed entries
}
