package cache

import (
	"context"
	"testing"

	"github.com/objectmount/objectmount/internal/connector/faketest"
	"github.com/objectmount/objectmount/pkg/ferrors"
	"github.com/objectmount/objectmount/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMemoryCache() (*MemoryCache, *faketest.Connector) {
	inner := faketest.New()
	cfg := DefaultMemoryCacheConfig()
	cfg.FlushInterval = 0 // synchronous tests drive ForceSync explicitly
	mc := NewMemoryCache(inner, cfg, nil)
	return mc, inner
}

func TestCreateFileVisibleBeforeSync(t *testing.T) {
	mc, inner := newTestMemoryCache()
	ctx := context.Background()

	require.NoError(t, mc.CreateFile(ctx, "/a.txt"))

	md, err := mc.Stat(ctx, "/a.txt")
	require.NoError(t, err)
	assert.Equal(t, uint64(0), md.Size)

	_, err = inner.Stat(ctx, "/a.txt")
	assert.True(t, ferrors.Is(err, ferrors.KindNotFound), "backend must not see the file before a sync pass")
}

func TestWriteThenSyncReachesBackend(t *testing.T) {
	mc, inner := newTestMemoryCache()
	ctx := context.Background()

	require.NoError(t, mc.CreateFile(ctx, "/a.txt"))
	n, err := mc.Write(ctx, "/a.txt", 0, []byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, uint64(5), n)

	data, err := mc.Read(ctx, "/a.txt", 0, 5)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), data)

	mc.ForceSync(ctx)

	md, err := inner.Stat(ctx, "/a.txt")
	require.NoError(t, err)
	assert.Equal(t, uint64(5), md.Size)
}

func TestTruncateToZeroThenSyncReachesBackend(t *testing.T) {
	mc, inner := newTestMemoryCache()
	ctx := context.Background()

	require.NoError(t, mc.CreateFile(ctx, "/a.txt"))
	_, err := mc.Write(ctx, "/a.txt", 0, []byte("hello"))
	require.NoError(t, err)
	mc.ForceSync(ctx)

	require.NoError(t, mc.Truncate(ctx, "/a.txt", 0))
	md, err := mc.Stat(ctx, "/a.txt")
	require.NoError(t, err)
	assert.Equal(t, uint64(0), md.Size)

	mc.ForceSync(ctx)

	backendMD, err := inner.Stat(ctx, "/a.txt")
	require.NoError(t, err)
	assert.Equal(t, uint64(0), backendMD.Size, "truncating to zero while cached must still empty the backend copy on sync")

	data, err := inner.Read(ctx, "/a.txt", 0, 5)
	require.NoError(t, err)
	assert.Empty(t, data)
}

func TestDeleteOfPendingCreateNeverReachesBackend(t *testing.T) {
	mc, inner := newTestMemoryCache()
	ctx := context.Background()

	require.NoError(t, mc.CreateFile(ctx, "/a.txt"))
	require.NoError(t, mc.RemoveFile(ctx, "/a.txt"))
	mc.ForceSync(ctx)

	_, err := mc.Stat(ctx, "/a.txt")
	assert.True(t, ferrors.Is(err, ferrors.KindNotFound))
	assert.Equal(t, 0, inner.CallCount("CreateFile"))
}

func TestDeleteOfSyncedFileIsPropagated(t *testing.T) {
	mc, inner := newTestMemoryCache()
	ctx := context.Background()

	require.NoError(t, mc.CreateFile(ctx, "/a.txt"))
	mc.ForceSync(ctx)
	require.NoError(t, mc.RemoveFile(ctx, "/a.txt"))

	_, err := mc.Stat(ctx, "/a.txt")
	assert.True(t, ferrors.Is(err, ferrors.KindNotFound))

	mc.ForceSync(ctx)
	_, err = inner.Stat(ctx, "/a.txt")
	assert.True(t, ferrors.Is(err, ferrors.KindNotFound))
}

func TestMkdirNonEmptyRemoveDirRejected(t *testing.T) {
	mc, _ := newTestMemoryCache()
	ctx := context.Background()

	require.NoError(t, mc.CreateDir(ctx, "/d"))
	require.NoError(t, mc.CreateFile(ctx, "/d/child.txt"))

	err := mc.RemoveDir(ctx, "/d", false)
	assert.True(t, ferrors.Is(err, ferrors.KindNotEmpty))
}

func TestListDirMergesPendingOverBackend(t *testing.T) {
	mc, inner := newTestMemoryCache()
	ctx := context.Background()

	require.NoError(t, inner.CreateDir(ctx, "/d"))
	require.NoError(t, inner.CreateFile(ctx, "/d/existing.txt"))

	require.NoError(t, mc.CreateFile(ctx, "/d/new.txt"))
	require.NoError(t, mc.RemoveFile(ctx, "/d/existing.txt"))

	var names []string
	err := mc.ListDir(ctx, "/d", func(e model.DirEntry) error {
		names = append(names, e.Name)
		return nil
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"new.txt"}, names)
}

func TestRenameFileMovesPendingState(t *testing.T) {
	mc, _ := newTestMemoryCache()
	ctx := context.Background()

	require.NoError(t, mc.CreateFile(ctx, "/a.txt"))
	_, err := mc.Write(ctx, "/a.txt", 0, []byte("payload"))
	require.NoError(t, err)

	require.NoError(t, mc.Rename(ctx, "/a.txt", "/b.txt"))

	_, err = mc.Stat(ctx, "/a.txt")
	assert.True(t, ferrors.Is(err, ferrors.KindNotFound))

	md, err := mc.Stat(ctx, "/b.txt")
	require.NoError(t, err)
	assert.Equal(t, uint64(7), md.Size)

	data, err := mc.Read(ctx, "/b.txt", 0, 7)
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), data)
}

func TestRenameSyncedFileInstallsDeleteAndCreate(t *testing.T) {
	mc, inner := newTestMemoryCache()
	ctx := context.Background()

	require.NoError(t, mc.CreateFile(ctx, "/a.txt"))
	_, err := mc.Write(ctx, "/a.txt", 0, []byte("x"))
	require.NoError(t, err)
	mc.ForceSync(ctx)

	require.NoError(t, mc.Rename(ctx, "/a.txt", "/b.txt"))
	mc.ForceSync(ctx)

	_, err = inner.Stat(ctx, "/a.txt")
	assert.True(t, ferrors.Is(err, ferrors.KindNotFound))
	_, err = inner.Stat(ctx, "/b.txt")
	assert.NoError(t, err)
}

func TestRenameDirectoryRewritesDescendantKeys(t *testing.T) {
	mc, _ := newTestMemoryCache()
	ctx := context.Background()

	require.NoError(t, mc.CreateDir(ctx, "/old"))
	require.NoError(t, mc.CreateFile(ctx, "/old/f.txt"))
	_, err := mc.Write(ctx, "/old/f.txt", 0, []byte("inside"))
	require.NoError(t, err)

	require.NoError(t, mc.Rename(ctx, "/old", "/new"))

	_, err = mc.Stat(ctx, "/old/f.txt")
	assert.True(t, ferrors.Is(err, ferrors.KindNotFound))

	md, err := mc.Stat(ctx, "/new/f.txt")
	require.NoError(t, err)
	assert.Equal(t, uint64(6), md.Size)

	data, err := mc.Read(ctx, "/new/f.txt", 0, 6)
	require.NoError(t, err)
	assert.Equal(t, []byte("inside"), data)
}

func TestRenameDoesNotAffectSiblings(t *testing.T) {
	mc, _ := newTestMemoryCache()
	ctx := context.Background()

	require.NoError(t, mc.CreateDir(ctx, "/old"))
	require.NoError(t, mc.CreateDir(ctx, "/old-sibling"))
	require.NoError(t, mc.CreateFile(ctx, "/old-sibling/keep.txt"))

	require.NoError(t, mc.Rename(ctx, "/old", "/new"))

	md, err := mc.Stat(ctx, "/old-sibling/keep.txt")
	require.NoError(t, err)
	assert.Equal(t, uint64(0), md.Size)
}

func TestSetModeAppliesToPendingCreate(t *testing.T) {
	mc, inner := newTestMemoryCache()
	ctx := context.Background()

	require.NoError(t, mc.CreateFile(ctx, "/a.txt"))
	require.NoError(t, mc.SetMode(ctx, "/a.txt", 0o640))

	md, err := mc.Stat(ctx, "/a.txt")
	require.NoError(t, err)
	assert.True(t, md.HasMode)
	assert.Equal(t, uint32(0o640), md.Mode)

	mc.ForceSync(ctx)
	backendMD, err := inner.Stat(ctx, "/a.txt")
	require.NoError(t, err)
	assert.True(t, backendMD.HasMode)
	assert.Equal(t, uint32(0o640), backendMD.Mode)
}

func TestSymlinkCreateAndReadlink(t *testing.T) {
	mc, inner := newTestMemoryCache()
	ctx := context.Background()

	require.NoError(t, mc.Symlink(ctx, "/target", "/link"))
	target, err := mc.Readlink(ctx, "/link")
	require.NoError(t, err)
	assert.Equal(t, "/target", target)

	mc.ForceSync(ctx)
	target, err = inner.Readlink(ctx, "/link")
	require.NoError(t, err)
	assert.Equal(t, "/target", target)
}

func TestCapabilitiesPromotedWhenInnerWritable(t *testing.T) {
	mc, _ := newTestMemoryCache()
	caps := mc.Capabilities()
	assert.True(t, caps.RandomWrite)
	assert.True(t, caps.Truncate)
	assert.True(t, caps.Rename)
	assert.True(t, caps.SetMode)
	assert.True(t, caps.Symlink)
}

func TestCapabilitiesNotPromotedWhenInnerReadOnly(t *testing.T) {
	inner := faketest.New()
	ro := &readOnlyConnector{Connector: inner}
	mc := NewMemoryCache(ro, DefaultMemoryCacheConfig(), nil)
	caps := mc.Capabilities()
	assert.False(t, caps.RandomWrite)
	assert.False(t, caps.Truncate)
	assert.False(t, caps.Rename)
	assert.True(t, caps.SetMode)
	assert.True(t, caps.Symlink)
}

func TestTruncateExtendsWithZeros(t *testing.T) {
	mc, _ := newTestMemoryCache()
	ctx := context.Background()

	require.NoError(t, mc.CreateFile(ctx, "/a.txt"))
	_, err := mc.Write(ctx, "/a.txt", 0, []byte("ab"))
	require.NoError(t, err)
	require.NoError(t, mc.Truncate(ctx, "/a.txt", 4))

	data, err := mc.Read(ctx, "/a.txt", 0, 4)
	require.NoError(t, err)
	assert.Equal(t, []byte{'a', 'b', 0, 0}, data)
}

func TestExcludePatternDropsPendingWithoutSyncing(t *testing.T) {
	inner := faketest.New()
	cfg := DefaultMemoryCacheConfig()
	cfg.FlushInterval = 0
	cfg.ExcludePatterns = []string{"/tmp/**"}
	mc := NewMemoryCache(inner, cfg, nil)
	ctx := context.Background()

	require.NoError(t, mc.CreateDir(ctx, "/tmp"))
	require.NoError(t, mc.CreateFile(ctx, "/tmp/scratch.txt"))

	mc.ForceSync(ctx)

	_, err := inner.Stat(ctx, "/tmp")
	assert.True(t, ferrors.Is(err, ferrors.KindNotFound))

	md, err := mc.Stat(ctx, "/tmp/scratch.txt")
	require.NoError(t, err)
	assert.Equal(t, uint64(0), md.Size)
}

// readOnlyConnector wraps a faketest.Connector but reports read-only
// capabilities, for exercising capability-promotion logic without
// needing a second fake implementation.
type readOnlyConnector struct {
	*faketest.Connector
}

func (r *readOnlyConnector) Capabilities() model.Capabilities {
	return model.ReadOnlyCapabilities()
}
