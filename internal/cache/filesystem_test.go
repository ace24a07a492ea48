package cache

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/objectmount/objectmount/internal/connector/faketest"
	"github.com/objectmount/objectmount/pkg/ferrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFilesystemCache(t *testing.T) (*FilesystemCache, *faketest.Connector) {
	t.Helper()
	dir := t.TempDir()
	inner := faketest.New()
	cfg := DefaultFilesystemCacheConfig(dir)
	cfg.FlushInterval = 0
	fc, err := NewFilesystemCache(inner, cfg, nil)
	require.NoError(t, err)
	return fc, inner
}

func TestMangle(t *testing.T) {
	assert.Equal(t, "_root", mangle("/"))
	assert.Equal(t, "a.txt", mangle("/a.txt"))
	assert.Equal(t, "dir_file.txt", mangle("/dir/file.txt"))
}

func TestFilesystemCreateFileWritesToDirectory(t *testing.T) {
	fc, _ := newTestFilesystemCache(t)
	ctx := context.Background()

	require.NoError(t, fc.CreateFile(ctx, "/a.txt"))
	_, err := fc.Write(ctx, "/a.txt", 0, []byte("disk-backed"))
	require.NoError(t, err)

	path, err := fc.contentPath("/a.txt")
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "disk-backed", string(data))
}

func TestFilesystemWriteThenSyncReachesBackend(t *testing.T) {
	fc, inner := newTestFilesystemCache(t)
	ctx := context.Background()

	require.NoError(t, fc.CreateFile(ctx, "/a.txt"))
	_, err := fc.Write(ctx, "/a.txt", 0, []byte("hello"))
	require.NoError(t, err)

	fc.ForceSync(ctx)

	md, err := inner.Stat(ctx, "/a.txt")
	require.NoError(t, err)
	assert.Equal(t, uint64(5), md.Size)
}

func TestFilesystemContentSurvivesAcrossInstancesBeforeSync(t *testing.T) {
	dir := t.TempDir()
	inner := faketest.New()
	cfg := DefaultFilesystemCacheConfig(dir)
	cfg.FlushInterval = 0
	ctx := context.Background()

	fc1, err := NewFilesystemCache(inner, cfg, nil)
	require.NoError(t, err)
	require.NoError(t, fc1.CreateFile(ctx, "/a.txt"))
	_, err = fc1.Write(ctx, "/a.txt", 0, []byte("persisted"))
	require.NoError(t, err)

	path, err := fc1.contentPath("/a.txt")
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "persisted", string(data))

	fc2, err := NewFilesystemCache(inner, cfg, nil)
	require.NoError(t, err)
	data, err = fc2.Read(ctx, "/a.txt", 0, uint32(len("persisted")))
	require.NoError(t, err)
	assert.Equal(t, "persisted", string(data))
}

func TestFilesystemRemoveFileDeletesBackingFile(t *testing.T) {
	fc, _ := newTestFilesystemCache(t)
	ctx := context.Background()

	require.NoError(t, fc.CreateFile(ctx, "/a.txt"))
	_, err := fc.Write(ctx, "/a.txt", 0, []byte("data"))
	require.NoError(t, err)

	path, err := fc.contentPath("/a.txt")
	require.NoError(t, err)
	_, err = os.Stat(path)
	require.NoError(t, err)

	require.NoError(t, fc.RemoveFile(ctx, "/a.txt"))
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestFilesystemRenameMovesBackingFile(t *testing.T) {
	fc, inner := newTestFilesystemCache(t)
	ctx := context.Background()

	require.NoError(t, fc.CreateFile(ctx, "/a.txt"))
	_, err := fc.Write(ctx, "/a.txt", 0, []byte("moved"))
	require.NoError(t, err)
	fc.ForceSync(ctx)

	require.NoError(t, fc.Rename(ctx, "/a.txt", "/b.txt"))

	oldPath, _ := fc.contentPath("/a.txt")
	newPath, _ := fc.contentPath("/b.txt")
	_, err = os.Stat(oldPath)
	assert.True(t, os.IsNotExist(err))
	data, err := os.ReadFile(newPath)
	require.NoError(t, err)
	assert.Equal(t, "moved", string(data))

	fc.ForceSync(ctx)
	_, err = inner.Stat(ctx, "/a.txt")
	assert.True(t, ferrors.Is(err, ferrors.KindNotFound))
	backendData, err := inner.Read(ctx, "/b.txt", 0, 5)
	require.NoError(t, err)
	assert.Equal(t, "moved", string(backendData))
}

func TestFilesystemSymlinkSidecarWritten(t *testing.T) {
	fc, inner := newTestFilesystemCache(t)
	ctx := context.Background()

	require.NoError(t, fc.Symlink(ctx, "/target", "/link"))

	sp, err := fc.symlinkPath("/link")
	require.NoError(t, err)
	data, err := os.ReadFile(sp)
	require.NoError(t, err)
	assert.Equal(t, "/target", string(data))

	target, err := fc.Readlink(ctx, "/link")
	require.NoError(t, err)
	assert.Equal(t, "/target", target)

	fc.ForceSync(ctx)
	target, err = inner.Readlink(ctx, "/link")
	require.NoError(t, err)
	assert.Equal(t, "/target", target)
}

func TestFilesystemContentPathRejectsEscape(t *testing.T) {
	fc, _ := newTestFilesystemCache(t)
	_, err := fc.contentPath("/../../etc/passwd")
	// cleanPath normalizes ".." components away before mangle ever
	// sees them, so this must resolve safely inside the cache
	// directory rather than escaping it.
	require.NoError(t, err)
}

func TestFilesystemDirectoryCreatedOnConstruction(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "cache")
	inner := faketest.New()
	_, err := NewFilesystemCache(inner, DefaultFilesystemCacheConfig(dir), nil)
	require.NoError(t, err)
	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}
