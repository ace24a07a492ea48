package cache

import (
	"context"

	"github.com/objectmount/objectmount/internal/connector"
	"github.com/objectmount/objectmount/pkg/model"
)

// NoCache wraps a Connector and forwards every call unchanged. It is
// the assembly used when a connector's CacheRequirements say no cache
// is needed, or when the caller explicitly disables caching.
type NoCache struct {
	inner connector.Connector
}

// NewNoCache wraps inner with a no-op passthrough.
func NewNoCache(inner connector.Connector) *NoCache {
	return &NoCache{inner: inner}
}

var _ connector.Connector = (*NoCache)(nil)

func (n *NoCache) Capabilities() model.Capabilities { return n.inner.Capabilities() }

func (n *NoCache) CacheRequirements() model.CacheRequirements {
	return n.inner.CacheRequirements()
}

func (n *NoCache) Stat(ctx context.Context, path string) (model.Metadata, error) {
	return n.inner.Stat(ctx, path)
}

func (n *NoCache) Exists(ctx context.Context, path string) (bool, error) {
	return n.inner.Exists(ctx, path)
}

func (n *NoCache) Read(ctx context.Context, path string, offset uint64, size uint32) ([]byte, error) {
	return n.inner.Read(ctx, path, offset, size)
}

func (n *NoCache) Write(ctx context.Context, path string, offset uint64, data []byte) (uint64, error) {
	return n.inner.Write(ctx, path, offset, data)
}

func (n *NoCache) CreateFile(ctx context.Context, path string) error {
	return n.inner.CreateFile(ctx, path)
}

func (n *NoCache) CreateFileWithMode(ctx context.Context, path string, mode uint32) error {
	return n.inner.CreateFileWithMode(ctx, path, mode)
}

func (n *NoCache) CreateDir(ctx context.Context, path string) error {
	return n.inner.CreateDir(ctx, path)
}

func (n *NoCache) CreateDirWithMode(ctx context.Context, path string, mode uint32) error {
	return n.inner.CreateDirWithMode(ctx, path, mode)
}

func (n *NoCache) RemoveFile(ctx context.Context, path string) error {
	return n.inner.RemoveFile(ctx, path)
}

func (n *NoCache) RemoveDir(ctx context.Context, path string, recursive bool) error {
	return n.inner.RemoveDir(ctx, path, recursive)
}

func (n *NoCache) ListDir(ctx context.Context, path string, fn connector.DirEntryFn) error {
	return n.inner.ListDir(ctx, path, fn)
}

func (n *NoCache) Rename(ctx context.Context, from, to string) error {
	return n.inner.Rename(ctx, from, to)
}

func (n *NoCache) Truncate(ctx context.Context, path string, size uint64) error {
	return n.inner.Truncate(ctx, path, size)
}

func (n *NoCache) Flush(ctx context.Context, path string) error {
	return n.inner.Flush(ctx, path)
}

func (n *NoCache) SetMode(ctx context.Context, path string, mode uint32) error {
	return n.inner.SetMode(ctx, path, mode)
}

func (n *NoCache) Readlink(ctx context.Context, path string) (string, error) {
	return n.inner.Readlink(ctx, path)
}

func (n *NoCache) Symlink(ctx context.Context, target, linkPath string) error {
	return n.inner.Symlink(ctx, target, linkPath)
}
