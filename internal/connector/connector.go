// Package connector defines the capability-declaring, path-addressed
// storage contract every backend (and every cache wrapper) in
// objectmount satisfies.
package connector

import (
	"context"

	"github.com/objectmount/objectmount/pkg/ferrors"
	"github.com/objectmount/objectmount/pkg/model"
)

// DirEntryFn is called once per directory entry by ListDir. Returning
// a non-nil error aborts the listing and that error is returned from
// ListDir.
type DirEntryFn func(model.DirEntry) error

// Connector is a stateless, path-addressed store. A connector must be
// safe to call concurrently from multiple goroutines; internal
// synchronization is its own responsibility. Per-path atomicity is
// not required at this layer — the cache wrapper provides it.
type Connector interface {
	// Capabilities returns the declared capability set. Stable for the
	// lifetime of the connector.
	Capabilities() model.Capabilities

	// CacheRequirements hints to the assembler whether a cache layer
	// is mandatory in front of this connector.
	CacheRequirements() model.CacheRequirements

	Stat(ctx context.Context, path string) (model.Metadata, error)

	// Exists defaults to Stat mapping NotFound to false; connectors
	// may override for a cheaper existence check.
	Exists(ctx context.Context, path string) (bool, error)

	// Read returns up to size bytes starting at offset. A read at or
	// past EOF returns zero bytes, not NotFound.
	Read(ctx context.Context, path string, offset uint64, size uint32) ([]byte, error)

	// Write returns the number of bytes written. Connectors without
	// RandomWrite must reject offset != 0 with NotSupported.
	Write(ctx context.Context, path string, offset uint64, data []byte) (uint64, error)

	CreateFile(ctx context.Context, path string) error
	CreateFileWithMode(ctx context.Context, path string, mode uint32) error
	CreateDir(ctx context.Context, path string) error
	CreateDirWithMode(ctx context.Context, path string, mode uint32) error

	RemoveFile(ctx context.Context, path string) error
	// RemoveDir returns NotEmpty if recursive is false and the
	// directory is non-empty.
	RemoveDir(ctx context.Context, path string, recursive bool) error

	// ListDir streams directory entries to fn. Iteration may be
	// aborted early by fn returning an error.
	ListDir(ctx context.Context, path string, fn DirEntryFn) error

	// Rename is atomic from the caller's perspective when supported,
	// else returns NotSupported.
	Rename(ctx context.Context, from, to string) error

	// Truncate may return NotSupported.
	Truncate(ctx context.Context, path string, size uint64) error

	// Flush is a durability barrier for a single file.
	Flush(ctx context.Context, path string) error

	// SetMode, Readlink, and Symlink are optional by capability; a
	// connector that doesn't declare the corresponding capability
	// returns NotSupported.
	SetMode(ctx context.Context, path string, mode uint32) error
	Readlink(ctx context.Context, path string) (string, error)
	Symlink(ctx context.Context, target, linkPath string) error
}

// ExistsViaStat implements the default Exists behavior described by
// the connector contract: Stat, then map NotFound to false. Connector
// implementations that have no cheaper existence check delegate to
// this helper.
func ExistsViaStat(ctx context.Context, c Connector, path string) (bool, error) {
	_, err := c.Stat(ctx, path)
	if err == nil {
		return true, nil
	}
	if ferrors.Is(err, ferrors.KindNotFound) {
		return false, nil
	}
	return false, err
}
