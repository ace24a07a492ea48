package fuseadapter

import (
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
)

// MountManager drives a FileSystem's lifecycle against the kernel
// through the primary go-fuse binding: mounting, waiting for unmount,
// and unmounting on request.
type MountManager struct {
	fsys       *FileSystem
	mountPoint string
	logger     *slog.Logger

	mu     sync.Mutex
	server *fuse.Server
}

// NewMountManager returns a MountManager for fsys, not yet mounted.
func NewMountManager(fsys *FileSystem, mountPoint string, logger *slog.Logger) *MountManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &MountManager{fsys: fsys, mountPoint: mountPoint, logger: logger.With("component", "mount")}
}

func (m *MountManager) buildOptions() *fs.Options {
	cfg := m.fsys.config
	attrTTL := cfg.AttrTTL
	entryTTL := cfg.EntryTTL
	opts := &fs.Options{
		MountOptions: fuse.MountOptions{
			Name:        "objectmount",
			FsName:      "objectmount",
			DirectMount: true,
			AllowOther:  cfg.AllowOther,
		},
		AttrTimeout:  &attrTTL,
		EntryTimeout: &entryTTL,
	}
	if cfg.ReadOnly {
		opts.Options = append(opts.Options, "ro")
	}
	return opts
}

// Mount mounts the filesystem at the configured mount point and
// returns once the mount is established; serving continues in the
// background until Unmount is called or the kernel tears the mount
// down out-of-band.
func (m *MountManager) Mount() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.server != nil {
		return fmt.Errorf("already mounted at %s", m.mountPoint)
	}
	if err := os.MkdirAll(m.mountPoint, 0o755); err != nil {
		return fmt.Errorf("create mount point: %w", err)
	}

	server, err := fs.Mount(m.mountPoint, m.fsys.Root(), m.buildOptions())
	if err != nil {
		return fmt.Errorf("mount at %s: %w", m.mountPoint, err)
	}
	m.server = server
	m.logger.Info("mounted", "mount_point", m.mountPoint)
	return nil
}

// Wait blocks until the mount is torn down (by Unmount or externally).
func (m *MountManager) Wait() {
	m.mu.Lock()
	server := m.server
	m.mu.Unlock()
	if server != nil {
		server.Wait()
	}
}

// Unmount tears the mount down.
func (m *MountManager) Unmount() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.server == nil {
		return nil
	}
	if err := m.server.Unmount(); err != nil {
		return fmt.Errorf("unmount %s: %w", m.mountPoint, err)
	}
	m.server = nil
	m.logger.Info("unmounted", "mount_point", m.mountPoint)
	return nil
}
