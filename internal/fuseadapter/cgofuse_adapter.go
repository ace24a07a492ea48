//go:build cgofuse
// +build cgofuse

// Cross-platform mount path for macOS/Windows, carried from the
// teacher's dual cgofuse binding and re-pointed at connector.Connector
// instead of types.Backend/types.Cache. Not built or exercised by the
// default toolchain invocation (cgo plus a kernel driver are required);
// kept wired rather than deleted per the teacher's own two-binding
// structure.
package fuseadapter

import (
	"context"
	"log/slog"
	"sync"

	"github.com/winfsp/cgofuse/fuse"

	"github.com/objectmount/objectmount/internal/connector"
	"github.com/objectmount/objectmount/pkg/ferrors"
	"github.com/objectmount/objectmount/pkg/model"
)

// CgoFuseAdapter implements fuse.FileSystemInterface directly against
// a connector.Connector, path-addressed the same way cgofuse itself
// is — no inode table is needed on this path since cgofuse never asks
// the frontend to allocate one.
type CgoFuseAdapter struct {
	fuse.FileSystemBase

	conn   connector.Connector
	config Config
	log    *slog.Logger

	mu         sync.Mutex
	openFiles  map[uint64]string
	nextHandle uint64

	host *fuse.FileSystemHost
}

// NewCgoFuseAdapter builds an adapter ready to pass to
// fuse.NewFileSystemHost.
func NewCgoFuseAdapter(conn connector.Connector, config Config, logger *slog.Logger) *CgoFuseAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &CgoFuseAdapter{
		conn:      conn,
		config:    config,
		log:       logger.With("component", "cgofuse-adapter"),
		openFiles: make(map[uint64]string),
	}
}

// Mount starts the host filesystem at mountpoint in a background
// goroutine, following the teacher's fire-and-forget cgofuse.Mount
// call.
func (a *CgoFuseAdapter) Mount(ctx context.Context, mountpoint string) {
	a.host = fuse.NewFileSystemHost(a)
	options := []string{"-o", "fsname=objectmount"}
	if a.config.AllowOther {
		options = append(options, "-o", "allow_other")
	}
	go a.host.Mount(mountpoint, options)
}

// Unmount stops the host filesystem.
func (a *CgoFuseAdapter) Unmount() bool {
	if a.host == nil {
		return true
	}
	return a.host.Unmount()
}

func errnoOf(err error) int {
	if err == nil {
		return 0
	}
	return -ferrors.KindOf(err).Errno()
}

func fillStat(stat *fuse.Stat_t, md model.Metadata, cfg Config) {
	switch md.FileType {
	case model.Directory:
		stat.Mode = fuse.S_IFDIR | 0755
		stat.Nlink = 2
	case model.Symlink:
		stat.Mode = fuse.S_IFLNK | 0777
		stat.Nlink = 1
		stat.Size = int64(md.Size)
	default:
		mode := cfg.DefaultMode
		if md.HasMode {
			mode = md.Mode & 07777
		}
		stat.Mode = fuse.S_IFREG | mode
		stat.Nlink = 1
		stat.Size = int64(md.Size)
	}
	stat.Mtim.Sec = md.Mtime.Unix()
}

// Getattr translates to stat, with the root short-circuited the way
// the teacher's cgofuse binding does.
func (a *CgoFuseAdapter) Getattr(path string, stat *fuse.Stat_t, fh uint64) int {
	if path == "/" {
		stat.Mode = fuse.S_IFDIR | 0755
		stat.Nlink = 2
		return 0
	}
	md, err := a.conn.Stat(context.Background(), path)
	if err != nil {
		return errnoOf(err)
	}
	fillStat(stat, md, a.config)
	return 0
}

func (a *CgoFuseAdapter) Open(path string, flags int) (int, uint64) {
	a.mu.Lock()
	a.nextHandle++
	h := a.nextHandle
	a.openFiles[h] = path
	a.mu.Unlock()
	return 0, h
}

func (a *CgoFuseAdapter) Create(path string, flags int, mode uint32) (int, uint64) {
	if err := a.conn.CreateFileWithMode(context.Background(), path, mode&07777); err != nil {
		return errnoOf(err), 0
	}
	return a.Open(path, flags)
}

func (a *CgoFuseAdapter) Read(path string, buff []byte, ofst int64, fh uint64) int {
	data, err := a.conn.Read(context.Background(), path, uint64(ofst), uint32(len(buff)))
	if err != nil {
		return errnoOf(err)
	}
	copy(buff, data)
	return len(data)
}

func (a *CgoFuseAdapter) Write(path string, buff []byte, ofst int64, fh uint64) int {
	n, err := a.conn.Write(context.Background(), path, uint64(ofst), buff)
	if err != nil {
		return errnoOf(err)
	}
	return int(n)
}

func (a *CgoFuseAdapter) Release(path string, fh uint64) int {
	a.mu.Lock()
	delete(a.openFiles, fh)
	a.mu.Unlock()
	return 0
}

func (a *CgoFuseAdapter) Flush(path string, fh uint64) int {
	if err := a.conn.Flush(context.Background(), path); err != nil {
		return errnoOf(err)
	}
	return 0
}

func (a *CgoFuseAdapter) Fsync(path string, datasync bool, fh uint64) int {
	return a.Flush(path, fh)
}

func (a *CgoFuseAdapter) Mkdir(path string, mode uint32) int {
	if err := a.conn.CreateDirWithMode(context.Background(), path, mode&07777); err != nil {
		return errnoOf(err)
	}
	return 0
}

func (a *CgoFuseAdapter) Unlink(path string) int {
	if err := a.conn.RemoveFile(context.Background(), path); err != nil {
		return errnoOf(err)
	}
	return 0
}

func (a *CgoFuseAdapter) Rmdir(path string) int {
	if err := a.conn.RemoveDir(context.Background(), path, false); err != nil {
		return errnoOf(err)
	}
	return 0
}

func (a *CgoFuseAdapter) Rename(oldpath, newpath string) int {
	if err := a.conn.Rename(context.Background(), oldpath, newpath); err != nil {
		return errnoOf(err)
	}
	return 0
}

func (a *CgoFuseAdapter) Truncate(path string, size int64, fh uint64) int {
	if err := a.conn.Truncate(context.Background(), path, uint64(size)); err != nil {
		return errnoOf(err)
	}
	return 0
}

func (a *CgoFuseAdapter) Chmod(path string, mode uint32) int {
	if err := a.conn.SetMode(context.Background(), path, mode&07777); err != nil {
		return errnoOf(err)
	}
	return 0
}

func (a *CgoFuseAdapter) Readlink(path string) (int, string) {
	target, err := a.conn.Readlink(context.Background(), path)
	if err != nil {
		return errnoOf(err), ""
	}
	return 0, target
}

func (a *CgoFuseAdapter) Symlink(target, newpath string) int {
	if err := a.conn.Symlink(context.Background(), target, newpath); err != nil {
		return errnoOf(err)
	}
	return 0
}

func (a *CgoFuseAdapter) Access(path string, mask uint32) int {
	ok, err := a.conn.Exists(context.Background(), path)
	if err != nil {
		return errnoOf(err)
	}
	if !ok {
		return -int(fuse.ENOENT)
	}
	return 0
}

func (a *CgoFuseAdapter) Readdir(path string, fill func(name string, stat *fuse.Stat_t, ofst int64) bool, ofst int64, fh uint64) int {
	fill(".", nil, 0)
	fill("..", nil, 0)

	err := a.conn.ListDir(context.Background(), path, func(e model.DirEntry) error {
		stat := &fuse.Stat_t{}
		switch e.FileType {
		case model.Directory:
			stat.Mode = fuse.S_IFDIR | 0755
			stat.Nlink = 2
		default:
			stat.Mode = fuse.S_IFREG | a.config.DefaultMode
			stat.Nlink = 1
		}
		if !fill(e.Name, stat, 0) {
			return errStopReaddir
		}
		return nil
	})
	if err != nil && err != errStopReaddir {
		return errnoOf(err)
	}
	return 0
}

func (a *CgoFuseAdapter) Statfs(path string, stat *fuse.Statfs_t) int {
	stat.Bsize = 4096
	stat.Frsize = 4096
	stat.Blocks = ^uint64(0)
	stat.Bfree = ^uint64(0)
	stat.Bavail = ^uint64(0)
	stat.Namemax = 255
	return 0
}

var errStopReaddir = &readdirStop{}

type readdirStop struct{}

func (*readdirStop) Error() string { return "readdir stopped by fill" }
