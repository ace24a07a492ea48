// Package fuseadapter implements the kernel-facing upcall translation
// described by the external interface table: a DirectoryNode/FileNode/
// FileHandle split atop github.com/hanwen/go-fuse/v2/fs, backed by a
// connector.Connector (ordinarily a cache-wrapping decorator) and an
// inode.Table for path<->inode bookkeeping. The kernel never sees a
// backend directly; every upcall resolves through whatever Connector
// the caller assembled the filesystem with.
package fuseadapter

import (
	"context"
	"log/slog"
	"sync"
	"syscall"
	"time"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/objectmount/objectmount/internal/connector"
	"github.com/objectmount/objectmount/internal/inode"
	"github.com/objectmount/objectmount/internal/metrics"
	"github.com/objectmount/objectmount/pkg/ferrors"
	"github.com/objectmount/objectmount/pkg/model"
)

// Config controls the mounted filesystem's kernel-visible attributes
// and a handful of upcall behaviors that don't belong on the connector
// contract itself.
type Config struct {
	ReadOnly    bool
	AllowOther  bool
	DefaultUID  uint32
	DefaultGID  uint32
	DefaultMode uint32
	AttrTTL     time.Duration
	EntryTTL    time.Duration
}

// DefaultConfig returns the settings used when a caller doesn't
// override them: a 1s attribute TTL (per the kernel surface table)
// and permissive default ownership for backends that don't track
// POSIX mode bits.
func DefaultConfig() Config {
	return Config{
		DefaultUID:  uint32(0),
		DefaultGID:  uint32(0),
		DefaultMode: 0644,
		AttrTTL:     time.Second,
		EntryTTL:    time.Second,
	}
}

// openFile is the bookkeeping record behind a live file handle,
// mirroring the teacher's OpenFile struct.
type openFile struct {
	path        string
	flags       uint32
	lastAccess  time.Time
	accessCount uint64
}

// Stats tracks per-upcall counters and an exponential moving average
// of latency per operation, following the teacher's (avg*9+new)/10
// update rule.
type Stats struct {
	mu sync.RWMutex

	Lookups uint64
	Opens   uint64
	Reads   uint64
	Writes  uint64
	Creates uint64
	Errors  uint64

	BytesRead    uint64
	BytesWritten uint64

	AvgLookupTime time.Duration
	AvgReadTime   time.Duration
	AvgWriteTime  time.Duration
}

func (s *Stats) recordLookup(d time.Duration) { s.recordAvg(&s.AvgLookupTime, &s.Lookups, d) }
func (s *Stats) recordRead(d time.Duration)   { s.recordAvg(&s.AvgReadTime, &s.Reads, d) }
func (s *Stats) recordWrite(d time.Duration)  { s.recordAvg(&s.AvgWriteTime, &s.Writes, d) }

func (s *Stats) recordAvg(avg *time.Duration, counter *uint64, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if *counter <= 1 {
		*avg = d
		return
	}
	*avg = time.Duration((int64(*avg)*9 + int64(d)) / 10)
}

func (s *Stats) incr(counter *uint64) {
	s.mu.Lock()
	*counter++
	s.mu.Unlock()
}

func (s *Stats) snapshot() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c := *s
	c.mu = sync.RWMutex{}
	return c
}

// safeInt64ToUint64 clamps a negative int64 to zero rather than
// wrapping into a huge unsigned value the kernel would misread as a
// multi-exabyte file.
func safeInt64ToUint64(i int64) uint64 {
	if i < 0 {
		return 0
	}
	return uint64(i)
}

// FileSystem is the InodeEmbedder root of the mounted tree.
type FileSystem struct {
	fs.Inode

	conn   connector.Connector
	inodes *inode.Table
	config Config
	log    *slog.Logger

	mu         sync.Mutex
	openFiles  map[uint64]*openFile
	nextHandle uint64

	stats   *Stats
	metrics *metrics.Collector
}

// New builds a FileSystem ready to be passed to fs.Mount's root.
func New(conn connector.Connector, config Config, logger *slog.Logger) *FileSystem {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileSystem{
		conn:      conn,
		inodes:    inode.New(),
		config:    config,
		log:       logger.With("component", "fuseadapter"),
		openFiles: make(map[uint64]*openFile),
		stats:     &Stats{},
	}
}

// Root returns the root directory node.
func (f *FileSystem) Root() fs.InodeEmbedder {
	return &DirectoryNode{fsys: f, path: "/"}
}

// Stats returns a point-in-time copy of the upcall counters.
func (f *FileSystem) Stats() Stats {
	return f.stats.snapshot()
}

// SetMetrics attaches a collector for per-upcall latency and error-rate
// instrumentation. Optional: a FileSystem with no collector attached
// (the zero value, nil) behaves exactly as before.
func (f *FileSystem) SetMetrics(collector *metrics.Collector) {
	f.metrics = collector
}

// recordUpcall reports one upcall's latency and outcome to the
// attached collector (a no-op if none is attached). err is the
// connector-level error, not the syscall.Errno translated from it, so
// ferrors.KindOf still resolves to a meaningful label.
func (f *FileSystem) recordUpcall(op string, start time.Time, err error) {
	f.metrics.RecordUpcall(op, time.Since(start), err)
}

func (f *FileSystem) allocHandle() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextHandle++
	return f.nextHandle
}

func (f *FileSystem) registerHandle(h uint64, of *openFile) {
	f.mu.Lock()
	f.openFiles[h] = of
	f.mu.Unlock()
}

func (f *FileSystem) releaseHandle(h uint64) {
	f.mu.Lock()
	delete(f.openFiles, h)
	f.mu.Unlock()
}

func normalizeMode(requested uint32) uint32 {
	return requested & 07777
}

func fileTypeToFuseMode(t model.FileType) uint32 {
	switch t {
	case model.Directory:
		return fuse.S_IFDIR
	case model.Symlink:
		return fuse.S_IFLNK
	default:
		return fuse.S_IFREG
	}
}

func (f *FileSystem) fillAttr(out *fuse.Attr, md model.Metadata) {
	out.Size = md.Size
	out.Mode = fileTypeToFuseMode(md.FileType)
	if md.HasMode {
		out.Mode |= md.Mode & 07777
	} else {
		out.Mode |= f.config.DefaultMode
	}
	out.Uid = f.config.DefaultUID
	out.Gid = f.config.DefaultGID
	t := safeInt64ToUint64(md.Mtime.Unix())
	out.Mtime, out.Atime, out.Ctime = t, t, t
}

func (f *FileSystem) setEntryOut(out *fuse.EntryOut, ino uint64, md model.Metadata) {
	out.NodeId = ino
	out.Generation = 1
	out.SetEntryTimeout(f.config.EntryTTL)
	out.SetAttrTimeout(f.config.AttrTTL)
	f.fillAttr(&out.Attr, md)
}

// DirectoryNode represents one directory in the mounted tree.
type DirectoryNode struct {
	fs.Inode
	fsys *FileSystem
	path string
}

var _ fs.NodeLookuper = (*DirectoryNode)(nil)
var _ fs.NodeReaddirer = (*DirectoryNode)(nil)
var _ fs.NodeMkdirer = (*DirectoryNode)(nil)
var _ fs.NodeCreater = (*DirectoryNode)(nil)
var _ fs.NodeUnlinker = (*DirectoryNode)(nil)
var _ fs.NodeRmdirer = (*DirectoryNode)(nil)
var _ fs.NodeRenamer = (*DirectoryNode)(nil)
var _ fs.NodeSymlinker = (*DirectoryNode)(nil)
var _ fs.NodeGetattrer = (*DirectoryNode)(nil)
var _ fs.NodeStatfser = (*DirectoryNode)(nil)

func (n *DirectoryNode) child(name string) string {
	if n.path == "/" {
		return "/" + name
	}
	return n.path + "/" + name
}

func (n *DirectoryNode) newChildInode(ctx context.Context, childPath string, md model.Metadata) *fs.Inode {
	ino := n.fsys.inodes.GetOrCreate(childPath)
	attr := fs.StableAttr{Mode: fileTypeToFuseMode(md.FileType), Ino: ino}
	if md.FileType == model.Directory {
		return n.NewInode(ctx, &DirectoryNode{fsys: n.fsys, path: childPath}, attr)
	}
	return n.NewInode(ctx, &FileNode{fsys: n.fsys, path: childPath}, attr)
}

// Lookup resolves a child by stat, per the kernel surface's
// lookup->stat(parent/name) translation, allocating an inode on
// success.
func (n *DirectoryNode) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	start := time.Now()
	defer func() { n.fsys.stats.recordLookup(time.Since(start)) }()
	n.fsys.stats.incr(&n.fsys.stats.Lookups)

	childPath := n.child(name)
	md, err := n.fsys.conn.Stat(ctx, childPath)
	defer n.fsys.recordUpcall("lookup", start, err)
	if err != nil {
		if !ferrors.Is(err, ferrors.KindNotFound) {
			n.fsys.stats.incr(&n.fsys.stats.Errors)
			n.fsys.log.Warn("lookup failed", "path", childPath, "error", err)
		}
		return nil, ferrors.Errno(err)
	}

	ino := n.fsys.inodes.GetOrCreate(childPath)
	n.fsys.setEntryOut(out, ino, md)
	return n.newChildInode(ctx, childPath, md), 0
}

type dirStreamEntry struct {
	name string
	mode uint32
}

type listDirStream struct {
	entries []dirStreamEntry
	i       int
}

func (s *listDirStream) HasNext() bool { return s.i < len(s.entries) }
func (s *listDirStream) Next() (fuse.DirEntry, syscall.Errno) {
	e := s.entries[s.i]
	s.i++
	return fuse.DirEntry{Name: e.name, Mode: e.mode}, 0
}
func (s *listDirStream) Close() {}

// Readdir lists the directory via list_dir, prepending "." and ".."
// per the kernel surface table.
func (n *DirectoryNode) Readdir(ctx context.Context) (fs.DirStream, syscall.Errno) {
	start := time.Now()
	entries := []dirStreamEntry{
		{name: ".", mode: fuse.S_IFDIR},
		{name: "..", mode: fuse.S_IFDIR},
	}
	err := n.fsys.conn.ListDir(ctx, n.path, func(e model.DirEntry) error {
		entries = append(entries, dirStreamEntry{name: e.Name, mode: fileTypeToFuseMode(e.FileType)})
		return nil
	})
	n.fsys.recordUpcall("readdir", start, err)
	if err != nil {
		n.fsys.stats.incr(&n.fsys.stats.Errors)
		n.fsys.log.Warn("readdir failed", "path", n.path, "error", err)
		return nil, ferrors.Errno(err)
	}
	return &listDirStream{entries: entries}, 0
}

// Mkdir creates a directory via create_dir_with_mode, normalizing mode
// to create(mode) ∧ ¬umask ∧ 07777 per the table (umask application is
// the kernel's responsibility before the mode reaches this upcall;
// here we only mask to the 12 permission bits).
func (n *DirectoryNode) Mkdir(ctx context.Context, name string, mode uint32, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	start := time.Now()
	var err error
	defer func() { n.fsys.recordUpcall("mkdir", start, err) }()
	if n.fsys.config.ReadOnly {
		return nil, syscall.EROFS
	}
	childPath := n.child(name)
	if err = n.fsys.conn.CreateDirWithMode(ctx, childPath, normalizeMode(mode)); err != nil {
		n.fsys.stats.incr(&n.fsys.stats.Errors)
		return nil, ferrors.Errno(err)
	}
	var md model.Metadata
	md, err = n.fsys.conn.Stat(ctx, childPath)
	if err != nil {
		return nil, ferrors.Errno(err)
	}
	ino := n.fsys.inodes.GetOrCreate(childPath)
	n.fsys.setEntryOut(out, ino, md)
	return n.newChildInode(ctx, childPath, md), 0
}

// Create creates a file via create_file_with_mode then opens it,
// returning a FileHandle for subsequent Read/Write upcalls.
func (n *DirectoryNode) Create(ctx context.Context, name string, flags uint32, mode uint32, out *fuse.EntryOut) (*fs.Inode, fs.FileHandle, uint32, syscall.Errno) {
	start := time.Now()
	var err error
	defer func() { n.fsys.recordUpcall("create", start, err) }()
	if n.fsys.config.ReadOnly {
		return nil, nil, 0, syscall.EROFS
	}
	childPath := n.child(name)
	if err = n.fsys.conn.CreateFileWithMode(ctx, childPath, normalizeMode(mode)); err != nil {
		n.fsys.stats.incr(&n.fsys.stats.Errors)
		return nil, nil, 0, ferrors.Errno(err)
	}
	n.fsys.stats.incr(&n.fsys.stats.Creates)

	var md model.Metadata
	md, err = n.fsys.conn.Stat(ctx, childPath)
	if err != nil {
		return nil, nil, 0, ferrors.Errno(err)
	}
	ino := n.fsys.inodes.GetOrCreate(childPath)
	n.fsys.setEntryOut(out, ino, md)
	childInode := n.newChildInode(ctx, childPath, md)

	fileNode := childInode.Operations().(*FileNode)
	fh, fuseFlags, errno := fileNode.open(ctx, flags)
	return childInode, fh, fuseFlags, errno
}

// Unlink removes a file via remove_file, then drops its inode.
func (n *DirectoryNode) Unlink(ctx context.Context, name string) syscall.Errno {
	start := time.Now()
	if n.fsys.config.ReadOnly {
		return syscall.EROFS
	}
	childPath := n.child(name)
	err := n.fsys.conn.RemoveFile(ctx, childPath)
	n.fsys.recordUpcall("unlink", start, err)
	if err != nil {
		n.fsys.stats.incr(&n.fsys.stats.Errors)
		return ferrors.Errno(err)
	}
	n.fsys.inodes.Remove(childPath)
	return 0
}

// Rmdir removes an empty directory via remove_dir(false), then drops
// its inode.
func (n *DirectoryNode) Rmdir(ctx context.Context, name string) syscall.Errno {
	start := time.Now()
	if n.fsys.config.ReadOnly {
		return syscall.EROFS
	}
	childPath := n.child(name)
	err := n.fsys.conn.RemoveDir(ctx, childPath, false)
	n.fsys.recordUpcall("rmdir", start, err)
	if err != nil {
		n.fsys.stats.incr(&n.fsys.stats.Errors)
		return ferrors.Errno(err)
	}
	n.fsys.inodes.Remove(childPath)
	return 0
}

// Rename calls the connector's rename, then updates the inode table to
// preserve inode identity across the move (the kernel relies on this
// to keep open file handles valid through a rename).
func (n *DirectoryNode) Rename(ctx context.Context, name string, newParent fs.InodeEmbedder, newName string, flags uint32) syscall.Errno {
	start := time.Now()
	if n.fsys.config.ReadOnly {
		return syscall.EROFS
	}
	from := n.child(name)
	newDir, ok := newParent.(*DirectoryNode)
	if !ok {
		return syscall.EINVAL
	}
	to := newDir.child(newName)

	err := n.fsys.conn.Rename(ctx, from, to)
	n.fsys.recordUpcall("rename", start, err)
	if err != nil {
		n.fsys.stats.incr(&n.fsys.stats.Errors)
		return ferrors.Errno(err)
	}
	n.fsys.inodes.Rename(from, to)
	return 0
}

// Symlink creates a symlink via the connector's Symlink call.
func (n *DirectoryNode) Symlink(ctx context.Context, target, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	start := time.Now()
	var err error
	defer func() { n.fsys.recordUpcall("symlink", start, err) }()
	if n.fsys.config.ReadOnly {
		return nil, syscall.EROFS
	}
	linkPath := n.child(name)
	if err = n.fsys.conn.Symlink(ctx, target, linkPath); err != nil {
		n.fsys.stats.incr(&n.fsys.stats.Errors)
		return nil, ferrors.Errno(err)
	}
	var md model.Metadata
	md, err = n.fsys.conn.Stat(ctx, linkPath)
	if err != nil {
		return nil, ferrors.Errno(err)
	}
	ino := n.fsys.inodes.GetOrCreate(linkPath)
	n.fsys.setEntryOut(out, ino, md)
	return n.newChildInode(ctx, linkPath, md), 0
}

// Getattr on the directory itself resolves through the same stat path
// as a file's Getattr.
func (n *DirectoryNode) Getattr(ctx context.Context, fh fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	start := time.Now()
	md, err := n.fsys.conn.Stat(ctx, n.path)
	n.fsys.recordUpcall("getattr", start, err)
	if err != nil {
		return ferrors.Errno(err)
	}
	out.SetTimeout(n.fsys.config.AttrTTL)
	n.fsys.fillAttr(&out.Attr, md)
	return 0
}

// Statfs reports the dummy capacity figures the kernel surface table
// calls for: effectively unlimited space, 4096-byte blocks, 255-byte
// names.
func (n *DirectoryNode) Statfs(ctx context.Context, out *fuse.StatfsOut) syscall.Errno {
	out.Blocks = ^uint64(0)
	out.Bfree = ^uint64(0)
	out.Bavail = ^uint64(0)
	out.Files = ^uint64(0)
	out.Ffree = ^uint64(0)
	out.Bsize = 4096
	out.NameLen = 255
	out.Frsize = 4096
	return 0
}

// FileNode represents one regular file or symlink in the mounted
// tree.
type FileNode struct {
	fs.Inode
	fsys *FileSystem
	path string
}

var _ fs.NodeOpener = (*FileNode)(nil)
var _ fs.NodeGetattrer = (*FileNode)(nil)
var _ fs.NodeSetattrer = (*FileNode)(nil)
var _ fs.NodeReadlinker = (*FileNode)(nil)
var _ fs.NodeAccesser = (*FileNode)(nil)

func (f *FileNode) open(ctx context.Context, flags uint32) (fs.FileHandle, uint32, syscall.Errno) {
	f.fsys.stats.incr(&f.fsys.stats.Opens)

	wantsWrite := flags&(syscall.O_WRONLY|syscall.O_RDWR) != 0
	if f.fsys.config.ReadOnly && wantsWrite {
		return nil, 0, syscall.EROFS
	}

	h := f.fsys.allocHandle()
	of := &openFile{path: f.path, flags: flags, lastAccess: time.Now(), accessCount: 1}
	f.fsys.registerHandle(h, of)

	return &FileHandle{fsys: f.fsys, handle: h, file: of}, 0, 0
}

// Open allocates a FileHandle backing subsequent Read/Write/Flush
// upcalls on this file.
func (f *FileNode) Open(ctx context.Context, flags uint32) (fs.FileHandle, uint32, syscall.Errno) {
	return f.open(ctx, flags)
}

// Getattr resolves via stat, with a 1s TTL returned to the kernel.
func (f *FileNode) Getattr(ctx context.Context, fh fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	start := time.Now()
	md, err := f.fsys.conn.Stat(ctx, f.path)
	f.fsys.recordUpcall("getattr", start, err)
	if err != nil {
		return ferrors.Errno(err)
	}
	out.SetTimeout(f.fsys.config.AttrTTL)
	f.fsys.fillAttr(&out.Attr, md)
	return 0
}

// Setattr handles both mode changes (set_mode then stat) and size
// changes (truncate then stat), per the kernel surface table. Both
// may be requested in a single upcall; mode is applied before size.
func (f *FileNode) Setattr(ctx context.Context, fh fs.FileHandle, in *fuse.SetAttrIn, out *fuse.AttrOut) syscall.Errno {
	start := time.Now()
	var err error
	defer func() { f.fsys.recordUpcall("setattr", start, err) }()
	if f.fsys.config.ReadOnly {
		return syscall.EROFS
	}
	if mode, ok := in.GetMode(); ok {
		if err = f.fsys.conn.SetMode(ctx, f.path, normalizeMode(mode)); err != nil {
			return ferrors.Errno(err)
		}
	}
	if size, ok := in.GetSize(); ok {
		if err = f.fsys.conn.Truncate(ctx, f.path, size); err != nil {
			return ferrors.Errno(err)
		}
	}
	var md model.Metadata
	md, err = f.fsys.conn.Stat(ctx, f.path)
	if err != nil {
		return ferrors.Errno(err)
	}
	out.SetTimeout(f.fsys.config.AttrTTL)
	f.fsys.fillAttr(&out.Attr, md)
	return 0
}

// Readlink resolves a symlink's target through the connector.
func (f *FileNode) Readlink(ctx context.Context) ([]byte, syscall.Errno) {
	target, err := f.fsys.conn.Readlink(ctx, f.path)
	if err != nil {
		return nil, ferrors.Errno(err)
	}
	return []byte(target), 0
}

// Access translates to exists, per the kernel surface table.
func (f *FileNode) Access(ctx context.Context, mask uint32) syscall.Errno {
	ok, err := f.fsys.conn.Exists(ctx, f.path)
	if err != nil {
		return ferrors.Errno(err)
	}
	if !ok {
		return syscall.ENOENT
	}
	return 0
}

// FileHandle is the per-open state behind a live file descriptor.
type FileHandle struct {
	fsys   *FileSystem
	handle uint64
	file   *openFile
}

var _ fs.FileReader = (*FileHandle)(nil)
var _ fs.FileWriter = (*FileHandle)(nil)
var _ fs.FileFlusher = (*FileHandle)(nil)
var _ fs.FileFsyncer = (*FileHandle)(nil)
var _ fs.FileReleaser = (*FileHandle)(nil)

// Read returns up to len(dest) bytes at off via the connector's Read.
func (fh *FileHandle) Read(ctx context.Context, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	start := time.Now()
	defer func() { fh.fsys.stats.recordRead(time.Since(start)) }()
	fh.fsys.stats.incr(&fh.fsys.stats.Reads)

	fh.file.lastAccess = time.Now()
	fh.file.accessCount++

	data, err := fh.fsys.conn.Read(ctx, fh.file.path, uint64(off), uint32(len(dest)))
	fh.fsys.recordUpcall("read", start, err)
	if err != nil {
		fh.fsys.stats.incr(&fh.fsys.stats.Errors)
		return nil, ferrors.Errno(err)
	}
	fh.fsys.stats.mu.Lock()
	fh.fsys.stats.BytesRead += uint64(len(data))
	fh.fsys.stats.mu.Unlock()
	return fuse.ReadResultData(data), 0
}

// Write passes data straight through to the connector; the cache
// layer underneath is what makes this terminate locally.
func (fh *FileHandle) Write(ctx context.Context, data []byte, off int64) (uint32, syscall.Errno) {
	if fh.fsys.config.ReadOnly {
		return 0, syscall.EROFS
	}
	start := time.Now()
	defer func() { fh.fsys.stats.recordWrite(time.Since(start)) }()
	fh.fsys.stats.incr(&fh.fsys.stats.Writes)

	n, err := fh.fsys.conn.Write(ctx, fh.file.path, uint64(off), data)
	fh.fsys.recordUpcall("write", start, err)
	if err != nil {
		fh.fsys.stats.incr(&fh.fsys.stats.Errors)
		return 0, ferrors.Errno(err)
	}
	fh.fsys.stats.mu.Lock()
	fh.fsys.stats.BytesWritten += n
	fh.fsys.stats.mu.Unlock()
	return uint32(n), 0
}

// Flush and Fsync both translate to the connector's durability
// barrier for this path.
func (fh *FileHandle) Flush(ctx context.Context) syscall.Errno {
	start := time.Now()
	err := fh.fsys.conn.Flush(ctx, fh.file.path)
	fh.fsys.recordUpcall("flush", start, err)
	if err != nil {
		fh.fsys.stats.incr(&fh.fsys.stats.Errors)
		return ferrors.Errno(err)
	}
	return 0
}

func (fh *FileHandle) Fsync(ctx context.Context, flags uint32) syscall.Errno {
	return fh.Flush(ctx)
}

// Release drops the handle's bookkeeping entry. Any unflushed state is
// the cache layer's responsibility, not this handle's.
func (fh *FileHandle) Release(ctx context.Context) syscall.Errno {
	fh.fsys.releaseHandle(fh.handle)
	return 0
}
