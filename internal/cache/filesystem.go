package cache

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/objectmount/objectmount/internal/connector"
	"github.com/objectmount/objectmount/internal/metrics"
	"github.com/objectmount/objectmount/pkg/ferrors"
	"github.com/objectmount/objectmount/pkg/model"
)

// FilesystemCacheConfig tunes a FilesystemCache instance.
type FilesystemCacheConfig struct {
	Directory       string
	FlushInterval   time.Duration
	MetadataTTL     time.Duration
	ExcludePatterns []string
}

// DefaultFilesystemCacheConfig returns a cache rooted at directory
// with a 10s flush interval and 5s metadata TTL.
func DefaultFilesystemCacheConfig(directory string) FilesystemCacheConfig {
	return FilesystemCacheConfig{
		Directory:     directory,
		FlushInterval: 10 * time.Second,
		MetadataTTL:   5 * time.Second,
	}
}

const symlinkSidecarSuffix = ".symlink"

// mangle turns an absolute path into the flat filename its content is
// stored under: leading slash stripped, every remaining "/" replaced
// with "_", and the root itself named "_root".
func mangle(p string) string {
	p = cleanPath(p)
	if p == "/" {
		return "_root"
	}
	return strings.ReplaceAll(strings.TrimPrefix(p, "/"), "/", "_")
}

// FilesystemCache is the disk-spilling write-back cache connector
// wrapper: content lives under Directory as flat files named by
// mangle(path), symlink targets in ".symlink" sidecar files alongside
// them. Metadata, pending-change, mode, directory-listing, and
// negative-cache state live in-process exactly as in MemoryCache
// (surviving only as long as the process does — only content, not
// cache bookkeeping, is persisted across restarts).
type FilesystemCache struct {
	inner   connector.Connector
	config  FilesystemCacheConfig
	log     *slog.Logger
	metrics *metrics.Collector

	pending  *shardedMap[model.PendingChange]
	metadata *shardedMap[cachedMetadata]
	mode     *shardedMap[uint32]
	dirs     *shardedMap[cachedDirListing]
	negative *shardedMap[time.Time]
	exclude  *excludeMatcher

	sizeMu sync.Mutex // guards per-path content file access ordering

	syncMu      sync.Mutex
	syncRunning bool

	shutdownCh   chan struct{}
	shutdownOnce sync.Once
	loopDone     chan struct{}
}

var _ connector.Connector = (*FilesystemCache)(nil)

// NewFilesystemCache wraps inner with a disk-backed write-back cache
// rooted at config.Directory, creating the directory if needed, and
// starts its background reconciler goroutine.
func NewFilesystemCache(inner connector.Connector, config FilesystemCacheConfig, logger *slog.Logger) (*FilesystemCache, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(config.Directory, 0o750); err != nil {
		return nil, fmt.Errorf("creating filesystem cache directory: %w", err)
	}
	fc := &FilesystemCache{
		inner:      inner,
		config:     config,
		log:        logger.With("component", "filesystem-cache"),
		pending:    newShardedMap[model.PendingChange](),
		metadata:   newShardedMap[cachedMetadata](),
		mode:       newShardedMap[uint32](),
		dirs:       newShardedMap[cachedDirListing](),
		negative:   newShardedMap[time.Time](),
		exclude:    newExcludeMatcher(config.ExcludePatterns),
		shutdownCh: make(chan struct{}),
		loopDone:   make(chan struct{}),
	}
	go fc.reconcileLoop()
	return fc, nil
}

// SetMetrics attaches a collector for cache hit/miss and reconcile
// pass instrumentation. Optional: a FilesystemCache with no collector
// attached (the zero value, nil) behaves exactly as before.
func (fc *FilesystemCache) SetMetrics(collector *metrics.Collector) {
	fc.metrics = collector
}

// contentPath returns the on-disk path for a path's content file,
// guarded to never resolve outside config.Directory.
func (fc *FilesystemCache) contentPath(p string) (string, error) {
	full := filepath.Join(fc.config.Directory, mangle(p))
	cleanDir := filepath.Clean(fc.config.Directory)
	if !strings.HasPrefix(filepath.Clean(full), cleanDir+string(filepath.Separator)) && filepath.Clean(full) != cleanDir {
		return "", fmt.Errorf("content path %q escapes cache directory", full)
	}
	return full, nil
}

func (fc *FilesystemCache) symlinkPath(p string) (string, error) {
	base, err := fc.contentPath(p)
	if err != nil {
		return "", err
	}
	return base + symlinkSidecarSuffix, nil
}

func (fc *FilesystemCache) readContentFile(p string) ([]byte, bool) {
	path, err := fc.contentPath(p)
	if err != nil {
		return nil, false
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}
	return data, true
}

func (fc *FilesystemCache) writeContentFile(p string, data []byte) error {
	path, err := fc.contentPath(p)
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o640); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func (fc *FilesystemCache) removeContentFile(p string) {
	if path, err := fc.contentPath(p); err == nil {
		_ = os.Remove(path)
	}
}

func (fc *FilesystemCache) contentSize(p string) (uint64, bool) {
	path, err := fc.contentPath(p)
	if err != nil {
		return 0, false
	}
	fi, err := os.Stat(path)
	if err != nil {
		return 0, false
	}
	return uint64(fi.Size()), true
}

func (fc *FilesystemCache) reconcileLoop() {
	defer close(fc.loopDone)
	if fc.config.FlushInterval <= 0 {
		<-fc.shutdownCh
		return
	}
	ticker := time.NewTicker(fc.config.FlushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-fc.shutdownCh:
			return
		case <-ticker.C:
			fc.runPassGuarded(context.Background())
		}
	}
}

func (fc *FilesystemCache) runPassGuarded(ctx context.Context) {
	fc.syncMu.Lock()
	if fc.syncRunning {
		fc.syncMu.Unlock()
		return
	}
	fc.syncRunning = true
	fc.syncMu.Unlock()
	defer func() {
		fc.syncMu.Lock()
		fc.syncRunning = false
		fc.syncMu.Unlock()
	}()

	runReconcilePass(ctx, fc.log, fc.metrics, fc.pending, fc.readContentFile, fc.inner, fc.exclude)
}

// ForceSync runs one reconciliation pass synchronously.
func (fc *FilesystemCache) ForceSync(ctx context.Context) {
	fc.runPassGuarded(ctx)
}

// Close signals the reconciler to stop, waits for it to exit, and runs
// one final synchronous pass. Unlike MemoryCache, content already on
// disk survives the process even if pending changes remain.
func (fc *FilesystemCache) Close(ctx context.Context) {
	fc.shutdownOnce.Do(func() { close(fc.shutdownCh) })
	<-fc.loopDone
	fc.runPassGuarded(ctx)
	if n := fc.pending.Len(); n > 0 {
		fc.log.Warn("filesystem cache closed with unsynced pending changes", "count", n)
	}
}

func (fc *FilesystemCache) Capabilities() model.Capabilities {
	caps := fc.inner.Capabilities()
	if caps.Write {
		caps.RandomWrite = true
		caps.Truncate = true
		caps.Rename = true
	}
	caps.SetMode = true
	caps.Symlink = true
	return caps
}

func (fc *FilesystemCache) CacheRequirements() model.CacheRequirements {
	return model.CacheRequirements{WriteBuffer: model.CacheNone, ReadCache: false}
}

func (fc *FilesystemCache) invalidateParentDir(path string) {
	fc.dirs.Delete(parentPath(path))
}

func (fc *FilesystemCache) statInternal(ctx context.Context, path string) (model.Metadata, error) {
	path = cleanPath(path)

	if pc, ok := fc.pending.Get(path); ok {
		if pc.Type.IsDelete() {
			return model.Metadata{}, ferrors.NotFound(path)
		}
		md := model.Metadata{Mtime: time.Now()}
		if m, ok := fc.mode.Get(path); ok {
			md.Mode, md.HasMode = m, true
		} else if pc.HasMode {
			md.Mode, md.HasMode = pc.Mode, true
		}
		switch pc.Type {
		case model.NewDirectory:
			md.FileType = model.Directory
		case model.NewSymlink:
			md.FileType = model.Symlink
			md.Size = uint64(len(pc.SymlinkTarget))
		default:
			md.FileType = model.File
			if sz, ok := fc.contentSize(path); ok {
				md.Size = sz
			}
		}
		return md, nil
	}

	if cm, ok := fc.metadata.Get(path); ok && time.Since(cm.cachedAt) < fc.config.MetadataTTL {
		return cm.metadata, nil
	}

	if sz, ok := fc.contentSize(path); ok {
		md := model.Metadata{FileType: model.File, Size: sz, Mtime: time.Now()}
		if m, ok := fc.mode.Get(path); ok {
			md.Mode, md.HasMode = m, true
		}
		fc.metadata.Set(path, cachedMetadata{metadata: md, cachedAt: time.Now()})
		return md, nil
	}

	for _, anc := range ancestors(path) {
		if pc, ok := fc.pending.Get(anc); ok && pc.Type == model.NewDirectory {
			return model.Metadata{}, ferrors.NotFound(path)
		}
	}

	if at, ok := fc.negative.Get(path); ok && time.Since(at) < fc.config.MetadataTTL {
		return model.Metadata{}, ferrors.NotFound(path)
	}

	md, err := fc.inner.Stat(ctx, path)
	if err != nil {
		if ferrors.Is(err, ferrors.KindNotFound) {
			fc.negative.Set(path, time.Now())
		}
		return model.Metadata{}, err
	}
	fc.metadata.Set(path, cachedMetadata{metadata: md, cachedAt: time.Now()})
	return md, nil
}

func (fc *FilesystemCache) Stat(ctx context.Context, path string) (model.Metadata, error) {
	return fc.statInternal(ctx, path)
}

func (fc *FilesystemCache) Exists(ctx context.Context, path string) (bool, error) {
	return connector.ExistsViaStat(ctx, fc, path)
}

func (fc *FilesystemCache) fetchAndInstall(ctx context.Context, path string) error {
	data, err := fc.inner.Read(ctx, path, 0, wholeFile)
	if err != nil {
		return err
	}
	if err := fc.writeContentFile(path, data); err != nil {
		return ferrors.IO(path, err)
	}
	return nil
}

func (fc *FilesystemCache) Read(ctx context.Context, path string, offset uint64, size uint32) ([]byte, error) {
	path = cleanPath(path)
	if pc, ok := fc.pending.Get(path); ok && pc.Type.IsDelete() {
		return nil, ferrors.NotFound(path)
	}
	data, ok := fc.readContentFile(path)
	if !ok {
		fc.metrics.RecordCacheMiss("filesystem")
		if err := fc.fetchAndInstall(ctx, path); err != nil {
			return nil, err
		}
		data, ok = fc.readContentFile(path)
		if !ok {
			return nil, ferrors.NotFound(path)
		}
	} else {
		fc.metrics.RecordCacheHit("filesystem")
	}
	if offset >= uint64(len(data)) {
		return nil, nil
	}
	end := offset + uint64(size)
	if end > uint64(len(data)) {
		end = uint64(len(data))
	}
	return data[offset:end], nil
}

func (fc *FilesystemCache) Write(ctx context.Context, path string, offset uint64, data []byte) (uint64, error) {
	path = cleanPath(path)
	fc.sizeMu.Lock()
	defer fc.sizeMu.Unlock()

	pc, hasPending := fc.pending.Get(path)
	pendingCreate := hasPending && pc.Type == model.NewFile

	existing, ok := fc.readContentFile(path)
	if !ok && offset > 0 && !pendingCreate {
		if _, err := fc.inner.Stat(ctx, path); err == nil {
			if err := fc.fetchAndInstall(ctx, path); err != nil {
				return 0, err
			}
			existing, _ = fc.readContentFile(path)
		}
	}

	end := offset + uint64(len(data))
	if end > uint64(len(existing)) {
		grown := make([]byte, end)
		copy(grown, existing)
		existing = grown
	}
	copy(existing[offset:end], data)

	if err := fc.writeContentFile(path, existing); err != nil {
		return 0, ferrors.IO(path, err)
	}

	newType := model.ModifiedFile
	if hasPending && pc.Type == model.NewFile {
		newType = model.NewFile
	}
	next := model.PendingChange{Type: newType, CreatedAt: firstNonZero(pc.CreatedAt)}
	if hasPending && pc.HasMode {
		next.Mode, next.HasMode = pc.Mode, true
	}
	fc.pending.Set(path, next)
	fc.metadata.Delete(path)
	return uint64(len(data)), nil
}

func (fc *FilesystemCache) createFile(path string, mode uint32, hasMode bool) error {
	path = cleanPath(path)
	if err := fc.writeContentFile(path, []byte{}); err != nil {
		return ferrors.IO(path, err)
	}
	pc := model.PendingChange{Type: model.NewFile, CreatedAt: time.Now()}
	if hasMode {
		pc.Mode, pc.HasMode = mode, true
	}
	fc.pending.Set(path, pc)
	fc.negative.Delete(path)
	fc.invalidateParentDir(path)
	return nil
}

func (fc *FilesystemCache) ensureAbsent(ctx context.Context, path string) error {
	if _, err := fc.statInternal(ctx, path); err == nil {
		return ferrors.AlreadyExists(path)
	} else if !ferrors.Is(err, ferrors.KindNotFound) {
		return err
	}
	return nil
}

func (fc *FilesystemCache) CreateFile(ctx context.Context, path string) error {
	if err := fc.ensureAbsent(ctx, path); err != nil {
		return err
	}
	return fc.createFile(path, 0, false)
}

func (fc *FilesystemCache) CreateFileWithMode(ctx context.Context, path string, mode uint32) error {
	if err := fc.ensureAbsent(ctx, path); err != nil {
		return err
	}
	return fc.createFile(path, mode, true)
}

func (fc *FilesystemCache) createDir(path string, mode uint32, hasMode bool) error {
	path = cleanPath(path)
	pc := model.PendingChange{Type: model.NewDirectory, CreatedAt: time.Now()}
	if hasMode {
		pc.Mode, pc.HasMode = mode, true
	}
	fc.pending.Set(path, pc)
	fc.negative.Delete(path)
	fc.invalidateParentDir(path)
	return nil
}

func (fc *FilesystemCache) CreateDir(ctx context.Context, path string) error {
	if err := fc.ensureAbsent(ctx, path); err != nil {
		return err
	}
	return fc.createDir(path, 0, false)
}

func (fc *FilesystemCache) CreateDirWithMode(ctx context.Context, path string, mode uint32) error {
	if err := fc.ensureAbsent(ctx, path); err != nil {
		return err
	}
	return fc.createDir(path, mode, true)
}

func (fc *FilesystemCache) dropLocal(path string) {
	fc.pending.Delete(path)
	fc.removeContentFile(path)
	fc.metadata.Delete(path)
	fc.mode.Delete(path)
	if sp, err := fc.symlinkPath(path); err == nil {
		_ = os.Remove(sp)
	}
}

func (fc *FilesystemCache) remove(ctx context.Context, path string, dirDelete bool) error {
	path = cleanPath(path)
	if pc, ok := fc.pending.Get(path); ok {
		if pc.Type.IsCreate() {
			fc.dropLocal(path)
			fc.invalidateParentDir(path)
			return nil
		}
	} else if at, ok := fc.negative.Get(path); ok && time.Since(at) < fc.config.MetadataTTL {
		return nil
	}
	delType := model.DeletedFile
	if dirDelete {
		delType = model.DeletedDirectory
	}
	fc.removeContentFile(path)
	fc.metadata.Delete(path)
	fc.mode.Delete(path)
	fc.pending.Set(path, model.PendingChange{Type: delType, CreatedAt: time.Now()})
	fc.invalidateParentDir(path)
	return nil
}

func (fc *FilesystemCache) RemoveFile(ctx context.Context, path string) error {
	return fc.remove(ctx, path, false)
}

func (fc *FilesystemCache) isDirEmpty(ctx context.Context, path string) (bool, error) {
	entries, err := fc.mergedListing(ctx, path)
	if err != nil {
		return false, err
	}
	return len(entries) == 0, nil
}

func (fc *FilesystemCache) RemoveDir(ctx context.Context, path string, recursive bool) error {
	path = cleanPath(path)
	if !recursive {
		empty, err := fc.isDirEmpty(ctx, path)
		if err != nil {
			return err
		}
		if !empty {
			return ferrors.NotEmpty(path)
		}
	}
	return fc.remove(ctx, path, true)
}

func (fc *FilesystemCache) mergedListing(ctx context.Context, path string) ([]model.DirEntry, error) {
	path = cleanPath(path)

	if pc, ok := fc.pending.Get(path); ok && pc.Type == model.NewDirectory {
		var out []model.DirEntry
		for key, childPC := range fc.pending.Snapshot() {
			if parentPath(key) != path || !childPC.Type.IsCreate() {
				continue
			}
			out = append(out, model.DirEntry{Name: baseName(key), FileType: pendingFileType(childPC)})
		}
		return out, nil
	}

	var base []model.DirEntry
	if dl, ok := fc.dirs.Get(path); ok && time.Since(dl.cachedAt) < fc.config.MetadataTTL {
		base = dl.entries
	} else {
		var collected []model.DirEntry
		err := fc.inner.ListDir(ctx, path, func(e model.DirEntry) error {
			collected = append(collected, e)
			return nil
		})
		if err != nil {
			return nil, err
		}
		fc.dirs.Set(path, cachedDirListing{entries: collected, cachedAt: time.Now()})
		base = collected
	}

	present := make(map[string]bool, len(base))
	out := make([]model.DirEntry, 0, len(base))
	for _, e := range base {
		child := joinPath(path, e.Name)
		if pc, ok := fc.pending.Get(child); ok && pc.Type.IsDelete() {
			continue
		}
		present[e.Name] = true
		out = append(out, e)
	}
	for key, childPC := range fc.pending.Snapshot() {
		if parentPath(key) != path || !childPC.Type.IsCreate() {
			continue
		}
		name := baseName(key)
		if present[name] {
			continue
		}
		out = append(out, model.DirEntry{Name: name, FileType: pendingFileType(childPC)})
	}
	return out, nil
}

func (fc *FilesystemCache) ListDir(ctx context.Context, path string, fn connector.DirEntryFn) error {
	entries, err := fc.mergedListing(ctx, path)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if err := fn(e); err != nil {
			return err
		}
	}
	return nil
}

// renameContentFile moves a path's backing content file (and its
// symlink sidecar, if any) to the destination's mangled name, when
// present. Both names are flat filenames under the same directory, so
// this is a simple os.Rename with no path rewriting beyond re-mangling.
func (fc *FilesystemCache) renameContentFile(from, to string) {
	fromPath, err := fc.contentPath(from)
	if err != nil {
		return
	}
	if _, statErr := os.Stat(fromPath); statErr == nil {
		if toPath, err := fc.contentPath(to); err == nil {
			_ = os.Rename(fromPath, toPath)
		}
	}
	fromSidecar, err := fc.symlinkPath(from)
	if err != nil {
		return
	}
	if _, statErr := os.Stat(fromSidecar); statErr == nil {
		if toSidecar, err := fc.symlinkPath(to); err == nil {
			_ = os.Rename(fromSidecar, toSidecar)
		}
	}
}

func (fc *FilesystemCache) Rename(ctx context.Context, from, to string) error {
	from, to = cleanPath(from), cleanPath(to)

	if pcFrom, ok := fc.pending.GetAndDelete(from); ok {
		if pcFrom.Type == model.ModifiedFile {
			// The source also exists on the backend: tombstone it there
			// and create the content afresh at the destination.
			fc.pending.Set(from, model.PendingChange{Type: model.DeletedFile, CreatedAt: time.Now()})
			pcFrom.Type = model.NewFile
		}
		fc.pending.Set(to, pcFrom)
	} else {
		md, err := fc.statInternal(ctx, from)
		if err != nil {
			return err
		}
		switch md.FileType {
		case model.Directory:
			fc.pending.Set(from, model.PendingChange{Type: model.DeletedDirectory, CreatedAt: time.Now()})
			fc.pending.Set(to, model.PendingChange{Type: model.NewDirectory, Mode: md.Mode, HasMode: md.HasMode, CreatedAt: time.Now()})
		case model.Symlink:
			target, _ := fc.Readlink(ctx, from)
			fc.pending.Set(from, model.PendingChange{Type: model.DeletedFile, CreatedAt: time.Now()})
			fc.pending.Set(to, model.PendingChange{Type: model.NewSymlink, SymlinkTarget: target, Mode: md.Mode, HasMode: md.HasMode, CreatedAt: time.Now()})
		default:
			fc.pending.Set(from, model.PendingChange{Type: model.DeletedFile, CreatedAt: time.Now()})
			fc.pending.Set(to, model.PendingChange{Type: model.NewFile, Mode: md.Mode, HasMode: md.HasMode, CreatedAt: time.Now()})
		}
	}

	fc.renameContentFile(from, to)
	if m, ok := fc.mode.GetAndDelete(from); ok {
		fc.mode.Set(to, m)
	}
	fc.metadata.Delete(from)
	fc.metadata.Delete(to)
	fc.negative.Delete(to)

	for key, pc := range fc.pending.Snapshot() {
		if key == from || !isStrictDescendant(key, from) {
			continue
		}
		fc.pending.Delete(key)
		newKey := rewritePrefix(key, from, to)
		fc.pending.Set(newKey, pc)
		fc.renameContentFile(key, newKey)
	}
	for key, m := range fc.mode.Snapshot() {
		if key == from || !isStrictDescendant(key, from) {
			continue
		}
		fc.mode.Delete(key)
		fc.mode.Set(rewritePrefix(key, from, to), m)
	}
	for key := range fc.metadata.Snapshot() {
		if isStrictDescendant(key, from) {
			fc.metadata.Delete(key)
		}
	}

	fc.dirs.Delete(from)
	fc.invalidateParentDir(from)
	fc.invalidateParentDir(to)
	return nil
}

func (fc *FilesystemCache) Truncate(ctx context.Context, path string, size uint64) error {
	path = cleanPath(path)
	data, ok := fc.readContentFile(path)
	if !ok {
		if pc, ok := fc.pending.Get(path); !ok || !pc.Type.IsCreate() {
			if err := fc.fetchAndInstall(ctx, path); err != nil {
				return err
			}
			data, _ = fc.readContentFile(path)
		}
	}
	if size <= uint64(len(data)) {
		data = data[:size]
	} else {
		grown := make([]byte, size)
		copy(grown, data)
		data = grown
	}
	if err := fc.writeContentFile(path, data); err != nil {
		return ferrors.IO(path, err)
	}

	pc, hasPending := fc.pending.Get(path)
	newType := model.ModifiedFile
	if hasPending && pc.Type == model.NewFile {
		newType = model.NewFile
	}
	next := model.PendingChange{Type: newType, CreatedAt: firstNonZero(pc.CreatedAt)}
	if hasPending && pc.HasMode {
		next.Mode, next.HasMode = pc.Mode, true
	}
	fc.pending.Set(path, next)
	fc.metadata.Delete(path)
	return nil
}

func (fc *FilesystemCache) Flush(ctx context.Context, path string) error {
	return nil
}

func (fc *FilesystemCache) SetMode(ctx context.Context, path string, mode uint32) error {
	path = cleanPath(path)
	fc.mode.Set(path, mode)
	fc.metadata.Delete(path)
	if pc, ok := fc.pending.Get(path); ok {
		pc.Mode, pc.HasMode = mode, true
		fc.pending.Set(path, pc)
	}
	return nil
}

func (fc *FilesystemCache) Readlink(ctx context.Context, path string) (string, error) {
	path = cleanPath(path)
	if pc, ok := fc.pending.Get(path); ok && pc.Type == model.NewSymlink {
		return pc.SymlinkTarget, nil
	}
	return fc.inner.Readlink(ctx, path)
}

func (fc *FilesystemCache) Symlink(ctx context.Context, target, linkPath string) error {
	linkPath = cleanPath(linkPath)
	fc.dropLocal(linkPath)
	sp, err := fc.symlinkPath(linkPath)
	if err == nil {
		_ = os.WriteFile(sp, []byte(target), 0o640)
	}
	fc.pending.Set(linkPath, model.PendingChange{Type: model.NewSymlink, SymlinkTarget: target, CreatedAt: time.Now()})
	fc.negative.Delete(linkPath)
	fc.invalidateParentDir(linkPath)
	return nil
}
