// Package cache provides the write-back cache connector wrappers:
// NoCache (passthrough), MemoryCache (process-heap content, bounded by
// entry count and byte size with LRU eviction), and FilesystemCache
// (content spilled to a local directory, surviving process restart).
// Both write-back variants share the reconciliation algorithm in
// reconciler.go and present identical semantics to callers; they
// differ only in where content bytes live and whether eviction
// applies.
package cache

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/objectmount/objectmount/internal/connector"
	"github.com/objectmount/objectmount/internal/metrics"
	"github.com/objectmount/objectmount/pkg/ferrors"
	"github.com/objectmount/objectmount/pkg/model"
)

// wholeFile is the sentinel size a connector interprets as "read to
// end of file" rather than a literal byte count — the cache always
// pulls a whole object on first touch (range reads are a performance,
// not correctness, concern the distilled spec explicitly defers).
const wholeFile = math.MaxUint32

// MemoryCacheConfig tunes a MemoryCache instance.
type MemoryCacheConfig struct {
	MaxEntries      int
	MaxBytes        int64
	FlushInterval   time.Duration
	MetadataTTL     time.Duration
	ExcludePatterns []string
}

// DefaultMemoryCacheConfig returns sane defaults: 100k entries, 512MiB,
// a 10s flush interval, and a 5s metadata TTL.
func DefaultMemoryCacheConfig() MemoryCacheConfig {
	return MemoryCacheConfig{
		MaxEntries:    100_000,
		MaxBytes:      512 << 20,
		FlushInterval: 10 * time.Second,
		MetadataTTL:   5 * time.Second,
	}
}

type contentEntry struct {
	data         []byte
	lastAccessed time.Time
}

type cachedMetadata struct {
	metadata model.Metadata
	cachedAt time.Time
}

type cachedDirListing struct {
	entries  []model.DirEntry
	cachedAt time.Time
}

// MemoryCache is the in-memory write-back cache connector wrapper.
type MemoryCache struct {
	inner   connector.Connector
	config  MemoryCacheConfig
	log     *slog.Logger
	metrics *metrics.Collector

	content  *shardedMap[*contentEntry]
	pending  *shardedMap[model.PendingChange]
	metadata *shardedMap[cachedMetadata]
	mode     *shardedMap[uint32]
	dirs     *shardedMap[cachedDirListing]
	negative *shardedMap[time.Time]
	exclude  *excludeMatcher

	syncMu      sync.Mutex
	syncRunning bool

	shutdownCh   chan struct{}
	shutdownOnce sync.Once
	loopDone     chan struct{}
}

var _ connector.Connector = (*MemoryCache)(nil)

// NewMemoryCache wraps inner with a bounded in-memory write-back
// cache and starts its background reconciler goroutine.
func NewMemoryCache(inner connector.Connector, config MemoryCacheConfig, logger *slog.Logger) *MemoryCache {
	if logger == nil {
		logger = slog.Default()
	}
	mc := &MemoryCache{
		inner:      inner,
		config:     config,
		log:        logger.With("component", "memory-cache"),
		content:    newShardedMap[*contentEntry](),
		pending:    newShardedMap[model.PendingChange](),
		metadata:   newShardedMap[cachedMetadata](),
		mode:       newShardedMap[uint32](),
		dirs:       newShardedMap[cachedDirListing](),
		negative:   newShardedMap[time.Time](),
		exclude:    newExcludeMatcher(config.ExcludePatterns),
		shutdownCh: make(chan struct{}),
		loopDone:   make(chan struct{}),
	}
	go mc.reconcileLoop()
	return mc
}

// SetMetrics attaches a collector for cache hit/miss and reconcile
// pass instrumentation. Optional: a MemoryCache with no collector
// attached (the zero value, nil) behaves exactly as before.
func (mc *MemoryCache) SetMetrics(collector *metrics.Collector) {
	mc.metrics = collector
}

func (mc *MemoryCache) reconcileLoop() {
	defer close(mc.loopDone)
	if mc.config.FlushInterval <= 0 {
		<-mc.shutdownCh
		return
	}
	ticker := time.NewTicker(mc.config.FlushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-mc.shutdownCh:
			return
		case <-ticker.C:
			mc.runPassGuarded(context.Background())
		}
	}
}

func (mc *MemoryCache) runPassGuarded(ctx context.Context) {
	mc.syncMu.Lock()
	if mc.syncRunning {
		mc.syncMu.Unlock()
		return
	}
	mc.syncRunning = true
	mc.syncMu.Unlock()
	defer func() {
		mc.syncMu.Lock()
		mc.syncRunning = false
		mc.syncMu.Unlock()
	}()

	runReconcilePass(ctx, mc.log, mc.metrics, mc.pending, mc.fetchContent, mc.inner, mc.exclude)
}

func (mc *MemoryCache) fetchContent(path string) ([]byte, bool) {
	ce, ok := mc.content.Get(path)
	if !ok {
		return nil, false
	}
	return ce.data, true
}

// ForceSync runs one reconciliation pass synchronously, waiting for it
// to complete before returning, for callers (and tests) that need a
// deterministic sync point rather than waiting on the flush interval.
func (mc *MemoryCache) ForceSync(ctx context.Context) {
	mc.runPassGuarded(ctx)
}

// Close signals the reconciler to stop, waits for its goroutine to
// exit, and runs one final synchronous pass. If pending changes
// remain afterward (e.g. the backend is unreachable) a warning is
// logged; an in-memory cache has no on-disk state to preserve.
func (mc *MemoryCache) Close(ctx context.Context) {
	mc.shutdownOnce.Do(func() { close(mc.shutdownCh) })
	<-mc.loopDone
	mc.runPassGuarded(ctx)
	if n := mc.pending.Len(); n > 0 {
		mc.log.Warn("memory cache closed with unsynced pending changes", "count", n)
	}
}

// --- Connector implementation ---

func (mc *MemoryCache) Capabilities() model.Capabilities {
	caps := mc.inner.Capabilities()
	if caps.Write {
		caps.RandomWrite = true
		caps.Truncate = true
		caps.Rename = true
	}
	caps.SetMode = true
	caps.Symlink = true
	return caps
}

func (mc *MemoryCache) CacheRequirements() model.CacheRequirements {
	return model.CacheRequirements{WriteBuffer: model.CacheNone, ReadCache: false}
}

func (mc *MemoryCache) invalidateParentDir(path string) {
	mc.dirs.Delete(parentPath(path))
}

// statInternal implements the §4.2 stat resolution order. It is used
// both by the public Stat and by callers (rename, isDirEmpty) that
// need the merged view without going through the Connector interface.
func (mc *MemoryCache) statInternal(ctx context.Context, path string) (model.Metadata, error) {
	path = cleanPath(path)

	if pc, ok := mc.pending.Get(path); ok {
		if pc.Type.IsDelete() {
			return model.Metadata{}, ferrors.NotFound(path)
		}
		md := model.Metadata{Mtime: time.Now()}
		if m, ok := mc.mode.Get(path); ok {
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
		default: // NewFile, ModifiedFile
			md.FileType = model.File
			if ce, ok := mc.content.Get(path); ok {
				md.Size = uint64(len(ce.data))
			}
		}
		return md, nil
	}

	if cm, ok := mc.metadata.Get(path); ok && time.Since(cm.cachedAt) < mc.config.MetadataTTL {
		return cm.metadata, nil
	}

	if ce, ok := mc.content.Get(path); ok {
		md := model.Metadata{FileType: model.File, Size: uint64(len(ce.data)), Mtime: ce.lastAccessed}
		if m, ok := mc.mode.Get(path); ok {
			md.Mode, md.HasMode = m, true
		}
		mc.metadata.Set(path, cachedMetadata{metadata: md, cachedAt: time.Now()})
		return md, nil
	}

	// (I4) ancestor-pending-new-directory fast path: no backend call.
	for _, anc := range ancestors(path) {
		if pc, ok := mc.pending.Get(anc); ok && pc.Type == model.NewDirectory {
			return model.Metadata{}, ferrors.NotFound(path)
		}
	}

	if at, ok := mc.negative.Get(path); ok && time.Since(at) < mc.config.MetadataTTL {
		return model.Metadata{}, ferrors.NotFound(path)
	}

	md, err := mc.inner.Stat(ctx, path)
	if err != nil {
		if ferrors.Is(err, ferrors.KindNotFound) {
			mc.negative.Set(path, time.Now())
		}
		return model.Metadata{}, err
	}
	mc.metadata.Set(path, cachedMetadata{metadata: md, cachedAt: time.Now()})
	return md, nil
}

func (mc *MemoryCache) Stat(ctx context.Context, path string) (model.Metadata, error) {
	return mc.statInternal(ctx, path)
}

func (mc *MemoryCache) Exists(ctx context.Context, path string) (bool, error) {
	return connector.ExistsViaStat(ctx, mc, path)
}

func (mc *MemoryCache) fetchAndInstall(ctx context.Context, path string) error {
	data, err := mc.inner.Read(ctx, path, 0, wholeFile)
	if err != nil {
		return err
	}
	mc.content.Set(path, &contentEntry{data: data, lastAccessed: time.Now()})
	mc.maybeEvict()
	return nil
}

func (mc *MemoryCache) Read(ctx context.Context, path string, offset uint64, size uint32) ([]byte, error) {
	path = cleanPath(path)
	if pc, ok := mc.pending.Get(path); ok && pc.Type.IsDelete() {
		return nil, ferrors.NotFound(path)
	}
	ce, ok := mc.content.Get(path)
	if !ok {
		mc.metrics.RecordCacheMiss("memory")
		if err := mc.fetchAndInstall(ctx, path); err != nil {
			return nil, err
		}
		ce, ok = mc.content.Get(path)
		if !ok {
			return nil, ferrors.NotFound(path)
		}
	} else {
		mc.metrics.RecordCacheHit("memory")
	}
	ce.lastAccessed = time.Now()
	if offset >= uint64(len(ce.data)) {
		return nil, nil
	}
	end := offset + uint64(size)
	if end > uint64(len(ce.data)) {
		end = uint64(len(ce.data))
	}
	out := make([]byte, end-offset)
	copy(out, ce.data[offset:end])
	return out, nil
}

func (mc *MemoryCache) Write(ctx context.Context, path string, offset uint64, data []byte) (uint64, error) {
	path = cleanPath(path)
	pc, hasPending := mc.pending.Get(path)
	pendingCreate := hasPending && pc.Type == model.NewFile

	_, cached := mc.content.Get(path)
	if !cached && offset > 0 && !pendingCreate {
		if _, err := mc.inner.Stat(ctx, path); err == nil {
			if ferr := mc.fetchAndInstall(ctx, path); ferr != nil {
				return 0, ferr
			}
		}
	}

	ce, ok := mc.content.Get(path)
	if !ok {
		ce = &contentEntry{}
		mc.content.Set(path, ce)
	}
	end := offset + uint64(len(data))
	if end > uint64(len(ce.data)) {
		grown := make([]byte, end)
		copy(grown, ce.data)
		ce.data = grown
	}
	copy(ce.data[offset:end], data)
	ce.lastAccessed = time.Now()

	newType := model.ModifiedFile
	if hasPending && pc.Type == model.NewFile {
		newType = model.NewFile
	}
	next := model.PendingChange{Type: newType, CreatedAt: firstNonZero(pc.CreatedAt)}
	if hasPending && pc.HasMode {
		next.Mode, next.HasMode = pc.Mode, true
	}
	mc.pending.Set(path, next)

	mc.metadata.Delete(path)
	mc.maybeEvict()
	return uint64(len(data)), nil
}

func firstNonZero(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now()
	}
	return t
}

func (mc *MemoryCache) createFile(path string, mode uint32, hasMode bool) error {
	path = cleanPath(path)
	mc.content.Set(path, &contentEntry{data: []byte{}, lastAccessed: time.Now()})
	pc := model.PendingChange{Type: model.NewFile, CreatedAt: time.Now()}
	if hasMode {
		pc.Mode, pc.HasMode = mode, true
	}
	mc.pending.Set(path, pc)
	mc.negative.Delete(path)
	mc.invalidateParentDir(path)
	mc.maybeEvict()
	return nil
}

func (mc *MemoryCache) ensureAbsent(ctx context.Context, path string) error {
	if _, err := mc.statInternal(ctx, path); err == nil {
		return ferrors.AlreadyExists(path)
	} else if !ferrors.Is(err, ferrors.KindNotFound) {
		return err
	}
	return nil
}

func (mc *MemoryCache) CreateFile(ctx context.Context, path string) error {
	if err := mc.ensureAbsent(ctx, path); err != nil {
		return err
	}
	return mc.createFile(path, 0, false)
}

func (mc *MemoryCache) CreateFileWithMode(ctx context.Context, path string, mode uint32) error {
	if err := mc.ensureAbsent(ctx, path); err != nil {
		return err
	}
	return mc.createFile(path, mode, true)
}

func (mc *MemoryCache) createDir(path string, mode uint32, hasMode bool) error {
	path = cleanPath(path)
	pc := model.PendingChange{Type: model.NewDirectory, CreatedAt: time.Now()}
	if hasMode {
		pc.Mode, pc.HasMode = mode, true
	}
	mc.pending.Set(path, pc)
	mc.negative.Delete(path)
	mc.invalidateParentDir(path)
	return nil
}

func (mc *MemoryCache) CreateDir(ctx context.Context, path string) error {
	if err := mc.ensureAbsent(ctx, path); err != nil {
		return err
	}
	return mc.createDir(path, 0, false)
}

func (mc *MemoryCache) CreateDirWithMode(ctx context.Context, path string, mode uint32) error {
	if err := mc.ensureAbsent(ctx, path); err != nil {
		return err
	}
	return mc.createDir(path, mode, true)
}

func (mc *MemoryCache) dropLocal(path string) {
	mc.pending.Delete(path)
	mc.content.Delete(path)
	mc.metadata.Delete(path)
	mc.mode.Delete(path)
}

func (mc *MemoryCache) remove(ctx context.Context, path string, dirDelete bool) error {
	path = cleanPath(path)
	if pc, ok := mc.pending.Get(path); ok {
		if pc.Type.IsCreate() {
			mc.dropLocal(path)
			mc.invalidateParentDir(path)
			return nil
		}
	} else if at, ok := mc.negative.Get(path); ok && time.Since(at) < mc.config.MetadataTTL {
		return nil
	}
	delType := model.DeletedFile
	if dirDelete {
		delType = model.DeletedDirectory
	}
	mc.content.Delete(path)
	mc.metadata.Delete(path)
	mc.mode.Delete(path)
	mc.pending.Set(path, model.PendingChange{Type: delType, CreatedAt: time.Now()})
	mc.invalidateParentDir(path)
	return nil
}

func (mc *MemoryCache) RemoveFile(ctx context.Context, path string) error {
	return mc.remove(ctx, path, false)
}

func (mc *MemoryCache) isDirEmpty(ctx context.Context, path string) (bool, error) {
	entries, err := mc.mergedListing(ctx, path)
	if err != nil {
		return false, err
	}
	return len(entries) == 0, nil
}

func (mc *MemoryCache) RemoveDir(ctx context.Context, path string, recursive bool) error {
	path = cleanPath(path)
	if !recursive {
		empty, err := mc.isDirEmpty(ctx, path)
		if err != nil {
			return err
		}
		if !empty {
			return ferrors.NotEmpty(path)
		}
	}
	return mc.remove(ctx, path, true)
}

func (mc *MemoryCache) mergedListing(ctx context.Context, path string) ([]model.DirEntry, error) {
	path = cleanPath(path)

	if pc, ok := mc.pending.Get(path); ok && pc.Type == model.NewDirectory {
		var out []model.DirEntry
		for key, childPC := range mc.pending.Snapshot() {
			if parentPath(key) != path || !childPC.Type.IsCreate() {
				continue
			}
			out = append(out, model.DirEntry{Name: baseName(key), FileType: pendingFileType(childPC)})
		}
		return out, nil
	}

	var base []model.DirEntry
	if dl, ok := mc.dirs.Get(path); ok && time.Since(dl.cachedAt) < mc.config.MetadataTTL {
		base = dl.entries
	} else {
		var collected []model.DirEntry
		err := mc.inner.ListDir(ctx, path, func(e model.DirEntry) error {
			collected = append(collected, e)
			return nil
		})
		if err != nil {
			return nil, err
		}
		mc.dirs.Set(path, cachedDirListing{entries: collected, cachedAt: time.Now()})
		base = collected
	}

	present := make(map[string]bool, len(base))
	out := make([]model.DirEntry, 0, len(base))
	for _, e := range base {
		child := joinPath(path, e.Name)
		if pc, ok := mc.pending.Get(child); ok && pc.Type.IsDelete() {
			continue
		}
		present[e.Name] = true
		out = append(out, e)
	}
	for key, childPC := range mc.pending.Snapshot() {
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

func pendingFileType(pc model.PendingChange) model.FileType {
	switch pc.Type {
	case model.NewDirectory:
		return model.Directory
	case model.NewSymlink:
		return model.Symlink
	default:
		return model.File
	}
}

func joinPath(dir, name string) string {
	if dir == "/" {
		return "/" + name
	}
	return dir + "/" + name
}

func (mc *MemoryCache) ListDir(ctx context.Context, path string, fn connector.DirEntryFn) error {
	entries, err := mc.mergedListing(ctx, path)
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

func (mc *MemoryCache) Rename(ctx context.Context, from, to string) error {
	from, to = cleanPath(from), cleanPath(to)

	if pcFrom, ok := mc.pending.GetAndDelete(from); ok {
		if pcFrom.Type == model.ModifiedFile {
			// The source also exists on the backend: tombstone it there
			// and create the content afresh at the destination.
			mc.pending.Set(from, model.PendingChange{Type: model.DeletedFile, CreatedAt: time.Now()})
			pcFrom.Type = model.NewFile
		}
		mc.pending.Set(to, pcFrom)
	} else {
		md, err := mc.statInternal(ctx, from)
		if err != nil {
			return err
		}
		switch md.FileType {
		case model.Directory:
			mc.pending.Set(from, model.PendingChange{Type: model.DeletedDirectory, CreatedAt: time.Now()})
			mc.pending.Set(to, model.PendingChange{Type: model.NewDirectory, Mode: md.Mode, HasMode: md.HasMode, CreatedAt: time.Now()})
		case model.Symlink:
			target, _ := mc.Readlink(ctx, from)
			mc.pending.Set(from, model.PendingChange{Type: model.DeletedFile, CreatedAt: time.Now()})
			mc.pending.Set(to, model.PendingChange{Type: model.NewSymlink, SymlinkTarget: target, Mode: md.Mode, HasMode: md.HasMode, CreatedAt: time.Now()})
		default:
			mc.pending.Set(from, model.PendingChange{Type: model.DeletedFile, CreatedAt: time.Now()})
			mc.pending.Set(to, model.PendingChange{Type: model.NewFile, Mode: md.Mode, HasMode: md.HasMode, CreatedAt: time.Now()})
		}
	}

	if ce, ok := mc.content.GetAndDelete(from); ok {
		mc.content.Set(to, ce)
	}
	if m, ok := mc.mode.GetAndDelete(from); ok {
		mc.mode.Set(to, m)
	}
	mc.metadata.Delete(from)
	mc.metadata.Delete(to)
	mc.negative.Delete(to)

	// (I5) subtree rewrite: every descendant key gets its prefix
	// replaced, not deleted, so the renamed directory's children keep
	// their pending/content/mode state under the new name.
	for key, pc := range mc.pending.Snapshot() {
		if key == from || !isStrictDescendant(key, from) {
			continue
		}
		mc.pending.Delete(key)
		mc.pending.Set(rewritePrefix(key, from, to), pc)
	}
	for key, ce := range mc.content.Snapshot() {
		if key == from || !isStrictDescendant(key, from) {
			continue
		}
		mc.content.Delete(key)
		mc.content.Set(rewritePrefix(key, from, to), ce)
	}
	for key, m := range mc.mode.Snapshot() {
		if key == from || !isStrictDescendant(key, from) {
			continue
		}
		mc.mode.Delete(key)
		mc.mode.Set(rewritePrefix(key, from, to), m)
	}
	for key := range mc.metadata.Snapshot() {
		if isStrictDescendant(key, from) {
			mc.metadata.Delete(key)
		}
	}

	mc.dirs.Delete(from)
	mc.invalidateParentDir(from)
	mc.invalidateParentDir(to)
	return nil
}

func (mc *MemoryCache) Truncate(ctx context.Context, path string, size uint64) error {
	path = cleanPath(path)
	if _, ok := mc.content.Get(path); !ok {
		if pc, ok := mc.pending.Get(path); !ok || !pc.Type.IsCreate() {
			if err := mc.fetchAndInstall(ctx, path); err != nil {
				return err
			}
		} else {
			mc.content.Set(path, &contentEntry{})
		}
	}
	ce, _ := mc.content.Get(path)
	if size <= uint64(len(ce.data)) {
		ce.data = ce.data[:size]
	} else {
		grown := make([]byte, size)
		copy(grown, ce.data)
		ce.data = grown
	}
	ce.lastAccessed = time.Now()

	pc, hasPending := mc.pending.Get(path)
	newType := model.ModifiedFile
	if hasPending && pc.Type == model.NewFile {
		newType = model.NewFile
	}
	next := model.PendingChange{Type: newType, CreatedAt: firstNonZero(pc.CreatedAt)}
	if hasPending && pc.HasMode {
		next.Mode, next.HasMode = pc.Mode, true
	}
	mc.pending.Set(path, next)
	mc.metadata.Delete(path)
	return nil
}

func (mc *MemoryCache) Flush(ctx context.Context, path string) error {
	return nil
}

func (mc *MemoryCache) SetMode(ctx context.Context, path string, mode uint32) error {
	path = cleanPath(path)
	mc.mode.Set(path, mode)
	mc.metadata.Delete(path)
	if pc, ok := mc.pending.Get(path); ok {
		pc.Mode, pc.HasMode = mode, true
		mc.pending.Set(path, pc)
	}
	return nil
}

func (mc *MemoryCache) Readlink(ctx context.Context, path string) (string, error) {
	path = cleanPath(path)
	if pc, ok := mc.pending.Get(path); ok && pc.Type == model.NewSymlink {
		return pc.SymlinkTarget, nil
	}
	return mc.inner.Readlink(ctx, path)
}

func (mc *MemoryCache) Symlink(ctx context.Context, target, linkPath string) error {
	linkPath = cleanPath(linkPath)
	mc.dropLocal(linkPath)
	mc.pending.Set(linkPath, model.PendingChange{Type: model.NewSymlink, SymlinkTarget: target, CreatedAt: time.Now()})
	mc.negative.Delete(linkPath)
	mc.invalidateParentDir(linkPath)
	return nil
}

// maybeEvict implements the memory variant's eviction rule: entries
// bound to a pending change are pinned and never evicted; everything
// else is a candidate, oldest last_accessed first, until both the
// byte and entry budgets are satisfied.
func (mc *MemoryCache) maybeEvict() {
	snap := mc.content.Snapshot()
	var totalBytes int64
	for _, ce := range snap {
		totalBytes += int64(len(ce.data))
	}
	if totalBytes <= mc.config.MaxBytes && (mc.config.MaxEntries <= 0 || len(snap) <= mc.config.MaxEntries) {
		return
	}

	type candidate struct {
		path         string
		lastAccessed time.Time
		size         int64
	}
	var candidates []candidate
	for path, ce := range snap {
		if _, pinned := mc.pending.Get(path); pinned {
			continue
		}
		candidates = append(candidates, candidate{path, ce.lastAccessed, int64(len(ce.data))})
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].lastAccessed.Before(candidates[j].lastAccessed)
	})

	entries := len(snap)
	for _, c := range candidates {
		if totalBytes <= mc.config.MaxBytes && (mc.config.MaxEntries <= 0 || entries <= mc.config.MaxEntries) {
			break
		}
		mc.content.Delete(c.path)
		totalBytes -= c.size
		entries--
	}
}
