// Package status wraps a connector with a virtual status directory
// at the mount root, so a user (or a monitoring script) can read the
// mount's health without a separate RPC or socket: cat the mount's
// own files.
package status

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/objectmount/objectmount/internal/circuit"
	"github.com/objectmount/objectmount/internal/connector"
	"github.com/objectmount/objectmount/pkg/ferrors"
	"github.com/objectmount/objectmount/pkg/model"
)

// Health is the mount's current health as reported by the "status"
// virtual file.
type Health int

const (
	Healthy Health = iota
	Degraded
)

func (h Health) String() string {
	if h == Healthy {
		return "healthy"
	}
	return "degraded"
}

const (
	fileStatus         = "status"
	fileError          = "error"
	fileErrorLog       = "error_log"
	fileCircuitBreaker = "circuit_breaker"
)

var virtualFiles = []string{fileStatus, fileError, fileErrorLog, fileCircuitBreaker}

type logEntry struct {
	when time.Time
	op   string
	path string
	err  string
}

func (e logEntry) format() string {
	return fmt.Sprintf("[%s] %s %s: %s\n", e.when.UTC().Format("2006-01-02 15:04:05.000"), e.op, e.path, e.err)
}

// Overlay wraps inner with a read-only virtual directory at config's
// prefix containing "status" (healthy/degraded), "error" (the most
// recent error message, empty when healthy), "error_log" (a bounded
// ring buffer of past errors), and "circuit_breaker" (the attached
// breaker's state and counters). Every real call is passed
// through to inner; a failure is logged into the ring buffer and
// flips the reported health to Degraded until a subsequent call
// succeeds.
type Overlay struct {
	inner  connector.Connector
	prefix string
	maxLog int
	logger *slog.Logger

	mu        sync.RWMutex
	health    Health
	lastError string
	log       []logEntry

	breaker *circuit.CircuitBreaker
}

var _ connector.Connector = (*Overlay)(nil)

// New wraps inner with a status overlay. prefix is the virtual
// directory's name (no leading slash); maxLogEntries bounds the
// error_log ring buffer.
func New(inner connector.Connector, prefix string, maxLogEntries int, logger *slog.Logger) *Overlay {
	if maxLogEntries <= 0 {
		maxLogEntries = 100
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Overlay{
		inner:  inner,
		prefix: strings.TrimPrefix(prefix, "/"),
		maxLog: maxLogEntries,
		logger: logger.With("component", "status"),
		health: Healthy,
	}
}

// SetBreaker attaches the circuit breaker guarding the wrapped
// backend, surfacing its state and counters through the
// "circuit_breaker" virtual file. Optional: an Overlay with no
// breaker attached (the zero value, nil) reports "disabled" there,
// since main.go only wraps the backend in a breaker when
// cfg.Network.CircuitBreaker.Enabled is set.
func (o *Overlay) SetBreaker(cb *circuit.CircuitBreaker) {
	o.breaker = cb
}

// Health returns the overlay's current reported health.
func (o *Overlay) Health() Health {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.health
}

func (o *Overlay) virtualRoot() string { return "/" + o.prefix }

func (o *Overlay) isVirtualRoot(path string) bool {
	return path == o.prefix || path == o.virtualRoot()
}

// virtualFileName returns the file name for a path one level below
// the virtual root, e.g. "/.objectmount/status" -> "status".
func (o *Overlay) virtualFileName(path string) (string, bool) {
	rest := strings.TrimPrefix(path, o.virtualRoot()+"/")
	if rest == path || strings.Contains(rest, "/") || rest == "" {
		return "", false
	}
	return rest, true
}

func (o *Overlay) recordError(op, path string, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	msg := err.Error()
	o.health = Degraded
	o.lastError = msg
	o.log = append(o.log, logEntry{when: time.Now(), op: op, path: path, err: msg})
	if len(o.log) > o.maxLog {
		o.log = o.log[len(o.log)-o.maxLog:]
	}
	o.logger.Warn("backend call failed", "op", op, "path", path, "error", err)
}

func (o *Overlay) recordSuccess() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.health = Healthy
	o.lastError = ""
}

func (o *Overlay) virtualContent(name string) (string, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	switch name {
	case fileStatus:
		return o.health.String() + "\n", true
	case fileError:
		return o.lastError, true
	case fileErrorLog:
		var b strings.Builder
		for _, e := range o.log {
			b.WriteString(e.format())
		}
		return b.String(), true
	case fileCircuitBreaker:
		return o.circuitBreakerContent(), true
	default:
		return "", false
	}
}

// circuitBreakerContent formats the attached breaker's state and
// counters, or reports "disabled" when main.go never wrapped the
// backend in one (circuit breaking off, or the reconciler/cache layer
// sitting under this overlay never fails in a way the breaker tracks).
func (o *Overlay) circuitBreakerContent() string {
	if o.breaker == nil {
		return "disabled\n"
	}
	snap := o.breaker.Snapshot()
	return fmt.Sprintf(
		"name: %s\nstate: %s\nrequests: %d\ntotal_successes: %d\ntotal_failures: %d\nconsecutive_failures: %d\n",
		snap.Name, snap.State, snap.Counts.Requests, snap.Counts.TotalSuccesses,
		snap.Counts.TotalFailures, snap.Counts.ConsecutiveFailures,
	)
}

// guard passes op through to inner, updating health as a side effect.
func guard[T any](o *Overlay, op, path string, fn func() (T, error)) (T, error) {
	v, err := fn()
	if err != nil {
		if ferrors.KindOf(err) != ferrors.KindNotFound {
			o.recordError(op, path, err)
		}
		return v, err
	}
	o.recordSuccess()
	return v, nil
}

func (o *Overlay) Capabilities() model.Capabilities { return o.inner.Capabilities() }

func (o *Overlay) CacheRequirements() model.CacheRequirements { return o.inner.CacheRequirements() }

func (o *Overlay) Stat(ctx context.Context, path string) (model.Metadata, error) {
	if o.isVirtualRoot(path) {
		return model.Metadata{FileType: model.Directory, Mode: 0o555, HasMode: true, Mtime: time.Now()}, nil
	}
	if name, ok := o.virtualFileName(path); ok {
		content, found := o.virtualContent(name)
		if !found {
			return model.Metadata{}, ferrors.NotFound(path)
		}
		return model.Metadata{FileType: model.File, Size: uint64(len(content)), Mode: 0o444, HasMode: true, Mtime: time.Now()}, nil
	}
	return guard(o, "stat", path, func() (model.Metadata, error) { return o.inner.Stat(ctx, path) })
}

func (o *Overlay) Exists(ctx context.Context, path string) (bool, error) {
	_, err := o.Stat(ctx, path)
	if err == nil {
		return true, nil
	}
	if ferrors.KindOf(err) == ferrors.KindNotFound {
		return false, nil
	}
	return false, err
}

func (o *Overlay) Read(ctx context.Context, path string, offset uint64, size uint32) ([]byte, error) {
	if name, ok := o.virtualFileName(path); ok {
		content, found := o.virtualContent(name)
		if !found {
			return nil, ferrors.NotFound(path)
		}
		data := []byte(content)
		start := int(offset)
		if start > len(data) {
			start = len(data)
		}
		end := start + int(size)
		if end > len(data) {
			end = len(data)
		}
		return data[start:end], nil
	}
	return guard(o, "read", path, func() ([]byte, error) { return o.inner.Read(ctx, path, offset, size) })
}

func (o *Overlay) Write(ctx context.Context, path string, offset uint64, data []byte) (uint64, error) {
	if o.isVirtualRoot(path) {
		return 0, ferrors.ReadOnly(path)
	}
	if _, ok := o.virtualFileName(path); ok {
		return 0, ferrors.ReadOnly(path)
	}
	return guard(o, "write", path, func() (uint64, error) { return o.inner.Write(ctx, path, offset, data) })
}

func (o *Overlay) rejectVirtual(path string) error {
	if o.isVirtualRoot(path) {
		return ferrors.ReadOnly(path)
	}
	if _, ok := o.virtualFileName(path); ok {
		return ferrors.ReadOnly(path)
	}
	return nil
}

func (o *Overlay) CreateFile(ctx context.Context, path string) error {
	if err := o.rejectVirtual(path); err != nil {
		return err
	}
	_, err := guard(o, "create_file", path, func() (struct{}, error) { return struct{}{}, o.inner.CreateFile(ctx, path) })
	return err
}

func (o *Overlay) CreateFileWithMode(ctx context.Context, path string, mode uint32) error {
	if err := o.rejectVirtual(path); err != nil {
		return err
	}
	_, err := guard(o, "create_file_with_mode", path, func() (struct{}, error) {
		return struct{}{}, o.inner.CreateFileWithMode(ctx, path, mode)
	})
	return err
}

func (o *Overlay) CreateDir(ctx context.Context, path string) error {
	if err := o.rejectVirtual(path); err != nil {
		return err
	}
	_, err := guard(o, "create_dir", path, func() (struct{}, error) { return struct{}{}, o.inner.CreateDir(ctx, path) })
	return err
}

func (o *Overlay) CreateDirWithMode(ctx context.Context, path string, mode uint32) error {
	if err := o.rejectVirtual(path); err != nil {
		return err
	}
	_, err := guard(o, "create_dir_with_mode", path, func() (struct{}, error) {
		return struct{}{}, o.inner.CreateDirWithMode(ctx, path, mode)
	})
	return err
}

func (o *Overlay) RemoveFile(ctx context.Context, path string) error {
	if err := o.rejectVirtual(path); err != nil {
		return err
	}
	_, err := guard(o, "remove_file", path, func() (struct{}, error) { return struct{}{}, o.inner.RemoveFile(ctx, path) })
	return err
}

func (o *Overlay) RemoveDir(ctx context.Context, path string, recursive bool) error {
	if err := o.rejectVirtual(path); err != nil {
		return err
	}
	_, err := guard(o, "remove_dir", path, func() (struct{}, error) { return struct{}{}, o.inner.RemoveDir(ctx, path, recursive) })
	return err
}

// ListDir injects the virtual directory into a root listing, lists
// the four virtual files when path is the virtual root, and passes
// through to inner otherwise.
func (o *Overlay) ListDir(ctx context.Context, path string, fn connector.DirEntryFn) error {
	if o.isVirtualRoot(path) {
		for _, name := range virtualFiles {
			if err := fn(model.DirEntry{Name: name, FileType: model.File}); err != nil {
				return err
			}
		}
		return nil
	}
	if path == "/" {
		if err := fn(model.DirEntry{Name: o.prefix, FileType: model.Directory}); err != nil {
			return err
		}
	}
	_, err := guard(o, "list_dir", path, func() (struct{}, error) {
		return struct{}{}, o.inner.ListDir(ctx, path, fn)
	})
	return err
}

func (o *Overlay) Rename(ctx context.Context, from, to string) error {
	if err := o.rejectVirtual(from); err != nil {
		return err
	}
	if err := o.rejectVirtual(to); err != nil {
		return err
	}
	_, err := guard(o, "rename", from, func() (struct{}, error) { return struct{}{}, o.inner.Rename(ctx, from, to) })
	return err
}

func (o *Overlay) Truncate(ctx context.Context, path string, size uint64) error {
	if err := o.rejectVirtual(path); err != nil {
		return err
	}
	_, err := guard(o, "truncate", path, func() (struct{}, error) { return struct{}{}, o.inner.Truncate(ctx, path, size) })
	return err
}

func (o *Overlay) Flush(ctx context.Context, path string) error {
	if o.isVirtualRoot(path) {
		return nil
	}
	if _, ok := o.virtualFileName(path); ok {
		return nil
	}
	_, err := guard(o, "flush", path, func() (struct{}, error) { return struct{}{}, o.inner.Flush(ctx, path) })
	return err
}

func (o *Overlay) SetMode(ctx context.Context, path string, mode uint32) error {
	if err := o.rejectVirtual(path); err != nil {
		return err
	}
	_, err := guard(o, "set_mode", path, func() (struct{}, error) { return struct{}{}, o.inner.SetMode(ctx, path, mode) })
	return err
}

func (o *Overlay) Readlink(ctx context.Context, path string) (string, error) {
	if err := o.rejectVirtual(path); err != nil {
		return "", err
	}
	return guard(o, "readlink", path, func() (string, error) { return o.inner.Readlink(ctx, path) })
}

func (o *Overlay) Symlink(ctx context.Context, target, linkPath string) error {
	if err := o.rejectVirtual(linkPath); err != nil {
		return err
	}
	_, err := guard(o, "symlink", linkPath, func() (struct{}, error) {
		return struct{}{}, o.inner.Symlink(ctx, target, linkPath)
	})
	return err
}
