package cache

import (
	"context"
	"log/slog"
	"sort"

	"github.com/objectmount/objectmount/internal/connector"
	"github.com/objectmount/objectmount/internal/metrics"
	"github.com/objectmount/objectmount/pkg/ferrors"
	"github.com/objectmount/objectmount/pkg/model"
)

// contentFetcher returns the bytes currently cached for path, for the
// reconciler to hand off to the inner connector when applying a
// pending NewFile/ModifiedFile. The memory cache reads its in-process
// map; the filesystem cache reads the backing file.
type contentFetcher func(path string) ([]byte, bool)

type pendingRecord struct {
	path string
	pc   model.PendingChange
}

func pendingEqual(a, b model.PendingChange) bool { return a == b }

// runReconcilePass implements the background reconciler's single pass:
// snapshot, partition into creates/deletes, order each partition, and
// apply each record to inner, removing it from pending only on
// success (or on NotFound for a delete, which counts as success).
// Records whose application fails are logged and left in place for
// the next pass. Paths matching exclude are dropped from pending
// without ever being sent to inner. The pass outcome ("skipped" for an
// empty backlog, "applied" when every record succeeded, "partial" when
// some were left pending) and the remaining backlog size are reported
// to collector, a nil-safe optional dependency.
func runReconcilePass(ctx context.Context, logger *slog.Logger, collector *metrics.Collector, pending *shardedMap[model.PendingChange], fetch contentFetcher, inner connector.Connector, exclude *excludeMatcher) {
	snap := pending.Snapshot()
	backlog := len(snap)

	var creates, deletes []pendingRecord
	for path, pc := range snap {
		if exclude.Match(path) {
			pending.CompareAndDelete(path, pc, pendingEqual)
			continue
		}
		switch {
		case pc.Type.IsCreate():
			creates = append(creates, pendingRecord{path, pc})
		case pc.Type.IsDelete():
			deletes = append(deletes, pendingRecord{path, pc})
		}
	}

	sort.Slice(creates, func(i, j int) bool {
		return depth(creates[i].path) < depth(creates[j].path)
	})
	sort.Slice(deletes, func(i, j int) bool {
		di, dj := deletes[i].pc.Type.IsDir(), deletes[j].pc.Type.IsDir()
		if di != dj {
			return !di // files (di=false) sort before directories
		}
		if !di {
			return deletes[i].path < deletes[j].path
		}
		return depth(deletes[i].path) > depth(deletes[j].path) // leaves first
	})

	failed := applyCreates(ctx, logger, pending, fetch, inner, creates)
	failed += applyDeletes(ctx, logger, pending, inner, deletes)

	collector.SetPendingChanges(pending.Len())
	switch {
	case backlog == 0:
		collector.RecordReconcilePass("skipped", backlog)
	case failed == 0:
		collector.RecordReconcilePass("applied", backlog)
	default:
		collector.RecordReconcilePass("partial", backlog)
	}
}

func applyCreates(ctx context.Context, logger *slog.Logger, pending *shardedMap[model.PendingChange], fetch contentFetcher, inner connector.Connector, creates []pendingRecord) int {
	failed := 0
	for _, rec := range creates {
		var err error
		switch rec.pc.Type {
		case model.NewDirectory:
			if rec.pc.HasMode {
				err = inner.CreateDirWithMode(ctx, rec.path, rec.pc.Mode)
			} else {
				err = inner.CreateDir(ctx, rec.path)
			}
			if err != nil && !ferrors.Is(err, ferrors.KindAlreadyExists) {
				logger.Warn("reconciler: create_dir failed, retrying next pass", "path", rec.path, "error", err)
				failed++
				continue
			}
		case model.NewSymlink:
			if err = inner.Symlink(ctx, rec.pc.SymlinkTarget, rec.path); err != nil {
				logger.Warn("reconciler: symlink failed, retrying next pass", "path", rec.path, "error", err)
				failed++
				continue
			}
		case model.NewFile, model.ModifiedFile:
			data, ok := fetch(rec.path)
			if !ok {
				logger.Warn("reconciler: no cached content for pending file, dropping", "path", rec.path)
				pending.CompareAndDelete(rec.path, rec.pc, pendingEqual)
				continue
			}
			if rec.pc.Type == model.NewFile {
				if rec.pc.HasMode {
					err = inner.CreateFileWithMode(ctx, rec.path, rec.pc.Mode)
				} else {
					err = inner.CreateFile(ctx, rec.path)
				}
				if err != nil && !ferrors.Is(err, ferrors.KindAlreadyExists) {
					logger.Warn("reconciler: create_file failed, retrying next pass", "path", rec.path, "error", err)
					failed++
					continue
				}
			}
			if _, err = inner.Write(ctx, rec.path, 0, data); err != nil {
				logger.Warn("reconciler: write failed, retrying next pass", "path", rec.path, "error", err)
				failed++
				continue
			}
			// A random-write backend splices the buffer in at offset 0,
			// so any older, longer content is cut back to the buffer.
			if caps := inner.Capabilities(); caps.RandomWrite && caps.Truncate {
				if err = inner.Truncate(ctx, rec.path, uint64(len(data))); err != nil {
					logger.Warn("reconciler: truncate failed, retrying next pass", "path", rec.path, "error", err)
					failed++
					continue
				}
			}
		}
		pending.CompareAndDelete(rec.path, rec.pc, pendingEqual)
	}
	return failed
}

func applyDeletes(ctx context.Context, logger *slog.Logger, pending *shardedMap[model.PendingChange], inner connector.Connector, deletes []pendingRecord) int {
	failed := 0
	for _, rec := range deletes {
		var err error
		if rec.pc.Type == model.DeletedDirectory {
			err = inner.RemoveDir(ctx, rec.path, false)
		} else {
			err = inner.RemoveFile(ctx, rec.path)
		}
		if err != nil && !ferrors.Is(err, ferrors.KindNotFound) {
			logger.Warn("reconciler: delete failed, retrying next pass", "path", rec.path, "error", err)
			failed++
			continue
		}
		pending.CompareAndDelete(rec.path, rec.pc, pendingEqual)
	}
	return failed
}
