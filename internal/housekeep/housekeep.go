// Package housekeep implements the background storage size cap of
// §4.L: a stale-tolerant exclusive lock, a rebuildable secondary index
// for oldest-first ordering, and delete-until-under-budget pruning.
// Grounded on app/management/storage_manager.py's prune_size and
// app/housekeeper.py's never-crash polling loop.
package housekeep

import (
	"context"
	"time"

	"github.com/FranksOps/gofr-dig/internal/logging"
	"github.com/FranksOps/gofr-dig/internal/session"
)

// Result summarizes one prune cycle.
type Result struct {
	ItemCount    int
	DeletedCount int
	FreedBytes   int64
	FinalBytes   int64
	TargetBytes  int64
	Anomalies    int
	TargetUnmet  bool
}

// PruneSize deletes the oldest sessions in group (all groups if empty)
// until total size is at or under maxBytes, or until nothing is left
// to delete. It takes an exclusive lock on the store directory for the
// duration of the scan+delete, reclaiming a lock left behind by a
// process that died mid-cycle.
func PruneSize(ctx context.Context, store *session.Store, idx *Index, storageDir string, maxBytes int64, group string, lockStaleAfter time.Duration) (Result, error) {
	lock, acquired := acquirePruneLock(storageDir, lockStaleAfter)
	if !acquired {
		return Result{}, nil
	}
	defer lock.release()

	all, err := store.ListSessions(group)
	if err != nil {
		return Result{}, err
	}
	if len(all) == 0 {
		logging.Base().Info("prune skipped because storage is empty")
		return Result{}, nil
	}

	entries := make([]IndexEntry, len(all))
	var totalBytes int64
	for i, meta := range all {
		entries[i] = IndexEntry{GUID: meta.GUID, Group: meta.Group, SizeBytes: meta.SizeBytes, CreatedAt: meta.CreatedAt}
		totalBytes += int64(meta.SizeBytes)
	}
	if err := idx.Rebuild(ctx, entries); err != nil {
		return Result{}, err
	}

	logging.Base().Info("housekeeper check", "current_mb", float64(totalBytes)/1024/1024, "target_mb", float64(maxBytes)/1024/1024, "item_count", len(all))

	result := Result{ItemCount: len(all), FinalBytes: totalBytes, TargetBytes: maxBytes}
	if totalBytes <= maxBytes {
		logging.Base().Info("prune not required")
		return result, nil
	}

	oldest, err := idx.OldestFirst(ctx, group)
	if err != nil {
		return result, err
	}

	privileged := session.Requester{Enforce: false}
	for _, entry := range oldest {
		if totalBytes <= maxBytes {
			break
		}
		ok, err := store.Delete(entry.GUID, privileged)
		if err != nil {
			logging.Base().Error("housekeeper delete failed", "guid", entry.GUID, "error", err)
			continue
		}
		if !ok {
			continue
		}
		totalBytes -= int64(entry.SizeBytes)
		result.DeletedCount++
		result.FreedBytes += int64(entry.SizeBytes)
		logging.Base().Info("housekeeper prune", "guid", entry.GUID, "size", entry.SizeBytes, "created", entry.CreatedAt)
	}

	result.FinalBytes = totalBytes
	result.TargetUnmet = totalBytes > maxBytes
	if result.TargetUnmet {
		logging.Base().Warn("housekeeper target unmet", "final_mb", float64(totalBytes)/1024/1024, "target_mb", float64(maxBytes)/1024/1024, "remaining_bytes", totalBytes-maxBytes)
	}
	logging.Base().Info("prune completed", "deleted_count", result.DeletedCount, "freed_mb", float64(result.FreedBytes)/1024/1024, "final_mb", float64(totalBytes)/1024/1024)

	return result, nil
}

// Housekeeper runs PruneSize on a fixed interval until ctx is
// cancelled, never letting one failed cycle stop the loop — mirroring
// the original's top-level try/except around each iteration.
type Housekeeper struct {
	Store          *session.Store
	Index          *Index
	StorageDir     string
	MaxBytes       int64
	Interval       time.Duration
	LockStaleAfter time.Duration
}

// Run blocks, pruning on Interval until ctx is cancelled.
func (h *Housekeeper) Run(ctx context.Context) {
	logging.Base().Info("starting housekeeper service")
	ticker := time.NewTicker(h.Interval)
	defer ticker.Stop()

	h.runCycle(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.runCycle(ctx)
		}
	}
}

func (h *Housekeeper) runCycle(ctx context.Context) {
	logging.Base().Info("housekeeper cycle start", "interval", h.Interval, "max_bytes", h.MaxBytes)
	result, err := PruneSize(ctx, h.Store, h.Index, h.StorageDir, h.MaxBytes, "", h.LockStaleAfter)
	if err != nil {
		logging.Base().Error("housekeeper cycle failed", "error", err)
		return
	}
	if result.TargetUnmet {
		logging.Base().Warn("housekeeper cycle nonzero", "final_bytes", result.FinalBytes)
		return
	}
	logging.Base().Info("housekeeper cycle ok")
}
