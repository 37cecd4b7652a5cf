package housekeep

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/FranksOps/gofr-dig/internal/logging"
)

const lockFileName = ".prune_size.lock"

// pruneLock is an exclusive, stale-tolerant file lock guarding one
// prune cycle. Grounded on storage_manager.py's
// _acquire_prune_lock/_release_prune_lock: a regular O_EXCL file
// rather than flock, reclaimed if its mtime is older than staleAfter
// so a crashed housekeeper never wedges pruning permanently.
type pruneLock struct {
	path string
	file *os.File
}

// acquirePruneLock attempts to take the lock, reclaiming it if the
// existing lock file is older than staleAfter.
func acquirePruneLock(storageDir string, staleAfter time.Duration) (*pruneLock, bool) {
	path := filepath.Join(storageDir, lockFileName)

	if f, ok := tryCreateLock(path); ok {
		return &pruneLock{path: path, file: f}, true
	}

	info, err := os.Stat(path)
	if err != nil {
		logging.Base().Warn("housekeeper lock check failed", "lock_path", path, "error", err)
		return nil, false
	}
	age := time.Since(info.ModTime())
	if age <= staleAfter {
		logging.Base().Warn("prune skipped due to active lock", "lock_path", path)
		return nil, false
	}

	logging.Base().Warn("housekeeper lock stale, reclaiming", "lock_path", path, "age_seconds", int(age.Seconds()), "stale_seconds", int(staleAfter.Seconds()))
	_ = os.Remove(path)
	if f, ok := tryCreateLock(path); ok {
		return &pruneLock{path: path, file: f}, true
	}
	logging.Base().Warn("prune skipped due to active lock", "lock_path", path)
	return nil, false
}

func tryCreateLock(path string) (*os.File, bool) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, false
	}
	fmt.Fprintf(f, "pid=%d started_at=%d\n", os.Getpid(), time.Now().Unix())
	return f, true
}

// release closes and removes the lock file.
func (l *pruneLock) release() {
	if l == nil {
		return
	}
	_ = l.file.Close()
	_ = os.Remove(l.path)
}
