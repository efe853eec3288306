package backup

import (
	"sync"

	"github.com/galenelijah/USC-PIS-sub001/pkg/metadata/types"
)

// typeLocks guards against two concurrent backups of the same type racing on
// the same archive storage. One lock per backup type; unrelated types may
// run concurrently.
type typeLocks struct {
	mutex   sync.Mutex
	running map[types.BackupType]bool
}

func newTypeLocks() *typeLocks {
	return &typeLocks{running: make(map[types.BackupType]bool)}
}

// tryAcquire attempts to claim the run slot for a backup type. It never
// blocks; a second request while one is running is rejected, not queued.
func (l *typeLocks) tryAcquire(t types.BackupType) bool {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	if l.running[t] {
		return false
	}
	l.running[t] = true
	return true
}

// release frees the run slot for a backup type.
func (l *typeLocks) release(t types.BackupType) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	delete(l.running, t)
}
