// Package restore implements restore preview planning and plan execution
// against the live record repository under a chosen merge strategy.
package restore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/galenelijah/USC-PIS-sub001/pkg/config"
	"github.com/galenelijah/USC-PIS-sub001/pkg/metadata/types"
	"github.com/galenelijah/USC-PIS-sub001/pkg/records"
)

// ErrRestoreInProgress is returned when another restore holds a lock on an
// overlapping model set. Callers should retry later; requests are never
// queued.
var ErrRestoreInProgress = errors.New("a restore touching these models is already in progress")

// Conflict describes one record whose live counterpart differs.
type Conflict struct {
	Model      string      `json:"model"`
	NaturalKey interface{} `json:"naturalKey"`
	Fields     []string    `json:"fields"`
}

// classification is the outcome of matching one archive record against the
// live repository.
type classification struct {
	live           records.Record
	found          bool
	keyless        bool
	conflictFields []string
}

// classify looks up the archive record's live counterpart by natural key and
// compares overlapping fields. A populated live field that differs from the
// archive value is a conflict; an empty live field is a fill, not a
// conflict. A record without a usable natural key cannot be matched and is
// reported keyless; callers skip it rather than fail the whole restore.
func classify(ctx context.Context, repo records.Repository, model, keyField string, rec records.Record) (classification, error) {
	keyValue, err := records.KeyValue(rec, keyField)
	if err != nil {
		return classification{keyless: true}, nil
	}

	live, found, err := repo.FindByNaturalKey(ctx, model, keyField, keyValue)
	if err != nil {
		return classification{}, fmt.Errorf("failed to look up %s record: %w", model, err)
	}
	if !found {
		return classification{}, nil
	}

	var conflictFields []string
	for field, archiveValue := range rec {
		liveValue, overlaps := live[field]
		if !overlaps || records.IsEmpty(liveValue) {
			continue
		}
		if !records.ValuesEqual(liveValue, archiveValue) {
			conflictFields = append(conflictFields, field)
		}
	}
	sort.Strings(conflictFields)

	return classification{live: live, found: true, conflictFields: conflictFields}, nil
}

// naturalKeyOf returns the record's natural key value for reporting.
func naturalKeyOf(model string, rec records.Record) interface{} {
	v, _ := records.KeyValue(rec, config.NaturalKeyField(model))
	return v
}

// sortedModels returns the snapshot's model names in a stable order.
func sortedModels(snapshot records.Snapshot) []string {
	models := make([]string, 0, len(snapshot))
	for model := range snapshot {
		models = append(models, model)
	}
	sort.Strings(models)
	return models
}

// modelLocks is an exclusive lock over sets of logical models. A restore
// holds its affected model set for its whole duration; a second restore
// touching an overlapping set is rejected, not queued.
type modelLocks struct {
	mutex sync.Mutex
	held  map[string]bool
}

func newModelLocks() *modelLocks {
	return &modelLocks{held: make(map[string]bool)}
}

// tryAcquire claims every model in the set, or none of them.
func (l *modelLocks) tryAcquire(models []string) bool {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	for _, model := range models {
		if l.held[model] {
			return false
		}
	}
	for _, model := range models {
		l.held[model] = true
	}
	return true
}

// release frees every model in the set.
func (l *modelLocks) release(models []string) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	for _, model := range models {
		delete(l.held, model)
	}
}

// restorable checks that a backup can serve as a restore source.
func restorable(b types.Backup) error {
	if b.Status != types.StatusSuccess {
		return fmt.Errorf("backup %s is %s and cannot be restored from", b.ID, b.Status)
	}
	return nil
}
