package restore

import (
	"context"
	"fmt"
	"log"

	"github.com/galenelijah/USC-PIS-sub001/pkg/archive"
	"github.com/galenelijah/USC-PIS-sub001/pkg/config"
	"github.com/galenelijah/USC-PIS-sub001/pkg/media"
	"github.com/galenelijah/USC-PIS-sub001/pkg/metadata/types"
	"github.com/galenelijah/USC-PIS-sub001/pkg/metrics"
	"github.com/galenelijah/USC-PIS-sub001/pkg/records"
)

// Result reports what an executed restore actually did. When Partial is
// true the restore failed midway: models in CompletedModels were committed
// and kept, FailedModel was rolled back, and any models after it were not
// attempted.
type Result struct {
	BackupID        string              `json:"backupId"`
	MergeStrategy   types.MergeStrategy `json:"mergeStrategy"`
	RecordsCreated  int                 `json:"recordsCreated"`
	RecordsUpdated  int                 `json:"recordsUpdated"`
	RecordsSkipped  int                 `json:"recordsSkipped"`
	FilesRestored   int                 `json:"filesRestored"`
	FilesSkipped    int                 `json:"filesSkipped"`
	CompletedModels []string            `json:"completedModels"`
	Partial         bool                `json:"partial,omitempty"`
	FailedModel     string              `json:"failedModel,omitempty"`
	ErrorMessage    string              `json:"errorMessage,omitempty"`
}

// Executor applies restore plans to the live repository and media store.
type Executor struct {
	store  types.Store
	repo   records.Repository
	media  media.Source
	reader ArchiveReader
	locks  *modelLocks
}

// NewExecutor creates a restore executor.
func NewExecutor(store types.Store, repo records.Repository, mediaSource media.Source, reader ArchiveReader) *Executor {
	return &Executor{
		store:  store,
		repo:   repo,
		media:  mediaSource,
		reader: reader,
		locks:  newModelLocks(),
	}
}

// ExecuteRestore applies the backup's archive to the live data under the
// given merge strategy. Classification is re-derived against the live data
// at execution time, so a plan produced earlier is advisory only. Each
// model is applied in its own transaction; on failure the current model is
// rolled back, earlier models stay committed, and the result reports the
// partial outcome.
func (e *Executor) ExecuteRestore(ctx context.Context, backupID string, strategy types.MergeStrategy) (*Result, error) {
	if !strategy.Valid() {
		return nil, fmt.Errorf("invalid merge strategy: %s", strategy)
	}

	backup, ok := e.store.GetBackupByID(backupID)
	if !ok {
		return nil, fmt.Errorf("backup %s not found", backupID)
	}
	if err := restorable(backup); err != nil {
		return nil, err
	}

	data, err := e.reader.Read(backup.StorageLocation)
	if err != nil {
		return nil, fmt.Errorf("failed to read archive for backup %s: %w", backupID, err)
	}
	snapshot, mediaFiles, _, err := archive.Decode(data, backup.BackupType)
	if err != nil {
		return nil, err
	}

	models := sortedModels(snapshot)
	lockSet := lockUnits(models, mediaFiles)
	if !e.locks.tryAcquire(lockSet) {
		return nil, ErrRestoreInProgress
	}
	defer e.locks.release(lockSet)

	log.Printf("Starting %s restore from backup %s (%d models, %d media files)",
		strategy, backupID, len(models), len(mediaFiles))

	result := &Result{
		BackupID:        backupID,
		MergeStrategy:   strategy,
		CompletedModels: []string{},
	}

	for _, model := range models {
		if err := e.restoreModel(ctx, model, snapshot[model], strategy, result); err != nil {
			return e.fail(result, model, err)
		}
		result.CompletedModels = append(result.CompletedModels, model)
	}

	for _, entry := range mediaFiles {
		if err := e.restoreMediaFile(entry, strategy, result); err != nil {
			return e.fail(result, "media/"+entry.File.Collection, err)
		}
	}

	metrics.RestoreCount.WithLabelValues(string(strategy), "success").Inc()
	metrics.RestoreRecords.WithLabelValues("created").Add(float64(result.RecordsCreated))
	metrics.RestoreRecords.WithLabelValues("updated").Add(float64(result.RecordsUpdated))
	metrics.RestoreRecords.WithLabelValues("skipped").Add(float64(result.RecordsSkipped))

	log.Printf("Restore from backup %s completed: %d created, %d updated, %d skipped, %d files restored",
		backupID, result.RecordsCreated, result.RecordsUpdated, result.RecordsSkipped, result.FilesRestored)
	return result, nil
}

// lockUnits builds the full lock set for a restore: every database model
// plus every media collection it writes into, so concurrent media restores
// over the same collections are rejected too.
func lockUnits(models []string, mediaFiles []archive.MediaEntry) []string {
	units := append([]string{}, models...)
	seen := make(map[string]bool)
	for _, entry := range mediaFiles {
		unit := "media/" + entry.File.Collection
		if !seen[unit] {
			seen[unit] = true
			units = append(units, unit)
		}
	}
	return units
}

// restoreModel applies one model's archive records inside a transaction.
// Counters on result are only advanced once the transaction commits.
func (e *Executor) restoreModel(ctx context.Context, model string, recs []records.Record, strategy types.MergeStrategy, result *Result) error {
	keyField := config.NaturalKeyField(model)
	var created, updated, skipped int

	err := e.repo.RunInTransaction(ctx, model, func(tx records.Repository) error {
		for _, rec := range recs {
			c, err := classify(ctx, tx, model, keyField, rec)
			if err != nil {
				return err
			}
			if c.keyless {
				skipped++
				continue
			}

			if !c.found {
				if err := tx.Upsert(ctx, model, keyField, rec.Clone()); err != nil {
					return err
				}
				created++
				continue
			}

			switch strategy {
			case types.StrategyReplace:
				if err := tx.Upsert(ctx, model, keyField, rec.Clone()); err != nil {
					return err
				}
				updated++

			case types.StrategyMerge:
				merged, changed := mergeInto(c.live, rec)
				if !changed {
					skipped++
					continue
				}
				if err := tx.Upsert(ctx, model, keyField, merged); err != nil {
					return err
				}
				updated++

			case types.StrategySkip:
				skipped++
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	result.RecordsCreated += created
	result.RecordsUpdated += updated
	result.RecordsSkipped += skipped
	return nil
}

// mergeInto copies archive values into empty fields of the live record.
// Populated live fields keep their current value regardless of what the
// archive holds. The second return reports whether any field changed.
func mergeInto(live records.Record, rec records.Record) (records.Record, bool) {
	merged := live.Clone()
	changed := false
	for field, archiveValue := range rec {
		if records.IsEmpty(archiveValue) {
			continue
		}
		if liveValue, ok := merged[field]; ok && !records.IsEmpty(liveValue) {
			continue
		}
		merged[field] = archiveValue
		changed = true
	}
	return merged, changed
}

// restoreMediaFile writes one archived media file. Under MERGE and SKIP an
// existing file is left untouched; under REPLACE it is overwritten.
func (e *Executor) restoreMediaFile(entry archive.MediaEntry, strategy types.MergeStrategy, result *Result) error {
	exists, err := e.media.Exists(entry.File)
	if err != nil {
		return err
	}
	if exists && strategy != types.StrategyReplace {
		result.FilesSkipped++
		return nil
	}
	if err := e.media.Write(entry.File, entry.Data); err != nil {
		return err
	}
	result.FilesRestored++
	return nil
}

// fail finalizes a partially applied restore. Committed models stay in
// place; the result names the failing unit so an operator can follow up.
func (e *Executor) fail(result *Result, failedUnit string, err error) (*Result, error) {
	result.Partial = true
	result.FailedModel = failedUnit
	result.ErrorMessage = err.Error()
	metrics.RestoreCount.WithLabelValues(string(result.MergeStrategy), "failed").Inc()
	metrics.RestoreRecords.WithLabelValues("created").Add(float64(result.RecordsCreated))
	metrics.RestoreRecords.WithLabelValues("updated").Add(float64(result.RecordsUpdated))
	metrics.RestoreRecords.WithLabelValues("skipped").Add(float64(result.RecordsSkipped))

	log.Printf("Restore from backup %s failed at %s after %d models: %v",
		result.BackupID, failedUnit, len(result.CompletedModels), err)
	return result, fmt.Errorf("restore failed at %s: %w", failedUnit, err)
}
