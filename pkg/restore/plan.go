package restore

import (
	"context"
	"fmt"

	"github.com/galenelijah/USC-PIS-sub001/pkg/archive"
	"github.com/galenelijah/USC-PIS-sub001/pkg/config"
	"github.com/galenelijah/USC-PIS-sub001/pkg/metadata/types"
	"github.com/galenelijah/USC-PIS-sub001/pkg/records"
)

// Summary aggregates the outcome of a restore preview.
type Summary struct {
	TotalRecords    int      `json:"totalRecords"`
	NewRecords      int      `json:"newRecords"`
	ExistingRecords int      `json:"existingRecords"`
	Conflicts       int      `json:"conflicts"`
	UnkeyedRecords  int      `json:"unkeyedRecords,omitempty"`
	ModelsAffected  []string `json:"modelsAffected"`
	SafeToRestore   bool     `json:"safeToRestore"`
}

// Plan is a read-only preview of what executing a restore would do. Nothing
// is written while planning.
type Plan struct {
	BackupID      string              `json:"backupId"`
	BackupType    types.BackupType    `json:"backupType"`
	MergeStrategy types.MergeStrategy `json:"mergeStrategy"`
	Summary       Summary             `json:"summary"`
	Conflicts     []Conflict          `json:"conflicts"`
	MediaFiles    int                 `json:"mediaFiles,omitempty"`
}

// ArchiveReader reads archive bytes from a storage location.
type ArchiveReader interface {
	Read(location string) ([]byte, error)
}

// Planner builds restore previews without touching the live data.
type Planner struct {
	store  types.Store
	repo   records.Repository
	reader ArchiveReader
}

// NewPlanner creates a restore planner.
func NewPlanner(store types.Store, repo records.Repository, reader ArchiveReader) *Planner {
	return &Planner{store: store, repo: repo, reader: reader}
}

// PlanRestore decodes the backup's archive and classifies every record
// against the live repository under the given strategy. The plan reflects
// the live data at call time; execution re-derives it.
func (p *Planner) PlanRestore(ctx context.Context, backupID string, strategy types.MergeStrategy) (*Plan, error) {
	if !strategy.Valid() {
		return nil, fmt.Errorf("invalid merge strategy: %s", strategy)
	}

	backup, ok := p.store.GetBackupByID(backupID)
	if !ok {
		return nil, fmt.Errorf("backup %s not found", backupID)
	}
	if err := restorable(backup); err != nil {
		return nil, err
	}

	data, err := p.reader.Read(backup.StorageLocation)
	if err != nil {
		return nil, fmt.Errorf("failed to read archive for backup %s: %w", backupID, err)
	}
	snapshot, mediaFiles, _, err := archive.Decode(data, backup.BackupType)
	if err != nil {
		return nil, err
	}

	plan := &Plan{
		BackupID:      backupID,
		BackupType:    backup.BackupType,
		MergeStrategy: strategy,
		Conflicts:     []Conflict{},
	}

	for _, model := range sortedModels(snapshot) {
		recs := snapshot[model]
		if len(recs) == 0 {
			continue
		}
		plan.Summary.ModelsAffected = append(plan.Summary.ModelsAffected, model)
		keyField := config.NaturalKeyField(model)

		for _, rec := range recs {
			plan.Summary.TotalRecords++

			c, err := classify(ctx, p.repo, model, keyField, rec)
			if err != nil {
				return nil, err
			}
			if c.keyless {
				plan.Summary.UnkeyedRecords++
				continue
			}
			if !c.found {
				plan.Summary.NewRecords++
				continue
			}
			plan.Summary.ExistingRecords++
			if len(c.conflictFields) > 0 {
				plan.Summary.Conflicts++
				plan.Conflicts = append(plan.Conflicts, Conflict{
					Model:      model,
					NaturalKey: naturalKeyOf(model, rec),
					Fields:     c.conflictFields,
				})
			}
		}
	}

	plan.MediaFiles = len(mediaFiles)
	plan.Summary.SafeToRestore = plan.Summary.Conflicts == 0 || strategy != types.StrategyReplace
	return plan, nil
}
