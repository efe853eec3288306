package backup

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/galenelijah/USC-PIS-sub001/pkg/archive"
	"github.com/galenelijah/USC-PIS-sub001/pkg/config"
	"github.com/galenelijah/USC-PIS-sub001/pkg/metadata/types"
)

// ErrInvalidUpload is returned when an externally supplied backup file fails
// validation. Nothing is created in that case.
var ErrInvalidUpload = errors.New("invalid backup upload")

// IngestUpload validates an externally supplied backup file and registers it
// as a restorable backup entity. The archive is not eagerly decoded; the
// full decode happens lazily on first verification, preview, or restore.
func (m *Manager) IngestUpload(fileBytes []byte, filename string, declaredType types.BackupType, description string) (string, error) {
	if !declaredType.Valid() {
		return "", fmt.Errorf("%w: unsupported backup type %q", ErrInvalidUpload, declaredType)
	}

	maxSize := config.CFG.Upload.MaxSizeBytes
	if int64(len(fileBytes)) > maxSize {
		return "", fmt.Errorf("%w: file size %s exceeds the maximum of %s",
			ErrInvalidUpload,
			humanize.Bytes(uint64(len(fileBytes))),
			humanize.Bytes(uint64(maxSize)))
	}

	if err := archive.CheckStructure(filename, fileBytes, declaredType); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidUpload, err)
	}

	id := uuid.New().String()
	location, err := m.storage.SaveUpload(id, filename, fileBytes)
	if err != nil {
		return "", fmt.Errorf("failed to persist upload: %w", err)
	}

	now := time.Now()
	b := &types.Backup{
		ID:              id,
		BackupType:      declaredType,
		Source:          types.SourceUploaded,
		Status:          types.StatusSuccess,
		CompletedAt:     &now,
		FileSizeBytes:   int64(len(fileBytes)),
		Verified:        false,
		StorageLocation: location,
		Description:     description,
		CreatedAt:       now,
	}

	if err := m.store.CreateBackup(b); err != nil {
		// Roll back the stored file so no orphaned upload remains.
		if cleanupErr := m.storage.Delete(location); cleanupErr != nil {
			log.Printf("Warning: failed to clean up orphaned upload %s: %v", location, cleanupErr)
		}
		return "", fmt.Errorf("failed to register uploaded backup: %w", err)
	}

	log.Printf("Ingested uploaded backup %s: type=%s size=%s", id, declaredType,
		humanize.Bytes(uint64(len(fileBytes))))
	return id, nil
}

// DeleteUploaded removes an uploaded backup entity and its storage. It is
// forbidden on backups the system produced itself.
func (m *Manager) DeleteUploaded(backupID string) error {
	b, ok := m.store.GetBackupByID(backupID)
	if !ok {
		return fmt.Errorf("backup %s not found", backupID)
	}
	if b.Source != types.SourceUploaded {
		return fmt.Errorf("backup %s was not uploaded and cannot be deleted this way", backupID)
	}
	return m.DeleteBackup(b)
}
