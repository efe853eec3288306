// Package backup implements the backup orchestrator: it creates backup
// entities, drives them through their lifecycle, and invokes the archive
// codec and verifier.
package backup

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/galenelijah/USC-PIS-sub001/pkg/archive"
	"github.com/galenelijah/USC-PIS-sub001/pkg/config"
	"github.com/galenelijah/USC-PIS-sub001/pkg/media"
	"github.com/galenelijah/USC-PIS-sub001/pkg/metadata/types"
	"github.com/galenelijah/USC-PIS-sub001/pkg/metrics"
	"github.com/galenelijah/USC-PIS-sub001/pkg/records"
	"github.com/galenelijah/USC-PIS-sub001/pkg/storage/local"
	"github.com/galenelijah/USC-PIS-sub001/pkg/verify"
)

// ErrBackupInProgress is returned when a backup of the requested type is
// already running. Callers should retry later; requests are never queued.
var ErrBackupInProgress = errors.New("a backup of this type is already in progress")

// Options selects what a backup captures.
type Options struct {
	Verify bool // verify the archive immediately after producing it
	Quick  bool // exclude designated high-volume collections
}

// OffsiteStore copies archive bytes to remote storage.
type OffsiteStore interface {
	ArchiveKey(backupID, extension string) string
	UploadArchive(key string, data []byte) error
	DeleteArchive(key string) error
}

// Manager handles backup operations.
type Manager struct {
	store    types.Store
	repo     records.Repository
	media    media.Source
	storage  *local.Client
	offsite  OffsiteStore
	verifier *verify.Verifier
	locks    *typeLocks
}

// NewManager creates a new backup manager. The offsite store may be nil.
func NewManager(store types.Store, repo records.Repository, mediaSource media.Source, storage *local.Client, offsite OffsiteStore) *Manager {
	return &Manager{
		store:    store,
		repo:     repo,
		media:    mediaSource,
		storage:  storage,
		offsite:  offsite,
		verifier: verify.NewVerifier(storage),
		locks:    newTypeLocks(),
	}
}

// Verifier exposes the manager's archive verifier.
func (m *Manager) Verifier() *verify.Verifier {
	return m.verifier
}

// Storage exposes the manager's archive storage client.
func (m *Manager) Storage() *local.Client {
	return m.storage
}

// CreateBackup registers a new backup entity and produces its archive
// asynchronously. The returned id is available immediately for status
// polling. A second request for a type that is already running is rejected
// with ErrBackupInProgress.
func (m *Manager) CreateBackup(backupType types.BackupType, source types.BackupSource, description string, opts Options) (string, error) {
	if !backupType.Valid() {
		return "", fmt.Errorf("unsupported backup type: %s", backupType)
	}

	if !m.locks.tryAcquire(backupType) {
		return "", ErrBackupInProgress
	}

	b := &types.Backup{
		ID:          uuid.New().String(),
		BackupType:  backupType,
		Source:      source,
		Status:      types.StatusPending,
		Description: description,
		CreatedAt:   time.Now(),
	}

	if err := m.store.CreateBackup(b); err != nil {
		m.locks.release(backupType)
		return "", fmt.Errorf("failed to register backup: %w", err)
	}

	go m.runBackup(b, opts)

	return b.ID, nil
}

// runBackup drives one backup from PENDING to a terminal state.
func (m *Manager) runBackup(b *types.Backup, opts Options) {
	defer m.locks.release(b.BackupType)

	startTime := time.Now()
	b.Status = types.StatusRunning
	b.StartedAt = &startTime
	if err := m.store.UpdateBackup(b); err != nil {
		log.Printf("Warning: failed to record backup %s as running: %v", b.ID, err)
	}

	data, manifest, err := m.produceArchive(b.BackupType, opts.Quick)
	if err != nil {
		m.failBackup(b, fmt.Sprintf("backup failed: %v", err))
		return
	}

	location, err := m.storage.Save(b.ID, b.BackupType, data)
	if err != nil {
		m.failBackup(b, fmt.Sprintf("failed to store archive: %v", err))
		return
	}

	completed := time.Now()
	b.Status = types.StatusSuccess
	b.CompletedAt = &completed
	b.DurationSeconds = completed.Sub(startTime).Seconds()
	b.FileSizeBytes = int64(len(data))
	b.RecordCount = manifest.TotalRecords
	b.FileCount = manifest.FileCount
	b.StorageLocation = location

	if err := m.store.UpdateBackup(b); err != nil {
		log.Printf("Warning: failed to record backup %s completion: %v", b.ID, err)
	}

	metrics.BackupCount.WithLabelValues(string(b.BackupType), string(b.Source), "success").Inc()
	metrics.BackupDuration.WithLabelValues(string(b.BackupType)).Observe(b.DurationSeconds)
	metrics.BackupSize.WithLabelValues(string(b.BackupType)).Set(float64(b.FileSizeBytes))
	metrics.LastBackupTimestamp.WithLabelValues(string(b.BackupType)).Set(float64(completed.Unix()))

	log.Printf("Backup %s completed: type=%s records=%d files=%d size=%s",
		b.ID, b.BackupType, b.RecordCount, b.FileCount, humanize.Bytes(uint64(b.FileSizeBytes)))

	// Verification failure of a just-made backup is reported but does not
	// retroactively mark the backup failed; it already exists and may
	// still be partially useful.
	if opts.Verify {
		result := m.verifier.Verify(*b)
		b.Verified = result.Valid
		if !result.Valid {
			log.Printf("Warning: backup %s failed post-verification: %s", b.ID, result.Message)
		}
		if err := m.store.UpdateBackup(b); err != nil {
			log.Printf("Warning: failed to record verification result for %s: %v", b.ID, err)
		}
	}

	if m.offsite != nil {
		m.uploadOffsite(b, data)
	}
}

// produceArchive snapshots the requested scope and encodes the archive.
func (m *Manager) produceArchive(backupType types.BackupType, quick bool) ([]byte, archive.Manifest, error) {
	ctx := context.Background()

	var snapshot records.Snapshot
	var mediaFiles []archive.MediaEntry
	var err error

	if backupType == types.TypeDatabase || backupType == types.TypeFull {
		snapshot, err = m.snapshotRecords(ctx, quick)
		if err != nil {
			return nil, archive.Manifest{}, err
		}
	}

	if backupType == types.TypeMedia || backupType == types.TypeFull {
		mediaFiles, err = m.snapshotMedia()
		if err != nil {
			return nil, archive.Manifest{}, err
		}
	}

	return archiveEncode(backupType, snapshot, mediaFiles)
}

// archiveEncode is indirected for tests.
var archiveEncode = func(backupType types.BackupType, snapshot records.Snapshot, mediaFiles []archive.MediaEntry) ([]byte, archive.Manifest, error) {
	return archive.Encode(backupType, snapshot, mediaFiles)
}

// snapshotRecords reads every model from the live repository. Quick mode
// excludes designated high-volume collections to bound duration.
func (m *Manager) snapshotRecords(ctx context.Context, quick bool) (records.Snapshot, error) {
	models, err := m.repo.Models(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list models: %w", err)
	}

	excluded := make(map[string]bool)
	if quick {
		for _, model := range config.CFG.Snapshot.QuickExcludeModels {
			excluded[model] = true
		}
	}

	snapshot := make(records.Snapshot)
	for _, model := range models {
		if excluded[model] {
			if config.CFG.Debug {
				log.Printf("Quick mode: skipping model %s", model)
			}
			continue
		}
		recs, err := m.repo.FetchAll(ctx, model)
		if err != nil {
			return nil, fmt.Errorf("failed to snapshot model %s: %w", model, err)
		}
		snapshot[model] = recs
	}

	return snapshot, nil
}

// snapshotMedia reads every media file from the live media source.
func (m *Manager) snapshotMedia() ([]archive.MediaEntry, error) {
	files, err := m.media.List()
	if err != nil {
		return nil, fmt.Errorf("failed to list media files: %w", err)
	}

	entries := make([]archive.MediaEntry, 0, len(files))
	for _, f := range files {
		data, err := m.media.Read(f)
		if err != nil {
			return nil, fmt.Errorf("failed to read media file %s: %w", f.Path(), err)
		}
		entries = append(entries, archive.MediaEntry{File: f, Data: data})
	}

	return entries, nil
}

// failBackup transitions a backup to FAILED and retains the entity as
// visible history.
func (m *Manager) failBackup(b *types.Backup, reason string) {
	completed := time.Now()
	b.Status = types.StatusFailed
	b.CompletedAt = &completed
	if b.StartedAt != nil {
		b.DurationSeconds = completed.Sub(*b.StartedAt).Seconds()
	}
	b.ErrorMessage = reason

	if err := m.store.UpdateBackup(b); err != nil {
		log.Printf("Warning: failed to record backup %s failure: %v", b.ID, err)
	}

	metrics.BackupCount.WithLabelValues(string(b.BackupType), string(b.Source), "failed").Inc()
	log.Printf("Backup %s failed: %s", b.ID, reason)
}

// uploadOffsite copies the archive to remote object storage. Offsite status
// is tracked independently of the backup lifecycle.
func (m *Manager) uploadOffsite(b *types.Backup, data []byte) {
	key := m.offsite.ArchiveKey(b.ID, local.ArchiveExtension(b.BackupType))
	if err := m.offsite.UploadArchive(key, data); err != nil {
		b.OffsiteStatus = types.StatusFailed
		b.OffsiteError = err.Error()
	} else {
		b.OffsiteStatus = types.StatusSuccess
		b.OffsiteError = ""
	}
	if err := m.store.UpdateBackup(b); err != nil {
		log.Printf("Warning: failed to record offsite status for %s: %v", b.ID, err)
	}
}

// MarkFailed is the operator action for backups discovered stuck in a
// non-terminal state after a crash. Once marked, a new backup of the same
// type may be started.
func (m *Manager) MarkFailed(backupID, reason string) error {
	b, ok := m.store.GetBackupByID(backupID)
	if !ok {
		return fmt.Errorf("backup %s not found", backupID)
	}
	if b.Status.Terminal() {
		return fmt.Errorf("backup %s is already %s", backupID, b.Status)
	}

	if reason == "" {
		reason = "manually marked failed by operator"
	}
	m.failBackup(&b, reason)

	// The run slot may still be held if the process did not restart.
	m.locks.release(b.BackupType)
	return nil
}

// DeleteBackup removes a backup entity and releases its archive storage.
// Used by retention cleanup and by upload deletion.
func (m *Manager) DeleteBackup(b types.Backup) error {
	if err := m.storage.Delete(b.StorageLocation); err != nil {
		return err
	}
	if m.offsite != nil && b.OffsiteStatus == types.StatusSuccess {
		key := m.offsite.ArchiveKey(b.ID, local.ArchiveExtension(b.BackupType))
		if err := m.offsite.DeleteArchive(key); err != nil {
			log.Printf("Warning: failed to delete offsite copy of %s: %v", b.ID, err)
		}
	}
	return m.store.DeleteBackup(b.ID)
}
