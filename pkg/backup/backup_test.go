package backup

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/galenelijah/USC-PIS-sub001/pkg/archive"
	"github.com/galenelijah/USC-PIS-sub001/pkg/config"
	"github.com/galenelijah/USC-PIS-sub001/pkg/media"
	"github.com/galenelijah/USC-PIS-sub001/pkg/metadata"
	"github.com/galenelijah/USC-PIS-sub001/pkg/metadata/types"
	"github.com/galenelijah/USC-PIS-sub001/pkg/records"
	"github.com/galenelijah/USC-PIS-sub001/pkg/storage/local"
)

// newTestManager builds a manager over temp directories and an in-memory
// repository seeded with a few patient records.
func newTestManager(t *testing.T) (*Manager, types.Store, *records.MemoryRepository) {
	t.Helper()

	dir := t.TempDir()
	config.CFG.Storage.BackupDirectory = filepath.Join(dir, "backups")
	config.CFG.Storage.UploadDirectory = filepath.Join(dir, "uploads")
	config.CFG.Storage.MediaDirectory = filepath.Join(dir, "media")
	config.CFG.Upload.MaxSizeBytes = config.DefaultMaxUploadSize
	config.CFG.Snapshot.QuickExcludeModels = []string{"AuditLog"}

	repo := records.NewMemoryRepository()
	repo.Seed("Patient", []records.Record{
		{"id": "p-1", "name": "Juan Dela Cruz"},
		{"id": "p-2", "name": "Maria Santos"},
	})
	repo.Seed("AuditLog", []records.Record{
		{"id": "a-1", "action": "login"},
	})

	store := metadata.NewFileStore(filepath.Join(config.CFG.Storage.BackupDirectory, "metadata.json"))
	require.NoError(t, store.Load())

	storage, err := local.NewClient(config.CFG.Storage.BackupDirectory, config.CFG.Storage.UploadDirectory)
	require.NoError(t, err)

	return NewManager(store, repo, media.NewDirSource(config.CFG.Storage.MediaDirectory), storage, nil), store, repo
}

// waitForTerminal polls until the backup reaches a terminal state.
func waitForTerminal(t *testing.T, store types.Store, backupID string) types.Backup {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		b, ok := store.GetBackupByID(backupID)
		require.True(t, ok)
		if b.Status.Terminal() {
			return b
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("backup %s did not reach a terminal state", backupID)
	return types.Backup{}
}

func TestCreateBackupDatabase(t *testing.T) {
	manager, store, _ := newTestManager(t)

	backupID, err := manager.CreateBackup(types.TypeDatabase, types.SourceManual, "test backup", Options{Verify: true})
	require.NoError(t, err)
	require.NotEmpty(t, backupID)

	b := waitForTerminal(t, store, backupID)
	assert.Equal(t, types.StatusSuccess, b.Status)
	assert.Equal(t, 3, b.RecordCount)
	assert.Equal(t, 0, b.FileCount)
	assert.True(t, b.Verified)
	assert.Greater(t, b.FileSizeBytes, int64(0))
	assert.NotNil(t, b.CompletedAt)

	_, err = os.Stat(b.StorageLocation)
	assert.NoError(t, err, "archive file must exist at the recorded location")
}

func TestCreateBackupQuickExcludesModels(t *testing.T) {
	manager, store, _ := newTestManager(t)

	backupID, err := manager.CreateBackup(types.TypeDatabase, types.SourceManual, "", Options{Quick: true})
	require.NoError(t, err)

	b := waitForTerminal(t, store, backupID)
	assert.Equal(t, types.StatusSuccess, b.Status)
	assert.Equal(t, 2, b.RecordCount, "quick backups exclude the configured models")
}

func TestCreateBackupFullIncludesMedia(t *testing.T) {
	manager, store, _ := newTestManager(t)

	photoDir := filepath.Join(config.CFG.Storage.MediaDirectory, "photos")
	require.NoError(t, os.MkdirAll(photoDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(photoDir, "p-1.jpg"), []byte("jpeg"), 0644))

	backupID, err := manager.CreateBackup(types.TypeFull, types.SourceManual, "", Options{})
	require.NoError(t, err)

	b := waitForTerminal(t, store, backupID)
	assert.Equal(t, types.StatusSuccess, b.Status)
	assert.Equal(t, 3, b.RecordCount)
	assert.Equal(t, 1, b.FileCount)
}

func TestCreateBackupRejectsInvalidType(t *testing.T) {
	manager, _, _ := newTestManager(t)

	_, err := manager.CreateBackup(types.BackupType("bogus"), types.SourceManual, "", Options{})
	assert.Error(t, err)
}

func TestCreateBackupRejectsConcurrentSameType(t *testing.T) {
	manager, store, _ := newTestManager(t)

	// Stall database archive production so the first backup holds its run
	// slot for the duration of the test.
	release := make(chan struct{})
	origEncode := archiveEncode
	archiveEncode = func(backupType types.BackupType, snapshot records.Snapshot, mediaFiles []archive.MediaEntry) ([]byte, archive.Manifest, error) {
		if backupType == types.TypeDatabase {
			<-release
		}
		return origEncode(backupType, snapshot, mediaFiles)
	}
	defer func() { archiveEncode = origEncode }()

	firstID, err := manager.CreateBackup(types.TypeDatabase, types.SourceManual, "", Options{})
	require.NoError(t, err)

	_, err = manager.CreateBackup(types.TypeDatabase, types.SourceManual, "", Options{})
	assert.ErrorIs(t, err, ErrBackupInProgress)

	// A different type is unaffected by the running database backup.
	mediaID, err := manager.CreateBackup(types.TypeMedia, types.SourceManual, "", Options{})
	require.NoError(t, err)
	waitForTerminal(t, store, mediaID)

	close(release)
	b := waitForTerminal(t, store, firstID)
	assert.Equal(t, types.StatusSuccess, b.Status)

	// The slot is free again once the first run finished.
	retryID, err := manager.CreateBackup(types.TypeDatabase, types.SourceManual, "", Options{})
	require.NoError(t, err)
	waitForTerminal(t, store, retryID)
}

func TestFailedBackupRetainsEntity(t *testing.T) {
	manager, store, _ := newTestManager(t)

	origEncode := archiveEncode
	archiveEncode = func(backupType types.BackupType, snapshot records.Snapshot, mediaFiles []archive.MediaEntry) ([]byte, archive.Manifest, error) {
		return nil, archive.Manifest{}, fmt.Errorf("disk full")
	}
	defer func() { archiveEncode = origEncode }()

	backupID, err := manager.CreateBackup(types.TypeDatabase, types.SourceManual, "", Options{})
	require.NoError(t, err)

	b := waitForTerminal(t, store, backupID)
	assert.Equal(t, types.StatusFailed, b.Status)
	assert.Contains(t, b.ErrorMessage, "disk full")

	// The failed run released its slot.
	archiveEncode = origEncode
	retryID, err := manager.CreateBackup(types.TypeDatabase, types.SourceManual, "", Options{})
	require.NoError(t, err)
	retry := waitForTerminal(t, store, retryID)
	assert.Equal(t, types.StatusSuccess, retry.Status)
}

func TestMarkFailedFreesStuckBackup(t *testing.T) {
	manager, store, _ := newTestManager(t)

	// Simulate a crash: an entity stuck in RUNNING whose goroutine is gone.
	now := time.Now()
	stuck := &types.Backup{
		ID:         "stuck-1",
		BackupType: types.TypeDatabase,
		Source:     types.SourceScheduled,
		Status:     types.StatusRunning,
		StartedAt:  &now,
		CreatedAt:  now,
	}
	require.NoError(t, store.CreateBackup(stuck))
	require.True(t, manager.locks.tryAcquire(types.TypeDatabase))

	require.NoError(t, manager.MarkFailed("stuck-1", "operator intervention after crash"))

	b, ok := store.GetBackupByID("stuck-1")
	require.True(t, ok)
	assert.Equal(t, types.StatusFailed, b.Status)
	assert.Contains(t, b.ErrorMessage, "operator intervention")

	// New backups of that type run again.
	backupID, err := manager.CreateBackup(types.TypeDatabase, types.SourceManual, "", Options{})
	require.NoError(t, err)
	fresh := waitForTerminal(t, store, backupID)
	assert.Equal(t, types.StatusSuccess, fresh.Status)
}

func TestMarkFailedRejectsTerminalBackup(t *testing.T) {
	manager, store, _ := newTestManager(t)

	backupID, err := manager.CreateBackup(types.TypeDatabase, types.SourceManual, "", Options{})
	require.NoError(t, err)
	waitForTerminal(t, store, backupID)

	assert.Error(t, manager.MarkFailed(backupID, "too late"))
}

func TestDeleteBackupRemovesArchive(t *testing.T) {
	manager, store, _ := newTestManager(t)

	backupID, err := manager.CreateBackup(types.TypeDatabase, types.SourceManual, "", Options{})
	require.NoError(t, err)
	b := waitForTerminal(t, store, backupID)

	require.NoError(t, manager.DeleteBackup(b))

	_, ok := store.GetBackupByID(backupID)
	assert.False(t, ok)
	_, err = os.Stat(b.StorageLocation)
	assert.True(t, os.IsNotExist(err))
}
