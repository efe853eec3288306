package metadata

import (
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/galenelijah/USC-PIS-sub001/pkg/metadata/types"
)

func newMockDBStore(t *testing.T) (*DBStore, sqlmock.Sqlmock) {
	t.Helper()

	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	db, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      sqlDB,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	return &DBStore{db: db}, mock
}

func TestDBStoreGetBackupByID(t *testing.T) {
	store, mock := newMockDBStore(t)

	now := time.Now()
	rows := sqlmock.NewRows([]string{
		"id", "backup_type", "source", "status", "started_at", "completed_at",
		"duration_seconds", "file_size_bytes", "verified", "record_count",
		"file_count", "storage_location", "description", "error_message",
		"created_at", "offsite_status", "offsite_error",
	}).AddRow(
		"b-1", "database", "manual", "success", &now, &now,
		1.5, int64(2048), true, 10,
		0, "/backups/b-1.json.gz", "", "",
		now, "", "",
	)
	mock.ExpectQuery("SELECT \\* FROM `backups`").
		WithArgs("b-1", 1).
		WillReturnRows(rows)

	b, ok := store.GetBackupByID("b-1")
	require.True(t, ok)
	assert.Equal(t, types.TypeDatabase, b.BackupType)
	assert.Equal(t, types.StatusSuccess, b.Status)
	assert.Equal(t, int64(2048), b.FileSizeBytes)
	assert.True(t, b.Verified)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDBStoreGetBackupByIDNotFound(t *testing.T) {
	store, mock := newMockDBStore(t)

	mock.ExpectQuery("SELECT \\* FROM `backups`").
		WithArgs("missing", 1).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, ok := store.GetBackupByID("missing")
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDBStoreCreateBackup(t *testing.T) {
	store, mock := newMockDBStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `backups`").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := store.CreateBackup(&types.Backup{
		ID:         "b-1",
		BackupType: types.TypeDatabase,
		Source:     types.SourceManual,
		Status:     types.StatusPending,
		CreatedAt:  time.Now(),
	})
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDBStoreUpdateBackupNotFound(t *testing.T) {
	store, mock := newMockDBStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE `backups`").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	err := store.UpdateBackup(&types.Backup{ID: "missing", Status: types.StatusFailed})
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
