// Package types defines the backup and schedule entities and the metadata
// store interface.
package types

import (
	"time"
)

// BackupType selects the scope of a backup.
type BackupType string

const (
	// TypeDatabase backs up the record store only.
	TypeDatabase BackupType = "database"
	// TypeMedia backs up media files only.
	TypeMedia BackupType = "media"
	// TypeFull backs up both records and media.
	TypeFull BackupType = "full"
)

// Valid reports whether t is a known backup type.
func (t BackupType) Valid() bool {
	switch t {
	case TypeDatabase, TypeMedia, TypeFull:
		return true
	}
	return false
}

// BackupSource records how a backup came to exist.
type BackupSource string

const (
	// SourceManual marks a backup triggered by an operator.
	SourceManual BackupSource = "manual"
	// SourceScheduled marks a backup produced by the scheduler.
	SourceScheduled BackupSource = "scheduled"
	// SourceUploaded marks an externally supplied backup file.
	SourceUploaded BackupSource = "uploaded"
)

// BackupStatus represents the lifecycle state of a backup.
type BackupStatus string

const (
	// StatusPending indicates a backup has been registered but not started.
	StatusPending BackupStatus = "pending"
	// StatusRunning indicates backup work is in progress.
	StatusRunning BackupStatus = "running"
	// StatusSuccess indicates the backup completed.
	StatusSuccess BackupStatus = "success"
	// StatusFailed indicates the backup failed; the entity is retained.
	StatusFailed BackupStatus = "failed"
)

// Terminal reports whether the status is an end state.
func (s BackupStatus) Terminal() bool {
	return s == StatusSuccess || s == StatusFailed
}

// ScheduleType selects the recurrence of a schedule.
type ScheduleType string

const (
	// ScheduleDaily runs every day at the configured time.
	ScheduleDaily ScheduleType = "daily"
	// ScheduleWeekly runs once a week at the configured time.
	ScheduleWeekly ScheduleType = "weekly"
)

// Valid reports whether t is a known schedule type.
func (t ScheduleType) Valid() bool {
	return t == ScheduleDaily || t == ScheduleWeekly
}

// MergeStrategy controls how a restore treats existing live records.
type MergeStrategy string

const (
	// StrategyReplace overwrites existing records field-by-field.
	StrategyReplace MergeStrategy = "replace"
	// StrategyMerge fills only empty fields on existing records.
	StrategyMerge MergeStrategy = "merge"
	// StrategySkip leaves existing records untouched, inserting only new ones.
	StrategySkip MergeStrategy = "skip"
)

// Valid reports whether m is a known merge strategy.
func (m MergeStrategy) Valid() bool {
	switch m {
	case StrategyReplace, StrategyMerge, StrategySkip:
		return true
	}
	return false
}

// Backup represents one produced or uploaded snapshot.
type Backup struct {
	ID              string       `json:"id"`
	BackupType      BackupType   `json:"backupType"`
	Source          BackupSource `json:"source"`
	Status          BackupStatus `json:"status"`
	StartedAt       *time.Time   `json:"startedAt,omitempty"`
	CompletedAt     *time.Time   `json:"completedAt,omitempty"`
	DurationSeconds float64      `json:"durationSeconds"`
	FileSizeBytes   int64        `json:"fileSizeBytes"`
	Verified        bool         `json:"verified"`
	RecordCount     int          `json:"recordCount"`
	FileCount       int          `json:"fileCount"`
	StorageLocation string       `json:"storageLocation"`
	Description     string       `json:"description,omitempty"`
	ErrorMessage    string       `json:"errorMessage,omitempty"`
	CreatedAt       time.Time    `json:"createdAt"`

	// Offsite copy tracking, independent of the backup lifecycle.
	OffsiteStatus BackupStatus `json:"offsiteStatus,omitempty"`
	OffsiteError  string       `json:"offsiteError,omitempty"`
}

// Schedule is a recurring backup policy.
type Schedule struct {
	ID            string       `json:"id"`
	BackupType    BackupType   `json:"backupType"`
	ScheduleType  ScheduleType `json:"scheduleType"`
	ScheduleTime  string       `json:"scheduleTime"` // "15:04" wall-clock time
	IsActive      bool         `json:"isActive"`
	RetentionDays int          `json:"retentionDays"`
	NextRunTime   time.Time    `json:"nextRunTime"`
	CreatedAt     time.Time    `json:"createdAt"`
	UpdatedAt     time.Time    `json:"updatedAt"`
}

// Store defines metadata operations over backups and schedules.
type Store interface {
	// CreateBackup registers a new backup entity.
	CreateBackup(b *Backup) error

	// UpdateBackup replaces the stored entity with the given one.
	UpdateBackup(b *Backup) error

	// GetBackupByID returns a backup by its id.
	GetBackupByID(id string) (Backup, bool)

	// GetBackups returns all backups, most recent first.
	GetBackups() []Backup

	// GetBackupsFiltered returns backups filtered by type, source and/or
	// status; empty values match everything.
	GetBackupsFiltered(backupType BackupType, source BackupSource, status BackupStatus) []Backup

	// DeleteBackup removes a backup entity.
	DeleteBackup(id string) error

	// CreateSchedule registers a new schedule.
	CreateSchedule(s *Schedule) error

	// UpdateSchedule replaces the stored schedule.
	UpdateSchedule(s *Schedule) error

	// GetScheduleByID returns a schedule by its id.
	GetScheduleByID(id string) (Schedule, bool)

	// GetSchedules returns all schedules.
	GetSchedules() []Schedule

	// DeleteSchedule removes a schedule.
	DeleteSchedule(id string) error

	// GetStats returns aggregate statistics about stored backups.
	GetStats() map[string]interface{}

	// Load loads persisted metadata.
	Load() error

	// Save persists the metadata.
	Save() error
}
