// Package metadata manages tracking and persistence of backup and schedule
// metadata.
package metadata

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/galenelijah/USC-PIS-sub001/pkg/config"
	"github.com/galenelijah/USC-PIS-sub001/pkg/metadata/types"
)

// Re-export entity types for convenience.
type (
	// Backup represents one produced or uploaded snapshot.
	Backup = types.Backup
	// Schedule is a recurring backup policy.
	Schedule = types.Schedule
	// BackupStatus represents the lifecycle state of a backup.
	BackupStatus = types.BackupStatus
)

// DefaultStore is the global metadata store instance.
var DefaultStore types.Store

// fileContents is the on-disk shape of the file-based store.
type fileContents struct {
	Backups     []types.Backup   `json:"backups"`
	Schedules   []types.Schedule `json:"schedules"`
	LastUpdated time.Time        `json:"lastUpdated"`
	Version     string           `json:"version"`
}

// Store is the file-based metadata store.
type Store struct {
	contents fileContents
	mutex    sync.RWMutex
	filepath string
}

// Initialize creates and initializes the metadata store. The database-backed
// store is preferred when configured; the file-based store is the fallback.
func Initialize() error {
	if DefaultStore != nil {
		return nil // Already initialized
	}

	if config.CFG.MetadataDB.Enabled {
		return InitializeDatabaseStore()
	}

	DefaultStore = NewFileStore(filepath.Join(config.CFG.Storage.BackupDirectory, "metadata.json"))

	if err := DefaultStore.Load(); err != nil {
		log.Printf("Warning: Could not load existing metadata, starting fresh: %v", err)
	}

	return nil
}

// NewFileStore creates a file-based store persisting to the given path.
func NewFileStore(path string) *Store {
	return &Store{
		contents: fileContents{
			Backups:     make([]types.Backup, 0),
			Schedules:   make([]types.Schedule, 0),
			LastUpdated: time.Now(),
			Version:     "1.0",
		},
		filepath: path,
	}
}

// Load loads the metadata from file.
func (s *Store) Load() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, err := os.Stat(s.filepath); os.IsNotExist(err) {
		log.Printf("Metadata file does not exist at %s, will create new", s.filepath)
		return s.save()
	}

	data, err := os.ReadFile(s.filepath)
	if err != nil {
		return fmt.Errorf("failed to read metadata file: %w", err)
	}

	if err := json.Unmarshal(data, &s.contents); err != nil {
		return fmt.Errorf("failed to unmarshal metadata: %w", err)
	}

	log.Printf("Loaded metadata with %d backup records and %d schedules",
		len(s.contents.Backups), len(s.contents.Schedules))
	return nil
}

// Save persists the metadata to file.
func (s *Store) Save() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	return s.save()
}

// save performs the actual write without locking.
func (s *Store) save() error {
	s.contents.LastUpdated = time.Now()

	data, err := json.MarshalIndent(s.contents, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	dir := filepath.Dir(s.filepath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory for metadata: %w", err)
	}

	if err := os.WriteFile(s.filepath, data, 0644); err != nil {
		return fmt.Errorf("failed to write metadata file: %w", err)
	}

	return nil
}

// CreateBackup registers a new backup entity.
func (s *Store) CreateBackup(b *types.Backup) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	for _, existing := range s.contents.Backups {
		if existing.ID == b.ID {
			return fmt.Errorf("backup with ID %s already exists", b.ID)
		}
	}

	s.contents.Backups = append(s.contents.Backups, *b)
	return s.save()
}

// UpdateBackup replaces the stored entity with the given one.
func (s *Store) UpdateBackup(b *types.Backup) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	for i, existing := range s.contents.Backups {
		if existing.ID == b.ID {
			s.contents.Backups[i] = *b
			return s.save()
		}
	}

	return fmt.Errorf("backup with ID %s not found", b.ID)
}

// GetBackupByID returns a specific backup by ID.
func (s *Store) GetBackupByID(id string) (types.Backup, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	for _, backup := range s.contents.Backups {
		if backup.ID == id {
			return backup, true
		}
	}

	return types.Backup{}, false
}

// GetBackups returns all backups, most recent first.
func (s *Store) GetBackups() []types.Backup {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	result := make([]types.Backup, len(s.contents.Backups))
	copy(result, s.contents.Backups)

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	return result
}

// GetBackupsFiltered returns backups filtered by type, source and/or status.
func (s *Store) GetBackupsFiltered(backupType types.BackupType, source types.BackupSource, status types.BackupStatus) []types.Backup {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	var result []types.Backup
	for _, backup := range s.contents.Backups {
		if backupType != "" && backup.BackupType != backupType {
			continue
		}
		if source != "" && backup.Source != source {
			continue
		}
		if status != "" && backup.Status != status {
			continue
		}
		result = append(result, backup)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	return result
}

// DeleteBackup removes a backup entity.
func (s *Store) DeleteBackup(id string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	for i, backup := range s.contents.Backups {
		if backup.ID == id {
			s.contents.Backups = append(s.contents.Backups[:i], s.contents.Backups[i+1:]...)
			return s.save()
		}
	}

	return fmt.Errorf("backup with ID %s not found", id)
}

// CreateSchedule registers a new schedule.
func (s *Store) CreateSchedule(sched *types.Schedule) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	for _, existing := range s.contents.Schedules {
		if existing.ID == sched.ID {
			return fmt.Errorf("schedule with ID %s already exists", sched.ID)
		}
	}

	s.contents.Schedules = append(s.contents.Schedules, *sched)
	return s.save()
}

// UpdateSchedule replaces the stored schedule.
func (s *Store) UpdateSchedule(sched *types.Schedule) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	for i, existing := range s.contents.Schedules {
		if existing.ID == sched.ID {
			s.contents.Schedules[i] = *sched
			return s.save()
		}
	}

	return fmt.Errorf("schedule with ID %s not found", sched.ID)
}

// GetScheduleByID returns a schedule by ID.
func (s *Store) GetScheduleByID(id string) (types.Schedule, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	for _, sched := range s.contents.Schedules {
		if sched.ID == id {
			return sched, true
		}
	}

	return types.Schedule{}, false
}

// GetSchedules returns all schedules.
func (s *Store) GetSchedules() []types.Schedule {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	result := make([]types.Schedule, len(s.contents.Schedules))
	copy(result, s.contents.Schedules)

	return result
}

// DeleteSchedule removes a schedule.
func (s *Store) DeleteSchedule(id string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	for i, sched := range s.contents.Schedules {
		if sched.ID == id {
			s.contents.Schedules = append(s.contents.Schedules[:i], s.contents.Schedules[i+1:]...)
			return s.save()
		}
	}

	return fmt.Errorf("schedule with ID %s not found", id)
}

// GetStats returns statistics about the stored backups.
func (s *Store) GetStats() map[string]interface{} {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	var totalSize int64
	var lastSuccess time.Time
	typeCount := make(map[string]int)
	statusCount := map[string]int{
		"pending": 0,
		"running": 0,
		"success": 0,
		"failed":  0,
	}

	for _, backup := range s.contents.Backups {
		statusCount[string(backup.Status)]++
		typeCount[string(backup.BackupType)]++

		if backup.Status == types.StatusSuccess {
			totalSize += backup.FileSizeBytes
			if backup.CompletedAt != nil && backup.CompletedAt.After(lastSuccess) {
				lastSuccess = *backup.CompletedAt
			}
		}
	}

	stats := map[string]interface{}{
		"totalCount":       len(s.contents.Backups),
		"scheduleCount":    len(s.contents.Schedules),
		"totalSizeBytes":   totalSize,
		"totalSizeHuman":   humanize.Bytes(uint64(totalSize)),
		"typeDistribution": typeCount,
		"statusCounts":     statusCount,
	}
	if !lastSuccess.IsZero() {
		stats["lastSuccessfulBackup"] = lastSuccess
	}

	return stats
}
