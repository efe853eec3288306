// MySQL-backed metadata storage.
package metadata

import (
	"fmt"
	"log"
	"time"

	"github.com/dustin/go-humanize"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/galenelijah/USC-PIS-sub001/pkg/config"
	"github.com/galenelijah/USC-PIS-sub001/pkg/metadata/types"
)

// DB is the global database instance.
var DB *gorm.DB

// BackupRow represents a backup record in MySQL.
type BackupRow struct {
	ID              string `gorm:"primaryKey;type:varchar(255)"`
	BackupType      string `gorm:"type:varchar(50);not null;index"`
	Source          string `gorm:"type:varchar(50);not null;index"`
	Status          string `gorm:"type:varchar(50);not null;index"`
	StartedAt       *time.Time
	CompletedAt     *time.Time
	DurationSeconds float64
	FileSizeBytes   int64
	Verified        bool
	RecordCount     int
	FileCount       int
	StorageLocation string    `gorm:"type:varchar(1024)"`
	Description     string    `gorm:"type:text"`
	ErrorMessage    string    `gorm:"type:text"`
	CreatedAt       time.Time `gorm:"not null;index"`
	OffsiteStatus   string    `gorm:"type:varchar(50)"`
	OffsiteError    string    `gorm:"type:text"`
}

// TableName specifies the table name for the BackupRow model.
func (BackupRow) TableName() string {
	return "backups"
}

// ScheduleRow represents a schedule record in MySQL.
type ScheduleRow struct {
	ID            string `gorm:"primaryKey;type:varchar(255)"`
	BackupType    string `gorm:"type:varchar(50);not null"`
	ScheduleType  string `gorm:"type:varchar(50);not null"`
	ScheduleTime  string `gorm:"type:varchar(10);not null"`
	IsActive      bool   `gorm:"not null;default:true"`
	RetentionDays int    `gorm:"not null;default:0"`
	NextRunTime   time.Time
	CreatedAt     time.Time `gorm:"not null"`
	UpdatedAt     time.Time `gorm:"not null"`
}

// TableName specifies the table name for the ScheduleRow model.
func (ScheduleRow) TableName() string {
	return "backup_schedules"
}

// DBStore implements metadata storage using MySQL.
type DBStore struct {
	db *gorm.DB
}

// InitializeDatabaseStore connects to the metadata database and installs it
// as the default store, falling back to the file-based store on failure.
func InitializeDatabaseStore() error {
	if !config.CFG.MetadataDB.Enabled {
		log.Println("Metadata database is not enabled, using file-based storage")
		return Initialize()
	}

	db, err := connect()
	if err != nil {
		log.Printf("Failed to connect to metadata database: %v", err)
		log.Println("Falling back to file-based metadata")
		config.CFG.MetadataDB.Enabled = false
		return Initialize()
	}
	DB = db

	if config.CFG.MetadataDB.AutoMigrate {
		log.Println("Running database migrations for metadata tables")
		if err := runMigrations(db); err != nil {
			log.Printf("Failed to run migrations: %v", err)
			log.Println("Falling back to file-based metadata")
			config.CFG.MetadataDB.Enabled = false
			return Initialize()
		}
	}

	DefaultStore = &DBStore{db: db}
	log.Println("Using MySQL-backed metadata store")
	return nil
}

// connect establishes a connection to the MySQL database.
func connect() (*gorm.DB, error) {
	cfg := config.CFG.MetadataDB

	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		cfg.Username, cfg.Password, cfg.Host, cfg.Port, cfg.Database)

	logLevel := logger.Silent
	if config.CFG.Debug {
		logLevel = logger.Info
	}

	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database connection: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)

	if cfg.ConnMaxLifetime != "" {
		duration, err := time.ParseDuration(cfg.ConnMaxLifetime)
		if err != nil {
			log.Printf("Warning: Invalid connection max lifetime '%s', using default 5m: %v",
				cfg.ConnMaxLifetime, err)
			duration = 5 * time.Minute
		}
		sqlDB.SetConnMaxLifetime(duration)
	}

	log.Printf("Connected to metadata database at %s:%d", cfg.Host, cfg.Port)
	return db, nil
}

// runMigrations creates the metadata tables if they don't exist.
func runMigrations(db *gorm.DB) error {
	if err := db.AutoMigrate(&BackupRow{}, &ScheduleRow{}); err != nil {
		return fmt.Errorf("failed to migrate tables: %w", err)
	}
	return nil
}

func backupToRow(b *types.Backup) BackupRow {
	return BackupRow{
		ID:              b.ID,
		BackupType:      string(b.BackupType),
		Source:          string(b.Source),
		Status:          string(b.Status),
		StartedAt:       b.StartedAt,
		CompletedAt:     b.CompletedAt,
		DurationSeconds: b.DurationSeconds,
		FileSizeBytes:   b.FileSizeBytes,
		Verified:        b.Verified,
		RecordCount:     b.RecordCount,
		FileCount:       b.FileCount,
		StorageLocation: b.StorageLocation,
		Description:     b.Description,
		ErrorMessage:    b.ErrorMessage,
		CreatedAt:       b.CreatedAt,
		OffsiteStatus:   string(b.OffsiteStatus),
		OffsiteError:    b.OffsiteError,
	}
}

func rowToBackup(r *BackupRow) types.Backup {
	return types.Backup{
		ID:              r.ID,
		BackupType:      types.BackupType(r.BackupType),
		Source:          types.BackupSource(r.Source),
		Status:          types.BackupStatus(r.Status),
		StartedAt:       r.StartedAt,
		CompletedAt:     r.CompletedAt,
		DurationSeconds: r.DurationSeconds,
		FileSizeBytes:   r.FileSizeBytes,
		Verified:        r.Verified,
		RecordCount:     r.RecordCount,
		FileCount:       r.FileCount,
		StorageLocation: r.StorageLocation,
		Description:     r.Description,
		ErrorMessage:    r.ErrorMessage,
		CreatedAt:       r.CreatedAt,
		OffsiteStatus:   types.BackupStatus(r.OffsiteStatus),
		OffsiteError:    r.OffsiteError,
	}
}

func scheduleToRow(s *types.Schedule) ScheduleRow {
	return ScheduleRow{
		ID:            s.ID,
		BackupType:    string(s.BackupType),
		ScheduleType:  string(s.ScheduleType),
		ScheduleTime:  s.ScheduleTime,
		IsActive:      s.IsActive,
		RetentionDays: s.RetentionDays,
		NextRunTime:   s.NextRunTime,
		CreatedAt:     s.CreatedAt,
		UpdatedAt:     s.UpdatedAt,
	}
}

func rowToSchedule(r *ScheduleRow) types.Schedule {
	return types.Schedule{
		ID:            r.ID,
		BackupType:    types.BackupType(r.BackupType),
		ScheduleType:  types.ScheduleType(r.ScheduleType),
		ScheduleTime:  r.ScheduleTime,
		IsActive:      r.IsActive,
		RetentionDays: r.RetentionDays,
		NextRunTime:   r.NextRunTime,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
}

// CreateBackup registers a new backup entity.
func (s *DBStore) CreateBackup(b *types.Backup) error {
	row := backupToRow(b)
	if err := s.db.Create(&row).Error; err != nil {
		return fmt.Errorf("failed to create backup record: %w", err)
	}
	return nil
}

// UpdateBackup replaces the stored entity with the given one.
func (s *DBStore) UpdateBackup(b *types.Backup) error {
	row := backupToRow(b)
	result := s.db.Model(&BackupRow{}).Where("id = ?", b.ID).Select("*").Omit("id", "created_at").Updates(&row)
	if result.Error != nil {
		return fmt.Errorf("failed to update backup record: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("backup with ID %s not found", b.ID)
	}
	return nil
}

// GetBackupByID returns a backup by its id.
func (s *DBStore) GetBackupByID(id string) (types.Backup, bool) {
	var row BackupRow
	if err := s.db.Where("id = ?", id).First(&row).Error; err != nil {
		return types.Backup{}, false
	}
	return rowToBackup(&row), true
}

// GetBackups returns all backups, most recent first.
func (s *DBStore) GetBackups() []types.Backup {
	var rows []BackupRow
	if err := s.db.Order("created_at DESC").Find(&rows).Error; err != nil {
		log.Printf("Failed to query backups: %v", err)
		return nil
	}

	result := make([]types.Backup, 0, len(rows))
	for i := range rows {
		result = append(result, rowToBackup(&rows[i]))
	}
	return result
}

// GetBackupsFiltered returns backups filtered by type, source and/or status.
func (s *DBStore) GetBackupsFiltered(backupType types.BackupType, source types.BackupSource, status types.BackupStatus) []types.Backup {
	query := s.db.Order("created_at DESC")
	if backupType != "" {
		query = query.Where("backup_type = ?", string(backupType))
	}
	if source != "" {
		query = query.Where("source = ?", string(source))
	}
	if status != "" {
		query = query.Where("status = ?", string(status))
	}

	var rows []BackupRow
	if err := query.Find(&rows).Error; err != nil {
		log.Printf("Failed to query backups: %v", err)
		return nil
	}

	result := make([]types.Backup, 0, len(rows))
	for i := range rows {
		result = append(result, rowToBackup(&rows[i]))
	}
	return result
}

// DeleteBackup removes a backup entity.
func (s *DBStore) DeleteBackup(id string) error {
	result := s.db.Where("id = ?", id).Delete(&BackupRow{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete backup record: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("backup with ID %s not found", id)
	}
	return nil
}

// CreateSchedule registers a new schedule.
func (s *DBStore) CreateSchedule(sched *types.Schedule) error {
	row := scheduleToRow(sched)
	if err := s.db.Create(&row).Error; err != nil {
		return fmt.Errorf("failed to create schedule record: %w", err)
	}
	return nil
}

// UpdateSchedule replaces the stored schedule.
func (s *DBStore) UpdateSchedule(sched *types.Schedule) error {
	row := scheduleToRow(sched)
	result := s.db.Model(&ScheduleRow{}).Where("id = ?", sched.ID).Select("*").Omit("id", "created_at").Updates(&row)
	if result.Error != nil {
		return fmt.Errorf("failed to update schedule record: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("schedule with ID %s not found", sched.ID)
	}
	return nil
}

// GetScheduleByID returns a schedule by its id.
func (s *DBStore) GetScheduleByID(id string) (types.Schedule, bool) {
	var row ScheduleRow
	if err := s.db.Where("id = ?", id).First(&row).Error; err != nil {
		return types.Schedule{}, false
	}
	return rowToSchedule(&row), true
}

// GetSchedules returns all schedules.
func (s *DBStore) GetSchedules() []types.Schedule {
	var rows []ScheduleRow
	if err := s.db.Order("created_at").Find(&rows).Error; err != nil {
		log.Printf("Failed to query schedules: %v", err)
		return nil
	}

	result := make([]types.Schedule, 0, len(rows))
	for i := range rows {
		result = append(result, rowToSchedule(&rows[i]))
	}
	return result
}

// DeleteSchedule removes a schedule.
func (s *DBStore) DeleteSchedule(id string) error {
	result := s.db.Where("id = ?", id).Delete(&ScheduleRow{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete schedule record: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("schedule with ID %s not found", id)
	}
	return nil
}

// GetStats returns aggregate statistics about stored backups.
func (s *DBStore) GetStats() map[string]interface{} {
	var totalCount, scheduleCount int64
	s.db.Model(&BackupRow{}).Count(&totalCount)
	s.db.Model(&ScheduleRow{}).Count(&scheduleCount)

	var totalSize int64
	s.db.Model(&BackupRow{}).Where("status = ?", string(types.StatusSuccess)).
		Select("COALESCE(SUM(file_size_bytes), 0)").Scan(&totalSize)

	type pair struct {
		Key   string
		Count int
	}

	typeCount := make(map[string]int)
	var typeRows []pair
	s.db.Model(&BackupRow{}).Select("backup_type AS `key`, COUNT(*) AS count").
		Group("backup_type").Scan(&typeRows)
	for _, row := range typeRows {
		typeCount[row.Key] = row.Count
	}

	statusCount := map[string]int{
		"pending": 0,
		"running": 0,
		"success": 0,
		"failed":  0,
	}
	var statusRows []pair
	s.db.Model(&BackupRow{}).Select("status AS `key`, COUNT(*) AS count").
		Group("status").Scan(&statusRows)
	for _, row := range statusRows {
		statusCount[row.Key] = row.Count
	}

	stats := map[string]interface{}{
		"totalCount":       totalCount,
		"scheduleCount":    scheduleCount,
		"totalSizeBytes":   totalSize,
		"totalSizeHuman":   humanize.Bytes(uint64(totalSize)),
		"typeDistribution": typeCount,
		"statusCounts":     statusCount,
	}

	var last BackupRow
	if err := s.db.Where("status = ?", string(types.StatusSuccess)).
		Order("completed_at DESC").First(&last).Error; err == nil && last.CompletedAt != nil {
		stats["lastSuccessfulBackup"] = *last.CompletedAt
	}

	return stats
}

// Load is a no-op for the database store.
func (s *DBStore) Load() error {
	return nil
}

// Save is a no-op for the database store; writes are immediate.
func (s *DBStore) Save() error {
	return nil
}
