// Package config provides configuration loading and management for the
// backup and restore service.
package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// StorageConfig defines where produced archives are kept on disk.
type StorageConfig struct {
	BackupDirectory string `yaml:"backupDirectory"`
	UploadDirectory string `yaml:"uploadDirectory"`
	MediaDirectory  string `yaml:"mediaDirectory"`
}

// S3Config defines optional offsite copy settings for produced archives.
type S3Config struct {
	Enabled   bool   `yaml:"enabled"`
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"accessKey"`
	SecretKey string `yaml:"secretKey"`
	Prefix    string `yaml:"prefix"`
	PathStyle bool   `yaml:"pathStyle"`
}

// MetadataDBConfig defines MySQL connection settings for the metadata database.
// When disabled, metadata is kept in a JSON file under the backup directory.
type MetadataDBConfig struct {
	Enabled         bool   `yaml:"enabled"`
	Host            string `yaml:"host"`
	Port            int    `yaml:"port"`
	Username        string `yaml:"username"`
	Password        string `yaml:"password"`
	Database        string `yaml:"database"`
	MaxOpenConns    int    `yaml:"maxOpenConns"`
	MaxIdleConns    int    `yaml:"maxIdleConns"`
	ConnMaxLifetime string `yaml:"connMaxLifetime"`
	AutoMigrate     bool   `yaml:"autoMigrate"`
}

// SchedulerConfig defines how often due schedules are checked.
type SchedulerConfig struct {
	TickInterval string `yaml:"tickInterval"`
}

// UploadConfig constrains externally supplied backup files.
type UploadConfig struct {
	MaxSizeBytes int64 `yaml:"maxSizeBytes"`
}

// RecordsDBConfig defines the connection to the host application's MySQL
// database holding the live patient records. When disabled, the service
// runs against an in-memory repository (development only).
type RecordsDBConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

// SnapshotConfig controls which logical models are captured.
type SnapshotConfig struct {
	// Models are the logical model names included in snapshots.
	Models []string `yaml:"models"`

	// QuickExcludeModels are skipped in quick mode (high-volume, low-value
	// collections such as audit logs).
	QuickExcludeModels []string `yaml:"quickExcludeModels"`

	// NaturalKeys maps a logical model name to the field used to match
	// archive records against live records. Models not listed here match
	// on the "id" field.
	NaturalKeys map[string]string `yaml:"naturalKeys"`
}

// MetricsConfig defines metrics server settings.
type MetricsConfig struct {
	Port string `yaml:"port"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	Debug      bool             `yaml:"debug"`
	Storage    StorageConfig    `yaml:"storage"`
	S3         S3Config         `yaml:"s3"`
	MetadataDB MetadataDBConfig `yaml:"metadataDB"`
	RecordsDB  RecordsDBConfig  `yaml:"recordsDB"`
	Scheduler  SchedulerConfig  `yaml:"scheduler"`
	Upload     UploadConfig     `yaml:"upload"`
	Snapshot   SnapshotConfig   `yaml:"snapshot"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	APIPort    string           `yaml:"apiPort"`
}

// CFG is the global application configuration.
var CFG AppConfig

// DefaultMaxUploadSize caps uploaded backup files at 512 MB unless overridden.
const DefaultMaxUploadSize = 512 * 1024 * 1024

// LoadConfiguration populates CFG from the environment. If CONFIG_FILE is
// set, the YAML file is loaded first and environment variables override it.
func LoadConfiguration() {
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := loadConfigFile(path); err != nil {
			log.Printf("Warning: failed to load config file %s: %v", path, err)
		}
	}

	CFG.Debug = getEnvOrDefault("DEBUG", boolString(CFG.Debug)) == "true"

	CFG.Storage.BackupDirectory = getEnvOrDefault("BACKUP_DIRECTORY", defaultString(CFG.Storage.BackupDirectory, "/var/lib/uscpis/backups"))
	CFG.Storage.UploadDirectory = getEnvOrDefault("UPLOAD_DIRECTORY", defaultString(CFG.Storage.UploadDirectory, "/var/lib/uscpis/uploads"))
	CFG.Storage.MediaDirectory = getEnvOrDefault("MEDIA_DIRECTORY", defaultString(CFG.Storage.MediaDirectory, "/var/lib/uscpis/media"))

	CFG.S3.Enabled = getEnvOrDefault("S3_ENABLED", boolString(CFG.S3.Enabled)) == "true"
	CFG.S3.Bucket = getEnvOrDefault("S3_BUCKET", CFG.S3.Bucket)
	CFG.S3.Region = getEnvOrDefault("S3_REGION", defaultString(CFG.S3.Region, "us-east-1"))
	CFG.S3.Endpoint = getEnvOrDefault("S3_ENDPOINT", CFG.S3.Endpoint)
	CFG.S3.AccessKey = getEnvOrDefault("S3_ACCESS_KEY", CFG.S3.AccessKey)
	CFG.S3.SecretKey = getEnvOrDefault("S3_SECRET_KEY", CFG.S3.SecretKey)
	CFG.S3.Prefix = getEnvOrDefault("S3_PREFIX", defaultString(CFG.S3.Prefix, "uscpis-backups"))
	CFG.S3.PathStyle = getEnvOrDefault("S3_PATH_STYLE", boolString(CFG.S3.PathStyle)) == "true"

	CFG.MetadataDB.Enabled = getEnvOrDefault("METADATA_DB_ENABLED", boolString(CFG.MetadataDB.Enabled)) == "true"
	CFG.MetadataDB.Host = getEnvOrDefault("METADATA_DB_HOST", defaultString(CFG.MetadataDB.Host, "localhost"))
	if port, err := strconv.Atoi(getEnvOrDefault("METADATA_DB_PORT", "3306")); err == nil {
		CFG.MetadataDB.Port = port
	}
	CFG.MetadataDB.Username = getEnvOrDefault("METADATA_DB_USERNAME", defaultString(CFG.MetadataDB.Username, "uscpis"))
	CFG.MetadataDB.Password = getEnvOrDefault("METADATA_DB_PASSWORD", CFG.MetadataDB.Password)
	CFG.MetadataDB.Database = getEnvOrDefault("METADATA_DB_DATABASE", defaultString(CFG.MetadataDB.Database, "uscpis_backup_metadata"))
	if maxOpen, err := strconv.Atoi(getEnvOrDefault("METADATA_DB_MAX_OPEN_CONNS", "10")); err == nil {
		CFG.MetadataDB.MaxOpenConns = maxOpen
	}
	if maxIdle, err := strconv.Atoi(getEnvOrDefault("METADATA_DB_MAX_IDLE_CONNS", "5")); err == nil {
		CFG.MetadataDB.MaxIdleConns = maxIdle
	}
	CFG.MetadataDB.ConnMaxLifetime = getEnvOrDefault("METADATA_DB_CONN_MAX_LIFETIME", defaultString(CFG.MetadataDB.ConnMaxLifetime, "5m"))
	CFG.MetadataDB.AutoMigrate = getEnvOrDefault("METADATA_DB_AUTO_MIGRATE", "true") == "true"

	CFG.RecordsDB.Enabled = getEnvOrDefault("RECORDS_DB_ENABLED", boolString(CFG.RecordsDB.Enabled)) == "true"
	CFG.RecordsDB.Host = getEnvOrDefault("RECORDS_DB_HOST", defaultString(CFG.RecordsDB.Host, "localhost"))
	if port, err := strconv.Atoi(getEnvOrDefault("RECORDS_DB_PORT", "3306")); err == nil {
		CFG.RecordsDB.Port = port
	}
	CFG.RecordsDB.Username = getEnvOrDefault("RECORDS_DB_USERNAME", defaultString(CFG.RecordsDB.Username, "uscpis"))
	CFG.RecordsDB.Password = getEnvOrDefault("RECORDS_DB_PASSWORD", CFG.RecordsDB.Password)
	CFG.RecordsDB.Database = getEnvOrDefault("RECORDS_DB_DATABASE", defaultString(CFG.RecordsDB.Database, "uscpis"))

	CFG.Scheduler.TickInterval = getEnvOrDefault("SCHEDULER_TICK_INTERVAL", defaultString(CFG.Scheduler.TickInterval, "1m"))

	if maxSize, err := strconv.ParseInt(getEnvOrDefault("UPLOAD_MAX_SIZE_BYTES", "0"), 10, 64); err == nil && maxSize > 0 {
		CFG.Upload.MaxSizeBytes = maxSize
	}
	if CFG.Upload.MaxSizeBytes <= 0 {
		CFG.Upload.MaxSizeBytes = DefaultMaxUploadSize
	}

	if models := getEnvOrDefault("SNAPSHOT_MODELS", ""); models != "" {
		CFG.Snapshot.Models = splitAndTrim(models)
	}
	if len(CFG.Snapshot.Models) == 0 {
		CFG.Snapshot.Models = []string{
			"Patient", "MedicalRecord", "DentalRecord", "MedicalCertificate",
			"HealthCampaign", "Feedback", "AuditLog", "Notification",
		}
	}

	if excluded := getEnvOrDefault("QUICK_EXCLUDE_MODELS", ""); excluded != "" {
		CFG.Snapshot.QuickExcludeModels = splitAndTrim(excluded)
	}
	if len(CFG.Snapshot.QuickExcludeModels) == 0 {
		CFG.Snapshot.QuickExcludeModels = []string{"AuditLog", "Notification"}
	}
	if CFG.Snapshot.NaturalKeys == nil {
		CFG.Snapshot.NaturalKeys = make(map[string]string)
	}

	CFG.Metrics.Port = getEnvOrDefault("METRICS_PORT", defaultString(CFG.Metrics.Port, "9090"))
	CFG.APIPort = getEnvOrDefault("API_PORT", defaultString(CFG.APIPort, "8080"))
}

// ValidateConfig checks that the loaded configuration is usable.
func ValidateConfig() error {
	if CFG.Storage.BackupDirectory == "" {
		return fmt.Errorf("backup directory must be configured")
	}
	if CFG.Upload.MaxSizeBytes <= 0 {
		return fmt.Errorf("upload max size must be positive, got %d", CFG.Upload.MaxSizeBytes)
	}
	if CFG.S3.Enabled && CFG.S3.Bucket == "" {
		return fmt.Errorf("S3 offsite copy is enabled but no bucket is configured")
	}
	if CFG.MetadataDB.Enabled {
		if CFG.MetadataDB.Host == "" || CFG.MetadataDB.Database == "" {
			return fmt.Errorf("metadata database is enabled but host/database are not configured")
		}
	}
	if CFG.RecordsDB.Enabled {
		if CFG.RecordsDB.Host == "" || CFG.RecordsDB.Database == "" {
			return fmt.Errorf("records database is enabled but host/database are not configured")
		}
	}
	if len(CFG.Snapshot.Models) == 0 {
		return fmt.Errorf("at least one snapshot model must be configured")
	}
	return nil
}

// loadConfigFile reads a YAML configuration file into CFG.
func loadConfigFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &CFG); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	log.Printf("Loaded configuration from %s", path)
	return nil
}

// NaturalKeyField returns the natural key field configured for a model,
// falling back to "id".
func NaturalKeyField(model string) string {
	if field, ok := CFG.Snapshot.NaturalKeys[model]; ok && field != "" {
		return field
	}
	return "id"
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func defaultString(current, fallback string) string {
	if current != "" {
		return current
	}
	return fallback
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

func splitAndTrim(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
