package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetConfig(t *testing.T) {
	t.Helper()
	CFG = AppConfig{}
}

func TestLoadConfigurationDefaults(t *testing.T) {
	resetConfig(t)
	LoadConfiguration()

	assert.Equal(t, "/var/lib/uscpis/backups", CFG.Storage.BackupDirectory)
	assert.Equal(t, "1m", CFG.Scheduler.TickInterval)
	assert.Equal(t, int64(DefaultMaxUploadSize), CFG.Upload.MaxSizeBytes)
	assert.Contains(t, CFG.Snapshot.QuickExcludeModels, "AuditLog")
	assert.Contains(t, CFG.Snapshot.Models, "Patient")
	assert.Equal(t, "9090", CFG.Metrics.Port)
	assert.Equal(t, "8080", CFG.APIPort)
	assert.False(t, CFG.S3.Enabled)
}

func TestLoadConfigurationEnvOverrides(t *testing.T) {
	resetConfig(t)
	t.Setenv("BACKUP_DIRECTORY", "/tmp/backups")
	t.Setenv("UPLOAD_MAX_SIZE_BYTES", "1048576")
	t.Setenv("QUICK_EXCLUDE_MODELS", "Notification, AuditLog")
	t.Setenv("SNAPSHOT_MODELS", "Patient,Appointment")
	t.Setenv("SCHEDULER_TICK_INTERVAL", "30s")

	LoadConfiguration()

	assert.Equal(t, "/tmp/backups", CFG.Storage.BackupDirectory)
	assert.Equal(t, int64(1048576), CFG.Upload.MaxSizeBytes)
	assert.Equal(t, []string{"Notification", "AuditLog"}, CFG.Snapshot.QuickExcludeModels)
	assert.Equal(t, []string{"Patient", "Appointment"}, CFG.Snapshot.Models)
	assert.Equal(t, "30s", CFG.Scheduler.TickInterval)
}

func TestLoadConfigurationFromYAMLFile(t *testing.T) {
	resetConfig(t)

	content := `
storage:
  backupDirectory: /data/backups
snapshot:
  models:
    - Patient
  naturalKeys:
    Patient: email
upload:
  maxSizeBytes: 2048
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	t.Setenv("CONFIG_FILE", path)

	LoadConfiguration()

	assert.Equal(t, "/data/backups", CFG.Storage.BackupDirectory)
	assert.Equal(t, []string{"Patient"}, CFG.Snapshot.Models)
	assert.Equal(t, int64(2048), CFG.Upload.MaxSizeBytes)
	assert.Equal(t, "email", NaturalKeyField("Patient"))
}

func TestValidateConfig(t *testing.T) {
	resetConfig(t)
	LoadConfiguration()
	assert.NoError(t, ValidateConfig())

	CFG.Storage.BackupDirectory = ""
	assert.Error(t, ValidateConfig())

	resetConfig(t)
	LoadConfiguration()
	CFG.S3.Enabled = true
	CFG.S3.Bucket = ""
	assert.Error(t, ValidateConfig())

	resetConfig(t)
	LoadConfiguration()
	CFG.RecordsDB.Enabled = true
	CFG.RecordsDB.Host = ""
	assert.Error(t, ValidateConfig())
}

func TestNaturalKeyField(t *testing.T) {
	resetConfig(t)
	CFG.Snapshot.NaturalKeys = map[string]string{"Patient": "email"}

	assert.Equal(t, "email", NaturalKeyField("Patient"))
	assert.Equal(t, "id", NaturalKeyField("Appointment"))
}
