// Package metrics provides Prometheus metrics for backup and restore
// operations.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics
var (
	// BackupCount tracks the total number of backups performed
	BackupCount = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "uscpis_backup_total",
		Help: "The total number of backups performed",
	}, []string{"type", "source", "status"})

	// BackupDuration measures time taken to produce a backup archive
	BackupDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "uscpis_backup_duration_seconds",
		Help:    "Time taken to produce a backup archive",
		Buckets: prometheus.DefBuckets,
	}, []string{"type"})

	// BackupSize tracks size of the backup archive in bytes
	BackupSize = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "uscpis_backup_size_bytes",
		Help: "Size of the backup archive in bytes",
	}, []string{"type"})

	// LastBackupTimestamp records timestamp of the last successful backup
	LastBackupTimestamp = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "uscpis_backup_last_timestamp",
		Help: "Timestamp of the last successful backup",
	}, []string{"type"})

	// RetentionDeletes counts backups deleted by retention policy
	RetentionDeletes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "uscpis_backup_deletions_total",
		Help: "The total number of backups deleted by retention policy",
	}, []string{"type"})

	// RestoreCount tracks restore executions by strategy and outcome
	RestoreCount = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "uscpis_restore_total",
		Help: "The total number of restore executions",
	}, []string{"strategy", "status"})

	// RestoreRecords counts records applied during restores
	RestoreRecords = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "uscpis_restore_records_total",
		Help: "The total number of records touched by restores",
	}, []string{"action"})

	// VerificationCount tracks archive verification outcomes
	VerificationCount = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "uscpis_backup_verification_total",
		Help: "The total number of archive verifications performed",
	}, []string{"result"})
)
