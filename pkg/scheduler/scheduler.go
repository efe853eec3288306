// Package scheduler runs recurring backup schedules and retention cleanup.
package scheduler

import (
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"

	"github.com/galenelijah/USC-PIS-sub001/pkg/backup"
	"github.com/galenelijah/USC-PIS-sub001/pkg/config"
	"github.com/galenelijah/USC-PIS-sub001/pkg/metadata/types"
	"github.com/galenelijah/USC-PIS-sub001/pkg/metrics"
)

// Scheduler periodically checks schedules for due runs and enforces
// retention. Ticks never overlap; a tick that arrives while the previous
// one is still working is skipped.
type Scheduler struct {
	cronScheduler *cron.Cron
	store         types.Store
	backupManager *backup.Manager
	ticking       atomic.Bool
	now           func() time.Time // test seam
}

// NewScheduler creates a scheduler over the given metadata store and
// backup manager.
func NewScheduler(store types.Store, backupManager *backup.Manager) *Scheduler {
	return &Scheduler{
		cronScheduler: cron.New(),
		store:         store,
		backupManager: backupManager,
		now:           time.Now,
	}
}

// Start registers the periodic tick and begins running it.
func (s *Scheduler) Start() error {
	interval := config.CFG.Scheduler.TickInterval
	if _, err := time.ParseDuration(interval); err != nil {
		return errors.Wrapf(err, "invalid scheduler tick interval %q", interval)
	}

	if _, err := s.cronScheduler.AddFunc("@every "+interval, s.Tick); err != nil {
		return errors.Wrap(err, "failed to schedule periodic tick")
	}

	s.cronScheduler.Start()
	log.Printf("Backup scheduler started, checking schedules every %s", interval)
	return nil
}

// Stop halts the periodic tick and waits for a running tick to finish.
func (s *Scheduler) Stop() {
	ctx := s.cronScheduler.Stop()
	<-ctx.Done()
	log.Println("Backup scheduler stopped")
}

// Tick runs one scheduler pass: trigger due schedules, then enforce
// retention. Exported so operators can force a pass through the API.
func (s *Scheduler) Tick() {
	if !s.ticking.CompareAndSwap(false, true) {
		log.Println("Previous scheduler tick still running, skipping this one")
		return
	}
	defer s.ticking.Store(false)

	now := s.now()
	s.runDueSchedules(now)
	s.enforceRetention(now)
}

// runDueSchedules starts a backup for every active schedule whose next run
// time has arrived, then advances that time. A schedule whose backup type
// is already running misses this occurrence rather than queueing.
func (s *Scheduler) runDueSchedules(now time.Time) {
	for _, schedule := range s.store.GetSchedules() {
		if !schedule.IsActive || schedule.NextRunTime.After(now) {
			continue
		}

		description := fmt.Sprintf("Scheduled %s backup (%s)", schedule.BackupType, schedule.ScheduleType)
		backupID, err := s.backupManager.CreateBackup(schedule.BackupType, types.SourceScheduled, description, backup.Options{Verify: true})
		switch {
		case errors.Is(err, backup.ErrBackupInProgress):
			log.Printf("Schedule %s skipped: a %s backup is already running", schedule.ID, schedule.BackupType)
		case err != nil:
			log.Printf("Schedule %s failed to start %s backup: %v", schedule.ID, schedule.BackupType, err)
		default:
			log.Printf("Schedule %s started backup %s", schedule.ID, backupID)
		}

		// The occurrence is consumed even when the run was skipped or
		// failed to start, so a stuck schedule cannot fire every tick.
		schedule.NextRunTime = NextRunTime(schedule.ScheduleType, schedule.ScheduleTime, now)
		schedule.UpdatedAt = now
		if err := s.store.UpdateSchedule(&schedule); err != nil {
			log.Printf("Failed to advance next run time for schedule %s: %v", schedule.ID, err)
		}
	}
}

// enforceRetention deletes scheduled backups older than their schedule's
// retention window. Manual and uploaded backups are never aged out.
func (s *Scheduler) enforceRetention(now time.Time) {
	for _, schedule := range s.store.GetSchedules() {
		if schedule.RetentionDays <= 0 {
			continue
		}
		cutoff := now.AddDate(0, 0, -schedule.RetentionDays)

		for _, b := range s.store.GetBackupsFiltered(schedule.BackupType, types.SourceScheduled, types.StatusSuccess) {
			if !b.CreatedAt.Before(cutoff) {
				continue
			}
			if err := s.backupManager.DeleteBackup(b); err != nil {
				log.Printf("Retention cleanup failed to delete backup %s: %v", b.ID, err)
				continue
			}
			metrics.RetentionDeletes.WithLabelValues(string(b.BackupType)).Inc()
			log.Printf("Retention cleanup deleted %s backup %s from %s",
				b.BackupType, b.ID, b.CreatedAt.Format(time.RFC3339))
		}
	}
}

// CreateSchedule registers a new recurring backup policy. The first run is
// the next wall-clock occurrence of the schedule time.
func (s *Scheduler) CreateSchedule(backupType types.BackupType, scheduleType types.ScheduleType, scheduleTime string, retentionDays int) (*types.Schedule, error) {
	if !backupType.Valid() {
		return nil, fmt.Errorf("invalid backup type: %s", backupType)
	}
	if !scheduleType.Valid() {
		return nil, fmt.Errorf("invalid schedule type: %s", scheduleType)
	}
	if _, err := time.Parse("15:04", scheduleTime); err != nil {
		return nil, fmt.Errorf("invalid schedule time %q, expected HH:MM", scheduleTime)
	}
	if retentionDays < 0 {
		return nil, fmt.Errorf("retention days cannot be negative")
	}

	now := s.now()
	schedule := &types.Schedule{
		ID:            uuid.New().String(),
		BackupType:    backupType,
		ScheduleType:  scheduleType,
		ScheduleTime:  scheduleTime,
		IsActive:      true,
		RetentionDays: retentionDays,
		NextRunTime:   NextRunTime(scheduleType, scheduleTime, now),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.store.CreateSchedule(schedule); err != nil {
		return nil, err
	}

	log.Printf("Created %s schedule %s for %s backups at %s (retention %d days)",
		scheduleType, schedule.ID, backupType, scheduleTime, retentionDays)
	return schedule, nil
}

// ToggleSchedule flips a schedule's active flag. Reactivating recomputes
// the next run time so occurrences missed while paused are not replayed.
func (s *Scheduler) ToggleSchedule(id string) (*types.Schedule, error) {
	schedule, ok := s.store.GetScheduleByID(id)
	if !ok {
		return nil, fmt.Errorf("schedule %s not found", id)
	}

	now := s.now()
	schedule.IsActive = !schedule.IsActive
	schedule.UpdatedAt = now
	if schedule.IsActive {
		schedule.NextRunTime = NextRunTime(schedule.ScheduleType, schedule.ScheduleTime, now)
	}
	if err := s.store.UpdateSchedule(&schedule); err != nil {
		return nil, err
	}

	state := "paused"
	if schedule.IsActive {
		state = "active"
	}
	log.Printf("Schedule %s is now %s", id, state)
	return &schedule, nil
}

// RunNow triggers a schedule's backup immediately. The schedule's next
// planned run time is left untouched.
func (s *Scheduler) RunNow(id string) (string, error) {
	schedule, ok := s.store.GetScheduleByID(id)
	if !ok {
		return "", fmt.Errorf("schedule %s not found", id)
	}

	description := fmt.Sprintf("Manual run of schedule %s", schedule.ID)
	return s.backupManager.CreateBackup(schedule.BackupType, types.SourceScheduled, description, backup.Options{Verify: true})
}

// DeleteSchedule removes a schedule. Backups it produced are kept.
func (s *Scheduler) DeleteSchedule(id string) error {
	if _, ok := s.store.GetScheduleByID(id); !ok {
		return fmt.Errorf("schedule %s not found", id)
	}
	return s.store.DeleteSchedule(id)
}

// NextRunTime returns the first occurrence of the schedule's wall-clock
// time strictly after the given instant. Daily schedules advance by one
// day, weekly by seven.
func NextRunTime(scheduleType types.ScheduleType, scheduleTime string, after time.Time) time.Time {
	t, err := time.Parse("15:04", scheduleTime)
	if err != nil {
		// Validated at creation; fall back to the top of the next hour.
		return after.Truncate(time.Hour).Add(time.Hour)
	}

	stepDays := 1
	if scheduleType == types.ScheduleWeekly {
		stepDays = 7
	}

	next := time.Date(after.Year(), after.Month(), after.Day(), t.Hour(), t.Minute(), 0, 0, after.Location())
	for !next.After(after) {
		next = next.AddDate(0, 0, stepDays)
	}
	return next
}
