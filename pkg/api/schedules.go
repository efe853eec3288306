package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/galenelijah/USC-PIS-sub001/pkg/backup"
	"github.com/galenelijah/USC-PIS-sub001/pkg/metadata/types"
	"github.com/galenelijah/USC-PIS-sub001/pkg/scheduler"
)

// SchedulesHandler handles schedule management API endpoints.
type SchedulesHandler struct {
	store     types.Store
	scheduler *scheduler.Scheduler
}

// NewSchedulesHandler creates a new schedules handler.
func NewSchedulesHandler(store types.Store, sched *scheduler.Scheduler) *SchedulesHandler {
	return &SchedulesHandler{store: store, scheduler: sched}
}

// RegisterRoutes registers the schedule API routes on the provided mux.
func (h *SchedulesHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/schedules", h.handleSchedules)
	mux.HandleFunc("/api/schedules/toggle", h.handleToggle)
	mux.HandleFunc("/api/schedules/run", h.handleRunNow)
	mux.HandleFunc("/api/schedules/delete", h.handleDelete)
}

// createScheduleRequest is the request structure for creating a schedule.
type createScheduleRequest struct {
	BackupType    string `json:"backupType"`
	ScheduleType  string `json:"scheduleType"`
	ScheduleTime  string `json:"scheduleTime"`
	RetentionDays int    `json:"retentionDays"`
}

// handleSchedules lists schedules on GET and creates one on POST.
func (h *SchedulesHandler) handleSchedules(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, h.store.GetSchedules())
	case http.MethodPost:
		h.createSchedule(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *SchedulesHandler) createSchedule(w http.ResponseWriter, r *http.Request) {
	var req createScheduleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request: "+err.Error())
		return
	}

	schedule, err := h.scheduler.CreateSchedule(
		types.BackupType(req.BackupType),
		types.ScheduleType(req.ScheduleType),
		req.ScheduleTime,
		req.RetentionDays,
	)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, schedule)
}

func (h *SchedulesHandler) handleToggle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	scheduleID := r.URL.Query().Get("id")
	if scheduleID == "" {
		writeError(w, http.StatusBadRequest, "Schedule ID is required")
		return
	}

	schedule, err := h.scheduler.ToggleSchedule(scheduleID)
	if err != nil {
		writeError(w, statusForNotFound(err), err.Error())
		return
	}

	writeJSON(w, http.StatusOK, schedule)
}

// handleRunNow triggers a schedule's backup immediately without changing
// its planned next run.
func (h *SchedulesHandler) handleRunNow(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	scheduleID := r.URL.Query().Get("id")
	if scheduleID == "" {
		writeError(w, http.StatusBadRequest, "Schedule ID is required")
		return
	}

	backupID, err := h.scheduler.RunNow(scheduleID)
	if err != nil {
		if errors.Is(err, backup.ErrBackupInProgress) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeError(w, statusForNotFound(err), err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"backupId": backupID})
}

func (h *SchedulesHandler) handleDelete(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	scheduleID := r.URL.Query().Get("id")
	if scheduleID == "" {
		writeError(w, http.StatusBadRequest, "Schedule ID is required")
		return
	}

	if err := h.scheduler.DeleteSchedule(scheduleID); err != nil {
		writeError(w, statusForNotFound(err), err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// statusForNotFound maps lookup failures to 404 and everything else to 500.
func statusForNotFound(err error) int {
	if strings.Contains(err.Error(), "not found") {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}
