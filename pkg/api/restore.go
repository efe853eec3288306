package api

import (
	"errors"
	"net/http"

	"github.com/galenelijah/USC-PIS-sub001/pkg/archive"
	"github.com/galenelijah/USC-PIS-sub001/pkg/metadata/types"
	"github.com/galenelijah/USC-PIS-sub001/pkg/restore"
)

// RestoreHandler handles restore preview and execution endpoints.
type RestoreHandler struct {
	store    types.Store
	planner  *restore.Planner
	executor *restore.Executor
}

// NewRestoreHandler creates a new restore handler.
func NewRestoreHandler(store types.Store, planner *restore.Planner, executor *restore.Executor) *RestoreHandler {
	return &RestoreHandler{store: store, planner: planner, executor: executor}
}

// RegisterRoutes registers the restore API routes on the provided mux.
func (h *RestoreHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/restore/plan", h.handlePlan)
	mux.HandleFunc("/api/restore/execute", h.handleExecute)
}

// restoreRequest is the request structure shared by plan and execute.
type restoreRequest struct {
	BackupID      string `json:"backupId"`
	MergeStrategy string `json:"mergeStrategy"`
}

func (h *RestoreHandler) parseRequest(w http.ResponseWriter, r *http.Request) (restoreRequest, bool) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return restoreRequest{}, false
	}

	var req restoreRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request: "+err.Error())
		return restoreRequest{}, false
	}
	if req.BackupID == "" {
		writeError(w, http.StatusBadRequest, "Backup ID is required")
		return restoreRequest{}, false
	}
	if !types.MergeStrategy(req.MergeStrategy).Valid() {
		writeError(w, http.StatusBadRequest, "Invalid merge strategy: "+req.MergeStrategy)
		return restoreRequest{}, false
	}
	if _, ok := h.store.GetBackupByID(req.BackupID); !ok {
		writeError(w, http.StatusNotFound, "Backup not found")
		return restoreRequest{}, false
	}
	return req, true
}

// handlePlan returns a read-only preview of a restore. Nothing is written.
func (h *RestoreHandler) handlePlan(w http.ResponseWriter, r *http.Request) {
	req, ok := h.parseRequest(w, r)
	if !ok {
		return
	}

	plan, err := h.planner.PlanRestore(r.Context(), req.BackupID, types.MergeStrategy(req.MergeStrategy))
	if err != nil {
		writeError(w, restoreErrorStatus(err), err.Error())
		return
	}

	writeJSON(w, http.StatusOK, plan)
}

// handleExecute applies a restore. A partial failure still returns the
// result body so callers can see which models were committed.
func (h *RestoreHandler) handleExecute(w http.ResponseWriter, r *http.Request) {
	req, ok := h.parseRequest(w, r)
	if !ok {
		return
	}

	result, err := h.executor.ExecuteRestore(r.Context(), req.BackupID, types.MergeStrategy(req.MergeStrategy))
	if err != nil {
		if result != nil && result.Partial {
			writeJSON(w, http.StatusInternalServerError, result)
			return
		}
		writeError(w, restoreErrorStatus(err), err.Error())
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// restoreErrorStatus maps restore failures onto HTTP status codes.
func restoreErrorStatus(err error) int {
	switch {
	case errors.Is(err, restore.ErrRestoreInProgress):
		return http.StatusConflict
	case errors.Is(err, archive.ErrMalformedArchive):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
