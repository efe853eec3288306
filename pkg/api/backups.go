package api

import (
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/galenelijah/USC-PIS-sub001/pkg/backup"
	"github.com/galenelijah/USC-PIS-sub001/pkg/config"
	"github.com/galenelijah/USC-PIS-sub001/pkg/metadata/types"
)

// BackupsHandler handles backup lifecycle API endpoints.
type BackupsHandler struct {
	store   types.Store
	manager *backup.Manager
}

// NewBackupsHandler creates a new backups handler.
func NewBackupsHandler(store types.Store, manager *backup.Manager) *BackupsHandler {
	return &BackupsHandler{store: store, manager: manager}
}

// RegisterRoutes registers the backup API routes on the provided mux.
func (h *BackupsHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/backups", h.handleBackups)
	mux.HandleFunc("/api/backups/status", h.handleStatus)
	mux.HandleFunc("/api/backups/verify", h.handleVerify)
	mux.HandleFunc("/api/backups/download", h.handleDownload)
	mux.HandleFunc("/api/backups/upload", h.handleUpload)
	mux.HandleFunc("/api/backups/delete", h.handleDelete)
	mux.HandleFunc("/api/backups/fail", h.handleMarkFailed)
	mux.HandleFunc("/api/backups/stats", h.handleStats)
}

// createBackupRequest is the request structure for starting a backup.
type createBackupRequest struct {
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
	Verify      bool   `json:"verify"`
	Quick       bool   `json:"quick"`
}

// createBackupResponse reports the accepted backup's id. The backup runs
// in the background; callers poll the status endpoint.
type createBackupResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// handleBackups lists backups on GET and starts one on POST.
func (h *BackupsHandler) handleBackups(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.listBackups(w, r)
	case http.MethodPost:
		h.createBackup(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *BackupsHandler) createBackup(w http.ResponseWriter, r *http.Request) {
	var req createBackupRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request: "+err.Error())
		return
	}

	backupID, err := h.manager.CreateBackup(types.BackupType(req.Type), types.SourceManual, req.Description, backup.Options{
		Verify: req.Verify,
		Quick:  req.Quick,
	})
	if err != nil {
		if errors.Is(err, backup.ErrBackupInProgress) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, createBackupResponse{ID: backupID, Status: string(types.StatusPending)})
}

func (h *BackupsHandler) listBackups(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	backups := h.store.GetBackupsFiltered(
		types.BackupType(query.Get("type")),
		types.BackupSource(query.Get("source")),
		types.BackupStatus(query.Get("status")),
	)

	if limit := parseInt(query.Get("limit"), 0); limit > 0 && limit < len(backups) {
		backups = backups[:limit]
	}

	writeJSON(w, http.StatusOK, backups)
}

func (h *BackupsHandler) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	b, ok := h.lookupBackup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// handleVerify re-verifies a stored backup's archive on demand and records
// the outcome on the backup entity.
func (h *BackupsHandler) handleVerify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	b, ok := h.lookupBackup(w, r)
	if !ok {
		return
	}
	if b.Status != types.StatusSuccess {
		writeError(w, http.StatusBadRequest, "only completed backups can be verified")
		return
	}

	result := h.manager.Verifier().Verify(b)

	b.Verified = result.Valid
	if err := h.store.UpdateBackup(&b); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to record verification result: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (h *BackupsHandler) handleDownload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	b, ok := h.lookupBackup(w, r)
	if !ok {
		return
	}
	if b.Status != types.StatusSuccess {
		writeError(w, http.StatusBadRequest, "backup has no downloadable archive")
		return
	}

	data, err := h.manager.Storage().Read(b.StorageLocation)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to read archive: "+err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", "attachment; filename="+strconv.Quote(filepath.Base(b.StorageLocation)))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Write(data)
}

// handleUpload ingests an externally produced backup file. The multipart
// form carries the file plus a declared backup type.
func (h *BackupsHandler) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	maxSize := config.CFG.Upload.MaxSizeBytes
	r.Body = http.MaxBytesReader(w, r.Body, maxSize+1)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid multipart form: "+err.Error())
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Missing file field: "+err.Error())
		return
	}
	defer file.Close()

	fileBytes, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read uploaded file: "+err.Error())
		return
	}

	backupID, err := h.manager.IngestUpload(fileBytes, header.Filename, types.BackupType(r.FormValue("type")), r.FormValue("description"))
	if err != nil {
		if errors.Is(err, backup.ErrInvalidUpload) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"id": backupID})
}

// handleDelete removes an uploaded backup and its stored file. System
// generated backups are managed by retention and cannot be deleted here.
func (h *BackupsHandler) handleDelete(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	b, ok := h.lookupBackup(w, r)
	if !ok {
		return
	}
	if b.Source != types.SourceUploaded {
		writeError(w, http.StatusForbidden, "only uploaded backups can be deleted through this endpoint")
		return
	}

	if err := h.manager.DeleteUploaded(b.ID); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// markFailedRequest is the request structure for failing a stuck backup.
type markFailedRequest struct {
	ID     string `json:"id"`
	Reason string `json:"reason,omitempty"`
}

// handleMarkFailed lets an operator fail a backup stuck in a running state
// after a crash, freeing its run slot.
func (h *BackupsHandler) handleMarkFailed(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req markFailedRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request: "+err.Error())
		return
	}
	if req.ID == "" {
		writeError(w, http.StatusBadRequest, "Backup ID is required")
		return
	}
	if _, ok := h.store.GetBackupByID(req.ID); !ok {
		writeError(w, http.StatusNotFound, "Backup not found")
		return
	}

	reason := req.Reason
	if reason == "" {
		reason = "marked failed by operator"
	}
	if err := h.manager.MarkFailed(req.ID, reason); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "failed"})
}

func (h *BackupsHandler) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, h.store.GetStats())
}

// lookupBackup resolves the id query parameter to a backup, writing the
// error response itself when that fails.
func (h *BackupsHandler) lookupBackup(w http.ResponseWriter, r *http.Request) (types.Backup, bool) {
	backupID := r.URL.Query().Get("id")
	if backupID == "" {
		writeError(w, http.StatusBadRequest, "Backup ID is required")
		return types.Backup{}, false
	}

	b, ok := h.store.GetBackupByID(backupID)
	if !ok {
		writeError(w, http.StatusNotFound, "Backup not found")
		return types.Backup{}, false
	}
	return b, true
}

// parseInt parses s, falling back to def on empty or invalid input.
func parseInt(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
