package syncer

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/studyplan/tg-media-sync/internal/repository"
)

// Handler handles HTTP requests for the sync service
type Handler struct {
	manager *SyncManager
	runs    *repository.RunsRepository
}

// NewHandler creates a new handler with the given manager
func NewHandler(manager *SyncManager, runs *repository.RunsRepository) *Handler {
	return &Handler{
		manager: manager,
		runs:    runs,
	}
}

// SyncResponse represents the response to a sync request
type SyncResponse struct {
	SyncID    uuid.UUID `json:"sync_id"`
	Status    string    `json:"status"` // "running"
	Channel   string    `json:"channel"`
	StartedAt time.Time `json:"started_at"`
}

// Health handles GET /health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"time":   time.Now().Format(time.RFC3339),
	})
}

// StartSync handles POST /api/v1/sync/telegram
func (h *Handler) StartSync(w http.ResponseWriter, r *http.Request) {
	var req SyncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return
	}

	if err := req.Validate(); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	job, err := h.manager.Start(r.Context(), req.Options())
	if err != nil {
		if err == ErrChannelBusy {
			respondError(w, http.StatusConflict, err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, SyncResponse{
		SyncID:    job.ID,
		Status:    "running",
		Channel:   job.Channel,
		StartedAt: job.StartedAt,
	})
}

// StopSync handles DELETE /api/v1/sync/{channel}
func (h *Handler) StopSync(w http.ResponseWriter, r *http.Request) {
	channel := chi.URLParam(r, "channel")
	if channel == "" {
		respondError(w, http.StatusBadRequest, "channel is required")
		return
	}

	if !h.manager.Stop(channel) {
		respondError(w, http.StatusNotFound, "no running sync for channel")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{
		"message": "sync stopped",
	})
}

// Status handles GET /api/v1/sync/status
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	jobs := h.manager.Running()

	active := make([]map[string]interface{}, 0, len(jobs))
	for _, job := range jobs {
		active = append(active, map[string]interface{}{
			"sync_id":    job.ID.String(),
			"channel":    job.Channel,
			"started_at": job.StartedAt.Format(time.RFC3339),
		})
	}

	status := "idle"
	if len(jobs) > 0 {
		status = "running"
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":          status,
		"telegram_status": h.manager.GetTelegramStatus(),
		"active":          active,
	})
}

// ListRuns handles GET /api/v1/sync/runs
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	var (
		runs []repository.SyncRun
		err  error
	)
	if channel := r.URL.Query().Get("channel"); channel != "" {
		runs, err = h.runs.ByChannel(r.Context(), channel, limit)
	} else {
		runs, err = h.runs.Recent(r.Context(), limit)
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, runs)
}

// helper functions

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}
