package http

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/rfidvision/rfidlog/internal/middleware"
	"github.com/rfidvision/rfidlog/internal/models"
)

// LogService defines the log operation required by LogHandler.
type LogService interface {
	Create(ctx context.Context, entry models.LogEntry, station string) (duplicate bool, err error)
}

// LogHandler records item movements reported by stations.
type LogHandler struct {
	LogService LogService
}

// Create handles POST /create-log. The Idempotency-Key header supplies
// the submission id when the body carries none.
func (h *LogHandler) Create(w http.ResponseWriter, r *http.Request) {
	var entry models.LogEntry
	if err := json.NewDecoder(r.Body).Decode(&entry); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	if entry.SubmissionID == "" {
		entry.SubmissionID = r.Header.Get("Idempotency-Key")
	}

	dup, err := h.LogService.Create(r.Context(), entry, middleware.StationFromContext(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	if dup {
		writeJSON(w, http.StatusOK, map[string]any{"message": "Log already recorded", "duplicate": true})
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"message": "Log recorded successfully"})
}
