package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rfidvision/rfidlog/internal/models"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps backend errors to status codes. Unexpected errors are
// reported without detail.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	msg := "internal error"
	switch {
	case errors.Is(err, models.ErrInvalid), errors.Is(err, models.ErrEmptyName):
		status, msg = http.StatusBadRequest, err.Error()
	case errors.Is(err, models.ErrNotFound):
		status, msg = http.StatusNotFound, err.Error()
	case errors.Is(err, models.ErrConflict):
		status, msg = http.StatusConflict, err.Error()
	}
	writeJSON(w, status, map[string]string{"detail": msg})
}
