package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/rfidvision/rfidlog/internal/models"
)

// UserService defines the user operations required by UserHandler.
type UserService interface {
	Users(ctx context.Context) ([]models.UserIdentity, error)
	Check(ctx context.Context, name string) (models.UserIdentity, bool, error)
	Create(ctx context.Context, name string) (models.UserIdentity, error)
	Rename(ctx context.Context, userID int, name string) (models.UserIdentity, error)
	Delete(ctx context.Context, userID int) error
	Items(ctx context.Context, userID int) ([]models.SessionItemEntry, error)
}

// UserHandler serves users and their holdings.
type UserHandler struct {
	UserService UserService
}

// List handles GET /users.
func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	users, err := h.UserService.Users(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

// Check handles GET /check-user?name=.
func (h *UserHandler) Check(w http.ResponseWriter, r *http.Request) {
	u, ok, err := h.UserService.Check(r.Context(), r.URL.Query().Get("name"))
	if err != nil {
		writeError(w, err)
		return
	}
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{"exists": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"exists": true, "id": u.UserID})
}

// Create handles POST /add-user.
func (h *UserHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	u, err := h.UserService.Create(r.Context(), req.Name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": fmt.Sprintf("User '%s' added", u.Name),
		"user_id": u.UserID,
	})
}

// Update handles PUT /update-user/{id}.
func (h *UserHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid user id", http.StatusBadRequest)
		return
	}
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	u, err := h.UserService.Rename(r.Context(), id, req.Name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"message": fmt.Sprintf("User '%s' updated successfully", u.Name),
	})
}

// Delete handles DELETE /delete-user/{id}.
func (h *UserHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid user id", http.StatusBadRequest)
		return
	}
	if err := h.UserService.Delete(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "User deleted successfully"})
}

// Items handles GET /user-items/{id}.
func (h *UserHandler) Items(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid user id", http.StatusBadRequest)
		return
	}
	items, err := h.UserService.Items(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	msg := "Items found"
	if len(items) == 0 {
		msg = "No items found"
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": msg, "items": items})
}
