// Package http provides the inventory backend's HTTP handlers and routes.
package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/rfidvision/rfidlog/internal/models"
)

// BoxService defines the box operations required by BoxHandler.
type BoxService interface {
	BoxByUID(ctx context.Context, uid string) (models.Container, error)
	Boxes(ctx context.Context) ([]models.Container, error)
	SaveBox(ctx context.Context, uid, name string, items []models.ItemStock) (int, error)
	DeleteBox(ctx context.Context, id int) error
	ItemMaster(ctx context.Context) ([]models.ItemMaster, error)
}

// BoxHandler serves RFID boxes and the item catalogue.
type BoxHandler struct {
	BoxService BoxService
}

// saveBoxRequest is the body of POST /rfid-box/.
type saveBoxRequest struct {
	UID   string `json:"uid"`
	Name  string `json:"box_name"`
	Items []struct {
		Name        string `json:"item_name"`
		Description string `json:"item_description"`
		Quantity    int    `json:"quantity"`
	} `json:"items"`
}

// Get handles GET /rfid-box/{uid}.
func (h *BoxHandler) Get(w http.ResponseWriter, r *http.Request) {
	box, err := h.BoxService.BoxByUID(r.Context(), chi.URLParam(r, "uid"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, box)
}

// List handles GET /get-all-boxes.
func (h *BoxHandler) List(w http.ResponseWriter, r *http.Request) {
	boxes, err := h.BoxService.Boxes(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, boxes)
}

// Save handles POST /rfid-box/: create a box or replace its contents.
func (h *BoxHandler) Save(w http.ResponseWriter, r *http.Request) {
	var req saveBoxRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	items := make([]models.ItemStock, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, models.ItemStock{Name: it.Name, Description: it.Description, Quantity: it.Quantity})
	}
	id, err := h.BoxService.SaveBox(r.Context(), req.UID, req.Name, items)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "RFID box saved", "box_id": id})
}

// Delete handles DELETE /delete-box/{id}.
func (h *BoxHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid box id", http.StatusBadRequest)
		return
	}
	if err := h.BoxService.DeleteBox(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Box deleted successfully"})
}

// ItemMaster handles GET /item-master.
func (h *BoxHandler) ItemMaster(w http.ResponseWriter, r *http.Request) {
	items, err := h.BoxService.ItemMaster(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}
