// Package service holds the inventory backend's business rules, delegating
// persistence to repository interfaces.
package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/rfidvision/rfidlog/internal/models"
)

// BoxRepository defines the persistence operations needed by BoxService.
type BoxRepository interface {
	BoxByUID(ctx context.Context, uid models.UID) (models.Container, error)
	Boxes(ctx context.Context) ([]models.Container, error)
	SaveBox(ctx context.Context, uid models.UID, name string, items []models.ItemStock) (int, error)
	DeleteBox(ctx context.Context, id int) error
	ItemMaster(ctx context.Context) ([]models.ItemMaster, error)
}

// BoxService manages RFID boxes and the item catalogue.
type BoxService struct {
	repo BoxRepository
}

// NewBoxService constructs a BoxService over repo.
func NewBoxService(repo BoxRepository) *BoxService {
	return &BoxService{repo: repo}
}

// BoxByUID returns the box for a tag as the reader reported it.
func (s *BoxService) BoxByUID(ctx context.Context, uid string) (models.Container, error) {
	key := models.NormalizeUID(uid)
	if key == "" {
		return models.Container{}, fmt.Errorf("%w: empty uid", models.ErrInvalid)
	}
	return s.repo.BoxByUID(ctx, key)
}

// Boxes lists every live box.
func (s *BoxService) Boxes(ctx context.Context) ([]models.Container, error) {
	return s.repo.Boxes(ctx)
}

// SaveBox registers a box under uid, replacing the contents of an existing
// one. It returns the box id.
func (s *BoxService) SaveBox(ctx context.Context, uid, name string, items []models.ItemStock) (int, error) {
	key := models.NormalizeUID(uid)
	name = strings.TrimSpace(name)
	if key == "" || name == "" {
		return 0, fmt.Errorf("%w: uid and box name are required", models.ErrInvalid)
	}
	for i := range items {
		items[i].Name = strings.TrimSpace(items[i].Name)
		if items[i].Name == "" {
			return 0, fmt.Errorf("%w: item %d has no name", models.ErrInvalid, i+1)
		}
		if items[i].Quantity < 0 {
			return 0, fmt.Errorf("%w: negative quantity for %q", models.ErrInvalid, items[i].Name)
		}
	}
	return s.repo.SaveBox(ctx, key, name, items)
}

// DeleteBox soft-deletes the box with the given id.
func (s *BoxService) DeleteBox(ctx context.Context, id int) error {
	return s.repo.DeleteBox(ctx, id)
}

// ItemMaster lists the item catalogue.
func (s *BoxService) ItemMaster(ctx context.Context) ([]models.ItemMaster, error) {
	return s.repo.ItemMaster(ctx)
}
