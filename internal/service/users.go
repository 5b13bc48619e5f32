package service

import (
	"context"
	"errors"

	"github.com/rfidvision/rfidlog/internal/models"
)

// UserRepository defines the persistence operations needed by UserService.
type UserRepository interface {
	Users(ctx context.Context) ([]models.UserIdentity, error)
	UserByName(ctx context.Context, name string) (models.UserIdentity, error)
	CreateUser(ctx context.Context, name string) (models.UserIdentity, error)
	UpdateUser(ctx context.Context, userID int, name string) error
	DeleteUser(ctx context.Context, userID int) error
	UserItems(ctx context.Context, userID int) ([]models.SessionItemEntry, error)
}

// UserService manages users. Names are compared after normalization.
type UserService struct {
	repo UserRepository
}

// NewUserService constructs a UserService over repo.
func NewUserService(repo UserRepository) *UserService {
	return &UserService{repo: repo}
}

// Users lists all users.
func (s *UserService) Users(ctx context.Context) ([]models.UserIdentity, error) {
	return s.repo.Users(ctx)
}

// Check looks a user up by name; ok is false when there is none.
func (s *UserService) Check(ctx context.Context, name string) (models.UserIdentity, bool, error) {
	name = models.NormalizeName(name)
	if name == "" {
		return models.UserIdentity{}, false, models.ErrEmptyName
	}
	u, err := s.repo.UserByName(ctx, name)
	if errors.Is(err, models.ErrNotFound) {
		return models.UserIdentity{}, false, nil
	}
	if err != nil {
		return models.UserIdentity{}, false, err
	}
	return u, true, nil
}

// Create registers a user. A blank name is models.ErrEmptyName, a taken
// one models.ErrConflict.
func (s *UserService) Create(ctx context.Context, name string) (models.UserIdentity, error) {
	name = models.NormalizeName(name)
	if name == "" {
		return models.UserIdentity{}, models.ErrEmptyName
	}
	return s.repo.CreateUser(ctx, name)
}

// Rename gives a user a new name, normalized like Create.
func (s *UserService) Rename(ctx context.Context, userID int, name string) (models.UserIdentity, error) {
	name = models.NormalizeName(name)
	if name == "" {
		return models.UserIdentity{}, models.ErrEmptyName
	}
	if err := s.repo.UpdateUser(ctx, userID, name); err != nil {
		return models.UserIdentity{}, err
	}
	return models.UserIdentity{UserID: userID, Name: name}, nil
}

// Delete removes a user.
func (s *UserService) Delete(ctx context.Context, userID int) error {
	return s.repo.DeleteUser(ctx, userID)
}

// Items returns what a user holds.
func (s *UserService) Items(ctx context.Context, userID int) ([]models.SessionItemEntry, error) {
	return s.repo.UserItems(ctx, userID)
}
