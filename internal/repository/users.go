package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rfidvision/rfidlog/internal/models"
)

// PostgresUserRepository stores users and the items they hold.
type PostgresUserRepository struct {
	DB *sql.DB
}

// NewPostgresUserRepository creates a PostgresUserRepository using db.
func NewPostgresUserRepository(db *sql.DB) *PostgresUserRepository {
	return &PostgresUserRepository{DB: db}
}

// Users lists all users by id.
func (r *PostgresUserRepository) Users(ctx context.Context) ([]models.UserIdentity, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id, name FROM users ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("Users: %w", err)
	}
	defer rows.Close()

	users := []models.UserIdentity{}
	for rows.Next() {
		var u models.UserIdentity
		if err := rows.Scan(&u.UserID, &u.Name); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// UserByName returns the user with the given (normalized) name.
func (r *PostgresUserRepository) UserByName(ctx context.Context, name string) (models.UserIdentity, error) {
	u := models.UserIdentity{Name: name}
	err := r.DB.QueryRowContext(ctx, `SELECT id FROM users WHERE name = $1`, name).Scan(&u.UserID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.UserIdentity{}, models.ErrNotFound
	}
	if err != nil {
		return models.UserIdentity{}, fmt.Errorf("UserByName: %w", err)
	}
	return u, nil
}

// CreateUser inserts a user. A taken name yields models.ErrConflict.
func (r *PostgresUserRepository) CreateUser(ctx context.Context, name string) (models.UserIdentity, error) {
	u := models.UserIdentity{Name: name}
	err := r.DB.QueryRowContext(ctx, `INSERT INTO users (name) VALUES ($1) RETURNING id`, name).Scan(&u.UserID)
	if isUniqueViolation(err) {
		return models.UserIdentity{}, models.ErrConflict
	}
	if err != nil {
		return models.UserIdentity{}, fmt.Errorf("CreateUser: %w", err)
	}
	return u, nil
}

// UpdateUser renames a user. An unknown id yields models.ErrNotFound, a
// name held by another user models.ErrConflict.
func (r *PostgresUserRepository) UpdateUser(ctx context.Context, userID int, name string) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE users SET name = $1 WHERE id = $2`, name, userID)
	if isUniqueViolation(err) {
		return models.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("UpdateUser: %w", err)
	}
	return expectOneRow(res)
}

// DeleteUser removes a user; holdings and logs cascade.
func (r *PostgresUserRepository) DeleteUser(ctx context.Context, userID int) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, userID)
	if err != nil {
		return fmt.Errorf("DeleteUser: %w", err)
	}
	return expectOneRow(res)
}

func expectOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return models.ErrNotFound
	}
	return nil
}

// UserItems returns what a user currently holds.
func (r *PostgresUserRepository) UserItems(ctx context.Context, userID int) ([]models.SessionItemEntry, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT im.id, im.name, ui.quantity
		  FROM user_items ui JOIN item_master im ON im.id = ui.item_id
		 WHERE ui.user_id = $1
		 ORDER BY im.id
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("UserItems: %w", err)
	}
	defer rows.Close()

	items := []models.SessionItemEntry{}
	for rows.Next() {
		var it models.SessionItemEntry
		if err := rows.Scan(&it.ItemID, &it.Name, &it.Quantity); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}
