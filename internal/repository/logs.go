package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/rfidvision/rfidlog/internal/models"
)

// PostgresLogRepository books log entries against user holdings.
type PostgresLogRepository struct {
	DB *sql.DB
}

// NewPostgresLogRepository creates a PostgresLogRepository using db.
func NewPostgresLogRepository(db *sql.DB) *PostgresLogRepository {
	return &PostgresLogRepository{DB: db}
}

// CreateLog applies entry to the user's holdings and stores it, in one
// transaction. Added items are credited; returned items are debited and
// rows reaching zero are removed, returns of items the user does not hold
// are ignored. An entry whose SubmissionID was already stored is not
// applied again: duplicate is true and rec is zero.
func (r *PostgresLogRepository) CreateLog(ctx context.Context, entry models.LogEntry, station string) (rec models.LogRecord, duplicate bool, err error) {
	added, err := json.Marshal(entry.ItemsAdded)
	if err != nil {
		return models.LogRecord{}, false, fmt.Errorf("encode items_added: %w", err)
	}
	returned, err := json.Marshal(entry.ItemsReturned)
	if err != nil {
		return models.LogRecord{}, false, fmt.Errorf("encode items_returned: %w", err)
	}

	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return models.LogRecord{}, false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if entry.SubmissionID != "" {
		var seen bool
		err := tx.QueryRowContext(ctx, `
			SELECT EXISTS(SELECT 1 FROM item_logs WHERE submission_id = $1)
		`, entry.SubmissionID).Scan(&seen)
		if err != nil {
			return models.LogRecord{}, false, fmt.Errorf("check submission: %w", err)
		}
		if seen {
			return models.LogRecord{}, true, nil
		}
	}

	var userExists bool
	err = tx.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE id = $1)`, entry.UserID).Scan(&userExists)
	if err != nil {
		return models.LogRecord{}, false, fmt.Errorf("check user: %w", err)
	}
	if !userExists {
		return models.LogRecord{}, false, fmt.Errorf("user %d: %w", entry.UserID, models.ErrNotFound)
	}

	for _, c := range entry.ItemsAdded {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO user_items (user_id, item_id, quantity) VALUES ($1, $2, $3)
			ON CONFLICT (user_id, item_id) DO UPDATE SET quantity = user_items.quantity + EXCLUDED.quantity
		`, entry.UserID, c.ItemID, c.Quantity)
		if err != nil {
			return models.LogRecord{}, false, fmt.Errorf("credit item %d: %w", c.ItemID, err)
		}
	}
	for _, c := range entry.ItemsReturned {
		_, err := tx.ExecContext(ctx, `
			UPDATE user_items SET quantity = quantity - $3 WHERE user_id = $1 AND item_id = $2
		`, entry.UserID, c.ItemID, c.Quantity)
		if err != nil {
			return models.LogRecord{}, false, fmt.Errorf("debit item %d: %w", c.ItemID, err)
		}
	}
	if len(entry.ItemsReturned) > 0 {
		_, err := tx.ExecContext(ctx, `DELETE FROM user_items WHERE user_id = $1 AND quantity <= 0`, entry.UserID)
		if err != nil {
			return models.LogRecord{}, false, fmt.Errorf("drop empty holdings: %w", err)
		}
	}

	rec = models.LogRecord{LogEntry: entry, Station: station}
	err = tx.QueryRowContext(ctx, `
		INSERT INTO item_logs (submission_id, user_id, items_added, items_returned, comment, station)
		VALUES (NULLIF($1, ''), $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`, entry.SubmissionID, entry.UserID, added, returned, entry.Comment, station).Scan(&rec.ID, &rec.CreatedAt)
	if isUniqueViolation(err) {
		// a concurrent replay of the same submission won the race
		return models.LogRecord{}, true, nil
	}
	if err != nil {
		return models.LogRecord{}, false, fmt.Errorf("insert log: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return models.LogRecord{}, false, fmt.Errorf("commit: %w", err)
	}
	return rec, false, nil
}
