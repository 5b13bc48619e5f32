// Package repository provides the PostgreSQL stores behind the inventory
// backend: boxes and their stock, users and what they hold, and item logs.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/rfidvision/rfidlog/internal/models"
)

// uniqueViolation is the PostgreSQL SQLSTATE for unique_violation.
const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

// PostgresBoxRepository stores RFID boxes and the items they stock.
type PostgresBoxRepository struct {
	// DB is the database handle for executing queries and transactions.
	DB *sql.DB
}

// NewPostgresBoxRepository creates a PostgresBoxRepository using db.
func NewPostgresBoxRepository(db *sql.DB) *PostgresBoxRepository {
	return &PostgresBoxRepository{DB: db}
}

// BoxByUID returns the live box registered under uid, or models.ErrNotFound.
func (r *PostgresBoxRepository) BoxByUID(ctx context.Context, uid models.UID) (models.Container, error) {
	var box models.Container
	err := r.DB.QueryRowContext(ctx, `
		SELECT id, uid, box_name FROM rfid_boxes WHERE uid = $1 AND deleted_at IS NULL
	`, uid).Scan(&box.ID, &box.UID, &box.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Container{}, models.ErrNotFound
	}
	if err != nil {
		return models.Container{}, fmt.Errorf("BoxByUID: %w", err)
	}

	items, err := r.items(ctx, []int{box.ID})
	if err != nil {
		return models.Container{}, err
	}
	box.Items = items[box.ID]
	if box.Items == nil {
		box.Items = []models.ItemStock{}
	}
	return box, nil
}

// Boxes lists every live box with its items, oldest first.
func (r *PostgresBoxRepository) Boxes(ctx context.Context) ([]models.Container, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT id, uid, box_name FROM rfid_boxes WHERE deleted_at IS NULL ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("Boxes: %w", err)
	}
	defer rows.Close()

	boxes := []models.Container{}
	var ids []int
	for rows.Next() {
		var b models.Container
		if err := rows.Scan(&b.ID, &b.UID, &b.Name); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		boxes = append(boxes, b)
		ids = append(ids, b.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("Boxes: %w", err)
	}
	if len(ids) == 0 {
		return boxes, nil
	}

	items, err := r.items(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range boxes {
		boxes[i].Items = items[boxes[i].ID]
		if boxes[i].Items == nil {
			boxes[i].Items = []models.ItemStock{}
		}
	}
	return boxes, nil
}

// items loads the stock of the given boxes keyed by box id.
func (r *PostgresBoxRepository) items(ctx context.Context, boxIDs []int) (map[int][]models.ItemStock, error) {
	ids := make([]int64, len(boxIDs))
	for i, id := range boxIDs {
		ids[i] = int64(id)
	}

	rows, err := r.DB.QueryContext(ctx, `
		SELECT bi.box_id, im.id, im.name, im.description, bi.quantity
		  FROM box_items bi JOIN item_master im ON im.id = bi.item_id
		 WHERE bi.box_id = ANY($1)
		 ORDER BY bi.box_id, im.id
	`, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("box items: %w", err)
	}
	defer rows.Close()

	out := make(map[int][]models.ItemStock, len(boxIDs))
	for rows.Next() {
		var boxID int
		var it models.ItemStock
		if err := rows.Scan(&boxID, &it.ItemID, &it.Name, &it.Description, &it.Quantity); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		out[boxID] = append(out[boxID], it)
	}
	return out, rows.Err()
}

// SaveBox creates the box uid or replaces its name and contents. Items are
// matched to the item master by name and created there when missing. A
// soft-deleted box with the same uid is revived.
func (r *PostgresBoxRepository) SaveBox(ctx context.Context, uid models.UID, name string, items []models.ItemStock) (int, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var boxID int
	err = tx.QueryRowContext(ctx, `
		INSERT INTO rfid_boxes (uid, box_name) VALUES ($1, $2)
		ON CONFLICT (uid) DO UPDATE SET box_name = EXCLUDED.box_name, deleted_at = NULL
		RETURNING id
	`, uid, name).Scan(&boxID)
	if err != nil {
		return 0, fmt.Errorf("upsert box: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM box_items WHERE box_id = $1`, boxID); err != nil {
		return 0, fmt.Errorf("clear box items: %w", err)
	}

	for _, it := range items {
		var itemID int
		err := tx.QueryRowContext(ctx, `
			INSERT INTO item_master (name, description, total_quantity) VALUES ($1, $2, $3)
			ON CONFLICT (name) DO UPDATE SET description = EXCLUDED.description
			RETURNING id
		`, it.Name, it.Description, it.Quantity).Scan(&itemID)
		if err != nil {
			return 0, fmt.Errorf("upsert item %q: %w", it.Name, err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO box_items (box_id, item_id, quantity) VALUES ($1, $2, $3)
			ON CONFLICT (box_id, item_id) DO UPDATE SET quantity = box_items.quantity + EXCLUDED.quantity
		`, boxID, itemID, it.Quantity)
		if err != nil {
			return 0, fmt.Errorf("insert box item %q: %w", it.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return boxID, nil
}

// DeleteBox soft-deletes a box. The cleaner purges it after the retention
// period.
func (r *PostgresBoxRepository) DeleteBox(ctx context.Context, id int) error {
	res, err := r.DB.ExecContext(ctx, `
		UPDATE rfid_boxes SET deleted_at = now() WHERE id = $1 AND deleted_at IS NULL
	`, id)
	if err != nil {
		return fmt.Errorf("DeleteBox: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.ErrNotFound
	}
	return nil
}

// ItemMaster lists the item catalogue.
func (r *PostgresBoxRepository) ItemMaster(ctx context.Context) ([]models.ItemMaster, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT id, name, description, total_quantity FROM item_master ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("ItemMaster: %w", err)
	}
	defer rows.Close()

	items := []models.ItemMaster{}
	for rows.Next() {
		var it models.ItemMaster
		if err := rows.Scan(&it.ID, &it.Name, &it.Description, &it.TotalQuantity); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}
