package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// StartSoftDeleteCleaner purges boxes that were deleted more than retention
// ago, every interval on clock, until ctx is done. Their box_items go with
// them through the foreign key cascade.
func StartSoftDeleteCleaner(
	ctx context.Context,
	db *sql.DB,
	clock clockwork.Clock,
	interval time.Duration,
	retention time.Duration,
	log *zap.Logger,
) {
	ticker := clock.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.Chan():
				removed, err := purgeDeletedBoxes(ctx, db, clock.Now().Add(-retention))
				if err != nil {
					log.Error("failed to purge deleted boxes", zap.Error(err))
					continue
				}
				if removed > 0 {
					log.Info("purged deleted boxes", zap.Int64("removed", removed))
				}
			}
		}
	}()
}

func purgeDeletedBoxes(ctx context.Context, db *sql.DB, cutoff time.Time) (int64, error) {
	res, err := db.ExecContext(ctx, `
		DELETE FROM rfid_boxes
		 WHERE deleted_at IS NOT NULL
		   AND deleted_at < $1
	`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
