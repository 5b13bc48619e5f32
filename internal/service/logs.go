package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/rfidvision/rfidlog/internal/logger"
	"github.com/rfidvision/rfidlog/internal/models"
)

// LogRepository books log entries.
type LogRepository interface {
	CreateLog(ctx context.Context, entry models.LogEntry, station string) (models.LogRecord, bool, error)
}

// Notifier announces stored log entries.
type Notifier interface {
	LogCreated(ctx context.Context, rec models.LogRecord) error
}

// LogService records item movements.
type LogService struct {
	repo     LogRepository
	notifier Notifier
	log      *zap.Logger
}

// NewLogService constructs a LogService. notifier may be nil.
func NewLogService(repo LogRepository, notifier Notifier, log *zap.Logger) *LogService {
	return &LogService{repo: repo, notifier: notifier, log: logger.OrNop(log)}
}

// Create validates and stores entry on behalf of station. duplicate is
// true when the SubmissionID was already recorded; nothing is applied or
// announced then. A failed notification is logged and does not fail the
// call.
func (s *LogService) Create(ctx context.Context, entry models.LogEntry, station string) (duplicate bool, err error) {
	if entry.UserID <= 0 {
		return false, fmt.Errorf("%w: user_id is required", models.ErrInvalid)
	}
	for _, list := range [][]models.ItemChange{entry.ItemsAdded, entry.ItemsReturned} {
		for _, c := range list {
			if c.ItemID <= 0 || c.Quantity <= 0 {
				return false, fmt.Errorf("%w: item %d quantity %d", models.ErrInvalid, c.ItemID, c.Quantity)
			}
		}
	}
	if entry.ItemsAdded == nil {
		entry.ItemsAdded = []models.ItemChange{}
	}
	if entry.ItemsReturned == nil {
		entry.ItemsReturned = []models.ItemChange{}
	}

	rec, duplicate, err := s.repo.CreateLog(ctx, entry, station)
	if err != nil {
		return false, err
	}
	if duplicate {
		s.log.Info("duplicate log submission ignored", zap.String("submission_id", entry.SubmissionID))
		return true, nil
	}

	if s.notifier != nil {
		if err := s.notifier.LogCreated(ctx, rec); err != nil {
			s.log.Warn("log notification failed", zap.Int("log_id", rec.ID), zap.Error(err))
		}
	}
	return false, nil
}
