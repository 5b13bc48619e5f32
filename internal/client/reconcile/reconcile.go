// Package reconcile turns the items a user held before and after a session
// into a single add/return log entry and submits it.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rfidvision/rfidlog/internal/logger"
	"github.com/rfidvision/rfidlog/internal/models"
)

var (
	// ErrNoUser is returned when a submission has no user to book against.
	ErrNoUser = errors.New("no user for submission")
	// ErrUnknownSubmission is returned by Retry for IDs not pending.
	ErrUnknownSubmission = errors.New("no pending submission with that id")
)

// Diff returns the minimal delta from before to after. Missing items count
// as zero; unchanged items produce no entry. Both lists are sorted by item ID.
func Diff(before, after map[int]int) models.InventoryDelta {
	ids := make(map[int]struct{}, len(before)+len(after))
	for id := range before {
		ids[id] = struct{}{}
	}
	for id := range after {
		ids[id] = struct{}{}
	}
	sorted := make([]int, 0, len(ids))
	for id := range ids {
		sorted = append(sorted, id)
	}
	sort.Ints(sorted)

	delta := models.InventoryDelta{
		ItemsAdded:    []models.ItemChange{},
		ItemsReturned: []models.ItemChange{},
	}
	for _, id := range sorted {
		b, a := before[id], after[id]
		switch {
		case a > b:
			delta.ItemsAdded = append(delta.ItemsAdded, models.ItemChange{ItemID: id, Quantity: a - b})
		case a < b:
			delta.ItemsReturned = append(delta.ItemsReturned, models.ItemChange{ItemID: id, Quantity: b - a})
		}
	}
	return delta
}

// Submitter sends a log entry to the backend.
type Submitter interface {
	CreateLog(ctx context.Context, entry models.LogEntry) error
}

// PendingStore keeps entries whose submission failed.
type PendingStore interface {
	Put(entry models.LogEntry) error
	Get(submissionID string) (models.LogEntry, bool)
	Remove(submissionID string) error
	List() []models.LogEntry
}

// SubmitError reports a failed submission. Entry is the reconciled log
// entry, kept so the operator can retry it unchanged.
type SubmitError struct {
	Entry models.LogEntry
	Err   error
}

func (e *SubmitError) Error() string {
	return fmt.Sprintf("submit log %s: %v", e.Entry.SubmissionID, e.Err)
}

func (e *SubmitError) Unwrap() error { return e.Err }

// Reconciler builds and submits log entries.
type Reconciler struct {
	api     Submitter
	pending PendingStore
	log     *zap.Logger
	newID   func() string
}

// New returns a Reconciler. pending may be nil, in which case failed
// entries are only returned to the caller.
func New(api Submitter, pending PendingStore, log *zap.Logger) *Reconciler {
	return &Reconciler{
		api:     api,
		pending: pending,
		log:     logger.OrNop(log),
		newID:   uuid.NewString,
	}
}

// Submit diffs before and after and sends the result as one log entry. A
// failed send is not retried: it returns a *SubmitError and the entry is
// parked in the pending store.
func (r *Reconciler) Submit(ctx context.Context, userID int, before, after map[int]int, comment string) (models.LogEntry, error) {
	if userID <= 0 {
		return models.LogEntry{}, ErrNoUser
	}

	delta := Diff(before, after)
	entry := models.LogEntry{
		SubmissionID:  r.newID(),
		UserID:        userID,
		ItemsAdded:    delta.ItemsAdded,
		ItemsReturned: delta.ItemsReturned,
		Comment:       comment,
	}
	if err := r.send(ctx, entry); err != nil {
		return entry, err
	}
	return entry, nil
}

// Retry resends a pending entry with its original SubmissionID.
func (r *Reconciler) Retry(ctx context.Context, submissionID string) (models.LogEntry, error) {
	if r.pending == nil {
		return models.LogEntry{}, ErrUnknownSubmission
	}
	entry, ok := r.pending.Get(submissionID)
	if !ok {
		return models.LogEntry{}, fmt.Errorf("%w: %s", ErrUnknownSubmission, submissionID)
	}
	if err := r.send(ctx, entry); err != nil {
		return entry, err
	}
	return entry, nil
}

// Pending lists entries awaiting a retry.
func (r *Reconciler) Pending() []models.LogEntry {
	if r.pending == nil {
		return nil
	}
	return r.pending.List()
}

func (r *Reconciler) send(ctx context.Context, entry models.LogEntry) error {
	if err := r.api.CreateLog(ctx, entry); err != nil {
		r.log.Error("log submission failed",
			zap.String("submission_id", entry.SubmissionID),
			zap.Int("user_id", entry.UserID),
			zap.Error(err),
		)
		if r.pending != nil {
			if perr := r.pending.Put(entry); perr != nil {
				r.log.Error("failed to keep pending log", zap.Error(perr))
			}
		}
		return &SubmitError{Entry: entry, Err: err}
	}

	r.log.Info("log submitted",
		zap.String("submission_id", entry.SubmissionID),
		zap.Int("added", len(entry.ItemsAdded)),
		zap.Int("returned", len(entry.ItemsReturned)),
	)
	if r.pending != nil {
		if err := r.pending.Remove(entry.SubmissionID); err != nil {
			r.log.Warn("failed to clear pending log", zap.Error(err))
		}
	}
	return nil
}
