package session

import (
	"context"
	"errors"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/rfidvision/rfidlog/internal/logger"
	"github.com/rfidvision/rfidlog/internal/models"
)

// Scanner reports tags in the reader's field.
type Scanner interface {
	Ready() bool
	ScanContinuous(ctx context.Context) (models.UID, bool, error)
}

// Poller turns a reader that can only be polled into newly seen boxes.
type Poller struct {
	sess     *Session
	scanner  Scanner
	interval time.Duration
	clock    clockwork.Clock
	log      *zap.Logger

	// OnAdded, when set, is called for every box the poller adds.
	OnAdded func(models.Container)
}

// NewPoller returns a Poller feeding sess. A nil clock uses the real one.
func NewPoller(sess *Session, scanner Scanner, interval time.Duration, clock clockwork.Clock, log *zap.Logger) *Poller {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if interval <= 0 {
		interval = 3 * time.Second
	}
	return &Poller{
		sess:     sess,
		scanner:  scanner,
		interval: interval,
		clock:    clock,
		log:      logger.OrNop(log),
	}
}

// Run polls once per interval until ctx is done. Failures are logged and
// the next tick tries again.
func (p *Poller) Run(ctx context.Context) error {
	ticker := p.clock.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.Chan():
			p.PollOnce(ctx)
		}
	}
}

// PollOnce issues one scan while the reader is Ready and offers the result
// to the session. The scan blocks until a tag shows up, so at most one is
// in flight per poller.
func (p *Poller) PollOnce(ctx context.Context) {
	if !p.scanner.Ready() {
		return
	}

	uid, ok, err := p.scanner.ScanContinuous(ctx)
	if errors.Is(err, context.DeadlineExceeded) {
		// an empty field held the scan open past some deadline
		p.log.Debug("scan ended without a tag", zap.Error(err))
		return
	}
	if err != nil {
		if ctx.Err() == nil {
			p.log.Warn("scan failed", zap.Error(err))
		}
		return
	}
	if !ok {
		return
	}

	box, added, err := p.sess.Offer(ctx, uid)
	if err != nil {
		if ctx.Err() == nil {
			p.log.Warn("box lookup failed", zap.String("uid", uid.String()), zap.Error(err))
		}
		return
	}
	if !added {
		return
	}

	p.log.Info("box added",
		zap.String("uid", box.UID.String()),
		zap.String("name", box.Name),
		zap.Int("items", len(box.Items)),
	)
	if p.OnAdded != nil {
		p.OnAdded(box)
	}
}
