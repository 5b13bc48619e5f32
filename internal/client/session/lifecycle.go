package session

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/rfidvision/rfidlog/internal/models"
)

// Start binds the session to ctx and launches its background work: the
// available list is loaded, the reader acquired and then polled by p. It
// returns immediately.
func (s *Session) Start(ctx context.Context, r Reader, p *Poller) error {
	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.cancel != nil {
		return errors.New("session already started")
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	s.reader = r

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(s.ctx, r, p)
	}()
	return nil
}

func (s *Session) run(ctx context.Context, r Reader, p *Poller) {
	if err := s.LoadAvailable(ctx); err != nil && ctx.Err() == nil {
		s.log.Warn("failed to load boxes", zap.Error(err))
	}

	if err := r.Acquire(ctx); err != nil {
		if ctx.Err() == nil {
			s.log.Error("reader not acquired", zap.Error(err))
		}
		return
	}
	s.log.Info("reader acquired, polling for tags")

	if p != nil {
		_ = p.Run(ctx)
	}
}

// Go runs fn on a goroutine bound to the session. Close cancels fn's
// context and waits for it to return.
func (s *Session) Go(fn func(ctx context.Context)) error {
	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.cancel == nil {
		return ErrNotStarted
	}

	ctx := s.ctx
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn(ctx)
	}()
	return nil
}

// Close stops every goroutine of the session, waits for them, releases the
// reader with a single stop-scan and clears the seen set. It may be called
// any number of times, including while the reader is still being acquired.
func (s *Session) Close(ctx context.Context) {
	s.lifeMu.Lock()
	s.closed = true
	cancel := s.cancel
	r := s.reader
	s.lifeMu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.wg.Wait()

	if r != nil {
		s.releaseOnce.Do(func() { r.Release(ctx) })
	}

	s.mu.Lock()
	s.seen = make(map[models.UID]*claim)
	s.mu.Unlock()
}
