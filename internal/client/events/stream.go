package events

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/rfidvision/rfidlog/internal/logger"
)

// Stream subscribes to the backend websocket and turns its messages into
// Events. A dropped connection is redialled until the context ends.
type Stream struct {
	url        string
	dialer     *websocket.Dialer
	log        *zap.Logger
	clock      clockwork.Clock
	newBackOff func() backoff.BackOff
}

// Option customises a Stream.
type Option func(*Stream)

// WithClock sets the clock used to wait between reconnects.
func WithClock(c clockwork.Clock) Option {
	return func(s *Stream) { s.clock = c }
}

// WithBackOff sets the reconnect policy. The factory is called once per Run.
func WithBackOff(f func() backoff.BackOff) Option {
	return func(s *Stream) { s.newBackOff = f }
}

// NewStream returns a Stream for url (ws:// or wss://). tlsCfg may be nil.
func NewStream(url string, tlsCfg *tls.Config, log *zap.Logger, opts ...Option) *Stream {
	dialer := *websocket.DefaultDialer
	dialer.TLSClientConfig = tlsCfg

	s := &Stream{
		url:        url,
		dialer:     &dialer,
		log:        logger.OrNop(log),
		clock:      clockwork.NewRealClock(),
		newBackOff: reconnectBackOff,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func reconnectBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// Run delivers events to out in arrival order until ctx is done, then
// returns ctx.Err(). Undecodable messages are logged and skipped.
func (s *Stream) Run(ctx context.Context, out chan<- Event) error {
	b := s.newBackOff()
	for {
		err := s.consume(ctx, out, b)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		wait := b.NextBackOff()
		if wait == backoff.Stop {
			return fmt.Errorf("event stream: giving up: %w", err)
		}
		s.log.Warn("event stream disconnected",
			zap.String("url", s.url),
			zap.Duration("retry_in", wait),
			zap.Error(err),
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.clock.After(wait):
		}
	}
}

// consume runs one connection until it fails or ctx ends.
func (s *Stream) consume(ctx context.Context, out chan<- Event, b backoff.BackOff) error {
	conn, _, err := s.dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", s.url, err)
	}
	defer conn.Close()
	b.Reset()
	s.log.Info("event stream connected", zap.String("url", s.url))

	// ReadMessage does not observe ctx; closing the connection unblocks it.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-stop:
		}
	}()

	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}

		ev, err := Decode(mt, data)
		if err != nil {
			s.log.Debug("skipping event", zap.Error(err))
			continue
		}

		select {
		case out <- ev:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
