package main

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rfidvision/rfidlog/internal/client/api"
	"github.com/rfidvision/rfidlog/internal/client/capture"
	"github.com/rfidvision/rfidlog/internal/client/events"
	"github.com/rfidvision/rfidlog/internal/client/reader"
	"github.com/rfidvision/rfidlog/internal/client/reconcile"
	"github.com/rfidvision/rfidlog/internal/client/session"
	"github.com/rfidvision/rfidlog/internal/client/storage"
	"github.com/rfidvision/rfidlog/internal/config"
	"github.com/rfidvision/rfidlog/internal/logger"
	"github.com/rfidvision/rfidlog/internal/models"
)

var errUserNotFound = errors.New("user not found")

// syncWriter serialises output coming from the REPL and from background
// callbacks.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

// station wires the controller components for one client process. Sessions
// come and go; the reader controller, the trigger and the stores outlive them.
type station struct {
	opts   *config.ClientOptions
	api    *api.Client
	tlsCfg *tls.Config
	log    *zap.Logger
	out    io.Writer

	ctrl    *reader.Controller
	trigger *capture.Trigger
	rec     *reconcile.Reconciler
	pending *storage.LocalStorage

	// streamEvents is false in tests that have no websocket backend.
	streamEvents bool

	mu   sync.Mutex
	sess *session.Session
	ctx  context.Context
	// reidentify lets the next recognition replace a session user; set by
	// 'auto' and 'identify', cleared once a user is set.
	reidentify bool
	// parked is the pending submission built from the current session.
	parked string
}

func newStation(ctx context.Context, opts *config.ClientOptions, client *api.Client, tlsCfg *tls.Config, pending *storage.LocalStorage, out io.Writer, log *zap.Logger) *station {
	log = logger.OrNop(log)
	st := &station{
		opts:         opts,
		api:          client,
		tlsCfg:       tlsCfg,
		log:          log,
		out:          &syncWriter{w: out},
		pending:      pending,
		streamEvents: true,
		ctx:          ctx,
	}

	st.ctrl = reader.NewController(client, reader.Config{
		BlockedAfter: opts.BlockedAfter,
		MaxAttempts:  opts.MaxAttempts,
	}, log)
	st.ctrl.Subscribe(func(s reader.State) {
		switch s {
		case reader.Ready, reader.Blocked:
			st.printf("[reader %s]\n", s)
		}
	})

	st.trigger = capture.New(client, capture.Config{
		Tick:        opts.CountdownTick,
		OnOutcome:   st.onOutcome,
		OnCountdown: func(n int) { st.printf("[capture in %d]\n", n) },
	}, log)

	st.rec = reconcile.New(client, pending, log)
	return st
}

func (st *station) printf(format string, args ...any) {
	fmt.Fprintf(st.out, format, args...)
}

func (st *station) session() *session.Session {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.sess
}

// startSession opens a fresh session: boxes are loaded, the reader acquired
// and polled, and the event stream feeds the trigger until the session ends.
func (st *station) startSession() error {
	sess := session.New(st.api, st.log)
	poller := session.NewPoller(sess, st.ctrl, st.opts.PollInterval, nil, st.log)
	poller.OnAdded = func(b models.Container) {
		st.printf("[box %s %q, %d items]\n", b.UID, b.Name, len(b.Items))
	}

	if err := sess.Start(st.ctx, st.ctrl, poller); err != nil {
		return err
	}
	if st.streamEvents {
		if err := st.streamTo(sess); err != nil {
			st.closeSession(sess)
			return err
		}
	}
	st.trigger.RestartAutomatic()

	st.mu.Lock()
	st.sess = sess
	st.reidentify = false
	st.parked = ""
	st.mu.Unlock()
	return nil
}

// streamTo runs the event stream and the trigger for the life of sess.
func (st *station) streamTo(sess *session.Session) error {
	evs := make(chan events.Event)
	stream := events.NewStream(st.opts.EventsURL, st.tlsCfg, st.log)
	if err := sess.Go(func(ctx context.Context) { _ = stream.Run(ctx, evs) }); err != nil {
		return err
	}
	return sess.Go(func(ctx context.Context) { _ = st.trigger.Run(ctx, evs) })
}

// endSession closes the current session, releasing the reader once.
func (st *station) endSession() {
	st.mu.Lock()
	sess := st.sess
	st.sess = nil
	st.mu.Unlock()
	if sess == nil {
		return
	}
	st.closeSession(sess)
}

func (st *station) closeSession(sess *session.Session) {
	ctx, cancel := context.WithTimeout(context.Background(), st.opts.RequestTimeout)
	defer cancel()
	sess.Close(ctx)
}

// rearm lets the next automatic recognition set the session user again.
func (st *station) rearm() {
	st.mu.Lock()
	st.reidentify = true
	st.mu.Unlock()
}

// settled reports whether the session already has a user that automatic
// capture must not replace.
func (st *station) settled(sess *session.Session) bool {
	if _, ok := sess.User(); !ok {
		return false
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return !st.reidentify
}

// onOutcome runs on the trigger goroutine when a capture resolves. Once the
// session has a user, outcomes are dropped until the operator asks for
// 'auto' again.
func (st *station) onOutcome(out capture.Outcome) {
	if sess := st.session(); sess != nil && st.settled(sess) {
		st.log.Debug("session user already set, ignoring capture", zap.String("name", out.Name))
		st.trigger.ManualReselect()
		return
	}
	switch out.Kind {
	case capture.Identified:
		st.printf("[recognized %s]\n", out.Name)
		if err := st.identify(st.ctx, out.Name, false); err != nil {
			st.printf("%v\n", err)
		}
	case capture.NotRecognized:
		st.printf("[face not recognized: use 'user <name>']\n")
	}
}

// identify resolves name to a user and seeds the session with the items
// that user holds. Automatic capture stays paused afterwards.
func (st *station) identify(ctx context.Context, name string, create bool) error {
	sess := st.session()
	if sess == nil {
		return fmt.Errorf("no active session")
	}

	ctx, cancel := context.WithTimeout(ctx, st.opts.RequestTimeout)
	defer cancel()

	user, ok, err := st.api.CheckUser(ctx, name)
	if err != nil {
		return fmt.Errorf("user lookup failed: %w", err)
	}
	if !ok {
		if !create {
			return fmt.Errorf("%w: %s", errUserNotFound, models.NormalizeName(name))
		}
		if user, err = st.api.CreateUser(ctx, name); err != nil {
			return fmt.Errorf("create user failed: %w", err)
		}
		st.printf("User %q created\n", user.Name)
	}

	held, err := st.api.UserItems(ctx, user.UserID)
	if err != nil {
		return fmt.Errorf("load items of %s: %w", user.Name, err)
	}
	sess.SetUser(user, held)
	st.mu.Lock()
	st.reidentify = false
	st.mu.Unlock()
	st.trigger.ManualReselect()
	st.printf("Session user: %s (#%d), holding %d item kinds\n", user.Name, user.UserID, len(held))
	return nil
}

// requestCtx bounds one REPL command.
func (st *station) requestCtx() (context.Context, context.CancelFunc) {
	timeout := st.opts.RequestTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return context.WithTimeout(st.ctx, timeout)
}
