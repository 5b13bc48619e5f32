// Package reader owns the RFID reader lifecycle for one station session.
//
// The reader may be unplugged, held by another process or wedged after a
// previous crash, so it is always brought up with a close followed by an
// initialize and the pair is retried until the device answers.
package reader

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/rfidvision/rfidlog/internal/logger"
	"github.com/rfidvision/rfidlog/internal/models"
)

// Block geometry of the supported tags.
const (
	MaxBlock  = 63
	BlockSize = 16
)

var (
	// ErrNotReady is returned by tag operations outside the Ready state.
	ErrNotReady = errors.New("reader not ready")
	// ErrBlocked is returned by Acquire when MaxAttempts is exhausted.
	ErrBlocked = errors.New("reader blocked")
	// ErrReleased is returned by an Acquire that was overtaken by Release.
	ErrReleased = errors.New("reader released")
	// ErrInvalidBlock is returned for block numbers outside [0, MaxBlock].
	ErrInvalidBlock = errors.New("invalid block number")
	// ErrBlockTooLarge is returned for writes longer than BlockSize.
	ErrBlockTooLarge = errors.New("data exceeds block size")
)

// State is the reader lifecycle state.
type State int

const (
	Uninitialized State = iota
	Closing
	Initializing
	Ready
	Blocked
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Closing:
		return "closing"
	case Initializing:
		return "initializing"
	case Ready:
		return "ready"
	case Blocked:
		return "blocked"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Device is the part of the RequestChannel that drives the reader.
type Device interface {
	CloseReader(ctx context.Context) error
	InitializeReader(ctx context.Context) error
	StopScan(ctx context.Context) error
	ScanOnce(ctx context.Context) (string, bool, error)
	ScanContinuous(ctx context.Context) (string, bool, error)
	ReadBlock(ctx context.Context, block int) ([]byte, error)
	WriteBlock(ctx context.Context, block int, data []byte) error
}

// Config tunes the acquire loop. Zero fields take the defaults.
type Config struct {
	// BlockedAfter is the number of consecutive failed attempts after which
	// the state is reported as Blocked. Default 5.
	BlockedAfter int
	// MaxAttempts stops the loop with ErrBlocked; 0 retries forever.
	MaxAttempts int
	// InitialInterval, Multiplier and MaxInterval shape the backoff between
	// attempts. Defaults 250ms, 2 and 5s.
	InitialInterval time.Duration
	Multiplier      float64
	MaxInterval     time.Duration
	// Jitter is the backoff randomization factor, 0 by default.
	Jitter float64
	// Clock drives the waits between attempts.
	Clock clockwork.Clock
}

func (c Config) withDefaults() Config {
	if c.BlockedAfter <= 0 {
		c.BlockedAfter = 5
	}
	if c.InitialInterval <= 0 {
		c.InitialInterval = 250 * time.Millisecond
	}
	if c.Multiplier <= 1 {
		c.Multiplier = 2
	}
	if c.MaxInterval <= 0 {
		c.MaxInterval = 5 * time.Second
	}
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	return c
}

// Controller is the only component allowed to change the reader state.
type Controller struct {
	dev Device
	cfg Config
	log *zap.Logger

	acquireMu sync.Mutex

	mu         sync.Mutex
	state      State
	generation uint64
	pending    bool // an acquisition cycle still owes a stop-scan
	listeners  []func(State)
}

// NewController returns a Controller in the Uninitialized state.
func NewController(dev Device, cfg Config, log *zap.Logger) *Controller {
	return &Controller{
		dev: dev,
		cfg: cfg.withDefaults(),
		log: logger.OrNop(log),
	}
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Ready reports whether scans may be issued.
func (c *Controller) Ready() bool {
	return c.State() == Ready
}

// Subscribe registers fn to be called on every state change. Calls happen
// on the goroutine that caused the change, never under the controller lock.
func (c *Controller) Subscribe(fn func(State)) {
	c.mu.Lock()
	c.listeners = append(c.listeners, fn)
	c.mu.Unlock()
}

// set moves to s unless the cycle identified by gen was released. It
// reports whether the transition happened.
func (c *Controller) set(gen uint64, s State) bool {
	c.mu.Lock()
	if c.generation != gen {
		c.mu.Unlock()
		return false
	}
	if c.state == s {
		c.mu.Unlock()
		return true
	}
	c.state = s
	listeners := append([]func(State){}, c.listeners...)
	c.mu.Unlock()

	for _, fn := range listeners {
		fn(s)
	}
	return true
}

func (c *Controller) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.cfg.InitialInterval
	b.Multiplier = c.cfg.Multiplier
	b.MaxInterval = c.cfg.MaxInterval
	b.RandomizationFactor = c.cfg.Jitter
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// Acquire brings the reader to Ready by closing and re-initializing it,
// retrying the pair with exponential backoff. It returns nil once Ready,
// ctx.Err() when cancelled (state back to Uninitialized), ErrBlocked when
// MaxAttempts is exhausted and ErrReleased when Release ran meanwhile.
func (c *Controller) Acquire(ctx context.Context) error {
	c.acquireMu.Lock()
	defer c.acquireMu.Unlock()

	c.mu.Lock()
	if c.state == Ready {
		c.mu.Unlock()
		return nil
	}
	gen := c.generation
	c.pending = true
	c.mu.Unlock()

	b := c.newBackOff()
	failures := 0
	for {
		if err := ctx.Err(); err != nil {
			c.set(gen, Uninitialized)
			return err
		}

		err := c.attempt(ctx, gen, failures >= c.cfg.BlockedAfter)
		if err == nil {
			if !c.set(gen, Ready) {
				return ErrReleased
			}
			c.log.Info("reader ready", zap.Int("failed_attempts", failures))
			return nil
		}
		if errors.Is(err, ErrReleased) {
			return err
		}
		if ctx.Err() != nil {
			c.set(gen, Uninitialized)
			return ctx.Err()
		}

		failures++
		c.log.Warn("reader acquire attempt failed",
			zap.Int("attempt", failures),
			zap.Error(err),
		)

		exhausted := c.cfg.MaxAttempts > 0 && failures >= c.cfg.MaxAttempts
		// a loop giving up before BlockedAfter still ends Blocked
		if failures == c.cfg.BlockedAfter || (exhausted && failures < c.cfg.BlockedAfter) {
			if !c.set(gen, Blocked) {
				return ErrReleased
			}
			c.log.Error("reader blocked", zap.Int("consecutive_failures", failures))
		}
		if exhausted {
			return fmt.Errorf("%w after %d attempts: %v", ErrBlocked, failures, err)
		}

		select {
		case <-ctx.Done():
			c.set(gen, Uninitialized)
			return ctx.Err()
		case <-c.cfg.Clock.After(b.NextBackOff()):
		}
	}
}

// attempt runs one close+initialize pair. While blocked the intermediate
// states are not published so Blocked stays observable.
func (c *Controller) attempt(ctx context.Context, gen uint64, blocked bool) error {
	if !blocked && !c.set(gen, Closing) {
		return ErrReleased
	}
	if err := c.dev.CloseReader(ctx); err != nil {
		return fmt.Errorf("close: %w", err)
	}
	if !blocked && !c.set(gen, Initializing) {
		return ErrReleased
	}
	if err := c.dev.InitializeReader(ctx); err != nil {
		return fmt.Errorf("initialize: %w", err)
	}
	return nil
}

// Release issues one best-effort stop-scan for the current acquisition
// cycle and returns the controller to Uninitialized. Further calls without
// a new Acquire send nothing. An Acquire still running is abandoned.
func (c *Controller) Release(ctx context.Context) {
	c.mu.Lock()
	c.generation++
	owed := c.pending
	c.pending = false
	changed := c.state != Uninitialized
	c.state = Uninitialized
	listeners := append([]func(State){}, c.listeners...)
	c.mu.Unlock()

	if changed {
		for _, fn := range listeners {
			fn(Uninitialized)
		}
	}
	if !owed {
		return
	}
	if err := c.dev.StopScan(ctx); err != nil {
		c.log.Warn("stop scan failed", zap.Error(err))
	}
}

// ScanContinuous asks the reader for the next tag in the field.
func (c *Controller) ScanContinuous(ctx context.Context) (models.UID, bool, error) {
	if !c.Ready() {
		return "", false, ErrNotReady
	}
	uid, ok, err := c.dev.ScanContinuous(ctx)
	if err != nil || !ok {
		return "", false, err
	}
	return models.NormalizeUID(uid), true, nil
}

// ScanOnce performs a single scan.
func (c *Controller) ScanOnce(ctx context.Context) (models.UID, bool, error) {
	if !c.Ready() {
		return "", false, ErrNotReady
	}
	uid, ok, err := c.dev.ScanOnce(ctx)
	if err != nil || !ok {
		return "", false, err
	}
	return models.NormalizeUID(uid), true, nil
}

// ReadBlock reads one block of the tag in the field.
func (c *Controller) ReadBlock(ctx context.Context, block int) ([]byte, error) {
	if err := validBlock(block); err != nil {
		return nil, err
	}
	if !c.Ready() {
		return nil, ErrNotReady
	}
	return c.dev.ReadBlock(ctx, block)
}

// WriteBlock writes data (at most BlockSize bytes) to one block.
func (c *Controller) WriteBlock(ctx context.Context, block int, data []byte) error {
	if err := validBlock(block); err != nil {
		return err
	}
	if len(data) > BlockSize {
		return fmt.Errorf("%w: %d bytes", ErrBlockTooLarge, len(data))
	}
	if !c.Ready() {
		return ErrNotReady
	}
	return c.dev.WriteBlock(ctx, block, data)
}

func validBlock(block int) error {
	if block < 0 || block > MaxBlock {
		return fmt.Errorf("%w: %d", ErrInvalidBlock, block)
	}
	return nil
}
