// Package capture decides when the camera pipeline should take a
// recognition-quality picture.
//
// The backend reports whether a face is centered; three consecutive ticks of
// a centered face fire one capture and the next recognition result resolves
// it. An operator may instead run the camera continuously, or take over
// identification by hand.
package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/rfidvision/rfidlog/internal/client/events"
	"github.com/rfidvision/rfidlog/internal/logger"
)

// CountdownStart is the number of ticks a face must stay centered.
const CountdownStart = 3

// ErrNoCapture is returned when no camera frame has been received yet.
var ErrNoCapture = errors.New("no captured image")

// State of the trigger.
type State int

const (
	Idle State = iota
	CountdownRunning
	AwaitingResult
	Suppressed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case CountdownRunning:
		return "countdown"
	case AwaitingResult:
		return "awaiting-result"
	case Suppressed:
		return "suppressed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Camera is the capture half of the RequestChannel.
type Camera interface {
	TriggerOnce(ctx context.Context) error
	StartContinuous(ctx context.Context) error
	StopContinuous(ctx context.Context) error
	SetAutoCapture(ctx context.Context, on bool) error
}

// OutcomeKind tells how a capture resolved.
type OutcomeKind int

const (
	// Identified means the pipeline recognised a known face.
	Identified OutcomeKind = iota
	// NotRecognized hands identification over to manual entry.
	NotRecognized
)

// Outcome is reported once per resolved capture.
type Outcome struct {
	Kind     OutcomeKind
	Name     string
	Distance *float64
}

// Config wires optional collaborators of a Trigger.
type Config struct {
	// Tick is one countdown step, 1s by default.
	Tick time.Duration
	// Clock drives countdown ticks in Run.
	Clock clockwork.Clock
	// OnOutcome receives every resolved capture.
	OnOutcome func(Outcome)
	// OnCountdown receives the remaining ticks each time the countdown moves.
	OnCountdown func(n int)
}

// Trigger is the capture state machine. Events and ticks arrive on the Run
// goroutine; operator commands may come from any goroutine.
type Trigger struct {
	cam    Camera
	cfg    Config
	log    *zap.Logger
	frames *events.FrameHolder

	mu         sync.Mutex
	state      State
	n          int
	continuous bool
	seq        uint64 // bumped whenever a countdown starts
}

// New returns an Idle Trigger.
func New(cam Camera, cfg Config, log *zap.Logger) *Trigger {
	if cfg.Tick <= 0 {
		cfg.Tick = time.Second
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return &Trigger{
		cam:    cam,
		cfg:    cfg,
		log:    logger.OrNop(log),
		frames: events.NewFrameHolder(),
	}
}

// State returns the current state and, while counting down, the ticks left.
func (t *Trigger) State() (State, int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != CountdownRunning {
		return t.state, 0
	}
	return t.state, t.n
}

// Continuous reports whether continuous capture is on.
func (t *Trigger) Continuous() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.continuous
}

// Frames exposes the latest-frame holder for viewers.
func (t *Trigger) Frames() *events.FrameHolder { return t.frames }

// LatestFrame returns the newest camera image.
func (t *Trigger) LatestFrame() (events.Frame, error) {
	f, _, ok := t.frames.Latest()
	if !ok {
		return events.Frame{}, ErrNoCapture
	}
	return f, nil
}

// HandleEvent applies one stream event.
func (t *Trigger) HandleEvent(ctx context.Context, ev events.Event) error {
	return events.Dispatch(ev, handler{t: t, ctx: ctx})
}

// handler binds the event callbacks to the context of the Run loop.
type handler struct {
	t   *Trigger
	ctx context.Context
}

func (h handler) FaceStatus(e events.FaceStatus)               { h.t.faceStatus(e) }
func (h handler) RecognitionResult(e events.RecognitionResult) { h.t.recognition(h.ctx, e) }
func (h handler) Frame(e events.Frame)                         { h.t.frames.Put(e) }

func (t *Trigger) faceStatus(e events.FaceStatus) {
	t.mu.Lock()
	if t.continuous || t.state == Suppressed {
		t.mu.Unlock()
		return
	}

	switch {
	case e.Centered && t.state == Idle:
		t.state = CountdownRunning
		t.n = CountdownStart
		t.seq++
	case !e.Centered && t.state == CountdownRunning:
		t.state = Idle
		t.n = 0
		t.mu.Unlock()
		t.log.Debug("countdown cancelled, face left the frame")
		return
	default:
		t.mu.Unlock()
		return
	}
	t.mu.Unlock()

	if t.cfg.OnCountdown != nil {
		t.cfg.OnCountdown(CountdownStart)
	}
}

func (t *Trigger) recognition(ctx context.Context, e events.RecognitionResult) {
	t.mu.Lock()
	if t.state != AwaitingResult {
		state := t.state
		t.mu.Unlock()
		t.log.Debug("ignoring stale recognition result",
			zap.String("state", state.String()),
			zap.String("name", e.Name),
		)
		return
	}

	continuous := t.continuous
	out := Outcome{Kind: NotRecognized, Distance: e.Distance}
	if e.Recognized() {
		out = Outcome{Kind: Identified, Name: e.Name, Distance: e.Distance}
		t.state = Idle
		t.continuous = false
	} else if !continuous {
		t.state = Idle
	}
	t.mu.Unlock()

	if out.Kind == Identified && continuous {
		if err := t.cam.StopContinuous(ctx); err != nil {
			t.log.Warn("failed to stop continuous capture", zap.Error(err))
		}
	}
	if t.cfg.OnOutcome != nil {
		t.cfg.OnOutcome(out)
	}
}

// Tick advances a running countdown by one step and fires the capture when
// it reaches zero.
func (t *Trigger) Tick(ctx context.Context) {
	t.mu.Lock()
	if t.state != CountdownRunning {
		t.mu.Unlock()
		return
	}
	t.n--
	n := t.n
	if n > 0 {
		t.mu.Unlock()
		if t.cfg.OnCountdown != nil {
			t.cfg.OnCountdown(n)
		}
		return
	}
	t.state = AwaitingResult
	t.mu.Unlock()

	if t.cfg.OnCountdown != nil {
		t.cfg.OnCountdown(0)
	}
	if err := t.cam.TriggerOnce(ctx); err != nil {
		t.log.Warn("capture trigger failed", zap.Error(err))
		t.mu.Lock()
		if t.state == AwaitingResult && !t.continuous {
			t.state = Idle
		}
		t.mu.Unlock()
	}
}

// SetContinuous switches continuous capture on or off. Turning it on
// cancels a running countdown.
func (t *Trigger) SetContinuous(ctx context.Context, on bool) error {
	if on {
		if err := t.cam.StartContinuous(ctx); err != nil {
			return fmt.Errorf("start continuous capture: %w", err)
		}
	} else if err := t.cam.StopContinuous(ctx); err != nil {
		return fmt.Errorf("stop continuous capture: %w", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.continuous = on
	switch {
	case on && (t.state == Idle || t.state == CountdownRunning):
		t.state = AwaitingResult
		t.n = 0
	case !on && t.state == AwaitingResult:
		t.state = Idle
	}
	return nil
}

// EnableAuto turns on the backend's face-centering detector and restarts
// automatic capture.
func (t *Trigger) EnableAuto(ctx context.Context) error {
	if err := t.cam.SetAutoCapture(ctx, true); err != nil {
		return fmt.Errorf("enable auto capture: %w", err)
	}
	t.RestartAutomatic()
	return nil
}

// ManualReselect hands identification to the operator: automatic results
// and face signals are ignored until RestartAutomatic.
func (t *Trigger) ManualReselect() {
	t.mu.Lock()
	t.state = Suppressed
	t.n = 0
	t.mu.Unlock()
}

// RestartAutomatic clears a manual override and returns to Idle, or to
// waiting for results while continuous capture is on.
func (t *Trigger) RestartAutomatic() {
	t.mu.Lock()
	t.n = 0
	t.state = Idle
	if t.continuous {
		t.state = AwaitingResult
	}
	t.mu.Unlock()
}

func (t *Trigger) countdownSeq() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.seq
}

// Run consumes events in delivery order and drives the countdown until ctx
// is done or evs is closed.
func (t *Trigger) Run(ctx context.Context, evs <-chan events.Event) error {
	ticker := t.cfg.Clock.NewTicker(t.cfg.Tick)
	defer ticker.Stop()

	seq := t.countdownSeq()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-evs:
			if !ok {
				return nil
			}
			if err := t.HandleEvent(ctx, ev); err != nil {
				t.log.Debug("skipping event", zap.Error(err))
			}
		case <-ticker.Chan():
			t.Tick(ctx)
		}

		// a fresh countdown gets a full first tick
		if s := t.countdownSeq(); s != seq {
			seq = s
			ticker.Reset(t.cfg.Tick)
		}
	}
}
