package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rfidvision/rfidlog/internal/client/events"
)

// mockCamera records capture requests; Func fields override the answers.
type mockCamera struct {
	mu    sync.Mutex
	calls []string

	TriggerFunc func(ctx context.Context) error
	StartFunc   func(ctx context.Context) error
}

func (m *mockCamera) record(name string) {
	m.mu.Lock()
	m.calls = append(m.calls, name)
	m.mu.Unlock()
}

func (m *mockCamera) TriggerOnce(ctx context.Context) error {
	m.record("trigger")
	if m.TriggerFunc != nil {
		return m.TriggerFunc(ctx)
	}
	return nil
}

func (m *mockCamera) StartContinuous(ctx context.Context) error {
	m.record("start")
	if m.StartFunc != nil {
		return m.StartFunc(ctx)
	}
	return nil
}

func (m *mockCamera) StopContinuous(context.Context) error {
	m.record("stop")
	return nil
}

func (m *mockCamera) SetAutoCapture(context.Context, bool) error {
	m.record("auto")
	return nil
}

func (m *mockCamera) called() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

type outcomes struct {
	mu  sync.Mutex
	got []Outcome
}

func (o *outcomes) add(out Outcome) {
	o.mu.Lock()
	o.got = append(o.got, out)
	o.mu.Unlock()
}

func (o *outcomes) list() []Outcome {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]Outcome(nil), o.got...)
}

var ctx = context.Background()

func face(t *testing.T, tr *Trigger, centered bool) {
	t.Helper()
	require.NoError(t, tr.HandleEvent(ctx, events.FaceStatus{Centered: centered}))
}

func assertState(t *testing.T, tr *Trigger, want State, wantN int) {
	t.Helper()
	got, n := tr.State()
	assert.Equal(t, want, got)
	assert.Equal(t, wantN, n)
}

func TestCountdown_FiresAfterThreeTicks(t *testing.T) {
	cam := &mockCamera{}
	tr := New(cam, Config{}, nil)

	face(t, tr, true)
	assertState(t, tr, CountdownRunning, 3)
	tr.Tick(ctx)
	assertState(t, tr, CountdownRunning, 2)
	tr.Tick(ctx)
	assertState(t, tr, CountdownRunning, 1)
	assert.Empty(t, cam.called())

	tr.Tick(ctx)
	assertState(t, tr, AwaitingResult, 0)
	assert.Equal(t, []string{"trigger"}, cam.called())

	// further ticks and centered signals do nothing while awaiting
	tr.Tick(ctx)
	face(t, tr, true)
	assertState(t, tr, AwaitingResult, 0)
	assert.Equal(t, []string{"trigger"}, cam.called())
}

func TestCountdown_CancelRestartsAtThree(t *testing.T) {
	for ticks := 0; ticks < CountdownStart; ticks++ {
		n := CountdownStart - ticks
		t.Run(fmt.Sprintf("cancel at %d", n), func(t *testing.T) {
			tr := New(&mockCamera{}, Config{}, nil)
			face(t, tr, true)
			for i := 0; i < ticks; i++ {
				tr.Tick(ctx)
			}
			assertState(t, tr, CountdownRunning, n)

			face(t, tr, false)
			assertState(t, tr, Idle, 0)

			face(t, tr, true)
			assertState(t, tr, CountdownRunning, CountdownStart)
		})
	}
}

func TestRecognition_Identified(t *testing.T) {
	got := &outcomes{}
	tr := New(&mockCamera{}, Config{OnOutcome: got.add}, nil)
	face(t, tr, true)
	for i := 0; i < CountdownStart; i++ {
		tr.Tick(ctx)
	}

	d := 0.4
	require.NoError(t, tr.HandleEvent(ctx, events.RecognitionResult{Name: "alice", Distance: &d}))

	assertState(t, tr, Idle, 0)
	assert.Equal(t, []Outcome{{Kind: Identified, Name: "alice", Distance: &d}}, got.list())
}

func TestRecognition_NotRecognized(t *testing.T) {
	got := &outcomes{}
	tr := New(&mockCamera{}, Config{OnOutcome: got.add}, nil)
	face(t, tr, true)
	for i := 0; i < CountdownStart; i++ {
		tr.Tick(ctx)
	}

	require.NoError(t, tr.HandleEvent(ctx, events.RecognitionResult{}))

	assertState(t, tr, Idle, 0)
	assert.Equal(t, []Outcome{{Kind: NotRecognized}}, got.list())
}

func TestRecognition_StaleIgnored(t *testing.T) {
	got := &outcomes{}
	tr := New(&mockCamera{}, Config{OnOutcome: got.add}, nil)

	require.NoError(t, tr.HandleEvent(ctx, events.RecognitionResult{Name: "bob"}))
	face(t, tr, true)
	require.NoError(t, tr.HandleEvent(ctx, events.RecognitionResult{Name: "bob"}))

	assert.Empty(t, got.list())
	assertState(t, tr, CountdownRunning, 3)
}

func TestTriggerFailure_ReturnsToIdle(t *testing.T) {
	cam := &mockCamera{TriggerFunc: func(context.Context) error { return errors.New("camera offline") }}
	tr := New(cam, Config{}, nil)
	face(t, tr, true)
	for i := 0; i < CountdownStart; i++ {
		tr.Tick(ctx)
	}
	assertState(t, tr, Idle, 0)
}

func TestContinuous_CancelsCountdownAndIgnoresFaces(t *testing.T) {
	got := &outcomes{}
	cam := &mockCamera{}
	tr := New(cam, Config{OnOutcome: got.add}, nil)

	face(t, tr, true)
	require.NoError(t, tr.SetContinuous(ctx, true))
	assertState(t, tr, AwaitingResult, 0)
	assert.True(t, tr.Continuous())

	face(t, tr, false)
	face(t, tr, true)
	tr.Tick(ctx)
	assertState(t, tr, AwaitingResult, 0)

	// misses keep the camera running, a hit stops it
	require.NoError(t, tr.HandleEvent(ctx, events.RecognitionResult{}))
	assertState(t, tr, AwaitingResult, 0)
	require.NoError(t, tr.HandleEvent(ctx, events.RecognitionResult{Name: "carol"}))
	assertState(t, tr, Idle, 0)
	assert.False(t, tr.Continuous())

	assert.Equal(t, []string{"start", "stop"}, cam.called())
	assert.Equal(t, []Outcome{{Kind: NotRecognized}, {Kind: Identified, Name: "carol"}}, got.list())
}

func TestContinuous_StartFailureKeepsState(t *testing.T) {
	cam := &mockCamera{StartFunc: func(context.Context) error { return errors.New("busy") }}
	tr := New(cam, Config{}, nil)
	face(t, tr, true)

	assert.Error(t, tr.SetContinuous(ctx, true))
	assertState(t, tr, CountdownRunning, 3)
	assert.False(t, tr.Continuous())
}

func TestContinuous_Off(t *testing.T) {
	tr := New(&mockCamera{}, Config{}, nil)
	require.NoError(t, tr.SetContinuous(ctx, true))
	require.NoError(t, tr.SetContinuous(ctx, false))
	assertState(t, tr, Idle, 0)
}

func TestManualReselect_SuppressesAutomaticResults(t *testing.T) {
	got := &outcomes{}
	tr := New(&mockCamera{}, Config{OnOutcome: got.add}, nil)
	face(t, tr, true)
	for i := 0; i < CountdownStart; i++ {
		tr.Tick(ctx)
	}

	tr.ManualReselect()
	require.NoError(t, tr.HandleEvent(ctx, events.RecognitionResult{Name: "mallory"}))
	face(t, tr, true)
	assertState(t, tr, Suppressed, 0)
	assert.Empty(t, got.list())

	tr.RestartAutomatic()
	assertState(t, tr, Idle, 0)
	face(t, tr, true)
	assertState(t, tr, CountdownRunning, 3)
}

func TestEnableAuto(t *testing.T) {
	cam := &mockCamera{}
	tr := New(cam, Config{}, nil)
	tr.ManualReselect()

	require.NoError(t, tr.EnableAuto(ctx))
	assert.Equal(t, []string{"auto"}, cam.called())
	assertState(t, tr, Idle, 0)
}

func TestFrames_LatestWins(t *testing.T) {
	tr := New(&mockCamera{}, Config{}, nil)
	_, err := tr.LatestFrame()
	assert.ErrorIs(t, err, ErrNoCapture)

	require.NoError(t, tr.HandleEvent(ctx, events.Frame{Data: []byte("a")}))
	require.NoError(t, tr.HandleEvent(ctx, events.Frame{Data: []byte("b")}))

	f, err := tr.LatestFrame()
	require.NoError(t, err)
	assert.Equal(t, []byte("b"), f.Data)
}

func TestRun_DrivesCountdownWithClock(t *testing.T) {
	clock := clockwork.NewFakeClock()
	cam := &mockCamera{}
	tr := New(cam, Config{Clock: clock}, nil)

	runCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	evs := make(chan events.Event)
	done := make(chan error, 1)
	go func() { done <- tr.Run(runCtx, evs) }()

	evs <- events.FaceStatus{Centered: true}
	for want := 2; want >= 0; want-- {
		clock.Advance(time.Second)
		if want > 0 {
			require.Eventually(t, func() bool { _, n := tr.State(); return n == want }, time.Second, time.Millisecond)
		}
	}
	require.Eventually(t, func() bool { s, _ := tr.State(); return s == AwaitingResult }, time.Second, time.Millisecond)
	assert.Equal(t, []string{"trigger"}, cam.called())

	close(evs)
	assert.NoError(t, <-done)
}
