package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rfidvision/rfidlog/internal/client/api"
	"github.com/rfidvision/rfidlog/internal/client/capture"
	"github.com/rfidvision/rfidlog/internal/client/events"
	"github.com/rfidvision/rfidlog/internal/client/session"
	"github.com/rfidvision/rfidlog/internal/client/storage"
	"github.com/rfidvision/rfidlog/internal/config"
	"github.com/rfidvision/rfidlog/internal/models"
)

type safeBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *safeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *safeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// fakeBackend answers the endpoints a station session touches.
type fakeBackend struct {
	mu        sync.Mutex
	logs      []models.LogEntry
	failLogs  bool
	stopScans int
	captures  int
	created   []string
	deleted   []string
}

func (f *fakeBackend) handler() http.Handler {
	mux := http.NewServeMux()
	ok := func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) }
	mux.HandleFunc("POST /initialize", ok)
	mux.HandleFunc("POST /close", ok)
	mux.HandleFunc("POST /stopscan", func(w http.ResponseWriter, _ *http.Request) {
		f.mu.Lock()
		f.stopScans++
		f.mu.Unlock()
	})
	mux.HandleFunc("POST /triggerOnce", func(w http.ResponseWriter, _ *http.Request) {
		f.mu.Lock()
		f.captures++
		f.mu.Unlock()
	})
	mux.HandleFunc("PUT /update-user/{id}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") != "9" {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"detail":"User not found"}`))
			return
		}
		_, _ = w.Write([]byte(`{"message":"updated"}`))
	})
	mux.HandleFunc("DELETE /delete-user/{id}", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.deleted = append(f.deleted, r.PathValue("id"))
		f.mu.Unlock()
		_, _ = w.Write([]byte(`{"message":"User deleted successfully"}`))
	})
	mux.HandleFunc("POST /rotateCCW", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"rotation_angle":270}`))
	})
	mux.HandleFunc("POST /scancont", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"message":"no tag","uid":""}`))
	})
	mux.HandleFunc("GET /get-all-boxes", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode([]models.Container{
			{ID: 1, UID: "AA01", Name: "Screws", Items: []models.ItemStock{{ItemID: 1, Name: "Screw", Quantity: 10}}},
		})
	})
	mux.HandleFunc("GET /check-user", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("name") == "alice" {
			_, _ = w.Write([]byte(`{"exists":true,"id":7}`))
			return
		}
		_, _ = w.Write([]byte(`{"exists":false}`))
	})
	mux.HandleFunc("POST /add-user", func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		_ = json.NewDecoder(r.Body).Decode(&req)
		f.mu.Lock()
		f.created = append(f.created, req["name"])
		f.mu.Unlock()
		_, _ = w.Write([]byte(`{"user_id":9}`))
	})
	mux.HandleFunc("GET /user-items/{id}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") == "7" {
			_, _ = w.Write([]byte(`[{"item_id":1,"item_name":"Screw","quantity":2}]`))
			return
		}
		_, _ = w.Write([]byte(`{"message":"no items","items":[]}`))
	})
	mux.HandleFunc("POST /create-log", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.failLogs {
			http.Error(w, `{"error":"database unavailable"}`, http.StatusServiceUnavailable)
			return
		}
		var entry models.LogEntry
		_ = json.NewDecoder(r.Body).Decode(&entry)
		f.logs = append(f.logs, entry)
		w.WriteHeader(http.StatusCreated)
	})
	return mux
}

func newTestStation(t *testing.T, backend *fakeBackend) (*station, *safeBuffer) {
	t.Helper()
	srv := httptest.NewServer(backend.handler())
	t.Cleanup(srv.Close)

	opts := &config.ClientOptions{
		BaseURL:        srv.URL,
		PollInterval:   10 * time.Millisecond,
		CountdownTick:  time.Second,
		BlockedAfter:   5,
		RequestTimeout: 2 * time.Second,
	}
	out := &safeBuffer{}
	pending := storage.New(filepath.Join(t.TempDir(), "pending.json"))
	st := newStation(context.Background(), opts, api.New(srv.URL, srv.Client(), nil).WithTimeout(opts.RequestTimeout), nil, pending, out, nil)
	st.streamEvents = false

	require.NoError(t, st.startSession())
	t.Cleanup(st.endSession)
	require.Eventually(t, st.ctrl.Ready, 2*time.Second, 5*time.Millisecond)
	return st, out
}

func run(st *station, input string, lines ...string) {
	sc := bufio.NewScanner(strings.NewReader(input))
	for _, l := range lines {
		st.exec(sc, strings.Fields(l))
	}
}

func TestStation_CommitReturnedItems(t *testing.T) {
	backend := &fakeBackend{}
	st, out := newTestStation(t, backend)
	first := st.session().ID

	run(st, "", "user alice", "dec 1", "commit end of shift")

	backend.mu.Lock()
	defer backend.mu.Unlock()
	require.Len(t, backend.logs, 1)
	entry := backend.logs[0]
	assert.Equal(t, 7, entry.UserID)
	assert.Empty(t, entry.ItemsAdded)
	assert.Equal(t, []models.ItemChange{{ItemID: 1, Quantity: 1}}, entry.ItemsReturned)
	assert.Equal(t, "end of shift", entry.Comment)

	assert.Contains(t, out.String(), "Session user: alice (#7)")
	assert.Contains(t, out.String(), "Logged 0 added, 1 returned for alice")
	require.NotNil(t, st.session())
	assert.NotEqual(t, first, st.session().ID, "commit starts a fresh session")
	assert.GreaterOrEqual(t, backend.stopScans, 1, "reader released on session end")
}

func TestStation_CommitFailureKeepsPending(t *testing.T) {
	backend := &fakeBackend{failLogs: true}
	st, out := newTestStation(t, backend)
	first := st.session().ID

	run(st, "", "user alice", "dec 1", "commit")
	require.Contains(t, out.String(), "Kept as pending")
	assert.Contains(t, out.String(), "  -1 #1\n")
	assert.Equal(t, first, st.session().ID, "a failed commit keeps the session")
	u, ok := st.session().User()
	require.True(t, ok)
	assert.Equal(t, 7, u.UserID)

	pending := st.rec.Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, 7, pending[0].UserID)

	// the same session cannot be booked twice
	run(st, "", "commit")
	assert.Contains(t, out.String(), "Session already kept as pending "+pending[0].SubmissionID)
	assert.Len(t, st.rec.Pending(), 1)

	backend.mu.Lock()
	backend.failLogs = false
	backend.mu.Unlock()

	run(st, "", "retry "+pending[0].SubmissionID)
	assert.Contains(t, out.String(), "Submission "+pending[0].SubmissionID+" logged")
	assert.Empty(t, st.rec.Pending())
	require.NotNil(t, st.session())
	assert.NotEqual(t, first, st.session().ID, "retrying the session's entry closes it")

	backend.mu.Lock()
	defer backend.mu.Unlock()
	require.Len(t, backend.logs, 1)
	assert.Equal(t, pending[0].SubmissionID, backend.logs[0].SubmissionID)
}

// look walks the trigger through one automatic capture resolving to name.
func look(t *testing.T, st *station, name string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, st.trigger.HandleEvent(ctx, events.FaceStatus{Centered: true}))
	for i := 0; i < capture.CountdownStart; i++ {
		st.trigger.Tick(ctx)
	}
	require.NoError(t, st.trigger.HandleEvent(ctx, events.RecognitionResult{Name: name}))
}

func TestStation_AutoCaptureKeepsSessionUser(t *testing.T) {
	backend := &fakeBackend{}
	st, out := newTestStation(t, backend)

	look(t, st, "alice")
	require.Contains(t, out.String(), "Session user: alice (#7)")
	state, _ := st.trigger.State()
	assert.Equal(t, capture.Suppressed, state)

	run(st, "", "dec 1", "dec 1")
	require.Equal(t, 0, st.session().Items()[0].Quantity)

	// a face lingering in front of the camera changes nothing
	look(t, st, "alice")
	st.onOutcome(capture.Outcome{Kind: capture.Identified, Name: "alice"})

	assert.Equal(t, 0, st.session().Items()[0].Quantity)
	assert.Equal(t, 1, strings.Count(out.String(), "Session user: alice"))
	backend.mu.Lock()
	assert.Equal(t, 1, backend.captures)
	backend.mu.Unlock()

	run(st, "", "auto")
	look(t, st, "alice")

	assert.Equal(t, 2, st.session().Items()[0].Quantity, "auto lets the next face reload the user")
	backend.mu.Lock()
	assert.Equal(t, 2, backend.captures)
	backend.mu.Unlock()
}

func TestStation_ManualUserPausesAutoCapture(t *testing.T) {
	st, _ := newTestStation(t, &fakeBackend{})

	run(st, "", "user alice", "dec 1")
	st.onOutcome(capture.Outcome{Kind: capture.Identified, Name: "alice"})
	assert.Equal(t, 1, st.session().Items()[0].Quantity)

	st.onOutcome(capture.Outcome{Kind: capture.NotRecognized})
	u, ok := st.session().User()
	require.True(t, ok)
	assert.Equal(t, "alice", u.Name)
}

func TestStation_UnknownUserIsCreatedOnConfirm(t *testing.T) {
	backend := &fakeBackend{}
	st, out := newTestStation(t, backend)

	run(st, "y\n", "user Bob")

	assert.Contains(t, out.String(), `User "bob" created`)
	u, ok := st.session().User()
	require.True(t, ok)
	assert.Equal(t, models.UserIdentity{UserID: 9, Name: "bob"}, u)

	backend.mu.Lock()
	defer backend.mu.Unlock()
	assert.Equal(t, []string{"bob"}, backend.created)
}

func TestStation_UnknownUserDeclined(t *testing.T) {
	backend := &fakeBackend{}
	st, _ := newTestStation(t, backend)

	run(st, "n\n", "user carol")

	_, ok := st.session().User()
	assert.False(t, ok)
	assert.Empty(t, backend.created)
}

func TestStation_SelectAndRemoveBox(t *testing.T) {
	st, out := newTestStation(t, &fakeBackend{})

	// the available list loads in the background
	require.Eventually(t, func() bool { return len(st.session().Available()) == 1 }, time.Second, 5*time.Millisecond)

	run(st, "", "select aa01")
	require.Len(t, st.session().InSession(), 1)
	assert.Empty(t, st.session().Available())

	run(st, "", "remove AA01", "remove AA01")
	assert.Empty(t, st.session().InSession())
	assert.Len(t, st.session().Available(), 1)
	assert.Contains(t, out.String(), "Box aa01 removed")
	assert.Contains(t, out.String(), "Box aa01 is not in the session")
}

func TestStation_CommandErrors(t *testing.T) {
	st, out := newTestStation(t, &fakeBackend{})

	run(st, "", "items", "add x", "commit", "read", "write 64 hello", "frobnicate")

	s := out.String()
	assert.Contains(t, s, "no user identified")
	assert.Contains(t, s, `Invalid item id "x"`)
	assert.Contains(t, s, "Usage: read <block>")
	assert.Contains(t, s, "invalid block number: 64")
	assert.Contains(t, s, `Unknown command "frobnicate"`)
}

func TestStation_UserAdmin(t *testing.T) {
	backend := &fakeBackend{}
	st, out := newTestStation(t, backend)

	run(st, "n\ny\n", "rename 9 Dave Smith", "rename 3 eve", "user alice", "deluser 7", "deluser 9", "deluser 9")

	s := out.String()
	assert.Contains(t, s, "User #9 renamed to dave smith")
	assert.Contains(t, s, "User not found")
	assert.Contains(t, s, "User #7 is the session user")
	assert.Contains(t, s, "User #9 deleted")

	backend.mu.Lock()
	defer backend.mu.Unlock()
	assert.Equal(t, []string{"9"}, backend.deleted, "declined and refused deletes never reach the backend")
}

func TestStation_Camera(t *testing.T) {
	st, out := newTestStation(t, &fakeBackend{})

	run(st, "", "camera rotate CCW", "camera spin")

	assert.Contains(t, out.String(), "Rotation: 270")
	assert.Contains(t, out.String(), "Usage: camera")
}

func TestStation_Exit(t *testing.T) {
	st, _ := newTestStation(t, &fakeBackend{})
	sc := bufio.NewScanner(strings.NewReader(""))
	assert.True(t, st.exec(sc, []string{"exit"}))
	assert.False(t, st.exec(sc, []string{"help"}))
}

func TestStation_StreamNeedsLiveSession(t *testing.T) {
	backend := &fakeBackend{}
	st, _ := newTestStation(t, backend)
	sess := st.session()

	st.closeSession(sess)
	backend.mu.Lock()
	released := backend.stopScans
	backend.mu.Unlock()
	assert.GreaterOrEqual(t, released, 1)

	assert.ErrorIs(t, st.streamTo(sess), session.ErrClosed)
}
