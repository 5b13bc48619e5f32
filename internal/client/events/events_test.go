package events

import (
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode_FaceStatus(t *testing.T) {
	cases := []struct {
		name string
		body string
		want FaceStatus
	}{
		{"canonical true", `{"type":"face_status","centered":true}`, FaceStatus{Centered: true}},
		{"canonical false", `{"type":"face_status","centered":false}`, FaceStatus{}},
		{"alias", `{"type":"auto_trigger","status":true}`, FaceStatus{Centered: true}},
		{"missing flag", `{"type":"face_status"}`, FaceStatus{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ev, err := Decode(websocket.TextMessage, []byte(tc.body))
			require.NoError(t, err)
			assert.Equal(t, tc.want, ev)
		})
	}
}

func TestDecode_Recognition(t *testing.T) {
	ev, err := Decode(websocket.TextMessage, []byte(`{"type":"recognition","name":"alice","distance":0.31}`))
	require.NoError(t, err)
	res, ok := ev.(RecognitionResult)
	require.True(t, ok)
	assert.Equal(t, "alice", res.Name)
	require.NotNil(t, res.Distance)
	assert.InDelta(t, 0.31, *res.Distance, 1e-9)
	assert.True(t, res.Recognized())

	ev, err = Decode(websocket.TextMessage, []byte(`{"type":"recognition_result","name":null,"distance":null}`))
	require.NoError(t, err)
	res = ev.(RecognitionResult)
	assert.False(t, res.Recognized())
	assert.Nil(t, res.Distance)
}

func TestDecode_BinaryIsFrame(t *testing.T) {
	ev, err := Decode(websocket.BinaryMessage, []byte{0xff, 0xd8})
	require.NoError(t, err)
	assert.Equal(t, Frame{Data: []byte{0xff, 0xd8}}, ev)
}

func TestDecode_Errors(t *testing.T) {
	_, err := Decode(websocket.TextMessage, []byte(`{"type":"heartbeat"}`))
	assert.ErrorIs(t, err, ErrUnknownEvent)

	_, err = Decode(websocket.TextMessage, []byte(`not-json`))
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnknownEvent)
}

type recordingHandler struct {
	got []string
}

func (r *recordingHandler) FaceStatus(FaceStatus)               { r.got = append(r.got, "face") }
func (r *recordingHandler) RecognitionResult(RecognitionResult) { r.got = append(r.got, "recognition") }
func (r *recordingHandler) Frame(Frame)                         { r.got = append(r.got, "frame") }

func TestDispatch(t *testing.T) {
	h := &recordingHandler{}
	for _, ev := range []Event{FaceStatus{}, Frame{}, RecognitionResult{}} {
		require.NoError(t, Dispatch(ev, h))
	}
	assert.Equal(t, []string{"face", "frame", "recognition"}, h.got)

	assert.ErrorIs(t, Dispatch(nil, h), ErrUnknownEvent)
}

func TestFrameHolder_KeepsLatest(t *testing.T) {
	h := NewFrameHolder()
	_, _, ok := h.Latest()
	assert.False(t, ok)

	h.Put(Frame{Data: []byte("1")})
	h.Put(Frame{Data: []byte("2")})
	h.Put(Frame{Data: []byte("3")})

	f, seq, ok := h.Latest()
	require.True(t, ok)
	assert.Equal(t, []byte("3"), f.Data)
	assert.Equal(t, uint64(3), seq)

	// three puts coalesce into a single pending signal
	<-h.Updates()
	select {
	case <-h.Updates():
		t.Fatal("expected a single coalesced update")
	default:
	}
}
