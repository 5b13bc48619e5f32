// Package events models the camera pipeline's push channel as a closed set
// of typed events and decodes websocket messages into them.
package events

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gorilla/websocket"
)

// ErrUnknownEvent is returned by Decode for messages whose type tag is not
// recognised. Callers log and skip them.
var ErrUnknownEvent = errors.New("unknown event type")

// Event is one message of the stream: FaceStatus, RecognitionResult or Frame.
type Event interface {
	event()
}

// FaceStatus reports whether a face is well centered in front of the camera.
type FaceStatus struct {
	Centered bool
}

// RecognitionResult is the outcome of one capture. Name is empty when the
// face was not recognised.
type RecognitionResult struct {
	Name     string
	Distance *float64
}

// Recognized reports whether the result carries a name.
func (r RecognitionResult) Recognized() bool { return r.Name != "" }

// Frame is the latest camera image, opaque to the controller.
type Frame struct {
	Data []byte
}

func (FaceStatus) event()        {}
func (RecognitionResult) event() {}
func (Frame) event()             {}

// Handler receives one callback per event kind.
type Handler interface {
	FaceStatus(FaceStatus)
	RecognitionResult(RecognitionResult)
	Frame(Frame)
}

// Dispatch routes ev to the matching Handler method.
func Dispatch(ev Event, h Handler) error {
	switch e := ev.(type) {
	case FaceStatus:
		h.FaceStatus(e)
	case RecognitionResult:
		h.RecognitionResult(e)
	case Frame:
		h.Frame(e)
	default:
		return fmt.Errorf("%w: %T", ErrUnknownEvent, ev)
	}
	return nil
}

type wireMessage struct {
	Type     string   `json:"type"`
	Centered *bool    `json:"centered"`
	Status   *bool    `json:"status"`
	Name     *string  `json:"name"`
	Distance *float64 `json:"distance"`
}

// Decode turns one websocket message into an Event. Binary messages are
// frames; text messages are JSON objects tagged by "type". The backend's
// "auto_trigger" and "recognition" tags are accepted as aliases.
func Decode(messageType int, data []byte) (Event, error) {
	if messageType == websocket.BinaryMessage {
		return Frame{Data: data}, nil
	}

	var msg wireMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}

	switch msg.Type {
	case "face_status", "auto_trigger":
		centered := msg.Centered
		if centered == nil {
			centered = msg.Status
		}
		return FaceStatus{Centered: centered != nil && *centered}, nil
	case "recognition_result", "recognition":
		res := RecognitionResult{Distance: msg.Distance}
		if msg.Name != nil {
			res.Name = *msg.Name
		}
		return res, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, msg.Type)
	}
}
