package api

import (
	"context"
	"net/http"
)

// TriggerOnce asks the camera pipeline for one recognition-quality capture.
func (c *Client) TriggerOnce(ctx context.Context) error {
	return c.call(ctx, "capture.triggerOnce", http.MethodPost, "/triggerOnce", nil, nil, nil)
}

// StartContinuous starts streaming frames over the event stream.
func (c *Client) StartContinuous(ctx context.Context) error {
	return c.call(ctx, "capture.startContinuous", http.MethodPost, "/startContinuous", nil, nil, nil)
}

// StopContinuous stops frame streaming.
func (c *Client) StopContinuous(ctx context.Context) error {
	return c.call(ctx, "capture.stopContinuous", http.MethodPost, "/stopContinuous", nil, nil, nil)
}

// SetAutoCapture toggles the backend's face-centering detector that feeds
// face_status events.
func (c *Client) SetAutoCapture(ctx context.Context, on bool) error {
	req := map[string]bool{"auto_capture": on}
	return c.call(ctx, "capture.setAutoCapture", http.MethodPost, "/setAutoCapture", nil, req, nil)
}
