package api

import (
	"context"
	"net/http"
)

// VisionSettings are the camera pipeline toggles kept by the backend.
type VisionSettings struct {
	ShowFeatures bool `json:"is_show_features"`
	AutoCapture  bool `json:"is_auto_capture"`
}

// VisionSettings reads the current pipeline toggles.
func (c *Client) VisionSettings(ctx context.Context) (VisionSettings, error) {
	var s VisionSettings
	err := c.call(ctx, "vision.settings", http.MethodGet, "/vision-settings", nil, nil, &s)
	return s, err
}

// SetShowFeatures turns the face landmark overlay on or off and returns the
// value the backend now holds.
func (c *Client) SetShowFeatures(ctx context.Context, on bool) (bool, error) {
	var resp struct {
		ShowFeatures bool `json:"is_show_features"`
	}
	req := map[string]bool{"show_features": on}
	err := c.call(ctx, "vision.setShowFeatures", http.MethodPost, "/setShowFeatures", nil, req, &resp)
	return resp.ShowFeatures, err
}

// RotateCW turns the camera image 90 degrees clockwise and returns the new
// angle.
func (c *Client) RotateCW(ctx context.Context) (int, error) {
	return c.rotate(ctx, "vision.rotateCW", "/rotateCW")
}

// RotateCCW turns the camera image 90 degrees counter-clockwise.
func (c *Client) RotateCCW(ctx context.Context) (int, error) {
	return c.rotate(ctx, "vision.rotateCCW", "/rotateCCW")
}

func (c *Client) rotate(ctx context.Context, op, path string) (int, error) {
	var resp struct {
		Angle int `json:"rotation_angle"`
	}
	err := c.call(ctx, op, http.MethodPost, path, nil, nil, &resp)
	return resp.Angle, err
}

// FlipH toggles the horizontal mirror and returns whether it is now on.
func (c *Client) FlipH(ctx context.Context) (bool, error) {
	var resp struct {
		On bool `json:"flip_horizontal"`
	}
	err := c.call(ctx, "vision.flipH", http.MethodPost, "/flipH", nil, nil, &resp)
	return resp.On, err
}

// FlipV toggles the vertical mirror.
func (c *Client) FlipV(ctx context.Context) (bool, error) {
	var resp struct {
		On bool `json:"flip_vertical"`
	}
	err := c.call(ctx, "vision.flipV", http.MethodPost, "/flipV", nil, nil, &resp)
	return resp.On, err
}
