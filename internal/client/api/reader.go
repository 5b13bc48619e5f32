package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
)

type scanResponse struct {
	Message string          `json:"message"`
	UID     json.RawMessage `json:"uid"`
}

// InitializeReader asks the backend to initialize the RFID reader.
func (c *Client) InitializeReader(ctx context.Context) error {
	return c.call(ctx, "reader.initialize", http.MethodPost, "/initialize", nil, nil, nil)
}

// CloseReader asks the backend to close the RFID reader.
func (c *Client) CloseReader(ctx context.Context) error {
	return c.call(ctx, "reader.close", http.MethodPost, "/close", nil, nil, nil)
}

// StopScan interrupts any scan currently blocking on the backend.
func (c *Client) StopScan(ctx context.Context) error {
	return c.call(ctx, "reader.stopScan", http.MethodPost, "/stopscan", nil, nil, nil)
}

// ScanOnce performs a single scan. ok is false when no tag was present.
func (c *Client) ScanOnce(ctx context.Context) (uid string, ok bool, err error) {
	var resp scanResponse
	if err := c.call(ctx, "reader.scanOnce", http.MethodPost, "/scan", nil, nil, &resp); err != nil {
		return "", false, err
	}
	uid = rawText(resp.UID)
	return uid, uid != "", nil
}

// ScanContinuous scans until a tag is detected or the scan is stopped.
// ok is false when the backend returned without a tag. The backend holds
// the request open while the field is empty, so only ctx bounds it.
func (c *Client) ScanContinuous(ctx context.Context) (uid string, ok bool, err error) {
	var resp scanResponse
	if err := c.send(ctx, "reader.scanContinuous", http.MethodPost, "/scancont", nil, nil, &resp); err != nil {
		return "", false, err
	}
	uid = rawText(resp.UID)
	return uid, uid != "", nil
}

// ReadBlock reads a data block from the tag currently on the reader.
func (c *Client) ReadBlock(ctx context.Context, block int) ([]byte, error) {
	var resp struct {
		UID  json.RawMessage `json:"uid"`
		Data json.RawMessage `json:"data"`
	}
	req := map[string]int{"block": block}
	if err := c.call(ctx, "reader.readBlock", http.MethodPost, "/read", nil, req, &resp); err != nil {
		return nil, err
	}
	return blockBytes(resp.Data), nil
}

// WriteBlock writes data to a block of the tag currently on the reader.
func (c *Client) WriteBlock(ctx context.Context, block int, data []byte) error {
	req := map[string]any{"block": block, "data": string(data)}
	return c.call(ctx, "reader.writeBlock", http.MethodPost, "/write", nil, req, nil)
}

// rawText renders a JSON string or number as plain text; null and absent
// values yield "".
func rawText(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	return strings.Trim(string(raw), `"`)
}

// blockBytes accepts block data encoded either as a JSON string or as an
// array of byte values.
func blockBytes(raw json.RawMessage) []byte {
	var values []int
	if json.Unmarshal(raw, &values) == nil {
		out := make([]byte, len(values))
		for i, v := range values {
			out[i] = byte(v)
		}
		return out
	}
	return []byte(rawText(raw))
}
