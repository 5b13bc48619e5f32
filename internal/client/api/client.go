// Package api implements the station's RequestChannel: request/response
// calls to the reader, the camera pipeline and the inventory CRUD endpoints,
// all served over HTTP by the backend.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/rfidvision/rfidlog/internal/logger"
)

// ErrNotFound is matched (errors.Is) by StatusErrors carrying a 404.
var ErrNotFound = errors.New("not found")

// TransportError reports a request that did not complete: no response was
// received at all.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string { return fmt.Sprintf("%s failed: %v", e.Op, e.Err) }

// Unwrap returns the underlying network error.
func (e *TransportError) Unwrap() error { return e.Err }

// StatusError reports a response with a non-2xx status code.
type StatusError struct {
	Op      string
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: server error %d: %s", e.Op, e.Code, e.Message)
}

// Is makes a 404 StatusError match ErrNotFound.
func (e *StatusError) Is(target error) bool {
	return target == ErrNotFound && e.Code == http.StatusNotFound
}

// Client talks to the backend. It is safe for concurrent use.
type Client struct {
	http    *http.Client
	baseURL string
	timeout time.Duration
	log     *zap.Logger
}

// New returns a Client rooted at baseURL. A nil httpClient uses
// http.DefaultClient.
func New(baseURL string, httpClient *http.Client, log *zap.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		http:    httpClient,
		baseURL: strings.TrimRight(baseURL, "/"),
		log:     logger.OrNop(log),
	}
}

// WithTimeout bounds every call except the blocking continuous scan, which
// only ends with a tag, a stop-scan or its context.
func (c *Client) WithTimeout(d time.Duration) *Client {
	c.timeout = d
	return c
}

// call sends one request bounded by the client timeout. in is JSON-encoded
// when non-nil, out is decoded from a 2xx response when non-nil.
func (c *Client) call(ctx context.Context, op, method, path string, header http.Header, in, out any) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	return c.send(ctx, op, method, path, header, in, out)
}

func (c *Client) send(ctx context.Context, op, method, path string, header http.Header, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: encode request: %w", op, err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return &StatusError{Op: op, Code: resp.StatusCode, Message: errorMessage(data)}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: invalid response: %w", op, err)
	}
	return nil
}

// errorMessage extracts the human readable part of an error body. The
// backend answers either {"message": ...}, {"detail": ...} or plain text.
func errorMessage(data []byte) string {
	var payload struct {
		Message string `json:"message"`
		Detail  any    `json:"detail"`
	}
	if json.Unmarshal(data, &payload) == nil {
		if payload.Message != "" {
			return payload.Message
		}
		if s, ok := payload.Detail.(string); ok && s != "" {
			return s
		}
	}
	return strings.TrimSpace(string(data))
}
