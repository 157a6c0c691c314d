// Package engine is the HTTP gateway to the video analysis engine. The
// engine is a black box: this client uploads a video, derives the push
// channel address for the issued session, and fetches export artifacts.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/wastewatch/console/internal/wire"
)

// ErrNoSessionID reports an upload response that omitted the session
// identifier the handshake requires.
var ErrNoSessionID = errors.New("upload response missing session id")

// StatusError is a non-2xx engine response.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("engine returned %d: %s", e.Status, e.Body)
}

type Client struct {
	baseURL string
	client  *http.Client
}

// New creates a client targeting the given base URL (e.g. "http://127.0.0.1:5000").
func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

type uploadResponse struct {
	SID     string `json:"sid"`
	Message string `json:"message"`
	Error   string `json:"error"`
}

// Upload sends the video as a multipart POST and returns the session id the
// engine issued. A 2xx response without a sid yields ErrNoSessionID.
func (c *Client) Upload(ctx context.Context, filename, contentType string, r io.Reader) (string, error) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
		h.Set("Content-Type", contentType)
		part, err := mw.CreatePart(h)
		if err != nil {
			pw.CloseWithError(err)
			return
		}
		if _, err := io.Copy(part, r); err != nil {
			pw.CloseWithError(err)
			return
		}
		pw.CloseWithError(mw.Close())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/upload", pr)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", &StatusError{Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var out uploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode upload response: %w", err)
	}
	if out.SID == "" {
		return "", ErrNoSessionID
	}
	return out.SID, nil
}

// StreamURL derives the push channel address for a session id.
func (c *Client) StreamURL(sessionID string) string {
	ws := c.baseURL
	switch {
	case strings.HasPrefix(ws, "https://"):
		ws = "wss://" + strings.TrimPrefix(ws, "https://")
	case strings.HasPrefix(ws, "http://"):
		ws = "ws://" + strings.TrimPrefix(ws, "http://")
	}
	return ws + "/ws/" + url.PathEscape(sessionID)
}

// ExportEvents fetches the spreadsheet artifact for the given event ids.
// An empty id set exports every event the engine has.
func (c *Client) ExportEvents(ctx context.Context, ids []int64) ([]byte, error) {
	path := "/api/export/excel"
	if len(ids) > 0 {
		parts := make([]string, len(ids))
		for i, id := range ids {
			parts[i] = strconv.FormatInt(id, 10)
		}
		path += "?ids=" + strings.Join(parts, ",")
	}
	return c.getBytes(ctx, path)
}

// ExportReport fetches the per-event text report artifact.
func (c *Client) ExportReport(ctx context.Context, id int64) ([]byte, error) {
	return c.getBytes(ctx, "/api/export/report/"+strconv.FormatInt(id, 10))
}

// Events fetches the engine's current event list.
func (c *Client) Events(ctx context.Context) ([]wire.DetectionEvent, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/events", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &StatusError{Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	var events []wire.DetectionEvent
	if err := json.NewDecoder(resp.Body).Decode(&events); err != nil {
		return nil, fmt.Errorf("decode events: %w", err)
	}
	return events, nil
}

func (c *Client) getBytes(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &StatusError{Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	return io.ReadAll(resp.Body)
}
