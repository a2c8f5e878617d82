// Package registry talks to the external session hub that tracks the
// lifecycle of every match: one call when it starts, one when it ends.
package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Start registers a session with its two participants and stakes.
type Start struct {
	Hub     string `json:"-"`
	Game    string `json:"gameId"`
	Session uint32 `json:"sessionId"`
	PlayerA string `json:"player1"`
	PlayerB string `json:"player2"`
	StakeA  int64  `json:"player1Points"`
	StakeB  int64  `json:"player2Points"`
}

// End reports the outcome of a session.
type End struct {
	Hub        string `json:"-"`
	Session    uint32 `json:"sessionId"`
	PlayerAWon bool   `json:"player1Won"`
}

// Registry is the hub as the match engine sees it. Both calls are
// all-or-nothing: an error means the hub did not record anything.
type Registry interface {
	StartGame(ctx context.Context, req Start) error
	EndGame(ctx context.Context, req End) error
}

// Client is a Registry backed by a hub's HTTP API.
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

var _ Registry = (*Client)(nil)

func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Timeout: 5 * time.Second},
	}
}

func (c *Client) StartGame(ctx context.Context, req Start) error {
	return c.post(ctx, c.sessionsURL(req.Hub), req)
}

func (c *Client) EndGame(ctx context.Context, req End) error {
	u := c.sessionsURL(req.Hub) + "/" + strconv.FormatUint(uint64(req.Session), 10) + "/end"
	return c.post(ctx, u, req)
}

func (c *Client) sessionsURL(hub string) string {
	return c.BaseURL + "/v1/hubs/" + url.PathEscape(hub) + "/sessions"
}

func (c *Client) post(ctx context.Context, u string, body any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("registry: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("registry: %s: %s", resp.Status, strings.TrimSpace(string(msg)))
	}
	return nil
}

// Recorder is an in-process Registry that remembers every call. Setting
// FailStart or FailEnd makes the corresponding call fail without recording.
type Recorder struct {
	mu     sync.Mutex
	starts []Start
	ends   []End

	FailStart error
	FailEnd   error
}

var _ Registry = (*Recorder)(nil)

func (r *Recorder) StartGame(_ context.Context, req Start) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailStart != nil {
		return r.FailStart
	}
	r.starts = append(r.starts, req)
	return nil
}

func (r *Recorder) EndGame(_ context.Context, req End) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailEnd != nil {
		return r.FailEnd
	}
	r.ends = append(r.ends, req)
	return nil
}

// SetFailures swaps the injected failures under the lock.
func (r *Recorder) SetFailures(start, end error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.FailStart, r.FailEnd = start, end
}

func (r *Recorder) Starts() []Start {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Start(nil), r.starts...)
}

func (r *Recorder) Ends() []End {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]End(nil), r.ends...)
}
