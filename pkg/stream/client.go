package stream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const (
	HeaderUserID = "X-User-ID"
	HeaderOrgID  = "X-Organization-ID"

	streamPath = "/api/v1/chat/stream"
)

var errNoTerminal = errors.New("stream ended without a terminal event")

// Client consumes the HTTP chat stream and tracks sessions with a Manager.
type Client struct {
	baseURL  string
	userID   string
	orgID    string
	http     *http.Client
	sessions *Manager
}

func NewClient(baseURL, userID, orgID string) *Client {
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		userID:   userID,
		orgID:    orgID,
		http:     &http.Client{},
		sessions: NewManager(),
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func (c *Client) WithHTTPClient(h *http.Client) *Client {
	c.http = h
	return c
}

func (c *Client) Sessions() *Manager {
	return c.sessions
}

// Cancel aborts the active stream, if any.
func (c *Client) Cancel() {
	c.sessions.Cancel()
}

// Stream sends query and blocks until its session ends. onDelta receives the
// session's content deltas in order.
func (c *Client) Stream(ctx context.Context, query string, onDelta func(string)) (*Message, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	id, err := c.sessions.Begin(query, cancel)
	if err != nil {
		return nil, err
	}

	resp, err := c.post(ctx, query)
	if err != nil {
		return nil, c.fail(ctx, id, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, c.fail(ctx, id, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, bytes.TrimSpace(msg)))
	}

	r := NewReader(resp.Body)
	for {
		ev, err := r.Next()
		if errors.Is(err, ErrMalformedFrame) {
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil, c.fail(ctx, id, errNoTerminal)
		}
		if err != nil {
			return nil, c.fail(ctx, id, err)
		}

		ev.SessionID = id
		if ev.Kind == KindDelta && onDelta != nil && c.sessions.ActiveID() == id {
			onDelta(ev.Content)
		}

		msg, err := c.sessions.Deliver(ev)
		if err != nil {
			return nil, err
		}
		if msg != nil {
			return msg, nil
		}
		if c.sessions.ActiveID() != id {
			// cancelled locally
			return nil, context.Canceled
		}
	}
}

func (c *Client) post(ctx context.Context, query string) (*http.Response, error) {
	body, err := json.Marshal(map[string]string{"query": query})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+streamPath, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set(HeaderUserID, c.userID)
	req.Header.Set(HeaderOrgID, c.orgID)

	return c.http.Do(req)
}

func (c *Client) fail(ctx context.Context, id string, err error) error {
	if ctx.Err() != nil {
		err = ctx.Err()
	}
	if serr := c.sessions.Fail(id, err); serr != nil && ctx.Err() == nil {
		return serr
	}
	return err
}
