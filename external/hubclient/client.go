package hubclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/foxseedlab/gatekeeper/internal/call"
)

const requestTimeout = 10 * time.Second

var errClientClosed = errors.New("call client closed")

type errorResponse struct {
	Error string `json:"error"`
}

// Client talks to a remote call hub over HTTP and websocket.
type Client struct {
	baseURL string
	http    *http.Client
	creds   call.Credentials

	mu     sync.Mutex
	closed bool
	subs   map[*stream]struct{}
}

// NewConnector returns a call.Connector for the hub at baseURL.
func NewConnector(baseURL string) call.Connector {
	base := strings.TrimRight(baseURL, "/")
	return func(_ context.Context, creds call.Credentials) (call.Client, error) {
		if creds.Token == "" {
			return nil, call.ErrUnauthorized
		}
		if _, err := url.Parse(base); err != nil {
			return nil, fmt.Errorf("invalid call hub url: %w", err)
		}
		return &Client{
			baseURL: base,
			http:    &http.Client{Timeout: requestTimeout},
			creds:   creds,
			subs:    make(map[*stream]struct{}),
		}, nil
	}
}

func (c *Client) Call(callType, id string) call.Call {
	return &remoteCall{client: c, callType: callType, id: id}
}

// Close stops every event stream opened through this client.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	subs := c.subs
	c.subs = nil
	c.mu.Unlock()

	for s := range subs {
		s.stop()
	}
	return nil
}

func (c *Client) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Client) track(s *stream) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.subs[s] = struct{}{}
	return true
}

func (c *Client) untrack(s *stream) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.subs, s)
}

func (c *Client) callPath(callType, id string) string {
	return "/api/calls/" + url.PathEscape(callType) + "/" + url.PathEscape(id)
}

func (c *Client) authHeader() http.Header {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+c.creds.Token)
	h.Set(call.UserNameHeader, c.creds.User.Name)
	return h
}

// do sends body as JSON and decodes a JSON response into out when out is non-nil.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	if c.isClosed() {
		return errClientClosed
	}
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header = c.authHeader()
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return call.ErrCallNotFound
	case resp.StatusCode == http.StatusUnauthorized:
		return call.ErrUnauthorized
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		var e errorResponse
		_ = json.NewDecoder(resp.Body).Decode(&e)
		if e.Error != "" {
			return fmt.Errorf("call hub returned status %d: %s", resp.StatusCode, e.Error)
		}
		return fmt.Errorf("call hub returned status %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode call hub response: %w", err)
	}
	return nil
}
