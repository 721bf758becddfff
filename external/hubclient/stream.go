package hubclient

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/foxseedlab/gatekeeper/internal/call"
	"github.com/gorilla/websocket"
)

const (
	dialTimeout        = 10 * time.Second
	reconnectBaseDelay = 500 * time.Millisecond
	reconnectMaxDelay  = 30 * time.Second
	pongTimeout        = 60 * time.Second
)

// stream keeps one websocket subscription to a call's custom events open until stopped.
type stream struct {
	client  *Client
	url     string
	handler func(call.CustomEvent)

	ctx    context.Context
	cancel context.CancelFunc

	mu   sync.Mutex
	conn *websocket.Conn
}

func newStream(c *Client, path string, handler func(call.CustomEvent)) *stream {
	ctx, cancel := context.WithCancel(context.Background())
	return &stream{
		client:  c,
		url:     wsURL(c.baseURL) + path,
		handler: handler,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// start dials once synchronously so events sent right after OnCustom returns are not
// missed, then keeps the subscription alive in the background. A failed first dial
// is returned and nothing keeps running.
func (s *stream) start() error {
	conn, err := s.dial()
	if err != nil {
		s.cancel()
		return fmt.Errorf("subscribe to call events: %w", err)
	}
	go s.run(conn)
	return nil
}

func (s *stream) stop() {
	s.cancel()
	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
}

func (s *stream) dial() (*websocket.Conn, error) {
	ctx, cancel := context.WithTimeout(s.ctx, dialTimeout)
	defer cancel()
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.url, s.client.authHeader())
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	if s.ctx.Err() != nil {
		s.mu.Unlock()
		_ = conn.Close()
		return nil, s.ctx.Err()
	}
	s.conn = conn
	s.mu.Unlock()
	return conn, nil
}

func (s *stream) run(conn *websocket.Conn) {
	delay := reconnectBaseDelay
	for {
		if conn != nil {
			delay = reconnectBaseDelay
			s.read(conn)
		}
		if s.ctx.Err() != nil {
			return
		}
		select {
		case <-s.ctx.Done():
			return
		case <-time.After(delay):
		}
		delay = min(delay*2, reconnectMaxDelay)

		var err error
		conn, err = s.dial()
		if err != nil && s.ctx.Err() == nil {
			slog.Warn("call event stream reconnect failed", "error", err, "url", s.url, "retry_in", delay)
		}
	}
}

func (s *stream) read(conn *websocket.Conn) {
	defer func() {
		_ = conn.Close()
	}()
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongTimeout))
	})
	_ = conn.SetReadDeadline(time.Now().Add(pongTimeout))
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if s.ctx.Err() == nil {
				slog.Debug("call event stream closed", "error", err, "url", s.url)
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongTimeout))
		var ev call.CustomEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			slog.Warn("invalid call event frame", "error", err)
			continue
		}
		if s.ctx.Err() != nil {
			return
		}
		s.handler(ev)
	}
}

func wsURL(base string) string {
	switch {
	case strings.HasPrefix(base, "https://"):
		return "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		return "ws://" + strings.TrimPrefix(base, "http://")
	default:
		return base
	}
}
