package httpapi

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsPongTimeout  = 60 * time.Second
	wsPingInterval = 30 * time.Second
)

// safeWS serializes writes; gorilla connections allow one concurrent writer.
type safeWS struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func newSafeWS(conn *websocket.Conn) *safeWS {
	return &safeWS{conn: conn}
}

func (s *safeWS) WriteJSON(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return s.conn.WriteJSON(v)
}

func (s *safeWS) ping() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout))
}

// keepAlive extends the read deadline on every pong and pings until ctx is done.
func (s *safeWS) keepAlive(ctx context.Context) {
	_ = s.conn.SetReadDeadline(time.Now().Add(wsPongTimeout))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(wsPongTimeout))
	})

	go func() {
		ticker := time.NewTicker(wsPingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := s.ping(); err != nil {
					slog.Debug("websocket ping failed", "error", err)
					return
				}
			}
		}
	}()
}

func (s *safeWS) touch() {
	_ = s.conn.SetReadDeadline(time.Now().Add(wsPongTimeout))
}
