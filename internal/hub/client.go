package hub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/foxseedlab/gatekeeper/internal/call"
)

var errClientClosed = errors.New("call client closed")

type client struct {
	hub  *Hub
	user call.User

	mu     sync.Mutex
	closed bool
	calls  []*callHandle
}

func (c *client) Call(callType, id string) call.Call {
	h := &callHandle{client: c, callType: callType, id: id, subs: make(map[int]func())}
	c.mu.Lock()
	c.calls = append(c.calls, h)
	c.mu.Unlock()
	return h
}

// Close drops every subscription made through this client. Joined calls are left
// to their owners.
func (c *client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	calls := c.calls
	c.calls = nil
	c.mu.Unlock()

	for _, h := range calls {
		h.unsubscribeAll()
	}
	return nil
}

func (c *client) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

type callHandle struct {
	client   *client
	callType string
	id       string

	mu      sync.Mutex
	state   call.State
	subs    map[int]func()
	nextSub int
}

func (h *callHandle) CID() string { return call.CID(h.callType, h.id) }

func (h *callHandle) Join(ctx context.Context, opts call.JoinOptions) error {
	if h.client.isClosed() {
		return errClientClosed
	}
	st, err := h.client.hub.Join(ctx, h.client.user, h.callType, h.id, opts)
	if err != nil {
		return err
	}
	h.setState(st)
	return nil
}

func (h *callHandle) Get(ctx context.Context) (call.State, error) {
	if h.client.isClosed() {
		return call.State{}, errClientClosed
	}
	st, err := h.client.hub.Get(ctx, h.callType, h.id)
	if err != nil {
		return call.State{}, err
	}
	h.setState(st)
	return st, nil
}

func (h *callHandle) State() call.State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

func (h *callHandle) SendCustomEvent(ctx context.Context, custom any) error {
	if h.client.isClosed() {
		return errClientClosed
	}
	raw, err := json.Marshal(custom)
	if err != nil {
		return fmt.Errorf("encode custom event: %w", err)
	}
	return h.client.hub.Send(ctx, h.client.user, h.callType, h.id, raw)
}

func (h *callHandle) OnCustom(handler func(call.CustomEvent)) (func(), error) {
	if h.client.isClosed() {
		return nil, errClientClosed
	}
	unsubscribe := h.client.hub.Subscribe(h.callType, h.id, handler)
	h.mu.Lock()
	key := h.nextSub
	h.nextSub++
	h.subs[key] = unsubscribe
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, key)
			h.mu.Unlock()
			unsubscribe()
		})
	}, nil
}

func (h *callHandle) Leave(ctx context.Context) error {
	return h.client.hub.Leave(ctx, h.client.user, h.callType, h.id)
}

func (h *callHandle) unsubscribeAll() {
	h.mu.Lock()
	subs := h.subs
	h.subs = make(map[int]func())
	h.mu.Unlock()
	for _, unsubscribe := range subs {
		unsubscribe()
	}
}

func (h *callHandle) setState(st call.State) {
	h.mu.Lock()
	h.state = st
	h.mu.Unlock()
}
