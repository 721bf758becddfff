package hubclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/foxseedlab/gatekeeper/internal/call"
)

type sendEventRequest struct {
	Custom json.RawMessage `json:"custom"`
}

type remoteCall struct {
	client   *Client
	callType string
	id       string

	mu    sync.Mutex
	state call.State
}

func (r *remoteCall) CID() string { return call.CID(r.callType, r.id) }

func (r *remoteCall) Join(ctx context.Context, opts call.JoinOptions) error {
	var st call.State
	if err := r.client.do(ctx, http.MethodPost, r.client.callPath(r.callType, r.id)+"/join", opts, &st); err != nil {
		return err
	}
	r.setState(st)
	return nil
}

func (r *remoteCall) Get(ctx context.Context) (call.State, error) {
	var st call.State
	if err := r.client.do(ctx, http.MethodGet, r.client.callPath(r.callType, r.id), nil, &st); err != nil {
		return call.State{}, err
	}
	r.setState(st)
	return st, nil
}

func (r *remoteCall) State() call.State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *remoteCall) SendCustomEvent(ctx context.Context, custom any) error {
	raw, err := json.Marshal(custom)
	if err != nil {
		return fmt.Errorf("encode custom event: %w", err)
	}
	return r.client.do(ctx, http.MethodPost, r.client.callPath(r.callType, r.id)+"/events", sendEventRequest{Custom: raw}, nil)
}

func (r *remoteCall) OnCustom(handler func(call.CustomEvent)) (func(), error) {
	s := newStream(r.client, r.client.callPath(r.callType, r.id)+"/events/ws", handler)
	if !r.client.track(s) {
		s.stop()
		return nil, errClientClosed
	}
	if err := s.start(); err != nil {
		r.client.untrack(s)
		return nil, err
	}
	return func() {
		s.stop()
		r.client.untrack(s)
	}, nil
}

func (r *remoteCall) Leave(ctx context.Context) error {
	return r.client.do(ctx, http.MethodPost, r.client.callPath(r.callType, r.id)+"/leave", nil, nil)
}

func (r *remoteCall) setState(st call.State) {
	r.mu.Lock()
	r.state = st
	r.mu.Unlock()
}
