package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/foxseedlab/gatekeeper/internal/call"
	"github.com/foxseedlab/gatekeeper/internal/repository"
	"github.com/foxseedlab/gatekeeper/internal/token"
	"github.com/google/uuid"
)

// Hub is an in-process session transport. Call existence lives in the repository;
// membership and event subscriptions live in memory.
type Hub struct {
	repo      repository.CallRepository
	verifier  token.Verifier
	queueSize int

	mu    sync.Mutex
	rooms map[string]*room
}

type room struct {
	members     map[string]int
	subscribers map[string]*subscriber
}

type Option func(*Hub)

// WithQueueSize sets the per-subscriber delivery buffer.
func WithQueueSize(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.queueSize = n
		}
	}
}

func New(repo repository.CallRepository, verifier token.Verifier, opts ...Option) *Hub {
	h := &Hub{
		repo:      repo,
		verifier:  verifier,
		queueSize: defaultQueueSize,
		rooms:     make(map[string]*room),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Authenticate resolves a bearer token to the user id it was issued for.
func (h *Hub) Authenticate(tok string) (string, error) {
	if tok == "" {
		return "", call.ErrUnauthorized
	}
	userID, err := h.verifier.Verify(tok)
	if err != nil {
		return "", fmt.Errorf("%w: %w", call.ErrUnauthorized, err)
	}
	return userID, nil
}

// Connect binds an in-process client to verified credentials.
func (h *Hub) Connect(_ context.Context, creds call.Credentials) (call.Client, error) {
	userID, err := h.Authenticate(creds.Token)
	if err != nil {
		return nil, err
	}
	if userID != creds.User.ID {
		return nil, fmt.Errorf("%w: token issued for %q", call.ErrUnauthorized, userID)
	}
	return &client{hub: h, user: creds.User}, nil
}

func (h *Hub) Join(ctx context.Context, user call.User, callType, id string, opts call.JoinOptions) (call.State, error) {
	var (
		rec *repository.Call
		err error
	)
	if opts.Create {
		input := repository.CreateCallInput{CallType: callType, CallID: id, CreatedBy: user.ID}
		if opts.Data != nil && opts.Data.SettingsOverride != nil {
			input.RecordingQuality = opts.Data.SettingsOverride.Recording.Quality
			input.RecordingMode = opts.Data.SettingsOverride.Recording.Mode
		}
		rec, err = h.repo.CreateCall(ctx, input)
	} else {
		rec, err = h.repo.GetCall(ctx, callType, id)
	}
	if err != nil {
		return call.State{}, fmt.Errorf("lookup call %s: %w", call.CID(callType, id), err)
	}
	if rec == nil {
		return call.State{}, call.ErrCallNotFound
	}

	cid := call.CID(callType, id)
	h.mu.Lock()
	r := h.roomLocked(cid)
	r.members[user.ID]++
	count := len(r.members)
	h.mu.Unlock()

	slog.Info("participant joined call", "call_cid", cid, "user_id", user.ID, "participant_count", count, "created", opts.Create)
	return stateFrom(rec, count), nil
}

func (h *Hub) Get(ctx context.Context, callType, id string) (call.State, error) {
	rec, err := h.repo.GetCall(ctx, callType, id)
	if err != nil {
		return call.State{}, fmt.Errorf("lookup call %s: %w", call.CID(callType, id), err)
	}
	if rec == nil {
		return call.State{}, call.ErrCallNotFound
	}
	return stateFrom(rec, h.participantCount(call.CID(callType, id))), nil
}

func (h *Hub) Leave(_ context.Context, user call.User, callType, id string) error {
	cid := call.CID(callType, id)
	h.mu.Lock()
	r, ok := h.rooms[cid]
	if !ok || r.members[user.ID] == 0 {
		h.mu.Unlock()
		return nil
	}
	r.members[user.ID]--
	if r.members[user.ID] <= 0 {
		delete(r.members, user.ID)
	}
	count := len(r.members)
	h.pruneLocked(cid, r)
	h.mu.Unlock()

	slog.Info("participant left call", "call_cid", cid, "user_id", user.ID, "participant_count", count)
	return nil
}

// Send fans a custom event out to every subscriber of the call, the sender included.
func (h *Hub) Send(ctx context.Context, sender call.User, callType, id string, custom json.RawMessage) error {
	rec, err := h.repo.GetCall(ctx, callType, id)
	if err != nil {
		return fmt.Errorf("lookup call %s: %w", call.CID(callType, id), err)
	}
	if rec == nil {
		return call.ErrCallNotFound
	}

	cid := call.CID(callType, id)
	ev := call.CustomEvent{CID: cid, Sender: sender, Custom: custom, CreatedAt: time.Now().UTC()}

	h.mu.Lock()
	var targets []*subscriber
	if r, ok := h.rooms[cid]; ok {
		targets = make([]*subscriber, 0, len(r.subscribers))
		for _, s := range r.subscribers {
			targets = append(targets, s)
		}
	}
	h.mu.Unlock()

	delivered := 0
	for _, s := range targets {
		if s.trySend(ev) {
			delivered++
		}
	}
	slog.Debug("custom event published", "call_cid", cid, "sender_id", sender.ID, "delivered", delivered, "dropped", len(targets)-delivered)
	return nil
}

// Subscribe registers handler for custom events on the call. The call need not exist yet.
func (h *Hub) Subscribe(callType, id string, handler func(call.CustomEvent)) (unsubscribe func()) {
	cid := call.CID(callType, id)
	s := newSubscriber(uuid.NewString(), cid, h.queueSize, handler)

	h.mu.Lock()
	h.roomLocked(cid).subscribers[s.id] = s
	h.mu.Unlock()

	return func() {
		s.stop()
		h.mu.Lock()
		defer h.mu.Unlock()
		if r, ok := h.rooms[cid]; ok {
			delete(r.subscribers, s.id)
			h.pruneLocked(cid, r)
		}
	}
}

func (h *Hub) participantCount(cid string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if r, ok := h.rooms[cid]; ok {
		return len(r.members)
	}
	return 0
}

func (h *Hub) roomLocked(cid string) *room {
	r, ok := h.rooms[cid]
	if !ok {
		r = &room{members: make(map[string]int), subscribers: make(map[string]*subscriber)}
		h.rooms[cid] = r
	}
	return r
}

func (h *Hub) pruneLocked(cid string, r *room) {
	if len(r.members) == 0 && len(r.subscribers) == 0 {
		delete(h.rooms, cid)
	}
}

func stateFrom(rec *repository.Call, count int) call.State {
	return call.State{
		CID:       rec.CID,
		CreatedBy: rec.CreatedBy,
		Settings: call.Settings{Recording: call.RecordingSettings{
			Quality: rec.RecordingQuality,
			Mode:    rec.RecordingMode,
		}},
		ParticipantCount: count,
		CreatedAt:        rec.CreatedAt,
	}
}
