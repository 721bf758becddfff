package admission

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/foxseedlab/gatekeeper/internal/call"
	"github.com/foxseedlab/gatekeeper/internal/identity"
	"github.com/foxseedlab/gatekeeper/internal/notify"
)

type mockIssuer struct {
	token string
	err   error
	block bool
	calls int
	mu    sync.Mutex
}

func (m *mockIssuer) GetToken(ctx context.Context, _ string) (string, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if m.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return m.token, m.err
}

type mockCall struct {
	mu       sync.Mutex
	cid      string
	getFn    func(n int) (call.State, error)
	gets     int
	joinErr  error
	onJoin   func()
	joins    []call.JoinOptions
	sendErr  error
	sent     []signal
	handlers map[int]func(call.CustomEvent)
	nextSub  int
	// subFails makes the next n OnCustom calls fail; onSubscribe runs before each.
	subFails    int
	subAttempts int
	onSubscribe func()
	// unheard counts signals sent while nothing was subscribed.
	unheard int
	leaves   int
	state    call.State
}

func newMockCall(getFn func(n int) (call.State, error)) *mockCall {
	return &mockCall{
		cid:      call.CID(call.DefaultType, "A1"),
		getFn:    getFn,
		handlers: make(map[int]func(call.CustomEvent)),
	}
}

func (m *mockCall) CID() string { return m.cid }

func (m *mockCall) Join(_ context.Context, opts call.JoinOptions) error {
	m.mu.Lock()
	m.joins = append(m.joins, opts)
	hook := m.onJoin
	err := m.joinErr
	m.mu.Unlock()
	if hook != nil {
		hook()
	}
	return err
}

func (m *mockCall) Get(_ context.Context) (call.State, error) {
	m.mu.Lock()
	m.gets++
	n := m.gets
	fn := m.getFn
	m.mu.Unlock()
	if fn == nil {
		return call.State{ParticipantCount: 1}, nil
	}
	st, err := fn(n)
	if err == nil {
		m.mu.Lock()
		m.state = st
		m.mu.Unlock()
	}
	return st, err
}

func (m *mockCall) State() call.State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *mockCall) SendCustomEvent(_ context.Context, custom any) error {
	b, err := json.Marshal(custom)
	if err != nil {
		return err
	}
	var s signal
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return m.sendErr
	}
	if len(m.handlers) == 0 {
		m.unheard++
	}
	m.sent = append(m.sent, s)
	return nil
}

func (m *mockCall) OnCustom(handler func(call.CustomEvent)) (func(), error) {
	m.mu.Lock()
	m.subAttempts++
	hook := m.onSubscribe
	m.mu.Unlock()
	if hook != nil {
		hook()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.subFails > 0 {
		m.subFails--
		return nil, errors.New("event stream refused")
	}
	id := m.nextSub
	m.nextSub++
	m.handlers[id] = handler
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.handlers, id)
	}, nil
}

func (m *mockCall) unheardCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.unheard
}

func (m *mockCall) subscribeAttempts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.subAttempts
}

func (m *mockCall) Leave(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.leaves++
	return nil
}

// deliver dispatches a custom event to every current subscriber on the caller's goroutine.
func (m *mockCall) deliver(t *testing.T, sender call.User, sig signal) {
	t.Helper()
	raw, err := json.Marshal(sig)
	if err != nil {
		t.Fatalf("marshal signal: %v", err)
	}
	m.mu.Lock()
	handlers := make([]func(call.CustomEvent), 0, len(m.handlers))
	for _, h := range m.handlers {
		handlers = append(handlers, h)
	}
	m.mu.Unlock()
	for _, h := range handlers {
		h(call.CustomEvent{CID: m.cid, Sender: sender, Custom: raw, CreatedAt: time.Now()})
	}
}

func (m *mockCall) sentSignals() []signal {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]signal(nil), m.sent...)
}

func (m *mockCall) sentOfType(typ string) []signal {
	var out []signal
	for _, s := range m.sentSignals() {
		if s.Type == typ {
			out = append(out, s)
		}
	}
	return out
}

func (m *mockCall) getCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gets
}

func (m *mockCall) subscriberCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.handlers)
}

func (m *mockCall) leaveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.leaves
}

type mockClient struct {
	call   *mockCall
	mu     sync.Mutex
	closed int
}

func (m *mockClient) Call(_, _ string) call.Call { return m.call }
func (m *mockClient) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed++
	return nil
}

type mockNotifier struct {
	mu        sync.Mutex
	perm      notify.Permission
	grantOn   bool
	requested int
	sent      []notify.Notification
}

func (m *mockNotifier) Permission(context.Context) notify.Permission {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.perm
}

func (m *mockNotifier) RequestPermission(context.Context) (notify.Permission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requested++
	if m.grantOn {
		m.perm = notify.PermissionGranted
	}
	return m.perm, nil
}

func (m *mockNotifier) Notify(_ context.Context, n notify.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, n)
	return nil
}

func (m *mockNotifier) sentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

func testOptions() Options {
	return Options{
		CallType:               call.DefaultType,
		MaxParticipants:        2,
		ApprovalTimeoutSeconds: 20,
		CountdownTick:          5 * time.Millisecond,
		PollInterval:           10 * time.Millisecond,
		FullRetryDelay:         40 * time.Millisecond,
		Recording:              call.RecordingSettings{Quality: "360p", Mode: "available"},
	}
}

type harness struct {
	ctrl     *Controller
	call     *mockCall
	client   *mockClient
	issuer   *mockIssuer
	notifier *mockNotifier
	connects int
}

func newHarness(t *testing.T, opts Options, name string, role Role, mc *mockCall) *harness {
	t.Helper()
	p, err := identity.New(name)
	if err != nil {
		t.Fatalf("identity: %v", err)
	}
	h := &harness{
		call:     mc,
		client:   &mockClient{call: mc},
		issuer:   &mockIssuer{token: "token-" + p.ID},
		notifier: &mockNotifier{},
	}
	connect := func(_ context.Context, creds call.Credentials) (call.Client, error) {
		h.connects++
		if creds.Token == "" || creds.User.ID != p.ID {
			t.Errorf("unexpected credentials: %+v", creds)
		}
		return h.client, nil
	}
	h.ctrl = NewController(opts, h.issuer, connect, h.notifier, p, SessionRef{SessionID: "A1", Role: role})
	t.Cleanup(func() { _ = h.ctrl.Close() })
	return h
}

var (
	janeDoe = call.User{ID: "jane_doe", Name: "Jane Doe"}
	johnRoe = call.User{ID: "john_roe", Name: "John Roe"}
	doctor  = call.User{ID: "dr_who", Name: "Dr Who"}
)

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool, message string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(message)
}
