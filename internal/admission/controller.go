package admission

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/foxseedlab/gatekeeper/internal/call"
	"github.com/foxseedlab/gatekeeper/internal/config"
	"github.com/foxseedlab/gatekeeper/internal/identity"
	"github.com/foxseedlab/gatekeeper/internal/notify"
	"github.com/foxseedlab/gatekeeper/internal/token"
)

const leaveTimeout = 5 * time.Second

type Options struct {
	CallType                      string
	MaxParticipants               int
	ApprovalTimeoutSeconds        int
	CountdownTick                 time.Duration
	PollInterval                  time.Duration
	FullRetryDelay                time.Duration
	Recording                     call.RecordingSettings
	RequestNotificationPermission bool
}

func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		CallType:               cfg.CallType,
		MaxParticipants:        cfg.MaxParticipants,
		ApprovalTimeoutSeconds: cfg.ApprovalTimeoutSeconds,
		CountdownTick:          cfg.CountdownTick,
		PollInterval:           cfg.PollInterval,
		FullRetryDelay:         cfg.FullRetryDelay,
		Recording: call.RecordingSettings{
			Quality: cfg.RecordingQuality,
			Mode:    cfg.RecordingMode,
		},
		RequestNotificationPermission: cfg.RequestNotificationPermission,
	}
}

// Controller drives one participant through admission into one session.
// It owns the session client and call handle and releases both in Close.
type Controller struct {
	opts        Options
	tokens      token.Issuer
	connect     call.Connector
	notifier    notify.Notifier
	participant identity.Participant
	ref         SessionRef

	lifecycle context.Context
	cancel    context.CancelFunc
	poll      *poller
	fullRetry *delayedCall
	changed   chan struct{}

	mu              sync.Mutex
	started         bool
	closed          bool
	state           State
	err             error
	client          call.Client
	call            call.Call
	joined          bool
	unsubscribe     func()
	pending         *JoinRequest
	cycle           uint64
	countdown       int
	countdownCancel context.CancelFunc
	activeRequestID string
	fullRetries     int
}

func NewController(opts Options, tokens token.Issuer, connect call.Connector, notifier notify.Notifier, p identity.Participant, ref SessionRef) *Controller {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	if opts.CallType == "" {
		opts.CallType = call.DefaultType
	}
	lifecycle, cancel := context.WithCancel(context.Background())
	return &Controller{
		opts:        opts,
		tokens:      tokens,
		connect:     connect,
		notifier:    notifier,
		participant: p,
		ref:         ref,
		lifecycle:   lifecycle,
		cancel:      cancel,
		poll:        newPoller(opts.PollInterval),
		fullRetry:   &delayedCall{},
		changed:     make(chan struct{}, 1),
		state:       StateInitializing,
		countdown:   opts.ApprovalTimeoutSeconds,
	}
}

// Changed signals, coalesced, that Snapshot may return something new.
func (c *Controller) Changed() <-chan struct{} { return c.changed }

// Done is closed once the controller has been torn down.
func (c *Controller) Done() <-chan struct{} { return c.lifecycle.Done() }

func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := Snapshot{
		State:       c.state,
		Role:        c.ref.Role,
		SessionID:   c.ref.SessionID,
		Participant: c.participant,
		Countdown:   c.countdown,
		FullRetries: c.fullRetries,
		Err:         c.err,
	}
	if c.pending != nil {
		req := *c.pending
		s.Pending = &req
	}
	return s
}

// Start acquires a credential, connects, and enters the role-specific path.
// A credential or host-side create failure is fatal: it is returned, recorded on the
// snapshot, and the state stays Initializing. No retry is attempted.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.started {
		c.mu.Unlock()
		return ErrAlreadyStarted
	}
	c.started = true
	c.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(c.lifecycle, cancel)
	defer stop()

	slog.Info("admission starting", "session_id", c.ref.SessionID, "user_id", c.participant.ID, "role", c.ref.Role.String())
	tok, err := c.tokens.GetToken(ctx, c.participant.ID)
	if err == nil && tok == "" {
		err = token.ErrNoToken
	}
	if err != nil {
		return c.fail(fmt.Errorf("%w: %w", ErrCredential, err))
	}

	client, err := c.connect(ctx, call.Credentials{
		User:  call.User{ID: c.participant.ID, Name: c.participant.DisplayName},
		Token: tok,
	})
	if err != nil {
		return c.fail(fmt.Errorf("%w: connect: %w", ErrCredential, err))
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = client.Close()
		return ErrClosed
	}
	c.client = client
	c.call = client.Call(c.opts.CallType, c.ref.SessionID)
	c.mu.Unlock()

	if c.ref.Role == RoleHost {
		return c.startHost(ctx)
	}
	return c.startJoiner(ctx)
}

// Close tears the controller down. It is idempotent and safe before Start completes.
func (c *Controller) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	unsubscribe := c.unsubscribe
	c.unsubscribe = nil
	joined := c.joined
	c.joined = false
	handle := c.call
	client := c.client
	c.pending = nil
	c.clearCountdownLocked()
	c.mu.Unlock()

	c.cancel()
	c.poll.stop()
	c.fullRetry.stop()
	if unsubscribe != nil {
		unsubscribe()
	}

	var errs []error
	if joined && handle != nil {
		if err := leaveDetached(handle); err != nil {
			errs = append(errs, err)
		}
	}
	if client != nil {
		if err := client.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close session client: %w", err))
		}
	}
	slog.Info("admission closed", "session_id", c.ref.SessionID, "user_id", c.participant.ID, "left_session", joined)
	return errors.Join(errs...)
}

func leaveDetached(handle call.Call) error {
	ctx, cancel := context.WithTimeout(context.Background(), leaveTimeout)
	defer cancel()
	if err := handle.Leave(ctx); err != nil {
		slog.Error("failed to leave session", "error", err, "call_cid", handle.CID())
		return fmt.Errorf("leave session: %w", err)
	}
	return nil
}

// keepSubscription stores a subscription made without holding mu. It reports false,
// releasing the subscription, when the controller closed in the meantime. A second
// subscription is released too; the first one stays.
func (c *Controller) keepSubscription(unsubscribe func()) bool {
	c.mu.Lock()
	if c.closed || c.unsubscribe != nil {
		closed := c.closed
		c.mu.Unlock()
		unsubscribe()
		return !closed
	}
	c.unsubscribe = unsubscribe
	c.mu.Unlock()
	return true
}

func (c *Controller) fail(err error) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return err
	}
	c.err = err
	c.mu.Unlock()
	slog.Error("admission failed", "error", err, "session_id", c.ref.SessionID, "user_id", c.participant.ID, "state", c.Snapshot().State.String())
	c.notifyChanged()
	return err
}

func (c *Controller) setStateLocked(next State) {
	if c.state == next {
		return
	}
	slog.Info("admission state changed",
		"session_id", c.ref.SessionID,
		"user_id", c.participant.ID,
		"role", c.ref.Role.String(),
		"from", c.state.String(),
		"to", next.String())
	c.state = next
}

func (c *Controller) notifyChanged() {
	select {
	case c.changed <- struct{}{}:
	default:
	}
}

func (c *Controller) timersActive() bool {
	c.mu.Lock()
	countdown := c.countdownCancel != nil
	c.mu.Unlock()
	return countdown || c.poll.active() || c.fullRetry.pending()
}
