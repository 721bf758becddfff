package admission

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/foxseedlab/gatekeeper/internal/call"
	"github.com/google/uuid"
)

func (c *Controller) startJoiner(ctx context.Context) error {
	c.evaluate(ctx)
	return nil
}

// evaluate fetches the session once and either proceeds to a join request or starts
// waiting for the host.
func (c *Controller) evaluate(ctx context.Context) {
	count, err := c.participantCount(ctx)
	if err != nil {
		if !errors.Is(err, call.ErrCallNotFound) {
			slog.Warn("session lookup failed; waiting for host", "error", err, "session_id", c.ref.SessionID)
		}
		c.awaitHost()
		return
	}
	if count == 0 {
		c.awaitHost()
		return
	}
	c.proceed(ctx, count)
}

func (c *Controller) participantCount(ctx context.Context) (int, error) {
	c.mu.Lock()
	handle := c.call
	c.mu.Unlock()
	if handle == nil {
		return 0, ErrClosed
	}
	st, err := handle.Get(ctx)
	if err != nil {
		return 0, err
	}
	return st.ParticipantCount, nil
}

func (c *Controller) awaitHost() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.setStateLocked(StateAwaitingHostAvailability)
	c.mu.Unlock()
	c.notifyChanged()

	c.poll.start(c.lifecycle, func(ctx context.Context) bool {
		count, err := c.participantCount(ctx)
		if err != nil {
			if errors.Is(err, call.ErrCallNotFound) {
				slog.Debug("session does not exist yet", "session_id", c.ref.SessionID)
			} else if ctx.Err() == nil {
				slog.Warn("session poll failed", "error", err, "session_id", c.ref.SessionID)
			}
			return false
		}
		if count == 0 {
			slog.Debug("host not connected yet", "session_id", c.ref.SessionID)
			return false
		}
		c.proceed(ctx, count)
		return true
	})
}

func (c *Controller) proceed(ctx context.Context, count int) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	if count >= c.opts.MaxParticipants {
		c.setStateLocked(StateSessionFull)
		c.fullRetries++
		c.mu.Unlock()
		slog.Info("session is full; re-checking later", "session_id", c.ref.SessionID, "participant_count", count, "delay", c.opts.FullRetryDelay)
		c.notifyChanged()
		c.fullRetry.schedule(c.lifecycle, c.opts.FullRetryDelay, c.evaluate)
		return
	}

	handle := c.call
	subscribed := c.unsubscribe != nil
	c.mu.Unlock()

	// The decision can arrive right after the request, so the subscription must be
	// live before anything is sent.
	if !subscribed {
		unsubscribe, err := handle.OnCustom(c.handleJoinerEvent)
		if err != nil {
			slog.Warn("subscribing to session events failed; waiting before requesting to join", "error", err, "session_id", c.ref.SessionID)
			c.awaitHost()
			return
		}
		if !c.keepSubscription(unsubscribe) {
			return
		}
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	requestID := uuid.NewString()
	c.activeRequestID = requestID
	c.setStateLocked(StateAwaitingApproval)
	c.mu.Unlock()
	c.notifyChanged()

	err := handle.SendCustomEvent(ctx, signal{
		Type:      eventJoinRequest,
		User:      callUser(c.participant),
		RequestID: requestID,
	})
	if err != nil {
		_ = c.fail(fmt.Errorf("send join request: %w", err))
		return
	}
	slog.Info("join request sent", "session_id", c.ref.SessionID, "user_id", c.participant.ID, "request_id", requestID)
}

func (c *Controller) handleJoinerEvent(ev call.CustomEvent) {
	sig, ok := decodeSignal(ev)
	if !ok || (sig.Type != eventJoinAccepted && sig.Type != eventJoinRejected) {
		return
	}
	if sig.User == nil || sig.User.ID != c.participant.ID {
		return
	}

	c.mu.Lock()
	if c.closed || c.state != StateAwaitingApproval || c.activeRequestID == "" {
		c.mu.Unlock()
		return
	}
	if sig.RequestID != "" && sig.RequestID != c.activeRequestID {
		c.mu.Unlock()
		slog.Debug("ignoring decision for a stale join request", "session_id", c.ref.SessionID, "request_id", sig.RequestID)
		return
	}
	c.activeRequestID = ""
	if sig.Type == eventJoinRejected {
		c.setStateLocked(StateRejected)
		c.mu.Unlock()
		slog.Info("join request rejected", "session_id", c.ref.SessionID, "user_id", c.participant.ID, "reason", sig.Reason)
		c.notifyChanged()
		return
	}
	handle := c.call
	c.mu.Unlock()

	err := handle.Join(c.lifecycle, call.JoinOptions{})

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		if err == nil {
			_ = leaveDetached(handle)
		}
		return
	}
	if err != nil {
		c.err = fmt.Errorf("join admitted session: %w", err)
		c.mu.Unlock()
		slog.Error("failed to join after approval", "error", err, "session_id", c.ref.SessionID)
		c.notifyChanged()
		return
	}
	c.joined = true
	c.setStateLocked(StateAdmitted)
	c.mu.Unlock()
	c.notifyChanged()
}
