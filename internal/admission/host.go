package admission

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/foxseedlab/gatekeeper/internal/call"
	"github.com/foxseedlab/gatekeeper/internal/identity"
	"github.com/foxseedlab/gatekeeper/internal/notify"
)

const fallbackRequesterName = "A patient"

// startHost subscribes before joining: a joiner may see the host in the participant
// count and send its request before Join returns.
func (c *Controller) startHost(ctx context.Context) error {
	c.mu.Lock()
	handle := c.call
	c.mu.Unlock()

	unsubscribe, err := handle.OnCustom(c.handleHostEvent)
	if err != nil {
		return c.fail(fmt.Errorf("%w: subscribe: %w", ErrSessionCreate, err))
	}
	if !c.keepSubscription(unsubscribe) {
		return ErrClosed
	}

	err = handle.Join(ctx, call.JoinOptions{
		Create: true,
		Data: &call.CallData{
			SettingsOverride: &call.Settings{Recording: c.opts.Recording},
		},
	})
	if err != nil {
		c.mu.Lock()
		unsubscribe = c.unsubscribe
		c.unsubscribe = nil
		c.pending = nil
		c.clearCountdownLocked()
		c.mu.Unlock()
		if unsubscribe != nil {
			unsubscribe()
		}
		return c.fail(fmt.Errorf("%w: %w", ErrSessionCreate, err))
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = leaveDetached(handle)
		return ErrClosed
	}
	c.joined = true
	c.setStateLocked(StateHostActive)
	c.mu.Unlock()
	c.notifyChanged()
	return nil
}

func (c *Controller) handleHostEvent(ev call.CustomEvent) {
	sig, ok := decodeSignal(ev)
	if !ok || sig.Type != eventJoinRequest {
		return
	}
	requester := sig.requester(ev)
	if requester.ID == "" || requester.ID == c.participant.ID {
		return
	}

	c.mu.Lock()
	if c.closed || c.err != nil || (c.state != StateHostActive && c.state != StateInitializing) {
		c.mu.Unlock()
		return
	}
	if c.pending != nil && c.pending.Requester.ID != requester.ID {
		busyWith := c.pending.Requester.ID
		handle := c.call
		c.mu.Unlock()
		slog.Info("join request rejected while another is pending", "session_id", c.ref.SessionID, "requester_id", requester.ID, "pending_id", busyWith)
		c.send(handle, signal{Type: eventJoinRejected, User: callUser(requester), RequestID: sig.RequestID, Reason: reasonBusy})
		return
	}
	c.pending = &JoinRequest{Requester: requester, RequestID: sig.RequestID, ReceivedAt: time.Now()}
	c.cycle++
	c.startCountdownLocked(c.cycle)
	c.mu.Unlock()

	slog.Info("join request received", "session_id", c.ref.SessionID, "requester_id", requester.ID, "request_id", sig.RequestID)
	c.notifyChanged()
	c.notifyHost(requester)
}

// Approve admits the pending requester.
func (c *Controller) Approve(ctx context.Context) error {
	return c.resolve(ctx, 0, eventJoinAccepted, "")
}

// Reject turns the pending requester away.
func (c *Controller) Reject(ctx context.Context) error {
	return c.resolve(ctx, 0, eventJoinRejected, "")
}

// resolve answers the pending request. A non-zero cycle only resolves that exact request.
func (c *Controller) resolve(ctx context.Context, cycle uint64, decision, reason string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.ref.Role != RoleHost {
		c.mu.Unlock()
		return ErrNotHost
	}
	if c.pending == nil || (cycle != 0 && cycle != c.cycle) {
		c.mu.Unlock()
		return ErrNoPendingRequest
	}
	req := *c.pending
	handle := c.call
	c.pending = nil
	c.clearCountdownLocked()
	c.mu.Unlock()

	slog.Info("join request resolved", "session_id", c.ref.SessionID, "requester_id", req.Requester.ID, "decision", decision, "reason", reason)
	c.notifyChanged()
	return c.sendWith(ctx, handle, signal{
		Type:      decision,
		User:      callUser(req.Requester),
		RequestID: req.RequestID,
		Reason:    reason,
	})
}

func (c *Controller) startCountdownLocked(cycle uint64) {
	if c.countdownCancel != nil {
		c.countdownCancel()
	}
	c.countdown = c.opts.ApprovalTimeoutSeconds
	ctx, cancel := context.WithCancel(c.lifecycle)
	c.countdownCancel = cancel
	go c.runCountdown(ctx, cycle)
}

func (c *Controller) clearCountdownLocked() {
	if c.countdownCancel != nil {
		c.countdownCancel()
		c.countdownCancel = nil
	}
	c.countdown = c.opts.ApprovalTimeoutSeconds
}

func (c *Controller) runCountdown(ctx context.Context, cycle uint64) {
	ticker := time.NewTicker(c.opts.CountdownTick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		c.mu.Lock()
		if c.closed || c.pending == nil || c.cycle != cycle {
			c.mu.Unlock()
			return
		}
		c.countdown--
		remaining := c.countdown
		c.mu.Unlock()
		c.notifyChanged()

		if remaining <= 0 {
			if err := c.resolve(c.lifecycle, cycle, eventJoinRejected, reasonTimeout); err != nil {
				slog.Debug("countdown expiry found nothing to reject", "error", err, "session_id", c.ref.SessionID)
			}
			return
		}
	}
}

func (c *Controller) notifyHost(requester identity.Participant) {
	name := requester.DisplayName
	if name == "" {
		name = fallbackRequesterName
	}
	ctx := c.lifecycle
	perm := c.notifier.Permission(ctx)
	if perm != notify.PermissionGranted && c.opts.RequestNotificationPermission {
		p, err := c.notifier.RequestPermission(ctx)
		if err != nil {
			slog.Warn("notification permission request failed", "error", err, "session_id", c.ref.SessionID)
		}
		perm = p
	}
	if perm != notify.PermissionGranted {
		slog.Debug("skipping join request notification", "session_id", c.ref.SessionID, "permission", perm.String())
		return
	}
	err := c.notifier.Notify(ctx, notify.Notification{
		Title:     fmt.Sprintf("%s wants to join the call", name),
		Body:      "Click here to approve.",
		SessionID: c.ref.SessionID,
		UserID:    requester.ID,
	})
	if err != nil {
		slog.Warn("join request notification failed", "error", err, "session_id", c.ref.SessionID)
	}
}

func (c *Controller) send(handle call.Call, sig signal) {
	_ = c.sendWith(c.lifecycle, handle, sig)
}

func (c *Controller) sendWith(ctx context.Context, handle call.Call, sig signal) error {
	if err := handle.SendCustomEvent(ctx, sig); err != nil {
		slog.Error("failed to send custom event", "error", err, "session_id", c.ref.SessionID, "type", sig.Type)
		return fmt.Errorf("send %s: %w", sig.Type, err)
	}
	return nil
}
