package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	extnotify "github.com/foxseedlab/gatekeeper/external/notify"
	"github.com/foxseedlab/gatekeeper/internal/admission"
	"github.com/foxseedlab/gatekeeper/internal/identity"
	"github.com/foxseedlab/gatekeeper/internal/notify"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

const (
	actionApprove                = "approve"
	actionReject                 = "reject"
	actionNotificationPermission = "notification-permission"
)

type admissionAction struct {
	Action     string `json:"action"`
	Permission string `json:"permission,omitempty"`
}

type snapshotFrame struct {
	Type        string                 `json:"type"`
	State       admission.State        `json:"state"`
	Role        admission.Role         `json:"role"`
	SessionID   string                 `json:"session_id"`
	Participant identity.Participant   `json:"participant"`
	Pending     *admission.JoinRequest `json:"pending,omitempty"`
	Countdown   int                    `json:"countdown"`
	FullRetries int                    `json:"full_retries"`
	Error       string                 `json:"error,omitempty"`
}

type errorFrame struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

func newSnapshotFrame(s admission.Snapshot) snapshotFrame {
	f := snapshotFrame{
		Type:        "snapshot",
		State:       s.State,
		Role:        s.Role,
		SessionID:   s.SessionID,
		Participant: s.Participant,
		Pending:     s.Pending,
		Countdown:   s.Countdown,
		FullRetries: s.FullRetries,
	}
	if s.Err != nil {
		f.Error = s.Err.Error()
	}
	return f
}

// AdmissionHandler runs one admission controller per UI websocket. Closing the socket
// tears the controller down.
type AdmissionHandler struct {
	factory  *admission.Factory
	upgrader *websocket.Upgrader
}

func NewAdmissionHandler(factory *admission.Factory, upgrader *websocket.Upgrader) *AdmissionHandler {
	return &AdmissionHandler{factory: factory, upgrader: upgrader}
}

func (h *AdmissionHandler) Handle(c echo.Context) error {
	sessionID := strings.TrimSpace(c.Param("sessionId"))
	if sessionID == "" {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "session id is required"})
	}
	participant, err := identity.New(c.QueryParam("name"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
	}
	role, err := admission.ParseRole(c.QueryParam("role"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
	}

	ws, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		slog.Error("websocket upgrade error", "error", err)
		return nil
	}
	defer func() {
		_ = ws.Close()
	}()

	conn := newSafeWS(ws)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	conn.keepAlive(ctx)

	var (
		browser *extnotify.BrowserNotifier
		extra   []notify.Notifier
	)
	if role == admission.RoleHost {
		browser = extnotify.NewBrowserNotifier(func(f extnotify.Frame) error {
			return conn.WriteJSON(f)
		}, notify.ParsePermission(c.QueryParam("notify")))
		extra = append(extra, browser)
	}

	ctrl := h.factory.New(participant, admission.SessionRef{SessionID: sessionID, Role: role}, extra...)
	defer func() {
		if err := ctrl.Close(); err != nil {
			slog.Warn("admission teardown reported errors", "error", err, "session_id", sessionID)
		}
	}()

	go pushSnapshots(ctx, conn, ctrl)
	go func() {
		if err := ctrl.Start(ctx); err != nil && !errors.Is(err, admission.ErrClosed) {
			slog.Warn("admission start failed", "error", err, "session_id", sessionID, "user_id", participant.ID)
		}
	}()

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			slog.Debug("admission socket closed", "error", err, "session_id", sessionID, "user_id", participant.ID)
			return nil
		}
		conn.touch()

		if err := h.dispatch(ctx, ctrl, browser, data); err != nil {
			if werr := conn.WriteJSON(errorFrame{Type: "error", Error: err.Error()}); werr != nil {
				return nil
			}
		}
	}
}

func (h *AdmissionHandler) dispatch(ctx context.Context, ctrl *admission.Controller, browser *extnotify.BrowserNotifier, data []byte) error {
	var msg admissionAction
	if err := json.Unmarshal(data, &msg); err != nil {
		return fmt.Errorf("invalid message: %w", err)
	}
	switch msg.Action {
	case actionApprove:
		return ctrl.Approve(ctx)
	case actionReject:
		return ctrl.Reject(ctx)
	case actionNotificationPermission:
		if browser != nil {
			browser.SetPermission(notify.ParsePermission(msg.Permission))
		}
		return nil
	default:
		return fmt.Errorf("unknown action %q", msg.Action)
	}
}

func pushSnapshots(ctx context.Context, conn *safeWS, ctrl *admission.Controller) {
	send := func() bool {
		if err := conn.WriteJSON(newSnapshotFrame(ctrl.Snapshot())); err != nil {
			slog.Debug("write admission snapshot failed", "error", err)
			return false
		}
		return true
	}
	if !send() {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ctrl.Done():
			return
		case <-ctrl.Changed():
			if !send() {
				return
			}
		}
	}
}
