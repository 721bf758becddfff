package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/foxseedlab/gatekeeper/internal/call"
	"github.com/foxseedlab/gatekeeper/internal/hub"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

type sendEventRequest struct {
	Custom json.RawMessage `json:"custom"`
}

// CallsHandler exposes the in-process hub to remote clients.
type CallsHandler struct {
	hub      *hub.Hub
	upgrader *websocket.Upgrader
}

func NewCallsHandler(h *hub.Hub, upgrader *websocket.Upgrader) *CallsHandler {
	return &CallsHandler{hub: h, upgrader: upgrader}
}

func (h *CallsHandler) Get(c echo.Context) error {
	st, err := h.hub.Get(c.Request().Context(), c.Param("type"), c.Param("id"))
	if err != nil {
		return callError(c, err)
	}
	return c.JSON(http.StatusOK, st)
}

func (h *CallsHandler) Join(c echo.Context) error {
	var opts call.JoinOptions
	if err := c.Bind(&opts); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid join options"})
	}
	st, err := h.hub.Join(c.Request().Context(), userFrom(c), c.Param("type"), c.Param("id"), opts)
	if err != nil {
		return callError(c, err)
	}
	return c.JSON(http.StatusOK, st)
}

func (h *CallsHandler) Leave(c echo.Context) error {
	if err := h.hub.Leave(c.Request().Context(), userFrom(c), c.Param("type"), c.Param("id")); err != nil {
		return callError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *CallsHandler) SendEvent(c echo.Context) error {
	var req sendEventRequest
	if err := c.Bind(&req); err != nil || len(req.Custom) == 0 || !json.Valid(req.Custom) {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "custom payload is required"})
	}
	if err := h.hub.Send(c.Request().Context(), userFrom(c), c.Param("type"), c.Param("id"), req.Custom); err != nil {
		return callError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// Events streams the call's custom events as JSON frames until the client disconnects.
func (h *CallsHandler) Events(c echo.Context) error {
	ws, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		slog.Error("websocket upgrade error", "error", err)
		return nil
	}
	defer func() {
		_ = ws.Close()
	}()

	callType, id := c.Param("type"), c.Param("id")
	user := userFrom(c)
	conn := newSafeWS(ws)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	conn.keepAlive(ctx)

	unsubscribe := h.hub.Subscribe(callType, id, func(ev call.CustomEvent) {
		if err := conn.WriteJSON(ev); err != nil {
			slog.Debug("write call event failed", "error", err, "call_cid", ev.CID, "user_id", user.ID)
			cancel()
			_ = ws.Close()
		}
	})
	defer unsubscribe()
	slog.Info("call event stream opened", "call_cid", call.CID(callType, id), "user_id", user.ID)

	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			slog.Info("call event stream closed", "call_cid", call.CID(callType, id), "user_id", user.ID)
			return nil
		}
		conn.touch()
	}
}

func callError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, call.ErrCallNotFound):
		return c.JSON(http.StatusNotFound, errorResponse{Error: err.Error()})
	case errors.Is(err, call.ErrUnauthorized):
		return c.JSON(http.StatusUnauthorized, errorResponse{Error: err.Error()})
	default:
		slog.Error("call hub request failed", "error", err, "path", c.Path())
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}
