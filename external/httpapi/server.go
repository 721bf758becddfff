package httpapi

import (
	"net/http"

	"github.com/foxseedlab/gatekeeper/internal/admission"
	"github.com/foxseedlab/gatekeeper/internal/config"
	"github.com/foxseedlab/gatekeeper/internal/hub"
	"github.com/foxseedlab/gatekeeper/internal/token"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// New builds the HTTP surface: the token service, the call hub API and the admission UI socket.
func New(cfg *config.Config, h *hub.Hub, issuer token.Issuer, factory *admission.Factory) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(SlogLogger())

	upgrader := &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     checkOrigin(cfg),
	}

	tokenHandler := NewTokenHandler(issuer)
	callsHandler := NewCallsHandler(h, upgrader)
	admissionHandler := NewAdmissionHandler(factory, upgrader)

	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.POST("/get-token", tokenHandler.GetToken)

	calls := e.Group("/api/calls/:type/:id")
	calls.Use(JWTAuthMiddleware(h.Authenticate))
	{
		calls.GET("", callsHandler.Get)
		calls.POST("/join", callsHandler.Join)
		calls.POST("/leave", callsHandler.Leave)
		calls.POST("/events", callsHandler.SendEvent)
		calls.GET("/events/ws", callsHandler.Events)
	}

	e.GET("/rooms/:sessionId/admission", admissionHandler.Handle)

	return e
}

// checkOrigin allows ALLOWED_ORIGIN when set, any origin in development, and same-host
// requests otherwise.
func checkOrigin(cfg *config.Config) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		if cfg.AllowedOrigin != "" {
			return origin == cfg.AllowedOrigin
		}
		if cfg.IsDevelopment() {
			return true
		}
		return origin == "http://"+r.Host || origin == "https://"+r.Host
	}
}
