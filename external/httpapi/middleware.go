package httpapi

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/foxseedlab/gatekeeper/internal/call"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

const userContextKey = "call_user"

// JWTAuthMiddleware resolves the bearer token to a call user. Browsers cannot set
// headers on websocket requests, so a token query parameter is accepted as well.
func JWTAuthMiddleware(authenticate func(token string) (string, error)) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			tok := bearerToken(c.Request())
			if tok == "" {
				return c.JSON(http.StatusUnauthorized, errorResponse{Error: "missing or malformed token"})
			}
			userID, err := authenticate(tok)
			if err != nil {
				return c.JSON(http.StatusUnauthorized, errorResponse{Error: "invalid or expired token"})
			}
			name := c.Request().Header.Get(call.UserNameHeader)
			if name == "" {
				name = c.QueryParam("name")
			}
			c.Set(userContextKey, call.User{ID: userID, Name: name})
			return next(c)
		}
	}
}

func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, tok, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(tok)
		}
		return ""
	}
	return r.URL.Query().Get("token")
}

func userFrom(c echo.Context) call.User {
	u, _ := c.Get(userContextKey).(call.User)
	return u
}

func SlogLogger() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(
		middleware.RequestLoggerConfig{
			LogStatus: true,
			LogURI:    true,
			LogMethod: true,
			LogError:  true,

			LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
				level := slog.LevelInfo
				if v.Error != nil || v.Status >= http.StatusInternalServerError {
					level = slog.LevelError
				} else if v.Status >= http.StatusBadRequest {
					level = slog.LevelWarn
				}
				slog.LogAttrs(c.Request().Context(), level, "http request",
					slog.Int("status", v.Status),
					slog.String("uri", v.URI),
					slog.String("method", v.Method),
				)
				return nil
			},
		},
	)
}
