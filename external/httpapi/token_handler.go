package httpapi

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/foxseedlab/gatekeeper/internal/token"
	"github.com/labstack/echo/v4"
)

type errorResponse struct {
	Error string `json:"error"`
}

type getTokenRequest struct {
	UserID string `json:"userId"`
}

type getTokenResponse struct {
	Token string `json:"token"`
}

type TokenHandler struct {
	issuer token.Issuer
}

func NewTokenHandler(issuer token.Issuer) *TokenHandler {
	return &TokenHandler{issuer: issuer}
}

func (h *TokenHandler) GetToken(c echo.Context) error {
	var req getTokenRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request"})
	}
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "userId is required"})
	}

	tok, err := h.issuer.GetToken(c.Request().Context(), userID)
	if err != nil {
		slog.Error("issue token failed", "error", err, "user_id", userID)
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: "could not create token"})
	}
	return c.JSON(http.StatusOK, getTokenResponse{Token: tok})
}
