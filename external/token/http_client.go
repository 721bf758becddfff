package token

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/foxseedlab/gatekeeper/internal/token"
)

const requestTimeout = 10 * time.Second

type getTokenRequest struct {
	UserID string `json:"userId"`
}

type getTokenResponse struct {
	Token string `json:"token"`
}

// HTTPClient fetches credentials from a remote token service.
type HTTPClient struct {
	baseURL string
	client  *http.Client
}

func NewHTTPClient(baseURL string) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: requestTimeout},
	}
}

func (c *HTTPClient) GetToken(ctx context.Context, userID string) (string, error) {
	b, err := json.Marshal(getTokenRequest{UserID: userID})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/get-token", bytes.NewReader(b))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if !isHTTPSuccessStatus(resp.StatusCode) {
		return "", fmt.Errorf("token service returned status %d", resp.StatusCode)
	}

	var out getTokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}
	if out.Token == "" {
		return "", token.ErrNoToken
	}
	return out.Token, nil
}

func isHTTPSuccessStatus(statusCode int) bool {
	return statusCode >= 200 && statusCode < 300
}
