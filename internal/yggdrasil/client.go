// Package yggdrasil is the narrow port onto the legacy password-based
// auth server: authenticate, validate and invalidate. It replaces direct
// coupling to any host auth library; the validator and the password flow
// consume it through small interfaces.
package yggdrasil

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const (
	defaultBaseURL = "https://authserver.mojang.com"

	requestTimeout = 30 * time.Second
)

// ErrBadCredentials marks the provider's structured invalid-credentials
// response, as opposed to unexpected provider errors.
var ErrBadCredentials = errors.New("invalid username or password")

// Error is a structured error body from the auth server.
type Error struct {
	Kind    string `json:"error"`
	Message string `json:"errorMessage"`
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Kind
}

func (e *Error) Is(target error) bool {
	return target == ErrBadCredentials && e.Kind == "ForbiddenOperationException"
}

// AuthResult is a successful authenticate response reduced to what the
// flow needs.
type AuthResult struct {
	AccessToken string
	ClientToken string
	Name        string
	ID          string
}

// Client talks to a yggdrasil-compatible auth server.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client

	logger *slog.Logger
}

// NewClient creates a client against the production auth server.
func NewClient(logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		BaseURL:    defaultBaseURL,
		HTTPClient: &http.Client{Timeout: requestTimeout},
		logger:     logger,
	}
}

type authenticateRequest struct {
	Agent       agent  `json:"agent"`
	Username    string `json:"username"`
	Password    string `json:"password"`
	ClientToken string `json:"clientToken,omitempty"`
}

type agent struct {
	Name    string `json:"name"`
	Version int    `json:"version"`
}

type authenticateResponse struct {
	AccessToken     string `json:"accessToken"`
	ClientToken     string `json:"clientToken"`
	SelectedProfile struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"selectedProfile"`
}

// Authenticate performs a password login. Bad credentials surface as an
// *Error matching ErrBadCredentials.
func (c *Client) Authenticate(ctx context.Context, username, password, clientToken string) (*AuthResult, error) {
	req := authenticateRequest{
		Agent:       agent{Name: "Minecraft", Version: 1},
		Username:    username,
		Password:    password,
		ClientToken: clientToken,
	}

	var resp authenticateResponse
	if err := c.post(ctx, "/authenticate", req, &resp); err != nil {
		return nil, err
	}
	if resp.SelectedProfile.Name == "" {
		return nil, fmt.Errorf("authenticate: account has no game profile")
	}

	return &AuthResult{
		AccessToken: resp.AccessToken,
		ClientToken: resp.ClientToken,
		Name:        resp.SelectedProfile.Name,
		ID:          resp.SelectedProfile.ID,
	}, nil
}

// Validate reports whether an access token is still usable. The server
// answers 204 for valid tokens and a ForbiddenOperationException for
// stale ones.
func (c *Client) Validate(ctx context.Context, accessToken, clientToken string) (bool, error) {
	payload := map[string]string{"accessToken": accessToken}
	if clientToken != "" {
		payload["clientToken"] = clientToken
	}

	err := c.post(ctx, "/validate", payload, nil)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, ErrBadCredentials) {
		return false, nil
	}
	var ye *Error
	if errors.As(err, &ye) {
		return false, nil
	}
	return false, err
}

// Invalidate logs out the given token. Used as guaranteed cleanup for
// transient authentication objects, so callers treat failures as
// log-only.
func (c *Client) Invalidate(ctx context.Context, accessToken, clientToken string) error {
	payload := map[string]string{"accessToken": accessToken}
	if clientToken != "" {
		payload["clientToken"] = clientToken
	}
	return c.post(ctx, "/invalidate", payload, nil)
}

func (c *Client) post(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	body, readErr := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if readErr != nil {
		return fmt.Errorf("auth server returned status %d", resp.StatusCode)
	}

	var ye Error
	if err := json.Unmarshal(body, &ye); err == nil && ye.Kind != "" {
		return &ye
	}
	return fmt.Errorf("auth server returned status %d", resp.StatusCode)
}
