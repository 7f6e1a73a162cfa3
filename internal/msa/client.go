// Package msa implements the Microsoft account side of the login chain:
// OAuth token exchange (authorization code, refresh token, device code)
// followed by the Xbox Live, XSTS and Minecraft services hops.
package msa

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Default endpoints. Tests and alternative tenants override the matching
// Client fields.
const (
	DefaultClientID = "1fba7ec4-c8f1-4b0c-9e34-b2a2e5e8c0d1"

	defaultAuthorizeURL  = "https://login.live.com/oauth20_authorize.srf"
	defaultTokenURL      = "https://login.live.com/oauth20_token.srf"
	defaultDeviceCodeURL = "https://login.microsoftonline.com/consumers/oauth2/v2.0/devicecode"
	defaultDeviceAuthURL = "https://login.microsoftonline.com/consumers/oauth2/v2.0/token"

	scopeXboxLive = "XboxLive.signin offline_access"

	requestTimeout = 30 * time.Second
)

// TokenResponse is the OAuth token endpoint response.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ExpiresIn    int    `json:"expires_in"`
	TokenType    string `json:"token_type"`
	Scope        string `json:"scope,omitempty"`
}

// DeviceCode is the provider's answer to a device authorization request.
type DeviceCode struct {
	DeviceCode      string `json:"device_code"`
	UserCode        string `json:"user_code"`
	VerificationURI string `json:"verification_uri"`
	ExpiresIn       int    `json:"expires_in"`
	Interval        int    `json:"interval"`
}

// Client talks to the Microsoft identity endpoints.
type Client struct {
	ClientID string

	AuthorizeURL  string
	TokenURL      string
	DeviceCodeURL string
	DeviceAuthURL string
	XBLAuthURL    string
	XSTSAuthURL   string
	MCLoginURL    string
	MCProfileURL  string

	HTTPClient *http.Client

	logger *slog.Logger
}

// NewClient creates a client with the production endpoints. clientID may
// be empty to use the default application id.
func NewClient(clientID string, logger *slog.Logger) *Client {
	if clientID == "" {
		clientID = DefaultClientID
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		ClientID:      clientID,
		AuthorizeURL:  defaultAuthorizeURL,
		TokenURL:      defaultTokenURL,
		DeviceCodeURL: defaultDeviceCodeURL,
		DeviceAuthURL: defaultDeviceAuthURL,
		XBLAuthURL:    defaultXBLAuthURL,
		XSTSAuthURL:   defaultXSTSAuthURL,
		MCLoginURL:    defaultMCLoginURL,
		MCProfileURL:  defaultMCProfileURL,
		HTTPClient:    &http.Client{Timeout: requestTimeout},
		logger:        logger,
	}
}

// LoginURL builds the browser URL for the authorization-code flow. The
// redirect must point at the local callback receiver; response_mode
// form_post makes the provider POST the code to it.
func (c *Client) LoginURL(redirectURI, state string) (string, error) {
	base, err := url.Parse(c.AuthorizeURL)
	if err != nil {
		return "", fmt.Errorf("parse authorize url: %w", err)
	}

	q := url.Values{}
	q.Set("client_id", c.ClientID)
	q.Set("response_type", "code")
	q.Set("response_mode", "form_post")
	q.Set("scope", scopeXboxLive)
	q.Set("redirect_uri", redirectURI)
	q.Set("state", state)
	base.RawQuery = q.Encode()

	return base.String(), nil
}

// ExchangeCode trades an authorization code for tokens. redirectURI must
// match the one embedded in the login URL.
func (c *Client) ExchangeCode(ctx context.Context, code, redirectURI string) (*TokenResponse, error) {
	form := url.Values{}
	form.Set("client_id", c.ClientID)
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("redirect_uri", redirectURI)

	return c.postTokenForm(ctx, c.TokenURL, form)
}

// Refresh trades a stored refresh token for fresh tokens.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	if refreshToken == "" {
		return nil, fmt.Errorf("refresh token is empty")
	}

	form := url.Values{}
	form.Set("client_id", c.ClientID)
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)
	form.Set("scope", scopeXboxLive)

	return c.postTokenForm(ctx, c.TokenURL, form)
}

// RequestDeviceCode starts the device-code flow, returning the code the
// user enters in a browser plus the polling parameters.
func (c *Client) RequestDeviceCode(ctx context.Context) (*DeviceCode, error) {
	form := url.Values{}
	form.Set("client_id", c.ClientID)
	form.Set("scope", scopeXboxLive)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.DeviceCodeURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("device code request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, decodeAuthError(resp)
	}

	var dc DeviceCode
	if err := json.NewDecoder(resp.Body).Decode(&dc); err != nil {
		return nil, fmt.Errorf("decode device code response: %w", err)
	}
	if dc.Interval <= 0 {
		dc.Interval = 5
	}
	return &dc, nil
}

// PollDeviceCode performs a single poll of the token endpoint for the
// given device code. While the user has not decided yet it returns an
// error matching ErrAuthorizationPending (or ErrSlowDown).
func (c *Client) PollDeviceCode(ctx context.Context, deviceCode string) (*TokenResponse, error) {
	form := url.Values{}
	form.Set("client_id", c.ClientID)
	form.Set("grant_type", "urn:ietf:params:oauth:grant-type:device_code")
	form.Set("device_code", deviceCode)

	return c.postTokenForm(ctx, c.DeviceAuthURL, form)
}

func (c *Client) postTokenForm(ctx context.Context, endpoint string, form url.Values) (*TokenResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, decodeAuthError(resp)
	}

	var tr TokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return nil, fmt.Errorf("decode token response: %w", err)
	}
	return &tr, nil
}

// decodeAuthError turns a non-200 token endpoint response into an
// AuthError when the body is a structured OAuth error, or a generic error
// otherwise.
func decodeAuthError(resp *http.Response) error {
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return fmt.Errorf("provider returned status %d", resp.StatusCode)
	}

	var ae AuthError
	if err := json.Unmarshal(body, &ae); err == nil && ae.Code != "" {
		return &ae
	}
	return fmt.Errorf("provider returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
}
