package msa

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

const (
	defaultXBLAuthURL   = "https://user.auth.xboxlive.com/user/authenticate"
	defaultXSTSAuthURL  = "https://xsts.auth.xboxlive.com/xsts/authorize"
	defaultMCLoginURL   = "https://api.minecraftservices.com/authentication/login_with_xbox"
	defaultMCProfileURL = "https://api.minecraftservices.com/minecraft/profile"
)

// XBLToken is the Xbox Live user token plus the user hash needed for the
// final Minecraft services exchange.
type XBLToken struct {
	Token    string
	UserHash string
}

// MCSession is the result of login_with_xbox: a Minecraft access token
// with its validity window.
type MCSession struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

// MCProfile is the authenticated player's profile.
type MCProfile struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type xboxTokenResponse struct {
	Token         string `json:"Token"`
	DisplayClaims struct {
		XUI []struct {
			UHS string `json:"uhs"`
		} `json:"xui"`
	} `json:"DisplayClaims"`
}

// XboxAuth exchanges a Microsoft access token for an Xbox Live user token.
func (c *Client) XboxAuth(ctx context.Context, msAccessToken string) (*XBLToken, error) {
	payload := map[string]any{
		"Properties": map[string]any{
			"AuthMethod": "RPS",
			"SiteName":   "user.auth.xboxlive.com",
			"RpsTicket":  "d=" + msAccessToken,
		},
		"RelyingParty": "http://auth.xboxlive.com",
		"TokenType":    "JWT",
	}

	var out xboxTokenResponse
	if err := c.postJSON(ctx, c.XBLAuthURL, payload, &out); err != nil {
		return nil, fmt.Errorf("xbox live auth: %w", err)
	}
	if len(out.DisplayClaims.XUI) == 0 {
		return nil, fmt.Errorf("xbox live auth: response carries no user hash")
	}

	return &XBLToken{Token: out.Token, UserHash: out.DisplayClaims.XUI[0].UHS}, nil
}

// XSTSAuth exchanges the Xbox Live token for an XSTS token scoped to the
// Minecraft services relying party. Structured denials surface as
// *XSTSError with the XErr translated where known.
func (c *Client) XSTSAuth(ctx context.Context, xbl *XBLToken) (string, error) {
	payload := map[string]any{
		"Properties": map[string]any{
			"SandboxId":  "RETAIL",
			"UserTokens": []string{xbl.Token},
		},
		"RelyingParty": "rp://api.minecraftservices.com/",
		"TokenType":    "JWT",
	}

	req, err := c.newJSONRequest(ctx, c.XSTSAuthURL, payload)
	if err != nil {
		return "", err
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("xsts auth: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		var denial XSTSError
		if err := json.NewDecoder(resp.Body).Decode(&denial); err == nil && denial.XErr != 0 {
			return "", &denial
		}
		return "", fmt.Errorf("xsts auth: unauthorized")
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("xsts auth: status %d", resp.StatusCode)
	}

	var out xboxTokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("xsts auth: decode response: %w", err)
	}
	return out.Token, nil
}

// LoginWithXbox exchanges the XSTS token for a Minecraft session token.
func (c *Client) LoginWithXbox(ctx context.Context, userHash, xstsToken string) (*MCSession, error) {
	payload := map[string]any{
		"identityToken": fmt.Sprintf("XBL3.0 x=%s;%s", userHash, xstsToken),
	}

	var out MCSession
	if err := c.postJSON(ctx, c.MCLoginURL, payload, &out); err != nil {
		return nil, fmt.Errorf("minecraft auth: %w", err)
	}
	if out.AccessToken == "" {
		return nil, fmt.Errorf("minecraft auth: response carries no access token")
	}
	return &out, nil
}

// Profile fetches the player profile for a Minecraft access token.
func (c *Client) Profile(ctx context.Context, mcAccessToken string) (*MCProfile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.MCProfileURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+mcAccessToken)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("profile request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("profile request: status %d", resp.StatusCode)
	}

	var p MCProfile
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return nil, fmt.Errorf("decode profile: %w", err)
	}
	return &p, nil
}

// CheckToken reports whether a Minecraft access token is still accepted
// by the services API. 401/403 means invalid; other failures are errors.
func (c *Client) CheckToken(ctx context.Context, mcAccessToken string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.MCProfileURL, nil)
	if err != nil {
		return false, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+mcAccessToken)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("validity check failed: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusUnauthorized, http.StatusForbidden:
		return false, nil
	default:
		return false, fmt.Errorf("validity check: status %d", resp.StatusCode)
	}
}

func (c *Client) newJSONRequest(ctx context.Context, endpoint string, payload any) (*http.Request, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func (c *Client) postJSON(ctx context.Context, endpoint string, payload, out any) error {
	req, err := c.newJSONRequest(ctx, endpoint, payload)
	if err != nil {
		return err
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
