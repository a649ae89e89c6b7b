package fortnox

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// OAuthClient drives the authorization-code and refresh-token grants against the
// Fortnox OAuth endpoints. The client authenticates as a confidential client via
// HTTP Basic auth on every token request.
type OAuthClient struct {
	cfg  Config
	http *http.Client
}

// NewOAuthClient creates an OAuth client for the given registration.
func NewOAuthClient(cfg Config) *OAuthClient {
	return &OAuthClient{
		cfg:  cfg,
		http: &http.Client{Timeout: 10 * time.Second},
	}
}

// AuthorizationURL builds the provider authorization URL for the given one-time
// state token. The scope list is fixed and least-privilege; the redirect URI is
// the pre-registered callback address.
func (c *OAuthClient) AuthorizationURL(state string) string {
	u, _ := url.Parse(c.cfg.AuthURL)
	q := u.Query()

	q.Set("client_id", c.cfg.ClientID)
	q.Set("response_type", "code")
	q.Set("scope", strings.Join(c.cfg.Scopes, " "))
	q.Set("redirect_uri", c.cfg.RedirectURI)
	q.Set("state", state)
	q.Set("access_type", "offline")

	u.RawQuery = q.Encode()
	return u.String()
}

// Exchange trades an authorization code for an access/refresh token pair.
func (c *OAuthClient) Exchange(ctx context.Context, code string) (*TokenResponse, error) {
	data := url.Values{}
	data.Set("grant_type", "authorization_code")
	data.Set("code", code)
	data.Set("redirect_uri", c.cfg.RedirectURI)

	return c.executeTokenRequest(ctx, data)
}

// Refresh trades a refresh token for a new access/refresh token pair.
func (c *OAuthClient) Refresh(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	data := url.Values{}
	data.Set("grant_type", "refresh_token")
	data.Set("refresh_token", refreshToken)

	return c.executeTokenRequest(ctx, data)
}

// executeTokenRequest performs the actual token request to Fortnox.
func (c *OAuthClient) executeTokenRequest(ctx context.Context, data url.Values) (*TokenResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.TokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create token request: %w", err)
	}

	req.Header.Add("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Add("Accept", "application/json")
	req.SetBasicAuth(c.cfg.ClientID, c.cfg.ClientSecret)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		oauthErr := &OAuthError{}
		if jsonErr := json.Unmarshal(body, oauthErr); jsonErr == nil && oauthErr.Code != "" {
			return nil, oauthErr
		}
		return nil, fmt.Errorf("token request failed with status %d: %s", resp.StatusCode, body)
	}

	var token TokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return nil, fmt.Errorf("failed to parse token response: %w", err)
	}
	return &token, nil
}
