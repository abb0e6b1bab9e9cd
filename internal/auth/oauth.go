// Package auth supplies OAuth credentials for mailbox sessions and issues
// the JWTs that authenticate API requests.
package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const userinfoEndpoint = "https://openidconnect.googleapis.com/v1/userinfo"

// Scopes requested at login: full mailbox access for IMAP plus the identity
// claims used to key the account.
var scopes = []string{"https://mail.google.com/", "openid", "email"}

// Profile is the subset of OpenID userinfo claims the service needs
type Profile struct {
	Sub   string `json:"sub"`
	Email string `json:"email"`
}

// Manager wraps the OAuth2 authorization-code flow and token refresh
type Manager struct {
	config *oauth2.Config
}

// NewManager creates an OAuth manager for the Google endpoint
func NewManager(clientID, clientSecret, redirectURL string) *Manager {
	return &Manager{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Scopes:       scopes,
			Endpoint:     google.Endpoint,
		},
	}
}

// AuthCodeURL returns the consent page URL. Offline access with forced
// approval so a refresh token is issued every time.
func (m *Manager) AuthCodeURL(state string) string {
	return m.config.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// Exchange trades an authorization code for a token pair
func (m *Manager) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	token, err := m.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange code: %w", err)
	}
	return token, nil
}

// Userinfo fetches the OpenID profile for a token
func (m *Manager) Userinfo(ctx context.Context, token *oauth2.Token) (*Profile, error) {
	resp, err := m.config.Client(ctx, token).Get(userinfoEndpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch userinfo: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("userinfo returned status %d", resp.StatusCode)
	}

	var profile Profile
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return nil, fmt.Errorf("failed to decode userinfo: %w", err)
	}
	if profile.Sub == "" || profile.Email == "" {
		return nil, fmt.Errorf("userinfo response missing sub or email")
	}

	return &profile, nil
}

// Refresh returns a currently valid token for a stored credential pair,
// going through the refresh flow when the access token has expired. Callers
// persist the returned pair when it changed.
func (m *Manager) Refresh(ctx context.Context, accessToken, refreshToken string, expiry time.Time) (*oauth2.Token, error) {
	stored := &oauth2.Token{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		Expiry:       expiry,
		TokenType:    "Bearer",
	}

	fresh, err := m.config.TokenSource(ctx, stored).Token()
	if err != nil {
		return nil, fmt.Errorf("failed to refresh token: %w", err)
	}
	return fresh, nil
}
