// internal/auth/auth.go
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"

	"golang.org/x/oauth2"
	githuboauth "golang.org/x/oauth2/github"
)

// Scopes requested during the OAuth handshake. repo grants access to private
// repositories for the aggregation pipeline.
var scopes = []string{"user:email", "read:user", "read:org", "repo"}

// OAuth wraps the GitHub OAuth authorization-code flow.
type OAuth struct {
	conf *oauth2.Config
}

// NewOAuth configures the GitHub OAuth flow.
func NewOAuth(clientID, clientSecret, callbackURL string) *OAuth {
	return &OAuth{
		conf: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  callbackURL,
			Scopes:       scopes,
			Endpoint:     githuboauth.Endpoint,
		},
	}
}

// AuthCodeURL builds the GitHub authorize URL for the given state.
func (o *OAuth) AuthCodeURL(state string) string {
	return o.conf.AuthCodeURL(state)
}

// Exchange trades an authorization code for a bearer token.
func (o *OAuth) Exchange(ctx context.Context, code string) (string, error) {
	tok, err := o.conf.Exchange(ctx, code)
	if err != nil {
		return "", err
	}
	if tok.AccessToken == "" {
		return "", errors.New("token exchange returned an empty access token")
	}
	return tok.AccessToken, nil
}

// RandomID returns a 32-character hex token for session IDs and OAuth state.
func RandomID() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
