package directauth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
)

// Token is the token set returned by a successful token request.
type Token struct {
	TokenType       string
	ExpiresIn       int
	AccessToken     string
	RefreshToken    string
	IDToken         string
	Scope           string
	DeviceSecret    string
	IssuedTokenType string

	// Endpoints is the endpoint configuration the token was fetched from.
	Endpoints Endpoints
}

// Scopes splits the granted scope string.
func (t *Token) Scopes() []string {
	return strings.Fields(t.Scope)
}

// ExpiresAt returns the access token expiry given the time the token was received.
func (t *Token) ExpiresAt(issuedAt time.Time) time.Time {
	if t.ExpiresIn <= 0 {
		return time.Time{}
	}
	return issuedAt.Add(time.Duration(t.ExpiresIn) * time.Second)
}

// OAuth2Token converts t for use with golang.org/x/oauth2 clients.
// The id token and device secret are carried as extras.
func (t *Token) OAuth2Token(issuedAt time.Time) *oauth2.Token {
	tok := &oauth2.Token{
		AccessToken:  t.AccessToken,
		TokenType:    t.TokenType,
		RefreshToken: t.RefreshToken,
		Expiry:       t.ExpiresAt(issuedAt),
		ExpiresIn:    int64(t.ExpiresIn),
	}
	extra := map[string]any{}
	if t.IDToken != "" {
		extra["id_token"] = t.IDToken
	}
	if t.DeviceSecret != "" {
		extra["device_secret"] = t.DeviceSecret
	}
	if t.Scope != "" {
		extra["scope"] = t.Scope
	}
	if len(extra) > 0 {
		tok = tok.WithExtra(extra)
	}
	return tok
}

// TokenSource returns a source that refreshes against the token endpoint with the
// refresh token, using clientID and clientSecret as client credentials.
func (t *Token) TokenSource(ctx context.Context, clientID, clientSecret string, scopes []string, issuedAt time.Time) oauth2.TokenSource {
	cfg := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Scopes:       scopes,
		Endpoint: oauth2.Endpoint{
			TokenURL:  t.Endpoints.Token,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
	return cfg.TokenSource(ctx, t.OAuth2Token(issuedAt))
}

// ErrNoIDToken is returned by IDTokenClaims when the token set has no id token.
var ErrNoIDToken = errors.New("token has no id_token")

// IDTokenClaims decodes the id token claims WITHOUT verifying the signature.
// The result is for display only and must never be used for an authorization decision.
func (t *Token) IDTokenClaims() (jwt.MapClaims, error) {
	if t.IDToken == "" {
		return nil, ErrNoIDToken
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(t.IDToken, claims); err != nil {
		return nil, err
	}
	return claims, nil
}
