package mockserver

import (
	"mime"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/MrEthical07/directauth"
	"github.com/MrEthical07/directauth/internal/wire"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const errorCodeAuthFailed = "E0000004"

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	if !s.readForm(w, r) || !s.authenticateClient(w, r) {
		return
	}
	form := r.PostForm

	switch directauth.GrantType(form.Get("grant_type")) {
	case directauth.GrantTypePassword:
		u, ok := s.lookupUser(form.Get("username"))
		if !ok || !u.checkPassword(form.Get("password")) {
			oauthError(w, r, http.StatusBadRequest, "invalid_grant", "The password was invalid.")
			return
		}
		if u.RequireMFA {
			token := s.issueMfaToken(u.Username)
			render.Status(r, http.StatusForbidden)
			render.JSON(w, r, wire.ErrorResponse{
				Error:            "mfa_required",
				ErrorDescription: "An MFA factor is required to complete authentication.",
				MfaToken:         token,
			})
			return
		}
		s.writeTokens(w, r, u)

	case directauth.GrantTypeOtp:
		u, ok := s.lookupUser(form.Get("login_hint"))
		if !ok || !s.checkTOTP(u, form.Get("otp")) {
			oauthError(w, r, http.StatusBadRequest, "invalid_grant", "The one-time passcode was invalid.")
			return
		}
		s.writeTokens(w, r, u)

	case directauth.GrantTypeOob:
		s.redeemOob(w, r, "")

	case directauth.GrantTypeOtpMfa:
		mfaToken := form.Get("mfa_token")
		u, ok := s.lookupMfa(mfaToken)
		if !ok {
			oauthError(w, r, http.StatusBadRequest, "invalid_grant", "The mfa_token is invalid.")
			return
		}
		if !s.checkTOTP(u, form.Get("otp")) {
			oauthError(w, r, http.StatusBadRequest, "invalid_grant", "The one-time passcode was invalid.")
			return
		}
		s.consumeMfa(mfaToken)
		s.writeTokens(w, r, u)

	case directauth.GrantTypeOobMfa:
		mfaToken := form.Get("mfa_token")
		if _, ok := s.lookupMfa(mfaToken); !ok {
			oauthError(w, r, http.StatusBadRequest, "invalid_grant", "The mfa_token is invalid.")
			return
		}
		s.redeemOob(w, r, mfaToken)

	default:
		oauthError(w, r, http.StatusBadRequest, "unsupported_grant_type", "The grant type is not supported by the authorization server.")
	}
}

func (s *Server) redeemOob(w http.ResponseWriter, r *http.Request, mfaToken string) {
	t, res := s.redeem(r.PostForm.Get("oob_code"), r.PostForm.Get("binding_code"), mfaToken)
	switch res {
	case redeemUnknown:
		oauthError(w, r, http.StatusBadRequest, "invalid_grant", "The oob_code is invalid.")
	case redeemExpired:
		oauthError(w, r, http.StatusBadRequest, "expired_token", "The oob_code has expired.")
	case redeemPending:
		oauthError(w, r, http.StatusBadRequest, "authorization_pending", "The authorization request is still pending.")
	case redeemSlowDown:
		oauthError(w, r, http.StatusBadRequest, "slow_down", "The client is polling too quickly.")
	case redeemRejected:
		oauthError(w, r, http.StatusBadRequest, "invalid_grant", "The binding code was invalid.")
	default:
		u, ok := s.lookupUser(t.username)
		if !ok {
			oauthError(w, r, http.StatusBadRequest, "invalid_grant", "The user no longer exists.")
			return
		}
		if mfaToken != "" {
			s.consumeMfa(mfaToken)
		}
		s.writeTokens(w, r, u)
	}
}

func (s *Server) handleChallenge(w http.ResponseWriter, r *http.Request) {
	if !s.readForm(w, r) || !s.authenticateClient(w, r) {
		return
	}
	form := r.PostForm

	mfaToken := form.Get("mfa_token")
	u, ok := s.lookupMfa(mfaToken)
	if !ok {
		oauthError(w, r, http.StatusBadRequest, "invalid_grant", "The mfa_token is invalid.")
		return
	}
	types := strings.Fields(form.Get("challenge_types_supported"))
	hint := form.Get("channel_hint")

	if hint == "" && slices.Contains(types, string(directauth.ChallengeOtpMfa)) && u.totpSecret != "" {
		render.JSON(w, r, wire.ChallengeResponse{ChallengeType: string(directauth.ChallengeOtpMfa)})
		return
	}
	if !slices.Contains(types, string(directauth.ChallengeOobMfa)) {
		oauthError(w, r, http.StatusBadRequest, "unsupported_challenge_type", "No supported challenge type is available for the user.")
		return
	}

	channel := directauth.ChannelPush
	if hint != "" {
		c, ok := directauth.ParseOobChannel(hint)
		if !ok {
			oauthError(w, r, http.StatusBadRequest, "invalid_request", "The channel_hint is invalid.")
			return
		}
		channel = c
	}
	t := s.newOob(u, channel, mfaToken)
	render.JSON(w, r, t.response(s.oobExpiresIn(), s.cfg.PollInterval, string(directauth.ChallengeOobMfa)))
}

func (s *Server) handlePrimaryAuthenticate(w http.ResponseWriter, r *http.Request) {
	if !s.readForm(w, r) || !s.authenticateClient(w, r) {
		return
	}
	form := r.PostForm

	u, ok := s.lookupUser(form.Get("login_hint"))
	if !ok {
		oauthError(w, r, http.StatusBadRequest, "invalid_grant", "The user could not be found.")
		return
	}
	channel, ok := directauth.ParseOobChannel(form.Get("channel_hint"))
	if !ok {
		oauthError(w, r, http.StatusBadRequest, "invalid_request", "The channel_hint is invalid.")
		return
	}
	t := s.newOob(u, channel, "")
	render.JSON(w, r, t.response(s.oobExpiresIn(), s.cfg.PollInterval, ""))
}

func (s *Server) readForm(w http.ResponseWriter, r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mediaType != "application/x-www-form-urlencoded" {
		oauthError(w, r, http.StatusBadRequest, "invalid_request", "The request body must be form encoded.")
		return false
	}
	if err := r.ParseForm(); err != nil {
		oauthError(w, r, http.StatusBadRequest, "invalid_request", "The request body could not be parsed.")
		return false
	}
	return true
}

func (s *Server) authenticateClient(w http.ResponseWriter, r *http.Request) bool {
	if r.PostForm.Get("client_id") != s.cfg.ClientID {
		render.Status(r, http.StatusUnauthorized)
		render.JSON(w, r, wire.ErrorResponse{
			ErrorCode:    errorCodeAuthFailed,
			ErrorSummary: "Authentication failed",
			ErrorLink:    errorCodeAuthFailed,
			ErrorID:      uuid.NewString(),
			ErrorCauses:  []wire.ErrorCause{{ErrorSummary: "client_id is not registered"}},
		})
		return false
	}
	if s.cfg.ClientSecret != "" && r.PostForm.Get("client_secret") != s.cfg.ClientSecret {
		oauthError(w, r, http.StatusUnauthorized, "invalid_client", "Client authentication failed.")
		return false
	}
	return true
}

func (s *Server) writeTokens(w http.ResponseWriter, r *http.Request, u *User) {
	scope := r.PostForm.Get("scope")
	if scope == "" {
		scope = "openid"
	}
	scopes := strings.Fields(scope)

	resp := wire.TokenResponse{
		TokenType:   "Bearer",
		ExpiresIn:   int(s.cfg.TokenTTL / time.Second),
		AccessToken: uuid.NewString(),
		Scope:       scope,
	}
	if slices.Contains(scopes, "offline_access") {
		resp.RefreshToken = uuid.NewString()
	}
	if slices.Contains(scopes, "openid") {
		idToken, err := s.signIDToken(r, u)
		if err != nil {
			oauthError(w, r, http.StatusInternalServerError, "server_error", "The ID token could not be signed.")
			return
		}
		resp.IDToken = idToken
	}
	render.JSON(w, r, resp)
}

func (s *Server) signIDToken(r *http.Request, u *User) (string, error) {
	now := s.cfg.Now()
	claims := jwt.MapClaims{
		"iss":                s.issuerFor(r),
		"sub":                u.Username,
		"aud":                s.cfg.ClientID,
		"iat":                now.Unix(),
		"exp":                now.Add(s.cfg.TokenTTL).Unix(),
		"preferred_username": u.Username,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.cfg.SigningKey)
}

func (s *Server) issuerFor(r *http.Request) string {
	base := s.cfg.Issuer
	if base == "" {
		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		base = scheme + "://" + r.Host
	}
	if id := chi.URLParam(r, "authServerID"); id != "" {
		return base + "/oauth2/" + id
	}
	return base
}

func (s *Server) oobExpiresIn() int {
	return int(s.cfg.OobTTL / time.Second)
}

func (s *Server) issueMfaToken(username string) string {
	token := uuid.NewString()
	s.mu.Lock()
	s.mfaTokens[token] = username
	s.mu.Unlock()
	return token
}

func (s *Server) lookupMfa(token string) (*User, bool) {
	if token == "" {
		return nil, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	username, ok := s.mfaTokens[token]
	if !ok {
		return nil, false
	}
	u, ok := s.users[username]
	return u, ok
}

func (s *Server) consumeMfa(token string) {
	s.mu.Lock()
	delete(s.mfaTokens, token)
	s.mu.Unlock()
}

func oauthError(w http.ResponseWriter, r *http.Request, status int, code, description string) {
	render.Status(r, status)
	render.JSON(w, r, wire.ErrorResponse{Error: code, ErrorDescription: description})
}
