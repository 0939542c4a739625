package directauth

import "strings"

// GrantType is an OAuth2 grant accepted by the token endpoint.
type GrantType string

const (
	GrantTypePassword    GrantType = "password"
	GrantTypeOtp         GrantType = "urn:okta:params:oauth:grant-type:otp"
	GrantTypeOob         GrantType = "urn:okta:params:oauth:grant-type:oob"
	GrantTypeOtpMfa      GrantType = "http://auth0.com/oauth/grant-type/mfa-otp"
	GrantTypeOobMfa      GrantType = "http://auth0.com/oauth/grant-type/mfa-oob"
	GrantTypeWebAuthn    GrantType = "urn:okta:params:oauth:grant-type:webauthn"
	GrantTypeWebAuthnMfa GrantType = "urn:okta:params:oauth:grant-type:mfa-webauthn"
)

// DefaultGrantTypes is advertised in grant_types_supported when the builder is not given a list.
var DefaultGrantTypes = []GrantType{
	GrantTypePassword,
	GrantTypeOob,
	GrantTypeOtp,
	GrantTypeOtpMfa,
	GrantTypeOobMfa,
	GrantTypeWebAuthn,
	GrantTypeWebAuthnMfa,
}

// ChallengeGrantType is the subset of grant types a server may ask for in an MFA challenge.
type ChallengeGrantType string

const (
	ChallengeOobMfa      ChallengeGrantType = ChallengeGrantType(GrantTypeOobMfa)
	ChallengeOtpMfa      ChallengeGrantType = ChallengeGrantType(GrantTypeOtpMfa)
	ChallengeWebAuthnMfa ChallengeGrantType = ChallengeGrantType(GrantTypeWebAuthnMfa)
)

// ParseChallengeGrantType maps a wire value to a ChallengeGrantType.
func ParseChallengeGrantType(s string) (ChallengeGrantType, bool) {
	switch ChallengeGrantType(s) {
	case ChallengeOobMfa, ChallengeOtpMfa, ChallengeWebAuthnMfa:
		return ChallengeGrantType(s), true
	default:
		return "", false
	}
}

func challengeTypesOf(grants []GrantType) []ChallengeGrantType {
	out := make([]ChallengeGrantType, 0, 3)
	for _, g := range grants {
		if c, ok := ParseChallengeGrantType(string(g)); ok {
			out = append(out, c)
		}
	}
	return out
}

// OobChannel is the out-of-band delivery channel.
type OobChannel string

const (
	ChannelPush  OobChannel = "push"
	ChannelSMS   OobChannel = "sms"
	ChannelVoice OobChannel = "voice"
)

// ParseOobChannel maps a wire value to an OobChannel. Matching is case-insensitive.
func ParseOobChannel(s string) (OobChannel, bool) {
	switch c := OobChannel(strings.ToLower(s)); c {
	case ChannelPush, ChannelSMS, ChannelVoice:
		return c, true
	default:
		return "", false
	}
}

// BindingMethod is how an out-of-band challenge is bound to the requesting device.
type BindingMethod string

const (
	BindingNone     BindingMethod = "none"
	BindingPrompt   BindingMethod = "prompt"
	BindingTransfer BindingMethod = "transfer"
)

// ParseBindingMethod maps a wire value to a BindingMethod. Matching is case-insensitive.
func ParseBindingMethod(s string) (BindingMethod, bool) {
	switch b := BindingMethod(strings.ToLower(s)); b {
	case BindingNone, BindingPrompt, BindingTransfer:
		return b, true
	default:
		return "", false
	}
}

// PrimaryFactor is the first factor passed to [Flow.Start].
//
// Implementations are [Password], [Otp], [Oob] and [WebAuthn].
type PrimaryFactor interface {
	primaryFactor()
}

// SecondaryFactor is the factor passed to [Flow.Resume] after [MfaRequired].
//
// Implementations are [Otp], [Oob] and [WebAuthn].
type SecondaryFactor interface {
	secondaryFactor()
}

// Password authenticates with the resource owner password grant.
type Password struct {
	Password string
}

// Otp authenticates with a one-time passcode.
type Otp struct {
	PassCode string
}

// Oob starts an out-of-band authentication on the given channel.
type Oob struct {
	Channel OobChannel
}

// WebAuthn carries a signed assertion. A nil Assertion is not supported and
// yields [ErrorCodeWebAuthnNotSupported].
type WebAuthn struct {
	Assertion *WebAuthnAssertion
}

// WebAuthnAssertion is the base64url-encoded output of navigator.credentials.get.
type WebAuthnAssertion struct {
	AuthenticatorData string
	ClientDataJSON    string
	Signature         string
}

func (Password) primaryFactor() {}
func (Otp) primaryFactor()      {}
func (Oob) primaryFactor()      {}
func (WebAuthn) primaryFactor() {}

func (Otp) secondaryFactor()      {}
func (Oob) secondaryFactor()      {}
func (WebAuthn) secondaryFactor() {}

// ErrorCode classifies an [InternalError].
type ErrorCode string

const (
	ErrorCodeUnsupportedContentType ErrorCode = "UNSUPPORTED_CONTENT_TYPE"
	ErrorCodeInvalidResponse        ErrorCode = "INVALID_RESPONSE"
	ErrorCodeUnexpectedHTTPStatus   ErrorCode = "UNEXPECTED_HTTP_STATUS"
	ErrorCodeUnknown                ErrorCode = "UNKNOWN_ERROR"
	ErrorCodeWebAuthnNotSupported   ErrorCode = "WEBAUTHN_NOT_SUPPORTED"
	ErrorCodeConcurrentOperation    ErrorCode = "CONCURRENT_OPERATION"
	ErrorCodeInvalidContinuation    ErrorCode = "INVALID_CONTINUATION"
	ErrorCodePollingExpired         ErrorCode = "POLLING_EXPIRED"
)

// OAuth2ErrorCode is the closed set of OAuth2 error codes the engine recognizes.
// Unrecognized codes map to OAuth2ErrorUnknown; the raw string is kept on [OAuth2Error].
type OAuth2ErrorCode string

const (
	OAuth2ErrorUnknown                  OAuth2ErrorCode = ""
	OAuth2ErrorInvalidRequest           OAuth2ErrorCode = "invalid_request"
	OAuth2ErrorInvalidClient            OAuth2ErrorCode = "invalid_client"
	OAuth2ErrorInvalidGrant             OAuth2ErrorCode = "invalid_grant"
	OAuth2ErrorUnauthorizedClient       OAuth2ErrorCode = "unauthorized_client"
	OAuth2ErrorUnsupportedGrantType     OAuth2ErrorCode = "unsupported_grant_type"
	OAuth2ErrorInvalidScope             OAuth2ErrorCode = "invalid_scope"
	OAuth2ErrorAccessDenied             OAuth2ErrorCode = "access_denied"
	OAuth2ErrorMfaRequired              OAuth2ErrorCode = "mfa_required"
	OAuth2ErrorAuthorizationPending     OAuth2ErrorCode = "authorization_pending"
	OAuth2ErrorSlowDown                 OAuth2ErrorCode = "slow_down"
	OAuth2ErrorExpiredToken             OAuth2ErrorCode = "expired_token"
	OAuth2ErrorUnsupportedChallengeType OAuth2ErrorCode = "unsupported_challenge_type"
	OAuth2ErrorServerError              OAuth2ErrorCode = "server_error"
	OAuth2ErrorTemporarilyUnavailable   OAuth2ErrorCode = "temporarily_unavailable"
)

var knownOAuth2Errors = map[string]OAuth2ErrorCode{
	string(OAuth2ErrorInvalidRequest):           OAuth2ErrorInvalidRequest,
	string(OAuth2ErrorInvalidClient):            OAuth2ErrorInvalidClient,
	string(OAuth2ErrorInvalidGrant):             OAuth2ErrorInvalidGrant,
	string(OAuth2ErrorUnauthorizedClient):       OAuth2ErrorUnauthorizedClient,
	string(OAuth2ErrorUnsupportedGrantType):     OAuth2ErrorUnsupportedGrantType,
	string(OAuth2ErrorInvalidScope):             OAuth2ErrorInvalidScope,
	string(OAuth2ErrorAccessDenied):             OAuth2ErrorAccessDenied,
	string(OAuth2ErrorMfaRequired):              OAuth2ErrorMfaRequired,
	string(OAuth2ErrorAuthorizationPending):     OAuth2ErrorAuthorizationPending,
	string(OAuth2ErrorSlowDown):                 OAuth2ErrorSlowDown,
	string(OAuth2ErrorExpiredToken):             OAuth2ErrorExpiredToken,
	string(OAuth2ErrorUnsupportedChallengeType): OAuth2ErrorUnsupportedChallengeType,
	string(OAuth2ErrorServerError):              OAuth2ErrorServerError,
	string(OAuth2ErrorTemporarilyUnavailable):   OAuth2ErrorTemporarilyUnavailable,
}

// ParseOAuth2ErrorCode maps a wire error string to a known code, or OAuth2ErrorUnknown.
func ParseOAuth2ErrorCode(s string) OAuth2ErrorCode {
	if c, ok := knownOAuth2Errors[s]; ok {
		return c
	}
	return OAuth2ErrorUnknown
}
