package directauth

import (
	"net/http"
	"net/url"
	"strings"
)

const (
	contentTypeForm = "application/x-www-form-urlencoded"
	contentTypeJSON = "application/json"
)

// Endpoints is the set of Direct-Auth endpoints derived from the issuer.
type Endpoints struct {
	Issuer          string
	Token           string
	Challenge       string
	OobAuthenticate string
}

func newEndpoints(issuer, authorizationServerID string) Endpoints {
	base := strings.TrimRight(issuer, "/") + "/oauth2/"
	if authorizationServerID != "" {
		base += url.PathEscape(authorizationServerID) + "/"
	}
	base += "v1/"
	return Endpoints{
		Issuer:          issuer,
		Token:           base + "token",
		Challenge:       base + "challenge",
		OobAuthenticate: base + "primary-authenticate",
	}
}

// Request is one wire call handed to the Executor.
type Request struct {
	Method      string
	URL         string
	Header      http.Header
	Query       url.Values
	ContentType string
	Form        url.Values
}

// FullURL is URL with Query appended.
func (r *Request) FullURL() string {
	if len(r.Query) == 0 {
		return r.URL
	}
	sep := "?"
	if strings.Contains(r.URL, "?") {
		sep = "&"
	}
	return r.URL + sep + r.Query.Encode()
}

func (sc *sessionContext) newRequest(endpoint string, form url.Values) *Request {
	form.Set("client_id", sc.clientID)
	if strings.TrimSpace(sc.clientSecret) != "" {
		form.Set("client_secret", sc.clientSecret)
	}
	form.Set("scope", strings.Join(sc.scopes, " "))
	form.Set("grant_types_supported", joinGrants(sc.grantTypes))
	if len(sc.acrValues) > 0 {
		form.Set("acr_values", strings.Join(sc.acrValues, " "))
	}

	query := url.Values{}
	for k, v := range sc.additionalParameters {
		query.Set(k, v)
	}

	return &Request{
		Method:      http.MethodPost,
		URL:         endpoint,
		Header:      http.Header{"Accept": []string{contentTypeJSON}},
		Query:       query,
		ContentType: contentTypeForm,
		Form:        form,
	}
}

func (sc *sessionContext) tokenRequest(grant GrantType, form url.Values) *Request {
	form.Set("grant_type", string(grant))
	return sc.newRequest(sc.endpoints.Token, form)
}

func (sc *sessionContext) passwordRequest(username, password string) *Request {
	return sc.tokenRequest(GrantTypePassword, url.Values{
		"username": {username},
		"password": {password},
	})
}

func (sc *sessionContext) otpRequest(loginHint, otp string) *Request {
	return sc.tokenRequest(GrantTypeOtp, url.Values{
		"login_hint": {loginHint},
		"otp":        {otp},
	})
}

func (sc *sessionContext) oobRequest(oobCode, bindingCode string) *Request {
	form := url.Values{"oob_code": {oobCode}}
	if bindingCode != "" {
		form.Set("binding_code", bindingCode)
	}
	return sc.tokenRequest(GrantTypeOob, form)
}

func (sc *sessionContext) oobMfaRequest(oobCode, bindingCode, mfaToken string) *Request {
	form := url.Values{
		"mfa_token": {mfaToken},
		"oob_code":  {oobCode},
	}
	if bindingCode != "" {
		form.Set("binding_code", bindingCode)
	}
	return sc.tokenRequest(GrantTypeOobMfa, form)
}

func (sc *sessionContext) mfaOtpRequest(otp, mfaToken string) *Request {
	return sc.tokenRequest(GrantTypeOtpMfa, url.Values{
		"mfa_token": {mfaToken},
		"otp":       {otp},
	})
}

func (sc *sessionContext) webAuthnRequest(a WebAuthnAssertion) *Request {
	return sc.tokenRequest(GrantTypeWebAuthn, assertionForm(a))
}

func (sc *sessionContext) webAuthnMfaRequest(a WebAuthnAssertion, mfaToken string) *Request {
	form := assertionForm(a)
	form.Set("mfa_token", mfaToken)
	return sc.tokenRequest(GrantTypeWebAuthnMfa, form)
}

func assertionForm(a WebAuthnAssertion) url.Values {
	return url.Values{
		"authenticatorData": {a.AuthenticatorData},
		"clientDataJSON":    {a.ClientDataJSON},
		"signature":         {a.Signature},
	}
}

func (sc *sessionContext) challengeRequest(mfa MfaContext, channel OobChannel) *Request {
	types := make([]string, 0, len(mfa.SupportedChallengeTypes))
	for _, t := range mfa.SupportedChallengeTypes {
		types = append(types, string(t))
	}
	form := url.Values{
		"mfa_token":                 {mfa.MfaToken},
		"challenge_types_supported": {strings.Join(types, " ")},
	}
	if channel != "" {
		form.Set("channel_hint", string(channel))
	}
	return sc.newRequest(sc.endpoints.Challenge, form)
}

func (sc *sessionContext) oobAuthenticateRequest(loginHint string, channel OobChannel) *Request {
	return sc.newRequest(sc.endpoints.OobAuthenticate, url.Values{
		"login_hint":   {loginHint},
		"channel_hint": {string(channel)},
	})
}

func joinGrants(grants []GrantType) string {
	parts := make([]string, len(grants))
	for i, g := range grants {
		parts[i] = string(g)
	}
	return strings.Join(parts, " ")
}
