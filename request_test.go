package directauth

import (
	"net/http"
	"sort"
	"strings"
	"testing"
)

func testSession(t *testing.T, b *Builder) *sessionContext {
	t.Helper()
	f, err := b.WithExecutor(newScriptedExecutor()).Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(f.Close)
	return f.sc
}

func formKeys(r *Request) []string {
	keys := make([]string, 0, len(r.Form))
	for k := range r.Form {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func TestRequestBuilderFieldSets(t *testing.T) {
	sc := testSession(t, New(testIssuer, testClientID, "openid"))
	mfa := MfaContext{SupportedChallengeTypes: []ChallengeGrantType{ChallengeOobMfa, ChallengeOtpMfa}, MfaToken: "mt"}
	assertion := WebAuthnAssertion{AuthenticatorData: "a", ClientDataJSON: "c", Signature: "s"}

	common := []string{"client_id", "grant_types_supported", "scope"}
	tests := []struct {
		name     string
		req      *Request
		endpoint string
		extra    []string
	}{
		{"password", sc.passwordRequest("u", "p"), sc.endpoints.Token, []string{"grant_type", "password", "username"}},
		{"otp", sc.otpRequest("u", "1"), sc.endpoints.Token, []string{"grant_type", "login_hint", "otp"}},
		{"oob", sc.oobRequest("oc", ""), sc.endpoints.Token, []string{"grant_type", "oob_code"}},
		{"oob with binding", sc.oobRequest("oc", "bc"), sc.endpoints.Token, []string{"binding_code", "grant_type", "oob_code"}},
		{"mfa otp", sc.mfaOtpRequest("1", "mt"), sc.endpoints.Token, []string{"grant_type", "mfa_token", "otp"}},
		{"oob mfa", sc.oobMfaRequest("oc", "", "mt"), sc.endpoints.Token, []string{"grant_type", "mfa_token", "oob_code"}},
		{"webauthn", sc.webAuthnRequest(assertion), sc.endpoints.Token, []string{"authenticatorData", "clientDataJSON", "grant_type", "signature"}},
		{"webauthn mfa", sc.webAuthnMfaRequest(assertion, "mt"), sc.endpoints.Token, []string{"authenticatorData", "clientDataJSON", "grant_type", "mfa_token", "signature"}},
		{"challenge", sc.challengeRequest(mfa, ChannelSMS), sc.endpoints.Challenge, []string{"challenge_types_supported", "channel_hint", "mfa_token"}},
		{"challenge without channel", sc.challengeRequest(mfa, ""), sc.endpoints.Challenge, []string{"challenge_types_supported", "mfa_token"}},
		{"oob authenticate", sc.oobAuthenticateRequest("u", ChannelPush), sc.endpoints.OobAuthenticate, []string{"channel_hint", "login_hint"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.req.Method != http.MethodPost {
				t.Fatalf("expected POST, got %s", tt.req.Method)
			}
			if tt.req.URL != tt.endpoint {
				t.Fatalf("expected %s, got %s", tt.endpoint, tt.req.URL)
			}
			if tt.req.ContentType != "application/x-www-form-urlencoded" {
				t.Fatalf("unexpected content type %s", tt.req.ContentType)
			}
			if tt.req.Header.Get("Accept") != "application/json" {
				t.Fatalf("unexpected accept %q", tt.req.Header.Get("Accept"))
			}

			want := append(append([]string(nil), common...), tt.extra...)
			sort.Strings(want)
			got := formKeys(tt.req)
			if strings.Join(got, ",") != strings.Join(want, ",") {
				t.Fatalf("form keys\n got: %v\nwant: %v", got, want)
			}
		})
	}
}

func TestRequestCommonFields(t *testing.T) {
	sc := testSession(t, New(testIssuer, testClientID, "openid", "profile").
		WithSupportedGrantTypes(GrantTypePassword, GrantTypeOtpMfa))

	req := sc.passwordRequest("u", "p")
	if req.Form.Get("client_id") != testClientID {
		t.Fatalf("unexpected client_id %q", req.Form.Get("client_id"))
	}
	if req.Form.Get("scope") != "openid profile" {
		t.Fatalf("scope must be space-joined, got %q", req.Form.Get("scope"))
	}
	if req.Form.Get("grant_types_supported") != "password http://auth0.com/oauth/grant-type/mfa-otp" {
		t.Fatalf("unexpected grant_types_supported %q", req.Form.Get("grant_types_supported"))
	}
	if req.Form.Has("client_secret") || req.Form.Has("acr_values") {
		t.Fatalf("optional fields must be absent: %v", req.Form)
	}
}

func TestRequestClientSecretOnlyWhenNonBlank(t *testing.T) {
	blank := testSession(t, New(testIssuer, testClientID, "openid").WithClientSecret("   "))
	if blank.passwordRequest("u", "p").Form.Has("client_secret") {
		t.Fatal("blank secret must not be sent")
	}

	set := testSession(t, New(testIssuer, testClientID, "openid").WithClientSecret("s3cret"))
	if got := set.passwordRequest("u", "p").Form.Get("client_secret"); got != "s3cret" {
		t.Fatalf("expected secret, got %q", got)
	}
}

func TestRequestAcrValuesAndQuery(t *testing.T) {
	sc := testSession(t, New(testIssuer, testClientID, "openid").
		WithAcrValues("urn:okta:loa:2fa:any").
		WithAdditionalParameters(map[string]string{"device": "kiosk"}))

	req := sc.otpRequest("u", "1")
	if req.Form.Get("acr_values") != "urn:okta:loa:2fa:any" {
		t.Fatalf("unexpected acr_values %q", req.Form.Get("acr_values"))
	}
	if req.Query.Get("device") != "kiosk" {
		t.Fatalf("additional parameters must go to the query, got %v", req.Query)
	}
	if req.FullURL() != sc.endpoints.Token+"?device=kiosk" {
		t.Fatalf("unexpected full url %s", req.FullURL())
	}
}

func TestEndpointsWithAuthorizationServer(t *testing.T) {
	plain := newEndpoints("https://example.okta.com/", "")
	if plain.Token != "https://example.okta.com/oauth2/v1/token" {
		t.Fatalf("unexpected token endpoint %s", plain.Token)
	}

	custom := newEndpoints("https://example.okta.com", "default")
	if custom.Token != "https://example.okta.com/oauth2/default/v1/token" ||
		custom.Challenge != "https://example.okta.com/oauth2/default/v1/challenge" ||
		custom.OobAuthenticate != "https://example.okta.com/oauth2/default/v1/primary-authenticate" {
		t.Fatalf("unexpected endpoints %+v", custom)
	}
}
