package directauth

import (
	"fmt"
	"mime"
	"net/http"

	"github.com/MrEthical07/directauth/internal/wire"
)

// responseShape is what a 200 body is expected to decode into.
type responseShape int

const (
	shapeToken responseShape = iota
	shapeChallenge
	shapeOob
)

func isJSON(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	return err == nil && mt == contentTypeJSON
}

// classify maps a raw response to exactly one State. mfa is the step-up context the
// request was made under, or nil.
func (sc *sessionContext) classify(resp *Response, shape responseShape, mfa *MfaContext) State {
	if !isJSON(resp.ContentType) {
		return newInternalError(ErrorCodeUnsupportedContentType,
			fmt.Sprintf("unsupported content type %q", resp.ContentType), nil)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		if shape == shapeToken {
			return sc.classifyToken(resp)
		}
		return sc.classifyChallenge(resp, shape, mfa)
	case resp.StatusCode >= 400 && resp.StatusCode <= 499:
		return sc.classifyError(resp, true)
	case resp.StatusCode >= 500 && resp.StatusCode <= 599:
		return sc.classifyError(resp, false)
	default:
		return newInternalError(ErrorCodeUnexpectedHTTPStatus,
			fmt.Sprintf("unexpected http status %d", resp.StatusCode), nil)
	}
}

func (sc *sessionContext) classifyToken(resp *Response) State {
	tr, err := wire.DecodeToken(resp.Body)
	if err != nil {
		return newInternalError(ErrorCodeInvalidResponse, "invalid token response", err)
	}
	return &Authenticated{Token: &Token{
		TokenType:       tr.TokenType,
		ExpiresIn:       tr.ExpiresIn,
		AccessToken:     tr.AccessToken,
		RefreshToken:    tr.RefreshToken,
		IDToken:         tr.IDToken,
		Scope:           tr.Scope,
		DeviceSecret:    tr.DeviceSecret,
		IssuedTokenType: tr.IssuedTokenType,
		Endpoints:       sc.endpoints,
	}}
}

func invalidResponse(format string, args ...any) *InternalError {
	return newInternalError(ErrorCodeInvalidResponse, fmt.Sprintf(format, args...), nil)
}

func (sc *sessionContext) classifyChallenge(resp *Response, shape responseShape, mfa *MfaContext) State {
	cr, err := wire.DecodeChallenge(resp.Body)
	if err != nil {
		return newInternalError(ErrorCodeInvalidResponse, "invalid challenge response", err)
	}

	var challengeType *ChallengeGrantType
	if cr.ChallengeType != "" {
		ct, ok := ParseChallengeGrantType(cr.ChallengeType)
		if !ok {
			return invalidResponse("unknown challenge_type %q", cr.ChallengeType)
		}
		challengeType = &ct
	} else if shape == shapeChallenge {
		return invalidResponse("challenge response without challenge_type")
	}

	if challengeType != nil {
		switch *challengeType {
		case ChallengeWebAuthnMfa:
			return newInternalError(ErrorCodeWebAuthnNotSupported, "webauthn challenge is not supported", nil)
		case ChallengeOtpMfa:
			// The code comes from an authenticator app; there is no oob code to poll.
			return newContinuation(BindingContext{
				BindingMethod: BindingPrompt,
				ChallengeType: challengeType,
				IssuedAt:      sc.now(),
			}, mfa)
		}
	}

	return sc.oobContinuation(cr, challengeType, mfa)
}

func (sc *sessionContext) oobContinuation(cr *wire.ChallengeResponse, challengeType *ChallengeGrantType, mfa *MfaContext) State {
	if cr.OobCode == "" {
		return invalidResponse("missing oob_code")
	}
	if cr.ExpiresIn == nil {
		return invalidResponse("missing expires_in")
	}
	channel, ok := ParseOobChannel(cr.Channel)
	if !ok {
		return invalidResponse("unknown channel %q", cr.Channel)
	}
	if cr.BindingMethod == "" {
		return invalidResponse("missing binding_method")
	}
	method, ok := ParseBindingMethod(cr.BindingMethod)
	if !ok {
		return invalidResponse("unknown binding_method %q", cr.BindingMethod)
	}
	if method == BindingTransfer && cr.BindingCode == "" {
		return invalidResponse("transfer binding without binding_code")
	}
	if channel == ChannelPush && cr.Interval == nil {
		return invalidResponse("push channel without interval")
	}

	b := BindingContext{
		OobCode:       cr.OobCode,
		ExpiresIn:     *cr.ExpiresIn,
		Channel:       channel,
		BindingMethod: method,
		BindingCode:   cr.BindingCode,
		ChallengeType: challengeType,
		IssuedAt:      sc.now(),
	}
	if cr.Interval != nil {
		v := *cr.Interval
		b.Interval = &v
	}
	return newContinuation(b, mfa)
}

func (sc *sessionContext) classifyError(resp *Response, clientError bool) State {
	er, err := wire.DecodeError(resp.Body)
	if err != nil {
		return newInternalError(ErrorCodeInvalidResponse, "invalid error response", err)
	}

	if er.IsOAuth2() {
		code := ParseOAuth2ErrorCode(er.Error)
		if clientError {
			switch code {
			case OAuth2ErrorMfaRequired:
				if er.MfaToken == "" {
					return invalidResponse("mfa_required without mfa_token")
				}
				return &MfaRequired{mfa: MfaContext{
					SupportedChallengeTypes: sc.supportedChallengeTypes(),
					MfaToken:                er.MfaToken,
				}}
			case OAuth2ErrorAuthorizationPending:
				return &AuthorizationPending{Since: sc.now()}
			}
		}
		return &OAuth2Error{
			Code:        code,
			RawCode:     er.Error,
			HTTPStatus:  resp.StatusCode,
			Description: er.ErrorDescription,
		}
	}

	causes := make([]string, 0, len(er.ErrorCauses))
	for _, c := range er.ErrorCauses {
		causes = append(causes, c.ErrorSummary)
	}
	return &APIError{
		ErrorCode:    er.ErrorCode,
		ErrorSummary: er.ErrorSummary,
		ErrorLink:    er.ErrorLink,
		ErrorID:      er.ErrorID,
		ErrorCauses:  causes,
		HTTPStatus:   resp.StatusCode,
	}
}
