// Package wire holds the JSON shapes of Direct-Auth responses and their decoders.
//
// The same DTOs are used by the client classifier to decode and by the mock server to
// encode, so both sides agree on field names.
//
// # What this package must NOT do
//
//   - Interpret responses. Decoding reports shape errors only; mapping to states is the
//     caller's job.
package wire

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrEmptyBody    = errors.New("empty response body")
	ErrMissingField = errors.New("missing required field")
	ErrNotAnError   = errors.New("body is neither a direct-auth nor an api error")
)

// TokenResponse is the 200 body of the token endpoint.
type TokenResponse struct {
	TokenType       string `json:"token_type"`
	ExpiresIn       int    `json:"expires_in"`
	AccessToken     string `json:"access_token"`
	Scope           string `json:"scope,omitempty"`
	RefreshToken    string `json:"refresh_token,omitempty"`
	IDToken         string `json:"id_token,omitempty"`
	DeviceSecret    string `json:"device_secret,omitempty"`
	IssuedTokenType string `json:"issued_token_type,omitempty"`
}

// ChallengeResponse is the 200 body of the challenge and primary-authenticate endpoints.
// ChallengeType is absent on primary-authenticate responses.
type ChallengeResponse struct {
	ChallengeType string `json:"challenge_type,omitempty"`
	OobCode       string `json:"oob_code,omitempty"`
	Channel       string `json:"channel,omitempty"`
	BindingMethod string `json:"binding_method,omitempty"`
	BindingCode   string `json:"binding_code,omitempty"`
	ExpiresIn     *int   `json:"expires_in,omitempty"`
	Interval      *int   `json:"interval,omitempty"`
}

// ErrorCause is one entry of an API error's errorCauses.
type ErrorCause struct {
	ErrorSummary string `json:"errorSummary"`
}

// ErrorResponse is the union of the Direct-Auth error shape (error) and the
// Okta API error shape (errorCode).
type ErrorResponse struct {
	Error            string `json:"error,omitempty"`
	ErrorDescription string `json:"error_description,omitempty"`
	MfaToken         string `json:"mfa_token,omitempty"`

	ErrorCode    string       `json:"errorCode,omitempty"`
	ErrorSummary string       `json:"errorSummary,omitempty"`
	ErrorLink    string       `json:"errorLink,omitempty"`
	ErrorID      string       `json:"errorId,omitempty"`
	ErrorCauses  []ErrorCause `json:"errorCauses,omitempty"`
}

// IsOAuth2 reports whether the body carried the Direct-Auth error field.
func (e *ErrorResponse) IsOAuth2() bool { return e.Error != "" }

// IsAPI reports whether the body carried the API errorCode field.
func (e *ErrorResponse) IsAPI() bool { return e.ErrorCode != "" }

func decode(body []byte, v any) error {
	if len(bytes.TrimSpace(body)) == 0 {
		return ErrEmptyBody
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("decode %T: %w", v, err)
	}
	return nil
}

// DecodeToken decodes a token response. access_token and token_type are required.
func DecodeToken(body []byte) (*TokenResponse, error) {
	var out TokenResponse
	if err := decode(body, &out); err != nil {
		return nil, err
	}
	if out.AccessToken == "" {
		return nil, fmt.Errorf("%w: access_token", ErrMissingField)
	}
	if out.TokenType == "" {
		return nil, fmt.Errorf("%w: token_type", ErrMissingField)
	}
	return &out, nil
}

// DecodeChallenge decodes a challenge or primary-authenticate response without
// checking binding invariants.
func DecodeChallenge(body []byte) (*ChallengeResponse, error) {
	var out ChallengeResponse
	if err := decode(body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DecodeError decodes an error body. It fails unless error or errorCode is present.
func DecodeError(body []byte) (*ErrorResponse, error) {
	var out ErrorResponse
	if err := decode(body, &out); err != nil {
		return nil, err
	}
	if !out.IsOAuth2() && !out.IsAPI() {
		return nil, ErrNotAnError
	}
	return &out, nil
}
