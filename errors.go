package directauth

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidConfiguration is wrapped by every [Builder.Build] validation failure.
	ErrInvalidConfiguration = errors.New("invalid directauth configuration")
	// ErrBuilderUsed is returned when Build is called a second time on the same builder.
	ErrBuilderUsed = errors.New("builder already used")
	// ErrWebAuthnNotSupported matches an InternalError with ErrorCodeWebAuthnNotSupported.
	ErrWebAuthnNotSupported = errors.New("webauthn continuation not supported")
	// ErrConcurrentOperation matches an InternalError with ErrorCodeConcurrentOperation.
	ErrConcurrentOperation = errors.New("another operation is in flight")
	// ErrInvalidContinuation matches an InternalError with ErrorCodeInvalidContinuation.
	ErrInvalidContinuation = errors.New("invalid continuation")
	// ErrPollingExpired matches an InternalError with ErrorCodePollingExpired.
	ErrPollingExpired = errors.New("out-of-band polling expired")
)

var sentinelByCode = map[ErrorCode]error{
	ErrorCodeWebAuthnNotSupported: ErrWebAuthnNotSupported,
	ErrorCodeConcurrentOperation:  ErrConcurrentOperation,
	ErrorCodeInvalidContinuation:  ErrInvalidContinuation,
	ErrorCodePollingExpired:       ErrPollingExpired,
}

// ErrorState is implemented by the terminal error states [*InternalError],
// [*OAuth2Error] and [*APIError].
//
//sumtype:decl
type ErrorState interface {
	State
	error
	errorState()
}

// InternalError is a transport or contract failure: bad content type, unparseable body,
// unexpected status, executor failure, or misuse of the flow.
type InternalError struct {
	Code    ErrorCode
	Message string
	Cause   error
}

func newInternalError(code ErrorCode, message string, cause error) *InternalError {
	return &InternalError{Code: code, Message: message, Cause: cause}
}

func (e *InternalError) Error() string {
	var b strings.Builder
	b.WriteString("directauth: ")
	b.WriteString(string(e.Code))
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Cause != nil && e.Message != e.Cause.Error() {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

func (e *InternalError) Unwrap() error { return e.Cause }

// Is reports whether target is the sentinel for this error's code.
func (e *InternalError) Is(target error) bool {
	s, ok := sentinelByCode[e.Code]
	return ok && s == target
}

// OAuth2Error is a well-formed Direct-Auth error response.
type OAuth2Error struct {
	Code        OAuth2ErrorCode
	RawCode     string
	HTTPStatus  int
	Description string
}

func (e *OAuth2Error) Error() string {
	if e.Description == "" {
		return fmt.Sprintf("directauth: oauth2 error %q (status %d)", e.RawCode, e.HTTPStatus)
	}
	return fmt.Sprintf("directauth: oauth2 error %q (status %d): %s", e.RawCode, e.HTTPStatus, e.Description)
}

// APIError is a well-formed Okta API error response.
type APIError struct {
	ErrorCode    string
	ErrorSummary string
	ErrorLink    string
	ErrorID      string
	ErrorCauses  []string
	HTTPStatus   int
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("directauth: api error %s (status %d): %s", e.ErrorCode, e.HTTPStatus, e.ErrorSummary)
	if len(e.ErrorCauses) > 0 {
		msg += " [" + strings.Join(e.ErrorCauses, "; ") + "]"
	}
	return msg
}

func (*InternalError) isState() {}
func (*OAuth2Error) isState()   {}
func (*APIError) isState()      {}

func (*InternalError) errorState() {}
func (*OAuth2Error) errorState()   {}
func (*APIError) errorState()      {}

func (*InternalError) Kind() StateKind { return KindInternalError }
func (*OAuth2Error) Kind() StateKind   { return KindOAuth2Error }
func (*APIError) Kind() StateKind      { return KindAPIError }
