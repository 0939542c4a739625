package directauth

// StateKind names a State variant for logs, metrics and audit events.
type StateKind string

const (
	KindIdle                 StateKind = "idle"
	KindAuthorizationPending StateKind = "authorization_pending"
	KindMfaRequired          StateKind = "mfa_required"
	KindAuthenticated        StateKind = "authenticated"
	KindCanceled             StateKind = "canceled"
	KindOobPending           StateKind = "oob_pending"
	KindPrompt               StateKind = "prompt"
	KindTransfer             StateKind = "transfer"
	KindInternalError        StateKind = "internal_error"
	KindOAuth2Error          StateKind = "oauth2_error"
	KindAPIError             StateKind = "api_error"
)

// State is the closed set of outcomes a Flow operation can produce.
//
// The variants are [*Idle], [*AuthorizationPending], [*MfaRequired], [*Authenticated],
// [*Canceled], the continuations [*OobPending], [*Prompt] and [*Transfer], and the
// error states [*InternalError], [*OAuth2Error] and [*APIError].
//
//sumtype:decl
type State interface {
	isState()
	Kind() StateKind
}

// Idle is the initial state and the state after Reset.
type Idle struct{}

// Canceled is returned when an operation observed cancellation. It is never an error.
type Canceled struct{}

// AuthorizationPending means the server has not yet seen the out-of-band approval.
// Continuation is the continuation that was polled and should be polled again.
type AuthorizationPending struct {
	Since        int64
	Continuation Continuation
}

// MfaRequired means the primary factor was accepted and a second factor is needed.
type MfaRequired struct {
	mfa MfaContext
}

// MfaContext returns a copy of the negotiated MFA context.
func (m *MfaRequired) MfaContext() MfaContext { return m.mfa.clone() }

// Authenticated carries the issued token set.
type Authenticated struct {
	Token *Token
}

func (*Idle) isState()                 {}
func (*Canceled) isState()             {}
func (*AuthorizationPending) isState() {}
func (*MfaRequired) isState()          {}
func (*Authenticated) isState()        {}

func (*Idle) Kind() StateKind                 { return KindIdle }
func (*Canceled) Kind() StateKind             { return KindCanceled }
func (*AuthorizationPending) Kind() StateKind { return KindAuthorizationPending }
func (*MfaRequired) Kind() StateKind          { return KindMfaRequired }
func (*Authenticated) Kind() StateKind        { return KindAuthenticated }

// MfaContext is the ephemeral step-up context returned with mfa_required.
type MfaContext struct {
	SupportedChallengeTypes []ChallengeGrantType
	MfaToken                string
}

func (m MfaContext) clone() MfaContext {
	out := m
	out.SupportedChallengeTypes = append([]ChallengeGrantType(nil), m.SupportedChallengeTypes...)
	return out
}

// BindingContext describes a pending out-of-band challenge.
//
// A Transfer binding always has a BindingCode and a push channel always has an Interval.
type BindingContext struct {
	OobCode       string
	ExpiresIn     int
	Interval      *int
	Channel       OobChannel
	BindingMethod BindingMethod
	BindingCode   string
	ChallengeType *ChallengeGrantType
	IssuedAt      int64
}

// ExpiresAt is the epoch second after which the oob code is no longer valid.
func (b BindingContext) ExpiresAt() int64 {
	return b.IssuedAt + int64(b.ExpiresIn)
}

// Expired reports whether the binding has expired at epoch second now.
func (b BindingContext) Expired(now int64) bool {
	return now >= b.ExpiresAt()
}

func (b BindingContext) clone() BindingContext {
	out := b
	if b.Interval != nil {
		v := *b.Interval
		out.Interval = &v
	}
	if b.ChallengeType != nil {
		v := *b.ChallengeType
		out.ChallengeType = &v
	}
	return out
}

// Continuation is a State that waits on the caller: re-poll, supply a code, or confirm a transfer.
//
//sumtype:decl
type Continuation interface {
	State
	Binding() BindingContext
	Mfa() *MfaContext
	continuation()
}

type continuationBase struct {
	binding BindingContext
	mfa     *MfaContext
}

// Binding returns a copy of the out-of-band binding.
func (c *continuationBase) Binding() BindingContext { return c.binding.clone() }

// Mfa returns a copy of the MFA context, or nil for a primary-factor continuation.
func (c *continuationBase) Mfa() *MfaContext {
	if c.mfa == nil {
		return nil
	}
	m := c.mfa.clone()
	return &m
}

func (*continuationBase) continuation() {}
func (*continuationBase) isState()      {}

// OobPending waits for the user to approve a push notification. Poll with [Flow.ProceedOob].
type OobPending struct{ continuationBase }

// Prompt waits for a code the user reads from SMS, voice or an authenticator.
// Submit it with [Flow.ProceedPrompt].
type Prompt struct{ continuationBase }

// Transfer waits for the user to enter BindingCode on the other device. Poll with [Flow.ProceedTransfer].
type Transfer struct{ continuationBase }

func (*OobPending) Kind() StateKind { return KindOobPending }
func (*Prompt) Kind() StateKind     { return KindPrompt }
func (*Transfer) Kind() StateKind   { return KindTransfer }

func newContinuation(b BindingContext, mfa *MfaContext) Continuation {
	base := continuationBase{binding: b, mfa: mfa}
	switch b.BindingMethod {
	case BindingPrompt:
		return &Prompt{base}
	case BindingTransfer:
		return &Transfer{base}
	default:
		return &OobPending{base}
	}
}

// IsTerminal reports whether s ends an attempt: Authenticated, Canceled or an error state.
func IsTerminal(s State) bool {
	switch s.(type) {
	case *Authenticated, *Canceled, *InternalError, *OAuth2Error, *APIError:
		return true
	default:
		return false
	}
}
