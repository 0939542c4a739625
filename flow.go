package directauth

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

type operation string

const (
	opStart           operation = "start"
	opResume          operation = "resume"
	opProceedOob      operation = "proceed_oob"
	opProceedPrompt   operation = "proceed_prompt"
	opProceedTransfer operation = "proceed_transfer"
	opReset           operation = "reset"
)

// Flow drives one Direct Authentication session.
//
// All methods are safe for concurrent use. At most one wire operation runs at a time;
// a call that arrives while another is in flight returns an InternalError with
// ErrorCodeConcurrentOperation and leaves the published state untouched. Reset cancels
// the in-flight operation, which then returns Canceled without publishing.
type Flow struct {
	id     string
	sc     *sessionContext
	config Config

	sem *semaphore.Weighted

	mu         sync.Mutex
	cancel     context.CancelFunc
	generation uint64

	metrics *Metrics
	audit   *auditDispatcher
}

// ID is the random session id used to correlate logs and audit events.
func (f *Flow) ID() string { return f.id }

// Endpoints returns the endpoints derived from the issuer.
func (f *Flow) Endpoints() Endpoints { return f.sc.endpoints }

// State returns the last published state.
func (f *Flow) State() State { return f.sc.state.Load() }

// Subscribe returns a channel that always holds the latest published state. Slow readers
// skip intermediate states. Call the returned func to unsubscribe.
func (f *Flow) Subscribe() (<-chan State, func()) { return f.sc.state.Subscribe() }

// Start begins a new attempt for loginHint with a primary factor.
func (f *Flow) Start(ctx context.Context, loginHint string, factor PrimaryFactor) State {
	var s step
	switch fac := factor.(type) {
	case Password:
		s = tokenStep{f.sc, f.sc.passwordRequest(loginHint, fac.Password)}
	case Otp:
		s = tokenStep{f.sc, f.sc.otpRequest(loginHint, fac.PassCode)}
	case Oob:
		s = oobAuthenticateStep{f.sc, f.sc.oobAuthenticateRequest(loginHint, fac.Channel)}
	case WebAuthn:
		if fac.Assertion == nil {
			s = failedStep{newInternalError(ErrorCodeWebAuthnNotSupported, "webauthn without an assertion is not supported", nil)}
		} else {
			s = tokenStep{f.sc, f.sc.webAuthnRequest(*fac.Assertion)}
		}
	default:
		return newInternalError(ErrorCodeInvalidContinuation, "nil or unknown primary factor", nil)
	}
	return f.run(ctx, opStart, s, nil)
}

// Resume answers mfa with a second factor. Otp redeems the code directly, Oob asks the
// challenge endpoint for an out-of-band challenge, WebAuthn redeems an assertion.
func (f *Flow) Resume(ctx context.Context, mfa *MfaRequired, factor SecondaryFactor) State {
	if mfa == nil {
		return newInternalError(ErrorCodeInvalidContinuation, "resume requires an MfaRequired state", nil)
	}
	mctx := mfa.mfa.clone()

	var s step
	switch fac := factor.(type) {
	case Otp:
		s = tokenStep{f.sc, f.sc.mfaOtpRequest(fac.PassCode, mctx.MfaToken)}
	case Oob:
		s = challengeStep{f.sc, f.sc.challengeRequest(mctx, fac.Channel), mctx}
	case WebAuthn:
		if fac.Assertion == nil {
			s = failedStep{newInternalError(ErrorCodeWebAuthnNotSupported, "webauthn challenge is not supported", nil)}
		} else {
			s = tokenStep{f.sc, f.sc.webAuthnMfaRequest(*fac.Assertion, mctx.MfaToken)}
		}
	default:
		return newInternalError(ErrorCodeInvalidContinuation, "nil or unknown secondary factor", nil)
	}
	return f.run(ctx, opResume, s, nil)
}

// ProceedOob polls the token endpoint for a push approval.
func (f *Flow) ProceedOob(ctx context.Context, p *OobPending) State {
	if p == nil {
		return newInternalError(ErrorCodeInvalidContinuation, "proceed requires an OobPending state", nil)
	}
	return f.run(ctx, opProceedOob, f.pollStep(p.binding, p.mfa, ""), p)
}

// ProceedPrompt submits the code the user entered. For an OTP MFA prompt the code is
// redeemed with the mfa-otp grant; otherwise it is the binding code of the oob challenge.
func (f *Flow) ProceedPrompt(ctx context.Context, p *Prompt, code string) State {
	if p == nil {
		return newInternalError(ErrorCodeInvalidContinuation, "proceed requires a Prompt state", nil)
	}
	if ct := p.binding.ChallengeType; ct != nil && *ct == ChallengeOtpMfa {
		if p.mfa == nil {
			return newInternalError(ErrorCodeInvalidContinuation, "otp prompt without an mfa context", nil)
		}
		return f.run(ctx, opProceedPrompt, tokenStep{f.sc, f.sc.mfaOtpRequest(code, p.mfa.MfaToken)}, nil)
	}
	return f.run(ctx, opProceedPrompt, f.pollStep(p.binding, p.mfa, code), p)
}

// ProceedTransfer polls the token endpoint while the user enters the binding code elsewhere.
func (f *Flow) ProceedTransfer(ctx context.Context, t *Transfer) State {
	if t == nil {
		return newInternalError(ErrorCodeInvalidContinuation, "proceed requires a Transfer state", nil)
	}
	return f.run(ctx, opProceedTransfer, f.pollStep(t.binding, t.mfa, ""), t)
}

func (f *Flow) pollStep(b BindingContext, mfa *MfaContext, bindingCode string) step {
	if mfa != nil {
		return tokenStep{f.sc, f.sc.oobMfaRequest(b.OobCode, bindingCode, mfa.MfaToken)}
	}
	return tokenStep{f.sc, f.sc.oobRequest(b.OobCode, bindingCode)}
}

// Reset cancels any in-flight operation and publishes Idle, discarding all MFA and binding context.
func (f *Flow) Reset() State {
	idle := &Idle{}

	f.mu.Lock()
	f.generation++
	if f.cancel != nil {
		f.cancel()
		f.cancel = nil
	}
	f.sc.state.Store(idle)
	f.mu.Unlock()

	f.metrics.Inc(MetricFlowReset)
	f.emitAudit(context.Background(), auditEventFlowReset, opReset, idle, nil)
	if timeout := f.config.Audit.ResetFlushTimeout; timeout > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		if err := f.audit.Flush(ctx); err != nil {
			f.sc.logger.Warn("audit flush on reset timed out", slog.Uint64("dropped", f.audit.Dropped()))
		}
		cancel()
	}
	f.sc.logger.Debug("flow reset")
	return idle
}

// run executes s as the single in-flight operation and publishes its result unless it was
// canceled or superseded by Reset. polled is set when s re-polls a continuation, so an
// AuthorizationPending result can point back at it.
func (f *Flow) run(ctx context.Context, op operation, s step, polled Continuation) State {
	if ctx == nil {
		ctx = context.Background()
	}
	if !f.sem.TryAcquire(1) {
		rejected := newInternalError(ErrorCodeConcurrentOperation, "another operation is already in flight for this flow", nil)
		f.metrics.Inc(MetricConcurrentRejected)
		f.emitAudit(ctx, auditEventConcurrentRejected, op, rejected, nil)
		f.sc.logger.InfoContext(ctx, "concurrent call rejected", slog.String("operation", string(op)))
		return rejected
	}
	defer f.sem.Release(1)

	opCtx, cancel := context.WithCancel(ctx)
	f.mu.Lock()
	gen := f.generation
	f.cancel = cancel
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		if f.generation == gen {
			f.cancel = nil
		}
		f.mu.Unlock()
		cancel()
	}()

	if op == opStart {
		f.metrics.Inc(MetricFlowStarted)
		f.emitAudit(ctx, auditEventFlowStarted, op, nil, nil)
	} else {
		f.metrics.Inc(MetricFlowResumed)
		f.emitAudit(ctx, auditEventFlowResumed, op, nil, nil)
	}

	began := time.Now()
	next := s.process(opCtx)
	f.metrics.Observe(MetricStepLatency, time.Since(began))

	if pending, ok := next.(*AuthorizationPending); ok && polled != nil {
		pending.Continuation = polled
	}

	if _, ok := next.(*Canceled); !ok {
		f.mu.Lock()
		if f.generation != gen || errors.Is(opCtx.Err(), context.Canceled) {
			f.mu.Unlock()
			next = &Canceled{}
		} else {
			f.sc.state.Store(next)
			f.mu.Unlock()
		}
	}

	f.metrics.IncState(next)
	f.emitAudit(ctx, auditEventStepCompleted, op, next, func() map[string]string {
		return map[string]string{"latency_ms": formatMillis(time.Since(began))}
	})
	return next
}

// MetricsSnapshot returns the flow's counters.
func (f *Flow) MetricsSnapshot() MetricsSnapshot {
	return f.metrics.Snapshot()
}

// AuditDropped returns how many audit events were dropped because the buffer was full.
func (f *Flow) AuditDropped() uint64 {
	return f.audit.Dropped()
}

// AuditDroppedByEvent returns the non-zero drop counts keyed by audit event type.
func (f *Flow) AuditDroppedByEvent() map[string]uint64 {
	return f.audit.DroppedByEvent()
}

// FlushAudit waits until every audit event emitted so far has reached the sink.
func (f *Flow) FlushAudit(ctx context.Context) error {
	return f.audit.Flush(ctx)
}

// Close cancels any in-flight operation, flushes audit events and closes subscriber channels.
// The Flow must not be used afterwards.
func (f *Flow) Close() {
	f.mu.Lock()
	f.generation++
	if f.cancel != nil {
		f.cancel()
		f.cancel = nil
	}
	f.mu.Unlock()
	f.audit.Close()
	f.sc.state.closeAll()
}
