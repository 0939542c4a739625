// Package directauth is a client-side engine for the OAuth2 Direct Authentication grant.
//
// A device that cannot redirect to a browser authenticates a user with a primary factor
// (password, OTP, out-of-band push/SMS/voice, or WebAuthn), optionally steps up through an
// MFA challenge, and ends with a token set or a typed error. Every transition is exposed as a
// [State] value, so callers drive the flow by switching on the state they were handed.
//
// A [Flow] is obtained from [New] ... [Builder.Build] and is safe to share between
// goroutines, but only one operation runs at a time; a second concurrent call returns an
// [InternalError] with [ErrorCodeConcurrentOperation] without touching the published state.
//
// # Architecture boundaries
//
// directauth is the public surface. It exposes [Flow], [Builder], [Config], the [State]
// family and the collaborator interfaces [Executor] and [Clock]. Wire DTOs live under
// internal/wire and are never exported.
//
// # What this package must NOT do
//
//   - Validate tokens. ID token claims are exposed unverified for display only.
//   - Persist tokens, MFA tokens or continuation state.
//   - Schedule polling. [PollUntilDone] is a caller-side helper built on the public API.
//   - Log secrets: passwords, OTPs, mfa tokens, oob codes, binding codes and tokens.
package directauth
