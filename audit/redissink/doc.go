// Package redissink provides a directauth.AuditSink that appends audit events
// to a Redis stream.
//
// # Architecture boundaries
//
// The sink runs on the audit dispatcher goroutine. It never blocks a flow
// operation and never receives credentials: AuditEvent carries only
// correlation fields, state kinds and error codes.
//
// # What this package must NOT do
//
//   - Persist tokens, MFA context or any other secret.
//   - Retry failed writes; failures are counted and reported through the
//     optional error callback.
package redissink
