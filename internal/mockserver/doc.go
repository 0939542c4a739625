// Package mockserver is an in-process Direct-Auth authorization server used by
// integration tests, the CLI's mock-server command and the load test.
//
// It serves the token, challenge and primary-authenticate endpoints under
// /oauth2/v1 and /oauth2/{authServerId}/v1. Users are kept in memory with
// bcrypt password hashes and optional TOTP secrets. Out-of-band challenges
// stay pending until Approve is called or the auto-approve threshold is
// reached, and expire after Config.OobTTL.
//
// # What this package must NOT do
//
//   - Be used as a real authorization server. Nothing is persisted and ID
//     tokens are signed with a shared HS256 key.
package mockserver
