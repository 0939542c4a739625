// Package internal groups code that is private to the directauth module.
//
// # Sub-packages
//
//   - wire: JSON response shapes shared by the client classifier and the mock server
//   - mockserver: in-process Direct-Auth authorization server for tests, the CLI and the load test
//   - cli: the directauth command tree (login, mock-server, config)
//   - mocks: generated gomock doubles for Executor and Clock
//
// # What this package must NOT do
//
//   - Export types that appear in the public directauth API.
//   - Be imported by any package outside the directauth module.
package internal
