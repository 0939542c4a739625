package directauth

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
)

const (
	testIssuer   = "https://example.okta.com"
	testClientID = "test-client"
	testNow      = int64(1_700_000_000)
)

type scripted struct {
	resp  *Response
	err   error
	block chan struct{}
}

// scriptedExecutor replays responses in order and records every request.
type scriptedExecutor struct {
	mu        sync.Mutex
	responses []scripted
	requests  []*Request
	arrived   chan struct{}
}

func newScriptedExecutor(responses ...scripted) *scriptedExecutor {
	return &scriptedExecutor{responses: responses, arrived: make(chan struct{}, 16)}
}

func (e *scriptedExecutor) Execute(ctx context.Context, req *Request) (*Response, error) {
	e.mu.Lock()
	e.requests = append(e.requests, req)
	var next scripted
	if len(e.responses) > 0 {
		next = e.responses[0]
		e.responses = e.responses[1:]
	} else {
		next = scripted{err: errors.New("no scripted response")}
	}
	e.mu.Unlock()

	select {
	case e.arrived <- struct{}{}:
	default:
	}

	if next.block != nil {
		select {
		case <-next.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return next.resp, next.err
}

func (e *scriptedExecutor) request(t *testing.T, i int) *Request {
	t.Helper()
	e.mu.Lock()
	defer e.mu.Unlock()
	if i >= len(e.requests) {
		t.Fatalf("expected request %d, only %d sent", i, len(e.requests))
	}
	return e.requests[i]
}

func (e *scriptedExecutor) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.requests)
}

func jsonResponse(status int, body string) scripted {
	return scripted{resp: &Response{
		StatusCode:    status,
		ContentType:   "application/json; charset=utf-8",
		ContentLength: int64(len(body)),
		Body:          []byte(body),
	}}
}

func rawResponse(status int, contentType, body string) scripted {
	return scripted{resp: &Response{
		StatusCode:  status,
		ContentType: contentType,
		Body:        []byte(body),
	}}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestBuilder(exec Executor) *Builder {
	return New(testIssuer, testClientID, "openid", "profile", "offline_access").
		WithExecutor(exec).
		WithClock(ClockFunc(func() int64 { return testNow })).
		WithLogger(discardLogger())
}

func newTestFlow(t *testing.T, exec Executor) *Flow {
	t.Helper()
	f, err := newTestBuilder(exec).WithMetricsEnabled(true).Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(f.Close)
	return f
}

func requireInternal(t *testing.T, s State, code ErrorCode) *InternalError {
	t.Helper()
	ie, ok := s.(*InternalError)
	if !ok {
		t.Fatalf("expected *InternalError(%s), got %T %+v", code, s, s)
	}
	if ie.Code != code {
		t.Fatalf("expected code %s, got %s (%v)", code, ie.Code, ie)
	}
	return ie
}

const (
	tokenBody = `{"token_type":"Bearer","expires_in":3600,"access_token":"exampleAccessToken",` +
		`"scope":"openid profile offline_access","refresh_token":"exampleRefreshToken",` +
		`"id_token":"exampleIdToken","device_secret":"exampleDeviceSecret"}`
	mfaRequiredBody = `{"error":"mfa_required","error_description":"An MFA factor is required.","mfa_token":"example_mfa_token"}`
	pushBody        = `{"oob_code":"example_oob_code","expires_in":120,"interval":5,"channel":"push","binding_method":"none"}`
)
