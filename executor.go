package directauth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Executor performs one HTTP round trip. It must honor ctx cancellation and must not retry.
//
//go:generate mockgen -source=executor.go -destination=internal/mocks/executor_mock.go -package=mocks
type Executor interface {
	Execute(ctx context.Context, req *Request) (*Response, error)
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, req *Request) (*Response, error)

func (f ExecutorFunc) Execute(ctx context.Context, req *Request) (*Response, error) {
	return f(ctx, req)
}

// Response is the raw result of an Executor call.
type Response struct {
	StatusCode    int
	Header        http.Header
	ContentType   string
	ContentLength int64
	Body          []byte
}

// Clock supplies the current time in epoch seconds.
type Clock interface {
	CurrentTimeEpochSecond() int64
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() int64

func (f ClockFunc) CurrentTimeEpochSecond() int64 { return f() }

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) CurrentTimeEpochSecond() int64 { return time.Now().Unix() }

// MaxResponseBytes caps the response body HTTPExecutor will read.
const MaxResponseBytes = 1 << 20

// ErrResponseTooLarge is returned by HTTPExecutor when a body exceeds MaxResponseBytes.
var ErrResponseTooLarge = errors.New("response body exceeds limit")

// HTTPExecutor is the default Executor over an *http.Client.
type HTTPExecutor struct {
	Client *http.Client
}

// NewHTTPExecutor returns an executor over client, or a client with a 30 second timeout when nil.
func NewHTTPExecutor(client *http.Client) *HTTPExecutor {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPExecutor{Client: client}
}

func (e *HTTPExecutor) Execute(ctx context.Context, req *Request) (*Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.FullURL(), strings.NewReader(req.Form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	httpReq.Header.Set("Content-Type", req.ContentType)

	resp, err := e.Client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if len(body) > MaxResponseBytes {
		return nil, ErrResponseTooLarge
	}

	return &Response{
		StatusCode:    resp.StatusCode,
		Header:        resp.Header,
		ContentType:   resp.Header.Get("Content-Type"),
		ContentLength: resp.ContentLength,
		Body:          body,
	}, nil
}
