package redissink

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/directauth"
	"github.com/redis/go-redis/v9"
)

// ErrNilClient is returned when New is called without a Redis client.
var ErrNilClient = errors.New("redissink: nil redis client")

// DefaultStream is the stream key used when Options.Stream is empty.
const DefaultStream = "directauth:audit"

// Options tunes stream naming, trimming and write timeouts.
type Options struct {
	Stream string
	// MaxLen approximately caps the stream length; 0 disables trimming.
	MaxLen       int64
	WriteTimeout time.Duration
	OnError      func(error)
}

// Sink writes each event as one stream entry.
type Sink struct {
	redis   redis.UniversalClient
	stream  string
	maxLen  int64
	timeout time.Duration
	onError func(error)
	failed  atomic.Uint64
	written atomic.Uint64
}

// New returns a stream sink backed by client.
func New(client redis.UniversalClient, opts Options) (*Sink, error) {
	if client == nil {
		return nil, ErrNilClient
	}
	if opts.Stream == "" {
		opts.Stream = DefaultStream
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 2 * time.Second
	}
	return &Sink{
		redis:   client,
		stream:  opts.Stream,
		maxLen:  opts.MaxLen,
		timeout: opts.WriteTimeout,
		onError: opts.OnError,
	}, nil
}

// Emit implements directauth.AuditSink.
func (s *Sink) Emit(ctx context.Context, event directauth.AuditEvent) {
	values, err := entryValues(event)
	if err != nil {
		s.fail(err)
		return
	}

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	args := &redis.XAddArgs{
		Stream: s.stream,
		Values: values,
	}
	if s.maxLen > 0 {
		args.MaxLen = s.maxLen
		args.Approx = true
	}
	if err := s.redis.XAdd(writeCtx, args).Err(); err != nil {
		s.fail(err)
		return
	}
	s.written.Add(1)
}

// Written reports how many events reached the stream.
func (s *Sink) Written() uint64 {
	return s.written.Load()
}

// Failed reports how many events could not be written.
func (s *Sink) Failed() uint64 {
	return s.failed.Load()
}

// Stream returns the stream key.
func (s *Sink) Stream() string {
	return s.stream
}

func (s *Sink) fail(err error) {
	s.failed.Add(1)
	if s.onError != nil {
		s.onError(err)
	}
}

func entryValues(event directauth.AuditEvent) (map[string]any, error) {
	values := map[string]any{
		"ts":         event.Timestamp.UTC().Format(time.RFC3339Nano),
		"event_type": event.EventType,
		"session_id": event.SessionID,
		"success":    boolString(event.Success),
	}
	if event.Issuer != "" {
		values["issuer"] = event.Issuer
	}
	if event.ClientID != "" {
		values["client_id"] = event.ClientID
	}
	if event.Operation != "" {
		values["operation"] = event.Operation
	}
	if event.State != "" {
		values["state"] = string(event.State)
	}
	if event.Error != "" {
		values["error"] = event.Error
	}
	if len(event.Metadata) > 0 {
		raw, err := json.Marshal(event.Metadata)
		if err != nil {
			return nil, err
		}
		values["metadata"] = string(raw)
	}
	return values, nil
}

func boolString(v bool) string {
	if v {
		return "1"
	}
	return "0"
}
