package directauth

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type countingSink struct {
	count atomic.Int64
}

func (s *countingSink) Emit(context.Context, AuditEvent) {
	s.count.Add(1)
}

type gateSink struct {
	gate chan struct{}
}

func (s *gateSink) Emit(context.Context, AuditEvent) {
	<-s.gate
}

func collect(t *testing.T, sink *ChannelSink, n int) []AuditEvent {
	t.Helper()
	out := make([]AuditEvent, 0, n)
	for len(out) < n {
		select {
		case ev := <-sink.Events():
			out = append(out, ev)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out after %d of %d events", len(out), n)
		}
	}
	return out
}

func TestFlowEmitsAuditEvents(t *testing.T) {
	sink := NewChannelSink(16)
	exec := newScriptedExecutor(
		jsonResponse(http.StatusBadRequest, mfaRequiredBody),
		jsonResponse(http.StatusBadRequest, `{"error":"invalid_grant"}`),
	)
	f, err := newTestBuilder(exec).WithAuditSink(sink).Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer f.Close()

	mfa := f.Start(context.Background(), "u", Password{Password: "hunter2"}).(*MfaRequired)
	f.Resume(context.Background(), mfa, Otp{PassCode: "123456"})
	f.Reset()

	events := collect(t, sink, 5)
	wantTypes := []string{
		auditEventFlowStarted,
		auditEventStepCompleted,
		auditEventFlowResumed,
		auditEventStepCompleted,
		auditEventFlowReset,
	}
	for i, ev := range events {
		if ev.EventType != wantTypes[i] {
			t.Fatalf("event %d: expected %s, got %s", i, wantTypes[i], ev.EventType)
		}
		if ev.SessionID != f.ID() || ev.ClientID != testClientID || ev.Issuer != testIssuer {
			t.Fatalf("event %d missing correlation fields: %+v", i, ev)
		}
	}
	if events[1].State != KindMfaRequired || !events[1].Success {
		t.Fatalf("unexpected step event %+v", events[1])
	}
	if events[3].Success || events[3].Error != "invalid_grant" {
		t.Fatalf("failed step must carry the error code: %+v", events[3])
	}

	raw, _ := json.Marshal(events)
	for _, secret := range []string{"hunter2", "123456", "example_mfa_token"} {
		if bytes.Contains(raw, []byte(secret)) {
			t.Fatalf("audit events leaked %q", secret)
		}
	}
}

func TestAuditDispatcherDropIfFull(t *testing.T) {
	sink := &gateSink{gate: make(chan struct{})}
	d := newAuditDispatcher(AuditConfig{Enabled: true, BufferSize: 1, DropIfFull: true}, sink)

	for i := 0; i < 10; i++ {
		d.Emit(context.Background(), AuditEvent{EventType: "x"})
	}
	if d.Dropped() == 0 {
		t.Fatal("expected drops with a blocked sink and a full buffer")
	}

	close(sink.gate)
	d.Close()
}

type slowSink struct {
	mu     sync.Mutex
	events []string
}

func (s *slowSink) Emit(_ context.Context, ev AuditEvent) {
	time.Sleep(10 * time.Millisecond)
	s.mu.Lock()
	s.events = append(s.events, ev.EventType)
	s.mu.Unlock()
}

func (s *slowSink) seen() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.events...)
}

func TestAuditDropsCountedByEventType(t *testing.T) {
	sink := &gateSink{gate: make(chan struct{})}
	d := newAuditDispatcher(AuditConfig{Enabled: true, BufferSize: 1, DropIfFull: true}, sink)

	for i := 0; i < 5; i++ {
		d.Emit(context.Background(), AuditEvent{EventType: auditEventFlowStarted})
	}
	for i := 0; i < 3; i++ {
		d.Emit(context.Background(), AuditEvent{EventType: "custom"})
	}

	byEvent := d.DroppedByEvent()
	if byEvent[auditEventFlowStarted] < 3 {
		t.Fatalf("expected at least 3 flow_started drops, got %v", byEvent)
	}
	if byEvent[auditDropOther] != 3 {
		t.Fatalf("expected 3 drops under other, got %v", byEvent)
	}
	if _, ok := byEvent[auditEventFlowReset]; ok {
		t.Fatalf("zero counts must be omitted: %v", byEvent)
	}
	if d.Dropped() != byEvent[auditEventFlowStarted]+byEvent[auditDropOther] {
		t.Fatalf("total %d does not match %v", d.Dropped(), byEvent)
	}

	close(sink.gate)
	d.Close()
}

func TestResetFlushesQueuedAuditEvents(t *testing.T) {
	sink := &slowSink{}
	exec := newScriptedExecutor(jsonResponse(http.StatusBadRequest, `{"error":"invalid_grant"}`))
	f, err := newTestBuilder(exec).WithAuditSink(sink).Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer f.Close()

	f.Start(context.Background(), "u", Password{Password: "p"})
	f.Reset()

	want := []string{auditEventFlowStarted, auditEventStepCompleted, auditEventFlowReset}
	got := sink.seen()
	if len(got) != len(want) {
		t.Fatalf("expected %v delivered by the time Reset returns, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("event %d: expected %s, got %s", i, want[i], got[i])
		}
	}
}

func TestFlushAuditHonorsContext(t *testing.T) {
	sink := &gateSink{gate: make(chan struct{})}
	d := newAuditDispatcher(AuditConfig{Enabled: true, BufferSize: 4}, sink)
	d.Emit(context.Background(), AuditEvent{EventType: auditEventFlowStarted})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := d.Flush(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded with a blocked sink, got %v", err)
	}

	close(sink.gate)
	if err := d.Flush(context.Background()); err != nil {
		t.Fatalf("flush after unblocking: %v", err)
	}
	d.Close()
	if err := d.Flush(context.Background()); err != nil {
		t.Fatalf("flush after close must be a no-op, got %v", err)
	}
	var nilDispatcher *auditDispatcher
	if err := nilDispatcher.Flush(context.Background()); err != nil {
		t.Fatalf("nil dispatcher flush: %v", err)
	}
}

func TestAuditDispatcherCloseDrains(t *testing.T) {
	sink := &countingSink{}
	d := newAuditDispatcher(AuditConfig{Enabled: true, BufferSize: 64}, sink)

	for i := 0; i < 50; i++ {
		d.Emit(context.Background(), AuditEvent{EventType: "x"})
	}
	d.Close()

	if got := sink.count.Load(); got != 50 {
		t.Fatalf("expected 50 delivered events, got %d", got)
	}
	d.Emit(context.Background(), AuditEvent{EventType: "late"})
	if got := sink.count.Load(); got != 50 {
		t.Fatalf("emit after close must be ignored, got %d", got)
	}
}

func TestAuditDisabledIsNil(t *testing.T) {
	if d := newAuditDispatcher(AuditConfig{Enabled: false}, &countingSink{}); d != nil {
		t.Fatal("disabled audit must not start a dispatcher")
	}
	var d *auditDispatcher
	d.Emit(context.Background(), AuditEvent{})
	d.Close()
	if d.Dropped() != 0 {
		t.Fatal("nil dispatcher drops nothing")
	}
}

func TestJSONWriterSinkWritesLines(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSONWriterSink(&buf)
	sink.Emit(context.Background(), AuditEvent{EventType: auditEventFlowReset, SessionID: "s1", State: KindIdle})
	sink.Emit(context.Background(), AuditEvent{EventType: auditEventFlowStarted, SessionID: "s1"})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	var ev AuditEvent
	if err := json.Unmarshal([]byte(lines[0]), &ev); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if ev.State != KindIdle || ev.SessionID != "s1" {
		t.Fatalf("unexpected event %+v", ev)
	}
}
