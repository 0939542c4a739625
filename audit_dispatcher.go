package directauth

import (
	"context"
	"sync"
	"sync/atomic"
)

// auditDropOther counts drops of event types the flow does not emit itself.
const auditDropOther = "other"

var auditEventTypes = []string{
	auditEventFlowStarted,
	auditEventFlowResumed,
	auditEventStepCompleted,
	auditEventFlowReset,
	auditEventConcurrentRejected,
	auditDropOther,
}

// auditItem is either an event or a flush barrier. A barrier's channel is closed once
// every event queued before it has reached the sink.
type auditItem struct {
	event   AuditEvent
	flushed chan struct{}
}

// auditDispatcher moves a flow's audit events to its sink on one goroutine, in the order
// the flow emitted them. With DropIfFull a full buffer drops the event and counts it
// under its event type.
type auditDispatcher struct {
	cfg      AuditConfig
	sink     AuditSink
	queue    chan auditItem
	stop     chan struct{}
	finished chan struct{}

	dropped map[string]*atomic.Uint64
	closed  atomic.Bool
	once    sync.Once
}

func newAuditDispatcher(cfg AuditConfig, sink AuditSink) *auditDispatcher {
	if !cfg.Enabled {
		return nil
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}
	if sink == nil {
		sink = NoOpSink{}
	}

	d := &auditDispatcher{
		cfg:      cfg,
		sink:     sink,
		queue:    make(chan auditItem, cfg.BufferSize),
		stop:     make(chan struct{}),
		finished: make(chan struct{}),
		dropped:  make(map[string]*atomic.Uint64, len(auditEventTypes)),
	}
	for _, t := range auditEventTypes {
		d.dropped[t] = new(atomic.Uint64)
	}

	go d.loop()
	return d
}

func (d *auditDispatcher) loop() {
	defer close(d.finished)

	for {
		select {
		case item := <-d.queue:
			d.deliver(item)
		case <-d.stop:
			for {
				select {
				case item := <-d.queue:
					d.deliver(item)
				default:
					return
				}
			}
		}
	}
}

func (d *auditDispatcher) deliver(item auditItem) {
	if item.flushed != nil {
		close(item.flushed)
		return
	}
	d.sink.Emit(context.Background(), item.event)
}

func (d *auditDispatcher) Emit(ctx context.Context, event AuditEvent) {
	if d == nil || d.closed.Load() {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	item := auditItem{event: event}

	if d.cfg.DropIfFull {
		select {
		case d.queue <- item:
		case <-d.stop:
		default:
			d.countDrop(event.EventType)
		}
		return
	}

	select {
	case d.queue <- item:
	case <-ctx.Done():
		d.countDrop(event.EventType)
	case <-d.stop:
	}
}

// Flush waits until every event queued before the call has been handed to the sink.
// It returns ctx's error when the wait is cut short.
func (d *auditDispatcher) Flush(ctx context.Context) error {
	if d == nil || d.closed.Load() {
		return nil
	}
	barrier := auditItem{flushed: make(chan struct{})}

	select {
	case d.queue <- barrier:
	case <-d.stop:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-barrier.flushed:
		return nil
	case <-d.finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *auditDispatcher) countDrop(eventType string) {
	c, ok := d.dropped[eventType]
	if !ok {
		c = d.dropped[auditDropOther]
	}
	c.Add(1)
}

// Close stops accepting events and drains the queue into the sink.
func (d *auditDispatcher) Close() {
	if d == nil {
		return
	}
	d.once.Do(func() {
		d.closed.Store(true)
		close(d.stop)
		<-d.finished
	})
}

func (d *auditDispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	var total uint64
	for _, c := range d.dropped {
		total += c.Load()
	}
	return total
}

// DroppedByEvent returns the non-zero drop counts keyed by event type.
func (d *auditDispatcher) DroppedByEvent() map[string]uint64 {
	out := map[string]uint64{}
	if d == nil {
		return out
	}
	for t, c := range d.dropped {
		if v := c.Load(); v > 0 {
			out[t] = v
		}
	}
	return out
}
