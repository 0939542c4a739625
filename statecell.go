package directauth

import (
	"sync"
	"sync/atomic"
)

type stateBox struct{ s State }

// stateCell holds the current State. Writes are last-write-wins; subscribers see the
// latest value and may miss intermediate ones.
type stateCell struct {
	current atomic.Pointer[stateBox]

	mu   sync.Mutex
	subs map[uint64]chan State
	next uint64
}

func newStateCell(initial State) *stateCell {
	c := &stateCell{subs: make(map[uint64]chan State)}
	c.current.Store(&stateBox{s: initial})
	return c
}

func (c *stateCell) Load() State {
	return c.current.Load().s
}

func (c *stateCell) Store(s State) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.current.Store(&stateBox{s: s})
	for _, ch := range c.subs {
		select {
		case <-ch:
		default:
		}
		ch <- s
	}
}

// Subscribe returns a channel primed with the current state. The returned func
// unsubscribes and closes the channel.
func (c *stateCell) Subscribe() (<-chan State, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.next
	c.next++
	ch := make(chan State, 1)
	ch <- c.current.Load().s
	c.subs[id] = ch

	return ch, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if _, ok := c.subs[id]; ok {
			delete(c.subs, id)
			close(ch)
		}
	}
}

func (c *stateCell) closeAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, ch := range c.subs {
		delete(c.subs, id)
		close(ch)
	}
}
