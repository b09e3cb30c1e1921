// Package notifier carries fault events from the fault monitor to the
// navigation controller and the command logic. Delivery is per consumer:
// each subscriber owns a short queue that coalesces consecutive repeats of
// the same kind but never drops a transition between distinct kinds. A
// single shared slot cannot give that guarantee once two consumers poll at
// different rates.
package notifier

import (
	"sync"

	"haul-truck-service/internal/guard"
	"haul-truck-service/internal/types"
)

type Notifier struct {
	mu     sync.Mutex
	cond   *sync.Cond
	closed bool
	subs   []*Consumer
}

// Consumer is one subscriber's view of the event stream.
type Consumer struct {
	n     *Notifier
	queue []types.FaultKind
}

func New() *Notifier {
	n := &Notifier{}
	n.cond = sync.NewCond(&n.mu)
	return n
}

// Subscribe registers a new consumer. All subscriptions happen before the
// tasks start; events fired earlier are not replayed.
func (n *Notifier) Subscribe() *Consumer {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := &Consumer{n: n}
	n.subs = append(n.subs, c)
	return c
}

// Fire delivers kind to every consumer and wakes all waiters. Consecutive
// repeats of the same kind collapse into one pending event per consumer.
func (n *Notifier) Fire(kind types.FaultKind) {
	if kind == types.FaultNone {
		return
	}
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return
	}
	for _, c := range n.subs {
		if len(c.queue) > 0 && c.queue[len(c.queue)-1] == kind {
			continue
		}
		c.queue = append(c.queue, kind)
	}
	n.mu.Unlock()
	n.cond.Broadcast()
}

// Close wakes every waiter permanently; Wait returns ok=false afterwards.
// Used only at shutdown.
func (n *Notifier) Close() {
	n.mu.Lock()
	n.closed = true
	n.mu.Unlock()
	n.cond.Broadcast()
}

// Wait blocks until an event is pending for this consumer and consumes it.
// Returns ok=false when the notifier has been closed and the queue is
// drained.
func (c *Consumer) Wait() (types.FaultKind, bool) {
	c.n.mu.Lock()
	guard.Acquired()
	defer func() {
		guard.Released()
		c.n.mu.Unlock()
	}()
	for len(c.queue) == 0 && !c.n.closed {
		c.n.cond.Wait()
	}
	if len(c.queue) == 0 {
		return types.FaultNone, false
	}
	kind := c.queue[0]
	c.queue = c.queue[1:]
	return kind, true
}

// Poll consumes one pending event without blocking; FaultNone when the
// queue is empty.
func (c *Consumer) Poll() types.FaultKind {
	c.n.mu.Lock()
	guard.Acquired()
	defer func() {
		guard.Released()
		c.n.mu.Unlock()
	}()
	if len(c.queue) == 0 {
		return types.FaultNone
	}
	kind := c.queue[0]
	c.queue = c.queue[1:]
	return kind
}

// Pending reports how many events are queued for this consumer.
func (c *Consumer) Pending() int {
	c.n.mu.Lock()
	defer c.n.mu.Unlock()
	return len(c.queue)
}
