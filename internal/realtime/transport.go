package realtime

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/killerdox/buildsync/pkg/types"
)

// Handler receives remote envelopes. Heartbeats and other transport
// plumbing are filtered out before a handler is invoked.
type Handler func(env types.Envelope)

// Transport moves envelopes between this client and all other observers.
// Publish is fire-and-forget: delivery failures are logged, never returned,
// so a flaky network can never block the caller. Delivery ordering across
// origins is not guaranteed; receivers resolve order with UpdatedAt.
type Transport interface {
	Publish(ctx context.Context, env types.Envelope)
	Subscribe(h Handler) (cancel func())
	Connected() bool
	OnConnectionChange(f func(connected bool)) (cancel func())
	Close()
}

// dispatcher is the shared subscriber registry. A panicking handler is
// isolated so it cannot take down the transport or starve its peers.
type dispatcher struct {
	mu   sync.Mutex
	subs map[int]Handler
	next int
	log  *zap.Logger
}

func (d *dispatcher) subscribe(h Handler) func() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.subs == nil {
		d.subs = make(map[int]Handler)
	}
	id := d.next
	d.next++
	d.subs[id] = h

	// Idempotent, and safe to call from inside the handler it cancels.
	return func() {
		d.mu.Lock()
		delete(d.subs, id)
		d.mu.Unlock()
	}
}

func (d *dispatcher) emit(env types.Envelope) {
	d.mu.Lock()
	handlers := make([]Handler, 0, len(d.subs))
	for _, h := range d.subs {
		handlers = append(handlers, h)
	}
	d.mu.Unlock()

	for _, h := range handlers {
		d.call(h, env)
	}
}

func (d *dispatcher) call(h Handler, env types.Envelope) {
	defer func() {
		if rec := recover(); rec != nil && d.log != nil {
			d.log.Error("subscriber panicked", zap.Any("panic", rec))
		}
	}()
	h(env)
}

// connFlag is the observable connection-status boolean.
type connFlag struct {
	mu        sync.Mutex
	connected bool
	watchers  map[int]func(bool)
	next      int
}

func (c *connFlag) get() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *connFlag) set(v bool) {
	c.mu.Lock()
	if c.connected == v {
		c.mu.Unlock()
		return
	}
	c.connected = v
	watchers := make([]func(bool), 0, len(c.watchers))
	for _, f := range c.watchers {
		watchers = append(watchers, f)
	}
	c.mu.Unlock()

	for _, f := range watchers {
		f(v)
	}
}

func (c *connFlag) watch(f func(bool)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.watchers == nil {
		c.watchers = make(map[int]func(bool))
	}
	id := c.next
	c.next++
	c.watchers[id] = f
	return func() {
		c.mu.Lock()
		delete(c.watchers, id)
		c.mu.Unlock()
	}
}
