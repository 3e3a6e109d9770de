package realtime

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/killerdox/buildsync/pkg/types"
)

// LocalBroadcaster is the same-device fan-out: envelopes posted on one
// port are delivered to every other port in the same process without a
// network hop, mirroring what a browser BroadcastChannel does between
// tabs. The posting port never hears its own message.
type LocalBroadcaster struct {
	mu    sync.Mutex
	ports map[int]*LocalPort
	next  int
	log   *zap.Logger
}

func NewLocalBroadcaster(log *zap.Logger) *LocalBroadcaster {
	return &LocalBroadcaster{ports: make(map[int]*LocalPort), log: log}
}

// Join opens a new port on the channel.
func (b *LocalBroadcaster) Join() *LocalPort {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.next
	b.next++
	p := &LocalPort{b: b, id: id, d: dispatcher{log: b.log}}
	b.ports[id] = p
	return p
}

type LocalPort struct {
	b  *LocalBroadcaster
	id int
	d  dispatcher
}

// Publish delivers env to every other port. Synchronous; receivers apply
// their own stale-update rejection, so duplicate delivery alongside a
// network transport is harmless.
func (p *LocalPort) Publish(env types.Envelope) {
	p.b.mu.Lock()
	others := make([]*LocalPort, 0, len(p.b.ports))
	for id, other := range p.b.ports {
		if id != p.id {
			others = append(others, other)
		}
	}
	p.b.mu.Unlock()

	for _, other := range others {
		other.d.emit(env)
	}
}

func (p *LocalPort) Subscribe(h Handler) func() { return p.d.subscribe(h) }

// Close detaches the port. Idempotent.
func (p *LocalPort) Close() {
	p.b.mu.Lock()
	delete(p.b.ports, p.id)
	p.b.mu.Unlock()
}

// Tee composes a network transport with a same-device port: publishes go
// to both, subscribers hear both. Connection status reflects the network
// side only, local delivery needs no connection.
type Tee struct {
	Net   Transport
	Local *LocalPort
}

func (t Tee) Publish(ctx context.Context, env types.Envelope) {
	if t.Local != nil {
		t.Local.Publish(env)
	}
	if t.Net != nil {
		t.Net.Publish(ctx, env)
	}
}

func (t Tee) Subscribe(h Handler) func() {
	var cancels []func()
	if t.Net != nil {
		cancels = append(cancels, t.Net.Subscribe(h))
	}
	if t.Local != nil {
		cancels = append(cancels, t.Local.Subscribe(h))
	}
	return func() {
		for _, c := range cancels {
			c()
		}
	}
}

func (t Tee) Connected() bool {
	return t.Net != nil && t.Net.Connected()
}

func (t Tee) OnConnectionChange(f func(bool)) func() {
	if t.Net == nil {
		return func() {}
	}
	return t.Net.OnConnectionChange(f)
}

func (t Tee) Close() {
	if t.Net != nil {
		t.Net.Close()
	}
	if t.Local != nil {
		t.Local.Close()
	}
}
