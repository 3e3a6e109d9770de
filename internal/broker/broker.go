package broker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/killerdox/buildsync/pkg/types"
)

type Msg interface{ isBrokerMsg() }

// Publish asks the broker to fan an envelope out to every subscriber.
// Reply receives false when the envelope was a repeat within the dedup
// window and was acknowledged without re-broadcasting.
type Publish struct {
	Env   types.Envelope
	Reply chan bool
}

type Subscribe struct {
	ID     string
	Outbox chan types.Envelope
}

type Unsubscribe struct{ ID string }

type Shutdown struct{}

// Sweep forces a dedup-cache eviction pass outside the ticker schedule.
type Sweep struct{}

// GetStats reflects internal state without data races. Test-only.
type GetStats struct{ Reply chan Stats }

type Stats struct {
	NumSubscribers int
	CachedMessages int
}

func (Publish) isBrokerMsg()     {}
func (Subscribe) isBrokerMsg()   {}
func (Unsubscribe) isBrokerMsg() {}
func (Shutdown) isBrokerMsg()    {}
func (Sweep) isBrokerMsg()       {}
func (GetStats) isBrokerMsg()    {}

type Options struct {
	// DedupWindow is how long a (origin, type, timestamp) tuple suppresses
	// repeats. SweepEvery is how often expired tuples are evicted; eviction
	// is opportunistic, an expired entry may linger until the next sweep.
	DedupWindow time.Duration
	SweepEvery  time.Duration

	// Now is overridable so tests can age the dedup cache.
	Now func() time.Time
}

const (
	DefaultDedupWindow = 60 * time.Second
	DefaultSweepEvery  = 30 * time.Second
)

// Broker owns the push-variant server state: the subscriber set and the
// recent-message cache. All access goes through the inbox loop, so there
// is no locking.
type Broker struct {
	inbox  chan Msg
	subs   map[string]chan types.Envelope
	recent map[string]time.Time
	opts   Options
	log    *zap.Logger
	ctx    context.Context
	cancel context.CancelFunc
}

func New(log *zap.Logger, opts Options) *Broker {
	if opts.DedupWindow <= 0 {
		opts.DedupWindow = DefaultDedupWindow
	}
	if opts.SweepEvery <= 0 {
		opts.SweepEvery = DefaultSweepEvery
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Broker{
		inbox:  make(chan Msg, 64),
		subs:   make(map[string]chan types.Envelope),
		recent: make(map[string]time.Time),
		opts:   opts,
		log:    log,
	}
}

// Start launches the broker loop. The broker stops when ctx is cancelled
// or Stop is called.
func (b *Broker) Start(ctx context.Context) {
	b.ctx, b.cancel = context.WithCancel(ctx)
	go b.loop()
}

func (b *Broker) Stop() {
	if b.cancel != nil {
		b.cancel()
	}
}

func (b *Broker) Inbox() chan<- Msg { return b.inbox }

// PublishEnvelope is a convenience wrapper around the Publish message.
// It returns false when the envelope was deduplicated.
func (b *Broker) PublishEnvelope(env types.Envelope) bool {
	reply := make(chan bool, 1)
	b.inbox <- Publish{Env: env, Reply: reply}
	return <-reply
}

// SubscribeChan registers a subscriber and returns its delivery channel.
// The channel is closed when the subscriber is dropped or the broker
// shuts down. Slow subscribers are dropped rather than blocking the loop.
func (b *Broker) SubscribeChan(id string) <-chan types.Envelope {
	out := make(chan types.Envelope, 8)
	b.inbox <- Subscribe{ID: id, Outbox: out}
	return out
}

func (b *Broker) UnsubscribeID(id string) {
	b.inbox <- Unsubscribe{ID: id}
}

func (b *Broker) loop() {
	sweep := time.NewTicker(b.opts.SweepEvery)
	defer sweep.Stop()

	for {
		select {
		case <-b.ctx.Done():
			b.shutdown()
			return

		case <-sweep.C:
			b.sweepRecent()

		case m := <-b.inbox:
			switch msg := m.(type) {
			case Publish:
				msg.Reply <- b.publish(msg.Env)

			case Subscribe:
				b.subs[msg.ID] = msg.Outbox

			case Unsubscribe:
				if ch, ok := b.subs[msg.ID]; ok {
					close(ch)
					delete(b.subs, msg.ID)
				}

			case GetStats:
				msg.Reply <- Stats{
					NumSubscribers: len(b.subs),
					CachedMessages: len(b.recent),
				}

			case Sweep:
				b.sweepRecent()

			case Shutdown:
				b.shutdown()
				return
			}
		}
	}
}

func (b *Broker) publish(env types.Envelope) bool {
	now := b.opts.Now()

	key := env.DedupKey()
	if seen, ok := b.recent[key]; ok && now.Sub(seen) < b.opts.DedupWindow {
		b.log.Debug("duplicate envelope suppressed",
			zap.String("type", env.Type),
			zap.String("origin", env.OriginID))
		return false
	}
	b.recent[key] = now

	for id, ch := range b.subs {
		select {
		case ch <- env:
		default:
			// Subscriber is slow/full - drop them.
			close(ch)
			delete(b.subs, id)
			b.log.Warn("dropped slow subscriber", zap.String("id", id))
		}
	}
	return true
}

func (b *Broker) sweepRecent() {
	now := b.opts.Now()
	for key, seen := range b.recent {
		if now.Sub(seen) >= b.opts.DedupWindow {
			delete(b.recent, key)
		}
	}
}

func (b *Broker) shutdown() {
	for id, ch := range b.subs {
		close(ch)
		delete(b.subs, id)
	}
	if b.cancel != nil {
		b.cancel()
	}
}
