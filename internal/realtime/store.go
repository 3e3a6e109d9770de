package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/killerdox/buildsync/internal/build"
	"github.com/killerdox/buildsync/pkg/types"
)

// Store is the sync-aware reducer: it owns the authoritative local copy of
// the build, publishes every successful local mutation, and applies remote
// updates without ever re-publishing them. The applyingRemote guard is
// what breaks the feedback loop: any mutation made while a remote state is
// being applied (for example from an OnChange callback) is absorbed
// locally and never put back on the wire.
type Store struct {
	mu             sync.Mutex
	cur            build.Build
	origin         string
	transport      Transport
	applyingRemote bool
	cancelSub      func()
	log            *zap.Logger

	// now returns unix milliseconds; overridable for tests.
	now func() int64

	watchers  map[int]func(build.Build)
	nextWatch int
}

func NewStore(t Transport, log *zap.Logger) *Store {
	s := &Store{
		cur:       build.Empty(),
		origin:    uuid.NewString(),
		transport: t,
		log:       log,
		now:       func() int64 { return time.Now().UnixMilli() },
		watchers:  make(map[int]func(build.Build)),
	}
	s.cancelSub = t.Subscribe(s.handleRemote)
	return s
}

// OriginID identifies this client on the wire.
func (s *Store) OriginID() string { return s.origin }

// Current returns the build as this client sees it.
func (s *Store) Current() build.Build {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cur
}

// OnChange registers a callback invoked after every applied change, local
// or remote. Callbacks run on the mutating goroutine; panics are isolated.
func (s *Store) OnChange(f func(build.Build)) (cancel func()) {
	s.mu.Lock()
	id := s.nextWatch
	s.nextWatch++
	s.watchers[id] = f
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.watchers, id)
		s.mu.Unlock()
	}
}

func (s *Store) SelectCharacter(c *build.Character) {
	s.mutate(build.Op{Type: build.OpSelectCharacter, Character: c})
}

func (s *Store) AddAbility(a build.Ability) {
	s.mutate(build.Op{Type: build.OpAddAbility, Ability: &a})
}

func (s *Store) RemoveAbility(id string) {
	s.mutate(build.Op{Type: build.OpRemoveAbility, ID: id})
}

func (s *Store) AddModifier(m build.Modifier) {
	s.mutate(build.Op{Type: build.OpAddModifier, Modifier: &m})
}

func (s *Store) RemoveModifier(id string) {
	s.mutate(build.Op{Type: build.OpRemoveModifier, ID: id})
}

func (s *Store) SetConsumable(c *build.Consumable) {
	s.mutate(build.Op{Type: build.OpSetConsumable, Consumable: c})
}

func (s *Store) SetPlatform(p *build.Platform) {
	s.mutate(build.Op{Type: build.OpSetPlatform, Platform: p})
}

// Reset clears the build and emits the dedicated reset event instead of a
// field-level update, so receivers can shortcut straight to empty.
func (s *Store) Reset() {
	s.mu.Lock()
	guard := s.applyingRemote
	b := build.Empty()
	if !guard {
		b.OriginID = s.origin
		b.UpdatedAt = s.stampLocked()
	}
	s.cur = b
	s.mu.Unlock()

	if !guard {
		s.transport.Publish(context.Background(), types.Envelope{
			Type:      types.EventBuildReset,
			OriginID:  b.OriginID,
			UpdatedAt: b.UpdatedAt,
		})
	}
	s.notify(b)
}

// Close detaches the store from its transport. The transport itself is
// shared and stays up.
func (s *Store) Close() {
	if s.cancelSub != nil {
		s.cancelSub()
	}
}

func (s *Store) mutate(op build.Op) {
	s.mu.Lock()
	next, changed := build.Apply(s.cur, op)
	if !changed {
		s.mu.Unlock()
		return
	}
	guard := s.applyingRemote
	if !guard {
		next.UpdatedAt = s.stampLocked()
		next.OriginID = s.origin
	}
	s.cur = next
	s.mu.Unlock()

	if !guard {
		s.publish(next)
	}
	s.notify(next)
}

// stampLocked returns a fresh timestamp, kept strictly ahead of the
// current build so consecutive mutations within one millisecond still
// order correctly. Caller holds s.mu.
func (s *Store) stampLocked() int64 {
	at := s.now()
	if at <= s.cur.UpdatedAt {
		at = s.cur.UpdatedAt + 1
	}
	return at
}

func (s *Store) publish(b build.Build) {
	payload, err := json.Marshal(b)
	if err != nil {
		s.log.Warn("marshal build", zap.Error(err))
		return
	}
	s.transport.Publish(context.Background(), types.Envelope{
		Type:      types.EventBuildUpdate,
		Payload:   payload,
		OriginID:  s.origin,
		UpdatedAt: b.UpdatedAt,
	})
}

func (s *Store) handleRemote(env types.Envelope) {
	var incoming build.Build

	switch env.Type {
	case types.EventBuildUpdate:
		if len(env.Payload) == 0 {
			return
		}
		if err := json.Unmarshal(env.Payload, &incoming); err != nil {
			s.log.Warn("bad remote build", zap.Error(err))
			return
		}
		if incoming.OriginID == "" {
			incoming.OriginID = env.OriginID
		}
		if incoming.UpdatedAt == 0 {
			incoming.UpdatedAt = env.UpdatedAt
		}

	case types.EventBuildReset:
		incoming = build.Empty()
		incoming.OriginID = env.OriginID
		incoming.UpdatedAt = env.UpdatedAt

	default:
		// asset:update, user:presence and anything newer pass through the
		// transports but mean nothing to the build store.
		return
	}

	s.mu.Lock()
	merged, ok := build.MergeRemote(s.cur, incoming, s.origin)
	if !ok {
		// Stale or echoed. Expected and frequent, not worth logging.
		s.mu.Unlock()
		return
	}
	s.applyingRemote = true
	s.cur = merged
	s.mu.Unlock()

	s.notify(merged)

	s.mu.Lock()
	s.applyingRemote = false
	s.mu.Unlock()
}

func (s *Store) notify(b build.Build) {
	s.mu.Lock()
	watchers := make([]func(build.Build), 0, len(s.watchers))
	for _, f := range s.watchers {
		watchers = append(watchers, f)
	}
	s.mu.Unlock()

	for _, f := range watchers {
		s.safeNotify(f, b)
	}
}

func (s *Store) safeNotify(f func(build.Build), b build.Build) {
	defer func() {
		if rec := recover(); rec != nil {
			s.log.Error("change callback panicked", zap.Any("panic", rec))
		}
	}()
	f(b)
}
