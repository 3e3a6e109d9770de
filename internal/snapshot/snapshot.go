package snapshot

import (
	"sync"
	"time"

	"github.com/killerdox/buildsync/internal/build"
)

// Store is the polling-variant shared cell: one build that every client
// overwrites wholesale and periodically re-fetches. Nothing durable backs
// it, a process restart is equivalent to a reset.
type Store struct {
	mu  sync.Mutex
	cur build.Build

	// now is overridable for tests.
	now func() time.Time
}

func New() *Store {
	return &Store{cur: build.Empty(), now: time.Now}
}

// Get returns the current shared build.
func (s *Store) Get() build.Build {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cur
}

// Set overwrites the shared build. The server stamps UpdatedAt so polling
// clients compare against one clock; the client's OriginID is kept.
// Returns the stamped timestamp in unix milliseconds.
func (s *Store) Set(b build.Build) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	b.UpdatedAt = s.now().UnixMilli()
	if b.UpdatedAt <= s.cur.UpdatedAt {
		// Keep the timestamp monotonic even if the wall clock stalls.
		b.UpdatedAt = s.cur.UpdatedAt + 1
	}
	s.cur = b
	return b.UpdatedAt
}

// Reset replaces the shared build with the empty selection, stamped like
// any other write so pollers pick it up.
func (s *Store) Reset(originID string) int64 {
	b := build.Empty()
	b.OriginID = originID
	return s.Set(b)
}
