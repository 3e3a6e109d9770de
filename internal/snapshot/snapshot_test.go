package snapshot

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/killerdox/buildsync/internal/build"
)

func TestSetStampsAndOverwritesWholesale(t *testing.T) {
	s := New()

	first := build.Empty()
	first.Character = &build.Character{ID: "nurse", Name: "Nurse"}
	first.Abilities = []build.Ability{{ID: "a1"}}
	first.OriginID = "A"
	at1 := s.Set(first)
	require.Positive(t, at1)

	second := build.Empty()
	second.Platform = &build.Platform{ID: "pc", Name: "PC"}
	second.OriginID = "B"
	at2 := s.Set(second)

	got := s.Get()
	assert.Nil(t, got.Character, "overwrite is wholesale, no field merge")
	assert.Equal(t, "pc", got.Platform.ID)
	assert.Equal(t, "B", got.OriginID)
	assert.Equal(t, at2, got.UpdatedAt)
	assert.Greater(t, at2, at1)
}

func TestSetIsMonotonicUnderStalledClock(t *testing.T) {
	s := New()
	frozen := time.Unix(1000, 0)
	s.now = func() time.Time { return frozen }

	at1 := s.Set(build.Empty())
	at2 := s.Set(build.Empty())
	assert.Greater(t, at2, at1)
}

func TestResetProducesEmptyStampedBuild(t *testing.T) {
	s := New()

	b := build.Empty()
	b.Character = &build.Character{ID: "wraith", Name: "Wraith"}
	s.Set(b)

	at := s.Reset("A")
	got := s.Get()
	assert.Nil(t, got.Character)
	assert.Empty(t, got.Abilities)
	assert.Equal(t, "A", got.OriginID)
	assert.Equal(t, at, got.UpdatedAt)
}
