package build

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ability(id string) *Ability {
	return &Ability{ID: id, Name: id, Img: id + ".png"}
}

func modifier(id, character string) *Modifier {
	return &Modifier{ID: id, Name: id, Img: id + ".png", Character: character}
}

func TestAbilitySlotCapacity(t *testing.T) {
	b := Empty()
	for _, id := range []string{"a1", "a2", "a3", "a4"} {
		var changed bool
		b, changed = Apply(b, Op{Type: OpAddAbility, Ability: ability(id)})
		require.True(t, changed)
	}

	next, changed := Apply(b, Op{Type: OpAddAbility, Ability: ability("a5")})
	assert.False(t, changed, "fifth ability must be absorbed")
	assert.Len(t, next.Abilities, MaxAbilities)
}

func TestDuplicateAbilityIsAbsorbed(t *testing.T) {
	b := Empty()
	b, _ = Apply(b, Op{Type: OpAddAbility, Ability: ability("a1")})

	next, changed := Apply(b, Op{Type: OpAddAbility, Ability: ability("a1")})
	assert.False(t, changed)
	assert.Len(t, next.Abilities, 1)
}

func TestRemoveAbsentAbilityIsNoop(t *testing.T) {
	b := Empty()
	b, _ = Apply(b, Op{Type: OpAddAbility, Ability: ability("a1")})

	_, changed := Apply(b, Op{Type: OpRemoveAbility, ID: "nope"})
	assert.False(t, changed)

	next, changed := Apply(b, Op{Type: OpRemoveAbility, ID: "a1"})
	assert.True(t, changed)
	assert.Empty(t, next.Abilities)
}

func TestModifierCompatibility(t *testing.T) {
	huntress := &Character{ID: "huntress", Name: "Huntress", Img: "huntress.png"}

	cases := []struct {
		name     string
		selected *Character
		mod      *Modifier
		want     bool
	}{
		{"untagged modifier always fits", huntress, modifier("m1", ""), true},
		{"tag matches selected character", huntress, modifier("m2", "Huntress"), true},
		{"tag mismatch is rejected", huntress, modifier("m3", "Trapper"), false},
		{"tagged modifier with no character selected", nil, modifier("m4", "Trapper"), true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			b := Empty()
			b, _ = Apply(b, Op{Type: OpSelectCharacter, Character: tc.selected})
			next, changed := Apply(b, Op{Type: OpAddModifier, Modifier: tc.mod})
			assert.Equal(t, tc.want, changed)
			if !tc.want {
				assert.Empty(t, next.Modifiers)
			}
		})
	}
}

func TestModifierSlotCapacity(t *testing.T) {
	b := Empty()
	b, _ = Apply(b, Op{Type: OpAddModifier, Modifier: modifier("m1", "")})
	b, _ = Apply(b, Op{Type: OpAddModifier, Modifier: modifier("m2", "")})

	next, changed := Apply(b, Op{Type: OpAddModifier, Modifier: modifier("m3", "")})
	assert.False(t, changed)
	assert.Len(t, next.Modifiers, MaxModifiers)
}

func TestCharacterChangeClearsModifiers(t *testing.T) {
	trapper := &Character{ID: "trapper", Name: "Trapper", Img: "trapper.png"}
	wraith := &Character{ID: "wraith", Name: "Wraith", Img: "wraith.png"}

	b := Empty()
	b, _ = Apply(b, Op{Type: OpSelectCharacter, Character: trapper})
	b, _ = Apply(b, Op{Type: OpAddModifier, Modifier: modifier("m1", "Trapper")})
	require.Len(t, b.Modifiers, 1)

	b, changed := Apply(b, Op{Type: OpSelectCharacter, Character: wraith})
	assert.True(t, changed)
	assert.Empty(t, b.Modifiers)
	assert.Equal(t, "Wraith", b.Character.Name)

	// Clearing the character entirely also drops modifiers.
	b, _ = Apply(b, Op{Type: OpAddModifier, Modifier: modifier("m2", "Wraith")})
	b, _ = Apply(b, Op{Type: OpSelectCharacter, Character: nil})
	assert.Nil(t, b.Character)
	assert.Empty(t, b.Modifiers)
}

func TestResetProducesEmptyBuild(t *testing.T) {
	b := Empty()
	b, _ = Apply(b, Op{Type: OpSelectCharacter, Character: &Character{ID: "nurse", Name: "Nurse"}})
	b, _ = Apply(b, Op{Type: OpAddAbility, Ability: ability("a1")})
	b, _ = Apply(b, Op{Type: OpSetConsumable, Consumable: &Consumable{ID: "c1"}})
	b, _ = Apply(b, Op{Type: OpSetPlatform, Platform: &Platform{ID: "pc"}})

	next, changed := Apply(b, Op{Type: OpReset})
	assert.True(t, changed)
	assert.Equal(t, Empty(), next)
}

func TestApplyDoesNotMutateInput(t *testing.T) {
	b := Empty()
	b, _ = Apply(b, Op{Type: OpAddAbility, Ability: ability("a1")})

	_, _ = Apply(b, Op{Type: OpAddAbility, Ability: ability("a2")})
	assert.Len(t, b.Abilities, 1, "input build must be left alone")
}

func TestMergeRemoteStaleRejection(t *testing.T) {
	current := Empty()
	current.OriginID = "A"
	current.UpdatedAt = 100

	incoming := Empty()
	incoming.OriginID = "C"
	incoming.UpdatedAt = 95

	merged, ok := MergeRemote(current, incoming, "B")
	assert.False(t, ok)
	assert.Equal(t, current, merged)
}

func TestMergeRemoteAcceptsNewer(t *testing.T) {
	current := Empty()
	current.OriginID = "B"
	current.UpdatedAt = 90

	incoming := Empty()
	incoming.Character = &Character{ID: "huntress", Name: "Huntress"}
	incoming.OriginID = "A"
	incoming.UpdatedAt = 100

	merged, ok := MergeRemote(current, incoming, "B")
	require.True(t, ok)
	assert.Equal(t, "Huntress", merged.Character.Name)
	assert.EqualValues(t, 100, merged.UpdatedAt)
}

func TestMergeRemoteEchoSuppression(t *testing.T) {
	current := Empty()
	current.OriginID = "A"
	current.UpdatedAt = 50

	incoming := Empty()
	incoming.OriginID = "A"
	incoming.UpdatedAt = 999

	_, ok := MergeRemote(current, incoming, "A")
	assert.False(t, ok, "own origin must never be reapplied")
}

func TestMergeRemoteTieBreakIsDeterministic(t *testing.T) {
	current := Empty()
	current.OriginID = "aaa"
	current.UpdatedAt = 100

	loser := Empty()
	loser.OriginID = "aa0"
	loser.UpdatedAt = 100

	winner := Empty()
	winner.OriginID = "zzz"
	winner.UpdatedAt = 100

	_, ok := MergeRemote(current, loser, "self")
	assert.False(t, ok, "lexically smaller origin loses the tie")

	_, ok = MergeRemote(current, winner, "self")
	assert.True(t, ok, "lexically larger origin wins the tie")
}

func TestMergeRemoteMissingOriginRejected(t *testing.T) {
	incoming := Empty()
	incoming.UpdatedAt = 100

	_, ok := MergeRemote(Empty(), incoming, "self")
	assert.False(t, ok)
}
