package build

// Slot capacities. Fixed by the game, not configurable.
const (
	MaxAbilities = 4
	MaxModifiers = 2
)

type Character struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Img        string `json:"img"`
	Power      string `json:"power,omitempty"`
	Realm      string `json:"realm,omitempty"`
	Difficulty string `json:"difficulty,omitempty"`
}

type Ability struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Img         string `json:"img"`
	Description string `json:"description,omitempty"`
	Character   string `json:"character,omitempty"`
	Teachable   bool   `json:"teachable,omitempty"`
}

// Modifier is an item add-on. A non-empty Character restricts it to builds
// whose selected character has that name.
type Modifier struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Img         string `json:"img"`
	Rarity      string `json:"rarity,omitempty"`
	Character   string `json:"character,omitempty"`
	Description string `json:"description,omitempty"`
}

type Consumable struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Img         string `json:"img"`
	Rarity      string `json:"rarity,omitempty"`
	Description string `json:"description,omitempty"`
}

type Platform struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Img       string `json:"img"`
	ShortName string `json:"shortName,omitempty"`
}

// Build is the unit of synchronization: one shared selection, stamped with
// the origin that produced it and a millisecond timestamp used as the sole
// ordering signal across clients.
type Build struct {
	Character  *Character  `json:"character"`
	Abilities  []Ability   `json:"abilities"`
	Modifiers  []Modifier  `json:"modifiers"`
	Consumable *Consumable `json:"consumable"`
	Platform   *Platform   `json:"platform"`
	OriginID   string      `json:"originId,omitempty"`
	UpdatedAt  int64       `json:"updatedAt,omitempty"`
}

// Empty returns the zero selection. Slices are allocated so the build
// serializes as [] rather than null.
func Empty() Build {
	return Build{
		Abilities: []Ability{},
		Modifiers: []Modifier{},
	}
}

type OpType string

const (
	OpSelectCharacter OpType = "SelectCharacter"
	OpAddAbility      OpType = "AddAbility"
	OpRemoveAbility   OpType = "RemoveAbility"
	OpAddModifier     OpType = "AddModifier"
	OpRemoveModifier  OpType = "RemoveModifier"
	OpSetConsumable   OpType = "SetConsumable"
	OpSetPlatform     OpType = "SetPlatform"
	OpReset           OpType = "Reset"
)

// Op is a single local mutation. Only the fields relevant to its type are
// read; ID carries the identifier for removals.
type Op struct {
	Type       OpType
	Character  *Character
	Ability    *Ability
	Modifier   *Modifier
	Consumable *Consumable
	Platform   *Platform
	ID         string
}

// Apply validates op against b and returns the resulting build. The second
// return is false when the operation was absorbed as a no-op: a full slot,
// a duplicate identifier, an incompatible modifier, or a removal of an
// absent item. Absorbed operations are not errors and must not be
// published. The input build is never mutated.
func Apply(b Build, op Op) (Build, bool) {
	switch op.Type {
	case OpSelectCharacter:
		next := b
		next.Character = op.Character
		// Modifiers are only ever valid for the selected character, so a
		// character change clears them in the same step.
		next.Modifiers = []Modifier{}
		return next, true

	case OpAddAbility:
		if op.Ability == nil || len(b.Abilities) >= MaxAbilities {
			return b, false
		}
		for _, a := range b.Abilities {
			if a.ID == op.Ability.ID {
				return b, false
			}
		}
		next := b
		next.Abilities = append(append([]Ability{}, b.Abilities...), *op.Ability)
		return next, true

	case OpRemoveAbility:
		kept := make([]Ability, 0, len(b.Abilities))
		for _, a := range b.Abilities {
			if a.ID != op.ID {
				kept = append(kept, a)
			}
		}
		if len(kept) == len(b.Abilities) {
			return b, false
		}
		next := b
		next.Abilities = kept
		return next, true

	case OpAddModifier:
		if op.Modifier == nil || len(b.Modifiers) >= MaxModifiers {
			return b, false
		}
		// A tagged modifier is rejected when a different character is
		// selected. With no character selected the tag is not checked.
		if op.Modifier.Character != "" && b.Character != nil && op.Modifier.Character != b.Character.Name {
			return b, false
		}
		for _, m := range b.Modifiers {
			if m.ID == op.Modifier.ID {
				return b, false
			}
		}
		next := b
		next.Modifiers = append(append([]Modifier{}, b.Modifiers...), *op.Modifier)
		return next, true

	case OpRemoveModifier:
		kept := make([]Modifier, 0, len(b.Modifiers))
		for _, m := range b.Modifiers {
			if m.ID != op.ID {
				kept = append(kept, m)
			}
		}
		if len(kept) == len(b.Modifiers) {
			return b, false
		}
		next := b
		next.Modifiers = kept
		return next, true

	case OpSetConsumable:
		next := b
		next.Consumable = op.Consumable
		return next, true

	case OpSetPlatform:
		next := b
		next.Platform = op.Platform
		return next, true

	case OpReset:
		return Empty(), true

	default:
		return b, false
	}
}

// MergeRemote decides whether incoming replaces current. Replacement is
// wholesale: there is no field-level merge across origins, last writer
// wins at whole-build granularity.
//
// incoming is discarded when it echoes selfOrigin, or when it is not newer
// than current. Equal timestamps from different origins are resolved by
// lexical comparison of origin IDs, larger wins, so every client picks the
// same winner regardless of arrival order.
func MergeRemote(current, incoming Build, selfOrigin string) (Build, bool) {
	if incoming.OriginID == "" || incoming.OriginID == selfOrigin {
		return current, false
	}
	if incoming.UpdatedAt < current.UpdatedAt {
		return current, false
	}
	if incoming.UpdatedAt == current.UpdatedAt && incoming.OriginID <= current.OriginID {
		return current, false
	}
	return incoming, true
}
