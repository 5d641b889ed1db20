package designation

import (
	"fmt"
	"math/bits"
	"strings"
)

// Type is a bitmask of work kinds. Stored designations always carry exactly
// one bit; queries take any combination.
type Type uint32

const (
	Dig Type = 1 << iota
	Gather
	Attack
	Wrangle
	Chop
	Put
	Plant
	PlaceObject
	Guard
	Craft

	None Type = 0
	All       = Dig | Gather | Attack | Wrangle | Chop | Put | Plant | PlaceObject | Guard | Craft
)

var typeNames = map[Type]string{
	Dig:         "dig",
	Gather:      "gather",
	Attack:      "attack",
	Wrangle:     "wrangle",
	Chop:        "chop",
	Put:         "put",
	Plant:       "plant",
	PlaceObject: "place_object",
	Guard:       "guard",
	Craft:       "craft",
}

func (t Type) String() string {
	if t == None {
		return "none"
	}
	parts := make([]string, 0, bits.OnesCount32(uint32(t)))
	for _, single := range t.Singles() {
		if name, ok := typeNames[single]; ok {
			parts = append(parts, name)
		} else {
			parts = append(parts, fmt.Sprintf("0x%x", uint32(single)))
		}
	}
	return strings.Join(parts, "|")
}

// Singles splits t into its bits, lowest first.
func (t Type) Singles() []Type {
	out := make([]Type, 0, bits.OnesCount32(uint32(t)))
	for v := uint32(t); v != 0; v &= v - 1 {
		out = append(out, Type(v&-v))
	}
	return out
}

func (t Type) Intersects(mask Type) bool { return t&mask != 0 }

// ParseType accepts names joined by '|', e.g. "dig|chop", or "all".
func ParseType(s string) (Type, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "all" {
		return All, nil
	}
	var t Type
	for _, part := range strings.Split(s, "|") {
		part = strings.TrimSpace(part)
		found := false
		for k, name := range typeNames {
			if name == part {
				t |= k
				found = true
				break
			}
		}
		if !found {
			return None, fmt.Errorf("unknown designation type %q", part)
		}
	}
	return t, nil
}

type AddResult uint8

const (
	AlreadyExisted AddResult = iota
	Added
	// Rejected means nothing was stored: an empty type, or a voxel the
	// configured index reports invalid.
	Rejected
)

func (r AddResult) String() string {
	switch r {
	case AlreadyExisted:
		return "ALREADY_EXISTED"
	case Added:
		return "ADDED"
	default:
		return "REJECTED"
	}
}

type RemoveResult uint8

const (
	DidntExist RemoveResult = iota
	Removed
)

func (r RemoveResult) String() string {
	if r == Removed {
		return "REMOVED"
	}
	return "DIDNT_EXIST"
}

// Entity is the part of a world object the ledger needs.
type Entity interface {
	ID() uint64
	IsDead() bool
}
