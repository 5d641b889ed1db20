package voxel

import "strings"

// MoveType tags how a path step is traversed.
type MoveType uint8

const (
	// MoveNone marks the first action of a path (the start voxel).
	MoveNone MoveType = iota
	MoveWalk
	MoveJump
	MoveClimb
	MoveFall
	MoveSwim
	MoveFly
)

var moveNames = [...]string{
	MoveNone:  "NONE",
	MoveWalk:  "WALK",
	MoveJump:  "JUMP",
	MoveClimb: "CLIMB",
	MoveFall:  "FALL",
	MoveSwim:  "SWIM",
	MoveFly:   "FLY",
}

func (m MoveType) String() string {
	if int(m) < len(moveNames) {
		return moveNames[m]
	}
	return "UNKNOWN"
}

// IsClimb reports whether the move pays the climb surcharge.
func (m MoveType) IsClimb() bool { return m == MoveClimb || m == MoveJump }

// Neighbor is one movable successor of a voxel.
type Neighbor struct {
	Coord Coord
	Move  MoveType
}

// ParseMoveType is the inverse of String, case-insensitive.
func ParseMoveType(s string) (MoveType, bool) {
	for i, name := range moveNames {
		if strings.EqualFold(name, s) {
			return MoveType(i), true
		}
	}
	return MoveNone, false
}
