package voxel

import "fmt"

// ChunkSize is the edge length of a cubic chunk in voxels.
const ChunkSize = 16

// keyBits is the width of each packed axis in a quick-compare key.
const keyBits = 21

const (
	keyMask = 1<<keyBits - 1
	keyMin  = -(1 << (keyBits - 1))
	keyMax  = 1<<(keyBits-1) - 1
)

// Coord identifies a cell in global voxel space.
type Coord struct{ X, Y, Z int }

func (c Coord) Add(o Coord) Coord { return Coord{X: c.X + o.X, Y: c.Y + o.Y, Z: c.Z + o.Z} }
func (c Coord) Sub(o Coord) Coord { return Coord{X: c.X - o.X, Y: c.Y - o.Y, Z: c.Z - o.Z} }

func (c Coord) String() string { return fmt.Sprintf("(%d,%d,%d)", c.X, c.Y, c.Z) }

func (c Coord) ToArray() [3]int { return [3]int{c.X, c.Y, c.Z} }

func FromArray(a [3]int) Coord { return Coord{X: a[0], Y: a[1], Z: a[2]} }

// Key packs the coordinate into a 64-bit quick-compare key. Each axis keeps
// 21 bits, so keys are exact for coordinates in [-1048576, 1048575].
func (c Coord) Key() uint64 {
	return uint64(c.X&keyMask)<<(2*keyBits) | uint64(c.Y&keyMask)<<keyBits | uint64(c.Z&keyMask)
}

// InKeyRange reports whether Key round-trips for c.
func (c Coord) InKeyRange() bool {
	return inRange(c.X) && inRange(c.Y) && inRange(c.Z)
}

func inRange(v int) bool { return v >= keyMin && v <= keyMax }

// FromKey is the inverse of Coord.Key.
func FromKey(k uint64) Coord {
	return Coord{
		X: signExtend(int((k >> (2 * keyBits)) & keyMask)),
		Y: signExtend(int((k >> keyBits) & keyMask)),
		Z: signExtend(int(k & keyMask)),
	}
}

func signExtend(v int) int {
	if v&(1<<(keyBits-1)) != 0 {
		return v - (1 << keyBits)
	}
	return v
}

// ChunkKey identifies a chunk in chunk space.
type ChunkKey struct{ CX, CY, CZ int }

// Chunk returns the chunk containing c.
func (c Coord) Chunk() ChunkKey {
	return ChunkKey{CX: FloorDiv(c.X, ChunkSize), CY: FloorDiv(c.Y, ChunkSize), CZ: FloorDiv(c.Z, ChunkSize)}
}

// LocalIndex is the offset of c inside its chunk's block array (x fastest, then z, then y).
func (c Coord) LocalIndex() int {
	lx := Mod(c.X, ChunkSize)
	ly := Mod(c.Y, ChunkSize)
	lz := Mod(c.Z, ChunkSize)
	return lx + lz*ChunkSize + ly*ChunkSize*ChunkSize
}

// Origin returns the voxel at local (0,0,0) of the chunk.
func (k ChunkKey) Origin() Coord {
	return Coord{X: k.CX * ChunkSize, Y: k.CY * ChunkSize, Z: k.CZ * ChunkSize}
}

// ManhattanOffsets lists the six face neighbours in a fixed order.
var ManhattanOffsets = [6]Coord{
	{X: 1}, {X: -1},
	{Y: 1}, {Y: -1},
	{Z: 1}, {Z: -1},
}

// HorizontalOffsets lists the four face neighbours on the same level.
var HorizontalOffsets = [4]Coord{{X: 1}, {X: -1}, {Z: 1}, {Z: -1}}

// ManhattanDistance is |dx|+|dy|+|dz|.
func ManhattanDistance(a, b Coord) int {
	return AbsInt(a.X-b.X) + AbsInt(a.Y-b.Y) + AbsInt(a.Z-b.Z)
}

// IsManhattanAdjacent reports whether a and b share a face.
func IsManhattanAdjacent(a, b Coord) bool { return ManhattanDistance(a, b) == 1 }

// SquaredDistance is dx²+dy²+dz².
func SquaredDistance(a, b Coord) int {
	dx, dy, dz := a.X-b.X, a.Y-b.Y, a.Z-b.Z
	return dx*dx + dy*dy + dz*dz
}
