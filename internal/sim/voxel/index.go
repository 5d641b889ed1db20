package voxel

// Index is the read-only spatial query surface the planner consumes.
// Implementations must answer neutrally (false, 0, nil) for invalid
// coordinates and be safe for concurrent readers.
type Index interface {
	IsValid(c Coord) bool
	IsEmpty(c Coord) bool
	LiquidLevel(c Coord) int
	ManhattanNeighbors(c Coord) []Coord
	MovableNeighbors(c Coord) []Neighbor
	IsCompletelySurrounded(c Coord) bool
}

// Bounds is an inclusive axis-aligned box of voxels.
type Bounds struct {
	Min Coord
	Max Coord
}

func (b Bounds) Contains(c Coord) bool {
	return c.X >= b.Min.X && c.X <= b.Max.X &&
		c.Y >= b.Min.Y && c.Y <= b.Max.Y &&
		c.Z >= b.Min.Z && c.Z <= b.Max.Z
}

// IsZero reports whether b is the zero value.
func (b Bounds) IsZero() bool { return b == Bounds{} }

// Empty reports whether the box holds no voxel.
func (b Bounds) Empty() bool {
	return b.Max.X < b.Min.X || b.Max.Y < b.Min.Y || b.Max.Z < b.Min.Z
}
