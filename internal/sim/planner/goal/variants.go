package goal

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/Blecki/dwarfcorp-sub032/internal/sim/voxel"
)

// VoxelGoal is satisfied by exactly one voxel.
type VoxelGoal struct {
	Metric
	target voxel.Handle
}

func NewVoxelGoal(idx voxel.Index, target voxel.Coord, m Metric) *VoxelGoal {
	return &VoxelGoal{Metric: m, target: voxel.Resolve(idx, target)}
}

func (g *VoxelGoal) IsInGoalRegion(c voxel.Coord) bool {
	return g.target.Valid() && c == g.target.Coord()
}

func (g *VoxelGoal) Heuristic(c voxel.Coord) float64 { return g.Estimate(c, g.target.Coord()) }

func (g *VoxelGoal) IsPossible() bool {
	return g.target.Valid() && !g.target.IsCompletelySurrounded()
}

func (g *VoxelGoal) RepresentativeVoxel() voxel.Handle { return g.target }

func (g *VoxelGoal) AllowsAdjacentFinish() bool { return true }

// AdjacentGoal2D is satisfied by the four voxels sharing a horizontal face
// with the target on the same level; used when an agent works on a block
// rather than entering it.
type AdjacentGoal2D struct {
	Metric
	idx    voxel.Index
	target voxel.Handle
}

func NewAdjacentGoal2D(idx voxel.Index, target voxel.Coord, m Metric) *AdjacentGoal2D {
	return &AdjacentGoal2D{Metric: m, idx: idx, target: voxel.Resolve(idx, target)}
}

func (g *AdjacentGoal2D) IsInGoalRegion(c voxel.Coord) bool {
	t := g.target.Coord()
	if c.Y != t.Y {
		return false
	}
	return voxel.AbsInt(c.X-t.X)+voxel.AbsInt(c.Z-t.Z) == 1
}

// Heuristic discounts the one voxel between any region member and the target.
func (g *AdjacentGoal2D) Heuristic(c voxel.Coord) float64 {
	t := g.target.Coord()
	planar := math.Sqrt(float64(voxel.SquaredDistance(c, t))) - 1
	if planar < 0 {
		planar = 0
	}
	return planar + g.VerticalPenalty*float64(voxel.AbsInt(c.Y-t.Y))
}

func (g *AdjacentGoal2D) IsPossible() bool {
	if !g.target.Valid() {
		return false
	}
	for _, off := range voxel.HorizontalOffsets {
		n := voxel.Resolve(g.idx, g.target.Coord().Add(off))
		if n.IsEmpty() {
			return true
		}
	}
	return false
}

func (g *AdjacentGoal2D) RepresentativeVoxel() voxel.Handle { return g.target }

// SphereGoal is satisfied by any voxel whose centre lies within Radius of
// Center.
type SphereGoal struct {
	Metric
	Center mgl64.Vec3
	Radius float64

	rep voxel.Handle
}

func NewSphereGoal(idx voxel.Index, center mgl64.Vec3, radius float64, m Metric) *SphereGoal {
	if radius < 0 {
		radius = 0
	}
	c := voxel.Coord{
		X: int(math.Floor(center.X())),
		Y: int(math.Floor(center.Y())),
		Z: int(math.Floor(center.Z())),
	}
	return &SphereGoal{Metric: m, Center: center, Radius: radius, rep: voxel.Resolve(idx, c)}
}

func voxelCenter(c voxel.Coord) mgl64.Vec3 {
	return mgl64.Vec3{float64(c.X) + 0.5, float64(c.Y) + 0.5, float64(c.Z) + 0.5}
}

func (g *SphereGoal) IsInGoalRegion(c voxel.Coord) bool {
	return voxelCenter(c).Sub(g.Center).LenSqr() <= g.Radius*g.Radius
}

func (g *SphereGoal) Heuristic(c voxel.Coord) float64 {
	d := voxelCenter(c).Sub(g.Center)
	planar := math.Max(0, d.Len()-g.Radius)
	vertical := math.Max(0, math.Abs(d.Y())-g.Radius)
	return planar + g.VerticalPenalty*math.Floor(vertical)
}

func (g *SphereGoal) IsPossible() bool { return g.rep.Valid() }

func (g *SphereGoal) RepresentativeVoxel() voxel.Handle { return g.rep }

// EdgeGoal is satisfied by any voxel on the horizontal rim of Bounds.
type EdgeGoal struct {
	Bounds voxel.Bounds
}

func NewEdgeGoal(b voxel.Bounds) *EdgeGoal { return &EdgeGoal{Bounds: b} }

func (g *EdgeGoal) IsInGoalRegion(c voxel.Coord) bool {
	if !g.Bounds.Contains(c) {
		return false
	}
	return c.X == g.Bounds.Min.X || c.X == g.Bounds.Max.X ||
		c.Z == g.Bounds.Min.Z || c.Z == g.Bounds.Max.Z
}

// Heuristic is the horizontal distance to the nearest rim column.
func (g *EdgeGoal) Heuristic(c voxel.Coord) float64 {
	d := min(c.X-g.Bounds.Min.X, g.Bounds.Max.X-c.X, c.Z-g.Bounds.Min.Z, g.Bounds.Max.Z-c.Z)
	if d < 0 {
		return 0
	}
	return float64(d)
}

func (g *EdgeGoal) IsPossible() bool { return !g.Bounds.Empty() }

func (g *EdgeGoal) RepresentativeVoxel() voxel.Handle { return voxel.InvalidHandle() }
