// Package goal describes path targets independently of how they were
// specified. A Region answers membership and an admissible distance
// estimate; the planner never looks at the concrete variant.
package goal

import (
	"math"

	"github.com/Blecki/dwarfcorp-sub032/internal/sim/voxel"
)

// DefaultVerticalPenalty matches the planner's per-voxel vertical cost.
const DefaultVerticalPenalty = 10

type Region interface {
	IsInGoalRegion(c voxel.Coord) bool
	// Heuristic never overestimates the remaining path cost from c.
	Heuristic(c voxel.Coord) float64
	// IsPossible is a cheap pre-flight check run before any search.
	IsPossible() bool
	// RepresentativeVoxel may be invalid for goals without a single anchor.
	RepresentativeVoxel() voxel.Handle
}

// AdjacentFinisher is implemented by goals that let the planner stop one
// face away from the representative voxel and append the last step.
type AdjacentFinisher interface {
	AllowsAdjacentFinish() bool
}

// AllowsAdjacentFinish reports whether r opts into the adjacency shortcut.
func AllowsAdjacentFinish(r Region) bool {
	f, ok := r.(AdjacentFinisher)
	return ok && f.AllowsAdjacentFinish()
}

// Metric is the heuristic's view of the edge cost model: Euclidean length
// plus a penalty per voxel of vertical travel.
type Metric struct {
	VerticalPenalty float64
}

func DefaultMetric() Metric { return Metric{VerticalPenalty: DefaultVerticalPenalty} }

func (m Metric) Estimate(a, b voxel.Coord) float64 {
	return math.Sqrt(float64(voxel.SquaredDistance(a, b))) + m.VerticalPenalty*float64(voxel.AbsInt(a.Y-b.Y))
}
