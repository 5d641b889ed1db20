package astar

import (
	"github.com/Blecki/dwarfcorp-sub032/internal/sim/planner/goal"
	"github.com/Blecki/dwarfcorp-sub032/internal/sim/voxel"
)

// Costs is the edge-cost model. It is passed to the planner explicitly so
// searches carry no hidden global state.
type Costs struct {
	// VerticalPenalty is charged per voxel of vertical displacement.
	VerticalPenalty float64
	// OccupiedPenalty is charged when the destination is not empty.
	OccupiedPenalty float64
	// DeepLiquidLevel is the liquid level above which water is "deep".
	DeepLiquidLevel int
	// LiquidPenalty is the flat surcharge for entering deep liquid.
	LiquidPenalty float64
	// LiquidVerticalPenalty scales with vertical displacement in deep liquid.
	LiquidVerticalPenalty float64
	// ClimbCost is the fixed surcharge for climb and jump moves.
	ClimbCost float64
	// MoveMultipliers scale the geometric part per move type. Values below
	// 1 are raised to 1.
	MoveMultipliers map[voxel.MoveType]float64
}

func DefaultCosts() Costs {
	return Costs{
		VerticalPenalty:       goal.DefaultVerticalPenalty,
		OccupiedPenalty:       100,
		DeepLiquidLevel:       5,
		LiquidPenalty:         10,
		LiquidVerticalPenalty: 5,
		ClimbCost:             2,
		MoveMultipliers: map[voxel.MoveType]float64{
			voxel.MoveSwim: 2,
		},
	}
}

// Metric is the heuristic view of these costs.
func (c Costs) Metric() goal.Metric {
	return goal.Metric{VerticalPenalty: c.VerticalPenalty}
}

func (c Costs) multiplier(m voxel.MoveType) float64 {
	v, ok := c.MoveMultipliers[m]
	if !ok || v < 1 {
		return 1
	}
	return v
}

// StepCost is the cost of moving from one voxel into an adjacent one.
func (c Costs) StepCost(idx voxel.Index, from, to voxel.Coord, move voxel.MoveType) float64 {
	dy := float64(voxel.AbsInt(to.Y - from.Y))
	cost := c.multiplier(move) * (float64(voxel.SquaredDistance(from, to)) + c.VerticalPenalty*dy)
	if !idx.IsEmpty(to) {
		cost += c.OccupiedPenalty
	}
	if idx.LiquidLevel(to) > c.DeepLiquidLevel {
		cost += c.LiquidPenalty + c.LiquidVerticalPenalty*dy
	}
	if move.IsClimb() {
		cost += c.ClimbCost
	}
	return cost
}
