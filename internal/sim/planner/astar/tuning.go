package astar

import (
	"github.com/Blecki/dwarfcorp-sub032/internal/sim/tuning"
	"github.com/Blecki/dwarfcorp-sub032/internal/sim/voxel"
)

// CostsFromTuning converts the costs section. Unknown move names are skipped.
func CostsFromTuning(t tuning.Costs) Costs {
	c := Costs{
		VerticalPenalty:       t.VerticalPenalty,
		OccupiedPenalty:       t.OccupiedPenalty,
		DeepLiquidLevel:       t.DeepLiquidLevel,
		LiquidPenalty:         t.LiquidPenalty,
		LiquidVerticalPenalty: t.LiquidVerticalPenalty,
		ClimbCost:             t.ClimbCost,
		MoveMultipliers:       map[voxel.MoveType]float64{},
	}
	for name, v := range t.MoveMultipliers {
		if m, ok := voxel.ParseMoveType(name); ok {
			c.MoveMultipliers[m] = v
		}
	}
	return c
}

func ParamsFromTuning(t tuning.Planner) Params {
	return Params{MaxExpansions: t.MaxExpansions, HeuristicWeight: t.HeuristicWeight}
}
