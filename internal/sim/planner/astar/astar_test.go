package astar

import (
	"math"
	"math/rand"
	"testing"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/Blecki/dwarfcorp-sub032/internal/sim/planner/goal"
	"github.com/Blecki/dwarfcorp-sub032/internal/sim/terrain/store"
	"github.com/Blecki/dwarfcorp-sub032/internal/sim/voxel"
)

const stone uint16 = 1

var worldBounds = voxel.Bounds{
	Min: voxel.Coord{X: -8, Y: -1, Z: -8},
	Max: voxel.Coord{X: 8, Y: 6, Z: 8},
}

func newWorld() *store.ChunkStore {
	return store.NewFlat(store.Config{}, worldBounds, stone)
}

func checkChain(t *testing.T, r Result, start voxel.Coord) {
	t.Helper()
	if len(r.Path) == 0 {
		t.Fatalf("empty path")
	}
	if r.Path[0].Voxel != start || r.Path[0].Move != voxel.MoveNone {
		t.Fatalf("path does not start at %v: %+v", start, r.Path[0])
	}
	for i := 1; i < len(r.Path); i++ {
		if r.Path[i].Source != r.Path[i-1].Voxel {
			t.Fatalf("step %d source=%v want %v", i, r.Path[i].Source, r.Path[i-1].Voxel)
		}
	}
}

func TestStraightCorridor(t *testing.T) {
	w := newWorld()
	p := New(w, DefaultCosts())
	start, target := voxel.Coord{}, voxel.Coord{X: 3}
	g := goal.NewVoxelGoal(w, target, p.Costs().Metric())

	r := p.FindPath(start, g, Params{MaxExpansions: 1000, HeuristicWeight: 1})
	if !r.Success() {
		t.Fatalf("status=%v", r.Status)
	}
	checkChain(t, r, start)
	if len(r.Path) != 4 {
		t.Fatalf("len(path)=%d want 4: %+v", len(r.Path), r.Path)
	}
	for i, a := range r.Path {
		if a.Voxel != (voxel.Coord{X: i}) {
			t.Fatalf("path[%d]=%v", i, a.Voxel)
		}
	}
	if math.Abs(r.Cost-3) > 1e-9 {
		t.Fatalf("cost=%v want 3", r.Cost)
	}
	if last := r.Path[len(r.Path)-1].Voxel; !g.IsInGoalRegion(last) {
		t.Fatalf("last voxel %v not in goal", last)
	}
}

func TestSealedGoalFailsWithoutExpansion(t *testing.T) {
	w := newWorld()
	target := voxel.Coord{X: 4, Y: 2, Z: 4}
	for _, off := range voxel.ManhattanOffsets {
		w.SetBlock(target.Add(off), stone)
	}
	p := New(w, DefaultCosts())
	r := p.FindPath(voxel.Coord{}, goal.NewVoxelGoal(w, target, p.Costs().Metric()), Params{MaxExpansions: 1000, HeuristicWeight: 1})
	if r.Success() || r.Status != StatusSealed {
		t.Fatalf("status=%v want SEALED", r.Status)
	}
	if r.Expansions != 0 || r.Path != nil {
		t.Fatalf("expansions=%d path=%v", r.Expansions, r.Path)
	}
}

func TestSealedStartFails(t *testing.T) {
	w := newWorld()
	start := voxel.Coord{X: -4, Y: 2, Z: -4}
	for _, off := range voxel.ManhattanOffsets {
		w.SetBlock(start.Add(off), stone)
	}
	p := New(w, DefaultCosts())
	r := p.FindPath(start, goal.NewVoxelGoal(w, voxel.Coord{X: 3}, p.Costs().Metric()), Params{})
	if r.Status != StatusSealed || r.Expansions != 0 {
		t.Fatalf("status=%v expansions=%d", r.Status, r.Expansions)
	}
}

func buildRoom(w *store.ChunkStore, min, max voxel.Coord) {
	w.Fill(voxel.Bounds{Min: min, Max: max}, stone)
	inner := voxel.Bounds{Min: min.Add(voxel.Coord{X: 1, Y: 1, Z: 1}), Max: max.Sub(voxel.Coord{X: 1, Y: 1, Z: 1})}
	w.Fill(inner, 0)
}

func TestUnreachableGoalExhaustsOpenSet(t *testing.T) {
	w := newWorld()
	buildRoom(w, voxel.Coord{X: 2, Y: 0, Z: 2}, voxel.Coord{X: 6, Y: 4, Z: 6})
	p := New(w, DefaultCosts())
	target := voxel.Coord{X: 4, Y: 1, Z: 4}
	r := p.FindPath(voxel.Coord{X: -5, Z: -5}, goal.NewVoxelGoal(w, target, p.Costs().Metric()), Params{MaxExpansions: 1 << 20, HeuristicWeight: 1})
	if r.Status != StatusUnreachable {
		t.Fatalf("status=%v want UNREACHABLE", r.Status)
	}
	if r.Expansions == 0 {
		t.Fatalf("expected the search to expand before giving up")
	}
}

func TestBudgetExceeded(t *testing.T) {
	w := newWorld()
	p := New(w, DefaultCosts())
	g := goal.NewVoxelGoal(w, voxel.Coord{X: 8, Z: 8}, p.Costs().Metric())
	r := p.FindPath(voxel.Coord{X: -8, Z: -8}, g, Params{MaxExpansions: 3, HeuristicWeight: 1})
	if r.Status != StatusBudgetExceeded || r.Expansions != 3 {
		t.Fatalf("status=%v expansions=%d", r.Status, r.Expansions)
	}
	if !r.Status.Retryable() || StatusUnreachable.Retryable() {
		t.Fatalf("retryable classification mismatch")
	}
}

func TestStartInsideGoal(t *testing.T) {
	w := newWorld()
	p := New(w, DefaultCosts())
	start := voxel.Coord{X: 1, Z: 1}
	r := p.FindPath(start, goal.NewVoxelGoal(w, start, p.Costs().Metric()), Params{})
	if !r.Success() || len(r.Path) != 1 || r.Expansions != 0 {
		t.Fatalf("result=%+v", r)
	}
}

func TestInvalidStart(t *testing.T) {
	w := newWorld()
	p := New(w, DefaultCosts())
	r := p.FindPath(voxel.Coord{X: 99}, goal.NewVoxelGoal(w, voxel.Coord{}, p.Costs().Metric()), Params{})
	if r.Status != StatusInvalid {
		t.Fatalf("status=%v want INVALID", r.Status)
	}
	if r := p.FindPath(voxel.Coord{}, nil, Params{}); r.Status != StatusInvalid {
		t.Fatalf("nil goal status=%v", r.Status)
	}
}

func TestAdjacentGoalStopsBesideTarget(t *testing.T) {
	w := newWorld()
	target := voxel.Coord{X: 5, Z: 2}
	w.SetBlock(target, stone)
	p := New(w, DefaultCosts())
	g := goal.NewAdjacentGoal2D(w, target, p.Costs().Metric())
	r := p.FindPath(voxel.Coord{X: -3, Z: -1}, g, Params{MaxExpansions: 5000, HeuristicWeight: 1})
	if !r.Success() {
		t.Fatalf("status=%v", r.Status)
	}
	checkChain(t, r, voxel.Coord{X: -3, Z: -1})
	last := r.Path[len(r.Path)-1].Voxel
	if !g.IsInGoalRegion(last) || last == target {
		t.Fatalf("last=%v", last)
	}
}

func TestClimbsOverWall(t *testing.T) {
	w := newWorld()
	// A wall across the world, two voxels high.
	w.Fill(voxel.Bounds{Min: voxel.Coord{X: 2, Y: 0, Z: -8}, Max: voxel.Coord{X: 2, Y: 1, Z: 8}}, stone)
	p := New(w, DefaultCosts())
	target := voxel.Coord{X: 5}
	r := p.FindPath(voxel.Coord{}, goal.NewVoxelGoal(w, target, p.Costs().Metric()), Params{MaxExpansions: 20000, HeuristicWeight: 1})
	if !r.Success() {
		t.Fatalf("status=%v", r.Status)
	}
	checkChain(t, r, voxel.Coord{})
	climbed := false
	for _, a := range r.Path {
		if a.Move.IsClimb() {
			climbed = true
		}
	}
	if !climbed {
		t.Fatalf("expected a climb or jump in %+v", r.Path)
	}
	if r.Path[len(r.Path)-1].Voxel != target {
		t.Fatalf("last=%v", r.Path[len(r.Path)-1].Voxel)
	}
}

func TestEdgeAndSphereGoals(t *testing.T) {
	w := newWorld()
	p := New(w, DefaultCosts())
	params := Params{MaxExpansions: 20000, HeuristicWeight: 1}

	edge := goal.NewEdgeGoal(worldBounds)
	r := p.FindPath(voxel.Coord{X: 1, Z: 1}, edge, params)
	if !r.Success() || !edge.IsInGoalRegion(r.Path[len(r.Path)-1].Voxel) {
		t.Fatalf("edge: %+v", r)
	}
	if math.Abs(r.Cost-7) > 1e-9 {
		t.Fatalf("edge cost=%v want 7", r.Cost)
	}

	sphere := goal.NewSphereGoal(w, mgl64.Vec3{-5.5, 0.5, 6.5}, 1, p.Costs().Metric())
	r = p.FindPath(voxel.Coord{}, sphere, params)
	if !r.Success() || !sphere.IsInGoalRegion(r.Path[len(r.Path)-1].Voxel) {
		t.Fatalf("sphere: %+v", r)
	}
}

func TestStepCosts(t *testing.T) {
	w := newWorld()
	c := DefaultCosts()
	if got := c.StepCost(w, voxel.Coord{}, voxel.Coord{X: 1}, voxel.MoveWalk); got != 1 {
		t.Fatalf("walk=%v", got)
	}
	// squared distance 2, one voxel up, climb surcharge.
	if got := c.StepCost(w, voxel.Coord{}, voxel.Coord{X: 1, Y: 1}, voxel.MoveJump); got != 2+10+2 {
		t.Fatalf("jump=%v", got)
	}
	w.SetLiquid(voxel.Coord{Z: 1}, 7)
	if got := c.StepCost(w, voxel.Coord{}, voxel.Coord{Z: 1}, voxel.MoveSwim); got != 2*1+10 {
		t.Fatalf("deep swim=%v", got)
	}
	w.SetBlock(voxel.Coord{Z: -1}, stone)
	if got := c.StepCost(w, voxel.Coord{}, voxel.Coord{Z: -1}, voxel.MoveWalk); got != 1+100 {
		t.Fatalf("occupied=%v", got)
	}
}

func TestAvoidsDeepWaterWhenCheaper(t *testing.T) {
	w := newWorld()
	// Deep channel across x=1..2 except for a dry bridge at z=3.
	for z := -8; z <= 8; z++ {
		if z == 3 {
			continue
		}
		for x := 1; x <= 2; x++ {
			w.SetLiquid(voxel.Coord{X: x, Z: z}, 8)
		}
	}
	p := New(w, DefaultCosts())
	r := p.FindPath(voxel.Coord{}, goal.NewVoxelGoal(w, voxel.Coord{X: 4}, p.Costs().Metric()), Params{MaxExpansions: 20000, HeuristicWeight: 1})
	if !r.Success() {
		t.Fatalf("status=%v", r.Status)
	}
	for _, a := range r.Path {
		if w.LiquidLevel(a.Voxel) > 0 {
			t.Fatalf("path swims through %v although the bridge is cheaper", a.Voxel)
		}
	}
}

// Sampled consistency check: for movable neighbours a->b the heuristic never
// drops by more than the edge cost, so it never overestimates.
func TestHeuristicConsistency(t *testing.T) {
	w := newWorld()
	w.Scatter(3, worldBounds, 150, 2, stone)
	rng := rand.New(rand.NewSource(11))
	for i := 0; i < 40; i++ {
		w.SetLiquid(voxel.Coord{X: rng.Intn(17) - 8, Y: rng.Intn(3), Z: rng.Intn(17) - 8}, uint8(rng.Intn(9)))
	}
	costs := DefaultCosts()
	m := costs.Metric()
	target := voxel.Coord{X: rng.Intn(17) - 8, Y: 0, Z: rng.Intn(17) - 8}
	goals := []goal.Region{
		goal.NewVoxelGoal(w, target, m),
		goal.NewAdjacentGoal2D(w, target, m),
		goal.NewSphereGoal(w, mgl64.Vec3{1.5, 2.5, -3.5}, 2, m),
		goal.NewEdgeGoal(worldBounds),
	}

	checked := 0
	for i := 0; i < 3000; i++ {
		a := voxel.Coord{X: rng.Intn(17) - 8, Y: rng.Intn(7), Z: rng.Intn(17) - 8}
		for _, nb := range w.MovableNeighbors(a) {
			cost := costs.StepCost(w, a, nb.Coord, nb.Move)
			for gi, g := range goals {
				if d := g.Heuristic(a) - g.Heuristic(nb.Coord); d > cost+1e-9 {
					t.Fatalf("goal %d: h(%v)-h(%v)=%v > cost %v", gi, a, nb.Coord, d, cost)
				}
			}
			checked++
		}
	}
	if checked == 0 {
		t.Fatalf("no edges sampled")
	}
}

// With a consistent heuristic weighted at 1 the search matches Dijkstra.
func TestWeightedSearchMatchesDijkstra(t *testing.T) {
	w := newWorld()
	w.Scatter(5, worldBounds, 200, 3, stone)
	p := New(w, DefaultCosts())
	start := voxel.Coord{X: -7, Z: -7}
	w.SetBlock(start, 0)
	sphere := goal.NewSphereGoal(w, mgl64.Vec3{7.5, 0.5, 7.5}, 1, p.Costs().Metric())

	weighted := p.FindPath(start, sphere, Params{MaxExpansions: 1 << 20, HeuristicWeight: 1})
	dijkstra := p.FindPath(start, sphere, Params{MaxExpansions: 1 << 20, HeuristicWeight: 0})
	if weighted.Status != dijkstra.Status {
		t.Fatalf("status %v vs %v", weighted.Status, dijkstra.Status)
	}
	if weighted.Success() && math.Abs(weighted.Cost-dijkstra.Cost) > 1e-9 {
		t.Fatalf("cost %v vs dijkstra %v", weighted.Cost, dijkstra.Cost)
	}
	if weighted.Expansions > dijkstra.Expansions {
		t.Fatalf("heuristic expanded more (%d) than dijkstra (%d)", weighted.Expansions, dijkstra.Expansions)
	}
}
