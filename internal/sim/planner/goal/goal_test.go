package goal_test

import (
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

func TestVoxelGoal(t *testing.T) {
	w := newWorld()
	target := voxel.Coord{X: 3}
	g := goal.NewVoxelGoal(w, target, goal.DefaultMetric())
	if !g.IsInGoalRegion(target) || g.IsInGoalRegion(voxel.Coord{X: 2}) {
		t.Fatalf("membership mismatch")
	}
	if h := g.Heuristic(target); h != 0 {
		t.Fatalf("Heuristic(target)=%v want 0", h)
	}
	if h := g.Heuristic(voxel.Coord{}); h != 3 {
		t.Fatalf("Heuristic(origin)=%v want 3", h)
	}
	if h := g.Heuristic(voxel.Coord{X: 3, Y: 2}); h != 22 {
		t.Fatalf("Heuristic(2 above)=%v want 22", h)
	}
	if !g.IsPossible() || !goal.AllowsAdjacentFinish(g) {
		t.Fatalf("open voxel goal should be possible and allow adjacent finish")
	}
}

func TestVoxelGoalSealedIsImpossible(t *testing.T) {
	w := newWorld()
	target := voxel.Coord{X: 3, Y: 2, Z: 3}
	for _, off := range voxel.ManhattanOffsets {
		w.SetBlock(target.Add(off), stone)
	}
	if goal.NewVoxelGoal(w, target, goal.DefaultMetric()).IsPossible() {
		t.Fatalf("sealed target reported possible")
	}
}

func TestVoxelGoalOutsideWorldIsImpossible(t *testing.T) {
	g := goal.NewVoxelGoal(newWorld(), voxel.Coord{X: 100}, goal.DefaultMetric())
	if g.IsPossible() || g.IsInGoalRegion(voxel.Coord{X: 100}) {
		t.Fatalf("invalid target should be inert")
	}
}

func TestAdjacentGoal2D(t *testing.T) {
	w := newWorld()
	target := voxel.Coord{X: 2}
	w.SetBlock(target, stone)
	g := goal.NewAdjacentGoal2D(w, target, goal.DefaultMetric())
	if g.IsInGoalRegion(target) {
		t.Fatalf("target itself is not adjacent")
	}
	for _, off := range voxel.HorizontalOffsets {
		c := target.Add(off)
		if !g.IsInGoalRegion(c) {
			t.Fatalf("%v should be in region", c)
		}
		if h := g.Heuristic(c); h != 0 {
			t.Fatalf("Heuristic(%v)=%v want 0", c, h)
		}
	}
	if g.IsInGoalRegion(voxel.Coord{X: 3, Y: 1}) {
		t.Fatalf("different level accepted")
	}
	if goal.AllowsAdjacentFinish(g) {
		t.Fatalf("adjacent goal must not use the adjacency shortcut")
	}
	if !g.IsPossible() {
		t.Fatalf("target with open sides should be possible")
	}
	for _, off := range voxel.HorizontalOffsets {
		w.SetBlock(target.Add(off), stone)
	}
	if g.IsPossible() {
		t.Fatalf("target boxed in horizontally should be impossible")
	}
}

func TestSphereGoal(t *testing.T) {
	w := newWorld()
	g := goal.NewSphereGoal(w, mgl64.Vec3{4.5, 0.5, 4.5}, 1.5, goal.DefaultMetric())
	if !g.IsInGoalRegion(voxel.Coord{X: 4, Z: 4}) || !g.IsInGoalRegion(voxel.Coord{X: 5, Z: 4}) {
		t.Fatalf("centre and face neighbour should be inside")
	}
	if g.IsInGoalRegion(voxel.Coord{X: 6, Z: 4}) {
		t.Fatalf("two away should be outside radius 1.5")
	}
	if h := g.Heuristic(voxel.Coord{X: 5, Z: 4}); h != 0 {
		t.Fatalf("Heuristic inside=%v", h)
	}
	if rep := g.RepresentativeVoxel(); !rep.Valid() || rep.Coord() != (voxel.Coord{X: 4, Z: 4}) {
		t.Fatalf("representative=%+v", rep.Coord())
	}
	if !g.IsPossible() {
		t.Fatalf("sphere inside the world should be possible")
	}
}

func TestEdgeGoal(t *testing.T) {
	g := goal.NewEdgeGoal(worldBounds)
	if !g.IsInGoalRegion(voxel.Coord{X: 8}) || !g.IsInGoalRegion(voxel.Coord{Z: -8}) {
		t.Fatalf("rim voxels should be in region")
	}
	if g.IsInGoalRegion(voxel.Coord{}) {
		t.Fatalf("centre should not be in region")
	}
	if h := g.Heuristic(voxel.Coord{X: 5}); h != 3 {
		t.Fatalf("Heuristic=%v want 3", h)
	}
	if g.RepresentativeVoxel().Valid() {
		t.Fatalf("edge goal has no representative voxel")
	}
	if !g.IsPossible() || goal.NewEdgeGoal(voxel.Bounds{Min: voxel.Coord{X: 1}}).IsPossible() {
		t.Fatalf("IsPossible mismatch")
	}
}
