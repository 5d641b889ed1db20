package main

import (
	"context"
	"testing"

	"github.com/Blecki/dwarfcorp-sub032/internal/sim/planner/astar"
	"github.com/Blecki/dwarfcorp-sub032/internal/sim/tuning"
	"github.com/Blecki/dwarfcorp-sub032/internal/sim/voxel"
)

func TestWalkableOnFlatWorld(t *testing.T) {
	s := generate(1, 8, 0)
	got := walkable(s)
	if len(got) != 64 {
		t.Fatalf("walkable=%d want 64", len(got))
	}
	for _, c := range got {
		if c.Y != 1 {
			t.Fatalf("walkable voxel %v not on floor", c)
		}
	}
}

func TestRunBenchAnswersEveryRequest(t *testing.T) {
	s := generate(7, 16, 50)
	tune := tuning.Defaults()
	tune.Planner.Workers = 3

	rep := runBench(context.Background(), s, tune, 40, 7)
	if rep.Requests != 40 || rep.Workers != 3 {
		t.Fatalf("requests=%d workers=%d", rep.Requests, rep.Workers)
	}
	sum := 0
	for _, n := range rep.Statuses {
		sum += n
	}
	if sum != 40 {
		t.Fatalf("responses=%d want 40 (%v)", sum, rep.Statuses)
	}
	if rep.Statuses[astar.StatusFound.String()] == 0 {
		t.Fatalf("no path found in open world: %v", rep.Statuses)
	}
	if rep.P99 < rep.P50 {
		t.Fatalf("p99=%s < p50=%s", rep.P99, rep.P50)
	}
}

func TestGenerateClampsSize(t *testing.T) {
	s := generate(1, 1, 0)
	if !s.IsValid(voxel.Coord{X: 3, Y: 0, Z: 3}) {
		t.Fatalf("4x4 minimum world not generated")
	}
}
