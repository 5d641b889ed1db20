package tuning

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadRepoConfig(t *testing.T) {
	tune, err := Load(filepath.Join("..", "..", "..", "configs", "tuning.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if tune.Planner.Workers != 4 || tune.Planner.MaxExpansions != 10000 {
		t.Fatalf("planner=%+v", tune.Planner)
	}
	if tune.Costs.VerticalPenalty != 10 || tune.Costs.MoveMultipliers["swim"] != 2 {
		t.Fatalf("costs=%+v", tune.Costs)
	}
	if tune.World.BoundaryMin != [3]int{-64, -16, -64} {
		t.Fatalf("boundary_min=%v", tune.World.BoundaryMin)
	}
}

func TestPartialFileKeepsDefaults(t *testing.T) {
	tune, err := Parse([]byte("planner:\n  workers: 8\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	def := Defaults()
	if tune.Planner.Workers != 8 {
		t.Fatalf("workers=%d want 8", tune.Planner.Workers)
	}
	if tune.Planner.MaxExpansions != def.Planner.MaxExpansions || tune.Costs.ClimbCost != def.Costs.ClimbCost {
		t.Fatalf("defaults lost: %+v", tune)
	}
	if tune.Costs.MoveMultipliers["swim"] != 2 {
		t.Fatalf("multipliers=%v", tune.Costs.MoveMultipliers)
	}
}

func TestSchemaRejectsBadValues(t *testing.T) {
	cases := []string{
		"planner:\n  workers: 0\n",
		"planner:\n  max_expansions: many\n",
		"costs:\n  move_multipliers:\n    teleport: 3\n",
		"world:\n  chunk_size: 32\n",
		"world:\n  boundary_min: [1, 2]\n",
		"unknown_section: {}\n",
	}
	for _, doc := range cases {
		if _, err := Parse([]byte(doc)); err == nil {
			t.Fatalf("expected error for %q", doc)
		} else if !strings.Contains(err.Error(), "tuning.yaml") {
			t.Fatalf("error not wrapped: %v", err)
		}
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if !os.IsNotExist(err) {
		t.Fatalf("err=%v want not-exist", err)
	}
}
