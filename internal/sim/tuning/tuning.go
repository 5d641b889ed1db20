package tuning

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

//go:embed tuning.schema.json
var schemaJSON string

type Tuning struct {
	Planner      Planner      `yaml:"planner" json:"planner"`
	Costs        Costs        `yaml:"costs" json:"costs"`
	Designations Designations `yaml:"designations" json:"designations"`
	World        World        `yaml:"world" json:"world"`
	Observer     Observer     `yaml:"observer" json:"observer"`
}

type Planner struct {
	MaxExpansions   int     `yaml:"max_expansions" json:"max_expansions"`
	HeuristicWeight float64 `yaml:"heuristic_weight" json:"heuristic_weight"`
	Workers         int     `yaml:"workers" json:"workers"`
	QueueWarnDepth  int     `yaml:"queue_warn_depth" json:"queue_warn_depth"`
}

type Costs struct {
	VerticalPenalty       float64 `yaml:"vertical_penalty" json:"vertical_penalty"`
	OccupiedPenalty       float64 `yaml:"occupied_penalty" json:"occupied_penalty"`
	DeepLiquidLevel       int     `yaml:"deep_liquid_level" json:"deep_liquid_level"`
	LiquidPenalty         float64 `yaml:"liquid_penalty" json:"liquid_penalty"`
	LiquidVerticalPenalty float64 `yaml:"liquid_vertical_penalty" json:"liquid_vertical_penalty"`
	ClimbCost             float64 `yaml:"climb_cost" json:"climb_cost"`
	// MoveMultipliers is keyed by move name (walk, jump, climb, fall, swim, fly).
	MoveMultipliers map[string]float64 `yaml:"move_multipliers" json:"move_multipliers"`
}

type Designations struct {
	CleanupEveryTicks  int `yaml:"cleanup_every_ticks" json:"cleanup_every_ticks"`
	SnapshotEveryTicks int `yaml:"snapshot_every_ticks" json:"snapshot_every_ticks"`
}

type World struct {
	ChunkSize   int    `yaml:"chunk_size" json:"chunk_size"`
	BoundaryMin [3]int `yaml:"boundary_min" json:"boundary_min"`
	BoundaryMax [3]int `yaml:"boundary_max" json:"boundary_max"`
	TickRateHz  int    `yaml:"tick_rate_hz" json:"tick_rate_hz"`
	Flying      bool   `yaml:"flying" json:"flying"`
}

type Observer struct {
	PushIntervalMs int `yaml:"push_interval_ms" json:"push_interval_ms"`
}

func Defaults() Tuning {
	return Tuning{
		Planner: Planner{
			MaxExpansions:   10000,
			HeuristicWeight: 1,
			Workers:         2,
			QueueWarnDepth:  256,
		},
		Costs: Costs{
			VerticalPenalty:       10,
			OccupiedPenalty:       100,
			DeepLiquidLevel:       5,
			LiquidPenalty:         10,
			LiquidVerticalPenalty: 5,
			ClimbCost:             2,
			MoveMultipliers:       map[string]float64{"swim": 2},
		},
		Designations: Designations{
			CleanupEveryTicks:  10,
			SnapshotEveryTicks: 3000,
		},
		World: World{
			ChunkSize:   16,
			BoundaryMin: [3]int{-64, -16, -64},
			BoundaryMax: [3]int{63, 47, 63},
			TickRateHz:  5,
		},
		Observer: Observer{PushIntervalMs: 500},
	}
}

var schema = jsonschema.MustCompileString("tuning.schema.json", schemaJSON)

// Load reads a tuning file over Defaults. Fields missing from the file keep
// their default values.
func Load(path string) (Tuning, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Tuning{}, err
	}
	return Parse(raw)
}

func Parse(raw []byte) (Tuning, error) {
	t := Defaults()
	if err := Validate(raw); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	// Decode into fresh maps so file entries replace the default multipliers.
	t.Costs.MoveMultipliers = nil
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if t.Costs.MoveMultipliers == nil {
		t.Costs.MoveMultipliers = Defaults().Costs.MoveMultipliers
	}
	return t, nil
}

// Validate checks a YAML document against the embedded schema.
func Validate(raw []byte) error {
	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return err
	}
	if doc == nil {
		return nil
	}
	// The schema validator works on JSON values.
	js, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	dec := json.NewDecoder(bytes.NewReader(js))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return err
	}
	return schema.Validate(v)
}
