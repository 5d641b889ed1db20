package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/Blecki/dwarfcorp-sub032/internal/persistence/snapshot"
	"github.com/Blecki/dwarfcorp-sub032/internal/sim/planner/astar"
	"github.com/Blecki/dwarfcorp-sub032/internal/sim/planner/goal"
	"github.com/Blecki/dwarfcorp-sub032/internal/sim/planner/service"
	"github.com/Blecki/dwarfcorp-sub032/internal/sim/terrain/store"
	"github.com/Blecki/dwarfcorp-sub032/internal/sim/tuning"
	"github.com/Blecki/dwarfcorp-sub032/internal/sim/voxel"
)

func main() {
	var (
		snapPath   = flag.String("snapshot", "", "path to .snap.zst to plan over (optional; default generates a world)")
		configDir  = flag.String("configs", "./configs", "config directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		requests   = flag.Int("requests", 1000, "number of plan requests")
		workers    = flag.Int("workers", 0, "plan workers (0: tuning value)")
		seed       = flag.Int64("seed", 1337, "terrain and request seed")
		size       = flag.Int("size", 64, "generated world edge length")
		pillars    = flag.Int("pillars_permille", 80, "pillar density for a generated world")
		asJSON     = flag.Bool("json", false, "print the report as JSON")
	)
	flag.Parse()

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		if !os.IsNotExist(err) {
			fmt.Fprintln(os.Stderr, "load tuning:", err)
			os.Exit(1)
		}
		tune = tuning.Defaults()
	}
	if *workers > 0 {
		tune.Planner.Workers = *workers
	}

	var terrain *store.ChunkStore
	if *snapPath != "" {
		snap, err := snapshot.ReadSnapshot(*snapPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "read snapshot:", err)
			os.Exit(1)
		}
		terrain, err = store.FromSnapshot(snap)
		if err != nil {
			fmt.Fprintln(os.Stderr, "import terrain:", err)
			os.Exit(1)
		}
	} else {
		terrain = generate(*seed, *size, *pillars)
	}

	rep := runBench(context.Background(), terrain, tune, *requests, *seed)
	if *asJSON {
		_ = json.NewEncoder(os.Stdout).Encode(rep)
		return
	}
	fmt.Printf("requests=%d workers=%d wall=%s throughput=%.1f/s\n", rep.Requests, rep.Workers, rep.Wall, rep.Throughput)
	fmt.Printf("expansions mean=%.1f max=%d  duration p50=%s p99=%s\n", rep.MeanExpansions, rep.MaxExpansions, rep.P50, rep.P99)
	statuses := make([]string, 0, len(rep.Statuses))
	for s := range rep.Statuses {
		statuses = append(statuses, s)
	}
	sort.Strings(statuses)
	for _, s := range statuses {
		fmt.Printf("  %-16s %d\n", s, rep.Statuses[s])
	}
}

// generate builds a size×8×size world: stone floor at y=0 and scattered
// pillars three voxels tall.
func generate(seed int64, size, permille int) *store.ChunkStore {
	if size < 4 {
		size = 4
	}
	b := voxel.Bounds{Max: voxel.Coord{X: size - 1, Y: 7, Z: size - 1}}
	s := store.NewFlat(store.Config{Bounds: b}, b, 1)
	s.Scatter(seed, b, permille, 3, 1)
	return s
}

type report struct {
	Requests       int            `json:"requests"`
	Workers        int            `json:"workers"`
	Statuses       map[string]int `json:"statuses"`
	MeanExpansions float64        `json:"mean_expansions"`
	MaxExpansions  int            `json:"max_expansions"`
	P50            time.Duration  `json:"p50"`
	P99            time.Duration  `json:"p99"`
	Wall           time.Duration  `json:"wall"`
	Throughput     float64        `json:"throughput"`
}

// runBench submits n requests between random walkable voxels and waits for
// every response.
func runBench(ctx context.Context, terrain *store.ChunkStore, tune tuning.Tuning, n int, seed int64) report {
	costs := astar.CostsFromTuning(tune.Costs)
	svc := service.New(astar.New(terrain, costs), service.Config{
		Workers:  tune.Planner.Workers,
		Defaults: astar.ParamsFromTuning(tune.Planner),
	})

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = svc.Run(ctx)
	}()

	floor := walkable(terrain)
	rng := rand.New(rand.NewSource(seed))
	started := time.Now()
	replies := make([]<-chan service.Response, 0, n)
	for i := 0; i < n && len(floor) > 0; i++ {
		start := floor[rng.Intn(len(floor))]
		target := floor[rng.Intn(len(floor))]
		replies = append(replies, svc.Submit(service.Request{
			ID:     fmt.Sprintf("B%d", i),
			Sender: "planbench",
			Start:  start,
			Goal:   goal.NewVoxelGoal(terrain, target, costs.Metric()),
		}))
	}

	rep := report{Requests: len(replies), Workers: svc.Stats().Workers, Statuses: map[string]int{}}
	durations := make([]time.Duration, 0, len(replies))
	total := 0
	for _, ch := range replies {
		resp := <-ch
		rep.Statuses[resp.Status.String()]++
		total += resp.Expansions
		if resp.Expansions > rep.MaxExpansions {
			rep.MaxExpansions = resp.Expansions
		}
		durations = append(durations, resp.Duration)
	}
	rep.Wall = time.Since(started)
	cancel()
	<-done

	if len(durations) > 0 {
		sort.Slice(durations, func(i, j int) bool { return durations[i] < durations[j] })
		rep.MeanExpansions = float64(total) / float64(len(durations))
		rep.P50 = durations[len(durations)/2]
		rep.P99 = durations[(len(durations)*99)/100]
		if rep.Wall > 0 {
			rep.Throughput = float64(len(durations)) / rep.Wall.Seconds()
		}
	}
	return rep
}

// walkable lists empty voxels standing on a solid block.
func walkable(terrain *store.ChunkStore) []voxel.Coord {
	b := terrain.Config().Bounds
	var out []voxel.Coord
	for y := b.Min.Y + 1; y <= b.Max.Y; y++ {
		for z := b.Min.Z; z <= b.Max.Z; z++ {
			for x := b.Min.X; x <= b.Max.X; x++ {
				c := voxel.Coord{X: x, Y: y, Z: z}
				below := voxel.Coord{X: x, Y: y - 1, Z: z}
				if terrain.IsEmpty(c) && terrain.IsValid(below) && !terrain.IsEmpty(below) {
					out = append(out, c)
				}
			}
		}
	}
	return out
}
