package main

import (
	"context"
	"errors"
	"flag"
	"io/fs"
	"log"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/go-echarts/statsview"
	"github.com/go-echarts/statsview/viewer"

	"github.com/Blecki/dwarfcorp-sub032/internal/observe"
	"github.com/Blecki/dwarfcorp-sub032/internal/persistence/indexdb"
	persistlog "github.com/Blecki/dwarfcorp-sub032/internal/persistence/log"
	"github.com/Blecki/dwarfcorp-sub032/internal/persistence/snapshot"
	"github.com/Blecki/dwarfcorp-sub032/internal/sim/designation"
	"github.com/Blecki/dwarfcorp-sub032/internal/sim/planner/astar"
	"github.com/Blecki/dwarfcorp-sub032/internal/sim/planner/service"
	"github.com/Blecki/dwarfcorp-sub032/internal/sim/terrain/store"
	"github.com/Blecki/dwarfcorp-sub032/internal/sim/tuning"
	"github.com/Blecki/dwarfcorp-sub032/internal/sim/voxel"
	"github.com/Blecki/dwarfcorp-sub032/internal/transport/observer"
)

const version = "0.1.0"

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		worldID    = flag.String("world", "world_1", "world id")
		seed       = flag.Int64("seed", 1337, "terrain seed (used only when starting a fresh world)")
		configDir  = flag.String("configs", "./configs", "config directory")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		disableDB  = flag.Bool("disable_db", false, "disable the sqlite index (plans + snapshot metadata)")
		pillars    = flag.Int("pillars_permille", 40, "pillar density for a fresh world")

		snapPath   = flag.String("snapshot", "", "path to snapshot to load (optional)")
		loadLatest = flag.Bool("load_latest_snapshot", true, "load latest snapshot from data dir if present (when -snapshot is empty)")

		statsAddr = flag.String("statsview", "", "runtime charts listen address (empty to disable)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[plannerd] ", log.LstdFlags|log.Lmicroseconds)

	if dsn := strings.TrimSpace(os.Getenv("SENTRY_DSN")); dsn != "" {
		if err := sentry.Init(sentry.ClientOptions{Dsn: dsn, Release: "plannerd@" + version}); err != nil {
			logger.Printf("sentry init: %v", err)
		} else {
			defer sentry.Flush(2 * time.Second)
		}
	}

	worldDir := filepath.Join(*dataDir, "worlds", *worldID)
	_ = os.MkdirAll(worldDir, 0o755)
	snapDir := filepath.Join(worldDir, "snapshots")

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			logger.Fatalf("load tuning: %v", err)
		}
		logger.Printf("tuning not found (%s); using defaults", tp)
		tune = tuning.Defaults()
	}

	var idx *indexdb.SQLiteIndex
	if !*disableDB {
		idx, err = indexdb.OpenSQLite(filepath.Join(worldDir, "index", "world.sqlite"))
		if err != nil {
			logger.Fatalf("open index: %v", err)
		}
		defer idx.Close()
		if err := idx.UpsertTuning(tune); err != nil {
			logger.Printf("index: upsert tuning: %v", err)
		}
	}

	ctx, cancel := signalContext()
	defer cancel()

	mp, shutdownMetrics, err := observe.InitProvider(ctx, "plannerd", version)
	if err != nil {
		logger.Fatalf("metrics: %v", err)
	}
	defer func() { _ = shutdownMetrics(context.Background()) }()
	metrics, err := observe.NewMetrics(mp)
	if err != nil {
		logger.Fatalf("metrics: %v", err)
	}

	designationLog := persistlog.NewDesignationLogger(worldDir)
	defer designationLog.Close()
	planLog := persistlog.NewPlanLogger(worldDir)
	defer planLog.Close()

	// Terrain and ledger, fresh or resumed from snapshot.
	entities := newEntityRegistry()
	var (
		terrain *store.ChunkStore
		set     *designation.Set
		tick    atomic.Uint64
	)
	obsSrv := observer.NewServer(nil, tick.Load, time.Duration(tune.Observer.PushIntervalMs)*time.Millisecond, logger)
	snapshotToLoad := strings.TrimSpace(*snapPath)
	if snapshotToLoad == "" && *loadLatest {
		snapshotToLoad = snapshot.Latest(snapDir)
	}
	if snapshotToLoad != "" {
		snap, err := snapshot.ReadSnapshot(snapshotToLoad)
		if err != nil {
			logger.Fatalf("read snapshot: %v", err)
		}
		if snap.Header.WorldID != "" && snap.Header.WorldID != *worldID {
			logger.Fatalf("snapshot world id mismatch: flag=%s snap=%s", *worldID, snap.Header.WorldID)
		}
		terrain, err = store.FromSnapshot(snap)
		if err != nil {
			logger.Fatalf("import terrain: %v", err)
		}
		set = newSet(terrain, obsSrv, designationLog, metrics, logger)
		kept := set.ImportSnapshot(designation.FromV1(snap.VoxelDesignations, snap.EntityDesignations), entities.Resolve)
		tick.Store(snap.Header.Tick)
		logger.Printf("resumed from snapshot=%s tick=%d designations=%d", filepath.Base(snapshotToLoad), snap.Header.Tick, kept)
	} else {
		bounds := voxel.Bounds{Min: voxel.FromArray(tune.World.BoundaryMin), Max: voxel.FromArray(tune.World.BoundaryMax)}
		terrain = store.NewFlat(store.Config{Air: 0, Bounds: bounds, Flying: tune.World.Flying}, bounds, 1)
		n := terrain.Scatter(*seed, bounds, *pillars, 3, 1)
		set = newSet(terrain, obsSrv, designationLog, metrics, logger)
		logger.Printf("fresh world bounds=%v..%v pillars=%d chunks=%d", bounds.Min, bounds.Max, n, len(terrain.LoadedChunkKeys()))
	}
	obsSrv.Attach(set)

	sinks := []service.Sink{planLog}
	if idx != nil {
		sinks = append(sinks, idx)
	}
	planner := astar.New(terrain, astar.CostsFromTuning(tune.Costs))
	plans := service.New(planner, service.Config{
		Workers:        tune.Planner.Workers,
		Defaults:       astar.ParamsFromTuning(tune.Planner),
		QueueWarnDepth: tune.Planner.QueueWarnDepth,
		Logger:         logger,
		Metrics:        metrics,
		Sinks:          sinks,
	})
	go func() {
		if err := plans.Run(ctx); err != nil && err != context.Canceled {
			logger.Printf("plan service stopped: %v", err)
		}
	}()

	var persistMu sync.Mutex
	persist := func(snap snapshot.SnapshotV1) (string, error) {
		persistMu.Lock()
		defer persistMu.Unlock()
		path := snapshot.PathFor(snapDir, snap.Header.Tick)
		if err := snapshot.WriteSnapshot(path, snap); err != nil {
			return "", err
		}
		idx.RecordSnapshot(path, snap)
		return path, nil
	}

	// Snapshot writer.
	snapCh := make(chan snapshot.SnapshotV1, 2)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case snap := <-snapCh:
				if _, err := persist(snap); err != nil {
					logger.Printf("snapshot write: %v", err)
				}
			}
		}
	}()

	sim := &tickLoop{
		worldID:   *worldID,
		tune:      tune.Designations,
		terrain:   terrain,
		set:       set,
		tick:      &tick,
		snapshots: snapCh,
		log:       logger,
	}
	go sim.Run(ctx, tune.World.TickRateHz)

	if addr := strings.TrimSpace(*statsAddr); addr != "" {
		viewer.SetConfiguration(viewer.WithTheme(viewer.ThemeWesteros), viewer.WithAddr(addr))
		mgr := statsview.New()
		go mgr.Start()
		defer mgr.Stop()
	}

	api := &apiServer{
		terrain:  terrain,
		set:      set,
		plans:    plans,
		entities: entities,
		metric:   astar.CostsFromTuning(tune.Costs).Metric(),
		timeout:  10 * time.Second,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.Handle("/metrics", observe.MetricsHandler())
	mux.HandleFunc("/v1/designations", obsSrv.SnapshotHandler())
	mux.HandleFunc("/v1/designations/ws", obsSrv.WSHandler())
	api.register(mux)
	mux.HandleFunc("/admin/v1/stats", func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		writeJSON(rw, http.StatusOK, map[string]any{
			"world_id":               *worldID,
			"tick":                   tick.Load(),
			"planner":                plans.Stats(),
			"index":                  idx.Stats(),
			"designations":           set.Len(),
			"observer_sessions":      obsSrv.Sessions(),
			"observer_invalidations": obsSrv.Invalidations(),
			"journal_errors":         planLog.WriteErrors() + designationLog.WriteErrors(),
		})
	})
	mux.HandleFunc("/admin/v1/snapshot", func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		t := tick.Load()
		path, err := persist(buildSnapshot(*worldID, t, terrain, set))
		if err != nil {
			writeJSON(rw, http.StatusServiceUnavailable, map[string]any{"ok": false, "tick": t, "error": err.Error()})
			return
		}
		writeJSON(rw, http.StatusOK, map[string]any{"ok": true, "tick": t, "path": path})
	})
	if envBool("PLANNERD_ENABLE_PPROF_HTTP", false) {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s", *addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}
}

func newSet(terrain *store.ChunkStore, inv designation.CacheInvalidator, journal designation.Journal, metrics *observe.Metrics, logger *log.Logger) *designation.Set {
	return designation.NewSet(designation.Options{
		Index:       terrain,
		Invalidator: inv,
		Journal:     journal,
		Metrics:     metrics,
		Logger:      logger,
	})
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
