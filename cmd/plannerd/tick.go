package main

import (
	"context"
	"log"
	"sync/atomic"
	"time"

	"github.com/Blecki/dwarfcorp-sub032/internal/persistence/snapshot"
	"github.com/Blecki/dwarfcorp-sub032/internal/sim/designation"
	"github.com/Blecki/dwarfcorp-sub032/internal/sim/terrain/store"
	"github.com/Blecki/dwarfcorp-sub032/internal/sim/tuning"
)

// tickLoop drives periodic ledger maintenance: sweeping designations of dead
// entities and handing snapshots to the writer.
type tickLoop struct {
	worldID   string
	tune      tuning.Designations
	terrain   *store.ChunkStore
	set       *designation.Set
	tick      *atomic.Uint64
	snapshots chan<- snapshot.SnapshotV1
	log       *log.Logger
}

func (l *tickLoop) Run(ctx context.Context, hz int) {
	if hz <= 0 {
		hz = 5
	}
	t := time.NewTicker(time.Second / time.Duration(hz))
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			l.step()
		}
	}
}

func (l *tickLoop) step() uint64 {
	n := l.tick.Add(1)
	if every := uint64(l.tune.CleanupEveryTicks); every > 0 && n%every == 0 {
		if swept := l.set.CleanupDesignations(); swept > 0 {
			l.log.Printf("tick=%d swept=%d", n, swept)
		}
	}
	if every := uint64(l.tune.SnapshotEveryTicks); every > 0 && n%every == 0 {
		select {
		case l.snapshots <- buildSnapshot(l.worldID, n, l.terrain, l.set):
		default:
			l.log.Printf("tick=%d snapshot dropped: writer busy", n)
		}
	}
	return n
}

func buildSnapshot(worldID string, tick uint64, terrain *store.ChunkStore, set *designation.Set) snapshot.SnapshotV1 {
	cfg := terrain.Config()
	ledger := set.ExportSnapshot()
	vs, es := ledger.V1()
	return snapshot.SnapshotV1{
		Header: snapshot.Header{
			Version: snapshot.Version,
			WorldID: worldID,
			Tick:    tick,
			Digest:  ledger.Digest(),
		},
		BoundaryMin:        cfg.Bounds.Min.ToArray(),
		BoundaryMax:        cfg.Bounds.Max.ToArray(),
		Air:                cfg.Air,
		Flying:             cfg.Flying,
		Chunks:             terrain.ExportChunks(),
		VoxelDesignations:  vs,
		EntityDesignations: es,
	}
}
