package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"

	persistlog "github.com/Blecki/dwarfcorp-sub032/internal/persistence/log"
	"github.com/Blecki/dwarfcorp-sub032/internal/persistence/snapshot"
	"github.com/Blecki/dwarfcorp-sub032/internal/sim/designation"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "prune":
			pruneCmd(os.Args[2:])
			return
		case "audit":
			auditCmd(os.Args[2:])
			return
		case "db":
			dbCmd(os.Args[2:])
			return
		case "stats":
			statsCmd(os.Args[2:])
			return
		case "snapshot":
			snapshotCmd(os.Args[2:])
			return
		case "setvoxel":
			setVoxelCmd(os.Args[2:])
			return
		case "inspect":
			inspectCmd(os.Args[2:])
			return
		}
	}
	listCmd(os.Args[1:])
}

func listCmd(args []string) {
	fs := flag.NewFlagSet("admin", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	worldID := fs.String("world", "", "world id (optional)")
	_ = fs.Parse(args)

	base := filepath.Join(*dataDir, "worlds")
	if *worldID != "" {
		base = filepath.Join(base, *worldID)
	}

	entries, err := os.ReadDir(base)
	if err != nil {
		fail(1, "read", err)
	}
	for _, e := range entries {
		fmt.Println(e.Name())
	}
}

func inspectCmd(args []string) {
	fs := flag.NewFlagSet("inspect", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	worldID := fs.String("world", "", "world id (used when -snapshot is empty)")
	snapPath := fs.String("snapshot", "", "snapshot path (optional; defaults to latest)")
	_ = fs.Parse(args)

	path := strings.TrimSpace(*snapPath)
	if path == "" {
		path = snapshot.Latest(filepath.Join(*dataDir, "worlds", *worldID, "snapshots"))
	}
	if path == "" {
		fmt.Fprintln(os.Stderr, "no snapshot found; provide -snapshot or -world")
		os.Exit(2)
	}
	snap, err := snapshot.ReadSnapshot(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read snapshot:", err)
		os.Exit(1)
	}
	printJSON(summarize(snap))
}

type snapshotSummary struct {
	Version      int            `json:"version"`
	WorldID      string         `json:"world_id"`
	Tick         uint64         `json:"tick"`
	Digest       string         `json:"digest"`
	BoundaryMin  [3]int         `json:"boundary_min"`
	BoundaryMax  [3]int         `json:"boundary_max"`
	Chunks       int            `json:"chunks"`
	VoxelCount   int            `json:"voxel_designations"`
	EntityCount  int            `json:"entity_designations"`
	CountsByType map[string]int `json:"counts_by_type"`
}

func summarize(snap snapshot.SnapshotV1) snapshotSummary {
	s := snapshotSummary{
		Version:      snap.Header.Version,
		WorldID:      snap.Header.WorldID,
		Tick:         snap.Header.Tick,
		Digest:       strconv.FormatUint(snap.Header.Digest, 16),
		BoundaryMin:  snap.BoundaryMin,
		BoundaryMax:  snap.BoundaryMax,
		Chunks:       len(snap.Chunks),
		VoxelCount:   len(snap.VoxelDesignations),
		EntityCount:  len(snap.EntityDesignations),
		CountsByType: map[string]int{},
	}
	for _, d := range snap.VoxelDesignations {
		s.CountsByType[designation.Type(d.Type).String()]++
	}
	for _, d := range snap.EntityDesignations {
		s.CountsByType[designation.Type(d.Type).String()]++
	}
	return s
}

// pruneCmd writes a copy of a snapshot with the voxel designations inside an
// AABB removed. The running daemon picks it up on the next restart.
func pruneCmd(args []string) {
	fs := flag.NewFlagSet("prune", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	worldID := fs.String("world", "", "world id")
	snapPath := fs.String("snapshot", "", "snapshot path to prune (optional; defaults to latest)")
	aabb := fs.String("aabb", "", "AABB filter: x1,y1,z1:x2,y2,z2 (required)")
	typeMask := fs.String("type", "all", "designation types to remove, e.g. dig|chop")
	outPath := fs.String("out", "", "output snapshot path (optional)")
	_ = fs.Parse(args)

	if strings.TrimSpace(*worldID) == "" {
		fmt.Fprintln(os.Stderr, "missing -world")
		os.Exit(2)
	}
	if strings.TrimSpace(*aabb) == "" {
		fmt.Fprintln(os.Stderr, "missing -aabb")
		os.Exit(2)
	}
	mask, err := designation.ParseType(*typeMask)
	if err != nil {
		fmt.Fprintln(os.Stderr, "bad -type:", err)
		os.Exit(2)
	}

	worldDir := filepath.Join(*dataDir, "worlds", *worldID)
	snapshotToLoad := strings.TrimSpace(*snapPath)
	if snapshotToLoad == "" {
		snapshotToLoad = snapshot.Latest(filepath.Join(worldDir, "snapshots"))
	}
	if snapshotToLoad == "" {
		fmt.Fprintln(os.Stderr, "no snapshot found; provide -snapshot or run plannerd until it writes one")
		os.Exit(2)
	}

	snap, err := snapshot.ReadSnapshot(snapshotToLoad)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read snapshot:", err)
		os.Exit(1)
	}

	min, max, err := parseAABB(*aabb)
	if err != nil {
		fmt.Fprintln(os.Stderr, "bad -aabb:", err)
		os.Exit(2)
	}

	removed := applyPrune(&snap, min, max, mask)
	if removed == 0 {
		fmt.Println("no matching designations; nothing to prune")
		return
	}

	out := strings.TrimSpace(*outPath)
	if out == "" {
		out = snapshot.PathFor(filepath.Join(worldDir, "snapshots"), snap.Header.Tick+1)
		snap.Header.Tick++
	}
	if err := snapshot.WriteSnapshot(out, snap); err != nil {
		fmt.Fprintln(os.Stderr, "write snapshot:", err)
		os.Exit(1)
	}
	fmt.Printf("pruned=%d out=%s\n", removed, out)
}

// applyPrune drops the mask bits from voxel designations inside the box and
// refreshes the header digest. It returns the number of single designations
// removed.
func applyPrune(snap *snapshot.SnapshotV1, min, max [3]int, mask designation.Type) int {
	if snap == nil {
		return 0
	}
	removed := 0
	kept := snap.VoxelDesignations[:0]
	for _, d := range snap.VoxelDesignations {
		t := designation.Type(d.Type)
		if withinAABB(d.Pos, min, max) && t.Intersects(mask) {
			removed += len((t & mask).Singles())
			t &^= mask
			if t == designation.None {
				continue
			}
			d.Type = uint32(t)
		}
		kept = append(kept, d)
	}
	snap.VoxelDesignations = kept
	if removed > 0 {
		set := designation.NewSet(designation.Options{})
		set.ImportSnapshot(designation.FromV1(snap.VoxelDesignations, snap.EntityDesignations), func(id uint64) designation.Entity {
			return idOnly(id)
		})
		snap.Header.Digest = set.Digest()
	}
	return removed
}

type idOnly uint64

func (e idOnly) ID() uint64   { return uint64(e) }
func (e idOnly) IsDead() bool { return false }

type auditRec struct {
	Seq   uint64
	Entry persistlog.DesignationEntry
}

func auditCmd(args []string) {
	fs := flag.NewFlagSet("audit", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	worldID := fs.String("world", "", "world id")
	aabb := fs.String("aabb", "", "AABB filter: x1,y1,z1:x2,y2,z2 (optional; entity events are skipped when set)")
	since := fs.Duration("since", 0, "only entries newer than this (e.g. 2h; 0 for all)")
	limit := fs.Int("limit", 100, "result limit")
	_ = fs.Parse(args)

	if strings.TrimSpace(*worldID) == "" {
		fmt.Fprintln(os.Stderr, "missing -world")
		os.Exit(2)
	}
	var min, max [3]int
	filter := strings.TrimSpace(*aabb) != ""
	if filter {
		var err error
		min, max, err = parseAABB(*aabb)
		if err != nil {
			fmt.Fprintln(os.Stderr, "bad -aabb:", err)
			os.Exit(2)
		}
	}
	var from time.Time
	if *since > 0 {
		from = time.Now().Add(-*since)
	}

	recs, err := readAudit(filepath.Join(*dataDir, "worlds", *worldID), from, func(e persistlog.DesignationEntry) bool {
		if !filter {
			return true
		}
		return e.Voxel != nil && withinAABB(e.Voxel.ToArray(), min, max)
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "read audit:", err)
		os.Exit(1)
	}
	if *limit > 0 && len(recs) > *limit {
		recs = recs[:*limit]
	}
	for _, r := range recs {
		printJSON(r.Entry)
	}
}

// readAudit returns matching designation journal entries, newest first.
func readAudit(worldDir string, from time.Time, keep func(persistlog.DesignationEntry) bool) ([]auditRec, error) {
	dir := filepath.Join(worldDir, "designations")
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(ents))
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, "designations-") && strings.HasSuffix(name, ".jsonl.zst") {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	out := make([]auditRec, 0, 1024)
	var seq uint64

	for _, name := range names {
		path := filepath.Join(dir, name)
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		dec, err := zstd.NewReader(f)
		if err != nil {
			_ = f.Close()
			return nil, err
		}
		sc := bufio.NewScanner(dec)
		sc.Buffer(make([]byte, 64*1024), 8*1024*1024)
		for sc.Scan() {
			var e persistlog.DesignationEntry
			if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
				dec.Close()
				_ = f.Close()
				return nil, fmt.Errorf("%s: unmarshal: %w", filepath.Base(path), err)
			}
			seq++
			if !from.IsZero() && e.Time.Before(from) {
				continue
			}
			if keep != nil && !keep(e) {
				continue
			}
			out = append(out, auditRec{Seq: seq, Entry: e})
		}
		if err := sc.Err(); err != nil {
			dec.Close()
			_ = f.Close()
			return nil, err
		}
		dec.Close()
		_ = f.Close()
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Seq > out[j].Seq })
	return out, nil
}

func withinAABB(pos [3]int, min, max [3]int) bool {
	return pos[0] >= min[0] && pos[0] <= max[0] &&
		pos[1] >= min[1] && pos[1] <= max[1] &&
		pos[2] >= min[2] && pos[2] <= max[2]
}

func parseAABB(s string) (min, max [3]int, err error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return min, max, fmt.Errorf("expected x1,y1,z1:x2,y2,z2")
	}
	a, err := parseVec3(parts[0])
	if err != nil {
		return min, max, err
	}
	b, err := parseVec3(parts[1])
	if err != nil {
		return min, max, err
	}
	for i := 0; i < 3; i++ {
		if a[i] <= b[i] {
			min[i], max[i] = a[i], b[i]
		} else {
			min[i], max[i] = b[i], a[i]
		}
	}
	return min, max, nil
}

func parseVec3(s string) ([3]int, error) {
	var v [3]int
	parts := strings.Split(strings.TrimSpace(s), ",")
	if len(parts) != 3 {
		return v, fmt.Errorf("expected x,y,z")
	}
	for i := 0; i < 3; i++ {
		n, err := strconv.Atoi(strings.TrimSpace(parts[i]))
		if err != nil {
			return v, err
		}
		v[i] = n
	}
	return v, nil
}

func fail(code int, stage string, err error) {
	fmt.Fprintln(os.Stderr, stage+":", err)
	os.Exit(code)
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}
