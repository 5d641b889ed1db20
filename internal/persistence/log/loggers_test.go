package log

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/Blecki/dwarfcorp-sub032/internal/sim/designation"
	"github.com/Blecki/dwarfcorp-sub032/internal/sim/planner/astar"
	"github.com/Blecki/dwarfcorp-sub032/internal/sim/planner/service"
	"github.com/Blecki/dwarfcorp-sub032/internal/sim/voxel"
)

func readLines(t *testing.T, path string) []map[string]any {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		t.Fatalf("zstd: %v", err)
	}
	defer dec.Close()
	var out []map[string]any
	sc := bufio.NewScanner(dec)
	for sc.Scan() {
		var m map[string]any
		if err := json.Unmarshal(sc.Bytes(), &m); err != nil {
			t.Fatalf("line %q: %v", sc.Text(), err)
		}
		out = append(out, m)
	}
	return out
}

func TestWriterRotatesHourly(t *testing.T) {
	dir := t.TempDir()
	w := NewJSONLZstdWriter(dir, "x")
	clock := time.Date(2026, 3, 1, 10, 59, 0, 0, time.UTC)
	w.now = func() time.Time { return clock }

	if err := w.Write(map[string]int{"n": 1}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	clock = clock.Add(2 * time.Minute)
	if err := w.Write(map[string]int{"n": 2}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	first := readLines(t, filepath.Join(dir, "x-2026-03-01-10.jsonl.zst"))
	second := readLines(t, filepath.Join(dir, "x-2026-03-01-11.jsonl.zst"))
	if len(first) != 1 || len(second) != 1 || second[0]["n"].(float64) != 2 {
		t.Fatalf("first=%v second=%v", first, second)
	}
}

func TestPlanLogger(t *testing.T) {
	dir := t.TempDir()
	l := NewPlanLogger(dir)
	l.w.now = func() time.Time { return time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC) }
	l.RecordPlan(service.Request{Start: voxel.Coord{X: 1, Y: 2, Z: 3}}, service.Response{
		RequestID: "r1",
		Sender:    "dwarf",
		Status:    astar.StatusFound,
		Success:   true,
		Path:      make([]astar.MoveAction, 4),
		Cost:      3,
		Duration:  1500 * time.Microsecond,
	})
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	lines := readLines(t, filepath.Join(dir, "plans", "plans-2026-03-01-00.jsonl.zst"))
	if len(lines) != 1 {
		t.Fatalf("lines=%d", len(lines))
	}
	e := lines[0]
	if e["status"] != "FOUND" || e["path_len"].(float64) != 4 || e["duration_us"].(float64) != 1500 {
		t.Fatalf("entry=%v", e)
	}
	if l.WriteErrors() != 0 {
		t.Fatalf("write errors=%d", l.WriteErrors())
	}
}

func TestDesignationLogger(t *testing.T) {
	dir := t.TempDir()
	l := NewDesignationLogger(dir)
	l.w.now = func() time.Time { return time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC) }

	set := designation.NewSet(designation.Options{Journal: l})
	set.AddVoxelDesignation(voxel.Coord{X: 4}, designation.Dig, "", "t")
	set.RemoveVoxelDesignation(voxel.Coord{X: 4}, designation.All)
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	lines := readLines(t, filepath.Join(dir, "designations", "designations-2026-03-01-00.jsonl.zst"))
	if len(lines) != 2 || lines[0]["op"] != "add" || lines[1]["op"] != "remove" || lines[0]["kind"] != "dig" {
		t.Fatalf("lines=%v", lines)
	}
}
