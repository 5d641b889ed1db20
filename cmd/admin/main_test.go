package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Blecki/dwarfcorp-sub032/internal/persistence/snapshot"
	"github.com/Blecki/dwarfcorp-sub032/internal/sim/designation"
)

func TestParseAABBOrdersCorners(t *testing.T) {
	min, max, err := parseAABB("5,0,-2:1,3,4")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if min != [3]int{1, 0, -2} || max != [3]int{5, 3, 4} {
		t.Fatalf("min=%v max=%v", min, max)
	}
	if _, _, err := parseAABB("1,2:3,4"); err == nil {
		t.Fatalf("expected error for 2d corner")
	}
}

func TestApplyPrune(t *testing.T) {
	snap := snapshot.SnapshotV1{
		VoxelDesignations: []snapshot.VoxelDesignationV1{
			{Pos: [3]int{1, 1, 1}, Type: uint32(designation.Dig)},
			{Pos: [3]int{2, 1, 1}, Type: uint32(designation.Dig | designation.Chop)},
			{Pos: [3]int{9, 1, 9}, Type: uint32(designation.Dig)},
		},
		EntityDesignations: []snapshot.EntityDesignationV1{{EntityID: 3, Type: uint32(designation.Attack)}},
	}

	removed := applyPrune(&snap, [3]int{0, 0, 0}, [3]int{4, 4, 4}, designation.Dig)
	if removed != 2 {
		t.Fatalf("removed=%d want 2", removed)
	}
	if len(snap.VoxelDesignations) != 2 {
		t.Fatalf("voxels=%+v", snap.VoxelDesignations)
	}
	if designation.Type(snap.VoxelDesignations[0].Type) != designation.Chop {
		t.Fatalf("kept type=%v want chop", designation.Type(snap.VoxelDesignations[0].Type))
	}
	if len(snap.EntityDesignations) != 1 {
		t.Fatalf("entity designations touched: %+v", snap.EntityDesignations)
	}
	if snap.Header.Digest == 0 {
		t.Fatalf("digest not refreshed")
	}
}

func TestSummarize(t *testing.T) {
	snap := snapshot.SnapshotV1{
		Header: snapshot.Header{Version: 1, Tick: 9, Digest: 255},
		VoxelDesignations: []snapshot.VoxelDesignationV1{
			{Pos: [3]int{1, 1, 1}, Type: uint32(designation.Dig)},
			{Pos: [3]int{1, 1, 1}, Type: uint32(designation.Guard)},
		},
	}
	s := summarize(snap)
	if s.Digest != "ff" || s.VoxelCount != 2 || s.CountsByType[designation.Dig.String()] != 1 {
		t.Fatalf("summary=%+v", s)
	}
}

func TestCallDaemon(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/admin/v1/stats":
			_, _ = rw.Write([]byte(`{"tick":7}`))
		case "/v1/voxels/set":
			var in map[string]any
			if r.Method != http.MethodPost || json.NewDecoder(r.Body).Decode(&in) != nil {
				rw.WriteHeader(http.StatusBadRequest)
				return
			}
			_ = json.NewEncoder(rw).Encode(map[string]any{"block": in["block"]})
		default:
			http.Error(rw, "nope", http.StatusForbidden)
		}
	}))
	defer srv.Close()

	out, err := callDaemon(http.MethodGet, srv.URL+"/", "/admin/v1/stats", nil, time.Second)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if m, _ := out.(map[string]any); m["tick"] != float64(7) {
		t.Fatalf("stats=%v", out)
	}

	out, err = callDaemon(http.MethodPost, srv.URL, "/v1/voxels/set", map[string]any{"voxel": [3]int{1, 2, 3}, "block": 4}, time.Second)
	if err != nil {
		t.Fatalf("setvoxel: %v", err)
	}
	if m, _ := out.(map[string]any); m["block"] != float64(4) {
		t.Fatalf("setvoxel=%v", out)
	}

	if _, err := callDaemon(http.MethodPost, srv.URL, "/admin/v1/other", nil, time.Second); err == nil || !strings.Contains(err.Error(), "403") {
		t.Fatalf("err=%v want 403", err)
	}
}
