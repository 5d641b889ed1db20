package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Blecki/dwarfcorp-sub032/internal/sim/designation"
	"github.com/Blecki/dwarfcorp-sub032/internal/sim/planner/astar"
	"github.com/Blecki/dwarfcorp-sub032/internal/sim/planner/service"
	"github.com/Blecki/dwarfcorp-sub032/internal/sim/terrain/store"
	"github.com/Blecki/dwarfcorp-sub032/internal/sim/voxel"
	"github.com/Blecki/dwarfcorp-sub032/internal/transport/observer"
)

func newTestAPI(t *testing.T) (*apiServer, *httptest.Server) {
	t.Helper()
	api, _, srv := newTestAPIWithFeed(t)
	return api, srv
}

func newTestAPIWithFeed(t *testing.T) (*apiServer, *observer.Server, *httptest.Server) {
	t.Helper()
	bounds := voxel.Bounds{Max: voxel.Coord{X: 7, Y: 3, Z: 7}}
	terrain := store.NewFlat(store.Config{}, bounds, 1)
	costs := astar.DefaultCosts()
	plans := service.New(astar.New(terrain, costs), service.Config{Workers: 2})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = plans.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	feed := observer.NewServer(nil, nil, time.Hour, nil)
	set := designation.NewSet(designation.Options{Index: terrain, Invalidator: feed})
	feed.Attach(set)
	api := &apiServer{
		terrain:  terrain,
		set:      set,
		plans:    plans,
		entities: newEntityRegistry(),
		metric:   costs.Metric(),
		timeout:  5 * time.Second,
	}
	mux := http.NewServeMux()
	api.register(mux)
	mux.HandleFunc("/v1/designations/ws", feed.WSHandler())
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return api, feed, srv
}

func postJSON(t *testing.T, url string, body any, out any) int {
	t.Helper()
	b, _ := json.Marshal(body)
	resp, err := http.Post(url, "application/json", bytes.NewReader(b))
	if err != nil {
		t.Fatalf("post %s: %v", url, err)
	}
	defer resp.Body.Close()
	if out != nil && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode: %v", err)
		}
	}
	return resp.StatusCode
}

func TestPlanEndpoint(t *testing.T) {
	_, srv := newTestAPI(t)

	var got planReply
	code := postJSON(t, srv.URL+"/v1/plan", planRequest{
		Sender: "dwarf-1",
		Start:  [3]int{1, 1, 1},
		Goal:   goalSpec{Kind: "voxel", Target: [3]int{5, 1, 1}},
	}, &got)
	if code != http.StatusOK {
		t.Fatalf("status=%d", code)
	}
	if !got.Success || got.Status != astar.StatusFound.String() {
		t.Fatalf("reply=%+v", got)
	}
	if got.RequestID == "" || got.Sender != "dwarf-1" {
		t.Fatalf("request_id=%q sender=%q", got.RequestID, got.Sender)
	}
	if len(got.Path) == 0 || got.Path[0].Voxel != [3]int{1, 1, 1} || got.Path[len(got.Path)-1].Voxel != [3]int{5, 1, 1} {
		t.Fatalf("path=%+v", got.Path)
	}
}

func TestPlanEndpointRejectsUnknownGoal(t *testing.T) {
	_, srv := newTestAPI(t)
	code := postJSON(t, srv.URL+"/v1/plan", planRequest{Goal: goalSpec{Kind: "portal"}}, nil)
	if code != http.StatusBadRequest {
		t.Fatalf("status=%d want 400", code)
	}
}

func TestPlanEndpointMethod(t *testing.T) {
	_, srv := newTestAPI(t)
	resp, err := http.Get(srv.URL + "/v1/plan")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("status=%d want 405", resp.StatusCode)
	}
}

func TestDesignationEndpoints(t *testing.T) {
	api, srv := newTestAPI(t)

	var res map[string]any
	v := [3]int{2, 1, 2}
	if code := postJSON(t, srv.URL+"/v1/designations/add", designationEdit{Voxel: &v, Type: "dig|chop", TaskID: "t1"}, &res); code != http.StatusOK {
		t.Fatalf("add status=%d", code)
	}
	if res["result"] != designation.Added.String() {
		t.Fatalf("add result=%v", res["result"])
	}
	if !api.set.IsVoxelDesignation(voxel.FromArray(v), designation.Chop) {
		t.Fatalf("chop designation missing")
	}

	outside := [3]int{100, 1, 100}
	if code := postJSON(t, srv.URL+"/v1/designations/add", designationEdit{Voxel: &outside, Type: "dig"}, nil); code != http.StatusUnprocessableEntity {
		t.Fatalf("invalid voxel status=%d want 422", code)
	}

	if code := postJSON(t, srv.URL+"/v1/designations/add", designationEdit{Type: "dig"}, nil); code != http.StatusBadRequest {
		t.Fatalf("missing target status=%d want 400", code)
	}

	res = nil
	postJSON(t, srv.URL+"/v1/designations/remove", designationEdit{Voxel: &v, Type: "all"}, &res)
	if res["result"] != designation.Removed.String() {
		t.Fatalf("remove result=%v", res["result"])
	}
	if api.set.Len() != 0 {
		t.Fatalf("len=%d want 0", api.set.Len())
	}
}

func TestKilledEntityIsSwept(t *testing.T) {
	api, srv := newTestAPI(t)

	if code := postJSON(t, srv.URL+"/v1/designations/add", designationEdit{EntityID: 9, Type: "attack"}, nil); code != http.StatusOK {
		t.Fatalf("add status=%d", code)
	}
	var res map[string]any
	postJSON(t, srv.URL+"/v1/entities/kill", map[string]any{"entity_id": 9}, &res)
	if res["known"] != true {
		t.Fatalf("kill known=%v", res["known"])
	}
	if n := api.set.CleanupDesignations(); n != 1 {
		t.Fatalf("swept=%d want 1", n)
	}
	if api.set.IsDesignation(9, designation.All) {
		t.Fatalf("entity designation survived sweep")
	}
}

func TestSetVoxelInvalidatesDesignations(t *testing.T) {
	api, feed, srv := newTestAPIWithFeed(t)
	c := voxel.Coord{X: 2, Y: 1, Z: 2}
	api.set.AddVoxelDesignation(c, designation.Dig|designation.Guard, "", "t1")
	before := feed.Invalidations()

	var res map[string]any
	if code := postJSON(t, srv.URL+"/v1/voxels/set", map[string]any{"voxel": c.ToArray(), "block": 1}, &res); code != http.StatusOK {
		t.Fatalf("set status=%d", code)
	}
	if res["changed"] != true || res["invalidated"] != float64(2) {
		t.Fatalf("res=%v", res)
	}
	if api.set.IsVoxelDesignation(c, designation.All) {
		t.Fatalf("designations survived a block change")
	}
	if b, _ := api.terrain.GetBlock(c); b != 1 {
		t.Fatalf("block=%d want 1", b)
	}
	if got := feed.Invalidations(); got <= before {
		t.Fatalf("invalidations=%d want > %d", got, before)
	}

	// Same block again is not a type change.
	api.set.AddVoxelDesignation(c, designation.Dig, "", "t2")
	res = nil
	postJSON(t, srv.URL+"/v1/voxels/set", map[string]any{"voxel": c.ToArray(), "block": 1}, &res)
	if res["changed"] != false || res["invalidated"] != float64(0) {
		t.Fatalf("res=%v", res)
	}
	if !api.set.IsVoxelDesignation(c, designation.Dig) {
		t.Fatalf("designation dropped without a type change")
	}

	if code := postJSON(t, srv.URL+"/v1/voxels/set", map[string]any{"voxel": [3]int{100, 1, 100}, "block": 1}, nil); code != http.StatusUnprocessableEntity {
		t.Fatalf("invalid voxel status=%d want 422", code)
	}
}

func TestFeedPushesOnInvalidation(t *testing.T) {
	api, _, srv := newTestAPIWithFeed(t)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/designations/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	read := func() observer.DesignationFrame {
		t.Helper()
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, b, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		var f observer.DesignationFrame
		if err := json.Unmarshal(b, &f); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		return f
	}

	c := voxel.Coord{X: 3, Y: 1, Z: 3}
	if first := read(); len(first.Voxels) != 0 {
		t.Fatalf("initial voxels=%d", len(first.Voxels))
	}
	api.set.AddVoxelDesignation(c, designation.Dig, "", "")
	if f := read(); len(f.Voxels) != 1 {
		t.Fatalf("after add voxels=%d want 1", len(f.Voxels))
	}
	postJSON(t, srv.URL+"/v1/voxels/set", map[string]any{"voxel": c.ToArray(), "block": 1}, nil)
	if f := read(); len(f.Voxels) != 0 {
		t.Fatalf("after block change voxels=%d want 0", len(f.Voxels))
	}
}
