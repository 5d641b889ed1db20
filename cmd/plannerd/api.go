package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/Blecki/dwarfcorp-sub032/internal/sim/designation"
	"github.com/Blecki/dwarfcorp-sub032/internal/sim/planner/goal"
	"github.com/Blecki/dwarfcorp-sub032/internal/sim/planner/service"
	"github.com/Blecki/dwarfcorp-sub032/internal/sim/terrain/store"
	"github.com/Blecki/dwarfcorp-sub032/internal/sim/voxel"
)

// apiServer exposes planning and ledger edits to loopback callers.
type apiServer struct {
	terrain  *store.ChunkStore
	set      *designation.Set
	plans    *service.Service
	entities *entityRegistry
	metric   goal.Metric
	timeout  time.Duration

	nextID atomic.Uint64
}

func (a *apiServer) register(mux *http.ServeMux) {
	mux.HandleFunc("/v1/plan", a.loopbackPOST(a.handlePlan))
	mux.HandleFunc("/v1/designations/add", a.loopbackPOST(a.handleAddDesignation))
	mux.HandleFunc("/v1/designations/remove", a.loopbackPOST(a.handleRemoveDesignation))
	mux.HandleFunc("/v1/entities/kill", a.loopbackPOST(a.handleKillEntity))
	mux.HandleFunc("/v1/voxels/set", a.loopbackPOST(a.handleSetVoxel))
}

func (a *apiServer) loopbackPOST(h http.HandlerFunc) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		h(rw, r)
	}
}

type goalSpec struct {
	Kind   string     `json:"kind"`
	Target [3]int     `json:"target"`
	Center [3]float64 `json:"center"`
	Radius float64    `json:"radius"`
	Min    [3]int     `json:"min"`
	Max    [3]int     `json:"max"`
}

type planRequest struct {
	ID              string   `json:"id"`
	Sender          string   `json:"sender"`
	Start           [3]int   `json:"start"`
	Goal            goalSpec `json:"goal"`
	MaxExpansions   int      `json:"max_expansions"`
	HeuristicWeight *float64 `json:"heuristic_weight,omitempty"`
}

type planStep struct {
	Voxel [3]int  `json:"voxel"`
	Move  string  `json:"move"`
	Cost  float64 `json:"cost"`
}

type planReply struct {
	RequestID  string     `json:"request_id"`
	Sender     string     `json:"sender"`
	Status     string     `json:"status"`
	Success    bool       `json:"success"`
	Retryable  bool       `json:"retryable"`
	Path       []planStep `json:"path"`
	Expansions int        `json:"expansions"`
	Cost       float64    `json:"cost"`
	DurationUS int64      `json:"duration_us"`
}

func (a *apiServer) buildGoal(g goalSpec) (goal.Region, error) {
	switch strings.ToLower(strings.TrimSpace(g.Kind)) {
	case "voxel", "":
		return goal.NewVoxelGoal(a.terrain, voxel.FromArray(g.Target), a.metric), nil
	case "adjacent2d", "adjacent":
		return goal.NewAdjacentGoal2D(a.terrain, voxel.FromArray(g.Target), a.metric), nil
	case "sphere":
		return goal.NewSphereGoal(a.terrain, mgl64.Vec3{g.Center[0], g.Center[1], g.Center[2]}, g.Radius, a.metric), nil
	case "edge":
		return goal.NewEdgeGoal(voxel.Bounds{Min: voxel.FromArray(g.Min), Max: voxel.FromArray(g.Max)}), nil
	default:
		return nil, fmt.Errorf("unknown goal kind %q", g.Kind)
	}
}

func (a *apiServer) handlePlan(rw http.ResponseWriter, r *http.Request) {
	var in planRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(rw, "bad json", http.StatusBadRequest)
		return
	}
	g, err := a.buildGoal(in.Goal)
	if err != nil {
		http.Error(rw, err.Error(), http.StatusBadRequest)
		return
	}
	if in.ID == "" {
		in.ID = fmt.Sprintf("P%d", a.nextID.Add(1))
	}

	reply := a.plans.Submit(service.Request{
		ID:              in.ID,
		Sender:          in.Sender,
		Start:           voxel.FromArray(in.Start),
		Goal:            g,
		MaxExpansions:   in.MaxExpansions,
		HeuristicWeight: in.HeuristicWeight,
	})

	timer := time.NewTimer(a.timeout)
	defer timer.Stop()
	select {
	case resp := <-reply:
		writeJSON(rw, http.StatusOK, toPlanReply(resp))
	case <-timer.C:
		http.Error(rw, "plan timeout", http.StatusGatewayTimeout)
	case <-r.Context().Done():
	}
}

func toPlanReply(resp service.Response) planReply {
	out := planReply{
		RequestID:  resp.RequestID,
		Sender:     resp.Sender,
		Status:     resp.Status.String(),
		Success:    resp.Success,
		Retryable:  resp.Status.Retryable(),
		Path:       make([]planStep, 0, len(resp.Path)),
		Expansions: resp.Expansions,
		Cost:       resp.Cost,
		DurationUS: resp.Duration.Microseconds(),
	}
	for _, m := range resp.Path {
		out.Path = append(out.Path, planStep{Voxel: m.Voxel.ToArray(), Move: m.Move.String(), Cost: m.Cost})
	}
	return out
}

// designationEdit targets a voxel, or an entity when EntityID is set.
type designationEdit struct {
	Voxel    *[3]int `json:"voxel,omitempty"`
	EntityID uint64  `json:"entity_id,omitempty"`
	Type     string  `json:"type"`
	Tag      string  `json:"tag,omitempty"`
	TaskID   string  `json:"task_id,omitempty"`
}

func decodeEdit(r *http.Request) (designationEdit, designation.Type, error) {
	var in designationEdit
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		return in, designation.None, fmt.Errorf("bad json")
	}
	if (in.Voxel == nil) == (in.EntityID == 0) {
		return in, designation.None, fmt.Errorf("exactly one of voxel, entity_id is required")
	}
	t, err := designation.ParseType(in.Type)
	if err != nil {
		return in, designation.None, err
	}
	return in, t, nil
}

func (a *apiServer) handleAddDesignation(rw http.ResponseWriter, r *http.Request) {
	in, t, err := decodeEdit(r)
	if err != nil {
		http.Error(rw, err.Error(), http.StatusBadRequest)
		return
	}
	var res designation.AddResult
	if in.Voxel != nil {
		res = a.set.AddVoxelDesignation(voxel.FromArray(*in.Voxel), t, in.Tag, in.TaskID)
	} else {
		res = a.set.AddEntityDesignation(a.entities.Get(in.EntityID), t, in.Tag, in.TaskID)
	}
	status := http.StatusOK
	if res == designation.Rejected {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(rw, status, map[string]any{"result": res.String()})
}

func (a *apiServer) handleRemoveDesignation(rw http.ResponseWriter, r *http.Request) {
	in, t, err := decodeEdit(r)
	if err != nil {
		http.Error(rw, err.Error(), http.StatusBadRequest)
		return
	}
	var res designation.RemoveResult
	if in.Voxel != nil {
		res = a.set.RemoveVoxelDesignation(voxel.FromArray(*in.Voxel), t)
	} else {
		res = a.set.RemoveEntityDesignation(in.EntityID, t)
	}
	writeJSON(rw, http.StatusOK, map[string]any{"result": res.String()})
}

func (a *apiServer) handleKillEntity(rw http.ResponseWriter, r *http.Request) {
	var in struct {
		EntityID uint64 `json:"entity_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.EntityID == 0 {
		http.Error(rw, "bad json", http.StatusBadRequest)
		return
	}
	writeJSON(rw, http.StatusOK, map[string]any{"known": a.entities.Kill(in.EntityID)})
}

// handleSetVoxel changes a voxel's block. A changed block type drops every
// designation on that voxel.
func (a *apiServer) handleSetVoxel(rw http.ResponseWriter, r *http.Request) {
	var in struct {
		Voxel [3]int `json:"voxel"`
		Block uint16 `json:"block"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(rw, "bad json", http.StatusBadRequest)
		return
	}
	c := voxel.FromArray(in.Voxel)
	prev, ok := a.terrain.GetBlock(c)
	if !ok || !a.terrain.SetBlock(c, in.Block) {
		http.Error(rw, "invalid voxel", http.StatusUnprocessableEntity)
		return
	}
	invalidated := 0
	if prev != in.Block {
		invalidated = a.set.InvalidateVoxel(c)
	}
	writeJSON(rw, http.StatusOK, map[string]any{"changed": prev != in.Block, "invalidated": invalidated})
}

func writeJSON(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(v)
}
