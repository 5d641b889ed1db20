package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Blecki/dwarfcorp-sub032/internal/sim/designation"
	"github.com/Blecki/dwarfcorp-sub032/internal/sim/voxel"
	"github.com/Blecki/dwarfcorp-sub032/internal/transport/observer"
)

// bot watches the designation feed and asks plannerd for a path to every new
// voxel designation, the way a worker would before taking the job.
func main() {
	var (
		baseURL = flag.String("url", "http://127.0.0.1:8080", "plannerd base url")
		name    = flag.String("name", "bot", "sender name")
		start   = flag.String("start", "0,1,0", "voxel the bot plans from")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[bot] ", log.LstdFlags|log.Lmicroseconds)

	from, err := parseVec3(*start)
	if err != nil {
		logger.Fatalf("bad -start: %v", err)
	}
	base := strings.TrimRight(strings.TrimSpace(*baseURL), "/")
	wsURL := "ws" + strings.TrimPrefix(base, "http") + "/v1/designations/ws"

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	go func() {
		<-stop
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))
		_ = conn.Close()
	}()

	cl := &http.Client{Timeout: 15 * time.Second}
	seen := map[jobKey]bool{}
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var frame observer.DesignationFrame
		if err := json.Unmarshal(msg, &frame); err != nil || frame.Type != observer.FrameType {
			continue
		}
		logger.Printf("frame tick=%d digest=%s voxels=%d entities=%d", frame.Tick, frame.Digest, len(frame.Voxels), len(frame.Entities))
		for _, job := range newJobs(frame.Voxels, seen) {
			reply, err := requestPlan(cl, base, *name, from, job, rng)
			if err != nil {
				logger.Printf("plan %s at %v: %v", job.Type, job.Voxel, err)
				continue
			}
			logger.Printf("plan %s at %v status=%s steps=%d cost=%.1f expansions=%d", job.Type, job.Voxel, reply.Status, len(reply.Path), reply.Cost, reply.Expansions)
		}
	}
}

type jobKey struct {
	voxel uint64
	kind  designation.Type
}

// newJobs returns designations not seen before and marks them seen.
func newJobs(ds []designation.VoxelDesignation, seen map[jobKey]bool) []designation.VoxelDesignation {
	var out []designation.VoxelDesignation
	for _, d := range ds {
		k := jobKey{voxel: d.Voxel.Key(), kind: d.Type}
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, d)
	}
	return out
}

type goalSpec struct {
	Kind   string `json:"kind"`
	Target [3]int `json:"target"`
}

type planRequest struct {
	ID     string   `json:"id"`
	Sender string   `json:"sender"`
	Start  [3]int   `json:"start"`
	Goal   goalSpec `json:"goal"`
}

type planReply struct {
	Status     string            `json:"status"`
	Path       []json.RawMessage `json:"path"`
	Cost       float64           `json:"cost"`
	Expansions int               `json:"expansions"`
}

func requestPlan(cl *http.Client, base, sender string, from voxel.Coord, job designation.VoxelDesignation, rng *rand.Rand) (planReply, error) {
	var out planReply
	// Dig and chop happen from a neighbouring voxel.
	kind := "voxel"
	if job.Type&(designation.Dig|designation.Chop) != 0 {
		kind = "adjacent2d"
	}
	body, _ := json.Marshal(planRequest{
		ID:     fmt.Sprintf("%s_%d", sender, rng.Int63()),
		Sender: sender,
		Start:  from.ToArray(),
		Goal:   goalSpec{Kind: kind, Target: job.Voxel.ToArray()},
	})
	resp, err := cl.Post(base+"/v1/plan", "application/json", bytes.NewReader(body))
	if err != nil {
		return out, err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return out, fmt.Errorf("status %d", resp.StatusCode)
	}
	err = json.NewDecoder(resp.Body).Decode(&out)
	return out, err
}

func parseVec3(s string) (voxel.Coord, error) {
	var v [3]int
	if _, err := fmt.Sscanf(strings.TrimSpace(s), "%d,%d,%d", &v[0], &v[1], &v[2]); err != nil {
		return voxel.Coord{}, fmt.Errorf("expected x,y,z")
	}
	return voxel.FromArray(v), nil
}
