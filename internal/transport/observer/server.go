// Package observer serves a read-only view of the designation ledger to
// loopback clients, as JSON over HTTP and as a websocket push feed.
package observer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Blecki/dwarfcorp-sub032/internal/sim/designation"
	"github.com/Blecki/dwarfcorp-sub032/internal/sim/voxel"
)

const FrameType = "DESIGNATIONS"

// DesignationFrame is the full ledger at one tick.
type DesignationFrame struct {
	Type     string                          `json:"type"`
	Tick     uint64                          `json:"tick"`
	Digest   string                          `json:"digest"`
	Counts   map[string]int                  `json:"counts"`
	Voxels   []designation.VoxelDesignation  `json:"voxels"`
	Entities []designation.EntityDesignation `json:"entities"`
}

// Server implements designation.CacheInvalidator: ledger changes wake every
// connected session instead of waiting for the next poll.
type Server struct {
	set  *designation.Set
	tick func() uint64
	log  *log.Logger

	pushInterval time.Duration

	upgrader websocket.Upgrader
	nextID   atomic.Uint64
	sessions atomic.Int64

	mu            sync.Mutex
	wakers        map[chan struct{}]struct{}
	invalidations atomic.Uint64
}

// NewServer builds a feed over set. tick may be nil. set may be nil when the
// ledger is built with this server as its invalidator; Attach it before
// serving.
func NewServer(set *designation.Set, tick func() uint64, pushInterval time.Duration, logger *log.Logger) *Server {
	if tick == nil {
		tick = func() uint64 { return 0 }
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	if pushInterval <= 0 {
		pushInterval = 500 * time.Millisecond
	}
	return &Server{
		set:          set,
		tick:         tick,
		log:          logger,
		pushInterval: pushInterval,
		wakers:       map[chan struct{}]struct{}{},
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // loopback only anyway
		},
	}
}

func (s *Server) Attach(set *designation.Set) { s.set = set }

// InvalidateVoxel wakes every session so it re-checks the ledger digest.
func (s *Server) InvalidateVoxel(voxel.Coord) {
	s.invalidations.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	for ch := range s.wakers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Invalidations counts voxel changes reported by the ledger.
func (s *Server) Invalidations() uint64 { return s.invalidations.Load() }

func (s *Server) subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	s.mu.Lock()
	s.wakers[ch] = struct{}{}
	s.mu.Unlock()
	return ch, func() {
		s.mu.Lock()
		delete(s.wakers, ch)
		s.mu.Unlock()
	}
}

// Sessions is the number of connected websocket clients.
func (s *Server) Sessions() int64 { return s.sessions.Load() }

// Frame is built from one ledger snapshot, so its digest and counts match its
// contents.
func (s *Server) Frame() DesignationFrame {
	f, _ := s.frame()
	return f
}

func (s *Server) frame() (DesignationFrame, uint64) {
	snap := s.set.ExportSnapshot()
	digest := snap.Digest()
	counts := map[string]int{}
	for t, n := range snap.Counts() {
		counts[t.String()] = n
	}
	if snap.Voxels == nil {
		snap.Voxels = []designation.VoxelDesignation{}
	}
	if snap.Entities == nil {
		snap.Entities = []designation.EntityDesignation{}
	}
	return DesignationFrame{
		Type:     FrameType,
		Tick:     s.tick(),
		Digest:   strconv.FormatUint(digest, 16),
		Counts:   counts,
		Voxels:   snap.Voxels,
		Entities: snap.Entities,
	}, digest
}

func (s *Server) SnapshotHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(s.Frame())
	}
}

func (s *Server) WSHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}

		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		sid := fmt.Sprintf("O%d", s.nextID.Add(1))
		s.sessions.Add(1)
		defer s.sessions.Add(-1)
		s.log.Printf("observer %s connected from %s", sid, r.RemoteAddr)

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		// Reader loop only detects close; the feed is read-only.
		go func() {
			defer cancel()
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		err = s.push(ctx, conn)
		s.log.Printf("observer %s disconnected: %v", sid, err)
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))
	}
}

// push writes a frame immediately and again whenever the ledger digest
// changes. Voxel invalidations wake it early; the ticker catches entity
// changes, which carry no voxel.
func (s *Server) push(ctx context.Context, conn *websocket.Conn) error {
	ticker := time.NewTicker(s.pushInterval)
	defer ticker.Stop()
	wake, unsubscribe := s.subscribe()
	defer unsubscribe()

	var last uint64
	sent := false
	for {
		if f, d := s.frame(); !sent || d != last {
			b, err := json.Marshal(f)
			if err != nil {
				return err
			}
			_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
				return err
			}
			last, sent = d, true
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		case <-wake:
		}
	}
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
