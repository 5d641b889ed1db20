package indexdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zeebo/xxh3"
	_ "modernc.org/sqlite"

	"github.com/Blecki/dwarfcorp-sub032/internal/persistence/snapshot"
	"github.com/Blecki/dwarfcorp-sub032/internal/sim/planner/service"
	"github.com/Blecki/dwarfcorp-sub032/internal/sim/tuning"
)

// SQLiteIndex is a read-model of plan outcomes and snapshot metadata. Writes
// go through one goroutine; enqueueing never blocks and drops when the
// queue is full, since the JSONL journals remain the source of truth.
type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropPlan     atomic.Uint64
	dropSnapshot atomic.Uint64
	written      atomic.Uint64
	writeErrors  atomic.Uint64
}

type Stats struct {
	DropPlanTotal     uint64 `json:"drop_plan_total"`
	DropSnapshotTotal uint64 `json:"drop_snapshot_total"`
	WrittenTotal      uint64 `json:"written_total"`
	WriteErrorTotal   uint64 `json:"write_error_total"`
	QueueDepth        int    `json:"queue_depth"`
	QueueCapacity     int    `json:"queue_capacity"`
}

type reqKind int

const (
	reqPlan reqKind = iota + 1
	reqSnapshot
)

type req struct {
	kind reqKind

	plan     planRow
	snapshot snapshotRow
}

type planRow struct {
	RecordedAt string
	RequestID  string
	Sender     string
	Start      [3]int
	Status     string
	Success    bool
	Expansions int
	Cost       float64
	PathLen    int
	DurationUS int64
}

type snapshotRow struct {
	Tick       uint64
	Path       string
	Digest     uint64
	Chunks     int
	Voxels     int
	Entities   int
	RecordedAt string
}

const queueCapacity = 65536

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		ch: make(chan req, queueCapacity),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS plans (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			recorded_at TEXT NOT NULL,
			request_id TEXT NOT NULL,
			sender TEXT NOT NULL,
			start_x INTEGER NOT NULL,
			start_y INTEGER NOT NULL,
			start_z INTEGER NOT NULL,
			status TEXT NOT NULL,
			success INTEGER NOT NULL,
			expansions INTEGER NOT NULL,
			cost REAL NOT NULL,
			path_len INTEGER NOT NULL,
			duration_us INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_plans_sender ON plans(sender, id);`,
		`CREATE INDEX IF NOT EXISTS idx_plans_status ON plans(status);`,
		`CREATE TABLE IF NOT EXISTS designation_snapshots (
			tick INTEGER PRIMARY KEY,
			path TEXT NOT NULL,
			digest TEXT NOT NULL,
			chunks INTEGER NOT NULL,
			voxel_designations INTEGER NOT NULL,
			entity_designations INTEGER NOT NULL,
			recorded_at TEXT NOT NULL
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

func (s *SQLiteIndex) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{
		DropPlanTotal:     s.dropPlan.Load(),
		DropSnapshotTotal: s.dropSnapshot.Load(),
		WrittenTotal:      s.written.Load(),
		WriteErrorTotal:   s.writeErrors.Load(),
		QueueDepth:        len(s.ch),
		QueueCapacity:     cap(s.ch),
	}
}

// RecordPlan implements service.Sink.
func (s *SQLiteIndex) RecordPlan(r service.Request, resp service.Response) {
	if s == nil || s.closed.Load() {
		return
	}
	row := planRow{
		RecordedAt: time.Now().UTC().Format(time.RFC3339Nano),
		RequestID:  resp.RequestID,
		Sender:     resp.Sender,
		Start:      r.Start.ToArray(),
		Status:     resp.Status.String(),
		Success:    resp.Success,
		Expansions: resp.Expansions,
		Cost:       resp.Cost,
		PathLen:    len(resp.Path),
		DurationUS: resp.Duration.Microseconds(),
	}
	select {
	case s.ch <- req{kind: reqPlan, plan: row}:
	default:
		s.dropPlan.Add(1)
	}
}

func (s *SQLiteIndex) RecordSnapshot(path string, snap snapshot.SnapshotV1) {
	if s == nil || s.closed.Load() {
		return
	}
	row := snapshotRow{
		Tick:       snap.Header.Tick,
		Path:       path,
		Digest:     snap.Header.Digest,
		Chunks:     len(snap.Chunks),
		Voxels:     len(snap.VoxelDesignations),
		Entities:   len(snap.EntityDesignations),
		RecordedAt: time.Now().UTC().Format(time.RFC3339Nano),
	}
	select {
	case s.ch <- req{kind: reqSnapshot, snapshot: row}:
	default:
		s.dropSnapshot.Add(1)
	}
}

// UpsertTuning stores the tuning actually applied, with its digest.
func (s *SQLiteIndex) UpsertTuning(tune tuning.Tuning) error {
	if s == nil {
		return nil
	}
	b, err := json.Marshal(tune)
	if err != nil {
		return err
	}
	digest := strconv.FormatUint(xxh3.Hash(b), 16)

	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	for k, v := range map[string]string{
		"schema_version": "1",
		"tuning":         string(b),
		"tuning_digest":  digest,
	} {
		if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES(?,?)`, k, v); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertPlan, _ := s.db.Prepare(`INSERT INTO plans(recorded_at,request_id,sender,start_x,start_y,start_z,status,success,expansions,cost,path_len,duration_us) VALUES(?,?,?,?,?,?,?,?,?,?,?,?)`)
	insertSnapshot, _ := s.db.Prepare(`INSERT OR REPLACE INTO designation_snapshots(tick,path,digest,chunks,voxel_designations,entity_designations,recorded_at) VALUES(?,?,?,?,?,?,?)`)
	defer func() {
		if insertPlan != nil {
			_ = insertPlan.Close()
		}
		if insertSnapshot != nil {
			_ = insertSnapshot.Close()
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 2000
		commitMaxWait = 2 * time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		if err := tx.Commit(); err != nil {
			s.writeErrors.Add(1)
		} else {
			s.written.Add(uint64(opCount))
		}
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		s.writeErrors.Add(1)
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}

	for r := range s.ch {
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqPlan:
			p := r.plan
			if insertPlan == nil {
				continue
			}
			if _, err := tx.Stmt(insertPlan).Exec(
				p.RecordedAt, p.RequestID, p.Sender,
				p.Start[0], p.Start[1], p.Start[2],
				p.Status, p.Success, p.Expansions, p.Cost, p.PathLen, p.DurationUS,
			); err != nil {
				rollback()
				continue
			}
			opCount++

		case reqSnapshot:
			sn := r.snapshot
			if insertSnapshot == nil {
				continue
			}
			if _, err := tx.Stmt(insertSnapshot).Exec(
				int64(sn.Tick), sn.Path, strconv.FormatUint(sn.Digest, 16),
				sn.Chunks, sn.Voxels, sn.Entities, sn.RecordedAt,
			); err != nil {
				rollback()
				continue
			}
			opCount++
		}
		// Commit promptly when the queue is idle so readers see fresh rows.
		if opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait || len(s.ch) == 0 {
			commit()
		}
	}

	commit()
}

// PlanStatusCounts reads the per-status totals from an index file.
func PlanStatusCounts(path string) (map[string]int, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	defer db.Close()
	rows, err := db.Query(`SELECT status, COUNT(*) FROM plans GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]int{}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		out[status] = n
	}
	return out, rows.Err()
}
