package main

import (
	"database/sql"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/Blecki/dwarfcorp-sub032/internal/persistence/indexdb"
)

func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	worldID := fs.String("world", "", "world id (required unless -db)")
	dbPath := fs.String("db", "", "sqlite db path (optional)")
	limit := fs.Int("limit", 20, "result limit")
	sender := fs.String("sender", "", "sender filter (plans)")
	status := fs.String("status", "", "status filter (plans), e.g. UNREACHABLE")
	_ = fs.Parse(args)

	q := "snapshots"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}

	path := strings.TrimSpace(*dbPath)
	if path == "" {
		if strings.TrimSpace(*worldID) == "" {
			fmt.Fprintln(os.Stderr, "missing -world or -db")
			os.Exit(2)
		}
		path = filepath.Join(*dataDir, "worlds", *worldID, "index", "world.sqlite")
	}

	if q == "statuses" {
		counts, err := indexdb.PlanStatusCounts(path)
		if err != nil {
			fail(1, "query", err)
		}
		printJSON(counts)
		return
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		fail(1, "open", err)
	}
	defer db.Close()

	if *limit <= 0 {
		*limit = 20
	}

	switch q {
	case "snapshots":
		rows, err := db.Query(`SELECT tick,path,digest,chunks,voxel_designations,entity_designations,recorded_at FROM designation_snapshots ORDER BY tick DESC LIMIT ?`, *limit)
		if err != nil {
			fail(1, "query", err)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Tick       int64  `json:"tick"`
				Path       string `json:"path"`
				Digest     string `json:"digest"`
				Chunks     int    `json:"chunks"`
				Voxels     int    `json:"voxel_designations"`
				Entities   int    `json:"entity_designations"`
				RecordedAt string `json:"recorded_at"`
			}
			if err := rows.Scan(&r.Tick, &r.Path, &r.Digest, &r.Chunks, &r.Voxels, &r.Entities, &r.RecordedAt); err != nil {
				fail(1, "scan", err)
			}
			printJSON(r)
		}
		if err := rows.Err(); err != nil {
			fail(1, "rows", err)
		}

	case "plans":
		where := []string{}
		qargs := []any{}
		if s := strings.TrimSpace(*sender); s != "" {
			where = append(where, "sender=?")
			qargs = append(qargs, s)
		}
		if s := strings.TrimSpace(*status); s != "" {
			where = append(where, "status=?")
			qargs = append(qargs, strings.ToUpper(s))
		}
		query := `SELECT request_id,sender,recorded_at,start_x,start_y,start_z,status,expansions,cost,path_len,duration_us FROM plans`
		if len(where) > 0 {
			query += " WHERE " + strings.Join(where, " AND ")
		}
		query += " ORDER BY id DESC LIMIT ?"
		qargs = append(qargs, *limit)

		rows, err := db.Query(query, qargs...)
		if err != nil {
			fail(1, "query", err)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				RequestID  string  `json:"request_id"`
				Sender     string  `json:"sender"`
				RecordedAt string  `json:"recorded_at"`
				Start      [3]int  `json:"start"`
				Status     string  `json:"status"`
				Expansions int     `json:"expansions"`
				Cost       float64 `json:"cost"`
				PathLen    int     `json:"path_len"`
				DurationUS int64   `json:"duration_us"`
			}
			if err := rows.Scan(&r.RequestID, &r.Sender, &r.RecordedAt, &r.Start[0], &r.Start[1], &r.Start[2], &r.Status, &r.Expansions, &r.Cost, &r.PathLen, &r.DurationUS); err != nil {
				fail(1, "scan", err)
			}
			printJSON(r)
		}
		if err := rows.Err(); err != nil {
			fail(1, "rows", err)
		}

	case "tuning":
		var v, digest string
		if err := db.QueryRow(`SELECT value FROM meta WHERE key='tuning'`).Scan(&v); err != nil {
			fail(1, "scan", err)
		}
		_ = db.QueryRow(`SELECT value FROM meta WHERE key='tuning_digest'`).Scan(&digest)
		fmt.Printf("digest=%s\n%s\n", digest, v)

	default:
		fmt.Fprintln(os.Stderr, "unknown query:", q)
		fmt.Fprintln(os.Stderr, "usage: admin db [-data ./data] [-world WORLD|-db PATH] snapshots|plans|statuses|tuning")
		os.Exit(2)
	}
}
