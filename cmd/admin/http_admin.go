package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultDaemonURL = "http://127.0.0.1:8080"

// callDaemon sends body (nil for none) as JSON and decodes the JSON reply.
// Non-2xx replies are errors carrying the response text.
func callDaemon(method, baseURL, path string, body any, timeout time.Duration) (any, error) {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		rd = bytes.NewReader(b)
	}
	u := strings.TrimRight(strings.TrimSpace(baseURL), "/") + path
	req, err := http.NewRequest(method, u, rd)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := (&http.Client{Timeout: timeout}).Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("%s %s: %d %s", method, path, resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return out, nil
}

func statsCmd(args []string) {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	baseURL := fs.String("url", defaultDaemonURL, "plannerd base url")
	_ = fs.Parse(args)

	out, err := callDaemon(http.MethodGet, *baseURL, "/admin/v1/stats", nil, 5*time.Second)
	if err != nil {
		fail(1, "request", err)
	}
	printJSON(out)
}

func snapshotCmd(args []string) {
	fs := flag.NewFlagSet("snapshot", flag.ExitOnError)
	baseURL := fs.String("url", defaultDaemonURL, "plannerd base url")
	_ = fs.Parse(args)

	out, err := callDaemon(http.MethodPost, *baseURL, "/admin/v1/snapshot", nil, 10*time.Second)
	if err != nil {
		fail(1, "request", err)
	}
	printJSON(out)
}

// setVoxelCmd changes one block on a running daemon; designations on the
// voxel are dropped when the block type changes.
func setVoxelCmd(args []string) {
	fs := flag.NewFlagSet("setvoxel", flag.ExitOnError)
	baseURL := fs.String("url", defaultDaemonURL, "plannerd base url")
	pos := fs.String("pos", "", "voxel x,y,z")
	block := fs.Uint("block", 0, "block id (0 = air)")
	_ = fs.Parse(args)

	v, err := parseVec3(*pos)
	if err != nil {
		fail(2, "pos", err)
	}
	if *block > 0xffff {
		fail(2, "block", fmt.Errorf("%d out of range", *block))
	}
	out, err := callDaemon(http.MethodPost, *baseURL, "/v1/voxels/set", map[string]any{"voxel": v, "block": *block}, 5*time.Second)
	if err != nil {
		fail(1, "request", err)
	}
	printJSON(out)
}
