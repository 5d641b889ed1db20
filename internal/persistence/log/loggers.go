package log

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/Blecki/dwarfcorp-sub032/internal/sim/designation"
	"github.com/Blecki/dwarfcorp-sub032/internal/sim/planner/service"
)

// JSONLZstdWriter appends JSON lines to hourly zstd files named
// <prefix>-YYYY-MM-DD-HH.jsonl.zst.
type JSONLZstdWriter struct {
	baseDir string
	prefix  string
	now     func() time.Time

	mu      sync.Mutex
	curHour string
	f       *os.File
	enc     *zstd.Encoder
	w       *bufio.Writer
}

func NewJSONLZstdWriter(baseDir, prefix string) *JSONLZstdWriter {
	return &JSONLZstdWriter{
		baseDir: baseDir,
		prefix:  prefix,
		now:     time.Now,
	}
}

func (w *JSONLZstdWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

func (w *JSONLZstdWriter) Write(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	hour := w.now().UTC().Format("2006-01-02-15")
	if hour != w.curHour || w.w == nil {
		if err := w.rotateLocked(hour); err != nil {
			return err
		}
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return err
	}
	return w.w.Flush()
}

func (w *JSONLZstdWriter) rotateLocked(hour string) error {
	if err := w.closeLocked(); err != nil {
		return err
	}
	path := w.pathForHour(hour)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	w.f = f
	w.enc = enc
	w.w = bufio.NewWriterSize(enc, 128*1024)
	w.curHour = hour
	return nil
}

func (w *JSONLZstdWriter) closeLocked() error {
	var err1 error
	if w.w != nil {
		_ = w.w.Flush()
	}
	if w.enc != nil {
		err1 = w.enc.Close()
		w.enc = nil
	}
	if w.f != nil {
		_ = w.f.Close()
		w.f = nil
	}
	w.w = nil
	w.curHour = ""
	return err1
}

func (w *JSONLZstdWriter) pathForHour(hour string) string {
	return filepath.Join(w.baseDir, fmt.Sprintf("%s-%s.jsonl.zst", w.prefix, hour))
}

// PlanEntry is one journal line per answered plan request.
type PlanEntry struct {
	Time       time.Time `json:"time"`
	RequestID  string    `json:"request_id"`
	Sender     string    `json:"sender"`
	Start      [3]int    `json:"start"`
	Status     string    `json:"status"`
	Expansions int       `json:"expansions"`
	Cost       float64   `json:"cost"`
	PathLen    int       `json:"path_len"`
	DurationUS int64     `json:"duration_us"`
}

// PlanLogger journals plan responses. It implements service.Sink.
type PlanLogger struct {
	w      *JSONLZstdWriter
	errors atomic.Uint64
}

func NewPlanLogger(dataDir string) *PlanLogger {
	return &PlanLogger{w: NewJSONLZstdWriter(filepath.Join(dataDir, "plans"), "plans")}
}

func (l *PlanLogger) RecordPlan(req service.Request, resp service.Response) {
	err := l.w.Write(PlanEntry{
		Time:       l.w.now().UTC(),
		RequestID:  resp.RequestID,
		Sender:     resp.Sender,
		Start:      req.Start.ToArray(),
		Status:     resp.Status.String(),
		Expansions: resp.Expansions,
		Cost:       resp.Cost,
		PathLen:    len(resp.Path),
		DurationUS: resp.Duration.Microseconds(),
	})
	if err != nil {
		l.errors.Add(1)
	}
}

// WriteErrors counts entries lost to I/O errors.
func (l *PlanLogger) WriteErrors() uint64 { return l.errors.Load() }
func (l *PlanLogger) Close() error        { return l.w.Close() }

// DesignationEntry is one audit line per ledger change.
type DesignationEntry struct {
	Time time.Time `json:"time"`
	designation.Event
	Kind string `json:"kind"`
}

// DesignationLogger audits ledger changes. It implements designation.Journal.
type DesignationLogger struct {
	w      *JSONLZstdWriter
	errors atomic.Uint64
}

func NewDesignationLogger(dataDir string) *DesignationLogger {
	return &DesignationLogger{w: NewJSONLZstdWriter(filepath.Join(dataDir, "designations"), "designations")}
}

func (l *DesignationLogger) RecordDesignation(ev designation.Event) {
	if err := l.w.Write(DesignationEntry{Time: l.w.now().UTC(), Event: ev, Kind: ev.Type.String()}); err != nil {
		l.errors.Add(1)
	}
}

func (l *DesignationLogger) WriteErrors() uint64 { return l.errors.Load() }
func (l *DesignationLogger) Close() error        { return l.w.Close() }
