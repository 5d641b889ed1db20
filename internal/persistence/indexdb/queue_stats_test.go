package indexdb

import (
	"testing"

	"github.com/Blecki/dwarfcorp-sub032/internal/persistence/snapshot"
	"github.com/Blecki/dwarfcorp-sub032/internal/sim/planner/service"
)

func TestSQLiteIndex_StatsCountDrops(t *testing.T) {
	s := &SQLiteIndex{ch: make(chan req, 1)}

	s.RecordPlan(service.Request{}, service.Response{RequestID: "a"})
	s.RecordPlan(service.Request{}, service.Response{RequestID: "b"})
	s.RecordSnapshot("x", snapshot.SnapshotV1{})

	st := s.Stats()
	if st.DropPlanTotal != 1 {
		t.Fatalf("drop_plan_total=%d want 1", st.DropPlanTotal)
	}
	if st.DropSnapshotTotal != 1 {
		t.Fatalf("drop_snapshot_total=%d want 1", st.DropSnapshotTotal)
	}
	if st.QueueDepth != 1 || st.QueueCapacity != 1 {
		t.Fatalf("queue=%d/%d want 1/1", st.QueueDepth, st.QueueCapacity)
	}
}

func TestSQLiteIndex_NilStats(t *testing.T) {
	var s *SQLiteIndex
	if st := s.Stats(); st != (Stats{}) {
		t.Fatalf("nil stats=%+v", st)
	}
	// nil index is a no-op sink
	s.RecordPlan(service.Request{}, service.Response{})
}
