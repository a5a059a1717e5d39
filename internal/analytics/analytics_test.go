package analytics

import (
	"database/sql"
	"testing"
	"time"

	"github.com/lucasnoah/agentflow/internal/db"
)

func testDB(t *testing.T) *db.DB {
	t.Helper()
	d, err := db.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := d.Migrate(); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	return d
}

func insertEvent(t *testing.T, conn *sql.DB, runID, phase, event, detail, ts string) {
	t.Helper()
	_, err := conn.Exec(
		`INSERT INTO phase_events (run_id, issue_ref, pipeline, phase, event, detail, timestamp)
		 VALUES (?, '42', 'sdlc', ?, ?, ?, ?)`,
		runID, phase, event, detail, ts)
	if err != nil {
		t.Fatalf("insert event: %v", err)
	}
}

// --- QueryPhaseDurations ---

func TestQueryPhaseDurations(t *testing.T) {
	d := testDB(t)
	c := d.Conn()

	// Run r1: plan takes 10 min. Run r2: plan takes 20 min, ending in a warning.
	insertEvent(t, c, "r1", "plan", "phase_started", "", "2026-06-01T10:00:00Z")
	insertEvent(t, c, "r1", "plan", "phase_completed", "", "2026-06-01T10:10:00Z")
	insertEvent(t, c, "r2", "plan", "phase_started", "", "2026-06-02T10:00:00Z")
	insertEvent(t, c, "r2", "plan", "phase_warned", "", "2026-06-02T10:20:00Z")

	results, err := QueryPhaseDurations(d, "")
	if err != nil {
		t.Fatalf("QueryPhaseDurations: %v", err)
	}

	if len(results) != 1 {
		t.Fatalf("expected 1 phase duration result, got %d", len(results))
	}
	plan := results[0]
	if plan.Phase != "plan" {
		t.Errorf("phase = %q, want plan", plan.Phase)
	}
	if plan.Count != 2 {
		t.Errorf("plan count = %d, want 2", plan.Count)
	}
	if plan.Avg != 15.0 {
		t.Errorf("plan avg = %f, want 15.0", plan.Avg)
	}
}

func TestQueryPhaseDurations_PairsByRun(t *testing.T) {
	d := testDB(t)
	c := d.Conn()

	// Two concurrent runs interleave; durations must pair within each run.
	insertEvent(t, c, "r1", "build", "phase_started", "", "2026-06-01T10:00:00Z")
	insertEvent(t, c, "r2", "build", "phase_started", "", "2026-06-01T10:05:00Z")
	insertEvent(t, c, "r1", "build", "phase_completed", "", "2026-06-01T10:10:00Z")
	insertEvent(t, c, "r2", "build", "phase_failed", "", "2026-06-01T10:25:00Z")

	results, err := QueryPhaseDurations(d, "")
	if err != nil {
		t.Fatalf("QueryPhaseDurations: %v", err)
	}

	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].Count != 2 || results[0].Avg != 15.0 {
		t.Errorf("build count=%d avg=%.1f, want 2/15.0 (10 and 20 min)", results[0].Count, results[0].Avg)
	}
}

func TestQueryPhaseDurations_IgnoresUnpairedTerminals(t *testing.T) {
	d := testDB(t)
	c := d.Conn()

	insertEvent(t, c, "r1", "plan", "phase_completed", "", "2026-06-01T10:10:00Z")

	results, err := QueryPhaseDurations(d, "")
	if err != nil {
		t.Fatalf("QueryPhaseDurations: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("expected no results for unpaired terminal event, got %d", len(results))
	}
}

func TestQueryPhaseDurations_Since(t *testing.T) {
	d := testDB(t)
	c := d.Conn()

	insertEvent(t, c, "old", "plan", "phase_started", "", "2025-01-01T10:00:00Z")
	insertEvent(t, c, "old", "plan", "phase_completed", "", "2025-01-01T10:30:00Z")
	insertEvent(t, c, "new", "plan", "phase_started", "", "2026-06-01T10:00:00Z")
	insertEvent(t, c, "new", "plan", "phase_completed", "", "2026-06-01T10:10:00Z")

	results, err := QueryPhaseDurations(d, "2026-01-01T00:00:00Z")
	if err != nil {
		t.Fatalf("QueryPhaseDurations: %v", err)
	}
	if len(results) != 1 || results[0].Count != 1 {
		t.Fatalf("expected only the recent run, got %+v", results)
	}
	if results[0].Avg != 10.0 {
		t.Errorf("avg = %f, want 10.0", results[0].Avg)
	}
}

// --- QueryPhaseOutcomes ---

func TestQueryPhaseOutcomes(t *testing.T) {
	d := testDB(t)
	c := d.Conn()

	insertEvent(t, c, "r1", "plan", "phase_completed", "", "2026-06-01T10:00:00Z")
	insertEvent(t, c, "r2", "plan", "phase_completed", "", "2026-06-01T11:00:00Z")
	insertEvent(t, c, "r1", "build", "phase_completed", "", "2026-06-01T10:10:00Z")
	insertEvent(t, c, "r2", "build", "phase_warned", "", "2026-06-01T11:10:00Z")
	insertEvent(t, c, "r3", "build", "phase_failed", "", "2026-06-01T12:10:00Z")
	insertEvent(t, c, "r4", "build", "phase_failed", "", "2026-06-01T13:10:00Z")

	results, err := QueryPhaseOutcomes(d, "")
	if err != nil {
		t.Fatalf("QueryPhaseOutcomes: %v", err)
	}

	if len(results) != 2 {
		t.Fatalf("expected 2 phases, got %d", len(results))
	}

	byPhase := map[string]PhaseOutcomes{}
	for _, r := range results {
		byPhase[r.Phase] = r
	}

	build := byPhase["build"]
	if build.Total != 4 {
		t.Errorf("build total = %d, want 4", build.Total)
	}
	if build.Succeeded != 25.0 || build.Warned != 25.0 || build.Failed != 50.0 {
		t.Errorf("build rates = %.1f/%.1f/%.1f, want 25/25/50",
			build.Succeeded, build.Warned, build.Failed)
	}

	plan := byPhase["plan"]
	if plan.Total != 2 || plan.Succeeded != 100.0 {
		t.Errorf("plan = total %d succeeded %.1f, want 2/100", plan.Total, plan.Succeeded)
	}
}

// --- QueryThroughput ---

func TestQueryThroughput(t *testing.T) {
	d := testDB(t)
	c := d.Conn()

	// Three runs in one week: one clean, one warned, one aborted.
	insertEvent(t, c, "r1", "", "run_started", "", "2026-06-01T10:00:00Z")
	insertEvent(t, c, "r1", "", "run_completed", "completed", "2026-06-01T11:00:00Z")
	insertEvent(t, c, "r2", "", "run_started", "", "2026-06-02T10:00:00Z")
	insertEvent(t, c, "r2", "", "run_completed", "completed_warned", "2026-06-02T12:00:00Z")
	insertEvent(t, c, "r3", "", "run_started", "", "2026-06-03T10:00:00Z")
	insertEvent(t, c, "r3", "", "run_aborted", "build", "2026-06-03T13:00:00Z")

	results, err := QueryThroughput(d, "")
	if err != nil {
		t.Fatalf("QueryThroughput: %v", err)
	}

	if len(results) != 1 {
		t.Fatalf("expected 1 weekly bucket, got %d", len(results))
	}
	got := results[0]

	want := isoWeek(time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC))
	if got.Period != want {
		t.Errorf("period = %q, want %q", got.Period, want)
	}
	if got.Started != 3 || got.Completed != 2 || got.Warned != 1 || got.Aborted != 1 {
		t.Errorf("counts = started %d completed %d warned %d aborted %d, want 3/2/1/1",
			got.Started, got.Completed, got.Warned, got.Aborted)
	}
	if got.AvgHours != 2.0 {
		t.Errorf("avg hours = %f, want 2.0 (1h, 2h, 3h)", got.AvgHours)
	}
}

func TestQueryThroughput_NewestFirst(t *testing.T) {
	d := testDB(t)
	c := d.Conn()

	insertEvent(t, c, "r1", "", "run_started", "", "2026-05-04T10:00:00Z")
	insertEvent(t, c, "r2", "", "run_started", "", "2026-06-01T10:00:00Z")

	results, err := QueryThroughput(d, "")
	if err != nil {
		t.Fatalf("QueryThroughput: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 buckets, got %d", len(results))
	}
	if results[0].Period <= results[1].Period {
		t.Errorf("buckets not newest-first: %q then %q", results[0].Period, results[1].Period)
	}
}

func TestQueryThroughput_Empty(t *testing.T) {
	d := testDB(t)

	results, err := QueryThroughput(d, "")
	if err != nil {
		t.Fatalf("QueryThroughput: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("expected no buckets, got %d", len(results))
	}
}
