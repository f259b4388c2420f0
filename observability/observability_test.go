package observability

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/veskar/trialkit/dbopen"
)

func setupObsDB(t *testing.T) *sql.DB {
	t.Helper()
	return dbopen.OpenMemory(t, dbopen.WithSchema(Schema))
}

func TestInit_CreatesAllTables(t *testing.T) {
	db := setupObsDB(t)
	for _, table := range []string{"audit_log", "run_events", "metrics", "heartbeats"} {
		var count int
		db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&count)
		if count != 1 {
			t.Fatalf("table %s not found", table)
		}
	}
}

func TestAuditLogger_SyncAndEntry(t *testing.T) {
	db := setupObsDB(t)
	a := NewAuditLogger(db, 10)
	defer a.Close()

	e := a.Entry("crf", "crf_parse", map[string]string{"path": "crf.docx"},
		map[string]int{"variables": 12}, nil, 150*time.Millisecond)
	if e.Status != "success" {
		t.Fatalf("status: got %q", e.Status)
	}
	if e.DurationMs != 150 {
		t.Fatalf("duration: got %d", e.DurationMs)
	}
	e.RequestID = "req_1"
	if err := a.Log(context.Background(), e); err != nil {
		t.Fatal(err)
	}

	entries, err := a.Recent(context.Background(), 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("entries: got %d", len(entries))
	}
	got := entries[0]
	if got.Component != "crf" || got.Operation != "crf_parse" {
		t.Fatalf("entry: got %+v", got)
	}
	if got.Parameters == "" || got.Result == "" {
		t.Fatalf("JSON payloads missing: %+v", got)
	}
	if got.RequestID != "req_1" {
		t.Fatalf("request id: got %q", got.RequestID)
	}
}

func TestAuditLogger_ErrorEntry(t *testing.T) {
	db := setupObsDB(t)
	a := NewAuditLogger(db, 10)
	defer a.Close()

	e := a.Entry("docpipe", "extract", nil, nil, sql.ErrConnDone, time.Millisecond)
	if e.Status != "error" {
		t.Fatalf("status: got %q", e.Status)
	}
	if e.ErrorMessage == "" {
		t.Fatal("error message not captured")
	}
	if e.Result != "" {
		t.Fatal("error entries must not carry a result payload")
	}
}

func TestAuditLogger_AsyncDrainedOnClose(t *testing.T) {
	db := setupObsDB(t)
	a := NewAuditLogger(db, 10)

	for i := 0; i < 5; i++ {
		a.LogAsync(a.Entry("service", "validate", nil, nil, nil, time.Millisecond))
	}
	a.Close() // drains the buffer

	a2 := NewAuditLogger(db, 10)
	defer a2.Close()
	entries, err := a2.Recent(context.Background(), 20)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 5 {
		t.Fatalf("entries after drain: got %d, want 5", len(entries))
	}
}

func TestEventLogger_RoundTrip(t *testing.T) {
	db := setupObsDB(t)
	l := NewEventLogger(db)
	ctx := context.Background()

	l.Log(ctx, Event{EventType: "run.created", RunID: "run_1", Action: "crf_parse", Success: true})
	l.Log(ctx, Event{EventType: "run.exported", RunID: "run_1", Action: "export_csv", Success: true})
	l.Log(ctx, Event{EventType: "run.created", RunID: "run_2", Action: "protocol_parse", Success: false})

	events, err := l.RunEvents(ctx, "run_1")
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 2 {
		t.Fatalf("run_1 events: got %d", len(events))
	}
	if events[0].EventType != "run.created" {
		t.Fatalf("order: got %q first", events[0].EventType)
	}
	if !events[0].Success {
		t.Fatal("success flag lost")
	}
}

func TestEventLogger_SameSecondOrder(t *testing.T) {
	db := setupObsDB(t)
	l := NewEventLogger(db)
	ctx := context.Background()

	// All inserts land within one created_at second; order must still be
	// insert order.
	actions := []string{"upload", "parse", "persist", "audit", "export"}
	for _, a := range actions {
		l.Log(ctx, Event{EventType: "run.step", RunID: "run_burst", Action: a, Success: true})
	}

	events, err := l.RunEvents(ctx, "run_burst")
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != len(actions) {
		t.Fatalf("events: got %d, want %d", len(events), len(actions))
	}
	for i, a := range actions {
		if events[i].Action != a {
			t.Fatalf("events[%d].Action = %q, want %q", i, events[i].Action, a)
		}
	}
}

func TestMetrics_RecordAndQuery(t *testing.T) {
	db := setupObsDB(t)
	m := NewMetrics(db, 100, time.Hour)
	m.Record("parse_duration", 42.5, "ms")
	m.Record("parse_duration", 17.0, "ms")
	m.Record("variables_extracted", 12, "count")
	m.Close() // flushes

	m2 := NewMetrics(db, 100, time.Hour)
	defer m2.Close()
	points, err := m2.Query(context.Background(), "parse_duration", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(points) != 2 {
		t.Fatalf("parse_duration points: got %d", len(points))
	}
	if points[0].Unit != "ms" {
		t.Fatalf("unit: got %q", points[0].Unit)
	}
}

func TestHeartbeat_WriteAndLatest(t *testing.T) {
	db := setupObsDB(t)
	h := NewHeartbeat(db, "trialkitd", time.Hour)
	if err := h.Write(); err != nil {
		t.Fatal(err)
	}

	hs, err := LatestHeartbeat(context.Background(), db, "trialkitd", time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if hs == nil {
		t.Fatal("expected a heartbeat")
	}
	if !hs.Alive {
		t.Fatal("fresh heartbeat should be alive")
	}
	if hs.Goroutines <= 0 {
		t.Fatalf("goroutines: got %d", hs.Goroutines)
	}

	missing, err := LatestHeartbeat(context.Background(), db, "nobody", time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if missing != nil {
		t.Fatal("expected nil for unknown worker")
	}
}

func TestCleanup(t *testing.T) {
	db := setupObsDB(t)
	old := time.Now().AddDate(0, 0, -40).Unix()
	if _, err := db.Exec(`INSERT INTO heartbeats (worker, hostname, pid, timestamp) VALUES ('w','h',1,?)`, old); err != nil {
		t.Fatal(err)
	}
	if _, err := db.Exec(`INSERT INTO heartbeats (worker, hostname, pid, timestamp) VALUES ('w','h',1,?)`, time.Now().Unix()); err != nil {
		t.Fatal(err)
	}

	if err := Cleanup(context.Background(), db, 30); err != nil {
		t.Fatal(err)
	}
	var count int
	db.QueryRow("SELECT COUNT(*) FROM heartbeats").Scan(&count)
	if count != 1 {
		t.Fatalf("heartbeats after cleanup: got %d", count)
	}
}
