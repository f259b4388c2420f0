package observability

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/veskar/trialkit/idgen"
	"github.com/veskar/trialkit/kit"
)

// Event is a domain-level record: a run was created, variables were
// extracted, a validation finished. Best-effort; failures are logged, not
// returned, so telemetry never fails a parse.
type Event struct {
	EventType string `json:"event_type"` // "run.created", "run.exported", ...
	RunID     string `json:"run_id,omitempty"`
	UserID    string `json:"user_id,omitempty"`
	Action    string `json:"action"`
	Details   string `json:"details,omitempty"`
	Success   bool   `json:"success"`
}

// EventLogger writes domain events.
type EventLogger struct {
	db    *sql.DB
	newID idgen.Generator
}

// EventOption configures an EventLogger.
type EventOption func(*EventLogger)

// WithEventIDGenerator sets the event ID generator.
func WithEventIDGenerator(gen idgen.Generator) EventOption {
	return func(l *EventLogger) { l.newID = gen }
}

// NewEventLogger creates an event logger writing to db.
func NewEventLogger(db *sql.DB, opts ...EventOption) *EventLogger {
	l := &EventLogger{
		db:    db,
		newID: idgen.Prefixed("evt_", idgen.Default),
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Log records an event. The user ID falls back to the kit context value.
func (l *EventLogger) Log(ctx context.Context, ev Event) {
	if ev.UserID == "" {
		ev.UserID = kit.GetUserID(ctx)
	}
	_, err := l.db.ExecContext(ctx, `INSERT INTO run_events
		(event_id, event_type, run_id, user_id, action, details, success)
		VALUES (?,?,?,?,?,?,?)`,
		l.newID(), ev.EventType, ev.RunID, ev.UserID, ev.Action, ev.Details,
		boolToInt(ev.Success))
	if err != nil {
		slog.Error("event log failed", "event_type", ev.EventType, "error", err)
	}
}

// RunEvents returns the events recorded for a run, oldest first.
// created_at has second precision, so rowid breaks ties in insert order.
func (l *EventLogger) RunEvents(ctx context.Context, runID string) ([]Event, error) {
	rows, err := l.db.QueryContext(ctx, `SELECT event_type, run_id, user_id,
		action, details, success FROM run_events
		WHERE run_id = ? ORDER BY created_at ASC, rowid ASC`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var ev Event
		var success int
		if err := rows.Scan(&ev.EventType, &ev.RunID, &ev.UserID,
			&ev.Action, &ev.Details, &success); err != nil {
			return nil, err
		}
		ev.Success = success != 0
		out = append(out, ev)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
