// Package observability persists operational telemetry for the trialkit
// daemon on a dedicated SQLite database: an audit trail of parse operations,
// domain events keyed by run ID, and liveness heartbeats.
package observability

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/veskar/trialkit/idgen"
)

// AuditEntry is one operation record in the audit trail.
type AuditEntry struct {
	EntryID   string
	Timestamp time.Time
	Component string // "service", "crf", "validate", ...
	Operation string // "crf_parse", "export", ...

	UserID    string
	RequestID string

	Parameters   string // JSON
	Result       string // JSON
	ErrorMessage string
	DurationMs   int64

	Status string // "success" or "error"
}

// AuditLogger persists audit entries asynchronously in batches.
type AuditLogger struct {
	db    *sql.DB
	newID idgen.Generator
	ch    chan *AuditEntry
	stop  chan struct{}
	done  chan struct{}
}

// AuditOption configures an AuditLogger.
type AuditOption func(*AuditLogger)

// WithAuditIDGenerator sets the entry ID generator.
func WithAuditIDGenerator(gen idgen.Generator) AuditOption {
	return func(a *AuditLogger) { a.newID = gen }
}

// NewAuditLogger creates an async audit logger. Recommended bufferSize: 1000.
func NewAuditLogger(db *sql.DB, bufferSize int, opts ...AuditOption) *AuditLogger {
	a := &AuditLogger{
		db:    db,
		newID: idgen.Prefixed("aud_", idgen.Default),
		ch:    make(chan *AuditEntry, bufferSize),
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	for _, o := range opts {
		o(a)
	}
	go a.flushLoop()
	return a
}

// Entry builds an AuditEntry from an operation's parameters, result and
// error. Params and result are marshalled to JSON; a non-nil err flips the
// status to "error" and drops the result payload.
func (a *AuditLogger) Entry(component, operation string, params, result any, err error, duration time.Duration) *AuditEntry {
	e := &AuditEntry{
		EntryID:    a.newID(),
		Timestamp:  time.Now(),
		Component:  component,
		Operation:  operation,
		DurationMs: duration.Milliseconds(),
	}
	if params != nil {
		if b, merr := json.Marshal(params); merr == nil {
			e.Parameters = string(b)
		}
	}
	if err != nil {
		e.Status = "error"
		e.ErrorMessage = err.Error()
		return e
	}
	e.Status = "success"
	if result != nil {
		if b, merr := json.Marshal(result); merr == nil {
			e.Result = string(b)
		}
	}
	return e
}

// Log inserts an entry synchronously.
func (a *AuditLogger) Log(ctx context.Context, e *AuditEntry) error {
	a.fillDefaults(e)
	return a.insert(ctx, e)
}

// LogAsync queues an entry for batched persistence. Falls back to a
// synchronous insert when the buffer is full so entries are never dropped.
func (a *AuditLogger) LogAsync(e *AuditEntry) {
	a.fillDefaults(e)
	select {
	case a.ch <- e:
	default:
		slog.Warn("audit buffer full, sync fallback", "component", e.Component)
		if err := a.insert(context.Background(), e); err != nil {
			slog.Error("audit sync fallback failed", "error", err)
		}
	}
}

// Recent returns the newest entries, most recent first.
func (a *AuditLogger) Recent(ctx context.Context, limit int) ([]*AuditEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := a.db.QueryContext(ctx, `SELECT entry_id, timestamp, component,
		operation, user_id, request_id, parameters, result, error_message,
		duration_ms, status
		FROM audit_log ORDER BY timestamp DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*AuditEntry
	for rows.Next() {
		var e AuditEntry
		var ts int64
		if err := rows.Scan(&e.EntryID, &ts, &e.Component, &e.Operation,
			&e.UserID, &e.RequestID, &e.Parameters, &e.Result,
			&e.ErrorMessage, &e.DurationMs, &e.Status); err != nil {
			return nil, err
		}
		e.Timestamp = time.Unix(ts, 0)
		out = append(out, &e)
	}
	return out, rows.Err()
}

// Close stops the flush loop after draining buffered entries.
func (a *AuditLogger) Close() error {
	close(a.stop)
	<-a.done
	return nil
}

func (a *AuditLogger) fillDefaults(e *AuditEntry) {
	if e.EntryID == "" {
		e.EntryID = a.newID()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	if e.Status == "" {
		if e.ErrorMessage != "" {
			e.Status = "error"
		} else {
			e.Status = "success"
		}
	}
}

func (a *AuditLogger) flushLoop() {
	defer close(a.done)
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	batch := make([]*AuditEntry, 0, 100)

	flush := func() {
		if len(batch) == 0 {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		tx, err := a.db.BeginTx(ctx, nil)
		if err != nil {
			slog.Error("audit: begin tx", "error", err)
			return
		}
		for _, e := range batch {
			if err := execInsert(ctx, tx, e); err != nil {
				slog.Error("audit: insert", "error", err, "entry_id", e.EntryID)
			}
		}
		if err := tx.Commit(); err != nil {
			slog.Error("audit: commit", "error", err)
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-a.stop:
			// Drain whatever is still buffered, then exit.
			for {
				select {
				case e := <-a.ch:
					batch = append(batch, e)
				default:
					flush()
					return
				}
			}
		case e := <-a.ch:
			batch = append(batch, e)
			if len(batch) >= 100 {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

const auditInsert = `INSERT INTO audit_log
	(entry_id, timestamp, component, operation, user_id, request_id,
	 parameters, result, error_message, duration_ms, status)
	VALUES (?,?,?,?,?,?,?,?,?,?,?)`

func (a *AuditLogger) insert(ctx context.Context, e *AuditEntry) error {
	_, err := a.db.ExecContext(ctx, auditInsert,
		e.EntryID, e.Timestamp.Unix(), e.Component, e.Operation,
		e.UserID, e.RequestID, e.Parameters, e.Result,
		e.ErrorMessage, e.DurationMs, e.Status)
	return err
}

func execInsert(ctx context.Context, tx *sql.Tx, e *AuditEntry) error {
	_, err := tx.ExecContext(ctx, auditInsert,
		e.EntryID, e.Timestamp.Unix(), e.Component, e.Operation,
		e.UserID, e.RequestID, e.Parameters, e.Result,
		e.ErrorMessage, e.DurationMs, e.Status)
	return err
}
