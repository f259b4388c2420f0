package observability

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"time"
)

// Heartbeat writes periodic liveness probes with runtime stats so the
// health endpoint can distinguish "process up" from "daemon healthy".
type Heartbeat struct {
	db       *sql.DB
	worker   string
	hostname string
	pid      int
	interval time.Duration
	stop     chan struct{}
	done     chan struct{}
}

// NewHeartbeat creates a writer. Recommended interval: 15s.
func NewHeartbeat(db *sql.DB, worker string, interval time.Duration) *Heartbeat {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	return &Heartbeat{
		db:       db,
		worker:   worker,
		hostname: hostname,
		pid:      os.Getpid(),
		interval: interval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the heartbeat goroutine. One beat is written immediately,
// then one per interval until Stop or context cancellation.
func (h *Heartbeat) Start(ctx context.Context) {
	go h.loop(ctx)
}

// Write inserts a single heartbeat row with current runtime stats.
func (h *Heartbeat) Write() error {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	_, err := h.db.Exec(`INSERT INTO heartbeats
		(worker, hostname, pid, timestamp, goroutines, memory_alloc_mb, gc_count)
		VALUES (?,?,?,?,?,?,?)`,
		h.worker, h.hostname, h.pid, time.Now().Unix(),
		runtime.NumGoroutine(), float64(mem.Alloc)/1024/1024, mem.NumGC)
	if err != nil {
		return fmt.Errorf("insert heartbeat: %w", err)
	}
	return nil
}

// Stop signals the goroutine to exit and waits for it.
func (h *Heartbeat) Stop() {
	close(h.stop)
	<-h.done
}

func (h *Heartbeat) loop(ctx context.Context) {
	defer close(h.done)
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	if err := h.Write(); err != nil {
		slog.Error("heartbeat write failed", "error", err, "worker", h.worker)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.stop:
			return
		case <-ticker.C:
			if err := h.Write(); err != nil {
				slog.Error("heartbeat write failed", "error", err, "worker", h.worker)
			}
		}
	}
}

// HeartbeatStatus is the latest beat for a worker plus a staleness verdict.
type HeartbeatStatus struct {
	Worker        string    `json:"worker"`
	Hostname      string    `json:"hostname"`
	PID           int       `json:"pid"`
	Timestamp     time.Time `json:"timestamp"`
	Goroutines    int       `json:"goroutines"`
	MemoryAllocMB float64   `json:"memory_alloc_mb"`
	GCCount       int       `json:"gc_count"`
	Alive         bool      `json:"alive"`
}

// LatestHeartbeat returns the newest heartbeat for worker, or nil, nil if
// none has been recorded. stalenessThreshold sets the alive boundary,
// typically three times the write interval.
func LatestHeartbeat(ctx context.Context, db *sql.DB, worker string, stalenessThreshold time.Duration) (*HeartbeatStatus, error) {
	row := db.QueryRowContext(ctx, `SELECT worker, hostname, pid, timestamp,
		goroutines, memory_alloc_mb, gc_count
		FROM heartbeats WHERE worker = ?
		ORDER BY timestamp DESC, rowid DESC LIMIT 1`, worker)

	var hs HeartbeatStatus
	var ts int64
	err := row.Scan(&hs.Worker, &hs.Hostname, &hs.PID, &ts,
		&hs.Goroutines, &hs.MemoryAllocMB, &hs.GCCount)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query latest heartbeat: %w", err)
	}

	hs.Timestamp = time.Unix(ts, 0)
	hs.Alive = time.Since(hs.Timestamp) <= stalenessThreshold
	return &hs, nil
}

// Cleanup deletes telemetry older than retentionDays from all tables.
func Cleanup(ctx context.Context, db *sql.DB, retentionDays int) error {
	threshold := time.Now().AddDate(0, 0, -retentionDays).Unix()
	for _, q := range []string{
		"DELETE FROM heartbeats WHERE timestamp < ?",
		"DELETE FROM audit_log WHERE timestamp < ?",
		"DELETE FROM run_events WHERE created_at < ?",
	} {
		if _, err := db.ExecContext(ctx, q, threshold); err != nil {
			return fmt.Errorf("cleanup: %w", err)
		}
	}
	return nil
}
