package observability

import (
	"context"
	"database/sql"
	"log/slog"
	"sync"
	"time"
)

// Metric is one timeseries datapoint (parse duration, variables per run,
// export size).
type Metric struct {
	Name      string
	Timestamp time.Time
	Value     float64
	Unit      string // "ms", "count", "bytes"
}

// Metrics buffers datapoints in memory and flushes them in batches.
type Metrics struct {
	db            *sql.DB
	mu            sync.Mutex
	buffer        []*Metric
	bufferSize    int
	flushInterval time.Duration
	stop          chan struct{}
	done          chan struct{}
}

// NewMetrics creates a buffered recorder. Recommended: bufferSize 100,
// flushInterval 5s.
func NewMetrics(db *sql.DB, bufferSize int, flushInterval time.Duration) *Metrics {
	m := &Metrics{
		db:            db,
		buffer:        make([]*Metric, 0, bufferSize),
		bufferSize:    bufferSize,
		flushInterval: flushInterval,
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
	}
	go m.flushLoop()
	return m
}

// Record buffers a datapoint. The write happens on the next flush.
func (m *Metrics) Record(name string, value float64, unit string) {
	m.mu.Lock()
	m.buffer = append(m.buffer, &Metric{
		Name:      name,
		Timestamp: time.Now(),
		Value:     value,
		Unit:      unit,
	})
	full := len(m.buffer) >= m.bufferSize
	if full {
		m.flushLocked()
	}
	m.mu.Unlock()
}

// Query returns datapoints for a metric, newest first.
func (m *Metrics) Query(ctx context.Context, name string, limit int) ([]*Metric, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := m.db.QueryContext(ctx, `SELECT metric_name, timestamp, value, unit
		FROM metrics WHERE metric_name = ?
		ORDER BY timestamp DESC, rowid DESC LIMIT ?`, name, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Metric
	for rows.Next() {
		var mt Metric
		var ts int64
		if err := rows.Scan(&mt.Name, &ts, &mt.Value, &mt.Unit); err != nil {
			return nil, err
		}
		mt.Timestamp = time.Unix(ts, 0)
		out = append(out, &mt)
	}
	return out, rows.Err()
}

// Close flushes remaining datapoints and stops the loop.
func (m *Metrics) Close() error {
	close(m.stop)
	<-m.done
	return nil
}

func (m *Metrics) flushLoop() {
	defer close(m.done)
	ticker := time.NewTicker(m.flushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stop:
			m.mu.Lock()
			m.flushLocked()
			m.mu.Unlock()
			return
		case <-ticker.C:
			m.mu.Lock()
			m.flushLocked()
			m.mu.Unlock()
		}
	}
}

// flushLocked writes the buffer. Caller holds m.mu.
func (m *Metrics) flushLocked() {
	if len(m.buffer) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		slog.Error("metrics: begin tx", "error", err)
		return
	}
	for _, mt := range m.buffer {
		if _, err := tx.ExecContext(ctx, `INSERT INTO metrics
			(metric_name, timestamp, value, unit) VALUES (?,?,?,?)`,
			mt.Name, mt.Timestamp.Unix(), mt.Value, mt.Unit); err != nil {
			slog.Error("metrics: insert", "error", err, "metric", mt.Name)
		}
	}
	if err := tx.Commit(); err != nil {
		slog.Error("metrics: commit", "error", err)
	}
	m.buffer = m.buffer[:0]
}
