// Package service assembles the trialkit daemon: a chi HTTP API and an MCP
// server over the same operations (document extraction, CRF and protocol
// parsing, dataset validation, run storage and export), with audit and
// event telemetry on every parse run.
package service

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/veskar/trialkit/crf"
	"github.com/veskar/trialkit/docpipe"
	"github.com/veskar/trialkit/idgen"
	"github.com/veskar/trialkit/kit"
	"github.com/veskar/trialkit/observability"
	"github.com/veskar/trialkit/protocol"
	"github.com/veskar/trialkit/pubmed"
	"github.com/veskar/trialkit/store"
	"github.com/veskar/trialkit/tavily"
	"github.com/veskar/trialkit/validate"
	"github.com/veskar/trialkit/webfetch"
)

// Service wires the parsers to storage and telemetry.
type Service struct {
	Config  *Config
	Store   *store.Store
	Pipe    *docpipe.Pipeline
	Fetcher *webfetch.Fetcher
	PubMed  *pubmed.Client
	Tavily  *tavily.Client // nil unless an API key is configured

	Audit   *observability.AuditLogger
	Events  *observability.EventLogger
	Metrics *observability.Metrics
	ObsDB   *sql.DB // telemetry database, used by the health endpoint

	Logger *slog.Logger
	NewID  idgen.Generator

	// Upload blobs get timestamped names so the uploads dir sorts by
	// arrival; intake tokens are short-lived and stay compact.
	newUploadID idgen.Generator
	newIntakeID idgen.Generator
}

// Option configures a Service.
type Option func(*Service)

// WithAudit sets the audit logger.
func WithAudit(a *observability.AuditLogger) Option {
	return func(s *Service) { s.Audit = a }
}

// WithEvents sets the event logger.
func WithEvents(e *observability.EventLogger) Option {
	return func(s *Service) { s.Events = e }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Service) { s.Metrics = m }
}

// WithObsDB exposes the telemetry database to the health endpoint.
func WithObsDB(db *sql.DB) Option {
	return func(s *Service) { s.ObsDB = db }
}

// WithFetcher sets the web fetcher.
func WithFetcher(f *webfetch.Fetcher) Option {
	return func(s *Service) { s.Fetcher = f }
}

// WithPubMed sets the PubMed search client.
func WithPubMed(c *pubmed.Client) Option {
	return func(s *Service) { s.PubMed = c }
}

// WithTavily sets the Tavily search client.
func WithTavily(c *tavily.Client) Option {
	return func(s *Service) { s.Tavily = c }
}

// WithIDGenerator sets the run ID generator.
func WithIDGenerator(g idgen.Generator) Option {
	return func(s *Service) { s.NewID = g }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.Logger = l }
}

// New creates a fully wired service. The run store is opened from the
// config; telemetry components are optional.
func New(cfg *Config, opts ...Option) (*Service, error) {
	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	s := &Service{
		Config: cfg,
		Store:  st,
		Pipe: docpipe.New(docpipe.Config{
			MaxFileSize: cfg.MaxFileBytes(),
		}),
		Logger:      slog.Default(),
		NewID:       idgen.Prefixed("run_", idgen.Default),
		newUploadID: idgen.Timestamped(idgen.NanoID(8)),
		newIntakeID: idgen.Prefixed("itk_", idgen.NanoID(12)),
	}
	for _, o := range opts {
		o(s)
	}
	if s.PubMed == nil {
		pm, err := pubmed.NewClient(cfg.PubMed)
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("pubmed client: %w", err)
		}
		s.PubMed = pm
	}
	// Tavily refuses to construct without a key, so it stays optional.
	if s.Tavily == nil && cfg.Tavily.APIKey != "" {
		tv, err := tavily.NewClient(cfg.Tavily)
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("tavily client: %w", err)
		}
		s.Tavily = tv
	}
	if err := os.MkdirAll(s.uploadsDir(), 0o755); err != nil {
		st.Close()
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return s, nil
}

// Close releases resources.
func (s *Service) Close() error {
	if s.Audit != nil {
		s.Audit.Close()
	}
	if s.Metrics != nil {
		s.Metrics.Close()
	}
	return s.Store.Close()
}

func (s *Service) uploadsDir() string {
	return filepath.Join(s.Config.DataDir, "uploads")
}

func (s *Service) intakesDir() string {
	return filepath.Join(s.Config.DataDir, "intakes")
}

// saveUpload copies an uploaded stream into the uploads dir under a fresh
// name that keeps the original extension (docpipe detects format by it),
// hashing as it writes.
func (s *Service) saveUpload(name string, r io.Reader) (path, sum string, size int64, err error) {
	ext := filepath.Ext(name)
	path = filepath.Join(s.uploadsDir(), s.newUploadID()+ext)

	f, err := os.Create(path)
	if err != nil {
		return "", "", 0, fmt.Errorf("create upload: %w", err)
	}
	h := sha256.New()
	size, err = io.Copy(io.MultiWriter(f, h), io.LimitReader(r, s.Config.MaxFileBytes()+1))
	cerr := f.Close()
	if err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return "", "", 0, fmt.Errorf("write upload: %w", err)
	}
	if size > s.Config.MaxFileBytes() {
		os.Remove(path)
		return "", "", 0, fmt.Errorf("file exceeds max size (%d MB)", s.Config.MaxFileMB)
	}
	return path, hex.EncodeToString(h.Sum(nil)), size, nil
}

// ParseResult is the response payload for the CRF and protocol endpoints.
type ParseResult struct {
	Run       *store.Run         `json:"run"`
	Variables []crf.Variable     `json:"variables,omitempty"`
	Stats     *crf.Stats         `json:"stats,omitempty"`
	Protocol  *protocol.Protocol `json:"protocol,omitempty"`
	Findings  []validate.Finding `json:"findings,omitempty"`
}

// ParseCRF extracts the document at path and records a CRF (or CRF spec)
// run with its variables.
func (s *Service) ParseCRF(ctx context.Context, kind, path, origName, sum string, size int64) (*ParseResult, error) {
	started := time.Now()

	doc, err := s.Pipe.Extract(ctx, path)
	if err != nil {
		s.auditParse(ctx, kind, origName, nil, err, time.Since(started))
		return nil, err
	}

	var result *crf.Result
	if kind == store.KindCRFSpec {
		result = crf.ParseSpec(doc)
	} else {
		result = crf.Parse(doc)
	}

	run, err := s.recordRun(ctx, kind, origName, sum, size, result.Stats)
	if err != nil {
		return nil, err
	}
	if err := s.Store.SaveVariables(ctx, run.ID, result.Variables); err != nil {
		return nil, fmt.Errorf("save variables: %w", err)
	}

	elapsed := time.Since(started)
	s.auditParse(ctx, kind, origName, result.Stats, nil, elapsed)
	s.event(ctx, "run.created", run.ID, kind+"_parse", true)
	s.metric("parse_duration_ms", float64(elapsed.Milliseconds()), "ms")
	s.metric("variables_extracted", float64(len(result.Variables)), "count")

	stats := result.Stats
	return &ParseResult{Run: run, Variables: result.Variables, Stats: &stats}, nil
}

// ParseProtocol extracts the document at path and records a protocol run.
func (s *Service) ParseProtocol(ctx context.Context, path, origName, sum string, size int64) (*ParseResult, error) {
	started := time.Now()

	doc, err := s.Pipe.Extract(ctx, path)
	if err != nil {
		s.auditParse(ctx, store.KindProtocol, origName, nil, err, time.Since(started))
		return nil, err
	}
	proto := protocol.Parse(doc)

	run, err := s.recordRun(ctx, store.KindProtocol, origName, sum, size, proto)
	if err != nil {
		return nil, err
	}

	elapsed := time.Since(started)
	s.auditParse(ctx, store.KindProtocol, origName, proto, nil, elapsed)
	s.event(ctx, "run.created", run.ID, "protocol_parse", true)
	s.metric("parse_duration_ms", float64(elapsed.Milliseconds()), "ms")

	return &ParseResult{Run: run, Protocol: proto}, nil
}

// ValidateDataset loads the dataset and rules from the given paths, applies
// the rules, and records a validation run with its findings.
func (s *Service) ValidateDataset(ctx context.Context, dataPath, rulesPath, origName, sum string, size int64) (*ParseResult, error) {
	started := time.Now()

	ds, err := validate.Load(dataPath)
	if err != nil {
		s.auditParse(ctx, store.KindValidate, origName, nil, err, time.Since(started))
		return nil, err
	}
	rules, err := validate.LoadRules(rulesPath)
	if err != nil {
		s.auditParse(ctx, store.KindValidate, origName, nil, err, time.Since(started))
		return nil, err
	}
	findings, err := rules.Apply(ds)
	if err != nil {
		s.auditParse(ctx, store.KindValidate, origName, nil, err, time.Since(started))
		return nil, err
	}

	summary := map[string]int{"rows": len(ds.Rows), "findings": len(findings)}
	run, err := s.recordRun(ctx, store.KindValidate, origName, sum, size, summary)
	if err != nil {
		return nil, err
	}
	if err := s.Store.SaveFindings(ctx, run.ID, findings); err != nil {
		return nil, fmt.Errorf("save findings: %w", err)
	}

	elapsed := time.Since(started)
	s.auditParse(ctx, store.KindValidate, origName, summary, nil, elapsed)
	s.event(ctx, "run.created", run.ID, "validate", true)
	s.metric("validation_findings", float64(len(findings)), "count")

	return &ParseResult{Run: run, Findings: findings}, nil
}

func (s *Service) recordRun(ctx context.Context, kind, filename, sum string, size int64, stats any) (*store.Run, error) {
	statsJSON, _ := json.Marshal(stats)
	run := &store.Run{
		ID:        s.NewID(),
		Kind:      kind,
		Filename:  filename,
		SHA256:    sum,
		SizeBytes: size,
		Stats:     string(statsJSON),
	}
	if err := s.Store.CreateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("create run: %w", err)
	}
	return run, nil
}

func (s *Service) auditParse(ctx context.Context, operation, filename string, result any, err error, duration time.Duration) {
	if s.Audit == nil {
		return
	}
	entry := s.Audit.Entry("service", operation, map[string]string{"file": filename}, result, err, duration)
	entry.UserID = kit.GetUserID(ctx)
	entry.RequestID = kit.GetRequestID(ctx)
	s.Audit.LogAsync(entry)
}

func (s *Service) event(ctx context.Context, eventType, runID, action string, success bool) {
	if s.Events == nil {
		return
	}
	s.Events.Log(ctx, observability.Event{
		EventType: eventType,
		RunID:     runID,
		Action:    action,
		Success:   success,
	})
}

func (s *Service) metric(name string, value float64, unit string) {
	if s.Metrics == nil {
		return
	}
	s.Metrics.Record(name, value, unit)
}
