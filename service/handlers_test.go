package service

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/veskar/trialkit/chunker"
	"github.com/veskar/trialkit/store"
)

func newTestService(t *testing.T, opts ...Option) *Service {
	t.Helper()
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.DBPath = filepath.Join(dir, "runs.db")
	cfg.DataDir = filepath.Join(dir, "data")

	s, err := New(cfg, opts...)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// multipartRequest builds a POST with one file field under an explicit filename.
func multipartRequest(t *testing.T, url, field, filename string, content []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile(field, filename)
	if err != nil {
		t.Fatal(err)
	}
	fw.Write(content)
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, url, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestHealth(t *testing.T) {
	s := newTestService(t)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d", rec.Code)
	}
	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp["status"] != "ok" {
		t.Fatalf("health: got %v", resp)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID header")
	}
}

const crfText = "Sex of the subject [SEX] 1=Male 2=Female\n\nDate of birth [DOB] dd/mm/yyyy\n"

func TestCRFEndToEnd(t *testing.T) {
	s := newTestService(t)
	router := s.Router()

	req := multipartRequest(t, "/v1/crf", "file", "demo_crf.txt", []byte(crfText))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status: got %d, body %s", rec.Code, rec.Body.String())
	}
	var result ParseResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatal(err)
	}
	if result.Run == nil || result.Run.ID == "" {
		t.Fatalf("missing run: %+v", result)
	}
	if result.Run.Kind != store.KindCRF {
		t.Errorf("kind: got %q", result.Run.Kind)
	}
	if len(result.Variables) != 2 {
		t.Fatalf("variables: got %d (%+v)", len(result.Variables), result.Variables)
	}
	if result.Variables[0].Name != "SEX" {
		t.Errorf("first variable: got %q", result.Variables[0].Name)
	}

	// The run is listed and retrievable.
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/runs?kind=crf", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("list status: got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), result.Run.ID) {
		t.Error("run missing from listing")
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/runs/"+result.Run.ID+"/variables", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("variables status: got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "DOB") {
		t.Error("variables listing missing DOB")
	}

	// CSV export carries the extracted names.
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/runs/"+result.Run.ID+"/export?format=csv", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("export status: got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.Contains(ct, "csv") {
		t.Errorf("content type: got %q", ct)
	}
	if !strings.Contains(rec.Body.String(), "SEX") {
		t.Error("export missing SEX")
	}
}

func TestExtractEndpoint(t *testing.T) {
	s := newTestService(t)
	md := "# Study Protocol\n\nA phase III trial.\n"

	req := multipartRequest(t, "/v1/extract", "file", "protocol.md", []byte(md))
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, body %s", rec.Code, rec.Body.String())
	}
	var doc map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &doc); err != nil {
		t.Fatal(err)
	}
	if doc["title"] != "Study Protocol" {
		t.Errorf("title: got %v", doc["title"])
	}
}

func TestValidateEndpoint(t *testing.T) {
	s := newTestService(t)

	csvData := "SUBJID,AGE\nS001,34\nS002,190\n"
	rules := "rules:\n  - field: AGE\n    kind: range\n    min: 18\n    max: 99\n"

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, _ := mw.CreateFormFile("data", "dm.csv")
	fw.Write([]byte(csvData))
	fw, _ = mw.CreateFormFile("rules", "rules.yaml")
	fw.Write([]byte(rules))
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/v1/validate", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status: got %d, body %s", rec.Code, rec.Body.String())
	}
	var result ParseResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatal(err)
	}
	if len(result.Findings) != 1 {
		t.Fatalf("findings: got %d (%+v)", len(result.Findings), result.Findings)
	}
	if result.Findings[0].Row != 2 {
		t.Errorf("finding row: got %d", result.Findings[0].Row)
	}

	// Findings export works for validate runs.
	rec = httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/runs/"+result.Run.ID+"/export?format=json", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("export status: got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "AGE") {
		t.Error("findings export missing AGE")
	}
}

func TestGetRun_NotFound(t *testing.T) {
	s := newTestService(t)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/runs/run_missing", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status: got %d", rec.Code)
	}
}

func TestAPIKeyAuth(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("tk_secret"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}

	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.DBPath = filepath.Join(dir, "runs.db")
	cfg.DataDir = filepath.Join(dir, "data")
	cfg.APIKeys = []APIKey{{Name: "edc-loader", Hash: string(hash)}}

	s, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	router := s.Router()

	// No key.
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/runs", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("no key: got %d", rec.Code)
	}

	// Wrong key.
	req := httptest.NewRequest(http.MethodGet, "/v1/runs", nil)
	req.Header.Set("X-API-Key", "wrong")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong key: got %d", rec.Code)
	}

	// Valid key.
	req = httptest.NewRequest(http.MethodGet, "/v1/runs", nil)
	req.Header.Set("X-API-Key", "tk_secret")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("valid key: got %d, body %s", rec.Code, rec.Body.String())
	}

	// Health stays open.
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("health behind auth: got %d", rec.Code)
	}
}

func TestChunkedIntake(t *testing.T) {
	s := newTestService(t)

	// Split a CRF document into parts the way a client would.
	srcDir := t.TempDir()
	srcPath := filepath.Join(srcDir, "large_crf.txt")
	if err := os.WriteFile(srcPath, []byte(crfText), 0o644); err != nil {
		t.Fatal(err)
	}
	partsDir := filepath.Join(srcDir, "parts")
	if err := os.MkdirAll(partsDir, 0o755); err != nil {
		t.Fatal(err)
	}
	manifest, err := chunker.Split(srcPath, partsDir, 16, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(manifest.Parts) < 2 {
		t.Fatalf("expected multiple parts, got %d", len(manifest.Parts))
	}

	manifestJSON, err := json.Marshal(manifest)
	if err != nil {
		t.Fatal(err)
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	mw.WriteField("manifest", string(manifestJSON))
	mw.WriteField("kind", "crf")
	for _, part := range manifest.Parts {
		data, rerr := os.ReadFile(filepath.Join(partsDir, part.FileName))
		if rerr != nil {
			t.Fatal(rerr)
		}
		fw, werr := mw.CreateFormFile(part.FileName, part.FileName)
		if werr != nil {
			t.Fatal(werr)
		}
		fw.Write(data)
	}
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/v1/intake/chunked", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status: got %d, body %s", rec.Code, rec.Body.String())
	}
	var resp intakeResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.SHA256 != manifest.OriginalSHA256 {
		t.Errorf("sha256: got %q, want %q", resp.SHA256, manifest.OriginalSHA256)
	}
	if resp.Result == nil || len(resp.Result.Variables) != 2 {
		t.Fatalf("parse result: %+v", resp.Result)
	}
}

func TestChunkedIntake_RejectsTraversalPartName(t *testing.T) {
	s := newTestService(t)

	manifest := chunker.Manifest{
		OriginalName: "x.txt",
		OriginalSize: 4,
		Parts: []chunker.PartMeta{
			{Index: 0, FileName: "../escape.bin", SizeBytes: 4},
		},
	}
	manifestJSON, _ := json.Marshal(&manifest)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	mw.WriteField("manifest", string(manifestJSON))
	fw, _ := mw.CreateFormFile("../escape.bin", "../escape.bin")
	fw.Write([]byte("data"))
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/v1/intake/chunked", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d, body %s", rec.Code, rec.Body.String())
	}
}

func TestFetchEndpoint_Unconfigured(t *testing.T) {
	s := newTestService(t)
	body := strings.NewReader(`{"url":"https://example.com"}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/fetch", body)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusNotImplemented {
		t.Fatalf("status: got %d", rec.Code)
	}
}

func TestExport_BadFormat(t *testing.T) {
	s := newTestService(t)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/runs/run_x/export?format=pdf", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d", rec.Code)
	}
}

