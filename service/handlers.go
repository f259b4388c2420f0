package service

import (
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/veskar/trialkit/export"
	"github.com/veskar/trialkit/kit"
	"github.com/veskar/trialkit/observability"
	"github.com/veskar/trialkit/store"
)

func (s *Service) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.Logger.Error("encode response", "error", err)
	}
}

func (s *Service) writeError(w http.ResponseWriter, r *http.Request, status int, err error) {
	s.Logger.Error("request failed",
		"path", r.URL.Path,
		"status", status,
		"request_id", kit.GetRequestID(r.Context()),
		"error", err)
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}

// receiveFile pulls the named multipart file field, stores it under the
// uploads dir, and returns its local path plus provenance.
func (s *Service) receiveFile(r *http.Request, field string) (path, origName, sum string, size int64, err error) {
	if err := r.ParseMultipartForm(s.Config.MaxFileBytes()); err != nil {
		return "", "", "", 0, fmt.Errorf("parse form: %w", err)
	}
	file, header, err := r.FormFile(field)
	if err != nil {
		return "", "", "", 0, fmt.Errorf("missing %q field: %w", field, err)
	}
	defer file.Close()
	path, sum, size, err = s.saveUpload(header.Filename, file)
	return path, header.Filename, sum, size, err
}

func closeQuietly(f multipart.File) {
	if f != nil {
		f.Close()
	}
}

func (s *Service) handleExtract(w http.ResponseWriter, r *http.Request) {
	path, _, _, _, err := s.receiveFile(r, "file")
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	defer os.Remove(path)

	doc, err := s.Pipe.Extract(r.Context(), path)
	if err != nil {
		s.writeError(w, r, http.StatusUnprocessableEntity, err)
		return
	}
	s.writeJSON(w, http.StatusOK, doc)
}

func (s *Service) handleCRF(w http.ResponseWriter, r *http.Request) {
	s.handleCRFKind(w, r, store.KindCRF)
}

func (s *Service) handleCRFSpec(w http.ResponseWriter, r *http.Request) {
	s.handleCRFKind(w, r, store.KindCRFSpec)
}

func (s *Service) handleCRFKind(w http.ResponseWriter, r *http.Request, kind string) {
	path, origName, sum, size, err := s.receiveFile(r, "file")
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	defer os.Remove(path)

	result, err := s.ParseCRF(r.Context(), kind, path, origName, sum, size)
	if err != nil {
		s.writeError(w, r, http.StatusUnprocessableEntity, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, result)
}

func (s *Service) handleProtocol(w http.ResponseWriter, r *http.Request) {
	path, origName, sum, size, err := s.receiveFile(r, "file")
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	defer os.Remove(path)

	result, err := s.ParseProtocol(r.Context(), path, origName, sum, size)
	if err != nil {
		s.writeError(w, r, http.StatusUnprocessableEntity, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, result)
}

func (s *Service) handleValidate(w http.ResponseWriter, r *http.Request) {
	dataPath, origName, sum, size, err := s.receiveFile(r, "data")
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	defer os.Remove(dataPath)

	rulesFile, _, err := r.FormFile("rules")
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, fmt.Errorf("missing \"rules\" field: %w", err))
		return
	}
	rulesPath, _, _, err := s.saveUpload("rules.yaml", rulesFile)
	closeQuietly(rulesFile)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	defer os.Remove(rulesPath)

	result, err := s.ValidateDataset(r.Context(), dataPath, rulesPath, origName, sum, size)
	if err != nil {
		s.writeError(w, r, http.StatusUnprocessableEntity, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, result)
}

type fetchRequest struct {
	URL string `json:"url"`
}

func (s *Service) handleFetch(w http.ResponseWriter, r *http.Request) {
	if s.Fetcher == nil {
		s.writeError(w, r, http.StatusNotImplemented, fmt.Errorf("web fetching is not configured"))
		return
	}
	var req fetchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, http.StatusBadRequest, fmt.Errorf("decode body: %w", err))
		return
	}
	if req.URL == "" {
		s.writeError(w, r, http.StatusBadRequest, fmt.Errorf("url is required"))
		return
	}

	doc, page, err := s.Fetcher.Document(r.Context(), req.URL)
	if err != nil {
		s.writeError(w, r, http.StatusBadGateway, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"page": page, "document": doc})
}

func (s *Service) handleListRuns(w http.ResponseWriter, r *http.Request) {
	kind := r.URL.Query().Get("kind")
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.writeError(w, r, http.StatusBadRequest, fmt.Errorf("invalid limit %q", v))
			return
		}
		limit = n
	}

	runs, err := s.Store.ListRuns(r.Context(), kind, limit)
	if err != nil {
		s.writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (s *Service) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	run, err := s.Store.GetRun(r.Context(), id)
	if err != nil {
		s.writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	if run == nil {
		s.writeError(w, r, http.StatusNotFound, fmt.Errorf("run %s not found", id))
		return
	}
	s.writeJSON(w, http.StatusOK, run)
}

func (s *Service) handleRunVariables(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	run, err := s.Store.GetRun(r.Context(), id)
	if err != nil {
		s.writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	if run == nil {
		s.writeError(w, r, http.StatusNotFound, fmt.Errorf("run %s not found", id))
		return
	}

	vars, err := s.Store.Variables(r.Context(), id)
	if err != nil {
		s.writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"run": run, "variables": vars})
}

func (s *Service) handleRunExport(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}

	run, err := s.Store.GetRun(r.Context(), id)
	if err != nil {
		s.writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	if run == nil {
		s.writeError(w, r, http.StatusNotFound, fmt.Errorf("run %s not found", id))
		return
	}

	var data []byte
	switch run.Kind {
	case store.KindValidate:
		findings, ferr := s.Store.Findings(r.Context(), id)
		if ferr != nil {
			s.writeError(w, r, http.StatusInternalServerError, ferr)
			return
		}
		data, err = export.Findings(format, findings)
	default:
		vars, verr := s.Store.Variables(r.Context(), id)
		if verr != nil {
			s.writeError(w, r, http.StatusInternalServerError, verr)
			return
		}
		data, err = export.Variables(format, vars)
	}
	if err != nil {
		s.writeError(w, r, http.StatusInternalServerError, err)
		return
	}

	s.event(r.Context(), "run.exported", id, "export_"+string(format), true)
	s.metric("export_bytes", float64(len(data)), "bytes")

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%s_%s.%s", run.Kind, id, format))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	}

	if err := s.Store.DB().PingContext(r.Context()); err != nil {
		status["status"] = "degraded"
		status["db_error"] = err.Error()
		s.writeJSON(w, http.StatusServiceUnavailable, status)
		return
	}

	if s.ObsDB != nil {
		// The heartbeat shares the observability DB; staleness means the
		// background writer died even though HTTP is still answering.
		hb, err := observability.LatestHeartbeat(r.Context(), s.ObsDB, "trialkitd", 45*time.Second)
		if err == nil && hb != nil {
			status["heartbeat"] = hb
			if !hb.Alive {
				status["status"] = "degraded"
			}
		}
	}

	s.writeJSON(w, http.StatusOK, status)
}
