package service

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/veskar/trialkit/chunker"
	"github.com/veskar/trialkit/guard"
	"github.com/veskar/trialkit/store"
)

// intakeResponse describes a reassembled chunked upload. When a parse kind
// was requested, Result carries the parse outcome.
type intakeResponse struct {
	IntakeID string       `json:"intake_id"`
	Filename string       `json:"filename"`
	SHA256   string       `json:"sha256"`
	Size     int64        `json:"size_bytes"`
	Parts    int          `json:"parts"`
	Result   *ParseResult `json:"result,omitempty"`
}

// handleChunkedIntake accepts a multipart form carrying a chunker manifest
// ("manifest" field) plus one file field per part, reassembles and verifies
// the original document, and optionally parses it right away when a "kind"
// form value (crf, crfspec, protocol) is present. Large protocols and CRFs
// arrive this way when a single POST would hit proxy body limits.
func (s *Service) handleChunkedIntake(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(s.Config.MaxFileBytes()); err != nil {
		s.writeError(w, r, http.StatusBadRequest, fmt.Errorf("parse form: %w", err))
		return
	}

	manifestField := r.FormValue("manifest")
	if manifestField == "" {
		s.writeError(w, r, http.StatusBadRequest, fmt.Errorf("manifest form value is required"))
		return
	}
	var manifest chunker.Manifest
	if err := json.Unmarshal([]byte(manifestField), &manifest); err != nil {
		s.writeError(w, r, http.StatusBadRequest, fmt.Errorf("decode manifest: %w", err))
		return
	}
	if len(manifest.Parts) == 0 {
		s.writeError(w, r, http.StatusBadRequest, fmt.Errorf("manifest lists no parts"))
		return
	}

	intakeID := s.newIntakeID()
	intakeDir := filepath.Join(s.intakesDir(), intakeID)
	if err := os.MkdirAll(intakeDir, 0o755); err != nil {
		s.writeError(w, r, http.StatusInternalServerError, fmt.Errorf("create intake dir: %w", err))
		return
	}
	defer os.RemoveAll(intakeDir)

	if err := writeManifestFile(intakeDir, &manifest); err != nil {
		s.writeError(w, r, http.StatusInternalServerError, err)
		return
	}

	// Persist each uploaded part under its manifest name. Part names are
	// attacker-controlled, so contain them to the intake dir.
	for _, part := range manifest.Parts {
		dst, err := guard.ContainPath(intakeDir, part.FileName)
		if err != nil {
			s.writeError(w, r, http.StatusBadRequest, fmt.Errorf("part %q: %w", part.FileName, err))
			return
		}
		src, _, err := r.FormFile(part.FileName)
		if err != nil {
			s.writeError(w, r, http.StatusBadRequest, fmt.Errorf("missing part %q: %w", part.FileName, err))
			return
		}
		err = copyToFile(dst, src)
		src.Close()
		if err != nil {
			s.writeError(w, r, http.StatusInternalServerError, fmt.Errorf("write part %q: %w", part.FileName, err))
			return
		}
	}

	outPath := filepath.Join(s.uploadsDir(), intakeID+filepath.Ext(manifest.OriginalName))
	if err := chunker.Join(intakeDir, outPath, nil); err != nil {
		s.writeError(w, r, http.StatusUnprocessableEntity, fmt.Errorf("reassemble: %w", err))
		return
	}

	resp := &intakeResponse{
		IntakeID: intakeID,
		Filename: manifest.OriginalName,
		SHA256:   manifest.OriginalSHA256,
		Size:     manifest.OriginalSize,
		Parts:    len(manifest.Parts),
	}

	kind := r.FormValue("kind")
	if kind == "" {
		defer os.Remove(outPath)
		s.event(r.Context(), "intake.assembled", intakeID, "chunked_intake", true)
		s.writeJSON(w, http.StatusCreated, resp)
		return
	}

	defer os.Remove(outPath)
	var result *ParseResult
	var err error
	switch kind {
	case store.KindCRF, store.KindCRFSpec:
		result, err = s.ParseCRF(r.Context(), kind, outPath, manifest.OriginalName, manifest.OriginalSHA256, manifest.OriginalSize)
	case store.KindProtocol:
		result, err = s.ParseProtocol(r.Context(), outPath, manifest.OriginalName, manifest.OriginalSHA256, manifest.OriginalSize)
	default:
		s.writeError(w, r, http.StatusBadRequest, fmt.Errorf("unsupported kind %q", kind))
		return
	}
	if err != nil {
		s.writeError(w, r, http.StatusUnprocessableEntity, err)
		return
	}
	resp.Result = result
	s.writeJSON(w, http.StatusCreated, resp)
}

func writeManifestFile(dir string, m *chunker.Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, chunker.ManifestName), data, 0o644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}

func copyToFile(path string, r io.Reader) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	_, err = io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	return err
}
