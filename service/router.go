package service

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/veskar/trialkit/idgen"
)

// Router builds the chi router for the HTTP API.
func (s *Service) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestIDMiddleware(idgen.Prefixed("req_", idgen.Default)))

	// Health stays outside auth so probes work without credentials.
	r.Get("/v1/health", s.handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(authMiddleware(s.Config.APIKeys))

		r.Post("/v1/extract", s.handleExtract)
		r.Post("/v1/crf", s.handleCRF)
		r.Post("/v1/crfspec", s.handleCRFSpec)
		r.Post("/v1/protocol", s.handleProtocol)
		r.Post("/v1/validate", s.handleValidate)
		r.Post("/v1/fetch", s.handleFetch)

		r.Get("/v1/pubmed/search", s.handlePubMedSearch)
		r.Post("/v1/tavily/search", s.handleTavilySearch)

		r.Get("/v1/runs", s.handleListRuns)
		r.Get("/v1/runs/{id}", s.handleGetRun)
		r.Get("/v1/runs/{id}/variables", s.handleRunVariables)
		r.Get("/v1/runs/{id}/export", s.handleRunExport)

		r.Post("/v1/intake/chunked", s.handleChunkedIntake)
	})

	return r
}
