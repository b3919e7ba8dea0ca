package api

import (
	"net/http"
)

// RegisterRoutes регистрирует все маршруты API.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	chain := Chain(
		RequestID(h.logger),
		Recovery(),
		Logging(),
	)

	// Definitions
	mux.Handle("POST /api/v1/validate", chain(http.HandlerFunc(h.Validate)))

	// Runs
	mux.Handle("GET /api/v1/runs", chain(http.HandlerFunc(h.ListRuns)))
	mux.Handle("POST /api/v1/runs", chain(http.HandlerFunc(h.CreateRun)))
	mux.Handle("GET /api/v1/runs/{id}", chain(http.HandlerFunc(h.GetRun)))
	mux.Handle("POST /api/v1/runs/{id}/resume", chain(http.HandlerFunc(h.ResumeRun)))
	mux.Handle("GET /api/v1/runs/{id}/graph", chain(http.HandlerFunc(h.GetRunGraph)))

	// Archive
	mux.Handle("GET /api/v1/history", chain(http.HandlerFunc(h.ListHistory)))
}
