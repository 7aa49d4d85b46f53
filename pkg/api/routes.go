package api

import (
	"net/http"
)

func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	// API routes with method-specific routing
	mux.HandleFunc("GET /api/search", s.HandleSearch)
	mux.HandleFunc("GET /api/suggest", s.HandleSuggest)
	mux.HandleFunc("GET /api/history", s.HandleListHistory)
	mux.HandleFunc("POST /api/history", s.HandleRecordHistory)
	mux.HandleFunc("DELETE /api/history/{id}", s.HandleDeleteHistory)
	mux.HandleFunc("GET /api/catalog", s.HandleCatalog)
	mux.HandleFunc("GET /api/catalog/{id}/fields", s.HandleCatalogFields)
	mux.HandleFunc("GET /api/areas", s.HandleListAreas)
	mux.HandleFunc("GET /api/areas/current", s.HandleCurrentArea)
	mux.HandleFunc("PUT /api/areas/current", s.HandleSetCurrentArea)
	mux.HandleFunc("GET /api/stats", s.HandleStats)
	mux.HandleFunc("GET /health", s.HandleHealth)
}
