package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/dalili-app/dalili/pkg/history"
	"github.com/dalili-app/dalili/pkg/index"
	"github.com/dalili-app/dalili/pkg/pager"
	"github.com/dalili-app/dalili/pkg/query"
	"github.com/dalili-app/dalili/pkg/version"
)

func (s *Server) HandleSearch(w http.ResponseWriter, r *http.Request) {
	values := r.URL.Query()

	q := query.Parse(values)
	if q.PageSize <= 0 {
		q.PageSize = s.pageSize
	}
	sort := query.ParseSort(values.Get("sort"))

	cursor, err := query.ParseCursor(values.Get("cursor"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid cursor", err.Error())
		return
	}
	// A cursor minted under another sort order restarts from page one.
	if cursor != nil && cursor.Sort != sort {
		cursor = nil
		q.Page = 1
	}

	// Fall back to the session area scope unless the request pins one.
	if q.AreaID == "" && s.areas != nil {
		if current, ok := s.areas.Current(); ok && current != nil {
			q.AreaID = current.ID
		}
	}

	page, err := s.store.Search(r.Context(), q, sort, cursor)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "Search failed", err.Error())
		return
	}

	var hasMore bool
	if cursor != nil {
		// Keyset position is opaque, the next empty page settles the
		// boundary case.
		hasMore = len(page.Items) == q.PageSize
	} else {
		hasMore = q.Page*q.PageSize < page.Total
	}

	response := SearchResponse{
		Query:   q.EffectiveText(),
		Items:   page.Items,
		Total:   page.Total,
		Page:    q.Page,
		HasMore: hasMore,
	}
	if hasMore && len(page.Items) > 0 {
		response.Cursor = pager.After(page.Items[len(page.Items)-1], sort).String()
	}
	if response.Items == nil {
		response.Items = []index.Listing{}
	}

	s.writeJSON(w, http.StatusOK, response)
}

func (s *Server) HandleSuggest(w http.ResponseWriter, r *http.Request) {
	scope := history.ParseScope(r.URL.Query().Get("scope"))
	entries := s.historian.Load(r.Context(), identity(r), scope)
	s.writeJSON(w, http.StatusOK, suggestResponse(entries))
}

func (s *Server) HandleListHistory(w http.ResponseWriter, r *http.Request) {
	scope := history.ParseScope(r.URL.Query().Get("scope"))
	entries := s.historian.Load(r.Context(), identity(r), scope)
	s.writeJSON(w, http.StatusOK, suggestResponse(entries))
}

func (s *Server) HandleRecordHistory(w http.ResponseWriter, r *http.Request) {
	var req RecordHistoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid body", err.Error())
		return
	}
	if req.Query == "" {
		s.writeError(w, http.StatusBadRequest, "Missing query", "Field 'query' is required")
		return
	}

	scope := history.ParseScope(req.Scope)
	s.historian.Record(r.Context(), identity(r), scope, req.Query, req.Filters)

	entries := s.historian.Load(r.Context(), identity(r), scope)
	s.writeJSON(w, http.StatusCreated, suggestResponse(entries))
}

func (s *Server) HandleDeleteHistory(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		s.writeError(w, http.StatusBadRequest, "Invalid path", "History entry id is required")
		return
	}

	scope := history.ParseScope(r.URL.Query().Get("scope"))
	text := r.URL.Query().Get("text")
	s.historian.Delete(r.Context(), scope, id, text)

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) HandleCatalog(w http.ResponseWriter, r *http.Request) {
	categories := s.getCatalog().Categories()
	s.writeJSON(w, http.StatusOK, CatalogResponse{
		Categories: categories,
		Count:      len(categories),
	})
}

func (s *Server) HandleCatalogFields(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	current := s.getCatalog()
	cat, ok := current.Category(id)
	if !ok {
		s.writeError(w, http.StatusNotFound, "Category not found", fmt.Sprintf("Category '%s' does not exist", id))
		return
	}

	subType := r.URL.Query().Get("type")
	attrs := map[string]string{}
	if subType != "" && cat.SelectorKey != "" {
		attrs[cat.SelectorKey] = subType
	}

	s.writeJSON(w, http.StatusOK, FieldsResponse{
		Category: id,
		SubType:  subType,
		Fields:   current.ResolveFields(id, attrs),
	})
}

func (s *Server) HandleListAreas(w http.ResponseWriter, r *http.Request) {
	list := s.areas.List()
	areas := make([]AreaResponse, len(list))
	for i, a := range list {
		areas[i] = AreaResponse{ID: a.ID, Name: a.Name}
	}
	s.writeJSON(w, http.StatusOK, ListAreasResponse{Areas: areas, Count: len(areas)})
}

func (s *Server) HandleCurrentArea(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.currentAreaResponse())
}

func (s *Server) HandleSetCurrentArea(w http.ResponseWriter, r *http.Request) {
	var req SetAreaRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid body", err.Error())
		return
	}

	if req.AreaID == nil {
		s.areas.Clear()
	} else if !s.areas.SetByID(*req.AreaID) {
		s.writeError(w, http.StatusNotFound, "Area not found", fmt.Sprintf("Area '%s' does not exist", *req.AreaID))
		return
	}

	s.writeJSON(w, http.StatusOK, s.currentAreaResponse())
}

func (s *Server) currentAreaResponse() CurrentAreaResponse {
	current, initialized := s.areas.Current()
	response := CurrentAreaResponse{Initialized: initialized}
	if current != nil {
		response.Area = &AreaResponse{ID: current.ID, Name: current.Name}
	}
	return response
}

func (s *Server) HandleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.GetStats(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "Failed to retrieve stats", err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, stats)
}

func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC(),
		Version:   version.APIVersion(),
	})
}

func suggestResponse(entries []history.Entry) SuggestResponse {
	suggestions := make([]SuggestionResponse, len(entries))
	for i, e := range entries {
		suggestions[i] = SuggestionResponse{
			ID:        e.ID,
			Query:     e.Query,
			Scope:     string(e.Scope),
			LocalOnly: e.LocalOnly(),
			CreatedAt: e.CreatedAt,
		}
	}
	return SuggestResponse{Suggestions: suggestions, Count: len(suggestions)}
}
