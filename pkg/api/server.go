package api

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/dalili-app/dalili/pkg/area"
	"github.com/dalili-app/dalili/pkg/catalog"
	"github.com/dalili-app/dalili/pkg/history"
	"github.com/dalili-app/dalili/pkg/index"
	"github.com/dalili-app/dalili/pkg/log"
)

// identityHeader names the caller's authenticated user id. Authentication
// itself happens upstream; an absent header means an anonymous session.
const identityHeader = "X-Dalili-User"

var logger = log.ForComponent("api")

type Server struct {
	store     *index.Store
	areas     *area.Provider
	historian *history.Reconciler
	pageSize  int

	mu      sync.RWMutex
	catalog *catalog.Catalog
}

func NewServer(store *index.Store, cat *catalog.Catalog, areas *area.Provider, historian *history.Reconciler, pageSize int) *Server {
	if pageSize <= 0 {
		pageSize = index.DefaultPageSize
	}
	return &Server{
		store:     store,
		catalog:   cat,
		areas:     areas,
		historian: historian,
		pageSize:  pageSize,
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Errorf("encoding JSON response: %v", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, error, message string) {
	response := ErrorResponse{
		Error:   error,
		Message: message,
	}
	s.writeJSON(w, status, response)
}

// SetCatalog swaps the live catalog, used by config hot reload.
func (s *Server) SetCatalog(cat *catalog.Catalog) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.catalog = cat
}

func (s *Server) getCatalog() *catalog.Catalog {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.catalog
}

func identity(r *http.Request) string {
	return r.Header.Get(identityHeader)
}

func CorsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, "+identityHeader)

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
