package api

import (
	"time"

	"github.com/dalili-app/dalili/pkg/catalog"
	"github.com/dalili-app/dalili/pkg/index"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type SearchResponse struct {
	Query   string          `json:"query"`
	Items   []index.Listing `json:"items"`
	Total   int             `json:"total"`
	Page    int             `json:"page"`
	HasMore bool            `json:"has_more"`
	Cursor  string          `json:"cursor,omitempty"`
}

type SuggestionResponse struct {
	ID        string    `json:"id"`
	Query     string    `json:"query"`
	Scope     string    `json:"scope"`
	LocalOnly bool      `json:"local_only"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

type SuggestResponse struct {
	Suggestions []SuggestionResponse `json:"suggestions"`
	Count       int                  `json:"count"`
}

type RecordHistoryRequest struct {
	Query   string            `json:"query"`
	Scope   string            `json:"scope,omitempty"`
	Filters map[string]string `json:"filters,omitempty"`
}

type CatalogResponse struct {
	Categories []catalog.Category `json:"categories"`
	Count      int                `json:"count"`
}

type FieldsResponse struct {
	Category string              `json:"category"`
	SubType  string              `json:"sub_type,omitempty"`
	Fields   []catalog.FieldSpec `json:"fields"`
}

type AreaResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type ListAreasResponse struct {
	Areas []AreaResponse `json:"areas"`
	Count int            `json:"count"`
}

// CurrentAreaResponse is the tri-state area scope: Initialized false
// means no choice has been made yet; Initialized true with a nil Area
// means the explicit all-areas state.
type CurrentAreaResponse struct {
	Initialized bool          `json:"initialized"`
	Area        *AreaResponse `json:"area"`
}

type SetAreaRequest struct {
	AreaID *string `json:"area_id"`
}

type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version"`
}
