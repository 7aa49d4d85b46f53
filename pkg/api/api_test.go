package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/dalili-app/dalili/pkg/area"
	"github.com/dalili-app/dalili/pkg/catalog"
	"github.com/dalili-app/dalili/pkg/db"
	"github.com/dalili-app/dalili/pkg/history"
	"github.com/dalili-app/dalili/pkg/index"
)

func setupTestServer(t *testing.T) *http.ServeMux {
	t.Helper()

	conn, err := db.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() {
		if err := conn.Close(); err != nil {
			t.Errorf("Failed to close test database: %v", err)
		}
	})

	store := index.NewStore(conn)
	base := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	listings := []index.Listing{
		{
			ID: "l1", Title: "شقة للايجار في الرياض", Slug: "apartment-riyadh",
			Price: 2500, Category: "real-estate", SubType: "للإيجار",
			AreaID: "riyadh", CreatedAt: base.Add(3 * time.Hour),
		},
		{
			ID: "l2", Title: "شقة مفروشة في جدة", Slug: "apartment-jeddah",
			Price: 3200, Category: "real-estate", SubType: "للإيجار",
			AreaID: "jeddah", CreatedAt: base.Add(2 * time.Hour),
		},
		{
			ID: "l3", Title: "سيارة تويوتا كامري", Slug: "toyota-camry",
			Price: 45000, Category: "vehicles", SubType: "مستعمل",
			AreaID: "riyadh", CreatedAt: base.Add(time.Hour),
		},
	}
	if err := store.PutBatch(context.Background(), listings); err != nil {
		t.Fatalf("Failed to store test listings: %v", err)
	}

	cat, err := catalog.Default()
	if err != nil {
		t.Fatalf("Failed to load default catalog: %v", err)
	}

	areas := area.NewProvider([]area.Area{
		{ID: "riyadh", Name: "الرياض"},
		{ID: "jeddah", Name: "جدة"},
	}, filepath.Join(t.TempDir(), "area.json"))

	historian := history.NewReconciler(
		history.NewDurableStore(conn),
		history.NewLocalCache(t.TempDir()),
	)

	server := NewServer(store, cat, areas, historian, 2)
	mux := http.NewServeMux()
	server.RegisterRoutes(mux)
	return mux
}

func doRequest(t *testing.T, mux *http.ServeMux, method, target string, body []byte, identity string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	if identity != "" {
		req.Header.Set("X-Dalili-User", identity)
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()

	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	return v
}

func TestSearchByText(t *testing.T) {
	mux := setupTestServer(t)

	rec := doRequest(t, mux, "GET", "/api/search?search=شقة", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	resp := decode[SearchResponse](t, rec)
	if resp.Total != 2 {
		t.Errorf("Expected 2 matches for شقة, got %d", resp.Total)
	}
	if resp.Query != "شقة" {
		t.Errorf("Expected query echo شقة, got %q", resp.Query)
	}
	if resp.Page != 1 {
		t.Errorf("Absent page param must read as page 1, got %d", resp.Page)
	}
}

func TestSearchCategoryFilter(t *testing.T) {
	mux := setupTestServer(t)

	rec := doRequest(t, mux, "GET", "/api/search?category=vehicles", nil, "")
	resp := decode[SearchResponse](t, rec)
	if resp.Total != 1 {
		t.Fatalf("Expected 1 vehicle listing, got %d", resp.Total)
	}
	if resp.Items[0].ID != "l3" {
		t.Errorf("Expected l3, got %s", resp.Items[0].ID)
	}
}

func TestSearchCategoryAllEqualsAbsent(t *testing.T) {
	mux := setupTestServer(t)

	all := decode[SearchResponse](t, doRequest(t, mux, "GET", "/api/search?category=all", nil, ""))
	absent := decode[SearchResponse](t, doRequest(t, mux, "GET", "/api/search", nil, ""))
	if all.Total != absent.Total {
		t.Errorf("category=all must match absent category: %d vs %d", all.Total, absent.Total)
	}
}

func TestSearchPriceBounds(t *testing.T) {
	mux := setupTestServer(t)

	rec := doRequest(t, mux, "GET", "/api/search?minPrice=3000&maxPrice=10000", nil, "")
	resp := decode[SearchResponse](t, rec)
	if resp.Total != 1 || resp.Items[0].ID != "l2" {
		t.Errorf("Expected only l2 in price band, got %+v", resp.Items)
	}
}

func TestSearchPagination(t *testing.T) {
	mux := setupTestServer(t)

	first := decode[SearchResponse](t, doRequest(t, mux, "GET", "/api/search", nil, ""))
	if len(first.Items) != 2 || !first.HasMore {
		t.Fatalf("Expected full first page with has_more, got %d items has_more=%v", len(first.Items), first.HasMore)
	}
	if first.Items[0].ID != "l1" {
		t.Errorf("Expected newest first, got %s", first.Items[0].ID)
	}
	if first.Cursor == "" {
		t.Fatal("Expected a cursor on a non-final page")
	}

	second := decode[SearchResponse](t, doRequest(t, mux, "GET", "/api/search?cursor="+first.Cursor, nil, ""))
	if len(second.Items) != 1 || second.Items[0].ID != "l3" {
		t.Errorf("Expected l3 on second page, got %+v", second.Items)
	}

	// Offset pagination works without a cursor.
	paged := decode[SearchResponse](t, doRequest(t, mux, "GET", "/api/search?page=2", nil, ""))
	if len(paged.Items) != 1 || paged.Items[0].ID != "l3" {
		t.Errorf("Expected l3 on page 2, got %+v", paged.Items)
	}
	if paged.HasMore {
		t.Error("Final page must not report has_more")
	}
}

func TestSearchNameSort(t *testing.T) {
	mux := setupTestServer(t)

	resp := decode[SearchResponse](t, doRequest(t, mux, "GET", "/api/search?sort=name&page=1&search=شقة", nil, ""))
	if len(resp.Items) != 2 {
		t.Fatalf("Expected 2 items, got %d", len(resp.Items))
	}
	if resp.Items[0].Title > resp.Items[1].Title {
		t.Errorf("Expected title ascending order, got %q before %q", resp.Items[0].Title, resp.Items[1].Title)
	}
}

func TestSearchMismatchedCursorRestartsFromFirstPage(t *testing.T) {
	mux := setupTestServer(t)

	first := decode[SearchResponse](t, doRequest(t, mux, "GET", "/api/search", nil, ""))
	if first.Cursor == "" {
		t.Fatal("Expected a cursor")
	}

	// The cursor was minted under recent sort; requesting name sort with
	// it must restart from the beginning.
	resp := decode[SearchResponse](t, doRequest(t, mux, "GET", "/api/search?sort=name&cursor="+first.Cursor, nil, ""))
	if resp.Page != 1 {
		t.Errorf("Mismatched cursor must reset to page 1, got %d", resp.Page)
	}
	if len(resp.Items) == 0 {
		t.Error("Expected first-page results after cursor reset")
	}
}

func TestSearchMalformedCursorRejected(t *testing.T) {
	mux := setupTestServer(t)

	rec := doRequest(t, mux, "GET", "/api/search?cursor=garbage", nil, "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for malformed cursor, got %d", rec.Code)
	}
}

func TestSearchAreaFallbackToSession(t *testing.T) {
	mux := setupTestServer(t)

	// Pin the session area, then search without an area param.
	body, _ := json.Marshal(SetAreaRequest{AreaID: strPtr("jeddah")})
	if rec := doRequest(t, mux, "PUT", "/api/areas/current", body, ""); rec.Code != http.StatusOK {
		t.Fatalf("Failed to set area: %d", rec.Code)
	}

	resp := decode[SearchResponse](t, doRequest(t, mux, "GET", "/api/search?search=شقة", nil, ""))
	if resp.Total != 1 || resp.Items[0].ID != "l2" {
		t.Errorf("Expected session area to scope the search to l2, got %+v", resp.Items)
	}

	// An explicit area param overrides the session.
	resp = decode[SearchResponse](t, doRequest(t, mux, "GET", "/api/search?search=شقة&area=riyadh", nil, ""))
	if resp.Total != 1 || resp.Items[0].ID != "l1" {
		t.Errorf("Expected explicit area to win, got %+v", resp.Items)
	}
}

func TestHistoryRoundTrip(t *testing.T) {
	mux := setupTestServer(t)

	body, _ := json.Marshal(RecordHistoryRequest{Query: "شقة"})
	rec := doRequest(t, mux, "POST", "/api/history", body, "user-1")
	if rec.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	resp := decode[SuggestResponse](t, doRequest(t, mux, "GET", "/api/suggest", nil, "user-1"))
	if resp.Count != 1 || resp.Suggestions[0].Query != "شقة" {
		t.Fatalf("Expected شقة suggestion, got %+v", resp.Suggestions)
	}
	if resp.Suggestions[0].LocalOnly {
		t.Error("Identity-backed record must be durable")
	}

	target := fmt.Sprintf("/api/history/%s?text=%s", resp.Suggestions[0].ID, "شقة")
	if rec := doRequest(t, mux, "DELETE", target, nil, "user-1"); rec.Code != http.StatusNoContent {
		t.Fatalf("Expected 204, got %d", rec.Code)
	}

	resp = decode[SuggestResponse](t, doRequest(t, mux, "GET", "/api/suggest", nil, "user-1"))
	if resp.Count != 0 {
		t.Errorf("Expected empty history after delete, got %+v", resp.Suggestions)
	}
}

func TestHistoryAnonymousUsesLocalCache(t *testing.T) {
	mux := setupTestServer(t)

	body, _ := json.Marshal(RecordHistoryRequest{Query: "سيارة"})
	if rec := doRequest(t, mux, "POST", "/api/history", body, ""); rec.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d", rec.Code)
	}

	resp := decode[SuggestResponse](t, doRequest(t, mux, "GET", "/api/suggest", nil, ""))
	if resp.Count != 1 || !resp.Suggestions[0].LocalOnly {
		t.Errorf("Anonymous history must be local-only, got %+v", resp.Suggestions)
	}
}

func TestHistoryRecordRequiresQuery(t *testing.T) {
	mux := setupTestServer(t)

	body, _ := json.Marshal(RecordHistoryRequest{})
	if rec := doRequest(t, mux, "POST", "/api/history", body, "user-1"); rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for missing query, got %d", rec.Code)
	}
}

func TestCatalogEndpoints(t *testing.T) {
	mux := setupTestServer(t)

	resp := decode[CatalogResponse](t, doRequest(t, mux, "GET", "/api/catalog", nil, ""))
	if resp.Count == 0 {
		t.Fatal("Expected categories in the default catalog")
	}

	rec := doRequest(t, mux, "GET", "/api/catalog/real-estate/fields", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	fields := decode[FieldsResponse](t, rec)
	if len(fields.Fields) == 0 {
		t.Error("Expected resolved facet fields for real-estate")
	}

	if rec := doRequest(t, mux, "GET", "/api/catalog/no-such/fields", nil, ""); rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown category, got %d", rec.Code)
	}
}

func TestAreaTriState(t *testing.T) {
	mux := setupTestServer(t)

	// Fresh provider: not initialized yet.
	current := decode[CurrentAreaResponse](t, doRequest(t, mux, "GET", "/api/areas/current", nil, ""))
	if current.Initialized {
		t.Error("Fresh session must not be initialized")
	}

	// Explicit all-areas choice.
	body, _ := json.Marshal(SetAreaRequest{AreaID: nil})
	current = decode[CurrentAreaResponse](t, doRequest(t, mux, "PUT", "/api/areas/current", body, ""))
	if !current.Initialized || current.Area != nil {
		t.Errorf("Expected initialized all-areas state, got %+v", current)
	}

	// Concrete area choice.
	body, _ = json.Marshal(SetAreaRequest{AreaID: strPtr("riyadh")})
	current = decode[CurrentAreaResponse](t, doRequest(t, mux, "PUT", "/api/areas/current", body, ""))
	if current.Area == nil || current.Area.ID != "riyadh" {
		t.Errorf("Expected riyadh selected, got %+v", current)
	}

	body, _ = json.Marshal(SetAreaRequest{AreaID: strPtr("no-such")})
	if rec := doRequest(t, mux, "PUT", "/api/areas/current", body, ""); rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown area, got %d", rec.Code)
	}
}

func TestListAreas(t *testing.T) {
	mux := setupTestServer(t)

	resp := decode[ListAreasResponse](t, doRequest(t, mux, "GET", "/api/areas", nil, ""))
	if resp.Count != 2 {
		t.Errorf("Expected 2 areas, got %d", resp.Count)
	}
}

func TestHealth(t *testing.T) {
	mux := setupTestServer(t)

	rec := doRequest(t, mux, "GET", "/health", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	resp := decode[HealthResponse](t, rec)
	if resp.Status != "ok" || resp.Version == "" {
		t.Errorf("Unexpected health payload: %+v", resp)
	}
}

func strPtr(s string) *string { return &s }
