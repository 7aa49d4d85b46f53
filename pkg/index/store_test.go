package index

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/dalili-app/dalili/pkg/db"
	"github.com/dalili-app/dalili/pkg/query"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	database, err := db.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	t.Cleanup(func() {
		if err := database.Close(); err != nil {
			t.Errorf("closing database: %v", err)
		}
	})
	return NewStore(database)
}

func testListing(i int, category, areaID string, price float64, createdAt time.Time) Listing {
	return Listing{
		ID:          fmt.Sprintf("listing-%03d", i),
		Title:       fmt.Sprintf("Listing %03d", i),
		Slug:        fmt.Sprintf("listing-%03d", i),
		Description: "a test listing",
		Price:       price,
		Category:    category,
		AreaID:      areaID,
		CreatedAt:   createdAt,
	}
}

func TestPutAndGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	rating := 4.5
	in := Listing{
		ID:          "apt-1",
		Title:       "شقة مفروشة للإيجار",
		Slug:        "furnished-apartment",
		Description: "شقة غرفتين وصالة",
		Price:       2500,
		Category:    "real-estate",
		SubType:     "شقق للإيجار",
		AreaID:      "downtown",
		Rating:      &rating,
		Attributes:  map[string]string{"rooms": "2", "furnished": "true"},
		CreatedAt:   time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
	}
	if err := store.Put(ctx, in); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := store.Get(ctx, "apt-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got == nil {
		t.Fatal("expected listing, got nil")
	}
	if got.Title != in.Title || got.SubType != in.SubType {
		t.Errorf("round trip mismatch: %+v", got)
	}
	if got.Rating == nil || *got.Rating != rating {
		t.Errorf("rating not preserved: %v", got.Rating)
	}
	if got.Attributes["rooms"] != "2" {
		t.Errorf("attributes not preserved: %v", got.Attributes)
	}
}

func TestGetMissing(t *testing.T) {
	store := newTestStore(t)

	got, err := store.Get(context.Background(), "nope")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil for missing listing, got %+v", got)
	}
}

func TestSearchFreeText(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	listings := []Listing{
		{ID: "a", Title: "موبايل سامسونج", Slug: "a", Category: "electronics", CreatedAt: base.Add(time.Hour)},
		{ID: "b", Title: "موبايل ايفون مستعمل", Slug: "b", Category: "electronics", CreatedAt: base.Add(2 * time.Hour)},
		{ID: "c", Title: "لابتوب للبيع", Slug: "c", Category: "electronics", CreatedAt: base.Add(3 * time.Hour)},
	}
	if err := store.PutBatch(ctx, listings); err != nil {
		t.Fatalf("PutBatch: %v", err)
	}

	page, err := store.Search(ctx, query.Query{Text: "موبايل", PageSize: 10}, query.SortRecent, nil)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if page.Total != 2 {
		t.Errorf("expected total 2, got %d", page.Total)
	}
	if len(page.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(page.Items))
	}
	// Newest first under SortRecent.
	if page.Items[0].ID != "b" || page.Items[1].ID != "a" {
		t.Errorf("expected b then a, got %s then %s", page.Items[0].ID, page.Items[1].ID)
	}
}

func TestSearchSubMinimumTextIsBrowse(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Put(ctx, testListing(1, "vehicles", "", 100, time.Now().UTC())); err != nil {
		t.Fatalf("Put: %v", err)
	}

	// One character of text must be treated as no query: the browse
	// result comes back rather than an FTS mismatch.
	page, err := store.Search(ctx, query.Query{Text: "x", PageSize: 10}, query.SortRecent, nil)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if page.Total != 1 {
		t.Errorf("expected sub-minimum text to browse all listings, got total %d", page.Total)
	}
}

func TestSearchFilters(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	listings := []Listing{
		testListing(1, "vehicles", "downtown", 15000, base.Add(1*time.Hour)),
		testListing(2, "vehicles", "north", 8000, base.Add(2*time.Hour)),
		testListing(3, "real-estate", "downtown", 120000, base.Add(3*time.Hour)),
	}
	if err := store.PutBatch(ctx, listings); err != nil {
		t.Fatalf("PutBatch: %v", err)
	}

	tests := []struct {
		name    string
		q       query.Query
		wantIDs []string
	}{
		{"category", query.Query{Category: "vehicles", PageSize: 10}, []string{"listing-002", "listing-001"}},
		{"category all ignored", query.Query{Category: "all", PageSize: 10}, []string{"listing-003", "listing-002", "listing-001"}},
		{"area", query.Query{AreaID: "downtown", PageSize: 10}, []string{"listing-003", "listing-001"}},
		{"min price", query.Query{MinPrice: f(10000), PageSize: 10}, []string{"listing-003", "listing-001"}},
		{"price band", query.Query{MinPrice: f(5000), MaxPrice: f(20000), PageSize: 10}, []string{"listing-002", "listing-001"}},
		{"combined", query.Query{Category: "vehicles", AreaID: "north", PageSize: 10}, []string{"listing-002"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, err := store.Search(ctx, tt.q, query.SortRecent, nil)
			if err != nil {
				t.Fatalf("Search: %v", err)
			}
			if len(page.Items) != len(tt.wantIDs) {
				t.Fatalf("expected %d items, got %d", len(tt.wantIDs), len(page.Items))
			}
			for i, id := range tt.wantIDs {
				if page.Items[i].ID != id {
					t.Errorf("item %d: expected %s, got %s", i, id, page.Items[i].ID)
				}
			}
			if page.Total != len(tt.wantIDs) {
				t.Errorf("expected total %d, got %d", len(tt.wantIDs), page.Total)
			}
		})
	}
}

func TestSearchSortName(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC()
	listings := []Listing{
		{ID: "1", Title: "Cherry", Slug: "1", Category: "c", CreatedAt: now},
		{ID: "2", Title: "Apple", Slug: "2", Category: "c", CreatedAt: now.Add(time.Hour)},
		{ID: "3", Title: "Banana", Slug: "3", Category: "c", CreatedAt: now.Add(2 * time.Hour)},
	}
	if err := store.PutBatch(ctx, listings); err != nil {
		t.Fatalf("PutBatch: %v", err)
	}

	page, err := store.Search(ctx, query.Query{PageSize: 10}, query.SortName, nil)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	want := []string{"Apple", "Banana", "Cherry"}
	for i, title := range want {
		if page.Items[i].Title != title {
			t.Errorf("position %d: expected %s, got %s", i, title, page.Items[i].Title)
		}
	}
}

func TestSearchCursorRecent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	var listings []Listing
	for i := 1; i <= 5; i++ {
		listings = append(listings, testListing(i, "c", "", 0, base.Add(time.Duration(i)*time.Hour)))
	}
	if err := store.PutBatch(ctx, listings); err != nil {
		t.Fatalf("PutBatch: %v", err)
	}

	first, err := store.Search(ctx, query.Query{PageSize: 2}, query.SortRecent, nil)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(first.Items) != 2 || first.Total != 5 {
		t.Fatalf("unexpected first page: %d items, total %d", len(first.Items), first.Total)
	}

	last := first.Items[len(first.Items)-1]
	cursor := &query.Cursor{Sort: query.SortRecent, Key: last.CreatedAt.Format(time.RFC3339Nano), ID: last.ID}

	second, err := store.Search(ctx, query.Query{PageSize: 2}, query.SortRecent, cursor)
	if err != nil {
		t.Fatalf("Search with cursor: %v", err)
	}
	if len(second.Items) != 2 {
		t.Fatalf("expected 2 items on second page, got %d", len(second.Items))
	}
	// No overlap and strictly older than the cursor boundary.
	for _, item := range second.Items {
		if !item.CreatedAt.Before(last.CreatedAt) {
			t.Errorf("item %s not older than cursor boundary", item.ID)
		}
	}
	// Total stays the full match count regardless of the cursor.
	if second.Total != 5 {
		t.Errorf("expected total 5 with cursor, got %d", second.Total)
	}
}

func TestSearchCursorWrongSortIgnored(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	for i := 1; i <= 3; i++ {
		if err := store.Put(ctx, testListing(i, "c", "", 0, base.Add(time.Duration(i)*time.Hour))); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}

	// A recency cursor presented under name sort must be ignored: the
	// result equals the unpaginated first page.
	staleCursor := &query.Cursor{Sort: query.SortRecent, Key: base.Add(2 * time.Hour).Format(time.RFC3339Nano)}
	page, err := store.Search(ctx, query.Query{PageSize: 10}, query.SortName, staleCursor)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(page.Items) != 3 {
		t.Errorf("expected full first page when cursor sort mismatches, got %d items", len(page.Items))
	}
}

func TestSearchOffsetPagination(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	for i := 1; i <= 5; i++ {
		if err := store.Put(ctx, testListing(i, "c", "", 0, base.Add(time.Duration(i)*time.Hour))); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}

	page2, err := store.Search(ctx, query.Query{Page: 2, PageSize: 2}, query.SortRecent, nil)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(page2.Items) != 2 {
		t.Fatalf("expected 2 items on page 2, got %d", len(page2.Items))
	}
	if page2.Items[0].ID != "listing-003" {
		t.Errorf("expected listing-003 first on page 2, got %s", page2.Items[0].ID)
	}
}

func TestPutReplacesExisting(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	l := testListing(1, "c", "", 100, time.Now().UTC())
	if err := store.Put(ctx, l); err != nil {
		t.Fatalf("Put: %v", err)
	}
	l.Title = "updated title"
	if err := store.Put(ctx, l); err != nil {
		t.Fatalf("second Put: %v", err)
	}

	page, err := store.Search(ctx, query.Query{PageSize: 10}, query.SortRecent, nil)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if page.Total != 1 {
		t.Errorf("expected replace semantics, got %d listings", page.Total)
	}
	if page.Items[0].Title != "updated title" {
		t.Errorf("expected updated title, got %s", page.Items[0].Title)
	}
}

func TestGetStats(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	if err := store.PutBatch(ctx, []Listing{
		testListing(1, "vehicles", "", 0, base),
		testListing(2, "vehicles", "", 0, base.Add(time.Hour)),
		testListing(3, "jobs", "", 0, base.Add(2*time.Hour)),
	}); err != nil {
		t.Fatalf("PutBatch: %v", err)
	}

	stats, err := store.GetStats(ctx)
	if err != nil {
		t.Fatalf("GetStats: %v", err)
	}
	if stats["total_listings"] != 3 {
		t.Errorf("expected 3 total listings, got %v", stats["total_listings"])
	}
	perCategory, ok := stats["listings_per_category"].(map[string]int)
	if !ok || perCategory["vehicles"] != 2 || perCategory["jobs"] != 1 {
		t.Errorf("unexpected per-category stats: %v", stats["listings_per_category"])
	}
}

func TestSearchCursorPagingWithDuplicateCreatedAt(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	// Batch imports routinely stamp many listings with one timestamp;
	// the id tiebreaker must keep them all reachable across pages.
	ts := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	listings := []Listing{
		testListing(1, "c", "", 0, ts),
		testListing(2, "c", "", 0, ts),
		testListing(3, "c", "", 0, ts),
	}
	if err := store.PutBatch(ctx, listings); err != nil {
		t.Fatalf("PutBatch: %v", err)
	}

	seen := map[string]bool{}
	var cursor *query.Cursor
	for pages := 0; pages < 5; pages++ {
		page, err := store.Search(ctx, query.Query{PageSize: 1}, query.SortRecent, cursor)
		if err != nil {
			t.Fatalf("Search: %v", err)
		}
		if len(page.Items) == 0 {
			break
		}
		for _, item := range page.Items {
			if seen[item.ID] {
				t.Fatalf("listing %s served twice", item.ID)
			}
			seen[item.ID] = true
		}
		last := page.Items[len(page.Items)-1]
		cursor = &query.Cursor{
			Sort: query.SortRecent,
			Key:  last.CreatedAt.UTC().Format(time.RFC3339Nano),
			ID:   last.ID,
		}
	}

	if len(seen) != 3 {
		t.Fatalf("expected all 3 listings across pages, got %d: %v", len(seen), seen)
	}
}

func TestSearchCursorPagingWithDuplicateTitles(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	listings := []Listing{
		{ID: "dup-1", Title: "شقة مفروشة", Slug: "dup-1", Category: "real-estate", CreatedAt: base},
		{ID: "dup-2", Title: "شقة مفروشة", Slug: "dup-2", Category: "real-estate", CreatedAt: base.Add(time.Hour)},
		{ID: "dup-3", Title: "شقة مفروشة", Slug: "dup-3", Category: "real-estate", CreatedAt: base.Add(2 * time.Hour)},
	}
	if err := store.PutBatch(ctx, listings); err != nil {
		t.Fatalf("PutBatch: %v", err)
	}

	seen := map[string]bool{}
	var cursor *query.Cursor
	for pages := 0; pages < 5; pages++ {
		page, err := store.Search(ctx, query.Query{PageSize: 1}, query.SortName, cursor)
		if err != nil {
			t.Fatalf("Search: %v", err)
		}
		if len(page.Items) == 0 {
			break
		}
		for _, item := range page.Items {
			if seen[item.ID] {
				t.Fatalf("listing %s served twice", item.ID)
			}
			seen[item.ID] = true
		}
		last := page.Items[len(page.Items)-1]
		cursor = &query.Cursor{Sort: query.SortName, Key: last.Title, ID: last.ID}
	}

	if len(seen) != 3 {
		t.Fatalf("expected all 3 listings across pages, got %d: %v", len(seen), seen)
	}
}

func f(v float64) *float64 { return &v }
