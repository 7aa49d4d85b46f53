package index

import (
	"context"

	"github.com/dalili-app/dalili/pkg/query"
)

// Page is one page of ranked results plus the total match count across
// all pages (computed without cursor or offset constraints).
type Page struct {
	Items []Listing
	Total int
}

// Fetcher is the result ranking/fetching contract consumed by the
// coordinator and the pager. Ranking internals are opaque to callers.
//
// Implementations must be idempotent and side-effect-free: issuing the
// same query twice returns equivalent pages and changes nothing.
//
// A nil cursor with q.Page > 1 requests offset pagination; a non-nil
// cursor requests keyset pagination from after the cursor's sort key. A
// cursor minted under a different sort order than the one requested must
// be ignored, restarting from the first page.
type Fetcher interface {
	Search(ctx context.Context, q query.Query, sort query.Sort, cursor *query.Cursor) (*Page, error)
}
