// Package pager turns the page-at-a-time fetcher contract into an
// incremental "load more" stream with keyset cursors.
package pager

import (
	"context"
	"fmt"
	"time"

	"github.com/dalili-app/dalili/pkg/index"
	"github.com/dalili-app/dalili/pkg/query"
)

// PageResult is one fetched page plus the stream bookkeeping callers
// render from.
type PageResult struct {
	Items     []index.Listing
	Total     int
	Fetched   int
	Exhausted bool
}

// Pager pulls successive pages for a fixed query, advancing a keyset
// cursor derived from the last item of each page. It is not safe for
// concurrent use.
type Pager struct {
	fetcher index.Fetcher
	q       query.Query
	sort    query.Sort

	cursor    *query.Cursor
	fetched   int
	total     int
	exhausted bool
}

// New builds a pager for a query. The query's Page field is ignored;
// the pager always streams from the first page.
func New(fetcher index.Fetcher, q query.Query, sort query.Sort) *Pager {
	q.Page = 1
	return &Pager{fetcher: fetcher, q: q, sort: sort}
}

// Resume builds a pager that continues from a previously minted cursor.
// A cursor minted under a different sort order is discarded and the
// stream restarts from the first page.
func Resume(fetcher index.Fetcher, q query.Query, sort query.Sort, cursor *query.Cursor) *Pager {
	p := New(fetcher, q, sort)
	if cursor != nil && cursor.Sort == sort {
		p.cursor = cursor
	}
	return p
}

// SetSort switches the sort order and resets the stream to the first
// page. Cursors from the old order are never carried across.
func (p *Pager) SetSort(sort query.Sort) {
	if sort == p.sort {
		return
	}
	p.sort = sort
	p.reset()
}

// SetQuery replaces the query and resets the stream.
func (p *Pager) SetQuery(q query.Query) {
	q.Page = 1
	p.q = q
	p.reset()
}

func (p *Pager) reset() {
	p.cursor = nil
	p.fetched = 0
	p.total = 0
	p.exhausted = false
}

// Exhausted reports whether the stream has served every match.
func (p *Pager) Exhausted() bool {
	return p.exhausted
}

// Cursor returns the token for the current stream position, or empty
// when no page has been fetched yet.
func (p *Pager) Cursor() string {
	if p.cursor == nil {
		return ""
	}
	return p.cursor.String()
}

// NextPage fetches the next page of the stream. Calling it after
// exhaustion returns an empty result without issuing a fetch.
func (p *Pager) NextPage(ctx context.Context) (*PageResult, error) {
	if p.exhausted {
		return &PageResult{Total: p.total, Fetched: p.fetched, Exhausted: true}, nil
	}

	page, err := p.fetcher.Search(ctx, p.q, p.sort, p.cursor)
	if err != nil {
		return nil, fmt.Errorf("fetching next page: %w", err)
	}

	p.fetched += len(page.Items)
	p.total = page.Total

	// A zero-item page means the stream ran dry regardless of what the
	// total claims; otherwise trust the count. A short but non-empty
	// page is not exhaustion on its own.
	if len(page.Items) == 0 || p.fetched >= page.Total {
		p.exhausted = true
	} else {
		p.cursor = After(page.Items[len(page.Items)-1], p.sort)
	}

	return &PageResult{
		Items:     page.Items,
		Total:     page.Total,
		Fetched:   p.fetched,
		Exhausted: p.exhausted,
	}, nil
}

// After mints the keyset token pointing just past item under the given
// sort order. The listing id rides along as the tiebreaker for items
// sharing a sort key.
func After(item index.Listing, sort query.Sort) *query.Cursor {
	switch sort {
	case query.SortName:
		return &query.Cursor{Sort: sort, Key: item.Title, ID: item.ID}
	default:
		return &query.Cursor{Sort: sort, Key: item.CreatedAt.UTC().Format(time.RFC3339Nano), ID: item.ID}
	}
}
