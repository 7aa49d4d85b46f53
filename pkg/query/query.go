// Package query defines the search query model shared by the HTTP API, the
// CLI and the coordinator, together with the browser-visible query-string
// codec and the pagination cursor token.
package query

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"unicode/utf8"
)

// MinTextLength is the minimum free-text length (in characters) for a
// query to be searchable. Shorter text is treated as no query and never
// reaches the fetcher.
const MinTextLength = 2

// Sort enumerates the supported result orderings.
type Sort string

const (
	// SortRecent orders by creation time, newest first. Default.
	SortRecent Sort = "recent"
	// SortName orders lexicographically by title.
	SortName Sort = "name"
)

// ParseSort maps a wire value to a Sort, defaulting to SortRecent.
func ParseSort(s string) Sort {
	if Sort(s) == SortName {
		return SortName
	}
	return SortRecent
}

// Query carries everything a single search needs: free text, category and
// sub-type facet, area scope, price bounds and pagination.
type Query struct {
	Text     string
	Category string

	// SubTypeKey is the category's selector attribute name; only
	// meaningful when Category is set and the key matches that category's
	// declared selector.
	SubTypeKey   string
	SubTypeValue string

	AreaID   string
	MinPrice *float64
	MaxPrice *float64

	Page     int
	PageSize int
}

// Searchable reports whether the free text is long enough to issue a
// fetch for.
func (q Query) Searchable() bool {
	return utf8.RuneCountInString(strings.TrimSpace(q.Text)) >= MinTextLength
}

// EffectiveText returns the free text that may reach the fetcher: the
// trimmed text when searchable, otherwise empty.
func (q Query) EffectiveText() string {
	if !q.Searchable() {
		return ""
	}
	return strings.TrimSpace(q.Text)
}

// HasFilters reports whether any non-text constraint is set.
func (q Query) HasFilters() bool {
	return q.Category != "" || q.SubTypeValue != "" || q.AreaID != "" ||
		q.MinPrice != nil || q.MaxPrice != nil
}

// Parse decodes the browser-visible query-string contract. Unknown or
// malformed values degrade to defaults rather than failing: an absent page
// means page 1, and a category of "all" means no category filter.
func Parse(values url.Values) Query {
	q := Query{Page: 1}

	q.Text = values.Get("search")

	if cat := values.Get("category"); cat != "" && cat != "all" {
		q.Category = cat
	}

	q.SubTypeValue = values.Get("type")

	if area := values.Get("area"); area != "" {
		q.AreaID = area
	} else if area := values.Get("areaId"); area != "" {
		q.AreaID = area
	}

	if s := values.Get("minPrice"); s != "" {
		if v, err := strconv.ParseFloat(s, 64); err == nil && v >= 0 {
			q.MinPrice = &v
		}
	}
	if s := values.Get("maxPrice"); s != "" {
		if v, err := strconv.ParseFloat(s, 64); err == nil && v >= 0 {
			q.MaxPrice = &v
		}
	}

	if s := values.Get("page"); s != "" {
		if parsed, err := strconv.Atoi(s); err == nil && parsed > 0 {
			q.Page = parsed
		}
	}

	return q
}

// Encode produces the canonical query-string encoding. Defaults are
// omitted: no page parameter for page 1 and no category parameter for the
// no-filter state, so equivalent queries encode identically.
func (q Query) Encode() url.Values {
	values := url.Values{}

	if q.Text != "" {
		values.Set("search", q.Text)
	}
	if q.Category != "" && q.Category != "all" {
		values.Set("category", q.Category)
	}
	if q.SubTypeValue != "" {
		values.Set("type", q.SubTypeValue)
	}
	if q.AreaID != "" {
		values.Set("area", q.AreaID)
	}
	if q.MinPrice != nil {
		values.Set("minPrice", strconv.FormatFloat(*q.MinPrice, 'f', -1, 64))
	}
	if q.MaxPrice != nil {
		values.Set("maxPrice", strconv.FormatFloat(*q.MaxPrice, 'f', -1, 64))
	}
	if q.Page > 1 {
		values.Set("page", strconv.Itoa(q.Page))
	}

	return values
}

// Cursor is an opaque pagination token derived from the last item of the
// previous page: the sort key (an RFC3339 timestamp under SortRecent, a
// title under SortName) plus the listing id as a tiebreaker, so listings
// sharing a sort key are never skipped across a page boundary. A cursor
// minted under one sort order is never valid under another.
type Cursor struct {
	Sort Sort
	Key  string
	ID   string
}

// String encodes the cursor for the wire as "<sort>:<id>:<key>". The key
// goes last because titles and timestamps may contain colons; listing ids
// must not.
func (c Cursor) String() string {
	return string(c.Sort) + ":" + c.ID + ":" + c.Key
}

// ParseCursor decodes a wire cursor.
func ParseCursor(s string) (*Cursor, error) {
	if s == "" {
		return nil, nil
	}
	sortPart, rest, found := strings.Cut(s, ":")
	if !found {
		return nil, fmt.Errorf("malformed cursor %q", s)
	}
	id, key, found := strings.Cut(rest, ":")
	if !found || id == "" || key == "" {
		return nil, fmt.Errorf("malformed cursor %q", s)
	}
	switch Sort(sortPart) {
	case SortRecent, SortName:
		return &Cursor{Sort: Sort(sortPart), Key: key, ID: id}, nil
	}
	return nil, fmt.Errorf("cursor %q has unknown sort order", s)
}
