// Package coordinator serializes the live search input stream into
// well-ordered fetches: keystrokes are debounced, filter changes fire
// immediately, and stale responses are discarded so the newest request
// always wins.
package coordinator

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"time"

	"github.com/dalili-app/dalili/pkg/area"
	"github.com/dalili-app/dalili/pkg/history"
	"github.com/dalili-app/dalili/pkg/index"
	"github.com/dalili-app/dalili/pkg/log"
	"github.com/dalili-app/dalili/pkg/query"
)

var logger = log.ForComponent("coordinator")

// DefaultDebounce is the quiet interval after the last keystroke before
// a fetch is issued.
const DefaultDebounce = 300 * time.Millisecond

// Update is one state transition delivered to the apply callback.
// Exactly one of three shapes arrives: results (Results/Total set),
// a fetch failure (Err set, Retryable true), or a local clear (Cleared
// true) when the text drops below the searchable length.
type Update struct {
	Seq       uint64
	Query     query.Query
	Results   []index.Listing
	Total     int
	Err       error
	Retryable bool
	Cleared   bool
}

// FilterPatch is a partial change to the active filters. Nil fields are
// left untouched; an empty string clears the field it points at.
// ClearPrices drops both price bounds before MinPrice/MaxPrice apply.
type FilterPatch struct {
	Category     *string
	SubTypeKey   *string
	SubTypeValue *string
	AreaID       *string
	MinPrice     *float64
	MaxPrice     *float64
	ClearPrices  bool
	Sort         *query.Sort
}

func (p FilterPatch) apply(q *query.Query) {
	if p.Category != nil {
		q.Category = *p.Category
		if q.Category == "all" {
			q.Category = ""
		}
	}
	if p.SubTypeKey != nil {
		q.SubTypeKey = *p.SubTypeKey
	}
	if p.SubTypeValue != nil {
		q.SubTypeValue = *p.SubTypeValue
	}
	if p.AreaID != nil {
		q.AreaID = *p.AreaID
	}
	if p.ClearPrices {
		q.MinPrice = nil
		q.MaxPrice = nil
	}
	if p.MinPrice != nil {
		v := *p.MinPrice
		q.MinPrice = &v
	}
	if p.MaxPrice != nil {
		v := *p.MaxPrice
		q.MaxPrice = &v
	}
}

// NavigationTarget is the canonical results location produced by an
// explicit submit.
type NavigationTarget struct {
	Path   string
	Values url.Values
}

func (t NavigationTarget) String() string {
	if len(t.Values) == 0 {
		return t.Path
	}
	return t.Path + "?" + t.Values.Encode()
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithDebounce overrides the keystroke quiet interval.
func WithDebounce(d time.Duration) Option {
	return func(c *Coordinator) { c.debounce = d }
}

// WithPageSize overrides the fetch page size.
func WithPageSize(n int) Option {
	return func(c *Coordinator) { c.pageSize = n }
}

// WithScope sets the history scope searches are recorded under.
func WithScope(scope history.Scope) Option {
	return func(c *Coordinator) { c.scope = scope }
}

// WithSort sets the initial sort order.
func WithSort(sort query.Sort) Option {
	return func(c *Coordinator) { c.sort = sort }
}

// Coordinator owns one search surface's input-to-fetch pipeline. All
// methods are safe for concurrent use; updates are delivered on fetch
// goroutines, never on the caller's.
type Coordinator struct {
	fetcher   index.Fetcher
	historian *history.Reconciler
	areas     *area.Provider
	apply     func(Update)

	debounce time.Duration
	pageSize int
	scope    history.Scope

	mu       sync.Mutex
	timer    *time.Timer
	seq      uint64
	cancel   context.CancelFunc
	q        query.Query
	sort     query.Sort
	identity string
	closed   bool

	// applyMu serializes apply calls so the freshness check and the
	// callback run as one step; without it a response could pass the
	// check, lose the CPU, and land after a newer response.
	applyMu sync.Mutex
}

// New builds a coordinator. The apply callback receives every accepted
// state transition; stale and superseded responses never reach it.
func New(fetcher index.Fetcher, historian *history.Reconciler, areas *area.Provider, apply func(Update), opts ...Option) *Coordinator {
	c := &Coordinator{
		fetcher:   fetcher,
		historian: historian,
		areas:     areas,
		apply:     apply,
		debounce:  DefaultDebounce,
		scope:     history.ScopeGlobal,
		sort:      query.SortRecent,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.q.Page = 1
	c.q.PageSize = c.pageSize
	return c
}

// SetIdentity switches the identity history is recorded under. An empty
// identity means an anonymous session.
func (c *Coordinator) SetIdentity(identity string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.identity = identity
}

// Query returns a snapshot of the active query.
func (c *Coordinator) Query() query.Query {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.q
}

// OnTextChange records a keystroke. The fetch fires only after the
// debounce interval passes without another change; text below the
// searchable length cancels any pending or in-flight work and clears
// results without touching the backend.
func (c *Coordinator) OnTextChange(text string) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}

	c.q.Text = text
	c.q.Page = 1
	c.stopTimerLocked()

	// Whatever is in flight was issued for text that no longer exists on
	// screen; invalidate it before deciding what happens next.
	c.seq++
	seq := c.seq
	c.cancelInflightLocked()

	if !c.q.Searchable() {
		q := c.q
		c.mu.Unlock()

		c.publish(Update{Seq: seq, Query: q, Cleared: true})
		return
	}

	c.timer = time.AfterFunc(c.debounce, func() {
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return
		}
		c.fireLocked()
	})
	c.mu.Unlock()
}

// OnFilterChange applies a filter change and fetches immediately. Any
// pending keystroke timer is absorbed, the new fetch already carries the
// latest text.
func (c *Coordinator) OnFilterChange(patch FilterPatch) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}

	c.stopTimerLocked()
	patch.apply(&c.q)
	if patch.Sort != nil {
		c.sort = *patch.Sort
	}
	c.q.Page = 1

	if !c.q.Searchable() && !c.q.HasFilters() {
		c.seq++
		seq := c.seq
		c.cancelInflightLocked()
		q := c.q
		c.mu.Unlock()

		c.publish(Update{Seq: seq, Query: q, Cleared: true})
		return
	}

	c.fireLocked()
}

// Refresh re-issues the current query immediately, for retry after a
// failed fetch.
func (c *Coordinator) Refresh() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.stopTimerLocked()
	c.fireLocked()
}

// fireLocked issues a fetch for the current query under a fresh seq,
// cancelling whatever was in flight. It releases the mutex.
func (c *Coordinator) fireLocked() {
	c.seq++
	seq := c.seq
	c.cancelInflightLocked()

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel

	q := c.q
	if q.AreaID == "" && c.areas != nil {
		if current, ok := c.areas.Current(); ok && current != nil {
			q.AreaID = current.ID
		}
	}
	sort := c.sort
	c.mu.Unlock()

	go func() {
		page, err := c.fetcher.Search(ctx, q, sort, nil)
		c.deliver(seq, q, page, err)
	}()
}

func (c *Coordinator) deliver(seq uint64, q query.Query, page *index.Page, err error) {
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		logger.Warnf("fetch failed for %q: %v", q.EffectiveText(), err)
		c.publish(Update{Seq: seq, Query: q, Err: err, Retryable: true})
		return
	}

	c.publish(Update{Seq: seq, Query: q, Results: page.Items, Total: page.Total})
}

// publish hands an update to the apply callback if it is still current.
// The freshness check and the callback itself run under applyMu, so a
// response that was current when checked commits before any later one.
func (c *Coordinator) publish(u Update) {
	c.applyMu.Lock()
	defer c.applyMu.Unlock()

	c.mu.Lock()
	current := !c.closed && u.Seq == c.seq
	c.mu.Unlock()
	if !current {
		return
	}

	c.apply(u)
}

// Submit finalizes the current query: pending debounce work is dropped,
// the search lands in history, and the canonical results location is
// returned for navigation.
func (c *Coordinator) Submit(ctx context.Context) NavigationTarget {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return NavigationTarget{Path: "/search"}
	}

	c.stopTimerLocked()
	c.seq++
	c.cancelInflightLocked()
	q := c.q
	q.Text = q.EffectiveText()
	identity := c.identity
	scope := c.scope
	c.mu.Unlock()

	if text := q.EffectiveText(); text != "" {
		filters := map[string]string{}
		if q.Category != "" {
			filters["category"] = q.Category
		}
		if q.AreaID != "" {
			filters["area"] = q.AreaID
		}
		c.historian.Record(ctx, identity, scope, text, filters)
	}

	return NavigationTarget{Path: "/search", Values: q.Encode()}
}

// Suggestions returns the merged history for the coordinator's scope.
func (c *Coordinator) Suggestions(ctx context.Context) []history.Entry {
	c.mu.Lock()
	identity := c.identity
	scope := c.scope
	c.mu.Unlock()

	return c.historian.Load(ctx, identity, scope)
}

// Close stops the debounce timer and cancels in-flight work. Events
// arriving after Close are ignored.
func (c *Coordinator) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	c.stopTimerLocked()
	c.cancelInflightLocked()
}

func (c *Coordinator) stopTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *Coordinator) cancelInflightLocked() {
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
}
