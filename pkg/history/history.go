// Package history records and reconciles past searches across two stores:
// a durable, identity-scoped store (server-owned, empty for anonymous
// sessions) and a device-local cache that works without authentication.
//
// The two stores are deliberately not transactional. The local cache is
// written unconditionally and the durable store best-effort; a failed
// durable write leaves the local cache authoritative until a later record
// lands. Load merges both into one deduplicated, recency-ordered,
// length-bounded list with the durable entries ranked first.
package history

import (
	"strings"
	"time"
)

// Scope isolates histories per search surface.
type Scope string

const (
	ScopeGlobal      Scope = "global"
	ScopeMarketplace Scope = "marketplace"
)

// Valid reports whether the scope is one of the known surfaces.
func (s Scope) Valid() bool {
	return s == ScopeGlobal || s == ScopeMarketplace
}

// ParseScope maps a wire value to a Scope, defaulting to ScopeGlobal.
func ParseScope(s string) Scope {
	if Scope(s) == ScopeMarketplace {
		return ScopeMarketplace
	}
	return ScopeGlobal
}

const (
	// MergedLimit caps the merged suggestion list shown before typing.
	MergedLimit = 5

	// CacheLimit caps the device-local cache per scope.
	CacheLimit = 10

	// localIDPrefix marks entries that exist only in the local cache and
	// therefore carry no durable identity to delete by.
	localIDPrefix = "local:"
)

// Entry is one recorded search.
type Entry struct {
	ID        string            `json:"id"`
	Query     string            `json:"query"`
	Scope     Scope             `json:"scope"`
	Filters   map[string]string `json:"filters,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// LocalOnly reports whether the entry has no durable identity.
func (e Entry) LocalOnly() bool {
	return IsLocalID(e.ID)
}

// IsLocalID reports whether an entry id is a local-only placeholder.
func IsLocalID(id string) bool {
	return strings.HasPrefix(id, localIDPrefix)
}

// localID builds the placeholder id for a cache-only entry.
func localID(text string) string {
	return localIDPrefix + text
}
