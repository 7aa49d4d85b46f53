// Package area holds the session-wide geographic scope shared by every
// query-building surface. A scope choice made in one surface (global
// search, marketplace search, browse filters) is honored everywhere
// because all of them read the same provider.
//
// The provider is a tri-state: uninitialized (the persisted preference has
// not been applied yet), all-areas (the explicit "no scope" choice), or a
// selected area. Callers must not interpret uninitialized as all-areas,
// otherwise results flash unfiltered before the stored preference lands.
package area

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/dalili-app/dalili/pkg/log"
)

var logger = log.ForComponent("area")

// Area is a selectable geographic area.
type Area struct {
	ID   string `json:"id" toml:"id"`
	Name string `json:"name" toml:"name"`
}

// Provider owns the current area scope. Mutation goes through Set/Clear
// only; readers always see the latest committed value.
type Provider struct {
	mu          sync.RWMutex
	areas       []Area
	current     *Area
	initialized bool
	prefPath    string
}

// preference is the persisted session preference. A null area_id means the
// user explicitly chose all areas.
type preference struct {
	AreaID *string `json:"area_id"`
}

// NewProvider creates a provider over the static area list. prefPath is
// where the session preference is persisted; empty disables persistence.
func NewProvider(areas []Area, prefPath string) *Provider {
	return &Provider{
		areas:    areas,
		prefPath: prefPath,
	}
}

// Load applies the persisted preference and marks the provider
// initialized. A missing or unreadable preference file, or a preference
// naming an unknown area, initializes to all-areas.
func (p *Provider) Load() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.initialized = true
	p.current = nil

	if p.prefPath == "" {
		return nil
	}

	data, err := os.ReadFile(p.prefPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading area preference: %w", err)
	}

	var pref preference
	if err := json.Unmarshal(data, &pref); err != nil {
		logger.Warnf("ignoring malformed area preference %s: %v", p.prefPath, err)
		return nil
	}

	if pref.AreaID == nil {
		return nil
	}

	for i := range p.areas {
		if p.areas[i].ID == *pref.AreaID {
			a := p.areas[i]
			p.current = &a
			return nil
		}
	}

	logger.Warnf("stored area preference %q no longer exists, falling back to all areas", *pref.AreaID)
	return nil
}

// Current returns the selected area (nil means all areas) and whether the
// provider has been initialized. Until initialized is true the value must
// not be used to build queries.
func (p *Provider) Current() (*Area, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.current == nil {
		return nil, p.initialized
	}
	a := *p.current
	return &a, p.initialized
}

// Set selects an area; nil is the explicit all-areas state. The choice is
// persisted best-effort.
func (p *Provider) Set(a *Area) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.initialized = true
	if a == nil {
		p.current = nil
	} else {
		copied := *a
		p.current = &copied
	}

	p.persistLocked()
}

// Clear explicitly returns the scope to all areas.
func (p *Provider) Clear() {
	p.Set(nil)
}

// SetByID selects an area by id, returning false when the id is unknown.
func (p *Provider) SetByID(id string) bool {
	p.mu.RLock()
	var found *Area
	for i := range p.areas {
		if p.areas[i].ID == id {
			a := p.areas[i]
			found = &a
			break
		}
	}
	p.mu.RUnlock()

	if found == nil {
		return false
	}
	p.Set(found)
	return true
}

// List returns the static area list in configuration order.
func (p *Provider) List() []Area {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]Area, len(p.areas))
	copy(out, p.areas)
	return out
}

// persistLocked writes the preference file. Failure to persist never
// fails the selection itself.
func (p *Provider) persistLocked() {
	if p.prefPath == "" {
		return
	}

	pref := preference{}
	if p.current != nil {
		id := p.current.ID
		pref.AreaID = &id
	}

	data, err := json.Marshal(pref)
	if err != nil {
		logger.Warnf("marshaling area preference: %v", err)
		return
	}

	if err := os.MkdirAll(filepath.Dir(p.prefPath), 0755); err != nil {
		logger.Warnf("creating preference directory: %v", err)
		return
	}

	if err := os.WriteFile(p.prefPath, data, 0644); err != nil {
		logger.Warnf("writing area preference: %v", err)
	}
}
