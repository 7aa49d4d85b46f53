// Package catalog holds the category/attribute catalog consumed by the
// search surfaces. The catalog is static reference data: it is loaded once
// per process from a TOML file (or the embedded sample) and never mutated.
//
// A category declares zero or more sub-types; the active sub-type of a
// stored listing decides which attribute fields (facets) apply. Declaration
// order of sub-types is significant: when a listing carries no recognisable
// sub-type value, the first declared sub-type's fields are used so the
// listing still renders usable facets.
package catalog

import (
	_ "embed"
	"fmt"
	"os"
	"sort"

	"github.com/pelletier/go-toml/v2"
)

//go:embed catalog.toml.sample
var catalogSample []byte

// FieldKind enumerates the input kinds a facet field can take.
type FieldKind string

const (
	KindText     FieldKind = "text"
	KindNumber   FieldKind = "number"
	KindSelect   FieldKind = "select"
	KindCheckbox FieldKind = "checkbox"
	KindTextarea FieldKind = "textarea"
)

func (k FieldKind) Valid() bool {
	switch k {
	case KindText, KindNumber, KindSelect, KindCheckbox, KindTextarea:
		return true
	}
	return false
}

// FieldSpec describes a single facet field: how to render its input and
// what shape a stored value must have.
type FieldSpec struct {
	Name     string    `toml:"name" json:"name"`
	Label    string    `toml:"label" json:"label"`
	Kind     FieldKind `toml:"kind" json:"kind"`
	Options  []string  `toml:"options,omitempty" json:"options,omitempty"`
	Required bool      `toml:"required,omitempty" json:"required,omitempty"`
}

// SubType is a category-scoped classification that determines which facet
// fields apply to a listing.
type SubType struct {
	Label  string      `toml:"label" json:"label"`
	Fields []FieldSpec `toml:"fields" json:"fields"`
}

// Category is one entry of the catalog.
type Category struct {
	ID        string `toml:"id" json:"id"`
	Label     string `toml:"label" json:"label"`
	SortOrder int    `toml:"sort_order" json:"sort_order"`

	// SelectorKey names the stored attribute that selects the active
	// sub-type, e.g. "listing_type". Empty when the category declares no
	// sub-types.
	SelectorKey string `toml:"selector_key,omitempty" json:"selector_key,omitempty"`

	// SubTypes in declaration order. The first entry is the fallback when
	// a listing's stored sub-type value is missing or unrecognised.
	SubTypes []SubType `toml:"subtypes,omitempty" json:"subtypes,omitempty"`
}

// Catalog is the loaded, immutable category catalog.
type Catalog struct {
	categories []Category
	byID       map[string]int
}

type catalogFile struct {
	Categories []Category `toml:"categories"`
}

// Parse builds a catalog from TOML bytes, validating entry shapes and
// rejecting duplicate category ids.
func Parse(data []byte) (*Catalog, error) {
	var file catalogFile
	if err := toml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("unmarshaling catalog: %w", err)
	}

	c := &Catalog{
		categories: file.Categories,
		byID:       make(map[string]int, len(file.Categories)),
	}

	for i, cat := range c.categories {
		if cat.ID == "" {
			return nil, fmt.Errorf("catalog entry %d: missing id", i)
		}
		if cat.Label == "" {
			return nil, fmt.Errorf("category %s: missing label", cat.ID)
		}
		if _, dup := c.byID[cat.ID]; dup {
			return nil, fmt.Errorf("duplicate category id %s", cat.ID)
		}
		if len(cat.SubTypes) > 0 && cat.SelectorKey == "" {
			return nil, fmt.Errorf("category %s: sub-types declared without a selector_key", cat.ID)
		}
		for _, st := range cat.SubTypes {
			if st.Label == "" {
				return nil, fmt.Errorf("category %s: sub-type with empty label", cat.ID)
			}
			for _, f := range st.Fields {
				if f.Name == "" {
					return nil, fmt.Errorf("category %s, sub-type %s: field with empty name", cat.ID, st.Label)
				}
				if !f.Kind.Valid() {
					return nil, fmt.Errorf("category %s, field %s: unknown kind %q", cat.ID, f.Name, f.Kind)
				}
			}
		}
		c.byID[cat.ID] = i
	}

	return c, nil
}

// Load reads and parses a catalog file from disk.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading catalog file: %w", err)
	}
	return Parse(data)
}

// Default returns the embedded sample catalog.
func Default() (*Catalog, error) {
	return Parse(catalogSample)
}

// SampleTOML returns the embedded sample catalog as TOML, for `dalili init`.
func SampleTOML() []byte {
	out := make([]byte, len(catalogSample))
	copy(out, catalogSample)
	return out
}

// Categories returns all categories ordered by SortOrder (stable for ties).
func (c *Catalog) Categories() []Category {
	out := make([]Category, len(c.categories))
	copy(out, c.categories)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].SortOrder < out[j].SortOrder
	})
	return out
}

// Category looks up a category by id.
func (c *Catalog) Category(id string) (Category, bool) {
	i, ok := c.byID[id]
	if !ok {
		return Category{}, false
	}
	return c.categories[i], true
}

// SubTypeLabels returns the sub-type labels of a category in declaration
// order, or nil for an unknown category.
func (c *Catalog) SubTypeLabels(id string) []string {
	cat, ok := c.Category(id)
	if !ok {
		return nil
	}
	labels := make([]string, len(cat.SubTypes))
	for i, st := range cat.SubTypes {
		labels[i] = st.Label
	}
	return labels
}

// ResolveFields resolves a category id and a stored attribute bag to the
// facet fields of the category's active sub-type.
//
// An unknown category degrades to no facets rather than failing the
// surrounding render. When the attribute bag carries a value for the
// category's selector key and that value names a known sub-type, that
// sub-type wins; otherwise the first declared sub-type is used.
func (c *Catalog) ResolveFields(categoryID string, attrs map[string]string) []FieldSpec {
	cat, ok := c.Category(categoryID)
	if !ok || len(cat.SubTypes) == 0 {
		return nil
	}

	if chosen, ok := attrs[cat.SelectorKey]; ok && chosen != "" {
		for _, st := range cat.SubTypes {
			if st.Label == chosen {
				return st.Fields
			}
		}
	}

	return cat.SubTypes[0].Fields
}
