package index

import "time"

// Listing is the result summary shape returned by searches.
type Listing struct {
	ID          string            `json:"id"`
	Title       string            `json:"title"`
	Slug        string            `json:"slug"`
	Description string            `json:"description,omitempty"`
	Image       string            `json:"image,omitempty"`
	Price       float64           `json:"price"`
	Category    string            `json:"category"`
	SubType     string            `json:"sub_type,omitempty"`
	AreaID      string            `json:"area_id,omitempty"`
	Rating      *float64          `json:"rating,omitempty"`
	Attributes  map[string]string `json:"attributes,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
}
