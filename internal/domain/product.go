package domain

import "encoding/json"

// Product is a finished record produced by the scraping worker.
// Price, rating and reviews arrive as either numbers or strings depending on
// the marketplace, so they are carried verbatim. Fields this service does not
// interpret are kept in Extra and written back unchanged.
type Product struct {
	Title     string          `json:"title,omitempty"`
	Price     json.RawMessage `json:"price,omitempty"`
	Rating    json.RawMessage `json:"rating,omitempty"`
	Reviews   json.RawMessage `json:"reviews,omitempty"`
	Link      string          `json:"link,omitempty"`
	Article   string          `json:"article,omitempty"`
	ImageURLs []string        `json:"image_urls,omitempty"`
	Images    []string        `json:"images"`

	Extra map[string]json.RawMessage `json:"-"`
}

// productFields has Product's layout without its JSON methods
type productFields Product

var productKeys = []string{"title", "price", "rating", "reviews", "link", "article", "image_urls", "images"}

// UnmarshalJSON decodes the known fields and keeps every other key in Extra
func (p *Product) UnmarshalJSON(data []byte) error {
	var fields productFields
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for _, key := range productKeys {
		delete(raw, key)
	}
	if len(raw) > 0 {
		fields.Extra = raw
	}

	*p = Product(fields)
	return nil
}

// MarshalJSON writes Extra merged with the known fields. The images key is
// present once images were materialized, even when every download failed.
func (p Product) MarshalJSON() ([]byte, error) {
	known, err := json.Marshal(productFields(p))
	if err != nil {
		return nil, err
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(known, &fields); err != nil {
		return nil, err
	}
	if p.Images == nil {
		delete(fields, "images")
	}

	out := make(map[string]json.RawMessage, len(p.Extra)+len(fields))
	for key, value := range p.Extra {
		out[key] = value
	}
	for key, value := range fields {
		out[key] = value
	}
	return json.Marshal(out)
}
