package dto

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/cuongbtq/market-bridge/internal/domain"
)

// SearchRequest accepts both the current field names and the legacy ip/pageNumber ones
type SearchRequest struct {
	ClientKey    string   `json:"client_key"`
	IP           string   `json:"ip"`
	Query        string   `json:"query" binding:"required"`
	Page         int      `json:"page"`
	PageNumber   int      `json:"pageNumber"`
	Marketplaces []string `json:"marketplaces"`
}

// ResolvedPage prefers page over the legacy pageNumber field
func (r *SearchRequest) ResolvedPage() int {
	if r.Page != 0 {
		return r.Page
	}
	return r.PageNumber
}

type SearchResponse struct {
	Status string        `json:"status"`
	Jobs   []AcceptedJob `json:"jobs"`
}

type AcceptedJob struct {
	JobID       string `json:"job_id"`
	Marketplace string `json:"marketplace"`
	Page        int    `json:"page"`
}

type StatusRequest struct {
	ClientKey string `json:"client_key"`
	IP        string `json:"ip"`
	Message   string `json:"message" binding:"required"`
}

// DataRequest carries worker output; Data is either one product or a list of them
type DataRequest struct {
	ClientKey   string          `json:"client_key"`
	IP          string          `json:"ip"`
	Marketplace string          `json:"marketplace"`
	Data        json.RawMessage `json:"data" binding:"required"`
}

// Products decodes Data and reports whether it was a single object
func (r *DataRequest) Products() ([]domain.Product, bool, error) {
	raw := bytes.TrimSpace(r.Data)
	if len(raw) == 0 {
		return nil, false, fmt.Errorf("data is empty")
	}

	switch raw[0] {
	case '{':
		var product domain.Product
		if err := json.Unmarshal(raw, &product); err != nil {
			return nil, false, fmt.Errorf("invalid product: %w", err)
		}
		return []domain.Product{product}, true, nil
	case '[':
		var products []domain.Product
		if err := json.Unmarshal(raw, &products); err != nil {
			return nil, false, fmt.Errorf("invalid product list: %w", err)
		}
		return products, false, nil
	default:
		return nil, false, fmt.Errorf("data must be an object or an array")
	}
}
