package models

import (
	"time"
)

// LineItem is one (code, quantity) row read from the procurement sheet.
type LineItem struct {
	Row      int    `json:"row"`
	Code     string `json:"code"`
	Quantity string `json:"quantity"`
}

type ItemStatus string

const (
	ItemStatusAdded     ItemStatus = "added"
	ItemStatusAddFailed ItemStatus = "add_failed"
	ItemStatusNoMatch   ItemStatus = "no_match"
	ItemStatusNoResults ItemStatus = "no_results"
	ItemStatusFailed    ItemStatus = "failed"
)

// ItemStatuses lists every terminal status in reporting order.
var ItemStatuses = []ItemStatus{
	ItemStatusAdded,
	ItemStatusAddFailed,
	ItemStatusNoMatch,
	ItemStatusNoResults,
	ItemStatusFailed,
}

// CartOutcome is what the storefront reported after an add-to-cart submit.
// AvailableQuantity is nil when the page shows no availability indicator.
type CartOutcome struct {
	Success           bool    `json:"success"`
	AvailableQuantity *string `json:"available_quantity,omitempty"`
}

// ItemResult is the terminal record for one LineItem.
type ItemResult struct {
	Index             int           `json:"index"`
	Row               int           `json:"row"`
	Code              string        `json:"code"`
	Quantity          string        `json:"quantity"`
	Status            ItemStatus    `json:"status"`
	AvailableQuantity *string       `json:"available_quantity,omitempty"`
	ProductURL        string        `json:"product_url,omitempty"`
	CandidatesVisited int           `json:"candidates_visited"`
	Error             string        `json:"error,omitempty"`
	Duration          time.Duration `json:"duration"`
}

// Summary aggregates a finished batch.
type Summary struct {
	RunID      string             `json:"run_id"`
	StartedAt  time.Time          `json:"started_at"`
	FinishedAt time.Time          `json:"finished_at"`
	Total      int                `json:"total"`
	Counts     map[ItemStatus]int `json:"counts"`
}

// Summarize counts results by status.
func Summarize(runID string, started, finished time.Time, results []ItemResult) Summary {
	counts := make(map[ItemStatus]int, len(ItemStatuses))
	for _, s := range ItemStatuses {
		counts[s] = 0
	}
	for _, r := range results {
		counts[r.Status]++
	}
	return Summary{
		RunID:      runID,
		StartedAt:  started,
		FinishedAt: finished,
		Total:      len(results),
		Counts:     counts,
	}
}

// StringPtr returns a pointer to s.
func StringPtr(s string) *string { return &s }

// Deref returns the pointed-to string or def when p is nil.
func Deref(p *string, def string) string {
	if p == nil {
		return def
	}
	return *p
}
