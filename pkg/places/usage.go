package places

import (
	"fmt"
	"sync/atomic"
)

// Pricing used for the run summary. Both request kinds bill at the same rate.
const (
	CostPerRequest = 0.002
	BaseCredit     = 300.00
)

// Usage counts billable requests made by a Client. Safe for concurrent use.
type Usage struct {
	textSearches atomic.Int64
	details      atomic.Int64
}

// UsageSnapshot is a point-in-time copy of Usage with derived costs.
type UsageSnapshot struct {
	TextSearches int64
	Details      int64
}

func (u *Usage) Snapshot() UsageSnapshot {
	return UsageSnapshot{
		TextSearches: u.textSearches.Load(),
		Details:      u.details.Load(),
	}
}

func (s UsageSnapshot) TextSearchCost() float64 { return float64(s.TextSearches) * CostPerRequest }
func (s UsageSnapshot) DetailsCost() float64    { return float64(s.Details) * CostPerRequest }
func (s UsageSnapshot) TotalCost() float64      { return s.TextSearchCost() + s.DetailsCost() }
func (s UsageSnapshot) RemainingCredit() float64 {
	return BaseCredit - s.TotalCost()
}

// Lines renders the summary printed at the end of a search run.
func (s UsageSnapshot) Lines() []string {
	return []string{
		fmt.Sprintf("Text Search requests: %d ($%.3f)", s.TextSearches, s.TextSearchCost()),
		fmt.Sprintf("Place Details requests: %d ($%.3f)", s.Details, s.DetailsCost()),
		fmt.Sprintf("Estimated cost: $%.3f", s.TotalCost()),
		fmt.Sprintf("Remaining credit: $%.2f of $%.2f", s.RemainingCredit(), BaseCredit),
	}
}
