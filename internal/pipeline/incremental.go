package pipeline

import (
	"strings"

	"github.com/shpitdev/leadfinder/internal/enrich"
)

// Plan splits a batch into businesses that need enrichment and rows that can
// be carried over from a previous run of the same output file.
type Plan struct {
	businesses []enrich.Business
	reused     map[Key][]Row

	Pending []enrich.Business
}

// PlanIncremental reuses previous rows for a business only when every row for
// its key scraped successfully.
func PlanIncremental(businesses []enrich.Business, previous []Row) Plan {
	prior := make(map[Key][]Row)
	failed := make(map[Key]bool)
	for _, r := range previous {
		k := r.Key()
		prior[k] = append(prior[k], r)
		if !strings.EqualFold(strings.TrimSpace(r.ScrapeStatus), enrich.StatusSuccess) {
			failed[k] = true
		}
	}

	p := Plan{businesses: businesses, reused: make(map[Key][]Row)}
	for _, b := range businesses {
		k := BusinessKey(b)
		if rows, ok := prior[k]; ok && !failed[k] {
			p.reused[k] = rows
			continue
		}
		p.Pending = append(p.Pending, b)
	}
	return p
}

// Reused reports how many businesses are carried over.
func (p Plan) Reused() int { return len(p.reused) }

// Merge returns rows in business order, taking reused rows where planned and
// fresh rows for everything else.
func (p Plan) Merge(fresh []Row) []Row {
	byKey := make(map[Key][]Row)
	for _, r := range fresh {
		k := r.Key()
		byKey[k] = append(byKey[k], r)
	}

	out := make([]Row, 0, len(fresh))
	seen := make(map[Key]bool, len(p.businesses))
	for _, b := range p.businesses {
		k := BusinessKey(b)
		if seen[k] {
			continue
		}
		seen[k] = true
		if rows, ok := p.reused[k]; ok {
			out = append(out, rows...)
			continue
		}
		out = append(out, byKey[k]...)
	}
	return out
}
