package catalog

import (
	"fmt"
	"sort"
	"strings"
)

// Sort keys accepted by Query.SortBy.
const (
	SortByID        = "id"
	SortByPrice     = "price"
	SortByLatency   = "latency"
	SortByProviders = "providers"
)

// Query holds the optional filters for a catalog listing.
type Query struct {
	// MinProviders keeps only models offered by at least this many gateways.
	MinProviders int
	// Search keeps models whose canonical id contains the term
	// (case-insensitive substring).
	Search string
	// SortBy is one of the SortBy* keys; "" keeps merge order.
	SortBy string
	// Limit and Offset paginate the filtered result. Limit 0 means no cap.
	Limit  int
	Offset int
}

// Validate rejects unknown sort keys and negative pagination values.
func (q Query) Validate() error {
	switch q.SortBy {
	case "", SortByID, SortByPrice, SortByLatency, SortByProviders:
	default:
		return fmt.Errorf("unknown sort_by: %q", q.SortBy)
	}
	if q.Limit < 0 || q.Offset < 0 {
		return fmt.Errorf("limit and offset must be non-negative")
	}
	if q.MinProviders < 0 {
		return fmt.Errorf("min_providers must be non-negative")
	}
	return nil
}

// Apply filters, sorts, and paginates a merged catalog. The input slice is
// not modified.
func (q Query) Apply(models []UnifiedModel) []UnifiedModel {
	out := make([]UnifiedModel, 0, len(models))
	term := strings.ToLower(q.Search)
	for _, m := range models {
		if q.MinProviders > 0 && m.ProviderCount() < q.MinProviders {
			continue
		}
		if term != "" && !strings.Contains(m.CanonicalID, term) {
			continue
		}
		out = append(out, m)
	}

	switch q.SortBy {
	case SortByID:
		sort.SliceStable(out, func(i, j int) bool {
			return out[i].CanonicalID < out[j].CanonicalID
		})
	case SortByPrice:
		sort.SliceStable(out, func(i, j int) bool {
			return lessPtr(out[i].CheapestRecord().PromptPrice, out[j].CheapestRecord().PromptPrice)
		})
	case SortByLatency:
		sort.SliceStable(out, func(i, j int) bool {
			return lessPtr(out[i].FastestRecord().AvgResponseMs, out[j].FastestRecord().AvgResponseMs)
		})
	case SortByProviders:
		sort.SliceStable(out, func(i, j int) bool {
			return out[i].ProviderCount() > out[j].ProviderCount()
		})
	}

	if q.Offset > 0 {
		if q.Offset >= len(out) {
			return []UnifiedModel{}
		}
		out = out[q.Offset:]
	}
	if q.Limit > 0 && q.Limit < len(out) {
		out = out[:q.Limit]
	}
	return out
}
