package catalog

import (
	"strings"

	"github.com/alpaca-network/gatewayz-relay/gateways"
)

// Merge deduplicates records by canonical id (lower-cased exact match on
// the model id — deliberately not fuzzy) and computes the cheapest and
// fastest provider for each group.
//
// Within a group the provider order is first-seen. A gateway that reports
// the same model twice keeps only its first record, so each group holds at
// most one record per gateway. Output groups appear in first-seen order of
// their canonical id.
func Merge(records []gateways.ModelRecord) []UnifiedModel {
	groups := make(map[string]int, len(records))
	merged := make([]UnifiedModel, 0, len(records))

	for _, rec := range records {
		if rec.ID == "" {
			continue
		}
		key := strings.ToLower(rec.ID)
		idx, ok := groups[key]
		if !ok {
			groups[key] = len(merged)
			merged = append(merged, UnifiedModel{
				CanonicalID: key,
				Providers:   []gateways.ModelRecord{rec},
			})
			continue
		}
		if hasGateway(merged[idx].Providers, rec.Gateway) {
			continue
		}
		merged[idx].Providers = append(merged[idx].Providers, rec)
	}

	for i := range merged {
		merged[i].Cheapest = cheapestIndex(merged[i].Providers)
		merged[i].Fastest = fastestIndex(merged[i].Providers)
	}
	return merged
}

// Flatten is the inverse view of Merge: every provider record of every
// unified model, in order. Merge(Flatten(Merge(r))) == Merge(r).
func Flatten(models []UnifiedModel) []gateways.ModelRecord {
	var records []gateways.ModelRecord
	for _, m := range models {
		records = append(records, m.Providers...)
	}
	return records
}

func hasGateway(records []gateways.ModelRecord, gateway string) bool {
	for _, r := range records {
		if r.Gateway == gateway {
			return true
		}
	}
	return false
}

// cheapestIndex picks the record with the minimum non-nil prompt price.
// nil prices sort last: a record with unknown pricing is only selected when
// no record in the group has a price. Ties keep the first-seen record.
func cheapestIndex(records []gateways.ModelRecord) int {
	best := 0
	for i := 1; i < len(records); i++ {
		if lessPtr(records[i].PromptPrice, records[best].PromptPrice) {
			best = i
		}
	}
	return best
}

// fastestIndex picks the record with the minimum non-nil average response
// time, with the same nil-last and first-seen rules as cheapestIndex.
func fastestIndex(records []gateways.ModelRecord) int {
	best := 0
	for i := 1; i < len(records); i++ {
		if lessPtr(records[i].AvgResponseMs, records[best].AvgResponseMs) {
			best = i
		}
	}
	return best
}

// lessPtr reports whether a sorts strictly before b with nil last and ties
// resolved in b's favour (keeping the earlier record stable).
func lessPtr[T int | float64](a, b *T) bool {
	if a == nil {
		return false
	}
	if b == nil {
		return true
	}
	return *a < *b
}
