// Package catalog merges per-gateway model records into a deduplicated
// cross-gateway view and answers catalog queries over it.
//
// Merge is a pure function: it performs no I/O and is deterministic for a
// given input order. The aggregator feeds it records in the order gateways
// actually completed, which is why all tie-breaks are "first seen".
package catalog

import "github.com/alpaca-network/gatewayz-relay/gateways"

// UnifiedModel is the deduplicated view of one logical model across
// gateways.
//
// Cheapest and Fastest are indices into Providers, recomputed on every
// merge — they are never stored independently of the slice they point into.
type UnifiedModel struct {
	// CanonicalID is the case-normalised model id used as the dedup key.
	CanonicalID string `json:"canonical_id"`
	// Providers holds one record per source gateway, in first-seen order.
	// Always non-empty.
	Providers []gateways.ModelRecord `json:"providers"`
	// Cheapest indexes the provider with the lowest known prompt price.
	Cheapest int `json:"cheapest_provider"`
	// Fastest indexes the provider with the lowest known average latency.
	Fastest int `json:"fastest_provider"`
}

// ProviderCount returns the number of gateways offering this model.
func (u UnifiedModel) ProviderCount() int { return len(u.Providers) }

// CheapestRecord returns the record referenced by Cheapest.
func (u UnifiedModel) CheapestRecord() gateways.ModelRecord { return u.Providers[u.Cheapest] }

// FastestRecord returns the record referenced by Fastest.
func (u UnifiedModel) FastestRecord() gateways.ModelRecord { return u.Providers[u.Fastest] }
