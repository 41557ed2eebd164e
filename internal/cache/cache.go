// Package cache provides the per-gateway model-record cache used by the
// aggregator. The cache is an injected collaborator, never a process-wide
// singleton, so tests can substitute a fake. The default in-process
// implementation is Memory.
package cache

import "github.com/alpaca-network/gatewayz-relay/gateways"

// Store caches the normalised model records of one fetch per gateway.
type Store interface {
	Get(gateway string) ([]gateways.ModelRecord, bool)
	Set(gateway string, records []gateways.ModelRecord)
	Delete(gateway string)
	Len() int
	Clear()
}
