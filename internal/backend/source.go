package backend

import (
	"context"

	"github.com/iDeFi-AI/api-v2/internal/risk"
)

// Source supplies per-address check records and the current flagged set.
// The HTTP client and an offline flagged dataset both satisfy it.
type Source interface {
	// CheckAddresses returns one record per address the backend could check.
	// A *risk.BatchError means some returned rows were malformed; the valid
	// records are still returned.
	CheckAddresses(ctx context.Context, chain string, addrs []string) ([]risk.AddressRecord, error)

	// FlaggedAddresses returns the set of addresses known to be risky.
	FlaggedAddresses(ctx context.Context) (risk.FlaggedSet, error)
}

// Merged adds extra addresses to the flagged set of an underlying Source.
type Merged struct {
	src   Source
	extra risk.FlaggedSet
}

func WithExtraFlagged(src Source, extra risk.FlaggedSet) Source {
	return Merged{src: src, extra: extra}
}

func (m Merged) CheckAddresses(ctx context.Context, chain string, addrs []string) ([]risk.AddressRecord, error) {
	return m.src.CheckAddresses(ctx, chain, addrs)
}

func (m Merged) FlaggedAddresses(ctx context.Context) (risk.FlaggedSet, error) {
	set, err := m.src.FlaggedAddresses(ctx)
	if err != nil {
		return risk.FlaggedSet{}, err
	}
	return set.Union(m.extra), nil
}
