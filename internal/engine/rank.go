package engine

import (
	"fmt"
	"sort"

	"github.com/bidlane/auction-server/pkg/types"
)

// ComputeRanks orders suppliers by aggregate bid value, lowest first (this is
// a reverse auction, so L1 is the cheapest offer). Suppliers without any live
// bid have no standing and are absent from the result.
//
// Ties on total are broken by the earliest last-bid timestamp (the supplier
// who moved least recently keeps the better rank), then by supplier id, so
// the order is reproducible on identical input.
func ComputeRanks(bids []types.Bid) []types.RankEntry {
	if len(bids) == 0 {
		return nil
	}

	totals := make(map[string]*types.RankEntry)
	for _, bid := range bids {
		entry, ok := totals[bid.SupplierID]
		if !ok {
			entry = &types.RankEntry{SupplierID: bid.SupplierID}
			totals[bid.SupplierID] = entry
		}
		entry.Total = entry.Total.Add(bid.Value)
		if bid.UpdatedAt.After(entry.LastBidAt) {
			entry.LastBidAt = bid.UpdatedAt
		}
	}

	entries := make([]types.RankEntry, 0, len(totals))
	for _, entry := range totals {
		entries = append(entries, *entry)
	}

	sort.Slice(entries, func(i, j int) bool {
		if cmp := entries[i].Total.Cmp(entries[j].Total); cmp != 0 {
			return cmp < 0
		}
		if !entries[i].LastBidAt.Equal(entries[j].LastBidAt) {
			return entries[i].LastBidAt.Before(entries[j].LastBidAt)
		}
		return entries[i].SupplierID < entries[j].SupplierID
	})

	for i := range entries {
		entries[i].Rank = i + 1
		entries[i].Label = RankLabel(i + 1)
	}
	return entries
}

// RankLabel renders a 1-based rank position as its conventional label
// (L1 = current best bidder).
func RankLabel(rank int) string {
	return fmt.Sprintf("L%d", rank)
}
