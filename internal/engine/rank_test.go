package engine

import (
	"testing"
	"time"

	"github.com/bidlane/auction-server/pkg/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func bid(supplierID, itemID string, value int64, at time.Time) types.Bid {
	return types.Bid{
		SupplierID:    supplierID,
		AuctionID:     "auction-1",
		AuctionItemID: itemID,
		Value:         decimal.NewFromInt(value),
		UpdatedAt:     at,
	}
}

func TestComputeRanks_Empty(t *testing.T) {
	t.Parallel()
	require.Empty(t, ComputeRanks(nil))
	require.Empty(t, ComputeRanks([]types.Bid{}))
}

func TestComputeRanks_LowestTotalWins(t *testing.T) {
	t.Parallel()
	now := time.Now()

	// S1 total 150, S2 total 130 -> S2 is L1.
	bids := []types.Bid{
		bid("s1", "i1", 100, now),
		bid("s1", "i2", 50, now),
		bid("s2", "i1", 90, now.Add(time.Second)),
		bid("s2", "i2", 40, now.Add(time.Second)),
	}

	ranks := ComputeRanks(bids)
	require.Len(t, ranks, 2)

	require.Equal(t, "s2", ranks[0].SupplierID)
	require.Equal(t, 1, ranks[0].Rank)
	require.Equal(t, "L1", ranks[0].Label)
	require.True(t, ranks[0].Total.Equal(decimal.NewFromInt(130)))

	require.Equal(t, "s1", ranks[1].SupplierID)
	require.Equal(t, 2, ranks[1].Rank)
	require.Equal(t, "L2", ranks[1].Label)
	require.True(t, ranks[1].Total.Equal(decimal.NewFromInt(150)))
}

func TestComputeRanks_TieBrokenByLastBidTime(t *testing.T) {
	t.Parallel()
	t0 := time.Now()

	// S1 bid first but resubmitted i1 later; both totals are 130, so the
	// supplier whose most recent move is older (S2) keeps the better rank.
	bids := []types.Bid{
		bid("s1", "i1", 80, t0.Add(2*time.Minute)), // resubmission
		bid("s1", "i2", 50, t0),
		bid("s2", "i1", 90, t0.Add(time.Minute)),
		bid("s2", "i2", 40, t0.Add(time.Minute)),
	}

	ranks := ComputeRanks(bids)
	require.Len(t, ranks, 2)
	require.Equal(t, "s2", ranks[0].SupplierID)
	require.Equal(t, 1, ranks[0].Rank)
	require.Equal(t, "s1", ranks[1].SupplierID)
	require.Equal(t, 2, ranks[1].Rank)
	require.True(t, ranks[0].Total.Equal(ranks[1].Total))
}

func TestComputeRanks_TieBrokenBySupplierID(t *testing.T) {
	t.Parallel()
	now := time.Now()

	bids := []types.Bid{
		bid("s-b", "i1", 100, now),
		bid("s-a", "i1", 100, now),
	}

	ranks := ComputeRanks(bids)
	require.Len(t, ranks, 2)
	require.Equal(t, "s-a", ranks[0].SupplierID)
	require.Equal(t, "s-b", ranks[1].SupplierID)
}

func TestComputeRanks_PermutationAndDeterminism(t *testing.T) {
	t.Parallel()
	now := time.Now()

	bids := []types.Bid{
		bid("s1", "i1", 500, now),
		bid("s2", "i1", 300, now.Add(time.Second)),
		bid("s3", "i1", 300, now.Add(2*time.Second)),
		bid("s4", "i1", 700, now.Add(3*time.Second)),
		bid("s5", "i2", 100, now.Add(4*time.Second)),
		bid("s5", "i1", 200, now.Add(5*time.Second)),
	}

	ranks := ComputeRanks(bids)
	require.Len(t, ranks, 5)

	// Ranks are a gapless permutation of 1..N.
	seen := make(map[int]bool)
	for i, entry := range ranks {
		require.Equal(t, i+1, entry.Rank)
		require.False(t, seen[entry.Rank])
		seen[entry.Rank] = true
	}

	// Totals are non-decreasing.
	for i := 1; i < len(ranks); i++ {
		require.True(t, ranks[i-1].Total.Cmp(ranks[i].Total) <= 0)
	}

	// Re-running on identical input yields an identical result.
	require.Equal(t, ranks, ComputeRanks(bids))
}

func TestComputeRanks_MultipleItemsSummed(t *testing.T) {
	t.Parallel()
	now := time.Now()

	bids := []types.Bid{
		bid("s1", "i1", 10, now),
		bid("s1", "i2", 20, now),
		bid("s1", "i3", 30, now),
	}

	ranks := ComputeRanks(bids)
	require.Len(t, ranks, 1)
	require.True(t, ranks[0].Total.Equal(decimal.NewFromInt(60)))
	require.Equal(t, now.Unix(), ranks[0].LastBidAt.Unix())
}
