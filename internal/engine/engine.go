// Package engine owns the bid ledger, rank computation and the auction
// lifecycle. All writes for one auction go through a per-auction critical
// section; the only state the engine trusts is what the store has committed.
package engine

import (
	"context"
	"time"

	apperrors "github.com/bidlane/auction-server/pkg/errors"
	"github.com/bidlane/auction-server/pkg/types"
	"github.com/charmbracelet/log"
)

// Store is the slice of the persistence layer the engine depends on.
// database.Service satisfies it.
type Store interface {
	GetAuction(ctx context.Context, id string) (types.Auction, error)
	ListItems(ctx context.Context, auctionID string) ([]types.AuctionItem, error)
	ListBids(ctx context.Context, auctionID string) ([]types.Bid, error)
	UpsertBidBatch(ctx context.Context, auctionID, supplierID string, entries []types.BidEntry, ts time.Time) error
	SetAuctionActive(ctx context.Context, id string, active, manual bool) (bool, error)
	ListExpiredAuctions(ctx context.Context, now time.Time) ([]types.Auction, error)
	ListSuppliersByIDs(ctx context.Context, ids []string) (map[string]types.Supplier, error)
}

// Broadcaster delivers state changes to subscribers. Implementations must not
// block; delivery failures stay inside the broadcaster.
type Broadcaster interface {
	PublishRank(auctionID string, entry types.RankEntry)
	PublishAuctionChanged(auctionID string)
	PublishAuctionClosed(auctionID string)
}

type Engine struct {
	store    Store
	hub      Broadcaster
	locks    *lockTable
	lockWait time.Duration
	now      func() time.Time
}

func New(store Store, hub Broadcaster, lockWait time.Duration) *Engine {
	return &Engine{
		store:    store,
		hub:      hub,
		locks:    newLockTable(),
		lockWait: lockWait,
		now:      time.Now,
	}
}

// SubmitBatch applies one supplier's bid batch to an open auction as a single
// atomic unit, then fans out the fresh ranks: one private message per ranked
// supplier, followed by one public auction-changed signal.
func (e *Engine) SubmitBatch(ctx context.Context, auctionID, supplierID string, entries []types.BidEntry) error {
	if supplierID == "" {
		return apperrors.New(apperrors.ErrValidation, "missing supplier id")
	}
	if len(entries) == 0 {
		return apperrors.New(apperrors.ErrValidation, "empty bid batch")
	}
	for _, entry := range entries {
		if entry.ItemID == "" {
			return apperrors.New(apperrors.ErrValidation, "missing item id in bid batch")
		}
		if entry.Value.IsNegative() {
			return apperrors.Newf(apperrors.ErrValidation, "negative bid value for item %s", entry.ItemID)
		}
	}

	release, err := e.locks.acquire(ctx, auctionID, e.lockWait)
	if err != nil {
		return err
	}
	defer release()

	auction, err := e.store.GetAuction(ctx, auctionID)
	if err != nil {
		return err
	}
	now := e.now()
	// Late bids lose the race against the deadline even if the expiry sweep
	// has not caught up yet.
	if !auction.IsActive || now.After(auction.EndsAt) {
		return apperrors.Newf(apperrors.ErrAuctionClosed, "auction %s is closed", auctionID)
	}

	items, err := e.store.ListItems(ctx, auctionID)
	if err != nil {
		return err
	}
	known := make(map[string]bool, len(items))
	for _, item := range items {
		known[item.ID] = true
	}
	for _, entry := range entries {
		if !known[entry.ItemID] {
			return apperrors.Newf(apperrors.ErrUnknownItem, "item %s does not belong to auction %s", entry.ItemID, auctionID)
		}
	}

	if err := e.store.UpsertBidBatch(ctx, auctionID, supplierID, entries, now); err != nil {
		return apperrors.Wrap(err, "failed to apply bid batch")
	}

	bids, err := e.store.ListBids(ctx, auctionID)
	if err != nil {
		// The batch is committed; the fan-out is best effort anyway.
		log.Error("Failed to reload bids after batch", "auction", auctionID, "error", err)
		return nil
	}

	// Private rank updates first, then the public changed signal, so no
	// listener can observe the change before the ranks it produced.
	for _, entry := range ComputeRanks(bids) {
		e.hub.PublishRank(auctionID, entry)
	}
	e.hub.PublishAuctionChanged(auctionID)

	log.Debugf("Bid batch applied: auction=%s supplier=%s entries=%d", auctionID, supplierID, len(entries))
	return nil
}

// CloseAuction moves an auction into its terminal state. Closing an already
// closed auction is a no-op signaled with the already-closed code.
func (e *Engine) CloseAuction(ctx context.Context, auctionID string, manual bool) error {
	release, err := e.locks.acquire(ctx, auctionID, e.lockWait)
	if err != nil {
		return err
	}
	defer release()

	return e.closeLocked(ctx, auctionID, manual)
}

func (e *Engine) closeLocked(ctx context.Context, auctionID string, manual bool) error {
	auction, err := e.store.GetAuction(ctx, auctionID)
	if err != nil {
		return err
	}
	if !auction.IsActive {
		return apperrors.Newf(apperrors.ErrAlreadyClosed, "auction %s is already closed", auctionID)
	}

	transitioned, err := e.store.SetAuctionActive(ctx, auctionID, false, manual)
	if err != nil {
		return apperrors.Wrap(err, "failed to close auction")
	}
	if !transitioned {
		// Someone else won the race between our read and our update.
		return apperrors.Newf(apperrors.ErrAlreadyClosed, "auction %s is already closed", auctionID)
	}

	e.hub.PublishAuctionClosed(auctionID)
	log.Info("Auction closed", "auction", auctionID, "manual", manual)
	return nil
}

// SweepExpired closes every active auction whose deadline has passed. It is
// called opportunistically from auction listing reads, is idempotent, and
// tolerates concurrent sweeps: only the caller that performs the transition
// emits the closed event.
func (e *Engine) SweepExpired(ctx context.Context) (int, error) {
	expired, err := e.store.ListExpiredAuctions(ctx, e.now())
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to list expired auctions")
	}

	closed := 0
	for _, auction := range expired {
		err := e.CloseAuction(ctx, auction.ID, false)
		if err == nil {
			closed++
			continue
		}
		switch apperrors.CodeOf(err) {
		case apperrors.ErrAlreadyClosed:
			// A concurrent sweep or manual close got there first.
		case apperrors.ErrBusy:
			log.Debugf("Skipping busy auction %s during sweep", auction.ID)
		default:
			log.Error("Failed to close expired auction", "auction", auction.ID, "error", err)
		}
	}
	return closed, nil
}

// Summary builds the buyer-facing reporting view: every supplier's total with
// their rank, ascending. This view names all suppliers and is meant for
// closed or buyer-authorized reporting, not for the live private channel.
func (e *Engine) Summary(ctx context.Context, auctionID string) ([]types.SummaryRow, error) {
	if _, err := e.store.GetAuction(ctx, auctionID); err != nil {
		return nil, err
	}

	bids, err := e.store.ListBids(ctx, auctionID)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list bids")
	}

	entries := ComputeRanks(bids)
	ids := make([]string, 0, len(entries))
	for _, entry := range entries {
		ids = append(ids, entry.SupplierID)
	}
	suppliers, err := e.store.ListSuppliersByIDs(ctx, ids)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to resolve suppliers")
	}

	rows := make([]types.SummaryRow, 0, len(entries))
	for _, entry := range entries {
		rows = append(rows, types.SummaryRow{
			Rank:         entry.Rank,
			SupplierName: suppliers[entry.SupplierID].Name,
			Total:        entry.Total,
		})
	}
	return rows, nil
}
