package engine

import (
	"context"
	"sync"
	"time"

	apperrors "github.com/bidlane/auction-server/pkg/errors"
)

// lockTable hands out one critical section per auction id, so writers on the
// same auction serialize while unrelated auctions proceed in parallel.
// Acquisition waits at most the configured bound; there is no unbounded
// queueing of writers.
type lockTable struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
}

func newLockTable() *lockTable {
	return &lockTable{slots: make(map[string]chan struct{})}
}

func (t *lockTable) slot(id string) chan struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()
	slot, ok := t.slots[id]
	if !ok {
		slot = make(chan struct{}, 1)
		t.slots[id] = slot
	}
	return slot
}

// acquire enters the per-auction section. The returned release function must
// be called exactly once. A wait longer than maxWait fails with a retryable
// busy error.
func (t *lockTable) acquire(ctx context.Context, id string, maxWait time.Duration) (func(), error) {
	slot := t.slot(id)

	timer := time.NewTimer(maxWait)
	defer timer.Stop()

	select {
	case slot <- struct{}{}:
		return func() { <-slot }, nil
	case <-timer.C:
		return nil, apperrors.Newf(apperrors.ErrBusy, "auction %s is busy, retry later", id)
	case <-ctx.Done():
		return nil, apperrors.Wrap(ctx.Err(), "canceled while waiting for auction lock")
	}
}
