package application

import (
	"fmt"
	"time"

	"github.com/bnema/slotwall/internal/domain"
	"go.uber.org/zap"
)

// ReleaseView drops id's priority and frees its slot. Terminal items keep the
// slot for the configured grace delay; other releases take effect at once.
// The release is skipped if the slot changes hands before it fires.
func (a *Allocator) ReleaseView(id domain.ItemID, terminal bool) error {
	item, ok := a.registry.Get(id)
	if !ok {
		return fmt.Errorf("release %s: %w", id, domain.ErrItemNotFound)
	}

	var delay time.Duration
	if terminal {
		item.Terminal = true
		item.Priority = domain.PriorityUnviewed
		delay = a.cfg.ReleaseDelay
	} else if _, claimed := a.claimants.ClaimantOf(id); claimed && !item.Terminal {
		item.Priority = domain.PriorityClaimed
	} else {
		item.Priority = domain.PriorityUnviewed
	}

	index, bound := a.pool.SlotOf(id)
	if !bound {
		a.logger.Debug("release for unbound item", zap.String("item", string(id)))
		return nil
	}

	guard, _ := a.pool.Guard(index)
	if delay <= 0 {
		a.fireRelease(guard)
		return nil
	}

	a.pending++
	a.scheduler.AfterFunc(delay, func() {
		a.pending--
		a.fireRelease(guard)
	})
	a.logger.Debug("release scheduled",
		zap.String("item", string(id)),
		zap.Int("slot", int(index)),
		zap.Duration("delay", delay))
	return nil
}

// PendingReleases reports scheduled releases that have not fired yet.
func (a *Allocator) PendingReleases() int {
	return a.pending
}

// fireRelease frees the guarded slot if it still holds the same binding and
// backfills it. The automatic wall is re-evaluated either way.
func (a *Allocator) fireRelease(guard domain.ReleaseGuard) bool {
	if !a.pool.Holds(guard) {
		a.logger.Debug("release skipped",
			zap.String("item", string(guard.Item)),
			zap.Int("slot", int(guard.Slot)),
			zap.Error(domain.ErrStaleRelease))
		a.maybeContract()
		return false
	}

	candidate := a.preferredUnbound(guard.Item)
	a.unbind(guard.Slot)
	if candidate != nil {
		a.admit(candidate, admitBackfill)
	}

	a.maybeContract()
	return true
}
