package application

import (
	"fmt"

	"github.com/bnema/slotwall/internal/domain"
	"go.uber.org/zap"
)

// EnableExpansion grows the pool to expanded capacity and fills the new slots.
func (a *Allocator) EnableExpansion() error {
	if err := a.expand(); err != nil {
		return err
	}
	a.fillEmptySlots()
	return nil
}

// DisableExpansion shrinks the pool back to base capacity.
func (a *Allocator) DisableExpansion() error {
	return a.contract()
}

// SetWallSuppressed toggles the mode override for the automatic wall.
func (a *Allocator) SetWallSuppressed(suppressed bool) {
	a.suppressed = suppressed
}

func (a *Allocator) automaticWall() bool {
	return a.cfg.AutomaticWall && !a.suppressed
}

func (a *Allocator) shouldExpand() bool {
	if !a.automaticWall() || a.pool.Expanded() {
		return false
	}
	return a.distinctClaimants() >= a.cfg.Capacity.Base
}

// distinctClaimants counts claimant identities across bound, unsolved items.
func (a *Allocator) distinctClaimants() int {
	seen := map[string]struct{}{}
	for _, slot := range a.pool.Slots() {
		if slot.Empty() || a.occupant(slot.Item).Terminal {
			continue
		}
		claimant, ok := a.claimants.ClaimantOf(slot.Item)
		if !ok || claimant == "" {
			continue
		}
		seen[claimant] = struct{}{}
	}
	return len(seen)
}

func (a *Allocator) expand() error {
	if err := a.pool.Grow(); err != nil {
		a.logger.Warn("wall already enabled", zap.Error(err))
		return err
	}

	a.logger.Info("wall enabled", zap.Int("slots", a.pool.Len()))
	return nil
}

// fillEmptySlots binds the preferred unbound items while empty slots remain.
func (a *Allocator) fillEmptySlots() {
	for a.hasEmptySlot() {
		candidate := a.preferredUnbound("")
		if candidate == nil {
			return
		}
		if a.admit(candidate, admitBackfill) != domain.OutcomeAdmitted {
			return
		}
	}
}

func (a *Allocator) hasEmptySlot() bool {
	for _, slot := range a.pool.Slots() {
		if slot.Empty() {
			return true
		}
	}
	return false
}

// contract releases every slot beyond base capacity, drops them, and re-homes
// up to Base unbound items into the remaining slots.
func (a *Allocator) contract() error {
	if !a.pool.Expanded() {
		err := fmt.Errorf("contract pool at %d slots: %w", a.pool.Len(), domain.ErrInvalidCapacityTransition)
		a.logger.Warn("wall already disabled", zap.Error(err))
		return err
	}

	base := a.cfg.Capacity.Base
	for index := base; index < a.pool.Len(); index++ {
		a.unbind(domain.SlotIndex(index))
	}

	removed, err := a.pool.Shrink()
	if err != nil {
		a.logger.Error("shrink pool", zap.Error(err))
		return err
	}
	a.logger.Info("wall disabled", zap.Int("slots", a.pool.Len()), zap.Int("removed", len(removed)))

	for i := 0; i < base; i++ {
		candidate := a.preferredUnbound("")
		if candidate == nil {
			break
		}
		if a.admit(candidate, admitBackfill) != domain.OutcomeAdmitted {
			break
		}
	}

	return nil
}

// maybeContract disables an automatic wall once it no longer has enough
// claimed, unsolved items to justify it.
func (a *Allocator) maybeContract() {
	if !a.automaticWall() || !a.pool.Expanded() {
		return
	}

	claimed := 0
	for _, slot := range a.pool.Slots() {
		if slot.Empty() {
			continue
		}
		item := a.occupant(slot.Item)
		if !item.Terminal && item.Priority >= domain.PriorityClaimed {
			claimed++
		}
	}

	if claimed <= a.cfg.Capacity.Base {
		_ = a.contract()
	}
}
