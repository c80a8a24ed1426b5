package application

import "github.com/bnema/slotwall/internal/domain"

// SetVisible shows or hides bound slots without touching bindings. Showing
// only reveals slots whose occupant ranks above Unviewed.
func (a *Allocator) SetVisible(visible bool) {
	a.visible = visible
	for _, slot := range a.pool.Slots() {
		if slot.Empty() {
			continue
		}
		if visible && a.occupant(slot.Item).Priority <= domain.PriorityUnviewed {
			continue
		}
		a.activator.SetVisible(slot.Index, visible)
	}
}

func (a *Allocator) Visible() bool {
	return a.visible
}

// Snapshot captures the wall for display.
func (a *Allocator) Snapshot() WallSnapshot {
	slots := a.pool.Slots()
	views := make([]SlotView, 0, len(slots))
	for _, slot := range slots {
		view := SlotView{Index: slot.Index, Item: slot.Item, Active: slot.Active}
		if !slot.Empty() {
			item := a.occupant(slot.Item)
			view.Priority = item.Priority
			view.Terminal = item.Terminal
			view.LastUsed = item.LastUsed
			view.Claimant, _ = a.claimants.ClaimantOf(slot.Item)
		}
		views = append(views, view)
	}

	return WallSnapshot{
		Slots:           views,
		Capacity:        a.cfg.Capacity,
		Expanded:        a.pool.Expanded(),
		Visible:         a.visible,
		Suppressed:      a.suppressed,
		AutomaticWall:   a.cfg.AutomaticWall,
		PendingReleases: a.pending,
		Items:           a.registry.Len(),
		TakenAt:         a.clock.Now(),
	}
}
