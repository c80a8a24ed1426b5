package application

import (
	"time"

	"github.com/bnema/slotwall/internal/domain"
)

type SlotView struct {
	Index    domain.SlotIndex
	Item     domain.ItemID
	Priority domain.Priority
	Claimant string
	Terminal bool
	Active   bool
	LastUsed time.Time
}

type WallSnapshot struct {
	Slots           []SlotView
	Capacity        domain.Capacity
	Expanded        bool
	Visible         bool
	Suppressed      bool
	AutomaticWall   bool
	PendingReleases int
	Items           int
	TakenAt         time.Time
}

func (s WallSnapshot) Bound() int {
	n := 0
	for _, slot := range s.Slots {
		if slot.Item != "" {
			n++
		}
	}
	return n
}

// SlotOf returns the slot holding id in the snapshot.
func (s WallSnapshot) SlotOf(id domain.ItemID) (domain.SlotIndex, bool) {
	for _, slot := range s.Slots {
		if slot.Item == id {
			return slot.Index, true
		}
	}
	return domain.NoSlot, false
}
