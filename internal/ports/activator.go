package ports

import "github.com/bnema/slotwall/internal/domain"

// Activator presents slot resources. Every binding change is reported, and
// implementations must tolerate repeated calls for the same state.
type Activator interface {
	Activate(slot domain.SlotIndex, item domain.ItemID)
	Deactivate(slot domain.SlotIndex)
	SetVisible(slot domain.SlotIndex, visible bool)
}

// ClaimantDirectory resolves who currently claims an item.
type ClaimantDirectory interface {
	ClaimantOf(item domain.ItemID) (string, bool)
}
