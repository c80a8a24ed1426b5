package domain

import "fmt"

type SlotIndex int

const NoSlot SlotIndex = -1

// Slot is a fixed viewing resource. An empty Item means the slot is unbound.
type Slot struct {
	Index  SlotIndex
	Item   ItemID
	Active bool
	// Version changes on every binding change.
	Version uint64
}

func (s Slot) Empty() bool {
	return s.Item == ""
}

type Capacity struct {
	Base     int
	Expanded int
}

func (c Capacity) Validate() error {
	if c.Base <= 0 {
		return fmt.Errorf("base capacity must be positive")
	}
	if c.Expanded <= c.Base {
		return fmt.Errorf("expanded capacity %d must exceed base capacity %d", c.Expanded, c.Base)
	}

	return nil
}

// ReleaseGuard snapshots a binding so a deferred release can tell whether the
// slot changed hands while it was pending.
type ReleaseGuard struct {
	Slot    SlotIndex
	Item    ItemID
	Version uint64
}

// Pool is the ordered slot collection. Its length is always Capacity.Base or
// Capacity.Expanded. Pool does not enforce one slot per item; callers check
// SlotOf before binding.
type Pool struct {
	capacity Capacity
	slots    []Slot
	versions uint64
}

func NewPool(capacity Capacity) (*Pool, error) {
	if err := capacity.Validate(); err != nil {
		return nil, err
	}

	p := &Pool{capacity: capacity}
	p.append(capacity.Base)
	return p, nil
}

func (p *Pool) Capacity() Capacity {
	return p.capacity
}

func (p *Pool) Len() int {
	return len(p.slots)
}

func (p *Pool) Expanded() bool {
	return len(p.slots) == p.capacity.Expanded
}

func (p *Pool) At(index SlotIndex) (Slot, bool) {
	if index < 0 || int(index) >= len(p.slots) {
		return Slot{}, false
	}
	return p.slots[index], true
}

// Slots returns a copy of the slot list.
func (p *Pool) Slots() []Slot {
	out := make([]Slot, len(p.slots))
	copy(out, p.slots)
	return out
}

func (p *Pool) SlotOf(id ItemID) (SlotIndex, bool) {
	if id == "" {
		return NoSlot, false
	}
	for _, slot := range p.slots {
		if slot.Item == id {
			return slot.Index, true
		}
	}
	return NoSlot, false
}

func (p *Pool) Guard(index SlotIndex) (ReleaseGuard, bool) {
	slot, ok := p.At(index)
	if !ok || slot.Empty() {
		return ReleaseGuard{}, false
	}
	return ReleaseGuard{Slot: slot.Index, Item: slot.Item, Version: slot.Version}, true
}

// Holds reports whether the guarded binding is still current.
func (p *Pool) Holds(guard ReleaseGuard) bool {
	slot, ok := p.At(guard.Slot)
	if !ok {
		return false
	}
	return slot.Item == guard.Item && slot.Version == guard.Version
}

// Bind replaces the slot's occupant and returns the previous one.
func (p *Pool) Bind(index SlotIndex, id ItemID) (ItemID, error) {
	if _, ok := p.At(index); !ok {
		return "", fmt.Errorf("slot %d out of range", index)
	}

	slot := &p.slots[index]
	previous := slot.Item
	slot.Item = id
	slot.Active = id != ""
	p.versions++
	slot.Version = p.versions
	return previous, nil
}

func (p *Pool) Unbind(index SlotIndex) (ItemID, error) {
	return p.Bind(index, "")
}

// Grow moves the pool to expanded capacity, appending empty inactive slots.
func (p *Pool) Grow() error {
	if p.Expanded() {
		return fmt.Errorf("grow pool at %d slots: %w", len(p.slots), ErrInvalidCapacityTransition)
	}

	p.append(p.capacity.Expanded - len(p.slots))
	return nil
}

// Shrink drops every slot beyond base capacity and returns them. Callers must
// have unbound them first.
func (p *Pool) Shrink() ([]Slot, error) {
	if !p.Expanded() {
		return nil, fmt.Errorf("shrink pool at %d slots: %w", len(p.slots), ErrInvalidCapacityTransition)
	}
	for _, slot := range p.slots[p.capacity.Base:] {
		if !slot.Empty() {
			return nil, fmt.Errorf("shrink pool: slot %d still bound to %s: %w", slot.Index, slot.Item, ErrInvalidCapacityTransition)
		}
	}

	removed := make([]Slot, len(p.slots)-p.capacity.Base)
	copy(removed, p.slots[p.capacity.Base:])
	p.slots = p.slots[:p.capacity.Base]
	return removed, nil
}

func (p *Pool) append(n int) {
	for i := 0; i < n; i++ {
		p.slots = append(p.slots, Slot{Index: SlotIndex(len(p.slots))})
	}
}
