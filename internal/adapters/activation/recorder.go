package activation

import (
	"fmt"
	"sync"

	"github.com/bnema/slotwall/internal/domain"
	"github.com/bnema/slotwall/internal/ports"
)

type EventKind string

const (
	EventActivate   EventKind = "activate"
	EventDeactivate EventKind = "deactivate"
	EventShow       EventKind = "show"
	EventHide       EventKind = "hide"
)

type Event struct {
	Kind EventKind
	Slot domain.SlotIndex
	Item domain.ItemID
}

func (e Event) String() string {
	if e.Item == "" {
		return fmt.Sprintf("%s %d", e.Kind, e.Slot)
	}
	return fmt.Sprintf("%s %d %s", e.Kind, e.Slot, e.Item)
}

// Recorder keeps the activation state of every slot in memory, plus the
// ordered event history. It forwards calls to next when set.
type Recorder struct {
	mu     sync.Mutex
	active map[domain.SlotIndex]domain.ItemID
	hidden map[domain.SlotIndex]bool
	events []Event
	next   ports.Activator
}

var _ ports.Activator = (*Recorder)(nil)

func NewRecorder(next ports.Activator) *Recorder {
	return &Recorder{
		active: map[domain.SlotIndex]domain.ItemID{},
		hidden: map[domain.SlotIndex]bool{},
		next:   next,
	}
}

func (r *Recorder) Activate(slot domain.SlotIndex, item domain.ItemID) {
	r.mu.Lock()
	r.active[slot] = item
	r.events = append(r.events, Event{Kind: EventActivate, Slot: slot, Item: item})
	r.mu.Unlock()

	if r.next != nil {
		r.next.Activate(slot, item)
	}
}

func (r *Recorder) Deactivate(slot domain.SlotIndex) {
	r.mu.Lock()
	delete(r.active, slot)
	delete(r.hidden, slot)
	r.events = append(r.events, Event{Kind: EventDeactivate, Slot: slot})
	r.mu.Unlock()

	if r.next != nil {
		r.next.Deactivate(slot)
	}
}

func (r *Recorder) SetVisible(slot domain.SlotIndex, visible bool) {
	r.mu.Lock()
	kind := EventShow
	if visible {
		delete(r.hidden, slot)
	} else {
		r.hidden[slot] = true
		kind = EventHide
	}
	r.events = append(r.events, Event{Kind: kind, Slot: slot, Item: r.active[slot]})
	r.mu.Unlock()

	if r.next != nil {
		r.next.SetVisible(slot, visible)
	}
}

// Active returns the item shown by slot.
func (r *Recorder) Active(slot domain.SlotIndex) (domain.ItemID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.active[slot]
	return item, ok
}

func (r *Recorder) ActiveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.active)
}

func (r *Recorder) Hidden(slot domain.SlotIndex) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.hidden[slot]
}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}
