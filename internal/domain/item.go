package domain

import (
	"sort"
	"time"
)

type ItemID string

// DemandItem is the bookkeeping record for a single item competing for a slot.
// Bindings are owned by Pool; the item never references its slot.
type DemandItem struct {
	ID       ItemID
	Priority Priority
	LastUsed time.Time
	Terminal bool
	// Seq is the observation order within the session.
	Seq uint64
}

// Registry tracks every item observed in a session. Entries are never removed.
type Registry struct {
	items   map[ItemID]*DemandItem
	nextSeq uint64
}

func NewRegistry() *Registry {
	return &Registry{items: map[ItemID]*DemandItem{}}
}

// Ensure returns the entry for id, creating it with LastUsed set to now on
// first observation.
func (r *Registry) Ensure(id ItemID, now time.Time) *DemandItem {
	if item, ok := r.items[id]; ok {
		return item
	}

	item := &DemandItem{ID: id, Priority: PriorityUnviewed, LastUsed: now, Seq: r.nextSeq}
	r.nextSeq++
	r.items[id] = item
	return item
}

func (r *Registry) Get(id ItemID) (*DemandItem, bool) {
	item, ok := r.items[id]
	return item, ok
}

func (r *Registry) Len() int {
	return len(r.items)
}

// Items returns the entries in observation order.
func (r *Registry) Items() []*DemandItem {
	items := make([]*DemandItem, 0, len(r.items))
	for _, item := range r.items {
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].Seq < items[j].Seq
	})
	return items
}

// Outranks reports whether a should be preferred over b when choosing an item
// to view: higher priority first, then least recently used, then first seen.
func Outranks(a, b *DemandItem) bool {
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	if !a.LastUsed.Equal(b.LastUsed) {
		return a.LastUsed.Before(b.LastUsed)
	}
	return a.Seq < b.Seq
}
