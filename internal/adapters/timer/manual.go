package timer

import (
	"container/heap"
	"sync"
	"time"

	"github.com/bnema/slotwall/internal/ports"
)

// Manual is a virtual clock. Time stands still until Advance is called, and
// AfterFunc callbacks fire synchronously inside Advance in deadline order.
// Callbacks scheduled with d <= 0 run before AfterFunc returns.
//
// Manual is safe for concurrent use, but callbacks must not call Advance.
type Manual struct {
	mu      sync.Mutex
	current time.Time
	waiters waiterHeap
	nextSeq uint64
}

type waiter struct {
	deadline time.Time
	seq      uint64
	callback func()
}

var _ ports.VirtualTime = (*Manual)(nil)

func NewManual(start time.Time) *Manual {
	return &Manual{current: start}
}

func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

func (m *Manual) AfterFunc(d time.Duration, f func()) {
	if d <= 0 {
		f()
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	heap.Push(&m.waiters, &waiter{deadline: m.current.Add(d), seq: m.nextSeq, callback: f})
	m.nextSeq++
}

// Advance moves time forward by d. Each due callback observes Now() equal to
// its own deadline; callbacks scheduled while advancing fire too if they fall
// inside the window.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.current.Add(d)
	m.mu.Unlock()

	for {
		next, ok := m.popDue(target)
		if !ok {
			break
		}
		next.callback()
	}

	m.mu.Lock()
	if m.current.Before(target) {
		m.current = target
	}
	m.mu.Unlock()
}

// Pending returns the number of callbacks that have not fired.
func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.waiters)
}

func (m *Manual) popDue(target time.Time) (*waiter, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.waiters) == 0 || m.waiters[0].deadline.After(target) {
		return nil, false
	}

	next := heap.Pop(&m.waiters).(*waiter)
	if next.deadline.After(m.current) {
		m.current = next.deadline
	}
	return next, true
}

// waiterHeap orders waiters by deadline, then by scheduling order.
type waiterHeap []*waiter

func (h waiterHeap) Len() int { return len(h) }

func (h waiterHeap) Less(i, j int) bool {
	if !h[i].deadline.Equal(h[j].deadline) {
		return h[i].deadline.Before(h[j].deadline)
	}
	return h[i].seq < h[j].seq
}

func (h waiterHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *waiterHeap) Push(x any) { *h = append(*h, x.(*waiter)) }

func (h *waiterHeap) Pop() any {
	old := *h
	n := len(old)
	w := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return w
}
