package stats

import (
	"context"
	"sync"

	"github.com/bnema/slotwall/internal/domain"
	"github.com/bnema/slotwall/internal/ports"
)

type Counters struct {
	Admitted     int64
	Denied       int64
	AlreadyBound int64
}

func (c *Counters) add(outcome domain.Outcome) {
	switch outcome {
	case domain.OutcomeAdmitted:
		c.Admitted++
	case domain.OutcomeAlreadyBound:
		c.AlreadyBound++
	default:
		c.Denied++
	}
}

// MemoryRecorder counts decisions in memory. It never expires anything and
// is meant for simulations and tests.
type MemoryRecorder struct {
	mu          sync.Mutex
	total       Counters
	byAction    map[string]Counters
	byRequester map[string]Counters

	trackRequesters bool
}

var _ ports.DecisionRecorder = (*MemoryRecorder)(nil)

type MemoryOption func(*MemoryRecorder)

func WithTrackRequesters(track bool) MemoryOption {
	return func(r *MemoryRecorder) { r.trackRequesters = track }
}

func NewMemoryRecorder(opts ...MemoryOption) *MemoryRecorder {
	r := &MemoryRecorder{
		byAction:    make(map[string]Counters),
		byRequester: make(map[string]Counters),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *MemoryRecorder) Record(_ context.Context, decision domain.Decision) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.total.add(decision.Outcome)

	c := r.byAction[decision.Action]
	c.add(decision.Outcome)
	r.byAction[decision.Action] = c

	if r.trackRequesters && decision.Requester != "" {
		k := r.byRequester[decision.Requester]
		k.add(decision.Outcome)
		r.byRequester[decision.Requester] = k
	}
	return nil
}

func (r *MemoryRecorder) Total() Counters {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.total
}

func (r *MemoryRecorder) ByAction() map[string]Counters {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]Counters, len(r.byAction))
	for k, v := range r.byAction {
		out[k] = v
	}
	return out
}

func (r *MemoryRecorder) ByRequester() map[string]Counters {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]Counters, len(r.byRequester))
	for k, v := range r.byRequester {
		out[k] = v
	}
	return out
}
