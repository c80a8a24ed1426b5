package ratelimit

import (
	"sync"
	"time"

	"github.com/bnema/slotwall/internal/ports"
	"golang.org/x/time/rate"
)

const defaultIdleTTL = 15 * time.Minute

// Limiter keeps one token bucket per requester. Allow sweeps out requesters
// idle for longer than idleTTL, at most once per idleTTL.
type Limiter struct {
	mu        sync.Mutex
	entries   map[string]*entry
	rps       rate.Limit
	burst     int
	idleTTL   time.Duration
	lastSweep time.Time
	now       func() time.Time
}

type entry struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

var _ ports.ManualViewLimiter = (*Limiter)(nil)

type Option func(*Limiter)

// WithIdleTTL sets how long an idle requester keeps its bucket. Zero or less
// keeps the default.
func WithIdleTTL(d time.Duration) Option {
	return func(l *Limiter) {
		if d > 0 {
			l.idleTTL = d
		}
	}
}

func WithNow(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

func New(rps float64, burst int, opts ...Option) *Limiter {
	if burst < 1 {
		burst = 1
	}
	l := &Limiter{
		entries: make(map[string]*entry),
		rps:     rate.Limit(rps),
		burst:   burst,
		idleTTL: defaultIdleTTL,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	l.lastSweep = l.now()
	return l
}

// Allow implements ports.ManualViewLimiter. Requests without a requester share
// one bucket.
func (l *Limiter) Allow(requester string) bool {
	now := l.now()

	l.mu.Lock()
	if now.Sub(l.lastSweep) >= l.idleTTL {
		l.sweepLocked(now)
	}
	ent, ok := l.entries[requester]
	if !ok {
		ent = &entry{lim: rate.NewLimiter(l.rps, l.burst)}
		l.entries[requester] = ent
	}
	ent.lastSeen = now
	l.mu.Unlock()

	return ent.lim.AllowN(now, 1)
}

func (l *Limiter) sweepLocked(now time.Time) {
	cutoff := now.Add(-l.idleTTL)
	for k, ent := range l.entries {
		if ent.lastSeen.Before(cutoff) {
			delete(l.entries, k)
		}
	}
	l.lastSweep = now
}
