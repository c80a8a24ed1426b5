package ports

import "time"

type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

// Scheduler runs f once after d. Implementations may call f on any goroutine;
// callers that need serialization re-post f onto their own loop.
type Scheduler interface {
	AfterFunc(d time.Duration, f func())
}

// VirtualTime is a Clock and Scheduler whose time moves only when advanced.
// Advance fires due callbacks synchronously in deadline order.
type VirtualTime interface {
	Clock
	Scheduler
	Advance(d time.Duration)
}
