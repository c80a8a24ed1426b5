package timer

import (
	"time"

	"github.com/bnema/slotwall/internal/ports"
)

// Real schedules callbacks on the runtime timer. Callbacks run on their own
// goroutine.
type Real struct{}

var _ ports.Scheduler = Real{}

func (Real) AfterFunc(d time.Duration, f func()) {
	time.AfterFunc(d, f)
}
