package application

import (
	"errors"
	"time"

	"github.com/bnema/slotwall/internal/domain"
	"github.com/bnema/slotwall/internal/ports"
	"go.uber.org/zap"
)

const (
	DefaultBaseCapacity     = 6
	DefaultExpandedCapacity = 18
	DefaultReleaseDelay     = time.Second
)

type AllocatorConfig struct {
	Capacity     domain.Capacity
	ReleaseDelay time.Duration
	// AutomaticWall lets the allocator expand and contract the pool on its own.
	AutomaticWall bool
	// WallSuppressed is the mode override that disables the automatic wall.
	WallSuppressed bool
}

func DefaultAllocatorConfig() AllocatorConfig {
	return AllocatorConfig{
		Capacity:      domain.Capacity{Base: DefaultBaseCapacity, Expanded: DefaultExpandedCapacity},
		ReleaseDelay:  DefaultReleaseDelay,
		AutomaticWall: true,
	}
}

func (c AllocatorConfig) Validate() error {
	if err := c.Capacity.Validate(); err != nil {
		return err
	}
	if c.ReleaseDelay < 0 {
		return errors.New("release delay must not be negative")
	}

	return nil
}

type AllocatorOption func(*Allocator)

func WithClock(clock ports.Clock) AllocatorOption {
	return func(a *Allocator) { a.clock = clock }
}

func WithClaimants(claimants ports.ClaimantDirectory) AllocatorOption {
	return func(a *Allocator) { a.claimants = claimants }
}

func WithLogger(logger *zap.Logger) AllocatorOption {
	return func(a *Allocator) { a.logger = logger }
}

// Allocator binds demand items to a bounded pool of viewing slots.
//
// It is not safe for concurrent use. Every call, including scheduled release
// callbacks, must run on the same goroutine; Session provides that loop.
type Allocator struct {
	cfg       AllocatorConfig
	registry  *domain.Registry
	pool      *domain.Pool
	activator ports.Activator
	scheduler ports.Scheduler
	claimants ports.ClaimantDirectory
	clock     ports.Clock
	logger    *zap.Logger

	suppressed bool
	visible    bool
	pending    int
}

// admission selects how a bind attempt may treat occupied slots.
type admission int

const (
	// admitRequest may expand the wall before evicting an equal occupant.
	admitRequest admission = iota
	// admitRetry evicts equal occupants without trying to expand again.
	admitRetry
	// admitBackfill only takes empty slots or lower-priority occupants.
	admitBackfill
)

func NewAllocator(cfg AllocatorConfig, activator ports.Activator, scheduler ports.Scheduler, opts ...AllocatorOption) (*Allocator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if scheduler == nil {
		return nil, errors.New("scheduler is required")
	}

	pool, err := domain.NewPool(cfg.Capacity)
	if err != nil {
		return nil, err
	}

	a := &Allocator{
		cfg:        cfg,
		registry:   domain.NewRegistry(),
		pool:       pool,
		activator:  activator,
		scheduler:  scheduler,
		suppressed: cfg.WallSuppressed,
		visible:    true,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.activator == nil {
		a.activator = nopActivator{}
	}
	if a.claimants == nil {
		a.claimants = noClaimants{}
	}
	if a.clock == nil {
		a.clock = ports.SystemClock{}
	}
	if a.logger == nil {
		a.logger = zap.NewNop()
	}

	return a, nil
}

// RequestView tries to bind id to a slot at the given priority.
func (a *Allocator) RequestView(id domain.ItemID, priority domain.Priority) domain.Outcome {
	if id == "" || !priority.Valid() {
		a.logger.Warn("rejecting malformed view request", zap.String("item", string(id)), zap.Stringer("priority", priority))
		return domain.OutcomeDenied
	}

	item := a.registry.Ensure(id, a.clock.Now())
	if index, ok := a.pool.SlotOf(id); ok {
		if priority > item.Priority {
			item.Priority = priority
		}
		a.logger.Debug("item already bound", zap.String("item", string(id)), zap.Int("slot", int(index)))
		return domain.OutcomeAlreadyBound
	}

	item.Priority = priority
	return a.admit(item, admitRequest)
}

// Query returns the slot bound to id.
func (a *Allocator) Query(id domain.ItemID) (domain.SlotIndex, bool) {
	return a.pool.SlotOf(id)
}

func (a *Allocator) admit(item *domain.DemandItem, mode admission) domain.Outcome {
	slot, ok := a.eligibleSlot(item.Priority, mode == admitBackfill)
	if !ok {
		a.logger.Debug("no eligible slot", zap.String("item", string(item.ID)), zap.Stringer("priority", item.Priority))
		return domain.OutcomeDenied
	}

	if !slot.Empty() && mode == admitRequest && a.itemPriority(slot.Item) == item.Priority && a.shouldExpand() {
		if err := a.expand(); err == nil {
			outcome := a.admit(item, admitRetry)
			a.fillEmptySlots()
			return outcome
		}
	}

	a.bind(slot.Index, item)
	return domain.OutcomeAdmitted
}

// eligibleSlot ranks candidate slots: empty slots first by index, then the
// strongest occupant not above priority, oldest LastUsed first. With strict
// set, occupants of equal priority are not candidates.
func (a *Allocator) eligibleSlot(priority domain.Priority, strict bool) (domain.Slot, bool) {
	var (
		best         domain.Slot
		bestOccupant *domain.DemandItem
		found        bool
	)

	for _, slot := range a.pool.Slots() {
		if slot.Empty() {
			if !found || !best.Empty() {
				best, bestOccupant, found = slot, nil, true
			}
			continue
		}

		occupant := a.occupant(slot.Item)
		if occupant.Priority > priority || (strict && occupant.Priority == priority) {
			continue
		}
		if found && best.Empty() {
			continue
		}
		if !found || domain.Outranks(occupant, bestOccupant) {
			best, bestOccupant, found = slot, occupant, true
		}
	}

	return best, found
}

func (a *Allocator) bind(index domain.SlotIndex, item *domain.DemandItem) {
	previous, err := a.pool.Bind(index, item.ID)
	if err != nil {
		a.logger.Error("bind slot", zap.Int("slot", int(index)), zap.Error(err))
		return
	}
	if previous != "" {
		a.activator.Deactivate(index)
		a.logger.Debug("evicted occupant",
			zap.String("item", string(previous)),
			zap.Int("slot", int(index)),
			zap.String("by", string(item.ID)))
	}

	item.LastUsed = a.clock.Now()
	a.activator.Activate(index, item.ID)
	a.logger.Debug("bound slot",
		zap.String("item", string(item.ID)),
		zap.Int("slot", int(index)),
		zap.Stringer("priority", item.Priority))
}

func (a *Allocator) unbind(index domain.SlotIndex) {
	previous, err := a.pool.Unbind(index)
	if err != nil {
		a.logger.Error("unbind slot", zap.Int("slot", int(index)), zap.Error(err))
		return
	}
	a.activator.Deactivate(index)
	if previous != "" {
		a.logger.Debug("unbound slot", zap.String("item", string(previous)), zap.Int("slot", int(index)))
	}
}

// preferredUnbound returns the best unbound, non-terminal item other than
// exclude.
func (a *Allocator) preferredUnbound(exclude domain.ItemID) *domain.DemandItem {
	var best *domain.DemandItem
	for _, item := range a.registry.Items() {
		if item.Terminal || item.ID == exclude {
			continue
		}
		if _, bound := a.pool.SlotOf(item.ID); bound {
			continue
		}
		if best == nil || domain.Outranks(item, best) {
			best = item
		}
	}
	return best
}

// occupant returns the registry entry for a bound item. Bound items are
// always registered; the fallback keeps ranking total if that ever breaks.
func (a *Allocator) occupant(id domain.ItemID) *domain.DemandItem {
	if item, ok := a.registry.Get(id); ok {
		return item
	}
	a.logger.Error("bound item missing from registry", zap.String("item", string(id)))
	return &domain.DemandItem{ID: id, Priority: domain.PriorityUnviewed}
}

func (a *Allocator) itemPriority(id domain.ItemID) domain.Priority {
	return a.occupant(id).Priority
}

type nopActivator struct{}

func (nopActivator) Activate(domain.SlotIndex, domain.ItemID) {}
func (nopActivator) Deactivate(domain.SlotIndex)              {}
func (nopActivator) SetVisible(domain.SlotIndex, bool)        {}

type noClaimants struct{}

func (noClaimants) ClaimantOf(domain.ItemID) (string, bool) { return "", false }
