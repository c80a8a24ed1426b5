package application

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/bnema/slotwall/internal/adapters/activation"
	"github.com/bnema/slotwall/internal/adapters/timer"
	"github.com/bnema/slotwall/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testStart = time.Date(2026, 2, 14, 11, 0, 0, 0, time.UTC)

func testConfig(base, expanded int) AllocatorConfig {
	return AllocatorConfig{
		Capacity:      domain.Capacity{Base: base, Expanded: expanded},
		ReleaseDelay:  time.Second,
		AutomaticWall: true,
	}
}

type harness struct {
	clock     *timer.Manual
	claims    *ClaimBook
	activator *activation.Recorder
	allocator *Allocator
}

func newHarness(t *testing.T, cfg AllocatorConfig) *harness {
	t.Helper()

	h := &harness{
		clock:     timer.NewManual(testStart),
		claims:    NewClaimBook(),
		activator: activation.NewRecorder(nil),
	}
	allocator, err := NewAllocator(cfg, h.activator, h.clock, WithClock(h.clock), WithClaimants(h.claims))
	require.NoError(t, err)
	h.allocator = allocator
	return h
}

func (h *harness) claim(id, claimant string) domain.Outcome {
	h.claims.Set(domain.ItemID(id), claimant)
	return h.allocator.RequestView(domain.ItemID(id), domain.PriorityClaimed)
}

func (h *harness) request(id string, priority domain.Priority) domain.Outcome {
	return h.allocator.RequestView(domain.ItemID(id), priority)
}

func (h *harness) solve(t *testing.T, id string) {
	t.Helper()
	h.claims.Delete(domain.ItemID(id))
	require.NoError(t, h.allocator.ReleaseView(domain.ItemID(id), true))
}

func (h *harness) unclaim(t *testing.T, id string) {
	t.Helper()
	h.claims.Delete(domain.ItemID(id))
	require.NoError(t, h.allocator.ReleaseView(domain.ItemID(id), false))
}

// tick moves virtual time forward so later bindings get distinct LastUsed.
func (h *harness) tick() {
	h.clock.Advance(100 * time.Millisecond)
}

func (h *harness) slotOf(id string) domain.SlotIndex {
	index, ok := h.allocator.Query(domain.ItemID(id))
	if !ok {
		return domain.NoSlot
	}
	return index
}

func (h *harness) bound() map[domain.ItemID]domain.SlotIndex {
	out := map[domain.ItemID]domain.SlotIndex{}
	for _, slot := range h.allocator.pool.Slots() {
		if !slot.Empty() {
			out[slot.Item] = slot.Index
		}
	}
	return out
}

// checkInvariants asserts uniqueness, the two capacity levels, and that the
// activator agrees with the logical bindings.
func (h *harness) checkInvariants(t *testing.T) {
	t.Helper()

	slots := h.allocator.pool.Slots()
	capacity := h.allocator.cfg.Capacity
	assert.True(t, len(slots) == capacity.Base || len(slots) == capacity.Expanded, "pool has %d slots", len(slots))

	seen := map[domain.ItemID]domain.SlotIndex{}
	for i, slot := range slots {
		assert.Equal(t, domain.SlotIndex(i), slot.Index)
		if slot.Empty() {
			assert.False(t, slot.Active, "empty slot %d is active", i)
			continue
		}
		if previous, dup := seen[slot.Item]; dup {
			t.Errorf("item %s bound to slots %d and %d", slot.Item, previous, slot.Index)
		}
		seen[slot.Item] = slot.Index

		active, ok := h.activator.Active(slot.Index)
		assert.True(t, ok, "slot %d bound but not activated", slot.Index)
		assert.Equal(t, slot.Item, active)
	}
	assert.Equal(t, len(seen), h.activator.ActiveCount())
}

func TestNewAllocatorValidatesConfig(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		cfg  AllocatorConfig
	}{
		{name: "zero base", cfg: testConfig(0, 4)},
		{name: "expanded equals base", cfg: testConfig(4, 4)},
		{name: "expanded below base", cfg: testConfig(4, 2)},
		{name: "negative delay", cfg: AllocatorConfig{Capacity: domain.Capacity{Base: 1, Expanded: 2}, ReleaseDelay: -time.Second}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := NewAllocator(tt.cfg, nil, timer.NewManual(testStart))
			require.Error(t, err)
		})
	}

	t.Run("nil scheduler", func(t *testing.T) {
		t.Parallel()

		_, err := NewAllocator(DefaultAllocatorConfig(), nil, nil)
		require.Error(t, err)
	})
}

func TestRequestViewFillsEmptySlotsInIndexOrder(t *testing.T) {
	t.Parallel()

	h := newHarness(t, testConfig(3, 6))

	for i, id := range []string{"a", "b", "c"} {
		require.Equal(t, domain.OutcomeAdmitted, h.request(id, domain.PriorityUnviewed))
		assert.Equal(t, domain.SlotIndex(i), h.slotOf(id))
	}
	h.checkInvariants(t)
}

func TestRequestViewAlreadyBoundIsIdempotent(t *testing.T) {
	t.Parallel()

	h := newHarness(t, testConfig(2, 4))
	require.Equal(t, domain.OutcomeAdmitted, h.claim("a", "alice"))
	events := len(h.activator.Events())

	assert.Equal(t, domain.OutcomeAlreadyBound, h.request("a", domain.PriorityClaimed))
	assert.Equal(t, domain.OutcomeAlreadyBound, h.request("a", domain.PriorityClaimed))
	assert.Equal(t, domain.SlotIndex(0), h.slotOf("a"))
	assert.Len(t, h.activator.Events(), events)
	assert.ErrorIs(t, domain.OutcomeAlreadyBound.Err(), domain.ErrAlreadyBound)

	item, _ := h.allocator.registry.Get("a")
	assert.Equal(t, domain.PriorityClaimed, item.Priority)

	assert.Equal(t, domain.OutcomeAlreadyBound, h.request("a", domain.PriorityUnviewed))
	assert.Equal(t, domain.PriorityClaimed, item.Priority, "a lower request must not demote a bound item")

	assert.Equal(t, domain.OutcomeAlreadyBound, h.request("a", domain.PriorityManualRequest))
	assert.Equal(t, domain.PriorityManualRequest, item.Priority)
}

func TestRequestViewRejectsMalformedRequests(t *testing.T) {
	t.Parallel()

	h := newHarness(t, testConfig(2, 4))

	assert.Equal(t, domain.OutcomeDenied, h.request("", domain.PriorityClaimed))
	assert.Equal(t, domain.OutcomeDenied, h.request("a", domain.Priority(42)))
	assert.Zero(t, h.allocator.registry.Len())
	assert.Empty(t, h.bound())
}

func TestRequestViewNeverEvictsHigherPriority(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		occupant domain.Priority
		request  domain.Priority
	}{
		{name: "claimed over unviewed", occupant: domain.PriorityClaimed, request: domain.PriorityUnviewed},
		{name: "manual over unviewed", occupant: domain.PriorityManualRequest, request: domain.PriorityUnviewed},
		{name: "manual over claimed", occupant: domain.PriorityManualRequest, request: domain.PriorityClaimed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			h := newHarness(t, testConfig(2, 4))
			require.Equal(t, domain.OutcomeAdmitted, h.request("a", tt.occupant))
			require.Equal(t, domain.OutcomeAdmitted, h.request("b", tt.occupant))
			before := h.bound()

			outcome := h.request("c", tt.request)

			assert.Equal(t, domain.OutcomeDenied, outcome)
			assert.ErrorIs(t, outcome.Err(), domain.ErrNoEligibleSlot)
			assert.Equal(t, before, h.bound())
			assert.Equal(t, domain.NoSlot, h.slotOf("c"))
			h.checkInvariants(t)
		})
	}
}

func TestScenarioAAllClaimsAdmittedAtBase(t *testing.T) {
	t.Parallel()

	h := newHarness(t, DefaultAllocatorConfig())

	for i := 0; i < 6; i++ {
		require.Equal(t, domain.OutcomeAdmitted, h.claim(fmt.Sprintf("mod-%d", i), fmt.Sprintf("user-%d", i)))
		h.tick()
	}

	assert.Equal(t, 6, h.allocator.pool.Len())
	assert.False(t, h.allocator.pool.Expanded())
	assert.Len(t, h.bound(), 6)
	h.checkInvariants(t)
}

func TestScenarioBManualRequestEvictsOldestClaimed(t *testing.T) {
	t.Parallel()

	h := newHarness(t, DefaultAllocatorConfig())
	for i := 0; i < 6; i++ {
		require.Equal(t, domain.OutcomeAdmitted, h.claim(fmt.Sprintf("mod-%d", i), fmt.Sprintf("user-%d", i)))
		h.tick()
	}
	oldest := h.slotOf("mod-0")

	outcome := h.request("mod-6", domain.PriorityManualRequest)

	require.Equal(t, domain.OutcomeAdmitted, outcome)
	assert.Equal(t, oldest, h.slotOf("mod-6"))
	assert.Equal(t, domain.NoSlot, h.slotOf("mod-0"))
	assert.Equal(t, 6, h.allocator.pool.Len(), "a strictly higher request must not expand the wall")
	h.checkInvariants(t)
}

func TestEvictionPrefersStrongestQualifyingOccupant(t *testing.T) {
	t.Parallel()

	h := newHarness(t, testConfig(2, 4))
	require.Equal(t, domain.OutcomeAdmitted, h.request("weak", domain.PriorityUnviewed))
	h.tick()
	require.Equal(t, domain.OutcomeAdmitted, h.claim("strong", "alice"))
	strongSlot := h.slotOf("strong")

	require.Equal(t, domain.OutcomeAdmitted, h.request("new", domain.PriorityManualRequest))

	assert.Equal(t, strongSlot, h.slotOf("new"), "the claimed occupant is the strongest one below the request")
	assert.NotEqual(t, domain.NoSlot, h.slotOf("weak"))
	assert.Equal(t, domain.NoSlot, h.slotOf("strong"))
	h.checkInvariants(t)
}

func TestEvictionTieBreaksOnLastUsedThenObservationOrder(t *testing.T) {
	t.Parallel()

	h := newHarness(t, testConfig(2, 4))
	require.Equal(t, domain.OutcomeAdmitted, h.request("first", domain.PriorityUnviewed))
	require.Equal(t, domain.OutcomeAdmitted, h.request("second", domain.PriorityUnviewed))
	h.tick()

	require.Equal(t, domain.OutcomeAdmitted, h.request("third", domain.PriorityUnviewed))
	assert.Equal(t, domain.SlotIndex(0), h.slotOf("third"), "same LastUsed falls back to observation order")

	h.tick()
	require.Equal(t, domain.OutcomeAdmitted, h.request("fourth", domain.PriorityUnviewed))
	assert.Equal(t, domain.SlotIndex(1), h.slotOf("fourth"), "second has the oldest LastUsed")
	h.checkInvariants(t)
}

func TestScenarioCExpandsBeforeEvictingEqualPriority(t *testing.T) {
	t.Parallel()

	h := newHarness(t, DefaultAllocatorConfig())
	for i := 0; i < 6; i++ {
		require.Equal(t, domain.OutcomeAdmitted, h.claim(fmt.Sprintf("mod-%d", i), fmt.Sprintf("user-%d", i)))
		h.tick()
	}

	outcome := h.claim("mod-6", "user-6")

	require.Equal(t, domain.OutcomeAdmitted, outcome)
	assert.True(t, h.allocator.pool.Expanded())
	assert.Equal(t, 18, h.allocator.pool.Len())
	assert.Len(t, h.bound(), 7, "no occupant was evicted")
	assert.Equal(t, domain.SlotIndex(6), h.slotOf("mod-6"))
	h.checkInvariants(t)
}

func TestEqualPriorityEvictsWhenClaimantsDoNotJustifyExpansion(t *testing.T) {
	t.Parallel()

	h := newHarness(t, testConfig(3, 6))
	for i := 0; i < 3; i++ {
		require.Equal(t, domain.OutcomeAdmitted, h.claim(fmt.Sprintf("mod-%d", i), "alice"))
		h.tick()
	}

	require.Equal(t, domain.OutcomeAdmitted, h.claim("mod-3", "alice"))

	assert.False(t, h.allocator.pool.Expanded())
	assert.Equal(t, domain.SlotIndex(0), h.slotOf("mod-3"))
	assert.Equal(t, domain.NoSlot, h.slotOf("mod-0"))
	h.checkInvariants(t)
}

func TestWallPolicyBlocksExpansion(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		prepare func(h *harness)
		cfg     func() AllocatorConfig
	}{
		{
			name:    "suppressed",
			prepare: func(h *harness) { h.allocator.SetWallSuppressed(true) },
			cfg:     func() AllocatorConfig { return testConfig(2, 4) },
		},
		{
			name:    "suppressed by config",
			prepare: func(*harness) {},
			cfg: func() AllocatorConfig {
				cfg := testConfig(2, 4)
				cfg.WallSuppressed = true
				return cfg
			},
		},
		{
			name:    "manual wall",
			prepare: func(*harness) {},
			cfg: func() AllocatorConfig {
				cfg := testConfig(2, 4)
				cfg.AutomaticWall = false
				return cfg
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			h := newHarness(t, tt.cfg())
			tt.prepare(h)
			require.Equal(t, domain.OutcomeAdmitted, h.claim("a", "alice"))
			h.tick()
			require.Equal(t, domain.OutcomeAdmitted, h.claim("b", "bob"))

			require.Equal(t, domain.OutcomeAdmitted, h.claim("c", "carol"))

			assert.False(t, h.allocator.pool.Expanded())
			assert.Equal(t, domain.NoSlot, h.slotOf("a"))
			h.checkInvariants(t)
		})
	}
}

func TestUnsuppressRestoresAutomaticExpansion(t *testing.T) {
	t.Parallel()

	h := newHarness(t, testConfig(2, 4))
	h.allocator.SetWallSuppressed(true)
	require.Equal(t, domain.OutcomeAdmitted, h.claim("a", "alice"))
	require.Equal(t, domain.OutcomeAdmitted, h.claim("b", "bob"))

	h.allocator.SetWallSuppressed(false)
	require.Equal(t, domain.OutcomeAdmitted, h.claim("c", "carol"))

	assert.True(t, h.allocator.pool.Expanded())
	assert.Len(t, h.bound(), 3)
}

func TestScenarioDContractsAfterSolvedRelease(t *testing.T) {
	t.Parallel()

	h := newHarness(t, DefaultAllocatorConfig())
	for i := 1; i <= 9; i++ {
		require.Equal(t, domain.OutcomeAdmitted, h.claim(fmt.Sprintf("mod-%d", i), fmt.Sprintf("user-%d", i)))
		h.tick()
	}
	require.True(t, h.allocator.pool.Expanded())
	for _, id := range []string{"mod-7", "mod-8", "mod-9"} {
		require.GreaterOrEqual(t, int(h.slotOf(id)), 6, "%s sits beyond base capacity", id)
	}

	h.solve(t, "mod-1")
	h.solve(t, "mod-2")
	h.solve(t, "mod-3")
	assert.Equal(t, 3, h.allocator.PendingReleases())
	assert.True(t, h.allocator.pool.Expanded(), "solved items keep their slot until the delay passes")

	h.clock.Advance(time.Second)

	assert.Zero(t, h.allocator.PendingReleases())
	assert.False(t, h.allocator.pool.Expanded())
	assert.Equal(t, 6, h.allocator.pool.Len())
	for _, id := range []string{"mod-4", "mod-5", "mod-6", "mod-7", "mod-8", "mod-9"} {
		assert.NotEqual(t, domain.NoSlot, h.slotOf(id), "%s should be bound after contraction", id)
	}
	for _, id := range []string{"mod-1", "mod-2", "mod-3"} {
		assert.Equal(t, domain.NoSlot, h.slotOf(id), "solved %s should be gone", id)
	}
	for index := domain.SlotIndex(6); index < 9; index++ {
		_, active := h.activator.Active(index)
		assert.False(t, active, "surplus slot %d must be deactivated", index)
	}
	h.checkInvariants(t)
}

func TestReleaseGuardSkipsSlotReboundToAnotherItem(t *testing.T) {
	t.Parallel()

	cfg := testConfig(2, 4)
	cfg.AutomaticWall = false
	h := newHarness(t, cfg)
	require.Equal(t, domain.OutcomeAdmitted, h.claim("a", "alice"))
	h.tick()
	require.Equal(t, domain.OutcomeAdmitted, h.claim("b", "bob"))
	slotA := h.slotOf("a")

	h.solve(t, "a")
	require.Equal(t, 1, h.allocator.PendingReleases())

	require.Equal(t, domain.OutcomeAdmitted, h.request("c", domain.PriorityUnviewed))
	require.Equal(t, slotA, h.slotOf("c"))

	h.clock.Advance(time.Second)

	assert.Equal(t, slotA, h.slotOf("c"), "stale release must not evict the new occupant")
	assert.Zero(t, h.allocator.PendingReleases())
	h.checkInvariants(t)
}

func TestStaleReleaseStillContractsWall(t *testing.T) {
	t.Parallel()

	h := newHarness(t, testConfig(2, 4))
	for _, id := range []string{"a", "b", "c", "d"} {
		require.Equal(t, domain.OutcomeAdmitted, h.claim(id, "user-"+id))
	}
	require.True(t, h.allocator.pool.Expanded())

	h.solve(t, "a")
	h.solve(t, "b")
	require.Equal(t, 2, h.allocator.PendingReleases())

	require.Equal(t, domain.OutcomeAdmitted, h.request("x", domain.PriorityUnviewed))
	require.Equal(t, domain.OutcomeAdmitted, h.request("y", domain.PriorityUnviewed))
	require.Equal(t, domain.NoSlot, h.slotOf("a"))
	require.Equal(t, domain.NoSlot, h.slotOf("b"))

	h.clock.Advance(time.Second)

	assert.Zero(t, h.allocator.PendingReleases())
	assert.False(t, h.allocator.pool.Expanded(), "two claimed items fit the base pool")
	assert.Len(t, h.allocator.pool.Slots(), 2)
	assert.NotEqual(t, domain.NoSlot, h.slotOf("c"))
	assert.NotEqual(t, domain.NoSlot, h.slotOf("d"))
	h.checkInvariants(t)
}

func TestReleaseGuardSkipsSameItemRebound(t *testing.T) {
	t.Parallel()

	cfg := testConfig(2, 4)
	cfg.AutomaticWall = false
	h := newHarness(t, cfg)
	require.Equal(t, domain.OutcomeAdmitted, h.claim("a", "alice"))
	require.Equal(t, domain.OutcomeAdmitted, h.claim("b", "bob"))

	h.solve(t, "a")
	require.NoError(t, h.allocator.ReleaseView("a", false))
	require.Equal(t, domain.NoSlot, h.slotOf("a"), "a non-terminal release takes effect at once")
	require.Equal(t, domain.OutcomeAdmitted, h.request("a", domain.PriorityManualRequest))
	rebound := h.slotOf("a")

	h.clock.Advance(time.Second)

	assert.Equal(t, rebound, h.slotOf("a"), "a release guarded on the old binding is stale")
	h.checkInvariants(t)
}

func TestReleaseFiresAfterDelayAndBackfills(t *testing.T) {
	t.Parallel()

	cfg := testConfig(2, 4)
	cfg.AutomaticWall = false
	h := newHarness(t, cfg)
	require.Equal(t, domain.OutcomeAdmitted, h.claim("a", "alice"))
	require.Equal(t, domain.OutcomeAdmitted, h.claim("b", "bob"))
	require.Equal(t, domain.OutcomeDenied, h.request("c", domain.PriorityUnviewed))
	slotA := h.slotOf("a")

	h.solve(t, "a")
	h.clock.Advance(999 * time.Millisecond)
	assert.Equal(t, slotA, h.slotOf("a"), "grace delay has not elapsed")

	h.clock.Advance(time.Millisecond)
	assert.Equal(t, domain.NoSlot, h.slotOf("a"))
	assert.Equal(t, slotA, h.slotOf("c"))
	h.checkInvariants(t)
}

func TestNonTerminalReleaseIsImmediate(t *testing.T) {
	t.Parallel()

	cfg := testConfig(2, 4)
	cfg.AutomaticWall = false
	h := newHarness(t, cfg)
	require.Equal(t, domain.OutcomeAdmitted, h.claim("a", "alice"))
	require.Equal(t, domain.OutcomeAdmitted, h.claim("b", "bob"))
	require.Equal(t, domain.OutcomeDenied, h.request("c", domain.PriorityUnviewed))
	slotA := h.slotOf("a")

	h.unclaim(t, "a")

	assert.Zero(t, h.allocator.PendingReleases())
	assert.Equal(t, domain.NoSlot, h.slotOf("a"))
	assert.Equal(t, slotA, h.slotOf("c"))
	item, _ := h.allocator.registry.Get("a")
	assert.Equal(t, domain.PriorityUnviewed, item.Priority)
	h.checkInvariants(t)
}

func TestReleaseKeepsClaimedPriorityWhenClaimantRemains(t *testing.T) {
	t.Parallel()

	h := newHarness(t, testConfig(2, 4))
	h.claims.Set("a", "alice")
	require.Equal(t, domain.OutcomeAdmitted, h.request("a", domain.PriorityManualRequest))

	require.NoError(t, h.allocator.ReleaseView("a", false))

	item, _ := h.allocator.registry.Get("a")
	assert.Equal(t, domain.PriorityClaimed, item.Priority)
}

func TestReleaseEdgeCases(t *testing.T) {
	t.Parallel()

	h := newHarness(t, testConfig(1, 2))

	err := h.allocator.ReleaseView("ghost", true)
	require.ErrorIs(t, err, domain.ErrItemNotFound)

	require.Equal(t, domain.OutcomeAdmitted, h.request("a", domain.PriorityManualRequest))
	require.Equal(t, domain.OutcomeDenied, h.request("b", domain.PriorityClaimed))
	require.NoError(t, h.allocator.ReleaseView("b", true))
	assert.Zero(t, h.allocator.PendingReleases(), "unbound items schedule nothing")

	item, _ := h.allocator.registry.Get("b")
	assert.True(t, item.Terminal)
	assert.Equal(t, domain.PriorityUnviewed, item.Priority)
}

func TestTerminalItemsAreNeverBackfilled(t *testing.T) {
	t.Parallel()

	cfg := testConfig(1, 2)
	cfg.AutomaticWall = false
	h := newHarness(t, cfg)
	require.Equal(t, domain.OutcomeAdmitted, h.request("a", domain.PriorityManualRequest))
	require.Equal(t, domain.OutcomeDenied, h.request("solved", domain.PriorityClaimed))
	require.NoError(t, h.allocator.ReleaseView("solved", true))

	require.NoError(t, h.allocator.ReleaseView("a", false))

	assert.Empty(t, h.bound(), "a solved item must not take the freed slot")
	assert.Equal(t, domain.OutcomeAdmitted, h.request("solved", domain.PriorityManualRequest), "an explicit request still admits it")
}

func TestEnableExpansionFillsNewSlots(t *testing.T) {
	t.Parallel()

	cfg := testConfig(2, 4)
	cfg.AutomaticWall = false
	h := newHarness(t, cfg)
	for _, id := range []string{"a", "b", "c", "d"} {
		h.request(id, domain.PriorityUnviewed)
		h.tick()
	}
	require.Len(t, h.bound(), 2)

	require.NoError(t, h.allocator.EnableExpansion())

	assert.Equal(t, 4, h.allocator.pool.Len())
	assert.Len(t, h.bound(), 4)
	h.checkInvariants(t)

	err := h.allocator.EnableExpansion()
	require.ErrorIs(t, err, domain.ErrInvalidCapacityTransition)
	assert.Equal(t, 4, h.allocator.pool.Len())
}

func TestDisableExpansionRehomesSurplusOccupants(t *testing.T) {
	t.Parallel()

	cfg := testConfig(2, 4)
	cfg.AutomaticWall = false
	h := newHarness(t, cfg)

	err := h.allocator.DisableExpansion()
	require.ErrorIs(t, err, domain.ErrInvalidCapacityTransition)

	require.NoError(t, h.allocator.EnableExpansion())
	require.Equal(t, domain.OutcomeAdmitted, h.request("low", domain.PriorityUnviewed))
	h.tick()
	require.Equal(t, domain.OutcomeAdmitted, h.request("low2", domain.PriorityUnviewed))
	h.tick()
	h.claims.Set("mid", "alice")
	require.Equal(t, domain.OutcomeAdmitted, h.request("mid", domain.PriorityClaimed))
	require.Equal(t, domain.OutcomeAdmitted, h.request("top", domain.PriorityManualRequest))
	require.Equal(t, domain.SlotIndex(3), h.slotOf("top"))

	require.NoError(t, h.allocator.DisableExpansion())

	assert.Equal(t, 2, h.allocator.pool.Len())
	assert.Equal(t, domain.SlotIndex(0), h.slotOf("top"), "surplus occupants outrank the base occupants they replace")
	assert.Equal(t, domain.SlotIndex(1), h.slotOf("mid"))
	assert.Equal(t, domain.NoSlot, h.slotOf("low"))
	assert.Equal(t, domain.NoSlot, h.slotOf("low2"))
	h.checkInvariants(t)
}

func TestContractionWaitsForAutomaticWall(t *testing.T) {
	t.Parallel()

	cfg := testConfig(2, 4)
	cfg.AutomaticWall = false
	h := newHarness(t, cfg)
	require.NoError(t, h.allocator.EnableExpansion())
	require.Equal(t, domain.OutcomeAdmitted, h.claim("a", "alice"))

	h.solve(t, "a")
	h.clock.Advance(time.Second)

	assert.True(t, h.allocator.pool.Expanded(), "a manually enabled wall stays until disabled")
}

func TestSetVisibleOnlyRevealsViewedSlots(t *testing.T) {
	t.Parallel()

	h := newHarness(t, testConfig(3, 6))
	require.Equal(t, domain.OutcomeAdmitted, h.claim("claimed", "alice"))
	require.Equal(t, domain.OutcomeAdmitted, h.request("idle", domain.PriorityUnviewed))

	h.allocator.SetVisible(false)
	assert.False(t, h.allocator.Visible())
	assert.True(t, h.activator.Hidden(h.slotOf("claimed")))
	assert.True(t, h.activator.Hidden(h.slotOf("idle")))
	assert.False(t, h.activator.Hidden(2), "empty slots are untouched")

	h.allocator.SetVisible(true)
	assert.True(t, h.allocator.Visible())
	assert.False(t, h.activator.Hidden(h.slotOf("claimed")))
	assert.True(t, h.activator.Hidden(h.slotOf("idle")), "unviewed occupants stay hidden")
	assert.Len(t, h.bound(), 2, "visibility never changes bindings")
}

func TestSnapshotReflectsWall(t *testing.T) {
	t.Parallel()

	h := newHarness(t, testConfig(2, 4))
	require.Equal(t, domain.OutcomeAdmitted, h.claim("a", "alice"))
	h.solve(t, "a")
	h.allocator.SetWallSuppressed(true)

	snapshot := h.allocator.Snapshot()

	assert.Equal(t, domain.Capacity{Base: 2, Expanded: 4}, snapshot.Capacity)
	assert.False(t, snapshot.Expanded)
	assert.True(t, snapshot.Visible)
	assert.True(t, snapshot.Suppressed)
	assert.True(t, snapshot.AutomaticWall)
	assert.Equal(t, 1, snapshot.PendingReleases)
	assert.Equal(t, 1, snapshot.Items)
	assert.Equal(t, 1, snapshot.Bound())
	assert.Equal(t, testStart, snapshot.TakenAt)
	require.Len(t, snapshot.Slots, 2)
	assert.Equal(t, SlotView{
		Index:    0,
		Item:     "a",
		Priority: domain.PriorityUnviewed,
		Terminal: true,
		Active:   true,
		LastUsed: testStart,
	}, snapshot.Slots[0])

	index, ok := snapshot.SlotOf("a")
	assert.True(t, ok)
	assert.Equal(t, domain.SlotIndex(0), index)
}

func TestInvariantsHoldUnderRandomOperations(t *testing.T) {
	t.Parallel()

	h := newHarness(t, testConfig(3, 7))
	rng := rand.New(rand.NewSource(7))
	priorities := []domain.Priority{domain.PriorityUnviewed, domain.PriorityClaimed, domain.PriorityManualRequest}

	for step := 0; step < 2000; step++ {
		id := fmt.Sprintf("mod-%d", rng.Intn(12))
		switch rng.Intn(7) {
		case 0:
			h.claim(id, fmt.Sprintf("user-%d", rng.Intn(5)))
		case 1:
			before, bound := h.allocator.Query(domain.ItemID(id))
			item, known := h.allocator.registry.Get(domain.ItemID(id))
			priority := priorities[rng.Intn(len(priorities))]
			var occupants map[domain.ItemID]domain.SlotIndex
			if !bound {
				occupants = h.bound()
			}
			outcome := h.request(id, priority)
			if bound {
				require.Equal(t, domain.OutcomeAlreadyBound, outcome)
				require.Equal(t, before, h.slotOf(id))
			} else if outcome == domain.OutcomeAdmitted && known {
				for other, slot := range occupants {
					if h.slotOf(string(other)) == domain.NoSlot && slot == h.slotOf(id) {
						evicted, _ := h.allocator.registry.Get(other)
						require.LessOrEqual(t, evicted.Priority, item.Priority, "step %d evicted a stronger occupant", step)
					}
				}
			}
		case 2:
			_ = h.allocator.ReleaseView(domain.ItemID(id), rng.Intn(2) == 0)
		case 3:
			h.claims.Delete(domain.ItemID(id))
			_ = h.allocator.ReleaseView(domain.ItemID(id), false)
		case 4:
			if rng.Intn(2) == 0 {
				_ = h.allocator.EnableExpansion()
			} else {
				_ = h.allocator.DisableExpansion()
			}
		case 5:
			h.allocator.SetVisible(rng.Intn(2) == 0)
		case 6:
			h.clock.Advance(time.Duration(rng.Intn(1500)) * time.Millisecond)
		}
		h.checkInvariants(t)
	}
}
