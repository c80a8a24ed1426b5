package application

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bnema/slotwall/internal/domain"
	"github.com/bnema/slotwall/internal/ports"
	"go.uber.org/zap"
)

var ErrClaimantRequired = errors.New("claimant is required")

// ClaimBook records who claims each item.
type ClaimBook struct {
	claims map[domain.ItemID]string
}

var _ ports.ClaimantDirectory = (*ClaimBook)(nil)

func NewClaimBook() *ClaimBook {
	return &ClaimBook{claims: map[domain.ItemID]string{}}
}

func (b *ClaimBook) ClaimantOf(id domain.ItemID) (string, bool) {
	claimant, ok := b.claims[id]
	return claimant, ok
}

func (b *ClaimBook) Set(id domain.ItemID, claimant string) {
	b.claims[id] = claimant
}

func (b *ClaimBook) Delete(id domain.ItemID) {
	delete(b.claims, id)
}

func (b *ClaimBook) Len() int {
	return len(b.claims)
}

type DirectorOption func(*Director)

func WithViewLimiter(limiter ports.ManualViewLimiter) DirectorOption {
	return func(d *Director) { d.limiter = limiter }
}

func WithDecisionRecorder(recorder ports.DecisionRecorder) DirectorOption {
	return func(d *Director) { d.recorder = recorder }
}

func WithDirectorLogger(logger *zap.Logger) DirectorOption {
	return func(d *Director) { d.logger = logger }
}

// Director translates host events (claims, solves, manual views) into
// priority transitions on the allocator. Like Allocator it is single-threaded.
type Director struct {
	allocator *Allocator
	claims    *ClaimBook
	limiter   ports.ManualViewLimiter
	recorder  ports.DecisionRecorder
	logger    *zap.Logger
}

func NewDirector(allocator *Allocator, claims *ClaimBook, opts ...DirectorOption) *Director {
	if claims == nil {
		claims = NewClaimBook()
	}

	d := &Director{allocator: allocator, claims: claims}
	for _, opt := range opts {
		opt(d)
	}
	if d.logger == nil {
		d.logger = zap.NewNop()
	}

	return d
}

func (d *Director) Allocator() *Allocator {
	return d.allocator
}

func (d *Director) Claim(ctx context.Context, id domain.ItemID, claimant string) (domain.Outcome, error) {
	claimant = strings.TrimSpace(claimant)
	if claimant == "" {
		return domain.OutcomeDenied, ErrClaimantRequired
	}

	d.claims.Set(id, claimant)
	outcome := d.allocator.RequestView(id, domain.PriorityClaimed)
	d.record(ctx, "claim", id, claimant, domain.PriorityClaimed, outcome)
	return outcome, nil
}

func (d *Director) Unclaim(id domain.ItemID) error {
	d.claims.Delete(id)
	if err := d.allocator.ReleaseView(id, false); err != nil {
		return fmt.Errorf("unclaim: %w", err)
	}
	return nil
}

func (d *Director) Solve(id domain.ItemID) error {
	d.claims.Delete(id)
	if err := d.allocator.ReleaseView(id, true); err != nil {
		return fmt.Errorf("solve: %w", err)
	}
	return nil
}

// View is a manual view request made by requester.
func (d *Director) View(ctx context.Context, id domain.ItemID, requester string) (domain.Outcome, error) {
	if d.limiter != nil && !d.limiter.Allow(requester) {
		d.record(ctx, "view", id, requester, domain.PriorityManualRequest, domain.OutcomeDenied)
		return domain.OutcomeDenied, fmt.Errorf("view %s for %q: %w", id, requester, domain.ErrRateLimited)
	}

	outcome := d.allocator.RequestView(id, domain.PriorityManualRequest)
	d.record(ctx, "view", id, requester, domain.PriorityManualRequest, outcome)
	return outcome, nil
}

func (d *Director) Unview(id domain.ItemID) error {
	if err := d.allocator.ReleaseView(id, false); err != nil {
		return fmt.Errorf("unview: %w", err)
	}
	return nil
}

// Request forwards a raw view request at an explicit priority.
func (d *Director) Request(ctx context.Context, id domain.ItemID, priority domain.Priority) domain.Outcome {
	outcome := d.allocator.RequestView(id, priority)
	claimant, _ := d.claims.ClaimantOf(id)
	d.record(ctx, "request", id, claimant, priority, outcome)
	return outcome
}

func (d *Director) record(ctx context.Context, action string, id domain.ItemID, requester string, priority domain.Priority, outcome domain.Outcome) {
	if d.recorder == nil {
		return
	}

	slot, ok := d.allocator.Query(id)
	if !ok {
		slot = domain.NoSlot
	}
	decision := domain.Decision{
		Item:      id,
		Requester: requester,
		Action:    action,
		Priority:  priority,
		Outcome:   outcome,
		Slot:      slot,
		At:        d.allocator.clock.Now(),
	}
	if err := d.recorder.Record(ctx, decision); err != nil {
		d.logger.Warn("record decision", zap.String("item", string(id)), zap.Error(err))
	}
}
