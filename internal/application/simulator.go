package application

import (
	"context"
	"fmt"
	"time"

	"github.com/bnema/slotwall/internal/domain"
	"github.com/bnema/slotwall/internal/ports"
	"go.uber.org/zap"
)

type StepError struct {
	Step   int
	Action ScenarioAction
	Item   domain.ItemID
	Err    error
}

func (e StepError) Error() string {
	return fmt.Sprintf("step %d (%s %s): %v", e.Step, e.Action, e.Item, e.Err)
}

func (e StepError) Unwrap() error {
	return e.Err
}

type SimulationResult struct {
	Scenario  string
	Snapshot  WallSnapshot
	Decisions []domain.Decision
	// StepErrors holds non-fatal step failures such as a redundant wall toggle.
	StepErrors []StepError
	Elapsed    time.Duration
}

type SimulatorOption func(*Simulator)

func WithSimulatorLogger(logger *zap.Logger) SimulatorOption {
	return func(s *Simulator) { s.logger = logger }
}

func WithSimulatorActivator(activator ports.Activator) SimulatorOption {
	return func(s *Simulator) { s.activator = activator }
}

func WithSimulatorRecorder(recorder ports.DecisionRecorder) SimulatorOption {
	return func(s *Simulator) { s.recorder = recorder }
}

func WithSimulatorLimiter(limiter ports.ManualViewLimiter) SimulatorOption {
	return func(s *Simulator) { s.limiter = limiter }
}

// Simulator replays scenarios against a fresh allocator on virtual time.
type Simulator struct {
	cfg       AllocatorConfig
	time      ports.VirtualTime
	activator ports.Activator
	recorder  ports.DecisionRecorder
	limiter   ports.ManualViewLimiter
	logger    *zap.Logger
}

func NewSimulator(cfg AllocatorConfig, vt ports.VirtualTime, opts ...SimulatorOption) *Simulator {
	s := &Simulator{cfg: cfg, time: vt}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	return s
}

func (s *Simulator) Run(ctx context.Context, scenario Scenario) (SimulationResult, error) {
	if err := scenario.Validate(); err != nil {
		return SimulationResult{}, fmt.Errorf("validate scenario: %w", err)
	}

	log := &decisionLog{next: s.recorder}
	claims := NewClaimBook()
	allocator, err := NewAllocator(s.cfg, s.activator, s.time,
		WithClock(s.time),
		WithClaimants(claims),
		WithLogger(s.logger),
	)
	if err != nil {
		return SimulationResult{}, fmt.Errorf("create allocator: %w", err)
	}

	opts := []DirectorOption{WithDecisionRecorder(log), WithDirectorLogger(s.logger)}
	if s.limiter != nil {
		opts = append(opts, WithViewLimiter(s.limiter))
	}
	director := NewDirector(allocator, claims, opts...)

	result := SimulationResult{Scenario: scenario.Name}
	var elapsed time.Duration
	for i, step := range scenario.Steps {
		if err := ctx.Err(); err != nil {
			return SimulationResult{}, err
		}
		if step.At > elapsed {
			s.time.Advance(step.At - elapsed)
			elapsed = step.At
		}

		if err := applyStep(ctx, director, step); err != nil {
			stepErr := StepError{Step: i + 1, Action: step.Action, Item: step.Item, Err: err}
			s.logger.Debug("scenario step failed", zap.Error(stepErr))
			result.StepErrors = append(result.StepErrors, stepErr)
		}
	}

	if allocator.PendingReleases() > 0 {
		s.time.Advance(s.cfg.ReleaseDelay)
		elapsed += s.cfg.ReleaseDelay
	}

	result.Snapshot = allocator.Snapshot()
	result.Decisions = log.decisions
	result.Elapsed = elapsed
	return result, nil
}

func applyStep(ctx context.Context, director *Director, step ScenarioStep) error {
	allocator := director.Allocator()

	switch step.Action {
	case ActionClaim:
		_, err := director.Claim(ctx, step.Item, step.Claimant)
		return err
	case ActionUnclaim:
		return director.Unclaim(step.Item)
	case ActionSolve:
		return director.Solve(step.Item)
	case ActionView:
		_, err := director.View(ctx, step.Item, step.Claimant)
		return err
	case ActionUnview:
		return director.Unview(step.Item)
	case ActionRequest:
		director.Request(ctx, step.Item, step.Priority)
		return nil
	case ActionRelease:
		return allocator.ReleaseView(step.Item, step.Terminal)
	case ActionWallOn:
		return allocator.EnableExpansion()
	case ActionWallOff:
		return allocator.DisableExpansion()
	case ActionSuppress:
		allocator.SetWallSuppressed(true)
	case ActionUnsuppress:
		allocator.SetWallSuppressed(false)
	case ActionShow:
		allocator.SetVisible(true)
	case ActionHide:
		allocator.SetVisible(false)
	case ActionAdvance:
	default:
		return fmt.Errorf("unsupported action %q", step.Action)
	}

	return nil
}

// decisionLog keeps every decision of a run and forwards it to next.
type decisionLog struct {
	decisions []domain.Decision
	next      ports.DecisionRecorder
}

func (l *decisionLog) Record(ctx context.Context, decision domain.Decision) error {
	l.decisions = append(l.decisions, decision)
	if l.next == nil {
		return nil
	}
	return l.next.Record(ctx, decision)
}
