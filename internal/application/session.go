package application

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bnema/slotwall/internal/domain"
	"github.com/bnema/slotwall/internal/ports"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const tracerName = "github.com/bnema/slotwall"

type sessionOptions struct {
	clock     ports.Clock
	logger    *zap.Logger
	tracer    trace.Tracer
	recorder  ports.DecisionRecorder
	limiter   ports.ManualViewLimiter
	activator ports.Activator
}

type SessionOption func(*sessionOptions)

func WithSessionClock(clock ports.Clock) SessionOption {
	return func(o *sessionOptions) { o.clock = clock }
}

func WithSessionLogger(logger *zap.Logger) SessionOption {
	return func(o *sessionOptions) { o.logger = logger }
}

func WithTracer(tracer trace.Tracer) SessionOption {
	return func(o *sessionOptions) { o.tracer = tracer }
}

func WithSessionRecorder(recorder ports.DecisionRecorder) SessionOption {
	return func(o *sessionOptions) { o.recorder = recorder }
}

func WithSessionLimiter(limiter ports.ManualViewLimiter) SessionOption {
	return func(o *sessionOptions) { o.limiter = limiter }
}

func WithActivator(activator ports.Activator) SessionOption {
	return func(o *sessionOptions) { o.activator = activator }
}

// Session is the host loop around one Allocator. Every operation, including
// scheduled releases, runs on a single goroutine, so allocator steps never
// interleave. Session methods are safe for concurrent use.
type Session struct {
	id       string
	director *Director
	tracer   trace.Tracer
	logger   *zap.Logger

	ops       chan func()
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

func NewSession(cfg AllocatorConfig, scheduler ports.Scheduler, opts ...SessionOption) (*Session, error) {
	if scheduler == nil {
		return nil, fmt.Errorf("scheduler is required")
	}

	options := sessionOptions{}
	for _, opt := range opts {
		opt(&options)
	}
	if options.logger == nil {
		options.logger = zap.NewNop()
	}
	if options.tracer == nil {
		options.tracer = otel.Tracer(tracerName)
	}

	s := &Session{
		id:     uuid.NewString(),
		tracer: options.tracer,
		ops:    make(chan func()),
		done:   make(chan struct{}),
	}
	s.logger = options.logger.With(zap.String("session", s.id))

	claims := NewClaimBook()
	allocator, err := NewAllocator(cfg, options.activator, loopScheduler{inner: scheduler, session: s},
		WithClock(options.clock),
		WithClaimants(claims),
		WithLogger(s.logger),
	)
	if err != nil {
		return nil, fmt.Errorf("create allocator: %w", err)
	}

	directorOpts := []DirectorOption{WithDirectorLogger(s.logger)}
	if options.recorder != nil {
		directorOpts = append(directorOpts, WithDecisionRecorder(options.recorder))
	}
	if options.limiter != nil {
		directorOpts = append(directorOpts, WithViewLimiter(options.limiter))
	}
	s.director = NewDirector(allocator, claims, directorOpts...)

	s.wg.Add(1)
	go s.run()

	s.logger.Info("session started",
		zap.Int("base", cfg.Capacity.Base),
		zap.Int("expanded", cfg.Capacity.Expanded),
		zap.Duration("release_delay", cfg.ReleaseDelay))
	return s, nil
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) Claim(ctx context.Context, id domain.ItemID, claimant string) (domain.Outcome, error) {
	var (
		outcome domain.Outcome
		err     error
	)
	doErr := s.do(ctx, "Claim", id, func(ctx context.Context) {
		outcome, err = s.director.Claim(ctx, id, claimant)
	})
	if doErr != nil {
		return domain.OutcomeDenied, doErr
	}
	return outcome, err
}

func (s *Session) Unclaim(ctx context.Context, id domain.ItemID) error {
	var err error
	if doErr := s.do(ctx, "Unclaim", id, func(context.Context) { err = s.director.Unclaim(id) }); doErr != nil {
		return doErr
	}
	return err
}

func (s *Session) Solve(ctx context.Context, id domain.ItemID) error {
	var err error
	if doErr := s.do(ctx, "Solve", id, func(context.Context) { err = s.director.Solve(id) }); doErr != nil {
		return doErr
	}
	return err
}

func (s *Session) View(ctx context.Context, id domain.ItemID, requester string) (domain.Outcome, error) {
	var (
		outcome domain.Outcome
		err     error
	)
	doErr := s.do(ctx, "View", id, func(ctx context.Context) {
		outcome, err = s.director.View(ctx, id, requester)
	})
	if doErr != nil {
		return domain.OutcomeDenied, doErr
	}
	return outcome, err
}

func (s *Session) Unview(ctx context.Context, id domain.ItemID) error {
	var err error
	if doErr := s.do(ctx, "Unview", id, func(context.Context) { err = s.director.Unview(id) }); doErr != nil {
		return doErr
	}
	return err
}

func (s *Session) RequestView(ctx context.Context, id domain.ItemID, priority domain.Priority) (domain.Outcome, error) {
	var outcome domain.Outcome
	err := s.do(ctx, "RequestView", id, func(ctx context.Context) {
		outcome = s.director.Request(ctx, id, priority)
	})
	if err != nil {
		return domain.OutcomeDenied, err
	}
	return outcome, nil
}

func (s *Session) ReleaseView(ctx context.Context, id domain.ItemID, terminal bool) error {
	var err error
	if doErr := s.do(ctx, "ReleaseView", id, func(context.Context) {
		err = s.director.Allocator().ReleaseView(id, terminal)
	}); doErr != nil {
		return doErr
	}
	return err
}

func (s *Session) EnableExpansion(ctx context.Context) error {
	var err error
	if doErr := s.do(ctx, "EnableExpansion", "", func(context.Context) {
		err = s.director.Allocator().EnableExpansion()
	}); doErr != nil {
		return doErr
	}
	return err
}

func (s *Session) DisableExpansion(ctx context.Context) error {
	var err error
	if doErr := s.do(ctx, "DisableExpansion", "", func(context.Context) {
		err = s.director.Allocator().DisableExpansion()
	}); doErr != nil {
		return doErr
	}
	return err
}

func (s *Session) SetWallSuppressed(ctx context.Context, suppressed bool) error {
	return s.do(ctx, "SetWallSuppressed", "", func(context.Context) {
		s.director.Allocator().SetWallSuppressed(suppressed)
	})
}

func (s *Session) SetVisible(ctx context.Context, visible bool) error {
	return s.do(ctx, "SetVisible", "", func(context.Context) {
		s.director.Allocator().SetVisible(visible)
	})
}

func (s *Session) Query(ctx context.Context, id domain.ItemID) (domain.SlotIndex, bool, error) {
	var (
		index domain.SlotIndex
		ok    bool
	)
	err := s.do(ctx, "Query", id, func(context.Context) {
		index, ok = s.director.Allocator().Query(id)
	})
	if err != nil {
		return domain.NoSlot, false, err
	}
	return index, ok, nil
}

func (s *Session) Snapshot(ctx context.Context) (WallSnapshot, error) {
	var snapshot WallSnapshot
	err := s.do(ctx, "Snapshot", "", func(context.Context) {
		snapshot = s.director.Allocator().Snapshot()
	})
	return snapshot, err
}

// WaitIdle blocks until no release is pending or ctx ends.
func (s *Session) WaitIdle(ctx context.Context, poll time.Duration) error {
	if poll <= 0 {
		poll = 10 * time.Millisecond
	}

	ticker := time.NewTicker(poll)
	defer ticker.Stop()
	for {
		snapshot, err := s.Snapshot(ctx)
		if err != nil {
			return err
		}
		if snapshot.PendingReleases == 0 {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Close stops the loop. Releases that fire afterwards are dropped.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.wg.Wait()
		s.logger.Info("session closed")
	})
}

func (s *Session) run() {
	defer s.wg.Done()
	for {
		select {
		case <-s.done:
			return
		case op := <-s.ops:
			op()
		}
	}
}

// do runs fn on the loop and waits for it. Once the loop accepts fn it always
// runs to completion.
func (s *Session) do(ctx context.Context, name string, id domain.ItemID, fn func(context.Context)) error {
	ctx, span := s.tracer.Start(ctx, "slotwall."+name)
	defer span.End()
	if id != "" {
		span.SetAttributes(attribute.String("slotwall.item", string(id)))
	}

	finished := make(chan struct{})
	op := func() {
		defer close(finished)
		fn(ctx)
	}

	select {
	case s.ops <- op:
	case <-s.done:
		return domain.ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	<-finished
	return nil
}

// post enqueues a timer callback onto the loop.
func (s *Session) post(f func()) {
	select {
	case s.ops <- f:
	case <-s.done:
		s.logger.Debug("dropping timer callback after close")
	}
}

// loopScheduler re-posts timer callbacks onto the session loop.
type loopScheduler struct {
	inner   ports.Scheduler
	session *Session
}

func (l loopScheduler) AfterFunc(d time.Duration, f func()) {
	if d <= 0 {
		f()
		return
	}
	l.inner.AfterFunc(d, func() { l.session.post(f) })
}
