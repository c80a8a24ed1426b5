package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/bnema/slotwall/internal/adapters/activation"
	statusadapter "github.com/bnema/slotwall/internal/adapters/render/status"
	tomlrepo "github.com/bnema/slotwall/internal/adapters/repo/toml"
	"github.com/bnema/slotwall/internal/adapters/stats"
	"github.com/bnema/slotwall/internal/adapters/timer"
	"github.com/bnema/slotwall/internal/application"
	"github.com/bnema/slotwall/internal/domain"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// realtimeIdleGrace bounds how long a realtime replay waits for pending
// releases beyond the configured delay.
const realtimeIdleGrace = 5 * time.Second

type simulateOptions struct {
	scenarioPath string
	outPath      string
	traceFile    string
	asJSON       bool
	realtime     bool
	hideEmpty    bool
	columns      int
	base         int
	expanded     int
	delay        time.Duration
	manualWall   bool
}

func newSimulateCmd(app *app) *cobra.Command {
	var opts simulateOptions

	cmd := &cobra.Command{
		Use:     "simulate",
		Aliases: []string{"run"},
		Short:   "Replay a scenario against the slot wall",
		Long:    "Replay a TOML or YAML scenario of claims, solves and view requests. By default the scenario runs on virtual time and finishes instantly; --realtime replays it against the wall clock.",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSimulate(cmd, app, opts)
		},
	}

	cmd.Flags().StringVar(&opts.scenarioPath, "scenario", "", "Scenario file (.toml, .yaml or .yml)")
	cmd.Flags().StringVar(&opts.outPath, "out", "", "Write the final snapshot to this TOML file")
	cmd.Flags().StringVar(&opts.traceFile, "trace", "", "Write OpenTelemetry spans as JSON to this file (default: trace.file)")
	cmd.Flags().BoolVar(&opts.asJSON, "json", false, "Render JSON output")
	cmd.Flags().BoolVar(&opts.realtime, "realtime", false, "Replay against the wall clock")
	cmd.Flags().BoolVar(&opts.hideEmpty, "hide-empty", false, "Hide empty slots")
	cmd.Flags().IntVar(&opts.columns, "columns", 0, "Lay slots out in this many columns")
	cmd.Flags().IntVar(&opts.base, "base", 0, "Base slot capacity (default: capacity.base)")
	cmd.Flags().IntVar(&opts.expanded, "expanded", 0, "Expanded slot capacity (default: capacity.expanded)")
	cmd.Flags().DurationVar(&opts.delay, "delay", 0, "Release delay for solved items (default: release.delay)")
	cmd.Flags().BoolVar(&opts.manualWall, "manual-wall", false, "Disable automatic wall expansion")
	_ = cmd.MarkFlagRequired("scenario")

	return cmd
}

func runSimulate(cmd *cobra.Command, app *app, opts simulateOptions) error {
	scenario, err := tomlrepo.LoadScenario(opts.scenarioPath)
	if err != nil {
		return err
	}

	cfg := opts.allocatorConfig(cmd, app.settings.Allocator)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid allocator config: %w", err)
	}

	ctx := cmd.Context()
	sinks := app.wireRecorders(ctx)
	defer sinks.close()

	traceFile := opts.traceFile
	if traceFile == "" {
		traceFile = app.settings.TraceFile
	}
	tracer, shutdown, err := app.wireTracer(traceFile)
	if err != nil {
		return err
	}
	defer shutdown(context.Background())

	ctx, span := tracer.Start(ctx, "slotwall.Simulate", trace.WithAttributes(
		attribute.String("slotwall.scenario", scenario.Name),
		attribute.Int("slotwall.steps", len(scenario.Steps)),
		attribute.Bool("slotwall.realtime", opts.realtime),
	))
	defer span.End()

	var result application.SimulationResult
	if opts.realtime {
		result, err = runRealtime(ctx, cmd, app, cfg, scenario, sinks, tracer)
	} else {
		result, err = runVirtual(ctx, app, cfg, scenario, sinks)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	span.SetAttributes(attribute.Int("slotwall.bound", result.Snapshot.Bound()))

	if opts.outPath != "" {
		store, err := tomlrepo.NewSnapshotStore(opts.outPath)
		if err != nil {
			return err
		}
		if err := store.Save(ctx, result); err != nil {
			return fmt.Errorf("save snapshot: %w", err)
		}
		app.logger.Info("snapshot written", zap.String("path", store.Path()))
	}

	return writeSimulationOutput(cmd, app, result, sinks.memory, opts)
}

func (o simulateOptions) allocatorConfig(cmd *cobra.Command, base application.AllocatorConfig) application.AllocatorConfig {
	cfg := base
	if cmd.Flags().Changed("base") {
		cfg.Capacity.Base = o.base
	}
	if cmd.Flags().Changed("expanded") {
		cfg.Capacity.Expanded = o.expanded
	}
	if cmd.Flags().Changed("delay") {
		cfg.ReleaseDelay = o.delay
	}
	if o.manualWall {
		cfg.AutomaticWall = false
	}
	return cfg
}

func runVirtual(ctx context.Context, app *app, cfg application.AllocatorConfig, scenario application.Scenario, sinks decisionSinks) (application.SimulationResult, error) {
	clock := timer.NewManual(app.now().UTC())
	opts := []application.SimulatorOption{
		application.WithSimulatorLogger(app.logger),
		application.WithSimulatorActivator(activation.NewLog(app.logger)),
		application.WithSimulatorRecorder(sinks.recorder),
	}
	if limiter := app.wireLimiter(clock.Now); limiter != nil {
		opts = append(opts, application.WithSimulatorLimiter(limiter))
	}

	return application.NewSimulator(cfg, clock, opts...).Run(ctx, scenario)
}

func runRealtime(ctx context.Context, cmd *cobra.Command, app *app, cfg application.AllocatorConfig, scenario application.Scenario, sinks decisionSinks, tracer trace.Tracer) (application.SimulationResult, error) {
	opts := []application.SessionOption{
		application.WithSessionLogger(app.logger),
		application.WithTracer(tracer),
		application.WithSessionRecorder(sinks.recorder),
		application.WithActivator(activation.NewLog(app.logger)),
	}
	if limiter := app.wireLimiter(time.Now); limiter != nil {
		opts = append(opts, application.WithSessionLimiter(limiter))
	}

	session, err := application.NewSession(cfg, timer.Real{}, opts...)
	if err != nil {
		return application.SimulationResult{}, err
	}
	defer session.Close()

	var stepErrors []application.StepError
	start := time.Now()
	err = runReplaySpinner(ctx, cmd.ErrOrStderr(), scenario.Name, len(scenario.Steps), func(ctx context.Context, report func(replayProgress)) error {
		var replayErr error
		stepErrors, replayErr = replayOnSession(ctx, session, scenario, app.logger, report)
		if replayErr != nil {
			return replayErr
		}

		waitCtx, cancel := context.WithTimeout(ctx, cfg.ReleaseDelay+realtimeIdleGrace)
		defer cancel()
		if err := session.WaitIdle(waitCtx, 0); err != nil {
			return err
		}
		report(replayProgress{Step: len(scenario.Steps), Total: len(scenario.Steps)})
		return nil
	})
	if err != nil {
		return application.SimulationResult{}, err
	}

	snapshot, err := session.Snapshot(ctx)
	if err != nil {
		return application.SimulationResult{}, err
	}

	return application.SimulationResult{
		Scenario:   scenario.Name,
		Snapshot:   snapshot,
		StepErrors: stepErrors,
		Elapsed:    time.Since(start),
	}, nil
}

// replayOnSession applies the scenario steps on their schedule and reports
// the step count and pending releases after each one.
func replayOnSession(ctx context.Context, session *application.Session, scenario application.Scenario, logger *zap.Logger, report func(replayProgress)) ([]application.StepError, error) {
	var stepErrors []application.StepError
	start := time.Now()

	for i, step := range scenario.Steps {
		if wait := step.At - time.Since(start); wait > 0 {
			t := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				t.Stop()
				return nil, ctx.Err()
			case <-t.C:
			}
		}

		if err := applySessionStep(ctx, session, step); err != nil {
			if errors.Is(err, domain.ErrSessionClosed) || ctx.Err() != nil {
				return nil, err
			}
			stepErr := application.StepError{Step: i + 1, Action: step.Action, Item: step.Item, Err: err}
			logger.Debug("scenario step failed", zap.Error(stepErr))
			stepErrors = append(stepErrors, stepErr)
		}

		snapshot, err := session.Snapshot(ctx)
		if err != nil {
			return nil, err
		}
		report(replayProgress{
			Step:     i + 1,
			Total:    len(scenario.Steps),
			Pending:  snapshot.PendingReleases,
			Settling: i+1 == len(scenario.Steps) && snapshot.PendingReleases > 0,
		})
	}

	return stepErrors, nil
}

func applySessionStep(ctx context.Context, session *application.Session, step application.ScenarioStep) error {
	switch step.Action {
	case application.ActionClaim:
		_, err := session.Claim(ctx, step.Item, step.Claimant)
		return err
	case application.ActionUnclaim:
		return session.Unclaim(ctx, step.Item)
	case application.ActionSolve:
		return session.Solve(ctx, step.Item)
	case application.ActionView:
		_, err := session.View(ctx, step.Item, step.Claimant)
		return err
	case application.ActionUnview:
		return session.Unview(ctx, step.Item)
	case application.ActionRequest:
		_, err := session.RequestView(ctx, step.Item, step.Priority)
		return err
	case application.ActionRelease:
		return session.ReleaseView(ctx, step.Item, step.Terminal)
	case application.ActionWallOn:
		return session.EnableExpansion(ctx)
	case application.ActionWallOff:
		return session.DisableExpansion(ctx)
	case application.ActionSuppress:
		return session.SetWallSuppressed(ctx, true)
	case application.ActionUnsuppress:
		return session.SetWallSuppressed(ctx, false)
	case application.ActionShow:
		return session.SetVisible(ctx, true)
	case application.ActionHide:
		return session.SetVisible(ctx, false)
	case application.ActionAdvance:
		return nil
	default:
		return fmt.Errorf("unsupported action %q", step.Action)
	}
}

type simulationOutput struct {
	Scenario        string         `json:"scenario"`
	Elapsed         string         `json:"elapsed"`
	Base            int            `json:"base"`
	Expanded        int            `json:"expanded"`
	WallActive      bool           `json:"wall_active"`
	Visible         bool           `json:"visible"`
	PendingReleases int            `json:"pending_releases"`
	Slots           []slotOutput   `json:"slots"`
	Decisions       decisionTotals `json:"decisions"`
	StepErrors      []string       `json:"step_errors,omitempty"`
}

type slotOutput struct {
	Index    int    `json:"index"`
	Item     string `json:"item,omitempty"`
	Priority string `json:"priority,omitempty"`
	Claimant string `json:"claimant,omitempty"`
	Terminal bool   `json:"terminal,omitempty"`
}

type decisionCounts struct {
	Admitted     int64 `json:"admitted"`
	AlreadyBound int64 `json:"already_bound"`
	Denied       int64 `json:"denied"`
}

type decisionTotals struct {
	decisionCounts
	ByAction    map[string]decisionCounts `json:"by_action,omitempty"`
	ByRequester map[string]decisionCounts `json:"by_requester,omitempty"`
}

func toDecisionCounts(c stats.Counters) decisionCounts {
	return decisionCounts{Admitted: c.Admitted, AlreadyBound: c.AlreadyBound, Denied: c.Denied}
}

func toDecisionTotals(memory *stats.MemoryRecorder) decisionTotals {
	totals := decisionTotals{
		decisionCounts: toDecisionCounts(memory.Total()),
		ByAction:       map[string]decisionCounts{},
		ByRequester:    map[string]decisionCounts{},
	}
	for action, counters := range memory.ByAction() {
		totals.ByAction[action] = toDecisionCounts(counters)
	}
	for requester, counters := range memory.ByRequester() {
		totals.ByRequester[requester] = toDecisionCounts(counters)
	}
	return totals
}

func writeSimulationOutput(cmd *cobra.Command, app *app, result application.SimulationResult, memory *stats.MemoryRecorder, opts simulateOptions) error {
	out := cmd.OutOrStdout()
	decisions := toDecisionTotals(memory)

	if opts.asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(toSimulationOutput(result, decisions))
	}

	rendered, err := app.statusRenderer(result.Snapshot, statusadapter.RenderOptions{
		Title:     fmt.Sprintf("Slot Wall: %s", result.Scenario),
		Now:       result.Snapshot.TakenAt,
		HideEmpty: opts.hideEmpty,
		Columns:   opts.columns,
	})
	if err != nil {
		return fmt.Errorf("render wall: %w", err)
	}

	if _, err := fmt.Fprintln(out, rendered); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(out, "\ndecisions: %d admitted, %d already bound, %d denied\n",
		decisions.Admitted, decisions.AlreadyBound, decisions.Denied); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(out, "elapsed: %s\n", result.Elapsed.Round(time.Millisecond)); err != nil {
		return err
	}
	for _, stepErr := range result.StepErrors {
		if _, err := fmt.Fprintf(out, "warning: %s\n", stepErr.Error()); err != nil {
			return err
		}
	}
	if opts.outPath != "" {
		if _, err := fmt.Fprintf(out, "snapshot written to %s\n", opts.outPath); err != nil {
			return err
		}
	}

	return nil
}

func toSimulationOutput(result application.SimulationResult, decisions decisionTotals) simulationOutput {
	snapshot := result.Snapshot
	output := simulationOutput{
		Scenario:        result.Scenario,
		Elapsed:         result.Elapsed.String(),
		Base:            snapshot.Capacity.Base,
		Expanded:        snapshot.Capacity.Expanded,
		WallActive:      snapshot.Expanded,
		Visible:         snapshot.Visible,
		PendingReleases: snapshot.PendingReleases,
		Slots:           make([]slotOutput, 0, len(snapshot.Slots)),
		Decisions:       decisions,
	}

	for _, slot := range snapshot.Slots {
		entry := slotOutput{Index: int(slot.Index)}
		if slot.Item != "" {
			entry.Item = string(slot.Item)
			entry.Priority = slot.Priority.String()
			entry.Claimant = slot.Claimant
			entry.Terminal = slot.Terminal
		}
		output.Slots = append(output.Slots, entry)
	}
	for _, stepErr := range result.StepErrors {
		output.StepErrors = append(output.StepErrors, stepErr.Error())
	}

	return output
}
