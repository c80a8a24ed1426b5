package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	statusadapter "github.com/bnema/slotwall/internal/adapters/render/status"
	tomlrepo "github.com/bnema/slotwall/internal/adapters/repo/toml"
	"github.com/bnema/slotwall/internal/adapters/ratelimit"
	"github.com/bnema/slotwall/internal/adapters/stats"
	"github.com/bnema/slotwall/internal/adapters/tracing"
	"github.com/bnema/slotwall/internal/application"
	"github.com/bnema/slotwall/internal/domain"
	"github.com/bnema/slotwall/internal/ports"
	"github.com/bnema/slotwall/internal/version"
	"github.com/spf13/viper"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const serviceName = "slotwall"

type app struct {
	settings       tomlrepo.Settings
	logger         *zap.Logger
	statusRenderer func(application.WallSnapshot, statusadapter.RenderOptions) (string, error)
	now            func() time.Time
}

func wireApp() (*app, error) {
	settings, err := tomlrepo.LoadSettings(viper.New())
	if err != nil {
		return nil, fmt.Errorf("wire settings: %w", err)
	}

	return &app{
		settings:       settings,
		logger:         zap.NewNop(),
		statusRenderer: statusadapter.Render,
		now:            time.Now,
	}, nil
}

// initLogger builds the production logger on w. debug lowers the level.
func (a *app) initLogger(w io.Writer, debug bool) {
	config := zap.NewProductionConfig()
	if debug {
		config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(config.EncoderConfig),
		zapcore.Lock(zapcore.AddSync(w)),
		config.Level,
	)
	a.logger = zap.New(core, zap.AddCaller())
}

// decisionSinks is the set of recorders a run reports decisions to.
type decisionSinks struct {
	memory   *stats.MemoryRecorder
	recorder ports.DecisionRecorder
	close    func()
}

func (a *app) wireRecorders(ctx context.Context) decisionSinks {
	memory := stats.NewMemoryRecorder(stats.WithTrackRequesters(true))
	sinks := decisionSinks{memory: memory, recorder: memory, close: func() {}}

	client := stats.NewRedisClient(a.settings.RedisAddr)
	if client == nil {
		return sinks
	}

	if err := client.Ping(ctx).Err(); err != nil {
		a.logger.Warn("redis stats disabled", zap.String("addr", a.settings.RedisAddr), zap.Error(err))
		_ = client.Close()
		return sinks
	}

	sinks.recorder = fanOut{memory, stats.NewRedisRecorder(client,
		stats.WithRedisPrefix(a.settings.StatsPrefix),
		stats.WithRedisTTL(a.settings.StatsTTL),
		stats.WithRedisBucket(a.settings.StatsBucket),
		stats.WithRedisTrackRequesters(true),
	)}
	sinks.close = func() {
		if err := client.Close(); err != nil {
			a.logger.Warn("close redis client", zap.Error(err))
		}
	}
	return sinks
}

// wireLimiter returns nil when manual views are unlimited.
func (a *app) wireLimiter(now func() time.Time) ports.ManualViewLimiter {
	if a.settings.ManualRate <= 0 {
		return nil
	}

	return ratelimit.New(a.settings.ManualRate, a.settings.ManualBurst,
		ratelimit.WithNow(now),
		ratelimit.WithIdleTTL(a.settings.ManualIdleTTL),
	)
}

// wireTracer installs the stdout span exporter when a trace file is set.
func (a *app) wireTracer(traceFile string) (trace.Tracer, func(context.Context), error) {
	if traceFile == "" {
		return noop.NewTracerProvider().Tracer(tracing.InstrumentationName), func(context.Context) {}, nil
	}

	provider, err := tracing.NewStdout(serviceName, version.Version, traceFile, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("wire tracing: %w", err)
	}

	shutdown := func(ctx context.Context) {
		if err := provider.Shutdown(ctx); err != nil {
			a.logger.Warn("shutdown tracing", zap.Error(err))
		}
	}
	return provider.Tracer(), shutdown, nil
}

type fanOut []ports.DecisionRecorder

func (f fanOut) Record(ctx context.Context, decision domain.Decision) error {
	var errs []error
	for _, recorder := range f {
		if err := recorder.Record(ctx, decision); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
