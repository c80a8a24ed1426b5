package toml

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bnema/slotwall/internal/application"
	"github.com/bnema/slotwall/internal/domain"
	toml "github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"
)

const (
	configName      = "config"
	configType      = "toml"
	configDir       = ".slotwall"
	envPrefix       = "SLOTWALL"
	baseKey         = "capacity.base"
	expandedKey     = "capacity.expanded"
	releaseDelayKey = "release.delay"
	automaticKey    = "wall.automatic"
	suppressedKey   = "wall.suppressed"
	manualRateKey   = "manual.rate"
	manualBurstKey  = "manual.burst"
	manualIdleKey   = "manual.idle_ttl"
	redisAddrKey    = "stats.redis_addr"
	statsPrefixKey  = "stats.prefix"
	statsTTLKey     = "stats.ttl"
	statsBucketKey  = "stats.bucket"
	traceFileKey    = "trace.file"
)

// Settings is everything the CLI reads from config, env and flags.
type Settings struct {
	Allocator   application.AllocatorConfig
	ManualRate  float64
	ManualBurst int
	// ManualIdleTTL is how long an idle requester keeps its bucket.
	ManualIdleTTL time.Duration
	RedisAddr     string
	StatsPrefix   string
	// StatsTTL expires the per-minute and per-requester redis keys.
	StatsTTL    time.Duration
	StatsBucket string
	TraceFile   string
	// ConfigFile is the file viper loaded, empty when defaults were used.
	ConfigFile string
}

// LoadSettings reads ~/.slotwall/config.toml when present and layers
// SLOTWALL_* environment variables on top. Flags bound to cfg win over both.
func LoadSettings(cfg *viper.Viper) (Settings, error) {
	if cfg == nil {
		cfg = viper.New()
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return Settings{}, fmt.Errorf("resolve home directory: %w", err)
	}

	cfg.SetConfigName(configName)
	cfg.SetConfigType(configType)
	cfg.AddConfigPath(filepath.Join(homeDir, configDir))
	cfg.SetEnvPrefix(envPrefix)
	cfg.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	cfg.AutomaticEnv()
	applyConfigDefaults(cfg)

	err = cfg.ReadInConfig()
	if err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return Settings{}, fmt.Errorf("read config file: %w", err)
		}
	}

	delay, err := parseDuration(releaseDelayKey, cfg.GetString(releaseDelayKey))
	if err != nil {
		return Settings{}, err
	}
	idleTTL, err := parseDuration(manualIdleKey, cfg.GetString(manualIdleKey))
	if err != nil {
		return Settings{}, err
	}
	statsTTL, err := parseDuration(statsTTLKey, cfg.GetString(statsTTLKey))
	if err != nil {
		return Settings{}, err
	}

	settings := Settings{
		Allocator: application.AllocatorConfig{
			Capacity: domain.Capacity{
				Base:     cfg.GetInt(baseKey),
				Expanded: cfg.GetInt(expandedKey),
			},
			ReleaseDelay:   delay,
			AutomaticWall:  cfg.GetBool(automaticKey),
			WallSuppressed: cfg.GetBool(suppressedKey),
		},
		ManualRate:    cfg.GetFloat64(manualRateKey),
		ManualBurst:   cfg.GetInt(manualBurstKey),
		ManualIdleTTL: idleTTL,
		RedisAddr:     strings.TrimSpace(cfg.GetString(redisAddrKey)),
		StatsPrefix:   strings.Trim(strings.TrimSpace(cfg.GetString(statsPrefixKey)), ":"),
		StatsTTL:      statsTTL,
		StatsBucket:   strings.ToLower(strings.TrimSpace(cfg.GetString(statsBucketKey))),
		TraceFile:     strings.TrimSpace(cfg.GetString(traceFileKey)),
		ConfigFile:    cfg.ConfigFileUsed(),
	}
	if err := settings.Validate(); err != nil {
		return Settings{}, err
	}

	return settings, nil
}

func (s Settings) Validate() error {
	if err := s.Allocator.Validate(); err != nil {
		return fmt.Errorf("invalid allocator config: %w", err)
	}
	if s.ManualRate < 0 {
		return errors.New("manual.rate must not be negative")
	}
	if s.ManualRate > 0 && s.ManualBurst < 1 {
		return errors.New("manual.burst must be at least 1 when manual.rate is set")
	}
	if s.ManualIdleTTL < 0 {
		return errors.New("manual.idle_ttl must not be negative")
	}
	if s.StatsTTL < 0 {
		return errors.New("stats.ttl must not be negative")
	}
	if s.StatsPrefix == "" {
		return errors.New("stats.prefix must not be empty")
	}
	if s.StatsBucket != "minute" && s.StatsBucket != "none" {
		return fmt.Errorf("stats.bucket must be minute or none, got %q", s.StatsBucket)
	}

	return nil
}

// EncodeSettings renders settings in the config file layout.
func EncodeSettings(settings Settings) ([]byte, error) {
	file := configSchema{
		Capacity: capacitySchema{
			Base:     settings.Allocator.Capacity.Base,
			Expanded: settings.Allocator.Capacity.Expanded,
		},
		Release: releaseSchema{Delay: settings.Allocator.ReleaseDelay.String()},
		Wall: wallSchema{
			Automatic:  settings.Allocator.AutomaticWall,
			Suppressed: settings.Allocator.WallSuppressed,
		},
		Manual: manualSchema{
			Rate:    settings.ManualRate,
			Burst:   settings.ManualBurst,
			IdleTTL: settings.ManualIdleTTL.String(),
		},
		Stats: statsSchema{
			RedisAddr: settings.RedisAddr,
			Prefix:    settings.StatsPrefix,
			TTL:       settings.StatsTTL.String(),
			Bucket:    settings.StatsBucket,
		},
		Trace:  traceSchema{File: settings.TraceFile},
	}

	data, err := toml.Marshal(file)
	if err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	return data, nil
}

func applyConfigDefaults(cfg *viper.Viper) {
	defaults := application.DefaultAllocatorConfig()
	cfg.SetDefault(baseKey, defaults.Capacity.Base)
	cfg.SetDefault(expandedKey, defaults.Capacity.Expanded)
	cfg.SetDefault(releaseDelayKey, defaults.ReleaseDelay.String())
	cfg.SetDefault(automaticKey, defaults.AutomaticWall)
	cfg.SetDefault(suppressedKey, defaults.WallSuppressed)
	cfg.SetDefault(manualRateKey, 0.0)
	cfg.SetDefault(manualBurstKey, 1)
	cfg.SetDefault(manualIdleKey, "15m")
	cfg.SetDefault(redisAddrKey, "")
	cfg.SetDefault(statsPrefixKey, "slotwall:decisions")
	cfg.SetDefault(statsTTLKey, "24h")
	cfg.SetDefault(statsBucketKey, "minute")
	cfg.SetDefault(traceFileKey, "")
}

func parseDuration(key, raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return d, nil
}
