package toml

import "fmt"

const (
	currentScenarioSchemaVersion = 1
	currentSnapshotSchemaVersion = 1
)

type configSchema struct {
	Capacity capacitySchema `toml:"capacity"`
	Release  releaseSchema  `toml:"release"`
	Wall     wallSchema     `toml:"wall"`
	Manual   manualSchema   `toml:"manual"`
	Stats    statsSchema    `toml:"stats"`
	Trace    traceSchema    `toml:"trace"`
}

type capacitySchema struct {
	Base     int `toml:"base"`
	Expanded int `toml:"expanded"`
}

type releaseSchema struct {
	Delay string `toml:"delay"`
}

type wallSchema struct {
	Automatic  bool `toml:"automatic"`
	Suppressed bool `toml:"suppressed"`
}

type manualSchema struct {
	Rate    float64 `toml:"rate"`
	Burst   int     `toml:"burst"`
	IdleTTL string  `toml:"idle_ttl"`
}

type statsSchema struct {
	RedisAddr string `toml:"redis_addr"`
	Prefix    string `toml:"prefix"`
	TTL       string `toml:"ttl"`
	Bucket    string `toml:"bucket"`
}

type traceSchema struct {
	File string `toml:"file"`
}

// scenarioFileSchema is shared by the TOML and YAML scenario formats.
type scenarioFileSchema struct {
	Version int          `toml:"version" yaml:"version"`
	Name    string       `toml:"name" yaml:"name"`
	Steps   []stepSchema `toml:"steps" yaml:"steps"`
}

func (s *scenarioFileSchema) applyDefaults() {
	if s.Version == 0 {
		s.Version = currentScenarioSchemaVersion
	}
}

func (s scenarioFileSchema) validateVersion() error {
	if s.Version > currentScenarioSchemaVersion {
		return fmt.Errorf("unsupported scenario schema version %d (current %d)", s.Version, currentScenarioSchemaVersion)
	}

	return nil
}

type stepSchema struct {
	At       string `toml:"at" yaml:"at"`
	Action   string `toml:"action" yaml:"action"`
	Item     string `toml:"item,omitempty" yaml:"item,omitempty"`
	Claimant string `toml:"claimant,omitempty" yaml:"claimant,omitempty"`
	Priority string `toml:"priority,omitempty" yaml:"priority,omitempty"`
	Terminal bool   `toml:"terminal,omitempty" yaml:"terminal,omitempty"`
}

type snapshotFileSchema struct {
	Version    int              `toml:"version"`
	Scenario   string           `toml:"scenario,omitempty"`
	TakenAt    string           `toml:"taken_at"`
	Elapsed    string           `toml:"elapsed,omitempty"`
	Base       int              `toml:"base"`
	Expanded   int              `toml:"expanded"`
	WallActive bool             `toml:"wall_active"`
	Visible    bool             `toml:"visible"`
	Suppressed bool             `toml:"suppressed"`
	Pending    int              `toml:"pending_releases"`
	Slots      []slotSchema     `toml:"slots"`
	Decisions  []decisionSchema `toml:"decisions,omitempty"`
	StepErrors []string         `toml:"step_errors,omitempty"`
}

func (s *snapshotFileSchema) applyDefaults() {
	if s.Version == 0 {
		s.Version = currentSnapshotSchemaVersion
	}
}

type slotSchema struct {
	Index    int    `toml:"index"`
	Item     string `toml:"item,omitempty"`
	Priority string `toml:"priority,omitempty"`
	Claimant string `toml:"claimant,omitempty"`
	Terminal bool   `toml:"terminal,omitempty"`
	Active   bool   `toml:"active"`
}

type decisionSchema struct {
	At        string `toml:"at"`
	Action    string `toml:"action"`
	Item      string `toml:"item"`
	Requester string `toml:"requester,omitempty"`
	Priority  string `toml:"priority"`
	Outcome   string `toml:"outcome"`
	Slot      int    `toml:"slot"`
}
