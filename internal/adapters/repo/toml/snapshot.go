package toml

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bnema/slotwall/internal/application"
	"github.com/bnema/slotwall/internal/domain"
	toml "github.com/pelletier/go-toml/v2"
)

const (
	snapshotFileMode    = 0o644
	snapshotDirMode     = 0o755
	snapshotTempPattern = ".snapshot-*.toml.tmp"
)

var (
	lockRegistryMu sync.Mutex
	pathLockMap    = map[string]*sync.RWMutex{}
)

// SnapshotStore writes wall snapshots to a TOML file.
type SnapshotStore struct {
	path string
	mu   *sync.RWMutex
}

func NewSnapshotStore(path string) (*SnapshotStore, error) {
	if path == "" {
		return nil, errors.New("snapshot path is empty")
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve snapshot path: %w", err)
	}
	absPath = filepath.Clean(absPath)

	return &SnapshotStore{path: absPath, mu: lockForPath(absPath)}, nil
}

func (s *SnapshotStore) Path() string {
	return s.path
}

func (s *SnapshotStore) Save(ctx context.Context, result application.SimulationResult) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.writeSchema(toSnapshotSchema(result))
}

// SavedWall is a snapshot file read back for display. It never restores an
// allocator.
type SavedWall struct {
	Scenario   string
	Elapsed    time.Duration
	Snapshot   application.WallSnapshot
	Decisions  int
	StepErrors []string
}

func (s *SnapshotStore) Load(ctx context.Context) (SavedWall, error) {
	if err := ctx.Err(); err != nil {
		return SavedWall{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		return SavedWall{}, fmt.Errorf("read snapshot file: %w", err)
	}

	var file snapshotFileSchema
	if err := toml.Unmarshal(data, &file); err != nil {
		return SavedWall{}, fmt.Errorf("decode snapshot file: %w", err)
	}
	if file.Version > currentSnapshotSchemaVersion {
		return SavedWall{}, fmt.Errorf("unsupported snapshot schema version %d (current %d)", file.Version, currentSnapshotSchemaVersion)
	}

	return fromSnapshotSchema(file)
}

func (s *SnapshotStore) writeSchema(file snapshotFileSchema) error {
	file.applyDefaults()

	if err := os.MkdirAll(filepath.Dir(s.path), snapshotDirMode); err != nil {
		return fmt.Errorf("create snapshot directory: %w", err)
	}

	data, err := toml.Marshal(file)
	if err != nil {
		return fmt.Errorf("encode snapshot file: %w", err)
	}

	tempFile, err := os.CreateTemp(filepath.Dir(s.path), snapshotTempPattern)
	if err != nil {
		return fmt.Errorf("create temp snapshot file: %w", err)
	}

	tempName := tempFile.Name()
	cleanup := true
	defer func() {
		if cleanup {
			_ = os.Remove(tempName)
		}
	}()

	if _, err := tempFile.Write(data); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("write temp snapshot file: %w", err)
	}

	if err := tempFile.Chmod(snapshotFileMode); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("chmod temp snapshot file: %w", err)
	}

	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("close temp snapshot file: %w", err)
	}

	if err := os.Rename(tempName, s.path); err != nil {
		return fmt.Errorf("replace snapshot file: %w", err)
	}

	cleanup = false
	return nil
}

func lockForPath(path string) *sync.RWMutex {
	lockRegistryMu.Lock()
	defer lockRegistryMu.Unlock()

	if mu, ok := pathLockMap[path]; ok {
		return mu
	}

	mu := &sync.RWMutex{}
	pathLockMap[path] = mu
	return mu
}

func toSnapshotSchema(result application.SimulationResult) snapshotFileSchema {
	snapshot := result.Snapshot
	file := snapshotFileSchema{
		Scenario:   result.Scenario,
		TakenAt:    formatTime(snapshot.TakenAt),
		Base:       snapshot.Capacity.Base,
		Expanded:   snapshot.Capacity.Expanded,
		WallActive: snapshot.Expanded,
		Visible:    snapshot.Visible,
		Suppressed: snapshot.Suppressed,
		Pending:    snapshot.PendingReleases,
		Slots:      make([]slotSchema, 0, len(snapshot.Slots)),
	}
	if result.Elapsed > 0 {
		file.Elapsed = result.Elapsed.String()
	}

	for _, slot := range snapshot.Slots {
		entry := slotSchema{Index: int(slot.Index), Active: slot.Active}
		if slot.Item != "" {
			entry.Item = string(slot.Item)
			entry.Priority = slot.Priority.String()
			entry.Claimant = slot.Claimant
			entry.Terminal = slot.Terminal
		}
		file.Slots = append(file.Slots, entry)
	}

	for _, decision := range result.Decisions {
		file.Decisions = append(file.Decisions, decisionSchema{
			At:        formatTime(decision.At),
			Action:    decision.Action,
			Item:      string(decision.Item),
			Requester: decision.Requester,
			Priority:  decision.Priority.String(),
			Outcome:   decision.Outcome.String(),
			Slot:      int(decision.Slot),
		})
	}

	for _, stepErr := range result.StepErrors {
		file.StepErrors = append(file.StepErrors, stepErr.Error())
	}

	return file
}

func fromSnapshotSchema(file snapshotFileSchema) (SavedWall, error) {
	saved := SavedWall{
		Scenario:   file.Scenario,
		Decisions:  len(file.Decisions),
		StepErrors: file.StepErrors,
		Snapshot: application.WallSnapshot{
			Capacity:        domain.Capacity{Base: file.Base, Expanded: file.Expanded},
			Expanded:        file.WallActive,
			Visible:         file.Visible,
			Suppressed:      file.Suppressed,
			PendingReleases: file.Pending,
			Slots:           make([]application.SlotView, 0, len(file.Slots)),
		},
	}

	if file.Elapsed != "" {
		elapsed, err := time.ParseDuration(file.Elapsed)
		if err != nil {
			return SavedWall{}, fmt.Errorf("parse elapsed %q: %w", file.Elapsed, err)
		}
		saved.Elapsed = elapsed
	}

	takenAt, err := parseTime(file.TakenAt)
	if err != nil {
		return SavedWall{}, fmt.Errorf("parse taken_at %q: %w", file.TakenAt, err)
	}
	saved.Snapshot.TakenAt = takenAt

	for _, entry := range file.Slots {
		priority, err := domain.ParsePriority(entry.Priority)
		if err != nil {
			return SavedWall{}, fmt.Errorf("slot %d: %w", entry.Index, err)
		}
		saved.Snapshot.Slots = append(saved.Snapshot.Slots, application.SlotView{
			Index:    domain.SlotIndex(entry.Index),
			Item:     domain.ItemID(entry.Item),
			Priority: priority,
			Claimant: entry.Claimant,
			Terminal: entry.Terminal,
			Active:   entry.Active,
		})
	}

	return saved, nil
}

func parseTime(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}

	return time.Parse(time.RFC3339Nano, raw)
}

func formatTime(value time.Time) string {
	if value.IsZero() {
		return ""
	}

	return value.UTC().Format(time.RFC3339Nano)
}
