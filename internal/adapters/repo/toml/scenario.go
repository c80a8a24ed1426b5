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
	"gopkg.in/yaml.v3"
)

var ErrUnsupportedFormat = errors.New("unsupported scenario format")

// LoadScenario reads a scenario file. The format follows the extension:
// .toml, or .yaml/.yml.
func LoadScenario(path string) (application.Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return application.Scenario{}, fmt.Errorf("read scenario file: %w", err)
	}

	scenario, err := DecodeScenario(data, filepath.Ext(path))
	if err != nil {
		return application.Scenario{}, err
	}
	if scenario.Name == "" {
		scenario.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	return scenario, nil
}

func DecodeScenario(data []byte, ext string) (application.Scenario, error) {
	var file scenarioFileSchema
	switch strings.ToLower(ext) {
	case ".toml":
		if err := toml.Unmarshal(data, &file); err != nil {
			return application.Scenario{}, fmt.Errorf("decode scenario toml: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &file); err != nil {
			return application.Scenario{}, fmt.Errorf("decode scenario yaml: %w", err)
		}
	default:
		return application.Scenario{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}

	if err := file.validateVersion(); err != nil {
		return application.Scenario{}, err
	}
	file.applyDefaults()

	scenario, err := fromScenarioSchema(file)
	if err != nil {
		return application.Scenario{}, err
	}
	if err := scenario.Validate(); err != nil {
		return application.Scenario{}, fmt.Errorf("invalid scenario: %w", err)
	}

	return scenario, nil
}

func fromScenarioSchema(file scenarioFileSchema) (application.Scenario, error) {
	scenario := application.Scenario{
		Name:  file.Name,
		Steps: make([]application.ScenarioStep, 0, len(file.Steps)),
	}

	for i, entry := range file.Steps {
		at, err := parseOffset(entry.At)
		if err != nil {
			return application.Scenario{}, fmt.Errorf("step %d: %w", i+1, err)
		}
		priority, err := domain.ParsePriority(entry.Priority)
		if err != nil {
			return application.Scenario{}, fmt.Errorf("step %d: %w", i+1, err)
		}

		scenario.Steps = append(scenario.Steps, application.ScenarioStep{
			At:       at,
			Action:   application.ScenarioAction(strings.ToLower(strings.TrimSpace(entry.Action))),
			Item:     domain.ItemID(strings.TrimSpace(entry.Item)),
			Claimant: strings.TrimSpace(entry.Claimant),
			Priority: priority,
			Terminal: entry.Terminal,
		})
	}

	return scenario, nil
}

func parseOffset(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}

	offset, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("parse offset %q: %w", raw, err)
	}
	if offset < 0 {
		return 0, fmt.Errorf("offset %q must not be negative", raw)
	}
	return offset, nil
}
