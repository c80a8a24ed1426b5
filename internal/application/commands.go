package application

import (
	"fmt"
	"strings"
	"time"

	"github.com/bnema/slotwall/internal/domain"
)

type ScenarioAction string

const (
	ActionClaim      ScenarioAction = "claim"
	ActionUnclaim    ScenarioAction = "unclaim"
	ActionSolve      ScenarioAction = "solve"
	ActionView       ScenarioAction = "view"
	ActionUnview     ScenarioAction = "unview"
	ActionRequest    ScenarioAction = "request"
	ActionRelease    ScenarioAction = "release"
	ActionWallOn     ScenarioAction = "wall_on"
	ActionWallOff    ScenarioAction = "wall_off"
	ActionSuppress   ScenarioAction = "suppress"
	ActionUnsuppress ScenarioAction = "unsuppress"
	ActionShow       ScenarioAction = "show"
	ActionHide       ScenarioAction = "hide"
	ActionAdvance    ScenarioAction = "advance"
)

func (a ScenarioAction) Valid() bool {
	switch a {
	case ActionClaim, ActionUnclaim, ActionSolve, ActionView, ActionUnview,
		ActionRequest, ActionRelease, ActionWallOn, ActionWallOff,
		ActionSuppress, ActionUnsuppress, ActionShow, ActionHide, ActionAdvance:
		return true
	default:
		return false
	}
}

func (a ScenarioAction) needsItem() bool {
	switch a {
	case ActionClaim, ActionUnclaim, ActionSolve, ActionView, ActionUnview, ActionRequest, ActionRelease:
		return true
	default:
		return false
	}
}

// ScenarioStep is one host event. At is the offset from the scenario start.
type ScenarioStep struct {
	At       time.Duration
	Action   ScenarioAction
	Item     domain.ItemID
	Claimant string
	Priority domain.Priority
	// Terminal applies to release steps.
	Terminal bool
}

type Scenario struct {
	Name  string
	Steps []ScenarioStep
}

func (s Scenario) Validate() error {
	var previous time.Duration
	for i, step := range s.Steps {
		if !step.Action.Valid() {
			return fmt.Errorf("step %d: unsupported action %q", i+1, step.Action)
		}
		if step.At < previous {
			return fmt.Errorf("step %d: offset %s is before previous step %s", i+1, step.At, previous)
		}
		if step.Action.needsItem() && strings.TrimSpace(string(step.Item)) == "" {
			return fmt.Errorf("step %d: %s requires an item", i+1, step.Action)
		}
		if step.Action == ActionClaim && strings.TrimSpace(step.Claimant) == "" {
			return fmt.Errorf("step %d: claim requires a claimant", i+1)
		}
		if !step.Priority.Valid() {
			return fmt.Errorf("step %d: unsupported priority %d", i+1, step.Priority)
		}
		previous = step.At
	}

	return nil
}
