package domain

import (
	"fmt"
	"strings"
)

// Priority ranks demand items for slot admission. Higher values win.
type Priority int

const (
	PriorityUnviewed Priority = iota
	PriorityClaimed
	PriorityManualRequest
)

func (p Priority) String() string {
	switch p {
	case PriorityUnviewed:
		return "unviewed"
	case PriorityClaimed:
		return "claimed"
	case PriorityManualRequest:
		return "manual"
	default:
		return fmt.Sprintf("priority(%d)", int(p))
	}
}

func (p Priority) Valid() bool {
	switch p {
	case PriorityUnviewed, PriorityClaimed, PriorityManualRequest:
		return true
	default:
		return false
	}
}

func ParsePriority(raw string) (Priority, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "unviewed", "":
		return PriorityUnviewed, nil
	case "claimed":
		return PriorityClaimed, nil
	case "manual", "manual_request":
		return PriorityManualRequest, nil
	default:
		return PriorityUnviewed, fmt.Errorf("unsupported priority %q", raw)
	}
}
