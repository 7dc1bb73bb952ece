package stream

import (
	"fmt"
	"strings"
)

// Action is the declared visibility of a region.
type Action uint8

const (
	ActionShow Action = iota + 1
	ActionHide
)

// ParseAction decodes "show"/"hide" (case and surrounding space ignored).
func ParseAction(s string) (Action, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "show":
		return ActionShow, nil
	case "hide":
		return ActionHide, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnrecognizedAction, s)
	}
}

func (a Action) Visible() bool { return a == ActionShow }

func (a Action) String() string {
	switch a {
	case ActionShow:
		return "show"
	case ActionHide:
		return "hide"
	default:
		return "unknown"
	}
}

// Target is one declared region and its desired visibility.
type Target struct {
	ID     string
	Action Action
}

// Rejection is a declared region whose action could not be decoded.
type Rejection struct {
	ID    string
	Value string
	Err   error
}

// DeclaredState is the desired region state for one update cycle.
type DeclaredState struct {
	Targets  []Target
	Rejected []Rejection
	// RemoveUnlisted unloads every loaded region that is not listed.
	RemoveUnlisted bool
	// Legacy marks the single-region shape: the target is shown, every other loaded region hidden.
	Legacy bool
}

// Listed reports whether id appears in the declaration, rejected entries included.
func (d DeclaredState) Listed(id string) bool {
	for _, t := range d.Targets {
		if t.ID == id {
			return true
		}
	}
	for _, r := range d.Rejected {
		if r.ID == id {
			return true
		}
	}
	return false
}

// AgentPosition is the reported position of the moving agent.
type AgentPosition struct {
	X, Y, Z float64
	// HasZ is false when the payload omitted z.
	HasZ bool
}

// AgentState is one decoded revision of the watched file.
type AgentState struct {
	Version int
	Regions *DeclaredState
	// Agent is the scene-space position; it wins over Geodetic when both are present.
	Agent    *AgentPosition
	Geodetic *GeodeticFix
}
