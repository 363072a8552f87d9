package manipulator

import (
	"fmt"
	"strings"
)

// Action names the tier transition a manipulator applies.
type Action string

const (
	ActionDelete  Action = "delete"
	ActionPull    Action = "pull"
	ActionRecover Action = "recover"
)

// Actions lists every action in scheduling order. Recovery runs first so
// that objects it resolves are eligible for the delete and pull passes.
func Actions() []Action {
	return []Action{ActionRecover, ActionDelete, ActionPull}
}

// Kind returns the name of the manipulator applying a: deleter, puller or
// recoverer.
func (a Action) Kind() string {
	switch a {
	case ActionDelete:
		return "deleter"
	case ActionPull:
		return "puller"
	case ActionRecover:
		return "recoverer"
	default:
		return string(a)
	}
}

func (a Action) String() string { return string(a) }

// ParseKind accepts a manipulator name ("deleter") or an action name
// ("delete"), case-insensitively.
func ParseKind(s string) (Action, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, a := range Actions() {
		if s == string(a) || s == a.Kind() {
			return a, nil
		}
	}
	return "", fmt.Errorf("unknown manipulator %q (expected deleter, puller or recoverer)", s)
}
