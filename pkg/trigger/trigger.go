package trigger

import (
	"fmt"
)

type EventKind string

const (
	EventPush        EventKind = "push"
	EventPullRequest EventKind = "pull_request"
	EventTagPush     EventKind = "tag_push"
	EventManual      EventKind = "manual"
	EventSchedule    EventKind = "schedule"
)

// Event is an inbound trigger from a caller repository.
type Event struct {
	Kind   EventKind         `json:"kind"`
	Branch string            `json:"branch,omitempty"`
	Tag    string            `json:"tag,omitempty"`
	Inputs map[string]string `json:"inputs,omitempty"`
}

// Rules decide which events start a pipeline invocation.
type Rules struct {
	DefaultBranch string
}

// Decision is the evaluation result: whether to fire and, for release
// events, the resolved version string.
type Decision struct {
	Fire    bool
	Version string
	Reason  string
}

// Evaluate applies the trigger rules: push and pull_request fire only on the
// default branch, tag pushes fire only for well-formed version tags, manual
// dispatch requires a version input, and schedule events always fire.
func (r Rules) Evaluate(ev Event) (Decision, error) {
	switch ev.Kind {
	case EventPush, EventPullRequest:
		if ev.Branch != r.DefaultBranch {
			return Decision{Reason: fmt.Sprintf("branch %q is not the default branch", ev.Branch)}, nil
		}
		return Decision{Fire: true}, nil
	case EventTagPush:
		v, err := ParseVersion(ev.Tag)
		if err != nil {
			return Decision{}, err
		}
		return Decision{Fire: true, Version: v.String()}, nil
	case EventManual:
		version, ok := ev.Inputs["version"]
		if !ok || version == "" {
			return Decision{}, fmt.Errorf("manual dispatch requires a version input")
		}
		return Decision{Fire: true, Version: version}, nil
	case EventSchedule:
		return Decision{Fire: true}, nil
	default:
		return Decision{}, fmt.Errorf("unknown event kind %q", ev.Kind)
	}
}
