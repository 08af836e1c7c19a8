package watch

import (
	"fmt"
	"slices"
	"strings"

	"centralpublisher/internal/portal"
)

// Outcome is the classification of one observed deployment state.
type Outcome int

const (
	InProgress Outcome = iota
	Succeeded
	Failed
)

func (o Outcome) String() string {
	switch o {
	case InProgress:
		return "in-progress"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Policy classifies deployment states for one watch session.
// A state in neither set means the deployment is still in progress.
type Policy struct {
	Expected   []string
	Unexpected []string
}

// NewPolicy returns the policy for a deployment uploaded with or without
// automatic publishing. waitUntilPublished only matters with autoPublish.
func NewPolicy(autoPublish, waitUntilPublished bool) Policy {
	switch {
	case !autoPublish:
		return Policy{
			Expected:   []string{portal.StateValidated},
			Unexpected: []string{portal.StatePublishing, portal.StatePublished, portal.StateFailed},
		}
	case waitUntilPublished:
		return Policy{
			Expected:   []string{portal.StatePublished},
			Unexpected: []string{portal.StateFailed},
		}
	default:
		return Policy{
			Expected:   []string{portal.StatePublishing, portal.StatePublished},
			Unexpected: []string{portal.StateFailed},
		}
	}
}

// Validate checks that the policy can terminate and that its sets are disjoint.
func (p Policy) Validate() error {
	if len(p.Expected) == 0 {
		return fmt.Errorf("policy has no expected states")
	}
	for _, s := range p.Expected {
		if slices.Contains(p.Unexpected, s) {
			return fmt.Errorf("state %s is both expected and unexpected", s)
		}
	}
	return nil
}

// Classify returns the outcome of observing state.
func (p Policy) Classify(state string) Outcome {
	switch {
	case slices.Contains(p.Expected, state):
		return Succeeded
	case slices.Contains(p.Unexpected, state):
		return Failed
	default:
		return InProgress
	}
}

// ExpectedDescription renders the expected set, e.g. "PUBLISHING or PUBLISHED".
func (p Policy) ExpectedDescription() string {
	return strings.Join(p.Expected, " or ")
}
