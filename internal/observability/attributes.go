// Package observability provides metrics for portal calls and deployment watches.
package observability

import (
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Attribute keys
const (
	attrOperation = "operation"
	attrStatus    = "status"
	attrState     = "state"
	attrOutcome   = "outcome"
)

// Outcomes of a watch session.
const (
	OutcomeSucceeded = "succeeded"
	OutcomeFailed    = "failed"
	OutcomeError     = "error"
	OutcomeCancelled = "cancelled"
)

func operationAttr(op string) attribute.KeyValue {
	return attribute.String(attrOperation, op)
}

func statusAttr(code int) attribute.KeyValue {
	// 0 means the request never produced a response
	if code == 0 {
		return attribute.String(attrStatus, "none")
	}
	return attribute.String(attrStatus, fmt.Sprintf("%dxx", code/100))
}

func stateAttr(state string) attribute.KeyValue {
	return attribute.String(attrState, normalizeState(state))
}

func outcomeAttr(outcome string) attribute.KeyValue {
	return attribute.String(attrOutcome, outcome)
}

// normalizeState bounds label cardinality: the state vocabulary is service
// controlled, so anything that does not look like an enum constant is folded.
func normalizeState(state string) string {
	if state == "" || len(state) > 32 {
		return "other"
	}
	for _, r := range state {
		if (r < 'A' || r > 'Z') && r != '_' {
			return "other"
		}
	}
	return state
}

// WithOutcome returns a metric option with the outcome attribute.
func WithOutcome(outcome string) metric.MeasurementOption {
	return metric.WithAttributes(outcomeAttr(outcome))
}
