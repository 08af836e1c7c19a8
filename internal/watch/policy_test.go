package watch

import (
	"testing"
)

func TestNewPolicy(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name               string
		autoPublish        bool
		waitUntilPublished bool
		expected           string
		outcomes           map[string]Outcome
	}{
		{
			name:     "user managed",
			expected: "VALIDATED",
			outcomes: map[string]Outcome{
				"PENDING":    InProgress,
				"VALIDATING": InProgress,
				"VALIDATED":  Succeeded,
				"PUBLISHING": Failed,
				"PUBLISHED":  Failed,
				"FAILED":     Failed,
			},
		},
		{
			name:               "user managed ignores wait flag",
			waitUntilPublished: true,
			expected:           "VALIDATED",
			outcomes: map[string]Outcome{
				"VALIDATED": Succeeded,
				"PUBLISHED": Failed,
			},
		},
		{
			name:        "automatic",
			autoPublish: true,
			expected:    "PUBLISHING or PUBLISHED",
			outcomes: map[string]Outcome{
				"VALIDATING": InProgress,
				"VALIDATED":  InProgress,
				"PUBLISHING": Succeeded,
				"PUBLISHED":  Succeeded,
				"FAILED":     Failed,
			},
		},
		{
			name:               "automatic until published",
			autoPublish:        true,
			waitUntilPublished: true,
			expected:           "PUBLISHED",
			outcomes: map[string]Outcome{
				"VALIDATED":  InProgress,
				"PUBLISHING": InProgress,
				"PUBLISHED":  Succeeded,
				"FAILED":     Failed,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p := NewPolicy(tt.autoPublish, tt.waitUntilPublished)
			if err := p.Validate(); err != nil {
				t.Fatalf("Validate() = %v", err)
			}
			if got := p.ExpectedDescription(); got != tt.expected {
				t.Errorf("ExpectedDescription() = %q, want %q", got, tt.expected)
			}
			for state, want := range tt.outcomes {
				if got := p.Classify(state); got != want {
					t.Errorf("Classify(%q) = %s, want %s", state, got, want)
				}
			}
		})
	}
}

func TestPolicy_UnknownStatesAreInProgress(t *testing.T) {
	t.Parallel()
	p := NewPolicy(true, true)
	for _, state := range []string{"", "QUEUED", "published", "SOMETHING_NEW"} {
		if got := p.Classify(state); got != InProgress {
			t.Errorf("Classify(%q) = %s, want in-progress", state, got)
		}
	}
}

func TestPolicy_Validate(t *testing.T) {
	t.Parallel()
	if err := (Policy{}).Validate(); err == nil {
		t.Error("expected error for policy without expected states")
	}
	overlap := Policy{Expected: []string{"A", "B"}, Unexpected: []string{"B"}}
	if err := overlap.Validate(); err == nil {
		t.Error("expected error for overlapping sets")
	}
}
