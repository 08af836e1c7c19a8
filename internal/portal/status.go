package portal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"centralpublisher/internal/apperrors"
)

// Deployment states reported by the portal. The vocabulary is open-ended;
// these are the values the publisher classifies.
const (
	StatePending    = "PENDING"
	StateValidating = "VALIDATING"
	StateValidated  = "VALIDATED"
	StatePublishing = "PUBLISHING"
	StatePublished  = "PUBLISHED"
	StateFailed     = "FAILED"
)

// Status is a point-in-time snapshot of a deployment.
type Status struct {
	DeploymentID    string          `json:"deploymentId,omitempty"`
	DeploymentName  string          `json:"deploymentName,omitempty"`
	DeploymentState string          `json:"deploymentState"`
	Purls           []string        `json:"purls,omitempty"`
	Errors          json.RawMessage `json:"errors,omitempty"`

	// Raw is the response body as returned by the portal.
	Raw json.RawMessage `json:"-"`
}

// HasErrors reports whether the portal attached a non-empty errors object.
func (s *Status) HasErrors() bool {
	switch string(bytes.TrimSpace(s.Errors)) {
	case "", "null", "{}", "[]":
		return false
	default:
		return true
	}
}

// ErrorsIndented returns the errors object pretty-printed, or "" when absent.
func (s *Status) ErrorsIndented() string {
	if !s.HasErrors() {
		return ""
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, s.Errors, "", "  "); err != nil {
		return string(s.Errors)
	}
	return buf.String()
}

// Status fetches the current status of a deployment.
func (c *Client) Status(ctx context.Context, deploymentID string) (*Status, error) {
	endpoint, err := c.endpoint(statusPath, url.Values{"id": {deploymentID}})
	if err != nil {
		return nil, fmt.Errorf("failed to build status URL: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.do(req, OpStatus, http.StatusOK)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read status response: %w", err)
	}
	return decodeStatus(body, endpoint)
}

func decodeStatus(body []byte, endpoint string) (*Status, error) {
	var status Status
	if err := json.Unmarshal(body, &status); err != nil {
		return nil, apperrors.MalformedResponse(OpStatus, endpoint, err)
	}
	if status.DeploymentState == "" {
		return nil, apperrors.MalformedResponse(OpStatus, endpoint, errors.New("deploymentState is missing"))
	}
	status.Raw = json.RawMessage(body)
	return &status, nil
}
