// Package notify reports deployment outcomes as CloudEvents.
package notify

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"centralpublisher/internal/apperrors"
	"centralpublisher/internal/portal"
	"centralpublisher/pkg/cloudevent"
)

// Event types for deployment outcomes
const (
	EventTypeSucceeded = "central.deployment.succeeded"
	EventTypeFailed    = "central.deployment.failed"
)

// Source identifies this tool in emitted events.
const Source = "central-publish"

// Outcome describes how a watched deployment ended.
type Outcome struct {
	DeploymentID   string
	DeploymentName string
	Bundle         string
	Status         *portal.Status // nil when no status was observed
	Err            error
	Duration       time.Duration
}

// Notifier posts outcome events to a receiver URL in the background.
// A nil Notifier is a no-op.
type Notifier struct {
	d      *dispatcher
	logger *slog.Logger
}

// New returns a Notifier, or nil when url is empty. timeout bounds each
// delivery attempt; a nil logger uses slog.Default().
func New(url, signingKey string, timeout time.Duration, logger *slog.Logger) *Notifier {
	return newNotifier(url, signingKey, timeout, logger, defaultDispatchConfig())
}

func newNotifier(url, signingKey string, timeout time.Duration, logger *slog.Logger, cfg dispatchConfig) *Notifier {
	if url == "" {
		return nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	sender := cloudevent.NewSender(nil, timeout, signingKey)
	return &Notifier{
		d:      newDispatcher(url, sender, cfg, logger),
		logger: logger,
	}
}

// Build creates the event for an outcome.
func Build(o Outcome) *cloudevent.CloudEvent {
	eventType := EventTypeSucceeded
	if o.Err != nil {
		eventType = EventTypeFailed
	}

	data := map[string]any{
		"deploymentId":    o.DeploymentID,
		"durationSeconds": o.Duration.Seconds(),
		"exitCode":        apperrors.ExitCode(o.Err),
	}
	if o.DeploymentName != "" {
		data["deploymentName"] = o.DeploymentName
	}
	if o.Bundle != "" {
		data["bundle"] = o.Bundle
	}
	if o.Status != nil {
		data["state"] = o.Status.DeploymentState
		if o.Status.HasErrors() {
			data["errors"] = o.Status.Errors
		}
		if len(o.Status.Purls) > 0 {
			data["purls"] = o.Status.Purls
		}
	}
	if o.Err != nil {
		data["error"] = o.Err.Error()
		var appErr *apperrors.Error
		if errors.As(o.Err, &appErr) && appErr.State != "" {
			data["state"] = appErr.State
		}
	}
	return cloudevent.New(eventType, Source, o.DeploymentID, data)
}

// Notify queues the outcome event. Delivery failures are logged and never
// change the outcome of the run.
func (n *Notifier) Notify(ctx context.Context, o Outcome) {
	if n == nil {
		return
	}
	event := Build(o)
	if err := n.d.dispatch(event); err != nil {
		n.logger.WarnContext(ctx, "Deployment notification not queued", "deploymentId", o.DeploymentID, "error", err)
	}
}

// Close waits until queued notifications are delivered or ctx is done.
func (n *Notifier) Close(ctx context.Context) error {
	if n == nil {
		return nil
	}
	return n.d.close(ctx)
}

// Stats returns delivery counters.
func (n *Notifier) Stats() Stats {
	if n == nil {
		return Stats{}
	}
	return n.d.stats()
}
