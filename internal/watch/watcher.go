// Package watch polls a deployment until its state is classified as
// success or failure by a Policy.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"centralpublisher/internal/apperrors"
	"centralpublisher/internal/observability"
	"centralpublisher/internal/portal"
	"centralpublisher/pkg/backoff"
	"centralpublisher/pkg/circuitbreaker"
)

const (
	// DefaultInterval is the pause between status polls.
	DefaultInterval = time.Second
	// DefaultMaxErrors is the number of consecutive failed polls tolerated.
	DefaultMaxErrors = 3
)

// StatusFetcher fetches the current status of a deployment.
type StatusFetcher interface {
	Status(ctx context.Context, deploymentID string) (*portal.Status, error)
}

// Watcher drives the poll loop. A Watcher holds no per-deployment state and
// may run any number of Wait calls concurrently.
type Watcher struct {
	client     StatusFetcher
	interval   time.Duration
	maxErrors  int
	backoffMax time.Duration
	logger     *slog.Logger
	metrics    *observability.Metrics
	sleep      func(ctx context.Context, d time.Duration) error
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithInterval sets the pause between polls.
func WithInterval(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithMaxErrors sets how many consecutive protocol errors are tolerated.
func WithMaxErrors(n int) Option {
	return func(w *Watcher) {
		if n >= 0 {
			w.maxErrors = n
		}
	}
}

// WithBackoffMax grows the pause exponentially while the state stays
// unchanged, capped at d. Zero keeps the interval fixed.
func WithBackoffMax(d time.Duration) Option {
	return func(w *Watcher) { w.backoffMax = d }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(w *Watcher) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithMetrics records poll and outcome metrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(w *Watcher) { w.metrics = m }
}

// New creates a Watcher polling through client.
func New(client StatusFetcher, opts ...Option) *Watcher {
	w := &Watcher{
		client:    client,
		interval:  DefaultInterval,
		maxErrors: DefaultMaxErrors,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.sleep == nil {
		w.sleep = sleepContext
	}
	return w
}

// Wait polls deploymentID until policy classifies its state as success or
// failure. On failure the last status is returned along with an error
// wrapping apperrors.ErrDeploymentFailed. Every error names the deployment.
func (w *Watcher) Wait(ctx context.Context, deploymentID string, policy Policy) (*portal.Status, error) {
	if err := policy.Validate(); err != nil {
		return nil, apperrors.Validation("policy", err.Error())
	}

	logger := w.logger.With("deploymentId", deploymentID)
	expected := policy.ExpectedDescription()

	// Open once more consecutive errors than tolerated have been seen
	pollErrors := circuitbreaker.New(circuitbreaker.Config{Threshold: w.maxErrors + 1})

	start := time.Now()
	outcome := observability.OutcomeError
	w.metrics.RecordWatchStarted(ctx)
	defer func() {
		w.metrics.RecordWatchFinished(context.WithoutCancel(ctx), outcome, time.Since(start).Seconds())
	}()

	var lastState string
	unchanged := 0

	for {
		status, err := w.client.Status(ctx, deploymentID)
		if err != nil {
			if ctx.Err() != nil {
				outcome = observability.OutcomeCancelled
				return nil, w.cancelled(ctx, deploymentID, lastState)
			}
			if !apperrors.IsProtocol(err) {
				return nil, fmt.Errorf("deployment %s: status request failed (last state %s): %w",
					deploymentID, describeState(lastState), err)
			}

			w.metrics.RecordPollError(ctx)
			if pollErrors.RecordFailure() == circuitbreaker.Open {
				return nil, fmt.Errorf("deployment %s: status polling failed %d consecutive times (last state %s): %w",
					deploymentID, pollErrors.Failures(), describeState(lastState), err)
			}
			logger.Warn("Status poll failed, retrying",
				"attempt", pollErrors.Failures(),
				"maxErrors", w.maxErrors,
				"error", err)

			if err := w.sleep(ctx, w.interval); err != nil {
				outcome = observability.OutcomeCancelled
				return nil, w.cancelled(ctx, deploymentID, lastState)
			}
			continue
		}

		pollErrors.RecordSuccess()
		state := status.DeploymentState
		w.metrics.RecordPoll(ctx, state)

		switch policy.Classify(state) {
		case Succeeded:
			outcome = observability.OutcomeSucceeded
			logger.Info("Deployment reached expected state", "state", state)
			return status, nil
		case Failed:
			outcome = observability.OutcomeFailed
			return status, apperrors.DeploymentFailed(deploymentID, state, expected, status.ErrorsIndented())
		}

		if state == lastState {
			unchanged++
			logger.Debug("Waiting for deployment", "state", state, "expected", expected, "polls", unchanged+1)
		} else {
			unchanged = 0
			logger.Info("Waiting for deployment", "state", state, "expected", expected)
		}
		lastState = state

		if err := w.sleep(ctx, w.delay(unchanged)); err != nil {
			outcome = observability.OutcomeCancelled
			return nil, w.cancelled(ctx, deploymentID, lastState)
		}
	}
}

// delay returns the pause after a poll that repeated the previous state
// unchanged times in a row.
func (w *Watcher) delay(unchanged int) time.Duration {
	if w.backoffMax <= w.interval {
		return w.interval
	}
	return backoff.Exponential(unchanged+1, &backoff.Config{Initial: w.interval, Max: w.backoffMax})
}

func (w *Watcher) cancelled(ctx context.Context, deploymentID, lastState string) error {
	return fmt.Errorf("deployment %s: watch interrupted (last state %s): %w",
		deploymentID, describeState(lastState), ctx.Err())
}

func describeState(state string) string {
	if state == "" {
		return "unknown"
	}
	return state
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
