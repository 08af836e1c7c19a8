package watch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"centralpublisher/internal/apperrors"
	"centralpublisher/internal/portal"
)

// step is one scripted status response: either a state or an error.
type step struct {
	state  string
	errors string
	err    error
}

type scriptedFetcher struct {
	mu    sync.Mutex
	steps []step
	calls int
}

func (f *scriptedFetcher) Status(ctx context.Context, deploymentID string) (*portal.Status, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	i := f.calls
	if i >= len(f.steps) {
		i = len(f.steps) - 1
	}
	f.calls++
	s := f.steps[i]
	if s.err != nil {
		return nil, s.err
	}
	status := &portal.Status{DeploymentID: deploymentID, DeploymentState: s.state}
	if s.errors != "" {
		status.Errors = json.RawMessage(s.errors)
	}
	return status, nil
}

func (f *scriptedFetcher) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func states(names ...string) []step {
	steps := make([]step, len(names))
	for i, n := range names {
		steps[i] = step{state: n}
	}
	return steps
}

type logRecord struct {
	level slog.Level
	msg   string
	state string
}

// recordingHandler captures log records for assertions.
type recordingHandler struct {
	mu      sync.Mutex
	records []logRecord
}

func (h *recordingHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *recordingHandler) Handle(_ context.Context, r slog.Record) error {
	rec := logRecord{level: r.Level, msg: r.Message}
	r.Attrs(func(a slog.Attr) bool {
		if a.Key == "state" {
			rec.state = a.Value.String()
		}
		return true
	})
	h.mu.Lock()
	h.records = append(h.records, rec)
	h.mu.Unlock()
	return nil
}

func (h *recordingHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *recordingHandler) WithGroup(string) slog.Handler      { return h }

func (h *recordingHandler) Records() []logRecord {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]logRecord(nil), h.records...)
}

func newTestWatcher(f StatusFetcher, h slog.Handler, opts ...Option) *Watcher {
	opts = append([]Option{WithInterval(time.Millisecond), WithLogger(slog.New(h))}, opts...)
	return New(f, opts...)
}

var errBadGateway = apperrors.Protocol(portal.OpStatus, 502, "http://portal/api/v1/publisher/status?id=d1")

func TestWait_UserManaged(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name      string
		steps     []step
		wantErr   bool
		wantState string
		wantCalls int
	}{
		{"validated", states("PENDING", "VALIDATING", "VALIDATED"), false, "VALIDATED", 3},
		{"failed", states("VALIDATING", "FAILED"), true, "FAILED", 2},
		{"publishing not requested", states("VALIDATING", "PUBLISHING"), true, "PUBLISHING", 2},
		{"published not requested", states("PUBLISHED"), true, "PUBLISHED", 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := &scriptedFetcher{steps: tt.steps}
			w := newTestWatcher(f, &recordingHandler{})

			status, err := w.Wait(context.Background(), "d1", NewPolicy(false, false))
			if (err != nil) != tt.wantErr {
				t.Fatalf("Wait() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr && !errors.Is(err, apperrors.ErrDeploymentFailed) {
				t.Errorf("Wait() error = %v, want deployment failure", err)
			}
			if status == nil || status.DeploymentState != tt.wantState {
				t.Errorf("status = %+v, want state %s", status, tt.wantState)
			}
			if f.Calls() != tt.wantCalls {
				t.Errorf("polls = %d, want %d", f.Calls(), tt.wantCalls)
			}
		})
	}
}

func TestWait_AutomaticWithoutWaiting(t *testing.T) {
	t.Parallel()
	for _, terminal := range []string{"PUBLISHING", "PUBLISHED"} {
		f := &scriptedFetcher{steps: states("VALIDATING", "VALIDATED", terminal)}
		w := newTestWatcher(f, &recordingHandler{})

		status, err := w.Wait(context.Background(), "d1", NewPolicy(true, false))
		if err != nil {
			t.Fatalf("%s: Wait() error = %v", terminal, err)
		}
		if status.DeploymentState != terminal {
			t.Errorf("state = %s, want %s", status.DeploymentState, terminal)
		}
	}

	f := &scriptedFetcher{steps: states("VALIDATING", "FAILED")}
	_, err := newTestWatcher(f, &recordingHandler{}).Wait(context.Background(), "d1", NewPolicy(true, false))
	if !errors.Is(err, apperrors.ErrDeploymentFailed) {
		t.Errorf("Wait() error = %v, want deployment failure", err)
	}
}

func TestWait_LogDeduplication(t *testing.T) {
	t.Parallel()
	const n = 5
	steps := states(strings.Split(strings.Repeat("VALIDATING,", n)+"PUBLISHED", ",")...)
	f := &scriptedFetcher{steps: steps}
	h := &recordingHandler{}

	if _, err := newTestWatcher(f, h).Wait(context.Background(), "d1", NewPolicy(true, true)); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}

	var info, debug int
	for _, r := range h.Records() {
		if r.msg != "Waiting for deployment" {
			continue
		}
		switch r.level {
		case slog.LevelInfo:
			info++
		case slog.LevelDebug:
			debug++
		}
	}
	if info != 1 || debug != n-1 {
		t.Errorf("waiting logs: info=%d debug=%d, want info=1 debug=%d", info, debug, n-1)
	}
}

func TestWait_PublishedScenarioLogSequence(t *testing.T) {
	t.Parallel()
	f := &scriptedFetcher{steps: states("VALIDATING", "VALIDATING", "PUBLISHING", "PUBLISHED")}
	h := &recordingHandler{}

	if _, err := newTestWatcher(f, h).Wait(context.Background(), "d1", NewPolicy(true, true)); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}

	want := []logRecord{
		{slog.LevelInfo, "Waiting for deployment", "VALIDATING"},
		{slog.LevelDebug, "Waiting for deployment", "VALIDATING"},
		{slog.LevelInfo, "Waiting for deployment", "PUBLISHING"},
		{slog.LevelInfo, "Deployment reached expected state", "PUBLISHED"},
	}
	got := h.Records()
	if len(got) != len(want) {
		t.Fatalf("got %d log records, want %d: %+v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("record %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestWait_FailedScenarioMessage(t *testing.T) {
	t.Parallel()
	steps := []step{
		{state: "VALIDATING"},
		{state: "VALIDATING"},
		{state: "PUBLISHING"},
		{state: "FAILED", errors: `{"file.jar": "bad signature"}`},
	}
	f := &scriptedFetcher{steps: steps}

	status, err := newTestWatcher(f, &recordingHandler{}).Wait(context.Background(), "d1", NewPolicy(true, true))
	if !errors.Is(err, apperrors.ErrDeploymentFailed) {
		t.Fatalf("Wait() error = %v, want deployment failure", err)
	}
	for _, want := range []string{"d1", "FAILED", "PUBLISHED", "bad signature"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not contain %q", err, want)
		}
	}
	if status == nil || !status.HasErrors() {
		t.Errorf("expected failing status with errors, got %+v", status)
	}
	if apperrors.ExitCode(err) == 0 {
		t.Error("expected non-zero exit code")
	}
}

func TestWait_ToleratesTransientErrors(t *testing.T) {
	t.Parallel()
	steps := []step{{err: errBadGateway}, {err: errBadGateway}, {err: errBadGateway}, {state: "PUBLISHED"}}
	f := &scriptedFetcher{steps: steps}
	h := &recordingHandler{}

	status, err := newTestWatcher(f, h).Wait(context.Background(), "d1", NewPolicy(true, true))
	if err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if status.DeploymentState != "PUBLISHED" {
		t.Errorf("state = %s", status.DeploymentState)
	}

	warnings := 0
	for _, r := range h.Records() {
		if r.level == slog.LevelWarn {
			warnings++
		}
	}
	if warnings != 3 {
		t.Errorf("warnings = %d, want 3", warnings)
	}
}

func TestWait_EscalatesAfterMaxErrors(t *testing.T) {
	t.Parallel()
	steps := []step{{state: "VALIDATING"}, {err: errBadGateway}, {err: errBadGateway}, {err: errBadGateway}, {err: errBadGateway}, {state: "PUBLISHED"}}
	f := &scriptedFetcher{steps: steps}

	_, err := newTestWatcher(f, &recordingHandler{}).Wait(context.Background(), "d1", NewPolicy(true, true))
	if !errors.Is(err, errBadGateway) {
		t.Fatalf("Wait() error = %v, want underlying protocol error", err)
	}
	for _, want := range []string{"d1", "VALIDATING", "4 consecutive", "502"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not contain %q", err, want)
		}
	}
	if f.Calls() != 5 {
		t.Errorf("polls = %d, want 5", f.Calls())
	}
}

func TestWait_ErrorCountResetsOnSuccess(t *testing.T) {
	t.Parallel()
	steps := []step{
		{err: errBadGateway}, {err: errBadGateway}, {err: errBadGateway},
		{state: "VALIDATING"},
		{err: errBadGateway}, {err: errBadGateway}, {err: errBadGateway},
		{state: "VALIDATED"},
	}
	f := &scriptedFetcher{steps: steps}

	if _, err := newTestWatcher(f, &recordingHandler{}).Wait(context.Background(), "d1", NewPolicy(false, false)); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
}

func TestWait_MaxErrorsOption(t *testing.T) {
	t.Parallel()
	steps := []step{{err: errBadGateway}, {state: "VALIDATED"}}
	f := &scriptedFetcher{steps: steps}

	_, err := newTestWatcher(f, &recordingHandler{}, WithMaxErrors(0)).Wait(context.Background(), "d1", NewPolicy(false, false))
	if !apperrors.IsProtocol(err) {
		t.Errorf("Wait() error = %v, want protocol error on first failure", err)
	}
}

func TestWait_NetworkErrorIsFatal(t *testing.T) {
	t.Parallel()
	netErr := fmt.Errorf("status request failed: dial tcp 127.0.0.1:1: connect: connection refused")
	f := &scriptedFetcher{steps: []step{{err: netErr}, {state: "VALIDATED"}}}

	_, err := newTestWatcher(f, &recordingHandler{}).Wait(context.Background(), "d1", NewPolicy(false, false))
	if !errors.Is(err, netErr) {
		t.Fatalf("Wait() error = %v, want network error", err)
	}
	if !strings.Contains(err.Error(), "d1") {
		t.Errorf("error %q should name the deployment", err)
	}
	if f.Calls() != 1 {
		t.Errorf("polls = %d, want 1", f.Calls())
	}
}

func TestWait_Cancellation(t *testing.T) {
	t.Parallel()
	f := &scriptedFetcher{steps: states("VALIDATING")}
	w := newTestWatcher(f, &recordingHandler{}, WithInterval(time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := w.Wait(ctx, "d1", NewPolicy(false, false))
		done <- err
	}()

	for f.Calls() == 0 {
		time.Sleep(time.Millisecond)
	}
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Wait() error = %v, want context.Canceled", err)
		}
		if !strings.Contains(err.Error(), "d1") || !strings.Contains(err.Error(), "VALIDATING") {
			t.Errorf("error %q should name the deployment and last state", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Wait() did not return after cancellation")
	}
}

func TestWait_InvalidPolicy(t *testing.T) {
	t.Parallel()
	f := &scriptedFetcher{steps: states("VALIDATED")}
	_, err := newTestWatcher(f, &recordingHandler{}).Wait(context.Background(), "d1", Policy{})
	if !errors.Is(err, apperrors.ErrValidation) {
		t.Errorf("Wait() error = %v, want validation error", err)
	}
	if f.Calls() != 0 {
		t.Error("no poll should happen for an invalid policy")
	}
}

func TestWait_BackoffWhileUnchanged(t *testing.T) {
	t.Parallel()
	f := &scriptedFetcher{steps: states("VALIDATING", "VALIDATING", "VALIDATING", "VALIDATING", "PUBLISHING", "PUBLISHED")}

	var delays []time.Duration
	w := New(f,
		WithInterval(time.Second),
		WithBackoffMax(5*time.Second),
		WithLogger(slog.New(&recordingHandler{})),
	)
	w.sleep = func(_ context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}

	if _, err := w.Wait(context.Background(), "d1", NewPolicy(true, true)); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}

	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 5 * time.Second, time.Second}
	if len(delays) != len(want) {
		t.Fatalf("delays = %v, want %v", delays, want)
	}
	for i := range want {
		if delays[i] != want[i] {
			t.Errorf("delay %d = %v, want %v", i, delays[i], want[i])
		}
	}
}

func TestWait_FixedIntervalByDefault(t *testing.T) {
	t.Parallel()
	f := &scriptedFetcher{steps: states("VALIDATING", "VALIDATING", "VALIDATING", "VALIDATED")}

	var delays []time.Duration
	w := New(f, WithLogger(slog.New(&recordingHandler{})))
	w.sleep = func(_ context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}

	if _, err := w.Wait(context.Background(), "d1", NewPolicy(false, false)); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	for i, d := range delays {
		if d != DefaultInterval {
			t.Errorf("delay %d = %v, want %v", i, d, DefaultInterval)
		}
	}
}

// deploymentFetcher serves an independent script per deployment id.
type deploymentFetcher struct {
	scripts map[string]*scriptedFetcher
}

func (f *deploymentFetcher) Status(ctx context.Context, deploymentID string) (*portal.Status, error) {
	return f.scripts[deploymentID].Status(ctx, deploymentID)
}

func TestWait_ConcurrentSessions(t *testing.T) {
	t.Parallel()
	f := &deploymentFetcher{scripts: map[string]*scriptedFetcher{}}
	for i := 0; i < 8; i++ {
		f.scripts[fmt.Sprintf("d%d", i)] = &scriptedFetcher{steps: states("VALIDATING", "VALIDATING", "VALIDATED")}
	}
	w := newTestWatcher(f, &recordingHandler{})

	var wg sync.WaitGroup
	errs := make(chan error, len(f.scripts))
	for id := range f.scripts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := w.Wait(context.Background(), id, NewPolicy(false, false))
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("Wait() error = %v", err)
		}
	}
	for id, script := range f.scripts {
		if script.Calls() != 3 {
			t.Errorf("%s: polls = %d, want 3", id, script.Calls())
		}
	}
}
