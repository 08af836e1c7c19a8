package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"centralpublisher/internal/apperrors"
	"centralpublisher/internal/deploymentid"
	"centralpublisher/internal/notify"
	"centralpublisher/internal/observability"
	"centralpublisher/internal/portal"
	"centralpublisher/internal/watch"
)

const notifyTimeout = 10 * time.Second

// session holds everything a networked command needs.
type session struct {
	client   *portal.Client
	watcher  *watch.Watcher
	notifier *notify.Notifier
	logger   *slog.Logger
	stop     func()
}

// connect validates the configuration and builds the portal client, watcher,
// notifier and optional metrics listener. Callers must call Close.
func (o *options) connect(ctx context.Context, progress io.Writer) (*session, error) {
	if err := o.cfg.Validate(); err != nil {
		return nil, err
	}

	metrics, stop, err := o.serveMetrics(ctx)
	if err != nil {
		return nil, err
	}

	client, err := portal.NewClient(o.cfg.BaseURL,
		portal.Credentials{Username: o.cfg.Username, Password: o.cfg.Password},
		portal.WithHTTPClient(portal.NewHTTPClient(o.cfg.HTTPTimeout)),
		portal.WithMetrics(metrics),
		portal.WithLogger(o.logger),
		portal.WithProgress(progress),
	)
	if err != nil {
		stop()
		return nil, err
	}

	return &session{
		client: client,
		watcher: watch.New(client,
			watch.WithInterval(o.cfg.PollInterval),
			watch.WithMaxErrors(o.cfg.MaxPollErrors),
			watch.WithBackoffMax(o.cfg.PollBackoffMax),
			watch.WithLogger(o.logger),
			watch.WithMetrics(metrics),
		),
		notifier: notify.New(o.cfg.NotifyURL, o.cfg.NotifyKey, notifyTimeout, o.logger),
		logger:   o.logger,
		stop:     stop,
	}, nil
}

// Close flushes pending notifications and stops the metrics listener.
func (s *session) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
	defer cancel()
	if err := s.notifier.Close(ctx); err != nil {
		s.logger.Warn("Pending notifications not delivered", "error", err)
	}
	if stats := s.notifier.Stats(); stats.Queued > 0 {
		s.logger.Debug("Notification stats", "delivered", stats.Delivered, "failed", stats.Failed, "dropped", stats.Dropped)
	}
	s.stop()
}

// serveMetrics starts the Prometheus listener when an address is configured.
func (o *options) serveMetrics(ctx context.Context) (*observability.Metrics, func(), error) {
	if o.cfg.MetricsAddr == "" {
		return nil, func() {}, nil
	}

	metrics, handler, err := observability.NewMetrics(ctx)
	if err != nil {
		return nil, nil, apperrors.Internal("create metrics", err)
	}

	ln, err := net.Listen("tcp", o.cfg.MetricsAddr)
	if err != nil {
		return nil, nil, apperrors.Validation("metricsAddr", fmt.Sprintf("cannot listen on %s: %v", o.cfg.MetricsAddr, err))
	}

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", handler)
	srv := &http.Server{
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			o.logger.Error("Metrics server failed", "error", err)
		}
	}()
	o.logger.Info("Serving metrics", "addr", ln.Addr().String())

	return metrics, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			o.logger.Warn("Metrics server shutdown error", "error", err)
		}
	}, nil
}

// watch waits for deploymentID under policy and reports the outcome.
func (s *session) watch(ctx context.Context, deploymentID, bundleName string, policy watch.Policy) error {
	start := time.Now()
	status, err := s.watcher.Wait(ctx, deploymentID, policy)

	outcome := notify.Outcome{
		DeploymentID: deploymentID,
		Bundle:       bundleName,
		Status:       status,
		Err:          err,
		Duration:     time.Since(start),
	}
	if status != nil {
		outcome.DeploymentName = status.DeploymentName
	}
	s.notifier.Notify(ctx, outcome)

	return err
}

// resolveID takes the deployment id from the first argument or, failing
// that, from idFile.
func resolveID(args []string, idFile string) (string, error) {
	if len(args) > 0 {
		id := strings.TrimSpace(args[0])
		if id == "" {
			return "", apperrors.Validation("deploymentId", "deployment id must not be empty")
		}
		return id, nil
	}
	return deploymentid.Read(idFile)
}

// syncWriter serializes writes from concurrent sessions.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}
