package notify

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"centralpublisher/pkg/backoff"
	"centralpublisher/pkg/circuitbreaker"
	"centralpublisher/pkg/cloudevent"
)

// ErrBufferFull is returned when the queue is full and the event is dropped.
var ErrBufferFull = errors.New("notification buffer full, event dropped")

// ErrClosed is returned when dispatching after Close.
var ErrClosed = errors.New("notifier is closed")

// Delivery defaults.
const (
	defaultBufferSize       = 64
	defaultWorkers          = 2
	defaultMaxRetries       = 3
	defaultBreakerThreshold = 3
	deliveryTimeout         = 30 * time.Second
)

// Stats holds delivery counters.
type Stats struct {
	Queued    int64
	Delivered int64
	Failed    int64 // failed after retries
	Dropped   int64 // full buffer or open breaker
	Retries   int64
}

type dispatchConfig struct {
	bufferSize int
	workers    int
	maxRetries int
	retry      backoff.Config
	breaker    circuitbreaker.Config
}

func defaultDispatchConfig() dispatchConfig {
	return dispatchConfig{
		bufferSize: defaultBufferSize,
		workers:    defaultWorkers,
		maxRetries: defaultMaxRetries,
		retry:      backoff.Config{Initial: 200 * time.Millisecond, Max: 2 * time.Second},
		breaker:    circuitbreaker.Config{Threshold: defaultBreakerThreshold},
	}
}

// dispatcher delivers events to one URL from a bounded queue. Events are
// retried with backoff on transport errors and 5xx responses; once the
// breaker opens, further events are dropped.
type dispatcher struct {
	url     string
	queue   chan *cloudevent.CloudEvent
	sender  *cloudevent.Sender
	breaker *circuitbreaker.Breaker
	cfg     dispatchConfig
	logger  *slog.Logger

	queued    atomic.Int64
	delivered atomic.Int64
	failed    atomic.Int64
	dropped   atomic.Int64
	retries   atomic.Int64

	wg       sync.WaitGroup
	shutdown chan struct{}
	closed   atomic.Bool
}

func newDispatcher(url string, sender *cloudevent.Sender, cfg dispatchConfig, logger *slog.Logger) *dispatcher {
	d := &dispatcher{
		url:      url,
		queue:    make(chan *cloudevent.CloudEvent, cfg.bufferSize),
		sender:   sender,
		breaker:  circuitbreaker.New(cfg.breaker),
		cfg:      cfg,
		logger:   logger,
		shutdown: make(chan struct{}),
	}

	d.wg.Add(cfg.workers)
	for range cfg.workers {
		go d.worker()
	}
	return d
}

// dispatch queues an event without blocking.
func (d *dispatcher) dispatch(event *cloudevent.CloudEvent) error {
	if d.closed.Load() {
		return ErrClosed
	}

	select {
	case d.queue <- event:
		d.queued.Add(1)
		return nil
	default:
		d.dropped.Add(1)
		d.logger.Warn("Notification dropped, buffer full", "type", event.Type, "subject", event.Subject)
		return ErrBufferFull
	}
}

func (d *dispatcher) stats() Stats {
	return Stats{
		Queued:    d.queued.Load(),
		Delivered: d.delivered.Load(),
		Failed:    d.failed.Load(),
		Dropped:   d.dropped.Load(),
		Retries:   d.retries.Load(),
	}
}

// close stops accepting events and waits for the queue to drain.
func (d *dispatcher) close(ctx context.Context) error {
	if d.closed.Swap(true) {
		return nil
	}
	close(d.shutdown)

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		d.logger.Warn("Notification drain timed out", "remaining", len(d.queue))
		return ctx.Err()
	}
}

func (d *dispatcher) worker() {
	defer d.wg.Done()

	for {
		select {
		case <-d.shutdown:
			d.drainQueue()
			return
		case event := <-d.queue:
			d.deliver(event)
		}
	}
}

func (d *dispatcher) drainQueue() {
	for {
		select {
		case event := <-d.queue:
			d.deliver(event)
		default:
			return
		}
	}
}

func (d *dispatcher) deliver(event *cloudevent.CloudEvent) {
	if !d.breaker.Allow() {
		d.dropped.Add(1)
		d.logger.Warn("Notification dropped, receiver failing", "type", event.Type, "subject", event.Subject)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), deliveryTimeout)
	defer cancel()

	if err := d.sendWithRetry(ctx, event); err != nil {
		d.breaker.RecordFailure()
		d.failed.Add(1)
		d.logger.Warn("Failed to send deployment notification", "type", event.Type, "subject", event.Subject, "error", err)
		return
	}

	d.breaker.RecordSuccess()
	d.delivered.Add(1)
	d.logger.Debug("Sent deployment notification", "type", event.Type, "subject", event.Subject)
}

func (d *dispatcher) sendWithRetry(ctx context.Context, event *cloudevent.CloudEvent) error {
	var lastErr error
	for attempt := range d.cfg.maxRetries + 1 {
		if attempt > 0 {
			d.retries.Add(1)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff.Exponential(attempt, &d.cfg.retry)):
			}
		}

		lastErr = d.sender.Send(ctx, d.url, event)
		if lastErr == nil || cloudevent.IsClientError(lastErr) {
			return lastErr
		}
	}
	return lastErr
}
