// Package dispatch drives the delivery state machine. Each (event, channel)
// unit moves Pending -> Sending -> Delivered, or through Retrying with capped
// geometric backoff until the retry budget runs out and it lands in Failed.
// Channels are delivered in FIFO order; a bounded worker pool caps how many
// webhook calls are in flight across all channels.
package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"

	"beacon/internal/audit"
	"beacon/internal/dispatch/metrics"
	"beacon/internal/platform/config"
	"beacon/internal/ratelimit"
	"beacon/internal/routing"
	"beacon/internal/signing"
	id "beacon/pkg/domain"
	"beacon/pkg/platform/sentinel"
)

// queueDepth bounds how many units may wait per channel before Enqueue blocks.
const queueDepth = 1024

// Task identifies one delivery unit. The dispatcher loads the current record
// and channel configuration at attempt time, so a Task survives restarts.
type Task struct {
	CorrelationID id.CorrelationID
	Channel       id.ChannelID
}

// Deliverer performs one webhook delivery attempt.
type Deliverer interface {
	Send(ctx context.Context, channel routing.Channel, payload []byte) Outcome
}

type Dispatcher struct {
	cfg      config.DispatchConfig
	sender   Deliverer
	resolver routing.ChannelResolver
	limiter  ratelimit.Limiter
	records  *audit.Service
	backoff  Backoff
	clock    clockwork.Clock
	logger   *slog.Logger
	metrics  *metrics.Metrics
	tracer   trace.Tracer

	sem *semaphore.Weighted

	mu     sync.Mutex
	queues map[id.ChannelID]chan Task
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

type Option func(*Dispatcher)

func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) { d.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// WithClock replaces the clock, for tests.
func WithClock(clock clockwork.Clock) Option {
	return func(d *Dispatcher) { d.clock = clock }
}

func New(cfg config.DispatchConfig, sender Deliverer, resolver routing.ChannelResolver, limiter ratelimit.Limiter, records *audit.Service, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		cfg:      cfg,
		sender:   sender,
		resolver: resolver,
		limiter:  limiter,
		records:  records,
		backoff: Backoff{
			Base:   cfg.BackoffBase,
			Factor: cfg.BackoffFactor,
			Max:    cfg.BackoffMax,
		},
		clock:   clockwork.NewRealClock(),
		logger:  slog.Default(),
		tracer:  otel.Tracer("beacon/dispatch"),
		sem:     semaphore.NewWeighted(int64(cfg.Workers)),
		queues:  make(map[id.ChannelID]chan Task),
	}
	d.ctx, d.cancel = context.WithCancel(context.Background())
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Start re-enqueues units left non-terminal by a previous run.
func (d *Dispatcher) Start(ctx context.Context) error {
	return d.recover(ctx)
}

// Stop cancels in-flight waits and sleeps and blocks until every channel
// loop has exited. Units mid-retry stay non-terminal in the audit store and
// resume on the next Start.
func (d *Dispatcher) Stop() {
	if d.cancel != nil {
		d.cancel()
	}
	d.wg.Wait()
}

// Enqueue appends the unit to its channel's FIFO queue, blocking if the
// queue is full.
func (d *Dispatcher) Enqueue(ctx context.Context, task Task) error {
	queue := d.queueFor(task.Channel)
	select {
	case queue <- task:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-d.ctx.Done():
		return d.ctx.Err()
	}
}

func (d *Dispatcher) queueFor(channel id.ChannelID) chan Task {
	d.mu.Lock()
	defer d.mu.Unlock()

	queue, ok := d.queues[channel]
	if !ok {
		queue = make(chan Task, queueDepth)
		d.queues[channel] = queue
		d.wg.Add(1)
		go d.loop(queue)
	}
	return queue
}

// loop delivers one channel's units in order. Ordering is the loop itself:
// the next unit is not picked up until the current one reaches a terminal
// state or the dispatcher stops.
func (d *Dispatcher) loop(queue chan Task) {
	defer d.wg.Done()
	for {
		select {
		case <-d.ctx.Done():
			return
		case task := <-queue:
			d.process(task)
		}
	}
}

func (d *Dispatcher) recover(ctx context.Context) error {
	records, err := d.records.NonTerminal(ctx)
	if err != nil {
		return err
	}
	for _, rec := range records {
		if err := d.Enqueue(ctx, Task{CorrelationID: rec.CorrelationID, Channel: rec.Channel}); err != nil {
			return err
		}
	}
	if len(records) > 0 {
		d.logger.InfoContext(ctx, "resumed interrupted deliveries", "count", len(records))
	}
	return nil
}

func (d *Dispatcher) process(task Task) {
	ctx := d.ctx
	// Audit writes survive shutdown so an attempt that finished is never lost.
	recordCtx := context.WithoutCancel(ctx)

	rec, err := d.records.Get(ctx, task.CorrelationID, task.Channel)
	if errors.Is(err, sentinel.ErrNotFound) {
		d.logger.WarnContext(ctx, "dispatch unit has no audit record",
			"correlation_id", task.CorrelationID, "channel", task.Channel)
		return
	}
	if err != nil {
		d.logger.ErrorContext(ctx, "load audit record", "error", err,
			"correlation_id", task.CorrelationID, "channel", task.Channel)
		return
	}
	if rec.Status.Terminal() {
		return
	}

	channel, err := d.channelFor(ctx, rec)
	if err != nil {
		d.logger.ErrorContext(ctx, "dispatch unit has no resolvable channel", "error", err,
			"correlation_id", rec.CorrelationID, "channel", rec.Channel)
		d.recordOutcome(recordCtx, rec, audit.Attempt{
			Status:     audit.StatusFailed,
			RetryCount: rec.RetryCount,
			Err:        "channel configuration unavailable: " + err.Error(),
		})
		d.metrics.RecordFailed()
		return
	}

	limits := ratelimit.Limits{RatePerMinute: channel.RatePerMinute, Burst: channel.Burst}
	payloadHash := signing.PayloadHash(rec.Payload)
	retry := rec.RetryCount

	for {
		outcome, attempted := d.attempt(ctx, recordCtx, rec, channel, limits, payloadHash, retry)
		if !attempted {
			// Shutdown mid-wait; the record stays non-terminal for recovery.
			return
		}

		errMsg := ""
		if outcome.Err != nil {
			errMsg = outcome.Err.Error()
		}

		switch outcome.Class {
		case ClassDelivered:
			d.recordOutcome(recordCtx, rec, audit.Attempt{
				PayloadHash: payloadHash,
				SentAt:      d.clock.Now(),
				StatusCode:  outcome.StatusCode,
				RetryCount:  retry,
				Status:      audit.StatusDelivered,
			})
			d.metrics.RecordDelivered()
			return

		case ClassPermanent:
			d.recordOutcome(recordCtx, rec, audit.Attempt{
				PayloadHash: payloadHash,
				SentAt:      d.clock.Now(),
				StatusCode:  outcome.StatusCode,
				RetryCount:  retry,
				Err:         errMsg,
				Status:      audit.StatusFailed,
			})
			d.metrics.RecordFailed()
			return

		default:
			if outcome.StatusCode == 429 {
				d.metrics.RecordThrottled()
			}
			retry++
			// MaxRetries bounds total attempts: the MaxRetries-th failure is
			// terminal and no further attempt is made.
			if retry >= d.cfg.MaxRetries {
				d.recordOutcome(recordCtx, rec, audit.Attempt{
					PayloadHash: payloadHash,
					SentAt:      d.clock.Now(),
					StatusCode:  outcome.StatusCode,
					RetryCount:  d.cfg.MaxRetries,
					Err:         "retry budget exhausted: " + errMsg,
					Status:      audit.StatusFailed,
				})
				d.metrics.RecordFailed()
				return
			}

			d.recordOutcome(recordCtx, rec, audit.Attempt{
				PayloadHash: payloadHash,
				SentAt:      d.clock.Now(),
				StatusCode:  outcome.StatusCode,
				RetryCount:  retry,
				Err:         errMsg,
				Status:      audit.StatusRetrying,
			})
			d.metrics.RecordRetry()

			// A server hint is honored but capped at the backoff ceiling so a
			// hostile Retry-After cannot stall the channel's FIFO loop and
			// break the unit's wall-clock bound.
			delay := outcome.RetryAfter
			switch {
			case delay <= 0:
				delay = d.backoff.Delay(retry)
			case delay > d.backoff.Max:
				delay = d.backoff.Max
			}
			select {
			case <-ctx.Done():
				return
			case <-d.clock.After(delay):
			}
		}
	}
}

// attempt runs one rate-limited, pool-bounded webhook call. The second return
// is false when shutdown interrupted the attempt before a send happened.
func (d *Dispatcher) attempt(ctx, recordCtx context.Context, rec *audit.Record, channel routing.Channel, limits ratelimit.Limits, payloadHash string, retry int) (Outcome, bool) {
	if err := d.sem.Acquire(ctx, 1); err != nil {
		return Outcome{}, false
	}
	defer d.sem.Release(1)

	if err := d.limiter.Acquire(ctx, channel.ID, limits); err != nil {
		if ctx.Err() != nil {
			return Outcome{}, false
		}
		// Token acquisition timed out; treat as a retryable attempt so the
		// unit consumes budget instead of waiting forever.
		return Outcome{Class: ClassRetryable, Err: err}, true
	}

	d.recordOutcome(recordCtx, rec, audit.Attempt{
		PayloadHash: payloadHash,
		SentAt:      d.clock.Now(),
		RetryCount:  retry,
		Status:      audit.StatusSending,
	})

	spanCtx, span := d.tracer.Start(ctx, "dispatch.attempt", trace.WithAttributes(
		attribute.String("beacon.correlation_id", rec.CorrelationID.String()),
		attribute.String("beacon.channel", channel.ID.String()),
		attribute.Int("beacon.retry", retry),
	))
	start := time.Now()
	outcome := d.sender.Send(spanCtx, channel, rec.Payload)
	d.metrics.ObserveAttemptDuration(time.Since(start).Seconds())
	span.SetAttributes(attribute.Int("http.status_code", outcome.StatusCode))
	if outcome.Err != nil {
		span.RecordError(outcome.Err)
	}
	span.End()

	return outcome, true
}

func (d *Dispatcher) recordOutcome(ctx context.Context, rec *audit.Record, attempt audit.Attempt) {
	if _, err := d.records.Attempt(ctx, rec.CorrelationID, rec.Channel, attempt); err != nil {
		d.logger.ErrorContext(ctx, "record delivery attempt", "error", err,
			"correlation_id", rec.CorrelationID, "channel", rec.Channel)
	}
}

// channelFor re-resolves the channel configuration so secrets and webhook
// URLs are read at attempt time, not captured at intake.
func (d *Dispatcher) channelFor(ctx context.Context, rec *audit.Record) (routing.Channel, error) {
	var lastErr error
	for _, group := range rec.Stakeholders {
		channels, err := d.resolver.Channels(ctx, group)
		if err != nil {
			lastErr = err
			continue
		}
		for _, ch := range channels {
			if ch.ID == rec.Channel {
				return ch, nil
			}
		}
	}
	if lastErr != nil {
		return routing.Channel{}, lastErr
	}
	return routing.Channel{}, sentinel.ErrNotFound
}
