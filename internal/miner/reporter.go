package miner

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/bardlex/gominer/internal/messaging"
	"github.com/bardlex/gominer/internal/pow"
	"github.com/bardlex/gominer/internal/telemetry"
	"github.com/bardlex/gominer/pkg/log"
)

const (
	eventQueueSize = 64
	deliverTimeout = 5 * time.Second
)

// Recorder receives sampled metrics
type Recorder interface {
	RecordHashrate(ctx context.Context, worker int, hashesPerSecond float64)
	RecordBlock(ctx context.Context, outcome *telemetry.BlockOutcome)
}

// Publisher receives block events
type Publisher interface {
	PublishBlockFound(ctx context.Context, event *messaging.BlockFoundEvent) error
	PublishSubmissionResult(ctx context.Context, result *messaging.BlockSubmissionResult) error
}

// event is one item for the side channel; exactly one field is set
type event struct {
	found   *messaging.BlockFoundEvent
	result  *messaging.BlockSubmissionResult
	outcome *telemetry.BlockOutcome
}

// Reporter moves telemetry off the workers: it samples the per-worker meters on a timer
// and delivers block events from a bounded queue. Nothing it does feeds back into mining.
type Reporter struct {
	meters    []*pow.Meter
	interval  time.Duration
	recorder  Recorder
	publisher Publisher
	logger    *log.Logger

	queue   chan event
	dropped atomic.Uint64
}

// NewReporter creates a reporter for the given meters. recorder and publisher may be nil.
func NewReporter(meters []*pow.Meter, interval time.Duration, recorder Recorder, publisher Publisher, logger *log.Logger) *Reporter {
	return &Reporter{
		meters:    meters,
		interval:  interval,
		recorder:  recorder,
		publisher: publisher,
		logger:    logger.WithComponent("reporter"),
		queue:     make(chan event, eventQueueSize),
	}
}

// Dropped returns how many events were discarded because the queue was full
func (r *Reporter) Dropped() uint64 {
	return r.dropped.Load()
}

// enqueue hands an event to the side channel without ever blocking the caller
func (r *Reporter) enqueue(ev event) {
	if r.recorder == nil && r.publisher == nil {
		return
	}
	select {
	case r.queue <- ev:
	default:
		r.dropped.Add(1)
	}
}

// RunHashrate samples and reports every meter each interval until ctx is done
func (r *Reporter) RunHashrate(ctx context.Context) {
	if r.interval <= 0 {
		<-ctx.Done()
		return
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.sample(ctx)
		}
	}
}

func (r *Reporter) sample(ctx context.Context) {
	var total float64
	for id, meter := range r.meters {
		hashes, elapsed := meter.Sample()
		rate := pow.Rate(hashes, elapsed)
		total += rate

		r.logger.WithWorker(id).LogHashrate(hashes, elapsed.Seconds())
		if r.recorder != nil {
			r.recorder.RecordHashrate(ctx, id, rate)
		}
	}

	if len(r.meters) > 1 {
		r.logger.Info("total hashrate", "khash_per_sec", total/1000, "workers", len(r.meters))
	}
}

// RunEvents delivers queued events until the queue is closed with Close. It keeps
// running past cancellation of ctx so events queued by an in-flight submission still
// go out; each delivery is bounded by deliverTimeout.
func (r *Reporter) RunEvents(ctx context.Context) {
	base := context.WithoutCancel(ctx)
	for ev := range r.queue {
		deliverCtx, cancel := context.WithTimeout(base, deliverTimeout)
		r.deliver(deliverCtx, ev)
		cancel()
	}

	if n := r.dropped.Load(); n > 0 {
		r.logger.Warn("events dropped while queue was full", "count", n)
	}
}

// Close ends RunEvents once the queued events are delivered. It must only be called
// after every producer has returned.
func (r *Reporter) Close() {
	close(r.queue)
}

func (r *Reporter) deliver(ctx context.Context, ev event) {
	switch {
	case ev.found != nil && r.publisher != nil:
		if err := r.publisher.PublishBlockFound(ctx, ev.found); err != nil {
			r.logger.WithError(err).Warn("failed to publish block found event", "block_hash", ev.found.BlockHash)
		}
	case ev.result != nil && r.publisher != nil:
		if err := r.publisher.PublishSubmissionResult(ctx, ev.result); err != nil {
			r.logger.WithError(err).Warn("failed to publish submission result", "block_hash", ev.result.BlockHash)
		}
	case ev.outcome != nil && r.recorder != nil:
		r.recorder.RecordBlock(ctx, ev.outcome)
	}
}
