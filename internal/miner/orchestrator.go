package miner

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bardlex/gominer/internal/node"
	"github.com/bardlex/gominer/internal/pow"
	"github.com/bardlex/gominer/pkg/log"
	"github.com/bardlex/gominer/pkg/shutdown"
)

// Options configures a Miner
type Options struct {
	Service          string
	Address          string
	Threads          int
	PollInterval     time.Duration
	RetryDelay       time.Duration
	HashrateInterval time.Duration
	CheckInterval    uint64
	MaxNonce         uint64
}

// ClientFactory creates a node client. Every worker and the poller get their own.
type ClientFactory func() node.ChainStateClient

// Stats counts attempt outcomes across all workers
type Stats struct {
	submitted   atomic.Uint64
	accepted    atomic.Uint64
	rejected    atomic.Uint64
	stale       atomic.Uint64
	exhausted   atomic.Uint64
	unreachable atomic.Uint64
}

// StatsSnapshot is a point-in-time copy of Stats
type StatsSnapshot struct {
	Submitted   uint64
	Accepted    uint64
	Rejected    uint64
	Stale       uint64
	Exhausted   uint64
	Unreachable uint64

	// DroppedEvents counts telemetry and broker events lost to a full queue
	DroppedEvents uint64
}

func (s *Stats) record(o Outcome) {
	switch o {
	case OutcomeSubmitted:
		s.submitted.Add(1)
	case OutcomeStale:
		s.stale.Add(1)
	case OutcomeExhausted:
		s.exhausted.Add(1)
	case OutcomeUnreachable:
		s.unreachable.Add(1)
	}
}

// Snapshot returns the current counters
func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		Submitted:   s.submitted.Load(),
		Accepted:    s.accepted.Load(),
		Rejected:    s.rejected.Load(),
		Stale:       s.stale.Load(),
		Exhausted:   s.exhausted.Load(),
		Unreachable: s.unreachable.Load(),
	}
}

// Miner wires the poller, the workers and the reporter together
type Miner struct {
	opts     Options
	poller   *Poller
	workers  []*Worker
	reporter *Reporter
	stats    *Stats
	logger   *log.Logger
}

// New builds a miner. recorder and publisher are optional and may be nil.
func New(opts Options, newClient ClientFactory, recorder Recorder, publisher Publisher, logger *log.Logger) (*Miner, error) {
	if opts.Address == "" {
		return nil, fmt.Errorf("miner address is required")
	}
	if opts.Threads < 1 {
		return nil, fmt.Errorf("threads must be at least 1, got %d", opts.Threads)
	}
	if opts.PollInterval <= 0 {
		return nil, fmt.Errorf("poll interval must be positive")
	}
	if opts.MaxNonce < 2 {
		return nil, fmt.Errorf("max nonce must be greater than 1")
	}
	if opts.CheckInterval == 0 {
		opts.CheckInterval = pow.DefaultCheckInterval
	}

	logger = logger.WithComponent("miner")
	stats := &Stats{}
	poller := NewPoller(newClient(), opts.PollInterval, opts.RetryDelay, logger)

	meters := make([]*pow.Meter, opts.Threads)
	for i := range meters {
		meters[i] = pow.NewMeter()
	}
	reporter := NewReporter(meters, opts.HashrateInterval, recorder, publisher, logger)

	workers := make([]*Worker, opts.Threads)
	for i := range workers {
		workers[i] = &Worker{
			id:         i,
			service:    opts.Service,
			address:    opts.Address,
			client:     newClient(),
			source:     poller,
			searcher:   &pow.Searcher{CheckInterval: opts.CheckInterval, Meter: meters[i]},
			maxNonce:   opts.MaxNonce,
			retryDelay: opts.RetryDelay,
			reporter:   reporter,
			stats:      stats,
			logger:     logger.WithWorker(i),
			now:        time.Now,
		}
	}

	return &Miner{
		opts:     opts,
		poller:   poller,
		workers:  workers,
		reporter: reporter,
		stats:    stats,
		logger:   logger,
	}, nil
}

// Start launches every unit under the controller. They all stop when its context is
// cancelled; Controller.Wait joins them. The event loop outlives the workers so the
// result of a submission still in flight at shutdown is delivered.
func (m *Miner) Start(c *shutdown.Controller) {
	m.logger.Info("starting miner",
		"address", m.opts.Address,
		"threads", m.opts.Threads,
		"poll_interval", m.opts.PollInterval.String(),
		"stale_check_interval", m.opts.CheckInterval,
	)

	var workers sync.WaitGroup
	c.Go("poller", m.poller.Run)
	for _, w := range m.workers {
		workers.Add(1)
		c.Go(fmt.Sprintf("worker-%d", w.id), func(ctx context.Context) {
			defer workers.Done()
			w.Run(ctx)
		})
	}
	c.Go("hashrate", m.reporter.RunHashrate)
	c.Go("events", m.reporter.RunEvents)
	c.Go("event-queue", func(context.Context) {
		workers.Wait()
		m.reporter.Close()
	})
}

// Stats returns the outcome counters so far
func (m *Miner) Stats() StatsSnapshot {
	snap := m.stats.Snapshot()
	snap.DroppedEvents = m.reporter.Dropped()
	return snap
}
