// Package miner runs the mining loop: a chain state poller publishing immutable snapshots,
// N independent workers searching against them, and a reporter for telemetry and events.
package miner

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bardlex/gominer/internal/node"
	"github.com/bardlex/gominer/pkg/log"
)

// SnapshotSource provides the latest chain state to workers
type SnapshotSource interface {
	// Current returns the last successfully fetched state, or nil before the first fetch
	Current() *node.ChainState
	// Ready is closed once the first state is available
	Ready() <-chan struct{}
	// Refresh asks for a fetch ahead of the regular cadence. It never blocks.
	Refresh()
}

// Poller refreshes the shared chain state on a fixed cadence. It is the only writer;
// each refresh replaces the snapshot wholesale.
type Poller struct {
	client     node.ChainStateClient
	interval   time.Duration
	retryDelay time.Duration
	logger     *log.Logger

	current   atomic.Pointer[node.ChainState]
	ready     chan struct{}
	readyOnce sync.Once
	refresh   chan struct{}
}

// NewPoller creates a poller. Until the first fetch succeeds it retries every retryDelay
// instead of waiting a full interval.
func NewPoller(client node.ChainStateClient, interval, retryDelay time.Duration, logger *log.Logger) *Poller {
	if retryDelay <= 0 || retryDelay > interval {
		retryDelay = interval
	}
	return &Poller{
		client:     client,
		interval:   interval,
		retryDelay: retryDelay,
		logger:     logger.WithComponent("poller"),
		ready:      make(chan struct{}),
		refresh:    make(chan struct{}, 1),
	}
}

// Current returns the latest snapshot. Callers must not modify it.
func (p *Poller) Current() *node.ChainState {
	return p.current.Load()
}

// Ready is closed once the first snapshot has been published
func (p *Poller) Ready() <-chan struct{} {
	return p.ready
}

// Refresh wakes the poll loop early. Requests made while one is pending are merged.
func (p *Poller) Refresh() {
	select {
	case p.refresh <- struct{}{}:
	default:
	}
}

// Run polls until ctx is done, then closes the client
func (p *Poller) Run(ctx context.Context) {
	defer p.client.Close()

	p.logger.Info("chain state poller started", "interval", p.interval.String())

	for {
		delay := p.interval
		if err := p.poll(ctx); err != nil {
			if ctx.Err() != nil {
				break
			}
			p.logger.WithError(err).Warn("node unreachable, keeping last chain state")
			if p.Current() == nil {
				delay = p.retryDelay
			}
		}

		if !p.wait(ctx, delay) {
			break
		}
	}

	p.logger.Info("chain state poller stopped")
}

// wait sleeps for d or until a refresh is requested. It returns false once ctx is done.
func (p *Poller) wait(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-p.refresh:
		return true
	case <-timer.C:
		return true
	}
}

func (p *Poller) poll(ctx context.Context) error {
	state, err := p.client.GetChainInfo(ctx)
	if err != nil {
		return err
	}

	p.publish(state)
	return nil
}

func (p *Poller) publish(state *node.ChainState) {
	prev := p.current.Swap(state)

	switch {
	case prev == nil:
		p.logger.Info("chain state received",
			"previous_hash", state.PreviousHash,
			"difficulty", state.Difficulty.String(),
			"block_size", state.BlockSize,
			"block_reward", state.BlockReward,
		)
	case prev.PreviousHash != state.PreviousHash:
		p.logger.Info("chain head advanced",
			"previous_hash", state.PreviousHash,
			"old_previous_hash", prev.PreviousHash,
			"difficulty", state.Difficulty.String(),
		)
	default:
		p.logger.Debug("chain state refreshed", "previous_hash", state.PreviousHash)
	}

	p.readyOnce.Do(func() { close(p.ready) })
}
