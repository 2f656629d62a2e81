package miner

import (
	"context"
	"time"

	"github.com/bardlex/gominer/internal/block"
	"github.com/bardlex/gominer/internal/messaging"
	"github.com/bardlex/gominer/internal/node"
	"github.com/bardlex/gominer/internal/pow"
	"github.com/bardlex/gominer/internal/telemetry"
	"github.com/bardlex/gominer/pkg/log"
	"github.com/bardlex/gominer/pkg/retry"
)

// State is a worker's position in its mining cycle
type State int

// Worker states, in cycle order
const (
	StatePollingInfo State = iota
	StateFetchingTxs
	StateBuildingTemplate
	StateSearching
	StateSubmitting
)

// String returns string representation of the state
func (s State) String() string {
	switch s {
	case StatePollingInfo:
		return "polling_info"
	case StateFetchingTxs:
		return "fetching_txs"
	case StateBuildingTemplate:
		return "building_template"
	case StateSearching:
		return "searching"
	case StateSubmitting:
		return "submitting"
	default:
		return "unknown"
	}
}

// Outcome is how one mining attempt ended
type Outcome int

const (
	// OutcomeSubmitted means a block was found and handed to the node
	OutcomeSubmitted Outcome = iota
	// OutcomeStale means the chain head moved during the search
	OutcomeStale
	// OutcomeExhausted means the nonce range ran out; the next attempt re-templates
	OutcomeExhausted
	// OutcomeUnreachable means the node could not be used this cycle
	OutcomeUnreachable
	// OutcomeCancelled means shutdown was requested
	OutcomeCancelled
)

// String returns string representation of the outcome
func (o Outcome) String() string {
	switch o {
	case OutcomeSubmitted:
		return "submitted"
	case OutcomeStale:
		return "stale"
	case OutcomeExhausted:
		return "exhausted"
	case OutcomeUnreachable:
		return "unreachable"
	case OutcomeCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Worker runs the mining cycle with its own node connection, template and search
type Worker struct {
	id         int
	service    string
	address    string
	client     node.ChainStateClient
	source     SnapshotSource
	searcher   *pow.Searcher
	maxNonce   uint64
	retryDelay time.Duration
	reporter   *Reporter
	stats      *Stats
	logger     *log.Logger
	now        func() time.Time
}

// Run mines until ctx is done. It waits for the first chain state, never returns early
// on node errors, and closes its client on exit.
func (w *Worker) Run(ctx context.Context) {
	defer w.client.Close()

	select {
	case <-ctx.Done():
		return
	case <-w.source.Ready():
	}

	w.logger.Info("worker started")

	defer func() {
		w.logger.Info("worker stopped", "hashes", w.searcher.Meter.Total())
	}()

	for {
		outcome := w.mineOnce(ctx)
		w.stats.record(outcome)

		switch outcome {
		case OutcomeCancelled:
			return
		case OutcomeUnreachable:
			if err := retry.Wait(ctx, w.retryDelay); err != nil {
				return
			}
		}
	}
}

// mineOnce runs a single attempt: snapshot, pending pool, template, search and,
// on success, submission. The template is discarded afterwards.
func (w *Worker) mineOnce(ctx context.Context) Outcome {
	if ctx.Err() != nil {
		return OutcomeCancelled
	}

	// POLLING_INFO
	state := w.source.Current()
	if state == nil {
		return OutcomeUnreachable
	}

	// FETCHING_TXS
	pending, err := w.client.GetPendingTransactions(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return OutcomeCancelled
		}
		w.logger.WithError(err).Warn("failed to fetch pending transactions",
			"state", StateFetchingTxs.String(),
			"unreachable", node.IsUnreachable(err),
		)
		return OutcomeUnreachable
	}

	// BUILDING_TEMPLATE
	buildStart := time.Now()
	tmpl, err := block.AssembleTemplate(pending, state, w.address, w.now().Unix())
	if err != nil {
		w.logger.WithError(err).Error("failed to build block template",
			"state", StateBuildingTemplate.String(),
		)
		return OutcomeUnreachable
	}
	w.logger.LogDuration(StateBuildingTemplate.String(), time.Since(buildStart))

	logger := w.logger.WithTemplate(tmpl.PreviousHash, tmpl.MerkleRoot, len(tmpl.Transactions))
	logger.Debug("searching",
		"state", StateSearching.String(),
		"pending", len(pending),
		"size", tmpl.Size,
		"limit", tmpl.Limit,
		"fees", tmpl.Fees,
	)

	// SEARCHING
	stale := func() bool {
		if ctx.Err() != nil {
			return true
		}
		current := w.source.Current()
		return current != nil && current.PreviousHash != tmpl.PreviousHash
	}

	start := time.Now()
	result := w.searcher.Search(tmpl.Prefix, tmpl.Target, pow.NonceRange{Start: 1, End: w.maxNonce}, stale)
	searchTime := time.Since(start)

	switch result.Status {
	case pow.Aborted:
		if ctx.Err() != nil {
			return OutcomeCancelled
		}
		logger.Info("chain head advanced, abandoning template", "hashes", result.Hashes)
		return OutcomeStale
	case pow.Exhausted:
		logger.Info("nonce range exhausted, rebuilding template", "hashes", result.Hashes)
		return OutcomeExhausted
	}

	// FOUND -> SUBMITTING
	logger.LogBlockFound(result.Hash, result.Nonce, len(tmpl.Transactions), float64(searchTime)/float64(time.Millisecond))
	w.reporter.enqueue(event{found: &messaging.BlockFoundEvent{
		Service:      w.service,
		MinerAddress: w.address,
		WorkerID:     w.id,
		BlockHash:    result.Hash,
		PreviousHash: tmpl.PreviousHash,
		MerkleRoot:   tmpl.MerkleRoot,
		Nonce:        result.Nonce,
		Timestamp:    tmpl.Timestamp,
		TxCount:      len(tmpl.Transactions),
		Reward:       tmpl.Coinbase().Amount,
		Hashes:       result.Hashes,
		SearchTimeMs: float64(searchTime) / float64(time.Millisecond),
		FoundAt:      time.Now(),
	}})

	w.submit(ctx, tmpl, result, searchTime, logger)
	return OutcomeSubmitted
}

// submit delivers a solved block exactly once. It is not cut short by shutdown so a
// found block is never abandoned mid-request; the client timeout bounds it instead.
func (w *Worker) submit(ctx context.Context, tmpl *block.Template, result pow.Result, searchTime time.Duration, logger *log.Logger) {
	start := time.Now()
	status, err := w.client.SubmitBlock(context.WithoutCancel(ctx), tmpl.Block(result.Nonce))
	latency := time.Since(start)

	logger.LogSubmission(result.Hash, result.Nonce, status.String(), float64(latency)/float64(time.Millisecond))
	if err != nil {
		logger.WithError(err).Warn("block rejected, discarding", "state", StateSubmitting.String())
	}

	if status == node.Accepted {
		w.stats.accepted.Add(1)
		// Our block is the new head; pick it up before mining on the old one any further
		w.source.Refresh()
	} else {
		w.stats.rejected.Add(1)
	}

	submission := &messaging.BlockSubmissionResult{
		Service:        w.service,
		WorkerID:       w.id,
		BlockHash:      result.Hash,
		Nonce:          result.Nonce,
		Status:         status.String(),
		SubmissionTime: start,
		LatencyMs:      float64(latency) / float64(time.Millisecond),
	}
	if err != nil {
		submission.ErrorMessage = err.Error()
	}
	w.reporter.enqueue(event{result: submission})

	w.reporter.enqueue(event{outcome: &telemetry.BlockOutcome{
		Worker:       w.id,
		Hash:         result.Hash,
		PreviousHash: tmpl.PreviousHash,
		Nonce:        result.Nonce,
		Transactions: len(tmpl.Transactions),
		Reward:       tmpl.Coinbase().Amount,
		Status:       status.String(),
		SearchTime:   searchTime,
		Latency:      latency,
	}})
}
